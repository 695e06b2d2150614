// Package anthropic adapts llm.Provider to the Anthropic Messages API,
// converting directly between history.ContentBlock and the SDK's block
// param/response types instead of through an intermediate message type —
// each history.Turn maps onto one anthropic.MessageParam since both are
// single-speaker block sequences.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/usamanadeem786/iiagentd/internal/agenterrors"
	"github.com/usamanadeem786/iiagentd/internal/history"
	"github.com/usamanadeem786/iiagentd/internal/observability"
	"github.com/usamanadeem786/iiagentd/internal/tools"
)

const defaultMaxTokens int64 = 4096

// Client is an llm.Provider backed by the Anthropic Messages API.
type Client struct {
	sdk   anthropicsdk.Client
	model string
}

// New builds a Client. baseURL may be empty to use the SDK default.
func New(apiKey, baseURL, model string) *Client {
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(apiKey))}
	if b := strings.TrimSpace(baseURL); b != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(b, "/")))
	}
	if strings.TrimSpace(model) == "" {
		model = string(anthropicsdk.ModelClaudeSonnet4_5)
	}
	return &Client{sdk: anthropicsdk.NewClient(opts...), model: model}
}

func (c *Client) pickModel(model string) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	return c.model
}

// Generate implements llm.Provider.
func (c *Client) Generate(ctx context.Context, h *history.History, schemas []tools.Schema, model string, maxOutputTokens int, systemPrompt string) ([]history.ContentBlock, error) {
	msgs, err := adaptTurns(h.Turns())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", agenterrors.ErrProvider, err)
	}
	maxTokens := int64(maxOutputTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(c.pickModel(model)),
		Messages:  msgs,
		MaxTokens: maxTokens,
		Tools:     adaptSchemas(schemas),
	}
	if strings.TrimSpace(systemPrompt) != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: systemPrompt}}
	}

	log := observability.LoggerWithTrace(ctx)
	start := time.Now()
	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		log.Error().Err(err).Str("model", string(params.Model)).Dur("duration", time.Since(start)).Msg("anthropic_generate_error")
		return nil, fmt.Errorf("%w: %v", agenterrors.ErrProvider, err)
	}
	log.Debug().Str("model", string(params.Model)).Dur("duration", time.Since(start)).
		Int("input_tokens", int(resp.Usage.InputTokens)).
		Int("output_tokens", int(resp.Usage.OutputTokens)).
		Msg("anthropic_generate_ok")

	return blocksFromResponse(resp), nil
}

func adaptSchemas(schemas []tools.Schema) []anthropicsdk.ToolUnionParam {
	if len(schemas) == 0 {
		return nil
	}
	out := make([]anthropicsdk.ToolUnionParam, 0, len(schemas))
	for _, s := range schemas {
		params := anthropicsdk.ToolInputSchemaParam{Type: constant.ValueOf[constant.Object]()}
		extra := map[string]any{}
		for k, v := range s.Parameters {
			extra[k] = v
		}
		if props, ok := extra["properties"]; ok {
			params.Properties = props
			delete(extra, "properties")
		}
		if req, ok := extra["required"]; ok {
			if arr, ok := req.([]any); ok {
				strs := make([]string, 0, len(arr))
				for _, r := range arr {
					if s, ok := r.(string); ok {
						strs = append(strs, s)
					}
				}
				params.Required = strs
			}
			delete(extra, "required")
		}
		if len(extra) > 0 {
			params.ExtraFields = extra
		}
		out = append(out, anthropicsdk.ToolUnionParam{
			OfTool: &anthropicsdk.ToolParam{
				Name:        s.Name,
				Description: anthropicsdk.String(s.Description),
				InputSchema: params,
			},
		})
	}
	return out
}

func adaptTurns(turns []history.Turn) ([]anthropicsdk.MessageParam, error) {
	out := make([]anthropicsdk.MessageParam, 0, len(turns))
	for _, t := range turns {
		blocks := make([]anthropicsdk.ContentBlockParamUnion, 0, len(t.Blocks))
		var isUser bool
		for i, b := range t.Blocks {
			if i == 0 {
				isUser = b.Speaker() == history.SpeakerUser
			}
			switch v := b.(type) {
			case history.UserText:
				if strings.TrimSpace(v.Text) != "" {
					blocks = append(blocks, anthropicsdk.NewTextBlock(v.Text))
				}
			case history.AssistantText:
				if strings.TrimSpace(v.Text) != "" {
					blocks = append(blocks, anthropicsdk.NewTextBlock(v.Text))
				}
			case history.Image:
				blocks = append(blocks, anthropicsdk.NewImageBlockBase64(v.MediaType, v.Base64Data))
			case history.ToolCall:
				blocks = append(blocks, anthropicsdk.NewToolUseBlock(v.ID, toolInputAny(v.Input), v.Name))
			case history.ToolResult:
				if v.IsText {
					blocks = append(blocks, anthropicsdk.NewToolResultBlock(v.ID, v.Text, false))
				} else {
					blocks = append(blocks, anthropicsdk.NewToolResultBlock(v.ID, resultPartsToText(v.Parts), false))
				}
			case history.Thinking:
				blocks = append(blocks, anthropicsdk.NewThinkingBlock(v.Signature, v.Text))
			case history.RedactedThinking:
				blocks = append(blocks, anthropicsdk.NewRedactedThinkingBlock(v.Opaque))
			default:
				return nil, fmt.Errorf("unsupported content block %T", b)
			}
		}
		if len(blocks) == 0 {
			continue
		}
		if isUser {
			out = append(out, anthropicsdk.NewUserMessage(blocks...))
		} else {
			out = append(out, anthropicsdk.NewAssistantMessage(blocks...))
		}
	}
	return out, nil
}

func toolInputAny(m map[string]any) any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// resultPartsToText collapses a multi-part tool result down to text for
// the provider call; image parts are summarized rather than dropped
// silently, since Anthropic tool_result content also accepts image
// blocks but the extra plumbing isn't exercised by any tool in this tree
// besides the browser family, which this keeps legible for.
func resultPartsToText(parts []history.ResultPart) string {
	var sb strings.Builder
	for _, p := range parts {
		if p.Type == "image" {
			sb.WriteString("[image attached]\n")
			continue
		}
		sb.WriteString(p.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

func blocksFromResponse(resp *anthropicsdk.Message) []history.ContentBlock {
	if resp == nil {
		return nil
	}
	out := make([]history.ContentBlock, 0, len(resp.Content))
	for _, block := range resp.Content {
		switch v := block.AsAny().(type) {
		case anthropicsdk.TextBlock:
			out = append(out, history.AssistantText{Text: v.Text})
		case anthropicsdk.ToolUseBlock:
			input := map[string]any{}
			if len(v.Input) > 0 {
				_ = json.Unmarshal(v.Input, &input)
			}
			out = append(out, history.ToolCall{ID: v.ID, Name: v.Name, Input: input})
		case anthropicsdk.ThinkingBlock:
			out = append(out, history.Thinking{Text: v.Thinking, Signature: v.Signature})
		case anthropicsdk.RedactedThinkingBlock:
			out = append(out, history.RedactedThinking{Opaque: v.Data})
		}
	}
	return out
}
