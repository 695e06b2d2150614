// Package openai adapts llm.Provider to the OpenAI Chat Completions API.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/usamanadeem786/iiagentd/internal/agenterrors"
	"github.com/usamanadeem786/iiagentd/internal/history"
	"github.com/usamanadeem786/iiagentd/internal/observability"
	"github.com/usamanadeem786/iiagentd/internal/tools"
)

// Client is an llm.Provider backed by OpenAI Chat Completions.
type Client struct {
	sdk   sdk.Client
	model string
}

// New builds a Client. baseURL may be empty to use the SDK default
// (allowing OpenAI-compatible self-hosted endpoints).
func New(apiKey, baseURL, model string) *Client {
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(apiKey))}
	if b := strings.TrimSpace(baseURL); b != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(b, "/")))
	}
	if strings.TrimSpace(model) == "" {
		model = "gpt-4o"
	}
	return &Client{sdk: sdk.NewClient(opts...), model: model}
}

func (c *Client) pickModel(model string) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	return c.model
}

// Generate implements llm.Provider.
func (c *Client) Generate(ctx context.Context, h *history.History, schemas []tools.Schema, model string, maxOutputTokens int, systemPrompt string) ([]history.ContentBlock, error) {
	msgs, err := adaptTurns(h.Turns(), systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", agenterrors.ErrProvider, err)
	}
	effectiveModel := c.pickModel(model)
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(effectiveModel),
		Messages: msgs,
	}
	if len(schemas) > 0 {
		params.Tools = adaptSchemas(schemas)
	}
	if maxOutputTokens > 0 {
		params.MaxTokens = sdk.Int(int64(maxOutputTokens))
	}

	log := observability.LoggerWithTrace(ctx)
	start := time.Now()
	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		log.Error().Err(err).Str("model", effectiveModel).Dur("duration", time.Since(start)).Msg("openai_generate_error")
		return nil, fmt.Errorf("%w: %v", agenterrors.ErrProvider, err)
	}
	log.Debug().Str("model", effectiveModel).Dur("duration", time.Since(start)).Msg("openai_generate_ok")

	return blocksFromCompletion(comp), nil
}

func adaptSchemas(schemas []tools.Schema) []sdk.ChatCompletionToolUnionParam {
	out := make([]sdk.ChatCompletionToolUnionParam, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, sdk.ChatCompletionFunctionTool(sdk.FunctionDefinitionParam{
			Name:        s.Name,
			Description: sdk.String(s.Description),
			Parameters:  s.Parameters,
		}))
	}
	return out
}

// adaptTurns flattens history turns into Chat Completions messages: a user
// turn becomes one user message (each image replaced by a short
// placeholder line) plus one tool message per ToolResult it carries; an
// assistant turn becomes one assistant message, with any ToolCalls
// attached to it per the API's single-message-many-tool-calls shape.
func adaptTurns(turns []history.Turn, systemPrompt string) ([]sdk.ChatCompletionMessageParamUnion, error) {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(turns)+1)
	if strings.TrimSpace(systemPrompt) != "" {
		out = append(out, sdk.SystemMessage(systemPrompt))
	}
	for _, t := range turns {
		if len(t.Blocks) == 0 || t.Blocks[0].Speaker() == history.SpeakerUser {
			var text strings.Builder
			var toolResults []history.ToolResult
			for _, b := range t.Blocks {
				switch v := b.(type) {
				case history.UserText:
					text.WriteString(v.Text)
				case history.Image:
					// Chat Completions accepts images only via content
					// parts on a user message; since no tool in this
					// tree feeds an Image block back as a ToolResult,
					// this path only fires for user-attached images.
					text.WriteString("[attached image omitted for this provider]\n")
				case history.ToolResult:
					toolResults = append(toolResults, v)
				}
			}
			if text.Len() > 0 {
				out = append(out, sdk.UserMessage(text.String()))
			}
			for _, tr := range toolResults {
				content := tr.Text
				if !tr.IsText {
					content = resultPartsToText(tr.Parts)
				}
				out = append(out, sdk.ToolMessage(content, tr.ID))
			}
			continue
		}

		var asst sdk.ChatCompletionAssistantMessageParam
		var text strings.Builder
		for _, b := range t.Blocks {
			switch v := b.(type) {
			case history.AssistantText:
				text.WriteString(v.Text)
			case history.ToolCall:
				raw, err := json.Marshal(v.Input)
				if err != nil {
					return nil, fmt.Errorf("marshal tool call %s input: %w", v.ID, err)
				}
				asst.ToolCalls = append(asst.ToolCalls, sdk.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &sdk.ChatCompletionMessageFunctionToolCallParam{
						ID: v.ID,
						Function: sdk.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      v.Name,
							Arguments: string(raw),
						},
					},
				})
			}
		}
		if text.Len() > 0 {
			asst.Content.OfString = sdk.String(text.String())
		}
		out = append(out, sdk.ChatCompletionMessageParamUnion{OfAssistant: &asst})
	}
	return out, nil
}

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

func blocksFromCompletion(comp *sdk.ChatCompletion) []history.ContentBlock {
	if comp == nil || len(comp.Choices) == 0 {
		return nil
	}
	msg := comp.Choices[0].Message
	out := make([]history.ContentBlock, 0, 1+len(msg.ToolCalls))
	if strings.TrimSpace(msg.Content) != "" {
		out = append(out, history.AssistantText{Text: msg.Content})
	}
	for _, tc := range msg.ToolCalls {
		switch v := tc.AsAny().(type) {
		case sdk.ChatCompletionMessageFunctionToolCall:
			input := map[string]any{}
			_ = json.Unmarshal([]byte(v.Function.Arguments), &input)
			out = append(out, history.ToolCall{ID: v.ID, Name: v.Function.Name, Input: input})
		}
	}
	return out
}
