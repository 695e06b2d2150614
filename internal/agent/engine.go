// Package agent implements the turn loop of spec.md §4.5: the state
// machine that drives one LLM generation plus (at most) one tool call per
// iteration until the model calls the completion tool, the turn budget is
// exhausted, or the run is cancelled. Grounded on the teacher's
// internal/agent/engine.go runLoop, with the teacher's own
// summarization/evolving-memory machinery left out in favor of this
// repository's own ContextManager (internal/contextmgr), which already
// fulfills the same role against this system's own data model.
package agent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/usamanadeem786/iiagentd/internal/agenterrors"
	"github.com/usamanadeem786/iiagentd/internal/contextmgr"
	"github.com/usamanadeem786/iiagentd/internal/event"
	"github.com/usamanadeem786/iiagentd/internal/history"
	"github.com/usamanadeem786/iiagentd/internal/llm"
	"github.com/usamanadeem786/iiagentd/internal/observability"
	"github.com/usamanadeem786/iiagentd/internal/sandbox"
	"github.com/usamanadeem786/iiagentd/internal/tools"
	"github.com/usamanadeem786/iiagentd/internal/tools/complete"
)

// Publisher is the minimal surface the engine needs from the event bus. An
// interface defined at the point of use so this package never imports
// internal/eventbus.
type Publisher interface {
	Publish(event.RealtimeEvent)
}

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
}

// Engine holds everything one session's agent needs across its lifetime:
// the canonical history, the provider, the registry, and the budgets named
// in spec.md §4.5.
type Engine struct {
	Provider               llm.Provider
	Tools                  *tools.Registry
	ContextMgr             contextmgr.Manager
	History                *history.History
	Workspace              sandbox.Workspace
	Events                 Publisher
	Model                  string
	SystemPrompt           string
	MaxTurns               int
	MaxOutputTokensPerTurn int

	interrupted atomic.Bool
}

// New builds an Engine with the defaults spec.md §4.5 and §6 name.
func New(provider llm.Provider, registry *tools.Registry, ctxMgr contextmgr.Manager, ws sandbox.Workspace, events Publisher, model, systemPrompt string, maxTurns, maxOutputTokensPerTurn int) *Engine {
	if maxTurns <= 0 {
		maxTurns = 100
	}
	if maxOutputTokensPerTurn <= 0 {
		maxOutputTokensPerTurn = 8192
	}
	return &Engine{
		Provider:               provider,
		Tools:                  registry,
		ContextMgr:             ctxMgr,
		History:                history.New(),
		Workspace:              ws,
		Events:                 events,
		Model:                  model,
		SystemPrompt:           systemPrompt,
		MaxTurns:               maxTurns,
		MaxOutputTokensPerTurn: maxOutputTokensPerTurn,
	}
}

// Cancel requests interruption. Observed cooperatively at the next
// suspension point (spec.md §5, "Cancellation").
func (e *Engine) Cancel() { e.interrupted.Store(true) }

func (e *Engine) emit(t event.Type, content map[string]any) {
	if e.Events == nil {
		return
	}
	e.Events.Publish(event.New(t, content))
}

func (e *Engine) interruptedNow(ctx context.Context) bool {
	return e.interrupted.Load() || ctx.Err() != nil
}

// Run implements runAgent(instruction, files?, resume=false) of spec.md
// §4.5. It returns the final assistant-facing text and, for the recovered
// error kinds spec.md §7 names (interrupted, max-turns), an error wrapping
// the corresponding sentinel so callers can distinguish "finished with an
// answer" from "stopped without one" without parsing the text.
func (e *Engine) Run(ctx context.Context, instruction string, files []string, resume bool) (string, error) {
	if !resume {
		e.History.Clear()
	} else if !e.History.IsNextTurnUser() {
		return "", fmt.Errorf("%w: resume requires history to await a user turn", agenterrors.ErrHistoryInvariant)
	}
	e.interrupted.Store(false)

	if err := e.appendUserTurn(instruction, files); err != nil {
		return "", err
	}
	e.emit(event.TypeUserMessage, map[string]any{"text": instruction})

	for step := 0; step < e.MaxTurns; step++ {
		if e.interruptedNow(ctx) {
			return e.handleInterrupt(nil)
		}

		current, err := e.truncatedSnapshot(ctx)
		if err != nil {
			return "", err
		}

		e.emit(event.TypeProcessing, map[string]any{"step": step})
		blocks, err := e.Provider.Generate(ctx, current, e.Tools.Schemas(), e.Model, e.MaxOutputTokensPerTurn, e.SystemPrompt)
		if err != nil {
			if e.interruptedNow(ctx) {
				return e.handleInterrupt(nil)
			}
			return "", fmt.Errorf("%w: %v", agenterrors.ErrProvider, err)
		}
		if len(blocks) == 0 {
			blocks = []history.ContentBlock{history.AssistantText{Text: "Completed."}}
		}
		e.emitThinking(blocks)

		if err := e.History.AddAssistantTurn(blocks); err != nil {
			return "", err
		}

		pending := e.History.GetPendingToolCalls()
		if len(pending) == 0 {
			text, _ := e.History.GetLastAssistantText()
			e.emit(event.TypeAgentResponse, map[string]any{"text": text})
			return text, nil
		}
		if len(pending) > 1 {
			return "", fmt.Errorf("%w: got %d", agenterrors.ErrMultipleToolCalls, len(pending))
		}
		call := pending[0]

		e.emit(event.TypeToolCall, map[string]any{"id": call.ID, "name": call.Name, "input": call.Input})
		if e.interruptedNow(ctx) {
			return e.handleInterrupt(&call)
		}

		text, parts, answer, dispatchErr := e.dispatch(ctx, call)
		if len(parts) > 0 {
			_ = e.History.AddToolCallResultParts(call, parts)
		} else {
			_ = e.History.AddToolCallResult(call, text)
		}
		e.emit(event.TypeToolResult, map[string]any{"id": call.ID, "name": call.Name, "text": text})
		e.emitDomainEvent(call, dispatchErr == nil)
		if call.Name == complete.Name && dispatchErr == nil {
			_ = e.History.AddAssistantTurn([]history.ContentBlock{history.AssistantText{Text: "Completed."}})
			e.emit(event.TypeAgentResponse, map[string]any{"text": answer})
			e.emit(event.TypeStreamComplete, nil)
			return answer, nil
		}
	}

	const msg = "Agent did not complete after max turns"
	e.emit(event.TypeAgentResponse, map[string]any{"text": msg})
	return msg, agenterrors.ErrMaxTurnsExceeded
}

// dispatch runs the named tool and converts every failure mode the
// registry can return (unknown tool, schema violation, tool panic-free
// runtime error) into a plain string fed back to the model as the
// ToolResult output, per spec.md §4.4's "schema failures return a string,
// not an exception" contract, generalized to every Dispatch error so a
// single bad tool call never aborts the run.
func (e *Engine) dispatch(ctx context.Context, call history.ToolCall) (text string, parts []history.ResultPart, answer string, err error) {
	raw, marshalErr := json.Marshal(call.Input)
	if marshalErr != nil {
		return fmt.Sprintf("Invalid tool input: %v", marshalErr), nil, "", marshalErr
	}
	result, dispatchErr := e.Tools.Dispatch(ctx, call.Name, json.RawMessage(raw))
	if dispatchErr != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(dispatchErr).Str("tool", call.Name).Msg("tool_dispatch_failed")
		return dispatchErr.Error(), nil, "", dispatchErr
	}
	if len(result.Parts) > 0 {
		for _, p := range result.Parts {
			parts = append(parts, history.ResultPart{Type: p.Type, Text: p.Text, MediaType: p.MediaType, Base64Data: p.Base64Data})
		}
	}
	if call.Name == complete.Name {
		answer = complete.Answer(call.Input)
	}
	return result.Text, parts, answer, nil
}

// handleInterrupt closes out the in-flight turn so history stays
// well-formed per spec.md §4.5's contract guarantee, then returns
// agenterrors.ErrInterrupted.
func (e *Engine) handleInterrupt(pending *history.ToolCall) (string, error) {
	const msg = "Tool execution was interrupted by user."
	if pending != nil {
		_ = e.History.AddToolCallResult(*pending, msg)
	} else if e.History.IsNextTurnAssistant() {
		_ = e.History.AddAssistantTurn([]history.ContentBlock{history.AssistantText{Text: msg}})
	}
	e.emit(event.TypeAgentResponse, map[string]any{"text": msg})
	return msg, agenterrors.ErrInterrupted
}

func (e *Engine) truncatedSnapshot(ctx context.Context) (*history.History, error) {
	snapshot := e.History.Snapshot()
	if e.ContextMgr.CountTokens(snapshot) <= tokenBudgetOf(e.ContextMgr) {
		return snapshot, nil
	}
	truncated, err := e.ContextMgr.ApplyTruncationIfNeeded(ctx, snapshot)
	if err != nil {
		return nil, fmt.Errorf("context truncation: %w", err)
	}
	return truncated, nil
}

// tokenBudgetOf extracts the configured budget so truncatedSnapshot can
// skip calling ApplyTruncationIfNeeded (and its potential file I/O in the
// FileBased variant) when the history already fits — mirrors the
// Standard/FileBased budget check internally but avoids a second contract
// method solely for a cheap early-out.
func tokenBudgetOf(m contextmgr.Manager) int {
	switch v := m.(type) {
	case *contextmgr.Standard:
		return v.Budget
	case *contextmgr.FileBased:
		return v.Budget
	default:
		return 1 << 30
	}
}

func (e *Engine) appendUserTurn(instruction string, files []string) error {
	if len(files) == 0 {
		return e.History.AddUserPrompt(instruction, nil)
	}

	var listing strings.Builder
	listing.WriteString("Attached files: ")
	listing.WriteString(strings.Join(files, ", "))

	var images []history.Image
	for _, f := range files {
		if !imageExtensions[strings.ToLower(filepath.Ext(f))] {
			continue
		}
		img, err := e.loadImage(f)
		if err != nil {
			observability.LoggerWithTrace(context.Background()).Warn().Err(err).Str("file", f).Msg("attach_image_failed")
			continue
		}
		images = append(images, img)
	}

	text := listing.String() + "\n\n" + instruction
	return e.History.AddUserPrompt(text, images)
}

func (e *Engine) loadImage(relPath string) (history.Image, error) {
	abs, err := e.Workspace.Resolve(relPath)
	if err != nil {
		return history.Image{}, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return history.Image{}, err
	}
	mediaType := mime.TypeByExtension(filepath.Ext(relPath))
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	return history.Image{MediaType: mediaType, Base64Data: base64.StdEncoding.EncodeToString(data)}, nil
}

// editorToolName names the str_replace_editor tool without importing its
// package (which would otherwise pull flock into every caller of
// agent.New just to read a string constant).
const editorToolName = "str_replace_editor"

// emitDomainEvent surfaces the editor and browser tool families' own
// events (spec.md §3 event list: file-edit, browser-use) alongside the
// generic tool-result event already emitted for every tool.
func (e *Engine) emitDomainEvent(call history.ToolCall, ok bool) {
	switch {
	case call.Name == editorToolName:
		if !ok {
			return
		}
		path, _ := call.Input["path"].(string)
		e.emit(event.TypeFileEdit, map[string]any{"path": path})
	case strings.HasPrefix(call.Name, "browser_"):
		e.emit(event.TypeBrowserUse, map[string]any{"tool": call.Name, "ok": ok})
	}
}

// emitThinking surfaces any Thinking blocks the provider returned as
// agent-thinking events, matching the teacher's OnDelta/thought-summary
// streaming callback but adapted to this engine's non-streaming Generate.
func (e *Engine) emitThinking(blocks []history.ContentBlock) {
	for _, b := range blocks {
		if th, ok := b.(history.Thinking); ok && strings.TrimSpace(th.Text) != "" {
			e.emit(event.TypeAgentThinking, map[string]any{"text": th.Text})
		}
	}
}
