package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usamanadeem786/iiagentd/internal/agenterrors"
	"github.com/usamanadeem786/iiagentd/internal/contextmgr"
	"github.com/usamanadeem786/iiagentd/internal/event"
	"github.com/usamanadeem786/iiagentd/internal/history"
	"github.com/usamanadeem786/iiagentd/internal/sandbox"
	"github.com/usamanadeem786/iiagentd/internal/tools"
	"github.com/usamanadeem786/iiagentd/internal/tools/complete"
)

// scriptedProvider returns one pre-canned set of blocks per call, in order.
type scriptedProvider struct {
	steps      [][]history.ContentBlock
	calls      int
	onGenerate func()
}

func (s *scriptedProvider) Generate(_ context.Context, _ *history.History, _ []tools.Schema, _ string, _ int, _ string) ([]history.ContentBlock, error) {
	if s.onGenerate != nil {
		s.onGenerate()
	}
	if s.calls >= len(s.steps) {
		return []history.ContentBlock{history.AssistantText{Text: "out of script"}}, nil
	}
	out := s.steps[s.calls]
	s.calls++
	return out, nil
}

type recordingBus struct {
	events []event.RealtimeEvent
}

func (b *recordingBus) Publish(e event.RealtimeEvent) { b.events = append(b.events, e) }

func (b *recordingBus) has(t event.Type) bool {
	for _, e := range b.events {
		if e.Type == t {
			return true
		}
	}
	return false
}

func newTestEngine(t *testing.T, provider *scriptedProvider) (*Engine, *recordingBus) {
	t.Helper()
	registry := tools.NewRegistry(complete.Tool{})
	bus := &recordingBus{}
	e := New(provider, registry, &contextmgr.Standard{Budget: 1_000_000, KeepLast: 3}, sandbox.Workspace{Root: t.TempDir()}, bus, "test-model", "you are a test agent", 10, 1024)
	return e, bus
}

func TestRunCompletesViaCompleteTool(t *testing.T) {
	provider := &scriptedProvider{steps: [][]history.ContentBlock{
		{history.ToolCall{ID: "call-1", Name: complete.Name, Input: map[string]any{"answer": "all done"}}},
	}}
	e, bus := newTestEngine(t, provider)

	answer, err := e.Run(context.Background(), "do the thing", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "all done", answer)
	assert.True(t, bus.has(event.TypeAgentResponse))
	assert.True(t, bus.has(event.TypeToolCall))
	assert.True(t, bus.has(event.TypeToolResult))
	require.NoError(t, e.History.Validate())
}

func TestRunReturnsPlainTextWhenNoToolCalls(t *testing.T) {
	provider := &scriptedProvider{steps: [][]history.ContentBlock{
		{history.AssistantText{Text: "here is your answer"}},
	}}
	e, _ := newTestEngine(t, provider)

	answer, err := e.Run(context.Background(), "what is 2+2", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "here is your answer", answer)
}

func TestRunFailsOnMultipleToolCalls(t *testing.T) {
	provider := &scriptedProvider{steps: [][]history.ContentBlock{
		{
			history.ToolCall{ID: "a", Name: complete.Name, Input: map[string]any{}},
			history.ToolCall{ID: "b", Name: complete.Name, Input: map[string]any{}},
		},
	}}
	e, _ := newTestEngine(t, provider)

	_, err := e.Run(context.Background(), "go", nil, false)
	require.Error(t, err)
}

func TestRunExhaustsMaxTurns(t *testing.T) {
	provider := &scriptedProvider{steps: [][]history.ContentBlock{
		{history.ToolCall{ID: "1", Name: "unknown_tool", Input: map[string]any{}}},
	}}
	e, _ := newTestEngine(t, provider)
	e.MaxTurns = 1

	text, err := e.Run(context.Background(), "loop forever", nil, false)
	require.Error(t, err)
	assert.Contains(t, text, "did not complete")
}

func TestCancelInterruptsBeforeNextModelCall(t *testing.T) {
	provider := &scriptedProvider{steps: [][]history.ContentBlock{
		{history.ToolCall{ID: "1", Name: complete.Name, Input: map[string]any{"answer": "never reached"}}},
		{history.AssistantText{Text: "never reached"}},
	}}
	e, bus := newTestEngine(t, provider)
	// Run clears any cancel requested before it starts, so the cancel is
	// issued while the first model call is in flight.
	provider.onGenerate = e.Cancel

	text, err := e.Run(context.Background(), "go", nil, false)
	require.ErrorIs(t, err, agenterrors.ErrInterrupted)
	assert.Contains(t, text, "interrupted")
	assert.True(t, bus.has(event.TypeAgentResponse))
	assert.Equal(t, 1, provider.calls)
}

func TestUnknownToolNameFeedsBackAsResultInsteadOfAborting(t *testing.T) {
	provider := &scriptedProvider{steps: [][]history.ContentBlock{
		{history.ToolCall{ID: "1", Name: "no_such_tool", Input: map[string]any{}}},
		{history.ToolCall{ID: "2", Name: complete.Name, Input: map[string]any{"answer": "recovered"}}},
	}}
	e, _ := newTestEngine(t, provider)

	answer, err := e.Run(context.Background(), "go", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "recovered", answer)
	require.NoError(t, e.History.Validate())
}
