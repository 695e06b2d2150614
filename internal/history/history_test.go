package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usamanadeem786/iiagentd/internal/agenterrors"
)

func TestAddUserPromptThenAssistantAlternates(t *testing.T) {
	h := New()
	require.NoError(t, h.AddUserPrompt("hello", nil))
	assert.True(t, h.IsNextTurnAssistant())

	call := ToolCall{ID: "call-1", Name: "bash", Input: map[string]any{"command": "echo hi"}}
	require.NoError(t, h.AddAssistantTurn([]ContentBlock{call}))
	assert.True(t, h.IsNextTurnUser())

	pending := h.GetPendingToolCalls()
	require.Len(t, pending, 1)
	assert.Equal(t, "call-1", pending[0].ID)

	require.NoError(t, h.AddToolCallResult(call, "hi"))
	assert.Empty(t, h.GetPendingToolCalls(), "pending calls only live in the last turn")
	require.NoError(t, h.Validate())
}

func TestAddAssistantTurnOutOfOrderFails(t *testing.T) {
	h := New()
	err := h.AddAssistantTurn([]ContentBlock{AssistantText{Text: "nope"}})
	assert.ErrorIs(t, err, agenterrors.ErrHistoryInvariant)
}

func TestAddToolCallResultsRequiresMatchingLengths(t *testing.T) {
	h := New()
	require.NoError(t, h.AddUserPrompt("hi", nil))
	require.NoError(t, h.AddAssistantTurn([]ContentBlock{
		ToolCall{ID: "a", Name: "bash"},
		ToolCall{ID: "b", Name: "bash"},
	}))
	err := h.AddToolCallResults([]ToolCall{{ID: "a"}}, []string{"one", "two"})
	assert.ErrorIs(t, err, agenterrors.ErrHistoryInvariant)
}

func TestClearFromLastToUserMessage(t *testing.T) {
	h := New()
	require.NoError(t, h.AddUserPrompt("q1", nil))
	require.NoError(t, h.AddAssistantTurn([]ContentBlock{AssistantText{Text: "a1"}}))
	require.NoError(t, h.AddUserPrompt("q2", nil))
	require.NoError(t, h.AddAssistantTurn([]ContentBlock{AssistantText{Text: "a2"}}))

	before := h.Len()
	h.ClearFromLastToUserMessage()
	assert.Less(t, h.Len(), before)
	assert.Equal(t, 2, h.Len())
}

func TestClearFromLastToUserMessageNoopWithoutPrompt(t *testing.T) {
	h := New()
	h.ClearFromLastToUserMessage()
	assert.Equal(t, 0, h.Len())
}

func TestGetLastAssistantText(t *testing.T) {
	h := New()
	require.NoError(t, h.AddUserPrompt("hi", nil))
	require.NoError(t, h.AddAssistantTurn([]ContentBlock{AssistantText{Text: "hello there"}}))
	text, ok := h.GetLastAssistantText()
	require.True(t, ok)
	assert.Equal(t, "hello there", text)
}

func TestValidateCatchesUnmatchedToolCall(t *testing.T) {
	h := New()
	require.NoError(t, h.AddUserPrompt("hi", nil))
	require.NoError(t, h.AddAssistantTurn([]ContentBlock{ToolCall{ID: "x", Name: "bash"}}))
	// Force an invalid state by bypassing the mutator with a direct result
	// for the wrong ID, simulating a corrupted history.
	require.NoError(t, h.AddToolCallResults([]ToolCall{{ID: "x"}}, []string{"ok"}))
	h.turns[2] = Turn{Blocks: []ContentBlock{ToolResult{ID: "wrong-id"}}}
	assert.ErrorIs(t, h.Validate(), agenterrors.ErrHistoryInvariant)
}
