package contextmgr

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usamanadeem786/iiagentd/internal/history"
)

func buildSpillableHistory(t *testing.T, url string, content string) *history.History {
	t.Helper()
	h := history.New()
	require.NoError(t, h.AddUserPrompt("please read this page", nil))
	call := history.ToolCall{ID: "call-1", Name: "visit_webpage", Input: map[string]any{"url": url}}
	require.NoError(t, h.AddAssistantTurn([]history.ContentBlock{call}))
	require.NoError(t, h.AddToolCallResult(call, content))
	// Pad with enough older turns that truncation has something to cut while
	// still keeping the configured tail verbatim.
	require.NoError(t, h.AddUserPrompt("thanks, now summarize it", nil))
	require.NoError(t, h.AddAssistantTurn([]history.ContentBlock{history.AssistantText{Text: "sure"}}))
	return h
}

func TestFileBasedSpillsLargeVisitWebpageOutput(t *testing.T) {
	workspace := t.TempDir()
	content := strings.Repeat("a", 10000)
	h := buildSpillableHistory(t, "https://example.com/foo?x=1", content)

	f := &FileBased{Budget: 1, KeepLast: 1, SpillFloor: DefaultSpillFloor, WorkspaceRoot: workspace}
	out, err := f.ApplyTruncationIfNeeded(context.Background(), h)
	require.NoError(t, err)

	results := out.Turns()[2].ToolResults()
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Text, "agent_memory/example_com_foo_")
	assert.NotContains(t, results[0].Text, content)

	entries, err := os.ReadDir(filepath.Join(workspace, "agent_memory"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "example_com_foo_"))

	data, err := os.ReadFile(filepath.Join(workspace, "agent_memory", entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestFileBasedSpillIsIdempotent(t *testing.T) {
	workspace := t.TempDir()
	content := strings.Repeat("b", 10000)
	h := buildSpillableHistory(t, "https://example.com/foo", content)

	f := &FileBased{Budget: 1, KeepLast: 1, SpillFloor: DefaultSpillFloor, WorkspaceRoot: workspace}
	_, err := f.ApplyTruncationIfNeeded(context.Background(), h)
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(workspace, "agent_memory"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	firstModTime, err := entries[0].Info()
	require.NoError(t, err)

	// Re-run truncation against a freshly built history with identical
	// content: the same hash must resolve to the same file without rewriting it.
	h2 := buildSpillableHistory(t, "https://example.com/foo", content)
	_, err = f.ApplyTruncationIfNeeded(context.Background(), h2)
	require.NoError(t, err)

	entries2, err := os.ReadDir(filepath.Join(workspace, "agent_memory"))
	require.NoError(t, err)
	require.Len(t, entries2, 1, "identical content must not create a second file")
	secondModTime, err := entries2[0].Info()
	require.NoError(t, err)
	assert.Equal(t, firstModTime.ModTime(), secondModTime.ModTime())
}

func TestFileBasedFallsBackToUnknownURLWithoutPriorCall(t *testing.T) {
	workspace := t.TempDir()
	content := strings.Repeat("c", 10000)

	h := history.New()
	require.NoError(t, h.AddUserPrompt("q", nil))
	require.NoError(t, h.AddAssistantTurn([]history.ContentBlock{history.AssistantText{Text: "placeholder"}}))
	// Manually craft a ToolResult with no matching ToolCall in the previous
	// turn, exercising the documented unknown_url fallback.
	require.NoError(t, h.AddUserPrompt("q2", nil))
	require.NoError(t, h.AddAssistantTurn([]history.ContentBlock{history.AssistantText{Text: "a2"}}))

	out := history.FromTurns(append(h.Turns()[:2:2], history.Turn{
		Blocks: []history.ContentBlock{history.ToolResult{ID: "orphan", Name: "visit_webpage", Text: content, IsText: true}},
	}, h.Turns()[2], h.Turns()[3]))

	f := &FileBased{Budget: 1, KeepLast: 1, SpillFloor: DefaultSpillFloor, WorkspaceRoot: workspace}
	result, err := f.ApplyTruncationIfNeeded(context.Background(), out)
	require.NoError(t, err)

	results := result.Turns()[2].ToolResults()
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Text, "agent_memory/unknown_url_")
}

func TestFileBasedLeavesSmallOutputsUntouchedBySentinelOnly(t *testing.T) {
	workspace := t.TempDir()
	h := buildSpillableHistory(t, "https://example.com/small", "short content")

	f := &FileBased{Budget: 1, KeepLast: 1, SpillFloor: DefaultSpillFloor, WorkspaceRoot: workspace}
	out, err := f.ApplyTruncationIfNeeded(context.Background(), h)
	require.NoError(t, err)

	results := out.Turns()[2].ToolResults()
	require.Len(t, results, 1)
	assert.Equal(t, TruncatedSentinel, results[0].Text)

	_, err = os.Stat(filepath.Join(workspace, "agent_memory"))
	assert.True(t, os.IsNotExist(err), "small outputs must not spill to disk")
}
