package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usamanadeem786/iiagentd/internal/history"
	"github.com/usamanadeem786/iiagentd/internal/tools"
)

func TestAdaptTurnsEmitsToolMessageForToolResult(t *testing.T) {
	turns := []history.Turn{
		{Blocks: []history.ContentBlock{history.UserText{Text: "hi"}}},
		{Blocks: []history.ContentBlock{
			history.ToolCall{ID: "call-1", Name: "web_search", Input: map[string]any{"query": "go"}},
		}},
		{Blocks: []history.ContentBlock{
			history.ToolResult{ID: "call-1", Name: "web_search", Text: "results", IsText: true},
		}},
	}
	msgs, err := adaptTurns(turns, "be helpful")
	require.NoError(t, err)
	// system + user + assistant(with tool call) + tool
	require.Len(t, msgs, 4)
	require.NotNil(t, msgs[0].OfSystem)
}

func TestAdaptSchemasBuildsFunctionDefinitions(t *testing.T) {
	out := adaptSchemas([]tools.Schema{{Name: "echo", Description: "d", Parameters: map[string]any{"type": "object"}}})
	require.Len(t, out, 1)
}
