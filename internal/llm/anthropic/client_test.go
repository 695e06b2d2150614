package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usamanadeem786/iiagentd/internal/history"
	"github.com/usamanadeem786/iiagentd/internal/tools"
)

func TestAdaptTurnsRoundTripsToolCallAndResult(t *testing.T) {
	turns := []history.Turn{
		{Blocks: []history.ContentBlock{history.UserText{Text: "hello"}}},
		{Blocks: []history.ContentBlock{
			history.ToolCall{ID: "call-1", Name: "shell_exec", Input: map[string]any{"command": "ls"}},
		}},
		{Blocks: []history.ContentBlock{
			history.ToolResult{ID: "call-1", Name: "shell_exec", Text: "a.txt", IsText: true},
		}},
	}
	msgs, err := adaptTurns(turns)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
}

func TestAdaptSchemasCarriesRequiredAndProperties(t *testing.T) {
	schemas := []tools.Schema{{
		Name:        "echo",
		Description: "echoes",
		Parameters: map[string]any{
			"type":                 "object",
			"properties":           map[string]any{"message": map[string]any{"type": "string"}},
			"required":             []any{"message"},
			"additionalProperties": false,
		},
	}}
	out := adaptSchemas(schemas)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].OfTool)
	assert.Equal(t, "echo", out[0].OfTool.Name)
	assert.Equal(t, []string{"message"}, out[0].OfTool.InputSchema.Required)
}

func TestResultPartsToTextSummarizesImages(t *testing.T) {
	text := resultPartsToText([]history.ResultPart{
		{Type: "text", Text: "here is the page"},
		{Type: "image", MediaType: "image/png", Base64Data: "AAAA"},
	})
	assert.Contains(t, text, "here is the page")
	assert.Contains(t, text, "[image attached]")
}
