// Package messageuser implements the message-to-user relay tool: a way for
// the model to surface an intermediate update without ending the turn loop.
package messageuser

import (
	"context"

	"github.com/usamanadeem786/iiagentd/internal/tools"
)

const Name = "message_user"

type Tool struct{}

func New() Tool { return Tool{} }

func (Tool) Name() string        { return Name }
func (Tool) Description() string { return "Send a message to the user without ending the turn." }

func (Tool) ParameterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string"},
		},
		"required":             []any{"text"},
		"additionalProperties": false,
	}
}

func (Tool) Call(_ context.Context, input map[string]any) (tools.Result, error) {
	text, _ := input["text"].(string)
	return tools.TextResult(text), nil
}
