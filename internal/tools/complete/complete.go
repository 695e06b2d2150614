// Package complete implements the distinguished completion tool that ends
// an agent turn loop (spec.md §4.5): the engine watches for a call to this
// tool by name rather than treating it like any other tool result.
package complete

import (
	"context"

	"github.com/usamanadeem786/iiagentd/internal/tools"
)

// Name is the tool name the turn loop checks for after every model
// response to decide whether the run is finished.
const Name = "complete_task"

// DefaultAnswer is used when the model calls the tool without an answer
// field, per the Open Question in spec.md §9: rather than reject an
// answer-less completion, the runtime substitutes a fixed string so the
// run always terminates cleanly.
const DefaultAnswer = "Task completed"

// Tool dispatches like any other tool; the engine additionally recognizes
// this tool by name after dispatch to decide the run is finished and to
// read the final answer via Answer, rather than relying on the dispatched
// Result.
type Tool struct{}

func New() Tool { return Tool{} }

func (Tool) Name() string { return Name }

func (Tool) Description() string {
	return "Signal that the task is finished. Call this once the user's request has been fully satisfied."
}

func (Tool) ParameterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"answer": map[string]any{
				"type":        "string",
				"description": "A final answer or summary for the user.",
			},
		},
		"additionalProperties": false,
	}
}

func (Tool) Call(_ context.Context, input map[string]any) (tools.Result, error) {
	answer, _ := input["answer"].(string)
	if answer == "" {
		answer = DefaultAnswer
	}
	return tools.TextResult(answer), nil
}

// Answer extracts the completion answer from a tool call's already-decoded
// input, applying the same default-answer fallback as Call. The engine
// uses this to populate the final RealtimeEvent without round-tripping
// through Dispatch.
func Answer(input map[string]any) string {
	if answer, ok := input["answer"].(string); ok && answer != "" {
		return answer
	}
	return DefaultAnswer
}
