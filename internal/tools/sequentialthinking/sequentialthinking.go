// Package sequentialthinking implements a scratchpad tool that records a
// chain of numbered thoughts, letting the model think step by step across
// several calls within one turn.
package sequentialthinking

import (
	"context"
	"fmt"
	"sync"

	"github.com/usamanadeem786/iiagentd/internal/tools"
)

const Name = "sequential_thinking"

// Tool accumulates thoughts for the lifetime of one session. It is not
// safe to share across sessions.
type Tool struct {
	mu       sync.Mutex
	thoughts []string
}

func New() *Tool { return &Tool{} }

func (*Tool) Name() string { return Name }

func (*Tool) Description() string {
	return "Record a single step of reasoning. Call repeatedly to build a chain of thought before acting."
}

func (*Tool) ParameterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"thought":           map[string]any{"type": "string"},
			"thought_number":    map[string]any{"type": "integer", "minimum": 1},
			"total_thoughts":    map[string]any{"type": "integer", "minimum": 1},
			"next_thought_needed": map[string]any{"type": "boolean"},
		},
		"required":             []any{"thought", "thought_number", "total_thoughts", "next_thought_needed"},
		"additionalProperties": false,
	}
}

func (t *Tool) Call(_ context.Context, input map[string]any) (tools.Result, error) {
	thought, _ := input["thought"].(string)

	t.mu.Lock()
	t.thoughts = append(t.thoughts, thought)
	count := len(t.thoughts)
	t.mu.Unlock()

	return tools.TextResult(fmt.Sprintf("Recorded thought %d.", count)), nil
}

// History returns a copy of the recorded thoughts, in order.
func (t *Tool) History() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.thoughts))
	copy(out, t.thoughts)
	return out
}
