package contextmgr

import (
	"context"

	"github.com/usamanadeem786/iiagentd/internal/config"
	"github.com/usamanadeem786/iiagentd/internal/history"
)

// Standard is the default ContextManager: tool outputs and a fixed set of
// large tool-input fields in older turns are replaced with an in-memory
// sentinel. No filesystem side effects.
type Standard struct {
	Budget   int
	KeepLast int
}

// NewStandard constructs a Standard context manager from config, defaulting
// KeepLast to DefaultKeepLastTurns.
func NewStandard(cfg config.Config) *Standard {
	return &Standard{Budget: cfg.TokenBudget, KeepLast: DefaultKeepLastTurns}
}

func (s *Standard) CountTokens(h *history.History) int { return CountTokens(h) }

func (s *Standard) ApplyTruncationIfNeeded(_ context.Context, h *history.History) (*history.History, error) {
	if s.CountTokens(h) <= s.Budget {
		return h, nil
	}
	turns := h.Turns()
	keep := s.KeepLast
	if keep <= 0 {
		keep = DefaultKeepLastTurns
	}
	cut := splitForTruncation(turns, keep)

	out := make([]history.Turn, len(turns))
	for i, t := range turns {
		if i >= cut {
			out[i] = t
			continue
		}
		out[i] = truncateTurnStandard(t)
	}
	return history.FromTurns(out), nil
}

func truncateTurnStandard(t history.Turn) history.Turn {
	blocks := make([]history.ContentBlock, len(t.Blocks))
	for i, b := range t.Blocks {
		switch v := b.(type) {
		case history.ToolCall:
			cloned := cloneToolCall(v)
			blankDesignatedFields(&cloned)
			blocks[i] = cloned
		case history.ToolResult:
			blocks[i] = history.ToolResult{ID: v.ID, Name: v.Name, Text: TruncatedSentinel, IsText: true}
		default:
			blocks[i] = b
		}
	}
	return history.Turn{Blocks: blocks}
}

func cloneToolCall(tc history.ToolCall) history.ToolCall {
	input := make(map[string]any, len(tc.Input))
	for k, v := range tc.Input {
		input[k] = v
	}
	return history.ToolCall{ID: tc.ID, Name: tc.Name, Input: input}
}
