// Package contextmgr implements the ContextManager contract of spec.md
// §4.3: countTokens over a history snapshot (with the rule that Thinking
// blocks only contribute tokens in the final turn), and
// applyTruncationIfNeeded, which preserves the last K turns verbatim and
// rewrites older turns in place. Two variants are provided: Standard
// (sentinel replacement) and FileBased (spill-to-file for large tool
// outputs), matching the teacher's pattern of a shared interface behind
// `internal/llm` with swappable implementations per concern.
package contextmgr

import (
	"context"

	"github.com/usamanadeem786/iiagentd/internal/history"
	"github.com/usamanadeem786/iiagentd/internal/tokencount"
)

// DefaultKeepLastTurns is the number of most-recent turns preserved
// bit-identical by truncation (spec.md §4.3, invariant 4 of spec.md §8).
const DefaultKeepLastTurns = 3

// TruncatedSentinel replaces a ToolResult output (or a designated input
// field) dropped by truncation.
const TruncatedSentinel = "[Truncated…re-run tool if you need to see output again.]"

// Manager is the ContextManager contract.
type Manager interface {
	// CountTokens returns the token estimate for a history snapshot.
	CountTokens(h *history.History) int
	// ApplyTruncationIfNeeded returns h unchanged if it already fits the
	// configured budget, or a new, truncated History otherwise. The input
	// History is never mutated.
	ApplyTruncationIfNeeded(ctx context.Context, h *history.History) (*history.History, error)
}

// CountTokens implements the shared counting rule: every block counts per
// tokencount, except Thinking/RedactedThinking blocks, which only count
// when they lie in the history's final turn (providers drop earlier
// thinking on subsequent calls).
func CountTokens(h *history.History) int {
	turns := h.Turns()
	total := 0
	lastIdx := len(turns) - 1
	for i, t := range turns {
		for _, b := range t.Blocks {
			total += blockTokens(b, i == lastIdx)
		}
	}
	return total
}

func blockTokens(b history.ContentBlock, isFinalTurn bool) int {
	switch v := b.(type) {
	case history.UserText:
		return tokencount.Text(v.Text)
	case history.AssistantText:
		return tokencount.Text(v.Text)
	case history.Image:
		return tokencount.Parts([]tokencount.Part{{ImageBase64: v.Base64Data}})
	case history.ToolCall:
		return tokencount.Parts([]tokencount.Part{{Other: v.Input}}) + tokencount.Text(v.Name)
	case history.ToolResult:
		if v.IsText {
			return tokencount.Text(v.Text)
		}
		parts := make([]tokencount.Part, 0, len(v.Parts))
		for _, p := range v.Parts {
			if p.Type == "image" {
				parts = append(parts, tokencount.Part{ImageBase64: p.Base64Data})
			} else {
				parts = append(parts, tokencount.Part{Text: p.Text})
			}
		}
		return tokencount.Parts(parts)
	case history.Thinking:
		if !isFinalTurn {
			return 0
		}
		return tokencount.Text(v.Text)
	case history.RedactedThinking:
		if !isFinalTurn {
			return 0
		}
		return tokencount.Text(v.Opaque)
	default:
		return 0
	}
}

// splitForTruncation returns the index at which the "keep verbatim" tail
// begins, clamped to the slice bounds.
func splitForTruncation(turns []history.Turn, keepLast int) int {
	if keepLast < 0 {
		keepLast = 0
	}
	idx := len(turns) - keepLast
	if idx < 0 {
		idx = 0
	}
	return idx
}

// designatedInputFields maps a tool name to the input keys the truncation
// policy is allowed to blank out, per spec.md §4.3.
var designatedInputFields = map[string][]string{
	"sequential_thinking": {"thought"},
	"str_replace_editor":  {"file_text", "old_str", "new_str"},
}

// toolInputTokens sums the token estimate of a tool call's designated
// fields only (used by the file-based variant to decide whether those
// fields of an older call are blanked).
func toolInputTokens(tc history.ToolCall) int {
	fields := designatedInputFields[tc.Name]
	total := 0
	for _, f := range fields {
		if v, ok := tc.Input[f]; ok {
			if s, ok := v.(string); ok {
				total += tokencount.Text(s)
			}
		}
	}
	return total
}

func blankDesignatedFields(tc *history.ToolCall) {
	for _, f := range designatedInputFields[tc.Name] {
		if _, ok := tc.Input[f]; ok {
			tc.Input[f] = TruncatedSentinel
		}
	}
}
