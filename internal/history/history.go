package history

import (
	"fmt"

	"github.com/usamanadeem786/iiagentd/internal/agenterrors"
)

// History is the ordered list of Turns described in spec.md §3: turn 0 is
// the user, subsequent turns strictly alternate, and every assistant
// ToolCall in turn i must be matched by exactly one ToolResult with the
// same ID in turn i+1.
type History struct {
	turns           []Turn
	lastUserPrompt  int
	haveUserPrompt  bool
}

// New returns an empty history.
func New() *History { return &History{} }

// Turns returns the underlying turn slice. Callers must not mutate it; it
// is exposed read-only for the LLM client adapter and the ContextManager.
func (h *History) Turns() []Turn { return h.turns }

// Len returns the number of turns.
func (h *History) Len() int { return len(h.turns) }

// IsNextTurnUser reports whether the next turn appended must be a user
// turn, by parity of turn count (spec.md §4.2).
func (h *History) IsNextTurnUser() bool { return len(h.turns)%2 == 0 }

// IsNextTurnAssistant is the complement of IsNextTurnUser.
func (h *History) IsNextTurnAssistant() bool { return !h.IsNextTurnUser() }

func (h *History) requireNextUser(op string) error {
	if !h.IsNextTurnUser() {
		return fmt.Errorf("%w: %s requires next turn to be user (have %d turns)", agenterrors.ErrHistoryInvariant, op, len(h.turns))
	}
	return nil
}

func (h *History) requireNextAssistant(op string) error {
	if !h.IsNextTurnAssistant() {
		return fmt.Errorf("%w: %s requires next turn to be assistant (have %d turns)", agenterrors.ErrHistoryInvariant, op, len(h.turns))
	}
	return nil
}

// AddUserPrompt appends a turn of [Image*, UserText] and records the new
// turn's index as the "last user prompt", supporting ClearFromLastToUserMessage.
func (h *History) AddUserPrompt(text string, images []Image) error {
	if err := h.requireNextUser("AddUserPrompt"); err != nil {
		return err
	}
	blocks := make([]ContentBlock, 0, len(images)+1)
	for _, img := range images {
		blocks = append(blocks, img)
	}
	blocks = append(blocks, UserText{Text: text})
	h.turns = append(h.turns, Turn{Blocks: blocks})
	h.lastUserPrompt = len(h.turns) - 1
	h.haveUserPrompt = true
	return nil
}

// AddUserTurn appends a user turn from caller-supplied blocks, all of which
// must be user-side block types.
func (h *History) AddUserTurn(blocks []ContentBlock) error {
	if err := h.requireNextUser("AddUserTurn"); err != nil {
		return err
	}
	for _, b := range blocks {
		if b.Speaker() != SpeakerUser {
			return fmt.Errorf("%w: AddUserTurn received a non-user block", agenterrors.ErrHistoryInvariant)
		}
	}
	h.turns = append(h.turns, Turn{Blocks: blocks})
	return nil
}

// AddAssistantTurn appends an assistant turn.
func (h *History) AddAssistantTurn(blocks []ContentBlock) error {
	if err := h.requireNextAssistant("AddAssistantTurn"); err != nil {
		return err
	}
	for _, b := range blocks {
		if b.Speaker() != SpeakerAssistant {
			return fmt.Errorf("%w: AddAssistantTurn received a non-assistant block", agenterrors.ErrHistoryInvariant)
		}
	}
	h.turns = append(h.turns, Turn{Blocks: blocks})
	return nil
}

// AddToolCallResult packages a single ToolResult into a new user turn.
func (h *History) AddToolCallResult(call ToolCall, resultText string) error {
	return h.AddToolCallResults([]ToolCall{call}, []string{resultText})
}

// AddToolCallResults packages a batch of ToolResults into a single user
// turn, preserving call order, asserting the next turn is user.
func (h *History) AddToolCallResults(calls []ToolCall, results []string) error {
	if err := h.requireNextUser("AddToolCallResults"); err != nil {
		return err
	}
	if len(calls) != len(results) {
		return fmt.Errorf("%w: AddToolCallResults got %d calls and %d results", agenterrors.ErrHistoryInvariant, len(calls), len(results))
	}
	blocks := make([]ContentBlock, 0, len(calls))
	for i, c := range calls {
		blocks = append(blocks, ToolResult{ID: c.ID, Name: c.Name, Text: results[i], IsText: true})
	}
	h.turns = append(h.turns, Turn{Blocks: blocks})
	return nil
}

// AddToolCallResultParts is like AddToolCallResult but for a multi-part
// (text+image) result, used by tools like the browser family.
func (h *History) AddToolCallResultParts(call ToolCall, parts []ResultPart) error {
	if err := h.requireNextUser("AddToolCallResultParts"); err != nil {
		return err
	}
	h.turns = append(h.turns, Turn{Blocks: []ContentBlock{
		ToolResult{ID: call.ID, Name: call.Name, Parts: parts},
	}})
	return nil
}

// GetPendingToolCalls returns the ToolCalls in the last turn iff it is an
// assistant turn; otherwise it returns nil (spec.md §4.2).
func (h *History) GetPendingToolCalls() []ToolCall {
	if len(h.turns) == 0 {
		return nil
	}
	last := h.turns[len(h.turns)-1]
	if last.speaker() != SpeakerAssistant {
		return nil
	}
	return last.ToolCalls()
}

// GetLastAssistantText returns the last AssistantText in the last
// assistant turn, if the last turn is an assistant turn and contains one.
func (h *History) GetLastAssistantText() (string, bool) {
	if len(h.turns) == 0 {
		return "", false
	}
	last := h.turns[len(h.turns)-1]
	if last.speaker() != SpeakerAssistant {
		return "", false
	}
	var text string
	var found bool
	for _, b := range last.Blocks {
		if at, ok := b.(AssistantText); ok {
			text = at.Text
			found = true
		}
	}
	return text, found
}

// Snapshot returns an independent copy of the history's turns, suitable
// for a ContextManager to truncate without mutating the canonical history
// that the turn loop uses for resumption (spec.md §4.5 step c passes a
// snapshot to the LLM, not the live history).
func (h *History) Snapshot() *History {
	cp := make([]Turn, len(h.turns))
	copy(cp, h.turns)
	return &History{turns: cp}
}

// FromTurns builds a History directly from a turn slice. Used by
// ContextManager implementations to construct a truncated view; the
// result has no recorded last-user-prompt index.
func FromTurns(turns []Turn) *History {
	return &History{turns: turns}
}

// Clear empties the history entirely.
func (h *History) Clear() {
	h.turns = nil
	h.lastUserPrompt = 0
	h.haveUserPrompt = false
}

// ClearFromLastToUserMessage truncates the history back to, and excluding,
// the recorded last-user-prompt turn, supporting the edit-query feature of
// spec.md §4.7. A no-op if no user prompt has been recorded.
func (h *History) ClearFromLastToUserMessage() {
	if !h.haveUserPrompt {
		return
	}
	if h.lastUserPrompt < 0 || h.lastUserPrompt > len(h.turns) {
		return
	}
	h.turns = h.turns[:h.lastUserPrompt]
	h.haveUserPrompt = false
}

// Validate walks the full turn sequence and checks every invariant named
// in spec.md §3: strict alternation starting with user, and exactly one
// ToolResult per pending ToolCall in the following turn.
func (h *History) Validate() error {
	for i, t := range h.turns {
		wantUser := i%2 == 0
		gotUser := t.speaker() == SpeakerUser
		if wantUser != gotUser {
			return fmt.Errorf("%w: turn %d should be %s, got %s", agenterrors.ErrHistoryInvariant, i, speakerName(wantUser), t.speaker())
		}
		if gotUser {
			continue
		}
		calls := t.ToolCalls()
		if len(calls) == 0 {
			continue
		}
		if i+1 >= len(h.turns) {
			return fmt.Errorf("%w: turn %d has pending tool calls with no following turn", agenterrors.ErrHistoryInvariant, i)
		}
		results := h.turns[i+1].ToolResults()
		seen := make(map[string]int, len(results))
		for _, r := range results {
			seen[r.ID]++
		}
		for _, c := range calls {
			if seen[c.ID] != 1 {
				return fmt.Errorf("%w: tool call %s in turn %d has %d matching results, want 1", agenterrors.ErrHistoryInvariant, c.ID, i, seen[c.ID])
			}
		}
	}
	return nil
}

func speakerName(user bool) string {
	if user {
		return "user"
	}
	return "assistant"
}
