// Package history implements the append-only, role-alternating message log
// of spec.md §3–§4.2: ContentBlock as a closed tagged union, Turn as an
// ordered list of same-speaker blocks, and History as the ordered list of
// Turns with its alternation invariants.
package history

// Speaker identifies which side of the conversation produced a turn.
type Speaker int

const (
	SpeakerUser Speaker = iota
	SpeakerAssistant
)

func (s Speaker) String() string {
	if s == SpeakerUser {
		return "user"
	}
	return "assistant"
}

// ContentBlock is a closed tagged union over the block kinds named in
// spec.md §3. isContentBlock is an unexported marker method so only the
// types in this file can satisfy the interface — the Go analogue of a
// sealed sum type.
type ContentBlock interface {
	isContentBlock()
	Speaker() Speaker
}

// UserText is free-form user-authored text.
type UserText struct {
	Text string
}

func (UserText) isContentBlock()     {}
func (UserText) Speaker() Speaker    { return SpeakerUser }

// Image is a user-supplied inline image.
type Image struct {
	MediaType  string
	Base64Data string
}

func (Image) isContentBlock()  {}
func (Image) Speaker() Speaker { return SpeakerUser }

// AssistantText is free-form assistant-authored text.
type AssistantText struct {
	Text string
}

func (AssistantText) isContentBlock()  {}
func (AssistantText) Speaker() Speaker { return SpeakerAssistant }

// ToolCall is an assistant request to invoke a named tool with the given
// input. Input is kept as a generic map so the turn loop can round-trip it
// through the LLM client contract without a schema-specific type per tool.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]any
}

func (ToolCall) isContentBlock()  {}
func (ToolCall) Speaker() Speaker { return SpeakerAssistant }

// ResultPart is one element of a ToolResult's multi-part output, mirroring
// the {type: "text"|"image", ...} shape of spec.md §4.4.
type ResultPart struct {
	Type       string // "text" | "image"
	Text       string
	MediaType  string
	Base64Data string
}

// ToolResult answers a ToolCall with the same ID in the following user
// turn. Output is either a plain string or a list of ResultParts — exactly
// one of Text/Parts is populated.
type ToolResult struct {
	ID     string
	Name   string
	Text   string
	Parts  []ResultPart
	IsText bool // true iff Text is the populated field
}

func (ToolResult) isContentBlock()  {}
func (ToolResult) Speaker() Speaker { return SpeakerUser }

// Thinking carries a provider's visible chain-of-thought for the turn it
// appears in, plus an opaque signature some providers require to be echoed
// back on subsequent calls.
type Thinking struct {
	Text      string
	Signature string
}

func (Thinking) isContentBlock()  {}
func (Thinking) Speaker() Speaker { return SpeakerAssistant }

// RedactedThinking carries a provider's opaque, non-visible thinking
// payload that must still be echoed back verbatim.
type RedactedThinking struct {
	Opaque string
}

func (RedactedThinking) isContentBlock()  {}
func (RedactedThinking) Speaker() Speaker { return SpeakerAssistant }

// Turn is a contiguous sequence of content blocks from a single speaker.
type Turn struct {
	Blocks []ContentBlock
}

// speaker returns the speaker of the turn's first block, or SpeakerUser for
// an empty turn (never observed in practice — turns are never appended
// empty by the mutators below).
func (t Turn) speaker() Speaker {
	if len(t.Blocks) == 0 {
		return SpeakerUser
	}
	return t.Blocks[0].Speaker()
}

// ToolCalls returns every ToolCall block in the turn, in order.
func (t Turn) ToolCalls() []ToolCall {
	var out []ToolCall
	for _, b := range t.Blocks {
		if tc, ok := b.(ToolCall); ok {
			out = append(out, tc)
		}
	}
	return out
}

// ToolResults returns every ToolResult block in the turn, in order.
func (t Turn) ToolResults() []ToolResult {
	var out []ToolResult
	for _, b := range t.Blocks {
		if tr, ok := b.(ToolResult); ok {
			out = append(out, tr)
		}
	}
	return out
}
