// Package event defines the RealtimeEvent currency of spec.md §3: the only
// externally observed state transitions of a running agent.
package event

// Type is the closed set of event kinds spec.md §3 names. It is a string
// enum so events serialize to JSON exactly as the session protocol expects.
type Type string

const (
	TypeConnectionEstablished Type = "connection-established"
	TypeAgentInitialized      Type = "agent-initialized"
	TypeWorkspaceInfo         Type = "workspace-info"
	TypeProcessing            Type = "processing"
	TypeAgentThinking         Type = "agent-thinking"
	TypeToolCall              Type = "tool-call"
	TypeToolResult            Type = "tool-result"
	TypeAgentResponse         Type = "agent-response"
	TypeStreamComplete        Type = "stream-complete"
	TypeError                 Type = "error"
	TypeSystem                Type = "system"
	TypePong                  Type = "pong"
	TypeUploadSuccess         Type = "upload-success"
	TypeBrowserUse            Type = "browser-use"
	TypeFileEdit              Type = "file-edit"
	TypeUserMessage           Type = "user-message"
	TypePromptGenerated       Type = "prompt-generated"
)

// RealtimeEvent is the single unit the EventBus moves: every interesting
// state transition in the system emits exactly one.
type RealtimeEvent struct {
	Type    Type           `json:"type"`
	Content map[string]any `json:"content"`
}

// New is a small constructor to keep call sites (agent, session server)
// from hand-building the map literal every time.
func New(t Type, content map[string]any) RealtimeEvent {
	if content == nil {
		content = map[string]any{}
	}
	return RealtimeEvent{Type: t, Content: content}
}
