// Package session implements the bidirectional per-client connection of
// spec.md §4.7: one WebSocket per client, one Agent per connection, and
// the accompanying REST surface of spec.md §6. Grounded on
// vanducng-goclaw's internal/gateway (client registry, method dispatch
// over frames) for the connection shape, and on
// kubilitics-backend/internal/api/websocket's Client for the read/write
// pump split: one goroutine reads each socket, and writes from the event
// drain and the ping loop are serialized behind a per-socket mutex.
package session

import "encoding/json"

// InboundType is the closed set of client→server message types spec.md
// §4.7's protocol table recognizes.
type InboundType string

const (
	InboundInitAgent     InboundType = "init_agent"
	InboundQuery         InboundType = "query"
	InboundCancel        InboundType = "cancel"
	InboundEditQuery     InboundType = "edit_query"
	InboundWorkspaceInfo InboundType = "workspace_info"
	InboundPing          InboundType = "ping"
	InboundEnhancePrompt InboundType = "enhance_prompt"
)

// InboundFrame is the JSON envelope every inbound message arrives as.
type InboundFrame struct {
	Type    InboundType     `json:"type"`
	Content json.RawMessage `json:"content"`
}

// InitAgentContent is the content payload of an init_agent frame.
type InitAgentContent struct {
	DeviceID string   `json:"device_id"`
	SessionID string  `json:"session_id,omitempty"`
	ToolArgs ToolArgs `json:"tool_args"`
}

// ToolArgs selects which optional tools an agent instance is constructed
// with, per spec.md §4.7's "content.tool_args".
type ToolArgs struct {
	EnableShell   bool `json:"enable_shell"`
	EnableEditor  bool `json:"enable_editor"`
	EnableBrowser bool `json:"enable_browser"`
	EnableWeb     bool `json:"enable_web"`
}

// QueryContent is the content payload of a query or edit_query frame.
type QueryContent struct {
	Text  string   `json:"text"`
	Files []string `json:"files,omitempty"`
}

// EnhancePromptContent is the content payload of an enhance_prompt frame.
type EnhancePromptContent struct {
	Draft string `json:"draft"`
}
