// Package protocol defines the wire format for the deskhand gateway
// WebSocket stream. UIs and other observers import this package to decode
// the event frames pushed while an agent run is in progress.
package protocol

import "time"

// Protocol version. Bumped on any incompatible frame change.
const ProtocolVersion = 1

// Frame types
const (
	FrameTypeEvent = "event"
	FrameTypeHello = "hello"
)

// HelloFrame is the first frame sent to a newly connected client.
type HelloFrame struct {
	Type     string `json:"type"` // always "hello"
	Version  int    `json:"version"`
	ServerID string `json:"serverId"`
}

// EventFrame carries a single run event to the client.
type EventFrame struct {
	Type    string      `json:"type"`  // always "event"
	Event   string      `json:"event"` // event name, see events.go
	RunID   string      `json:"runId,omitempty"`
	Seq     int64       `json:"seq"` // per-connection ordering sequence
	Time    time.Time   `json:"time"`
	Payload interface{} `json:"payload,omitempty"`
}

// ToolCallPayload is the payload for EventToolCall.
type ToolCallPayload struct {
	CallID string `json:"callId"`
	Name   string `json:"name"`
	Args   string `json:"args,omitempty"` // raw JSON arguments, preview-bounded
	Step   int    `json:"step"`
}

// ToolResultPayload is the payload for EventToolResult.
type ToolResultPayload struct {
	CallID   string `json:"callId"`
	Name     string `json:"name"`
	IsError  bool   `json:"isError"`
	HasImage bool   `json:"hasImage"`
	Preview  string `json:"preview,omitempty"` // bounded text preview
}

// RunEndPayload is the payload for EventRunCompleted / EventRunFailed /
// EventRunAborted.
type RunEndPayload struct {
	Steps      int    `json:"steps"`
	StopReason string `json:"stopReason"`
	FinalText  string `json:"finalText,omitempty"`
	Error      string `json:"error,omitempty"`
}
