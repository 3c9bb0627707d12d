// Package providers abstracts the model API behind a small Provider
// interface so the agent loop never touches a vendor SDK directly.
package providers

import (
	"context"
	"errors"
	"fmt"
)

// Role identifies who produced a transcript message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of the transcript, in provider-neutral form.
// Exactly one of the content shapes is meaningful per role: assistant
// messages may carry ToolCalls, tool messages must carry ToolCallID.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`

	// Assistant tool-call requests, in the order the model issued them.
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`

	// Tool-result fields (Role == RoleTool).
	ToolCallID string `json:"toolCallId,omitempty"`
	ToolName   string `json:"toolName,omitempty"`
	IsError    bool   `json:"isError,omitempty"`
	// ImagePNG holds a screenshot accompanying the tool result.
	ImagePNG []byte `json:"imagePng,omitempty"`
}

// ToolCall is a structured request from the model to invoke a tool.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON object
}

// ToolDefinition declares a tool to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// ChatRequest is one model invocation.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Tools       []ToolDefinition
	Temperature float32
	MaxTokens   int
}

// ChatResponse is the model's turn: optional text plus zero or more
// tool-call requests, ordering preserved.
type ChatResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	InputTokens  int
	OutputTokens int
}

// StreamChunk is a streamed fragment of the assistant's text.
type StreamChunk struct {
	Content string
	Done    bool
}

// Provider is a model API client.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// ChatStream invokes onChunk for each text fragment and returns the
	// complete response. Tool-call ordering matches the stream order.
	ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error)
}

// ClientError wraps a model API failure. Transient errors may be retried;
// terminal errors (auth, bad request) abort the run.
type ClientError struct {
	Provider   string
	StatusCode int // 0 when the request never got a response
	Err        error
}

func (e *ClientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ClientError) Unwrap() error { return e.Err }

// Transient reports whether retrying the request could succeed.
func (e *ClientError) Transient() bool {
	switch {
	case e.StatusCode == 0:
		return true // network-level failure
	case e.StatusCode == 408 || e.StatusCode == 429:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// IsTransient reports whether err is a retryable ClientError.
func IsTransient(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce) && ce.Transient()
}
