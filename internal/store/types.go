package store

import "time"

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusAborted   = "aborted"
)

// Run is one agent run: a prompt and everything the loop did for it.
type Run struct {
	ID         string
	AgentID    string
	Prompt     string
	Status     string
	StopReason string
	Steps      int
	StartedAt  time.Time
	EndedAt    time.Time // zero while running
}

// Turn is one transcript message of a run, in loop order.
type Turn struct {
	RunID      string
	Seq        int
	Role       string
	Content    string
	ToolCallID string
	ToolName   string
	IsError    bool
	HasImage   bool
	CreatedAt  time.Time
}

// Span is one timed unit of work inside a run, flushed by the tracing
// collector.
type Span struct {
	RunID    string
	SpanID   string
	ParentID string
	Name     string
	Kind     string // "model" or "tool"
	StartAt  time.Time
	EndAt    time.Time
	Status   string
	Input    string // preview-bounded
	Output   string // preview-bounded
}
