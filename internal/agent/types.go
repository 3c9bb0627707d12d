package agent

import (
	"context"
	"errors"
)

// StopReason explains why a run ended.
type StopReason string

const (
	StopDone           StopReason = "done"            // model finished without tool calls
	StopBudgetExceeded StopReason = "budget_exceeded" // step budget hit
	StopCancelled      StopReason = "cancelled"       // context cancelled
	StopModelError     StopReason = "model_error"     // provider gave up
)

// ErrBudgetExceeded is set as RunResult.Err when a run hits its step
// budget, for callers that match errors rather than stop reasons.
var ErrBudgetExceeded = errors.New("step budget exceeded")

// RunRequest starts one agent run.
type RunRequest struct {
	RunID  string // empty = generated
	Prompt string
	// OnChunk, when set, receives streamed assistant text as it arrives.
	OnChunk func(text string)
}

// RunResult is the outcome of a finished run.
type RunResult struct {
	RunID      string
	FinalText  string
	Steps      int
	StopReason StopReason
	// Err is set for model_error and budget_exceeded stops. Excluded from
	// JSON output; the stop reason carries the same information there.
	Err error `json:"-"`
}

// Agent is one runnable agent. Implemented by *Loop; extracted as an
// interface so the router and gateway can be tested against fakes.
type Agent interface {
	ID() string
	Model() string
	Run(ctx context.Context, req RunRequest) (*RunResult, error)
	IsRunning() bool
}
