package computer

import "fmt"

// CaptureError reports a failed screen capture. Recoverable: the loop
// surfaces it to the model as a failed tool result.
type CaptureError struct {
	Reason string
	Err    error
}

func (e *CaptureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("screen capture failed: %s: %v", e.Reason, e.Err)
	}
	return "screen capture failed: " + e.Reason
}

func (e *CaptureError) Unwrap() error { return e.Err }

// InjectionError reports an OS-level rejection of an input event.
type InjectionError struct {
	Op     string // "move", "click", "type", ...
	Detail string // trailing stderr from the injector binary
	Err    error
}

func (e *InjectionError) Error() string {
	msg := fmt.Sprintf("input injection failed: %s", e.Op)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InjectionError) Unwrap() error { return e.Err }
