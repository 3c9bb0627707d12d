package action

import (
	"unicode/utf8"

	"github.com/driftware/deskhand/internal/providers"
)

// maxReasonChars bounds failure text before it enters the transcript, so
// repeated failures cannot grow the context without limit.
const maxReasonChars = 4000

// Result is the outcome of executing one Action: either a payload (text,
// optionally with a screenshot) or a failure reason. Exactly one variant
// is populated.
type Result struct {
	Text     string
	ImagePNG []byte
	IsError  bool
}

// OK builds a successful text result.
func OK(text string) *Result {
	return &Result{Text: text}
}

// OKImage builds a successful result carrying a screenshot.
func OKImage(text string, png []byte) *Result {
	return &Result{Text: text, ImagePNG: png}
}

// Fail builds a failed result. The reason travels to the model verbatim,
// bounded in length.
func Fail(reason string) *Result {
	return &Result{Text: reason, IsError: true}
}

// FailErr builds a failed result from an error.
func FailErr(err error) *Result {
	return Fail(err.Error())
}

// Encode turns an execution Result into the tool-result transcript
// message for the originating call.
func Encode(call providers.ToolCall, res *Result) providers.Message {
	msg := providers.Message{
		Role:       providers.RoleTool,
		ToolCallID: call.ID,
		ToolName:   call.Name,
	}
	if res.IsError {
		msg.IsError = true
		msg.Content = bound(res.Text, maxReasonChars)
		return msg
	}
	msg.Content = res.Text
	msg.ImagePNG = res.ImagePNG
	return msg
}

// EncodeDecodeError turns a decode failure into an error tool result so
// the model can self-correct instead of aborting the run.
func EncodeDecodeError(call providers.ToolCall, err error) providers.Message {
	return providers.Message{
		Role:       providers.RoleTool,
		ToolCallID: call.ID,
		ToolName:   call.Name,
		IsError:    true,
		Content:    bound("invalid tool call: "+err.Error(), maxReasonChars),
	}
}

// bound truncates s to at most max bytes, backing off to a rune boundary
// so the transcript never carries invalid UTF-8.
func bound(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + " (truncated)"
}
