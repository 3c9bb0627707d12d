package providers

import (
	"context"
	"errors"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func TestClientError_Transient(t *testing.T) {
	cases := []struct {
		status int
		want   bool
	}{
		{0, true},    // transport failure, no HTTP status
		{408, true},  // request timeout
		{429, true},  // rate limited
		{500, true},  // server error
		{503, true},  // unavailable
		{400, false}, // bad request
		{401, false}, // auth
		{404, false},
	}
	for _, tc := range cases {
		err := &ClientError{Provider: "openai", StatusCode: tc.status, Err: errors.New("x")}
		if got := err.Transient(); got != tc.want {
			t.Errorf("status %d: Transient() = %v, want %v", tc.status, got, tc.want)
		}
		if IsTransient(err) != tc.want {
			t.Errorf("status %d: IsTransient mismatch", tc.status)
		}
	}
	if IsTransient(errors.New("plain")) {
		t.Error("plain error reported transient")
	}
}

func TestToOpenAIMessages_ToolResultWithImage(t *testing.T) {
	msgs := toOpenAIMessages(Message{
		Role:       RoleTool,
		ToolCallID: "c1",
		ToolName:   "computer",
		Content:    "done",
		ImagePNG:   []byte{0x89, 'P', 'N', 'G'},
	})
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want tool message + image message", len(msgs))
	}
	if msgs[0].Role != openai.ChatMessageRoleTool || msgs[0].ToolCallID != "c1" {
		t.Errorf("tool message = %+v", msgs[0])
	}
	if msgs[1].Role != openai.ChatMessageRoleUser || len(msgs[1].MultiContent) != 2 {
		t.Fatalf("image message = %+v", msgs[1])
	}
	url := msgs[1].MultiContent[1].ImageURL.URL
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Errorf("image url = %q", url)
	}
}

func TestToOpenAIMessages_EmptyToolContent(t *testing.T) {
	msgs := toOpenAIMessages(Message{Role: RoleTool, ToolCallID: "c"})
	if msgs[0].Content == "" {
		t.Error("empty tool content must be replaced, the API rejects empty strings")
	}
}

func TestToOpenAIMessages_AssistantToolCalls(t *testing.T) {
	msgs := toOpenAIMessages(Message{
		Role: RoleAssistant,
		ToolCalls: []ToolCall{
			{ID: "a", Name: "bash", Arguments: `{"command":"ls"}`},
			{ID: "b", Name: "computer", Arguments: `{"action":"screenshot"}`},
		},
	})
	if len(msgs) != 1 || len(msgs[0].ToolCalls) != 2 {
		t.Fatalf("msgs = %+v", msgs)
	}
	if msgs[0].ToolCalls[0].ID != "a" || msgs[0].ToolCalls[1].ID != "b" {
		t.Error("tool call order not preserved")
	}
}

// flakyProvider fails with the given errors before succeeding.
type flakyProvider struct {
	errs  []error
	calls int
}

func (f *flakyProvider) Name() string { return "flaky" }

func (f *flakyProvider) Chat(context.Context, ChatRequest) (*ChatResponse, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return &ChatResponse{Content: "ok"}, nil
}

func (f *flakyProvider) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	return f.Chat(ctx, req)
}

func TestRetrying_RetriesTransient(t *testing.T) {
	inner := &flakyProvider{errs: []error{
		&ClientError{StatusCode: 429, Err: errors.New("rate limited")},
		&ClientError{StatusCode: 503, Err: errors.New("unavailable")},
	}}
	p := NewRetrying(inner, 3)

	resp, err := p.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "ok" || inner.calls != 3 {
		t.Errorf("content = %q, calls = %d", resp.Content, inner.calls)
	}
}

func TestRetrying_TerminalErrorPassesThrough(t *testing.T) {
	inner := &flakyProvider{errs: []error{
		&ClientError{StatusCode: 401, Err: errors.New("unauthorized")},
	}}
	p := NewRetrying(inner, 3)

	if _, err := p.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 1 {
		t.Errorf("calls = %d, terminal errors must not retry", inner.calls)
	}
}

func TestRetrying_GivesUpAfterBudget(t *testing.T) {
	inner := &flakyProvider{errs: []error{
		&ClientError{StatusCode: 500, Err: errors.New("a")},
		&ClientError{StatusCode: 500, Err: errors.New("b")},
		&ClientError{StatusCode: 500, Err: errors.New("c")},
	}}
	p := NewRetrying(inner, 2)

	_, err := p.Chat(context.Background(), ChatRequest{})
	if err == nil {
		t.Fatal("expected error after retry budget")
	}
	if inner.calls != 3 {
		t.Errorf("calls = %d, want 1 + 2 retries", inner.calls)
	}
}

func TestNewRetrying_ZeroReturnsInner(t *testing.T) {
	inner := &flakyProvider{}
	if NewRetrying(inner, 0) != Provider(inner) {
		t.Error("zero retries should return the inner provider unchanged")
	}
}

func TestBackoffCapped(t *testing.T) {
	last := backoff(1)
	for attempt := 2; attempt < 12; attempt++ {
		d := backoff(attempt)
		if d > retryMaxDelay {
			t.Fatalf("backoff(%d) = %s exceeds cap", attempt, d)
		}
		if d < last && d != retryMaxDelay {
			t.Fatalf("backoff(%d) = %s shrank below previous %s", attempt, d, last)
		}
		last = d
	}
}
