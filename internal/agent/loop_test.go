package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/driftware/deskhand/internal/action"
	"github.com/driftware/deskhand/internal/computer"
	"github.com/driftware/deskhand/internal/config"
	"github.com/driftware/deskhand/internal/providers"
	"github.com/driftware/deskhand/internal/tools"
)

// scriptedProvider returns canned responses in order, then a terminal
// text-only response.
type scriptedProvider struct {
	mu      sync.Mutex
	turns   []providers.ChatResponse
	calls   int
	err     error
	onCall  func(n int)
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Chat(_ context.Context, _ providers.ChatRequest) (*providers.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.calls
	p.calls++
	if p.onCall != nil {
		p.onCall(n)
	}
	if p.err != nil {
		return nil, p.err
	}
	if n < len(p.turns) {
		resp := p.turns[n]
		return &resp, nil
	}
	return &providers.ChatResponse{Content: "all done"}, nil
}

func (p *scriptedProvider) ChatStream(ctx context.Context, req providers.ChatRequest, onChunk func(providers.StreamChunk)) (*providers.ChatResponse, error) {
	resp, err := p.Chat(ctx, req)
	if err == nil && resp.Content != "" {
		onChunk(providers.StreamChunk{Content: resp.Content})
	}
	return resp, err
}

// scriptedTool executes bash-named actions with canned results.
type scriptedTool struct {
	mu      sync.Mutex
	results []*action.Result
	execs   []action.Action
}

func (s *scriptedTool) Name() string                       { return action.ToolBash }
func (s *scriptedTool) Description() string                { return "scripted" }
func (s *scriptedTool) Parameters() map[string]interface{} { return map[string]interface{}{"type": "object"} }
func (s *scriptedTool) Execute(_ context.Context, act action.Action) *action.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execs = append(s.execs, act)
	if len(s.results) > 0 {
		r := s.results[0]
		s.results = s.results[1:]
		return r
	}
	return action.OK("ok")
}

func (s *scriptedTool) execCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.execs)
}

type recordedEvent struct {
	Type    string
	Payload interface{}
}

type recordingSink struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingSink) Publish(eventType, _ string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Type: eventType, Payload: payload})
}

func (r *recordingSink) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func bashCall(id, command string) providers.ToolCall {
	return providers.ToolCall{ID: id, Name: action.ToolBash, Arguments: `{"command":"` + command + `"}`}
}

func newTestLoop(t *testing.T, p providers.Provider, tool tools.Tool, cfg config.AgentConfig) *Loop {
	t.Helper()
	disp, err := computer.NewDisplaySpec(1920, 1080, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	reg := tools.NewRegistry(disp)
	if tool != nil {
		reg.Register(tool)
	}
	if cfg.MaxSteps == 0 {
		cfg.MaxSteps = 10
	}
	cfg.Pruning.Disabled = true
	return NewLoop("test-agent", p, reg, "test-model", cfg)
}

func TestRun_DoneWithoutToolCalls(t *testing.T) {
	p := &scriptedProvider{}
	l := newTestLoop(t, p, nil, config.AgentConfig{})

	res, err := l.Run(context.Background(), RunRequest{Prompt: "just answer"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.StopReason != StopDone || res.FinalText != "all done" {
		t.Errorf("result = %+v", res)
	}
	if res.Steps != 1 {
		t.Errorf("steps = %d", res.Steps)
	}
}

func TestRun_DispatchesToolCallsInOrder(t *testing.T) {
	p := &scriptedProvider{turns: []providers.ChatResponse{
		{ToolCalls: []providers.ToolCall{bashCall("c1", "first"), bashCall("c2", "second")}},
	}}
	tool := &scriptedTool{}
	sink := &recordingSink{}
	l := newTestLoop(t, p, tool, config.AgentConfig{})
	l.SetEvents(sink)

	res, err := l.Run(context.Background(), RunRequest{Prompt: "do both"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.StopReason != StopDone {
		t.Errorf("stop = %s", res.StopReason)
	}
	if len(tool.execs) != 2 || tool.execs[0].Command != "first" || tool.execs[1].Command != "second" {
		t.Errorf("execution order = %+v", tool.execs)
	}

	want := []string{"run.started", "tool.call", "tool.result", "tool.call", "tool.result", "run.completed"}
	got := sink.types()
	if len(got) != len(want) {
		t.Fatalf("events = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestRun_BudgetAbortsRun(t *testing.T) {
	// The model keeps asking for tool calls forever.
	turns := make([]providers.ChatResponse, 20)
	for i := range turns {
		turns[i] = providers.ChatResponse{ToolCalls: []providers.ToolCall{bashCall("c", "loop")}}
	}
	p := &scriptedProvider{turns: turns}
	l := newTestLoop(t, p, &scriptedTool{}, config.AgentConfig{MaxSteps: 3})

	res, err := l.Run(context.Background(), RunRequest{Prompt: "never stops"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.StopReason != StopBudgetExceeded {
		t.Errorf("stop = %s", res.StopReason)
	}
	if res.Steps != 3 {
		t.Errorf("steps = %d, want exactly the budget", res.Steps)
	}
	if !errors.Is(res.Err, ErrBudgetExceeded) {
		t.Errorf("err = %v, want ErrBudgetExceeded", res.Err)
	}
}

func TestRun_MalformedToolCallIsRecoverable(t *testing.T) {
	p := &scriptedProvider{turns: []providers.ChatResponse{
		{ToolCalls: []providers.ToolCall{{ID: "bad", Name: action.ToolBash, Arguments: `{}`}}},
	}}
	tool := &scriptedTool{}
	sink := &recordingSink{}
	l := newTestLoop(t, p, tool, config.AgentConfig{})
	l.SetEvents(sink)

	res, err := l.Run(context.Background(), RunRequest{Prompt: "bad call"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.StopReason != StopDone {
		t.Errorf("stop = %s", res.StopReason)
	}
	if tool.execCount() != 0 {
		t.Error("tool executed despite malformed call")
	}
	// The decode failure must have reached the model as an error result,
	// not aborted the run.
	found := false
	for _, ev := range sink.events {
		if ev.Type == "tool.result" {
			found = true
		}
	}
	if !found {
		t.Error("no tool.result event for the malformed call")
	}
}

func TestRun_ModelErrorAborts(t *testing.T) {
	p := &scriptedProvider{err: errors.New("401 unauthorized")}
	l := newTestLoop(t, p, nil, config.AgentConfig{})

	res, err := l.Run(context.Background(), RunRequest{Prompt: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if res.StopReason != StopModelError || res.Err == nil {
		t.Errorf("result = %+v", res)
	}
}

func TestRun_CancellationBetweenCycles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	turns := make([]providers.ChatResponse, 20)
	for i := range turns {
		turns[i] = providers.ChatResponse{ToolCalls: []providers.ToolCall{bashCall("c", "x")}}
	}
	p := &scriptedProvider{turns: turns}
	p.onCall = func(n int) {
		if n == 1 {
			cancel()
		}
	}
	l := newTestLoop(t, p, &scriptedTool{}, config.AgentConfig{})

	res, err := l.Run(ctx, RunRequest{Prompt: "x"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.StopReason != StopCancelled {
		t.Errorf("stop = %s", res.StopReason)
	}
}

func TestRun_RetryFailedActions(t *testing.T) {
	p := &scriptedProvider{turns: []providers.ChatResponse{
		{ToolCalls: []providers.ToolCall{bashCall("c1", "flaky")}},
	}}
	tool := &scriptedTool{results: []*action.Result{
		action.Fail("transient"),
		action.Fail("transient"),
		action.OK("recovered"),
	}}
	l := newTestLoop(t, p, tool, config.AgentConfig{RetryFailedActions: 2})

	res, err := l.Run(context.Background(), RunRequest{Prompt: "x"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.StopReason != StopDone {
		t.Errorf("stop = %s", res.StopReason)
	}
	if tool.execCount() != 3 {
		t.Errorf("executions = %d, want 3 (1 + 2 retries)", tool.execCount())
	}
}

func TestRun_NoRetryByDefault(t *testing.T) {
	p := &scriptedProvider{turns: []providers.ChatResponse{
		{ToolCalls: []providers.ToolCall{bashCall("c1", "flaky")}},
	}}
	tool := &scriptedTool{results: []*action.Result{action.Fail("boom")}}
	l := newTestLoop(t, p, tool, config.AgentConfig{})

	if _, err := l.Run(context.Background(), RunRequest{Prompt: "x"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tool.execCount() != 1 {
		t.Errorf("executions = %d, want 1", tool.execCount())
	}
}

func TestRun_RejectsConcurrentRuns(t *testing.T) {
	block := make(chan struct{})
	p := &scriptedProvider{}
	p.onCall = func(int) { <-block }
	l := newTestLoop(t, p, nil, config.AgentConfig{})

	done := make(chan struct{})
	go func() {
		l.Run(context.Background(), RunRequest{Prompt: "slow"})
		close(done)
	}()

	for !l.IsRunning() {
		time.Sleep(time.Millisecond)
	}
	if _, err := l.Run(context.Background(), RunRequest{Prompt: "second"}); err == nil {
		t.Error("expected concurrent run to be rejected")
	}
	close(block)
	<-done
}

func TestRun_StreamsChunks(t *testing.T) {
	p := &scriptedProvider{}
	l := newTestLoop(t, p, nil, config.AgentConfig{})

	var got strings.Builder
	res, err := l.Run(context.Background(), RunRequest{
		Prompt:  "stream it",
		OnChunk: func(text string) { got.WriteString(text) },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got.String() != res.FinalText {
		t.Errorf("streamed %q, final %q", got.String(), res.FinalText)
	}
}
