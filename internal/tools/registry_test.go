package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/driftware/deskhand/internal/action"
	"github.com/driftware/deskhand/internal/computer"
	"github.com/driftware/deskhand/internal/providers"
)

type fakeTool struct {
	name   string
	result *action.Result
	got    []action.Action
}

func (f *fakeTool) Name() string                          { return f.name }
func (f *fakeTool) Description() string                   { return "fake" }
func (f *fakeTool) Parameters() map[string]interface{}    { return map[string]interface{}{"type": "object"} }
func (f *fakeTool) Execute(_ context.Context, act action.Action) *action.Result {
	f.got = append(f.got, act)
	return f.result
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	disp, err := computer.NewDisplaySpec(1920, 1080, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	return NewRegistry(disp)
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := newTestRegistry(t)
	ft := &fakeTool{name: action.ToolBash, result: action.OK("ok")}
	r.Register(ft)

	if got, ok := r.Get(action.ToolBash); !ok || got != Tool(ft) {
		t.Error("registered tool not returned")
	}
	if _, ok := r.Get("absent"); ok {
		t.Error("unexpected tool")
	}
	if r.Count() != 1 || len(r.List()) != 1 {
		t.Errorf("count = %d, list = %v", r.Count(), r.List())
	}
	if defs := r.ProviderDefs(); len(defs) != 1 || defs[0].Name != action.ToolBash {
		t.Errorf("provider defs = %+v", defs)
	}
}

func TestDispatch_ExecutesDecodedAction(t *testing.T) {
	r := newTestRegistry(t)
	ft := &fakeTool{name: action.ToolBash, result: action.OK("done")}
	r.Register(ft)

	msg := r.Dispatch(context.Background(), providers.ToolCall{
		ID: "c1", Name: action.ToolBash, Arguments: `{"command":"uptime"}`,
	})
	if msg.IsError {
		t.Fatalf("unexpected error result: %s", msg.Content)
	}
	if msg.ToolCallID != "c1" || msg.Content != "done" {
		t.Errorf("message = %+v", msg)
	}
	if len(ft.got) != 1 || ft.got[0].Command != "uptime" {
		t.Errorf("executed actions = %+v", ft.got)
	}
}

func TestDispatch_UnknownTool(t *testing.T) {
	r := newTestRegistry(t)
	msg := r.Dispatch(context.Background(), providers.ToolCall{ID: "c", Name: "nope"})
	if !msg.IsError || !strings.Contains(msg.Content, "unknown tool") {
		t.Errorf("message = %+v", msg)
	}
}

func TestDispatch_DecodeFailureBecomesErrorResult(t *testing.T) {
	r := newTestRegistry(t)
	ft := &fakeTool{name: action.ToolComputer, result: action.OK("never")}
	r.Register(ft)

	msg := r.Dispatch(context.Background(), providers.ToolCall{
		ID: "c", Name: action.ToolComputer, Arguments: `{"action":"mouse_move"}`,
	})
	if !msg.IsError {
		t.Fatal("expected error result")
	}
	if len(ft.got) != 0 {
		t.Error("tool executed despite decode failure")
	}
}

func TestDispatch_ScrubsCredentials(t *testing.T) {
	r := newTestRegistry(t)
	secret := "sk-" + strings.Repeat("a", 24)
	ft := &fakeTool{name: action.ToolBash, result: action.OK("key is " + secret)}
	r.Register(ft)

	call := providers.ToolCall{ID: "c", Name: action.ToolBash, Arguments: `{"command":"env"}`}
	msg := r.Dispatch(context.Background(), call)
	if strings.Contains(msg.Content, secret) {
		t.Error("credential leaked into transcript")
	}
	if !strings.Contains(msg.Content, "[REDACTED]") {
		t.Errorf("content = %q", msg.Content)
	}

	r.SetScrubbing(false)
	ft.result = action.OK("key is " + secret)
	msg = r.Dispatch(context.Background(), call)
	if !strings.Contains(msg.Content, secret) {
		t.Error("scrubbing still active after disable")
	}
}

func TestScrubCredentials(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"token ghp_" + strings.Repeat("x", 36), "token [REDACTED]"},
		{"AKIA" + strings.Repeat("Q", 16), "[REDACTED]"},
		{"plain text stays", "plain text stays"},
	}
	for _, tc := range cases {
		if got := ScrubCredentials(tc.in); got != tc.want {
			t.Errorf("ScrubCredentials(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
