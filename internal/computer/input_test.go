package computer

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// fakeRunner records every invocation and replies from a canned script.
type fakeRunner struct {
	calls   [][]string
	stdout  string
	failOn  string // substring of args that triggers err
	err     error
}

func (f *fakeRunner) run(_ context.Context, name string, args ...string) (string, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	joined := strings.Join(args, " ")
	if f.failOn != "" && strings.Contains(joined, f.failOn) {
		if f.err != nil {
			return "", f.err
		}
		return "", errors.New("injected failure")
	}
	return f.stdout, nil
}

func newTestInjector(f *fakeRunner) *Injector {
	return &Injector{binary: "xdotool", run: f}
}

func TestInjector_Move(t *testing.T) {
	f := &fakeRunner{}
	in := newTestInjector(f)
	if err := in.Move(context.Background(), Point{10, 20}); err != nil {
		t.Fatalf("Move: %v", err)
	}
	want := []string{"xdotool", "mousemove", "--sync", "10", "20"}
	if len(f.calls) != 1 || strings.Join(f.calls[0], " ") != strings.Join(want, " ") {
		t.Errorf("calls = %v, want %v", f.calls, want)
	}
}

func TestInjector_TypeText_Chunks(t *testing.T) {
	f := &fakeRunner{}
	in := newTestInjector(f)

	text := strings.Repeat("a", typingChunkSize*2+5)
	if err := in.TypeText(context.Background(), text); err != nil {
		t.Fatalf("TypeText: %v", err)
	}
	if len(f.calls) != 3 {
		t.Fatalf("expected 3 chunked invocations, got %d", len(f.calls))
	}
	last := f.calls[2]
	if got := last[len(last)-1]; len(got) != 5 {
		t.Errorf("final chunk = %q, want 5 chars", got)
	}
}

func TestInjector_TypeText_UnicodeChunking(t *testing.T) {
	f := &fakeRunner{}
	in := newTestInjector(f)

	// Multi-byte runes must never be split mid-character.
	text := strings.Repeat("é", typingChunkSize+1)
	if err := in.TypeText(context.Background(), text); err != nil {
		t.Fatalf("TypeText: %v", err)
	}
	if len(f.calls) != 2 {
		t.Fatalf("expected 2 invocations, got %d", len(f.calls))
	}
	for _, call := range f.calls {
		chunk := call[len(call)-1]
		if strings.Contains(chunk, "�") {
			t.Errorf("chunk contains replacement char: %q", chunk)
		}
	}
}

func TestInjector_TypeText_Empty(t *testing.T) {
	f := &fakeRunner{}
	if err := newTestInjector(f).TypeText(context.Background(), ""); err != nil {
		t.Fatalf("TypeText(\"\"): %v", err)
	}
	if len(f.calls) != 0 {
		t.Errorf("expected no invocations for empty text, got %d", len(f.calls))
	}
}

func TestInjector_Drag_ReleasesButtonOnFailure(t *testing.T) {
	f := &fakeRunner{failOn: "mousemove --sync 50 60"}
	in := newTestInjector(f)

	err := in.Drag(context.Background(), Point{1, 2}, Point{50, 60}, ButtonLeft)
	if err == nil {
		t.Fatal("expected drag failure")
	}
	var ie *InjectionError
	if !errors.As(err, &ie) {
		t.Fatalf("error type = %T, want *InjectionError", err)
	}

	last := f.calls[len(f.calls)-1]
	if strings.Join(last[1:], " ") != "mouseup 1" {
		t.Errorf("expected trailing mouseup, got %v", last)
	}
}

func TestInjector_Key_TranslatesCombo(t *testing.T) {
	f := &fakeRunner{}
	in := newTestInjector(f)
	if err := in.Key(context.Background(), []string{"ctrl", "alt", "delete"}); err != nil {
		t.Fatalf("Key: %v", err)
	}
	call := strings.Join(f.calls[0], " ")
	if !strings.Contains(call, "key --clearmodifiers ctrl+alt+Delete") {
		t.Errorf("unexpected invocation: %s", call)
	}
}

func TestInjector_Key_EmptyCombo(t *testing.T) {
	f := &fakeRunner{}
	if err := newTestInjector(f).Key(context.Background(), nil); err == nil {
		t.Error("expected error for empty combo")
	}
}

func TestInjector_CursorPos(t *testing.T) {
	f := &fakeRunner{stdout: "x:512 y:384 screen:0 window:7340033\n"}
	in := newTestInjector(f)
	p, err := in.CursorPos(context.Background())
	if err != nil {
		t.Fatalf("CursorPos: %v", err)
	}
	if p != (Point{512, 384}) {
		t.Errorf("pos = %s, want (512,384)", p)
	}
}

func TestInjector_CursorPos_BadOutput(t *testing.T) {
	f := &fakeRunner{stdout: "garbage"}
	if _, err := newTestInjector(f).CursorPos(context.Background()); err == nil {
		t.Error("expected parse error")
	}
}

func TestTranslateCombo(t *testing.T) {
	cases := []struct {
		in   []string
		want string
	}{
		{[]string{"ctrl", "c"}, "ctrl+c"},
		{[]string{"Enter"}, "Return"},
		{[]string{"super"}, "super"},
		{[]string{"ctrl", "shift", "page_down"}, "ctrl+shift+Page_Down"},
		{[]string{"F5"}, "F5"},
	}
	for _, tc := range cases {
		got, err := TranslateCombo(tc.in)
		if err != nil {
			t.Fatalf("TranslateCombo(%v): %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("TranslateCombo(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseCombo(t *testing.T) {
	if got := ParseCombo("ctrl+alt+delete"); len(got) != 3 || got[0] != "ctrl" {
		t.Errorf("ParseCombo = %v", got)
	}
	if got := ParseCombo("alt tab"); len(got) != 2 || got[1] != "tab" {
		t.Errorf("ParseCombo = %v", got)
	}
}
