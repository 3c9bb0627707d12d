package computer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MouseButton identifies a pointer button in xdotool numbering.
type MouseButton int

const (
	ButtonLeft   MouseButton = 1
	ButtonMiddle MouseButton = 2
	ButtonRight  MouseButton = 3
)

// Typing parameters. Text is injected in chunks with a small inter-key
// delay so target applications with input handlers keep up.
const (
	typingChunkSize = 50
	typingDelayMs   = 12
)

// Injector dispatches pointer and keyboard events through an
// xdotool-compatible binary. Every coordinate an Injector method accepts
// is in physical device space; callers convert via DisplaySpec first.
// Calls block until the binary exits, i.e. until the OS accepted the
// event, not until any application reacted to it.
type Injector struct {
	binary string
	run    runner
}

// NewInjector creates an injector using the given binary ("xdotool").
func NewInjector(binary string, displayNum int) *Injector {
	return &Injector{
		binary: binary,
		run:    &execRunner{displayNum: displayNum},
	}
}

// Move positions the pointer at a physical point.
func (in *Injector) Move(ctx context.Context, p Point) error {
	return in.do(ctx, "move", "mousemove", "--sync", itoa(p.X), itoa(p.Y))
}

// Click presses and releases a button at the current pointer position.
func (in *Injector) Click(ctx context.Context, button MouseButton) error {
	return in.do(ctx, "click", "click", itoa(int(button)))
}

// DoubleClick issues two rapid clicks of the given button.
func (in *Injector) DoubleClick(ctx context.Context, button MouseButton) error {
	return in.do(ctx, "double_click", "click", "--repeat", "2", "--delay", "500", itoa(int(button)))
}

// Drag presses the button at from, moves to to, and releases.
func (in *Injector) Drag(ctx context.Context, from, to Point, button MouseButton) error {
	steps := [][]string{
		{"mousemove", "--sync", itoa(from.X), itoa(from.Y)},
		{"mousedown", itoa(int(button))},
		{"mousemove", "--sync", itoa(to.X), itoa(to.Y)},
		{"mouseup", itoa(int(button))},
	}
	for _, args := range steps {
		if err := in.do(ctx, "drag", args...); err != nil {
			// Best effort: never leave the button held down.
			_ = in.do(ctx, "drag", "mouseup", itoa(int(button)))
			return err
		}
	}
	return nil
}

// TypeText injects text as per-character key events. Input is normalized
// to NFC first so decomposed sequences type as the composed character, and
// dispatched in bounded chunks. No keyboard layout is assumed: xdotool
// type resolves characters to keycodes at injection time.
func (in *Injector) TypeText(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	normalized := norm.NFC.String(text)
	for _, chunk := range chunkRunes(normalized, typingChunkSize) {
		err := in.do(ctx, "type", "type", "--delay", itoa(typingDelayMs), "--clearmodifiers", "--", chunk)
		if err != nil {
			return err
		}
	}
	return nil
}

// Key presses an ordered key combination such as ["ctrl","alt","delete"].
func (in *Injector) Key(ctx context.Context, keys []string) error {
	combo, err := TranslateCombo(keys)
	if err != nil {
		return &InjectionError{Op: "key", Detail: err.Error()}
	}
	return in.do(ctx, "key", "key", "--clearmodifiers", combo)
}

// CursorPos reads the current pointer position in physical space.
// xdotool prints "x:512 y:384 screen:0 window:...".
func (in *Injector) CursorPos(ctx context.Context) (Point, error) {
	out, err := in.run.run(ctx, in.binary, "getmouselocation")
	if err != nil {
		return Point{}, &InjectionError{Op: "cursor_position", Err: err}
	}
	var p Point
	found := 0
	for _, field := range strings.Fields(out) {
		switch {
		case strings.HasPrefix(field, "x:"):
			if v, err := strconv.Atoi(field[2:]); err == nil {
				p.X = v
				found++
			}
		case strings.HasPrefix(field, "y:"):
			if v, err := strconv.Atoi(field[2:]); err == nil {
				p.Y = v
				found++
			}
		}
	}
	if found != 2 {
		return Point{}, &InjectionError{Op: "cursor_position", Detail: fmt.Sprintf("unexpected output %q", strings.TrimSpace(out))}
	}
	return p, nil
}

func (in *Injector) do(ctx context.Context, op string, args ...string) error {
	if _, err := in.run.run(ctx, in.binary, args...); err != nil {
		slog.Debug("injection failed", "op", op, "error", err)
		return &InjectionError{Op: op, Err: err}
	}
	return nil
}

// chunkRunes splits s into chunks of at most n runes, never splitting a
// multi-byte character.
func chunkRunes(s string, n int) []string {
	runes := []rune(s)
	var out []string
	for start := 0; start < len(runes); start += n {
		end := start + n
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

func itoa(v int) string { return strconv.Itoa(v) }
