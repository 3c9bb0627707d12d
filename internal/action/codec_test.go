package action

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/driftware/deskhand/internal/computer"
	"github.com/driftware/deskhand/internal/providers"
)

func testDisplay(t *testing.T) computer.DisplaySpec {
	t.Helper()
	disp, err := computer.NewDisplaySpec(1920, 1080, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	return disp
}

func wantDecodeError(t *testing.T, err error, kind DecodeErrorKind) {
	t.Helper()
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("error = %v, want *DecodeError", err)
	}
	if de.Kind != kind {
		t.Errorf("decode error kind = %s, want %s", de.Kind, kind)
	}
}

func TestDecode_MouseMove(t *testing.T) {
	act, err := Decode(ToolComputer, `{"action":"mouse_move","coordinate":[100,200]}`, testDisplay(t))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if act.Kind != KindMouseMove {
		t.Errorf("kind = %s", act.Kind)
	}
	if act.Coordinate == nil || *act.Coordinate != (computer.Point{X: 100, Y: 200}) {
		t.Errorf("coordinate = %v", act.Coordinate)
	}
}

func TestDecode_MouseMoveValidation(t *testing.T) {
	disp := testDisplay(t)
	cases := []struct {
		name string
		args string
		kind DecodeErrorKind
	}{
		{"missing coordinate", `{"action":"mouse_move"}`, ErrMissingField},
		{"text not accepted", `{"action":"mouse_move","coordinate":[1,2],"text":"x"}`, ErrBadType},
		{"not a pair", `{"action":"mouse_move","coordinate":[1,2,3]}`, ErrBadType},
		{"negative", `{"action":"mouse_move","coordinate":[-1,2]}`, ErrBadType},
		{"out of bounds", `{"action":"mouse_move","coordinate":[5000,2]}`, ErrOutOfBounds},
		{"malformed json", `{"action":`, ErrBadType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(ToolComputer, tc.args, disp)
			wantDecodeError(t, err, tc.kind)
		})
	}
}

func TestDecode_KeyAndType(t *testing.T) {
	disp := testDisplay(t)

	act, err := Decode(ToolComputer, `{"action":"key","text":"ctrl+alt+delete"}`, disp)
	if err != nil {
		t.Fatalf("Decode key: %v", err)
	}
	if len(act.Keys) != 3 || act.Keys[0] != "ctrl" || act.Keys[2] != "delete" {
		t.Errorf("keys = %v", act.Keys)
	}

	act, err = Decode(ToolComputer, `{"action":"type","text":"héllo"}`, disp)
	if err != nil {
		t.Fatalf("Decode type: %v", err)
	}
	if act.Text != "héllo" {
		t.Errorf("text = %q", act.Text)
	}

	_, err = Decode(ToolComputer, `{"action":"type"}`, disp)
	wantDecodeError(t, err, ErrMissingField)

	_, err = Decode(ToolComputer, `{"action":"key","text":"ctrl+c","coordinate":[1,2]}`, disp)
	wantDecodeError(t, err, ErrBadType)
}

func TestDecode_Clicks(t *testing.T) {
	disp := testDisplay(t)

	for _, name := range []string{"left_click", "right_click", "middle_click", "double_click"} {
		act, err := Decode(ToolComputer, `{"action":"`+name+`"}`, disp)
		if err != nil {
			t.Fatalf("Decode %s: %v", name, err)
		}
		if act.Coordinate != nil {
			t.Errorf("%s: coordinate = %v, clicks carry none", name, act.Coordinate)
		}
	}
}

// Clicks act where the pointer already is; positioning is mouse_move's job.
func TestDecode_RejectsCoordinateOnNonMouseActions(t *testing.T) {
	disp := testDisplay(t)

	for _, name := range []string{
		"left_click", "right_click", "middle_click", "double_click",
		"screenshot", "cursor_position",
	} {
		_, err := Decode(ToolComputer, `{"action":"`+name+`","coordinate":[10,10]}`, disp)
		wantDecodeError(t, err, ErrBadType)
	}
}

func TestDecode_Drag(t *testing.T) {
	disp := testDisplay(t)
	act, err := Decode(ToolComputer, `{"action":"left_click_drag","start_coordinate":[5,5],"coordinate":[50,50]}`, disp)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if act.StartCoordinate == nil || act.StartCoordinate.X != 5 {
		t.Errorf("start = %v", act.StartCoordinate)
	}
	if act.Coordinate == nil || act.Coordinate.X != 50 {
		t.Errorf("target = %v", act.Coordinate)
	}
}

func TestDecode_UnknownActionAndTool(t *testing.T) {
	disp := testDisplay(t)
	_, err := Decode(ToolComputer, `{"action":"teleport"}`, disp)
	wantDecodeError(t, err, ErrUnknownAction)

	_, err = Decode("no_such_tool", `{}`, disp)
	wantDecodeError(t, err, ErrUnknownAction)
}

func TestDecode_Bash(t *testing.T) {
	disp := testDisplay(t)

	act, err := Decode(ToolBash, `{"command":"ls -la"}`, disp)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if act.Kind != KindRunCommand || act.Command != "ls -la" {
		t.Errorf("act = %+v", act)
	}

	act, err = Decode(ToolBash, `{"restart":true}`, disp)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if act.Kind != KindRestartShell {
		t.Errorf("kind = %s", act.Kind)
	}

	_, err = Decode(ToolBash, `{}`, disp)
	wantDecodeError(t, err, ErrMissingField)
}

func TestDecode_Editor(t *testing.T) {
	disp := testDisplay(t)

	act, err := Decode(ToolEditor, `{"command":"str_replace","path":"/tmp/f","old_str":"a","new_str":"b"}`, disp)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if act.EditOp != EditStrReplace || act.OldStr != "a" || act.NewStr != "b" {
		t.Errorf("act = %+v", act)
	}

	// new_str may legitimately be empty (deletion).
	act, err = Decode(ToolEditor, `{"command":"str_replace","path":"/tmp/f","old_str":"a","new_str":""}`, disp)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if act.NewStr != "" {
		t.Errorf("new_str = %q", act.NewStr)
	}

	_, err = Decode(ToolEditor, `{"command":"str_replace","path":"/tmp/f"}`, disp)
	wantDecodeError(t, err, ErrMissingField)

	_, err = Decode(ToolEditor, `{"command":"insert","path":"/tmp/f","file_text":"x"}`, disp)
	wantDecodeError(t, err, ErrMissingField)

	_, err = Decode(ToolEditor, `{"command":"frobnicate","path":"/tmp/f"}`, disp)
	wantDecodeError(t, err, ErrUnknownAction)

	_, err = Decode(ToolEditor, `{"command":"view"}`, disp)
	wantDecodeError(t, err, ErrMissingField)
}

// Decoding a valid call and encoding a synthetic result must preserve the
// call identity and the payload's semantic content.
func TestDecodeEncodeRoundTrip(t *testing.T) {
	disp := testDisplay(t)
	call := providers.ToolCall{ID: "call_7", Name: ToolBash, Arguments: `{"command":"pwd"}`}

	if _, err := Decode(call.Name, call.Arguments, disp); err != nil {
		t.Fatalf("Decode: %v", err)
	}

	msg := Encode(call, OK("/home/user"))
	if msg.Role != providers.RoleTool || msg.ToolCallID != "call_7" || msg.ToolName != ToolBash {
		t.Errorf("message identity = %+v", msg)
	}
	if msg.Content != "/home/user" || msg.IsError {
		t.Errorf("payload = %+v", msg)
	}

	img := []byte{0x89, 'P', 'N', 'G'}
	msg = Encode(call, OKImage("Screenshot taken", img))
	if string(msg.ImagePNG) != string(img) {
		t.Error("image payload lost")
	}
}

func TestEncode_BoundsFailureReason(t *testing.T) {
	call := providers.ToolCall{ID: "c", Name: ToolBash}
	long := strings.Repeat("e", maxReasonChars*2)

	msg := Encode(call, Fail(long))
	if !msg.IsError {
		t.Error("expected error message")
	}
	if len(msg.Content) > maxReasonChars+64 {
		t.Errorf("reason not bounded: %d chars", len(msg.Content))
	}

	msg = EncodeDecodeError(call, decodeErrf(ErrMissingField, "command is required"))
	if !msg.IsError || !strings.Contains(msg.Content, "command is required") {
		t.Errorf("decode error message = %+v", msg)
	}
}

// Truncation must never split a multi-byte rune: the transcript is the
// model's input and has to stay valid UTF-8.
func TestEncode_TruncatesAtRuneBoundary(t *testing.T) {
	call := providers.ToolCall{ID: "c", Name: ToolBash}
	// The leading ASCII byte shifts every 2-byte rune to an odd offset, so
	// byte maxReasonChars lands inside a rune.
	long := "a" + strings.Repeat("é", maxReasonChars)

	msg := Encode(call, Fail(long))
	if !utf8.ValidString(msg.Content) {
		t.Error("truncated reason is not valid UTF-8")
	}
	if len(msg.Content) > maxReasonChars+64 {
		t.Errorf("reason not bounded: %d bytes", len(msg.Content))
	}
}
