package action

import (
	"encoding/json"
	"fmt"

	"github.com/driftware/deskhand/internal/computer"
)

// Tool names the model addresses. They mirror the classic computer-use
// tool set so prompts written for it transfer directly.
const (
	ToolComputer = "computer"
	ToolBash     = "bash"
	ToolEditor   = "str_replace_editor"
)

// DecodeErrorKind classifies why a tool call failed to decode.
type DecodeErrorKind string

const (
	ErrMissingField  DecodeErrorKind = "missing_field"
	ErrBadType       DecodeErrorKind = "bad_type"
	ErrOutOfBounds   DecodeErrorKind = "out_of_bounds"
	ErrUnknownAction DecodeErrorKind = "unknown_action"
)

// DecodeError reports a malformed tool call. It is recoverable: the loop
// encodes it as an error tool result so the model can correct itself.
type DecodeError struct {
	Kind   DecodeErrorKind
	Detail string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func decodeErrf(kind DecodeErrorKind, format string, args ...any) *DecodeError {
	return &DecodeError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// computerArgs is the wire shape of a "computer" tool call.
type computerArgs struct {
	Action          string `json:"action"`
	Coordinate      []int  `json:"coordinate"`
	StartCoordinate []int  `json:"start_coordinate"`
	Text            string `json:"text"`
}

// bashArgs is the wire shape of a "bash" tool call.
type bashArgs struct {
	Command string `json:"command"`
	Restart bool   `json:"restart"`
}

// editorArgs is the wire shape of a "str_replace_editor" tool call.
type editorArgs struct {
	Command    string  `json:"command"`
	Path       string  `json:"path"`
	FileText   *string `json:"file_text"`
	OldStr     *string `json:"old_str"`
	NewStr     *string `json:"new_str"`
	InsertLine *int    `json:"insert_line"`
	ViewRange  []int   `json:"view_range"`
}

// Decode validates a raw tool call against the closed action set and the
// display bounds, producing an immutable Action. It never panics on model
// output; every malformed input maps to a *DecodeError.
func Decode(toolName, argsJSON string, disp computer.DisplaySpec) (Action, error) {
	switch toolName {
	case ToolComputer:
		return decodeComputer(argsJSON, disp)
	case ToolBash:
		return decodeBash(argsJSON)
	case ToolEditor:
		return decodeEditor(argsJSON)
	default:
		return Action{}, decodeErrf(ErrUnknownAction, "unknown tool %q", toolName)
	}
}

func decodeComputer(argsJSON string, disp computer.DisplaySpec) (Action, error) {
	var args computerArgs
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return Action{}, decodeErrf(ErrBadType, "arguments are not a valid JSON object: %v", err)
	}
	if args.Action == "" {
		return Action{}, decodeErrf(ErrMissingField, "action is required")
	}

	kind := Kind(args.Action)
	switch kind {
	case KindMouseMove, KindLeftClickDrag:
		coord, err := decodePoint(args.Coordinate, disp, "coordinate")
		if err != nil {
			return Action{}, err
		}
		if args.Text != "" {
			return Action{}, decodeErrf(ErrBadType, "text is not accepted for %s", kind)
		}
		act := Action{Kind: kind, Coordinate: coord}
		if kind == KindLeftClickDrag && len(args.StartCoordinate) > 0 {
			start, err := decodePoint(args.StartCoordinate, disp, "start_coordinate")
			if err != nil {
				return Action{}, err
			}
			act.StartCoordinate = start
		}
		return act, nil

	case KindKey, KindType:
		if args.Text == "" {
			return Action{}, decodeErrf(ErrMissingField, "text is required for %s", kind)
		}
		if len(args.Coordinate) > 0 {
			return Action{}, decodeErrf(ErrBadType, "coordinate is not accepted for %s", kind)
		}
		if kind == KindKey {
			keys := computer.ParseCombo(args.Text)
			if len(keys) == 0 {
				return Action{}, decodeErrf(ErrBadType, "text %q is not a key combination", args.Text)
			}
			return Action{Kind: kind, Keys: keys}, nil
		}
		return Action{Kind: kind, Text: args.Text}, nil

	case KindLeftClick, KindRightClick, KindMiddleClick, KindDoubleClick,
		KindScreenshot, KindCursorPosition:
		if args.Text != "" {
			return Action{}, decodeErrf(ErrBadType, "text is not accepted for %s", kind)
		}
		// Clicks act at the current pointer position; a separate mouse_move
		// positions it first.
		if len(args.Coordinate) > 0 {
			return Action{}, decodeErrf(ErrBadType, "coordinate is not accepted for %s", kind)
		}
		return Action{Kind: kind}, nil

	default:
		return Action{}, decodeErrf(ErrUnknownAction, "invalid action %q", args.Action)
	}
}

func decodeBash(argsJSON string) (Action, error) {
	var args bashArgs
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return Action{}, decodeErrf(ErrBadType, "arguments are not a valid JSON object: %v", err)
	}
	if args.Restart {
		return Action{Kind: KindRestartShell}, nil
	}
	if args.Command == "" {
		return Action{}, decodeErrf(ErrMissingField, "command is required")
	}
	return Action{Kind: KindRunCommand, Command: args.Command}, nil
}

func decodeEditor(argsJSON string) (Action, error) {
	var args editorArgs
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return Action{}, decodeErrf(ErrBadType, "arguments are not a valid JSON object: %v", err)
	}
	if args.Command == "" {
		return Action{}, decodeErrf(ErrMissingField, "command is required")
	}
	if args.Path == "" {
		return Action{}, decodeErrf(ErrMissingField, "path is required")
	}

	act := Action{Kind: KindEditFile, EditOp: EditOp(args.Command), Path: args.Path}
	switch act.EditOp {
	case EditView:
		if len(args.ViewRange) > 0 {
			if len(args.ViewRange) != 2 {
				return Action{}, decodeErrf(ErrBadType, "view_range must be [start, end]")
			}
			act.ViewRange = args.ViewRange
		}
	case EditCreate:
		if args.FileText == nil {
			return Action{}, decodeErrf(ErrMissingField, "file_text is required for create")
		}
		act.FileText = *args.FileText
	case EditStrReplace:
		if args.OldStr == nil {
			return Action{}, decodeErrf(ErrMissingField, "old_str is required for str_replace")
		}
		act.OldStr = *args.OldStr
		if args.NewStr != nil {
			act.NewStr = *args.NewStr
		}
	case EditInsert:
		if args.InsertLine == nil {
			return Action{}, decodeErrf(ErrMissingField, "insert_line is required for insert")
		}
		if *args.InsertLine < 0 {
			return Action{}, decodeErrf(ErrBadType, "insert_line must not be negative")
		}
		if args.FileText == nil {
			return Action{}, decodeErrf(ErrMissingField, "file_text is required for insert")
		}
		act.InsertLine = *args.InsertLine
		act.FileText = *args.FileText
	case EditUndo:
		// path only
	default:
		return Action{}, decodeErrf(ErrUnknownAction, "invalid editor command %q", args.Command)
	}
	return act, nil
}

// decodePoint validates a [x, y] pair of non-negative integers inside the
// display's logical bounds.
func decodePoint(raw []int, disp computer.DisplaySpec, field string) (*computer.Point, error) {
	if len(raw) == 0 {
		return nil, decodeErrf(ErrMissingField, "%s is required", field)
	}
	if len(raw) != 2 {
		return nil, decodeErrf(ErrBadType, "%s must be a pair [x, y], got %v", field, raw)
	}
	if raw[0] < 0 || raw[1] < 0 {
		return nil, decodeErrf(ErrBadType, "%s must be non-negative, got %v", field, raw)
	}
	p := computer.Point{X: raw[0], Y: raw[1]}
	if !disp.InBounds(p) {
		return nil, decodeErrf(ErrOutOfBounds, "%s %s is outside the %dx%d display",
			field, p, disp.TargetWidth, disp.TargetHeight)
	}
	return &p, nil
}
