// Package action is the codec between model-issued tool calls and typed,
// validated Actions, and between execution results and tool-result
// messages. It is a pure transform layer: nothing here touches the OS.
package action

import (
	"github.com/driftware/deskhand/internal/computer"
)

// Kind enumerates every action the agent can perform. The set is closed:
// anything else fails decoding with ErrUnknownAction.
type Kind string

const (
	KindScreenshot     Kind = "screenshot"
	KindCursorPosition Kind = "cursor_position"
	KindMouseMove      Kind = "mouse_move"
	KindLeftClick      Kind = "left_click"
	KindRightClick     Kind = "right_click"
	KindMiddleClick    Kind = "middle_click"
	KindDoubleClick    Kind = "double_click"
	KindLeftClickDrag  Kind = "left_click_drag"
	KindKey            Kind = "key"
	KindType           Kind = "type"
	KindRunCommand     Kind = "run_command"
	KindRestartShell   Kind = "restart_shell"
	KindEditFile       Kind = "edit_file"
)

// EditOp enumerates edit_file sub-operations.
type EditOp string

const (
	EditView       EditOp = "view"
	EditCreate     EditOp = "create"
	EditStrReplace EditOp = "str_replace"
	EditInsert     EditOp = "insert"
	EditUndo       EditOp = "undo_edit"
)

// Action is one validated unit of OS-directed work. Constructed only by
// Decode; immutable afterwards. Coordinates are in logical (model) space;
// executors convert through the DisplaySpec when they act.
type Action struct {
	Kind Kind

	// Pointer actions.
	Coordinate      *computer.Point // target, logical space
	StartCoordinate *computer.Point // drag origin; nil = current cursor

	// Keyboard actions.
	Text string   // for KindType
	Keys []string // for KindKey, ordered

	// Shell actions.
	Command string

	// File edit actions.
	EditOp     EditOp
	Path       string
	FileText   string
	OldStr     string
	NewStr     string
	InsertLine int
	ViewRange  []int
}
