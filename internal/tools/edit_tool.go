package tools

import (
	"context"
	"fmt"

	"github.com/driftware/deskhand/internal/action"
	"github.com/driftware/deskhand/internal/editor"
)

// EditTool fronts the str_replace file editor.
type EditTool struct {
	editor *editor.Editor
}

func NewEditTool(ed *editor.Editor) *EditTool {
	return &EditTool{editor: ed}
}

func (t *EditTool) Name() string { return action.ToolEditor }

func (t *EditTool) Description() string {
	return "View, create, and edit files. " +
		"view shows a file with line numbers or lists a directory; create writes a new file; " +
		"str_replace replaces one exact occurrence of old_str with new_str; " +
		"insert adds text after a line; undo_edit reverts the last edit to a file. " +
		"All paths must be absolute."
}

func (t *EditTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"view", "create", "str_replace", "insert", "undo_edit"},
				"description": "The edit operation to run.",
			},
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Absolute path to the file or directory.",
			},
			"file_text": map[string]interface{}{
				"type":        "string",
				"description": "Content for create, or the text to insert.",
			},
			"old_str": map[string]interface{}{
				"type":        "string",
				"description": "Exact text to replace. Must occur exactly once in the file.",
			},
			"new_str": map[string]interface{}{
				"type":        "string",
				"description": "Replacement text. Omit to delete old_str.",
			},
			"insert_line": map[string]interface{}{
				"type":        "integer",
				"description": "Line number after which to insert (0 inserts at the top).",
			},
			"view_range": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "integer"},
				"description": "[start, end] line range for view.",
			},
		},
		"required": []string{"command", "path"},
	}
}

func (t *EditTool) Execute(ctx context.Context, act action.Action) *action.Result {
	if act.Kind != action.KindEditFile {
		return action.Fail(fmt.Sprintf("action %s is not an editor action", act.Kind))
	}

	var (
		out string
		err error
	)
	switch act.EditOp {
	case action.EditView:
		out, err = t.editor.View(act.Path, act.ViewRange)
	case action.EditCreate:
		out, err = t.editor.Create(act.Path, act.FileText)
	case action.EditStrReplace:
		out, err = t.editor.StrReplace(act.Path, act.OldStr, act.NewStr)
	case action.EditInsert:
		out, err = t.editor.Insert(act.Path, act.InsertLine, act.FileText)
	case action.EditUndo:
		out, err = t.editor.UndoEdit(act.Path)
	default:
		return action.Fail(fmt.Sprintf("unknown editor command %q", act.EditOp))
	}
	if err != nil {
		return action.FailErr(err)
	}
	return action.OK(out)
}
