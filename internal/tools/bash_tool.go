package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/driftware/deskhand/internal/action"
	"github.com/driftware/deskhand/internal/shell"
)

// BashTool runs commands in one persistent shell session, so working
// directory and environment carry over between calls.
type BashTool struct {
	session *shell.Session
}

func NewBashTool(session *shell.Session) *BashTool {
	return &BashTool{session: session}
}

func (t *BashTool) Name() string { return action.ToolBash }

func (t *BashTool) Description() string {
	return "Run commands in a persistent bash session. State such as the working directory, " +
		"environment variables, and background processes persists between calls. " +
		"Set restart to true to discard the session and start a fresh one."
}

func (t *BashTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "The bash command to run.",
			},
			"restart": map[string]interface{}{
				"type":        "boolean",
				"description": "Restart the shell session instead of running a command.",
			},
		},
	}
}

func (t *BashTool) Execute(ctx context.Context, act action.Action) *action.Result {
	switch act.Kind {
	case action.KindRestartShell:
		if err := t.session.Restart(); err != nil {
			return action.FailErr(err)
		}
		return action.OK("tool has been restarted")

	case action.KindRunCommand:
		out, err := t.session.Run(ctx, act.Command)
		if err != nil {
			if errors.Is(err, shell.ErrTimeout) {
				return action.Fail(err.Error())
			}
			return action.FailErr(err)
		}
		return formatOutput(out)

	default:
		return action.Fail(fmt.Sprintf("action %s is not a bash action", act.Kind))
	}
}

func formatOutput(out shell.Output) *action.Result {
	var b strings.Builder
	b.WriteString(out.Stdout)
	if out.Stderr != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("[stderr] ")
		b.WriteString(out.Stderr)
	}
	text := b.String()
	if out.ExitCode != 0 {
		if text != "" {
			text += "\n"
		}
		text += fmt.Sprintf("exit status %d", out.ExitCode)
		return action.Fail(text)
	}
	return action.OK(text)
}
