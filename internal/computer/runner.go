package computer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// runner executes external display/input commands. Extracted as an
// interface so tests can stub out xdotool and the capture binary.
type runner interface {
	run(ctx context.Context, name string, args ...string) (stdout string, err error)
}

// execRunner runs commands against the real OS, forcing DISPLAY when a
// display number is configured.
type execRunner struct {
	displayNum int // -1 = inherit
}

func (r *execRunner) run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if r.displayNum >= 0 {
		cmd.Env = append(os.Environ(), fmt.Sprintf("DISPLAY=:%d", r.displayNum))
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return stdout.String(), fmt.Errorf("%s: %s: %w", name, detail, err)
		}
		return stdout.String(), fmt.Errorf("%s: %w", name, err)
	}
	return stdout.String(), nil
}
