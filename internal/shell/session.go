// Package shell runs model-issued commands in one persistent shell
// process, so working directory and environment changes carry across
// calls within an agent run.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	shellwords "github.com/mattn/go-shellwords"
)

// State of a Session.
type State int

const (
	StateUninitialized State = iota // no shell process yet
	StateIdle                       // shell running, no command in flight
	StateExecuting                  // command in flight
	StateTerminated                 // closed, will not accept commands
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateIdle:
		return "idle"
	case StateExecuting:
		return "executing"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Output is the captured result of one command.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// ErrTimeout matches any *TimeoutError under errors.Is, for callers that
// do not need the timeout value.
var ErrTimeout = errors.New("command timed out")

// TimeoutError reports a command that did not finish within its budget.
// The session stays usable afterwards.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command did not return within %s", e.Timeout)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// ErrTerminated is returned by Run after Close.
var ErrTerminated = fmt.Errorf("shell session is terminated")

const outputPollInterval = 200 * time.Millisecond

// Config tunes a Session.
type Config struct {
	// Command is the shell command line, e.g. "/bin/bash" or
	// "bash --noprofile". Parsed with shellwords.
	Command string
	// Timeout bounds each Run call.
	Timeout time.Duration
	// KillOnTimeout restarts the shell after a timeout instead of leaving
	// the command running in the background.
	KillOnTimeout bool
	// OutputMaxChars truncates captured output (middle-out) per stream.
	OutputMaxChars int
	// Dir is the initial working directory ("" = inherit).
	Dir string
}

// Session owns one shell process. It is exclusively owned by a single
// agent run; methods must not be called concurrently.
type Session struct {
	cfg Config

	mu     sync.Mutex
	state  State
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *drainBuffer
	stderr *drainBuffer
}

// NewSession creates a session. The shell process is spawned lazily on the
// first Run call.
func NewSession(cfg Config) *Session {
	if cfg.Command == "" {
		cfg.Command = "/bin/bash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.OutputMaxChars <= 0 {
		cfg.OutputMaxChars = 50_000
	}
	return &Session{cfg: cfg, state: StateUninitialized}
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) start() error {
	argv, err := shellwords.Parse(s.cfg.Command)
	if err != nil {
		return fmt.Errorf("parse shell command %q: %w", s.cfg.Command, err)
	}
	if len(argv) == 0 {
		return fmt.Errorf("empty shell command")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = s.cfg.Dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		return fmt.Errorf("start shell: %w", err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.stdout = newDrainBuffer(stdoutPipe)
	s.stderr = newDrainBuffer(stderrPipe)
	s.state = StateIdle

	slog.Debug("shell session started", "command", s.cfg.Command, "pid", cmd.Process.Pid)
	return nil
}

// Run executes one command and blocks until it completes or times out.
// The first call spawns the shell. A timeout returns *TimeoutError and,
// unless KillOnTimeout restarts the shell, leaves the command running;
// its late output is discarded before the next command.
func (s *Session) Run(ctx context.Context, command string) (Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateTerminated:
		return Output{}, ErrTerminated
	case StateUninitialized:
		if err := s.start(); err != nil {
			return Output{}, err
		}
	}

	// Discard output left over from a previously timed-out command.
	s.stdout.Take()
	s.stderr.Take()

	s.state = StateExecuting
	defer func() {
		if s.state == StateExecuting {
			s.state = StateIdle
		}
	}()

	// A uuid sentinel cannot collide with command output, unlike a fixed
	// marker string.
	sentinel := "__DESKHAND_" + uuid.NewString() + "__"
	payload := command + "\necho \"" + sentinel + " $?\"\n"
	if _, err := io.WriteString(s.stdin, payload); err != nil {
		// Shell died (e.g. the model ran "exit"); respawn once and retry.
		slog.Debug("shell write failed, respawning", "error", err)
		s.releaseLocked()
		if err := s.start(); err != nil {
			s.state = StateUninitialized
			return Output{}, err
		}
		s.state = StateExecuting
		if _, err := io.WriteString(s.stdin, payload); err != nil {
			return Output{}, fmt.Errorf("write command: %w", err)
		}
	}

	deadline := time.Now().Add(s.cfg.Timeout)
	for {
		if out, ok := s.harvest(sentinel); ok {
			return out, nil
		}

		if time.Now().After(deadline) {
			if s.cfg.KillOnTimeout {
				s.restartLocked()
			}
			return Output{}, &TimeoutError{Timeout: s.cfg.Timeout}
		}

		select {
		case <-ctx.Done():
			return Output{}, ctx.Err()
		case <-time.After(outputPollInterval):
		}
	}
}

// harvest checks the accumulated stdout for the sentinel line and, when
// present, splits output from exit status and drains stderr.
func (s *Session) harvest(sentinel string) (Output, bool) {
	buffered := s.stdout.Peek()
	idx := strings.Index(buffered, sentinel)
	if idx < 0 {
		return Output{}, false
	}

	// Exit code follows the sentinel on the same line.
	tail := buffered[idx+len(sentinel):]
	exitCode := 0
	if nl := strings.IndexByte(tail, '\n'); nl >= 0 {
		if code, err := strconv.Atoi(strings.TrimSpace(tail[:nl])); err == nil {
			exitCode = code
		}
	} else {
		// Exit status not fully flushed yet; wait for the next poll.
		return Output{}, false
	}

	s.stdout.Take()
	stdout := strings.TrimSuffix(buffered[:idx], "\n")
	stderr := strings.TrimSuffix(s.stderr.Take(), "\n")

	return Output{
		Stdout:   truncateMiddle(stdout, s.cfg.OutputMaxChars),
		Stderr:   truncateMiddle(stderr, s.cfg.OutputMaxChars),
		ExitCode: exitCode,
	}, true
}

// Restart kills the shell process and forgets its state. The next Run
// spawns a fresh shell with a clean working directory and environment.
func (s *Session) Restart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateTerminated {
		return ErrTerminated
	}
	s.restartLocked()
	return nil
}

func (s *Session) restartLocked() {
	s.releaseLocked()
	s.state = StateUninitialized
	slog.Debug("shell session restarted")
}

// Close terminates the session and releases the process and pipes. Safe to
// call multiple times and on a session that never started.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateTerminated {
		return nil
	}
	s.releaseLocked()
	s.state = StateTerminated
	return nil
}

// releaseLocked frees the process and pipes on every exit path.
func (s *Session) releaseLocked() {
	if s.stdin != nil {
		s.stdin.Close()
		s.stdin = nil
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		// Reap to avoid a zombie; the pipes are closed by Wait.
		go s.cmd.Wait()
	}
	s.cmd = nil
	s.stdout = nil
	s.stderr = nil
}

// truncateMiddle bounds s to max chars, cutting from the middle so both
// the head and the tail of long output survive.
func truncateMiddle(s string, max int) string {
	if len(s) <= max {
		return s
	}
	const marker = "\n... (output truncated) ...\n"
	keep := max - len(marker)
	if keep < 2 {
		return s[:max]
	}
	head := keep / 2
	tail := keep - head
	return s[:head] + marker + s[len(s)-tail:]
}

// drainBuffer continuously drains a pipe into memory so the child process
// never blocks on a full pipe.
type drainBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func newDrainBuffer(r io.Reader) *drainBuffer {
	d := &drainBuffer{}
	go func() {
		chunk := make([]byte, 4096)
		for {
			n, err := r.Read(chunk)
			if n > 0 {
				d.mu.Lock()
				d.buf.Write(chunk[:n])
				d.mu.Unlock()
			}
			if err != nil {
				return
			}
		}
	}()
	return d
}

// Peek returns the buffered content without consuming it.
func (d *drainBuffer) Peek() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buf.String()
}

// Take returns and clears the buffered content.
func (d *drainBuffer) Take() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.buf.String()
	d.buf.Reset()
	return out
}
