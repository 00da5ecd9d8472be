// Package runner executes the fixed diagnostic commands (sensors, df, top)
// and classifies their failures.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds every subprocess when no timeout is configured.
	DefaultTimeout = 5 * time.Second
	// DefaultMaxOutputBytes caps each of stdout and stderr.
	DefaultMaxOutputBytes = 1 << 20
)

var (
	// ErrNotFound means the executable is not on PATH.
	ErrNotFound = errors.New("command not found")
	// ErrTimeout means the command did not finish before its deadline.
	ErrTimeout = errors.New("command timed out")
)

// Command is a fixed command line taken from configuration.
type Command struct {
	Name string
	Args []string
	// AllowStderr accepts output written to stderr by a command that
	// exits 0. By default such output fails the run.
	AllowStderr bool
}

// String returns the command line joined by spaces.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// ExitError reports a non-zero exit status.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: exit status %d", e.Command, e.Code)
}

// StderrError reports a command that exited 0 but wrote to stderr.
type StderrError struct {
	Command string
	Stderr  string
}

func (e *StderrError) Error() string {
	return fmt.Sprintf("%s: unexpected stderr output", e.Command)
}

// Runner runs a Command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, cmd Command) (string, error)
}

// Exec runs commands as child processes.
type Exec struct {
	Timeout        time.Duration
	MaxOutputBytes int
}

// Run starts cmd, waits at most e.Timeout for it and returns stdout.
func (e *Exec) Run(ctx context.Context, cmd Command) (string, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	limit := e.MaxOutputBytes
	if limit <= 0 {
		limit = DefaultMaxOutputBytes
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := exec.CommandContext(cmdCtx, cmd.Name, cmd.Args...)
	stdout := &limitedBuffer{max: limit}
	stderr := &limitedBuffer{max: limit}
	c.Stdout = stdout
	c.Stderr = stderr
	// Grandchildren holding the pipes open must not outlive the deadline.
	c.WaitDelay = time.Second

	err := c.Run()
	line := cmd.String()
	switch {
	case err == nil:
	case errors.Is(err, exec.ErrNotFound):
		return "", fmt.Errorf("%s: %w", line, ErrNotFound)
	case errors.Is(cmdCtx.Err(), context.DeadlineExceeded):
		return "", fmt.Errorf("%s after %s: %w", line, timeout, ErrTimeout)
	case ctx.Err() != nil:
		return "", fmt.Errorf("%s: %w", line, ctx.Err())
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &ExitError{Command: line, Code: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return "", fmt.Errorf("running %s: %w", line, err)
	}

	if !cmd.AllowStderr && strings.TrimSpace(stderr.String()) != "" {
		return "", &StderrError{Command: line, Stderr: stderr.String()}
	}
	return stdout.String(), nil
}

// limitedBuffer keeps the first max bytes written and discards the rest,
// so a runaway command cannot exhaust memory.
type limitedBuffer struct {
	buf bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if remaining := b.max - b.buf.Len(); remaining > 0 {
		if len(p) > remaining {
			b.buf.Write(p[:remaining])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return b.buf.String()
}
