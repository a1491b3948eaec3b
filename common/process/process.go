// Package process runs external engines with a bounded lifetime.
//
// A nonzero exit status is reported through Result.ExitCode, not as an error:
// callers decide what an exit code means. Errors are reserved for "could not
// run at all" (ErrNotFound), "ran too long" (ErrTimeout) and cancellation.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
	"time"
)

var (
	// ErrNotFound means the executable could not be located
	ErrNotFound = errors.New("executable not found")
	// ErrTimeout means the process exceeded Command.Timeout and was killed
	ErrTimeout = errors.New("process timed out")

	errCommandTimeout = errors.New("command timeout")
)

// Command describes one invocation
type Command struct {
	Name    string
	Args    []string
	Dir     string
	Timeout time.Duration
}

// String renders the command line for logs
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result captures the outcome of a process that started
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Runner starts external processes
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner runs commands with os/exec. On timeout the whole process group is
// killed so engines that fork helpers do not leave orphans behind.
type ExecRunner struct {
	// WaitDelay bounds how long Run waits for output pipes after the kill
	WaitDelay time.Duration
}

// NewExecRunner creates a runner with default settings
func NewExecRunner() *ExecRunner {
	return &ExecRunner{WaitDelay: 2 * time.Second}
}

// Run executes c and waits for it to exit or time out
func (r *ExecRunner) Run(ctx context.Context, c Command) (*Result, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, c.Timeout, errCommandTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.WaitDelay = r.WaitDelay
	configureProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	result := &Result{
		ExitCode: -1,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err == nil {
		return result, nil
	}

	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return result, fmt.Errorf("%w: %s", ErrNotFound, c.Name)
	}

	// only this command's own bound counts as a timeout; a caller deadline
	// is reported as the caller's context error
	if errors.Is(context.Cause(ctx), errCommandTimeout) {
		return result, fmt.Errorf("%w after %s: %s", ErrTimeout, c.Timeout, c.Name)
	}
	if ctx.Err() != nil {
		return result, ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return result, nil
	}

	// Exited cleanly but a grandchild kept the pipes open past WaitDelay
	if errors.Is(err, exec.ErrWaitDelay) && result.ExitCode == 0 {
		return result, nil
	}

	return result, fmt.Errorf("run %s: %w", c.Name, err)
}
