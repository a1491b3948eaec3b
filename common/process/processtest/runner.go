// Package processtest provides a scriptable process.Runner for tests.
package processtest

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/lyzr/glbconvert/common/process"
)

// HandlerFunc simulates one executable
type HandlerFunc func(ctx context.Context, cmd process.Command) (*process.Result, error)

// Runner dispatches commands to handlers by executable name.
// Unregistered executables behave as if they were not installed.
type Runner struct {
	mu       sync.Mutex
	handlers map[string]HandlerFunc
	calls    []process.Command
}

// NewRunner creates an empty runner
func NewRunner() *Runner {
	return &Runner{handlers: make(map[string]HandlerFunc)}
}

// Handle registers fn for the executable name
func (r *Runner) Handle(name string, fn HandlerFunc) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = fn
	return r
}

// Remove unregisters name so it looks uninstalled again
func (r *Runner) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, name)
}

// Run implements process.Runner
func (r *Runner) Run(ctx context.Context, cmd process.Command) (*process.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	fn, ok := r.handlers[cmd.Name]
	r.mu.Unlock()

	if !ok {
		return &process.Result{ExitCode: -1}, process.ErrNotFound
	}
	return fn(ctx, cmd)
}

// Calls returns every command run so far
func (r *Runner) Calls() []process.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]process.Command, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallsTo counts invocations of name
func (r *Runner) CallsTo(name string) int {
	n := 0
	for _, c := range r.Calls() {
		if c.Name == name {
			n++
		}
	}
	return n
}

// Exit returns a handler that exits with code and stderr
func Exit(code int, stderr string) HandlerFunc {
	return func(ctx context.Context, cmd process.Command) (*process.Result, error) {
		return &process.Result{ExitCode: code, Stderr: stderr}, nil
	}
}

// Timeout returns a handler that simulates an expired bound
func Timeout() HandlerFunc {
	return func(ctx context.Context, cmd process.Command) (*process.Result, error) {
		return &process.Result{ExitCode: -1}, process.ErrTimeout
	}
}

// ArgAfter returns the argument following flag, or ""
func ArgAfter(cmd process.Command, flag string) string {
	for i := 0; i < len(cmd.Args)-1; i++ {
		if cmd.Args[i] == flag {
			return cmd.Args[i+1]
		}
	}
	return ""
}

// WriteLastArg simulates a converter: it writes data to the final argument
func WriteLastArg(data []byte) HandlerFunc {
	return func(ctx context.Context, cmd process.Command) (*process.Result, error) {
		if len(cmd.Args) == 0 {
			return &process.Result{ExitCode: 1, Stderr: "usage: convert <input> <output>"}, nil
		}
		if err := os.WriteFile(cmd.Args[len(cmd.Args)-1], data, 0o644); err != nil {
			return nil, err
		}
		return &process.Result{ExitCode: 0, Duration: 250 * time.Millisecond}, nil
	}
}

// Shrink simulates gltfpack: with no arguments it prints usage and exits 1
// like the real binary, otherwise it writes the leading fraction of -i to -o
func Shrink(fraction float64) HandlerFunc {
	return func(ctx context.Context, cmd process.Command) (*process.Result, error) {
		if len(cmd.Args) == 0 {
			return &process.Result{ExitCode: 1, Stderr: "Usage: gltfpack [options] -i input -o output"}, nil
		}
		data, err := os.ReadFile(ArgAfter(cmd, "-i"))
		if err != nil {
			return &process.Result{ExitCode: 1, Stderr: err.Error()}, nil
		}
		n := int(float64(len(data)) * fraction)
		if err := os.WriteFile(ArgAfter(cmd, "-o"), data[:n], 0o644); err != nil {
			return nil, err
		}
		return &process.Result{ExitCode: 0, Duration: 100 * time.Millisecond}, nil
	}
}
