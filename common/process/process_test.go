//go:build unix

package process

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunner_NonZeroExitIsNotAnError(t *testing.T) {
	r := NewExecRunner()

	res, err := r.Run(context.Background(), Command{
		Name:    "sh",
		Args:    []string{"-c", "echo out; echo err 1>&2; exit 3"},
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
}

func TestExecRunner_NotFound(t *testing.T) {
	r := NewExecRunner()

	_, err := r.Run(context.Background(), Command{Name: "definitely-not-a-real-tool-7f3a"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExecRunner_AbsolutePathNotFound(t *testing.T) {
	r := NewExecRunner()

	_, err := r.Run(context.Background(), Command{Name: "/nonexistent/bin/gltfpack"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExecRunner_TimeoutKillsProcessGroup(t *testing.T) {
	r := NewExecRunner()

	start := time.Now()
	_, err := r.Run(context.Background(), Command{
		Name:    "sh",
		Args:    []string{"-c", "sleep 30 & sleep 30; wait"},
		Timeout: 200 * time.Millisecond,
	})

	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestExecRunner_ParentCancellation(t *testing.T) {
	r := NewExecRunner()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, Command{Name: "sh", Args: []string{"-c", "sleep 5"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecRunner_CallerDeadlineIsNotCommandTimeout(t *testing.T) {
	r := NewExecRunner()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := r.Run(ctx, Command{
		Name:    "sh",
		Args:    []string{"-c", "sleep 30"},
		Timeout: time.Minute,
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestCommand_String(t *testing.T) {
	c := Command{Name: "gltfpack", Args: []string{"-i", "a.glb", "-o", "b.glb"}}
	assert.Equal(t, "gltfpack -i a.glb -o b.glb", c.String())
}
