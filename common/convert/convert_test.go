package convert

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lyzr/glbconvert/common/failure"
	"github.com/lyzr/glbconvert/common/logger"
	"github.com/lyzr/glbconvert/common/process"
	"github.com/lyzr/glbconvert/common/process/processtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine writes payload to the last argument, like "<bin> <src> <dst>"
func fakeEngine(payload []byte) processtest.HandlerFunc {
	return func(ctx context.Context, cmd process.Command) (*process.Result, error) {
		dst := cmd.Args[len(cmd.Args)-1]
		if err := os.WriteFile(dst, payload, 0o644); err != nil {
			return nil, err
		}
		return &process.Result{ExitCode: 0, Duration: 250 * time.Millisecond}, nil
	}
}

func writeSource(t *testing.T) string {
	t.Helper()
	src := filepath.Join(t.TempDir(), "part.step")
	require.NoError(t, os.WriteFile(src, []byte("ISO-10303-21;\nHEADER;\nENDSEC;\n"), 0o644))
	return src
}

func TestConvert_Success(t *testing.T) {
	runner := processtest.NewRunner().Handle("step2glb", fakeEngine([]byte("glTF-binary")))
	c := New(runner, Options{Bin: "step2glb", Timeout: time.Minute}, logger.Nop())

	src := writeSource(t)
	dst := filepath.Join(t.TempDir(), "part.glb")

	res, err := c.Convert(context.Background(), src, dst)
	require.NoError(t, err)

	assert.Equal(t, int64(len("glTF-binary")), res.OutputSize)
	assert.Equal(t, dst, res.OutputPath)
	assert.Greater(t, res.ThroughputMBps(), 0.0)

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{src, dst}, calls[0].Args)
	assert.Equal(t, time.Minute, calls[0].Timeout)
}

func TestConvert_ArgumentTemplate(t *testing.T) {
	runner := processtest.NewRunner().Handle("python3", fakeEngine([]byte("glb")))
	c := New(runner, Options{Bin: "python3", Args: []string{"-c", "script", "{input}", "{output}"}}, logger.Nop())

	src := writeSource(t)
	dst := filepath.Join(t.TempDir(), "out.glb")

	_, err := c.Convert(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, []string{"-c", "script", src, dst}, runner.Calls()[0].Args)
}

func TestConvert_EngineFailure(t *testing.T) {
	runner := processtest.NewRunner().Handle("step2glb",
		processtest.Exit(1, "Traceback...\nValueError: STEP file contains no shapes"))
	c := New(runner, Options{Bin: "step2glb"}, logger.Nop())

	src := writeSource(t)
	before, err := os.ReadFile(src)
	require.NoError(t, err)

	_, err = c.Convert(context.Background(), src, filepath.Join(t.TempDir(), "out.glb"))
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.KindEngine))
	assert.Equal(t, failure.StageConvert, failure.StageOf(err))
	assert.Contains(t, err.Error(), "no shapes")

	after, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, before, after, "source must not be modified")
}

func TestConvert_EmptyOutput(t *testing.T) {
	runner := processtest.NewRunner().Handle("step2glb", fakeEngine(nil))
	c := New(runner, Options{Bin: "step2glb"}, logger.Nop())

	dst := filepath.Join(t.TempDir(), "out.glb")
	_, err := c.Convert(context.Background(), writeSource(t), dst)
	assert.True(t, failure.Is(err, failure.KindEngine))
	assert.NoFileExists(t, dst)
}

func TestConvert_Timeout(t *testing.T) {
	runner := processtest.NewRunner().Handle("step2glb", processtest.Timeout())
	c := New(runner, Options{Bin: "step2glb", Timeout: time.Second}, logger.Nop())

	_, err := c.Convert(context.Background(), writeSource(t), filepath.Join(t.TempDir(), "out.glb"))
	assert.True(t, failure.Is(err, failure.KindTimeout))
}

func TestConvert_EngineMissing(t *testing.T) {
	c := New(processtest.NewRunner(), Options{Bin: "step2glb"}, logger.Nop())

	_, err := c.Convert(context.Background(), writeSource(t), filepath.Join(t.TempDir(), "out.glb"))
	assert.True(t, failure.Is(err, failure.KindToolMissing))
}

func TestConvert_MissingSource(t *testing.T) {
	runner := processtest.NewRunner()
	c := New(runner, Options{Bin: "step2glb"}, logger.Nop())

	_, err := c.Convert(context.Background(), "/nonexistent/part.step", filepath.Join(t.TempDir(), "out.glb"))
	assert.True(t, failure.Is(err, failure.KindInput))
	assert.Empty(t, runner.Calls())
}
