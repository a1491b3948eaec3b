package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/lyzr/glbconvert/common/process"
	"github.com/lyzr/glbconvert/common/process/processtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	stepFile = []byte("ISO-10303-21;\nHEADER;\nFILE_NAME('shaft.step');\nENDSEC;\nEND-ISO-10303-21;\n")
	glbFile  = append([]byte("glTF\x02\x00\x00\x00"), bytes.Repeat([]byte{0x17}, 1992)...)
)

type cliResult struct {
	stdout string
	stderr string
	err    error
}

func newRunner() *processtest.Runner {
	return processtest.NewRunner().
		Handle("python3", processtest.WriteLastArg(glbFile)).
		Handle("gltfpack", processtest.Shrink(0.25))
}

func runCLI(t *testing.T, runner process.Runner, args ...string) cliResult {
	t.Helper()
	t.Setenv("SCRATCH_DIR", t.TempDir())
	t.Setenv("TOOLS_AUTO_INSTALL", "false")

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(newApp(&stdout, &stderr, runner))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func writeInput(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	in := filepath.Join(dir, "shaft.step")
	require.NoError(t, os.WriteFile(in, stepFile, 0o644))
	return in, filepath.Join(dir, "shaft.glb")
}

func packArgs(r *processtest.Runner) []string {
	for _, c := range r.Calls() {
		if c.Name == "gltfpack" && len(c.Args) > 0 {
			return c.Args
		}
	}
	return nil
}

func TestConvert_CompressesInPlace(t *testing.T) {
	runner := newRunner()
	in, out := writeInput(t)

	res := runCLI(t, runner, "convert", in, out)
	require.NoError(t, res.err, res.stderr)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, glbFile[:500], got)

	assert.Contains(t, res.stdout, "Reduction:")
	assert.Contains(t, res.stdout, "75.0%")
	assert.Contains(t, packArgs(runner), "-cc", "default level 10 selects advanced mode")
}

func TestRootPositionalForm(t *testing.T) {
	runner := newRunner()
	in, out := writeInput(t)

	res := runCLI(t, runner, in, out, "--no-compress")
	require.NoError(t, res.err, res.stderr)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, glbFile, got)
	assert.Equal(t, 0, runner.CallsTo("gltfpack"))
	assert.NotContains(t, res.stdout, "Reduction:")
}

func TestConvert_OutOfRangeLevelFallsBackTo10(t *testing.T) {
	runner := newRunner()
	in, out := writeInput(t)

	res := runCLI(t, runner, "convert", in, out, "--compression-level=15")
	require.NoError(t, res.err)

	assert.Contains(t, res.stderr, "Warning: compression_level should be between 0 and 10, using default 10")
	assert.Contains(t, packArgs(runner), "-cc")
}

func TestConvert_UnparseableLevelWarns(t *testing.T) {
	runner := newRunner()
	in, out := writeInput(t)

	res := runCLI(t, runner, "convert", in, out, "--compression-level=max")
	require.NoError(t, res.err)
	assert.Contains(t, res.stderr, "Warning: invalid compression_level value")
}

func TestConvert_LowLevelUsesStandardMode(t *testing.T) {
	runner := newRunner()
	in, out := writeInput(t)

	res := runCLI(t, runner, "convert", in, out, "--compression-level=5")
	require.NoError(t, res.err)

	args := packArgs(runner)
	assert.Contains(t, args, "-c")
	assert.NotContains(t, args, "-cc")
	assert.NotContains(t, res.stderr, "Warning:")
}

func TestConvert_MissingInput(t *testing.T) {
	runner := newRunner()
	dir := t.TempDir()

	res := runCLI(t, runner, "convert", filepath.Join(dir, "nope.step"), filepath.Join(dir, "nope.glb"))
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "input file not found")
	assert.Equal(t, 0, runner.CallsTo("python3"))
}

func TestConvert_WrongArgCount(t *testing.T) {
	in, _ := writeInput(t)

	res := runCLI(t, newRunner())
	require.Error(t, res.err)
	assert.Contains(t, res.stderr, "Usage:")

	assert.Error(t, runCLI(t, newRunner(), "convert", in).err)
	assert.Error(t, runCLI(t, newRunner(), in).err)
	assert.Error(t, runCLI(t, newRunner(), in, "a.glb", "b.glb").err)
}

func TestConvert_ConversionFailureExitsNonZero(t *testing.T) {
	runner := newRunner().Handle("python3", processtest.Exit(1, "RuntimeError: unsupported STEP schema"))
	in, out := writeInput(t)

	res := runCLI(t, runner, "convert", in, out)
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "unsupported STEP schema")
	assert.NoFileExists(t, out)
}

func TestConvert_CompressionFailureOnlyWarns(t *testing.T) {
	runner := newRunner().Handle("gltfpack", func(ctx context.Context, cmd process.Command) (*process.Result, error) {
		if len(cmd.Args) == 0 {
			return &process.Result{ExitCode: 1}, nil
		}
		return &process.Result{ExitCode: 2, Stderr: "Error loading shaft.glb: file is not a glTF"}, nil
	})
	in, out := writeInput(t)

	res := runCLI(t, runner, "convert", in, out)
	require.NoError(t, res.err)
	assert.Contains(t, res.stderr, "Warning: compression failed")

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, glbFile, got, "uncompressed output is kept")
}

func TestConvert_JSONOutput(t *testing.T) {
	runner := newRunner()
	in, out := writeInput(t)

	res := runCLI(t, runner, "-o", "json", "convert", in, out)
	require.NoError(t, res.err)

	var summary convertSummary
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &summary))
	assert.Equal(t, "compressed", summary.Outcome)
	assert.True(t, summary.Compressed)
	assert.Equal(t, "advanced", summary.CompressionMode)
	assert.InDelta(t, 75.0, summary.RatioPercent, 0.001)
}

func TestConvert_YAMLOutput(t *testing.T) {
	runner := newRunner()
	in, out := writeInput(t)

	res := runCLI(t, runner, "-o", "yaml", "convert", in, out, "--no-compress")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "outcome: converted")
	assert.Contains(t, res.stdout, "compressed: false")
}

func TestUnsupportedOutputFormat(t *testing.T) {
	in, out := writeInput(t)
	assert.Error(t, runCLI(t, newRunner(), "-o", "xml", "convert", in, out).err)
}
