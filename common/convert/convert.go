// Package convert wraps the external STEP to GLB geometry engine.
package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lyzr/glbconvert/common/config"
	"github.com/lyzr/glbconvert/common/failure"
	"github.com/lyzr/glbconvert/common/logger"
	"github.com/lyzr/glbconvert/common/process"
)

const (
	inputPlaceholder  = "{input}"
	outputPlaceholder = "{output}"
)

// Options configures the engine invocation
type Options struct {
	Bin     string
	Args    []string // template; {input} and {output} are substituted
	Timeout time.Duration
}

// OptionsFromConfig derives converter options from the tools config
func OptionsFromConfig(cfg config.ToolsConfig) Options {
	return Options{
		Bin:     cfg.ConverterBin,
		Args:    cfg.ConverterArgs,
		Timeout: cfg.ConvertTimeout,
	}
}

// Result describes a successful conversion
type Result struct {
	SourcePath string        `json:"source_path"`
	OutputPath string        `json:"output_path"`
	SourceSize int64         `json:"source_size"`
	OutputSize int64         `json:"output_size"`
	Duration   time.Duration `json:"duration"`
}

// ThroughputMBps is source megabytes converted per second
func (r *Result) ThroughputMBps() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.SourceSize) / (1024 * 1024) / r.Duration.Seconds()
}

// Converter runs the geometry engine. Embedded colors and materials are
// preserved by the engine itself.
type Converter struct {
	runner process.Runner
	opts   Options
	log    *logger.Logger
}

// New creates a converter
func New(runner process.Runner, opts Options, log *logger.Logger) *Converter {
	if len(opts.Args) == 0 {
		opts.Args = []string{inputPlaceholder, outputPlaceholder}
	}
	return &Converter{
		runner: runner,
		opts:   opts,
		log:    log,
	}
}

// Convert turns the CAD file at src into a GLB at dst. src is never modified.
// There is no retry: any failure is terminal for the request.
func (c *Converter) Convert(ctx context.Context, src, dst string) (*Result, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, failure.New(failure.KindInput, failure.StageConvert, "source file not readable").WithCause(err)
	}

	cmd := process.Command{
		Name:    c.opts.Bin,
		Args:    c.args(src, dst),
		Timeout: c.opts.Timeout,
	}

	c.log.Info("converting", "source", src, "output", dst, "source_mb", toMB(info.Size()))

	res, err := c.runner.Run(ctx, cmd)
	if err != nil {
		removePartial(dst, c.log)
		switch {
		case errors.Is(err, process.ErrNotFound):
			return nil, failure.New(failure.KindToolMissing, failure.StageConvert, "conversion engine not found").WithCause(err)
		case errors.Is(err, process.ErrTimeout):
			return nil, failure.New(failure.KindTimeout, failure.StageConvert,
				fmt.Sprintf("conversion exceeded %s", c.opts.Timeout)).WithCause(err)
		default:
			return nil, failure.New(failure.KindEngine, failure.StageConvert, "conversion engine could not run").WithCause(err)
		}
	}

	if res.ExitCode != 0 {
		removePartial(dst, c.log)
		return nil, failure.New(failure.KindEngine, failure.StageConvert,
			fmt.Sprintf("conversion engine exited with status %d", res.ExitCode)).
			WithDetail(engineMessage(res))
	}

	out, err := os.Stat(dst)
	if err != nil || out.Size() == 0 {
		removePartial(dst, c.log)
		return nil, failure.New(failure.KindEngine, failure.StageConvert, "conversion engine produced no output").
			WithDetail(engineMessage(res)).WithCause(err)
	}

	result := &Result{
		SourcePath: src,
		OutputPath: dst,
		SourceSize: info.Size(),
		OutputSize: out.Size(),
		Duration:   res.Duration,
	}

	c.log.Info("conversion complete",
		"output_mb", toMB(result.OutputSize),
		"duration", result.Duration,
		"throughput_mbps", result.ThroughputMBps(),
	)
	return result, nil
}

func (c *Converter) args(src, dst string) []string {
	args := make([]string, len(c.opts.Args))
	for i, a := range c.opts.Args {
		a = strings.ReplaceAll(a, inputPlaceholder, src)
		args[i] = strings.ReplaceAll(a, outputPlaceholder, dst)
	}
	return args
}

// engineMessage prefers stderr; Python tracebacks end with the useful line
func engineMessage(res *process.Result) string {
	msg := strings.TrimSpace(res.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(res.Stdout)
	}
	return msg
}

func removePartial(path string, log *logger.Logger) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("failed to remove partial output", "path", path, "error", err)
	}
}

func toMB(size int64) float64 {
	return float64(size) / (1024 * 1024)
}
