// Package compress runs gltfpack over a GLB file.
//
// Compressing in place (input == output) never lets the engine read and
// write the same file: it writes into a scratch file that is swapped over
// the original only after the engine succeeded.
package compress

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lyzr/glbconvert/common/config"
	"github.com/lyzr/glbconvert/common/failure"
	"github.com/lyzr/glbconvert/common/logger"
	"github.com/lyzr/glbconvert/common/process"
	"github.com/lyzr/glbconvert/common/quality"
)

// Provisioner makes sure the compression engine can be started
type Provisioner interface {
	EnsureCompressor(ctx context.Context) error
}

// Options configures the compressor
type Options struct {
	Bin                string
	ScratchDir         string
	Timeout            time.Duration
	TextureCompression bool
}

// OptionsFromConfig derives compressor options from config
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Bin:                cfg.Tools.CompressorBin,
		ScratchDir:         cfg.Storage.ScratchDir,
		Timeout:            cfg.Tools.CompressTimeout,
		TextureCompression: true,
	}
}

// Result reports one compression pass
type Result struct {
	OutputPath     string        `json:"output_path"`
	OriginalSize   int64         `json:"original_size"`
	CompressedSize int64         `json:"compressed_size"`
	Ratio          float64       `json:"ratio"` // percentage reduction
	Level          int           `json:"level"`
	Mode           quality.Mode  `json:"mode"`
	InPlace        bool          `json:"in_place"`
	Duration       time.Duration `json:"duration"`
}

// SavedBytes is how much smaller the output is
func (r *Result) SavedBytes() int64 {
	return r.OriginalSize - r.CompressedSize
}

// Ratio returns the percentage reduction from original to compressed
func Ratio(originalSize, compressedSize int64) float64 {
	if originalSize <= 0 {
		return 0
	}
	return (1 - float64(compressedSize)/float64(originalSize)) * 100
}

// Compressor invokes the external mesh compression engine
type Compressor struct {
	runner      process.Runner
	provisioner Provisioner
	opts        Options
	log         *logger.Logger
}

// New creates a compressor
func New(runner process.Runner, provisioner Provisioner, opts Options, log *logger.Logger) *Compressor {
	if opts.Bin == "" {
		opts.Bin = "gltfpack"
	}
	if opts.ScratchDir == "" {
		opts.ScratchDir = os.TempDir()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 300 * time.Second
	}
	return &Compressor{
		runner:      runner,
		provisioner: provisioner,
		opts:        opts,
		log:         log,
	}
}

// Compress writes a Draco-compressed copy of in to out. in and out may be the
// same path. On any failure the file at in (and at out when they are equal)
// is left exactly as it was.
func (c *Compressor) Compress(ctx context.Context, in, out string, level int, params quality.QuantizationParams) (*Result, error) {
	info, err := os.Stat(in)
	if err != nil {
		return nil, failure.New(failure.KindIO, failure.StageCompress, "input not readable").WithCause(err)
	}
	originalSize := info.Size()

	if err := c.provisioner.EnsureCompressor(ctx); err != nil {
		return nil, err
	}

	var cleanup cleanupList
	defer cleanup.run(c.log)

	inPlace := samePath(in, out)
	target := out
	if inPlace {
		target = filepath.Join(c.opts.ScratchDir, "glbpack-"+uuid.NewString()+".glb")
		cleanup.add(target)
	}

	// a pre-existing out is not ours to remove on failure
	removePartial := func() {}
	if !inPlace {
		if _, err := os.Lstat(out); errors.Is(err, os.ErrNotExist) {
			removePartial = func() { cleanup.add(out) }
		}
	}

	mode := quality.ResolveMode(level)
	args := []string{"-i", in, "-o", target, mode.Flag()}
	if c.opts.TextureCompression {
		args = append(args, "-tc")
	}
	args = append(args, params.Args()...)

	cmd := process.Command{Name: c.opts.Bin, Args: args, Timeout: c.opts.Timeout}
	c.log.Info("compressing",
		"input", in,
		"original_mb", toMB(originalSize),
		"level", level,
		"mode", mode,
		"in_place", inPlace,
		"command", cmd.String(),
	)

	res, err := c.runner.Run(ctx, cmd)
	if err != nil {
		removePartial()
		switch {
		case errors.Is(err, process.ErrTimeout):
			return nil, failure.New(failure.KindTimeout, failure.StageCompress,
				fmt.Sprintf("gltfpack exceeded %s", c.opts.Timeout)).WithCause(err)
		case errors.Is(err, process.ErrNotFound):
			return nil, failure.New(failure.KindToolMissing, failure.StageCompress, "gltfpack not found").WithCause(err)
		default:
			return nil, failure.New(failure.KindEngine, failure.StageCompress, "gltfpack could not run").WithCause(err)
		}
	}

	if res.ExitCode != 0 {
		removePartial()
		return nil, failure.New(failure.KindEngine, failure.StageCompress,
			fmt.Sprintf("gltfpack exited with status %d", res.ExitCode)).
			WithDetail(strings.TrimSpace(res.Stderr))
	}

	if st, err := os.Stat(target); err != nil || st.Size() == 0 {
		removePartial()
		return nil, failure.New(failure.KindEngine, failure.StageCompress, "gltfpack produced no output").WithCause(err)
	}

	if inPlace {
		if err := replaceFile(target, out); err != nil {
			return nil, err
		}
	}

	st, err := os.Stat(out)
	if err != nil {
		return nil, failure.New(failure.KindIO, failure.StageCompress, "compressed output missing").WithCause(err)
	}

	result := &Result{
		OutputPath:     out,
		OriginalSize:   originalSize,
		CompressedSize: st.Size(),
		Ratio:          Ratio(originalSize, st.Size()),
		Level:          level,
		Mode:           mode,
		InPlace:        inPlace,
		Duration:       res.Duration,
	}

	c.log.Info("compression complete",
		"compressed_mb", toMB(result.CompressedSize),
		"ratio_pct", fmt.Sprintf("%.1f", result.Ratio),
		"saved_mb", toMB(result.SavedBytes()),
		"duration", result.Duration,
	)
	return result, nil
}

func samePath(a, b string) bool {
	if filepath.Clean(a) == filepath.Clean(b) {
		return true
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}

func toMB(size int64) float64 {
	return float64(size) / (1024 * 1024)
}
