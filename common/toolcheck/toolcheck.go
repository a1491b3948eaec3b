// Package toolcheck probes for the external engines and provisions the compressor.
//
// Presence is never cached: every call re-probes, so an administrator can
// install or remove a tool while the service is running.
package toolcheck

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/lyzr/glbconvert/common/config"
	"github.com/lyzr/glbconvert/common/failure"
	"github.com/lyzr/glbconvert/common/logger"
	"github.com/lyzr/glbconvert/common/process"
)

// CompressorPackage is the npm package providing the compressor
const CompressorPackage = "gltfpack"

// Options configures a Checker
type Options struct {
	ConverterBin   string
	CompressorBin  string
	InstallerBin   string
	NodeBin        string
	ProbeTimeout   time.Duration
	InstallTimeout time.Duration
	AutoInstall    bool
}

// OptionsFromConfig derives checker options from the tools config
func OptionsFromConfig(cfg config.ToolsConfig) Options {
	return Options{
		ConverterBin:   cfg.ConverterBin,
		CompressorBin:  cfg.CompressorBin,
		InstallerBin:   cfg.InstallerBin,
		NodeBin:        cfg.NodeBin,
		ProbeTimeout:   cfg.ProbeTimeout,
		InstallTimeout: cfg.InstallTimeout,
		AutoInstall:    cfg.AutoInstall,
	}
}

// Checker probes and installs external tools
type Checker struct {
	runner process.Runner
	opts   Options
	log    *logger.Logger

	installMu sync.Mutex
}

// New creates a checker
func New(runner process.Runner, opts Options, log *logger.Logger) *Checker {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 3 * time.Second
	}
	if opts.InstallTimeout <= 0 {
		opts.InstallTimeout = 120 * time.Second
	}
	return &Checker{
		runner: runner,
		opts:   opts,
		log:    log,
	}
}

// Probe reports whether name can be started. The tool is run with no
// arguments because not every CLI understands --version; any exit code, or a
// hang past the probe timeout, counts as present.
func (c *Checker) Probe(ctx context.Context, name string) bool {
	_, err := c.runner.Run(ctx, process.Command{
		Name:    name,
		Timeout: c.opts.ProbeTimeout,
	})
	switch {
	case err == nil:
		return true
	case errors.Is(err, process.ErrTimeout):
		c.log.Debug("tool probe hung, treating as present", "tool", name)
		return true
	case errors.Is(err, process.ErrNotFound):
		return false
	default:
		c.log.Debug("tool probe failed", "tool", name, "error", err)
		return false
	}
}

// InstallCompressor installs the compressor globally through npm
func (c *Checker) InstallCompressor(ctx context.Context) error {
	c.installMu.Lock()
	defer c.installMu.Unlock()

	// Another request may have finished installing while we waited
	if c.Probe(ctx, c.opts.CompressorBin) {
		return nil
	}

	c.log.Info("installing compressor", "package", CompressorPackage, "installer", c.opts.InstallerBin)

	res, err := c.runner.Run(ctx, process.Command{
		Name:    c.opts.InstallerBin,
		Args:    []string{"install", "-g", CompressorPackage},
		Timeout: c.opts.InstallTimeout,
	})
	if err != nil {
		kind := failure.KindToolMissing
		if errors.Is(err, process.ErrTimeout) {
			kind = failure.KindTimeout
		}
		return failure.New(kind, failure.StageCompress, "compressor install could not run").WithCause(err)
	}
	if res.ExitCode != 0 {
		return failure.New(failure.KindToolMissing, failure.StageCompress, "compressor install failed").
			WithDetail(strings.TrimSpace(res.Stderr))
	}

	c.log.Info("compressor installed", "package", CompressorPackage, "duration", res.Duration)
	return nil
}

// EnsureCompressor verifies the compressor is present, installing it once
// when auto-install is enabled
func (c *Checker) EnsureCompressor(ctx context.Context) error {
	if c.Probe(ctx, c.opts.CompressorBin) {
		return nil
	}

	c.log.Warn("compressor not found", "tool", c.opts.CompressorBin)

	if !c.opts.AutoInstall {
		return failure.New(failure.KindToolMissing, failure.StageCompress,
			c.opts.CompressorBin+" is not installed; run: npm install -g "+CompressorPackage)
	}

	if !c.Probe(ctx, c.opts.NodeBin) {
		return failure.New(failure.KindToolMissing, failure.StageCompress,
			"Node.js is not installed; it is required to install "+CompressorPackage)
	}

	if err := c.InstallCompressor(ctx); err != nil {
		c.log.Warn("compressor install failed", "error", err)
		return failure.New(failure.KindToolMissing, failure.StageCompress,
			c.opts.CompressorBin+" is unavailable and could not be installed").WithCause(err)
	}

	if !c.Probe(ctx, c.opts.CompressorBin) {
		return failure.New(failure.KindToolMissing, failure.StageCompress,
			c.opts.CompressorBin+" still not found after install; check the npm global bin is on PATH")
	}
	return nil
}

// Status is the presence of one tool at CheckedAt
type Status struct {
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Present   bool      `json:"present"`
	Required  bool      `json:"required"`
	CheckedAt time.Time `json:"checked_at"`
}

// Report summarizes tool readiness
type Report struct {
	Tools []Status `json:"tools"`
	// Ready is false when a required tool is missing
	Ready bool `json:"ready"`
	// Degraded is true when only optional tools are missing
	Degraded bool `json:"degraded"`
}

// Report probes every tool once
func (c *Checker) Report(ctx context.Context) Report {
	tools := []Status{
		{Name: c.opts.ConverterBin, Role: "converter", Required: true},
		{Name: c.opts.CompressorBin, Role: "compressor"},
		{Name: c.opts.NodeBin, Role: "node"},
	}

	report := Report{Ready: true}
	for i := range tools {
		tools[i].Present = c.Probe(ctx, tools[i].Name)
		tools[i].CheckedAt = time.Now()
		if tools[i].Present {
			continue
		}
		if tools[i].Required {
			report.Ready = false
		} else {
			report.Degraded = true
		}
	}
	report.Tools = tools
	return report
}
