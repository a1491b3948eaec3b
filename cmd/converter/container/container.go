package container

import (
	"context"
	"fmt"

	"github.com/lyzr/glbconvert/cmd/converter/service"
	"github.com/lyzr/glbconvert/common/bootstrap"
	"github.com/lyzr/glbconvert/common/cas"
	"github.com/lyzr/glbconvert/common/compress"
	"github.com/lyzr/glbconvert/common/convert"
	"github.com/lyzr/glbconvert/common/lock"
	"github.com/lyzr/glbconvert/common/pipeline"
	"github.com/lyzr/glbconvert/common/process"
	"github.com/lyzr/glbconvert/common/ratelimit"
	"github.com/lyzr/glbconvert/common/records"
	"github.com/lyzr/glbconvert/common/repository"
	"github.com/lyzr/glbconvert/common/toolcheck"
)

// Container holds all initialized services (singleton pattern)
type Container struct {
	// Components
	Components *bootstrap.Components
	Runner     process.Runner

	// Stages
	Tools      *toolcheck.Checker
	Converter  *convert.Converter
	Compressor *compress.Compressor

	// Storage
	Store      *cas.Store
	Locker     lock.Locker
	RecordRepo *repository.ConversionRecordRepository

	// RateLimiter is nil unless Redis is enabled and a limit is configured
	RateLimiter *ratelimit.RateLimiter

	// Services
	Pipeline          *pipeline.Pipeline
	Records           *records.Service
	ConversionService *service.ConversionService
}

// NewContainer wires the service against real external engines
func NewContainer(components *bootstrap.Components) (*Container, error) {
	return New(components, process.NewExecRunner())
}

// New wires the service on top of runner
func New(components *bootstrap.Components, runner process.Runner) (*Container, error) {
	cfg := components.Config
	log := components.Logger

	store, err := cas.NewStore(cfg.Storage.UploadDir, cfg.Storage.OutputDir, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize content store: %w", err)
	}

	tools := toolcheck.New(runner, toolcheck.OptionsFromConfig(cfg.Tools), log)
	converter := convert.New(runner, convert.OptionsFromConfig(cfg.Tools), log)
	compressor := compress.New(runner, tools, compress.OptionsFromConfig(cfg), log)

	var locker lock.Locker = lock.NewLocalLocker()
	var limiter *ratelimit.RateLimiter
	if components.Redis != nil {
		locker = lock.NewRedisLocker(components.Redis.GetUnderlying(), cfg.Redis.LockTTL, log)
		if cfg.RateLimit.ConvertPerWindow > 0 {
			limiter = ratelimit.NewRateLimiter(components.Redis.GetUnderlying(), log)
		}
	} else if cfg.RateLimit.ConvertPerWindow > 0 {
		log.Warn("CONVERT_RATE_LIMIT requires Redis; rate limiting disabled")
	}

	var recordRepo *repository.ConversionRecordRepository
	var recordStore records.Store
	if components.DB != nil {
		recordRepo = repository.NewConversionRecordRepository(components.DB)
		recordStore = recordRepo
	}
	recordService := records.New(recordStore, components.Cache, cfg.Cache.DefaultTTL, log)

	p := pipeline.New(&pipeline.Opts{
		Store:      store,
		Converter:  converter,
		Compressor: compressor,
		Locker:     locker,
		Metrics:    components.Metrics,
		Logger:     log,
	})

	return &Container{
		Components:        components,
		Runner:            runner,
		Tools:             tools,
		Converter:         converter,
		Compressor:        compressor,
		Store:             store,
		Locker:            locker,
		RecordRepo:        recordRepo,
		RateLimiter:       limiter,
		Pipeline:          p,
		Records:           recordService,
		ConversionService: service.NewConversionService(p, recordService, log),
	}, nil
}

// Provision reports tool readiness and installs the compressor ahead of
// the first request when auto-install is enabled
func (c *Container) Provision(ctx context.Context) toolcheck.Report {
	log := c.Components.Logger
	report := c.ReadinessReport(ctx)

	for _, t := range report.Tools {
		if t.Present {
			continue
		}
		if t.Required {
			log.Warn("required tool missing; conversions will fail", "tool", t.Name, "role", t.Role)
		}
	}

	if !c.Components.Config.Tools.AutoInstall {
		return report
	}
	if err := c.Tools.EnsureCompressor(ctx); err != nil {
		log.Warn("compressor unavailable; outputs will be uncompressed", "error", err)
		return report
	}
	return c.ReadinessReport(ctx)
}

// ReadinessReport probes every tool and publishes presence metrics
func (c *Container) ReadinessReport(ctx context.Context) toolcheck.Report {
	report := c.Tools.Report(ctx)
	for _, t := range report.Tools {
		c.Components.Metrics.ToolPresent(t.Role, t.Present)
	}
	return report
}
