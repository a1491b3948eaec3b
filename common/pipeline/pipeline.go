// Package pipeline composes conversion and compression behind the content cache.
//
// Per request:
//
//	received -> cache_check -> cache_hit -> done
//	                        -> cache_miss -> converting -> converted -> compressing -> done
//	                                                                             -> done_uncompressed
//	                                                                 -> compress_skipped -> done
//	                                      -> convert_failed
//
// Conversion failures are fatal and returned unchanged. Compression failures
// are logged and the uncompressed GLB is returned instead.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/lyzr/glbconvert/common/cas"
	"github.com/lyzr/glbconvert/common/compress"
	"github.com/lyzr/glbconvert/common/convert"
	"github.com/lyzr/glbconvert/common/failure"
	"github.com/lyzr/glbconvert/common/lock"
	"github.com/lyzr/glbconvert/common/logger"
	"github.com/lyzr/glbconvert/common/metrics"
	"github.com/lyzr/glbconvert/common/quality"
)

// Converter is the geometry conversion stage
type Converter interface {
	Convert(ctx context.Context, src, dst string) (*convert.Result, error)
}

// Compressor is the mesh compression stage
type Compressor interface {
	Compress(ctx context.Context, in, out string, level int, params quality.QuantizationParams) (*compress.Result, error)
}

// State is a pipeline state, logged on every transition
type State string

const (
	StateReceived         State = "received"
	StateCacheCheck       State = "cache_check"
	StateCacheHit         State = "cache_hit"
	StateCacheMiss        State = "cache_miss"
	StateConverting       State = "converting"
	StateConverted        State = "converted"
	StateConvertFailed    State = "convert_failed"
	StateCompressing      State = "compressing"
	StateCompressSkipped  State = "compress_skipped"
	StateDone             State = "done"
	StateDoneUncompressed State = "done_uncompressed"
)

// Outcome is the terminal classification of a request
type Outcome string

const (
	OutcomeCacheHit         Outcome = "cache_hit"
	OutcomeConverted        Outcome = "converted"
	OutcomeCompressed       Outcome = "compressed"
	OutcomeCompressFallback Outcome = "compress_fallback"
	OutcomeFailed           Outcome = "failed"
)

// Options are the per-request knobs. They do not take part in the cache key.
type Options struct {
	Quality          string
	Compress         bool
	CompressionLevel int
	Quantization     quality.QuantizationParams
}

// DefaultOptions mirrors the CLI defaults
func DefaultOptions() Options {
	return Options{
		Quality:          string(quality.ProfileMedium),
		Compress:         true,
		CompressionLevel: quality.DefaultLevel,
		Quantization:     quality.DefaultQuantization(),
	}
}

// Result describes the GLB handed back to the caller
type Result struct {
	Key        cas.Key            `json:"digest,omitempty"`
	Path       string             `json:"path"`
	Size       int64              `json:"size"`
	SourceSize int64              `json:"source_size"`
	Tolerances quality.Tolerances `json:"tolerances"`
	Outcome    Outcome            `json:"outcome"`
	CacheHit   bool               `json:"cache_hit"`

	Conversion  *convert.Result  `json:"conversion,omitempty"`
	Compression *compress.Result `json:"compression,omitempty"`
	// CompressionError is set when compression failed and the uncompressed file was returned
	CompressionError error `json:"-"`

	Duration time.Duration `json:"duration"`
}

// Compressed reports whether the returned file went through compression
func (r *Result) Compressed() bool {
	return r.Compression != nil
}

// Opts bundles the pipeline dependencies
type Opts struct {
	Store      *cas.Store
	Converter  Converter
	Compressor Compressor
	Locker     lock.Locker
	Metrics    *metrics.Collector
	Logger     *logger.Logger
}

// Pipeline orchestrates a conversion request
type Pipeline struct {
	store      *cas.Store
	converter  Converter
	compressor Compressor
	locker     lock.Locker
	metrics    *metrics.Collector
	log        *logger.Logger
}

// New creates a pipeline; a nil Locker defaults to an in-process one
func New(opts *Opts) *Pipeline {
	locker := opts.Locker
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	return &Pipeline{
		store:      opts.Store,
		converter:  opts.Converter,
		compressor: opts.Compressor,
		locker:     locker,
		metrics:    opts.Metrics,
		log:        opts.Logger,
	}
}

// Process converts uploaded content through the content cache. Repeat
// content is served from the cache whatever the requested options.
func (p *Pipeline) Process(ctx context.Context, content []byte, opts Options) (*Result, error) {
	start := time.Now()
	log := p.log.WithContext(ctx)

	if len(content) == 0 {
		return nil, failure.Input("uploaded file is empty")
	}
	if p.store == nil {
		return nil, fmt.Errorf("pipeline has no content store")
	}

	key := cas.ComputeKey(content)
	log = log.WithDigest(key.Short())
	p.transition(log, StateReceived, "size_mb", toMB(int64(len(content))))

	p.transition(log, StateCacheCheck)
	if res, ok, err := p.lookup(log, key, opts, start); err != nil || ok {
		return res, err
	}

	unlock, err := p.locker.Lock(ctx, string(key))
	if err != nil {
		return nil, fmt.Errorf("acquire digest lock: %w", err)
	}
	defer unlock()

	// Another request may have produced it while we waited
	if res, ok, err := p.lookup(log, key, opts, start); err != nil || ok {
		return res, err
	}

	p.metrics.CacheLookup(false)
	p.transition(log, StateCacheMiss)

	src, err := p.store.SaveSource(key, content)
	if err != nil {
		return nil, failure.New(failure.KindIO, failure.StageCache, "save upload").WithCause(err)
	}

	staging := p.store.StagingPath(key)
	result, err := p.run(ctx, log, src, staging, opts)
	if err != nil {
		p.store.Discard(staging)
		return nil, err
	}

	entry, err := p.store.Publish(key, staging)
	if err != nil {
		p.store.Discard(staging)
		p.metrics.Outcome(string(OutcomeFailed))
		return nil, failure.New(failure.KindIO, failure.StageCache, "publish output").WithCause(err)
	}

	result.Key = key
	result.Path = entry.Path
	result.Size = entry.Size
	if result.Compression != nil {
		result.Compression.OutputPath = entry.Path
	}
	return p.finish(log, result, start), nil
}

// ConvertFile converts src into dst without caching
func (p *Pipeline) ConvertFile(ctx context.Context, src, dst string, opts Options) (*Result, error) {
	start := time.Now()
	log := p.log.WithContext(ctx).WithFields(map[string]any{"input": src, "output": dst})

	if _, err := os.Stat(src); err != nil {
		return nil, failure.Input("input file not found: %s", src)
	}
	p.transition(log, StateReceived)

	result, err := p.run(ctx, log, src, dst, opts)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(dst)
	if err != nil {
		return nil, failure.New(failure.KindIO, failure.StageConvert, "output missing").WithCause(err)
	}
	result.Path = dst
	result.Size = info.Size()
	return p.finish(log, result, start), nil
}

func (p *Pipeline) lookup(log *logger.Logger, key cas.Key, opts Options, start time.Time) (*Result, bool, error) {
	entry, ok, err := p.store.Lookup(key)
	if err != nil {
		return nil, false, failure.New(failure.KindIO, failure.StageCache, "cache lookup").WithCause(err)
	}
	if !ok {
		return nil, false, nil
	}

	p.metrics.CacheLookup(true)
	p.transition(log, StateCacheHit, "size_mb", toMB(entry.Size))

	result := &Result{
		Key:        key,
		Path:       entry.Path,
		Size:       entry.Size,
		Tolerances: quality.ResolveTolerances(opts.Quality),
		Outcome:    OutcomeCacheHit,
		CacheHit:   true,
	}
	return p.finish(log, result, start), true, nil
}

// run converts src to dst and optionally compresses dst in place
func (p *Pipeline) run(ctx context.Context, log *logger.Logger, src, dst string, opts Options) (*Result, error) {
	tol := quality.ResolveTolerances(opts.Quality)
	log.Info("conversion settings",
		"quality", opts.Quality,
		"tolerance", tol.Linear,
		"angular_tolerance", tol.Angular,
		"compress", opts.Compress,
		"compression_level", opts.CompressionLevel,
	)

	p.transition(log, StateConverting)
	conv, err := p.converter.Convert(ctx, src, dst)
	if err != nil {
		p.transition(log, StateConvertFailed, "kind", failure.KindOf(err), "error", err)
		p.metrics.Outcome(string(OutcomeFailed))
		return nil, err
	}
	p.metrics.StageDuration(string(failure.StageConvert), conv.Duration)
	p.transition(log, StateConverted, "output_mb", toMB(conv.OutputSize), "duration", conv.Duration)

	result := &Result{
		SourceSize: conv.SourceSize,
		Tolerances: tol,
		Outcome:    OutcomeConverted,
		Conversion: conv,
	}

	if !opts.Compress {
		p.transition(log, StateCompressSkipped)
		return result, nil
	}

	p.transition(log, StateCompressing)
	comp, err := p.compressor.Compress(ctx, dst, dst, opts.CompressionLevel, opts.Quantization)
	if err != nil {
		kind := failure.KindOf(err)
		log.Warn("compression failed, returning uncompressed output", "kind", kind, "error", err)
		p.metrics.CompressionFallback(string(kind))
		p.transition(log, StateDoneUncompressed)
		result.Outcome = OutcomeCompressFallback
		result.CompressionError = err
		return result, nil
	}

	p.metrics.StageDuration(string(failure.StageCompress), comp.Duration)
	p.metrics.CompressionRatio(comp.Ratio)
	result.Outcome = OutcomeCompressed
	result.Compression = comp
	return result, nil
}

func (p *Pipeline) finish(log *logger.Logger, result *Result, start time.Time) *Result {
	result.Duration = time.Since(start)
	p.metrics.Outcome(string(result.Outcome))
	p.metrics.OutputSize(result.Size)
	p.transition(log, StateDone,
		"outcome", result.Outcome,
		"final_mb", toMB(result.Size),
		"total", result.Duration,
	)
	return result
}

func (p *Pipeline) transition(log *logger.Logger, state State, args ...any) {
	log.Debug("pipeline state", append([]any{"state", state}, args...)...)
}

func toMB(size int64) float64 {
	return float64(size) / (1024 * 1024)
}
