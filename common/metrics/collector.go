// Package metrics exposes Prometheus collectors for the conversion pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds pipeline metrics. A nil *Collector is valid and records nothing.
type Collector struct {
	requests          *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec
	stageDuration     *prometheus.HistogramVec
	compressionRatio  prometheus.Histogram
	compressFallbacks *prometheus.CounterVec
	outputBytes       prometheus.Histogram
	toolPresent       *prometheus.GaugeVec
}

// NewCollector registers collectors on reg under namespace
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "conversions_total",
				Help:      "Conversion requests by outcome",
			},
			[]string{"outcome"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Content cache lookups by result",
			},
			[]string{"result"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "External engine duration per stage",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"stage"},
		),
		compressionRatio: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "compression_ratio_percent",
				Help:      "Size reduction achieved by mesh compression",
				Buckets:   prometheus.LinearBuckets(0, 10, 11),
			},
		),
		compressFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compression_fallbacks_total",
				Help:      "Requests served uncompressed because compression failed",
			},
			[]string{"kind"},
		),
		outputBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "output_size_bytes",
				Help:      "Size of served GLB files",
				Buckets:   prometheus.ExponentialBuckets(64*1024, 4, 10),
			},
		),
		toolPresent: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tool_present",
				Help:      "1 when the external tool was found on the last probe",
			},
			[]string{"tool"},
		),
	}
}

// Outcome records the terminal state of a request
func (c *Collector) Outcome(outcome string) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(outcome).Inc()
}

// CacheLookup records a hit or miss
func (c *Collector) CacheLookup(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

// StageDuration records how long an engine stage ran
func (c *Collector) StageDuration(stage string, d time.Duration) {
	if c == nil {
		return
	}
	c.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// CompressionRatio records a successful compression
func (c *Collector) CompressionRatio(ratio float64) {
	if c == nil {
		return
	}
	c.compressionRatio.Observe(ratio)
}

// CompressionFallback records a degraded response
func (c *Collector) CompressionFallback(kind string) {
	if c == nil {
		return
	}
	c.compressFallbacks.WithLabelValues(kind).Inc()
}

// OutputSize records the served artifact size
func (c *Collector) OutputSize(size int64) {
	if c == nil {
		return
	}
	c.outputBytes.Observe(float64(size))
}

// ToolPresent records a probe result
func (c *Collector) ToolPresent(tool string, present bool) {
	if c == nil {
		return
	}
	v := 0.0
	if present {
		v = 1
	}
	c.toolPresent.WithLabelValues(tool).Set(v)
}
