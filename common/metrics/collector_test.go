package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("glbconvert", reg)

	c.Outcome("compressed")
	c.Outcome("compressed")
	c.Outcome("cache_hit")
	c.CacheLookup(true)
	c.CacheLookup(false)
	c.CompressionFallback("tool_missing")
	c.StageDuration("convert", 2*time.Second)
	c.CompressionRatio(70)
	c.OutputSize(1 << 20)
	c.ToolPresent("gltfpack", true)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.requests.WithLabelValues("compressed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("cache_hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.compressFallbacks.WithLabelValues("tool_missing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.toolPresent.WithLabelValues("gltfpack")))

	n, err := testutil.GatherAndCount(reg, "glbconvert_stage_duration_seconds")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.Outcome("failed")
		c.CacheLookup(false)
		c.StageDuration("compress", time.Second)
		c.CompressionRatio(10)
		c.CompressionFallback("engine")
		c.OutputSize(1)
		c.ToolPresent("gltfpack", false)
	})
}
