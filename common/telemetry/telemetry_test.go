package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lyzr/glbconvert/common/logger"
	"github.com/lyzr/glbconvert/common/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("glbconvert", reg)
	collector.Outcome("compressed")

	tel := New(Options{EnableMetrics: true, MetricsPort: 0}, reg, logger.Nop())

	rec := httptest.NewRecorder()
	tel.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `glbconvert_conversions_total{outcome="compressed"} 1`)
}

func TestStartStop_Disabled(t *testing.T) {
	tel := New(Options{}, prometheus.NewRegistry(), logger.Nop())

	require.NoError(t, tel.Start(context.Background()))
	assert.Empty(t, tel.servers)
	assert.NoError(t, tel.Stop(context.Background()))
}
