package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/lyzr/glbconvert/cmd/converter/container"
)

// HealthHandler serves liveness and readiness
type HealthHandler struct {
	c *container.Container
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(c *container.Container) *HealthHandler {
	return &HealthHandler{c: c}
}

// Health is a liveness check
// GET /health
func (h *HealthHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"service": h.c.Components.Config.Service.Name,
	})
}

// Ready reports whether conversions can run. A missing compressor only
// degrades the service.
// GET /ready
func (h *HealthHandler) Ready(c echo.Context) error {
	ctx := c.Request().Context()
	report := h.c.ReadinessReport(ctx)

	resp := map[string]interface{}{
		"ready":    report.Ready,
		"degraded": report.Degraded,
		"tools":    report.Tools,
	}

	status := http.StatusOK
	if !report.Ready {
		status = http.StatusServiceUnavailable
	}
	if err := h.c.Components.Health(ctx); err != nil {
		resp["ready"] = false
		resp["dependencies"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	return c.JSON(status, resp)
}
