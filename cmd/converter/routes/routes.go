package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/lyzr/glbconvert/cmd/converter/container"
	"github.com/lyzr/glbconvert/cmd/converter/handlers"
	"github.com/lyzr/glbconvert/cmd/converter/middleware"
)

// RegisterHealthRoutes registers liveness and readiness probes
func RegisterHealthRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewHealthHandler(c)

	e.GET("/health", h.Health)
	e.GET("/ready", h.Ready)
}

// RegisterConversionRoutes registers the upload endpoint and record lookups
func RegisterConversionRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewConversionHandler(c)

	var mw []echo.MiddlewareFunc
	if c.RateLimiter != nil {
		rl := c.Components.Config.RateLimit
		mw = append(mw, middleware.ClientRateLimit(c.RateLimiter, int64(rl.ConvertPerWindow), rl.Window))
	}

	e.POST("/convert", h.Convert, mw...) // POST /convert (multipart: file, quality, compress, compression_level)

	conversions := e.Group("/api/v1/conversions")
	{
		conversions.GET("/:digest", h.GetConversion) // GET /api/v1/conversions/{sha256}
	}
}
