package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lyzr/glbconvert/common/ratelimit"
)

// ClientLimiter is the subset of ratelimit.RateLimiter used here
type ClientLimiter interface {
	CheckClientLimit(ctx context.Context, client string, limit int64, windowSec int) (*ratelimit.RateLimitResult, error)
}

// ClientRateLimit bounds requests per client IP. Conversions are CPU heavy,
// so it is applied to the upload route only. Limiter errors fail open.
func ClientRateLimit(limiter ClientLimiter, limit int64, window time.Duration) echo.MiddlewareFunc {
	windowSec := int(window / time.Second)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			result, err := limiter.CheckClientLimit(c.Request().Context(), c.RealIP(), limit, windowSec)
			if err != nil {
				return next(c)
			}

			if !result.Allowed {
				c.Response().Header().Set("Retry-After", strconv.FormatInt(result.RetryAfterSeconds, 10))
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error": "Too many conversion requests. Please try again later.",
					"details": map[string]interface{}{
						"limit":               result.Limit,
						"window_seconds":      windowSec,
						"retry_after_seconds": result.RetryAfterSeconds,
					},
				})
			}

			return next(c)
		}
	}
}
