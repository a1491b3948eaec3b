package middleware

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/lyzr/glbconvert/common/logger"
)

// RequestContext copies the echo request id into the request context so
// loggers down the stack can pick it up with WithContext.
// Must be registered after echo's RequestID middleware.
func RequestContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Response().Header().Get(echo.HeaderXRequestID)
			if id == "" {
				id = c.Request().Header.Get(echo.HeaderXRequestID)
			}
			if id != "" {
				req := c.Request()
				c.SetRequest(req.WithContext(context.WithValue(req.Context(), logger.RequestIDKey, id)))
			}
			return next(c)
		}
	}
}
