package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// RequestLogger logs one line per request. Server errors log at error
// level, client errors at warn.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			if err := next(c); err != nil {
				// let echo write the status before it is logged
				c.Error(err)
			}

			req := c.Request()
			status := c.Response().Status

			attrs := []slog.Attr{
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int("status", status),
				slog.Duration("latency", time.Since(start)),
				slog.String("remote_ip", c.RealIP()),
			}
			if orgID := OrganizationID(c); orgID != "" {
				attrs = append(attrs, slog.String("organization_id", orgID))
			}
			logger.LogAttrs(req.Context(), levelFor(status), "request", attrs...)

			return nil
		}
	}
}

func levelFor(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// Recover turns a handler panic into a 500 and logs it with its stack
func Recover(logger *slog.Logger) echo.MiddlewareFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.LogAttrs(context.Background(), slog.LevelError, "panic recovered",
				slog.String("path", c.Request().URL.Path),
				slog.String("error", err.Error()),
				slog.String("stack", string(stack)),
			)
			return err
		},
	})
}
