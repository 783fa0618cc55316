// Package middleware provides HTTP middleware for the threading API.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	apperrors "github.com/welldanyogia/infinimail-threads/internal/errors"
	"github.com/welldanyogia/infinimail-threads/internal/logger"
)

func unauthorized(msg string) error {
	return echo.NewHTTPError(http.StatusUnauthorized, map[string]string{
		"error": msg,
		"code":  apperrors.CodeUnauthorized,
	})
}

// APIKeyAuth requires the shared API key in the Authorization header, with
// or without a "Bearer " prefix. Keys are compared in constant time. An
// empty apiKey disables the check. Mount it only on routes that need it;
// health checks stay outside.
func APIKeyAuth(apiKey string, security *logger.SecurityLogger) echo.MiddlewareFunc {
	if apiKey == "" {
		security.Logger().Warn("API_KEY not set - API is UNSECURED")
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	want := []byte(apiKey)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				security.AuthFailure(c.RealIP(), c.Path(), "missing_header")
				return unauthorized("missing authorization header")
			}

			token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			if subtle.ConstantTimeCompare([]byte(token), want) != 1 {
				security.AuthFailure(c.RealIP(), c.Path(), "invalid_key")
				return unauthorized("invalid API key")
			}
			return next(c)
		}
	}
}
