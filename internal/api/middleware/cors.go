package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// DefaultAllowedOrigin is used when no origins are configured
const DefaultAllowedOrigin = "http://localhost:3000"

// ParseOrigins splits a comma separated ALLOWED_ORIGINS value. Wildcards are
// dropped in production.
func ParseOrigins(allowedOrigins, appEnv string) []string {
	if strings.TrimSpace(allowedOrigins) == "" {
		return []string{DefaultAllowedOrigin}
	}

	origins := make([]string, 0)
	for _, origin := range strings.Split(allowedOrigins, ",") {
		origin = strings.TrimSpace(origin)
		if origin == "" || (appEnv == "production" && origin == "*") {
			continue
		}
		origins = append(origins, origin)
	}
	if len(origins) == 0 {
		origins = []string{DefaultAllowedOrigin}
	}
	return origins
}

// SecureCORS returns CORS middleware restricted to origins
func SecureCORS(origins []string) echo.MiddlewareFunc {
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     origins,
		AllowMethods:     []string{echo.GET, echo.POST, echo.PUT, echo.PATCH, echo.DELETE, echo.OPTIONS},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, OrganizationHeader},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
