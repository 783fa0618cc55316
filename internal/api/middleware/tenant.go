package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	apperrors "github.com/welldanyogia/infinimail-threads/internal/errors"
	"github.com/welldanyogia/infinimail-threads/internal/logger"
	"github.com/welldanyogia/infinimail-threads/internal/validator"
)

// OrganizationHeader carries the tenant of every API request
const OrganizationHeader = "X-Organization-ID"

const organizationKey = "organization_id"

// Tenant requires a valid organization id on the request and stores it on
// the context. Websocket upgrades may pass it as ?organization_id= since
// browsers cannot set headers on them; when both are present they must
// agree.
func Tenant(security *logger.SecurityLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := strings.TrimSpace(c.Request().Header.Get(OrganizationHeader))
			query := strings.TrimSpace(c.QueryParam(organizationKey))

			orgID := header
			if orgID == "" {
				orgID = query
			}
			if orgID == "" {
				return echo.NewHTTPError(http.StatusBadRequest, map[string]string{
					"error": "missing " + OrganizationHeader + " header",
					"code":  apperrors.CodeMissingOrganization,
				})
			}

			if header != "" && query != "" && header != query {
				security.TenantMismatch(c.RealIP(), c.Path(), query, "query does not match header")
				return echo.NewHTTPError(http.StatusForbidden, map[string]string{
					"error": "organization mismatch",
					"code":  apperrors.CodeForbidden,
				})
			}

			if err := validator.ValidateOrganizationID(orgID); err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, map[string]string{
					"error": err.Error(),
					"code":  apperrors.CodeInvalidInput,
				})
			}

			c.Set(organizationKey, orgID)
			return next(c)
		}
	}
}

// OrganizationID returns the tenant stored by Tenant, or ""
func OrganizationID(c echo.Context) string {
	orgID, _ := c.Get(organizationKey).(string)
	return orgID
}
