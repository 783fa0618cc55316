package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/welldanyogia/infinimail-threads/internal/logger"
)

func newTenantEcho(security *logger.SecurityLogger) *echo.Echo {
	e := echo.New()
	e.Use(Tenant(security))
	e.GET("/api/threads", func(c echo.Context) error {
		return c.String(http.StatusOK, OrganizationID(c))
	})
	return e
}

func TestTenant_StoresOrganizationFromHeader(t *testing.T) {
	e := newTenantEcho(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/threads", nil)
	req.Header.Set(OrganizationHeader, "acme")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acme", rec.Body.String())
}

func TestTenant_AcceptsQueryParameter(t *testing.T) {
	e := newTenantEcho(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/threads?organization_id=acme", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acme", rec.Body.String())
}

func TestTenant_MissingOrganization(t *testing.T) {
	e := newTenantEcho(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/threads", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "MISSING_ORGANIZATION")
}

func TestTenant_InvalidOrganization(t *testing.T) {
	e := newTenantEcho(nil)

	for _, orgID := range []string{"-leading-dash", "has space", "org/../etc"} {
		t.Run(orgID, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/threads", nil)
			req.Header.Set(OrganizationHeader, orgID)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "INVALID_INPUT")
		})
	}
}

func TestTenant_RejectsMismatchedQuery(t *testing.T) {
	var buf bytes.Buffer
	security := logger.NewSecurityLoggerFrom(logger.NewWithWriter(&buf, "debug"))
	e := newTenantEcho(security)

	req := httptest.NewRequest(http.MethodGet, "/api/threads?organization_id=globex", nil)
	req.Header.Set(OrganizationHeader, "acme")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, buf.String(), "globex")
}

func TestOrganizationID_EmptyWithoutMiddleware(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	assert.Empty(t, OrganizationID(c))
}
