package handlers

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/infinimail-threads/internal/api/middleware"
	"github.com/welldanyogia/infinimail-threads/internal/api/response"
	"github.com/welldanyogia/infinimail-threads/internal/models"
	"github.com/welldanyogia/infinimail-threads/internal/repository"
	"github.com/welldanyogia/infinimail-threads/internal/validator"
)

// DomainHandler manages the receiving domains of an organization. The SMTP
// host routes mail for a domain to the organization that owns it.
type DomainHandler struct {
	repo   repository.DomainRepository
	logger *slog.Logger
}

// NewDomainHandler creates a new DomainHandler
func NewDomainHandler(repo repository.DomainRepository, logger *slog.Logger) *DomainHandler {
	return &DomainHandler{repo: repo, logger: loggerOrDefault(logger)}
}

// CreateDomainRequest is the body of POST /api/domains. Domains are active
// unless is_active is false.
type CreateDomainRequest struct {
	Name     string `json:"name"`
	IsActive *bool  `json:"is_active,omitempty"`
}

// Create handles POST /api/domains. Names are stored lowercase, matching
// how RCPT domains are looked up.
func (h *DomainHandler) Create(c echo.Context) error {
	var req CreateDomainRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	name := strings.ToLower(strings.TrimSpace(req.Name))
	if name == "" {
		return response.BadRequest(c, "name is required")
	}
	if err := validator.ValidateDomain(name); err != nil {
		return response.Error(c, err)
	}

	domain := &models.Domain{
		Name:           name,
		OrganizationID: middleware.OrganizationID(c),
		IsActive:       req.IsActive == nil || *req.IsActive,
	}
	if err := h.repo.Create(c.Request().Context(), domain); err != nil {
		return fail(c, h.logger, err, "failed to create domain")
	}
	return response.Created(c, domain)
}

// List handles GET /api/domains
func (h *DomainHandler) List(c echo.Context) error {
	activeOnly := c.QueryParam("active_only") == "true"

	domains, err := h.repo.List(c.Request().Context(), middleware.OrganizationID(c), activeOnly)
	if err != nil {
		return fail(c, h.logger, err, "failed to list domains")
	}
	return response.Success(c, domains)
}

// Delete handles DELETE /api/domains/:id. Another organization's domain
// reads as not found.
func (h *DomainHandler) Delete(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "invalid domain ID")
	}

	if err := h.repo.Delete(c.Request().Context(), middleware.OrganizationID(c), uint(id)); err != nil {
		return fail(c, h.logger, err, "failed to delete domain")
	}
	return response.NoContent(c)
}
