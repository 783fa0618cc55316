package handlers

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/infinimail-threads/internal/api/middleware"
	"github.com/welldanyogia/infinimail-threads/internal/api/response"
	apperrors "github.com/welldanyogia/infinimail-threads/internal/errors"
	"github.com/welldanyogia/infinimail-threads/internal/models"
	"github.com/welldanyogia/infinimail-threads/internal/repository"
	"github.com/welldanyogia/infinimail-threads/internal/services"
	"github.com/welldanyogia/infinimail-threads/internal/threading"
	"github.com/welldanyogia/infinimail-threads/internal/validator"
)

// ThreadHandler handles thread-related HTTP requests
type ThreadHandler struct {
	threads    services.ThreadService
	lookup     services.ThreadLookup
	reconciler services.Reconciler
	logger     *slog.Logger
}

// NewThreadHandler creates a new ThreadHandler
func NewThreadHandler(threads services.ThreadService, lookup services.ThreadLookup, reconciler services.Reconciler, logger *slog.Logger) *ThreadHandler {
	return &ThreadHandler{
		threads:    threads,
		lookup:     lookup,
		reconciler: reconciler,
		logger:     loggerOrDefault(logger),
	}
}

// StatusRequest is the body of PATCH /api/threads/:id/status
type StatusRequest struct {
	Status string `json:"status"`
}

// PriorityRequest is the body of PATCH /api/threads/:id/priority
type PriorityRequest struct {
	Priority string `json:"priority"`
}

// AssignmentRequest is the body of PUT /api/threads/:id/assignment. An empty
// AssignedTo unassigns the thread.
type AssignmentRequest struct {
	AssignedTo string `json:"assigned_to"`
	AssignedBy string `json:"assigned_by"`
}

// bindCriteria reads matching criteria from the body and scopes them to the
// request's organization
func bindCriteria(c echo.Context) (threading.Criteria, error) {
	var criteria threading.Criteria
	if err := c.Bind(&criteria); err != nil {
		return criteria, apperrors.NewAppError(apperrors.ErrInvalidInput, "invalid request body", apperrors.CodeInvalidInput)
	}

	orgID := middleware.OrganizationID(c)
	if criteria.OrganizationID != "" && criteria.OrganizationID != orgID {
		return criteria, apperrors.NewAppError(apperrors.ErrForbidden, "organizationId does not match "+middleware.OrganizationHeader, apperrors.CodeForbidden)
	}
	criteria.OrganizationID = orgID

	if err := validator.ValidateMessageID(criteria.MessageID); err != nil {
		return criteria, apperrors.InvalidCriteria("messageId", err.Error())
	}
	// an absent sender is reported by the matcher
	if criteria.From.Email != "" {
		if err := validator.ValidateEmail(criteria.From.Email); err != nil {
			return criteria, apperrors.InvalidCriteria("from", err.Error())
		}
	}
	for _, p := range criteria.To {
		if err := validator.ValidateEmail(p.Email); err != nil {
			return criteria, apperrors.InvalidCriteria("to", err.Error())
		}
	}
	return criteria, nil
}

// Match handles POST /api/threads/match. It reports where the message would
// be filed and changes nothing; POST /api/messages files it.
func (h *ThreadHandler) Match(c echo.Context) error {
	criteria, err := bindCriteria(c)
	if err != nil {
		return response.Error(c, err)
	}

	result, err := h.lookup.LookupThread(c.Request().Context(), criteria)
	if err != nil {
		return fail(c, h.logger, err, "thread match failed")
	}
	return response.Success(c, result)
}

// List handles GET /api/threads
func (h *ThreadHandler) List(c echo.Context) error {
	limit, offset := pagination(c)
	filter := repository.ThreadFilter{
		Status:     c.QueryParam("status"),
		AssignedTo: c.QueryParam("assigned_to"),
		UnreadOnly: c.QueryParam("unread") == "true",
	}

	threads, total, err := h.threads.ListThreads(c.Request().Context(), middleware.OrganizationID(c), filter, limit, offset)
	if err != nil {
		return fail(c, h.logger, err, "failed to list threads")
	}

	return response.Paginated(c, threads, total, limit, offset)
}

// Get handles GET /api/threads/:id
func (h *ThreadHandler) Get(c echo.Context) error {
	thread, err := h.threads.GetThread(c.Request().Context(), middleware.OrganizationID(c), c.Param("id"))
	if err != nil {
		return fail(c, h.logger, err, "failed to get thread")
	}
	return response.Success(c, thread)
}

// Messages handles GET /api/threads/:id/messages
func (h *ThreadHandler) Messages(c echo.Context) error {
	limit, offset := pagination(c)

	messages, total, err := h.threads.ListMessages(c.Request().Context(), middleware.OrganizationID(c), c.Param("id"), limit, offset)
	if err != nil {
		return fail(c, h.logger, err, "failed to list thread messages")
	}

	return response.Paginated(c, messages, total, limit, offset)
}

// MarkAsRead handles PATCH /api/threads/:id/read
func (h *ThreadHandler) MarkAsRead(c echo.Context) error {
	if err := h.threads.MarkThreadAsRead(c.Request().Context(), middleware.OrganizationID(c), c.Param("id")); err != nil {
		return fail(c, h.logger, err, "failed to mark thread as read")
	}
	return response.NoContent(c)
}

// UpdateAnalysis handles PUT /api/threads/:id/analysis
func (h *ThreadHandler) UpdateAnalysis(c echo.Context) error {
	var analysis models.ThreadAnalysis
	if err := c.Bind(&analysis); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	stored, err := h.threads.UpdateThreadAnalysis(c.Request().Context(), middleware.OrganizationID(c), c.Param("id"), analysis)
	if err != nil {
		return fail(c, h.logger, err, "failed to update thread analysis")
	}
	return response.Success(c, stored)
}

// UpdateStatus handles PATCH /api/threads/:id/status
func (h *ThreadHandler) UpdateStatus(c echo.Context) error {
	var req StatusRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}
	if req.Status == "" {
		return response.BadRequest(c, "status is required")
	}

	if err := h.threads.UpdateStatus(c.Request().Context(), middleware.OrganizationID(c), c.Param("id"), req.Status); err != nil {
		return fail(c, h.logger, err, "failed to update thread status")
	}
	return response.NoContent(c)
}

// UpdatePriority handles PATCH /api/threads/:id/priority
func (h *ThreadHandler) UpdatePriority(c echo.Context) error {
	var req PriorityRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}
	if req.Priority == "" {
		return response.BadRequest(c, "priority is required")
	}

	if err := h.threads.UpdatePriority(c.Request().Context(), middleware.OrganizationID(c), c.Param("id"), req.Priority); err != nil {
		return fail(c, h.logger, err, "failed to update thread priority")
	}
	return response.NoContent(c)
}

// Assign handles PUT /api/threads/:id/assignment
func (h *ThreadHandler) Assign(c echo.Context) error {
	var req AssignmentRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	assignee := validator.SanitizeString(req.AssignedTo, 128)
	assignedBy := validator.SanitizeString(req.AssignedBy, 128)
	if assignedBy == "" {
		return response.BadRequest(c, "assigned_by is required")
	}

	thread, err := h.threads.AssignThread(c.Request().Context(), middleware.OrganizationID(c), c.Param("id"), assignee, assignedBy)
	if err != nil {
		return fail(c, h.logger, err, "failed to assign thread")
	}
	return response.Success(c, thread)
}

// Assignments handles GET /api/threads/:id/assignments
func (h *ThreadHandler) Assignments(c echo.Context) error {
	history, err := h.threads.AssignmentHistory(c.Request().Context(), middleware.OrganizationID(c), c.Param("id"))
	if err != nil {
		return fail(c, h.logger, err, "failed to load assignment history")
	}
	return response.Success(c, history)
}

// Resolve handles POST /api/threads/resolve
func (h *ThreadHandler) Resolve(c echo.Context) error {
	orgID := middleware.OrganizationID(c)

	created, err := h.reconciler.ResolveDeferredThreads(c.Request().Context(), orgID)
	if err != nil {
		return fail(c, h.logger, err, "deferred thread resolution failed")
	}

	h.logger.Info("deferred threads resolved",
		slog.String("organization_id", orgID),
		slog.Int("created", created))
	return response.Success(c, map[string]int{"threads_created": created})
}

// Workload handles GET /api/workload. With ?user_id= it returns that
// user's open thread count instead of the per-assignee breakdown.
func (h *ThreadHandler) Workload(c echo.Context) error {
	orgID := middleware.OrganizationID(c)

	if userID := c.QueryParam("user_id"); userID != "" {
		count, err := h.threads.AssignedThreadsCount(c.Request().Context(), orgID, userID)
		if err != nil {
			return fail(c, h.logger, err, "failed to count assigned threads")
		}
		return response.Success(c, map[string]interface{}{"user_id": userID, "open_threads": count})
	}

	stats, err := h.threads.WorkloadStats(c.Request().Context(), orgID)
	if err != nil {
		return fail(c, h.logger, err, "failed to load workload stats")
	}
	return response.Success(c, stats)
}
