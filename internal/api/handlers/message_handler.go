package handlers

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/infinimail-threads/internal/api/middleware"
	"github.com/welldanyogia/infinimail-threads/internal/api/response"
	"github.com/welldanyogia/infinimail-threads/internal/services"
)

// MessageHandler handles message-related HTTP requests
type MessageHandler struct {
	ingestor services.Ingestor
	threads  services.ThreadService
	logger   *slog.Logger
}

// NewMessageHandler creates a new MessageHandler
func NewMessageHandler(ingestor services.Ingestor, threads services.ThreadService, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{
		ingestor: ingestor,
		threads:  threads,
		logger:   loggerOrDefault(logger),
	}
}

// Create handles POST /api/messages. A redelivered message returns the
// stored copy with 200 instead of 201.
func (h *MessageHandler) Create(c echo.Context) error {
	criteria, err := bindCriteria(c)
	if err != nil {
		return response.Error(c, err)
	}

	result, err := h.ingestor.Ingest(c.Request().Context(), criteria)
	if err != nil {
		return fail(c, h.logger, err, "message left unfiled")
	}

	if result.Duplicate {
		return response.Success(c, result)
	}
	return response.Created(c, result)
}

// MarkAsRead handles PATCH /api/messages/:id/read
func (h *MessageHandler) MarkAsRead(c echo.Context) error {
	if err := h.threads.MarkMessageAsRead(c.Request().Context(), middleware.OrganizationID(c), c.Param("id")); err != nil {
		return fail(c, h.logger, err, "failed to mark message as read")
	}
	return response.NoContent(c)
}
