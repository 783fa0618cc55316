package handlers

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/infinimail-threads/internal/api/response"
	"github.com/welldanyogia/infinimail-threads/internal/repository"
	"github.com/welldanyogia/infinimail-threads/internal/services"
)

// WebhookHandler accepts inbound mail from delivery webhooks. It runs on
// the constrained path: it holds only the message store, files each message
// under its deterministic thread id and leaves thread records to the
// deferred resolver.
type WebhookHandler struct {
	ingestor *services.MessageIngestor
	logger   *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(messages repository.MessageRepository, notifier services.Notifier, logger *slog.Logger) *WebhookHandler {
	logger = loggerOrDefault(logger)
	return &WebhookHandler{
		ingestor: services.NewDeferredIngestor(messages, notifier, logger),
		logger:   logger,
	}
}

// Inbound handles POST /api/webhooks/inbound
func (h *WebhookHandler) Inbound(c echo.Context) error {
	criteria, err := bindCriteria(c)
	if err != nil {
		return response.Error(c, err)
	}

	result, err := h.ingestor.Ingest(c.Request().Context(), criteria)
	if err != nil {
		return fail(c, h.logger, err, "inbound message left unfiled")
	}

	return response.Accepted(c, result)
}
