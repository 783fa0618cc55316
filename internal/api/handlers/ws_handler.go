package handlers

import (
	"log/slog"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/infinimail-threads/internal/api/middleware"
	"github.com/welldanyogia/infinimail-threads/internal/websocket"
)

// WebSocketHandler upgrades connections and attaches them to the hub
type WebSocketHandler struct {
	hub      *websocket.Hub
	upgrader gorillaws.Upgrader
	logger   *slog.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler
func NewWebSocketHandler(hub *websocket.Hub, upgrader gorillaws.Upgrader, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, upgrader: upgrader, logger: loggerOrDefault(logger)}
}

// Connect handles GET /ws?organization_id=
func (h *WebSocketHandler) Connect(c echo.Context) error {
	orgID := middleware.OrganizationID(c)

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written the error response
		h.logger.Warn("websocket upgrade failed",
			slog.String("organization_id", orgID),
			slog.Any("error", err))
		return nil
	}

	client := websocket.NewClient(h.hub, conn, orgID, h.logger)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
	return nil
}
