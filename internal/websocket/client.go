package websocket

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	// must stay below pongWait so a live peer never times out
	pingPeriod = pongWait * 9 / 10

	// control frames are tiny JSON objects
	maxMessageSize = 512
	sendBuffer     = 256
)

// Client is one websocket connection scoped to an organization. With no
// subscriptions it receives every thread event of the organization; after a
// subscribe it receives only the subscribed threads.
type Client struct {
	hub            *Hub
	conn           *websocket.Conn
	organizationID string
	send           chan []byte
	// guarded by hub.mu
	threads map[string]bool
	logger  *slog.Logger
}

// NewClient creates a client. Run WritePump and ReadPump after registering
// it with the hub.
func NewClient(hub *Hub, conn *websocket.Conn, organizationID string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		hub:            hub,
		conn:           conn,
		organizationID: organizationID,
		send:           make(chan []byte, sendBuffer),
		threads:        make(map[string]bool),
		logger:         logger.With(slog.String("organization_id", organizationID)),
	}
}

// wants reports whether an event for threadID should reach the client.
// Callers hold hub.mu.
func (c *Client) wants(threadID string) bool {
	return len(c.threads) == 0 || c.threads[threadID]
}

// ReadPump reads control messages until the peer goes away, then
// unregisters the client.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	extend := func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
	c.conn.SetReadLimit(maxMessageSize)
	_ = extend("")
	c.conn.SetPongHandler(extend)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket closed unexpectedly", slog.Any("error", err))
			}
			return
		}
		c.handleMessage(data)
	}
}

// WritePump drains the send queue to the connection and keeps it alive
// with pings. It returns when the hub closes the queue or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, payload []byte) error {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return c.conn.WriteMessage(kind, payload)
	}

	for {
		select {
		case payload, open := <-c.send:
			if !open {
				_ = write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := write(websocket.TextMessage, payload); err != nil {
				c.logger.Debug("websocket write failed", slog.Any("error", err))
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage applies a subscribe or unsubscribe and acknowledges it
func (c *Client) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply(WSMessage{Type: MessageTypeError, Error: "invalid message format"})
		return
	}

	var ack MessageType
	switch msg.Type {
	case MessageTypeSubscribe:
		ack = MessageTypeSubscribed
	case MessageTypeUnsubscribe:
		ack = MessageTypeUnsubscribed
	default:
		c.reply(WSMessage{Type: MessageTypeError, Error: "unknown message type"})
		return
	}
	if msg.ThreadID == "" {
		c.reply(WSMessage{Type: MessageTypeError, Error: "thread_id is required"})
		return
	}

	if msg.Type == MessageTypeSubscribe {
		c.hub.Subscribe(c, msg.ThreadID)
	} else {
		c.hub.Unsubscribe(c, msg.ThreadID)
	}
	c.reply(WSMessage{Type: ack, ThreadID: msg.ThreadID})
}

// reply queues msg for the client. It is dropped when the queue is full.
func (c *Client) reply(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
