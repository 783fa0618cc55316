package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/welldanyogia/infinimail-threads/internal/models"
	"github.com/welldanyogia/infinimail-threads/internal/threading"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeSubscribe      MessageType = "subscribe"
	MessageTypeUnsubscribe    MessageType = "unsubscribe"
	MessageTypeSubscribed     MessageType = "subscribed"
	MessageTypeUnsubscribed   MessageType = "unsubscribed"
	MessageTypeThreadActivity MessageType = "thread_activity"
	MessageTypeError          MessageType = "error"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type     MessageType  `json:"type"`
	ThreadID string       `json:"thread_id,omitempty"`
	Event    *ThreadEvent `json:"event,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// ThreadEvent tells clients that a message was filed into a thread
type ThreadEvent struct {
	OrganizationID string `json:"organization_id"`
	ThreadID       string `json:"thread_id"`
	MessageID      string `json:"message_id"`
	Subject        string `json:"subject,omitempty"`
	SenderEmail    string `json:"sender_email"`
	SenderName     string `json:"sender_name,omitempty"`
	Strategy       string `json:"strategy"`
	Confidence     int    `json:"confidence"`
	IsNewThread    bool   `json:"is_new_thread"`
	ReceivedAt     string `json:"received_at"`
}

// Hub fans thread events out to the clients of each organization. A client
// only ever sees its own organization's events.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// organizationID -> set of clients
	organizations map[string]map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	subscribe   chan *subscriptionRequest
	unsubscribe chan *subscriptionRequest
	broadcast   chan *broadcastMessage

	mu sync.RWMutex

	logger *slog.Logger
}

type subscriptionRequest struct {
	client   *Client
	threadID string
}

type broadcastMessage struct {
	organizationID string
	threadID       string
	message        []byte
}

// NewHub creates a new Hub instance
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:       make(map[*Client]bool),
		organizations: make(map[string]map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		subscribe:     make(chan *subscriptionRequest),
		unsubscribe:   make(chan *subscriptionRequest),
		broadcast:     make(chan *broadcastMessage, 256),
		logger:        logger,
	}
}

// Run starts the hub's main loop. It returns when ctx is done, closing
// every client's send channel.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				h.remove(client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			if h.organizations[client.organizationID] == nil {
				h.organizations[client.organizationID] = make(map[*Client]bool)
			}
			h.organizations[client.organizationID][client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", slog.String("organization_id", client.organizationID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				h.remove(client)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", slog.String("organization_id", client.organizationID))

		case req := <-h.subscribe:
			h.mu.Lock()
			req.client.threads[req.threadID] = true
			h.mu.Unlock()

		case req := <-h.unsubscribe:
			h.mu.Lock()
			delete(req.client.threads, req.threadID)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.organizations[msg.organizationID] {
				if !client.wants(msg.threadID) {
					continue
				}
				select {
				case client.send <- msg.message:
				default:
					// Client buffer full, skip
				}
			}
			h.mu.RUnlock()
		}
	}
}

// remove must be called with mu held
func (h *Hub) remove(client *Client) {
	delete(h.clients, client)
	close(client.send)
	if members, ok := h.organizations[client.organizationID]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.organizations, client.organizationID)
		}
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe narrows a client to the given thread. A client without
// subscriptions receives every event of its organization.
func (h *Hub) Subscribe(client *Client, threadID string) {
	h.subscribe <- &subscriptionRequest{client: client, threadID: threadID}
}

// Unsubscribe removes a thread from a client's subscriptions
func (h *Hub) Unsubscribe(client *Client, threadID string) {
	h.unsubscribe <- &subscriptionRequest{client: client, threadID: threadID}
}

// ClientCount returns how many clients an organization has connected
func (h *Hub) ClientCount(organizationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.organizations[organizationID])
}

// BroadcastThreadEvent queues an event for the organization's clients. It
// never blocks the caller; events are dropped when the queue is full.
func (h *Hub) BroadcastThreadEvent(event *ThreadEvent) {
	data, err := json.Marshal(WSMessage{
		Type:     MessageTypeThreadActivity,
		ThreadID: event.ThreadID,
		Event:    event,
	})
	if err != nil {
		if h.logger != nil {
			h.logger.Error("failed to marshal broadcast message", slog.Any("error", err))
		}
		return
	}

	select {
	case h.broadcast <- &broadcastMessage{organizationID: event.OrganizationID, threadID: event.ThreadID, message: data}:
	default:
		if h.logger != nil {
			h.logger.Warn("dropping thread event, broadcast queue full",
				slog.String("organization_id", event.OrganizationID),
				slog.String("thread_id", event.ThreadID))
		}
	}
}

// MessageThreaded publishes a filed message to the organization's clients
func (h *Hub) MessageThreaded(orgID string, result *threading.MatchResult, message *models.Message) {
	h.BroadcastThreadEvent(&ThreadEvent{
		OrganizationID: orgID,
		ThreadID:       result.ThreadID,
		MessageID:      message.MessageID,
		Subject:        message.Subject,
		SenderEmail:    message.FromEmail,
		SenderName:     message.FromName,
		Strategy:       result.Strategy,
		Confidence:     result.Confidence,
		IsNewThread:    result.IsNew,
		ReceivedAt:     message.ReceivedAt.UTC().Format(time.RFC3339),
	})
}
