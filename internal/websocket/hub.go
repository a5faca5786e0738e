package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Message is a roster change notification pushed to admin dashboards.
type Message struct {
	Type     string `json:"type"`
	Entity   string `json:"entity"`
	Action   string `json:"action"`
	MemberID string `json:"member_id,omitempty"`
	Count    int    `json:"count,omitempty"`
}

// NewMessage builds a member change notification. Type is entity_action.
func NewMessage(action, memberID string) Message {
	return Message{
		Type:     "member_" + action,
		Entity:   "member",
		Action:   action,
		MemberID: memberID,
	}
}

// NewBatchMessage builds a notification for a change spanning many members.
func NewBatchMessage(action string, count int) Message {
	m := NewMessage(action, "")
	m.Count = count
	return m
}

// Hub fans roster notifications out to connected admin clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger.With("component", "websocket"),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("client connected", "admin", c.admin, "clients", n)
}

// Unregister removes a client and closes its send channel. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast queues msg for every client. Clients with a full buffer miss it.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropped roster notification", "admin", c.admin, "type", msg.Type)
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
