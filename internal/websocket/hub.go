package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Entities named in change notifications.
const (
	EntityHousehold = "household"
	EntityMember    = "member"
	EntityWorship   = "worship"
	EntityUser      = "user"
	EntitySettings  = "settings"
	EntityBackup    = "backup"
)

// Actions named in change notifications.
const (
	ActionCreated   = "created"
	ActionUpdated   = "updated"
	ActionDeleted   = "deleted"
	ActionReordered = "reordered"
	ActionCompleted = "completed"
	ActionCancelled = "cancelled"
)

// Message tells clients that an entity changed so they can refetch it.
type Message struct {
	Type   string         `json:"type"`
	Entity string         `json:"entity"`
	Action string         `json:"action"`
	ID     int64          `json:"id,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action,
// e.g. "household_created".
func NewMessage(entity, action string, id int64, extra map[string]any) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		Extra:  extra,
	}
}

// Gauge is the part of a metrics gauge the hub updates.
type Gauge interface {
	Set(float64)
}

// Hub maintains the set of active WebSocket clients and broadcasts messages.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	gauge   Gauge
	logger  *slog.Logger
}

// NewHub creates a new Hub. gauge may be nil.
func NewHub(gauge Gauge, logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		gauge:   gauge,
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.report(n)
	h.logger.Debug("client connected", "clients", n)
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.report(n)
}

// Broadcast sends a message to all connected clients.
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
			// Slow client, drop rather than block the broadcaster.
			h.logger.Warn("dropped message for slow client", "type", msg.Type)
		}
	}
}

// Notify broadcasts an entity change.
func (h *Hub) Notify(entity, action string, id int64) {
	h.Broadcast(NewMessage(entity, action, id, nil))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) report(n int) {
	if h.gauge != nil {
		h.gauge.Set(float64(n))
	}
}
