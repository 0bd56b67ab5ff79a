package server

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Event is an outbound message to a client.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Hub tracks connected clients by user ID and delivers events to them.
// A user has at most one live connection; a reconnect replaces the old
// one.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]*client
	logger  *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[int64]*client),
		logger:  logger,
	}
}

// register adds a client, closing any previous connection of the same
// user.
func (h *Hub) register(c *client) {
	h.mu.Lock()
	old := h.clients[c.userID]
	h.clients[c.userID] = c
	h.mu.Unlock()

	if old != nil {
		old.close()
	}
	h.logger.Debug("client connected", zap.Int64("user_id", c.userID))
}

// unregister removes a client if it is still the user's current one.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if h.clients[c.userID] == c {
		delete(h.clients, c.userID)
	}
	h.mu.Unlock()

	h.logger.Debug("client disconnected", zap.Int64("user_id", c.userID))
}

// IsOnline reports whether the user has a live connection.
func (h *Hub) IsOnline(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// SendToUser delivers an event to one user. Events to offline users are
// dropped; live game state does not depend on delivery.
func (h *Hub) SendToUser(userID int64, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to encode event",
			zap.String("type", ev.Type),
			zap.Error(err),
		)
		return
	}

	h.mu.RLock()
	c, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	c.enqueue(payload)
}

// SendToUsers delivers an event to each listed user. Bot participants
// are represented by absent IDs and skipped naturally.
func (h *Hub) SendToUsers(userIDs []int64, ev Event) {
	for _, id := range userIDs {
		h.SendToUser(id, ev)
	}
}

// Online lists the connected users for presence broadcasts.
func (h *Hub) Online() []onlineUser {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]onlineUser, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, onlineUser{ID: c.userID, Username: c.username})
	}
	return out
}

// Broadcast delivers an event to every connected client.
func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	ids := make([]int64, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.SendToUser(id, ev)
	}
}

// CloseAll disconnects every client during shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[int64]*client)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}
