package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Hub tracks every connected client so leaderboard updates can be
// broadcast to all of them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*client)}
}

// register adds a client. Any existing client under the same id is
// closed and replaced.
func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.clients[c.id]; ok && existing != c {
		existing.close()
		_ = existing.conn.Close(websocket.StatusNormalClosure, "session replaced")
	}
	h.clients[c.id] = c
	slog.Info("Client registered", "session_id", c.id)
}

// unregister removes a client if it is still the one registered under
// its id.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.clients[c.id]; ok && current == c {
		delete(h.clients, c.id)
		slog.Info("Client unregistered", "session_id", c.id)
	}
}

// Broadcast sends one message to every connected client. Clients that
// cannot keep up are skipped.
func (h *Hub) Broadcast(msgType string, payload any) {
	data, err := json.Marshal(Outbound{Type: msgType, Payload: payload})
	if err != nil {
		slog.Error("Failed to marshal broadcast", "error", err, "type", msgType)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if !c.enqueue(data) {
			slog.Debug("Dropped broadcast for slow client", "type", msgType, "session_id", c.id)
		}
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll disconnects every client, for server shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, c := range h.clients {
		c.close()
		_ = c.conn.Close(websocket.StatusGoingAway, "server shutting down")
		slog.Info("Client disconnected", "session_id", id)
	}
	h.clients = make(map[string]*client)
}
