package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/coder/websocket"

	"github.com/ashureev/whackamole/internal/game"
)

// sendBuffer is the per-client queue depth. A client that falls this far
// behind starts losing messages rather than stalling the game loops.
const sendBuffer = 64

// client is one connected player. All socket writes go through the send
// queue so gameplay loops never block on a slow reader.
type client struct {
	id   string
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newClient(id string, conn *websocket.Conn) *client {
	return &client{
		id:   id,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
}

// writePump drains the send queue onto the socket. It exits when the
// queue is closed or the first write fails.
func (c *client) writePump(ctx context.Context) {
	for data := range c.send {
		if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
			slog.Debug("WebSocket write error", "error", err, "session_id", c.id)
			c.close()
			return
		}
	}
}

// enqueue queues data for delivery. It reports false when the client is
// closed or its queue is full; the message is dropped either way.
func (c *client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close stops the client accepting messages and lets writePump exit.
// Safe to call more than once.
func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// notifier delivers gameplay events to a single client. Notify never
// blocks: if the client cannot keep up the event is dropped and the
// round carries on.
type notifier struct {
	c *client
}

func (n notifier) Notify(ev game.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("Failed to marshal game event", "error", err, "type", ev.Type)
		return
	}
	if !n.c.enqueue(data) {
		slog.Debug("Dropped game event for slow client", "type", ev.Type, "session_id", n.c.id)
	}
}
