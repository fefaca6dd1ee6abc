// Package feed streams protocol events to dashboard clients over
// WebSocket.
package feed

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mevshield/mevshield/internal/audit"
)

const writeTimeout = 5 * time.Second

// Frame is one message pushed to connected clients
type Frame struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// client serializes writes to one connection; gorilla/websocket
// permits at most one concurrent writer per conn.
type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *client) write(frame Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(frame)
}

// Hub manages WebSocket subscribers and broadcasts frames to them
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*client]bool
}

// NewHub creates an empty hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger: logger.Named("feed"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[*client]bool),
	}
}

// Serve upgrades the request and keeps the connection registered
// until the client goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn}

	welcome := Frame{
		Type:      "connected",
		Data:      map[string]any{"message": "connected to protection feed"},
		Timestamp: time.Now().UTC(),
	}
	if err := c.write(welcome); err != nil {
		conn.Close()
		return
	}

	h.mu.Lock()
	h.conns[c] = true
	h.mu.Unlock()

	// Read loop only to observe the close; clients do not send data.
	go func() {
		defer h.drop(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends a frame to every connected client, dropping the
// ones that fail.
func (h *Hub) Broadcast(frameType string, data any) {
	frame := Frame{Type: frameType, Data: data, Timestamp: time.Now().UTC()}

	h.mu.Lock()
	conns := make([]*client, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		if err := c.write(frame); err != nil {
			h.drop(c)
		}
	}
}

// Record implements audit.Recorder so the hub can sit in the audit
// fanout and stream every protocol event.
func (h *Hub) Record(event audit.Event) {
	h.Broadcast(string(event.Type), event)
}

// Connections returns the number of connected clients
func (h *Hub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.conns[c]; ok {
		delete(h.conns, c)
		c.conn.Close()
	}
	h.mu.Unlock()
}
