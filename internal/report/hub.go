package report

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	clientBuffer = 64
	writeTimeout = 5 * time.Second

	// DefaultHistory is the number of measurements kept for snapshots.
	DefaultHistory = 256
)

type client struct {
	send chan Message
}

// Hub keeps recent measurements and fans messages out to websocket clients.
// Slow clients whose buffer fills up are disconnected.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*client]struct{}
	history    []Measurement
	maxHistory int
	logger     *slog.Logger
}

// NewHub creates a hub keeping up to maxHistory measurements.
func NewHub(logger *slog.Logger, maxHistory int) *Hub {
	if logger == nil {
		logger = slog.Default()
	}

	if maxHistory <= 0 {
		maxHistory = DefaultHistory
	}

	return &Hub{
		clients:    make(map[*client]struct{}),
		maxHistory: maxHistory,
		logger:     logger,
	}
}

// Publish records a measurement and broadcasts it.
func (h *Hub) Publish(m Measurement) {
	h.mu.Lock()
	h.history = append(h.history, m)
	if over := len(h.history) - h.maxHistory; over > 0 {
		h.history = append(h.history[:0], h.history[over:]...)
	}
	h.mu.Unlock()

	h.broadcast(Message{Type: TypeMeasurement, Payload: m})
}

// PublishStatus broadcasts a status update without recording it.
func (h *Hub) PublishStatus(s Status) {
	h.broadcast(Message{Type: TypeStatus, Payload: s})
}

// Results returns a copy of the recorded measurements, oldest first.
func (h *Hub) Results() []Measurement {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return append([]Measurement{}, h.history...)
}

// ClientCount returns the number of connected websocket clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

func (h *Hub) broadcast(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			delete(h.clients, c)
			close(c.send)
			h.logger.Warn("Dropping slow websocket client", "type", msg.Type)
		}
	}
}

// register adds a client and returns it with the current snapshot.
func (h *Hub) register() (*client, []Measurement) {
	c := &client{send: make(chan Message, clientBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = struct{}{}

	return c, append([]Measurement{}, h.history...)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// ServeHTTP accepts a websocket connection, sends a snapshot of the
// recorded measurements and then streams every published message.
// Incoming client messages are ignored.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket accept failed", "error", err)
		return
	}

	ctx := conn.CloseRead(r.Context())

	c, snapshot := h.register()
	defer h.unregister(c)

	if err := write(ctx, conn, Message{Type: TypeSnapshot, Payload: snapshot}); err != nil {
		h.logger.Debug("WebSocket snapshot failed", "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case msg, ok := <-c.send:
			if !ok {
				conn.Close(websocket.StatusPolicyViolation, "client too slow")
				return
			}

			if err := write(ctx, conn, msg); err != nil {
				h.logger.Debug("WebSocket write failed", "error", err)
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	return wsjson.Write(ctx, conn, msg)
}
