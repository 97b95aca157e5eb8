// Package websocket pushes session events to operator dashboards and
// accepts their one-way commands.
package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"hotelling/models"
)

const (
	pingPeriod   = 10 * time.Second
	readDeadline = 60 * time.Second
	sendBuffer   = 32
	replayLength = 50
)

// Command is a message sent by a dashboard, e.g. {"type":"stopSession"}.
type Command struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Hub fans events out to every connected dashboard.
type Hub struct {
	mu       sync.Mutex
	clients  map[*Client]bool
	recent   [][]byte
	upgrader websocket.Upgrader
	logger   *zap.Logger

	onCommand func(Command) error
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// 運営者トークンで認証済みのため、オリジンは問わない
				return true
			},
		},
		logger: logger.With(zap.String("component", "event_hub")),
	}
}

// OnCommand sets the handler for dashboard commands. Handler errors are
// reported back to the sending dashboard only.
func (h *Hub) OnCommand(fn func(Command) error) {
	h.mu.Lock()
	h.onCommand = fn
	h.mu.Unlock()
}

// Publish stamps and broadcasts an event. Slow dashboards are dropped
// rather than blocking the session.
func (h *Hub) Publish(ev models.Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	msg, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("Error encoding event", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.recent = append(h.recent, msg)
	if len(h.recent) > replayLength {
		h.recent = h.recent[len(h.recent)-replayLength:]
	}
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("Dashboard too slow, disconnecting", zap.String("client", c.ID))
			h.removeLocked(c)
		}
	}
}

// ServeWS upgrades the connection and replays recent events to it.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// WebSocket接続のアップグレードに失敗
		h.logger.Error("Error upgrading WebSocket", zap.Error(err))
		return
	}

	client := &Client{ID: uuid.NewString(), Conn: conn, send: make(chan []byte, sendBuffer+replayLength)}
	h.mu.Lock()
	for _, msg := range h.recent {
		client.send <- msg
	}
	h.clients[client] = true
	h.mu.Unlock()
	h.logger.Info("Dashboard connected", zap.String("client", client.ID))

	go h.writePump(client)
	go h.handleClient(client)
}

// Count returns the number of connected dashboards.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	h.removeLocked(c)
	h.mu.Unlock()
}

func (h *Hub) removeLocked(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// Close disconnects every dashboard.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}
