// Package stream pushes model prediction snapshots to WebSocket subscribers.
package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"rwa-portfolio-lab/internal/domain"
	"rwa-portfolio-lab/internal/model"
	"rwa-portfolio-lab/internal/observability"
)

// Config configures subscriber connections.
type Config struct {
	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration
	// PingInterval is the interval between ping frames.
	PingInterval time.Duration
	// ReadTimeout is the deadline for a pong after the last one.
	ReadTimeout time.Duration
	// SendBuffer is the number of queued messages per subscriber.
	// A subscriber whose queue is full is disconnected.
	SendBuffer int
}

// DefaultConfig returns default subscriber settings.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		SendBuffer:   8,
	}
}

// Message is the frame sent on every snapshot publish.
type Message struct {
	Type        string              `json:"type"`
	SnapshotID  string              `json:"snapshot_id"`
	TrainedAt   time.Time           `json:"trained_at"`
	Predictions []domain.Prediction `json:"predictions"`
}

// MessageTypeSnapshot tags snapshot frames.
const MessageTypeSnapshot = "snapshot"

// Hub fans snapshot messages out to connected subscribers.
// New subscribers receive the latest message first. Safe for concurrent use.
type Hub struct {
	config   Config
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	last    []byte
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// NewHub creates a hub with no subscribers.
func NewHub(config Config, logger zerolog.Logger) *Hub {
	if config.SendBuffer <= 0 {
		config.SendBuffer = DefaultConfig().SendBuffer
	}
	return &Hub{
		config: config,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger.With().Str("component", "stream").Logger(),
		clients: make(map[*client]struct{}),
	}
}

// Publish sends the snapshot's predictions to every subscriber.
func (h *Hub) Publish(snap *model.Snapshot) {
	if snap == nil {
		return
	}
	data, err := json.Marshal(Message{
		Type:        MessageTypeSnapshot,
		SnapshotID:  snap.ID,
		TrainedAt:   snap.TrainedAt,
		Predictions: snap.Predictions(nil),
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("marshal snapshot message")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.last = data
	for c := range h.clients {
		h.enqueue(c, data)
	}
}

// enqueue must be called with h.mu held.
func (h *Hub) enqueue(c *client, data []byte) {
	select {
	case c.send <- data:
	default:
		h.logger.Warn().Str("remote", c.conn.RemoteAddr().String()).Msg("subscriber too slow, disconnecting")
		h.removeLocked(c)
	}
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.close()
	observability.UpdateStreamSubscribers(len(h.clients))
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams messages until the peer
// disconnects or the hub closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, h.config.SendBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	if h.last != nil {
		c.send <- h.last
	}
	observability.UpdateStreamSubscribers(len(h.clients))
	h.mu.Unlock()

	go h.writeLoop(c)
	h.readLoop(c)
}

// readLoop discards inbound frames; it exists to process control frames
// and notice disconnects.
func (h *Hub) readLoop(c *client) {
	defer func() {
		h.mu.Lock()
		h.removeLocked(c)
		h.mu.Unlock()
	}()

	if h.config.ReadTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
		})
	}
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	var ping <-chan time.Time
	if h.config.PingInterval > 0 {
		ticker := time.NewTicker(h.config.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}
	defer c.conn.Close()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(h.deadline())
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
			observability.RecordStreamMessage()
		case <-ping:
			_ = c.conn.SetWriteDeadline(h.deadline())
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) deadline() time.Time {
	if h.config.WriteTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(h.config.WriteTimeout)
}

// Close disconnects all subscribers and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}
