package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be less than pongWait
	maxMessageSize = 512                 // clients only send control frames

	defaultSendBuffer = 16
)

// client is one WebSocket connection.
type client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
}

// Hub fans notifications out to every connection a user has open.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}

	filter     Filter
	clock      Clock
	logger     *slog.Logger
	sendBuffer int
	upgrader   websocket.Upgrader
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubClock sets the clock used for notification timestamps.
func WithHubClock(c Clock) HubOption {
	return func(h *Hub) {
		h.clock = c
	}
}

// WithSendBuffer sets how many messages may queue per connection before it
// is dropped as too slow.
func WithSendBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithCheckOrigin sets the upgrader's origin check.
func WithCheckOrigin(fn func(r *http.Request) bool) HubOption {
	return func(h *Hub) {
		h.upgrader.CheckOrigin = fn
	}
}

// NewHub creates a Hub. A nil filter disables de-duplication.
func NewHub(filter Filter, logger *slog.Logger, opts ...HubOption) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		clients:    make(map[string]map[*client]struct{}),
		filter:     filter,
		clock:      SystemClock{},
		logger:     logger,
		sendBuffer: defaultSendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish sends n to every connection of n.UserID. It returns false when
// the notification was suppressed as a duplicate or nobody was connected.
// ID and CreatedAt are filled in when empty.
func (h *Hub) Publish(ctx context.Context, n Notification) bool {
	if h.filter != nil && !h.filter.Allow(ctx, n.DedupKey()) {
		h.logger.Debug("duplicate notification suppressed",
			slog.String("user_id", n.UserID),
			slog.String("kind", string(n.Kind)),
		)
		return false
	}

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = h.clock.Now()
	}

	payload, err := json.Marshal(n)
	if err != nil {
		h.logger.Error("failed to encode notification", slog.String("error", err.Error()))
		return false
	}

	// Sends happen under the read lock so unregister cannot close a channel mid-send.
	delivered := false
	var slow []*client
	h.mu.RLock()
	for c := range h.clients[n.UserID] {
		select {
		case c.send <- payload:
			delivered = true
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow websocket client", slog.String("user_id", c.userID))
		h.unregister(c)
	}
	return delivered
}

// Connections returns the number of open connections for userID.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// ServeWS upgrades the request and streams userID's notifications until the
// client disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade websocket",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return
	}

	c := &client{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, h.sendBuffer),
	}
	h.register(c)

	h.logger.Info("websocket connected", slog.String("user_id", userID))

	go h.writePump(c)
	h.readPump(c)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	all := h.clients
	h.clients = make(map[string]map[*client]struct{})
	h.mu.Unlock()

	for _, set := range all {
		for c := range set {
			close(c.send)
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
}

// unregister removes c and closes its send channel, once.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	close(c.send)
}

// readPump consumes control frames so pongs are processed, and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
		h.logger.Info("websocket disconnected", slog.String("user_id", c.userID))
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket unexpected close",
					slog.String("user_id", c.userID),
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}
}

// writePump writes queued notifications and periodic pings.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
