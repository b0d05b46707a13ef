package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"quoteserve/internal/markethours"
	"quoteserve/internal/metrics"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Hub pushes the market summary to WebSocket clients on a fixed interval.
type Hub struct {
	svc      Service
	symbols  []string
	interval time.Duration
	metrics  *metrics.Metrics
	now      func() time.Time

	mu      sync.RWMutex
	clients map[*Client]bool
	latest  []byte
}

// Client is a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// summaryEnvelope is one pushed message.
type summaryEnvelope struct {
	Type         string          `json:"type"`
	Data         json.RawMessage `json:"data"`
	TS           string          `json:"ts"`
	MarketOpen   bool            `json:"marketOpen"`
	MarketStatus string          `json:"marketStatus"`
}

// NewHub creates a hub streaming the summary of symbols. m may be nil.
func NewHub(svc Service, symbols []string, interval time.Duration, m *metrics.Metrics) *Hub {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Hub{
		svc:      svc,
		symbols:  symbols,
		interval: interval,
		metrics:  m,
		now:      time.Now,
		clients:  make(map[*Client]bool),
	}
}

// ServeWS upgrades the request and registers the client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "component", "ws", "error", err)
		return
	}
	client := &Client{conn: conn, send: make(chan []byte, 16), hub: h}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	latest := h.latest
	h.mu.Unlock()
	h.metrics.AddWSClients(1)
	slog.Info("ws client connected", "component", "ws", "clients", count)

	if latest == nil {
		latest = h.build(r.Context())
	}
	if latest != nil {
		client.send <- latest
	}

	go client.writePump()
	go client.readPump()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run refreshes and broadcasts the summary every interval while clients
// are connected. Blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h.ClientCount() == 0 {
				continue
			}
			if msg := h.build(ctx); msg != nil {
				h.broadcast(msg)
			}
		}
	}
}

// build fetches the summary and encodes the envelope. Returns nil on error.
func (h *Hub) build(ctx context.Context) []byte {
	items, err := h.svc.GetMarketSummary(ctx, h.symbols)
	if err != nil {
		slog.Warn("summary refresh failed", "component", "ws", "error", err)
		return nil
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil
	}
	now := h.now()
	msg, err := json.Marshal(summaryEnvelope{
		Type:         "summary",
		Data:         data,
		TS:           now.UTC().Format(time.RFC3339Nano),
		MarketOpen:   markethours.IsMarketOpen(now),
		MarketStatus: markethours.StatusString(now),
	})
	if err != nil {
		return nil
	}
	h.mu.Lock()
	h.latest = msg
	h.mu.Unlock()
	return msg
}

// broadcast queues msg for every client, dropping it for slow clients.
func (h *Hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
		}
	}
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.mu.Unlock()
	h.metrics.AddWSClients(-1)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client messages and detects disconnects.
func (c *Client) readPump() {
	defer func() {
		c.hub.removeClient(c)
		c.conn.Close()
		slog.Info("ws client disconnected", "component", "ws")
	}()

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
