// Package realtime provides the websocket push channel for alerts and
// telemetry. Components publish through an explicit Publisher handle
// constructed at startup and threaded through; there is no ambient
// global channel state.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/blue-kelp-bio/reactormon/internal/metrics"
)

const (
	// TopicAdmin receives every alert regardless of reactor.
	TopicAdmin = "admin"

	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 16
)

// ReactorTopic returns the topic carrying one reactor's events.
func ReactorTopic(reactorID string) string {
	return "reactor:" + reactorID
}

// Publisher is the write side of the real-time channel.
type Publisher interface {
	// Publish sends an event to all clients subscribed to topic.
	// Delivery is best effort: slow clients are disconnected, not waited on.
	Publish(topic, event string, payload any)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins; origin policy belongs at the reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is the JSON envelope sent to clients.
type Message struct {
	Topic     string    `json:"topic"`
	Event     string    `json:"event"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub manages WebSocket client connections and routes published events to
// clients by topic subscription.
type Hub struct {
	logger zerolog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// client represents one connected WebSocket client.
type client struct {
	conn   *websocket.Conn
	send   chan []byte
	topics map[string]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:  logger.With().Str("component", "realtime").Logger(),
		clients: make(map[*client]struct{}),
	}
}

// Run blocks until ctx is cancelled, then closes all active connections.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Publish sends an event to all clients subscribed to topic.
func (h *Hub) Publish(topic, event string, payload any) {
	data, err := json.Marshal(Message{
		Topic:     topic,
		Event:     event,
		Data:      payload,
		Timestamp: time.Now(),
	})
	if err != nil {
		h.logger.Error().Err(err).Str("topic", topic).Msg("marshal message")
		return
	}

	// Sends happen under the read lock so a concurrent unregister (which
	// closes the channel under the write lock) cannot race them.
	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		if _, ok := c.topics[topic]; !ok {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	// Clients with a full buffer are disconnected rather than waited on.
	for _, c := range slow {
		metrics.RealtimeDropped.Inc()
		h.unregister(c)
	}
}

// ServeHTTP upgrades the HTTP connection to WebSocket and serves the
// client. Topic subscriptions come from the comma-separated "topics"
// query parameter; clients with none default to the admin topic.
// Blocks until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		conn:   conn,
		send:   make(chan []byte, sendBufSize),
		topics: parseTopics(r.URL.Query().Get("topics")),
	}
	h.register(c)
	defer h.unregister(c)

	go c.writePump()
	c.readPump() // blocks until connection closes
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func parseTopics(raw string) map[string]struct{} {
	topics := make(map[string]struct{})
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			topics[t] = struct{}{}
		}
	}
	if len(topics) == 0 {
		topics[TopicAdmin] = struct{}{}
	}
	return topics
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	metrics.RealtimeClients.Inc()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		metrics.RealtimeClients.Dec()
	}
	h.mu.Unlock()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
		metrics.RealtimeClients.Dec()
	}
}

// writePump drains the client's send channel and forwards messages to the
// WebSocket connection. It also sends periodic ping frames. Runs in its
// own goroutine per client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Channel was closed (hub is shutting down or client removed).
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames from the connection to process control messages
// (pong, close) and detect disconnects. Blocks until the connection closes.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
