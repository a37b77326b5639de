package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"

	"pinmap/internal/domain/pin"
)

// WebSocketConfig contains configuration for WebSocket connections
type WebSocketConfig struct {
	// Time allowed to write a message to the peer
	WriteWait time.Duration

	// Time allowed to read the next pong message from the peer
	PongWait time.Duration

	// Send pings to peer with this period
	PingPeriod time.Duration

	// Maximum message size allowed from peer
	MaxMessageSize int64

	// Messages buffered per client before it is dropped
	SendBuffer int
}

// DefaultWebSocketConfig returns the default WebSocket configuration
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     (60 * time.Second * 9) / 10,
		MaxMessageSize: 4096,
		SendBuffer:     256,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsClient is one connected feed subscriber
type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// Hub fans pin events out to every connected websocket client
type Hub struct {
	config  WebSocketConfig
	logger  *slog.Logger
	clients map[*wsClient]struct{}
	mu      sync.RWMutex
}

// NewHub creates an empty hub
func NewHub(config WebSocketConfig, logger *slog.Logger) *Hub {
	if config.SendBuffer <= 0 {
		config.SendBuffer = DefaultWebSocketConfig().SendBuffer
	}

	return &Hub{
		config:  config,
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// SubscribeNATS relays every message on subject to the clients
func (h *Hub) SubscribeNATS(natsConn *nats.Conn, subject string) (*nats.Subscription, error) {
	sub, err := natsConn.Subscribe(subject, func(msg *nats.Msg) {
		h.Broadcast(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("error subscribing to %s: %w", subject, err)
	}
	return sub, nil
}

// BroadcastEvent encodes a pin event and sends it to the clients
func (h *Hub) BroadcastEvent(event pin.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Error encoding pin event", "error", err)
		return
	}
	h.Broadcast(data)
}

// Broadcast queues data for every client. Clients whose buffer is full are
// disconnected.
func (h *Hub) Broadcast(data []byte) {
	var slow []*wsClient

	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("Dropping slow websocket client", "remote", c.conn.RemoteAddr().String())
		c.close()
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.close()
	}
}

// ServeHTTP upgrades the request and streams pin events to it
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade to WebSocket", "error", err)
		return
	}

	client := &wsClient{
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.config.SendBuffer),
	}

	welcome, _ := json.Marshal(map[string]interface{}{
		"type": "welcome",
		"time": time.Now().UTC(),
	})
	client.send <- welcome

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	viewer := ""
	if u := ViewerFrom(r.Context()); u != nil {
		viewer = u.ID
	}
	h.logger.Info("New pin feed connection", "remote", conn.RemoteAddr().String(), "user_id", viewer)

	go client.writePump()
	go client.readPump()
}

// close unregisters the client and closes its connection once
func (c *wsClient) close() {
	c.once.Do(func() {
		c.hub.mu.Lock()
		delete(c.hub.clients, c)
		close(c.send)
		c.hub.mu.Unlock()

		c.conn.Close()
	})
}

// readPump drains the connection so control frames are processed; the
// feed is one-way and client messages are ignored
func (c *wsClient) readPump() {
	config := c.hub.config
	defer c.close()

	c.conn.SetReadLimit(config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("WebSocket error", "error", err)
			}
			return
		}
	}
}

// writePump sends queued messages, batching whatever is waiting into one
// newline-separated frame
func (c *wsClient) writePump() {
	config := c.hub.config
	ticker := time.NewTicker(config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				next, ok := <-c.send
				if !ok {
					break
				}
				w.Write([]byte{'\n'})
				w.Write(next)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
