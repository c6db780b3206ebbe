package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/seenimoa/cotscope/internal/metrics"
	"github.com/seenimoa/cotscope/internal/scheduler"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is enforced on the REST routes only
	},
}

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	sendBuffer = 64
)

// WSMessage is a message sent over WebSocket connections.
type WSMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// WSClient represents a single WebSocket connection.
type WSClient struct {
	id   string
	hub  *WSHub
	send chan WSMessage
}

// NewWSClient creates a client with a fresh id.
func NewWSClient(hub *WSHub) *WSClient {
	return &WSClient{
		id:   uuid.NewString(),
		hub:  hub,
		send: make(chan WSMessage, sendBuffer),
	}
}

// ID returns the client's connection id.
func (c *WSClient) ID() string { return c.id }

// WSHub fans refresh events out to connected clients. Clients that cannot
// keep up are dropped.
type WSHub struct {
	mu         sync.RWMutex
	clients    map[*WSClient]struct{}
	broadcast  chan WSMessage
	register   chan *WSClient
	unregister chan *WSClient
	done       chan struct{}
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewWSHub creates a new WebSocket hub. m and logger may be nil.
func NewWSHub(m *metrics.Metrics, logger *slog.Logger) *WSHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHub{
		clients:    make(map[*WSClient]struct{}),
		broadcast:  make(chan WSMessage, 256),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		done:       make(chan struct{}),
		metrics:    m,
		logger:     logger,
	}
}

// Run is the hub event loop. It closes every client when ctx is done.
func (h *WSHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				h.removeLocked(client)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			h.metrics.WSClientDelta(1)
		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					h.logger.Warn("dropping slow websocket client", "client", client.id)
					h.removeLocked(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *WSHub) removeLocked(client *WSClient) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	h.metrics.WSClientDelta(-1)
}

// Broadcast sends a message to all connected clients. It never blocks; the
// message is dropped when the broadcast queue is full.
func (h *WSHub) Broadcast(msg WSMessage) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("websocket broadcast queue full, dropping", "type", msg.Type)
	}
}

// Notify forwards a scheduler event to every client.
func (h *WSHub) Notify(ev scheduler.Event) {
	h.Broadcast(WSMessage{Type: ev.Type, Data: ev})
}

// ClientCount returns the number of connected WebSocket clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register adds a client to the hub. It reports false once the hub has
// stopped.
func (h *WSHub) Register(client *WSClient) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client from the hub.
func (h *WSHub) Unregister(client *WSClient) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// handleWebSocket upgrades the connection and streams hub messages to it.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	client := NewWSClient(s.wsHub)
	client.send <- WSMessage{Type: "welcome", Data: map[string]string{"client_id": client.id}}
	if !s.wsHub.Register(client) {
		conn.Close()
		return
	}

	go wsWritePump(conn, client, s.logger)
	go wsReadPump(conn, client, s.logger)
}

// wsReadPump reads client messages until the connection closes.
func wsReadPump(conn *websocket.Conn, client *WSClient, logger *slog.Logger) {
	defer func() {
		client.hub.Unregister(client)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read error", "client", client.id, "error", err)
			}
			return
		}

		// The feed is one-way; client messages are only logged.
		logger.Debug("websocket message ignored", "client", client.id, "bytes", len(message))
	}
}

// wsWritePump writes hub messages and keepalive pings to the connection.
func wsWritePump(conn *websocket.Conn, client *WSClient, logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Error("websocket marshal failed", "type", msg.Type, "error", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
