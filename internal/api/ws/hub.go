package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/your-org/facefind/internal/auth"
	"github.com/your-org/facefind/internal/models"
	"github.com/your-org/facefind/internal/observability"
	"github.com/your-org/facefind/pkg/dto"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// Client represents a connected WebSocket client. It only ever receives
// notifications about its own uploads.
type Client struct {
	conn  *websocket.Conn
	send  chan []byte
	user  string
	scope string // optional filter
}

func (c *Client) wants(m message) bool {
	return c.user == m.uploader && (c.scope == "" || c.scope == m.scope)
}

type message struct {
	scope    string
	uploader string
	data     []byte
}

// Hub maintains active WebSocket clients and fans each notification out to
// the connections of the user it concerns.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan message
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub event loop. Call this in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			observability.WSConnections.Inc()
			slog.Debug("ws client connected", "user", client.user, "scope", client.scope)

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			var slow []*Client
			h.mu.RLock()
			for client := range h.clients {
				if !client.wants(msg) {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()

			// Client buffer full: disconnect
			for _, client := range slow {
				h.remove(client)
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		observability.WSConnections.Dec()
		slog.Debug("ws client disconnected", "scope", client.scope)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a notification to the uploader's clients subscribed to its
// scope.
func (h *Hub) Broadcast(n models.Notification) {
	event := dto.WSEvent{
		Type:      n.Type,
		Scope:     n.Scope,
		FileID:    n.FileID,
		FaceID:    n.FaceID,
		FileIDs:   n.FileIDs,
		Status:    string(n.Status),
		FaceCount: n.FaceCount,
		Matches:   n.Matches,
		Timestamp: n.Timestamp.UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("marshal ws event", "error", err)
		return
	}
	h.broadcast <- message{scope: n.Scope, uploader: n.UploaderID, data: data}
}

// Notify adapts Broadcast to the queue notification handler signature.
func (h *Hub) Notify(_ context.Context, n models.Notification) error {
	h.Broadcast(n)
	return nil
}

// HandleWS handles WebSocket upgrade requests for the caller set by
// auth.CallerMiddleware. ?scope= limits the client to one event's
// notifications.
func (h *Hub) HandleWS(c *gin.Context) {
	user := auth.Caller(c)
	if user == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing caller"})
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "error", err)
		return
	}

	client := &Client{
		conn:  conn,
		send:  make(chan []byte, 64),
		user:  user,
		scope: c.Query("scope"),
	}

	h.register <- client

	go client.writePump()
	go client.readPump(h)
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		// We don't process incoming messages from clients.
		// This loop exists to detect disconnection.
	}
}
