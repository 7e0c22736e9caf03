package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/your-org/oceanlens/internal/observability"
	"github.com/your-org/oceanlens/pkg/dto"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the view surface listens on localhost only
	},
}

// Client represents a connected WebSocket client.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	topics map[string]bool // empty means every event type
}

func (c *Client) wants(eventType string) bool {
	return len(c.topics) == 0 || c.topics[eventType]
}

type message struct {
	eventType string
	data      []byte
}

// Hub maintains active WebSocket clients, broadcasts session events and
// forwards media events reported by the views.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan message
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	inboundMu sync.RWMutex
	onInbound func(dto.WSInbound)
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// OnInbound registers the handler for media events sent by views.
func (h *Hub) OnInbound(fn func(dto.WSInbound)) {
	h.inboundMu.Lock()
	h.onInbound = fn
	h.inboundMu.Unlock()
}

// Run starts the hub event loop until ctx is done. Call this in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
				observability.WSConnections.Dec()
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			observability.WSConnections.Inc()
			slog.Debug("ws client connected", "topics", len(client.topics))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				observability.WSConnections.Dec()
			}
			h.mu.Unlock()
			slog.Debug("ws client disconnected")

		case msg := <-h.broadcast:
			var slow []*Client
			h.mu.RLock()
			for client := range h.clients {
				if !client.wants(msg.eventType) {
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
			if len(slow) > 0 {
				h.mu.Lock()
				for _, client := range slow {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
						observability.WSConnections.Dec()
					}
				}
				h.mu.Unlock()
			}
		}
	}
}

// ClientCount returns the number of registered views.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends an event to every interested client. It never blocks; an
// event is dropped when the hub is saturated.
func (h *Hub) Broadcast(event *dto.WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("marshal ws event", "error", err)
		return
	}
	select {
	case h.broadcast <- message{eventType: event.Type, data: data}:
	default:
		slog.Warn("ws broadcast dropped", "type", event.Type)
	}
}

// HandleWS handles WebSocket upgrade requests. ?topics=session,playback
// restricts the pushed event types.
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "error", err)
		return
	}

	client := &Client{
		conn:   conn,
		send:   make(chan []byte, 64),
		topics: parseTopics(c.Query("topics")),
	}

	h.register <- client

	go client.writePump()
	go client.readPump(h)
}

func parseTopics(raw string) map[string]bool {
	topics := map[string]bool{}
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics[t] = true
		}
	}
	return topics
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
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		h.dispatch(data)
	}
}

func (h *Hub) dispatch(data []byte) {
	var in dto.WSInbound
	if err := json.Unmarshal(data, &in); err != nil {
		slog.Debug("ws inbound ignored", "error", err)
		return
	}

	h.inboundMu.RLock()
	fn := h.onInbound
	h.inboundMu.RUnlock()

	if fn != nil {
		fn(in)
	}
}
