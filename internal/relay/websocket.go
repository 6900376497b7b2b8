package relay

import (
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prepdeck/label-engine/internal/queue"
)

// WebSocket message types
const (
	EventJobStarted   = "job_started"
	EventJobCompleted = "job_completed"
	EventJobFailed    = "job_failed"
	EventJobCancelled = "job_cancelled"
	EventError        = "error"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data"`
}

// WSClient represents a connected WebSocket client
type WSClient struct {
	conn *websocket.Conn
	send chan WSMessage
	hub  *Hub
	mu   sync.Mutex
}

// Hub tracks connected clients for broadcasts
type Hub struct {
	mu      sync.RWMutex
	clients map[*WSClient]bool
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{clients: make(map[*WSClient]bool)}
}

func (h *Hub) add(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
}

func (h *Hub) remove(client *WSClient) {
	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()
}

// Broadcast fans a message out to every connected client
func (h *Hub) Broadcast(msg WSMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			// Client send buffer full, skip
		}
	}
}

// BroadcastEvent translates a job lifecycle event into a WebSocket broadcast.
// The browser live-updates its queue view from these.
func (h *Hub) BroadcastEvent(ev queue.Event) {
	data := map[string]interface{}{
		"job": ev.Item,
	}
	if ev.Outcome != nil {
		data["outcome"] = ev.Outcome
	}

	var event string
	switch ev.Type {
	case "started":
		event = EventJobStarted
	case "completed":
		event = EventJobCompleted
	case "failed":
		event = EventJobFailed
	case "cancelled":
		event = EventJobCancelled
	default:
		return
	}

	h.Broadcast(WSMessage{Event: event, Data: data})
}

// handleWebSocket upgrades the connection and registers the client
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		fmt.Printf("WebSocket upgrade failed: %v\n", err)
		return
	}

	client := &WSClient{
		conn: conn,
		send: make(chan WSMessage, 256),
		hub:  s.hub,
	}

	go client.readPump()
	go client.writePump()
}

func (c *WSClient) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		c.mu.Lock()
		err := c.conn.WriteJSON(msg)
		c.mu.Unlock()

		if err != nil {
			fmt.Printf("WebSocket write error: %v\n", err)
			return
		}
	}
}

// readPump drains the connection until it closes. The feed is one-way, so
// inbound frames only keep the connection alive.
func (c *WSClient) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
		close(c.send)
	}()

	c.hub.add(c)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				fmt.Printf("WebSocket error: %v\n", err)
			}
			break
		}
	}
}
