package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yourusername/mc-server-panel/internal/server"
)

// Rooms
const (
	RoomConsole = "console"
	RoomStatus  = "status"
)

// Message types
const (
	TypeConsoleLine = "console_line"
	TypeState       = "state"
	TypeCommand     = "command"
	TypeReply       = "command_reply"
	TypeError       = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      string                 `json:"type"`
	Payload   interface{}            `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Handler receives messages read from a client
type Handler func(c *Client, msg *Message)

// Client represents a WebSocket client connection
type Client struct {
	ID       string
	Username string
	Conn     *websocket.Conn
	Room     string
	Send     chan *Message
	Hub      *Hub
	Handle   Handler
	mu       sync.Mutex
}

// Hub manages all WebSocket connections and rooms
type Hub struct {
	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	done       chan struct{}

	mu sync.RWMutex
}

// BroadcastMessage represents a message to broadcast to a room
type BroadcastMessage struct {
	Room    string
	Message *Message
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastToRoom(message)

		case <-ctx.Done():
			log.Println("[WebSocket] Hub shutting down")
			h.shutdown()
			return
		}
	}
}

// Register adds a client. It returns false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[client.Room] == nil {
		h.rooms[client.Room] = make(map[*Client]bool)
	}
	h.rooms[client.Room][client] = true

	log.Printf("[WebSocket] Client %s (user=%s) joined room %s. Room size: %d",
		client.ID, client.Username, client.Room, len(h.rooms[client.Room]))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.rooms[client.Room]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	client.closeSend()

	if len(clients) == 0 {
		delete(h.rooms, client.Room)
	}
	log.Printf("[WebSocket] Client %s left room %s. Room size: %d", client.ID, client.Room, len(clients))
}

// broadcastToRoom sends a message to all clients in a room
func (h *Hub) broadcastToRoom(bm *BroadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[bm.Room] {
		select {
		case client.Send <- bm.Message:
		default:
			// slow reader; drop rather than stall the room
			log.Printf("[WebSocket] Client %s send channel full, dropping message", client.ID)
		}
	}
}

// GetRoomSize returns the number of clients in a room
func (h *Hub) GetRoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Publish queues a message for every client in room. It never blocks; the
// message is dropped when the queue is full or the hub has stopped.
func (h *Hub) Publish(room, msgType string, payload interface{}) {
	message := &BroadcastMessage{
		Room: room,
		Message: &Message{
			Type:      msgType,
			Payload:   payload,
			Timestamp: time.Now(),
		},
	}
	select {
	case <-h.done:
		return
	default:
	}
	select {
	case h.broadcast <- message:
	default:
		log.Printf("[WebSocket] Broadcast queue full, dropping %s message", msgType)
	}
}

// ObserveServer forwards lifecycle transitions to every room
func (h *Hub) ObserveServer(event server.Event) {
	if event.Kind != server.EventTransition {
		return
	}
	payload := map[string]interface{}{
		"from": event.From,
		"to":   event.To,
		"pid":  event.PID,
	}
	h.Publish(RoomConsole, TypeState, payload)
	h.Publish(RoomStatus, TypeState, payload)
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.rooms {
		for client := range clients {
			client.closeSend()
			if client.Conn != nil {
				client.Conn.Close()
			}
		}
	}
	h.rooms = make(map[string]map[*Client]bool)
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Send != nil {
		close(c.Send)
		c.Send = nil
	}
}

// ReadPump pumps messages from WebSocket connection to the client's handler
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(64 * 1024)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WebSocket] Read error: %v", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.SendMessage(TypeError, map[string]string{"error": "invalid message"})
			continue
		}
		msg.Timestamp = time.Now()
		if c.Handle != nil {
			c.Handle(c, &msg)
		}
	}
}

// WritePump pumps messages from hub to WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	send := c.Send
	for {
		select {
		case message, ok := <-send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(message)
			if err != nil {
				log.Printf("[WebSocket] Failed to marshal message: %v", err)
				continue
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage sends a message to this specific client
func (c *Client) SendMessage(msgType string, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Send == nil {
		return fmt.Errorf("client send channel is closed")
	}

	msg := &Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	select {
	case c.Send <- msg:
		return nil
	default:
		return fmt.Errorf("client send channel is full")
	}
}
