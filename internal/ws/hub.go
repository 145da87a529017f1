package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
)

// ViewerMessageType represents the type of a message exchanged with viewers.
type ViewerMessageType string

const (
	// Viewer -> Console message types
	ViewerMessagePrompt ViewerMessageType = "prompt"
	ViewerMessagePing   ViewerMessageType = "ping"

	// Console -> Viewer message types
	ViewerMessageState  ViewerMessageType = "state"
	ViewerMessageUpdate ViewerMessageType = "update"
	ViewerMessageResult ViewerMessageType = "result"
	ViewerMessagePong   ViewerMessageType = "pong"
)

// ViewerMessage is a frame exchanged with a presentation viewer.
type ViewerMessage struct {
	Type     ViewerMessageType `json:"type"`
	Content  string            `json:"content,omitempty"`
	Accepted *bool             `json:"accepted,omitempty"`
	Payload  json.RawMessage   `json:"payload,omitempty"`
}

// Client represents a connected viewer.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

// NewClient creates a new viewer client.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// Send queues a message to be sent to the viewer.
func (c *Client) Send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- data:
	default:
		// Buffer full, close the client
		c.closeLocked()
	}
}

// SendMessage marshals and queues msg.
func (c *Client) SendMessage(msg *ViewerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.Send(data)
	return nil
}

// Close closes the client's send queue.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed returns true if the client is closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// SendChan returns the send channel for the client.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}

// Hub tracks the viewers attached to the console session.
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
}

// Unregister removes a client from the hub and closes it.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()

	client.Close()
}

// Broadcast sends data to all connected clients.
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		client.Send(data)
	}
}

// BroadcastMessage sends msg to all connected clients.
func (h *Hub) BroadcastMessage(msg *ViewerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close closes all client connections.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]bool)
	h.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
}
