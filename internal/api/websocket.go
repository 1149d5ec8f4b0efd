package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"touchmap/internal/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins as the runtime and the editor live on different hosts
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub handles WebSocket connections and broadcasting.
// Every client receives the current state on connect and on each sync request.
type Hub struct {
	name       string
	snapshot   func() (protocol.Message, bool)
	clients    map[*wsClient]bool
	clientsMu  sync.Mutex
	broadcast  chan protocol.Message
	register   chan *wsClient
	unregister chan *wsClient
	shutdown   chan struct{}
	stopOnce   sync.Once
}

// wsClient represents a connected editor or runtime listener
type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	ip   string
}

// NewHub creates a hub. snapshot returns the message sent to new clients; it
// may report false when there is nothing to send.
func NewHub(name string, snapshot func() (protocol.Message, bool)) *Hub {
	return &Hub{
		name:       name,
		snapshot:   snapshot,
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan protocol.Message, 16),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		shutdown:   make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until Stop is called
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clientsMu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.clientsMu.Unlock()
			log.Printf("WS %s: New client registered from %s. Total clients: %d", h.name, client.ip, total)
			h.sendSnapshot(client)

		case client := <-h.unregister:
			h.clientsMu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				log.Printf("WS %s: Client unregistered from %s. Total clients: %d", h.name, client.ip, len(h.clients))
			}
			h.clientsMu.Unlock()

		case message := <-h.broadcast:
			h.broadcastMessage(message)

		case <-h.shutdown:
			h.clientsMu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.clientsMu.Unlock()
			return
		}
	}
}

// Stop closes every client and ends Run
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.shutdown) })
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	return len(h.clients)
}

// Broadcast queues msg for every connected client. It never blocks; when the
// queue is full the message is dropped.
func (h *Hub) Broadcast(msg protocol.Message) {
	select {
	case h.broadcast <- msg:
	case <-h.shutdown:
	default:
		log.Printf("Warning: WS %s: Broadcast queue full, dropping %s", h.name, msg.Type)
	}
}

func (h *Hub) broadcastMessage(message protocol.Message) {
	jsonMsg, err := json.Marshal(message)
	if err != nil {
		log.Printf("WS %s: Failed to marshal broadcast message: %v", h.name, err)
		return
	}

	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	for client := range h.clients {
		select {
		case client.send <- jsonMsg:
		default:
			// Slow client, drop it
			close(client.send)
			delete(h.clients, client)
		}
	}
}

func (h *Hub) sendSnapshot(client *wsClient) {
	if h.snapshot == nil {
		return
	}
	msg, ok := h.snapshot()
	if !ok {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("WS %s: Failed to marshal snapshot: %v", h.name, err)
		return
	}

	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if !h.clients[client] {
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

// HandleWebSocket upgrades the request and attaches the connection to the hub
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WS %s: Failed to upgrade connection: %v", h.name, err)
		return
	}

	client := &wsClient{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 16),
		ip:   r.RemoteAddr,
	}

	select {
	case h.register <- client:
	case <-h.shutdown:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump reads sync requests from the connection until it closes
func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.shutdown:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WS %s: Read error: %v", c.hub.name, err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *wsClient) writePump() {
	ticker := time.NewTicker(50 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

func (c *wsClient) handleMessage(data []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("WS %s: Invalid message format: %v", c.hub.name, err)
		return
	}

	switch msg.Type {
	case protocol.TypeSyncRequest:
		c.hub.sendSnapshot(c)
	case protocol.TypePing:
	default:
		log.Printf("WS %s: Ignoring %q from %s", c.hub.name, msg.Type, c.ip)
	}
}
