package remote

import (
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"touchmap/internal/keymap"
	"touchmap/internal/protocol"
)

// reconnectDelay is the pause between connection attempts
var reconnectDelay = 5 * time.Second

// Subscriber follows the document pushes of the backend over WebSocket and
// reconnects when the connection drops
type Subscriber struct {
	wsURL string
	token string
	send  chan protocol.Message
	done  chan struct{}
	once  sync.Once

	// OnDocument is called with every pushed document and its origin
	OnDocument func(doc keymap.Document, origin string)

	mu          sync.Mutex
	isConnected bool
}

// NewSubscriber creates a subscriber for the backend at baseURL
func NewSubscriber(baseURL, token string) (*Subscriber, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, err
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path += "/ws"

	return &Subscriber{
		wsURL: u.String(),
		token: token,
		send:  make(chan protocol.Message, 8),
		done:  make(chan struct{}),
	}, nil
}

// Start begins the client loop (connect & process)
func (c *Subscriber) Start() {
	go c.loop()
}

func (c *Subscriber) loop() {
	for {
		c.connect()

		// If connect returns, we disconnected. Wait a bit and retry.
		select {
		case <-c.done:
			return
		case <-time.After(reconnectDelay):
			log.Println("Remote WS: Attempting reconnection...")
		}
	}
}

func (c *Subscriber) connect() {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	log.Printf("Remote WS: Connecting to %s", c.wsURL)
	conn, _, err := websocket.DefaultDialer.Dial(c.wsURL, header)
	if err != nil {
		log.Printf("Remote WS: Connection failed: %v", err)
		return
	}
	defer conn.Close()

	c.setConnected(true)
	defer c.setConnected(false)
	log.Println("Remote WS: Connected to backend")

	connDone := make(chan struct{})
	stopWrite := make(chan struct{})
	go func() {
		defer close(connDone)
		c.writePump(conn, stopWrite)
	}()

	c.readPump(conn)

	close(stopWrite)
	<-connDone
}

func (c *Subscriber) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(maxBody)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(10*time.Second))
	})

	// Close the connection when Close is called so ReadMessage returns
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-c.done:
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("Remote WS: Read error: %v", err)
			}
			return
		}

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("Remote WS: Invalid message: %v", err)
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Subscriber) writePump(conn *websocket.Conn, stop <-chan struct{}) {
	for {
		select {
		case msg := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("Remote WS: Write error: %v", err)
				return
			}
		case <-stop:
			return
		case <-c.done:
			return
		}
	}
}

func (c *Subscriber) handleMessage(msg protocol.Message) {
	if msg.Type != protocol.TypeDocument {
		return
	}

	var payload protocol.DocumentPayload
	if err := protocol.DecodePayload(msg, &payload); err != nil {
		log.Printf("Remote WS: %v", err)
		return
	}
	doc, err := keymap.Decode(payload.Document)
	if err != nil {
		log.Printf("Remote WS: Ignoring invalid pushed document: %v", err)
		return
	}

	log.Printf("Remote WS: Received document (%s, %d keys)", payload.Origin, doc.KeyMaps.Len())
	if c.OnDocument != nil {
		c.OnDocument(doc, payload.Origin)
	}
}

// SendSyncRequest asks the backend for the current document
func (c *Subscriber) SendSyncRequest() {
	select {
	case c.send <- protocol.Message{Type: protocol.TypeSyncRequest}:
	default:
	}
}

func (c *Subscriber) setConnected(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = v
}

// IsConnected returns true if the subscriber is connected to the backend
func (c *Subscriber) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnected
}

// Close stops the subscriber
func (c *Subscriber) Close() {
	c.once.Do(func() { close(c.done) })
}
