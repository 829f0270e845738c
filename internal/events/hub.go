package events

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/strefethen/yamaha-remote-go/internal/api"
	"github.com/strefethen/yamaha-remote-go/internal/yamaha"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // local network remote controls
	},
}

// Event types sent to clients.
const (
	EventState  = "state"
	EventChange = "change"
)

// Event is one message on the stream. A "state" event carries the full
// snapshot; a "change" event carries one property.
type Event struct {
	Type      string          `json:"type"`
	Property  yamaha.Property `json:"property,omitempty"`
	Value     any             `json:"value,omitempty"`
	State     *yamaha.State   `json:"state,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// Subscriber is the part of yamaha.Receiver the hub listens to.
type Subscriber interface {
	SubscribeAll(fn yamaha.Listener) (unsubscribe func())
}

type client struct {
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string
	closeOnce  sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// Hub fans receiver change notifications out to WebSocket clients.
type Hub struct {
	logger *log.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates an empty hub.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// Attach forwards every change of source to connected clients. The listener
// never blocks: clients that cannot keep up are dropped.
func (h *Hub) Attach(source Subscriber) (detach func()) {
	return source.SubscribeAll(func(change yamaha.Change) {
		h.Broadcast(Event{Type: EventChange, Property: change.Property, Value: change.Value})
	})
}

// Broadcast sends event to every client.
func (h *Hub) Broadcast(event Event) {
	data, err := encode(event)
	if err != nil {
		h.logger.Printf("WS: failed to marshal %s event: %v", event.Type, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Printf("WS: dropping slow client %s", c.remoteAddr)
			delete(h.clients, c)
			c.close()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

// Handler upgrades the request and streams events, starting with a snapshot.
func (h *Hub) Handler(snapshot func() yamaha.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Printf("WS: upgrade failed from %s: %v", r.RemoteAddr, err)
			return
		}

		c := &client{conn: conn, send: make(chan []byte, sendBuffer), remoteAddr: r.RemoteAddr}

		state := snapshot()
		initial, err := encode(Event{Type: EventState, State: &state})
		if err != nil {
			conn.Close()
			return
		}
		c.send <- initial

		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			conn.Close()
			return
		}
		h.clients[c] = struct{}{}
		count := len(h.clients)
		h.mu.Unlock()
		h.logger.Printf("WS: client connected from %s (total: %d)", c.remoteAddr, count)

		go h.writePump(c)
		h.readPump(c)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Printf("WS: client disconnected from %s (total: %d)", c.remoteAddr, count)
}

// readPump discards client messages and notices disconnects.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func encode(event Event) ([]byte, error) {
	if event.Timestamp == "" {
		event.Timestamp = api.RFC3339Millis(time.Now())
	}
	return json.Marshal(event)
}
