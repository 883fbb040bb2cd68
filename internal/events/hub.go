package events

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxControlMessageSize = 512
)

// Control message actions a client may send.
const (
	actionSubscribe   = "subscribe_instance"
	actionUnsubscribe = "unsubscribe_instance"
)

// controlMessage is what clients send to manage their subscriptions.
type controlMessage struct {
	Action     string    `json:"action"`
	InstanceID uuid.UUID `json:"instance_id"`
}

// Hub bridges websocket connections to the broadcaster. Each connection
// may subscribe to any number of instances and receives their events as
// JSON messages.
type Hub struct {
	broadcaster *Broadcaster
	upgrader    websocket.Upgrader
	logger      *slog.Logger
}

// NewHub creates a websocket hub on top of the broadcaster.
func NewHub(broadcaster *Broadcaster, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		broadcaster: broadcaster,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger.With("component", "event_hub"),
	}
}

// ServeHTTP upgrades the request to a websocket connection and runs it
// until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		hub:    h,
		conn:   conn,
		send:   make(chan Event, subscriptionBuffer),
		subs:   make(map[uuid.UUID]*Subscription),
		closed: make(chan struct{}),
	}

	go client.writePump()
	client.readPump()
}

// wsClient is one websocket connection and its subscriptions.
type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Event

	mu   sync.Mutex
	subs map[uuid.UUID]*Subscription

	closeOnce sync.Once
	closed    chan struct{}
}

func (c *wsClient) subscribe(instanceID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.subs[instanceID]; exists {
		return
	}

	sub := c.hub.broadcaster.Subscribe(instanceID)
	c.subs[instanceID] = sub

	// Pump this subscription's events into the connection's send queue.
	go func() {
		for ev := range sub.Events() {
			select {
			case c.send <- ev:
			case <-c.closed:
				return
			}
		}
	}()
}

func (c *wsClient) unsubscribe(instanceID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sub, exists := c.subs[instanceID]; exists {
		c.hub.broadcaster.Unsubscribe(sub)
		delete(c.subs, instanceID)
	}
}

func (c *wsClient) teardown() {
	c.closeOnce.Do(func() {
		close(c.closed)

		c.mu.Lock()
		for _, sub := range c.subs {
			c.hub.broadcaster.Unsubscribe(sub)
		}
		c.subs = map[uuid.UUID]*Subscription{}
		c.mu.Unlock()

		_ = c.conn.Close()
	})
}

// readPump handles inbound control messages until the connection drops.
func (c *wsClient) readPump() {
	defer c.teardown()

	c.conn.SetReadLimit(maxControlMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read error", "error", err)
			}
			return
		}

		var msg controlMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.InstanceID == uuid.Nil {
			c.hub.logger.Debug("ignoring malformed control message", "error", err)
			continue
		}

		switch msg.Action {
		case actionSubscribe:
			c.subscribe(msg.InstanceID)
		case actionUnsubscribe:
			c.unsubscribe(msg.InstanceID)
		default:
			c.hub.logger.Debug("ignoring unknown control action", "action", msg.Action)
		}
	}
}

// writePump serializes queued events onto the connection and keeps the
// connection alive with pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.teardown()
	}()

	for {
		select {
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}
