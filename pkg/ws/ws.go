// Package ws pushes realtime messages to browsers over gorilla/websocket.
// Each client subscribes to a set of topics (table names) when it connects;
// the hub only forwards messages published on those topics.
//
//	hub := ws.NewHub()
//	go hub.Run(ctx)
//	client, err := ws.Upgrade(w, r, hub, []string{"orders"}, nil)
//	hub.Publish("orders", payload)
package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/uvci/resto/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

var errHubStopped = errors.New("ws: hub stopped")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// SetCheckOrigin replaces the allow-all origin check.
func SetCheckOrigin(fn func(r *http.Request) bool) {
	upgrader.CheckOrigin = fn
}

// Client is one connected socket.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	topics  map[string]bool
	onClose func()
	once    sync.Once
}

// Send queues data for this client only. A full buffer drops the message.
func (c *Client) Send(data []byte) {
	defer func() { _ = recover() }() // send on a closed channel after unregister
	select {
	case c.send <- data:
	default:
	}
}

// Subscribed reports whether the client listens to topic.
func (c *Client) Subscribed(topic string) bool { return c.topics[topic] }

func (c *Client) close() {
	c.once.Do(func() {
		close(c.send)
		if c.onClose != nil {
			c.onClose()
		}
	})
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("ws: unexpected close", "error", err)
			}
			return
		}
		if c.hub.OnMessage != nil {
			c.hub.OnMessage(c, msg)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

type outbound struct {
	topic string
	data  []byte
}

// Hub tracks connected clients and routes topic messages to them.
type Hub struct {
	clients    map[*Client]struct{}
	count      atomic.Int64
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	// OnMessage is called for every inbound client message.
	OnMessage func(c *Client, msg []byte)
	// OnCountChange observes the number of connected clients.
	OnCountChange func(n int)
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run is the hub loop. It closes every client when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for c := range h.clients {
				h.drop(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.counted(1)

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				if !c.topics[msg.topic] {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	c.close()
	h.counted(-1)
}

func (h *Hub) counted(delta int64) {
	n := h.count.Add(delta)
	if h.OnCountChange != nil {
		h.OnCountChange(int(n))
	}
}

// Publish queues data for every client subscribed to topic.
func (h *Hub) Publish(topic string, data []byte) {
	select {
	case h.broadcast <- outbound{topic: topic, data: data}:
	case <-h.done:
	}
}

func (h *Hub) ClientCount() int { return int(h.count.Load()) }

// Upgrade turns the request into a websocket client subscribed to topics.
// onClose runs exactly once when the client goes away.
func Upgrade(w http.ResponseWriter, r *http.Request, hub *Hub, topics []string, onClose func()) (*Client, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}

	set := make(map[string]bool, len(topics))
	for _, t := range topics {
		set[t] = true
	}
	c := &Client{hub: hub, conn: conn, send: make(chan []byte, sendBuffer), topics: set, onClose: onClose}
	select {
	case hub.register <- c:
	case <-hub.done:
		conn.Close()
		return nil, errHubStopped
	}
	go c.writePump()
	go c.readPump()
	return c, nil
}
