// Package status exposes sync progress over HTTP and WebSocket and accepts
// MFA codes for the portal login.
package status

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/beekhof/shiftsync/internal/message"
	shiftsync "github.com/beekhof/shiftsync/internal/sync"

	"github.com/gorilla/websocket"
)

const (
	sendBuffer   = 16
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub keeps the latest status and pushes every update to connected
// WebSocket clients. It implements sync.Listener.
type Hub struct {
	mu      sync.Mutex
	latest  *shiftsync.Status
	clients map[*client]bool
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]bool)}
}

// Notify implements sync.Listener. Slow clients are dropped rather than
// blocking the publishing loop.
func (h *Hub) Notify(s shiftsync.Status) {
	data, err := json.Marshal(s.Message())
	if err != nil {
		log.Printf("Warning: failed to encode status: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = &s
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// Latest returns the most recent status, if any.
func (h *Hub) Latest() (shiftsync.Status, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest == nil {
		return shiftsync.Status{}, false
	}
	return *h.latest, true
}

// register adds c and queues the latest status for it.
func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
	if h.latest != nil {
		if data, err := json.Marshal(h.latest.Message()); err == nil {
			c.send <- data
		}
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// readPump forwards submitMFA messages from the client to inbound until the
// connection closes.
func (h *Hub) readPump(c *client, inbound chan<- message.Message) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg message.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("Warning: ignoring malformed websocket message: %v", err)
			continue
		}
		if msg.Kind != message.KindSubmitMFA || msg.Code == "" {
			continue
		}
		select {
		case inbound <- message.SubmitMFA(msg.Code):
		default:
			log.Printf("Warning: dropping MFA code, dispatcher is busy")
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
