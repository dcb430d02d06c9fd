package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/mini-city/internal/engine"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 256
)

// Message is the envelope for everything pushed over the stream.
type Message struct {
	Type    string `json:"type"`    // event category
	Payload any    `json:"payload"` // the event
}

// client is one connected stream. owner filters events; empty means all.
type client struct {
	conn  *websocket.Conn
	send  chan []byte
	owner string
}

// Hub fans journal events out to WebSocket clients. It implements
// engine.Journal so it can sit next to the database in a MultiJournal.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Record broadcasts events. A client whose buffer is full is dropped.
func (h *Hub) Record(_ context.Context, events ...engine.Event) error {
	if len(events) == 0 {
		return nil
	}
	frames := make([][]byte, len(events))
	for i, e := range events {
		b, err := json.Marshal(Message{Type: e.Category, Payload: e})
		if err != nil {
			return err
		}
		frames[i] = b
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		for i, e := range events {
			if c.owner != "" && c.owner != e.OwnerID {
				continue
			}
			select {
			case c.send <- frames[i]:
			default:
				slog.Warn("stream client too slow, dropping", "owner", c.owner)
				h.removeLocked(c)
			}
			if _, ok := h.clients[c]; !ok {
				break
			}
		}
	}
	return nil
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}

// ServeWs upgrades the request and streams events until the client goes
// away. ?owner= restricts the stream to one settlement.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer), owner: r.URL.Query().Get("owner")}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	slog.Info("stream client connected", "owner", c.owner, "remote", r.RemoteAddr)

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// readPump discards inbound frames and notices disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("stream client error", "error", err)
			}
			return
		}
	}
}

// writePump writes queued frames and keeps the connection alive. It exits
// when send is closed.
func (h *Hub) writePump(c *client) {
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
