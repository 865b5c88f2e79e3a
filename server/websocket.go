package server

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/halcyonlabs/streamwatch/jobs"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Local operator tool; the dashboard may be served from another port.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans job status updates out to connected websocket clients. It
// satisfies jobs.Notifier, so it can be attached directly to the manager.
type Hub struct {
	log *zap.SugaredLogger

	mu      sync.RWMutex
	clients map[*wsClient]bool
	closed  bool
}

// wsClient's send channel is never closed; done signals writePump exit.
// Closing send would race with broadcast, which writes to it outside the
// hub lock. done is closed exactly once, under the hub lock, by whichever
// of remove/Close still finds the client registered.
type wsClient struct {
	conn *websocket.Conn
	send chan interface{}
	done chan struct{}
}

func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[*wsClient]bool),
	}
}

// HandleWebSocket upgrades the connection and registers the client.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorw("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan interface{}, 64),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[client] = true
	n := len(h.clients)
	h.mu.Unlock()

	h.log.Infow("WebSocket client connected", "remote", r.RemoteAddr, "clients", n)

	go h.writePump(client)
	go h.readPump(client)
}

// JobUpdated implements jobs.Notifier. Must not block: slow clients drop
// updates instead of backpressuring the orchestrator.
func (h *Hub) JobUpdated(status jobs.Status) {
	h.broadcast(map[string]interface{}{
		"type": "job_update",
		"job":  status,
	})
}

// broadcast sends a message to every connected client, skipping clients
// whose send buffer is full.
func (h *Hub) broadcast(msg interface{}) int {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range clients {
		select {
		case <-c.done:
			// Client is gone
		case c.send <- msg:
			sent++
		default:
			// Channel full - skip
		}
	}
	return sent
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
	h.closed = true
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*wsClient]bool)
	for _, c := range clients {
		close(c.done)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.conn.Close()
	}
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.done)
	}
	h.mu.Unlock()
	c.conn.Close()
}

// writePump serializes all writes for one client.
func (h *Hub) writePump(c *wsClient) {
	for {
		select {
		case msg := <-c.send:
			if err := c.conn.WriteJSON(msg); err != nil {
				h.log.Debugw("WebSocket write failed, dropping client", "error", err)
				h.remove(c)
				return
			}
		case <-c.done:
			c.conn.Close()
			return
		}
	}
}

// readPump discards inbound frames and detects disconnects.
func (h *Hub) readPump(c *wsClient) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.remove(c)
			return
		}
	}
}
