// Package api exposes the run over HTTP: trigger endpoints, the last
// report, and a websocket stream of per-item progress events.
package api

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gofiber/websocket/v2"

	"github.com/nethserver/gitops-updater/internal/engine"
)

// Hub fans progress events out to every connected websocket client. A
// slow client drops events instead of stalling the run.
type Hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]chan []byte
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[*websocket.Conn]chan []byte)}
}

// Broadcast sends the event to all connected clients.
func (h *Hub) Broadcast(event engine.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("[ERROR] failed to encode progress event: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.conns {
		select {
		case ch <- payload:
		default:
			log.Printf("[WARN] progress client %s lagging, dropping event", conn.RemoteAddr())
		}
	}
}

// ServeProgress is the websocket handler: it registers the connection
// and writes events until the client goes away. A read pump watches the
// connection so a silent disconnect is noticed without waiting for the
// next broadcast.
func (h *Hub) ServeProgress(c *websocket.Conn) {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.conns[c] = ch
	h.mu.Unlock()
	defer h.remove(c)

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case payload := <-ch:
			if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

func (h *Hub) remove(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
	c.Close()
}

// clientCount is used by the status endpoint.
func (h *Hub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}
