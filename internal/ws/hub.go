package ws

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Avanquish/DoughNation-sub000/internal/events"
)

type client struct {
	conn *websocket.Conn
	// gorilla connections support one concurrent writer.
	wmu sync.Mutex
}

func (c *client) writeJSON(v any) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.WriteJSON(v)
}

// Hub tracks the UI connections of the session and relays bus events to
// all of them.
type Hub struct {
	mu    sync.RWMutex
	conns map[*client]struct{}
	log   *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		conns: make(map[*client]struct{}),
		log:   log,
	}
}

// Run forwards every event from ch to the connected clients until ch is
// closed or ctx is done.
func (h *Hub) Run(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			h.BroadcastAll(e)
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// BroadcastAll sends the payload to every connection. A connection that
// fails is closed; its reader loop then unregisters it.
func (h *Hub) BroadcastAll(payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.conns {
		if err := c.writeJSON(payload); err != nil {
			h.log.Debug("ws: write failed, closing", "err", err)
			c.conn.Close()
		}
	}
}
