// Package eventemitter is an example websocket-backed implementation of
// the coordinator's opaque EventEmitter collaborator. It exists for the
// demonstration command; the core package never imports it.
package eventemitter

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Hub accepts websocket connections on its HTTP handler and fans every
// Emit call out to all currently connected clients.
type Hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}

	allowOrigins []string
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(ctx context.Context, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return wsjson.Write(ctx, c.conn, payload)
}

// New builds a Hub. allowOrigins is forwarded to websocket.AcceptOptions;
// leave it empty to accept only same-origin connections.
func New(log *slog.Logger, allowOrigins ...string) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{log: log, clients: map[*client]struct{}{}, allowOrigins: allowOrigins}
}

// ServeHTTP upgrades the request to a websocket and keeps the connection
// registered until the client disconnects. Clients are receive-only: the
// hub never reads application messages from them, only pings.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.allowOrigins})
	if err != nil {
		h.log.Error("eventemitter: accept failed", "error", err)
		return
	}
	c := &client{conn: conn}
	h.add(c)
	defer func() {
		h.remove(c)
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}()

	ctx := r.Context()
	for {
		if err := conn.Ping(ctx); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(30 * time.Second):
		}
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// Emit implements coordinator.EventEmitter: broadcast event/payload to
// every connected client, dropping clients that fail to keep up.
func (h *Hub) Emit(ctx context.Context, event string, payload map[string]any) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	msg := map[string]any{"event": event, "data": payload}
	for _, c := range targets {
		writeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := c.write(writeCtx, msg)
		cancel()
		if err != nil {
			h.log.Warn("eventemitter: dropping slow client", "error", err)
			_ = c.conn.Close(websocket.StatusPolicyViolation, "backpressure")
			h.remove(c)
		}
	}
}
