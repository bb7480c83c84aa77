// Package realtime holds the in-process fan-out hub that keeps live
// subscriber connections informed of application lifecycle events.
//
// Delivery is best-effort, at-most-once and unordered: there is no ack, no
// retry and no replay. A subscriber that is offline at broadcast time never
// receives that event; clients re-fetch authoritative state over HTTP.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/tukio/core"
	"github.com/trezcool/tukio/core/user"
)

// Conn is a live push channel capable of delivering discrete message frames.
// The HTTP layer provides the concrete transport (server-sent events).
type Conn interface {
	Send(payload []byte) error
}

// Handshake is the acknowledgment sent to a subscriber right after Connect.
type Handshake struct {
	Type string    `json:"type"`
	User user.User `json:"user"`
}

type keepalive struct {
	Type string `json:"type"`
}

type subscriber struct {
	conn Conn
	usr  user.User
	stop chan struct{}
}

// Hub is the process-wide registry of live subscriber connections.
// Construct one at startup and Close it at shutdown.
type Hub struct {
	mu     sync.RWMutex
	subs   map[Conn]*subscriber
	logger core.Logger

	// keepalive ping interval; prevents idle-timeout disconnection by
	// intermediaries
	pingInterval time.Duration
}

func NewHub(logger core.Logger, pingInterval time.Duration) *Hub {
	return &Hub{
		subs:         make(map[Conn]*subscriber),
		logger:       logger,
		pingInterval: pingInterval,
	}
}

// Connect registers `conn` for `usr`, immediately acknowledges the
// subscription and starts the periodic keepalive ping.
func (h *Hub) Connect(conn Conn, usr user.User) {
	sub := &subscriber{conn: conn, usr: usr, stop: make(chan struct{})}

	h.mu.Lock()
	h.subs[conn] = sub
	h.mu.Unlock()

	if payload, err := json.Marshal(Handshake{Type: "connected", User: usr}); err == nil {
		if err = conn.Send(payload); err != nil {
			h.logger.Debug("realtime: handshake push failed", err)
		}
	}

	go h.keepalive(sub)
}

// Disconnect removes `conn` from the registry and cancels its keepalive.
// It is idempotent; disconnecting an unknown connection is a no-op.
func (h *Hub) Disconnect(conn Conn) {
	h.mu.Lock()
	sub, ok := h.subs[conn]
	if ok {
		delete(h.subs, conn)
	}
	h.mu.Unlock()

	if ok {
		close(sub.stop)
	}
}

// Broadcast pushes `payload` to every live subscriber matching `pred`.
// A per-connection push failure is logged and skipped; it neither aborts the
// broadcast nor removes the connection (removal only happens via Disconnect,
// wired to the transport's own close event).
func (h *Hub) Broadcast(payload interface{}, pred func(usr user.User) bool) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("realtime: marshalling broadcast payload", errors.Wrap(err, "marshalling payload"))
		return
	}

	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		if pred != nil && !pred(sub.usr) {
			continue
		}
		if err := sub.conn.Send(data); err != nil {
			h.logger.Debug("realtime: broadcast push failed", err)
		}
	}
}

// Len reports the number of live connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects all subscribers.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[Conn]*subscriber)
	h.mu.Unlock()

	for _, sub := range subs {
		close(sub.stop)
	}
}

func (h *Hub) keepalive(sub *subscriber) {
	if h.pingInterval <= 0 {
		return
	}
	payload, _ := json.Marshal(keepalive{Type: "ping"})

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-sub.stop:
			return
		case <-ticker.C:
			if err := sub.conn.Send(payload); err != nil {
				h.logger.Debug("realtime: keepalive push failed", err)
			}
		}
	}
}
