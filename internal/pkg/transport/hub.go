// Package transport carries monitor events to viewers over WebSocket and
// serves the HTTP API next to it.
package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/endorses/mtmon/internal/pkg/constants"
	"github.com/endorses/mtmon/internal/pkg/logger"
	"github.com/endorses/mtmon/internal/pkg/telemetry"
	"github.com/gorilla/websocket"
)

// Envelope is the frame format in both directions.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Hub routes events to connected viewers by session id. It implements
// monitor.Emitter.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	buffer  int
	metrics *telemetry.Metrics
	log     *slog.Logger
}

type client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a hub whose per-viewer queues hold buffer frames.
func NewHub(buffer int, metrics *telemetry.Metrics) *Hub {
	if buffer <= 0 {
		buffer = constants.SessionSendBuffer
	}
	if metrics == nil {
		metrics = telemetry.New()
	}
	return &Hub{
		clients: make(map[string]*client),
		buffer:  buffer,
		metrics: metrics,
		log:     logger.Component("hub"),
	}
}

// Emit queues an event for one viewer. It never blocks: a frame for a
// viewer that is gone or whose queue is full is dropped.
func (h *Hub) Emit(sessionID, event string, payload any) {
	data, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		h.log.Error("Failed to encode event", "session_id", sessionID, "event", event, "error", err)
		return
	}

	h.mu.RLock()
	c, ok := h.clients[sessionID]
	h.mu.RUnlock()
	if !ok {
		h.metrics.DroppedTotal.Inc()
		return
	}

	select {
	case c.send <- data:
	default:
		h.metrics.DroppedTotal.Inc()
		h.log.Warn("Viewer queue full, dropping event", "session_id", sessionID, "event", event)
	}
}

// Len returns the number of registered viewers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(parent context.Context, id string, conn *websocket.Conn) *client {
	ctx, cancel := context.WithCancel(parent)
	c := &client{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, h.buffer),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[id] = c
	h.mu.Unlock()
	return c
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()
	if ok {
		c.cancel()
	}
}

// closeAll cancels every viewer and closes its socket, which unblocks the
// read loops.
func (h *Hub) closeAll() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.cancel()
		if c.conn != nil {
			_ = c.conn.Close()
		}
	}
}

// writeLoop is the only writer of data frames on the connection. It closes
// the socket on exit so a blocked reader returns too.
func (c *client) writeLoop() {
	ticker := time.NewTicker(constants.PingPeriod)
	defer func() {
		ticker.Stop()
		c.cancel()
		_ = c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(constants.WriteWait))
			return
		}
	}
}
