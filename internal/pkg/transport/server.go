package transport

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/endorses/mtmon/internal/pkg/constants"
	"github.com/endorses/mtmon/internal/pkg/logger"
	"github.com/endorses/mtmon/internal/pkg/monitor"
	"github.com/endorses/mtmon/internal/pkg/source"
	"github.com/endorses/mtmon/internal/pkg/telemetry"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// EventSelectIface is the only inbound event.
const EventSelectIface = "select_iface"

// Lifecycle receives viewer events and answers the HTTP API.
// *monitor.Monitor implements it.
type Lifecycle interface {
	Connect(id string)
	SelectInterface(id, ifaceID string)
	Disconnect(id string)
	Interfaces(ctx context.Context) []source.Interface
	DeviceConfig() monitor.DeviceConfig
}

// Config configures the listener.
type Config struct {
	Listen string

	// StaticDir, when set, is served at / for the bundled dashboard.
	StaticDir string

	// TLS, when set, serves HTTPS and WSS instead of plain HTTP.
	TLS *tls.Config
}

// Server exposes the WebSocket event stream at /ws and the HTTP API.
type Server struct {
	cfg       Config
	lifecycle Lifecycle
	hub       *Hub
	metrics   *telemetry.Metrics
	upgrader  websocket.Upgrader
	log       *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
	conns    sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a server. hub must be the Emitter the lifecycle sends to.
func NewServer(cfg Config, lifecycle Lifecycle, hub *Hub, metrics *telemetry.Metrics) *Server {
	if cfg.Listen == "" {
		cfg.Listen = constants.DefaultListenAddr
	}
	if metrics == nil {
		metrics = hub.metrics
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:       cfg,
		lifecycle: lifecycle,
		hub:       hub,
		metrics:   metrics,
		log:       logger.Component("transport"),
		ctx:       ctx,
		cancel:    cancel,
		upgrader: websocket.Upgrader{
			// The dashboard may be served from another origin during development.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/interfaces", s.handleInterfaces)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", s.metrics.Handler())
	if s.cfg.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.cfg.StaticDir)))
	}
	return mux
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Listen, err)
	}
	if s.cfg.TLS != nil {
		listener = tls.NewListener(listener, s.cfg.TLS)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: constants.WriteWait,
	}

	s.mu.Lock()
	s.listener = listener
	s.server = srv
	s.mu.Unlock()

	s.log.Info("Server listening", "addr", listener.Addr().String(), "tls", s.cfg.TLS != nil)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Listen
}

// Stop closes every viewer connection, waits for their handlers to finish
// and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()
	s.hub.closeAll()

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.ctx.Err() != nil {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	s.conns.Add(1)
	defer s.conns.Done()

	id := uuid.NewString()
	c := s.hub.register(s.ctx, id, conn)
	go c.writeLoop()

	s.lifecycle.Connect(id)
	s.readLoop(c)

	s.lifecycle.Disconnect(id)
	s.hub.unregister(id)
	<-c.done
}

func (s *Server) readLoop(c *client) {
	log := s.log.With("session_id", c.id)

	c.conn.SetReadLimit(constants.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(constants.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(constants.PongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Debug("WebSocket closed", "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(constants.PongWait))

		var in inbound
		if err := json.Unmarshal(msg, &in); err != nil {
			log.Debug("Ignoring malformed frame", "error", err)
			continue
		}

		switch in.Event {
		case EventSelectIface:
			iface, err := parseSelect(in.Data)
			if err != nil {
				log.Debug("Ignoring malformed selection", "error", err)
				continue
			}
			s.lifecycle.SelectInterface(c.id, iface)
		default:
			log.Debug("Ignoring unknown event", "event", in.Event)
		}
	}
}

// parseSelect extracts the interface id from {"iface": ...}. The dashboard
// sends the id as a string; numbers and null are accepted too.
func parseSelect(data json.RawMessage) (string, error) {
	var body struct {
		Iface json.RawMessage `json:"iface"`
	}
	if len(data) == 0 {
		return "", nil
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return "", fmt.Errorf("decode select_iface: %w", err)
	}

	raw := strings.TrimSpace(string(body.Iface))
	switch {
	case raw == "" || raw == "null":
		return "", nil
	case strings.HasPrefix(raw, `"`):
		var id string
		if err := json.Unmarshal(body.Iface, &id); err != nil {
			return "", fmt.Errorf("decode iface: %w", err)
		}
		return strings.TrimSpace(id), nil
	default:
		var n json.Number
		if err := json.Unmarshal(body.Iface, &n); err != nil {
			return "", fmt.Errorf("decode iface: %w", err)
		}
		return n.String(), nil
	}
}

func (s *Server) handleInterfaces(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.lifecycle.Interfaces(r.Context()))
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.lifecycle.DeviceConfig())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, map[string]any{"status": "ok", "viewers": s.hub.Len()})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("Failed to write response", "error", err)
	}
}
