// Package monitor implements viewer session lifecycle and the per-session
// polling loop that turns interface counters into metrics events.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/endorses/mtmon/internal/pkg/constants"
	"github.com/endorses/mtmon/internal/pkg/logger"
	"github.com/endorses/mtmon/internal/pkg/rate"
	"github.com/endorses/mtmon/internal/pkg/session"
	"github.com/endorses/mtmon/internal/pkg/source"
	"github.com/endorses/mtmon/internal/pkg/sysmetrics"
	"github.com/endorses/mtmon/internal/pkg/telemetry"
)

// Emitter delivers an event to a single session.
type Emitter interface {
	Emit(sessionID, event string, payload any)
}

// Snapshotter provides the latest shared system snapshot.
type Snapshotter interface {
	Get() sysmetrics.Snapshot
}

// Config controls polling cadence and rate computation.
type Config struct {
	// RouterAddr is reported by DeviceConfig.
	RouterAddr string

	PollInterval time.Duration
	IdleInterval time.Duration
	Gate         rate.Gate
	Engine       rate.Engine
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock replaces time.Now for sample timestamps and tick accounting.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithMetrics sets the Prometheus instruments.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(m *Monitor) { m.metrics = metrics }
}

// Monitor handles connect, select and disconnect events and runs one
// poller per session that has selected an interface.
type Monitor struct {
	cfg      Config
	src      source.Source
	system   Snapshotter
	emit     Emitter
	registry *session.Registry
	metrics  *telemetry.Metrics
	now      func() time.Time
	log      *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	closed  bool
	wg      sync.WaitGroup
	pollers atomic.Int64
}

// New creates a Monitor. Zero durations in cfg take the package defaults
// and a zero Gate accepts [500ms, 2s].
func New(cfg Config, src source.Source, system Snapshotter, emit Emitter, opts ...Option) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = constants.DefaultPollInterval
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = constants.IdleInterval
	}
	if cfg.Gate == (rate.Gate{}) {
		cfg.Gate = rate.DefaultGate()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		cfg:      cfg,
		src:      src,
		system:   system,
		emit:     emit,
		registry: session.NewRegistry(),
		now:      time.Now,
		log:      logger.Component("monitor"),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = telemetry.New()
	}
	return m
}

// Registry exposes the session table.
func (m *Monitor) Registry() *session.Registry {
	return m.registry
}

// ActivePollers returns the number of running poller goroutines.
func (m *Monitor) ActivePollers() int64 {
	return m.pollers.Load()
}

// Connect registers a session with no interface selected.
func (m *Monitor) Connect(id string) {
	m.registry.Create(m.ctx, id)
	m.metrics.ActiveSessions.Set(float64(m.registry.Len()))
	m.log.Info("Viewer connected", "session_id", id)
	m.send(id, EventConnected, Connected{Msg: "ok"})
}

// SelectInterface points the session at ifaceID and starts its poller if
// none is running. The baseline is reset so the next read is not compared
// against a sample of another interface. An empty ifaceID idles the poller.
func (m *Monitor) SelectInterface(id, ifaceID string) {
	var iface *source.Interface
	if ifaceID != "" {
		iface = &source.Interface{ID: ifaceID}
	}

	owner, ok := m.registry.Select(id, iface)
	if ok {
		m.log.Info("Viewer selected interface", "session_id", id, "iface", ifaceID, "new_poller", owner != 0)
	} else {
		m.log.Warn("Interface selected by unknown session", "session_id", id, "iface", ifaceID)
	}
	if owner != 0 {
		m.spawn(id, owner)
	}
	m.send(id, EventIfaceSelected, IfaceSelected{Iface: ifaceID})
}

// Disconnect removes the session. Its poller observes the removal and exits.
func (m *Monitor) Disconnect(id string) {
	if m.registry.Remove(id) {
		m.log.Info("Viewer disconnected", "session_id", id)
	}
	m.metrics.ActiveSessions.Set(float64(m.registry.Len()))
}

// Interfaces queries the device interface list. Discovery failures are
// logged and reported as an empty list.
func (m *Monitor) Interfaces(ctx context.Context) []source.Interface {
	ifaces, err := m.src.Interfaces(ctx)
	if err != nil {
		m.log.Error("Interface discovery failed", "error", err)
		return []source.Interface{}
	}
	if ifaces == nil {
		return []source.Interface{}
	}
	return ifaces
}

// DeviceConfig returns the device address and nominal poll interval.
func (m *Monitor) DeviceConfig() DeviceConfig {
	return DeviceConfig{
		RouterIP:     m.cfg.RouterAddr,
		PollInterval: m.cfg.PollInterval.Milliseconds(),
	}
}

// Close stops every poller, waits for them to exit and drops the
// remaining sessions. Later Connect calls register sessions that never poll.
func (m *Monitor) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()

	ids := m.registry.IDs()
	for _, id := range ids {
		m.registry.Remove(id)
	}
	m.metrics.ActiveSessions.Set(float64(m.registry.Len()))
	if len(ids) > 0 {
		m.log.Info("Monitor closed", "dropped_sessions", len(ids))
	}
}

func (m *Monitor) spawn(id string, owner uint64) {
	ctx, ok := m.registry.Context(id)
	if !ok {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		m.registry.Release(id, owner)
		return
	}
	m.wg.Add(1)
	go m.poll(ctx, id, owner)
}

func (m *Monitor) send(id, event string, payload any) {
	m.emit.Emit(id, event, payload)
	m.metrics.EventsTotal.WithLabelValues(event).Inc()
}
