package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/endorses/mtmon/internal/pkg/rate"
	"github.com/endorses/mtmon/internal/pkg/session"
)

// poll runs the tick loop of one session until the session is removed,
// owner loses the polling claim or the monitor is closed. Ticks of one
// session never overlap.
func (m *Monitor) poll(ctx context.Context, id string, owner uint64) {
	defer m.wg.Done()

	m.pollers.Add(1)
	m.metrics.ActivePollers.Inc()
	defer func() {
		m.pollers.Add(-1)
		m.metrics.ActivePollers.Dec()
	}()
	defer m.registry.Release(id, owner)

	log := m.log.With("session_id", id, "owner", owner)
	log.Debug("Poller started")
	defer log.Debug("Poller stopped")

	for {
		st, ok := m.registry.Get(id)
		if !ok || !st.Polling || st.Owner != owner || ctx.Err() != nil {
			return
		}

		wait := m.cfg.IdleInterval
		if st.Interface != nil {
			wait = m.tick(ctx, log, st)
		}
		if !sleep(ctx, wait) {
			return
		}
	}
}

// tick performs one read and returns how long to wait before the next one.
func (m *Monitor) tick(ctx context.Context, log *slog.Logger, st session.State) (wait time.Duration) {
	start := m.now()
	defer func() {
		if r := recover(); r != nil {
			log.Error("Poll tick panicked", "panic", r)
			m.send(st.ID, EventError, Error{Message: fmt.Sprint(r)})
			wait = m.cfg.PollInterval
		}
	}()

	iface := st.Interface.ID
	c, err := m.src.Counters(ctx, iface)
	if err != nil {
		if ctx.Err() != nil || !m.registry.Has(st.ID) {
			return 0
		}
		m.metrics.PollErrorsTotal.Inc()
		log.Warn("Counter read failed", "iface", iface, "error", err)
		m.send(st.ID, EventError, Error{Message: err.Error()})
		return m.remaining(start)
	}

	curr := rate.Sample{In: c.In, Out: c.Out, Width: c.Width, At: m.now()}
	if !m.registry.StorePrevious(st.ID, st.Generation, curr) {
		// Reselected or disconnected while reading; the loop re-reads state.
		return 0
	}

	if st.Previous == nil {
		log.Debug("Baseline established", "iface", iface, "width", c.Width.String())
		return m.cfg.PollInterval
	}

	dt := curr.At.Sub(st.Previous.At)
	if !m.cfg.Gate.Accept(dt) {
		m.metrics.RebasesTotal.Inc()
		log.Debug("Sample outside interval gate, rebasing", "iface", iface, "dt", dt)
		return m.cfg.PollInterval
	}

	r, ok := m.cfg.Engine.Rate(*st.Previous, curr)
	if !ok {
		m.metrics.ResetsTotal.Inc()
		log.Info("Interface counters reset, rebasing", "iface", iface,
			"prev_in", st.Previous.In, "in", curr.In, "prev_out", st.Previous.Out, "out", curr.Out)
		return m.remaining(start)
	}
	m.send(st.ID, EventMetrics, newMetrics(curr.At, r, m.system.Get()))
	return m.remaining(start)
}

// remaining is the rest of the nominal interval after a tick that began at start.
func (m *Monitor) remaining(start time.Time) time.Duration {
	return max(0, m.cfg.PollInterval-m.now().Sub(start))
}

// sleep waits for d or until ctx is done. It reports false if ctx ended.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
