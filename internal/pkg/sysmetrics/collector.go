// Package sysmetrics keeps the latest device-wide CPU, memory and latency
// snapshot. A single background loop refreshes it, independent of any
// viewer session, so slow whole-device reads never delay interface polling.
package sysmetrics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/endorses/mtmon/internal/pkg/constants"
	"github.com/endorses/mtmon/internal/pkg/logger"
	"github.com/endorses/mtmon/internal/pkg/telemetry"
)

// Snapshot is one refresh of the device-wide metrics. A nil field was
// unavailable during that refresh. Snapshots are never modified after
// they are published.
type Snapshot struct {
	CPUPercent *float64
	MemPercent *float64
	LatencyMs  *float64
	CapturedAt time.Time
}

// Source is the part of the device source the cache reads.
type Source interface {
	CPUPercent(ctx context.Context) (float64, error)
	MemPercent(ctx context.Context) (float64, error)
	LatencyMs(ctx context.Context) (float64, error)
}

// Collector refreshes system metrics in the background.
type Collector interface {
	// Start begins background collection. Calling Start twice has no effect.
	Start(ctx context.Context)

	// Stop halts collection and waits for the loop to exit.
	Stop()

	// Get returns the most recent snapshot.
	Get() Snapshot
}

// collector is the shared implementation structure.
type collector struct {
	src      Source
	interval time.Duration
	metrics  *telemetry.Metrics
	log      *slog.Logger

	snapshot atomic.Pointer[Snapshot]
	started  atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Collector reading from src every interval.
// A non-positive interval uses the default of three seconds.
func New(src Source, interval time.Duration, metrics *telemetry.Metrics) Collector {
	if interval <= 0 {
		interval = constants.SystemInterval
	}
	c := &collector{
		src:      src,
		interval: interval,
		metrics:  metrics,
		log:      logger.Component("sysmetrics"),
	}
	c.snapshot.Store(&Snapshot{})
	return c
}

// Start begins background metrics collection.
func (c *collector) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go c.collectLoop()
}

// Stop halts metrics collection.
func (c *collector) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// Get returns the most recent metrics snapshot.
func (c *collector) Get() Snapshot {
	return *c.snapshot.Load()
}

// collectLoop runs in the background collecting metrics.
func (c *collector) collectLoop() {
	defer c.wg.Done()

	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

// collect performs one refresh cycle and publishes the result.
func (c *collector) collect() {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("System metrics refresh panicked", "panic", r)
		}
	}()

	snap := &Snapshot{
		CPUPercent: c.read("cpu", c.src.CPUPercent),
		MemPercent: c.read("mem", c.src.MemPercent),
		LatencyMs:  c.read("latency", c.src.LatencyMs),
		CapturedAt: time.Now(),
	}
	c.snapshot.Store(snap)

	if c.metrics != nil {
		c.metrics.SystemRefreshSeconds.Observe(time.Since(start).Seconds())
	}
}

func (c *collector) read(field string, fn func(context.Context) (float64, error)) *float64 {
	v, err := fn(c.ctx)
	if err != nil {
		if c.ctx.Err() == nil {
			c.log.Debug("System metric unavailable", "field", field, "error", err)
		}
		if c.metrics != nil {
			c.metrics.SystemMissingTotal.WithLabelValues(field).Inc()
		}
		return nil
	}
	return &v
}
