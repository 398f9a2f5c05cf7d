package monitor

import (
	"math"
	"time"

	"github.com/endorses/mtmon/internal/pkg/rate"
	"github.com/endorses/mtmon/internal/pkg/sysmetrics"
)

// Outbound event names.
const (
	EventConnected     = "connected"
	EventIfaceSelected = "iface_selected"
	EventMetrics       = "metrics"
	EventError         = "error"
)

// TimeFormat is the UTC timestamp layout of metrics events.
const TimeFormat = "2006-01-02T15:04:05.000000Z"

// Connected acknowledges a new session.
type Connected struct {
	Msg string `json:"msg"`
}

// IfaceSelected echoes an interface selection.
type IfaceSelected struct {
	Iface string `json:"iface"`
}

// Metrics is one throughput sample merged with the latest system snapshot.
type Metrics struct {
	T          string   `json:"t"`
	RxKbps     float64  `json:"rx_kbps"`
	TxKbps     float64  `json:"tx_kbps"`
	CPUPercent *float64 `json:"cpu_percent"`
	MemPercent *float64 `json:"mem_percent"`
	LatencyMs  *float64 `json:"latency_ms"`
}

// Error reports a recoverable per-tick failure.
type Error struct {
	Message string `json:"message"`
}

// DeviceConfig is the informational config endpoint payload.
type DeviceConfig struct {
	RouterIP     string `json:"router_ip"`
	PollInterval int64  `json:"poll_interval"`
}

func newMetrics(at time.Time, r rate.Rate, snap sysmetrics.Snapshot) Metrics {
	return Metrics{
		T:          at.UTC().Format(TimeFormat),
		RxKbps:     round(r.RxKbps, 2),
		TxKbps:     round(r.TxKbps, 2),
		CPUPercent: roundPtr(snap.CPUPercent, 1),
		MemPercent: roundPtr(snap.MemPercent, 1),
		LatencyMs:  roundPtr(snap.LatencyMs, 1),
	}
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

func roundPtr(v *float64, places int) *float64 {
	if v == nil {
		return nil
	}
	r := round(*v, places)
	return &r
}
