// Package source defines the device metrics capability consumed by the
// polling engine and the system metrics cache.
package source

import (
	"context"
	"errors"
	"strconv"
)

var (
	// ErrUnavailable reports a device read that failed or timed out.
	ErrUnavailable = errors.New("metrics source unavailable")

	// ErrNoSuchObject reports that the device does not expose the requested value.
	ErrNoSuchObject = errors.New("no such object")

	// ErrNoData reports a read that succeeded but returned nothing usable.
	ErrNoData = errors.New("no data")
)

// Width is the declared bit width of an interface octet counter.
type Width int

const (
	Width32 Width = 32
	Width64 Width = 64
)

func (w Width) String() string {
	return strconv.Itoa(int(w)) + "-bit"
}

// Interface describes one device interface.
type Interface struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Counters is a single read of an interface's octet counters.
type Counters struct {
	In    uint64
	Out   uint64
	Width Width
}

// Source exposes discrete device reads. Every method may be called
// concurrently and carries its own timeout policy.
type Source interface {
	// Interfaces lists the device interfaces, freshly queried.
	Interfaces(ctx context.Context) ([]Interface, error)

	// Counters reads the octet counters of one interface, preferring
	// 64-bit counters and falling back to 32-bit ones.
	Counters(ctx context.Context, ifaceID string) (Counters, error)

	// CPUPercent returns the average processor load. ErrNoData if none is reported.
	CPUPercent(ctx context.Context) (float64, error)

	// MemPercent returns RAM usage in percent. ErrNoData if no RAM entry is usable.
	MemPercent(ctx context.Context) (float64, error)

	// LatencyMs returns the round trip time of one reachability probe.
	LatencyMs(ctx context.Context) (float64, error)
}
