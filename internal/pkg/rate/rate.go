// Package rate converts pairs of octet counter samples into throughput.
package rate

import (
	"fmt"
	"strings"
	"time"

	"github.com/endorses/mtmon/internal/pkg/constants"
	"github.com/endorses/mtmon/internal/pkg/source"
)

// Modulus is the wraparound modulus applied to every counter, whatever its
// declared width. Devices observed in practice wrap at 32 bits even when
// they report wider fields, and a real 64-bit wrap never happens inside one
// polling interval.
const Modulus = uint64(1) << 32

// Sample is one timestamped counter reading.
type Sample struct {
	In    uint64
	Out   uint64
	Width source.Width
	At    time.Time
}

// Rate is the throughput between two samples, in kilobits per second.
type Rate struct {
	RxKbps float64
	TxKbps float64
}

// Mode selects how elapsed time enters the rate.
type Mode int

const (
	// ModePerTick reports the bits moved in one tick, assuming the tick
	// lasted one second. The validity gate keeps ticks close to that.
	ModePerTick Mode = iota

	// ModeElapsed divides by the measured time between the samples.
	ModeElapsed
)

func (m Mode) String() string {
	switch m {
	case ModePerTick:
		return "tick"
	case ModeElapsed:
		return "elapsed"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode accepts "tick" or "elapsed".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "tick":
		return ModePerTick, nil
	case "elapsed":
		return ModeElapsed, nil
	}
	return ModePerTick, fmt.Errorf("unknown rate mode %q (want tick or elapsed)", s)
}

// Delta returns the increase from prev to curr, compensating one wrap
// at Modulus when curr is smaller than prev. ok is false when curr fell by
// at least Modulus, which one wrap cannot explain: the counter was reset.
func Delta(prev, curr uint64) (delta uint64, ok bool) {
	if curr >= prev {
		return curr - prev, true
	}
	if prev-curr >= Modulus {
		return 0, false
	}
	return curr + Modulus - prev, true
}

// Elapsed returns the time between two samples. Non-positive spans are
// clamped to one second.
func Elapsed(prev, curr Sample) time.Duration {
	dt := curr.At.Sub(prev.At)
	if dt <= 0 {
		return time.Second
	}
	return dt
}

// Engine computes rates. The zero value uses ModePerTick.
type Engine struct {
	Mode Mode
}

// Rate computes rx/tx throughput from prev to curr. ok is false when
// either counter was reset between the samples; the pair must then be
// skipped and curr used as a new baseline. It has no side effects.
func (e Engine) Rate(prev, curr Sample) (r Rate, ok bool) {
	in, inOK := Delta(prev.In, curr.In)
	out, outOK := Delta(prev.Out, curr.Out)
	if !inOK || !outOK {
		return Rate{}, false
	}
	dt := Elapsed(prev, curr)
	return Rate{RxKbps: e.kbps(in, dt), TxKbps: e.kbps(out, dt)}, true
}

func (e Engine) kbps(delta uint64, dt time.Duration) float64 {
	kbits := float64(delta) * 8 / 1000
	if e.Mode == ModeElapsed {
		return kbits / dt.Seconds()
	}
	return kbits
}

// Gate is the tolerance band for the spacing between two samples.
type Gate struct {
	Min time.Duration
	Max time.Duration
}

// DefaultGate accepts spacings within [500ms, 2s].
func DefaultGate() Gate {
	return Gate{Min: constants.GateMin, Max: constants.GateMax}
}

// Accept reports whether dt lies inside the band, bounds included.
func (g Gate) Accept(dt time.Duration) bool {
	return dt >= g.Min && dt <= g.Max
}
