// Package constants provides shared defaults used across mtmon components.
package constants

import "time"

// Polling cadence
const (
	// DefaultPollInterval is the nominal spacing between counter reads of one session
	DefaultPollInterval = 1 * time.Second

	// IdleInterval is how long a poller waits before re-checking for an interface selection
	IdleInterval = 500 * time.Millisecond

	// GateMin and GateMax bound the accepted spacing between two counter samples.
	// Samples outside the band become a new baseline instead of producing a rate.
	GateMin = 500 * time.Millisecond
	GateMax = 2 * time.Second

	// SystemInterval is the refresh period of the shared CPU/memory/latency snapshot
	SystemInterval = 3 * time.Second
)

// Device access
const (
	// SNMPPort is the standard SNMP agent port
	SNMPPort = 161

	// SNMPTimeout and SNMPRetries apply to regular counter and system reads
	SNMPTimeout = 2 * time.Second
	SNMPRetries = 1

	// DiscoveryTimeout and DiscoveryRetries apply to interface discovery walks,
	// which are larger and less latency sensitive than counter reads
	DiscoveryTimeout = 5 * time.Second
	DiscoveryRetries = 2

	// SNMPMaxRepetitions is the GETBULK repetition count used for table walks
	SNMPMaxRepetitions = 20

	// PingTimeout bounds the one-shot ICMP latency probe
	PingTimeout = 1 * time.Second

	// PingPayloadSize is the ICMP echo payload length in bytes
	PingPayloadSize = 40
)

// Transport
const (
	// DefaultListenAddr is the HTTP/WebSocket listen address
	DefaultListenAddr = ":5000"

	// SessionSendBuffer is the per-viewer outbound queue length.
	// Events are dropped for a viewer whose queue is full.
	SessionSendBuffer = 64

	// WriteWait is the deadline for a single websocket write
	WriteWait = 10 * time.Second

	// PongWait is how long a viewer may stay silent before it is considered gone
	PongWait = 60 * time.Second

	// PingPeriod must be shorter than PongWait
	PingPeriod = (PongWait * 9) / 10

	// MaxMessageSize limits inbound viewer frames
	MaxMessageSize = 4096
)

// Shutdown
const (
	// GracefulShutdownTimeout is the time to wait for the HTTP server to drain
	GracefulShutdownTimeout = 5 * time.Second

	// SignalChannelBuffer is the buffer size for OS signal channels
	SignalChannelBuffer = 1
)
