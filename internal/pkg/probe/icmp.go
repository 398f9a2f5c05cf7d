// Package probe measures device reachability with a single ICMP echo.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/endorses/mtmon/internal/pkg/constants"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// ErrNoReply is returned when no matching echo reply arrives before the deadline.
var ErrNoReply = errors.New("no echo reply")

// protocolICMP is the IANA protocol number used to parse IPv4 ICMP messages.
const protocolICMP = 1

// Pinger sends one ICMP echo request per Ping call.
//
// It first tries an unprivileged datagram socket ("udp4", available on Linux
// when net.ipv4.ping_group_range allows it) and falls back to a raw socket
// ("ip4:icmp"), which needs CAP_NET_RAW.
type Pinger struct {
	addr    string
	timeout time.Duration
	size    int
	id      int
	seq     atomic.Uint32
}

// New creates a Pinger for addr (host name or IPv4 address).
func New(addr string, timeout time.Duration) *Pinger {
	if timeout <= 0 {
		timeout = constants.PingTimeout
	}
	return &Pinger{
		addr:    addr,
		timeout: timeout,
		size:    constants.PingPayloadSize,
		id:      os.Getpid() & 0xffff,
	}
}

// Ping returns the round trip time of one echo exchange.
func (p *Pinger) Ping(ctx context.Context) (time.Duration, error) {
	if p.addr == "" {
		return 0, errors.New("ping: empty address")
	}
	ip, err := resolve(ctx, p.addr)
	if err != nil {
		return 0, err
	}

	conn, network, err := listen()
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	deadline := time.Now().Add(p.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return 0, fmt.Errorf("ping: set deadline: %w", err)
	}

	seq := int(p.seq.Add(1) & 0xffff)
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{ID: p.id, Seq: seq, Data: make([]byte, p.size)},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return 0, fmt.Errorf("ping: marshal echo: %w", err)
	}

	start := time.Now()
	if _, err := conn.WriteTo(wb, destination(network, ip)); err != nil {
		return 0, fmt.Errorf("ping %s: %w", ip, err)
	}

	rb := make([]byte, 1500)
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, peer, err := conn.ReadFrom(rb)
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				return 0, fmt.Errorf("ping %s: %w", ip, ErrNoReply)
			}
			return 0, fmt.Errorf("ping %s: %w", ip, err)
		}
		if !samePeer(peer, ip) {
			continue
		}
		rm, err := icmp.ParseMessage(protocolICMP, rb[:n])
		if err != nil || rm.Type != ipv4.ICMPTypeEchoReply {
			continue
		}
		echo, ok := rm.Body.(*icmp.Echo)
		if !ok || echo.Seq != seq {
			continue
		}
		// The kernel rewrites the identifier on datagram sockets.
		if network == "ip4:icmp" && echo.ID != p.id {
			continue
		}
		return time.Since(start), nil
	}
}

func resolve(ctx context.Context, addr string) (net.IP, error) {
	if ip := net.ParseIP(addr); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
		return nil, fmt.Errorf("ping: %s is not an IPv4 address", addr)
	}
	ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", addr)
	if err != nil {
		return nil, fmt.Errorf("ping: resolve %s: %w", addr, err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("ping: resolve %s: no IPv4 address", addr)
	}
	return ips[0].To4(), nil
}

func listen() (*icmp.PacketConn, string, error) {
	conn, err := icmp.ListenPacket("udp4", "0.0.0.0")
	if err == nil {
		return conn, "udp4", nil
	}
	conn, rawErr := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if rawErr != nil {
		return nil, "", fmt.Errorf("ping: open socket: %w", errors.Join(err, rawErr))
	}
	return conn, "ip4:icmp", nil
}

func destination(network string, ip net.IP) net.Addr {
	if network == "udp4" {
		return &net.UDPAddr{IP: ip}
	}
	return &net.IPAddr{IP: ip}
}

func samePeer(peer net.Addr, ip net.IP) bool {
	switch a := peer.(type) {
	case *net.UDPAddr:
		return a.IP.Equal(ip)
	case *net.IPAddr:
		return a.IP.Equal(ip)
	}
	return false
}
