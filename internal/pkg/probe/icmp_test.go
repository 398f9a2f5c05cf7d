package probe

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	p := New("192.0.2.1", 0)
	assert.Equal(t, time.Second, p.timeout)
	assert.Equal(t, 40, p.size)
}

func TestPing_EmptyAddress(t *testing.T) {
	_, err := New("", time.Second).Ping(context.Background())
	assert.Error(t, err)
}

func TestResolve_Literal(t *testing.T) {
	ip, err := resolve(context.Background(), "192.0.2.7")
	require.NoError(t, err)
	assert.True(t, ip.Equal(net.ParseIP("192.0.2.7")))
}

func TestResolve_RejectsIPv6(t *testing.T) {
	_, err := resolve(context.Background(), "2001:db8::1")
	assert.Error(t, err)
}

func TestDestination(t *testing.T) {
	ip := net.ParseIP("192.0.2.1").To4()

	udp, ok := destination("udp4", ip).(*net.UDPAddr)
	require.True(t, ok)
	assert.True(t, udp.IP.Equal(ip))

	raw, ok := destination("ip4:icmp", ip).(*net.IPAddr)
	require.True(t, ok)
	assert.True(t, raw.IP.Equal(ip))
}

func TestSamePeer(t *testing.T) {
	ip := net.ParseIP("192.0.2.1")

	assert.True(t, samePeer(&net.UDPAddr{IP: ip}, ip))
	assert.True(t, samePeer(&net.IPAddr{IP: ip}, ip))
	assert.False(t, samePeer(&net.IPAddr{IP: net.ParseIP("192.0.2.2")}, ip))
	assert.False(t, samePeer(&net.TCPAddr{IP: ip}, ip))
}
