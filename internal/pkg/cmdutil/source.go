package cmdutil

import (
	"github.com/endorses/mtmon/internal/pkg/config"
	"github.com/endorses/mtmon/internal/pkg/probe"
	"github.com/endorses/mtmon/internal/pkg/source/snmp"
)

// NewSource builds the SNMP source for the configured device. The ICMP
// latency probe is attached unless system.ping is off.
func NewSource(cfg config.Config) *snmp.Source {
	var pinger snmp.Pinger
	if cfg.System.Ping {
		pinger = probe.New(cfg.Device.Address, cfg.System.PingTimeout)
	}
	return snmp.New(snmp.Config{
		Target:           cfg.Device.Address,
		Port:             uint16(cfg.Device.Port),
		Community:        cfg.Device.Community,
		Timeout:          cfg.Device.Timeout,
		Retries:          cfg.Device.Retries,
		DiscoveryTimeout: cfg.Device.DiscoveryTimeout,
		DiscoveryRetries: cfg.Device.DiscoveryRetries,
	}, pinger)
}
