// Package snmp implements source.Source against an SNMP v2c agent using the
// IF-MIB interface counters and the HOST-RESOURCES-MIB processor and storage
// tables.
package snmp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/endorses/mtmon/internal/pkg/constants"
	"github.com/endorses/mtmon/internal/pkg/logger"
	"github.com/endorses/mtmon/internal/pkg/source"
	"github.com/gosnmp/gosnmp"
)

// IF-MIB
const (
	OIDIfName        = ".1.3.6.1.2.1.31.1.1.1.1"
	OIDIfHCInOctets  = ".1.3.6.1.2.1.31.1.1.1.6"
	OIDIfHCOutOctets = ".1.3.6.1.2.1.31.1.1.1.10"
	OIDIfInOctets    = ".1.3.6.1.2.1.2.2.1.10"
	OIDIfOutOctets   = ".1.3.6.1.2.1.2.2.1.16"
)

// HOST-RESOURCES-MIB
const (
	OIDProcessorLoad      = ".1.3.6.1.2.1.25.3.3.1.2"
	OIDStorageType        = ".1.3.6.1.2.1.25.2.3.1.2"
	OIDStorageAllocUnits  = ".1.3.6.1.2.1.25.2.3.1.4"
	OIDStorageSize        = ".1.3.6.1.2.1.25.2.3.1.5"
	OIDStorageUsed        = ".1.3.6.1.2.1.25.2.3.1.6"
	OIDStorageTypeRAM     = ".1.3.6.1.2.1.25.2.1.2"
	storageTypeRAMKeyword = "hrStorageRam"
)

// Config holds the agent address and request policy.
type Config struct {
	Target           string
	Port             uint16
	Community        string
	Timeout          time.Duration
	Retries          int
	DiscoveryTimeout time.Duration
	DiscoveryRetries int
}

// Pinger measures the round trip time to the device.
type Pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// client is the subset of *gosnmp.GoSNMP used by Source.
type client interface {
	Get(oids []string) (*gosnmp.SnmpPacket, error)
	BulkWalkAll(rootOid string) ([]gosnmp.SnmpPDU, error)
	Close() error
}

type dialFunc func(ctx context.Context, timeout time.Duration, retries int) (client, error)

// Source reads device metrics over SNMP. Each request uses its own
// short-lived agent connection, so a Source is safe for concurrent use.
type Source struct {
	cfg    Config
	pinger Pinger
	dial   dialFunc
	log    *slog.Logger
}

var _ source.Source = (*Source)(nil)

// New creates a Source for the agent described by cfg. A nil pinger makes
// LatencyMs report source.ErrNoData.
func New(cfg Config, pinger Pinger) *Source {
	if cfg.Port == 0 {
		cfg.Port = constants.SNMPPort
	}
	if cfg.Community == "" {
		cfg.Community = "public"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = constants.SNMPTimeout
	}
	if cfg.DiscoveryTimeout <= 0 {
		cfg.DiscoveryTimeout = constants.DiscoveryTimeout
	}
	s := &Source{
		cfg:    cfg,
		pinger: pinger,
		log:    logger.Component("snmp").With("target", cfg.Target),
	}
	s.dial = s.dialAgent
	return s
}

type agent struct {
	*gosnmp.GoSNMP
}

func (a agent) Close() error {
	if a.Conn == nil {
		return nil
	}
	return a.Conn.Close()
}

func (s *Source) dialAgent(ctx context.Context, timeout time.Duration, retries int) (client, error) {
	g := &gosnmp.GoSNMP{
		Target:         s.cfg.Target,
		Port:           s.cfg.Port,
		Community:      s.cfg.Community,
		Version:        gosnmp.Version2c,
		Timeout:        timeout,
		Retries:        retries,
		MaxRepetitions: constants.SNMPMaxRepetitions,
		Context:        ctx,
	}
	if err := g.Connect(); err != nil {
		return nil, fmt.Errorf("%w: connect %s: %v", source.ErrUnavailable, s.cfg.Target, err)
	}
	return agent{g}, nil
}

// Interfaces walks ifName and returns one entry per interface index.
func (s *Source) Interfaces(ctx context.Context) ([]source.Interface, error) {
	c, err := s.dial(ctx, s.cfg.DiscoveryTimeout, s.cfg.DiscoveryRetries)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	pdus, err := walk(c, OIDIfName)
	if err != nil {
		return nil, err
	}

	ifaces := make([]source.Interface, 0, len(pdus))
	for _, pdu := range pdus {
		ifaces = append(ifaces, source.Interface{
			ID:   index(pdu.Name),
			Name: stringValue(pdu),
		})
	}
	return ifaces, nil
}

// Counters reads ifHCInOctets/ifHCOutOctets and falls back to the 32-bit
// ifInOctets/ifOutOctets when the wide counters cannot be read.
func (s *Source) Counters(ctx context.Context, ifaceID string) (source.Counters, error) {
	c, err := s.dial(ctx, s.cfg.Timeout, s.cfg.Retries)
	if err != nil {
		return source.Counters{}, err
	}
	defer c.Close()

	in, out, err64 := getPair(c, OIDIfHCInOctets+"."+ifaceID, OIDIfHCOutOctets+"."+ifaceID)
	if err64 == nil {
		return source.Counters{In: in, Out: out, Width: source.Width64}, nil
	}
	s.log.Debug("64-bit counters unavailable, falling back to 32-bit", "iface", ifaceID, "error", err64)

	in, out, err32 := getPair(c, OIDIfInOctets+"."+ifaceID, OIDIfOutOctets+"."+ifaceID)
	if err32 != nil {
		return source.Counters{}, fmt.Errorf("read counters for interface %s: %w", ifaceID, errors.Join(err64, err32))
	}
	return source.Counters{In: in, Out: out, Width: source.Width32}, nil
}

// CPUPercent averages hrProcessorLoad over all reporting processors.
func (s *Source) CPUPercent(ctx context.Context) (float64, error) {
	c, err := s.dial(ctx, s.cfg.Timeout, s.cfg.Retries)
	if err != nil {
		return 0, err
	}
	defer c.Close()

	pdus, err := walk(c, OIDProcessorLoad)
	if err != nil {
		return 0, err
	}
	if len(pdus) == 0 {
		return 0, fmt.Errorf("processor load: %w", source.ErrNoData)
	}

	var sum float64
	for _, pdu := range pdus {
		sum += float64(gosnmp.ToBigInt(pdu.Value).Int64())
	}
	return sum / float64(len(pdus)), nil
}

// MemPercent locates the hrStorageRam entry and computes used/size.
func (s *Source) MemPercent(ctx context.Context) (float64, error) {
	c, err := s.dial(ctx, s.cfg.Timeout, s.cfg.Retries)
	if err != nil {
		return 0, err
	}
	defer c.Close()

	types, err := walk(c, OIDStorageType)
	if err != nil {
		return 0, err
	}
	units, err := walkByIndex(c, OIDStorageAllocUnits)
	if err != nil {
		return 0, err
	}
	sizes, err := walkByIndex(c, OIDStorageSize)
	if err != nil {
		return 0, err
	}
	used, err := walkByIndex(c, OIDStorageUsed)
	if err != nil {
		return 0, err
	}

	for _, t := range types {
		if !isRAM(t) {
			continue
		}
		idx := index(t.Name)
		unit, okUnit := units[idx]
		size, okSize := sizes[idx]
		usedBlocks, okUsed := used[idx]
		if !okUnit || !okSize || !okUsed || unit == 0 || size == 0 {
			continue
		}
		total := float64(size) * float64(unit)
		return float64(usedBlocks) * float64(unit) / total * 100.0, nil
	}
	return 0, fmt.Errorf("ram storage entry: %w", source.ErrNoData)
}

// LatencyMs probes the device once.
func (s *Source) LatencyMs(ctx context.Context) (float64, error) {
	if s.pinger == nil {
		return 0, fmt.Errorf("latency probe: %w", source.ErrNoData)
	}
	rtt, err := s.pinger.Ping(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: ping %s: %v", source.ErrUnavailable, s.cfg.Target, err)
	}
	return float64(rtt) / float64(time.Millisecond), nil
}

func getPair(c client, inOID, outOID string) (uint64, uint64, error) {
	pkt, err := c.Get([]string{inOID, outOID})
	if err != nil {
		return 0, 0, fmt.Errorf("%w: get %s: %v", source.ErrUnavailable, inOID, err)
	}
	if pkt == nil || len(pkt.Variables) != 2 {
		return 0, 0, fmt.Errorf("%w: get %s: short response", source.ErrUnavailable, inOID)
	}
	for _, v := range pkt.Variables {
		if absent(v) {
			return 0, 0, fmt.Errorf("%s: %w", v.Name, source.ErrNoSuchObject)
		}
	}
	return gosnmp.ToBigInt(pkt.Variables[0].Value).Uint64(), gosnmp.ToBigInt(pkt.Variables[1].Value).Uint64(), nil
}

func walk(c client, root string) ([]gosnmp.SnmpPDU, error) {
	pdus, err := c.BulkWalkAll(root)
	if err != nil {
		return nil, fmt.Errorf("%w: walk %s: %v", source.ErrUnavailable, root, err)
	}
	out := pdus[:0]
	for _, pdu := range pdus {
		if !absent(pdu) {
			out = append(out, pdu)
		}
	}
	return out, nil
}

func walkByIndex(c client, root string) (map[string]uint64, error) {
	pdus, err := walk(c, root)
	if err != nil {
		return nil, err
	}
	m := make(map[string]uint64, len(pdus))
	for _, pdu := range pdus {
		m[index(pdu.Name)] = gosnmp.ToBigInt(pdu.Value).Uint64()
	}
	return m, nil
}

func absent(pdu gosnmp.SnmpPDU) bool {
	switch pdu.Type {
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView, gosnmp.Null:
		return true
	}
	return false
}

func isRAM(pdu gosnmp.SnmpPDU) bool {
	v := stringValue(pdu)
	return normalizeOID(v) == normalizeOID(OIDStorageTypeRAM) || strings.Contains(v, storageTypeRAMKeyword)
}

// index returns the last sub-identifier of an OID.
func index(oid string) string {
	if i := strings.LastIndexByte(oid, '.'); i >= 0 {
		return oid[i+1:]
	}
	return oid
}

func normalizeOID(oid string) string {
	return strings.TrimPrefix(oid, ".")
}

func stringValue(pdu gosnmp.SnmpPDU) string {
	switch v := pdu.Value.(type) {
	case []byte:
		return string(v)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
