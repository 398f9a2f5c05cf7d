// Package config loads mtmon settings from flags, environment and an
// optional YAML file through viper.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/endorses/mtmon/internal/pkg/constants"
	"github.com/endorses/mtmon/internal/pkg/rate"
	"github.com/endorses/mtmon/internal/pkg/tlsutil"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every derived environment variable name,
// e.g. MTMON_POLL_INTERVAL for poll.interval.
const EnvPrefix = "MTMON"

// DefaultRouterAddr is the factory address of MikroTik devices.
const DefaultRouterAddr = "192.168.88.1"

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all runtime settings.
type Config struct {
	Device DeviceConfig `mapstructure:"device" json:"device"`
	Poll   PollConfig   `mapstructure:"poll" json:"poll"`
	System SystemConfig `mapstructure:"system" json:"system"`
	Server ServerConfig `mapstructure:"server" json:"server"`
}

// DeviceConfig describes the SNMP agent.
type DeviceConfig struct {
	Address          string        `mapstructure:"address" json:"address"`
	Community        string        `mapstructure:"community" json:"-"`
	Port             int           `mapstructure:"port" json:"port"`
	Timeout          time.Duration `mapstructure:"timeout" json:"timeout"`
	Retries          int           `mapstructure:"retries" json:"retries"`
	DiscoveryTimeout time.Duration `mapstructure:"discovery_timeout" json:"discovery_timeout"`
	DiscoveryRetries int           `mapstructure:"discovery_retries" json:"discovery_retries"`
}

// PollConfig controls the per-session polling loop.
type PollConfig struct {
	Interval time.Duration `mapstructure:"interval" json:"interval"`

	// IntervalMs overrides Interval when positive. It carries the
	// millisecond POLL_INTERVAL variable.
	IntervalMs int `mapstructure:"interval_ms" json:"-"`

	Idle     time.Duration `mapstructure:"idle" json:"idle"`
	RateMode string        `mapstructure:"rate_mode" json:"rate_mode"`
	GateMin  time.Duration `mapstructure:"gate_min" json:"gate_min"`
	GateMax  time.Duration `mapstructure:"gate_max" json:"gate_max"`
}

// SystemConfig controls the shared CPU/memory/latency refresher.
type SystemConfig struct {
	Interval    time.Duration `mapstructure:"interval" json:"interval"`
	Ping        bool          `mapstructure:"ping" json:"ping"`
	PingTimeout time.Duration `mapstructure:"ping_timeout" json:"ping_timeout"`
}

// ServerConfig controls the HTTP/WebSocket listener.
type ServerConfig struct {
	Listen string `mapstructure:"listen" json:"listen"`

	// Port replaces the port of Listen when positive.
	Port int `mapstructure:"port" json:"-"`

	SendBuffer    int    `mapstructure:"send_buffer" json:"send_buffer"`
	StaticDir     string `mapstructure:"static_dir" json:"static_dir,omitempty"`
	TLSCert       string `mapstructure:"tls_cert" json:"tls_cert,omitempty"`
	TLSKey        string `mapstructure:"tls_key" json:"tls_key,omitempty"`
	TLSSelfSigned bool   `mapstructure:"tls_self_signed" json:"tls_self_signed,omitempty"`
}

// DiscoveryDeadline bounds one interface discovery: every attempt of the
// walk may run for the full timeout, plus one timeout of slack for the
// remaining bulk requests of the walk.
func (d DeviceConfig) DiscoveryDeadline() time.Duration {
	return time.Duration(d.DiscoveryRetries+2) * d.DiscoveryTimeout
}

// TLS returns the certificate paths of the listener.
func (s ServerConfig) TLS() tlsutil.ServerConfig {
	return tlsutil.ServerConfig{CertFile: s.TLSCert, KeyFile: s.TLSKey, SelfSigned: s.TLSSelfSigned}
}

// legacy maps keys to the unprefixed variable names of the first release.
var legacy = map[string]string{
	"device.address":   "ROUTER_IP",
	"device.community": "SNMP_COMMUNITY",
	"poll.interval_ms": "POLL_INTERVAL",
	"server.port":      "PORT",
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("device.address", DefaultRouterAddr)
	v.SetDefault("device.community", "public")
	v.SetDefault("device.port", constants.SNMPPort)
	v.SetDefault("device.timeout", constants.SNMPTimeout)
	v.SetDefault("device.retries", constants.SNMPRetries)
	v.SetDefault("device.discovery_timeout", constants.DiscoveryTimeout)
	v.SetDefault("device.discovery_retries", constants.DiscoveryRetries)

	v.SetDefault("poll.interval", constants.DefaultPollInterval)
	v.SetDefault("poll.interval_ms", 0)
	v.SetDefault("poll.idle", constants.IdleInterval)
	v.SetDefault("poll.rate_mode", rate.ModePerTick.String())
	v.SetDefault("poll.gate_min", constants.GateMin)
	v.SetDefault("poll.gate_max", constants.GateMax)

	v.SetDefault("system.interval", constants.SystemInterval)
	v.SetDefault("system.ping", true)
	v.SetDefault("system.ping_timeout", constants.PingTimeout)

	v.SetDefault("server.listen", constants.DefaultListenAddr)
	v.SetDefault("server.port", 0)
	v.SetDefault("server.send_buffer", constants.SessionSendBuffer)
	v.SetDefault("server.static_dir", "")
	v.SetDefault("server.tls_cert", "")
	v.SetDefault("server.tls_key", "")
	v.SetDefault("server.tls_self_signed", false)
}

// BindEnv enables MTMON_* variables and the legacy names on v.
// A prefixed variable wins over its legacy twin.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, name := range legacy {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, name); err != nil {
			return fmt.Errorf("bind %s: %w", name, err)
		}
	}
	return nil
}

// Load applies defaults and environment bindings to v and decodes it.
// Flags must already be bound with BindPFlag.
func Load(v *viper.Viper) (Config, error) {
	SetDefaults(v)
	if err := BindEnv(v); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode configuration: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Device.Address = strings.TrimSpace(c.Device.Address)
	if c.Poll.IntervalMs > 0 {
		c.Poll.Interval = time.Duration(c.Poll.IntervalMs) * time.Millisecond
		c.Poll.IntervalMs = 0
	}
	if c.Server.Port > 0 {
		host, _, err := net.SplitHostPort(c.Server.Listen)
		if err != nil {
			host = ""
		}
		c.Server.Listen = net.JoinHostPort(host, strconv.Itoa(c.Server.Port))
		c.Server.Port = 0
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.Device.Address == "":
		return fmt.Errorf("%w: device.address is empty", ErrInvalid)
	case c.Device.Community == "":
		return fmt.Errorf("%w: device.community is empty", ErrInvalid)
	case c.Device.Port <= 0 || c.Device.Port > 65535:
		return fmt.Errorf("%w: device.port %d out of range", ErrInvalid, c.Device.Port)
	case c.Device.Timeout <= 0 || c.Device.DiscoveryTimeout <= 0:
		return fmt.Errorf("%w: device timeouts must be positive", ErrInvalid)
	case c.Device.Retries < 0 || c.Device.DiscoveryRetries < 0:
		return fmt.Errorf("%w: device retries must not be negative", ErrInvalid)
	case c.Poll.Interval <= 0:
		return fmt.Errorf("%w: poll.interval must be positive", ErrInvalid)
	case c.Poll.Idle <= 0:
		return fmt.Errorf("%w: poll.idle must be positive", ErrInvalid)
	case c.Poll.GateMin < 0 || c.Poll.GateMax < c.Poll.GateMin:
		return fmt.Errorf("%w: poll gate [%s, %s] is empty", ErrInvalid, c.Poll.GateMin, c.Poll.GateMax)
	case c.Poll.Interval < c.Poll.GateMin || c.Poll.Interval >= c.Poll.GateMax:
		// Samples are spaced at least one interval apart, plus read latency.
		return fmt.Errorf("%w: poll.interval %s must lie in [%s, %s) or every sample is rebased",
			ErrInvalid, c.Poll.Interval, c.Poll.GateMin, c.Poll.GateMax)
	case c.System.Interval <= 0:
		return fmt.Errorf("%w: system.interval must be positive", ErrInvalid)
	case c.System.Ping && c.System.PingTimeout <= 0:
		return fmt.Errorf("%w: system.ping_timeout must be positive", ErrInvalid)
	case c.Server.Listen == "":
		return fmt.Errorf("%w: server.listen is empty", ErrInvalid)
	case c.Server.SendBuffer <= 0:
		return fmt.Errorf("%w: server.send_buffer must be positive", ErrInvalid)
	}
	if _, err := rate.ParseMode(c.Poll.RateMode); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := c.Server.TLS().Validate(); err != nil {
		return fmt.Errorf("%w: server tls: %v", ErrInvalid, err)
	}
	return nil
}

// Mode returns the parsed rate mode. Call after Validate.
func (c Config) Mode() rate.Mode {
	m, _ := rate.ParseMode(c.Poll.RateMode)
	return m
}

// Gate returns the sample interval validity band.
func (c Config) Gate() rate.Gate {
	return rate.Gate{Min: c.Poll.GateMin, Max: c.Poll.GateMax}
}
