package serve

import (
	"context"
	"fmt"

	"github.com/endorses/mtmon/internal/pkg/cmdutil"
	"github.com/endorses/mtmon/internal/pkg/config"
	"github.com/endorses/mtmon/internal/pkg/constants"
	"github.com/endorses/mtmon/internal/pkg/logger"
	"github.com/endorses/mtmon/internal/pkg/monitor"
	"github.com/endorses/mtmon/internal/pkg/rate"
	"github.com/endorses/mtmon/internal/pkg/signals"
	"github.com/endorses/mtmon/internal/pkg/sysmetrics"
	"github.com/endorses/mtmon/internal/pkg/telemetry"
	"github.com/endorses/mtmon/internal/pkg/tlsutil"
	"github.com/endorses/mtmon/internal/pkg/transport"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ServeCmd runs the viewer server until a shutdown signal arrives.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve live router metrics over WebSocket",
	Long: `Start the HTTP server with the /ws event stream, the /api endpoints and
Prometheus /metrics. Each viewer selects an interface and receives one
metrics event per poll interval.`,
	RunE: runServe,
}

var flagBindings = map[string]string{
	"device.address":    "router",
	"device.community":  "community",
	"poll.interval":     "interval",
	"poll.rate_mode":    "rate-mode",
	"system.interval":   "system-interval",
	"system.ping":       "ping",
	"server.listen":     "listen",
	"server.static_dir": "static-dir",
	"server.tls_cert":   "tls-cert",
	"server.tls_key":    "tls-key",

	"server.tls_self_signed": "tls-self-signed",
}

func init() {
	ServeCmd.Flags().String("router", config.DefaultRouterAddr, "router address")
	ServeCmd.Flags().String("community", "public", "SNMP v2c community")
	ServeCmd.Flags().Duration("interval", constants.DefaultPollInterval, "interface poll interval")
	ServeCmd.Flags().String("rate-mode", rate.ModePerTick.String(), "rate computation: tick or elapsed")
	ServeCmd.Flags().Duration("system-interval", constants.SystemInterval, "CPU/memory/latency refresh interval")
	ServeCmd.Flags().Bool("ping", true, "probe latency with ICMP echo")
	ServeCmd.Flags().String("listen", constants.DefaultListenAddr, "HTTP listen address")
	ServeCmd.Flags().String("static-dir", "", "directory served at / (dashboard)")
	ServeCmd.Flags().String("tls-cert", "", "PEM certificate for HTTPS/WSS")
	ServeCmd.Flags().String("tls-key", "", "PEM private key for HTTPS/WSS")
	ServeCmd.Flags().Bool("tls-self-signed", false, "serve HTTPS/WSS with a generated localhost certificate")
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cmdutil.BindFlags(viper.GetViper(), cmd.Flags(), flagBindings); err != nil {
		return err
	}
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	tlsConfig, err := tlsutil.BuildServerConfig(cfg.Server.TLS())
	if err != nil {
		return err
	}

	ctx, stop := signals.Context(cmd.Context())
	defer stop()

	metrics := telemetry.New()
	src := cmdutil.NewSource(cfg)

	cache := sysmetrics.New(src, cfg.System.Interval, metrics)
	cache.Start(ctx)
	defer cache.Stop()

	hub := transport.NewHub(cfg.Server.SendBuffer, metrics)
	mon := monitor.New(monitor.Config{
		RouterAddr:   cfg.Device.Address,
		PollInterval: cfg.Poll.Interval,
		IdleInterval: cfg.Poll.Idle,
		Gate:         cfg.Gate(),
		Engine:       rate.Engine{Mode: cfg.Mode()},
	}, src, cache, hub, monitor.WithMetrics(metrics))
	defer mon.Close()

	srv := transport.NewServer(transport.Config{
		Listen:    cfg.Server.Listen,
		StaticDir: cfg.Server.StaticDir,
		TLS:       tlsConfig,
	}, mon, hub, metrics)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	logger.Info("mtmon started",
		"router", cfg.Device.Address,
		"listen", srv.Addr(),
		"poll_interval", cfg.Poll.Interval,
		"rate_mode", cfg.Mode().String())

	<-ctx.Done()

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("Server shutdown incomplete", "error", err)
	}
	return nil
}
