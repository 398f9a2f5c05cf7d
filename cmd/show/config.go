package show

import (
	"fmt"
	"io"

	"github.com/endorses/mtmon/internal/pkg/config"
	"github.com/endorses/mtmon/internal/pkg/output"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Display the effective configuration",
	Long:  `Show the configuration after merging defaults, the config file and environment. The SNMP community is never printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		if jsonOutput {
			return output.PrintJSON(cmd.OutOrStdout(), cfg)
		}
		showConfig(cmd.OutOrStdout(), cfg)
		return nil
	},
}

func init() {
	configCmd.Flags().Bool("json", false, "Output in JSON format")
}

func showConfig(w io.Writer, cfg config.Config) {
	fmt.Fprintln(w, "=== Device ===")
	fmt.Fprintf(w, "Address: %s:%d\n", cfg.Device.Address, cfg.Device.Port)
	fmt.Fprintf(w, "Timeout: %v (retries %d)\n", cfg.Device.Timeout, cfg.Device.Retries)
	fmt.Fprintf(w, "Discovery Timeout: %v (retries %d)\n", cfg.Device.DiscoveryTimeout, cfg.Device.DiscoveryRetries)

	fmt.Fprintln(w, "\n=== Polling ===")
	fmt.Fprintf(w, "Interval: %v\n", cfg.Poll.Interval)
	fmt.Fprintf(w, "Idle: %v\n", cfg.Poll.Idle)
	fmt.Fprintf(w, "Rate Mode: %s\n", cfg.Mode())
	fmt.Fprintf(w, "Accepted Sample Spacing: [%v, %v]\n", cfg.Poll.GateMin, cfg.Poll.GateMax)

	fmt.Fprintln(w, "\n=== System Metrics ===")
	fmt.Fprintf(w, "Refresh Interval: %v\n", cfg.System.Interval)
	fmt.Fprintf(w, "Latency Probe: %t (timeout %v)\n", cfg.System.Ping, cfg.System.PingTimeout)

	fmt.Fprintln(w, "\n=== Server ===")
	fmt.Fprintf(w, "Listen: %s\n", cfg.Server.Listen)
	fmt.Fprintf(w, "Viewer Queue: %d\n", cfg.Server.SendBuffer)
	if cfg.Server.StaticDir != "" {
		fmt.Fprintf(w, "Static Dir: %s\n", cfg.Server.StaticDir)
	}
	switch {
	case cfg.Server.TLSSelfSigned:
		fmt.Fprintln(w, "TLS: self-signed")
	case cfg.Server.TLSCert != "":
		fmt.Fprintf(w, "TLS: %s\n", cfg.Server.TLSCert)
	default:
		fmt.Fprintln(w, "TLS: off")
	}
}
