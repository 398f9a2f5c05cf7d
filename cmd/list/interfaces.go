package list

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/endorses/mtmon/internal/pkg/cmdutil"
	"github.com/endorses/mtmon/internal/pkg/config"
	"github.com/endorses/mtmon/internal/pkg/output"
	"github.com/endorses/mtmon/internal/pkg/source"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List router interfaces available for monitoring",
	Long:  `Walk ifName on the router and print each interface index and name.`,
	RunE:  runInterfaces,
}

func init() {
	interfacesCmd.Flags().String("router", "", "router address (overrides config)")
	interfacesCmd.Flags().String("community", "", "SNMP v2c community (overrides config)")
	interfacesCmd.Flags().Bool("json", false, "Output in JSON format")
}

func runInterfaces(cmd *cobra.Command, args []string) error {
	router, _ := cmd.Flags().GetString("router")
	community, _ := cmd.Flags().GetString("community")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	cfg.Device.Address = cmdutil.GetStringConfig("device.address", router)
	cfg.Device.Community = cmdutil.GetStringConfig("device.community", community)

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Device.DiscoveryDeadline())
	defer cancel()

	ifaces, err := cmdutil.NewSource(cfg).Interfaces(ctx)
	if err != nil {
		return fmt.Errorf("discover interfaces on %s: %w", cfg.Device.Address, err)
	}

	if jsonOutput {
		return output.PrintJSON(cmd.OutOrStdout(), ifaces)
	}
	return printInterfaces(cmd.OutOrStdout(), ifaces)
}

func printInterfaces(w io.Writer, ifaces []source.Interface) error {
	if len(ifaces) == 0 {
		_, err := fmt.Fprintln(w, "No interfaces reported.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tNAME")
	for _, iface := range ifaces {
		fmt.Fprintf(tw, "%s\t%s\n", iface.ID, iface.Name)
	}
	return tw.Flush()
}
