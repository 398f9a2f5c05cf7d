package cmd

import (
	"fmt"
	"os"

	"github.com/endorses/mtmon/cmd/list"
	"github.com/endorses/mtmon/cmd/serve"
	"github.com/endorses/mtmon/cmd/show"
	"github.com/endorses/mtmon/internal/pkg/logger"
	"github.com/endorses/mtmon/internal/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "mtmon",
	Short: "mtmon streams router bandwidth to your browser",
	Long: `mtmon polls a MikroTik-class router over SNMP v2c and streams per-interface
bandwidth together with device CPU, memory and latency to connected viewers.`,
	Version:       version.GetFullVersion(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if logLevel == "" {
			return nil
		}
		if _, ok := logger.ParseLevel(logLevel); !ok {
			return fmt.Errorf("unknown log level %q", logLevel)
		}
		logger.SetLevel(logLevel)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func addSubCommandPalattes() {
	rootCmd.AddCommand(serve.ServeCmd)
	rootCmd.AddCommand(list.ListCmd)
	rootCmd.AddCommand(show.ShowCmd)
	rootCmd.AddCommand(versionCmd)
}

func init() {
	cobra.OnInitialize(initConfig)

	logger.Initialize()

	addSubCommandPalattes()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mtmon.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".mtmon")
	}

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
