// Lifx controls LIFX LAN v1 bulbs through their hubs.
//
// It discovers hubs with a UDP broadcast, keeps a control connection to
// each hub, and sends commands to the bulbs behind them. Besides one-shot
// commands it offers a live dashboard, an interactive shell, and a
// WebSocket bridge for other programs.
//
// Usage:
//
//	lifx [command] [flags]
//
// See 'lifx --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/lifxlan/internal/config"
	"github.com/muurk/lifxlan/internal/logging"
	"github.com/muurk/lifxlan/internal/version"
)

func main() {
	err := rootCmd.Execute()
	if err != nil {
		logging.Error("Command failed", zap.Error(err))
	}
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	configPath  string
	logLevel    string
	capturePath string
)

// cfg is loaded once per invocation by PersistentPreRunE.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "lifx",
	Short: "LIFX LAN v1 control utility",
	Long: `Discover and control LIFX bulbs on the local network.

Hubs are found by broadcasting a discovery request on UDP port 56700.
Commands are sent over each hub's TCP control channel. Hubs that do not
answer broadcasts can be listed in the config file.

Bulbs can be named by address (d0:73:d5:00:00:01) or by a nickname set
with 'lifx label --nickname'.`,
	Version:       version.Full(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.Initialize(logLevel); err != nil {
			return err
		}
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		if capturePath != "" {
			c.Capture.Path = capturePath
		}
		logging.Debug("Configuration loaded",
			zap.String("path", configPath),
			zap.Int("hubs", len(c.Hubs)),
			zap.Int("bulbs", len(c.Bulbs)))
		cfg = c
		return nil
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/lifxlan/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); silent when empty")
	rootCmd.PersistentFlags().StringVar(&capturePath, "capture", "", "Record every frame to this CBOR capture file")

	rootCmd.AddCommand(versionCmd)
}

var versionOutput string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if versionOutput == "yaml" {
			return printYAML(cmd.OutOrStdout(), version.Get())
		}
		fmt.Fprintf(cmd.OutOrStdout(), "lifx %s\n", version.Full())
		return nil
	},
}

func init() {
	versionCmd.Flags().StringVarP(&versionOutput, "output", "o", "", "Output format (yaml)")
}
