// Relaynode is the connectivity and provisioning agent of a relay-switch
// device.
//
// It keeps a websocket link to the backend alive, provisions the device
// configuration over a serial console, a WiFi access point web form,
// removable storage or a remote push, and stores the result with an
// integrity checksum.
//
// Usage:
//
//	relaynode [command] [flags]
//
// See 'relaynode --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/relaynode/internal/logging"
	"github.com/muurk/relaynode/internal/version"
)

func main() {
	err := rootCmd.Execute()
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	settingsPath string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "relaynode",
	Short: "Relay device connectivity and provisioning agent",
	Long: `relaynode keeps a relay-switch device connected to its backend.

On boot it loads the stored device configuration. When none is stored, or
the stored record fails its checksum, it offers a provisioning menu: serial
console, WiFi access point web form, removable storage, remote push or the
compiled development defaults.

Host-side tuning lives in a YAML settings file (see 'relaynode settings').`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Initialize(logLevel)
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "Settings file (default: $XDG_CONFIG_HOME/relaynode/settings.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); empty uses "+logging.LogLevelEnvVar)

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := version.Get()
		fmt.Fprintf(cmd.OutOrStdout(), "relaynode %s (commit: %s, %s, %s)\n",
			info.Version, info.Commit, info.GoVersion, info.Platform)
	},
}
