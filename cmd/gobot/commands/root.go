// Package commands implements the gobot CLI using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command with every subcommand registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gobot",
		Short: "gobot - Discord automation bot",
		Long: `gobot answers prefixed chat commands, tracks how long members play,
keeps durable reminders and streams music into voice channels.

Examples:
  gobot setup
  gobot serve
  gobot serve --config ./config.yaml --verbose
  gobot console
  gobot played 123456789012345678`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newConsoleCmd(),
		newSetupCmd(),
		newTokenCmd(),
		newPlayedCmd(),
		newRemindersCmd(),
		newVersionCmd(version),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the config file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logs")
	rootCmd.PersistentFlags().BoolP("logfile", "l", false, "write logs to the log file instead of stderr")

	return rootCmd
}
