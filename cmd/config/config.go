// Package config provides the config parent command and subcommands.
package config

import (
	"github.com/spf13/cobra"

	"github.com/sefs-io/sefs/cmd/config/subcommands"
)

// ConfigCmd is the parent command for all config-related subcommands.
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage daemon configuration",
	Long: "Manage daemon configuration.\n\n" +
		"The config command allows you to view and validate the daemon " +
		"configuration. Configuration is stored in a YAML file located at " +
		"~/.config/sefs/config.yaml by default.",
}

func init() {
	// Register subcommands
	ConfigCmd.AddCommand(subcommands.ShowCmd)
	ConfigCmd.AddCommand(subcommands.ValidateCmd)
}
