// Package status provides the command that reports daemon status.
package status

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sefs-io/sefs/internal/config"
	"github.com/sefs-io/sefs/internal/daemonclient"
)

// StatusCmd shows the daemon status.
var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: "Show daemon status.\n\n" +
		"Queries the running daemon over its HTTP API and displays the watched " +
		"root folder, file and cluster counts, and provider health.",
	Example: `  # Check daemon status
  sefs status`,
	PreRunE: validateStatus,
	RunE:    runStatus,
}

func validateStatus(cmd *cobra.Command, args []string) error {
	// All errors after this are runtime errors
	cmd.SilenceUsage = true
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	client, err := daemonclient.NewFromConfig(cfg)
	if err != nil {
		return err
	}

	status, err := client.Status(cmd.Context())
	if err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), "Daemon: not running")
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), formatStatus(status))
	return nil
}

func formatStatus(status *daemonclient.StatusInfo) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Daemon: %s", status.Status))
	sb.WriteString(fmt.Sprintf("\nRoot: %s", status.RootFolder))
	sb.WriteString(fmt.Sprintf("\nFiles: %d", status.FileCount))
	sb.WriteString(fmt.Sprintf("\nClusters: %d", status.ClusterCount))

	health := "unhealthy"
	if status.ProviderHealthy {
		health = "healthy"
	}
	sb.WriteString(fmt.Sprintf("\nProvider: %s (%s)", status.Provider, health))

	return sb.String()
}
