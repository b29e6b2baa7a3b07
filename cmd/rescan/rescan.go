// Package rescan provides the command that triggers a full scan of the root.
package rescan

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sefs-io/sefs/internal/config"
	"github.com/sefs-io/sefs/internal/daemonclient"
)

// RescanCmd asks the running daemon to rescan the root folder.
var RescanCmd = &cobra.Command{
	Use:   "rescan",
	Short: "Rescan the root folder",
	Long: "Rescan the root folder.\n\n" +
		"Asks the running daemon to walk the entire root folder and bring the " +
		"index up to date. New and modified files are extracted and embedded. " +
		"The command waits until the scan finishes.",
	Example: `  # Rescan the root folder
  sefs rescan`,
	PreRunE: validateRescan,
	RunE:    runRescan,
}

func validateRescan(cmd *cobra.Command, args []string) error {
	// All errors after this are runtime errors
	cmd.SilenceUsage = true
	return nil
}

func runRescan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	client, err := daemonclient.NewFromConfig(cfg,
		daemonclient.WithTimeout(daemonclient.RescanTimeout))
	if err != nil {
		return err
	}

	result, err := client.Rescan(cmd.Context())
	if err != nil {
		return fmt.Errorf("rescan failed; %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.Message)
	return nil
}
