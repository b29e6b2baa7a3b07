package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	configcmd "github.com/sefs-io/sefs/cmd/config"
	"github.com/sefs-io/sefs/cmd/rescan"
	"github.com/sefs-io/sefs/cmd/serve"
	"github.com/sefs-io/sefs/cmd/status"
	"github.com/sefs-io/sefs/cmd/version"
	"github.com/sefs-io/sefs/internal/config"
	"github.com/sefs-io/sefs/internal/logging"
)

// logManager is the global logging manager, created in init() and upgraded after config loads
var logManager *logging.Manager

var sefsCmd = &cobra.Command{
	Use:   "sefs",
	Short: "A Semantic Entropy File System Daemon",
	Long: "SEFS watches a root folder, embeds every readable document it finds, and " +
		"continuously reorganizes the folder so that semantically similar files live together.\n\n" +
		"A background daemon monitors the root for file additions, updates, moves, and deletions. " +
		"When changes settle, files are re-clustered by embedding similarity, cluster folders are " +
		"named by a language model, and files are physically moved into place. The daemon exposes " +
		"a local HTTP API with live event streams and a retrieval-augmented chat over the collection.\n\n",
	PersistentPreRunE: runInitialize,
}

func init() {
	// Logging starts in bootstrap mode (stderr text only) until config loads.
	// The swappable handler keeps slog.Default stable across the upgrade.
	logManager = logging.NewManager()
	slog.SetDefault(logManager.Logger())

	sefsCmd.AddCommand(serve.ServeCmd)
	sefsCmd.AddCommand(status.StatusCmd)
	sefsCmd.AddCommand(rescan.RescanCmd)
	sefsCmd.AddCommand(configcmd.ConfigCmd)
	sefsCmd.AddCommand(version.VersionCmd)
}

func runInitialize(cmd *cobra.Command, args []string) error {
	logger := logManager.Logger()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Upgrade logging now that the log file and level are known
	level, ok := logging.ParseLevel(cfg.LogLevel)
	if !ok {
		level = logging.DefaultLevel
		if cfg.LogLevel != "" {
			logger.Warn("invalid log level configured, using default", "configured", cfg.LogLevel, "default", "info")
		}
	}

	if err := logManager.Upgrade(cfg.LogFilePath(), level); err != nil {
		logger.Warn("failed to enable file logging, continuing with stderr only", "error", err)
		// Don't return error - continue with bootstrap mode
	}

	return nil
}

func Execute() error {
	sefsCmd.SilenceErrors = true
	sefsCmd.SilenceUsage = true

	defer func() { _ = logManager.Close() }()

	err := sefsCmd.Execute()

	if err != nil {
		cmd, _, _ := sefsCmd.Find(os.Args[1:])
		if cmd == nil {
			cmd = sefsCmd
		}

		fmt.Printf("Error: %v\n", err)
		if !cmd.SilenceUsage {
			fmt.Printf("\n")
			cmd.SetOut(os.Stdout)
			_ = cmd.Usage()
		}

		return err
	}

	return nil
}
