// Package serve provides the command that runs the daemon in the foreground.
package serve

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sefs-io/sefs/internal/chat"
	"github.com/sefs-io/sefs/internal/cluster"
	"github.com/sefs-io/sefs/internal/config"
	"github.com/sefs-io/sefs/internal/embed"
	"github.com/sefs-io/sefs/internal/events"
	"github.com/sefs-io/sefs/internal/extract"
	"github.com/sefs-io/sefs/internal/namer"
	"github.com/sefs-io/sefs/internal/pipeline"
	"github.com/sefs-io/sefs/internal/scheduler"
	"github.com/sefs-io/sefs/internal/server"
	"github.com/sefs-io/sefs/internal/store"
	"github.com/sefs-io/sefs/internal/syncer"
	"github.com/sefs-io/sefs/internal/watcher"
)

// backgroundOpTimeout bounds scans and reclusters that run detached from any
// HTTP request.
const backgroundOpTimeout = 30 * time.Minute

// ServeCmd runs the daemon in foreground mode.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon in foreground mode",
	Long: "Run the daemon in foreground mode.\n\n" +
		"The daemon watches the configured root folder, keeps the embedding index " +
		"current, reorganizes files into semantic cluster folders as the collection " +
		"changes, and serves the HTTP API. Use standard backgrounding methods like " +
		"'&', 'nohup', or platform-specific service runners (launchd, systemd) to run " +
		"the daemon in the background.",
	Example: `  # Run the daemon in foreground
  sefs serve

  # Run the daemon in background
  sefs serve &

  # Run the daemon with nohup
  nohup sefs serve &`,
	PreRunE: validateServe,
	RunE:    runServe,
}

func validateServe(cmd *cobra.Command, args []string) error {
	// All errors after this are runtime errors
	cmd.SilenceUsage = true
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory; %w", err)
	}

	global, err := store.OpenGlobal(ctx, config.GlobalDBPath())
	if err != nil {
		return fmt.Errorf("failed to open settings database; %w", err)
	}
	defer global.Close()

	// Stored settings override the config file, so the effective provider and
	// root folder come from the merge.
	es, err := server.EffectiveSettings(ctx, global, cfg)
	if err != nil {
		return err
	}

	adapter := embed.NewAdapter(server.BuildProvider(es, cfg.Remote.RateLimit),
		embed.WithMaxChars(cfg.Tuning.MaxExtractChars),
		embed.WithLogger(logger),
	)

	root := es.RootFolder
	if err := os.MkdirAll(root, 0755); err != nil {
		return fmt.Errorf("failed to create root folder %s; %w", root, err)
	}

	st, err := store.Open(ctx, store.DBPath(root))
	if err != nil {
		return fmt.Errorf("failed to open index database; %w", err)
	}
	stores := store.NewManager(st)
	defer stores.Close()

	bus := events.NewBus(
		events.WithBufferSize(cfg.Tuning.EventBusBufferSize),
		events.WithLogger(logger),
	)
	defer bus.Close()

	guard := syncer.NewGuard(cfg.Tuning.RecentPathTTL())
	sy := syncer.New(guard,
		syncer.WithSettle(cfg.Tuning.SyncSettle()),
		syncer.WithLogger(logger),
	)
	engine := cluster.New(
		cluster.WithDistanceThreshold(cfg.Tuning.ClusterThreshold),
		cluster.WithNoiseSimilarity(cfg.Tuning.NoiseThreshold),
		cluster.WithSmallCollectionMax(cfg.Tuning.SmallCollectionMax),
		cluster.WithLogger(logger),
	)
	nm := namer.New(adapter, namer.WithLogger(logger))
	ex := extract.New(logger)

	pipe := pipeline.New(root, stores, adapter, engine, nm, sy, ex, bus,
		pipeline.WithLogger(logger))

	sched := scheduler.New(func() {
		rctx, cancel := context.WithTimeout(context.Background(), backgroundOpTimeout)
		defer cancel()
		if err := pipe.FullRecluster(rctx); err != nil {
			logger.Error("recluster failed", "error", err)
		}
	},
		scheduler.WithDebounce(cfg.Tuning.ReclusterDebounce()),
		scheduler.WithCooldown(cfg.Tuning.ReclusterCooldown()),
		scheduler.WithLogger(logger),
	)
	defer sched.Stop()

	w, err := watcher.New(guard, watcher.Callbacks{
		OnChange: func(path string) error {
			cctx, cancel := context.WithTimeout(context.Background(), backgroundOpTimeout)
			defer cancel()

			id, err := pipe.ProcessFile(cctx, path)
			if err != nil {
				return err
			}

			// A confident incremental placement avoids a full recluster.
			assigned, err := pipe.TryIncrementalAssign(cctx, id)
			if err != nil {
				logger.Warn("incremental assignment failed", "path", path, "error", err)
			}
			if !assigned {
				sched.Request()
			}
			return nil
		},
		OnDelete: func(path string) error {
			cctx, cancel := context.WithTimeout(context.Background(), backgroundOpTimeout)
			defer cancel()

			if err := pipe.RemoveFile(cctx, path); err != nil {
				return err
			}
			sched.Request()
			return nil
		},
	},
		watcher.WithDebounce(cfg.Tuning.WatchDebounce()),
		watcher.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create watcher; %w", err)
	}
	defer w.Stop()

	if err := w.Watch(root); err != nil {
		return fmt.Errorf("failed to watch %s; %w", root, err)
	}
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher; %w", err)
	}

	// Bring the index in line with whatever changed while the daemon was
	// down. FullScan reclusters when it processed anything.
	go func() {
		sctx, cancel := context.WithTimeout(context.Background(), backgroundOpTimeout)
		defer cancel()
		if _, err := pipe.FullScan(sctx); err != nil {
			logger.Error("initial scan failed", "error", err)
		}
	}()

	srv := server.New(cfg, server.Deps{
		Stores:   stores,
		Global:   global,
		Adapter:  adapter,
		Pipeline: pipe,
		Chat:     chat.New(stores, adapter, ex, pipe.Root, chat.WithLogger(logger)),
		Bus:      bus,
		OnRootSwitch: func(ctx context.Context, newRoot string) error {
			w.Unwatch()
			if err := pipe.SwitchRoot(ctx, newRoot); err != nil {
				return err
			}
			return w.Watch(newRoot)
		},
	}, server.WithLogger(logger))

	logger.Info("starting daemon",
		"root", root,
		"bind", cfg.Server.Bind,
		"port", cfg.Server.Port,
		"provider", adapter.ProviderName(),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("daemon error; %w", err)
		}
		return nil
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down cleanly; %w", err)
	}
	return nil
}
