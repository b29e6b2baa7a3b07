package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sefs-io/sefs/internal/events"
	"github.com/sefs-io/sefs/internal/extract"
)

// FullScan walks the root and ingests every supported file, then reclusters
// if anything was processed. Individual failures are logged and skipped.
// Returns the number of files processed.
func (p *Pipeline) FullScan(ctx context.Context) (int, error) {
	root := p.Root()

	p.publish(ctx, events.ScanStart, map[string]any{"root": root})

	processed := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(filepath.Base(path), ".") {
				return fs.SkipDir
			}
			return nil
		}

		base := filepath.Base(path)
		if strings.HasPrefix(base, "~") || !extract.IsSupported(path) {
			return nil
		}

		if _, err := p.ProcessFile(ctx, path); err != nil {
			p.logger.Warn("failed to ingest file during scan", "path", path, "error", err)
			return nil
		}
		processed++
		return nil
	})
	if err != nil {
		return processed, fmt.Errorf("failed to walk root; %w", err)
	}

	p.publish(ctx, events.ScanComplete, map[string]any{"files": processed})
	p.logger.Info("scan complete", "root", root, "files", processed)

	if processed > 0 {
		if err := p.FullRecluster(ctx); err != nil {
			return processed, fmt.Errorf("failed to recluster after scan; %w", err)
		}
	}
	return processed, nil
}

// SwitchRoot points the daemon at a new root folder: close and reopen the
// per-root store, rescan, and recluster. The caller re-targets the watcher.
func (p *Pipeline) SwitchRoot(ctx context.Context, newRoot string) error {
	abs, err := filepath.Abs(newRoot)
	if err != nil {
		return fmt.Errorf("failed to resolve root; %w", err)
	}

	p.publish(ctx, events.RootSwitching, map[string]any{"root": abs})

	if err := os.MkdirAll(abs, 0755); err != nil {
		return fmt.Errorf("failed to create root folder; %w", err)
	}

	if err := p.stores.Switch(ctx, abs); err != nil {
		return fmt.Errorf("failed to switch store; %w", err)
	}
	p.setRoot(abs)

	if _, err := p.FullScan(ctx); err != nil {
		p.logger.Warn("scan after root switch failed", "error", err)
	}

	p.publish(ctx, events.RootSwitched, map[string]any{"root": abs})
	p.logger.Info("switched root", "root", abs)
	return nil
}
