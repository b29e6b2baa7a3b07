// Package syncer reconciles the on-disk layout of the watched root with the
// current clustering: files move into cluster-named folders, collisions get
// numeric suffixes, and emptied directories are swept away.
package syncer

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// UncategorizedFolder is the folder for files without a cluster.
const UncategorizedFolder = "Uncategorised"

// DefaultSettle is how long the syncer waits after moving files before
// releasing the lock, absorbing late filesystem notifications.
const DefaultSettle = 2500 * time.Millisecond

// PlanEntry is one file's placement in a sync plan.
type PlanEntry struct {
	FileID       int64
	CurrentPath  string
	OriginalPath string
	Filename     string
	ClusterID    int64
}

// Move records one relocation the syncer performed.
type Move struct {
	FileID int64
	From   string
	To     string
}

// Syncer moves files into cluster folders under the guard's sync lock.
type Syncer struct {
	guard  *Guard
	settle time.Duration
	logger *slog.Logger
}

// Option configures the Syncer.
type Option func(*Syncer)

// WithSettle overrides the post-move settle window.
func WithSettle(d time.Duration) Option {
	return func(s *Syncer) {
		s.settle = d
	}
}

// WithLogger sets the logger for the syncer.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Syncer) {
		s.logger = logger
	}
}

// New creates a syncer sharing the given guard with the watcher.
func New(guard *Guard, opts ...Option) *Syncer {
	s := &Syncer{
		guard:  guard,
		settle: DefaultSettle,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Guard returns the guard shared with the watcher.
func (s *Syncer) Guard() *Guard {
	return s.guard
}

// SyncFilesToFolders moves each planned file into root/<cluster name>/.
// Individual failures are logged and skipped, never failing the batch.
// Returns the moves actually performed.
func (s *Syncer) SyncFilesToFolders(root string, plan []PlanEntry, names map[int64]string) []Move {
	var moves []Move

	s.guard.Lock()
	defer func() {
		time.Sleep(s.settle)
		s.guard.Unlock()
	}()

	for _, name := range names {
		if err := os.MkdirAll(filepath.Join(root, name), 0755); err != nil {
			s.logger.Error("failed to create cluster folder", "name", name, "error", err)
		}
	}
	if err := os.MkdirAll(filepath.Join(root, UncategorizedFolder), 0755); err != nil {
		s.logger.Error("failed to create cluster folder", "name", UncategorizedFolder, "error", err)
	}

	for _, entry := range plan {
		source := bestSource(root, entry)
		if source == "" {
			s.logger.Warn("no on-disk source for file, skipping",
				"file_id", entry.FileID,
				"filename", entry.Filename,
			)
			continue
		}

		folderName, ok := names[entry.ClusterID]
		if !ok {
			folderName = UncategorizedFolder
		}

		target := filepath.Join(root, folderName, entry.Filename)
		if samePath(source, target) {
			continue
		}

		target = uniqueTarget(target)

		s.guard.MarkRecent(source, target)

		if err := moveFile(source, target); err != nil {
			s.logger.Error("failed to move file",
				"from", source,
				"to", target,
				"error", err,
			)
			continue
		}

		s.logger.Info("moved file",
			"filename", filepath.Base(source),
			"folder", folderName,
		)
		moves = append(moves, Move{FileID: entry.FileID, From: source, To: target})
	}

	keep := make(map[string]bool, len(names)+1)
	for _, name := range names {
		keep[name] = true
	}
	keep[UncategorizedFolder] = true
	s.cleanupEmptyDirs(root, keep)

	return moves
}

// bestSource resolves the best existing source path for an entry:
// current_path, then original_path, then root/filename.
func bestSource(root string, entry PlanEntry) string {
	candidates := []string{
		entry.CurrentPath,
		entry.OriginalPath,
		filepath.Join(root, entry.Filename),
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// samePath reports whether two paths resolve to the same file.
func samePath(a, b string) bool {
	ra, err := filepath.EvalSymlinks(a)
	if err != nil {
		ra = filepath.Clean(a)
	}
	rb, err := filepath.EvalSymlinks(b)
	if err != nil {
		rb = filepath.Clean(b)
	}
	return ra == rb
}

// uniqueTarget appends _1, _2, ... to the stem until the target is free.
func uniqueTarget(target string) string {
	if _, err := os.Stat(target); err != nil {
		return target
	}

	dir := filepath.Dir(target)
	ext := filepath.Ext(target)
	stem := strings.TrimSuffix(filepath.Base(target), ext)

	for i := 1; ; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
		if _, err := os.Stat(candidate); err != nil {
			return candidate
		}
	}
}

// moveFile renames source to target, falling back to copy+unlink across
// filesystems.
func moveFile(source, target string) error {
	if err := os.Rename(source, target); err == nil {
		return nil
	}

	in, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("failed to open source; %w", err)
	}
	defer in.Close()

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create target; %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(target)
		return fmt.Errorf("failed to copy; %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close target; %w", err)
	}

	if err := os.Remove(source); err != nil {
		return fmt.Errorf("failed to remove source after copy; %w", err)
	}
	return nil
}

// cleanupEmptyDirs removes empty directories under root, deepest first,
// keeping the cluster folders themselves.
func (s *Syncer) cleanupEmptyDirs(root string, keep map[string]bool) {
	var dirs []string
	filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})

	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))

	for _, dir := range dirs {
		if keep[filepath.Base(dir)] && filepath.Dir(dir) == root {
			continue
		}

		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := os.Remove(dir); err == nil {
			s.logger.Info("removed empty directory", "dir", filepath.Base(dir))
		}
	}
}
