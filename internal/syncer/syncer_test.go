package syncer

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestSyncer() *Syncer {
	return New(NewGuard(100*time.Millisecond), WithSettle(time.Millisecond))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestSyncFilesToFolders_MovesIntoClusterFolders(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "alpha")
	writeFile(t, filepath.Join(root, "b.txt"), "beta")

	s := newTestSyncer()
	plan := []PlanEntry{
		{FileID: 1, CurrentPath: filepath.Join(root, "a.txt"), Filename: "a.txt", ClusterID: 0},
		{FileID: 2, CurrentPath: filepath.Join(root, "b.txt"), Filename: "b.txt", ClusterID: -1},
	}
	names := map[int64]string{0: "Notes"}

	moves := s.SyncFilesToFolders(root, plan, names)

	if len(moves) != 2 {
		t.Fatalf("expected 2 moves, got %d", len(moves))
	}
	if _, err := os.Stat(filepath.Join(root, "Notes", "a.txt")); err != nil {
		t.Error("expected a.txt in Notes folder")
	}
	if _, err := os.Stat(filepath.Join(root, UncategorizedFolder, "b.txt")); err != nil {
		t.Error("expected unclustered file in Uncategorised folder")
	}
}

func TestSyncFilesToFolders_SkipsAlreadyPlaced(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Notes", "a.txt"), "alpha")

	s := newTestSyncer()
	plan := []PlanEntry{
		{FileID: 1, CurrentPath: filepath.Join(root, "Notes", "a.txt"), Filename: "a.txt", ClusterID: 0},
	}

	moves := s.SyncFilesToFolders(root, plan, map[int64]string{0: "Notes"})
	if len(moves) != 0 {
		t.Errorf("expected no moves for already-placed file, got %v", moves)
	}
}

func TestSyncFilesToFolders_CollisionGetsSuffix(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "incoming")
	writeFile(t, filepath.Join(root, "Notes", "a.txt"), "existing")

	s := newTestSyncer()
	plan := []PlanEntry{
		{FileID: 1, CurrentPath: filepath.Join(root, "a.txt"), Filename: "a.txt", ClusterID: 0},
	}

	moves := s.SyncFilesToFolders(root, plan, map[int64]string{0: "Notes"})
	if len(moves) != 1 {
		t.Fatalf("expected 1 move, got %d", len(moves))
	}
	want := filepath.Join(root, "Notes", "a_1.txt")
	if moves[0].To != want {
		t.Errorf("expected collision suffix target %s, got %s", want, moves[0].To)
	}

	// Original stays untouched.
	data, _ := os.ReadFile(filepath.Join(root, "Notes", "a.txt"))
	if string(data) != "existing" {
		t.Error("expected existing file to be preserved")
	}
}

func TestSyncFilesToFolders_FallsBackToOriginalPath(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "old", "a.txt"), "alpha")

	s := newTestSyncer()
	plan := []PlanEntry{
		{
			FileID:       1,
			CurrentPath:  filepath.Join(root, "gone", "a.txt"),
			OriginalPath: filepath.Join(root, "old", "a.txt"),
			Filename:     "a.txt",
			ClusterID:    0,
		},
	}

	moves := s.SyncFilesToFolders(root, plan, map[int64]string{0: "Notes"})
	if len(moves) != 1 {
		t.Fatalf("expected fallback to original path, got %d moves", len(moves))
	}

	// The emptied "old" directory is swept.
	if _, err := os.Stat(filepath.Join(root, "old")); !os.IsNotExist(err) {
		t.Error("expected emptied directory to be removed")
	}
}

func TestSyncFilesToFolders_MissingSourceSkipped(t *testing.T) {
	root := t.TempDir()

	s := newTestSyncer()
	plan := []PlanEntry{
		{FileID: 1, CurrentPath: filepath.Join(root, "nope.txt"), Filename: "nope.txt", ClusterID: 0},
	}

	moves := s.SyncFilesToFolders(root, plan, map[int64]string{0: "Notes"})
	if len(moves) != 0 {
		t.Errorf("expected missing source to be skipped, got %v", moves)
	}
}

func TestSyncFilesToFolders_LockHeldDuringSync(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "alpha")

	guard := NewGuard(time.Second)
	s := New(guard, WithSettle(50*time.Millisecond))

	done := make(chan struct{})
	go func() {
		s.SyncFilesToFolders(root, []PlanEntry{
			{FileID: 1, CurrentPath: filepath.Join(root, "a.txt"), Filename: "a.txt", ClusterID: 0},
		}, map[int64]string{0: "Notes"})
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	if !guard.Locked() {
		t.Error("expected guard locked during sync settle")
	}

	<-done
	if guard.Locked() {
		t.Error("expected guard unlocked after sync")
	}

	// Touched paths stay shielded after the lock drops.
	if !guard.RecentlySynced(filepath.Join(root, "a.txt")) {
		t.Error("expected source path in recently-synced set")
	}
	if !guard.RecentlySynced(filepath.Join(root, "Notes", "a.txt")) {
		t.Error("expected target path in recently-synced set")
	}
}

func TestGuard_RecentExpires(t *testing.T) {
	g := NewGuard(10 * time.Millisecond)
	g.MarkRecent("/x")

	if !g.RecentlySynced("/x") {
		t.Fatal("expected fresh entry to be recent")
	}

	time.Sleep(20 * time.Millisecond)
	if g.RecentlySynced("/x") {
		t.Error("expected entry to expire after TTL")
	}
}
