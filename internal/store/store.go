// Package store provides SQLite persistence for the daemon. Each watched root
// carries its own database file holding files, clusters, and events; a single
// global database under the user's config directory holds runtime settings.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// DBFileName is the name of the per-root database file.
const DBFileName = ".sefs.db"

// DBPath returns the per-root database path: <root>/.sefs.db.
func DBPath(root string) string {
	return filepath.Join(root, DBFileName)
}

// RootStore provides access to a per-root SQLite database.
type RootStore struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex // serializes writers
}

// Open creates a RootStore for the given database path.
// It creates the directory structure if needed and runs migrations.
func Open(ctx context.Context, dbPath string) (*RootStore, error) {
	db, err := openDB(ctx, dbPath)
	if err != nil {
		return nil, err
	}

	s := &RootStore{
		db:     db,
		dbPath: dbPath,
	}

	if err := migrate(ctx, db, rootMigrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations; %w", err)
	}

	return s, nil
}

// openDB opens a SQLite database with the daemon's standard settings.
func openDB(ctx context.Context, dbPath string) (*sql.DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory; %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database; %w", err)
	}

	// Serialize access to avoid SQLite write contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout; %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys; %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode; %w", err)
	}

	return db, nil
}

// DB returns the underlying database connection.
// Use with care; prefer using RootStore methods.
func (s *RootStore) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *RootStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Path returns the database file path.
func (s *RootStore) Path() string {
	return s.dbPath
}

// Migration represents a database schema migration.
type Migration struct {
	Version     int
	Description string
	Up          string
}

// migrate runs all pending migrations on the database.
func migrate(ctx context.Context, db *sql.DB, migrations []Migration) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table; %w", err)
	}

	var currentVersion int
	err = db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current version; %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		if err := runMigration(ctx, db, m); err != nil {
			return fmt.Errorf("failed to run migration %d (%s); %w", m.Version, m.Description, err)
		}
	}

	return nil
}

// runMigration executes a single migration within a transaction.
func runMigration(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction; %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.Up); err != nil {
		return fmt.Errorf("failed to execute migration; %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
		m.Version, m.Description,
	); err != nil {
		return fmt.Errorf("failed to record migration; %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction; %w", err)
	}

	return nil
}

// rootMigrations contains all per-root schema migrations in order.
var rootMigrations = []Migration{
	{
		Version:     1,
		Description: "Create files, clusters, and events tables",
		Up: `
			CREATE TABLE IF NOT EXISTS files (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				filename TEXT NOT NULL,
				original_path TEXT NOT NULL,
				current_path TEXT NOT NULL,
				content_hash TEXT NOT NULL,
				embedding BLOB,
				embed_model TEXT DEFAULT '',
				map_x REAL DEFAULT 0.0,
				map_y REAL DEFAULT 0.0,
				cluster_id INTEGER DEFAULT -1,
				summary TEXT DEFAULT '',
				file_type TEXT DEFAULT '',
				size_bytes INTEGER DEFAULT 0,
				word_count INTEGER DEFAULT 0,
				page_count INTEGER DEFAULT 0,
				created_at TEXT NOT NULL,
				modified_at TEXT NOT NULL,
				UNIQUE(original_path)
			);

			CREATE TABLE IF NOT EXISTS clusters (
				id INTEGER PRIMARY KEY,
				name TEXT NOT NULL,
				description TEXT DEFAULT '',
				folder_path TEXT DEFAULT '',
				centroid BLOB,
				file_count INTEGER DEFAULT 0,
				created_at TEXT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS events (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				file_id INTEGER,
				event_type TEXT NOT NULL,
				detail TEXT DEFAULT '',
				timestamp TEXT NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_files_cluster ON files(cluster_id);
			CREATE INDEX IF NOT EXISTS idx_files_hash ON files(content_hash);
			CREATE INDEX IF NOT EXISTS idx_events_ts ON events(timestamp DESC);
		`,
	},
}
