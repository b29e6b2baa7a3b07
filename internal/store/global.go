package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// GlobalStore provides access to the daemon-wide settings database under the
// user's config directory.
type GlobalStore struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// OpenGlobal creates a GlobalStore for the given database path.
func OpenGlobal(ctx context.Context, dbPath string) (*GlobalStore, error) {
	db, err := openDB(ctx, dbPath)
	if err != nil {
		return nil, err
	}

	s := &GlobalStore{
		db:     db,
		dbPath: dbPath,
	}

	if err := migrate(ctx, db, globalMigrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations; %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *GlobalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Path returns the database file path.
func (s *GlobalStore) Path() string {
	return s.dbPath
}

// GetSetting returns the value for a settings key.
// Returns ErrNotFound if the key has never been set.
func (s *GlobalStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM settings WHERE key = ?", key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %q; %w", key, err)
	}
	return value, nil
}

// AllSettings returns every persisted settings key/value pair.
func (s *GlobalStore) AllSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("failed to list settings; %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan setting; %w", err)
		}
		settings[k] = v
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating settings; %w", err)
	}

	return settings, nil
}

// SetSetting persists a single settings key/value pair.
func (s *GlobalStore) SetSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set setting %q; %w", key, err)
	}
	return nil
}

// SetSettings persists multiple settings in a single transaction.
func (s *GlobalStore) SetSettings(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction; %w", err)
	}
	defer tx.Rollback()

	for k, v := range values {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)", k, v,
		); err != nil {
			return fmt.Errorf("failed to set setting %q; %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit settings; %w", err)
	}

	return nil
}

// globalMigrations contains all global schema migrations in order.
var globalMigrations = []Migration{
	{
		Version:     1,
		Description: "Create settings table",
		Up: `
			CREATE TABLE IF NOT EXISTS settings (
				key TEXT PRIMARY KEY,
				value TEXT
			);
		`,
	},
}
