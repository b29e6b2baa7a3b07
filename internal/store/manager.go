package store

import (
	"context"
	"fmt"
	"sync"
)

// Manager holds the active per-root store and swaps it when the watched root
// changes. Callers must not retain the returned *RootStore across a switch.
type Manager struct {
	mu      sync.RWMutex
	current *RootStore
}

// NewManager creates a manager wrapping an already-open root store.
func NewManager(s *RootStore) *Manager {
	return &Manager{current: s}
}

// Current returns the active root store.
func (m *Manager) Current() *RootStore {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Switch closes the active store and opens the database inside newRoot.
func (m *Manager) Switch(ctx context.Context, newRoot string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		if err := m.current.Close(); err != nil {
			return fmt.Errorf("failed to close store for previous root; %w", err)
		}
		m.current = nil
	}

	s, err := Open(ctx, DBPath(newRoot))
	if err != nil {
		return fmt.Errorf("failed to open store for root %s; %w", newRoot, err)
	}

	m.current = s
	return nil
}

// Close closes the active store.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil
	}
	err := m.current.Close()
	m.current = nil
	return err
}
