package store

import (
	"context"
	"fmt"
)

// AddEvent appends an audit event for a file. fileID may be 0 for events
// without a file subject.
func (s *RootStore) AddEvent(ctx context.Context, fileID int64, eventType, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO events (file_id, event_type, detail, timestamp) VALUES (?, ?, ?, ?)",
		fileID, eventType, detail, NowISO(),
	)
	if err != nil {
		return fmt.Errorf("failed to add event; %w", err)
	}
	return nil
}

// RecentEvents returns the most recent audit events, newest first.
func (s *RootStore) RecentEvents(ctx context.Context, limit int) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, file_id, event_type, detail, timestamp FROM events ORDER BY timestamp DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list events; %w", err)
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		var e EventRecord
		if err := rows.Scan(&e.ID, &e.FileID, &e.EventType, &e.Detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event record; %w", err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events; %w", err)
	}

	return events, nil
}
