package store

import (
	"context"
	"fmt"
)

// UpsertCluster inserts or replaces a cluster record keyed by id.
func (s *RootStore) UpsertCluster(ctx context.Context, c *ClusterRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO clusters
		   (id, name, description, folder_path, centroid, file_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Description, c.FolderPath,
		encodeVector(c.Centroid), c.FileCount, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert cluster; %w", err)
	}
	return nil
}

// ListClusters returns all cluster records ordered by id.
func (s *RootStore) ListClusters(ctx context.Context) ([]ClusterRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, description, folder_path, centroid, file_count, created_at FROM clusters ORDER BY id",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list clusters; %w", err)
	}
	defer rows.Close()

	var clusters []ClusterRecord
	for rows.Next() {
		var c ClusterRecord
		var centroid []byte
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.FolderPath, &centroid, &c.FileCount, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cluster record; %w", err)
		}
		c.Centroid = decodeVector(centroid)
		clusters = append(clusters, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clusters; %w", err)
	}

	return clusters, nil
}

// ClearClusters removes all cluster records. File assignments are replaced
// separately by the recluster's bulk update.
func (s *RootStore) ClearClusters(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM clusters"); err != nil {
		return fmt.Errorf("failed to clear clusters; %w", err)
	}
	return nil
}
