package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const fileColumns = `id, filename, original_path, current_path, content_hash,
	embedding, embed_model, map_x, map_y, cluster_id, summary,
	file_type, size_bytes, word_count, page_count, created_at, modified_at`

// UpsertFile inserts or updates a file record keyed by original_path and
// returns the record's id.
func (s *RootStore) UpsertFile(ctx context.Context, f *FileRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO files
		   (filename, original_path, current_path, content_hash,
		    embedding, embed_model, map_x, map_y, cluster_id, summary,
		    file_type, size_bytes, word_count, page_count, created_at, modified_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(original_path) DO UPDATE SET
		   filename = excluded.filename,
		   current_path = excluded.current_path,
		   content_hash = excluded.content_hash,
		   embedding = excluded.embedding,
		   embed_model = excluded.embed_model,
		   map_x = excluded.map_x,
		   map_y = excluded.map_y,
		   cluster_id = excluded.cluster_id,
		   summary = excluded.summary,
		   file_type = excluded.file_type,
		   size_bytes = excluded.size_bytes,
		   word_count = excluded.word_count,
		   page_count = excluded.page_count,
		   modified_at = excluded.modified_at`,
		f.Filename, f.OriginalPath, f.CurrentPath, f.ContentHash,
		encodeVector(f.Embedding), f.EmbedModel, f.MapX, f.MapY, f.ClusterID, f.Summary,
		f.FileType, f.SizeBytes, f.WordCount, f.PageCount, f.CreatedAt, f.ModifiedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert file; %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		"SELECT id FROM files WHERE original_path = ?", f.OriginalPath,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to read upserted file id; %w", err)
	}

	return id, nil
}

// GetFileByPath returns the record whose original or current path matches.
// Returns ErrNotFound if no record matches.
func (s *RootStore) GetFileByPath(ctx context.Context, path string) (*FileRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+fileColumns+" FROM files WHERE original_path = ? OR current_path = ?",
		path, path,
	)
	return scanFile(row)
}

// GetFileByID returns the record with the given id.
// Returns ErrNotFound if no record matches.
func (s *RootStore) GetFileByID(ctx context.Context, id int64) (*FileRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+fileColumns+" FROM files WHERE id = ?", id,
	)
	return scanFile(row)
}

// GetFileByHash returns the most recently created record for a content hash.
// Returns ErrNotFound if no record matches.
func (s *RootStore) GetFileByHash(ctx context.Context, contentHash string) (*FileRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+fileColumns+" FROM files WHERE content_hash = ? ORDER BY id DESC LIMIT 1",
		contentHash,
	)
	return scanFile(row)
}

// ListFiles returns all file records ordered by id.
func (s *RootStore) ListFiles(ctx context.Context) ([]FileRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+fileColumns+" FROM files ORDER BY id",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list files; %w", err)
	}
	defer rows.Close()

	var files []FileRecord
	for rows.Next() {
		f, err := scanFileRows(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating files; %w", err)
	}

	return files, nil
}

// DeleteFileByPath removes any record whose original or current path matches.
func (s *RootStore) DeleteFileByPath(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM files WHERE original_path = ? OR current_path = ?",
		path, path,
	)
	if err != nil {
		return fmt.Errorf("failed to delete file; %w", err)
	}
	return nil
}

// DeleteFileByID removes the record with the given id.
func (s *RootStore) DeleteFileByID(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM files WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete file; %w", err)
	}
	return nil
}

// UpdateFileCluster sets the cluster id for a file.
func (s *RootStore) UpdateFileCluster(ctx context.Context, id, clusterID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"UPDATE files SET cluster_id = ? WHERE id = ?", clusterID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update file cluster; %w", err)
	}
	return nil
}

// UpdateFileCoords sets the 2D visualization coordinates for a file.
func (s *RootStore) UpdateFileCoords(ctx context.Context, id int64, x, y float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"UPDATE files SET map_x = ?, map_y = ? WHERE id = ?", x, y, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update file coords; %w", err)
	}
	return nil
}

// UpdateFileEmbedding replaces a file's embedding and the model tag that
// produced it.
func (s *RootStore) UpdateFileEmbedding(ctx context.Context, id int64, embedding []float32, modelTag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"UPDATE files SET embedding = ?, embed_model = ? WHERE id = ?",
		encodeVector(embedding), modelTag, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update file embedding; %w", err)
	}
	return nil
}

// UpdateFileCurrentPath sets the current on-disk path for a file.
func (s *RootStore) UpdateFileCurrentPath(ctx context.Context, id int64, newPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"UPDATE files SET current_path = ? WHERE id = ?", newPath, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update file current path; %w", err)
	}
	return nil
}

// UpdateFileFilename updates the filename field to match the actual on-disk
// name, e.g. after a collision rename during sync.
func (s *RootStore) UpdateFileFilename(ctx context.Context, id int64, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"UPDATE files SET filename = ? WHERE id = ?", filename, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update file filename; %w", err)
	}
	return nil
}

// UpdateFilePaths updates the identity paths when a file is relocated or
// renamed by the user.
func (s *RootStore) UpdateFilePaths(ctx context.Context, id int64, originalPath, currentPath, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`UPDATE files
		 SET original_path = ?, current_path = ?, filename = ?, modified_at = ?
		 WHERE id = ?`,
		originalPath, currentPath, filename, NowISO(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update file paths; %w", err)
	}
	return nil
}

// BulkUpdateClusters applies cluster assignments from a recluster run in a
// single transaction.
func (s *RootStore) BulkUpdateClusters(ctx context.Context, updates []ClusterAssignment) error {
	if len(updates) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction; %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"UPDATE files SET cluster_id = ?, map_x = ?, map_y = ?, current_path = ? WHERE id = ?",
	)
	if err != nil {
		return fmt.Errorf("failed to prepare bulk update; %w", err)
	}
	defer stmt.Close()

	for _, u := range updates {
		if _, err := stmt.ExecContext(ctx, u.ClusterID, u.MapX, u.MapY, u.CurrentPath, u.FileID); err != nil {
			return fmt.Errorf("failed to apply cluster update for file %d; %w", u.FileID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit bulk update; %w", err)
	}

	return nil
}

// scanner abstracts sql.Row and sql.Rows for record scanning.
type scanner interface {
	Scan(dest ...any) error
}

func scanFile(sc scanner) (*FileRecord, error) {
	var f FileRecord
	var embedding []byte

	err := sc.Scan(
		&f.ID, &f.Filename, &f.OriginalPath, &f.CurrentPath, &f.ContentHash,
		&embedding, &f.EmbedModel, &f.MapX, &f.MapY, &f.ClusterID, &f.Summary,
		&f.FileType, &f.SizeBytes, &f.WordCount, &f.PageCount, &f.CreatedAt, &f.ModifiedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan file record; %w", err)
	}

	f.Embedding = decodeVector(embedding)
	return &f, nil
}

func scanFileRows(rows *sql.Rows) (*FileRecord, error) {
	return scanFile(rows)
}
