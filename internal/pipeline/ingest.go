package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/sefs-io/sefs/internal/events"
	"github.com/sefs-io/sefs/internal/extract"
	"github.com/sefs-io/sefs/internal/store"
)

// ProcessFile ingests one file and returns its record id. Content identity is
// the SHA-256 hash: a known hash at a new path is a relocation of the
// existing record, never a duplicate row.
func (p *Pipeline) ProcessFile(ctx context.Context, path string) (int64, error) {
	if !extract.IsSupported(path) {
		return 0, fmt.Errorf("unsupported file: %s", path)
	}
	if !fileExists(path) {
		return 0, fmt.Errorf("file does not exist: %s", path)
	}

	filename := filepath.Base(path)
	p.publish(ctx, events.ProcessingStart, map[string]any{"filename": filename})

	res, err := p.extractor.Extract(path)
	if err != nil {
		return 0, fmt.Errorf("failed to extract %s; %w", path, err)
	}

	st := p.Store()

	existing, err := st.GetFileByPath(ctx, path)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return 0, fmt.Errorf("failed to look up file; %w", err)
	}

	if existing != nil {
		if existing.ContentHash == res.ContentHash && existing.HasEmbedding() {
			// Unchanged content. Catch up on any manual move/rename.
			if existing.CurrentPath != path || existing.Filename != filename {
				if err := st.UpdateFilePaths(ctx, existing.ID, existing.OriginalPath, path, filename); err != nil {
					return 0, fmt.Errorf("failed to update file paths; %w", err)
				}
			}
			return existing.ID, nil
		}
		return p.reingest(ctx, existing, path, res)
	}

	// The path is new; the content may not be.
	byHash, err := st.GetFileByHash(ctx, res.ContentHash)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return 0, fmt.Errorf("failed to look up hash; %w", err)
	}
	if byHash != nil {
		if err := st.UpdateFilePaths(ctx, byHash.ID, path, path, filename); err != nil {
			return 0, fmt.Errorf("failed to relocate file record; %w", err)
		}
		if err := st.AddEvent(ctx, byHash.ID, string(events.FileModified), "relocated to "+path); err != nil {
			p.logger.Warn("failed to append event", "error", err)
		}
		p.publish(ctx, events.FileModified, map[string]any{
			"file_id":  byHash.ID,
			"filename": filename,
		})
		p.logger.Info("detected file move", "filename", filename, "file_id", byHash.ID)
		return byHash.ID, nil
	}

	return p.insert(ctx, path, res)
}

// reingest refreshes an existing record whose content changed or whose
// embedding is missing.
func (p *Pipeline) reingest(ctx context.Context, existing *store.FileRecord, path string, res extract.Result) (int64, error) {
	embedding := p.adapter.GetEmbedding(ctx, res.Text)
	summary := p.adapter.GenerateSummary(ctx, res.Text)

	rec := &store.FileRecord{
		Filename:     filepath.Base(path),
		OriginalPath: existing.OriginalPath,
		CurrentPath:  path,
		ContentHash:  res.ContentHash,
		Embedding:    embedding,
		EmbedModel:   p.adapter.ModelTag(),
		MapX:         existing.MapX,
		MapY:         existing.MapY,
		ClusterID:    existing.ClusterID,
		Summary:      summary,
		FileType:     res.FileType,
		SizeBytes:    res.SizeBytes,
		WordCount:    res.WordCount,
		PageCount:    res.PageCount,
		CreatedAt:    existing.CreatedAt,
		ModifiedAt:   store.NowISO(),
	}

	st := p.Store()
	id, err := st.UpsertFile(ctx, rec)
	if err != nil {
		return 0, fmt.Errorf("failed to update file record; %w", err)
	}

	if err := st.AddEvent(ctx, id, string(events.FileModified), "content changed"); err != nil {
		p.logger.Warn("failed to append event", "error", err)
	}
	p.publish(ctx, events.FileModified, map[string]any{
		"file_id":  id,
		"filename": rec.Filename,
	})
	return id, nil
}

// insert creates a brand-new record with a fresh embedding and summary.
func (p *Pipeline) insert(ctx context.Context, path string, res extract.Result) (int64, error) {
	embedding := p.adapter.GetEmbedding(ctx, res.Text)
	summary := p.adapter.GenerateSummary(ctx, res.Text)

	now := store.NowISO()
	rec := &store.FileRecord{
		Filename:     filepath.Base(path),
		OriginalPath: path,
		CurrentPath:  path,
		ContentHash:  res.ContentHash,
		Embedding:    embedding,
		EmbedModel:   p.adapter.ModelTag(),
		ClusterID:    store.UncategorizedCluster,
		Summary:      summary,
		FileType:     res.FileType,
		SizeBytes:    res.SizeBytes,
		WordCount:    res.WordCount,
		PageCount:    res.PageCount,
		CreatedAt:    now,
		ModifiedAt:   now,
	}

	st := p.Store()
	id, err := st.UpsertFile(ctx, rec)
	if err != nil {
		return 0, fmt.Errorf("failed to insert file record; %w", err)
	}

	if err := st.AddEvent(ctx, id, string(events.FileAdded), path); err != nil {
		p.logger.Warn("failed to append event", "error", err)
	}
	p.publish(ctx, events.FileAdded, map[string]any{
		"file_id":  id,
		"filename": rec.Filename,
	})
	p.logger.Info("ingested file", "filename", rec.Filename, "file_id", id)
	return id, nil
}

// RemoveFile handles a delete notification. Deletes that are really the
// source side of a move are dropped: either the record's current path moved
// on and still exists, or another live record owns the same content hash.
func (p *Pipeline) RemoveFile(ctx context.Context, path string) error {
	st := p.Store()

	rec, err := st.GetFileByPath(ctx, path)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up file; %w", err)
	}

	if rec.CurrentPath != path && fileExists(rec.CurrentPath) {
		p.logger.Debug("delete was a move, keeping record", "path", path, "file_id", rec.ID)
		return nil
	}

	if byHash, err := st.GetFileByHash(ctx, rec.ContentHash); err == nil {
		if byHash.CurrentPath != path && fileExists(byHash.CurrentPath) {
			p.logger.Debug("content survives at another path, keeping record",
				"path", path, "file_id", rec.ID)
			return nil
		}
	}

	if err := st.DeleteFileByID(ctx, rec.ID); err != nil {
		return fmt.Errorf("failed to delete file record; %w", err)
	}
	if err := st.AddEvent(ctx, rec.ID, string(events.FileRemoved), path); err != nil {
		p.logger.Warn("failed to append event", "error", err)
	}
	p.publish(ctx, events.FileRemoved, map[string]any{
		"file_id":  rec.ID,
		"filename": rec.Filename,
	})
	p.logger.Info("removed file record", "filename", rec.Filename, "file_id", rec.ID)
	return nil
}
