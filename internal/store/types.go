package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// UncategorizedCluster is the cluster id for files not assigned to any cluster.
const UncategorizedCluster = -1

// FileRecord is one tracked file in the watched root.
type FileRecord struct {
	ID           int64     `json:"id"`
	Filename     string    `json:"filename"`
	OriginalPath string    `json:"original_path"`
	CurrentPath  string    `json:"current_path"`
	ContentHash  string    `json:"-"`
	Embedding    []float32 `json:"-"`
	EmbedModel   string    `json:"-"`
	MapX         float64   `json:"umap_x"`
	MapY         float64   `json:"umap_y"`
	ClusterID    int64     `json:"cluster_id"`
	Summary      string    `json:"summary"`
	FileType     string    `json:"file_type"`
	SizeBytes    int64     `json:"size_bytes"`
	WordCount    int       `json:"word_count"`
	PageCount    int       `json:"page_count"`
	CreatedAt    string    `json:"created_at"`
	ModifiedAt   string    `json:"modified_at"`
}

// HasEmbedding reports whether the record carries a non-zero embedding.
func (f *FileRecord) HasEmbedding() bool {
	for _, v := range f.Embedding {
		if v != 0 {
			return true
		}
	}
	return false
}

// ClusterRecord is one named cluster and its on-disk folder.
type ClusterRecord struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	FolderPath  string    `json:"folder_path"`
	Centroid    []float32 `json:"-"`
	FileCount   int       `json:"file_count"`
	CreatedAt   string    `json:"created_at"`
}

// EventRecord is one append-only audit event.
type EventRecord struct {
	ID        int64  `json:"id"`
	FileID    int64  `json:"file_id"`
	EventType string `json:"event_type"`
	Detail    string `json:"detail"`
	Timestamp string `json:"timestamp"`
}

// ClusterAssignment is one row of a bulk cluster update after a recluster.
type ClusterAssignment struct {
	FileID      int64
	ClusterID   int64
	MapX        float64
	MapY        float64
	CurrentPath string
}

// NowISO returns the current UTC time in the timestamp format stored in the
// database.
func NowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
