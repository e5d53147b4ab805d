// Package store implements the persistent catalog, lexical, and vector
// stores backing the indexing pipeline and the hybrid retriever.
package store

import (
	"context"
	"fmt"
	"time"
)

// FileRecord is the catalog row for an indexed file.
type FileRecord struct {
	// FileID is a stable identity derived from path, mtime, and size.
	FileID string

	// Path is the absolute file path. Unique within the catalog.
	Path string

	// Size is the file size in bytes at index time.
	Size int64

	// MTime is the file modification time (unix seconds) at index time.
	MTime int64

	// SHA256 is the content hash used for change detection.
	SHA256 string

	// IndexedAt is when the file was last indexed.
	IndexedAt time.Time
}

// Chunk is one overlapping token window of a file's extracted text.
type Chunk struct {
	// ChunkID is derived deterministically from FileID and Idx, so
	// re-chunking an unchanged file is idempotent.
	ChunkID string

	// FileID references the owning FileRecord.
	FileID string

	// Idx is the ordinal index within the file. (FileID, Idx) is unique.
	Idx int

	// TokenStart and TokenEnd are token offsets for snippet reconstruction.
	TokenStart int
	TokenEnd   int

	// Text is the raw chunk text.
	Text string

	// CreatedAt is when the chunk row was created.
	CreatedAt time.Time
}

// LexicalHit is one candidate from the lexical index.
type LexicalHit struct {
	ChunkID string
	Path    string
	Score   float64
}

// VectorHit is one candidate from the vector index.
type VectorHit struct {
	ChunkID string
	Path    string
	Score   float64
}

// IndexStats is one append-only audit row for an indexing run.
type IndexStats struct {
	Operation       string
	FilesProcessed  int
	ChunksCreated   int
	FilesSkipped    int
	Errors          int
	DurationSeconds float64
	Timestamp       time.Time
}

// SearchStats is one append-only audit row for a query.
type SearchStats struct {
	Query             string
	TotalCandidates   int
	VectorCandidates  int
	LexicalCandidates int
	FinalResults      int
	DurationSeconds   float64
	CacheHit          bool
	Timestamp         time.Time
}

// LexicalIndex is the full-text candidate source.
//
// Implementations must be safe for concurrent readers.
type LexicalIndex interface {
	// Index adds or replaces lexical records for the given chunks.
	// paths maps file IDs to file paths for the denormalized path column.
	Index(ctx context.Context, chunks []Chunk, paths map[string]string) error

	// Search returns up to limit candidates ranked by the backend's
	// BM25-style scoring, highest first. Scores are positive.
	Search(ctx context.Context, query string, limit int) ([]LexicalHit, error)

	// Delete removes lexical records by chunk ID.
	Delete(ctx context.Context, chunkIDs []string) error

	// UpdatePath rewrites the denormalized path column for the given chunks.
	UpdatePath(ctx context.Context, chunkIDs []string, newPath string) error

	// Count returns the number of indexed lexical records.
	Count(ctx context.Context) (int, error)

	// Close releases resources.
	Close() error
}

// VectorIndex is the nearest-neighbor candidate source.
type VectorIndex interface {
	// Add inserts or replaces vectors keyed by chunk ID. The payload path
	// enables reverse lookup without a catalog round trip.
	Add(ctx context.Context, chunkIDs []string, paths []string, vectors [][]float32) error

	// Search returns up to limit nearest neighbors by cosine similarity,
	// highest similarity first.
	Search(ctx context.Context, vector []float32, limit int) ([]VectorHit, error)

	// Delete removes vectors by chunk ID.
	Delete(ctx context.Context, chunkIDs []string) error

	// UpdatePath rewrites the payload path for the given chunk IDs.
	UpdatePath(ctx context.Context, chunkIDs []string, newPath string) error

	// Count returns the number of live vectors.
	Count() int

	// Dimensions returns the vector dimensionality.
	Dimensions() int

	// Save persists the index to disk.
	Save(ctx context.Context) error

	// Close persists and releases resources.
	Close() error
}

// ErrDimensionMismatch is returned when a vector's dimensionality does not
// match the index configuration.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
