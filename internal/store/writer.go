package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	cerrors "github.com/Warlord437/Context-Based-File-Search/internal/errors"
)

// DualWriter is the sole mutator of the vector and lexical stores. Routing
// every write through one component keeps the two stores in lockstep: chunk
// IDs written to one side are always written to the other, and a failed
// side is retried until both converge or the batch surfaces a hard error.
type DualWriter struct {
	catalog *Catalog
	lexical LexicalIndex
	vector  VectorIndex
	logger  *slog.Logger

	retryCfg    cerrors.RetryConfig
	upsertBatch int

	// The FTS5 backend shares the catalog transaction, so its lexical
	// rows are written by UpsertChunks already.
	sharedLexical bool
}

// DualWriterOption configures a DualWriter.
type DualWriterOption func(*DualWriter)

// WithRetryConfig overrides the store-write retry policy.
func WithRetryConfig(cfg cerrors.RetryConfig) DualWriterOption {
	return func(w *DualWriter) {
		w.retryCfg = cfg
	}
}

// WithUpsertBatch overrides the maximum chunks per store write.
func WithUpsertBatch(n int) DualWriterOption {
	return func(w *DualWriter) {
		if n > 0 {
			w.upsertBatch = n
		}
	}
}

// WithWriterLogger sets the logger.
func WithWriterLogger(logger *slog.Logger) DualWriterOption {
	return func(w *DualWriter) {
		w.logger = logger
	}
}

// NewDualWriter creates the writer over the catalog and both indexes.
func NewDualWriter(catalog *Catalog, lexical LexicalIndex, vector VectorIndex, opts ...DualWriterOption) (*DualWriter, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if lexical == nil {
		return nil, fmt.Errorf("lexical index is required")
	}
	if vector == nil {
		return nil, fmt.Errorf("vector index is required")
	}

	w := &DualWriter{
		catalog:     catalog,
		lexical:     lexical,
		vector:      vector,
		logger:      slog.Default(),
		retryCfg:    cerrors.RetryConfig{MaxRetries: 2, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2.0},
		upsertBatch: 4000,
	}
	_, w.sharedLexical = lexical.(*FTS5Index)

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// UpsertFile inserts or replaces a file record in the catalog.
func (w *DualWriter) UpsertFile(ctx context.Context, rec FileRecord) error {
	if err := w.catalog.UpsertFile(ctx, rec); err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStoreWrite, err)
	}
	return nil
}

// UpsertChunks writes a batch of chunks and their vectors to both stores.
// The catalog/lexical side and the vector side are issued together; a
// single-side failure is retried before surfacing a hard error.
func (w *DualWriter) UpsertChunks(ctx context.Context, file FileRecord, chunks []Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return cerrors.New(cerrors.ErrCodeStoreWrite,
			fmt.Sprintf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors)), nil)
	}
	if len(chunks) == 0 {
		return nil
	}

	for start := 0; start < len(chunks); start += w.upsertBatch {
		end := start + w.upsertBatch
		if end > len(chunks) {
			end = len(chunks)
		}
		if err := w.writeBatch(ctx, file, chunks[start:end], vectors[start:end]); err != nil {
			return err
		}
	}

	if err := w.catalog.BumpIndexVersion(ctx); err != nil {
		w.logger.Warn("index_version_bump_failed", slog.String("error", err.Error()))
	}

	return nil
}

func (w *DualWriter) writeBatch(ctx context.Context, file FileRecord, chunks []Chunk, vectors [][]float32) error {
	chunkIDs := make([]string, len(chunks))
	paths := make([]string, len(chunks))
	for i, ch := range chunks {
		chunkIDs[i] = ch.ChunkID
		paths[i] = file.Path
	}

	catalogErr := cerrors.Retry(ctx, w.retryCfg, func() error {
		return w.catalog.UpsertChunks(ctx, chunks, file.Path)
	})

	var lexicalErr error
	if !w.sharedLexical {
		lexicalErr = cerrors.Retry(ctx, w.retryCfg, func() error {
			return w.lexical.Index(ctx, chunks, map[string]string{file.FileID: file.Path})
		})
	}

	vectorErr := cerrors.Retry(ctx, w.retryCfg, func() error {
		return w.vector.Add(ctx, chunkIDs, paths, vectors)
	})

	if catalogErr != nil || lexicalErr != nil || vectorErr != nil {
		w.logger.Error("dual_store_write_failed",
			slog.String("file", file.Path),
			slog.Int("chunks", len(chunks)),
			slog.Any("catalog_error", catalogErr),
			slog.Any("lexical_error", lexicalErr),
			slog.Any("vector_error", vectorErr))
		for _, err := range []error{catalogErr, lexicalErr, vectorErr} {
			if err != nil {
				return cerrors.Wrap(cerrors.ErrCodeStoreWrite, err).
					WithDetail("file", file.Path)
			}
		}
	}

	return nil
}

// DeleteFile removes a file record, its chunks, and the corresponding
// vector and lexical records. This is the only deletion path.
func (w *DualWriter) DeleteFile(ctx context.Context, fileID string) error {
	chunkIDs, err := w.catalog.DeleteFile(ctx, fileID)
	if err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStoreWrite, err)
	}
	if len(chunkIDs) == 0 {
		return nil
	}

	// FTS5 entries cascade via trigger; the explicit delete keeps the
	// bleve backend in lockstep and is idempotent for FTS5.
	if err := cerrors.Retry(ctx, w.retryCfg, func() error {
		return w.lexical.Delete(ctx, chunkIDs)
	}); err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStoreWrite, err).WithDetail("file_id", fileID)
	}

	if err := cerrors.Retry(ctx, w.retryCfg, func() error {
		return w.vector.Delete(ctx, chunkIDs)
	}); err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStoreWrite, err).WithDetail("file_id", fileID)
	}

	if err := w.catalog.BumpIndexVersion(ctx); err != nil {
		w.logger.Warn("index_version_bump_failed", slog.String("error", err.Error()))
	}

	return nil
}

// RenameFile propagates a path change to the catalog, the lexical
// entries' denormalized path column, and the vector payloads.
func (w *DualWriter) RenameFile(ctx context.Context, fileID, newPath string) error {
	chunkIDs, err := w.catalog.ChunkIDsForFile(ctx, fileID)
	if err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStoreWrite, err)
	}

	// The catalog trigger rewrites chunks_fts.path for FTS5.
	if err := w.catalog.RenameFile(ctx, fileID, newPath); err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStoreWrite, err)
	}

	if !w.sharedLexical {
		if err := w.lexical.UpdatePath(ctx, chunkIDs, newPath); err != nil {
			return cerrors.Wrap(cerrors.ErrCodeStoreWrite, err)
		}
	}

	if err := w.vector.UpdatePath(ctx, chunkIDs, newPath); err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStoreWrite, err)
	}

	if err := w.catalog.BumpIndexVersion(ctx); err != nil {
		w.logger.Warn("index_version_bump_failed", slog.String("error", err.Error()))
	}

	return nil
}

// Flush persists the vector index to disk.
func (w *DualWriter) Flush(ctx context.Context) error {
	if err := w.vector.Save(ctx); err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStoreWrite, err)
	}
	return nil
}
