package store

import (
	"context"
	"fmt"
	"strings"
)

// FTS5Index implements LexicalIndex over the catalog's chunks_fts table.
// It shares the catalog database, so WAL mode gives concurrent readers, and
// the catalog triggers keep deletions and renames in lockstep with chunk
// rows automatically.
type FTS5Index struct {
	catalog *Catalog
}

var _ LexicalIndex = (*FTS5Index)(nil)

// NewFTS5Index creates the FTS5-backed lexical index over a catalog.
func NewFTS5Index(catalog *Catalog) *FTS5Index {
	return &FTS5Index{catalog: catalog}
}

// Index adds or replaces lexical records. The chunks_fts rows are written by
// Catalog.UpsertChunks in the same transaction as the chunk metadata, so
// this only needs to handle chunks indexed outside that path.
func (f *FTS5Index) Index(ctx context.Context, chunks []Chunk, paths map[string]string) error {
	byFile := make(map[string][]Chunk)
	for _, ch := range chunks {
		byFile[ch.FileID] = append(byFile[ch.FileID], ch)
	}
	for fileID, group := range byFile {
		if err := f.catalog.UpsertChunks(ctx, group, paths[fileID]); err != nil {
			return err
		}
	}
	return nil
}

// Search returns the top candidates by FTS5 bm25() ranking.
func (f *FTS5Index) Search(ctx context.Context, query string, limit int) ([]LexicalHit, error) {
	if strings.TrimSpace(query) == "" {
		return []LexicalHit{}, nil
	}

	f.catalog.mu.RLock()
	defer f.catalog.mu.RUnlock()

	// bm25() returns negative values where lower = better match, so
	// ascending order puts best matches first; negate for positive scores.
	rows, err := f.catalog.db.QueryContext(ctx, `
		SELECT chunk_id, path, bm25(chunks_fts) AS score
		FROM chunks_fts
		WHERE chunks_fts MATCH ?
		ORDER BY score
		LIMIT ?`, sanitizeFTSQuery(query), limit)
	if err != nil {
		// FTS5 errors on invalid match syntax, treat as no results.
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return []LexicalHit{}, nil
		}
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}
	defer rows.Close()

	var hits []LexicalHit
	for rows.Next() {
		var hit LexicalHit
		if err := rows.Scan(&hit.ChunkID, &hit.Path, &hit.Score); err != nil {
			return nil, fmt.Errorf("failed to scan lexical hit: %w", err)
		}
		hit.Score = -hit.Score
		hits = append(hits, hit)
	}

	return hits, rows.Err()
}

// Delete removes lexical records by chunk ID. Idempotent with the cascade
// trigger, so double deletion is harmless.
func (f *FTS5Index) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	f.catalog.mu.Lock()
	defer f.catalog.mu.Unlock()

	tx, err := f.catalog.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM chunks_fts WHERE chunk_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare fts delete: %w", err)
	}
	defer stmt.Close()

	for _, id := range chunkIDs {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("failed to delete lexical record %s: %w", id, err)
		}
	}

	return tx.Commit()
}

// UpdatePath rewrites the denormalized path column for the given chunks.
func (f *FTS5Index) UpdatePath(ctx context.Context, chunkIDs []string, newPath string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	f.catalog.mu.Lock()
	defer f.catalog.mu.Unlock()

	tx, err := f.catalog.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE chunks_fts SET path = ? WHERE chunk_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare path update: %w", err)
	}
	defer stmt.Close()

	for _, id := range chunkIDs {
		if _, err := stmt.ExecContext(ctx, newPath, id); err != nil {
			return fmt.Errorf("failed to update path for %s: %w", id, err)
		}
	}

	return tx.Commit()
}

// Count returns the number of lexical records.
func (f *FTS5Index) Count(ctx context.Context) (int, error) {
	f.catalog.mu.RLock()
	defer f.catalog.mu.RUnlock()

	var n int
	if err := f.catalog.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks_fts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count lexical records: %w", err)
	}
	return n, nil
}

// Close is a no-op; the catalog owns the database handle.
func (f *FTS5Index) Close() error {
	return nil
}
