package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// Catalog is the SQLite store for file metadata, chunk metadata, the FTS5
// lexical table, and the append-only stats tables.
type Catalog struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// validateCatalogIntegrity checks a catalog database before opening.
// Returns nil if valid, an error describing corruption if not.
func validateCatalogIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Database doesn't exist, will be created
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	return nil
}

// OpenCatalog opens (or creates) the catalog at path. If path is empty, an
// in-memory catalog is created for testing.
//
// A corrupted catalog is cleared and recreated; search data is rebuildable
// by reindexing.
func OpenCatalog(path string) (*Catalog, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		if validErr := validateCatalogIntegrity(path); validErr != nil {
			slog.Warn("catalog_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, fmt.Errorf("catalog corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")

			slog.Info("catalog_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, please reindex"))
		}

		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer to prevent lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL mode must be set via PRAGMA for modernc.org/sqlite; DSN params
	// may be ignored.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	c := &Catalog{
		db:   db,
		path: path,
	}

	if err := c.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return c, nil
}

// initSchema creates the catalog tables, the FTS5 lexical table, and the
// referential triggers.
func (c *Catalog) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS files (
		file_id    TEXT PRIMARY KEY,
		path       TEXT UNIQUE NOT NULL,
		size       INTEGER NOT NULL,
		mtime      INTEGER NOT NULL,
		sha256     TEXT NOT NULL,
		indexed_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chunks (
		chunk_id    TEXT PRIMARY KEY,
		file_id     TEXT NOT NULL REFERENCES files(file_id) ON DELETE CASCADE,
		idx         INTEGER NOT NULL,
		token_start INTEGER NOT NULL,
		token_end   INTEGER NOT NULL,
		created_at  TEXT NOT NULL,
		UNIQUE(file_id, idx)
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_file_id ON chunks(file_id);

	-- Full-text index over chunk text with stemmed tokenization.
	CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		chunk_id UNINDEXED,
		text,
		path UNINDEXED,
		tokenize='porter unicode61'
	);

	CREATE TABLE IF NOT EXISTS index_stats (
		operation        TEXT NOT NULL,
		files_processed  INTEGER NOT NULL,
		chunks_created   INTEGER NOT NULL,
		files_skipped    INTEGER NOT NULL,
		errors           INTEGER NOT NULL,
		duration_seconds REAL NOT NULL,
		timestamp        TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS search_stats (
		query             TEXT NOT NULL,
		total_candidates  INTEGER NOT NULL,
		vector_candidates INTEGER NOT NULL,
		lexical_candidates INTEGER NOT NULL,
		final_results     INTEGER NOT NULL,
		duration_seconds  REAL NOT NULL,
		cache_hit         INTEGER NOT NULL,
		timestamp         TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS index_meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	-- Deleting a chunk row removes its lexical entry.
	CREATE TRIGGER IF NOT EXISTS chunks_fts_cascade
	AFTER DELETE ON chunks
	BEGIN
		DELETE FROM chunks_fts WHERE chunk_id = old.chunk_id;
	END;

	-- Renaming a file propagates to the denormalized path column.
	CREATE TRIGGER IF NOT EXISTS chunks_fts_rename
	AFTER UPDATE OF path ON files
	BEGIN
		UPDATE chunks_fts SET path = new.path
		WHERE chunk_id IN (SELECT chunk_id FROM chunks WHERE file_id = new.file_id);
	END;

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	INSERT OR IGNORE INTO index_meta (key, value) VALUES ('index_version', '0');
	`

	_, err := c.db.Exec(schema)
	return err
}

// UpsertFile inserts or replaces a file record, keyed by path.
func (c *Catalog) UpsertFile(ctx context.Context, rec FileRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("catalog is closed")
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// A path can be re-indexed under a new file ID (mtime/size changed).
	// Remove the old identity first so the UNIQUE path constraint holds.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM files WHERE path = ? AND file_id != ?`, rec.Path, rec.FileID); err != nil {
		return fmt.Errorf("failed to clear previous file record: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO files (file_id, path, size, mtime, sha256, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.FileID, rec.Path, rec.Size, rec.MTime, rec.SHA256,
		rec.IndexedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert file %s: %w", rec.Path, err)
	}

	return tx.Commit()
}

// GetFileByPath returns the file record for a path, or nil if absent.
func (c *Catalog) GetFileByPath(ctx context.Context, path string) (*FileRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	row := c.db.QueryRowContext(ctx, `
		SELECT file_id, path, size, mtime, sha256, indexed_at
		FROM files WHERE path = ?`, path)

	var rec FileRecord
	var indexedAt string
	err := row.Scan(&rec.FileID, &rec.Path, &rec.Size, &rec.MTime, &rec.SHA256, &indexedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query file %s: %w", path, err)
	}

	rec.IndexedAt, _ = time.Parse(time.RFC3339, indexedAt)
	return &rec, nil
}

// UpsertChunks inserts or replaces chunk rows and their FTS5 entries.
// path is the owning file's path, denormalized into the lexical table.
func (c *Catalog) UpsertChunks(ctx context.Context, chunks []Chunk, path string) error {
	if len(chunks) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("catalog is closed")
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	chunkStmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks (chunk_id, file_id, idx, token_start, token_end, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer chunkStmt.Close()

	// FTS5 has no ON CONFLICT support, so delete-then-insert.
	ftsDelStmt, err := tx.PrepareContext(ctx, `DELETE FROM chunks_fts WHERE chunk_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare fts delete: %w", err)
	}
	defer ftsDelStmt.Close()

	ftsInsStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks_fts (chunk_id, text, path) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare fts insert: %w", err)
	}
	defer ftsInsStmt.Close()

	for _, ch := range chunks {
		createdAt := ch.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		if _, err := chunkStmt.ExecContext(ctx,
			ch.ChunkID, ch.FileID, ch.Idx, ch.TokenStart, ch.TokenEnd,
			createdAt.UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", ch.ChunkID, err)
		}
		if _, err := ftsDelStmt.ExecContext(ctx, ch.ChunkID); err != nil {
			return fmt.Errorf("failed to clear fts entry %s: %w", ch.ChunkID, err)
		}
		if _, err := ftsInsStmt.ExecContext(ctx, ch.ChunkID, ch.Text, path); err != nil {
			return fmt.Errorf("failed to insert fts entry %s: %w", ch.ChunkID, err)
		}
	}

	return tx.Commit()
}

// ChunkIDsForFile returns the chunk IDs belonging to a file, ordered by idx.
func (c *Catalog) ChunkIDsForFile(ctx context.Context, fileID string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rows, err := c.db.QueryContext(ctx,
		`SELECT chunk_id FROM chunks WHERE file_id = ? ORDER BY idx`, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks for file %s: %w", fileID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteFile removes a file record. Chunk rows cascade via the foreign key
// and lexical entries via the chunks_fts_cascade trigger. Returns the chunk
// IDs that were removed so callers can clean up the vector store.
func (c *Catalog) DeleteFile(ctx context.Context, fileID string) ([]string, error) {
	chunkIDs, err := c.ChunkIDsForFile(ctx, fileID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, fmt.Errorf("catalog is closed")
	}

	if _, err := c.db.ExecContext(ctx, `DELETE FROM files WHERE file_id = ?`, fileID); err != nil {
		return nil, fmt.Errorf("failed to delete file %s: %w", fileID, err)
	}

	return chunkIDs, nil
}

// RenameFile updates a file's path. The chunks_fts_rename trigger keeps the
// lexical table's denormalized path in sync.
func (c *Catalog) RenameFile(ctx context.Context, fileID, newPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("catalog is closed")
	}

	_, err := c.db.ExecContext(ctx,
		`UPDATE files SET path = ? WHERE file_id = ?`, newPath, fileID)
	if err != nil {
		return fmt.Errorf("failed to rename file %s: %w", fileID, err)
	}
	return nil
}

// ChunkText returns the stored text for a chunk from the lexical table.
func (c *Catalog) ChunkText(ctx context.Context, chunkID string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var text string
	err := c.db.QueryRowContext(ctx,
		`SELECT text FROM chunks_fts WHERE chunk_id = ?`, chunkID).Scan(&text)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read chunk text %s: %w", chunkID, err)
	}
	return text, nil
}

// ChunkTexts returns the stored text for a batch of chunks, keyed by
// chunk ID. Missing chunks are simply absent from the map.
func (c *Catalog) ChunkTexts(ctx context.Context, chunkIDs []string) (map[string]string, error) {
	if len(chunkIDs) == 0 {
		return map[string]string{}, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	placeholders := strings.Repeat("?,", len(chunkIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		args[i] = id
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT chunk_id, text FROM chunks_fts WHERE chunk_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk texts: %w", err)
	}
	defer rows.Close()

	texts := make(map[string]string, len(chunkIDs))
	for rows.Next() {
		var id, text string
		if err := rows.Scan(&id, &text); err != nil {
			return nil, err
		}
		texts[id] = text
	}
	return texts, rows.Err()
}

// Counts returns the number of files and chunks in the catalog.
func (c *Catalog) Counts(ctx context.Context) (files int, chunks int, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err = c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&files); err != nil {
		return 0, 0, err
	}
	if err = c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&chunks); err != nil {
		return 0, 0, err
	}
	return files, chunks, nil
}

// InsertIndexStats appends an indexing audit row.
func (c *Catalog) InsertIndexStats(ctx context.Context, s IndexStats) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO index_stats (operation, files_processed, chunks_created, files_skipped, errors, duration_seconds, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.Operation, s.FilesProcessed, s.ChunksCreated, s.FilesSkipped, s.Errors,
		s.DurationSeconds, s.Timestamp.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert index stats: %w", err)
	}
	return nil
}

// InsertSearchStats appends a search audit row.
func (c *Catalog) InsertSearchStats(ctx context.Context, s SearchStats) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cacheHit := 0
	if s.CacheHit {
		cacheHit = 1
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO search_stats (query, total_candidates, vector_candidates, lexical_candidates, final_results, duration_seconds, cache_hit, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Query, s.TotalCandidates, s.VectorCandidates, s.LexicalCandidates,
		s.FinalResults, s.DurationSeconds, cacheHit,
		s.Timestamp.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert search stats: %w", err)
	}
	return nil
}

// LastIndexStats returns the most recent indexing audit row, or nil.
func (c *Catalog) LastIndexStats(ctx context.Context) (*IndexStats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	row := c.db.QueryRowContext(ctx, `
		SELECT operation, files_processed, chunks_created, files_skipped, errors, duration_seconds, timestamp
		FROM index_stats ORDER BY rowid DESC LIMIT 1`)

	var s IndexStats
	var ts string
	err := row.Scan(&s.Operation, &s.FilesProcessed, &s.ChunksCreated, &s.FilesSkipped,
		&s.Errors, &s.DurationSeconds, &ts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.Timestamp, _ = time.Parse(time.RFC3339, ts)
	return &s, nil
}

// LastSearchStats returns the most recent search audit row, or nil.
func (c *Catalog) LastSearchStats(ctx context.Context) (*SearchStats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	row := c.db.QueryRowContext(ctx, `
		SELECT query, total_candidates, vector_candidates, lexical_candidates, final_results, duration_seconds, cache_hit, timestamp
		FROM search_stats ORDER BY rowid DESC LIMIT 1`)

	var s SearchStats
	var cacheHit int
	var ts string
	err := row.Scan(&s.Query, &s.TotalCandidates, &s.VectorCandidates, &s.LexicalCandidates,
		&s.FinalResults, &s.DurationSeconds, &cacheHit, &ts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.CacheHit = cacheHit != 0
	s.Timestamp, _ = time.Parse(time.RFC3339, ts)
	return &s, nil
}

// IndexVersion returns the monotonic stamp bumped on every store mutation.
// The result cache keys on it so pages from before a re-index never serve.
func (c *Catalog) IndexVersion(ctx context.Context) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var v string
	err := c.db.QueryRowContext(ctx,
		`SELECT value FROM index_meta WHERE key = 'index_version'`).Scan(&v)
	if err == sql.ErrNoRows {
		return "0", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read index version: %w", err)
	}
	return v, nil
}

// BumpIndexVersion increments the index version stamp.
func (c *Catalog) BumpIndexVersion(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx, `
		UPDATE index_meta SET value = CAST(CAST(value AS INTEGER) + 1 AS TEXT)
		WHERE key = 'index_version'`)
	if err != nil {
		return fmt.Errorf("failed to bump index version: %w", err)
	}
	return nil
}

// Path returns the catalog's file path ("" for in-memory catalogs).
func (c *Catalog) Path() string {
	return c.path
}

// DB exposes the underlying handle for components sharing the catalog
// database, such as the FTS5 lexical index.
func (c *Catalog) DB() *sql.DB {
	return c.db
}

// Close closes the catalog.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.db.Close()
}

// sanitizeFTSQuery escapes a user query for FTS5 MATCH by quoting each term.
// Bare punctuation in user queries is FTS5 syntax and would otherwise error.
func sanitizeFTSQuery(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return `""`
	}
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, `""`)
		quoted = append(quoted, `"`+f+`"`)
	}
	return strings.Join(quoted, " ")
}
