package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/token/porter"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
)

// stemAnalyzerName is the custom analyzer matching the FTS5 backend's
// 'porter unicode61' tokenization.
const stemAnalyzerName = "stem_analyzer"

// BleveIndex implements LexicalIndex using Bleve v2 with porter stemming.
// It is the alternative to the FTS5 backend for setups that keep the
// lexical index outside the catalog database.
type BleveIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

var _ LexicalIndex = (*BleveIndex)(nil)

// bleveChunkDoc is the document structure for Bleve indexing.
type bleveChunkDoc struct {
	Text string `json:"text"`
	Path string `json:"path"`
}

// validateBleveIntegrity checks if a Bleve index is valid before opening.
// Returns nil if valid, error describing corruption if not.
func validateBleveIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Index doesn't exist, will be created
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}

	return nil
}

// isBleveCorruptionError checks if an error indicates index corruption.
func isBleveCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// NewBleveIndex creates or opens a Bleve lexical index at path.
// If path is empty, creates an in-memory index for testing.
// A corrupted index is cleared and recreated; reindex to repopulate.
func NewBleveIndex(path string) (*BleveIndex, error) {
	indexMapping, err := createStemMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		if validErr := validateBleveIntegrity(path); validErr != nil {
			slog.Warn("lexical_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("lexical index corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
			slog.Info("lexical_index_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, please reindex"))
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil && isBleveCorruptionError(err) {
			slog.Warn("lexical_index_open_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))

			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("lexical index corrupted, cannot clear: %w (original: %v)", removeErr, err)
			}
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open index: %w", err)
	}

	return &BleveIndex{
		index: idx,
		path:  path,
	}, nil
}

// createStemMapping builds the index mapping with a stemming analyzer.
func createStemMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(stemAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			lowercase.Name,
			porter.Name,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = stemAnalyzerName
	textField.Store = true

	pathField := bleve.NewTextFieldMapping()
	pathField.Index = false
	pathField.Store = true

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("text", textField)
	docMapping.AddFieldMappingsAt("path", pathField)

	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = stemAnalyzerName

	return indexMapping, nil
}

// Index adds or replaces lexical records for the given chunks.
func (b *BleveIndex) Index(ctx context.Context, chunks []Chunk, paths map[string]string) error {
	if len(chunks) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	batch := b.index.NewBatch()
	for _, ch := range chunks {
		doc := bleveChunkDoc{Text: ch.Text, Path: paths[ch.FileID]}
		if err := batch.Index(ch.ChunkID, doc); err != nil {
			return fmt.Errorf("failed to index chunk %s: %w", ch.ChunkID, err)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}

	return nil
}

// Search returns chunks matching query, scored by BM25, highest first.
func (b *BleveIndex) Search(ctx context.Context, queryStr string, limit int) ([]LexicalHit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}

	if strings.TrimSpace(queryStr) == "" {
		return []LexicalHit{}, nil
	}

	matchQuery := bleve.NewMatchQuery(queryStr)
	matchQuery.SetField("text")

	searchRequest := bleve.NewSearchRequest(matchQuery)
	searchRequest.Size = limit
	searchRequest.Fields = []string{"path"}

	result, err := b.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]LexicalHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		path, _ := hit.Fields["path"].(string)
		hits = append(hits, LexicalHit{
			ChunkID: hit.ID,
			Path:    path,
			Score:   hit.Score,
		})
	}

	return hits, nil
}

// Delete removes lexical records by chunk ID.
func (b *BleveIndex) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	batch := b.index.NewBatch()
	for _, id := range chunkIDs {
		batch.Delete(id)
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	return nil
}

// UpdatePath rewrites the stored path for the given chunks.
// Bleve has no partial update, so the documents are re-indexed with the
// stored text and the new path.
func (b *BleveIndex) UpdatePath(ctx context.Context, chunkIDs []string, newPath string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	docQuery := bleve.NewDocIDQuery(chunkIDs)
	req := bleve.NewSearchRequest(docQuery)
	req.Size = len(chunkIDs)
	req.Fields = []string{"text"}

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to load chunks for path update: %w", err)
	}

	batch := b.index.NewBatch()
	for _, hit := range result.Hits {
		text, _ := hit.Fields["text"].(string)
		if err := batch.Index(hit.ID, bleveChunkDoc{Text: text, Path: newPath}); err != nil {
			return fmt.Errorf("failed to re-index chunk %s: %w", hit.ID, err)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to update paths: %w", err)
	}

	return nil
}

// Count returns the number of indexed lexical records.
func (b *BleveIndex) Count(ctx context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, fmt.Errorf("index is closed")
	}

	n, err := b.index.DocCount()
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return int(n), nil
}

// Close closes the index.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}
