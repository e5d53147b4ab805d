package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// VectorConfig configures the HNSW vector index.
type VectorConfig struct {
	// Path is the on-disk location ("" for in-memory, testing only).
	Path string

	// Dimensions is the vector dimensionality.
	Dimensions int

	// M is the maximum number of neighbors per graph node.
	M int

	// EfConstruction controls build-time candidate list size.
	EfConstruction int

	// EfSearch controls query-time candidate list size.
	EfSearch int
}

// HNSWIndex implements VectorIndex using the coder/hnsw pure Go HNSW graph.
// Chunk IDs map to internal uint64 keys; deletions are lazy (the node stays
// in the graph but is dropped from the mappings and filtered from results).
type HNSWIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorConfig

	idMap   map[string]uint64 // chunk ID -> internal key
	keyMap  map[uint64]string // internal key -> chunk ID
	pathMap map[string]string // chunk ID -> file path payload
	nextKey uint64

	closed bool
}

var _ VectorIndex = (*HNSWIndex)(nil)

// hnswMetadata stores ID mappings and payloads for persistence.
type hnswMetadata struct {
	IDMap   map[string]uint64
	PathMap map[string]string
	NextKey uint64
	Config  VectorConfig
}

// NewHNSWIndex creates an HNSW vector index. If a persisted index exists at
// cfg.Path it is loaded; otherwise a fresh graph is created.
func NewHNSWIndex(cfg VectorConfig) (*HNSWIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vector dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.M == 0 {
		cfg.M = 32
	}
	if cfg.EfConstruction == 0 {
		cfg.EfConstruction = 256
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	s := &HNSWIndex{
		graph:   graph,
		config:  cfg,
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		pathMap: make(map[string]string),
		nextKey: 0,
	}

	if cfg.Path != "" {
		if _, err := os.Stat(cfg.Path); err == nil {
			if err := s.load(cfg.Path); err != nil {
				// A corrupt vector index is rebuildable by reindexing.
				slog.Warn("vector_index_corrupted",
					slog.String("path", cfg.Path),
					slog.String("error", err.Error()))
				_ = os.Remove(cfg.Path)
				_ = os.Remove(cfg.Path + ".meta")
				s.resetGraph()
			}
		}
	}

	return s, nil
}

func (s *HNSWIndex) resetGraph() {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = s.config.M
	graph.EfSearch = s.config.EfSearch
	graph.Ml = 0.25
	s.graph = graph
	s.idMap = make(map[string]uint64)
	s.keyMap = make(map[uint64]string)
	s.pathMap = make(map[string]string)
	s.nextKey = 0
}

// Add inserts vectors keyed by chunk ID with their file path payloads.
// Existing chunk IDs are updated via lazy deletion of the old node.
func (s *HNSWIndex) Add(ctx context.Context, chunkIDs []string, paths []string, vectors [][]float32) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	if len(chunkIDs) != len(vectors) || len(chunkIDs) != len(paths) {
		return fmt.Errorf("chunkIDs, paths, and vectors length mismatch: %d, %d, %d",
			len(chunkIDs), len(paths), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector index is closed")
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return &ErrDimensionMismatch{
				Expected: s.config.Dimensions,
				Got:      len(v),
			}
		}
	}

	for i, id := range chunkIDs {
		// Lazy deletion on update: deleting graph nodes can break
		// coder/hnsw when the last node is removed, so orphan the old key.
		if existingKey, exists := s.idMap[id]; exists {
			delete(s.keyMap, existingKey)
			delete(s.idMap, id)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeVectorInPlace(vec)

		node := hnsw.MakeNode(key, vec)
		s.graph.Add(node)

		s.idMap[id] = key
		s.keyMap[key] = id
		s.pathMap[id] = paths[i]
	}

	return nil
}

// Search finds the nearest neighbors by cosine similarity, highest first.
func (s *HNSWIndex) Search(ctx context.Context, query []float32, limit int) ([]VectorHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("vector index is closed")
	}

	if len(query) != s.config.Dimensions {
		return nil, &ErrDimensionMismatch{
			Expected: s.config.Dimensions,
			Got:      len(query),
		}
	}

	if s.graph.Len() == 0 {
		return []VectorHit{}, nil
	}

	normalizedQuery := make([]float32, len(query))
	copy(normalizedQuery, query)
	normalizeVectorInPlace(normalizedQuery)

	// Over-fetch to compensate for lazy-deleted nodes filtered below.
	orphans := s.graph.Len() - len(s.idMap)
	nodes := s.graph.Search(normalizedQuery, limit+orphans)

	hits := make([]VectorHit, 0, limit)
	for _, node := range nodes {
		id, exists := s.keyMap[node.Key]
		if !exists {
			continue // lazy-deleted node
		}

		distance := s.graph.Distance(normalizedQuery, node.Value)
		hits = append(hits, VectorHit{
			ChunkID: id,
			Path:    s.pathMap[id],
			Score:   float64(distanceToScore(distance)),
		})
		if len(hits) >= limit {
			break
		}
	}

	return hits, nil
}

// Delete removes vectors by chunk ID using lazy deletion.
func (s *HNSWIndex) Delete(ctx context.Context, chunkIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector index is closed")
	}

	for _, id := range chunkIDs {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
			delete(s.pathMap, id)
		}
	}

	return nil
}

// UpdatePath rewrites the payload path for the given chunk IDs.
func (s *HNSWIndex) UpdatePath(ctx context.Context, chunkIDs []string, newPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector index is closed")
	}

	for _, id := range chunkIDs {
		if _, exists := s.idMap[id]; exists {
			s.pathMap[id] = newPath
		}
	}

	return nil
}

// Contains checks if a chunk ID exists.
func (s *HNSWIndex) Contains(chunkID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}

	_, exists := s.idMap[chunkID]
	return exists
}

// Count returns the number of live vectors.
func (s *HNSWIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}

	return len(s.idMap)
}

// Dimensions returns the configured vector dimensionality.
func (s *HNSWIndex) Dimensions() int {
	return s.config.Dimensions
}

// Save persists the index to disk atomically (temp file + rename).
func (s *HNSWIndex) Save(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("vector index is closed")
	}
	if s.config.Path == "" {
		return nil // in-memory index
	}

	path := s.config.Path
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpIndexPath := path + ".tmp"
	file, err := os.Create(tmpIndexPath)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}

	if err := s.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpIndexPath)
		return fmt.Errorf("failed to export graph: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tmpIndexPath)
		return fmt.Errorf("failed to close index file: %w", err)
	}

	if err := os.Rename(tmpIndexPath, path); err != nil {
		os.Remove(tmpIndexPath)
		return fmt.Errorf("failed to rename index file: %w", err)
	}

	if err := s.saveMetadata(path + ".meta"); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}

	return nil
}

// saveMetadata saves ID mappings and payloads to a gob file.
func (s *HNSWIndex) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}

	meta := hnswMetadata{
		IDMap:   s.idMap,
		PathMap: s.pathMap,
		NextKey: s.nextKey,
		Config:  s.config,
	}

	encoder := gob.NewEncoder(file)
	if err := encoder.Encode(meta); err != nil {
		if closeErr := file.Close(); closeErr != nil {
			slog.Warn("failed to close temp file during cleanup", slog.String("error", closeErr.Error()))
		}
		os.Remove(tmpPath)
		return fmt.Errorf("encode metadata: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// load restores the graph and mappings from disk.
func (s *HNSWIndex) load(path string) error {
	if err := s.loadMetadata(path + ".meta"); err != nil {
		return fmt.Errorf("failed to load metadata: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer file.Close()

	// coder/hnsw Import requires io.ByteReader.
	reader := bufio.NewReader(file)
	if err := s.graph.Import(reader); err != nil {
		return fmt.Errorf("failed to import graph: %w", err)
	}

	return nil
}

// loadMetadata loads ID mappings and payloads from a gob file.
func (s *HNSWIndex) loadMetadata(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("failed to close metadata file", slog.String("error", err.Error()))
		}
	}()

	var meta hnswMetadata
	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(&meta); err != nil {
		return fmt.Errorf("decode hnsw metadata: %w", err)
	}

	if meta.Config.Dimensions != s.config.Dimensions {
		return &ErrDimensionMismatch{
			Expected: s.config.Dimensions,
			Got:      meta.Config.Dimensions,
		}
	}

	s.idMap = meta.IDMap
	s.pathMap = meta.PathMap
	if s.pathMap == nil {
		s.pathMap = make(map[string]string)
	}
	s.nextKey = meta.NextKey
	s.keyMap = make(map[uint64]string, len(meta.IDMap))
	for id, key := range meta.IDMap {
		s.keyMap[key] = id
	}

	return nil
}

// Close persists and releases resources.
func (s *HNSWIndex) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if s.config.Path != "" {
		if err := s.Save(context.Background()); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.graph = nil

	return nil
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}

// distanceToScore converts a cosine distance (0-2) to a similarity in [0,1].
func distanceToScore(distance float32) float32 {
	return 1.0 - distance/2.0
}
