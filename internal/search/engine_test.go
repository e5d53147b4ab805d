package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Warlord437/Context-Based-File-Search/internal/config"
	"github.com/Warlord437/Context-Based-File-Search/internal/embed"
	cerrors "github.com/Warlord437/Context-Based-File-Search/internal/errors"
	"github.com/Warlord437/Context-Based-File-Search/internal/store"
)

// engineEnv bundles an engine over in-memory stores seeded per test.
type engineEnv struct {
	engine   *Engine
	catalog  *store.Catalog
	lexical  *store.FTS5Index
	vector   *store.HNSWIndex
	embedder embed.Embedder
	writer   *store.DualWriter
}

func newEngineEnv(t *testing.T, opts ...EngineOption) *engineEnv {
	t.Helper()

	catalog, err := store.OpenCatalog("")
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })

	lexical := store.NewFTS5Index(catalog)
	vector, err := store.NewHNSWIndex(store.VectorConfig{Dimensions: embed.StaticDimensions})
	require.NoError(t, err)
	t.Cleanup(func() { vector.Close() })

	writer, err := store.NewDualWriter(catalog, lexical, vector)
	require.NoError(t, err)

	embedder := embed.NewStaticEmbedder()
	engine, err := NewEngine(catalog, lexical, vector, embedder, config.NewConfig().Search, opts...)
	require.NoError(t, err)

	return &engineEnv{
		engine:   engine,
		catalog:  catalog,
		lexical:  lexical,
		vector:   vector,
		embedder: embedder,
		writer:   writer,
	}
}

// seed indexes one single-chunk file per path.
func (env *engineEnv) seed(t *testing.T, docs map[string]string) {
	t.Helper()
	ctx := context.Background()

	for path, text := range docs {
		rec := store.FileRecord{
			FileID:    store.FileID(path, 1700000000, int64(len(text))),
			Path:      path,
			Size:      int64(len(text)),
			MTime:     1700000000,
			IndexedAt: time.Now(),
		}
		chunk := store.Chunk{
			ChunkID:  store.ChunkID(rec.FileID, 0),
			FileID:   rec.FileID,
			Idx:      0,
			TokenEnd: len(text),
			Text:     text,
		}
		vec, err := env.embedder.Embed(ctx, text)
		require.NoError(t, err)

		require.NoError(t, env.writer.UpsertFile(ctx, rec))
		require.NoError(t, env.writer.UpsertChunks(ctx, rec, []store.Chunk{chunk}, [][]float32{vec}))
	}
}

func TestEngine_EmptyQueryRejected(t *testing.T) {
	env := newEngineEnv(t)

	_, err := env.engine.Search(context.Background(), "   ", Options{})
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrCodeQueryEmpty, cerrors.GetCode(err))
}

func TestEngine_InvalidPageRejected(t *testing.T) {
	env := newEngineEnv(t)

	_, err := env.engine.Search(context.Background(), "query", Options{Page: -1})
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrCodeInvalidPage, cerrors.GetCode(err))
}

func TestEngine_HybridRanking(t *testing.T) {
	env := newEngineEnv(t)
	env.seed(t, map[string]string{
		"/docs/a.txt": "machine learning basics for beginners",
		"/docs/b.txt": "deep learning basics and advanced topics",
	})

	res, err := env.engine.Search(context.Background(), "learning basics", Options{})
	require.NoError(t, err)

	require.Equal(t, 2, res.TotalHits)
	require.Len(t, res.Hits, 2)
	assert.NotEqual(t, res.Hits[0].Path, res.Hits[1].Path)
	for _, h := range res.Hits {
		assert.Positive(t, h.Score.Final)
		assert.NotEmpty(t, h.Snippet)
	}
	// Both chunks contain the literal phrase, so both earn the boost.
	assert.InDelta(t, 1.0, res.Hits[0].Score.Exact, 1e-9)
}

func TestEngine_DeterministicOrdering(t *testing.T) {
	env := newEngineEnv(t)
	env.seed(t, map[string]string{
		"/docs/a.txt": "shared topic one",
		"/docs/b.txt": "shared topic two",
		"/docs/c.txt": "shared topic three",
	})

	first, err := env.engine.Search(context.Background(), "shared topic", Options{})
	require.NoError(t, err)
	second, err := env.engine.Search(context.Background(), "shared topic", Options{})
	require.NoError(t, err)

	require.Equal(t, len(first.Hits), len(second.Hits))
	for i := range first.Hits {
		assert.Equal(t, first.Hits[i].Path, second.Hits[i].Path)
	}
}

func TestEngine_DedupeKeepsOneHitPerFile(t *testing.T) {
	env := newEngineEnv(t)

	ctx := context.Background()
	path := "/docs/long.txt"
	rec := store.FileRecord{
		FileID:    store.FileID(path, 1700000000, 100),
		Path:      path,
		MTime:     1700000000,
		IndexedAt: time.Now(),
	}
	texts := []string{
		"retrieval systems overview part one",
		"retrieval systems overview part two",
	}
	chunks := make([]store.Chunk, len(texts))
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		chunks[i] = store.Chunk{
			ChunkID: store.ChunkID(rec.FileID, i),
			FileID:  rec.FileID,
			Idx:     i,
			Text:    text,
		}
		vec, err := env.embedder.Embed(ctx, text)
		require.NoError(t, err)
		vectors[i] = vec
	}
	require.NoError(t, env.writer.UpsertFile(ctx, rec))
	require.NoError(t, env.writer.UpsertChunks(ctx, rec, chunks, vectors))

	res, err := env.engine.Search(ctx, "retrieval systems", Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalHits)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, path, res.Hits[0].Path)
}

func TestEngine_PaginationStable(t *testing.T) {
	env := newEngineEnv(t)
	env.seed(t, map[string]string{
		"/p/one.txt":   "common corpus entry alpha",
		"/p/two.txt":   "common corpus entry beta",
		"/p/three.txt": "common corpus entry gamma",
		"/p/four.txt":  "common corpus entry delta",
		"/p/five.txt":  "common corpus entry epsilon",
	})

	wide, err := env.engine.Search(context.Background(), "common corpus", Options{Page: 1, PerPage: 4})
	require.NoError(t, err)
	require.Len(t, wide.Hits, 4)

	page1, err := env.engine.Search(context.Background(), "common corpus", Options{Page: 1, PerPage: 2})
	require.NoError(t, err)
	page2, err := env.engine.Search(context.Background(), "common corpus", Options{Page: 2, PerPage: 2})
	require.NoError(t, err)

	require.Len(t, page1.Hits, 2)
	require.Len(t, page2.Hits, 2)
	assert.Equal(t, wide.Hits[0].Path, page1.Hits[0].Path)
	assert.Equal(t, wide.Hits[1].Path, page1.Hits[1].Path)
	assert.Equal(t, wide.Hits[2].Path, page2.Hits[0].Path)
	assert.Equal(t, wide.Hits[3].Path, page2.Hits[1].Path)

	assert.True(t, page1.HasNext)
	assert.False(t, page1.HasPrev)
	assert.True(t, page2.HasPrev)
}

func TestEngine_PageBeyondEndIsEmpty(t *testing.T) {
	env := newEngineEnv(t)
	env.seed(t, map[string]string{"/a.txt": "single entry"})

	res, err := env.engine.Search(context.Background(), "single entry", Options{Page: 9, PerPage: 10})
	require.NoError(t, err)
	assert.Empty(t, res.Hits)
	assert.Equal(t, 1, res.TotalHits)
	assert.False(t, res.HasNext)
}

func TestEngine_ExactOnlyFiltersSubstringMisses(t *testing.T) {
	env := newEngineEnv(t)
	env.seed(t, map[string]string{
		"/docs/phrase.txt": "the alpha beta protocol described here",
		"/docs/words.txt":  "alpha notes and beta notes separately",
	})

	res, err := env.engine.Search(context.Background(), "alpha beta", Options{
		Flags: Flags{ExactOnly: true},
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.TotalHits)
	assert.Equal(t, "/docs/phrase.txt", res.Hits[0].Path)
}

func TestEngine_ShowContextHighlights(t *testing.T) {
	env := newEngineEnv(t)
	env.seed(t, map[string]string{
		"/docs/a.txt": "notes about retrieval quality and ranking",
	})

	res, err := env.engine.Search(context.Background(), "retrieval", Options{
		Flags: Flags{ShowContext: true},
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Hits)
	assert.Contains(t, res.Hits[0].Snippet, "**retrieval**")
}

func TestEngine_VectorFailureDegradesToLexical(t *testing.T) {
	catalog, err := store.OpenCatalog("")
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })
	lexical := store.NewFTS5Index(catalog)

	// Seed through the catalog only; the vector side will fail anyway.
	env := &engineEnv{catalog: catalog, lexical: lexical, embedder: embed.NewStaticEmbedder()}
	vector, err := store.NewHNSWIndex(store.VectorConfig{Dimensions: embed.StaticDimensions})
	require.NoError(t, err)
	env.vector = vector
	env.writer, err = store.NewDualWriter(catalog, lexical, vector)
	require.NoError(t, err)
	env.seed(t, map[string]string{"/a.txt": "graceful degradation notes"})

	engine, err := NewEngine(catalog, lexical, &failingVector{}, env.embedder, config.NewConfig().Search)
	require.NoError(t, err)

	res, err := engine.Search(context.Background(), "degradation", Options{})
	require.NoError(t, err)
	require.Equal(t, 1, res.TotalHits)
	assert.Zero(t, res.Hits[0].Score.Cosine)
	assert.Positive(t, res.Hits[0].Score.Final)
}

func TestEngine_BothSourcesFailing(t *testing.T) {
	catalog, err := store.OpenCatalog("")
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })

	engine, err := NewEngine(catalog, &failingLexical{}, &failingVector{}, embed.NewStaticEmbedder(), config.NewConfig().Search)
	require.NoError(t, err)

	_, err = engine.Search(context.Background(), "anything", Options{})
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrCodeSearchUnavailable, cerrors.GetCode(err))
}

func TestEngine_CanceledQueryReturnsEmptyPage(t *testing.T) {
	catalog, err := store.OpenCatalog("")
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })

	engine, err := NewEngine(catalog, &failingLexical{}, &failingVector{}, embed.NewStaticEmbedder(), config.NewConfig().Search)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The caller walked away before either candidate source answered.
	// That is not a store outage: the query resolves to an empty page
	// flagged canceled instead of an availability error.
	res, err := engine.Search(ctx, "anything", Options{})
	require.NoError(t, err)
	assert.True(t, res.Canceled)
	assert.Empty(t, res.Hits)
	assert.Zero(t, res.TotalHits)
}

func TestEngine_CacheHitAndVersionInvalidation(t *testing.T) {
	cache, err := NewResultCache(16, time.Minute)
	require.NoError(t, err)

	env := newEngineEnv(t, WithCache(cache))
	env.seed(t, map[string]string{"/a.txt": "cache invalidation scenario"})

	ctx := context.Background()

	first, err := env.engine.Search(ctx, "cache invalidation", Options{})
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := env.engine.Search(ctx, "cache invalidation", Options{})
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.TotalHits, second.TotalHits)

	require.NoError(t, env.catalog.BumpIndexVersion(ctx))

	third, err := env.engine.Search(ctx, "cache invalidation", Options{})
	require.NoError(t, err)
	assert.False(t, third.CacheHit)
}

func TestEngine_RecordsSearchStats(t *testing.T) {
	env := newEngineEnv(t)
	env.seed(t, map[string]string{"/a.txt": "audited query content"})

	ctx := context.Background()
	_, err := env.engine.Search(ctx, "audited query", Options{})
	require.NoError(t, err)

	stats, err := env.catalog.LastSearchStats(ctx)
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, "audited query", stats.Query)
	assert.Equal(t, 1, stats.FinalResults)
	assert.False(t, stats.CacheHit)
}

func TestNewEngine_RequiresDependencies(t *testing.T) {
	catalog, err := store.OpenCatalog("")
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })

	_, err = NewEngine(nil, &failingLexical{}, &failingVector{}, embed.NewStaticEmbedder(), config.SearchConfig{})
	require.ErrorIs(t, err, ErrNilDependency)

	_, err = NewEngine(catalog, nil, &failingVector{}, embed.NewStaticEmbedder(), config.SearchConfig{})
	require.ErrorIs(t, err, ErrNilDependency)
}

func TestCleanLexicalQuery(t *testing.T) {
	assert.Equal(t, "hello world", cleanLexicalQuery(`"Hello, World!"`))
	assert.Equal(t, "a b", cleanLexicalQuery("a:(b*"))
	assert.Equal(t, "snake_case kept", cleanLexicalQuery("snake_case kept"))
}

// failingVector is a VectorIndex whose search path always errors.
type failingVector struct{}

var _ store.VectorIndex = (*failingVector)(nil)

func (f *failingVector) Add(context.Context, []string, []string, [][]float32) error {
	return errors.New("vector store down")
}

func (f *failingVector) Search(context.Context, []float32, int) ([]store.VectorHit, error) {
	return nil, errors.New("vector store down")
}

func (f *failingVector) Delete(context.Context, []string) error { return nil }
func (f *failingVector) UpdatePath(context.Context, []string, string) error { return nil }
func (f *failingVector) Count() int { return 0 }
func (f *failingVector) Dimensions() int { return embed.StaticDimensions }
func (f *failingVector) Save(context.Context) error { return nil }
func (f *failingVector) Close() error { return nil }

// failingLexical is a LexicalIndex whose search path always errors.
type failingLexical struct{}

var _ store.LexicalIndex = (*failingLexical)(nil)

func (f *failingLexical) Index(context.Context, []store.Chunk, map[string]string) error {
	return errors.New("lexical store down")
}

func (f *failingLexical) Search(context.Context, string, int) ([]store.LexicalHit, error) {
	return nil, errors.New("lexical store down")
}

func (f *failingLexical) Delete(context.Context, []string) error { return nil }
func (f *failingLexical) UpdatePath(context.Context, []string, string) error { return nil }
func (f *failingLexical) Count(context.Context) (int, error) { return 0, nil }
func (f *failingLexical) Close() error { return nil }
