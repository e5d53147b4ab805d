package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedLexical(t *testing.T, c *Catalog) {
	t.Helper()
	ctx := context.Background()

	docs := map[string]string{
		"/docs/ml.txt":     "machine learning is a subset of artificial intelligence",
		"/docs/cook.txt":   "slow cooking brings out flavor in tough cuts",
		"/docs/forest.txt": "random forest is a machine learning ensemble method",
	}
	for path, text := range docs {
		rec := sampleFile(path)
		require.NoError(t, c.UpsertFile(ctx, rec))
		chunk := Chunk{
			ChunkID:  ChunkID(rec.FileID, 0),
			FileID:   rec.FileID,
			Idx:      0,
			TokenEnd: 10,
			Text:     text,
		}
		require.NoError(t, c.UpsertChunks(ctx, []Chunk{chunk}, path))
	}
}

func TestFTS5_SearchRanksMatches(t *testing.T) {
	c := newTestCatalog(t)
	seedLexical(t, c)
	lex := NewFTS5Index(c)

	hits, err := lex.Search(context.Background(), "machine learning", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	paths := []string{hits[0].Path, hits[1].Path}
	assert.Contains(t, paths, "/docs/ml.txt")
	assert.Contains(t, paths, "/docs/forest.txt")
	for _, h := range hits {
		assert.Positive(t, h.Score)
	}
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
}

func TestFTS5_PorterStemming(t *testing.T) {
	c := newTestCatalog(t)
	seedLexical(t, c)
	lex := NewFTS5Index(c)

	// "cooked" should stem to the same root as "cooking".
	hits, err := lex.Search(context.Background(), "cooked", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "/docs/cook.txt", hits[0].Path)
}

func TestFTS5_PunctuationQueryDoesNotError(t *testing.T) {
	c := newTestCatalog(t)
	seedLexical(t, c)
	lex := NewFTS5Index(c)

	for _, q := range []string{`"unbalanced`, `foo AND (`, `a:b*`, `machine)`} {
		hits, err := lex.Search(context.Background(), q, 10)
		require.NoError(t, err, "query %q", q)
		_ = hits
	}
}

func TestFTS5_NoMatchesReturnsEmpty(t *testing.T) {
	c := newTestCatalog(t)
	seedLexical(t, c)
	lex := NewFTS5Index(c)

	hits, err := lex.Search(context.Background(), "zebra quantum", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestFTS5_DeleteIsIdempotent(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	rec := sampleFile("/docs/a.txt")
	require.NoError(t, c.UpsertFile(ctx, rec))
	chunks := sampleChunks(rec.FileID, "hello world")
	require.NoError(t, c.UpsertChunks(ctx, chunks, rec.Path))

	lex := NewFTS5Index(c)
	ids := []string{chunks[0].ChunkID}
	require.NoError(t, lex.Delete(ctx, ids))
	require.NoError(t, lex.Delete(ctx, ids))

	n, err := lex.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
