package chunk

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func longText(words int) string {
	var b strings.Builder
	for i := 0; i < words; i++ {
		fmt.Fprintf(&b, "word%d ", i)
	}
	return b.String()
}

func TestNew_RejectsOverlapGEMaxTokens(t *testing.T) {
	_, err := New(100, 100)
	require.Error(t, err)
	_, err = New(100, 150)
	require.Error(t, err)
}

func TestChunk_EmptyTextReturnsNothing(t *testing.T) {
	c, err := New(100, 10)
	require.NoError(t, err)

	chunks, err := c.Chunk(context.Background(), "file1", "   \n\t  ")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunk_ShortTextIsSingleChunk(t *testing.T) {
	c, err := New(1200, 80)
	require.NoError(t, err)

	chunks, err := c.Chunk(context.Background(), "file1", "just a few words here")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Idx)
	assert.Equal(t, 0, chunks[0].TokenStart)
	assert.Positive(t, chunks[0].TokenEnd)
	assert.Contains(t, chunks[0].Text, "few words")
}

func TestChunk_WindowsOverlapWithoutGaps(t *testing.T) {
	const maxTokens, overlap = 50, 10
	c, err := New(maxTokens, overlap)
	require.NoError(t, err)

	chunks, err := c.Chunk(context.Background(), "file1", longText(400))
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	step := maxTokens - overlap
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Idx)
		assert.Equal(t, i*step, ch.TokenStart)
		assert.LessOrEqual(t, ch.TokenEnd-ch.TokenStart, maxTokens)
		assert.NotEmpty(t, strings.TrimSpace(ch.Text))

		if i > 0 {
			prev := chunks[i-1]
			// Each window starts before the previous one ends.
			assert.Less(t, ch.TokenStart, prev.TokenEnd, "gap between windows %d and %d", i-1, i)
		}
	}

	// All full windows except possibly the last.
	for _, ch := range chunks[:len(chunks)-1] {
		assert.Equal(t, maxTokens, ch.TokenEnd-ch.TokenStart)
	}
}

func TestChunk_LastWindowReachesEndOfText(t *testing.T) {
	c, err := New(50, 10)
	require.NoError(t, err)

	text := longText(300)
	chunks, err := c.Chunk(context.Background(), "file1", text)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	last := chunks[len(chunks)-1]
	assert.Contains(t, last.Text, "word299")
}

func TestChunk_DeterministicIDs(t *testing.T) {
	c, err := New(50, 10)
	require.NoError(t, err)

	text := longText(200)
	first, err := c.Chunk(context.Background(), "file1", text)
	require.NoError(t, err)
	second, err := c.Chunk(context.Background(), "file1", text)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ChunkID, second[i].ChunkID)
	}

	otherFile, err := c.Chunk(context.Background(), "file2", text)
	require.NoError(t, err)
	assert.NotEqual(t, first[0].ChunkID, otherFile[0].ChunkID)
}

func TestChunk_CanceledContext(t *testing.T) {
	c, err := New(50, 10)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.Chunk(ctx, "file1", longText(200))
	require.Error(t, err)
}
