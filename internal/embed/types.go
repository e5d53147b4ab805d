// Package embed generates vector embeddings for chunk text and queries.
//
// Two providers are supported: a deterministic hash-based static
// embedder that needs no network, and an OpenAI API embedder. Both are
// usually wrapped in a CachedEmbedder and a RetryingEmbedder by the
// factory.
package embed

import (
	"context"
	"math"
)

const (
	// StaticDimensions is the embedding dimension for the static embedder.
	StaticDimensions = 384

	// DefaultBatchConcurrency bounds concurrent embedding API calls.
	DefaultBatchConcurrency = 10

	// DefaultMaxRetries is the default number of retry attempts.
	DefaultMaxRetries = 3
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks if the embedder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v // zero vector stays as-is
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
