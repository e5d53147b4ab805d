package embed

import (
	"context"
	"fmt"
	"os"
	"sync"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	cerrors "github.com/Warlord437/Context-Based-File-Search/internal/errors"
)

// OpenAIConfig configures the OpenAI embedding provider.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Falls back to OPENAI_API_KEY.
	APIKey string

	// BaseURL overrides the API endpoint (for compatible servers).
	BaseURL string

	// Model is the embedding model name.
	Model string

	// Dimensions requests reduced-dimension output where the model
	// supports it. 0 uses the model default.
	Dimensions int

	// BatchConcurrency bounds concurrent API requests during batch
	// embedding.
	BatchConcurrency int
}

// DefaultOpenAIConfig returns the default OpenAI embedder configuration.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		Model:            string(openai.SmallEmbedding3),
		Dimensions:       StaticDimensions,
		BatchConcurrency: DefaultBatchConcurrency,
	}
}

// OpenAIEmbedder generates embeddings via the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	config OpenAIConfig

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an OpenAI embedder.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	key := cfg.APIKey
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key == "" {
		return nil, cerrors.New(cerrors.ErrCodeEmbedUnavailable,
			"OPENAI_API_KEY is not set", nil).
			WithSuggestion("export OPENAI_API_KEY or use the static embedding provider")
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = StaticDimensions
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = DefaultBatchConcurrency
	}

	clientCfg := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientCfg),
		config: cfg,
	}, nil
}

// Embed generates an embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(e.config.Model),
		Input:      []string{text},
		Dimensions: e.config.Dimensions,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, cerrors.New(cerrors.ErrCodeEmbedTimeout, "embedding request timed out", err)
		}
		return nil, cerrors.EmbeddingError("openai embeddings request failed", err)
	}
	if len(resp.Data) == 0 {
		return nil, cerrors.EmbeddingError("openai returned no embedding data", nil)
	}

	// L2 normalize for cosine similarity.
	vec := make([]float32, len(resp.Data[0].Embedding))
	copy(vec, resp.Data[0].Embedding)
	return normalizeVector(vec), nil
}

// EmbedBatch generates embeddings for multiple texts with bounded
// concurrency, preserving input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.BatchConcurrency)

	for i := range texts {
		g.Go(func() error {
			vec, err := e.Embed(gctx, texts[i])
			if err != nil {
				return fmt.Errorf("embed text %d: %w", i, err)
			}
			results[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return "openai/" + e.config.Model
}

// Available reports whether the embedder can serve requests. The API is
// not probed; a constructed embedder with a key is assumed reachable.
func (e *OpenAIEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close releases resources.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
