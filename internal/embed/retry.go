package embed

import (
	"context"
	"fmt"
	"time"

	cerrors "github.com/Warlord437/Context-Based-File-Search/internal/errors"
)

// RetryConfig configures retry behavior for embedding requests.
type RetryConfig struct {
	MaxRetries   int           // retry attempts, not including the initial attempt
	InitialDelay time.Duration // delay before first retry
	MaxDelay     time.Duration // cap on delay between retries
	Multiplier   float64       // exponential backoff multiplier
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   DefaultMaxRetries,
		InitialDelay: 1 * time.Second,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
	}
}

// RetryingEmbedder wraps an Embedder with exponential backoff retries
// for transient failures. Non-retryable errors fail immediately.
type RetryingEmbedder struct {
	inner Embedder
	cfg   RetryConfig
}

var _ Embedder = (*RetryingEmbedder)(nil)

// NewRetryingEmbedder wraps inner with retry behavior.
func NewRetryingEmbedder(inner Embedder, cfg RetryConfig) *RetryingEmbedder {
	if cfg.MaxRetries <= 0 {
		cfg = DefaultRetryConfig()
	}
	return &RetryingEmbedder{inner: inner, cfg: cfg}
}

// withRetry executes fn with exponential backoff. The delay between
// retries grows by Multiplier, capped at MaxDelay. Context cancellation
// aborts immediately.
func (r *RetryingEmbedder) withRetry(ctx context.Context, fn func() error) error {
	delay := r.cfg.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !cerrors.IsRetryable(err) && cerrors.GetCode(err) != "" {
			return err
		}
		if attempt >= r.cfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * r.cfg.Multiplier)
		if delay > r.cfg.MaxDelay {
			delay = r.cfg.MaxDelay
		}
	}

	return fmt.Errorf("failed after %d retries: %w", r.cfg.MaxRetries, lastErr)
}

func (r *RetryingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := r.withRetry(ctx, func() error {
		var err error
		vec, err = r.inner.Embed(ctx, text)
		return err
	})
	return vec, err
}

func (r *RetryingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	err := r.withRetry(ctx, func() error {
		var err error
		vecs, err = r.inner.EmbedBatch(ctx, texts)
		return err
	})
	return vecs, err
}

func (r *RetryingEmbedder) Dimensions() int                    { return r.inner.Dimensions() }
func (r *RetryingEmbedder) ModelName() string                  { return r.inner.ModelName() }
func (r *RetryingEmbedder) Available(ctx context.Context) bool { return r.inner.Available(ctx) }
func (r *RetryingEmbedder) Close() error                       { return r.inner.Close() }
