package embed

import (
	"fmt"
	"os"
	"strings"
)

// ProviderType represents an embedding provider.
type ProviderType string

const (
	// ProviderStatic uses hash-based embeddings (default; no network).
	ProviderStatic ProviderType = "static"

	// ProviderOpenAI uses the OpenAI embeddings API.
	ProviderOpenAI ProviderType = "openai"
)

// Options configures embedder construction.
type Options struct {
	// Model is the provider-specific model name.
	Model string

	// Dimensions is the requested embedding dimension.
	Dimensions int

	// BatchConcurrency bounds concurrent API calls (OpenAI only).
	BatchConcurrency int

	// CacheSize is the query embedding LRU size. 0 uses the default;
	// negative disables caching.
	CacheSize int
}

// NewEmbedder creates an embedder for the given provider, wrapped with
// retry and LRU caching. The CTXSEARCH_EMBED_PROVIDER environment
// variable overrides the provider; CTXSEARCH_EMBED_CACHE=false disables
// the cache.
func NewEmbedder(provider ProviderType, opts Options) (Embedder, error) {
	if env := os.Getenv("CTXSEARCH_EMBED_PROVIDER"); env != "" {
		provider = ParseProvider(env)
	}

	var embedder Embedder
	switch provider {
	case ProviderOpenAI:
		cfg := DefaultOpenAIConfig()
		if opts.Model != "" {
			cfg.Model = opts.Model
		}
		if opts.Dimensions > 0 {
			cfg.Dimensions = opts.Dimensions
		}
		if opts.BatchConcurrency > 0 {
			cfg.BatchConcurrency = opts.BatchConcurrency
		}
		inner, err := NewOpenAIEmbedder(cfg)
		if err != nil {
			return nil, err
		}
		embedder = NewRetryingEmbedder(inner, DefaultRetryConfig())

	case ProviderStatic:
		embedder = NewStaticEmbedder()

	default:
		return nil, fmt.Errorf("unknown embedding provider %q (valid: %s)",
			provider, strings.Join(ValidProviders(), ", "))
	}

	if opts.CacheSize >= 0 && !isCacheDisabled() {
		embedder = NewCachedEmbedder(embedder, opts.CacheSize)
	}

	return embedder, nil
}

// isCacheDisabled checks if embedding cache is disabled via environment.
func isCacheDisabled() bool {
	v := strings.ToLower(os.Getenv("CTXSEARCH_EMBED_CACHE"))
	return v == "false" || v == "0" || v == "off" || v == "disabled"
}

// ParseProvider converts a string to ProviderType.
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(s) {
	case "openai":
		return ProviderOpenAI
	case "static", "":
		return ProviderStatic
	default:
		return ProviderType(strings.ToLower(s))
	}
}

// ValidProviders returns all valid provider names.
func ValidProviders() []string {
	return []string{
		string(ProviderStatic),
		string(ProviderOpenAI),
	}
}

// IsValidProvider checks if a provider name is valid.
func IsValidProvider(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range ValidProviders() {
		if lower == p {
			return true
		}
	}
	return false
}

// String returns the string representation of ProviderType.
func (p ProviderType) String() string {
	return string(p)
}
