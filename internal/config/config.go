// Package config loads and validates ctxsearch configuration.
//
// Configuration is applied in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/ctxsearch/config.yaml)
//  3. Project config (ctxsearch.yaml in the working directory, or --config)
//  4. Environment variables (CTXSEARCH_*), with .env files honored
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete ctxsearch configuration.
type Config struct {
	Version int          `yaml:"version" json:"version"`
	Index   IndexConfig  `yaml:"index" json:"index"`
	Search  SearchConfig `yaml:"search" json:"search"`
	Store   StoreConfig  `yaml:"store" json:"store"`
	Embed   EmbedConfig  `yaml:"embed" json:"embed"`
	Log     LogConfig    `yaml:"log" json:"log"`
}

// IndexConfig configures the indexing pipeline.
type IndexConfig struct {
	// MaxTokens is the chunk window size in tokens.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`

	// Overlap is the token overlap between consecutive chunks.
	Overlap int `yaml:"overlap" json:"overlap"`

	// EmbedBatch is how many chunks accumulate before an embedding flush.
	EmbedBatch int `yaml:"embed_batch" json:"embed_batch"`

	// UpsertBatch is the maximum chunks per store write.
	UpsertBatch int `yaml:"upsert_batch" json:"upsert_batch"`

	// AllowExts lists file extensions eligible for indexing.
	AllowExts []string `yaml:"allow_exts" json:"allow_exts"`

	// OCREnabled enables OCR extraction for image-based documents.
	OCREnabled bool `yaml:"ocr_enabled" json:"ocr_enabled"`

	// MaxPDFPages caps how many pages of a PDF are extracted.
	MaxPDFPages int `yaml:"max_pdf_pages" json:"max_pdf_pages"`

	// FileExtractTimeoutSec is the per-file extraction timeout in seconds.
	FileExtractTimeoutSec float64 `yaml:"file_extract_timeout_sec" json:"file_extract_timeout_sec"`

	// ExcludePatterns are glob patterns never traversed or indexed.
	ExcludePatterns []string `yaml:"exclude_patterns" json:"exclude_patterns"`

	// Workers is the in-level extraction/chunking pool size.
	Workers int `yaml:"workers" json:"workers"`
}

// SearchConfig configures hybrid retrieval and fusion scoring.
//
// Weights are configurable via:
//  1. User config (~/.config/ctxsearch/config.yaml) - personal defaults
//  2. Project config (ctxsearch.yaml) - per-corpus tuning
//  3. Env vars (CTXSEARCH_BM25_WEIGHT, CTXSEARCH_COSINE_WEIGHT, ...) - highest priority
type SearchConfig struct {
	// TopK is the default number of fused results retained per query.
	TopK int `yaml:"top_k" json:"top_k"`

	// LexK is the lexical candidate cap per query.
	LexK int `yaml:"lex_k" json:"lex_k"`

	// VecK is the vector candidate cap per query.
	VecK int `yaml:"vec_k" json:"vec_k"`

	// MergeK caps the merged candidate map before scoring.
	MergeK int `yaml:"merge_k" json:"merge_k"`

	// TimeoutSec is the shared timeout across both candidate retrievals.
	TimeoutSec float64 `yaml:"timeout_sec" json:"timeout_sec"`

	// BM25Weight is the weight for the normalized lexical score.
	BM25Weight float64 `yaml:"bm25_weight" json:"bm25_weight"`

	// CosineWeight is the weight for the normalized vector score.
	CosineWeight float64 `yaml:"cosine_weight" json:"cosine_weight"`

	// ExactBoost is added when the literal query occurs in the chunk text.
	ExactBoost float64 `yaml:"exact_boost" json:"exact_boost"`

	// EarlyPosBoost scales the position factor for early matches.
	EarlyPosBoost float64 `yaml:"early_pos_boost" json:"early_pos_boost"`

	// CacheSize is the result cache capacity (entries).
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	// CacheTTLSec is how long a cached result page stays valid.
	CacheTTLSec int `yaml:"cache_ttl_sec" json:"cache_ttl_sec"`

	// SnippetRadius is the character radius around a match in snippets.
	SnippetRadius int `yaml:"snippet_radius" json:"snippet_radius"`

	// MaxResultsPerFile bounds hits per file after dedupe (1 = best chunk only).
	MaxResultsPerFile int `yaml:"max_results_per_file" json:"max_results_per_file"`
}

// StoreConfig configures the persistent stores.
type StoreConfig struct {
	// Root is the directory holding all persisted state.
	Root string `yaml:"root" json:"root"`

	// Catalog is the SQLite catalog path.
	Catalog string `yaml:"catalog" json:"catalog"`

	// Frontier is the BFS checkpoint path.
	Frontier string `yaml:"frontier" json:"frontier"`

	// Vectors is the vector store path prefix.
	Vectors string `yaml:"vectors" json:"vectors"`

	// Lexical is the bleve index path (used when LexicalBackend is "bleve").
	Lexical string `yaml:"lexical" json:"lexical"`

	// LexicalBackend selects the lexical index backend.
	// Options: "fts5" (default, shares the catalog DB) or "bleve".
	LexicalBackend string `yaml:"lexical_backend" json:"lexical_backend"`

	// Dim is the embedding vector dimension.
	Dim int `yaml:"dim" json:"dim"`

	// HNSW tunes the vector index graph.
	HNSW HNSWConfig `yaml:"hnsw" json:"hnsw"`
}

// HNSWConfig tunes the HNSW vector index.
type HNSWConfig struct {
	M              int `yaml:"m" json:"m"`
	EfConstruction int `yaml:"ef_construction" json:"ef_construction"`
	EfSearch       int `yaml:"ef_search" json:"ef_search"`
}

// EmbedConfig configures the embedding provider.
type EmbedConfig struct {
	// Provider selects the embedder: "static" (offline) or "openai".
	Provider string `yaml:"provider" json:"provider"`

	// Model is the provider model name (OpenAI only).
	Model string `yaml:"model" json:"model"`

	// BatchConcurrency bounds concurrent provider calls in a batch.
	BatchConcurrency int `yaml:"batch_concurrency" json:"batch_concurrency"`

	// CacheSize is the embedding cache capacity (entries, 0 disables).
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// defaultExcludePatterns are always excluded from traversal.
var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/__pycache__/**",
	"**/.venv/**",
	"**/venv/**",
	"**/Library/**",
	"**/System/**",
	"**/Applications/**",
	"**/usr/**",
	"**/var/**",
	"**/tmp/**",
	"**/.cache/**",
	"**/.Trash/**",
	"**/.*/**",
}

// defaultAllowExts are the file extensions indexed by default.
var defaultAllowExts = []string{".txt", ".md", ".pdf", ".docx", ".html", ".htm", ".rtf"}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Index: IndexConfig{
			MaxTokens:             1200,
			Overlap:               80,
			EmbedBatch:            1024,
			UpsertBatch:           4000,
			AllowExts:             append([]string(nil), defaultAllowExts...),
			OCREnabled:            false,
			MaxPDFPages:           50,
			FileExtractTimeoutSec: 10,
			ExcludePatterns:       append([]string(nil), defaultExcludePatterns...),
			Workers:               4,
		},
		Search: SearchConfig{
			TopK:              50,
			LexK:              200,
			VecK:              300,
			MergeK:            400,
			TimeoutSec:        2.5,
			BM25Weight:        0.55,
			CosineWeight:      0.45,
			ExactBoost:        0.20,
			EarlyPosBoost:     0.10,
			CacheSize:         128,
			CacheTTLSec:       3600,
			SnippetRadius:     50,
			MaxResultsPerFile: 1,
		},
		Store: StoreConfig{
			Root:           "store",
			Catalog:        filepath.Join("store", "catalog.db"),
			Frontier:       filepath.Join("store", "frontier.json"),
			Vectors:        filepath.Join("store", "vectors"),
			Lexical:        filepath.Join("store", "lexical"),
			LexicalBackend: "fts5",
			Dim:            384,
			HNSW: HNSWConfig{
				M:              32,
				EfConstruction: 256,
				EfSearch:       64,
			},
		},
		Embed: EmbedConfig{
			Provider:         "static",
			Model:            "text-embedding-3-small",
			BatchConcurrency: 10,
			CacheSize:        4096,
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join("store", "logs", "ctxsearch.log"),
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory conventions:
//   - $XDG_CONFIG_HOME/ctxsearch/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/ctxsearch/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ctxsearch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "ctxsearch", "config.yaml")
	}
	return filepath.Join(home, ".config", "ctxsearch", "config.yaml")
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// Load loads configuration starting from the given directory.
// explicitPath, when non-empty, names a config file that must exist.
func Load(dir, explicitPath string) (*Config, error) {
	// .env files supply CTXSEARCH_* and OPENAI_API_KEY without exporting.
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, err
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if explicitPath != "" {
		if !fileExists(explicitPath) {
			return nil, fmt.Errorf("config file %s: %w", explicitPath, os.ErrNotExist)
		}
		if err := cfg.loadYAML(explicitPath); err != nil {
			return nil, err
		}
	} else if err := cfg.loadFromDir(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromDir attempts to load ctxsearch.yaml or ctxsearch.yml from dir.
func (c *Config) loadFromDir(dir string) error {
	yamlPath := filepath.Join(dir, "ctxsearch.yaml")
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, "ctxsearch.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}

	// No config file is fine - use defaults.
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Index
	if other.Index.MaxTokens != 0 {
		c.Index.MaxTokens = other.Index.MaxTokens
	}
	if other.Index.Overlap != 0 {
		c.Index.Overlap = other.Index.Overlap
	}
	if other.Index.EmbedBatch != 0 {
		c.Index.EmbedBatch = other.Index.EmbedBatch
	}
	if other.Index.UpsertBatch != 0 {
		c.Index.UpsertBatch = other.Index.UpsertBatch
	}
	if len(other.Index.AllowExts) > 0 {
		c.Index.AllowExts = other.Index.AllowExts
	}
	if other.Index.OCREnabled {
		c.Index.OCREnabled = true
	}
	if other.Index.MaxPDFPages != 0 {
		c.Index.MaxPDFPages = other.Index.MaxPDFPages
	}
	if other.Index.FileExtractTimeoutSec != 0 {
		c.Index.FileExtractTimeoutSec = other.Index.FileExtractTimeoutSec
	}
	if len(other.Index.ExcludePatterns) > 0 {
		// Merge with defaults rather than replace.
		c.Index.ExcludePatterns = append(c.Index.ExcludePatterns, other.Index.ExcludePatterns...)
	}
	if other.Index.Workers != 0 {
		c.Index.Workers = other.Index.Workers
	}

	// Search
	if other.Search.TopK != 0 {
		c.Search.TopK = other.Search.TopK
	}
	if other.Search.LexK != 0 {
		c.Search.LexK = other.Search.LexK
	}
	if other.Search.VecK != 0 {
		c.Search.VecK = other.Search.VecK
	}
	if other.Search.MergeK != 0 {
		c.Search.MergeK = other.Search.MergeK
	}
	if other.Search.TimeoutSec != 0 {
		c.Search.TimeoutSec = other.Search.TimeoutSec
	}
	if other.Search.BM25Weight != 0 {
		c.Search.BM25Weight = other.Search.BM25Weight
	}
	if other.Search.CosineWeight != 0 {
		c.Search.CosineWeight = other.Search.CosineWeight
	}
	if other.Search.ExactBoost != 0 {
		c.Search.ExactBoost = other.Search.ExactBoost
	}
	if other.Search.EarlyPosBoost != 0 {
		c.Search.EarlyPosBoost = other.Search.EarlyPosBoost
	}
	if other.Search.CacheSize != 0 {
		c.Search.CacheSize = other.Search.CacheSize
	}
	if other.Search.CacheTTLSec != 0 {
		c.Search.CacheTTLSec = other.Search.CacheTTLSec
	}
	if other.Search.SnippetRadius != 0 {
		c.Search.SnippetRadius = other.Search.SnippetRadius
	}
	if other.Search.MaxResultsPerFile != 0 {
		c.Search.MaxResultsPerFile = other.Search.MaxResultsPerFile
	}

	// Store
	if other.Store.Root != "" {
		c.Store.Root = other.Store.Root
		// Derived paths follow the root unless set explicitly below.
		c.Store.Catalog = filepath.Join(other.Store.Root, "catalog.db")
		c.Store.Frontier = filepath.Join(other.Store.Root, "frontier.json")
		c.Store.Vectors = filepath.Join(other.Store.Root, "vectors")
		c.Store.Lexical = filepath.Join(other.Store.Root, "lexical")
	}
	if other.Store.Catalog != "" {
		c.Store.Catalog = other.Store.Catalog
	}
	if other.Store.Frontier != "" {
		c.Store.Frontier = other.Store.Frontier
	}
	if other.Store.Vectors != "" {
		c.Store.Vectors = other.Store.Vectors
	}
	if other.Store.Lexical != "" {
		c.Store.Lexical = other.Store.Lexical
	}
	if other.Store.LexicalBackend != "" {
		c.Store.LexicalBackend = other.Store.LexicalBackend
	}
	if other.Store.Dim != 0 {
		c.Store.Dim = other.Store.Dim
	}
	if other.Store.HNSW.M != 0 {
		c.Store.HNSW.M = other.Store.HNSW.M
	}
	if other.Store.HNSW.EfConstruction != 0 {
		c.Store.HNSW.EfConstruction = other.Store.HNSW.EfConstruction
	}
	if other.Store.HNSW.EfSearch != 0 {
		c.Store.HNSW.EfSearch = other.Store.HNSW.EfSearch
	}

	// Embed
	if other.Embed.Provider != "" {
		c.Embed.Provider = other.Embed.Provider
	}
	if other.Embed.Model != "" {
		c.Embed.Model = other.Embed.Model
	}
	if other.Embed.BatchConcurrency != 0 {
		c.Embed.BatchConcurrency = other.Embed.BatchConcurrency
	}
	if other.Embed.CacheSize != 0 {
		c.Embed.CacheSize = other.Embed.CacheSize
	}

	// Log
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.File != "" {
		c.Log.File = other.Log.File
	}
}

// applyEnvOverrides applies CTXSEARCH_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CTXSEARCH_BM25_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.BM25Weight = w
		}
	}
	if v := os.Getenv("CTXSEARCH_COSINE_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.CosineWeight = w
		}
	}
	if v := os.Getenv("CTXSEARCH_EXACT_BOOST"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 {
			c.Search.ExactBoost = w
		}
	}
	if v := os.Getenv("CTXSEARCH_EARLY_POS_BOOST"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 {
			c.Search.EarlyPosBoost = w
		}
	}
	if v := os.Getenv("CTXSEARCH_TOP_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.TopK = k
		}
	}
	if v := os.Getenv("CTXSEARCH_STORE_ROOT"); v != "" {
		c.Store.Root = v
		c.Store.Catalog = filepath.Join(v, "catalog.db")
		c.Store.Frontier = filepath.Join(v, "frontier.json")
		c.Store.Vectors = filepath.Join(v, "vectors")
		c.Store.Lexical = filepath.Join(v, "lexical")
	}
	if v := os.Getenv("CTXSEARCH_LEXICAL_BACKEND"); v != "" {
		c.Store.LexicalBackend = v
	}
	if v := os.Getenv("CTXSEARCH_EMBED_PROVIDER"); v != "" {
		c.Embed.Provider = v
	}
	if v := os.Getenv("CTXSEARCH_EMBED_MODEL"); v != "" {
		c.Embed.Model = v
	}
	if v := os.Getenv("CTXSEARCH_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("CTXSEARCH_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Index.MaxTokens = n
		}
	}
	if v := os.Getenv("CTXSEARCH_OVERLAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Index.Overlap = n
		}
	}
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Search.BM25Weight < 0 || c.Search.BM25Weight > 1 {
		return fmt.Errorf("bm25_weight must be between 0 and 1, got %f", c.Search.BM25Weight)
	}
	if c.Search.CosineWeight < 0 || c.Search.CosineWeight > 1 {
		return fmt.Errorf("cosine_weight must be between 0 and 1, got %f", c.Search.CosineWeight)
	}

	sum := c.Search.BM25Weight + c.Search.CosineWeight
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("bm25_weight + cosine_weight must equal 1.0, got %.2f", sum)
	}

	if c.Index.Overlap >= c.Index.MaxTokens {
		return fmt.Errorf("overlap must be smaller than max_tokens, got %d >= %d",
			c.Index.Overlap, c.Index.MaxTokens)
	}
	if c.Search.TopK < 0 {
		return fmt.Errorf("top_k must be non-negative, got %d", c.Search.TopK)
	}
	if c.Search.MergeK < c.Search.TopK {
		return fmt.Errorf("merge_k must be at least top_k, got %d < %d",
			c.Search.MergeK, c.Search.TopK)
	}
	if c.Store.Dim <= 0 {
		return fmt.Errorf("store.dim must be positive, got %d", c.Store.Dim)
	}

	validBackends := map[string]bool{"fts5": true, "bleve": true}
	if !validBackends[strings.ToLower(c.Store.LexicalBackend)] {
		return fmt.Errorf("store.lexical_backend must be 'fts5' or 'bleve', got %s", c.Store.LexicalBackend)
	}

	validProviders := map[string]bool{"static": true, "openai": true}
	if !validProviders[strings.ToLower(c.Embed.Provider)] {
		return fmt.Errorf("embed.provider must be 'static' or 'openai', got %s", c.Embed.Provider)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("log.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Log.Level)
	}

	return nil
}

// ExtensionAllowed reports whether a file extension is eligible for indexing.
func (c *Config) ExtensionAllowed(ext string) bool {
	ext = strings.ToLower(ext)
	for _, allowed := range c.Index.AllowExts {
		if ext == allowed {
			return true
		}
	}
	return false
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
