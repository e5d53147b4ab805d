package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Warlord437/Context-Based-File-Search/internal/config"
	"github.com/Warlord437/Context-Based-File-Search/internal/embed"
	cerrors "github.com/Warlord437/Context-Based-File-Search/internal/errors"
	"github.com/Warlord437/Context-Based-File-Search/internal/store"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Engine is the hybrid retriever. It owns no stores; it reads the
// catalog and both candidate indices built by the indexing pipeline.
type Engine struct {
	catalog  *store.Catalog
	lexical  store.LexicalIndex
	vector   store.VectorIndex
	embedder embed.Embedder
	config   config.SearchConfig
	cache    *ResultCache
	logger   *slog.Logger
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithCache attaches a result cache. Without one every query hits the
// stores.
func WithCache(c *ResultCache) EngineOption {
	return func(e *Engine) { e.cache = c }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a hybrid retriever over the given stores.
func NewEngine(
	catalog *store.Catalog,
	lexical store.LexicalIndex,
	vector store.VectorIndex,
	embedder embed.Embedder,
	cfg config.SearchConfig,
	opts ...EngineOption,
) (*Engine, error) {
	if catalog == nil {
		return nil, fmt.Errorf("%w: catalog is required", ErrNilDependency)
	}
	if lexical == nil {
		return nil, fmt.Errorf("%w: lexical index is required", ErrNilDependency)
	}
	if vector == nil {
		return nil, fmt.Errorf("%w: vector index is required", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}

	e := &Engine{
		catalog:  catalog,
		lexical:  lexical,
		vector:   vector,
		embedder: embedder,
		config:   cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Search runs one hybrid query and returns the requested result page.
// A failing candidate source degrades to single-source ranking; only
// when both sources fail does the query return an error.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (*Result, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, cerrors.New(cerrors.ErrCodeQueryEmpty, "query is empty", nil)
	}

	opts = e.applyDefaults(opts)
	if opts.Page < 1 {
		return nil, cerrors.New(cerrors.ErrCodeInvalidPage,
			fmt.Sprintf("page must be >= 1, got %d", opts.Page), nil)
	}

	version, err := e.catalog.IndexVersion(ctx)
	if err != nil {
		e.logger.Warn("index_version_read_failed", slog.String("error", err.Error()))
	}

	if e.cache == nil {
		result, err := e.run(ctx, query, opts)
		if err != nil {
			return nil, err
		}
		result.Duration = time.Since(start)
		e.recordStats(result)
		return result, nil
	}

	key := CacheKey(query, opts, version)
	result, hit, err := e.cache.GetOrFill(key, func() (*Result, error) {
		return e.run(ctx, query, opts)
	})
	if err != nil {
		return nil, err
	}

	if hit {
		// Copy so the cached entry's flag and duration stay pristine.
		served := *result
		served.CacheHit = true
		served.Duration = time.Since(start)
		e.recordStats(&served)
		return &served, nil
	}

	result.Duration = time.Since(start)
	e.recordStats(result)
	return result, nil
}

// run executes the uncached query path.
func (e *Engine) run(ctx context.Context, query string, opts Options) (*Result, error) {
	timeout := time.Duration(e.config.TimeoutSec * float64(time.Second))
	if timeout <= 0 {
		timeout = 2500 * time.Millisecond
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	vecScores, lexScores, paths, err := e.parallelCandidates(fetchCtx, query)
	if err != nil {
		// External cancellation is not a store outage. Hand back an
		// empty page marked canceled; an expired internal deadline
		// leaves the parent context live and still surfaces the error.
		if errors.Is(ctx.Err(), context.Canceled) {
			result := e.paginate(query, nil, opts)
			result.Canceled = true
			return result, nil
		}
		return nil, err
	}

	merged := mergeCandidates(vecScores, lexScores, paths, e.config.MergeK)

	ids := make([]string, len(merged))
	for i, c := range merged {
		ids[i] = c.chunkID
	}
	// Scoring reads go to the catalog directly; a candidate-fetch
	// timeout must not prevent serving what already came back.
	texts, err := e.catalog.ChunkTexts(context.WithoutCancel(ctx), ids)
	if err != nil {
		return nil, cerrors.New(cerrors.ErrCodeSearchUnavailable, "failed to load candidate texts", err)
	}

	weights := fusionWeights{
		bm25:     e.config.BM25Weight,
		cosine:   e.config.CosineWeight,
		exact:    e.config.ExactBoost,
		earlyPos: e.config.EarlyPosBoost,
	}
	hits := scoreCandidates(query, merged, texts, weights, opts.Flags.CaseSensitive)

	if opts.Flags.ExactOnly {
		hits = filterExact(hits, query, opts.Flags.CaseSensitive)
	}

	sortHits(hits)
	hits = dedupeByFile(hits, opts.MaxResultsPerFile)

	if e.config.TopK > 0 && len(hits) > e.config.TopK {
		hits = hits[:e.config.TopK]
	}

	result := e.paginate(query, hits, opts)
	result.vectorCandidates = len(vecScores)
	result.lexicalCandidates = len(lexScores)
	return result, nil
}

// parallelCandidates fetches vector and lexical candidates
// concurrently under the shared deadline. One failing side degrades to
// the other; both failing is a typed retrieval-unavailable error
// joining both causes.
func (e *Engine) parallelCandidates(ctx context.Context, query string) (
	vecScores map[string]float64,
	lexScores map[string]float64,
	paths map[string]string,
	err error,
) {
	g, gctx := errgroup.WithContext(ctx)

	var vecErr, lexErr error
	var vecHits []store.VectorHit
	var lexHits []store.LexicalHit

	g.Go(func() error {
		embedding, embedErr := e.embedder.Embed(gctx, query)
		if embedErr != nil {
			vecErr = embedErr
			return nil
		}
		vecHits, vecErr = e.vector.Search(gctx, embedding, e.config.VecK)
		return nil
	})

	g.Go(func() error {
		lexHits, lexErr = e.lexical.Search(gctx, cleanLexicalQuery(query), e.config.LexK)
		return nil
	})

	if waitErr := g.Wait(); waitErr != nil {
		return nil, nil, nil, waitErr
	}

	if vecErr != nil && lexErr != nil {
		return nil, nil, nil, cerrors.New(cerrors.ErrCodeSearchUnavailable,
			"both retrieval subsystems failed", errors.Join(vecErr, lexErr))
	}
	if vecErr != nil {
		e.logger.Warn("search_degraded",
			slog.String("failed_side", "vector"),
			slog.String("error", vecErr.Error()))
	}
	if lexErr != nil {
		e.logger.Warn("search_degraded",
			slog.String("failed_side", "lexical"),
			slog.String("error", lexErr.Error()))
	}

	vecScores = make(map[string]float64, len(vecHits))
	lexScores = make(map[string]float64, len(lexHits))
	paths = make(map[string]string, len(vecHits)+len(lexHits))
	for _, h := range vecHits {
		vecScores[h.ChunkID] = h.Score
		paths[h.ChunkID] = h.Path
	}
	for _, h := range lexHits {
		lexScores[h.ChunkID] = h.Score
		paths[h.ChunkID] = h.Path
	}
	return vecScores, lexScores, paths, nil
}

// paginate slices the requested page from the total ordering and
// renders snippets for the served hits only.
func (e *Engine) paginate(query string, hits []scored, opts Options) *Result {
	total := len(hits)
	totalPages := (total + opts.PerPage - 1) / opts.PerPage

	startIdx := (opts.Page - 1) * opts.PerPage
	endIdx := startIdx + opts.PerPage
	if startIdx > total {
		startIdx = total
	}
	if endIdx > total {
		endIdx = total
	}
	page := hits[startIdx:endIdx]

	items := make([]SearchHit, 0, len(page))
	for _, h := range page {
		snippet := makeSnippet(h.text, query, opts.SnippetRadius, opts.Flags.CaseSensitive)
		snippet = truncateSnippet(cleanSnippet(snippet), maxSnippetLength)
		if opts.Flags.ShowContext {
			snippet = highlightQuery(snippet, query)
		}
		items = append(items, SearchHit{
			ChunkID: h.chunkID,
			Path:    h.path,
			Score:   h.breakdown,
			Snippet: snippet,
		})
	}

	return &Result{
		Query:      query,
		Hits:       items,
		TotalHits:  total,
		Page:       opts.Page,
		PerPage:    opts.PerPage,
		TotalPages: totalPages,
		HasNext:    opts.Page < totalPages,
		HasPrev:    opts.Page > 1,
	}
}

func (e *Engine) applyDefaults(opts Options) Options {
	if opts.Page == 0 {
		opts.Page = 1
	}
	if opts.PerPage <= 0 {
		opts.PerPage = 10
	}
	if opts.MaxResultsPerFile <= 0 {
		opts.MaxResultsPerFile = e.config.MaxResultsPerFile
	}
	if opts.SnippetRadius <= 0 {
		opts.SnippetRadius = e.config.SnippetRadius
	}
	return opts
}

// recordStats appends the query's audit row. Never fatal.
func (e *Engine) recordStats(r *Result) {
	err := e.catalog.InsertSearchStats(context.Background(), store.SearchStats{
		Query:             r.Query,
		TotalCandidates:   r.TotalHits,
		VectorCandidates:  r.vectorCandidates,
		LexicalCandidates: r.lexicalCandidates,
		FinalResults:      len(r.Hits),
		DurationSeconds:   r.Duration.Seconds(),
		CacheHit:          r.CacheHit,
		Timestamp:         time.Now(),
	})
	if err != nil {
		e.logger.Warn("search_stats_record_failed", slog.String("error", err.Error()))
	}
}

// filterExact drops hits whose text lacks the literal query substring.
func filterExact(hits []scored, query string, caseSensitive bool) []scored {
	kept := hits[:0]
	for _, h := range hits {
		q, t := foldPair(query, h.text, caseSensitive)
		if strings.Contains(t, q) {
			kept = append(kept, h)
		}
	}
	return kept
}

// cleanLexicalQuery strips punctuation so user queries never trip the
// FTS5 query parser.
func cleanLexicalQuery(query string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(query) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
