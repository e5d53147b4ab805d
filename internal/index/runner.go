// Package index implements the checkpointable breadth-first indexing
// pipeline: discover files level by level, extract and chunk them in
// parallel, embed in batches, and hand each batch to the dual store
// writer. The frontier checkpoint is saved whenever no extracted work
// is waiting on a flush, so a crash or cap loses at most one embed
// batch of work and never work the checkpoint claims is done.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/Warlord437/Context-Based-File-Search/internal/chunk"
	"github.com/Warlord437/Context-Based-File-Search/internal/config"
	"github.com/Warlord437/Context-Based-File-Search/internal/embed"
	cerrors "github.com/Warlord437/Context-Based-File-Search/internal/errors"
	"github.com/Warlord437/Context-Based-File-Search/internal/extract"
	"github.com/Warlord437/Context-Based-File-Search/internal/frontier"
	"github.com/Warlord437/Context-Based-File-Search/internal/store"
)

// workBatchSize is how many frontier items are taken per checkpoint
// cycle.
const workBatchSize = 64

// Config configures one indexing run.
type Config struct {
	// Roots are the directories or files to index.
	Roots []string

	// MaxItems caps the number of frontier items processed this run.
	// 0 means unlimited.
	MaxItems int

	// MaxDuration caps the run's wall-clock time. 0 means unlimited.
	MaxDuration time.Duration

	// Force reindexes files even when their content hash is unchanged.
	Force bool
}

// Result is the outcome of an indexing run.
type Result struct {
	// FilesProcessed is the number of files extracted, chunked,
	// embedded, and written.
	FilesProcessed int

	// ChunksCreated is the total chunks written.
	ChunksCreated int

	// FilesSkipped counts unchanged files, disallowed extensions,
	// excluded paths, and empty extractions.
	FilesSkipped int

	// Errors counts per-file and per-batch failures absorbed by the run.
	Errors int

	// Duration is the total run time.
	Duration time.Duration

	// Interrupted is true when a cap or cancellation ended the run
	// before the frontier emptied.
	Interrupted bool
}

// Dependencies are the injected collaborators for a Runner.
type Dependencies struct {
	Config    *config.Config
	Writer    *store.DualWriter
	Catalog   *store.Catalog
	Embedder  embed.Embedder
	Extractor *extract.Chain
	Chunker   *chunk.Chunker
	Frontier  *frontier.Manager
	Logger    *slog.Logger
}

// Runner executes indexing runs. It is the exclusive owner of the
// frontier state for the duration of a run.
type Runner struct {
	config    *config.Config
	writer    *store.DualWriter
	catalog   *store.Catalog
	embedder  embed.Embedder
	extractor *extract.Chain
	chunker   *chunk.Chunker
	frontier  *frontier.Manager
	logger    *slog.Logger
	exclude   *patternMatcher
}

// NewRunner creates a Runner with injected dependencies.
func NewRunner(deps Dependencies) (*Runner, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Writer == nil {
		return nil, fmt.Errorf("dual store writer is required")
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if deps.Frontier == nil {
		return nil, fmt.Errorf("frontier is required")
	}

	extractor := deps.Extractor
	if extractor == nil {
		extractor = extract.NewChain()
	}

	chunker := deps.Chunker
	if chunker == nil {
		var err error
		chunker, err = chunk.New(deps.Config.Index.MaxTokens, deps.Config.Index.Overlap)
		if err != nil {
			return nil, fmt.Errorf("create chunker: %w", err)
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		config:    deps.Config,
		writer:    deps.Writer,
		catalog:   deps.Catalog,
		embedder:  deps.Embedder,
		extractor: extractor,
		chunker:   chunker,
		frontier:  deps.Frontier,
		logger:    logger,
		exclude:   newPatternMatcher(deps.Config.Index.ExcludePatterns),
	}, nil
}

// fileOutcome classifies one file's trip through the pipeline.
type fileOutcome int

const (
	outcomeProcessed fileOutcome = iota
	outcomeSkipped
	outcomeFailed
)

// fileResult is the output of the per-file extract+chunk stage.
type fileResult struct {
	outcome fileOutcome
	rec     store.FileRecord
	chunks  []store.Chunk
	err     error

	// staleFileID is the previous identity of this path when its
	// mtime or size changed. The flush deletes it through the writer
	// so the old chunks' vectors and lexical entries go with it.
	staleFileID string
}

// Run executes the indexing pipeline until the frontier empties or a
// cap triggers. Partial embedding batches are flushed before returning
// so the checkpoint never points at lost work.
func (r *Runner) Run(ctx context.Context, cfg Config) (*Result, error) {
	start := time.Now()

	lock, err := acquireRunLock(r.config.Store.Root)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Unlock() }()

	if cfg.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.MaxDuration)
		defer cancel()
	}

	roots := make([]string, 0, len(cfg.Roots))
	for _, root := range cfg.Roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("resolve root %s: %w", root, err)
		}
		if _, err := os.Stat(abs); err != nil {
			r.logger.Warn("index_root_missing", slog.String("path", abs))
			continue
		}
		roots = append(roots, abs)
	}
	r.frontier.EnqueueRoots(roots...)

	workers := r.config.Index.Workers
	if workers <= 0 {
		workers = 4
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	r.logger.Info("index_started",
		slog.Any("roots", roots),
		slog.Int("workers", workers),
		slog.Int("resume_level", r.frontier.Level()),
		slog.Int("resume_queue", r.frontier.ProcessedCount()))

	result := &Result{}
	var pending []fileResult
	var pendingChunks int
	itemsProcessed := 0

	for {
		if ctx.Err() != nil {
			result.Interrupted = true
			break
		}
		if cfg.MaxItems > 0 && itemsProcessed >= cfg.MaxItems {
			result.Interrupted = true
			break
		}

		batchSize := workBatchSize
		if cfg.MaxItems > 0 && cfg.MaxItems-itemsProcessed < batchSize {
			batchSize = cfg.MaxItems - itemsProcessed
		}

		items, level := r.frontier.DequeueBatch(batchSize)
		if len(items) == 0 {
			break
		}

		r.logger.Debug("index_batch_started",
			slog.Int("level", level),
			slog.Int("items", len(items)))

		filePaths := r.expandBatch(items, result)
		results := r.processFiles(ctx, pool, filePaths, cfg.Force)

		for _, fr := range results {
			switch fr.outcome {
			case outcomeSkipped:
				result.FilesSkipped++
			case outcomeFailed:
				result.Errors++
				r.logger.Warn("index_file_failed",
					slog.String("path", fr.rec.Path),
					slog.String("error", fr.err.Error()))
			case outcomeProcessed:
				pending = append(pending, fr)
				pendingChunks += len(fr.chunks)
			}
		}

		if pendingChunks >= r.config.Index.EmbedBatch {
			if err := r.flush(ctx, pending, result); err != nil {
				return result, err
			}
			pending = nil
			pendingChunks = 0
		}

		itemsProcessed += len(items)
		r.frontier.AddProcessed(len(items))

		// The checkpoint may only advance past durably written work.
		// With extracted-but-unflushed files pending, a crash after an
		// eager save would lose them: dequeued, marked seen, and no
		// catalog row for the hash check to notice.
		if len(pending) == 0 {
			if err := r.frontier.Save(); err != nil {
				r.logger.Warn("checkpoint_save_failed", slog.String("error", err.Error()))
			}
		}
	}

	// Final or interrupted flush. Uses a detached context so a
	// cancellation still lands the partial batch before checkpointing.
	if len(pending) > 0 {
		if err := r.flush(context.WithoutCancel(ctx), pending, result); err != nil {
			return result, err
		}
	}
	// An interrupted run keeps its checkpoint for resumption; a clean
	// completion discards it so the next run re-walks the roots.
	if result.Interrupted {
		if err := r.frontier.Save(); err != nil {
			r.logger.Warn("checkpoint_save_failed", slog.String("error", err.Error()))
		}
	} else if err := r.frontier.Reset(); err != nil {
		r.logger.Warn("checkpoint_clear_failed", slog.String("error", err.Error()))
	}
	if err := r.writer.Flush(context.WithoutCancel(ctx)); err != nil {
		return result, err
	}

	// New content invalidates cached search results via the version stamp.
	if result.FilesProcessed > 0 {
		if err := r.catalog.BumpIndexVersion(context.WithoutCancel(ctx)); err != nil {
			r.logger.Warn("index_version_bump_failed", slog.String("error", err.Error()))
		}
	}

	result.Duration = time.Since(start)
	r.recordStats(result)

	r.logger.Info("index_complete",
		slog.Int("files_processed", result.FilesProcessed),
		slog.Int("chunks_created", result.ChunksCreated),
		slog.Int("files_skipped", result.FilesSkipped),
		slog.Int("errors", result.Errors),
		slog.Bool("interrupted", result.Interrupted),
		slog.Int64("duration_ms", result.Duration.Milliseconds()),
		slog.String("embedder_model", r.embedder.ModelName()),
		slog.Int("embedder_dimensions", r.embedder.Dimensions()))

	return result, nil
}

// expandBatch walks a batch of frontier items: directories enqueue
// their children for the next level, files are collected for the
// pipeline. The seen-set check happens here, before any work, so
// symlink cycles and hard links are visited at most once.
func (r *Runner) expandBatch(items []string, result *Result) []string {
	var files []string

	for _, item := range items {
		info, err := os.Stat(item)
		if err != nil {
			r.logger.Warn("index_stat_failed",
				slog.String("path", item),
				slog.String("error", err.Error()))
			continue
		}

		if !r.frontier.MarkSeen(frontier.NodeID(item, info)) {
			continue
		}

		if info.IsDir() {
			if r.exclude.matches(item) {
				continue
			}
			entries, err := os.ReadDir(item)
			if err != nil {
				r.logger.Warn("index_readdir_failed",
					slog.String("path", item),
					slog.String("error", err.Error()))
				continue
			}
			for _, entry := range entries {
				if strings.HasPrefix(entry.Name(), ".") {
					continue
				}
				child := filepath.Join(item, entry.Name())
				if r.exclude.matches(child) {
					continue
				}
				r.frontier.Enqueue(child)
			}
			continue
		}

		if r.exclude.matches(item) || !r.config.ExtensionAllowed(strings.ToLower(filepath.Ext(item))) {
			result.FilesSkipped++
			continue
		}
		files = append(files, item)
	}

	return files
}

// processFiles runs extraction and chunking for a batch of files on the
// worker pool. Files are independent until the embed flush, so this is
// the parallel section of the pipeline.
func (r *Runner) processFiles(ctx context.Context, pool *ants.Pool, paths []string, force bool) []fileResult {
	if len(paths) == 0 {
		return nil
	}

	results := make([]fileResult, len(paths))
	var wg sync.WaitGroup

	for i, path := range paths {
		wg.Add(1)
		submit := func() {
			defer wg.Done()
			results[i] = r.processFile(ctx, path, force)
		}
		if err := pool.Submit(submit); err != nil {
			// Pool rejected the task (released or overloaded); run inline.
			submit()
		}
	}
	wg.Wait()

	return results
}

// processFile takes one file through stat, change detection,
// extraction, and chunking.
func (r *Runner) processFile(ctx context.Context, path string, force bool) fileResult {
	info, err := os.Stat(path)
	if err != nil {
		return fileResult{outcome: outcomeFailed, rec: store.FileRecord{Path: path}, err: err}
	}

	rec := store.FileRecord{
		FileID:    store.FileID(path, info.ModTime().Unix(), info.Size()),
		Path:      path,
		Size:      info.Size(),
		MTime:     info.ModTime().Unix(),
		IndexedAt: time.Now(),
	}

	hash, err := store.HashFile(path)
	if err != nil {
		return fileResult{outcome: outcomeFailed, rec: rec, err: fmt.Errorf("hash file: %w", err)}
	}
	rec.SHA256 = hash

	var staleFileID string
	existing, err := r.catalog.GetFileByPath(ctx, path)
	if err == nil && existing != nil {
		if !force && existing.SHA256 == hash {
			r.logger.Debug("index_file_unchanged", slog.String("path", path))
			return fileResult{outcome: outcomeSkipped, rec: rec}
		}
		if existing.FileID != rec.FileID {
			staleFileID = existing.FileID
		}
	}

	extractCtx := ctx
	if timeout := r.config.Index.FileExtractTimeoutSec; timeout > 0 {
		var cancel context.CancelFunc
		extractCtx, cancel = context.WithTimeout(ctx, time.Duration(timeout*float64(time.Second)))
		defer cancel()
	}

	text, err := r.extractor.Extract(extractCtx, path)
	if err != nil {
		if extract.IsUnsupported(err) || extract.IsBinary(err) {
			r.logger.Debug("index_file_not_extractable",
				slog.String("path", path),
				slog.String("code", cerrors.GetCode(err)))
			return fileResult{outcome: outcomeSkipped, rec: rec}
		}
		return fileResult{outcome: outcomeFailed, rec: rec, err: err}
	}
	if strings.TrimSpace(text) == "" {
		return fileResult{outcome: outcomeSkipped, rec: rec}
	}

	chunks, err := r.chunker.Chunk(ctx, rec.FileID, text)
	if err != nil {
		return fileResult{outcome: outcomeFailed, rec: rec, err: fmt.Errorf("chunk: %w", err)}
	}
	if len(chunks) == 0 {
		return fileResult{outcome: outcomeSkipped, rec: rec}
	}

	return fileResult{outcome: outcomeProcessed, rec: rec, chunks: chunks, staleFileID: staleFileID}
}

// flush embeds the accumulated chunks as one batch and writes each
// file through the dual store writer. This is the single serialization
// point of the pipeline. An embedding failure drops the batch with an
// error count; a store write failure escalates, since the writer has
// already retried and the run cannot make progress.
func (r *Runner) flush(ctx context.Context, pending []fileResult, result *Result) error {
	if len(pending) == 0 {
		return nil
	}

	var texts []string
	for _, fr := range pending {
		for _, c := range fr.chunks {
			texts = append(texts, c.Text)
		}
	}

	vectors, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		result.Errors += len(pending)
		r.logger.Error("embed_batch_failed",
			slog.Int("files", len(pending)),
			slog.Int("chunks", len(texts)),
			slog.String("error", err.Error()))
		return nil
	}

	offset := 0
	for _, fr := range pending {
		fileVectors := vectors[offset : offset+len(fr.chunks)]
		offset += len(fr.chunks)

		// A changed file gets a new identity; the old one must leave
		// all three stores together or its vectors orphan.
		if fr.staleFileID != "" {
			if err := r.writer.DeleteFile(ctx, fr.staleFileID); err != nil {
				return err
			}
		}
		if err := r.writer.UpsertFile(ctx, fr.rec); err != nil {
			return err
		}
		if err := r.writer.UpsertChunks(ctx, fr.rec, fr.chunks, fileVectors); err != nil {
			return err
		}

		result.FilesProcessed++
		result.ChunksCreated += len(fr.chunks)
	}

	r.logger.Debug("index_batch_flushed",
		slog.Int("files", len(pending)),
		slog.Int("chunks", len(texts)))
	return nil
}

// recordStats appends the run's audit row. Failure to record is logged,
// never fatal.
func (r *Runner) recordStats(result *Result) {
	err := r.catalog.InsertIndexStats(context.Background(), store.IndexStats{
		Operation:       "index",
		FilesProcessed:  result.FilesProcessed,
		ChunksCreated:   result.ChunksCreated,
		FilesSkipped:    result.FilesSkipped,
		Errors:          result.Errors,
		DurationSeconds: result.Duration.Seconds(),
		Timestamp:       time.Now(),
	})
	if err != nil {
		r.logger.Warn("index_stats_record_failed", slog.String("error", err.Error()))
	}
}

// patternMatcher matches paths against glob-style exclude patterns
// where * crosses path separators, the same matching the config
// patterns were written for.
type patternMatcher struct {
	res []*regexp.Regexp
}

func newPatternMatcher(patterns []string) *patternMatcher {
	pm := &patternMatcher{}
	for _, p := range patterns {
		var b strings.Builder
		b.WriteString("^")
		for _, r := range p {
			switch r {
			case '*':
				b.WriteString(".*")
			case '?':
				b.WriteString(".")
			default:
				b.WriteString(regexp.QuoteMeta(string(r)))
			}
		}
		b.WriteString("$")
		re, err := regexp.Compile(b.String())
		if err != nil {
			continue
		}
		pm.res = append(pm.res, re)
	}
	return pm
}

func (pm *patternMatcher) matches(path string) bool {
	for _, re := range pm.res {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}
