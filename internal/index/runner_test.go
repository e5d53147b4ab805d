package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Warlord437/Context-Based-File-Search/internal/config"
	"github.com/Warlord437/Context-Based-File-Search/internal/embed"
	cerrors "github.com/Warlord437/Context-Based-File-Search/internal/errors"
	"github.com/Warlord437/Context-Based-File-Search/internal/frontier"
	"github.com/Warlord437/Context-Based-File-Search/internal/store"
)

// testEnv bundles the pipeline pieces a Runner test needs to inspect.
type testEnv struct {
	runner   *Runner
	catalog  *store.Catalog
	lexical  *store.FTS5Index
	vector   *store.HNSWIndex
	frontier *frontier.Manager
	cfg      *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	storeRoot := t.TempDir()

	cfg := config.NewConfig()
	cfg.Store.Root = storeRoot
	// The stock exclude list covers system paths like tmp, which would
	// swallow every temp-dir fixture. Keep one representative pattern.
	cfg.Index.ExcludePatterns = []string{"**/node_modules/**"}
	cfg.Index.Workers = 2

	catalog, err := store.OpenCatalog("")
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })

	lexical := store.NewFTS5Index(catalog)

	vector, err := store.NewHNSWIndex(store.VectorConfig{
		Dimensions: embed.StaticDimensions,
	})
	require.NoError(t, err)
	t.Cleanup(func() { vector.Close() })

	writer, err := store.NewDualWriter(catalog, lexical, vector)
	require.NoError(t, err)

	fm, err := frontier.Load(filepath.Join(storeRoot, "checkpoint.json"), nil)
	require.NoError(t, err)

	runner, err := NewRunner(Dependencies{
		Config:   cfg,
		Writer:   writer,
		Catalog:  catalog,
		Embedder: embed.NewStaticEmbedder(),
		Frontier: fm,
	})
	require.NoError(t, err)

	return &testEnv{
		runner:   runner,
		catalog:  catalog,
		lexical:  lexical,
		vector:   vector,
		frontier: fm,
		cfg:      cfg,
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunner_IndexesTree(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	one := writeFile(t, root, "one.txt", "the quarterly revenue forecast improved after the merger")
	writeFile(t, root, "nested/two.md", "lasagna recipe with slow roasted tomatoes and basil")

	res, err := env.runner.Run(context.Background(), Config{Roots: []string{root}})
	require.NoError(t, err)

	assert.Equal(t, 2, res.FilesProcessed)
	assert.GreaterOrEqual(t, res.ChunksCreated, 2)
	assert.Zero(t, res.Errors)
	assert.False(t, res.Interrupted)

	rec, err := env.catalog.GetFileByPath(context.Background(), one)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.NotEmpty(t, rec.SHA256)

	count, err := env.lexical.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, res.ChunksCreated, count)
	assert.Equal(t, res.ChunksCreated, env.vector.Count())
}

func TestRunner_SymlinkCycleTerminates(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	writeFile(t, root, "a.txt", "document outside the loop")
	writeFile(t, root, "sub/b.txt", "document inside the subdirectory")
	// The symlink points back at the root, so a naive walk never ends.
	require.NoError(t, os.Symlink(root, filepath.Join(root, "sub", "loop")))

	res, err := env.runner.Run(context.Background(), Config{Roots: []string{root}})
	require.NoError(t, err)

	// Each unique node is visited once; the cycle edge resolves to the
	// already-seen root and is dropped.
	assert.False(t, res.Interrupted)
	assert.Equal(t, 2, res.FilesProcessed)
	assert.Zero(t, res.Errors)

	count, err := env.lexical.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, res.ChunksCreated, count)
	assert.Equal(t, res.ChunksCreated, env.vector.Count())
}

func TestRunner_WritesCheckpoint(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	writeFile(t, root, "doc.txt", "checkpointing keeps interrupted runs resumable")

	// An item cap interrupts the run, so the checkpoint must survive.
	res, err := env.runner.Run(context.Background(), Config{Roots: []string{root}, MaxItems: 1})
	require.NoError(t, err)
	require.True(t, res.Interrupted)

	path := filepath.Join(env.cfg.Store.Root, "checkpoint.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "processedCount")
	assert.Contains(t, string(data), "lastCheckpoint")

	// Finishing the run clears the checkpoint.
	res, err = env.runner.Run(context.Background(), Config{Roots: []string{root}})
	require.NoError(t, err)
	require.False(t, res.Interrupted)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

// addFailVector serves the vector store surface but rejects every insert.
type addFailVector struct {
	*store.HNSWIndex
}

func (v *addFailVector) Add(ctx context.Context, chunkIDs, paths []string, vectors [][]float32) error {
	return errors.New("vector backend unavailable")
}

func TestRunner_CheckpointNeverOutrunsUnflushedWork(t *testing.T) {
	storeRoot := t.TempDir()

	cfg := config.NewConfig()
	cfg.Store.Root = storeRoot
	cfg.Index.ExcludePatterns = []string{"**/node_modules/**"}
	cfg.Index.Workers = 2

	catalog, err := store.OpenCatalog("")
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })

	lexical := store.NewFTS5Index(catalog)
	vector, err := store.NewHNSWIndex(store.VectorConfig{
		Dimensions: embed.StaticDimensions,
	})
	require.NoError(t, err)
	t.Cleanup(func() { vector.Close() })

	writer, err := store.NewDualWriter(catalog, lexical, &addFailVector{vector},
		store.WithRetryConfig(cerrors.RetryConfig{
			MaxRetries:   1,
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
			Multiplier:   1.0,
		}))
	require.NoError(t, err)

	checkpointPath := filepath.Join(storeRoot, "checkpoint.json")
	fm, err := frontier.Load(checkpointPath, nil)
	require.NoError(t, err)

	runner, err := NewRunner(Dependencies{
		Config:   cfg,
		Writer:   writer,
		Catalog:  catalog,
		Embedder: embed.NewStaticEmbedder(),
		Frontier: fm,
	})
	require.NoError(t, err)

	root := t.TempDir()
	one := writeFile(t, root, "one.txt", "first body behind a broken store")
	two := writeFile(t, root, "two.txt", "second body behind a broken store")

	// The final flush hits the broken vector store and the run fails
	// with both files extracted but not durably written.
	_, err = runner.Run(context.Background(), Config{Roots: []string{root}})
	require.Error(t, err)

	// The checkpoint on disk must still owe those files. A save taken
	// while they sat unflushed would mark them seen with nothing in the
	// catalog, so a resume would silently drop them.
	reloaded, err := frontier.Load(checkpointPath, nil)
	require.NoError(t, err)

	queued, _ := reloaded.DequeueLevel()
	assert.ElementsMatch(t, []string{one, two}, queued)
}

func TestRunner_SecondRunSkipsUnchanged(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	writeFile(t, root, "a.txt", "stable content one")
	writeFile(t, root, "b.txt", "stable content two")

	res1, err := env.runner.Run(context.Background(), Config{Roots: []string{root}})
	require.NoError(t, err)
	require.Equal(t, 2, res1.FilesProcessed)

	// No manual frontier reset: a completed run clears its own checkpoint.
	res2, err := env.runner.Run(context.Background(), Config{Roots: []string{root}})
	require.NoError(t, err)
	assert.Zero(t, res2.FilesProcessed)
	assert.Equal(t, 2, res2.FilesSkipped)
	assert.Zero(t, res2.Errors)
}

func TestRunner_ForceConvergesStores(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	writeFile(t, root, "a.txt", "idempotent writes across repeated runs")

	for i := 0; i < 3; i++ {
		res, err := env.runner.Run(context.Background(), Config{
			Roots: []string{root},
			Force: true,
		})
		require.NoError(t, err)
		require.Equal(t, 1, res.FilesProcessed)
	}

	count, err := env.lexical.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, env.vector.Count())
}

func TestRunner_ChangedFileReplacesStaleEntries(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	path := writeFile(t, root, "report.txt", "draft findings before the rewrite")

	res, err := env.runner.Run(context.Background(), Config{Roots: []string{root}})
	require.NoError(t, err)
	require.Equal(t, 1, res.FilesProcessed)

	// Rewriting content with a new mtime gives the path a new file
	// identity. The old identity's chunks must leave the vector and
	// lexical stores along with the catalog row.
	require.NoError(t, os.WriteFile(path, []byte("final findings, fully rewritten"), 0o644))
	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))

	res, err = env.runner.Run(context.Background(), Config{Roots: []string{root}})
	require.NoError(t, err)
	require.Equal(t, 1, res.FilesProcessed)

	files, chunks, err := env.catalog.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, files)
	assert.Equal(t, chunks, env.vector.Count())

	lexCount, err := env.lexical.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, chunks, lexCount)
}

func TestRunner_DisallowedExtensionSkipped(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	writeFile(t, root, "keep.txt", "eligible text file")
	skipped := writeFile(t, root, "skip.xyz", "ineligible extension")

	res, err := env.runner.Run(context.Background(), Config{Roots: []string{root}})
	require.NoError(t, err)

	assert.Equal(t, 1, res.FilesProcessed)
	assert.Equal(t, 1, res.FilesSkipped)

	rec, err := env.catalog.GetFileByPath(context.Background(), skipped)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRunner_BinaryContentSkippedNotErrored(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	writeFile(t, root, "normal.txt", "plain readable text")
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "blob.txt"),
		[]byte{'a', 0x00, 0x01, 'b'},
		0o644))

	res, err := env.runner.Run(context.Background(), Config{Roots: []string{root}})
	require.NoError(t, err)

	assert.Equal(t, 1, res.FilesProcessed)
	assert.Equal(t, 1, res.FilesSkipped)
	assert.Zero(t, res.Errors)
}

func TestRunner_UnreadableFileCountsAsError(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	env := newTestEnv(t)
	root := t.TempDir()
	writeFile(t, root, "ok.txt", "readable file")
	locked := writeFile(t, root, "locked.txt", "no access")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o644) })

	res, err := env.runner.Run(context.Background(), Config{Roots: []string{root}})
	require.NoError(t, err)

	assert.Equal(t, 1, res.FilesProcessed)
	assert.Equal(t, 1, res.Errors)
	assert.Zero(t, res.FilesSkipped)
}

func TestRunner_ExcludedDirectoryNotTraversed(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	writeFile(t, root, "app.txt", "application notes")
	excluded := writeFile(t, root, "node_modules/pkg/readme.txt", "vendored package docs")

	res, err := env.runner.Run(context.Background(), Config{Roots: []string{root}})
	require.NoError(t, err)

	assert.Equal(t, 1, res.FilesProcessed)

	rec, err := env.catalog.GetFileByPath(context.Background(), excluded)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRunner_HiddenEntriesIgnored(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	writeFile(t, root, "visible.txt", "visible document")
	writeFile(t, root, ".hidden.txt", "dotfile document")
	writeFile(t, root, ".config/inner.txt", "dotdir document")

	res, err := env.runner.Run(context.Background(), Config{Roots: []string{root}})
	require.NoError(t, err)

	assert.Equal(t, 1, res.FilesProcessed)
	assert.Zero(t, res.FilesSkipped)
}

func TestRunner_LockContention(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	writeFile(t, root, "doc.txt", "contended run")

	other := flock.New(filepath.Join(env.cfg.Store.Root, runLockName))
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer func() { _ = other.Unlock() }()

	_, err = env.runner.Run(context.Background(), Config{Roots: []string{root}})
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrCodeStoreLocked, cerrors.GetCode(err))
}

func TestRunner_MaxItemsInterruptsAndResumes(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	writeFile(t, root, "one.txt", "first document body")
	writeFile(t, root, "two.txt", "second document body")
	writeFile(t, root, "three.txt", "third document body")

	res1, err := env.runner.Run(context.Background(), Config{
		Roots:    []string{root},
		MaxItems: 1,
	})
	require.NoError(t, err)
	assert.True(t, res1.Interrupted)

	// Second run resumes from the checkpointed queue; roots are not
	// re-enqueued while work remains.
	res2, err := env.runner.Run(context.Background(), Config{Roots: []string{root}})
	require.NoError(t, err)
	assert.False(t, res2.Interrupted)

	assert.Equal(t, 3, res1.FilesProcessed+res2.FilesProcessed)
	for _, name := range []string{"one.txt", "two.txt", "three.txt"} {
		rec, err := env.catalog.GetFileByPath(context.Background(), filepath.Join(root, name))
		require.NoError(t, err)
		assert.NotNil(t, rec, name)
	}
}

func TestRunner_CanceledContextInterrupts(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	writeFile(t, root, "doc.txt", "never reached")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := env.runner.Run(ctx, Config{Roots: []string{root}})
	require.NoError(t, err)
	assert.True(t, res.Interrupted)
	assert.Zero(t, res.FilesProcessed)
}

func TestRunner_RecordsIndexStats(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	writeFile(t, root, "doc.txt", "stats audit row")

	_, err := env.runner.Run(context.Background(), Config{Roots: []string{root}})
	require.NoError(t, err)

	stats, err := env.catalog.LastIndexStats(context.Background())
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, "index", stats.Operation)
	assert.Equal(t, 1, stats.FilesProcessed)
}

func TestRunner_BumpsIndexVersionWhenContentChanges(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	writeFile(t, root, "doc.txt", "fresh content invalidates caches")

	before, err := env.catalog.IndexVersion(context.Background())
	require.NoError(t, err)

	_, err = env.runner.Run(context.Background(), Config{Roots: []string{root}})
	require.NoError(t, err)

	after, err := env.catalog.IndexVersion(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, before, after)

	// A run that touches nothing leaves the stamp alone.
	_, err = env.runner.Run(context.Background(), Config{Roots: []string{root}})
	require.NoError(t, err)

	unchanged, err := env.catalog.IndexVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, after, unchanged)
}

func TestNewRunner_RequiresDependencies(t *testing.T) {
	_, err := NewRunner(Dependencies{})
	require.Error(t, err)

	_, err = NewRunner(Dependencies{Config: config.NewConfig()})
	require.Error(t, err)
}

func TestPatternMatcher(t *testing.T) {
	pm := newPatternMatcher([]string{"**/node_modules/**", "*.log"})

	assert.True(t, pm.matches("/home/u/proj/node_modules/lodash/index.js"))
	assert.True(t, pm.matches("server.log"))
	assert.False(t, pm.matches("/home/u/proj/src/main.go"))
	assert.False(t, pm.matches("/home/u/proj/node_modules"))
}

func TestRunner_MissingRootIsTolerated(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	writeFile(t, root, "doc.txt", "real root alongside a missing one")

	res, err := env.runner.Run(context.Background(), Config{
		Roots: []string{root, filepath.Join(root, "does-not-exist")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.FilesProcessed)
}

func TestRunner_DurationRecorded(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	writeFile(t, root, "doc.txt", strings.Repeat("word ", 200))

	res, err := env.runner.Run(context.Background(), Config{Roots: []string{root}})
	require.NoError(t, err)
	assert.Greater(t, res.Duration, time.Duration(0))
}
