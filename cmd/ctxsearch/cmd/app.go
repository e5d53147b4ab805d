package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Warlord437/Context-Based-File-Search/internal/config"
	"github.com/Warlord437/Context-Based-File-Search/internal/embed"
	"github.com/Warlord437/Context-Based-File-Search/internal/logging"
	"github.com/Warlord437/Context-Based-File-Search/internal/store"
)

// app bundles the opened stores and their teardown for one CLI invocation.
type app struct {
	cfg      *config.Config
	catalog  *store.Catalog
	lexical  store.LexicalIndex
	vector   store.VectorIndex
	embedder embed.Embedder
	logger   *slog.Logger

	cleanups []func()
}

// loadConfig resolves configuration for the current working directory,
// applying the --store-dir override.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}

	cfg, err := config.Load(cwd, opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.storeDir != "" {
		rebaseStorePaths(cfg, opts.storeDir)
	}
	return cfg, nil
}

// openApp loads configuration, sets up logging, and opens the stores.
// Callers must call Close.
func openApp(opts *rootOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}

	logger, err := a.setupLogging(opts)
	if err != nil {
		return nil, err
	}
	a.logger = logger

	if err := a.openStores(); err != nil {
		a.Close()
		return nil, err
	}

	embedder, err := embed.NewEmbedder(embed.ParseProvider(cfg.Embed.Provider), embed.Options{
		Model:            cfg.Embed.Model,
		Dimensions:       cfg.Store.Dim,
		BatchConcurrency: cfg.Embed.BatchConcurrency,
		CacheSize:        cfg.Embed.CacheSize,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.embedder = embedder

	return a, nil
}

// rebaseStorePaths points every persisted artifact under dir. The
// per-path config fields stay usable for split layouts; --store-dir is
// the simple "keep everything here" override.
func rebaseStorePaths(cfg *config.Config, dir string) {
	cfg.Store.Root = dir
	cfg.Store.Catalog = filepath.Join(dir, "catalog.db")
	cfg.Store.Frontier = filepath.Join(dir, "frontier.json")
	cfg.Store.Vectors = filepath.Join(dir, "vectors")
	cfg.Store.Lexical = filepath.Join(dir, "lexical")
	cfg.Log.File = filepath.Join(dir, "logs", "ctxsearch.log")
}

func (a *app) setupLogging(opts *rootOptions) (*slog.Logger, error) {
	level := a.cfg.Log.Level
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	if opts.verbose {
		level = "debug"
	}

	logCfg := logging.DefaultConfig(a.cfg.Store.Root)
	logCfg.Level = level
	if a.cfg.Log.File != "" {
		logCfg.FilePath = a.cfg.Log.File
	}
	logCfg.WriteToStderr = opts.verbose

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}
	a.cleanups = append(a.cleanups, cleanup)
	slog.SetDefault(logger)
	return logger, nil
}

func (a *app) openStores() error {
	if err := os.MkdirAll(a.cfg.Store.Root, 0o755); err != nil {
		return fmt.Errorf("create store directory %s: %w", a.cfg.Store.Root, err)
	}

	catalog, err := store.OpenCatalog(a.cfg.Store.Catalog)
	if err != nil {
		return err
	}
	a.catalog = catalog
	a.cleanups = append(a.cleanups, func() { _ = catalog.Close() })

	switch a.cfg.Store.LexicalBackend {
	case "bleve":
		lexical, err := store.NewBleveIndex(a.cfg.Store.Lexical)
		if err != nil {
			return err
		}
		a.lexical = lexical
		a.cleanups = append(a.cleanups, func() { _ = lexical.Close() })
	default:
		a.lexical = store.NewFTS5Index(catalog)
	}

	vector, err := store.NewHNSWIndex(store.VectorConfig{
		Path:           a.cfg.Store.Vectors,
		Dimensions:     a.cfg.Store.Dim,
		M:              a.cfg.Store.HNSW.M,
		EfConstruction: a.cfg.Store.HNSW.EfConstruction,
		EfSearch:       a.cfg.Store.HNSW.EfSearch,
	})
	if err != nil {
		return err
	}
	a.vector = vector
	a.cleanups = append(a.cleanups, func() { _ = vector.Close() })

	return nil
}

// Close tears down in reverse open order.
func (a *app) Close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
}
