package cmd

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Warlord437/Context-Based-File-Search/internal/frontier"
	"github.com/Warlord437/Context-Based-File-Search/internal/index"
	"github.com/Warlord437/Context-Based-File-Search/internal/output"
	"github.com/Warlord437/Context-Based-File-Search/internal/store"
)

// indexOptions holds CLI flags for index.
type indexOptions struct {
	maxItems       int
	maxDuration    time.Duration
	force          bool
	ocr            bool
	maxPDFPages    int
	extractTimeout float64
	jsonOut        bool
}

func newIndexCmd(root *rootOptions) *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index [root...]",
		Short: "Index directory trees into the local store",
		Long: `Index walks the given roots breadth-first, extracts text, chunks it,
embeds the chunks, and writes catalog, keyword, and vector stores.

The walk checkpoints after every batch. An interrupted run (Ctrl-C,
--max-items, --max-duration) resumes from the checkpoint on the next
invocation. Unchanged files are skipped by content hash unless
--force is given.

Examples:
  ctxsearch index .
  ctxsearch index ~/notes --max-duration 5m
  ctxsearch index /srv/docs --max-items 10000 --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			roots := args
			if len(roots) == 0 {
				roots = []string{"."}
			}
			return runIndex(cmd, root, opts, roots)
		},
	}

	cmd.Flags().IntVar(&opts.maxItems, "max-items", 0, "Stop after this many frontier items (0 = unlimited)")
	cmd.Flags().DurationVar(&opts.maxDuration, "max-duration", 0, "Stop after this wall-clock duration (0 = unlimited)")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Reprocess files even when their content hash is unchanged")
	cmd.Flags().BoolVar(&opts.ocr, "ocr", false, "Enable OCR extraction for image-based documents (no effect with the built-in extractors)")
	cmd.Flags().IntVar(&opts.maxPDFPages, "max-pdf-pages", 0, "Cap extracted PDF pages, 0 = config default (no effect with the built-in extractors)")
	cmd.Flags().Float64Var(&opts.extractTimeout, "extract-timeout", 0, "Per-file extraction timeout in seconds (0 = config default)")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print the run summary as JSON")

	return cmd
}

func runIndex(cmd *cobra.Command, root *rootOptions, opts indexOptions, roots []string) error {
	app, err := openApp(root)
	if err != nil {
		return err
	}
	defer app.Close()

	if cmd.Flags().Changed("ocr") {
		app.cfg.Index.OCREnabled = opts.ocr
	}
	if opts.maxPDFPages > 0 {
		app.cfg.Index.MaxPDFPages = opts.maxPDFPages
	}
	if opts.extractTimeout > 0 {
		app.cfg.Index.FileExtractTimeoutSec = opts.extractTimeout
	}

	out := output.New(cmd.OutOrStdout(),
		output.WithQuiet(root.quiet),
		output.WithJSON(opts.jsonOut))

	mgr, err := frontier.Load(app.cfg.Store.Frontier, app.logger)
	if err != nil {
		return err
	}

	writer, err := store.NewDualWriter(app.catalog, app.lexical, app.vector,
		store.WithUpsertBatch(app.cfg.Index.UpsertBatch),
		store.WithWriterLogger(app.logger))
	if err != nil {
		return err
	}

	runner, err := index.NewRunner(index.Dependencies{
		Config:   app.cfg,
		Writer:   writer,
		Catalog:  app.catalog,
		Embedder: app.embedder,
		Frontier: mgr,
		Logger:   app.logger,
	})
	if err != nil {
		return err
	}

	out.Statusf("🔍", "Indexing %d root(s) with %s embeddings (%d dims)",
		len(roots), app.embedder.ModelName(), app.embedder.Dimensions())

	res, err := runner.Run(cmd.Context(), index.Config{
		Roots:       roots,
		MaxItems:    opts.maxItems,
		MaxDuration: opts.maxDuration,
		Force:       opts.force,
	})
	if err != nil {
		app.logger.Error("index_run_failed", slog.String("error", err.Error()))
		out.Errorf("Indexing failed: %v", err)
		return err
	}

	out.IndexSummary(res)
	return nil
}
