package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Warlord437/Context-Based-File-Search/internal/frontier"
	"github.com/Warlord437/Context-Based-File-Search/internal/output"
)

func newStatusCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show store contents, last runs, and checkpoint state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, root)
		},
	}
}

func runStatus(cmd *cobra.Command, root *rootOptions) error {
	app, err := openApp(root)
	if err != nil {
		return err
	}
	defer app.Close()

	out := output.New(cmd.OutOrStdout(), output.WithQuiet(root.quiet))
	ctx := cmd.Context()

	files, chunks, err := app.catalog.Counts(ctx)
	if err != nil {
		return err
	}
	lexCount, err := app.lexical.Count(ctx)
	if err != nil {
		return err
	}
	version, err := app.catalog.IndexVersion(ctx)
	if err != nil {
		return err
	}

	out.Statusf("📦", "Store: %s", app.cfg.Store.Root)
	out.Field("Files", files)
	out.Field("Chunks", chunks)
	out.Field("Keyword entries", lexCount)
	out.Field("Vectors", app.vector.Count())
	out.Field("Index version", version)
	out.Field("Embedder", fmt.Sprintf("%s (%d dims)", app.embedder.ModelName(), app.embedder.Dimensions()))
	out.Field("Lexical backend", app.cfg.Store.LexicalBackend)

	mgr, err := frontier.Load(app.cfg.Store.Frontier, app.logger)
	if err != nil {
		return err
	}
	out.Newline()
	if mgr.Empty() {
		out.Status("", "No indexing run in progress")
	} else {
		out.Statusf("⏸️ ", "Interrupted run — level %d, %d items processed (rerun 'ctxsearch index' to resume)",
			mgr.Level(), mgr.ProcessedCount())
	}

	if stats, err := app.catalog.LastIndexStats(ctx); err != nil {
		return err
	} else if stats != nil {
		out.Newline()
		out.Statusf("🕒", "Last index run (%s)", stats.Timestamp.Format(time.RFC3339))
		out.Field("Processed", stats.FilesProcessed)
		out.Field("Chunks", stats.ChunksCreated)
		out.Field("Skipped", stats.FilesSkipped)
		out.Field("Errors", stats.Errors)
		out.Field("Duration", fmt.Sprintf("%.1fs", stats.DurationSeconds))
	}

	if stats, err := app.catalog.LastSearchStats(ctx); err != nil {
		return err
	} else if stats != nil {
		out.Newline()
		out.Statusf("🔎", "Last search (%s)", stats.Timestamp.Format(time.RFC3339))
		out.Field("Query", stats.Query)
		out.Field("Results", stats.FinalResults)
		out.Field("Cache hit", stats.CacheHit)
		out.Field("Duration", fmt.Sprintf("%.0fms", stats.DurationSeconds*1000))
	}

	return nil
}
