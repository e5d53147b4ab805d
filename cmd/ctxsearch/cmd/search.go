package cmd

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Warlord437/Context-Based-File-Search/internal/output"
	"github.com/Warlord437/Context-Based-File-Search/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	page          int
	perPage       int
	caseSensitive bool
	exactOnly     bool
	showContext   bool
	jsonOut       bool
	maxPerFile    int
}

func newSearchCmd(root *rootOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed corpus",
		Long: `Search runs the query against both retrieval paths in parallel:
BM25 keyword matching and embedding similarity. Candidates are fused
with exact-match and early-position boosts, deduplicated to the best
chunk per file, and paginated.

Examples:
  ctxsearch search "connection pool timeout"
  ctxsearch search "retry backoff" --page 2 --per-page 5
  ctxsearch search "ServeHTTP" --exact --case-sensitive
  ctxsearch search "rate limiting" --context --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd, root, opts, query)
		},
	}

	cmd.Flags().IntVar(&opts.page, "page", 1, "Result page (1-based)")
	cmd.Flags().IntVarP(&opts.perPage, "per-page", "n", 10, "Results per page")
	cmd.Flags().BoolVar(&opts.caseSensitive, "case-sensitive", false, "Match exact-phrase and snippet position case-sensitively")
	cmd.Flags().BoolVar(&opts.exactOnly, "exact", false, "Keep only results containing the literal query")
	cmd.Flags().BoolVar(&opts.showContext, "context", false, "Highlight query words in snippets")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print the result page as JSON")
	cmd.Flags().IntVar(&opts.maxPerFile, "max-per-file", 0, "Hits kept per file (0 = config default)")

	return cmd
}

func runSearch(cmd *cobra.Command, root *rootOptions, opts searchOptions, query string) error {
	app, err := openApp(root)
	if err != nil {
		return err
	}
	defer app.Close()

	out := output.New(cmd.OutOrStdout(),
		output.WithQuiet(root.quiet),
		output.WithJSON(opts.jsonOut))

	engineOpts := []search.EngineOption{search.WithLogger(app.logger)}
	if app.cfg.Search.CacheSize > 0 {
		cache, err := search.NewResultCache(app.cfg.Search.CacheSize,
			time.Duration(app.cfg.Search.CacheTTLSec)*time.Second)
		if err != nil {
			return err
		}
		engineOpts = append(engineOpts, search.WithCache(cache))
	}

	engine, err := search.NewEngine(app.catalog, app.lexical, app.vector,
		app.embedder, app.cfg.Search, engineOpts...)
	if err != nil {
		return err
	}

	res, err := engine.Search(cmd.Context(), query, search.Options{
		Page:    opts.page,
		PerPage: opts.perPage,
		Flags: search.Flags{
			CaseSensitive: opts.caseSensitive,
			ExactOnly:     opts.exactOnly,
			ShowContext:   opts.showContext,
		},
		MaxResultsPerFile: opts.maxPerFile,
	})
	if err != nil {
		out.Errorf("Search failed: %v", err)
		return err
	}

	out.SearchResults(res)
	return nil
}
