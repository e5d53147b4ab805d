package cmd

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Warlord437/Context-Based-File-Search/internal/output"
	"github.com/Warlord437/Context-Based-File-Search/internal/search"
)

// benchOptions holds CLI flags for bench.
type benchOptions struct {
	queryFile string
	runs      int
	perPage   int
}

func newBenchCmd(root *rootOptions) *cobra.Command {
	var opts benchOptions

	cmd := &cobra.Command{
		Use:   "bench [query...]",
		Short: "Measure search latency over a query set",
		Long: `Bench runs each query repeatedly against the live engine and reports
latency percentiles. Every execution appends a row to the search
statistics table, so results stay inspectable after the run.

The result cache is disabled so every run measures full retrieval.

Examples:
  ctxsearch bench "error handling" "connection pool"
  ctxsearch bench --file queries.txt --runs 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			queries, err := benchQueries(args, opts.queryFile)
			if err != nil {
				return err
			}
			return runBench(cmd, root, opts, queries)
		},
	}

	cmd.Flags().StringVar(&opts.queryFile, "file", "", "File with one query per line")
	cmd.Flags().IntVar(&opts.runs, "runs", 3, "Executions per query")
	cmd.Flags().IntVar(&opts.perPage, "per-page", 10, "Results per query")

	return cmd
}

// benchQueries merges positional queries with the optional query file.
func benchQueries(args []string, path string) ([]string, error) {
	queries := append([]string{}, args...)

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open query file: %w", err)
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			queries = append(queries, line)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read query file: %w", err)
		}
	}

	if len(queries) == 0 {
		return nil, fmt.Errorf("no queries given: pass them as arguments or via --file")
	}
	return queries, nil
}

func runBench(cmd *cobra.Command, root *rootOptions, opts benchOptions, queries []string) error {
	app, err := openApp(root)
	if err != nil {
		return err
	}
	defer app.Close()

	out := output.New(cmd.OutOrStdout(), output.WithQuiet(root.quiet))

	engine, err := search.NewEngine(app.catalog, app.lexical, app.vector,
		app.embedder, app.cfg.Search, search.WithLogger(app.logger))
	if err != nil {
		return err
	}

	runs := opts.runs
	if runs < 1 {
		runs = 1
	}

	out.Statusf("⏱️ ", "Benchmarking %d query(ies) × %d run(s)", len(queries), runs)

	var all []time.Duration
	for _, query := range queries {
		var durations []time.Duration
		var hits int
		for i := 0; i < runs; i++ {
			res, err := engine.Search(cmd.Context(), query, search.Options{
				Page:    1,
				PerPage: opts.perPage,
			})
			if err != nil {
				return fmt.Errorf("bench query %q: %w", query, err)
			}
			durations = append(durations, res.Duration)
			hits = res.TotalHits
		}
		all = append(all, durations...)
		out.Statusf("", "%-40q %d hits, p50 %s, max %s",
			query, hits, percentile(durations, 50), percentile(durations, 100))
	}

	out.Newline()
	out.Field("Total runs", len(all))
	out.Field("p50", percentile(all, 50))
	out.Field("p95", percentile(all, 95))
	out.Field("p99", percentile(all, 99))
	out.Field("max", percentile(all, 100))
	return nil
}

// percentile returns the pct-th percentile (nearest-rank) of durations.
func percentile(durations []time.Duration, pct int) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	sorted := append([]time.Duration{}, durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	rank := (pct*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1].Round(10 * time.Microsecond)
}
