// Package cmd provides the CLI commands for ctxsearch.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Warlord437/Context-Based-File-Search/pkg/version"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	storeDir   string
	logLevel   string
	verbose    bool
	quiet      bool
}

// NewRootCmd creates the root command for the ctxsearch CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "ctxsearch",
		Short: "Checkpointable local file indexer with hybrid search",
		Long: `ctxsearch indexes directory trees into a local store and answers
queries with hybrid retrieval: BM25 keyword matching fused with
embedding similarity, plus exact-match and early-position boosts.

Indexing runs are checkpointed breadth-first walks: interrupt one
with Ctrl-C or --max-items and the next run resumes where it left.

Typical use:
  ctxsearch index ~/notes ~/projects/docs
  ctxsearch search "connection pool timeout"`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("ctxsearch version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a ctxsearch.yaml config file")
	cmd.PersistentFlags().StringVar(&opts.storeDir, "store-dir", "", "Directory for all persisted state (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Debug logging to stderr")
	cmd.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "Suppress status output (errors still print)")

	cmd.AddCommand(newInitCmd(opts))
	cmd.AddCommand(newIndexCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newResetCmd(opts))
	cmd.AddCommand(newBenchCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
