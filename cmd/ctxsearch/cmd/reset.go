package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Warlord437/Context-Based-File-Search/internal/output"
)

func newResetCmd(root *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the catalog, indexes, and checkpoint",
		Long: `Reset removes all persisted state: the SQLite catalog, the keyword
index, the vector index, the walk checkpoint, and logs. The next
'ctxsearch index' starts from scratch.

Requires --force to confirm.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(cmd, root, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Confirm deletion of all indexed state")

	return cmd
}

func runReset(cmd *cobra.Command, root *rootOptions, force bool) error {
	if !force {
		return fmt.Errorf("reset deletes all indexed state; rerun with --force to confirm")
	}

	// Stores are deliberately not opened here: deleting files out from
	// under live handles invites corruption on some platforms.
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout(), output.WithQuiet(root.quiet))

	targets := []string{
		cfg.Store.Catalog,
		cfg.Store.Catalog + "-wal",
		cfg.Store.Catalog + "-shm",
		cfg.Store.Frontier,
		cfg.Store.Vectors,
		cfg.Store.Vectors + ".meta",
		cfg.Store.Lexical,
		filepath.Join(cfg.Store.Root, ".index.lock"),
		filepath.Join(cfg.Store.Root, "logs"),
	}

	var removed int
	for _, target := range targets {
		if target == "" {
			continue
		}
		if _, err := os.Stat(target); os.IsNotExist(err) {
			continue
		}
		if err := os.RemoveAll(target); err != nil {
			return fmt.Errorf("remove %s: %w", target, err)
		}
		removed++
	}

	if removed == 0 {
		out.Status("", "Nothing to reset — store is already empty")
		return nil
	}
	out.Successf("Reset complete — removed %d store artifact(s) under %s", removed, cfg.Store.Root)
	return nil
}
