package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Warlord437/Context-Based-File-Search/configs"
	"github.com/Warlord437/Context-Based-File-Search/internal/output"
)

func newInitCmd(root *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write an annotated ctxsearch.yaml to the current directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, root, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing ctxsearch.yaml")

	return cmd
}

func runInit(cmd *cobra.Command, root *rootOptions, force bool) error {
	out := output.New(cmd.OutOrStdout(), output.WithQuiet(root.quiet))

	const path = "ctxsearch.yaml"
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists; rerun with --force to overwrite", path)
	}

	if err := os.WriteFile(path, []byte(configs.ConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	out.Successf("Wrote %s — edit it and run 'ctxsearch index <root>'", path)
	return nil
}
