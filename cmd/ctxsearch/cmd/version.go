package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Warlord437/Context-Based-File-Search/internal/output"
	"github.com/Warlord437/Context-Based-File-Search/pkg/version"
)

func newVersionCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOut {
				return output.New(cmd.OutOrStdout()).JSON(version.GetInfo())
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print build info as JSON")

	return cmd
}
