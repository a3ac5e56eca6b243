package cmd

import (
	"github.com/spf13/cobra"

	"github.com/keepmark/recall/internal/output"
)

func newRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <source-id>...",
		Short: "Remove sources from the index",
		Long: `Remove sources and everything indexed for them. Removed sources
never appear in answers again. Removing an unknown source is a no-op.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer engine.Close()

			out := output.New(cmd.OutOrStdout())
			for _, id := range args {
				if err := engine.RemoveSource(cmd.Context(), id); err != nil {
					return err
				}
				out.Successf("removed %s", id)
			}
			return nil
		},
	}
	return cmd
}
