package cmd

import (
	"github.com/spf13/cobra"

	"github.com/keepmark/recall/internal/output"
)

func newRetryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Re-embed failed chunks of partially indexed sources",
		Long: `Run a retry pass over every partially indexed source.

Only the chunks that failed on a previous run are re-embedded; chunks
that already have embeddings are left alone. Sources whose failures
all heal become fully indexed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, _, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer engine.Close()

			healed, err := engine.RetryPartials(cmd.Context())
			out := output.New(cmd.OutOrStdout())
			if err != nil {
				if healed > 0 {
					out.Warningf("healed %d source(s) before the pass stopped", healed)
				}
				return err
			}
			out.Successf("retry pass complete: %d source(s) fully indexed", healed)
			return nil
		},
	}
	return cmd
}
