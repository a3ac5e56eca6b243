package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/keepmark/recall/internal/output"
)

func newSourcesCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List indexed sources and their status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, _, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer engine.Close()

			metas, err := engine.Sources(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(metas)
			}

			output.New(cmd.OutOrStdout()).Sources(metas)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
