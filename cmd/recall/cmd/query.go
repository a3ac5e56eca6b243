package cmd

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/keepmark/recall/internal/output"
	"github.com/keepmark/recall/pkg/recall"
)

type queryOptions struct {
	topK   int
	scope  []string
	asJSON bool
}

func newQueryCmd() *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Ask a question about your saved content",
		Long: `Answer a natural-language question from the indexed corpus.

The answer cites the sources it draws on and carries a confidence
score. When no saved content is relevant, the result says so instead
of inventing an answer.

Examples:
  recall query "what did I save about goroutine pools?"
  recall query "espresso brewing" --scope bm-12 --scope bm-30
  recall query "kubernetes operators" --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.topK, "top-k", "n", 0, "Maximum sources to draw on (default from config)")
	cmd.Flags().StringSliceVarP(&opts.scope, "scope", "s", nil, "Restrict to these source IDs (repeatable)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Output the full result as JSON")

	return cmd
}

func runQuery(ctx context.Context, cmd *cobra.Command, question string, opts queryOptions) error {
	engine, _, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	result, err := engine.Query(ctx, question, recall.QueryOptions{
		Scope: opts.scope,
		TopK:  opts.topK,
	})
	if err != nil {
		return err
	}

	if opts.asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	output.New(cmd.OutOrStdout()).Answer(result)
	return nil
}
