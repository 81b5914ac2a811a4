package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Dadudekc/swarmmem/internal/query"
)

func newSimilarCmd() *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "similar <doc-id>",
		Short: "Find documents similar to a reference document",
		Long: `Rank documents nearest to a reference document's embedding,
excluding the reference itself. Scoring uses whichever backend
produced the reference's most recent embedding.`,
		Example: `  swarmmem similar 4f7c9a12-...
  swarmmem similar 4f7c9a12-... --limit 5 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimilar(cmd.Context(), cmd, args[0], limit, jsonOutput)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runSimilar(ctx context.Context, cmd *cobra.Command, docID string, limit int, jsonOutput bool) error {
	svc, _, cleanup, err := openService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := svc.FindSimilar(ctx, docID, query.Options{Limit: limit})
	if err != nil {
		return err
	}
	return renderResults(cmd, "", res, jsonOutput)
}
