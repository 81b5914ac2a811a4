package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Dadudekc/swarmmem/internal/query"
)

func newPatternsCmd() *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "patterns <project>",
		Short: "Show what has worked recently in a project",
		Long: `Rank a project's recent activity by recency and success signal,
surfacing the protocols, workflows, and tool usages that worked.`,
		Example: `  swarmmem patterns payments
  swarmmem patterns payments --limit 20 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPatterns(cmd.Context(), cmd, args[0], limit, jsonOutput)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runPatterns(ctx context.Context, cmd *cobra.Command, project string, limit int, jsonOutput bool) error {
	svc, _, cleanup, err := openService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := svc.ProjectPatterns(ctx, project, query.Options{Limit: limit})
	if err != nil {
		return err
	}
	return renderResults(cmd, "", res, jsonOutput)
}
