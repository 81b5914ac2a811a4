package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Dadudekc/swarmmem/internal/query"
)

func newExpertiseCmd() *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "expertise <agent-id>",
		Short: "Show what an agent has done well recently",
		Long: `Rank an agent's recent activity by recency and success signal.
Fresh successful work scores highest; old or failed work decays.`,
		Example: `  swarmmem expertise agent-1
  swarmmem expertise agent-1 --limit 20 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExpertise(cmd.Context(), cmd, args[0], limit, jsonOutput)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runExpertise(ctx context.Context, cmd *cobra.Command, agentID string, limit int, jsonOutput bool) error {
	svc, _, cleanup, err := openService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := svc.Expertise(ctx, agentID, query.Options{Limit: limit})
	if err != nil {
		return err
	}
	return renderResults(cmd, "", res, jsonOutput)
}
