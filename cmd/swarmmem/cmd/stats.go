package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Dadudekc/swarmmem/internal/store"
	"github.com/Dadudekc/swarmmem/internal/ui"
)

func newStatsCmd() *cobra.Command {
	var project string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show corpus statistics",
		Long: `Show document counts by kind, agent, and project, plus the
embedding backlog (pending and failed documents).`,
		Example: `  swarmmem stats
  swarmmem stats --project payments --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd.Context(), cmd, project, jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&project, "project", "p", "", "Limit stats to one project")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStats(ctx context.Context, cmd *cobra.Command, project string, jsonOutput bool) error {
	svc, _, cleanup, err := openService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	stats, err := svc.Stats(ctx, store.Scope{Project: project})
	if err != nil {
		return err
	}

	view := ui.StatsView{
		Scope:          project,
		TotalDocuments: stats.TotalDocuments,
		ByKind:         make(map[string]int, len(stats.ByKind)),
		ByAgent:        make(map[string]int, len(stats.ByAgent)),
		ByProject:      make(map[string]int, len(stats.ByProject)),
		Pending:        stats.Pending,
		Failed:         stats.Failed,
	}
	for _, kc := range stats.ByKind {
		view.ByKind[string(kc.Kind)] = kc.Count
	}
	for _, nc := range stats.ByAgent {
		view.ByAgent[nc.Name] = nc.Count
	}
	for _, nc := range stats.ByProject {
		view.ByProject[nc.Name] = nc.Count
	}

	r := ui.NewRenderer(cmd.OutOrStdout(), outputNoColor(cmd))
	if jsonOutput {
		return r.JSON(view)
	}
	return r.Stats(view)
}
