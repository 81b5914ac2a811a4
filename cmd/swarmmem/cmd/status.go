package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Dadudekc/swarmmem/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show embedding backend health and coverage",
		Long: `Show every embedding backend with vectors in the store: whether
it is reachable, how much of the eligible corpus it covers, and the
pending/failed backfill backlog for the default backend.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	svc, _, cleanup, err := openService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	statuses, err := svc.BackendStatuses(ctx)
	if err != nil {
		return err
	}

	views := make([]ui.BackendView, 0, len(statuses))
	for _, st := range statuses {
		views = append(views, ui.BackendView{
			BackendID:   st.BackendID,
			Default:     st.Default,
			Available:   st.Available,
			Embedded:    st.Coverage.Embedded,
			Total:       st.Coverage.Total,
			Coverage:    st.Coverage.Ratio(),
			PendingDocs: st.PendingDocs,
			FailedDocs:  st.FailedDocs,
		})
	}

	r := ui.NewRenderer(cmd.OutOrStdout(), outputNoColor(cmd))
	if jsonOutput {
		return r.JSON(views)
	}
	return r.Backends(views)
}
