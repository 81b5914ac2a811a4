package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Dadudekc/swarmmem/internal/service"
	"github.com/Dadudekc/swarmmem/internal/store"
	"github.com/Dadudekc/swarmmem/internal/ui"
)

func newCleanupCmd() *cobra.Command {
	var project string
	var maxAgeDays int
	var maxCount int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove documents past the retention thresholds",
		Long: `Remove documents older than the configured max age, then evict the
oldest documents beyond the configured max count. Deleting a document
removes its embeddings, keyword index entries, and ingest keys.

Thresholds come from the retention section of the configuration;
--max-age-days and --max-count override them for this run. A zero
threshold disables that pruning axis.`,
		Example: `  swarmmem cleanup
  swarmmem cleanup --max-age-days 90
  swarmmem cleanup --project scratch --max-count 1000`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCleanup(cmd.Context(), cmd, project, maxAgeDays, maxCount)
		},
	}

	cmd.Flags().StringVarP(&project, "project", "p", "", "Limit cleanup to one project")
	cmd.Flags().IntVar(&maxAgeDays, "max-age-days", -1, "Override retention max age in days")
	cmd.Flags().IntVar(&maxCount, "max-count", -1, "Override retention max document count")

	return cmd
}

func runCleanup(ctx context.Context, cmd *cobra.Command, project string, maxAgeDays, maxCount int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if maxAgeDays >= 0 {
		cfg.Retention.MaxAgeDays = maxAgeDays
	}
	if maxCount >= 0 {
		cfg.Retention.MaxCount = maxCount
	}
	if cfg.Retention.MaxAgeDays == 0 && cfg.Retention.MaxCount == 0 {
		return fmt.Errorf("no retention thresholds configured; set retention in config or pass --max-age-days/--max-count")
	}

	logger, logCleanup := newCLILogger(cfg)
	defer logCleanup()
	svc, err := service.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = svc.Close() }()

	removed, err := svc.Cleanup(ctx, store.Scope{Project: project})
	if err != nil {
		return err
	}

	out := ui.NewWriter(cmd.OutOrStdout(), outputNoColor(cmd))
	if removed == 0 {
		out.Plain("nothing to remove")
		return nil
	}
	out.Successf("removed %d document(s)", removed)
	return nil
}
