// Package cmd provides the CLI commands for swarmmem.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Dadudekc/swarmmem/internal/config"
	"github.com/Dadudekc/swarmmem/internal/logging"
	"github.com/Dadudekc/swarmmem/internal/query"
	"github.com/Dadudekc/swarmmem/internal/service"
	"github.com/Dadudekc/swarmmem/internal/ui"
	"github.com/Dadudekc/swarmmem/pkg/version"
)

// Global flags shared by all subcommands.
var (
	dataDir string
	noColor bool
	debug   bool
)

// NewRootCmd creates the root command for the swarmmem CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "swarmmem",
		Short: "Local vectorized memory store for agent swarms",
		Long: `Swarmmem records agent activity (actions, protocols, workflows,
performance snapshots, conversations, coordination events, and tool
patterns) into a local SQLite store, embeds it for semantic search,
and serves it to AI clients over MCP.

All data stays on this machine. Run 'swarmmem serve' to expose the
store to an MCP client, or use the subcommands directly.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.SetVersionTemplate("swarmmem version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Store directory (default ~/.swarmmem)")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging to ~/.swarmmem/logs/")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newRecordCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newSimilarCmd())
	cmd.AddCommand(newExpertiseCmd())
	cmd.AddCommand(newPatternsCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newCleanupCmd())
	cmd.AddCommand(newReembedCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		ui.NewWriter(os.Stderr, ui.DetectNoColor(os.Stderr)).Error(err.Error())
		return err
	}
	return nil
}

// loadConfig resolves the effective configuration, honoring --data-dir.
func loadConfig() (*config.Config, error) {
	root := "."
	if dataDir != "" {
		root = filepath.Dir(dataDir)
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.Paths.DataDir = dataDir
	}
	return cfg, nil
}

// newCLILogger builds a file-backed logger so CLI stdout stays clean.
// Falls back to a stderr logger when the log directory is unusable.
func newCLILogger(cfg *config.Config) (*slog.Logger, func()) {
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Server.LogLevel
	logCfg.WriteToStderr = false
	if debug {
		logCfg.Level = "debug"
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logging.LevelFromString(logCfg.Level),
		})), func() {}
	}
	return logger, cleanup
}

// openService loads config and opens the memory service for a CLI command.
// The returned cleanup closes the service and the log file.
func openService(ctx context.Context) (*service.Service, *config.Config, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	logger, logCleanup := newCLILogger(cfg)
	svc, err := service.New(ctx, cfg, logger)
	if err != nil {
		logCleanup()
		return nil, nil, nil, fmt.Errorf("failed to open store: %w", err)
	}

	cleanup := func() {
		_ = svc.Close()
		logCleanup()
	}
	return svc, cfg, cleanup, nil
}

// resultListView converts a ranked result for rendering.
func resultListView(queryText string, res *query.Result) ui.ResultListView {
	view := ui.ResultListView{
		Query:           queryText,
		Results:         make([]ui.ResultView, 0, len(res.Hits)),
		PartialIndex:    res.PartialIndex,
		KeywordFallback: res.KeywordFallback,
	}
	for _, hit := range res.Hits {
		view.Results = append(view.Results, ui.ResultView{
			DocID:     hit.Doc.ID,
			Score:     hit.Score,
			Kind:      string(hit.Doc.Kind),
			Project:   hit.Doc.Project,
			AgentID:   hit.Doc.AgentID,
			Timestamp: hit.Doc.Timestamp,
			Title:     hit.Doc.Title,
			Summary:   hit.Doc.Summary,
		})
	}
	return view
}

// renderResults writes a ranked result in the requested format.
func renderResults(cmd *cobra.Command, queryText string, res *query.Result, jsonOutput bool) error {
	r := ui.NewRenderer(cmd.OutOrStdout(), outputNoColor(cmd))
	view := resultListView(queryText, res)
	if jsonOutput {
		return r.JSON(view)
	}
	return r.Results(view)
}

// outputNoColor decides whether color should be suppressed for cmd's output.
func outputNoColor(cmd *cobra.Command) bool {
	return noColor || ui.DetectNoColor(cmd.OutOrStdout())
}

// parseTimeFlag parses an optional RFC3339 timestamp flag.
func parseTimeFlag(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q (expected RFC3339)", value)
	}
	return t, nil
}
