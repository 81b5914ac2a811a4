package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Dadudekc/swarmmem/internal/logging"
	mcpserver "github.com/Dadudekc/swarmmem/internal/mcp"
	"github.com/Dadudekc/swarmmem/internal/service"
)

func newServeCmd() *cobra.Command {
	var transport string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Long: `Run the swarmmem MCP server over stdio.

The server exposes the memory tools (memory_record, memory_search,
memory_similar, memory_expertise, memory_patterns, memory_get,
memory_stats, memory_status) to MCP clients. Logs go to
~/.swarmmem/logs/ because stdout carries the protocol stream.`,
		Example: `  # In an MCP client configuration:
  swarmmem serve

  # With an explicit store directory:
  swarmmem serve --data-dir /var/lib/swarmmem`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), transport)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "MCP transport (stdio)")

	return cmd
}

func runServe(ctx context.Context, transport string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// stdout is the protocol stream, so logging must never touch it.
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Server.LogLevel
	logCfg.WriteToStderr = false
	if debug {
		logCfg.Level = "debug"
	}
	logger, logCleanup, err := logging.Setup(logCfg)
	if err != nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
		logCleanup = func() {}
	}
	defer logCleanup()

	svc, err := service.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = svc.Close() }()

	srv, err := mcpserver.NewServer(svc, cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if transport == "" {
		transport = cfg.Server.Transport
	}
	return srv.Serve(ctx, transport)
}
