package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Dadudekc/swarmmem/internal/embed"
	"github.com/Dadudekc/swarmmem/internal/ui"
)

// reembedOptions holds CLI flags for reembed.
type reembedOptions struct {
	provider   string
	model      string
	host       string
	dimensions int
}

func newReembedCmd() *cobra.Command {
	var opts reembedOptions

	cmd := &cobra.Command{
		Use:   "reembed",
		Short: "Embed the corpus under an additional backend",
		Long: `Embed every document that lacks a vector under the target backend,
without touching existing embeddings or each document's embedding
state. Use this to migrate to a new model: run reembed, verify
coverage with 'swarmmem status', then switch the default provider in
the configuration.

The target backend defaults to the configured provider; --provider,
--model, and --host select a different one.`,
		Example: `  # Populate vectors for a new Ollama model alongside the old ones:
  swarmmem reembed --provider ollama --model mxbai-embed-large

  # Backfill the offline static backend for air-gapped search:
  swarmmem reembed --provider static`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReembed(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.provider, "provider", "", "Target provider: static or ollama (default from config)")
	cmd.Flags().StringVar(&opts.model, "model", "", "Target model for remote providers")
	cmd.Flags().StringVar(&opts.host, "host", "", "Ollama host for the target backend")
	cmd.Flags().IntVar(&opts.dimensions, "dimensions", 0, "Pin the target embedding dimension")

	return cmd
}

func runReembed(ctx context.Context, cmd *cobra.Command, opts reembedOptions) error {
	svc, cfg, cleanup, err := openService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	embCfg := cfg.Embeddings
	if opts.provider != "" {
		embCfg.Provider = opts.provider
	}
	if opts.model != "" {
		embCfg.Model = opts.model
	}
	if opts.host != "" {
		embCfg.OllamaHost = opts.host
	}
	if opts.dimensions > 0 {
		embCfg.Dimensions = opts.dimensions
	}

	target, err := embed.NewEmbedder(ctx, embCfg)
	if err != nil {
		return err
	}
	defer func() { _ = target.Close() }()

	out := ui.NewWriter(cmd.OutOrStdout(), outputNoColor(cmd))
	if !target.Available(ctx) {
		return fmt.Errorf("target backend %s is unreachable", target.BackendID())
	}

	embedded, err := svc.Reembed(ctx, target)
	if err != nil {
		return err
	}
	if embedded == 0 {
		out.Plainf("backend %s already covers the corpus", target.BackendID())
		return nil
	}
	out.Successf("embedded %d document(s) under %s", embedded, target.BackendID())
	return nil
}
