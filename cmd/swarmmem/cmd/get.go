package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Dadudekc/swarmmem/internal/ui"
)

func newGetCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "get <doc-id>",
		Short: "Show one document in full",
		Example: `  swarmmem get 4f7c9a12-...
  swarmmem get 4f7c9a12-... --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd.Context(), cmd, args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runGet(ctx context.Context, cmd *cobra.Command, docID string, jsonOutput bool) error {
	svc, _, cleanup, err := openService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	doc, err := svc.GetDocument(ctx, docID)
	if err != nil {
		return err
	}

	view := ui.DocumentView{
		DocID:      doc.ID,
		Kind:       string(doc.Kind),
		Project:    doc.Project,
		AgentID:    doc.AgentID,
		Timestamp:  doc.Timestamp,
		Title:      doc.Title,
		Summary:    doc.Summary,
		Tags:       doc.Tags,
		Meta:       doc.Meta,
		EmbedState: string(doc.EmbedState),
		Canonical:  doc.Canonical,
	}

	r := ui.NewRenderer(cmd.OutOrStdout(), outputNoColor(cmd))
	if jsonOutput {
		return r.JSON(view)
	}
	return r.Document(view)
}
