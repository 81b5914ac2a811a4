package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Dadudekc/swarmmem/internal/ingest"
	"github.com/Dadudekc/swarmmem/internal/store"
	"github.com/Dadudekc/swarmmem/internal/ui"
)

// recordOptions holds CLI flags for record.
type recordOptions struct {
	project   string
	agentID   string
	title     string
	tags      []string
	meta      []string
	fields    []string
	payload   string
	ingestKey string
	timestamp string
}

func newRecordCmd() *cobra.Command {
	var opts recordOptions

	cmd := &cobra.Command{
		Use:   "record <kind>",
		Short: "Record an agent activity document",
		Long: `Record one activity document into the memory store.

Kinds: action, protocol, workflow, performance, conversation,
coordination, tool. Each kind has required payload fields; pass them
with repeated --field key=value flags, or as a JSON object via
--payload for nested values (lists, maps, numbers).`,
		Example: `  swarmmem record action --field tool=git --field outcome=success \
    --project core --agent agent-1

  swarmmem record protocol --payload '{"steps":["claim","verify"],"effectiveness":0.8}'

  # Idempotent delivery from an event bus:
  swarmmem record action --field tool=deploy --field outcome=success \
    --ingest-key evt-5150`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(cmd.Context(), cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.project, "project", "p", "", "Project the activity belongs to")
	cmd.Flags().StringVarP(&opts.agentID, "agent", "a", "", "Agent that produced the activity")
	cmd.Flags().StringVar(&opts.title, "title", "", "Short title (derived from the payload when omitted)")
	cmd.Flags().StringSliceVar(&opts.tags, "tag", nil, "Tag (repeatable)")
	cmd.Flags().StringSliceVar(&opts.meta, "meta", nil, "Metadata key=value (repeatable)")
	cmd.Flags().StringSliceVarP(&opts.fields, "field", "f", nil, "Payload field key=value (repeatable)")
	cmd.Flags().StringVar(&opts.payload, "payload", "", "Payload as a JSON object (merged over --field)")
	cmd.Flags().StringVar(&opts.ingestKey, "ingest-key", "", "Idempotency key for at-least-once delivery")
	cmd.Flags().StringVar(&opts.timestamp, "timestamp", "", "Event time as RFC3339 (default now)")

	return cmd
}

func runRecord(ctx context.Context, cmd *cobra.Command, kind string, opts recordOptions) error {
	payload, err := buildPayload(opts.fields, opts.payload)
	if err != nil {
		return err
	}
	meta, err := parseKeyValues(opts.meta)
	if err != nil {
		return err
	}
	ts, err := parseTimeFlag(opts.timestamp)
	if err != nil {
		return err
	}

	svc, _, cleanup, err := openService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := svc.Record(ctx, ingest.Input{
		Kind:      kind,
		Project:   opts.project,
		AgentID:   opts.agentID,
		Timestamp: ts,
		Title:     opts.title,
		Tags:      opts.tags,
		Meta:      meta,
		Payload:   payload,
		IngestKey: opts.ingestKey,
	})
	if err != nil {
		return err
	}

	out := ui.NewWriter(cmd.OutOrStdout(), outputNoColor(cmd))
	if res.Deduplicated {
		out.Plainf("already recorded as %s", res.DocID)
		return nil
	}
	out.Successf("recorded %s", res.DocID)
	switch res.EmbedState {
	case store.EmbedStatePending:
		out.Warning("embedding deferred, will backfill when the backend recovers")
	case store.EmbedStateFailed:
		out.Warning("embedding failed permanently, document remains keyword-searchable")
	}
	return nil
}

// buildPayload merges --field pairs with an optional --payload JSON object.
// JSON values win on key collisions.
func buildPayload(fields []string, payloadJSON string) (map[string]any, error) {
	payload := make(map[string]any)
	pairs, err := parseKeyValues(fields)
	if err != nil {
		return nil, err
	}
	for k, v := range pairs {
		payload[k] = v
	}

	if payloadJSON != "" {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(payloadJSON), &parsed); err != nil {
			return nil, fmt.Errorf("invalid --payload JSON: %w", err)
		}
		for k, v := range parsed {
			payload[k] = v
		}
	}
	return payload, nil
}

// parseKeyValues parses repeated key=value flags.
func parseKeyValues(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid key=value pair %q", pair)
		}
		out[key] = value
	}
	return out, nil
}
