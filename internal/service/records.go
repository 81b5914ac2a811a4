package service

import (
	"context"
	"time"

	"github.com/Dadudekc/swarmmem/internal/canon"
	"github.com/Dadudekc/swarmmem/internal/ingest"
)

// RecordMeta carries the kind-agnostic fields shared by the typed Record
// helpers.
type RecordMeta struct {
	Project   string
	AgentID   string
	Timestamp time.Time
	Title     string
	Tags      []string
	Meta      map[string]string
	IngestKey string
}

func (m RecordMeta) input(kind canon.Kind, payload map[string]any) ingest.Input {
	return ingest.Input{
		Kind:      string(kind),
		Project:   m.Project,
		AgentID:   m.AgentID,
		Timestamp: m.Timestamp,
		Title:     m.Title,
		Tags:      m.Tags,
		Meta:      m.Meta,
		Payload:   payload,
		IngestKey: m.IngestKey,
	}
}

// RecordAction ingests a single tool invocation.
func (s *Service) RecordAction(ctx context.Context, meta RecordMeta, a canon.ActionLens) (*ingest.Result, error) {
	return s.Record(ctx, meta.input(canon.KindAction, map[string]any{
		"tool":        a.Tool,
		"outcome":     a.Outcome,
		"context":     a.Context,
		"duration_ms": a.DurationMS,
	}))
}

// RecordProtocol ingests an observed agent protocol.
func (s *Service) RecordProtocol(ctx context.Context, meta RecordMeta, p canon.ProtocolLens) (*ingest.Result, error) {
	return s.Record(ctx, meta.input(canon.KindProtocol, map[string]any{
		"steps":         p.Steps,
		"effectiveness": p.Effectiveness,
		"improvements":  p.Improvements,
		"adaptations":   p.Adaptations,
	}))
}

// RecordWorkflow ingests a multi-step execution pattern.
func (s *Service) RecordWorkflow(ctx context.Context, meta RecordMeta, w canon.WorkflowLens) (*ingest.Result, error) {
	return s.Record(ctx, meta.input(canon.KindWorkflow, map[string]any{
		"pattern":       w.Pattern,
		"coordination":  w.Coordination,
		"outcomes":      w.Outcomes,
		"optimizations": w.Optimizations,
	}))
}

// RecordPerformance ingests a performance snapshot.
func (s *Service) RecordPerformance(ctx context.Context, meta RecordMeta, p canon.PerformanceLens) (*ingest.Result, error) {
	return s.Record(ctx, meta.input(canon.KindPerformance, map[string]any{
		"metrics":       p.Metrics,
		"anomalies":     p.Anomalies,
		"optimizations": p.Optimizations,
		"trend":         p.Trend,
	}))
}

// RecordConversation ingests one chat message.
func (s *Service) RecordConversation(ctx context.Context, meta RecordMeta, c canon.ConversationLens) (*ingest.Result, error) {
	return s.Record(ctx, meta.input(canon.KindConversation, map[string]any{
		"channel":   c.Channel,
		"thread_id": c.ThreadID,
		"role":      c.Role,
		"content":   c.Content,
	}))
}

// RecordCoordination ingests a multi-agent coordination event.
func (s *Service) RecordCoordination(ctx context.Context, meta RecordMeta, c canon.CoordinationLens) (*ingest.Result, error) {
	return s.Record(ctx, meta.input(canon.KindCoordination, map[string]any{
		"type":          c.Type,
		"participants":  c.Participants,
		"payload":       c.Payload,
		"effectiveness": c.Effectiveness,
	}))
}

// RecordToolPattern ingests an observed tool-usage pattern.
func (s *Service) RecordToolPattern(ctx context.Context, meta RecordMeta, t canon.ToolLens) (*ingest.Result, error) {
	return s.Record(ctx, meta.input(canon.KindTool, map[string]any{
		"pattern":       t.Pattern,
		"success_rate":  t.SuccessRate,
		"failure_modes": t.FailureModes,
		"optimizations": t.Optimizations,
	}))
}
