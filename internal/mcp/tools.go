package mcp

import (
	"context"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Dadudekc/swarmmem/internal/canon"
	"github.com/Dadudekc/swarmmem/internal/ingest"
	"github.com/Dadudekc/swarmmem/internal/query"
	"github.com/Dadudekc/swarmmem/internal/store"
)

const (
	defaultToolLimit = 10
	maxToolLimit     = 50
)

// RecordInput defines the input schema for the memory_record tool.
type RecordInput struct {
	Kind      string            `json:"kind" jsonschema:"document kind: action, protocol, workflow, performance, conversation, coordination, or tool"`
	Project   string            `json:"project,omitempty" jsonschema:"project the activity belongs to"`
	AgentID   string            `json:"agent_id,omitempty" jsonschema:"agent that produced the activity"`
	Title     string            `json:"title,omitempty" jsonschema:"short human title, derived from the payload when omitted"`
	Tags      []string          `json:"tags,omitempty" jsonschema:"free-form tags"`
	Meta      map[string]string `json:"meta,omitempty" jsonschema:"additional metadata key-value pairs"`
	Payload   map[string]any    `json:"payload" jsonschema:"kind-specific fields, e.g. tool and outcome for an action"`
	IngestKey string            `json:"ingest_key,omitempty" jsonschema:"idempotency key; retried calls with the same key return the original document"`
	Timestamp string            `json:"timestamp,omitempty" jsonschema:"RFC3339 event time, defaults to now"`
}

// RecordOutput defines the output schema for the memory_record tool.
type RecordOutput struct {
	DocID        string `json:"doc_id" jsonschema:"assigned document id"`
	Deduplicated bool   `json:"deduplicated" jsonschema:"true when the ingest key matched an existing document"`
	EmbedState   string `json:"embed_state" jsonschema:"embedding sub-state: attached, pending, or failed"`
}

// SearchInput defines the input schema for the memory_search tool.
type SearchInput struct {
	Query     string   `json:"query" jsonschema:"the search text"`
	Limit     int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	Project   string   `json:"project,omitempty" jsonschema:"restrict to one project"`
	AgentID   string   `json:"agent_id,omitempty" jsonschema:"restrict to one agent"`
	Kinds     []string `json:"kinds,omitempty" jsonschema:"restrict to these document kinds"`
	BackendID string   `json:"backend_id,omitempty" jsonschema:"embedding backend corpus to score against, default backend when omitted"`
}

// ResultOutput is one ranked document in a query response.
type ResultOutput struct {
	DocID     string  `json:"doc_id"`
	Score     float64 `json:"score" jsonschema:"relevance score, higher is better"`
	Kind      string  `json:"kind"`
	Project   string  `json:"project,omitempty"`
	AgentID   string  `json:"agent_id,omitempty"`
	Timestamp string  `json:"timestamp"`
	Title     string  `json:"title,omitempty"`
	Summary   string  `json:"summary"`
}

// QueryOutput is the shared ranked-result envelope.
type QueryOutput struct {
	Results []ResultOutput `json:"results"`
	// PartialIndex is true when eligible documents were excluded from
	// ranking due to missing embeddings or a deadline.
	PartialIndex    bool `json:"partial_index"`
	KeywordFallback bool `json:"keyword_fallback,omitempty" jsonschema:"true when the backend was unavailable and ranking degraded to keyword match"`
}

// SimilarInput defines the input schema for the memory_similar tool.
type SimilarInput struct {
	DocID string `json:"doc_id" jsonschema:"reference document id"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

// ExpertiseInput defines the input schema for the memory_expertise tool.
type ExpertiseInput struct {
	AgentID string `json:"agent_id" jsonschema:"agent to summarize"`
	Limit   int    `json:"limit,omitempty"`
}

// PatternsInput defines the input schema for the memory_patterns tool.
type PatternsInput struct {
	Project string `json:"project" jsonschema:"project to summarize"`
	Limit   int    `json:"limit,omitempty"`
}

// GetInput defines the input schema for the memory_get tool.
type GetInput struct {
	DocID string `json:"doc_id" jsonschema:"document id"`
}

// GetOutput is the full document record.
type GetOutput struct {
	DocID      string            `json:"doc_id"`
	Kind       string            `json:"kind"`
	Project    string            `json:"project,omitempty"`
	AgentID    string            `json:"agent_id,omitempty"`
	Timestamp  string            `json:"timestamp"`
	Title      string            `json:"title,omitempty"`
	Summary    string            `json:"summary"`
	Tags       []string          `json:"tags,omitempty"`
	Meta       map[string]string `json:"meta,omitempty"`
	Canonical  string            `json:"canonical" jsonschema:"deterministic canonical text used for embedding"`
	EmbedState string            `json:"embed_state"`
	Payload    map[string]any    `json:"payload" jsonschema:"kind-specific fields"`
}

// StatsInput defines the input schema for the memory_stats tool.
type StatsInput struct {
	Project string `json:"project,omitempty" jsonschema:"limit stats to one project, global when omitted"`
}

// StatsOutput aggregates corpus counts.
type StatsOutput struct {
	TotalDocuments int            `json:"total_documents"`
	ByKind         map[string]int `json:"by_kind"`
	ByAgent        map[string]int `json:"by_agent"`
	ByProject      map[string]int `json:"by_project"`
	Pending        int            `json:"pending" jsonschema:"documents awaiting embeddings"`
	Failed         int            `json:"failed" jsonschema:"documents that exhausted embedding attempts"`
}

// StatusInput defines the input schema for the memory_status tool.
type StatusInput struct{}

// BackendStatusOutput reports one backend's health and coverage.
type BackendStatusOutput struct {
	BackendID   string  `json:"backend_id"`
	Default     bool    `json:"default"`
	Available   bool    `json:"available"`
	Embedded    int     `json:"embedded"`
	Total       int     `json:"total"`
	Coverage    float64 `json:"coverage" jsonschema:"embedded/total ratio"`
	PendingDocs int     `json:"pending_docs,omitempty"`
	FailedDocs  int     `json:"failed_docs,omitempty"`
}

// StatusOutput lists every backend with vectors in the store.
type StatusOutput struct {
	Backends []BackendStatusOutput `json:"backends"`
}

func clampLimit(v int) int {
	if v <= 0 {
		return defaultToolLimit
	}
	if v > maxToolLimit {
		return maxToolLimit
	}
	return v
}

func toResultOutput(hit query.Hit) ResultOutput {
	return ResultOutput{
		DocID:     hit.Doc.ID,
		Score:     hit.Score,
		Kind:      string(hit.Doc.Kind),
		Project:   hit.Doc.Project,
		AgentID:   hit.Doc.AgentID,
		Timestamp: hit.Doc.Timestamp.Format(time.RFC3339),
		Title:     hit.Doc.Title,
		Summary:   hit.Doc.Summary,
	}
}

func toQueryOutput(res *query.Result) QueryOutput {
	out := QueryOutput{
		Results:         make([]ResultOutput, 0, len(res.Hits)),
		PartialIndex:    res.PartialIndex,
		KeywordFallback: res.KeywordFallback,
	}
	for _, hit := range res.Hits {
		out.Results = append(out.Results, toResultOutput(hit))
	}
	return out
}

func (s *Server) mcpRecordHandler(ctx context.Context, _ *mcp.CallToolRequest, input RecordInput) (
	*mcp.CallToolResult,
	RecordOutput,
	error,
) {
	if strings.TrimSpace(input.Kind) == "" {
		return nil, RecordOutput{}, NewInvalidParamsError("kind parameter is required")
	}
	if input.Payload == nil {
		return nil, RecordOutput{}, NewInvalidParamsError("payload parameter is required")
	}

	var ts time.Time
	if input.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, input.Timestamp)
		if err != nil {
			return nil, RecordOutput{}, NewInvalidParamsError("timestamp must be RFC3339")
		}
		ts = parsed
	}

	res, err := s.svc.Record(ctx, ingest.Input{
		Kind:      input.Kind,
		Project:   input.Project,
		AgentID:   input.AgentID,
		Timestamp: ts,
		Title:     input.Title,
		Tags:      input.Tags,
		Meta:      input.Meta,
		Payload:   input.Payload,
		IngestKey: input.IngestKey,
	})
	if err != nil {
		return nil, RecordOutput{}, MapError(err)
	}

	return nil, RecordOutput{
		DocID:        res.DocID,
		Deduplicated: res.Deduplicated,
		EmbedState:   string(res.EmbedState),
	}, nil
}

func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	QueryOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, QueryOutput{}, NewInvalidParamsError("query parameter is required")
	}

	filters := store.Filters{Project: input.Project, AgentID: input.AgentID}
	for _, k := range input.Kinds {
		kind, err := canon.ParseKind(k)
		if err != nil {
			return nil, QueryOutput{}, MapError(err)
		}
		filters.Kinds = append(filters.Kinds, kind)
	}

	res, err := s.svc.Search(ctx, input.Query, query.Options{
		Limit:     clampLimit(input.Limit),
		Filters:   filters,
		BackendID: input.BackendID,
	})
	if err != nil {
		return nil, QueryOutput{}, MapError(err)
	}
	return nil, toQueryOutput(res), nil
}

func (s *Server) mcpSimilarHandler(ctx context.Context, _ *mcp.CallToolRequest, input SimilarInput) (
	*mcp.CallToolResult,
	QueryOutput,
	error,
) {
	if input.DocID == "" {
		return nil, QueryOutput{}, NewInvalidParamsError("doc_id parameter is required")
	}

	res, err := s.svc.FindSimilar(ctx, input.DocID, query.Options{Limit: clampLimit(input.Limit)})
	if err != nil {
		return nil, QueryOutput{}, MapError(err)
	}
	return nil, toQueryOutput(res), nil
}

func (s *Server) mcpExpertiseHandler(ctx context.Context, _ *mcp.CallToolRequest, input ExpertiseInput) (
	*mcp.CallToolResult,
	QueryOutput,
	error,
) {
	if input.AgentID == "" {
		return nil, QueryOutput{}, NewInvalidParamsError("agent_id parameter is required")
	}

	res, err := s.svc.Expertise(ctx, input.AgentID, query.Options{Limit: clampLimit(input.Limit)})
	if err != nil {
		return nil, QueryOutput{}, MapError(err)
	}
	return nil, toQueryOutput(res), nil
}

func (s *Server) mcpPatternsHandler(ctx context.Context, _ *mcp.CallToolRequest, input PatternsInput) (
	*mcp.CallToolResult,
	QueryOutput,
	error,
) {
	if input.Project == "" {
		return nil, QueryOutput{}, NewInvalidParamsError("project parameter is required")
	}

	res, err := s.svc.ProjectPatterns(ctx, input.Project, query.Options{Limit: clampLimit(input.Limit)})
	if err != nil {
		return nil, QueryOutput{}, MapError(err)
	}
	return nil, toQueryOutput(res), nil
}

func (s *Server) mcpGetHandler(ctx context.Context, _ *mcp.CallToolRequest, input GetInput) (
	*mcp.CallToolResult,
	*GetOutput,
	error,
) {
	if input.DocID == "" {
		return nil, nil, NewInvalidParamsError("doc_id parameter is required")
	}

	doc, err := s.svc.GetDocument(ctx, input.DocID)
	if err != nil {
		return nil, nil, MapError(err)
	}

	return nil, &GetOutput{
		DocID:      doc.ID,
		Kind:       string(doc.Kind),
		Project:    doc.Project,
		AgentID:    doc.AgentID,
		Timestamp:  doc.Timestamp.Format(time.RFC3339),
		Title:      doc.Title,
		Summary:    doc.Summary,
		Tags:       doc.Tags,
		Meta:       doc.Meta,
		Canonical:  doc.Canonical,
		EmbedState: string(doc.EmbedState),
		Payload:    lensPayload(doc.Lens),
	}, nil
}

func (s *Server) mcpStatsHandler(ctx context.Context, _ *mcp.CallToolRequest, input StatsInput) (
	*mcp.CallToolResult,
	*StatsOutput,
	error,
) {
	stats, err := s.svc.Stats(ctx, store.Scope{Project: input.Project})
	if err != nil {
		return nil, nil, MapError(err)
	}

	out := &StatsOutput{
		TotalDocuments: stats.TotalDocuments,
		ByKind:         make(map[string]int, len(stats.ByKind)),
		ByAgent:        make(map[string]int, len(stats.ByAgent)),
		ByProject:      make(map[string]int, len(stats.ByProject)),
		Pending:        stats.Pending,
		Failed:         stats.Failed,
	}
	for _, kc := range stats.ByKind {
		out.ByKind[string(kc.Kind)] = kc.Count
	}
	for _, nc := range stats.ByAgent {
		out.ByAgent[nc.Name] = nc.Count
	}
	for _, nc := range stats.ByProject {
		out.ByProject[nc.Name] = nc.Count
	}
	return nil, out, nil
}

func (s *Server) mcpStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ StatusInput) (
	*mcp.CallToolResult,
	*StatusOutput,
	error,
) {
	statuses, err := s.svc.BackendStatuses(ctx)
	if err != nil {
		return nil, nil, MapError(err)
	}

	out := &StatusOutput{Backends: make([]BackendStatusOutput, 0, len(statuses))}
	for _, st := range statuses {
		out.Backends = append(out.Backends, BackendStatusOutput{
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
	return nil, out, nil
}

// lensPayload renders a typed lens back to its payload shape for output.
func lensPayload(lens *canon.Lens) map[string]any {
	switch lens.Kind {
	case canon.KindAction:
		return map[string]any{
			"tool":        lens.Action.Tool,
			"outcome":     lens.Action.Outcome,
			"context":     lens.Action.Context,
			"duration_ms": lens.Action.DurationMS,
		}
	case canon.KindProtocol:
		return map[string]any{
			"steps":         lens.Protocol.Steps,
			"effectiveness": lens.Protocol.Effectiveness,
			"improvements":  lens.Protocol.Improvements,
			"adaptations":   lens.Protocol.Adaptations,
		}
	case canon.KindWorkflow:
		return map[string]any{
			"pattern":       lens.Workflow.Pattern,
			"coordination":  lens.Workflow.Coordination,
			"outcomes":      lens.Workflow.Outcomes,
			"optimizations": lens.Workflow.Optimizations,
		}
	case canon.KindPerformance:
		return map[string]any{
			"metrics":       lens.Performance.Metrics,
			"anomalies":     lens.Performance.Anomalies,
			"optimizations": lens.Performance.Optimizations,
			"trend":         lens.Performance.Trend,
		}
	case canon.KindConversation:
		return map[string]any{
			"channel":   lens.Conversation.Channel,
			"thread_id": lens.Conversation.ThreadID,
			"role":      lens.Conversation.Role,
			"content":   lens.Conversation.Content,
		}
	case canon.KindCoordination:
		return map[string]any{
			"type":          lens.Coordination.Type,
			"participants":  lens.Coordination.Participants,
			"payload":       lens.Coordination.Payload,
			"effectiveness": lens.Coordination.Effectiveness,
		}
	case canon.KindTool:
		return map[string]any{
			"pattern":       lens.Tool.Pattern,
			"success_rate":  lens.Tool.SuccessRate,
			"failure_modes": lens.Tool.FailureModes,
			"optimizations": lens.Tool.Optimizations,
		}
	}
	return map[string]any{}
}
