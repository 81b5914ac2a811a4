package mcp

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dadudekc/swarmmem/internal/config"
	"github.com/Dadudekc/swarmmem/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Embeddings.Provider = "static"

	svc, err := service.New(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	srv, err := NewServer(svc, cfg, testLogger())
	require.NoError(t, err)
	return srv
}

func recordTestAction(t *testing.T, srv *Server, project, agent, tool, outcome string) string {
	t.Helper()
	_, out, err := srv.mcpRecordHandler(context.Background(), nil, RecordInput{
		Kind:    "action",
		Project: project,
		AgentID: agent,
		Payload: map[string]any{"tool": tool, "outcome": outcome},
	})
	require.NoError(t, err)
	return out.DocID
}

func TestNewServer_RequiresService(t *testing.T) {
	_, err := NewServer(nil, config.NewConfig(), testLogger())
	assert.Error(t, err)
}

func TestListTools_AllRegistered(t *testing.T) {
	srv := newTestServer(t)

	tools := srv.ListTools()
	require.Len(t, tools, 8)

	names := make(map[string]bool, len(tools))
	for _, tool := range tools {
		names[tool.Name] = true
		assert.NotEmpty(t, tool.Description)
	}
	for _, want := range []string{
		"memory_record", "memory_search", "memory_similar", "memory_expertise",
		"memory_patterns", "memory_get", "memory_stats", "memory_status",
	} {
		assert.True(t, names[want], "missing tool %s", want)
	}
}

func TestRecordHandler_CommitsDocument(t *testing.T) {
	srv := newTestServer(t)

	_, out, err := srv.mcpRecordHandler(context.Background(), nil, RecordInput{
		Kind:    "action",
		Project: "core",
		AgentID: "agent-1",
		Payload: map[string]any{"tool": "git", "outcome": "success"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, out.DocID)
	assert.False(t, out.Deduplicated)
	assert.Equal(t, "attached", out.EmbedState)
}

func TestRecordHandler_IngestKeyDeduplicates(t *testing.T) {
	srv := newTestServer(t)
	input := RecordInput{
		Kind:      "action",
		Payload:   map[string]any{"tool": "git", "outcome": "success"},
		IngestKey: "evt-42",
	}

	_, first, err := srv.mcpRecordHandler(context.Background(), nil, input)
	require.NoError(t, err)
	_, second, err := srv.mcpRecordHandler(context.Background(), nil, input)
	require.NoError(t, err)

	assert.Equal(t, first.DocID, second.DocID)
	assert.True(t, second.Deduplicated)
}

func TestRecordHandler_InvalidInput(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input RecordInput
	}{
		{"missing kind", RecordInput{Payload: map[string]any{"tool": "git", "outcome": "ok"}}},
		{"missing payload", RecordInput{Kind: "action"}},
		{"unknown kind", RecordInput{Kind: "journal", Payload: map[string]any{"x": "y"}}},
		{"missing required field", RecordInput{Kind: "action", Payload: map[string]any{"tool": "git"}}},
		{"bad timestamp", RecordInput{
			Kind:      "action",
			Payload:   map[string]any{"tool": "git", "outcome": "ok"},
			Timestamp: "yesterday",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := srv.mcpRecordHandler(ctx, nil, tt.input)
			require.Error(t, err)

			var mcpErr *MCPError
			require.ErrorAs(t, err, &mcpErr)
			assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
		})
	}
}

func TestSearchHandler_ReturnsRankedResults(t *testing.T) {
	srv := newTestServer(t)
	recordTestAction(t, srv, "core", "agent-1", "deploy service", "success")
	recordTestAction(t, srv, "core", "agent-2", "lint config", "failure")

	_, out, err := srv.mcpSearchHandler(context.Background(), nil, SearchInput{
		Query:   "deploy service",
		Project: "core",
	})
	require.NoError(t, err)
	require.NotEmpty(t, out.Results)
	assert.False(t, out.PartialIndex)
	assert.False(t, out.KeywordFallback)
	assert.Contains(t, out.Results[0].Summary, "deploy")
	assert.Equal(t, "action", out.Results[0].Kind)
}

func TestSearchHandler_InvalidInput(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	_, _, err := srv.mcpSearchHandler(ctx, nil, SearchInput{Query: "   "})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)

	_, _, err = srv.mcpSearchHandler(ctx, nil, SearchInput{Query: "x", Kinds: []string{"journal"}})
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)

	_, _, err = srv.mcpSearchHandler(ctx, nil, SearchInput{Query: "x", BackendID: "nope"})
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestSimilarHandler_ExcludesReference(t *testing.T) {
	srv := newTestServer(t)
	ref := recordTestAction(t, srv, "core", "agent-1", "deploy service", "success")
	recordTestAction(t, srv, "core", "agent-1", "deploy service again", "success")

	_, out, err := srv.mcpSimilarHandler(context.Background(), nil, SimilarInput{DocID: ref})
	require.NoError(t, err)
	require.NotEmpty(t, out.Results)
	for _, hit := range out.Results {
		assert.NotEqual(t, ref, hit.DocID)
	}
}

func TestSimilarHandler_UnknownDoc(t *testing.T) {
	srv := newTestServer(t)

	_, _, err := srv.mcpSimilarHandler(context.Background(), nil, SimilarInput{DocID: "missing"})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeNotFound, mcpErr.Code)
}

func TestExpertiseAndPatternsHandlers(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	recordTestAction(t, srv, "core", "agent-1", "deploy service", "success")
	recordTestAction(t, srv, "infra", "agent-2", "rotate keys", "success")

	_, expertise, err := srv.mcpExpertiseHandler(ctx, nil, ExpertiseInput{AgentID: "agent-1"})
	require.NoError(t, err)
	require.Len(t, expertise.Results, 1)
	assert.Equal(t, "agent-1", expertise.Results[0].AgentID)

	_, patterns, err := srv.mcpPatternsHandler(ctx, nil, PatternsInput{Project: "infra"})
	require.NoError(t, err)
	require.Len(t, patterns.Results, 1)
	assert.Equal(t, "infra", patterns.Results[0].Project)

	var mcpErr *MCPError
	_, _, err = srv.mcpExpertiseHandler(ctx, nil, ExpertiseInput{})
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)

	_, _, err = srv.mcpPatternsHandler(ctx, nil, PatternsInput{})
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestGetHandler_ReturnsFullDocument(t *testing.T) {
	srv := newTestServer(t)
	docID := recordTestAction(t, srv, "core", "agent-1", "git", "success")

	_, out, err := srv.mcpGetHandler(context.Background(), nil, GetInput{DocID: docID})
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, docID, out.DocID)
	assert.Equal(t, "action", out.Kind)
	assert.Equal(t, "attached", out.EmbedState)
	assert.Contains(t, out.Canonical, "tool: git")
	assert.Equal(t, "git", out.Payload["tool"])
	assert.Equal(t, "success", out.Payload["outcome"])
}

func TestGetHandler_NotFound(t *testing.T) {
	srv := newTestServer(t)

	_, _, err := srv.mcpGetHandler(context.Background(), nil, GetInput{DocID: "missing"})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeNotFound, mcpErr.Code)
}

func TestStatsHandler_ScopedCounts(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	recordTestAction(t, srv, "core", "agent-1", "git", "success")
	recordTestAction(t, srv, "core", "agent-2", "make", "success")
	recordTestAction(t, srv, "infra", "agent-1", "terraform", "success")

	_, global, err := srv.mcpStatsHandler(ctx, nil, StatsInput{})
	require.NoError(t, err)
	assert.Equal(t, 3, global.TotalDocuments)
	assert.Equal(t, 3, global.ByKind["action"])
	assert.Equal(t, 2, global.ByAgent["agent-1"])
	assert.Equal(t, 0, global.Pending)

	_, scoped, err := srv.mcpStatsHandler(ctx, nil, StatsInput{Project: "core"})
	require.NoError(t, err)
	assert.Equal(t, 2, scoped.TotalDocuments)
}

func TestStatusHandler_ReportsDefaultBackend(t *testing.T) {
	srv := newTestServer(t)
	recordTestAction(t, srv, "core", "agent-1", "git", "success")

	_, out, err := srv.mcpStatusHandler(context.Background(), nil, StatusInput{})
	require.NoError(t, err)
	require.Len(t, out.Backends, 1)

	be := out.Backends[0]
	assert.Equal(t, "static", be.BackendID)
	assert.True(t, be.Default)
	assert.True(t, be.Available)
	assert.Equal(t, 1, be.Embedded)
	assert.Equal(t, 1, be.Total)
	assert.InDelta(t, 1.0, be.Coverage, 1e-9)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, defaultToolLimit, clampLimit(0))
	assert.Equal(t, defaultToolLimit, clampLimit(-5))
	assert.Equal(t, 3, clampLimit(3))
	assert.Equal(t, maxToolLimit, clampLimit(500))
}
