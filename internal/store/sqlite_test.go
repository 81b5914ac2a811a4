package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dadudekc/swarmmem/internal/canon"
	storeerr "github.com/Dadudekc/swarmmem/internal/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(context.Background(), dir, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, dir
}

// testDoc builds a committed-shape action document.
func testDoc(t *testing.T, id, project, agent string, ts time.Time) *Document {
	t.Helper()
	lens, err := canon.ParsePayload(canon.KindAction, map[string]any{
		"tool":    "pytest",
		"outcome": "success",
	})
	require.NoError(t, err)

	return &Document{
		ID:        id,
		Kind:      canon.KindAction,
		Project:   project,
		AgentID:   agent,
		Timestamp: ts,
		Title:     "ran pytest on " + project,
		Summary:   "action pytest -> success",
		Tags:      []string{"ci"},
		Meta:      map[string]string{"source": "test"},
		Canonical: "kind: action\ntool: pytest\noutcome: success\n",
		Lens:      lens,
	}
}

// mustInsert commits a document with no ingest key.
func mustInsert(t *testing.T, s *SQLiteStore, doc *Document) {
	t.Helper()
	existing, err := s.InsertDocument(context.Background(), doc, "", 0)
	require.NoError(t, err)
	require.Empty(t, existing)
}

func TestOpen_LockExcludesSecondProcess(t *testing.T) {
	_, dir := openTestStore(t)

	_, err := Open(context.Background(), dir, testLogger())
	require.Error(t, err)
	assert.Equal(t, storeerr.ErrCodeStoreLocked, storeerr.GetCode(err))
}

func TestInsertDocument_RoundTrip(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	doc := testDoc(t, "doc-1", "core", "agent-1", time.Now())
	mustInsert(t, s, doc)

	got, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, canon.KindAction, got.Kind)
	assert.Equal(t, "core", got.Project)
	assert.Equal(t, "agent-1", got.AgentID)
	assert.Equal(t, []string{"ci"}, got.Tags)
	assert.Equal(t, "test", got.Meta["source"])
	assert.Equal(t, EmbedStatePending, got.EmbedState)
	require.NotNil(t, got.Lens.Action)
	assert.Equal(t, "pytest", got.Lens.Action.Tool)
	assert.Equal(t, "success", got.Lens.Action.Outcome)
}

func TestGetDocument_NotFound(t *testing.T) {
	s, _ := openTestStore(t)

	_, err := s.GetDocument(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, storeerr.ErrCodeDocNotFound, storeerr.GetCode(err))
}

func TestIngestKey_DedupInsideInsert(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	doc := testDoc(t, "doc-1", "core", "agent-1", time.Now())
	existing, err := s.InsertDocument(ctx, doc, "key-1", 10*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, existing)

	// A replay inside the window loses to the holder and writes nothing
	replay := testDoc(t, "doc-2", "core", "agent-1", time.Now())
	existing, err = s.InsertDocument(ctx, replay, "key-1", 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "doc-1", existing)

	_, err = s.GetDocument(ctx, "doc-2")
	assert.Equal(t, storeerr.ErrCodeDocNotFound, storeerr.GetCode(err))

	// Outside the window the key rebinds to the fresh document
	fresh := testDoc(t, "doc-3", "core", "agent-1", time.Now())
	existing, err = s.InsertDocument(ctx, fresh, "key-1", -time.Second)
	require.NoError(t, err)
	assert.Empty(t, existing)

	_, err = s.GetDocument(ctx, "doc-3")
	require.NoError(t, err)

	// A purged key no longer deduplicates
	require.NoError(t, s.PurgeIngestKeys(ctx, -time.Second))
	again := testDoc(t, "doc-4", "core", "agent-1", time.Now())
	existing, err = s.InsertDocument(ctx, again, "key-1", 10*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, existing)
}

func TestAttachEmbedding_StateAndIndex(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	doc := testDoc(t, "doc-1", "core", "agent-1", time.Now())
	mustInsert(t, s, doc)

	emb := &Embedding{
		DocID:     "doc-1",
		BackendID: "static",
		Vector:    []float32{0.6, 0.8},
	}
	require.NoError(t, s.AttachEmbedding(ctx, emb, true))

	got, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, EmbedStateAttached, got.EmbedState)

	stored, err := s.GetEmbedding(ctx, "doc-1", "static")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.6, 0.8}, stored.Vector)
	assert.Equal(t, 2, stored.Dims)
	assert.InDelta(t, 1.0, stored.Norm, 1e-6)

	assert.True(t, s.Semantic().Contains("static", "doc-1"))

	backend, err := s.LatestBackendFor(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "static", backend)
}

func TestAttachEmbedding_DimensionMismatchLeavesStatePending(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	first := testDoc(t, "doc-1", "core", "agent-1", time.Now())
	mustInsert(t, s, first)
	require.NoError(t, s.AttachEmbedding(ctx,
		&Embedding{DocID: "doc-1", BackendID: "static", Vector: []float32{0.6, 0.8}}, true))

	// A vector that cannot enter the backend's graph is rejected before
	// anything commits.
	second := testDoc(t, "doc-2", "core", "agent-1", time.Now())
	mustInsert(t, s, second)
	err := s.AttachEmbedding(ctx,
		&Embedding{DocID: "doc-2", BackendID: "static", Vector: []float32{1, 0, 0}}, true)
	require.Error(t, err)
	assert.Equal(t, storeerr.ErrCodeEmbedDimension, storeerr.GetCode(err))

	got, err := s.GetDocument(ctx, "doc-2")
	require.NoError(t, err)
	assert.Equal(t, EmbedStatePending, got.EmbedState)

	_, err = s.GetEmbedding(ctx, "doc-2", "static")
	require.Error(t, err)
	assert.False(t, s.Semantic().Contains("static", "doc-2"))
}

func TestAttachEmbedding_SecondaryBackendKeepsState(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	doc := testDoc(t, "doc-1", "core", "agent-1", time.Now())
	mustInsert(t, s, doc)

	emb := &Embedding{DocID: "doc-1", BackendID: "ollama:nomic", Vector: []float32{1, 0}}
	require.NoError(t, s.AttachEmbedding(ctx, emb, false))

	got, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, EmbedStatePending, got.EmbedState)
}

func TestRecordEmbedFailure_TransitionsToFailed(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	doc := testDoc(t, "doc-1", "core", "agent-1", time.Now())
	mustInsert(t, s, doc)

	failed, err := s.RecordEmbedFailure(ctx, "doc-1", 3)
	require.NoError(t, err)
	assert.False(t, failed)

	failed, err = s.RecordEmbedFailure(ctx, "doc-1", 3)
	require.NoError(t, err)
	assert.False(t, failed)

	failed, err = s.RecordEmbedFailure(ctx, "doc-1", 3)
	require.NoError(t, err)
	assert.True(t, failed)

	got, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, EmbedStateFailed, got.EmbedState)
	assert.Equal(t, 3, got.EmbedAttempts)
}

func TestListPendingDocs_OldestFirst(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 3; i++ {
		doc := testDoc(t, fmt.Sprintf("doc-%d", i), "core", "agent-1", base.Add(time.Duration(i)*time.Minute))
		mustInsert(t, s, doc)
	}
	require.NoError(t, s.AttachEmbedding(ctx,
		&Embedding{DocID: "doc-1", BackendID: "static", Vector: []float32{1, 0}}, true))

	pending, err := s.ListPendingDocs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "doc-0", pending[0].ID)
	assert.Equal(t, "doc-2", pending[1].ID)

	missing, err := s.ListMissingEmbeddings(ctx, "ollama:nomic", 10)
	require.NoError(t, err)
	assert.Len(t, missing, 3)

	missing, err = s.ListMissingEmbeddings(ctx, "static", 10)
	require.NoError(t, err)
	assert.Len(t, missing, 2)
}

func TestScanEmbeddings_FiltersAndEarlyStop(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	base := time.Now()

	projects := []string{"core", "core", "web"}
	for i, project := range projects {
		id := fmt.Sprintf("doc-%d", i)
		doc := testDoc(t, id, project, "agent-1", base.Add(time.Duration(i)*time.Minute))
		mustInsert(t, s, doc)
		require.NoError(t, s.AttachEmbedding(ctx,
			&Embedding{DocID: id, BackendID: "static", Vector: []float32{1, 0}}, true))
	}

	var seen []string
	err := s.ScanEmbeddings(ctx, "static", Filters{Project: "core"},
		func(docID string, ts time.Time, vec []float32) bool {
			seen = append(seen, docID)
			return true
		})
	require.NoError(t, err)
	// Newest first within the filter
	assert.Equal(t, []string{"doc-1", "doc-0"}, seen)

	seen = nil
	err = s.ScanEmbeddings(ctx, "static", Filters{},
		func(docID string, ts time.Time, vec []float32) bool {
			seen = append(seen, docID)
			return false
		})
	require.NoError(t, err)
	assert.Len(t, seen, 1)
}

func TestCounts_ExcludeFailedFromEligible(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		doc := testDoc(t, fmt.Sprintf("doc-%d", i), "core", "agent-1", time.Now())
		mustInsert(t, s, doc)
	}
	require.NoError(t, s.AttachEmbedding(ctx,
		&Embedding{DocID: "doc-0", BackendID: "static", Vector: []float32{1, 0}}, true))
	_, err := s.RecordEmbedFailure(ctx, "doc-2", 1)
	require.NoError(t, err)

	eligible, err := s.CountEligible(ctx, Filters{Project: "core"})
	require.NoError(t, err)
	assert.Equal(t, 2, eligible)

	embedded, err := s.CountEmbedded(ctx, "static", Filters{Project: "core"})
	require.NoError(t, err)
	assert.Equal(t, 1, embedded)
}

func TestKeywordSearch(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	doc1 := testDoc(t, "doc-1", "core", "agent-1", time.Now())
	doc1.Title = "database migration rollback"
	doc1.Canonical = "kind: action\ntool: alembic\noutcome: success\n"
	mustInsert(t, s, doc1)

	doc2 := testDoc(t, "doc-2", "web", "agent-2", time.Now())
	doc2.Title = "frontend build pipeline"
	mustInsert(t, s, doc2)

	hits, err := s.KeywordSearch(ctx, "database migration", 10, Filters{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-1", hits[0].DocID)
	assert.Greater(t, hits[0].Score, 0.0)

	// Filter excludes the only match
	hits, err = s.KeywordSearch(ctx, "database", 10, Filters{Project: "web"})
	require.NoError(t, err)
	assert.Empty(t, hits)

	// FTS syntax characters are treated as text, not operators
	_, err = s.KeywordSearch(ctx, `NEAR( "un"terminated`, 10, Filters{})
	require.NoError(t, err)
}

func TestDeleteDocuments_Cascades(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	doc := testDoc(t, "doc-1", "core", "agent-1", time.Now())
	existing, err := s.InsertDocument(ctx, doc, "key-1", time.Hour)
	require.NoError(t, err)
	require.Empty(t, existing)
	require.NoError(t, s.AttachEmbedding(ctx,
		&Embedding{DocID: "doc-1", BackendID: "static", Vector: []float32{1, 0}}, true))

	require.NoError(t, s.DeleteDocuments(ctx, []string{"doc-1"}))

	_, err = s.GetDocument(ctx, "doc-1")
	assert.Equal(t, storeerr.ErrCodeDocNotFound, storeerr.GetCode(err))

	_, err = s.GetEmbedding(ctx, "doc-1", "static")
	require.Error(t, err)

	assert.False(t, s.Semantic().Contains("static", "doc-1"))

	hits, err := s.KeywordSearch(ctx, "pytest", 10, Filters{})
	require.NoError(t, err)
	assert.Empty(t, hits)

	// The key row is gone with the document, so the key is reusable
	redo := testDoc(t, "doc-2", "core", "agent-1", time.Now())
	existing, err = s.InsertDocument(ctx, redo, "key-1", time.Hour)
	require.NoError(t, err)
	assert.Empty(t, existing)
}

func TestCleanup_AgeAndCount(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	old := testDoc(t, "doc-old", "core", "agent-1", now.Add(-48*time.Hour))
	mustInsert(t, s, old)
	for i := 0; i < 4; i++ {
		doc := testDoc(t, fmt.Sprintf("doc-%d", i), "core", "agent-1", now.Add(time.Duration(i)*time.Minute))
		mustInsert(t, s, doc)
	}

	removed, err := s.Cleanup(ctx, 24*time.Hour, 2, Scope{})
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	stats, err := s.GetStats(ctx, Scope{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalDocuments)

	// The newest two survive
	_, err = s.GetDocument(ctx, "doc-3")
	require.NoError(t, err)
	_, err = s.GetDocument(ctx, "doc-2")
	require.NoError(t, err)
}

func TestGetStats(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		doc := testDoc(t, fmt.Sprintf("doc-%d", i), "core", fmt.Sprintf("agent-%d", i%2), time.Now())
		mustInsert(t, s, doc)
	}
	require.NoError(t, s.AttachEmbedding(ctx,
		&Embedding{DocID: "doc-0", BackendID: "static", Vector: []float32{1, 0}}, true))

	stats, err := s.GetStats(ctx, Scope{})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalDocuments)
	assert.Equal(t, 2, stats.Pending)
	assert.Equal(t, 0, stats.Failed)

	require.Len(t, stats.ByKind, 1)
	assert.Equal(t, canon.KindAction, stats.ByKind[0].Kind)
	assert.Equal(t, 3, stats.ByKind[0].Count)
	assert.Len(t, stats.ByAgent, 2)

	require.Len(t, stats.Coverage, 1)
	assert.Equal(t, "static", stats.Coverage[0].BackendID)
	assert.Equal(t, 1, stats.Coverage[0].Embedded)
	assert.Equal(t, 3, stats.Coverage[0].Total)
	assert.InDelta(t, 1.0/3.0, stats.Coverage[0].Ratio(), 1e-9)
}

func TestReopen_RebuildsSemanticIndex(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(ctx, dir, testLogger())
	require.NoError(t, err)

	doc := testDoc(t, "doc-1", "core", "agent-1", time.Now())
	mustInsert(t, s, doc)
	require.NoError(t, s.AttachEmbedding(ctx,
		&Embedding{DocID: "doc-1", BackendID: "static", Vector: []float32{0, 1}}, true))
	require.NoError(t, s.Close())

	s2, err := Open(ctx, dir, testLogger())
	require.NoError(t, err)
	defer s2.Close()

	assert.True(t, s2.Semantic().Contains("static", "doc-1"))
	hits, err := s2.Semantic().Search("static", []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-1", hits[0].DocID)
}
