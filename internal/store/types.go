// Package store provides durable relational persistence (SQLite) for
// documents, their kind-specific lens rows, and embedding rows, plus the
// in-process semantic index (HNSW) and FTS5 keyword search.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Dadudekc/swarmmem/internal/canon"
)

// EmbedState tracks the default backend's embedding sub-state per document.
type EmbedState string

const (
	// EmbedStatePending means no embedding is attached yet; backfill will retry.
	EmbedStatePending EmbedState = "pending"
	// EmbedStateAttached means the default backend's embedding row exists.
	EmbedStateAttached EmbedState = "attached"
	// EmbedStateFailed means backfill exhausted its attempts. The document
	// stays retrievable by metadata but is excluded from semantic ranking.
	EmbedStateFailed EmbedState = "failed"
)

// Document is the kind-agnostic identity and metadata record for one
// ingested activity. Append-only: rows are never mutated after commit
// except for the embedding sub-state transition.
type Document struct {
	ID            string
	Kind          canon.Kind
	Project       string
	AgentID       string
	Timestamp     time.Time
	Title         string
	Summary       string
	Tags          []string
	Meta          map[string]string
	Canonical     string
	EmbedState    EmbedState
	EmbedAttempts int
	Lens          *canon.Lens
}

// Embedding is one vector row, keyed by (doc_id, backend_id).
type Embedding struct {
	DocID     string
	BackendID string
	Dims      int
	Norm      float64
	CreatedAt time.Time
	Vector    []float32
}

// Filters restricts retrieval to matching documents. Zero values match all.
type Filters struct {
	Project string
	AgentID string
	Kinds   []canon.Kind
}

// Matches reports whether doc satisfies every supplied filter.
func (f Filters) Matches(doc *Document) bool {
	if f.Project != "" && doc.Project != f.Project {
		return false
	}
	if f.AgentID != "" && doc.AgentID != f.AgentID {
		return false
	}
	if len(f.Kinds) > 0 {
		found := false
		for _, k := range f.Kinds {
			if doc.Kind == k {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Scope selects the aggregation boundary for stats and cleanup.
type Scope struct {
	// Project limits the scope to one project. Empty means global.
	Project string
}

// KindCount is one entry of a per-kind aggregate.
type KindCount struct {
	Kind  canon.Kind
	Count int
}

// NameCount is one entry of a per-agent or per-project aggregate.
type NameCount struct {
	Name  string
	Count int
}

// BackendCoverage reports the fraction of documents carrying an embedding
// row for one backend. Used to detect backfill backlog.
type BackendCoverage struct {
	BackendID string
	Embedded  int
	Total     int
}

// Ratio returns the coverage fraction, 0 when the store is empty.
func (c BackendCoverage) Ratio() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Embedded) / float64(c.Total)
}

// Stats aggregates document counts and backend coverage.
type Stats struct {
	TotalDocuments int
	ByKind         []KindCount
	ByAgent        []NameCount
	ByProject      []NameCount
	Pending        int
	Failed         int
	Coverage       []BackendCoverage
}

// KeywordHit is a single FTS5 keyword search result.
type KeywordHit struct {
	DocID string
	Score float64
}

// DocumentStore is the persistence contract consumed by the ingestion
// pipeline, the retrieval engine, and the lifecycle manager.
type DocumentStore interface {
	// Write path. InsertDocument resolves ingest key conflicts inside
	// its transaction: a non-empty existingID means the key is held by a
	// document younger than dedupWindow and nothing was written.
	InsertDocument(ctx context.Context, doc *Document, ingestKey string, dedupWindow time.Duration) (existingID string, err error)
	AttachEmbedding(ctx context.Context, emb *Embedding, updateState bool) error
	RecordEmbedFailure(ctx context.Context, docID string, maxAttempts int) (failed bool, err error)

	// Idempotency
	PurgeIngestKeys(ctx context.Context, olderThan time.Duration) error

	// Read path
	GetDocument(ctx context.Context, id string) (*Document, error)
	ListDocuments(ctx context.Context, f Filters, limit int) ([]*Document, error)
	GetEmbedding(ctx context.Context, docID, backendID string) (*Embedding, error)
	LatestBackendFor(ctx context.Context, docID string) (string, error)
	ListPendingDocs(ctx context.Context, limit int) ([]*Document, error)
	ListMissingEmbeddings(ctx context.Context, backendID string, limit int) ([]*Document, error)
	ScanEmbeddings(ctx context.Context, backendID string, f Filters, fn ScanFunc) error
	CountEligible(ctx context.Context, f Filters) (int, error)
	CountEmbedded(ctx context.Context, backendID string, f Filters) (int, error)
	KeywordSearch(ctx context.Context, query string, limit int, f Filters) ([]KeywordHit, error)

	// Lifecycle
	DeleteDocuments(ctx context.Context, ids []string) error
	Cleanup(ctx context.Context, maxAge time.Duration, maxCount int, scope Scope) (int, error)
	GetStats(ctx context.Context, scope Scope) (*Stats, error)

	// Semantic returns the in-process vector index kept in sync with the
	// embeddings table.
	Semantic() *SemanticIndex

	Close() error
}

// ScanFunc receives one embedding row during a filtered scan. Returning
// false stops the scan early (deadline handling).
type ScanFunc func(docID string, ts time.Time, vector []float32) bool

// ErrDimensionMismatch indicates a vector dimension mismatch within one
// backend's corpus.
type ErrDimensionMismatch struct {
	BackendID string
	Expected  int
	Got       int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("backend %s dimension mismatch: expected %d, got %d",
		e.BackendID, e.Expected, e.Got)
}

// CurrentSchemaVersion is the current database schema version.
const CurrentSchemaVersion = 1
