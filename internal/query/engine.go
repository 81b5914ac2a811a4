// Package query is the read path: semantic similarity search and the
// derived pattern queries over the document store. It never blocks on
// in-flight embedding backfill; documents without an embedding for the
// queried backend are simply absent from semantic ranking.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Dadudekc/swarmmem/internal/embed"
	storeerr "github.com/Dadudekc/swarmmem/internal/errors"
	"github.com/Dadudekc/swarmmem/internal/store"
)

const defaultLimit = 10

// Options tunes one search call.
type Options struct {
	// Limit is the maximum number of results. 0 means 10.
	Limit int
	// Filters restricts candidates by project, agent, and kind.
	Filters store.Filters
	// BackendID selects the embedding corpus to score against. Empty
	// means the default backend. A query is only ever scored against one
	// backend's corpus.
	BackendID string
	// Budget bounds scoring time. When it elapses mid-scan the best
	// results so far are returned with PartialIndex set.
	Budget time.Duration
}

// Hit is one ranked result.
type Hit struct {
	Doc   *store.Document
	Score float64
}

// Result is the search envelope.
type Result struct {
	Hits []Hit
	// PartialIndex reports that eligible documents were excluded from
	// ranking, either missing embeddings or a query deadline.
	PartialIndex bool
	// KeywordFallback reports that the query backend was unavailable and
	// ranking degraded to keyword match.
	KeywordFallback bool
}

// Engine executes retrieval queries. Read-only; safe for full concurrency
// with ongoing ingestion.
type Engine struct {
	store     store.DocumentStore
	embedders map[string]embed.Embedder
	defaultID string
	logger    *slog.Logger
}

// NewEngine creates the retrieval engine with one default query embedder.
func NewEngine(st store.DocumentStore, defaultEmbedder embed.Embedder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:     st,
		embedders: make(map[string]embed.Embedder),
		defaultID: defaultEmbedder.BackendID(),
		logger:    logger,
	}
	e.embedders[e.defaultID] = defaultEmbedder
	return e
}

// RegisterBackend makes an additional backend queryable, typically during
// a re-embedding migration.
func (e *Engine) RegisterBackend(embedder embed.Embedder) {
	e.embedders[embedder.BackendID()] = embedder
}

// DefaultBackendID returns the backend queries score against when none is
// named.
func (e *Engine) DefaultBackendID() string { return e.defaultID }

// Backends returns the registered query embedders keyed by backend ID.
// A freshly registered migration target appears here before it has a
// single vector in the store.
func (e *Engine) Backends() map[string]embed.Embedder {
	out := make(map[string]embed.Embedder, len(e.embedders))
	for id, embedder := range e.embedders {
		out[id] = embedder
	}
	return out
}

func (e *Engine) resolveBackend(backendID string) (embed.Embedder, error) {
	if backendID == "" {
		backendID = e.defaultID
	}
	embedder, ok := e.embedders[backendID]
	if !ok {
		return nil, storeerr.New(storeerr.ErrCodeUnknownBackend,
			fmt.Sprintf("no query embedder for backend %q", backendID), nil)
	}
	return embedder, nil
}

// Search embeds the query text and ranks matching documents by cosine
// similarity, descending. Ties break toward the newer document.
func (e *Engine) Search(ctx context.Context, text string, opts Options) (*Result, error) {
	if text == "" {
		return nil, storeerr.Query("search text must not be empty")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	embedder, err := e.resolveBackend(opts.BackendID)
	if err != nil {
		return nil, err
	}
	backendID := embedder.BackendID()

	if opts.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Budget)
		defer cancel()
	}

	vec, err := embedder.Embed(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			// Budget elapsed before anything was ranked.
			return &Result{PartialIndex: true}, nil
		}
		// Backend down: degrade to keyword ranking rather than failing
		// the read path.
		e.logger.Warn("query embedding failed, falling back to keyword search",
			"backend", backendID, "error", err)
		return e.keywordFallback(ctx, text, limit, opts.Filters)
	}

	return e.searchVector(ctx, backendID, vec, limit, opts.Filters, "")
}

// searchVector ranks the backend's corpus against a prepared query
// vector. excludeID drops one document from the results (find-similar).
func (e *Engine) searchVector(ctx context.Context, backendID string, vec []float32, limit int, f store.Filters, excludeID string) (*Result, error) {
	partial, err := e.coverageGap(ctx, backendID, f)
	if err != nil {
		if ctx.Err() != nil {
			return &Result{PartialIndex: true}, nil
		}
		return nil, err
	}

	// Unfiltered queries go through the in-process HNSW index; filtered
	// queries scan the backend's embedding rows and score exactly.
	if f.Project == "" && f.AgentID == "" && len(f.Kinds) == 0 {
		return e.searchIndex(ctx, backendID, vec, limit, excludeID, partial)
	}

	type candidate struct {
		docID string
		ts    time.Time
		score float64
	}
	var candidates []candidate

	scanErr := e.store.ScanEmbeddings(ctx, backendID, f,
		func(docID string, ts time.Time, rowVec []float32) bool {
			if ctx.Err() != nil {
				partial = true
				return false
			}
			if docID == excludeID {
				return true
			}
			candidates = append(candidates, candidate{
				docID: docID,
				ts:    ts,
				score: store.CosineSimilarity(vec, rowVec),
			})
			return true
		})
	if scanErr != nil {
		if ctx.Err() == nil {
			return nil, scanErr
		}
		// Budget cut the scan short; rank whatever was gathered.
		partial = true
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].ts.After(candidates[j].ts)
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result := &Result{PartialIndex: partial}
	for _, c := range candidates {
		doc, err := e.store.GetDocument(ctx, c.docID)
		if err != nil {
			if ctx.Err() != nil {
				result.PartialIndex = true
				break
			}
			// Deleted between scan and load; skip rather than fail.
			continue
		}
		result.Hits = append(result.Hits, Hit{Doc: doc, Score: c.score})
	}
	return result, nil
}

// searchIndex ranks via the approximate nearest-neighbor index, then
// re-sorts the shortlist with the timestamp tie-break.
func (e *Engine) searchIndex(ctx context.Context, backendID string, vec []float32, limit int, excludeID string, partial bool) (*Result, error) {
	semHits, err := e.store.Semantic().Search(backendID, vec, limit+8)
	if err != nil {
		return nil, err
	}

	result := &Result{PartialIndex: partial}
	for _, h := range semHits {
		if h.DocID == excludeID {
			continue
		}
		doc, err := e.store.GetDocument(ctx, h.DocID)
		if err != nil {
			if ctx.Err() != nil {
				result.PartialIndex = true
				break
			}
			continue
		}
		result.Hits = append(result.Hits, Hit{Doc: doc, Score: h.Score})
	}

	sort.Slice(result.Hits, func(i, j int) bool {
		if result.Hits[i].Score != result.Hits[j].Score {
			return result.Hits[i].Score > result.Hits[j].Score
		}
		return result.Hits[i].Doc.Timestamp.After(result.Hits[j].Doc.Timestamp)
	})
	if len(result.Hits) > limit {
		result.Hits = result.Hits[:limit]
	}
	return result, nil
}

// coverageGap reports whether some eligible documents lack an embedding
// for the backend under the given filters.
func (e *Engine) coverageGap(ctx context.Context, backendID string, f store.Filters) (bool, error) {
	eligible, err := e.store.CountEligible(ctx, f)
	if err != nil {
		return false, err
	}
	embedded, err := e.store.CountEmbedded(ctx, backendID, f)
	if err != nil {
		return false, err
	}
	return embedded < eligible, nil
}

func (e *Engine) keywordFallback(ctx context.Context, text string, limit int, f store.Filters) (*Result, error) {
	result := &Result{PartialIndex: true, KeywordFallback: true}

	hits, err := e.store.KeywordSearch(ctx, text, limit, f)
	if err != nil {
		if ctx.Err() != nil {
			return result, nil
		}
		return nil, err
	}

	for _, h := range hits {
		doc, err := e.store.GetDocument(ctx, h.DocID)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			continue
		}
		result.Hits = append(result.Hits, Hit{Doc: doc, Score: h.Score})
	}
	return result, nil
}

// FindSimilar ranks documents nearest to a reference document, excluding
// the reference itself, scored against whichever backend produced the
// reference's most recent embedding.
func (e *Engine) FindSimilar(ctx context.Context, docID string, opts Options) (*Result, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	backendID, err := e.store.LatestBackendFor(ctx, docID)
	if err != nil {
		return nil, err
	}
	ref, err := e.store.GetEmbedding(ctx, docID, backendID)
	if err != nil {
		return nil, err
	}

	if opts.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Budget)
		defer cancel()
	}

	return e.searchVector(ctx, backendID, ref.Vector, limit, opts.Filters, docID)
}

// GetDocument returns the full record for one document.
func (e *Engine) GetDocument(ctx context.Context, docID string) (*store.Document, error) {
	return e.store.GetDocument(ctx, docID)
}

// Keyword runs a plain FTS keyword query, the non-semantic read path.
func (e *Engine) Keyword(ctx context.Context, text string, opts Options) (*Result, error) {
	if text == "" {
		return nil, storeerr.Query("search text must not be empty")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	res, err := e.keywordFallback(ctx, text, limit, opts.Filters)
	if err != nil {
		return nil, err
	}
	// A deliberate keyword query is not a degraded semantic query.
	res.PartialIndex = false
	res.KeywordFallback = false
	return res, nil
}
