package query

import (
	"context"
	"math"
	"sort"
	"time"

	storeerr "github.com/Dadudekc/swarmmem/internal/errors"
	"github.com/Dadudekc/swarmmem/internal/store"
)

const (
	// patternHalfLife halves a document's weight every 30 days.
	patternHalfLife = 30 * 24 * time.Hour
	// patternCandidateCap bounds how many recent documents are scored.
	patternCandidateCap = 512
)

// patternScore weights a document by recency and outcome. A document with
// no outcome signal keeps a neutral weight so it still surfaces; a failed
// outcome suppresses it but never to zero.
func patternScore(doc *store.Document, now time.Time) float64 {
	age := now.Sub(doc.Timestamp)
	if age < 0 {
		age = 0
	}
	decay := math.Exp2(-float64(age) / float64(patternHalfLife))
	success := 0.25 + 0.75*doc.Lens.SuccessSignal()
	return decay * success
}

// Expertise ranks an agent's documents by recency-decayed success weight,
// surfacing what the agent demonstrably does well and often.
func (e *Engine) Expertise(ctx context.Context, agentID string, opts Options) (*Result, error) {
	if agentID == "" {
		return nil, storeerr.Query("agent id must not be empty")
	}
	f := opts.Filters
	f.AgentID = agentID
	return e.rankRecent(ctx, f, opts.Limit)
}

// ProjectPatterns ranks a project's documents with the same recency and
// success weighting, scoped to the project rather than an agent.
func (e *Engine) ProjectPatterns(ctx context.Context, project string, opts Options) (*Result, error) {
	if project == "" {
		return nil, storeerr.Query("project must not be empty")
	}
	f := opts.Filters
	f.Project = project
	return e.rankRecent(ctx, f, opts.Limit)
}

// rankRecent is the shared metadata ranking path. It never consults
// embeddings, so pending or failed documents participate fully.
func (e *Engine) rankRecent(ctx context.Context, f store.Filters, limit int) (*Result, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	docs, err := e.store.ListDocuments(ctx, f, patternCandidateCap)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	result := &Result{}
	for _, doc := range docs {
		result.Hits = append(result.Hits, Hit{Doc: doc, Score: patternScore(doc, now)})
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
