// Package ingest turns raw activity payloads into committed documents and
// keeps embedding attachment asynchronous: a document is durable the
// moment its transaction commits, with or without a vector.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Dadudekc/swarmmem/internal/canon"
	"github.com/Dadudekc/swarmmem/internal/config"
	"github.com/Dadudekc/swarmmem/internal/embed"
	storeerr "github.com/Dadudekc/swarmmem/internal/errors"
	"github.com/Dadudekc/swarmmem/internal/store"
)

// Input is one raw activity record offered for ingestion.
type Input struct {
	Kind      string
	Project   string
	AgentID   string
	Timestamp time.Time // zero means now
	Title     string
	Tags      []string
	Meta      map[string]string
	Payload   map[string]any
	// IngestKey is an optional idempotency key. Replays inside the dedup
	// window return the original document instead of creating a new one.
	IngestKey string
}

// Result reports the outcome of one ingestion.
type Result struct {
	DocID        string
	Deduplicated bool
	EmbedState   store.EmbedState
}

// Pipeline validates, canonicalizes, commits, and embeds documents.
type Pipeline struct {
	store    store.DocumentStore
	embedder embed.Embedder
	backfill *Backfill
	cfg      config.IngestConfig
	logger   *slog.Logger
}

// NewPipeline wires the ingestion pipeline. backfill may be nil in tests;
// failed synchronous embeds then stay pending until the next poll.
func NewPipeline(st store.DocumentStore, embedder embed.Embedder, backfill *Backfill, cfg config.IngestConfig, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:    st,
		embedder: embedder,
		backfill: backfill,
		cfg:      cfg,
		logger:   logger,
	}
}

// Record ingests one activity. Validation failures reject the whole input
// before any write. Embedding backend failures never fail the call: the
// document commits as pending and backfill picks it up.
func (p *Pipeline) Record(ctx context.Context, in Input) (*Result, error) {
	kind, err := canon.ParseKind(in.Kind)
	if err != nil {
		return nil, err
	}

	lens, err := canon.ParsePayload(kind, in.Payload)
	if err != nil {
		return nil, err
	}

	canonical, err := canon.Canonicalize(kind, in.Payload)
	if err != nil {
		return nil, err
	}

	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	title := in.Title
	if title == "" {
		title = canon.Summary(lens)
	}

	doc := &store.Document{
		ID:         uuid.NewString(),
		Kind:       kind,
		Project:    in.Project,
		AgentID:    in.AgentID,
		Timestamp:  ts,
		Title:      title,
		Summary:    canon.Summary(lens),
		Tags:       in.Tags,
		Meta:       in.Meta,
		Canonical:  canonical,
		EmbedState: store.EmbedStatePending,
		Lens:       lens,
	}

	// The insert transaction owns the dedup decision, so concurrent
	// replays of one key race safely: exactly one insert lands.
	existingID, err := p.store.InsertDocument(ctx, doc, in.IngestKey, p.cfg.DedupWindow)
	if err != nil {
		return nil, err
	}
	if existingID != "" {
		existing, err := p.store.GetDocument(ctx, existingID)
		if err != nil {
			return nil, err
		}
		return &Result{
			DocID:        existingID,
			Deduplicated: true,
			EmbedState:   existing.EmbedState,
		}, nil
	}

	state := p.tryEmbed(ctx, doc)
	return &Result{DocID: doc.ID, EmbedState: state}, nil
}

// tryEmbed makes the synchronous embedding attempt after commit. Any
// failure leaves the document pending and wakes the backfill worker.
func (p *Pipeline) tryEmbed(ctx context.Context, doc *store.Document) store.EmbedState {
	vec, err := p.embedder.Embed(ctx, doc.Canonical)
	if err == nil {
		emb := &store.Embedding{
			DocID:     doc.ID,
			BackendID: p.embedder.BackendID(),
			Vector:    vec,
		}
		if err = p.store.AttachEmbedding(ctx, emb, true); err == nil {
			return store.EmbedStateAttached
		}
	}

	p.logger.Warn("embedding deferred to backfill",
		"doc_id", doc.ID,
		"backend", p.embedder.BackendID(),
		"error", err,
		"code", storeerr.GetCode(err))

	if p.backfill != nil {
		p.backfill.Notify()
	}
	return store.EmbedStatePending
}
