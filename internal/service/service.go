// Package service assembles the memory store: persistence, embedding,
// ingestion, retrieval, and lifecycle behind one facade that the CLI and
// the MCP server both consume.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/Dadudekc/swarmmem/internal/config"
	"github.com/Dadudekc/swarmmem/internal/embed"
	"github.com/Dadudekc/swarmmem/internal/ingest"
	"github.com/Dadudekc/swarmmem/internal/query"
	"github.com/Dadudekc/swarmmem/internal/store"
)

// Service owns every component of a running memory store instance.
type Service struct {
	cfg      *config.Config
	store    store.DocumentStore
	embedder embed.Embedder
	pipeline *ingest.Pipeline
	backfill *ingest.Backfill
	engine   *query.Engine
	logger   *slog.Logger

	cancel context.CancelFunc
}

// New opens the store and starts the background workers. Close must be
// called to release the data directory lock.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.Open(ctx, cfg.Paths.DataDir, logger)
	if err != nil {
		return nil, err
	}

	embedder, err := embed.NewEmbedder(ctx, cfg.Embeddings)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	bgCtx, cancel := context.WithCancel(context.Background())

	backfill := ingest.NewBackfill(st, embedder, cfg.Ingest, logger)
	s := &Service{
		cfg:      cfg,
		store:    st,
		embedder: embedder,
		pipeline: ingest.NewPipeline(st, embedder, backfill, cfg.Ingest, logger),
		backfill: backfill,
		engine:   query.NewEngine(st, embedder, logger),
		logger:   logger,
		cancel:   cancel,
	}

	backfill.Start(bgCtx)
	go s.maintenanceLoop(bgCtx)

	logger.Info("memory store ready",
		"data_dir", cfg.Paths.DataDir,
		"backend", embedder.BackendID())
	return s, nil
}

// Close stops the workers and releases the store.
func (s *Service) Close() error {
	s.cancel()
	s.backfill.Stop()
	_ = s.embedder.Close()
	return s.store.Close()
}

// Record ingests one raw activity record.
func (s *Service) Record(ctx context.Context, in ingest.Input) (*ingest.Result, error) {
	return s.pipeline.Record(ctx, in)
}

// Search runs semantic similarity search.
func (s *Service) Search(ctx context.Context, text string, opts query.Options) (*query.Result, error) {
	return s.engine.Search(ctx, text, opts)
}

// Keyword runs a plain keyword search.
func (s *Service) Keyword(ctx context.Context, text string, opts query.Options) (*query.Result, error) {
	return s.engine.Keyword(ctx, text, opts)
}

// FindSimilar ranks documents nearest to a reference document.
func (s *Service) FindSimilar(ctx context.Context, docID string, opts query.Options) (*query.Result, error) {
	return s.engine.FindSimilar(ctx, docID, opts)
}

// Expertise ranks an agent's documents by recency-decayed success.
func (s *Service) Expertise(ctx context.Context, agentID string, opts query.Options) (*query.Result, error) {
	return s.engine.Expertise(ctx, agentID, opts)
}

// ProjectPatterns ranks a project's documents by recency-decayed success.
func (s *Service) ProjectPatterns(ctx context.Context, project string, opts query.Options) (*query.Result, error) {
	return s.engine.ProjectPatterns(ctx, project, opts)
}

// GetDocument returns one full document record.
func (s *Service) GetDocument(ctx context.Context, docID string) (*store.Document, error) {
	return s.engine.GetDocument(ctx, docID)
}

// Stats aggregates document counts and embedding coverage.
func (s *Service) Stats(ctx context.Context, scope store.Scope) (*store.Stats, error) {
	return s.store.GetStats(ctx, scope)
}

// Cleanup applies the configured retention bounds immediately and reports
// how many documents were removed.
func (s *Service) Cleanup(ctx context.Context, scope store.Scope) (int, error) {
	maxAge := time.Duration(s.cfg.Retention.MaxAgeDays) * 24 * time.Hour
	return s.store.Cleanup(ctx, maxAge, s.cfg.Retention.MaxCount, scope)
}

// Reembed migrates the corpus to a new backend: every document missing an
// embedding under target gets one, without touching the live corpus.
// The target becomes queryable once the migration returns.
func (s *Service) Reembed(ctx context.Context, target embed.Embedder) (int, error) {
	n, err := ingest.Reembed(ctx, s.store, target, s.logger)
	if err != nil {
		return n, err
	}
	s.engine.RegisterBackend(target)
	return n, nil
}

// DefaultBackendID names the backend used for ingestion and default
// queries.
func (s *Service) DefaultBackendID() string { return s.embedder.BackendID() }

// maintenanceLoop applies retention and purges expired idempotency keys
// on a fixed cadence. A zeroed retention config makes the pass a no-op.
func (s *Service) maintenanceLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.cfg.Retention.MaxAgeDays > 0 || s.cfg.Retention.MaxCount > 0 {
				removed, err := s.Cleanup(ctx, store.Scope{})
				if err != nil {
					s.logger.Error("retention pass failed", "error", err)
				} else if removed > 0 {
					s.logger.Info("retention pass removed documents", "count", removed)
				}
			}
			if err := s.store.PurgeIngestKeys(ctx, 2*s.cfg.Ingest.DedupWindow); err != nil {
				s.logger.Error("ingest key purge failed", "error", err)
			}
		}
	}
}
