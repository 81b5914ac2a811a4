package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Dadudekc/swarmmem/internal/config"
	"github.com/Dadudekc/swarmmem/internal/embed"
	"github.com/Dadudekc/swarmmem/internal/store"
)

const backfillBatchSize = 64

// Backfill retries embedding attachment for pending documents in the
// background. One pass lists pending documents oldest first and embeds
// them on a bounded worker pool; passes that still fail back off
// exponentially so an unreachable backend is not hammered.
type Backfill struct {
	store    store.DocumentStore
	embedder embed.Embedder
	cfg      config.IngestConfig
	retry    embed.RetryConfig
	logger   *slog.Logger

	notify chan struct{}
	stop   chan struct{}
	wg     sync.WaitGroup

	// consecutive fully-failed passes, drives the backoff delay
	streak int
}

// NewBackfill creates the backfill worker. Start must be called before
// Notify has any effect.
func NewBackfill(st store.DocumentStore, embedder embed.Embedder, cfg config.IngestConfig, logger *slog.Logger) *Backfill {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backfill{
		store:    st,
		embedder: embedder,
		cfg:      cfg,
		retry: embed.RetryConfig{
			MaxRetries:   cfg.MaxAttempts,
			InitialDelay: cfg.RetryInitialDelay,
			MaxDelay:     cfg.RetryMaxDelay,
			Multiplier:   cfg.RetryMultiplier,
		},
		logger: logger,
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
}

// Start launches the background loop. It drains once immediately so
// documents left pending by a previous process are picked up at boot.
func (b *Backfill) Start(ctx context.Context) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.run(ctx)
	}()
}

// Notify wakes the loop after a synchronous embedding attempt failed.
// Non-blocking; a pending wakeup is enough.
func (b *Backfill) Notify() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Stop shuts the loop down and waits for the in-flight pass.
func (b *Backfill) Stop() {
	close(b.stop)
	b.wg.Wait()
}

func (b *Backfill) run(ctx context.Context) {
	for {
		b.drain(ctx)

		delay := b.retry.DelayForAttempt(b.streak)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-b.stop:
			timer.Stop()
			return
		case <-b.notify:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// drain runs passes until the pending set is empty or stops making
// progress.
func (b *Backfill) drain(ctx context.Context) {
	for {
		attached, failed, err := b.RunOnce(ctx)
		if err != nil {
			b.logger.Error("backfill pass failed", "error", err)
			return
		}
		if attached == 0 && failed == 0 {
			return
		}
		if attached == 0 {
			// No progress this pass, grow the backoff.
			b.streak++
			return
		}
		b.streak = 0
	}
}

// RunOnce processes one batch of pending documents and reports how many
// embeddings were attached and how many attempts failed.
func (b *Backfill) RunOnce(ctx context.Context) (attached, failed int, err error) {
	docs, err := b.store.ListPendingDocs(ctx, backfillBatchSize)
	if err != nil {
		return 0, 0, err
	}
	if len(docs) == 0 {
		return 0, 0, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers())

	for _, doc := range docs {
		doc := doc
		g.Go(func() error {
			vec, embedErr := b.embedder.Embed(gctx, doc.Canonical)
			if embedErr != nil {
				nowFailed, recErr := b.store.RecordEmbedFailure(gctx, doc.ID, b.cfg.MaxAttempts)
				if recErr != nil {
					return recErr
				}
				if nowFailed {
					b.logger.Warn("document exhausted embedding attempts",
						"doc_id", doc.ID, "attempts", b.cfg.MaxAttempts, "error", embedErr)
				}
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}

			emb := &store.Embedding{
				DocID:     doc.ID,
				BackendID: b.embedder.BackendID(),
				Vector:    vec,
			}
			if attachErr := b.store.AttachEmbedding(gctx, emb, true); attachErr != nil {
				return attachErr
			}
			mu.Lock()
			attached++
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return attached, failed, err
	}

	if attached > 0 {
		b.logger.Debug("backfill pass complete", "attached", attached, "failed", failed)
	}
	return attached, failed, nil
}

func (b *Backfill) workers() int {
	if b.cfg.BackfillWorkers < 1 {
		return 1
	}
	return b.cfg.BackfillWorkers
}
