package embed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Dadudekc/swarmmem/internal/config"
)

// NewEmbedder resolves the configured default backend. The concrete
// backend is resolved once here and injected into ingestion and
// retrieval at construction time; there is no global registry.
//
// An unreachable Ollama server is not a startup failure: the embedder is
// still constructed and documents ingest in the pending state until
// backfill succeeds.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	var inner Embedder

	switch cfg.Provider {
	case "static", "":
		inner = NewStaticEmbedder()

	case "ollama":
		ollamaCfg := OllamaConfig{
			Host:            cfg.OllamaHost,
			Model:           cfg.Model,
			Dimensions:      cfg.Dimensions,
			BatchSize:       cfg.BatchSize,
			Timeout:         cfg.Timeout,
			SkipHealthCheck: true,
		}

		e, err := NewOllamaEmbedder(ctx, ollamaCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama embedder: %w", err)
		}

		if !e.Available(ctx) {
			slog.Warn("embedding backend unreachable, documents will ingest pending",
				slog.String("backend", e.BackendID()),
				slog.String("host", ollamaCfg.Host))
		} else if e.Dimensions() == 0 {
			if dims, err := e.detectDimensions(ctx); err == nil {
				e.mu.Lock()
				e.dims = dims
				e.mu.Unlock()
			}
		}
		inner = e

	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", cfg.Provider)
	}

	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}
