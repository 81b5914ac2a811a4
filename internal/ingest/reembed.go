package ingest

import (
	"context"
	"log/slog"

	"github.com/Dadudekc/swarmmem/internal/embed"
	"github.com/Dadudekc/swarmmem/internal/store"
)

const reembedBatchSize = 32

// Reembed attaches embeddings under the target backend for every document
// that does not carry one yet. Existing rows for other backends stay, and
// the default backend's embedding sub-state is never touched, so the live
// corpus keeps serving queries throughout the migration. Returns the
// number of documents embedded.
func Reembed(ctx context.Context, st store.DocumentStore, target embed.Embedder, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	backendID := target.BackendID()
	total := 0

	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		docs, err := st.ListMissingEmbeddings(ctx, backendID, reembedBatchSize)
		if err != nil {
			return total, err
		}
		if len(docs) == 0 {
			return total, nil
		}

		texts := make([]string, len(docs))
		for i, doc := range docs {
			texts[i] = doc.Canonical
		}

		vectors, err := target.EmbedBatch(ctx, texts)
		if err != nil {
			return total, err
		}

		for i, doc := range docs {
			emb := &store.Embedding{
				DocID:     doc.ID,
				BackendID: backendID,
				Vector:    vectors[i],
			}
			if err := st.AttachEmbedding(ctx, emb, false); err != nil {
				return total, err
			}
			total++
		}

		logger.Debug("reembed batch complete", "backend", backendID, "done", total)
	}
}
