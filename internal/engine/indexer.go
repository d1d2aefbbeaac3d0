package engine

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/time/rate"

	"github.com/kgfoundry/graphrag/internal/llm"
	"github.com/kgfoundry/graphrag/internal/storage"
	"github.com/kgfoundry/graphrag/pkg/types"
)

// IndexItem is one (id, text) pair to embed and store.
type IndexItem struct {
	ID   string
	Text string
}

// Indexer embeds items and persists their vectors. Embedding calls are
// rate-limited to stay inside provider quotas.
type Indexer struct {
	embedder llm.EmbeddingGenerator
	vectors  storage.VectorIndex
	limiter  *rate.Limiter
}

// NewIndexer creates an indexer. ratePerSecond bounds embedding calls;
// values <= 0 disable the limit.
func NewIndexer(embedder llm.EmbeddingGenerator, vectors storage.VectorIndex, ratePerSecond float64) *Indexer {
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	return &Indexer{
		embedder: embedder,
		vectors:  vectors,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

// Index embeds and persists every item. Items embedded before a failure
// stay persisted; the report separates succeeded from failed IDs so callers
// retry only the failures. When the embedding collaborator becomes
// unreachable the remaining items are marked failed without further calls.
// The returned error is non-nil only for context cancellation.
func (x *Indexer) Index(ctx context.Context, items []IndexItem) (*types.IndexReport, error) {
	report := &types.IndexReport{}

	for i, item := range items {
		if err := x.limiter.Wait(ctx); err != nil {
			return report, err
		}

		vector, err := x.embedder.Embed(ctx, item.Text)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, ctxErr
			}
			report.Failed = append(report.Failed, types.IndexFailure{ID: item.ID, Err: err.Error()})
			if errors.Is(err, llm.ErrUnavailable) {
				// Provider is down; fail the rest of the batch up front.
				log.Printf("engine: embedding provider unavailable, failing %d remaining items", len(items)-i-1)
				for _, rest := range items[i+1:] {
					report.Failed = append(report.Failed, types.IndexFailure{
						ID:  rest.ID,
						Err: fmt.Sprintf("skipped: %v", err),
					})
				}
				return report, nil
			}
			continue
		}

		if err := x.vectors.UpsertVector(ctx, item.ID, vector); err != nil {
			report.Failed = append(report.Failed, types.IndexFailure{ID: item.ID, Err: err.Error()})
			continue
		}
		report.Succeeded = append(report.Succeeded, item.ID)
	}
	return report, nil
}
