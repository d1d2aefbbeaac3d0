package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/kgfoundry/graphrag/internal/storage"
	"github.com/kgfoundry/graphrag/pkg/types"
)

// Upserter merges extracted entities and relations into the graph store,
// deduplicating by canonical identity. It is idempotent: re-running the
// same batch changes nothing beyond confidence bookkeeping.
type Upserter struct {
	graph storage.GraphStore
}

// NewUpserter creates an upserter over the given graph store.
func NewUpserter(graph storage.GraphStore) *Upserter {
	return &Upserter{graph: graph}
}

// Upsert commits one extraction batch. Entities merge by (canonical name,
// type): an existing node keeps its ID and unions provenance. Relations
// merge by (from, to, type) with confidence kept at the maximum seen.
// Relations whose endpoints cannot be resolved are dropped and reported as
// conflicts, never failing the batch. The returned error is non-nil only
// for store failures.
func (u *Upserter) Upsert(ctx context.Context, entities []*types.Entity, relations []*types.Relation) (*types.UpsertReport, error) {
	report := &types.UpsertReport{}
	now := time.Now().UTC()

	for _, entity := range entities {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		existing, err := u.graph.FindEntity(ctx, entity.Name, entity.Type)
		switch {
		case err == storage.ErrNotFound:
			node := *entity
			if node.ID == "" {
				node.ID = types.EntityID(node.Name, node.Type)
			}
			if node.CreatedAt.IsZero() {
				node.CreatedAt = now
			}
			node.UpdatedAt = now
			if err := u.graph.UpsertNode(ctx, &node); err != nil {
				return report, fmt.Errorf("upserting entity %s: %w", node.ID, err)
			}
			report.EntitiesCreated++
		case err != nil:
			return report, fmt.Errorf("looking up entity %q: %w", entity.Name, err)
		default:
			merged := *existing
			merged.ChunkIDs = append(merged.ChunkIDs, entity.ChunkIDs...)
			if merged.Description == "" {
				merged.Description = entity.Description
			}
			merged.UpdatedAt = now
			if err := u.graph.UpsertNode(ctx, &merged); err != nil {
				return report, fmt.Errorf("merging entity %s: %w", merged.ID, err)
			}
			report.EntitiesMerged++
		}
	}

	for _, relation := range relations {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if reason, orphan := u.orphanReason(ctx, relation); orphan {
			report.Conflicts = append(report.Conflicts, types.UpsertConflict{
				Relation: *relation,
				Reason:   reason,
			})
			log.Printf("engine: dropping orphan relation %s -%s-> %s: %s",
				relation.FromID, relation.Type, relation.ToID, reason)
			continue
		}

		existing, err := u.graph.FindRelation(ctx, relation.FromID, relation.ToID, relation.Type)
		switch {
		case err == storage.ErrNotFound:
			edge := *relation
			if edge.CreatedAt.IsZero() {
				edge.CreatedAt = now
			}
			edge.UpdatedAt = now
			if err := u.graph.UpsertEdge(ctx, &edge); err != nil {
				return report, fmt.Errorf("upserting relation %s: %w", edge.ID, err)
			}
			report.RelationsCreated++
		case err != nil:
			return report, fmt.Errorf("looking up relation %s: %w", relation.Key(), err)
		default:
			merged := *existing
			// Max keeps repeated identical upserts a no-op.
			if relation.Confidence > merged.Confidence {
				merged.Confidence = relation.Confidence
			}
			merged.ChunkIDs = append(merged.ChunkIDs, relation.ChunkIDs...)
			merged.UpdatedAt = now
			if err := u.graph.UpsertEdge(ctx, &merged); err != nil {
				return report, fmt.Errorf("merging relation %s: %w", merged.ID, err)
			}
			report.RelationsMerged++
		}
	}

	return report, nil
}

// orphanReason reports whether either relation endpoint is missing from the
// graph.
func (u *Upserter) orphanReason(ctx context.Context, relation *types.Relation) (string, bool) {
	for _, endpoint := range []string{relation.FromID, relation.ToID} {
		if _, err := u.graph.GetEntity(ctx, endpoint); err == storage.ErrNotFound {
			return fmt.Sprintf("entity %s does not exist", endpoint), true
		}
	}
	return "", false
}
