// Package storage defines the capability interfaces the retrieval engine
// consumes: a graph store for entities, relations and chunks, and a vector
// index for similarity search. The engine treats both as opaque - it never
// constructs backend query strings itself, which keeps the ranking logic
// independent of any particular database.
package storage

import (
	"context"
	"errors"

	"github.com/kgfoundry/graphrag/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates invalid caller input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnavailable indicates the backing store could not be reached.
	ErrUnavailable = errors.New("store unavailable")
)

// IndexKind names an administrative index the graph store can create.
type IndexKind string

const (
	// IndexVector is the vector similarity index over embeddings.
	IndexVector IndexKind = "vector"
	// IndexFulltext is the full-text index over entity names.
	IndexFulltext IndexKind = "fulltext"
)

// ReachedEntity is one entity discovered during graph traversal, annotated
// with its hop distance from the seed set.
type ReachedEntity struct {
	Entity *types.Entity
	Hops   int // 0 for the seeds themselves
}

// TraversalResult is the outcome of one bounded graph expansion.
type TraversalResult struct {
	// Entities holds every reached entity, seeds included, ordered by hop
	// distance ascending then entity ID ascending for determinism.
	Entities []ReachedEntity

	// Relations holds the edges crossed during the expansion, ordered by
	// relation key for determinism.
	Relations []*types.Relation
}

// GraphStore is the persistent knowledge-graph capability. Implementations
// must make UpsertNode and UpsertEdge last-writer-merges for the same
// identity: concurrent upserts of the same logical entity serialize on the
// dedup key, never producing duplicates.
type GraphStore interface {
	// PutChunk stores an immutable text chunk. Re-putting an existing
	// chunk ID overwrites silently (chunks are content-addressed by
	// document and ordinal).
	PutChunk(ctx context.Context, chunk *types.Chunk) error

	// GetChunk retrieves a chunk by ID. Returns ErrNotFound if missing.
	GetChunk(ctx context.Context, id string) (*types.Chunk, error)

	// GetEntity retrieves an entity by ID. Returns ErrNotFound if missing.
	GetEntity(ctx context.Context, id string) (*types.Entity, error)

	// FindEntity looks an entity up by its dedup key (canonical name and
	// type, case-insensitive). Returns ErrNotFound if missing.
	FindEntity(ctx context.Context, name, entityType string) (*types.Entity, error)

	// UpsertNode creates or replaces the entity with the given ID.
	UpsertNode(ctx context.Context, entity *types.Entity) error

	// FindRelation looks a relation up by (from, to, type).
	// Returns ErrNotFound if missing.
	FindRelation(ctx context.Context, fromID, toID, relType string) (*types.Relation, error)

	// UpsertEdge creates or replaces the relation with the given
	// (from, to, type) key.
	UpsertEdge(ctx context.Context, relation *types.Relation) error

	// EntitiesForChunks returns the entities whose provenance includes any
	// of the given chunk IDs, ordered by entity ID for determinism.
	EntitiesForChunks(ctx context.Context, chunkIDs []string) ([]*types.Entity, error)

	// ChunksForEntities returns the chunks referenced by the given
	// entities' provenance, ordered by chunk ID for determinism.
	ChunksForEntities(ctx context.Context, entityIDs []string) ([]*types.Chunk, error)

	// Traverse expands outward from the seed entity IDs with breadth-first
	// search up to hopLimit hops. Each node expands at most fanoutCap
	// neighbors (ordered by relation key) to bound blow-up on highly
	// connected entities. Unknown seed IDs are ignored. hopLimit 0 returns
	// only the seeds.
	Traverse(ctx context.Context, seedIDs []string, hopLimit, fanoutCap int) (*TraversalResult, error)

	// CreateIndex performs one-time index setup of the given kind.
	// Creating an index that already exists is a no-op.
	CreateIndex(ctx context.Context, kind IndexKind) error

	// Stats returns the current graph size counters.
	Stats(ctx context.Context) (*GraphStats, error)

	// Close releases the underlying connection.
	Close() error
}

// GraphStats holds graph size counters for status reporting.
type GraphStats struct {
	Chunks    int `json:"chunks"`
	Entities  int `json:"entities"`
	Relations int `json:"relations"`
}

// VectorMatch is one ranked result from a vector similarity search.
type VectorMatch struct {
	ID    string  // chunk or entity ID
	Score float64 // similarity, higher is better; normalized to [0,1] by the backend
}

// VectorIndex is the similarity-search capability over embeddings.
type VectorIndex interface {
	// UpsertVector stores or replaces the embedding for the given ID.
	UpsertVector(ctx context.Context, id string, vector []float32) error

	// Search returns the k nearest vectors to the query, ordered by score
	// descending then ID ascending. An empty index returns an empty slice,
	// not an error.
	Search(ctx context.Context, query []float32, k int) ([]VectorMatch, error)
}
