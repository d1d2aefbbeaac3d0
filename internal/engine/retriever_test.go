package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgfoundry/graphrag/internal/llm"
	"github.com/kgfoundry/graphrag/internal/storage/sqlite"
	"github.com/kgfoundry/graphrag/pkg/types"
)

// fakeEmbedder returns canned vectors per text, with a shared fallback for
// anything unlisted.
type fakeEmbedder struct {
	vectors map[string][]float32
	fail    bool
	calls   int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.fail {
		return nil, llm.ErrUnavailable
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func (f *fakeEmbedder) GetModel() string { return "fake-embed" }

func newGraphFixture(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func addChunk(t *testing.T, store *sqlite.Store, id, text string, vector []float32) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.PutChunk(ctx, &types.Chunk{ID: id, DocumentID: "doc", Text: text}))
	require.NoError(t, store.UpsertVector(ctx, id, vector))
}

func addEntity(t *testing.T, store *sqlite.Store, name, entityType string, chunkIDs ...string) *types.Entity {
	t.Helper()
	now := time.Now().UTC()
	entity := &types.Entity{
		ID:        types.EntityID(name, entityType),
		Name:      name,
		Type:      entityType,
		CreatedAt: now,
		UpdatedAt: now,
		ChunkIDs:  chunkIDs,
	}
	require.NoError(t, store.UpsertNode(context.Background(), entity))
	return entity
}

func addRelation(t *testing.T, store *sqlite.Store, from, to *types.Entity, relType string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, store.UpsertEdge(context.Background(), &types.Relation{
		ID:         "rel:" + from.Name + "-" + to.Name,
		FromID:     from.ID,
		ToID:       to.ID,
		Type:       relType,
		Confidence: 0.9,
		CreatedAt:  now,
		UpdatedAt:  now,
	}))
}

// newWorkplaceFixture builds a small graph: one chunk mentioning Alice,
// who works for Acme. The chunk's vector matches the "who is alice" query.
func newWorkplaceFixture(t *testing.T) (*sqlite.Store, *fakeEmbedder) {
	t.Helper()
	store := newGraphFixture(t)

	addChunk(t, store, "chunk:doc:0", "Alice is a software engineer.", []float32{1, 0, 0})
	alice := addEntity(t, store, "Alice", "Person", "chunk:doc:0")
	acme := addEntity(t, store, "Acme", "Organization")
	addRelation(t, store, alice, acme, "WORKS_FOR")

	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"who is alice": {1, 0, 0},
	}}
	return store, embedder
}

func TestRetrieveValidatesArguments(t *testing.T) {
	store, embedder := newWorkplaceFixture(t)
	retriever := NewRetriever(embedder, store, store, RetrieverOptions{})

	_, err := retriever.Retrieve(context.Background(), "who is alice", 0, false, 1)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = retriever.Retrieve(context.Background(), "who is alice", 5, true, -1)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	// Validation happens before the embedding call.
	assert.Zero(t, embedder.calls)
}

func TestRetrieveEmptyIndexReturnsEmpty(t *testing.T) {
	store := newGraphFixture(t)
	retriever := NewRetriever(&fakeEmbedder{}, store, store, RetrieverOptions{})

	for _, useGraph := range []bool{false, true} {
		result, err := retriever.Retrieve(context.Background(), "anything", 5, useGraph, 2)
		require.NoError(t, err)
		assert.Empty(t, result.Candidates, "useGraph=%v", useGraph)
	}
}

func TestRetrieveEmbeddingFailurePropagates(t *testing.T) {
	store, _ := newWorkplaceFixture(t)
	retriever := NewRetriever(&fakeEmbedder{fail: true}, store, store, RetrieverOptions{})

	_, err := retriever.Retrieve(context.Background(), "who is alice", 5, true, 1)
	assert.ErrorIs(t, err, llm.ErrUnavailable)
}

func TestVectorOnlyModeIsolation(t *testing.T) {
	store, embedder := newWorkplaceFixture(t)
	retriever := NewRetriever(embedder, store, store, RetrieverOptions{})

	result, err := retriever.Retrieve(context.Background(), "who is alice", 5, false, 2)
	require.NoError(t, err)
	require.NotEmpty(t, result.Candidates)
	for _, candidate := range result.Candidates {
		assert.NotEqual(t, types.PathGraph, candidate.Path,
			"vector-only retrieval must never surface graph-path candidates")
	}
	assert.Empty(t, result.Facts)
}

func TestGraphExpansionSurfacesNeighbor(t *testing.T) {
	store, embedder := newWorkplaceFixture(t)
	retriever := NewRetriever(embedder, store, store, RetrieverOptions{})

	result, err := retriever.Retrieve(context.Background(), "who is alice", 10, true, 1)
	require.NoError(t, err)

	byRef := make(map[string]types.RetrievalCandidate)
	for _, candidate := range result.Candidates {
		byRef[candidate.Ref] = candidate
	}

	// Acme has zero vector similarity to the query but is one hop away.
	acme, ok := byRef["ent:organization:acme"]
	require.True(t, ok, "expected the WORKS_FOR neighbor as a candidate")
	assert.Equal(t, types.PathGraph, acme.Path)
	assert.False(t, acme.HasSimilarity)
	require.True(t, acme.HasGraphDistance)
	assert.Equal(t, 1, acme.GraphDistance)

	// Alice is a seed, hop 0.
	alice, ok := byRef["ent:person:alice"]
	require.True(t, ok)
	assert.Equal(t, 0, alice.GraphDistance)

	require.Len(t, result.Facts, 1)
	assert.Equal(t, "Alice - WORKS_FOR -> Acme", result.Facts[0])
}

func TestHopLimitZeroKeepsSeeds(t *testing.T) {
	store, embedder := newWorkplaceFixture(t)
	retriever := NewRetriever(embedder, store, store, RetrieverOptions{})

	result, err := retriever.Retrieve(context.Background(), "who is alice", 10, true, 0)
	require.NoError(t, err)

	refs := candidateRefs(result)
	assert.Contains(t, refs, "chunk:doc:0")
	assert.Contains(t, refs, "ent:person:alice", "hop 0 keeps the seed entities themselves")
	assert.NotContains(t, refs, "ent:organization:acme")
}

func TestHopLimitMonotonicity(t *testing.T) {
	store := newGraphFixture(t)
	addChunk(t, store, "chunk:doc:0", "Start of a chain.", []float32{1, 0, 0})
	a := addEntity(t, store, "Alpha", "Concept", "chunk:doc:0")
	b := addEntity(t, store, "Bravo", "Concept")
	c := addEntity(t, store, "Charlie", "Concept")
	addRelation(t, store, a, b, "RELATED_TO")
	addRelation(t, store, b, c, "RELATED_TO")

	embedder := &fakeEmbedder{vectors: map[string][]float32{"chain": {1, 0, 0}}}
	retriever := NewRetriever(embedder, store, store, RetrieverOptions{})

	var previous map[string]bool
	for hops := 0; hops <= 3; hops++ {
		result, err := retriever.Retrieve(context.Background(), "chain", 100, true, hops)
		require.NoError(t, err)

		current := make(map[string]bool)
		for _, candidate := range result.Candidates {
			current[candidate.Ref] = true
		}
		for ref := range previous {
			assert.True(t, current[ref], "hop %d lost candidate %s present at hop %d", hops, ref, hops-1)
		}
		previous = current
	}
}

func TestRetrieveDeterminism(t *testing.T) {
	store, embedder := newWorkplaceFixture(t)
	addChunk(t, store, "chunk:doc:1", "Acme ships widgets.", []float32{0.8, 0.2, 0})
	retriever := NewRetriever(embedder, store, store, RetrieverOptions{})

	first, err := retriever.Retrieve(context.Background(), "who is alice", 10, true, 2)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := retriever.Retrieve(context.Background(), "who is alice", 10, true, 2)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCombinedScoreFavorsVectorAndProximity(t *testing.T) {
	store, embedder := newWorkplaceFixture(t)
	retriever := NewRetriever(embedder, store, store, RetrieverOptions{
		VectorWeight: 0.7,
		GraphWeight:  0.3,
	})

	result, err := retriever.Retrieve(context.Background(), "who is alice", 10, true, 1)
	require.NoError(t, err)
	require.NotEmpty(t, result.Candidates)

	// Scores are the documented linear combination.
	for _, candidate := range result.Candidates {
		var vectorTerm, graphTerm float64
		if candidate.HasSimilarity {
			vectorTerm = candidate.Similarity
		}
		if candidate.HasGraphDistance {
			graphTerm = 1 / (1 + float64(candidate.GraphDistance))
		}
		assert.InDelta(t, 0.7*vectorTerm+0.3*graphTerm, candidate.Score, 1e-9)
	}

	// Ordering is score-descending.
	for i := 1; i < len(result.Candidates); i++ {
		assert.GreaterOrEqual(t, result.Candidates[i-1].Score, result.Candidates[i].Score)
	}
}

func TestMergedPathKeepsVectorScore(t *testing.T) {
	store := newGraphFixture(t)
	addChunk(t, store, "chunk:doc:0", "Alice at work.", []float32{1, 0, 0})
	alice := addEntity(t, store, "Alice", "Person", "chunk:doc:0")

	// Alice's entity is itself vector-indexed, so graph expansion re-finds
	// a vector candidate.
	require.NoError(t, store.UpsertVector(context.Background(), alice.ID, []float32{0.9, 0.1, 0}))

	embedder := &fakeEmbedder{vectors: map[string][]float32{"alice": {1, 0, 0}}}
	retriever := NewRetriever(embedder, store, store, RetrieverOptions{})

	result, err := retriever.Retrieve(context.Background(), "alice", 10, true, 1)
	require.NoError(t, err)

	for _, candidate := range result.Candidates {
		if candidate.Ref == alice.ID {
			assert.Equal(t, types.PathBoth, candidate.Path)
			assert.True(t, candidate.HasSimilarity, "merged candidates keep the vector score")
			assert.True(t, candidate.HasGraphDistance)
			return
		}
	}
	t.Fatal("expected alice to be a merged candidate")
}

func TestTopKTruncation(t *testing.T) {
	store := newGraphFixture(t)
	addChunk(t, store, "chunk:doc:0", "first", []float32{1, 0, 0})
	addChunk(t, store, "chunk:doc:1", "second", []float32{0.9, 0.1, 0})
	addChunk(t, store, "chunk:doc:2", "third", []float32{0.8, 0.2, 0})

	embedder := &fakeEmbedder{vectors: map[string][]float32{"q": {1, 0, 0}}}
	retriever := NewRetriever(embedder, store, store, RetrieverOptions{})

	result, err := retriever.Retrieve(context.Background(), "q", 2, false, 0)
	require.NoError(t, err)
	require.Len(t, result.Candidates, 2)
	assert.Equal(t, "chunk:doc:0", result.Candidates[0].Ref)
	assert.Equal(t, "chunk:doc:1", result.Candidates[1].Ref)
}

func candidateRefs(result *RetrievalResult) []string {
	refs := make([]string, len(result.Candidates))
	for i, candidate := range result.Candidates {
		refs[i] = candidate.Ref
	}
	return refs
}
