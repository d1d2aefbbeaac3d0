package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kgfoundry/graphrag/internal/llm"
	"github.com/kgfoundry/graphrag/internal/storage"
	"github.com/kgfoundry/graphrag/pkg/types"
)

// RetrieverOptions are the hybrid ranking knobs.
type RetrieverOptions struct {
	// FanoutCap bounds neighbors expanded per node during traversal.
	FanoutCap int

	// OverfetchFactor multiplies top-k for the initial vector search so
	// graph re-ranking has slack to reorder.
	OverfetchFactor int

	// VectorWeight and GraphWeight are the linear combination weights.
	VectorWeight float64
	GraphWeight  float64
}

func (o *RetrieverOptions) normalize() {
	if o.FanoutCap <= 0 {
		o.FanoutCap = 10
	}
	if o.OverfetchFactor <= 0 {
		o.OverfetchFactor = 3
	}
	if o.VectorWeight == 0 && o.GraphWeight == 0 {
		o.VectorWeight = 0.7
		o.GraphWeight = 0.3
	}
}

// RetrievalResult is the ranked evidence for one query.
type RetrievalResult struct {
	// Candidates is the ranked candidate list, truncated to top-k.
	Candidates []types.RetrievalCandidate

	// Facts are formatted relation lines ("src - TYPE -> dst") crossed
	// during graph expansion, for rendering into the answer context.
	Facts []string
}

// Retriever orchestrates vector search, bounded graph expansion and joint
// ranking. It holds no query-scoped state; concurrent queries share one
// instance.
type Retriever struct {
	embedder llm.EmbeddingGenerator
	vectors  storage.VectorIndex
	graph    storage.GraphStore
	opts     RetrieverOptions
}

// NewRetriever creates a retriever over the given collaborators.
func NewRetriever(embedder llm.EmbeddingGenerator, vectors storage.VectorIndex, graph storage.GraphStore, opts RetrieverOptions) *Retriever {
	opts.normalize()
	return &Retriever{embedder: embedder, vectors: vectors, graph: graph, opts: opts}
}

// Retrieve embeds the query and runs the retrieval algorithm. topK must be
// positive and hopLimit non-negative; both are validated before any
// collaborator call.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, useGraph bool, hopLimit int) (*RetrievalResult, error) {
	if err := validateRetrieveArgs(topK, hopLimit); err != nil {
		return nil, err
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding collaborator: %w", err)
	}
	return r.RetrieveEmbedded(ctx, vector, topK, useGraph, hopLimit)
}

// RetrieveEmbedded runs retrieval against an already-embedded query vector.
// Comparison mode uses it to embed once and retrieve twice.
func (r *Retriever) RetrieveEmbedded(ctx context.Context, vector []float32, topK int, useGraph bool, hopLimit int) (*RetrievalResult, error) {
	if err := validateRetrieveArgs(topK, hopLimit); err != nil {
		return nil, err
	}

	matches, err := r.vectors.Search(ctx, vector, topK*r.opts.OverfetchFactor)
	if err != nil {
		return nil, fmt.Errorf("vector index: %w", err)
	}

	candidates, order, err := r.vectorCandidates(ctx, matches)
	if err != nil {
		return nil, err
	}

	if !useGraph {
		ranked := rankVectorOnly(candidates, order)
		if len(ranked) > topK {
			ranked = ranked[:topK]
		}
		return &RetrievalResult{Candidates: ranked}, nil
	}

	facts, err := r.expandGraph(ctx, candidates, order, topK, hopLimit)
	if err != nil {
		return nil, err
	}

	ranked := r.rankCombined(candidates)
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return &RetrievalResult{Candidates: ranked, Facts: facts}, nil
}

func validateRetrieveArgs(topK, hopLimit int) error {
	if topK <= 0 {
		return fmt.Errorf("%w: topK must be positive", ErrInvalidArgument)
	}
	if hopLimit < 0 {
		return fmt.Errorf("%w: hopLimit must be non-negative", ErrInvalidArgument)
	}
	return nil
}

// vectorCandidates resolves vector matches into candidates, skipping stale
// IDs whose backing chunk or entity no longer exists. order preserves the
// match order for seeding.
func (r *Retriever) vectorCandidates(ctx context.Context, matches []storage.VectorMatch) (map[string]*types.RetrievalCandidate, []string, error) {
	candidates := make(map[string]*types.RetrievalCandidate, len(matches))
	var order []string

	for _, match := range matches {
		if _, ok := candidates[match.ID]; ok {
			continue
		}

		candidate := types.RetrievalCandidate{
			Ref:           match.ID,
			Path:          types.PathVector,
			Similarity:    match.Score,
			HasSimilarity: true,
		}
		if strings.HasPrefix(match.ID, "ent:") {
			entity, err := r.graph.GetEntity(ctx, match.ID)
			if err == storage.ErrNotFound {
				continue
			}
			if err != nil {
				return nil, nil, fmt.Errorf("graph store: %w", err)
			}
			candidate.Kind = types.RefEntity
			candidate.Text = formatEntity(entity)
		} else {
			chunk, err := r.graph.GetChunk(ctx, match.ID)
			if err == storage.ErrNotFound {
				continue
			}
			if err != nil {
				return nil, nil, fmt.Errorf("graph store: %w", err)
			}
			candidate.Kind = types.RefChunk
			candidate.Text = chunk.Text
		}

		candidates[match.ID] = &candidate
		order = append(order, match.ID)
	}
	return candidates, order, nil
}

// expandGraph seeds traversal from the entities of the top vector chunks,
// folds reached entities into the candidate map, and returns the formatted
// relation facts crossed.
func (r *Retriever) expandGraph(ctx context.Context, candidates map[string]*types.RetrievalCandidate, order []string, topK, hopLimit int) ([]string, error) {
	var seedChunks []string
	for _, ref := range order {
		if candidates[ref].Kind == types.RefChunk {
			seedChunks = append(seedChunks, ref)
		}
		if len(seedChunks) == topK {
			break
		}
	}

	seeds, err := r.graph.EntitiesForChunks(ctx, seedChunks)
	if err != nil {
		return nil, fmt.Errorf("graph store: %w", err)
	}
	if len(seeds) == 0 {
		return nil, nil
	}

	seedIDs := make([]string, len(seeds))
	for i, seed := range seeds {
		seedIDs[i] = seed.ID
	}

	traversal, err := r.graph.Traverse(ctx, seedIDs, hopLimit, r.opts.FanoutCap)
	if err != nil {
		return nil, fmt.Errorf("graph store: %w", err)
	}

	names := make(map[string]string, len(traversal.Entities))
	for _, reached := range traversal.Entities {
		names[reached.Entity.ID] = reached.Entity.Name

		if existing, ok := candidates[reached.Entity.ID]; ok {
			// Found by both paths: keep the vector score.
			existing.Path = types.PathBoth
			existing.GraphDistance = reached.Hops
			existing.HasGraphDistance = true
			continue
		}
		candidates[reached.Entity.ID] = &types.RetrievalCandidate{
			Ref:              reached.Entity.ID,
			Kind:             types.RefEntity,
			Text:             formatEntity(reached.Entity),
			Path:             types.PathGraph,
			GraphDistance:    reached.Hops,
			HasGraphDistance: true,
		}
	}

	facts := make([]string, 0, len(traversal.Relations))
	for _, relation := range traversal.Relations {
		facts = append(facts, formatFact(relation, names))
	}
	return facts, nil
}

// rankVectorOnly orders candidates by similarity descending, ref ascending.
func rankVectorOnly(candidates map[string]*types.RetrievalCandidate, order []string) []types.RetrievalCandidate {
	ranked := make([]types.RetrievalCandidate, 0, len(order))
	for _, ref := range order {
		candidate := *candidates[ref]
		candidate.Score = candidate.Similarity
		ranked = append(ranked, candidate)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Similarity != ranked[j].Similarity {
			return ranked[i].Similarity > ranked[j].Similarity
		}
		return ranked[i].Ref < ranked[j].Ref
	})
	return ranked
}

// rankCombined scores every candidate with the linear combination
// w_v*similarity + w_g*(1/(1+distance)) and orders by score descending.
// Ties break on raw similarity descending, then graph distance ascending,
// then ref ascending, so the ordering is fully deterministic.
func (r *Retriever) rankCombined(candidates map[string]*types.RetrievalCandidate) []types.RetrievalCandidate {
	ranked := make([]types.RetrievalCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		c := *candidate
		var vectorTerm, graphTerm float64
		if c.HasSimilarity {
			vectorTerm = c.Similarity
		}
		if c.HasGraphDistance {
			graphTerm = 1 / (1 + float64(c.GraphDistance))
		}
		c.Score = r.opts.VectorWeight*vectorTerm + r.opts.GraphWeight*graphTerm
		ranked = append(ranked, c)
	}

	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if simA, simB := rawSimilarity(a), rawSimilarity(b); simA != simB {
			return simA > simB
		}
		if distA, distB := rawDistance(a), rawDistance(b); distA != distB {
			return distA < distB
		}
		return a.Ref < b.Ref
	})
	return ranked
}

func rawSimilarity(c types.RetrievalCandidate) float64 {
	if !c.HasSimilarity {
		return -1
	}
	return c.Similarity
}

func rawDistance(c types.RetrievalCandidate) int {
	if !c.HasGraphDistance {
		return int(^uint(0) >> 1)
	}
	return c.GraphDistance
}

func formatEntity(entity *types.Entity) string {
	if entity.Description == "" {
		return fmt.Sprintf("%s (%s)", entity.Name, entity.Type)
	}
	return fmt.Sprintf("%s (%s): %s", entity.Name, entity.Type, entity.Description)
}

// formatFact renders one relation as "src - TYPE -> dst", falling back to
// entity IDs when an endpoint was cut off by the fan-out cap.
func formatFact(relation *types.Relation, names map[string]string) string {
	from, ok := names[relation.FromID]
	if !ok {
		from = relation.FromID
	}
	to, ok := names[relation.ToID]
	if !ok {
		to = relation.ToID
	}
	return fmt.Sprintf("%s - %s -> %s", from, relation.Type, to)
}
