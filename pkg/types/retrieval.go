package types

import "time"

// RetrievalPath identifies how a candidate was discovered.
type RetrievalPath string

const (
	// PathVector marks candidates found by vector similarity search only.
	PathVector RetrievalPath = "vector"
	// PathGraph marks candidates found by graph expansion only.
	PathGraph RetrievalPath = "graph"
	// PathBoth marks candidates found by both vector search and graph expansion.
	PathBoth RetrievalPath = "both"
)

// RefKind identifies what a retrieval candidate refers to.
type RefKind string

const (
	// RefChunk means the candidate references a text chunk.
	RefChunk RefKind = "chunk"
	// RefEntity means the candidate references a graph entity.
	RefEntity RefKind = "entity"
)

// RetrievalMode identifies which retrieval strategy produced a result.
type RetrievalMode string

const (
	// ModeVectorOnly is pure nearest-neighbor retrieval, used as the
	// baseline for comparisons.
	ModeVectorOnly RetrievalMode = "vector-only"
	// ModeGraphEnhanced combines vector retrieval with graph expansion.
	ModeGraphEnhanced RetrievalMode = "graph-enhanced"
)

// RetrievalCandidate is a transient, query-scoped record for one piece of
// evidence. Candidates are created fresh per query and discarded after
// context assembly.
type RetrievalCandidate struct {
	// Ref is the ID of the referenced chunk or entity.
	Ref string

	// Kind distinguishes chunk candidates from entity candidates.
	Kind RefKind

	// Text is the renderable evidence text for context assembly.
	Text string

	// Path records how the candidate was discovered.
	Path RetrievalPath

	// Similarity is the normalized vector similarity in [0,1].
	// Valid only when HasSimilarity is true.
	Similarity    float64
	HasSimilarity bool

	// GraphDistance is the hop count from the seed entities.
	// Valid only when HasGraphDistance is true.
	GraphDistance    int
	HasGraphDistance bool

	// Score is the combined rank score used for final ordering.
	Score float64
}

// QueryResult is the answer envelope returned for a single query.
// It is created once per query and never persisted by the engine.
type QueryResult struct {
	// Answer is the generated answer text.
	Answer string `json:"answer"`

	// Evidence lists the candidate refs used for the answer, in rank order.
	Evidence []string `json:"evidence"`

	// Mode records which retrieval strategy actually ran, so comparisons
	// are never ambiguous about what produced an answer.
	Mode RetrievalMode `json:"mode"`

	// Latency is the total query execution time.
	Latency time.Duration `json:"latency"`
}
