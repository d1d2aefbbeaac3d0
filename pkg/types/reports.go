package types

import "time"

// UpsertConflict records a relation that could not be committed because an
// endpoint entity could not be resolved. Conflicts are reported, not fatal
// to the batch.
type UpsertConflict struct {
	Relation Relation `json:"relation"` // The rejected relation
	Reason   string   `json:"reason"`   // Human-readable explanation
}

// UpsertReport summarizes one graph upsert batch.
type UpsertReport struct {
	EntitiesCreated  int              `json:"entities_created"`
	EntitiesMerged   int              `json:"entities_merged"`
	RelationsCreated int              `json:"relations_created"`
	RelationsMerged  int              `json:"relations_merged"`
	Conflicts        []UpsertConflict `json:"conflicts,omitempty"`
}

// IndexFailure records one item that failed to embed or persist during
// vector indexing.
type IndexFailure struct {
	ID  string `json:"id"`
	Err string `json:"error"`
}

// IndexReport summarizes one vector indexing batch. Items embedded before a
// collaborator failure are still persisted; callers retry only Failed IDs.
type IndexReport struct {
	Succeeded []string       `json:"succeeded,omitempty"`
	Failed    []IndexFailure `json:"failed,omitempty"`
}

// BuildReport summarizes one knowledge-graph build run.
type BuildReport struct {
	ChunksIngested     int           `json:"chunks_ingested"`
	EntitiesExtracted  int           `json:"entities_extracted"`
	RelationsExtracted int           `json:"relations_extracted"`
	SkippedLabels      int           `json:"skipped_labels"`   // extractions rejected by vocabulary validation
	ExtractFailures    int           `json:"extract_failures"` // chunks whose extraction call failed outright
	UpsertFailures     int           `json:"upsert_failures"`  // orphan relations dropped during upsert
	IndexFailures      int           `json:"index_failures"`   // items that failed vector indexing
	Duration           time.Duration `json:"duration"`
}

// Merge adds the counters of other into r. Used when aggregating per-chunk
// or per-file reports into a run total.
func (r *BuildReport) Merge(other BuildReport) {
	r.ChunksIngested += other.ChunksIngested
	r.EntitiesExtracted += other.EntitiesExtracted
	r.RelationsExtracted += other.RelationsExtracted
	r.SkippedLabels += other.SkippedLabels
	r.ExtractFailures += other.ExtractFailures
	r.UpsertFailures += other.UpsertFailures
	r.IndexFailures += other.IndexFailures
}

// FileResult records the outcome of building from a single file in a
// multi-file build. Failures do not abort the batch.
type FileResult struct {
	File   string      `json:"file"`
	Report BuildReport `json:"report"`
	Err    error       `json:"-"`
}
