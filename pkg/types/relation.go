package types

import "time"

// Relation represents a directed, typed edge between two entities.
// Relations are deduplicated by (from, to, type): re-extracting the same
// edge merges provenance instead of creating a duplicate.
type Relation struct {
	// Core identification fields
	ID     string `json:"id"`      // Unique identifier (format: rel:uuid)
	FromID string `json:"from_id"` // Source entity ID
	ToID   string `json:"to_id"`   // Target entity ID
	Type   string `json:"type"`    // Relation type (validated against the configured vocabulary)

	// Relation properties
	Confidence float64   `json:"confidence,omitempty"` // Extraction confidence (0.0-1.0)
	CreatedAt  time.Time `json:"created_at"`           // Creation timestamp
	UpdatedAt  time.Time `json:"updated_at"`           // Last update timestamp

	// Provenance
	ChunkIDs []string `json:"chunk_ids,omitempty"` // Chunk IDs the relation was extracted from
}

// Key returns the deduplication key for the relation: source, target and
// type. Relations with equal keys must merge on upsert.
func (r *Relation) Key() string {
	return r.FromID + "|" + r.ToID + "|" + r.Type
}
