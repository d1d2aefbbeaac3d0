package types

import (
	"strings"
	"time"
	"unicode"
)

// Entity represents a named real-world object extracted from text.
// Entities are deduplicated by (canonical name, type): two extractions that
// refer to the same logical entity merge into a single graph node.
type Entity struct {
	// Core identification fields
	ID          string    `json:"id"`                    // Unique identifier (format: ent:type:slug)
	Name        string    `json:"name"`                  // Canonical display name
	Type        string    `json:"type"`                  // Entity type label (validated against the configured vocabulary)
	Description string    `json:"description,omitempty"` // Short LLM-provided description
	CreatedAt   time.Time `json:"created_at"`            // Creation timestamp
	UpdatedAt   time.Time `json:"updated_at"`            // Last update timestamp

	// Provenance
	ChunkIDs []string `json:"chunk_ids,omitempty"` // Source chunk IDs that mention this entity

	// Embedding for entity similarity (optional)
	Embedding []float32 `json:"embedding,omitempty"`
}

// Key returns the deduplication key for the entity: lowercased name plus
// lowercased type. Entities with equal keys must merge on upsert.
func (e *Entity) Key() string {
	return strings.ToLower(e.Name) + "|" + strings.ToLower(e.Type)
}

// EntityID builds the canonical entity identifier from a name and type.
// The format is ent:<type>:<slug> where both parts are lowercased and runs
// of non-alphanumeric characters collapse to single dashes. Because the ID
// is derived from the dedup key, re-extracting the same entity always
// yields the same ID.
func EntityID(name, entityType string) string {
	return "ent:" + slugify(entityType) + ":" + slugify(name)
}

// slugify lowercases s and collapses runs of non-alphanumeric characters
// into single dashes, trimming any trailing dash.
func slugify(s string) string {
	var b strings.Builder
	lastDash := true // suppress a leading dash
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastDash = false
		} else if !lastDash {
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
