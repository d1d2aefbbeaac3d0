package types

import "strconv"

// Chunk is a contiguous span of source text produced by ingestion. Chunks
// are immutable once created: downstream records reference them by ID but
// never modify them.
type Chunk struct {
	ID         string `json:"id"`          // Unique identifier (format: chunk:doc:ordinal)
	DocumentID string `json:"document_id"` // Source document identifier
	Ordinal    int    `json:"ordinal"`     // Position within the source document, starting at 0
	Text       string `json:"text"`        // Raw chunk text
	TokenCount int    `json:"token_count"` // Token count of Text, measured at ingest time
}

// ChunkID builds the canonical chunk identifier from a document ID and the
// chunk's ordinal position. Re-ingesting the same document yields the same
// IDs, so chunks overwrite rather than duplicate.
func ChunkID(documentID string, ordinal int) string {
	return "chunk:" + documentID + ":" + strconv.Itoa(ordinal)
}
