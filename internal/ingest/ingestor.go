// Package ingest splits raw documents into bounded, sentence-aware chunks.
// Chunks are the unit of extraction, embedding and retrieval; once created
// they are immutable.
package ingest

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/kgfoundry/graphrag/internal/tokenizer"
	"github.com/kgfoundry/graphrag/pkg/types"
)

// Ingestor splits raw text into token-bounded chunks with sentence-aware
// boundaries and configurable overlap between consecutive chunks.
type Ingestor struct {
	// MaxChunkTokens is the chunk size budget in tokens (default: 400).
	MaxChunkTokens int

	// OverlapTokens is the overlap between consecutive chunks (default: 50).
	OverlapTokens int

	// CountTokens measures text length in tokens (default: tokenizer.Estimate).
	CountTokens tokenizer.CountFunc
}

// NewIngestor creates an ingestor, applying defaults to zero-value fields.
func NewIngestor(maxChunkTokens, overlapTokens int, count tokenizer.CountFunc) *Ingestor {
	if maxChunkTokens <= 0 {
		maxChunkTokens = 400
	}
	if overlapTokens < 0 {
		overlapTokens = 0
	}
	if count == nil {
		count = tokenizer.Estimate
	}
	return &Ingestor{
		MaxChunkTokens: maxChunkTokens,
		OverlapTokens:  overlapTokens,
		CountTokens:    count,
	}
}

// IngestText splits text into chunks under a fresh document ID.
// Whitespace-only input yields no chunks and no error.
func (in *Ingestor) IngestText(text string) ([]*types.Chunk, error) {
	return in.ingest(uuid.NewString(), text)
}

// IngestFile reads path and splits its contents into chunks. The document
// ID is derived from the file so re-ingesting the same file produces the
// same chunk IDs.
func (in *Ingestor) IngestFile(path string) ([]*types.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: reading %s: %w", path, err)
	}
	docID := uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+path)).String()
	return in.ingest(docID, string(data))
}

func (in *Ingestor) ingest(docID, text string) ([]*types.Chunk, error) {
	pieces := in.split(text)
	chunks := make([]*types.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, &types.Chunk{
			ID:         types.ChunkID(docID, i),
			DocumentID: docID,
			Ordinal:    i,
			Text:       piece,
			TokenCount: in.CountTokens(piece),
		})
	}
	return chunks, nil
}

// split performs the sentence-aware chunking. Consecutive chunks share up
// to OverlapTokens of trailing sentences so context is preserved across
// boundaries. Duplicate pieces (repeated paragraphs) are dropped.
func (in *Ingestor) split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	// Short-circuit: the whole document fits in one chunk.
	if in.CountTokens(text) <= in.MaxChunkTokens {
		return []string{text}
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var pieces []string
	var current strings.Builder
	var currentTokens int
	var previous []string // trailing sentences carried into the next chunk

	flush := func() {
		if current.Len() == 0 {
			return
		}
		pieces = append(pieces, current.String())
		current.Reset()
		currentTokens = 0

		// Seed the next chunk with overlap from the tail of this one.
		overlapTokens := 0
		start := len(previous)
		for i := len(previous) - 1; i >= 0; i-- {
			t := in.CountTokens(previous[i])
			if overlapTokens+t > in.OverlapTokens {
				break
			}
			overlapTokens += t
			start = i
		}
		for i := start; i < len(previous); i++ {
			current.WriteString(previous[i])
			currentTokens += in.CountTokens(previous[i])
		}
		previous = previous[start:]
	}

	for _, sentence := range sentences {
		t := in.CountTokens(sentence)
		if currentTokens+t > in.MaxChunkTokens && currentTokens > 0 {
			flush()
		}
		current.WriteString(sentence)
		currentTokens += t
		previous = append(previous, sentence)

		// Bound the overlap buffer; only the tail can ever be reused.
		if len(previous) > 50 {
			previous = previous[len(previous)-50:]
		}
	}
	if current.Len() > 0 {
		pieces = append(pieces, current.String())
	}

	return dedupe(pieces)
}

// splitSentences splits text on sentence terminators, keeping terminators
// and trailing whitespace attached to their sentence. A terminator only
// ends a sentence when followed by whitespace and an uppercase rune, which
// keeps abbreviations and decimal numbers intact most of the time.
func splitSentences(text string) []string {
	runes := []rune(text)
	var sentences []string
	var current strings.Builder

	emit := func() {
		if strings.TrimSpace(current.String()) != "" {
			sentences = append(sentences, current.String())
		}
		current.Reset()
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		current.WriteRune(r)
		if r != '.' && r != '!' && r != '?' && r != '\n' {
			continue
		}
		if r == '\n' {
			emit()
			continue
		}
		if i+1 >= len(runes) {
			emit()
			continue
		}
		if unicode.IsSpace(runes[i+1]) {
			current.WriteRune(runes[i+1])
			i++
			if i+1 >= len(runes) || unicode.IsUpper(runes[i+1]) || unicode.IsDigit(runes[i+1]) {
				emit()
			}
		}
	}
	emit()
	return sentences
}

// dedupe removes duplicate pieces while preserving order.
func dedupe(pieces []string) []string {
	seen := make(map[string]bool, len(pieces))
	out := pieces[:0]
	for _, p := range pieces {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
