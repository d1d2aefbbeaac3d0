package sqlite

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/kgfoundry/graphrag/internal/storage"
)

// UpsertVector stores or replaces the embedding for the given ID.
func (s *Store) UpsertVector(ctx context.Context, id string, vector []float32) error {
	if id == "" {
		return fmt.Errorf("%w: vector ID is required", storage.ErrInvalidInput)
	}
	if len(vector) == 0 {
		return fmt.Errorf("%w: vector must not be empty", storage.ErrInvalidInput)
	}

	const query = `
		INSERT INTO embeddings (id, dimension, vector)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			dimension = excluded.dimension,
			vector    = excluded.vector
	`
	if _, err := s.db.ExecContext(ctx, query, id, len(vector), serializeVector(vector)); err != nil {
		return fmt.Errorf("sqlite: UpsertVector %s: %w", id, err)
	}
	return nil
}

// Search scans all stored embeddings and returns the k best cosine matches,
// ordered by score descending then ID ascending. Scores are normalized to
// [0,1]. An empty index returns an empty result, not an error.
//
// The scan is linear; for the corpus sizes this backend targets that is
// cheaper than maintaining an approximate index.
func (s *Store) Search(ctx context.Context, query []float32, k int) ([]storage.VectorMatch, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", storage.ErrInvalidInput)
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: query vector must not be empty", storage.ErrInvalidInput)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, dimension, vector FROM embeddings`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: Search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var matches []storage.VectorMatch
	for rows.Next() {
		var id string
		var dimension int
		var blob []byte
		if err := rows.Scan(&id, &dimension, &blob); err != nil {
			return nil, fmt.Errorf("sqlite: Search scan: %w", err)
		}
		if dimension != len(query) {
			continue // stale embedding from a different model
		}
		vector, err := deserializeVector(blob, dimension)
		if err != nil {
			return nil, fmt.Errorf("sqlite: Search %s: %w", id, err)
		}
		matches = append(matches, storage.VectorMatch{
			ID:    id,
			Score: normalizedCosine(query, vector),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// normalizedCosine maps cosine similarity from [-1,1] into [0,1].
// Zero vectors score 0.
func normalizedCosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return (cos + 1) / 2
}

// serializeVector encodes a float32 slice as little-endian bytes.
func serializeVector(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeVector decodes little-endian bytes back into a float32 slice.
func deserializeVector(buf []byte, dimension int) ([]float32, error) {
	if len(buf) != dimension*4 {
		return nil, fmt.Errorf("embedding blob has %d bytes, want %d", len(buf), dimension*4)
	}
	vector := make([]float32, dimension)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vector, nil
}
