package postgres

import (
	"context"
	"fmt"

	pgvector "github.com/pgvector/pgvector-go"

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
	if !s.pgvectorAvailable {
		return fmt.Errorf("%w: pgvector extension is not installed", storage.ErrUnavailable)
	}

	const query = `
		INSERT INTO embeddings (id, dimension, embedding)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			dimension = excluded.dimension,
			embedding = excluded.embedding
	`
	if _, err := s.db.ExecContext(ctx, query, id, len(vector), pgvector.NewVector(vector)); err != nil {
		return fmt.Errorf("postgres: UpsertVector %s: %w", id, err)
	}
	return nil
}

// Search returns the k nearest embeddings by cosine distance, ordered by
// score descending then ID ascending. The <=> operator yields cosine
// distance in [0,2]; 1 - distance/2 maps it onto a [0,1] similarity.
func (s *Store) Search(ctx context.Context, query []float32, k int) ([]storage.VectorMatch, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", storage.ErrInvalidInput)
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: query vector must not be empty", storage.ErrInvalidInput)
	}
	if !s.pgvectorAvailable {
		return nil, fmt.Errorf("%w: pgvector extension is not installed", storage.ErrUnavailable)
	}

	const stmt = `
		SELECT id, 1 - (embedding <=> $1) / 2 AS score
		FROM embeddings
		WHERE dimension = $2 AND embedding IS NOT NULL
		ORDER BY score DESC, id ASC
		LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, stmt, pgvector.NewVector(query), len(query), k)
	if err != nil {
		return nil, fmt.Errorf("postgres: Search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var matches []storage.VectorMatch
	for rows.Next() {
		var m storage.VectorMatch
		if err := rows.Scan(&m.ID, &m.Score); err != nil {
			return nil, fmt.Errorf("postgres: Search scan: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}
