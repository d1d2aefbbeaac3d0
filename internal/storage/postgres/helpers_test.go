// This file contains test helpers only available during testing.
package postgres

import (
	"context"
	"fmt"
)

// TruncateForTest removes all graph and vector rows. It is intended for use
// in tests only; it lives in the postgres package so it can reach the
// unexported db field, and stays exported for the postgres_test package.
func (s *Store) TruncateForTest(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		"TRUNCATE TABLE chunks, entities, entity_chunks, relations, relation_chunks, embeddings CASCADE")
	if err != nil {
		return fmt.Errorf("postgres: failed to truncate: %w", err)
	}
	return nil
}
