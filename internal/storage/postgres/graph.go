package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/lib/pq"

	"github.com/kgfoundry/graphrag/internal/storage"
	"github.com/kgfoundry/graphrag/pkg/types"
)

// GetEntity retrieves an entity by ID.
func (s *Store) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	const query = `SELECT id, name, type, description, created_at, updated_at FROM entities WHERE id = $1`
	return s.scanEntity(ctx, s.db.QueryRowContext(ctx, query, id))
}

// FindEntity looks an entity up by its dedup key (name and type,
// case-insensitive).
func (s *Store) FindEntity(ctx context.Context, name, entityType string) (*types.Entity, error) {
	const query = `
		SELECT id, name, type, description, created_at, updated_at
		FROM entities
		WHERE lower(name) = lower($1) AND lower(type) = lower($2)
	`
	return s.scanEntity(ctx, s.db.QueryRowContext(ctx, query, name, entityType))
}

func (s *Store) scanEntity(ctx context.Context, row *sql.Row) (*types.Entity, error) {
	var e types.Entity
	err := row.Scan(&e.ID, &e.Name, &e.Type, &e.Description, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: scanning entity: %w", err)
	}

	chunkIDs, err := s.chunkIDsForEntity(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	e.ChunkIDs = chunkIDs
	return &e, nil
}

// UpsertNode creates or replaces the entity with the given ID, including
// its chunk provenance.
func (s *Store) UpsertNode(ctx context.Context, entity *types.Entity) error {
	if entity == nil || entity.ID == "" {
		return fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: UpsertNode begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const query = `
		INSERT INTO entities (id, name, type, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name        = excluded.name,
			type        = excluded.type,
			description = excluded.description,
			updated_at  = excluded.updated_at
	`
	if _, err := tx.ExecContext(ctx, query,
		entity.ID, entity.Name, entity.Type, entity.Description, entity.CreatedAt, entity.UpdatedAt); err != nil {
		return fmt.Errorf("postgres: UpsertNode %s: %w", entity.ID, err)
	}

	const link = `
		INSERT INTO entity_chunks (entity_id, chunk_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	for _, chunkID := range entity.ChunkIDs {
		if _, err := tx.ExecContext(ctx, link, entity.ID, chunkID); err != nil {
			return fmt.Errorf("postgres: UpsertNode %s provenance: %w", entity.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: UpsertNode commit: %w", err)
	}
	return nil
}

// FindRelation looks a relation up by (from, to, type).
func (s *Store) FindRelation(ctx context.Context, fromID, toID, relType string) (*types.Relation, error) {
	const query = `
		SELECT id, from_id, to_id, type, confidence, created_at, updated_at
		FROM relations
		WHERE from_id = $1 AND to_id = $2 AND type = $3
	`
	var r types.Relation
	err := s.db.QueryRowContext(ctx, query, fromID, toID, relType).
		Scan(&r.ID, &r.FromID, &r.ToID, &r.Type, &r.Confidence, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: FindRelation: %w", err)
	}

	chunkIDs, err := s.chunkIDsForRelation(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	r.ChunkIDs = chunkIDs
	return &r, nil
}

// UpsertEdge creates or replaces the relation with the given
// (from, to, type) key. Conflicting upserts merge into the existing edge.
func (s *Store) UpsertEdge(ctx context.Context, relation *types.Relation) error {
	if relation == nil || relation.ID == "" {
		return fmt.Errorf("%w: relation ID is required", storage.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: UpsertEdge begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// RETURNING id resolves the surviving row for provenance links.
	const query = `
		INSERT INTO relations (id, from_id, to_id, type, confidence, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (from_id, to_id, type) DO UPDATE SET
			confidence = excluded.confidence,
			updated_at = excluded.updated_at
		RETURNING id
	`
	var rowID string
	if err := tx.QueryRowContext(ctx, query,
		relation.ID, relation.FromID, relation.ToID, relation.Type,
		relation.Confidence, relation.CreatedAt, relation.UpdatedAt).Scan(&rowID); err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: relation endpoints must exist", storage.ErrInvalidInput)
		}
		return fmt.Errorf("postgres: UpsertEdge %s: %w", relation.ID, err)
	}

	const link = `
		INSERT INTO relation_chunks (relation_id, chunk_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	for _, chunkID := range relation.ChunkIDs {
		if _, err := tx.ExecContext(ctx, link, rowID, chunkID); err != nil {
			return fmt.Errorf("postgres: UpsertEdge %s provenance: %w", rowID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: UpsertEdge commit: %w", err)
	}
	return nil
}

// EntitiesForChunks returns the entities whose provenance includes any of
// the given chunk IDs, ordered by entity ID.
func (s *Store) EntitiesForChunks(ctx context.Context, chunkIDs []string) ([]*types.Entity, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}

	const query = `
		SELECT DISTINCT e.id, e.name, e.type, e.description, e.created_at, e.updated_at
		FROM entities e
		JOIN entity_chunks ec ON ec.entity_id = e.id
		WHERE ec.chunk_id = ANY($1)
		ORDER BY e.id
	`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(chunkIDs))
	if err != nil {
		return nil, fmt.Errorf("postgres: EntitiesForChunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entities []*types.Entity
	for rows.Next() {
		var e types.Entity
		if err := rows.Scan(&e.ID, &e.Name, &e.Type, &e.Description, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: entity scan: %w", err)
		}
		entities = append(entities, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, e := range entities {
		chunkIDs, err := s.chunkIDsForEntity(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		e.ChunkIDs = chunkIDs
	}
	return entities, nil
}

// ChunksForEntities returns the chunks referenced by the given entities'
// provenance, ordered by chunk ID.
func (s *Store) ChunksForEntities(ctx context.Context, entityIDs []string) ([]*types.Chunk, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}

	const query = `
		SELECT DISTINCT c.id, c.document_id, c.ordinal, c.text, c.token_count
		FROM chunks c
		JOIN entity_chunks ec ON ec.chunk_id = c.id
		WHERE ec.entity_id = ANY($1)
		ORDER BY c.id
	`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(entityIDs))
	if err != nil {
		return nil, fmt.Errorf("postgres: ChunksForEntities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var chunks []*types.Chunk
	for rows.Next() {
		var c types.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Ordinal, &c.Text, &c.TokenCount); err != nil {
			return nil, fmt.Errorf("postgres: ChunksForEntities scan: %w", err)
		}
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

// Traverse performs a bounded breadth-first expansion from the seed entity
// IDs. Semantics match the SQLite backend: per-node fan-out caps ordered by
// relation key, unknown seeds skipped, hopLimit 0 returns only the seeds.
func (s *Store) Traverse(ctx context.Context, seedIDs []string, hopLimit, fanoutCap int) (*storage.TraversalResult, error) {
	if hopLimit < 0 || fanoutCap <= 0 {
		return nil, fmt.Errorf("%w: hopLimit must be >= 0 and fanoutCap > 0", storage.ErrInvalidInput)
	}

	result := &storage.TraversalResult{}
	visited := make(map[string]int)
	seenRelations := make(map[string]bool)

	sorted := append([]string(nil), seedIDs...)
	sort.Strings(sorted)

	var frontier []string
	for _, id := range sorted {
		if _, ok := visited[id]; ok {
			continue
		}
		entity, err := s.GetEntity(ctx, id)
		if err == storage.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("postgres: Traverse seed %s: %w", id, err)
		}
		visited[id] = 0
		frontier = append(frontier, id)
		result.Entities = append(result.Entities, storage.ReachedEntity{Entity: entity, Hops: 0})
	}

	for hop := 1; hop <= hopLimit && len(frontier) > 0; hop++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var next []string
		for _, id := range frontier {
			neighbors, relations, err := s.neighbors(ctx, id, fanoutCap)
			if err != nil {
				return nil, err
			}
			for _, r := range relations {
				if !seenRelations[r.Key()] {
					seenRelations[r.Key()] = true
					result.Relations = append(result.Relations, r)
				}
			}
			for _, neighborID := range neighbors {
				if _, ok := visited[neighborID]; ok {
					continue
				}
				entity, err := s.GetEntity(ctx, neighborID)
				if err == storage.ErrNotFound {
					continue
				}
				if err != nil {
					return nil, fmt.Errorf("postgres: Traverse neighbor %s: %w", neighborID, err)
				}
				visited[neighborID] = hop
				next = append(next, neighborID)
				result.Entities = append(result.Entities, storage.ReachedEntity{Entity: entity, Hops: hop})
			}
		}
		sort.Strings(next)
		frontier = next
	}

	sort.Slice(result.Entities, func(i, j int) bool {
		if result.Entities[i].Hops != result.Entities[j].Hops {
			return result.Entities[i].Hops < result.Entities[j].Hops
		}
		return result.Entities[i].Entity.ID < result.Entities[j].Entity.ID
	})
	sort.Slice(result.Relations, func(i, j int) bool {
		return result.Relations[i].Key() < result.Relations[j].Key()
	})
	return result, nil
}

func (s *Store) neighbors(ctx context.Context, entityID string, fanoutCap int) ([]string, []*types.Relation, error) {
	const query = `
		SELECT id, from_id, to_id, type, confidence, created_at, updated_at
		FROM relations
		WHERE from_id = $1 OR to_id = $1
		ORDER BY from_id, to_id, type
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, entityID, fanoutCap)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: neighbors of %s: %w", entityID, err)
	}
	defer func() { _ = rows.Close() }()

	var neighborIDs []string
	var relations []*types.Relation
	for rows.Next() {
		var r types.Relation
		if err := rows.Scan(&r.ID, &r.FromID, &r.ToID, &r.Type, &r.Confidence, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, nil, fmt.Errorf("postgres: neighbors scan: %w", err)
		}
		relations = append(relations, &r)
		if r.FromID == entityID {
			neighborIDs = append(neighborIDs, r.ToID)
		} else {
			neighborIDs = append(neighborIDs, r.FromID)
		}
	}
	return neighborIDs, relations, rows.Err()
}

// Stats returns the current graph size counters.
func (s *Store) Stats(ctx context.Context) (*storage.GraphStats, error) {
	stats := &storage.GraphStats{}
	for _, c := range []struct {
		table string
		dst   *int
	}{
		{"chunks", &stats.Chunks},
		{"entities", &stats.Entities},
		{"relations", &stats.Relations},
	} {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("postgres: counting %s: %w", c.table, err)
		}
	}
	return stats, nil
}

func (s *Store) chunkIDsForEntity(ctx context.Context, entityID string) ([]string, error) {
	const query = `SELECT chunk_id FROM entity_chunks WHERE entity_id = $1 ORDER BY chunk_id`
	return s.collectStrings(ctx, query, entityID)
}

func (s *Store) chunkIDsForRelation(ctx context.Context, relationID string) ([]string, error) {
	const query = `SELECT chunk_id FROM relation_chunks WHERE relation_id = $1 ORDER BY chunk_id`
	return s.collectStrings(ctx, query, relationID)
}

func (s *Store) collectStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("postgres: scan: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func isForeignKeyViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23503"
}
