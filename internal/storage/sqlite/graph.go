package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/kgfoundry/graphrag/internal/storage"
	"github.com/kgfoundry/graphrag/pkg/types"
)

// GetEntity retrieves an entity by ID.
func (s *Store) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	const query = `SELECT id, name, type, description, created_at, updated_at FROM entities WHERE id = ?`
	return s.scanEntity(ctx, s.db.QueryRowContext(ctx, query, id))
}

// FindEntity looks an entity up by its dedup key (name and type,
// case-insensitive).
func (s *Store) FindEntity(ctx context.Context, name, entityType string) (*types.Entity, error) {
	const query = `
		SELECT id, name, type, description, created_at, updated_at
		FROM entities
		WHERE lower(name) = lower(?) AND lower(type) = lower(?)
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
		return nil, fmt.Errorf("sqlite: scanning entity: %w", err)
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
		return fmt.Errorf("sqlite: UpsertNode begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const query = `
		INSERT INTO entities (id, name, type, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name        = excluded.name,
			type        = excluded.type,
			description = excluded.description,
			updated_at  = excluded.updated_at
	`
	if _, err := tx.ExecContext(ctx, query,
		entity.ID, entity.Name, entity.Type, entity.Description, entity.CreatedAt, entity.UpdatedAt); err != nil {
		return fmt.Errorf("sqlite: UpsertNode %s: %w", entity.ID, err)
	}

	for _, chunkID := range entity.ChunkIDs {
		const link = `INSERT OR IGNORE INTO entity_chunks (entity_id, chunk_id) VALUES (?, ?)`
		if _, err := tx.ExecContext(ctx, link, entity.ID, chunkID); err != nil {
			return fmt.Errorf("sqlite: UpsertNode %s provenance: %w", entity.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: UpsertNode commit: %w", err)
	}
	return nil
}

// FindRelation looks a relation up by (from, to, type).
func (s *Store) FindRelation(ctx context.Context, fromID, toID, relType string) (*types.Relation, error) {
	const query = `
		SELECT id, from_id, to_id, type, confidence, created_at, updated_at
		FROM relations
		WHERE from_id = ? AND to_id = ? AND type = ?
	`
	var r types.Relation
	err := s.db.QueryRowContext(ctx, query, fromID, toID, relType).
		Scan(&r.ID, &r.FromID, &r.ToID, &r.Type, &r.Confidence, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: FindRelation: %w", err)
	}

	chunkIDs, err := s.chunkIDsForRelation(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	r.ChunkIDs = chunkIDs
	return &r, nil
}

// UpsertEdge creates or replaces the relation with the given
// (from, to, type) key.
func (s *Store) UpsertEdge(ctx context.Context, relation *types.Relation) error {
	if relation == nil || relation.ID == "" {
		return fmt.Errorf("%w: relation ID is required", storage.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: UpsertEdge begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// The (from, to, type) key wins over the row ID: a conflicting upsert
	// merges into the existing edge.
	const query = `
		INSERT INTO relations (id, from_id, to_id, type, confidence, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (from_id, to_id, type) DO UPDATE SET
			confidence = excluded.confidence,
			updated_at = excluded.updated_at
	`
	if _, err := tx.ExecContext(ctx, query,
		relation.ID, relation.FromID, relation.ToID, relation.Type,
		relation.Confidence, relation.CreatedAt, relation.UpdatedAt); err != nil {
		return fmt.Errorf("sqlite: UpsertEdge %s: %w", relation.ID, err)
	}

	// Resolve the surviving row ID for provenance links.
	var rowID string
	const idQuery = `SELECT id FROM relations WHERE from_id = ? AND to_id = ? AND type = ?`
	if err := tx.QueryRowContext(ctx, idQuery, relation.FromID, relation.ToID, relation.Type).Scan(&rowID); err != nil {
		return fmt.Errorf("sqlite: UpsertEdge resolving id: %w", err)
	}

	for _, chunkID := range relation.ChunkIDs {
		const link = `INSERT OR IGNORE INTO relation_chunks (relation_id, chunk_id) VALUES (?, ?)`
		if _, err := tx.ExecContext(ctx, link, rowID, chunkID); err != nil {
			return fmt.Errorf("sqlite: UpsertEdge %s provenance: %w", rowID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: UpsertEdge commit: %w", err)
	}
	return nil
}

// EntitiesForChunks returns the entities whose provenance includes any of
// the given chunk IDs, ordered by entity ID.
func (s *Store) EntitiesForChunks(ctx context.Context, chunkIDs []string) ([]*types.Entity, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT DISTINCT e.id, e.name, e.type, e.description, e.created_at, e.updated_at
		FROM entities e
		JOIN entity_chunks ec ON ec.entity_id = e.id
		WHERE ec.chunk_id IN (` + placeholders(len(chunkIDs)) + `)
		ORDER BY e.id
	`
	rows, err := s.db.QueryContext(ctx, query, toAnySlice(chunkIDs)...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: EntitiesForChunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return s.collectEntities(ctx, rows)
}

// ChunksForEntities returns the chunks referenced by the given entities'
// provenance, ordered by chunk ID.
func (s *Store) ChunksForEntities(ctx context.Context, entityIDs []string) ([]*types.Chunk, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT DISTINCT c.id, c.document_id, c.ordinal, c.text, c.token_count
		FROM chunks c
		JOIN entity_chunks ec ON ec.chunk_id = c.id
		WHERE ec.entity_id IN (` + placeholders(len(entityIDs)) + `)
		ORDER BY c.id
	`
	rows, err := s.db.QueryContext(ctx, query, toAnySlice(entityIDs)...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: ChunksForEntities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var chunks []*types.Chunk
	for rows.Next() {
		var c types.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Ordinal, &c.Text, &c.TokenCount); err != nil {
			return nil, fmt.Errorf("sqlite: ChunksForEntities scan: %w", err)
		}
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

// Traverse performs a bounded breadth-first expansion from the seed entity
// IDs. Each hop expands at most fanoutCap neighbors per node, ordered by
// relation key so repeated traversals visit the same edges. Unknown seeds
// are skipped; hopLimit 0 returns only the (known) seeds.
func (s *Store) Traverse(ctx context.Context, seedIDs []string, hopLimit, fanoutCap int) (*storage.TraversalResult, error) {
	if hopLimit < 0 || fanoutCap <= 0 {
		return nil, fmt.Errorf("%w: hopLimit must be >= 0 and fanoutCap > 0", storage.ErrInvalidInput)
	}

	result := &storage.TraversalResult{}
	visited := make(map[string]int) // entity ID -> hop distance
	seenRelations := make(map[string]bool)

	// Seed frontier: verify the seeds exist, sorted for determinism.
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
			return nil, fmt.Errorf("sqlite: Traverse seed %s: %w", id, err)
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
					continue // edge references a vanished node, skip
				}
				if err != nil {
					return nil, fmt.Errorf("sqlite: Traverse neighbor %s: %w", neighborID, err)
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

// neighbors returns up to fanoutCap neighbor IDs of the entity, in both
// edge directions, plus the relations crossed. Ordering is by relation key
// so the fan-out cap cuts deterministically.
func (s *Store) neighbors(ctx context.Context, entityID string, fanoutCap int) ([]string, []*types.Relation, error) {
	const query = `
		SELECT id, from_id, to_id, type, confidence, created_at, updated_at
		FROM relations
		WHERE from_id = ? OR to_id = ?
		ORDER BY from_id, to_id, type
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, entityID, entityID, fanoutCap)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: neighbors of %s: %w", entityID, err)
	}
	defer func() { _ = rows.Close() }()

	var neighborIDs []string
	var relations []*types.Relation
	for rows.Next() {
		var r types.Relation
		if err := rows.Scan(&r.ID, &r.FromID, &r.ToID, &r.Type, &r.Confidence, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, nil, fmt.Errorf("sqlite: neighbors scan: %w", err)
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

// CreateIndex is a no-op for SQLite: all indexes are part of the schema,
// and vector search is an in-process scan.
func (s *Store) CreateIndex(ctx context.Context, kind storage.IndexKind) error {
	switch kind {
	case storage.IndexVector, storage.IndexFulltext:
		return nil
	default:
		return fmt.Errorf("%w: unknown index kind %q", storage.ErrInvalidInput, kind)
	}
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
			return nil, fmt.Errorf("sqlite: counting %s: %w", c.table, err)
		}
	}
	return stats, nil
}

func (s *Store) chunkIDsForEntity(ctx context.Context, entityID string) ([]string, error) {
	const query = `SELECT chunk_id FROM entity_chunks WHERE entity_id = ? ORDER BY chunk_id`
	return s.collectStrings(ctx, query, entityID)
}

func (s *Store) chunkIDsForRelation(ctx context.Context, relationID string) ([]string, error) {
	const query = `SELECT chunk_id FROM relation_chunks WHERE relation_id = ? ORDER BY chunk_id`
	return s.collectStrings(ctx, query, relationID)
}

func (s *Store) collectStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) collectEntities(ctx context.Context, rows *sql.Rows) ([]*types.Entity, error) {
	var entities []*types.Entity
	for rows.Next() {
		var e types.Entity
		if err := rows.Scan(&e.ID, &e.Name, &e.Type, &e.Description, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: entity scan: %w", err)
		}
		entities = append(entities, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Provenance is loaded after the main rows are drained because SQLite
	// allows only one statement per connection here.
	for _, e := range entities {
		chunkIDs, err := s.chunkIDsForEntity(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		e.ChunkIDs = chunkIDs
	}
	return entities, nil
}

// placeholders builds "?, ?, ?" for n parameters.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
