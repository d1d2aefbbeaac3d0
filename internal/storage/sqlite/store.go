// Package sqlite implements the storage capabilities on an embedded SQLite
// database. It is the default zero-dependency-service backend: the graph
// lives in relational tables and vector search is an in-process cosine scan
// over stored embeddings.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/kgfoundry/graphrag/internal/storage"
	"github.com/kgfoundry/graphrag/pkg/types"
)

// Compile-time interface checks.
var (
	_ storage.GraphStore  = (*Store)(nil)
	_ storage.VectorIndex = (*Store)(nil)
)

// Store implements storage.GraphStore and storage.VectorIndex on a single
// SQLite database file.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database under dataPath and applies the
// schema. The parent directory is created if needed.
func Open(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o700); err != nil {
		return nil, fmt.Errorf("sqlite: creating data dir: %w", err)
	}

	dsn := filepath.Join(dataPath, "graphrag.db") + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent upserts.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.applySchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

var memorySeq atomic.Int64

// OpenInMemory opens a private in-memory database, used by tests. Each call
// gets its own database.
func OpenInMemory() (*Store, error) {
	dsn := fmt.Sprintf("file:memdb%d?mode=memory&cache=shared", memorySeq.Add(1))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening in-memory database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.applySchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// GetDB exposes the underlying connection for schema inspection in tests.
func (s *Store) GetDB() *sql.DB {
	return s.db
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	ordinal     INTEGER NOT NULL,
	text        TEXT NOT NULL,
	token_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);

CREATE TABLE IF NOT EXISTS entities (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	type        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_entities_name_type ON entities(lower(name), lower(type));

CREATE TABLE IF NOT EXISTS entity_chunks (
	entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	chunk_id  TEXT NOT NULL,
	PRIMARY KEY (entity_id, chunk_id)
);
CREATE INDEX IF NOT EXISTS idx_entity_chunks_chunk ON entity_chunks(chunk_id);

CREATE TABLE IF NOT EXISTS relations (
	id         TEXT PRIMARY KEY,
	from_id    TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	to_id      TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	type       TEXT NOT NULL,
	confidence REAL NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	UNIQUE (from_id, to_id, type)
);
CREATE INDEX IF NOT EXISTS idx_relations_from ON relations(from_id);
CREATE INDEX IF NOT EXISTS idx_relations_to ON relations(to_id);

CREATE TABLE IF NOT EXISTS relation_chunks (
	relation_id TEXT NOT NULL REFERENCES relations(id) ON DELETE CASCADE,
	chunk_id    TEXT NOT NULL,
	PRIMARY KEY (relation_id, chunk_id)
);

CREATE TABLE IF NOT EXISTS embeddings (
	id        TEXT PRIMARY KEY,
	dimension INTEGER NOT NULL,
	vector    BLOB NOT NULL
);
`

func (s *Store) applySchema() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite: applying schema: %w", err)
	}
	return nil
}

// PutChunk stores an immutable text chunk, overwriting any previous chunk
// with the same ID.
func (s *Store) PutChunk(ctx context.Context, chunk *types.Chunk) error {
	if chunk == nil || chunk.ID == "" {
		return fmt.Errorf("%w: chunk ID is required", storage.ErrInvalidInput)
	}

	const query = `
		INSERT INTO chunks (id, document_id, ordinal, text, token_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			document_id = excluded.document_id,
			ordinal     = excluded.ordinal,
			text        = excluded.text,
			token_count = excluded.token_count
	`
	if _, err := s.db.ExecContext(ctx, query, chunk.ID, chunk.DocumentID, chunk.Ordinal, chunk.Text, chunk.TokenCount); err != nil {
		return fmt.Errorf("sqlite: PutChunk %s: %w", chunk.ID, err)
	}
	return nil
}

// GetChunk retrieves a chunk by ID.
func (s *Store) GetChunk(ctx context.Context, id string) (*types.Chunk, error) {
	const query = `SELECT id, document_id, ordinal, text, token_count FROM chunks WHERE id = ?`

	var c types.Chunk
	err := s.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.DocumentID, &c.Ordinal, &c.Text, &c.TokenCount)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: GetChunk %s: %w", id, err)
	}
	return &c, nil
}
