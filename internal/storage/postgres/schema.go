package postgres

// Schema is the base relational schema. Every statement is idempotent so
// the schema can be re-applied on startup.
const Schema = `
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
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
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
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
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
	dimension INTEGER NOT NULL
);
`

// MigrationPgvector adds the vector column and its cosine index. It is
// applied only when the pgvector extension is installed.
const MigrationPgvector = `
ALTER TABLE embeddings ADD COLUMN IF NOT EXISTS embedding vector;
`

// MigrationFulltext adds a trigram-free full-text index over entity names,
// used by the fulltext index kind.
const MigrationFulltext = `
CREATE INDEX IF NOT EXISTS idx_entities_name_fts
	ON entities USING GIN (to_tsvector('simple', name || ' ' || description));
`
