// Package pgraph is the property-graph [worldmodel.Storage] backend: every
// entity and relationship is a row in PostgreSQL, with a jsonb properties
// column and a flattened full-text column mirroring
// [worldmodel.FlattenProperties] so Query can run as a single indexed
// tsquery instead of a client-side scan.
//
// Grounded on pkg/memory/postgres/knowledge_graph.go's upsert/scan/dynamic
// WHERE-builder idioms, generalized from the NPC/session domain to the
// research-provenance domain (§4.3).
package pgraph

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlEntities = `
CREATE TABLE IF NOT EXISTS entities (
    id              TEXT PRIMARY KEY,
    type            TEXT NOT NULL,
    properties      JSONB NOT NULL DEFAULT '{}'::jsonb,
    properties_text TEXT NOT NULL DEFAULT '',
    confidence      DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    project         TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL,
    created_by      TEXT NOT NULL DEFAULT '',
    verified        BOOLEAN NOT NULL DEFAULT FALSE,
    annotations     JSONB NOT NULL DEFAULT '[]'::jsonb
);
CREATE INDEX IF NOT EXISTS idx_entities_project ON entities (project);
CREATE INDEX IF NOT EXISTS idx_entities_type ON entities (type);
CREATE INDEX IF NOT EXISTS idx_entities_properties ON entities USING GIN (properties);
CREATE INDEX IF NOT EXISTS idx_entities_properties_fts
    ON entities USING GIN (to_tsvector('simple', properties_text));
`

const ddlRelationships = `
CREATE TABLE IF NOT EXISTS relationships (
    id         TEXT PRIMARY KEY,
    source_id  TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    target_id  TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    type       TEXT NOT NULL,
    properties JSONB NOT NULL DEFAULT '{}'::jsonb,
    confidence DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    created_at TIMESTAMPTZ NOT NULL,
    created_by TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships (source_id);
CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships (target_id);
CREATE INDEX IF NOT EXISTS idx_relationships_type ON relationships (type);
`

// Migrate creates the entities/relationships tables and their indexes if
// they do not already exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, ddl := range []string{ddlEntities, ddlRelationships} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("pgraph: migrate: %w", err)
		}
	}
	return nil
}
