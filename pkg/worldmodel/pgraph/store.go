package pgraph

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kosmos-research/kosmos/pkg/worldmodel"
)

// generateID produces a random 16-byte hex string, same pattern as
// relstore's and worldmodel/memgraph's id generation.
func generateID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Compile-time assertions.
var (
	_ worldmodel.Storage     = (*Store)(nil)
	_ worldmodel.GraphLister = (*Store)(nil)
)

// Store is the PostgreSQL-backed [worldmodel.Storage] implementation.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn, runs [Migrate], and returns a ready Store.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgraph: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgraph: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) AddEntity(ctx context.Context, e worldmodel.Entity) (string, error) {
	if err := worldmodel.ValidateEntity(e); err != nil {
		return "", err
	}
	if e.ID == "" {
		id, err := generateID()
		if err != nil {
			return "", fmt.Errorf("pgraph: generate id: %w", err)
		}
		e.ID = id
	}
	if e.Properties == nil {
		e.Properties = map[string]any{}
	}
	if e.Annotations == nil {
		e.Annotations = []worldmodel.Annotation{}
	}

	propsJSON, err := json.Marshal(e.Properties)
	if err != nil {
		return "", fmt.Errorf("pgraph: marshal properties: %w", err)
	}
	annJSON, err := json.Marshal(e.Annotations)
	if err != nil {
		return "", fmt.Errorf("pgraph: marshal annotations: %w", err)
	}
	// A merge-import re-inserting a previously-exported entity supplies its
	// own CreatedAt/UpdatedAt (§4.9's "restores the graph to bit-identical
	// entity/relationship contents"); only a caller-omitted timestamp is
	// defaulted here.
	now := time.Now()
	createdAt, updatedAt := now, now
	if !e.CreatedAt.IsZero() {
		createdAt = e.CreatedAt
	}
	if !e.UpdatedAt.IsZero() {
		updatedAt = e.UpdatedAt
	}

	const q = `
		INSERT INTO entities
		    (id, type, properties, properties_text, confidence, project,
		     created_at, updated_at, created_by, verified, annotations)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = s.pool.Exec(ctx, q,
		e.ID, string(e.Type), propsJSON, worldmodel.FlattenProperties(e.Properties),
		e.Confidence, e.Project, createdAt, updatedAt, e.CreatedBy, e.Verified, annJSON,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("pgraph: add entity %q: %w", e.ID, worldmodel.ErrDuplicateID)
		}
		return "", fmt.Errorf("pgraph: add entity: %w", err)
	}
	return e.ID, nil
}

func (s *Store) GetEntity(ctx context.Context, id string) (*worldmodel.Entity, error) {
	const q = `
		SELECT id, type, properties, confidence, project, created_at,
		       updated_at, created_by, verified, annotations
		FROM   entities
		WHERE  id = $1`

	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("pgraph: get entity: %w", err)
	}
	entities, err := collectEntities(rows)
	if err != nil {
		return nil, fmt.Errorf("pgraph: get entity: %w", err)
	}
	if len(entities) == 0 {
		return nil, nil
	}
	return &entities[0], nil
}

func (s *Store) UpdateEntity(ctx context.Context, e worldmodel.Entity) error {
	if err := worldmodel.ValidateEntity(e); err != nil {
		return err
	}
	propsJSON, err := json.Marshal(e.Properties)
	if err != nil {
		return fmt.Errorf("pgraph: marshal properties: %w", err)
	}
	annJSON, err := json.Marshal(e.Annotations)
	if err != nil {
		return fmt.Errorf("pgraph: marshal annotations: %w", err)
	}

	const q = `
		UPDATE entities
		SET    type = $2, properties = $3, properties_text = $4,
		       confidence = $5, project = $6, updated_at = $7,
		       verified = $8, annotations = $9
		WHERE  id = $1`

	tag, err := s.pool.Exec(ctx, q,
		e.ID, string(e.Type), propsJSON, worldmodel.FlattenProperties(e.Properties),
		e.Confidence, e.Project, time.Now(), e.Verified, annJSON,
	)
	if err != nil {
		return fmt.Errorf("pgraph: update entity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pgraph: update entity %q: %w", e.ID, worldmodel.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteEntity(ctx context.Context, id string) error {
	const q = `DELETE FROM entities WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("pgraph: delete entity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pgraph: delete entity %q: %w", id, worldmodel.ErrNotFound)
	}
	return nil
}

func (s *Store) AddRelationship(ctx context.Context, r worldmodel.Relationship) (string, error) {
	if err := worldmodel.ValidateRelationship(r); err != nil {
		return "", err
	}
	if r.ID == "" {
		id, err := generateID()
		if err != nil {
			return "", fmt.Errorf("pgraph: generate id: %w", err)
		}
		r.ID = id
	}
	if r.Properties == nil {
		r.Properties = map[string]any{}
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	propsJSON, err := json.Marshal(r.Properties)
	if err != nil {
		return "", fmt.Errorf("pgraph: marshal properties: %w", err)
	}

	const q = `
		INSERT INTO relationships
		    (id, source_id, target_id, type, properties, confidence, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = s.pool.Exec(ctx, q,
		r.ID, r.SourceID, r.TargetID, string(r.Type), propsJSON,
		r.Confidence, r.CreatedAt, r.CreatedBy,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return "", fmt.Errorf("pgraph: add relationship: endpoint missing: %w", worldmodel.ErrNotFound)
		}
		return "", fmt.Errorf("pgraph: add relationship: %w", err)
	}
	return r.ID, nil
}

// Query interprets spec as a plain-text full-text search against each
// entity's properties_text; an empty spec matches everything. Results are
// ranked by ts_rank, then broken by id for a stable total order (§4.3).
func (s *Store) Query(ctx context.Context, spec string, filter worldmodel.EntityFilter) ([]worldmodel.Entity, error) {
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var conditions []string
	if filter.Project != "" {
		conditions = append(conditions, "project = "+next(filter.Project))
	}
	if filter.Type != "" {
		conditions = append(conditions, "type = "+next(string(filter.Type)))
	}

	orderBy := "id"
	spec = strings.TrimSpace(spec)
	if spec != "" {
		tsArg := next(spec)
		conditions = append(conditions,
			fmt.Sprintf("to_tsvector('simple', properties_text) @@ plainto_tsquery('simple', %s)", tsArg))
		orderBy = fmt.Sprintf("ts_rank(to_tsvector('simple', properties_text), plainto_tsquery('simple', %s)) DESC, id", tsArg)
	}

	q := "SELECT id, type, properties, confidence, project, created_at, updated_at, created_by, verified, annotations\nFROM entities"
	if len(conditions) > 0 {
		q += "\nWHERE " + strings.Join(conditions, " AND ")
	}
	q += "\nORDER BY " + orderBy

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		q += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("pgraph: query: %w", err)
	}
	return collectEntities(rows)
}

func (s *Store) IterateEntities(ctx context.Context, project string) ([]worldmodel.Entity, error) {
	var (
		q    string
		args []any
	)
	if project == "" {
		q = `SELECT id, type, properties, confidence, project, created_at, updated_at, created_by, verified, annotations
		     FROM entities ORDER BY id`
	} else {
		q = `SELECT id, type, properties, confidence, project, created_at, updated_at, created_by, verified, annotations
		     FROM entities WHERE project = $1 ORDER BY id`
		args = []any{project}
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("pgraph: iterate entities: %w", err)
	}
	return collectEntities(rows)
}

func (s *Store) ListRelationships(ctx context.Context, project string) ([]worldmodel.Relationship, error) {
	var (
		q    string
		args []any
	)
	if project == "" {
		q = `SELECT id, source_id, target_id, type, properties, confidence, created_at, created_by
		     FROM relationships ORDER BY id`
	} else {
		q = `SELECT r.id, r.source_id, r.target_id, r.type, r.properties, r.confidence, r.created_at, r.created_by
		     FROM relationships r JOIN entities e ON e.id = r.source_id
		     WHERE e.project = $1 ORDER BY r.id`
		args = []any{project}
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("pgraph: list relationships: %w", err)
	}
	return collectRelationships(rows)
}

func (s *Store) GetStatistics(ctx context.Context) (worldmodel.Statistics, error) {
	stats := worldmodel.Statistics{
		EntityCountByType: map[worldmodel.EntityType]int{},
		Projects:          []string{},
	}

	rows, err := s.pool.Query(ctx, `SELECT type, count(*) FROM entities GROUP BY type`)
	if err != nil {
		return stats, fmt.Errorf("pgraph: statistics: by type: %w", err)
	}
	for rows.Next() {
		var (
			typ   string
			count int
		)
		if err := rows.Scan(&typ, &count); err != nil {
			rows.Close()
			return stats, fmt.Errorf("pgraph: statistics: scan: %w", err)
		}
		stats.EntityCountByType[worldmodel.EntityType(typ)] = count
		stats.EntityCount += count
	}
	rows.Close()

	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM relationships`).Scan(&stats.RelationshipCount); err != nil {
		return stats, fmt.Errorf("pgraph: statistics: relationship count: %w", err)
	}

	projRows, err := s.pool.Query(ctx, `SELECT DISTINCT project FROM entities WHERE project != '' ORDER BY project`)
	if err != nil {
		return stats, fmt.Errorf("pgraph: statistics: projects: %w", err)
	}
	defer projRows.Close()
	for projRows.Next() {
		var p string
		if err := projRows.Scan(&p); err != nil {
			return stats, fmt.Errorf("pgraph: statistics: scan project: %w", err)
		}
		stats.Projects = append(stats.Projects, p)
	}
	sort.Strings(stats.Projects)
	return stats, nil
}

func (s *Store) ExportGraph(ctx context.Context, path, project string) error {
	return worldmodel.ExportGraph(ctx, s, path, project)
}

func (s *Store) ImportGraph(ctx context.Context, path, project string, mode worldmodel.ImportMode) (int, error) {
	return worldmodel.ImportGraph(ctx, s, path, project, mode)
}

func (s *Store) AddAnnotation(ctx context.Context, entityID string, ann worldmodel.Annotation) error {
	existing, err := s.GetEntity(ctx, entityID)
	if err != nil {
		return fmt.Errorf("pgraph: add annotation: %w", err)
	}
	if existing == nil {
		return fmt.Errorf("pgraph: add annotation: entity %q: %w", entityID, worldmodel.ErrNotFound)
	}
	if ann.CreatedAt.IsZero() {
		ann.CreatedAt = time.Now()
	}
	existing.Annotations = append(existing.Annotations, ann)
	return s.UpdateEntity(ctx, *existing)
}

func (s *Store) Reset(ctx context.Context, project string, confirm bool) error {
	if !confirm {
		return worldmodel.ErrMissingConfirm
	}
	if project == "" {
		if _, err := s.pool.Exec(ctx, `TRUNCATE relationships, entities`); err != nil {
			return fmt.Errorf("pgraph: reset: %w", err)
		}
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM entities WHERE project = $1`, project); err != nil {
		return fmt.Errorf("pgraph: reset project %q: %w", project, err)
	}
	return nil
}

func collectEntities(rows pgx.Rows) ([]worldmodel.Entity, error) {
	entities, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (worldmodel.Entity, error) {
		var (
			e          worldmodel.Entity
			typ        string
			propsJSON  []byte
			annJSON    []byte
		)
		if err := row.Scan(
			&e.ID, &typ, &propsJSON, &e.Confidence, &e.Project,
			&e.CreatedAt, &e.UpdatedAt, &e.CreatedBy, &e.Verified, &annJSON,
		); err != nil {
			return worldmodel.Entity{}, err
		}
		e.Type = worldmodel.EntityType(typ)
		if len(propsJSON) > 0 {
			if err := json.Unmarshal(propsJSON, &e.Properties); err != nil {
				return worldmodel.Entity{}, fmt.Errorf("unmarshal properties: %w", err)
			}
		}
		if e.Properties == nil {
			e.Properties = map[string]any{}
		}
		if len(annJSON) > 0 {
			if err := json.Unmarshal(annJSON, &e.Annotations); err != nil {
				return worldmodel.Entity{}, fmt.Errorf("unmarshal annotations: %w", err)
			}
		}
		if e.Annotations == nil {
			e.Annotations = []worldmodel.Annotation{}
		}
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	if entities == nil {
		entities = []worldmodel.Entity{}
	}
	return entities, nil
}

func collectRelationships(rows pgx.Rows) ([]worldmodel.Relationship, error) {
	rels, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (worldmodel.Relationship, error) {
		var (
			r         worldmodel.Relationship
			typ       string
			propsJSON []byte
		)
		if err := row.Scan(
			&r.ID, &r.SourceID, &r.TargetID, &typ, &propsJSON,
			&r.Confidence, &r.CreatedAt, &r.CreatedBy,
		); err != nil {
			return worldmodel.Relationship{}, err
		}
		r.Type = worldmodel.RelationshipType(typ)
		if len(propsJSON) > 0 {
			if err := json.Unmarshal(propsJSON, &r.Properties); err != nil {
				return worldmodel.Relationship{}, fmt.Errorf("unmarshal properties: %w", err)
			}
		}
		if r.Properties == nil {
			r.Properties = map[string]any{}
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	if rels == nil {
		rels = []worldmodel.Relationship{}
	}
	return rels, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "SQLSTATE 23505")
}

func isForeignKeyViolation(err error) bool {
	return strings.Contains(err.Error(), "SQLSTATE 23503")
}
