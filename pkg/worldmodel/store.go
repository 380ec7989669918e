package worldmodel

import "context"

// Storage is the single abstract contract every world-model backend
// satisfies (§4.2). UpdateEntity is idempotent when called with the same id
// and payload: last-writer-wins on properties, updated_at advances.
// AddEntity is not: a second call with an id already present fails with
// [ErrDuplicateID] and leaves the stored entity unchanged.
//
// Implementations must be safe for concurrent use.
type Storage interface {
	// AddEntity inserts e and returns its stable id. Fails with
	// [ErrDuplicateID] if e.ID is already present, or [ErrValidation] if e
	// fails [ValidateEntity].
	AddEntity(ctx context.Context, e Entity) (string, error)

	// GetEntity retrieves an entity by id. Returns (nil, nil) when absent —
	// never a partially-populated entity.
	GetEntity(ctx context.Context, id string) (*Entity, error)

	// UpdateEntity overwrites the entity with the given (known) id. Fails
	// with [ErrNotFound] if absent, [ErrValidation] if e fails
	// [ValidateEntity].
	UpdateEntity(ctx context.Context, e Entity) error

	// DeleteEntity removes e and its incident edges. Fails with
	// [ErrNotFound] if no entity was deleted.
	DeleteEntity(ctx context.Context, id string) error

	// AddRelationship inserts r and returns its stable id. Fails with
	// [ErrNotFound] if either endpoint does not exist, or [ErrValidation] if
	// r fails [ValidateRelationship]. Parallel edges of the same type
	// between the same pair are permitted; each gets a distinct id.
	AddRelationship(ctx context.Context, r Relationship) (string, error)

	// Query returns entities matching a backend-specific spec narrowed by
	// filter. [MemGraph] matches spec as a case-insensitive substring of the
	// flattened property text; the pgraph backend runs it as a plain-text
	// full-text query. No backend parses spec as a WHERE-clause fragment.
	Query(ctx context.Context, spec string, filter EntityFilter) ([]Entity, error)

	// IterateEntities returns a restartable, consistently ordered snapshot of
	// every entity in project (all projects when empty). "Lazy sequence" in
	// the source maps to a materialised slice here: the whole result is
	// returned at once, with no paging or limit.
	IterateEntities(ctx context.Context, project string) ([]Entity, error)

	// GetStatistics returns counts by type, relationship counts, and the
	// known project list.
	GetStatistics(ctx context.Context) (Statistics, error)

	// ExportGraph writes the §4.9 document to path, optionally scoped to
	// project.
	ExportGraph(ctx context.Context, path, project string) error

	// ImportGraph reads the §4.9 document at path and loads it under mode.
	// Returns the count of entities imported.
	ImportGraph(ctx context.Context, path, project string, mode ImportMode) (int, error)

	// AddAnnotation appends ann to entityID's Annotations and bumps
	// updated_at. Fails with [ErrNotFound] if the entity does not exist.
	AddAnnotation(ctx context.Context, entityID string, ann Annotation) error

	// Reset deletes every entity/relationship in project (all projects when
	// empty). Fails with [ErrMissingConfirm] unless confirm is true.
	Reset(ctx context.Context, project string, confirm bool) error
}
