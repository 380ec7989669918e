package facade

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/kosmos-research/kosmos/pkg/worldmodel"
)

// Compile-time assertion.
var _ worldmodel.Storage = (*degradedStorage)(nil)

// degradedStorage backs a facade whose backend failed to construct or has
// been judged unreachable. Every entity, relationship, annotation and reset
// call succeeds and does nothing (adds return the caller's id or a synthetic
// one); every read returns the zero value. ExportGraph and ImportGraph are
// the exception: both fail with [worldmodel.ErrBackendUnavailable]. No business logic depends on whether metrics or graph writes
// actually landed (§4.4, §4.10), so callers built against [worldmodel.Storage]
// keep working, just without persistence.
type degradedStorage struct{}

func (degradedStorage) AddEntity(ctx context.Context, e worldmodel.Entity) (string, error) {
	if e.ID != "" {
		return e.ID, nil
	}
	return syntheticID()
}

func (degradedStorage) GetEntity(ctx context.Context, id string) (*worldmodel.Entity, error) {
	return nil, nil
}

func (degradedStorage) UpdateEntity(ctx context.Context, e worldmodel.Entity) error {
	return nil
}

func (degradedStorage) DeleteEntity(ctx context.Context, id string) error {
	return nil
}

func (degradedStorage) AddRelationship(ctx context.Context, r worldmodel.Relationship) (string, error) {
	if r.ID != "" {
		return r.ID, nil
	}
	return syntheticID()
}

func (degradedStorage) Query(ctx context.Context, spec string, filter worldmodel.EntityFilter) ([]worldmodel.Entity, error) {
	return []worldmodel.Entity{}, nil
}

func (degradedStorage) IterateEntities(ctx context.Context, project string) ([]worldmodel.Entity, error) {
	return []worldmodel.Entity{}, nil
}

func (degradedStorage) GetStatistics(ctx context.Context) (worldmodel.Statistics, error) {
	return worldmodel.Statistics{
		EntityCountByType: map[worldmodel.EntityType]int{},
		Projects:          []string{},
	}, nil
}

func (degradedStorage) ExportGraph(ctx context.Context, path, project string) error {
	return worldmodel.ErrBackendUnavailable
}

func (degradedStorage) ImportGraph(ctx context.Context, path, project string, mode worldmodel.ImportMode) (int, error) {
	return 0, worldmodel.ErrBackendUnavailable
}

func (degradedStorage) AddAnnotation(ctx context.Context, entityID string, ann worldmodel.Annotation) error {
	return nil
}

func (degradedStorage) Reset(ctx context.Context, project string, confirm bool) error {
	return nil
}

// syntheticID generates a stable-looking id for degraded-mode mutations,
// same crypto/rand + hex shape as every real backend's id generator.
func syntheticID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "degraded-" + hex.EncodeToString(buf), nil
}
