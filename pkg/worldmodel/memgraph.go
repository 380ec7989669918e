package worldmodel

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Compile-time assertion.
var _ Storage = (*MemGraph)(nil)

// MemGraph is a thread-safe, in-memory [Storage] implementation. It backs
// unit tests and any "simple" deployment that has not configured a real
// graph backend connection string.
//
// Query's spec parameter is interpreted narrowly: a non-empty spec is
// matched as a case-insensitive substring against each entity's flattened
// property text, mirroring the property-graph backend's properties_text
// full-text field (§4.3) without requiring a database.
type MemGraph struct {
	mu   sync.RWMutex
	ents map[string]Entity
	rels map[string]Relationship
}

// NewMemGraph returns an initialised, empty [MemGraph].
func NewMemGraph() *MemGraph {
	return &MemGraph{
		ents: make(map[string]Entity),
		rels: make(map[string]Relationship),
	}
}

func (g *MemGraph) AddEntity(ctx context.Context, e Entity) (string, error) {
	if err := ValidateEntity(e); err != nil {
		return "", err
	}
	if e.ID == "" {
		id, err := generateGraphID()
		if err != nil {
			return "", fmt.Errorf("worldmodel: generate id: %w", err)
		}
		e.ID = id
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.ents[e.ID]; ok {
		// addEntity fails fast on a duplicate id (§4.3), even for an
		// identical payload; the stored entity is left unchanged.
		_ = existing
		return "", fmt.Errorf("worldmodel: add entity %q: %w", e.ID, ErrDuplicateID)
	}

	// A merge-import re-inserting a previously-exported entity supplies its
	// own CreatedAt/UpdatedAt (§4.9's "restores the graph to bit-identical
	// entity/relationship contents"); only a caller-omitted timestamp is
	// defaulted here.
	now := time.Now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = now
	}
	if e.Properties == nil {
		e.Properties = map[string]any{}
	}
	if e.Annotations == nil {
		e.Annotations = []Annotation{}
	}
	g.ents[e.ID] = e
	return e.ID, nil
}

func (g *MemGraph) GetEntity(ctx context.Context, id string) (*Entity, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.ents[id]
	if !ok {
		return nil, nil
	}
	cp := e
	return &cp, nil
}

func (g *MemGraph) UpdateEntity(ctx context.Context, e Entity) error {
	if err := ValidateEntity(e); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	existing, ok := g.ents[e.ID]
	if !ok {
		return fmt.Errorf("worldmodel: update entity %q: %w", e.ID, ErrNotFound)
	}
	e.CreatedAt = existing.CreatedAt
	e.UpdatedAt = time.Now()
	g.ents[e.ID] = e
	return nil
}

func (g *MemGraph) DeleteEntity(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.ents[id]; !ok {
		return fmt.Errorf("worldmodel: delete entity %q: %w", id, ErrNotFound)
	}
	delete(g.ents, id)
	for rid, r := range g.rels {
		if r.SourceID == id || r.TargetID == id {
			delete(g.rels, rid)
		}
	}
	return nil
}

func (g *MemGraph) AddRelationship(ctx context.Context, r Relationship) (string, error) {
	if err := ValidateRelationship(r); err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.ents[r.SourceID]; !ok {
		return "", fmt.Errorf("worldmodel: add relationship: source %q: %w", r.SourceID, ErrNotFound)
	}
	if _, ok := g.ents[r.TargetID]; !ok {
		return "", fmt.Errorf("worldmodel: add relationship: target %q: %w", r.TargetID, ErrNotFound)
	}

	if r.ID == "" {
		id, err := generateGraphID()
		if err != nil {
			return "", fmt.Errorf("worldmodel: generate id: %w", err)
		}
		r.ID = id
	}
	if r.Properties == nil {
		r.Properties = map[string]any{}
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	g.rels[r.ID] = r
	return r.ID, nil
}

func (g *MemGraph) Query(ctx context.Context, spec string, filter EntityFilter) ([]Entity, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(spec))
	result := make([]Entity, 0)
	for _, e := range g.sortedEntities() {
		if filter.Project != "" && e.Project != filter.Project {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(FlattenProperties(e.Properties)), needle) {
			continue
		}
		result = append(result, e)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

func (g *MemGraph) IterateEntities(ctx context.Context, project string) ([]Entity, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	result := make([]Entity, 0)
	for _, e := range g.sortedEntities() {
		if project != "" && e.Project != project {
			continue
		}
		result = append(result, e)
	}
	return result, nil
}

func (g *MemGraph) GetStatistics(ctx context.Context) (Statistics, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stats := Statistics{
		EntityCountByType: map[EntityType]int{},
		Projects:          []string{},
	}
	seenProjects := map[string]struct{}{}
	for _, e := range g.ents {
		stats.EntityCount++
		stats.EntityCountByType[e.Type]++
		if e.Project != "" {
			if _, ok := seenProjects[e.Project]; !ok {
				seenProjects[e.Project] = struct{}{}
				stats.Projects = append(stats.Projects, e.Project)
			}
		}
	}
	sort.Strings(stats.Projects)
	stats.RelationshipCount = len(g.rels)
	return stats, nil
}

// ListRelationships returns every relationship whose source entity belongs
// to project (all projects when empty). It satisfies [GraphLister] so
// [ExportGraph] can enumerate edges without a dedicated Storage method.
func (g *MemGraph) ListRelationships(ctx context.Context, project string) ([]Relationship, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := make([]string, 0, len(g.rels))
	for id := range g.rels {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := make([]Relationship, 0, len(ids))
	for _, id := range ids {
		r := g.rels[id]
		if project != "" {
			src, ok := g.ents[r.SourceID]
			if !ok || src.Project != project {
				continue
			}
		}
		result = append(result, r)
	}
	return result, nil
}

func (g *MemGraph) ExportGraph(ctx context.Context, path, project string) error {
	return ExportGraph(ctx, g, path, project)
}

func (g *MemGraph) ImportGraph(ctx context.Context, path, project string, mode ImportMode) (int, error) {
	return ImportGraph(ctx, g, path, project, mode)
}

func (g *MemGraph) AddAnnotation(ctx context.Context, entityID string, ann Annotation) error {
	if err := validateAnnotation(ann); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.ents[entityID]
	if !ok {
		return fmt.Errorf("worldmodel: add annotation: entity %q: %w", entityID, ErrNotFound)
	}
	if ann.CreatedAt.IsZero() {
		ann.CreatedAt = time.Now()
	}
	e.Annotations = append(e.Annotations, ann)
	e.UpdatedAt = time.Now()
	g.ents[entityID] = e
	return nil
}

func (g *MemGraph) Reset(ctx context.Context, project string, confirm bool) error {
	if !confirm {
		return ErrMissingConfirm
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if project == "" {
		g.ents = make(map[string]Entity)
		g.rels = make(map[string]Relationship)
		return nil
	}
	for id, e := range g.ents {
		if e.Project == project {
			delete(g.ents, id)
		}
	}
	for id, r := range g.rels {
		if _, srcOK := g.ents[r.SourceID]; !srcOK {
			delete(g.rels, id)
			continue
		}
		if _, tgtOK := g.ents[r.TargetID]; !tgtOK {
			delete(g.rels, id)
		}
	}
	return nil
}

// sortedEntities returns every entity ordered by id, giving IterateEntities
// and Query a consistent total order per call (§4.3 invariant) without
// requiring a database's natural ordering.
func (g *MemGraph) sortedEntities() []Entity {
	ids := make([]string, 0, len(g.ents))
	for id := range g.ents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	result := make([]Entity, 0, len(ids))
	for _, id := range ids {
		result = append(result, g.ents[id])
	}
	return result
}

// generateGraphID produces a random 16-byte hex string using crypto/rand.
func generateGraphID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
