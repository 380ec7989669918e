package worldmodel_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kosmos-research/kosmos/pkg/worldmodel"
)

func TestMemGraph_AddEntity_GeneratesIDWhenEmpty(t *testing.T) {
	t.Parallel()
	g := worldmodel.NewMemGraph()
	id, err := g.AddEntity(context.Background(), worldmodel.Entity{Type: worldmodel.EntityHypothesis})
	if err != nil {
		t.Fatalf("AddEntity: %v", err)
	}
	if id == "" {
		t.Fatal("expected a generated id")
	}
}

func TestMemGraph_AddEntity_DuplicateIDFails(t *testing.T) {
	t.Parallel()
	g := worldmodel.NewMemGraph()
	e := worldmodel.Entity{ID: "fixed-id", Type: worldmodel.EntityHypothesis}
	if _, err := g.AddEntity(context.Background(), e); err != nil {
		t.Fatalf("first AddEntity: %v", err)
	}
	_, err := g.AddEntity(context.Background(), e)
	if !errors.Is(err, worldmodel.ErrDuplicateID) {
		t.Errorf("err = %v, want ErrDuplicateID", err)
	}
}

func TestMemGraph_AddEntity_RejectsMissingType(t *testing.T) {
	t.Parallel()
	g := worldmodel.NewMemGraph()
	_, err := g.AddEntity(context.Background(), worldmodel.Entity{})
	if !errors.Is(err, worldmodel.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestMemGraph_GetEntity_AbsentReturnsNilNil(t *testing.T) {
	t.Parallel()
	g := worldmodel.NewMemGraph()
	e, err := g.GetEntity(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if e != nil {
		t.Errorf("expected nil entity, got %+v", e)
	}
}

func TestMemGraph_UpdateEntity_PreservesCreatedAt(t *testing.T) {
	t.Parallel()
	g := worldmodel.NewMemGraph()
	ctx := context.Background()
	id, err := g.AddEntity(ctx, worldmodel.Entity{Type: worldmodel.EntityHypothesis})
	if err != nil {
		t.Fatalf("AddEntity: %v", err)
	}
	original, err := g.GetEntity(ctx, id)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}

	updated := *original
	updated.Properties = map[string]any{"statement": "revised"}
	if err := g.UpdateEntity(ctx, updated); err != nil {
		t.Fatalf("UpdateEntity: %v", err)
	}

	got, err := g.GetEntity(ctx, id)
	if err != nil {
		t.Fatalf("GetEntity after update: %v", err)
	}
	if !got.CreatedAt.Equal(original.CreatedAt) {
		t.Errorf("CreatedAt changed: got %v, want %v", got.CreatedAt, original.CreatedAt)
	}
	if got.UpdatedAt.Before(original.UpdatedAt) {
		t.Error("UpdatedAt did not advance")
	}
}

func TestMemGraph_UpdateEntity_NotFound(t *testing.T) {
	t.Parallel()
	g := worldmodel.NewMemGraph()
	err := g.UpdateEntity(context.Background(), worldmodel.Entity{ID: "missing", Type: worldmodel.EntityHypothesis})
	if !errors.Is(err, worldmodel.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMemGraph_DeleteEntity_CascadesIncidentRelationships(t *testing.T) {
	t.Parallel()
	g := worldmodel.NewMemGraph()
	ctx := context.Background()

	a, _ := g.AddEntity(ctx, worldmodel.Entity{Type: worldmodel.EntityResearchQuestion})
	b, _ := g.AddEntity(ctx, worldmodel.Entity{Type: worldmodel.EntityHypothesis})
	relID, err := g.AddRelationship(ctx, worldmodel.Relationship{SourceID: b, TargetID: a, Type: worldmodel.RelSpawnedBy})
	if err != nil {
		t.Fatalf("AddRelationship: %v", err)
	}

	if err := g.DeleteEntity(ctx, b); err != nil {
		t.Fatalf("DeleteEntity: %v", err)
	}

	rels, err := g.ListRelationships(ctx, "")
	if err != nil {
		t.Fatalf("ListRelationships: %v", err)
	}
	for _, r := range rels {
		if r.ID == relID {
			t.Error("expected the incident relationship to be removed along with its entity")
		}
	}
}

func TestMemGraph_AddRelationship_RequiresExistingEndpoints(t *testing.T) {
	t.Parallel()
	g := worldmodel.NewMemGraph()
	ctx := context.Background()
	a, _ := g.AddEntity(ctx, worldmodel.Entity{Type: worldmodel.EntityHypothesis})

	_, err := g.AddRelationship(ctx, worldmodel.Relationship{SourceID: a, TargetID: "missing", Type: worldmodel.RelSupports})
	if !errors.Is(err, worldmodel.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMemGraph_Query_FiltersByProjectTypeAndText(t *testing.T) {
	t.Parallel()
	g := worldmodel.NewMemGraph()
	ctx := context.Background()

	_, _ = g.AddEntity(ctx, worldmodel.Entity{Type: worldmodel.EntityHypothesis, Project: "p1",
		Properties: map[string]any{"statement": "caffeine improves focus"}})
	_, _ = g.AddEntity(ctx, worldmodel.Entity{Type: worldmodel.EntityHypothesis, Project: "p2",
		Properties: map[string]any{"statement": "caffeine improves focus"}})
	_, _ = g.AddEntity(ctx, worldmodel.Entity{Type: worldmodel.EntityResearchQuestion, Project: "p1",
		Properties: map[string]any{"text": "unrelated"}})

	results, err := g.Query(ctx, "caffeine", worldmodel.EntityFilter{Project: "p1", Type: worldmodel.EntityHypothesis})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].Project != "p1" {
		t.Errorf("Project = %q, want p1", results[0].Project)
	}
}

func TestMemGraph_GetStatistics_CountsByTypeAndProjects(t *testing.T) {
	t.Parallel()
	g := worldmodel.NewMemGraph()
	ctx := context.Background()

	_, _ = g.AddEntity(ctx, worldmodel.Entity{Type: worldmodel.EntityHypothesis, Project: "p1"})
	_, _ = g.AddEntity(ctx, worldmodel.Entity{Type: worldmodel.EntityHypothesis, Project: "p2"})
	_, _ = g.AddEntity(ctx, worldmodel.Entity{Type: worldmodel.EntityResearchQuestion, Project: "p1"})

	stats, err := g.GetStatistics(ctx)
	if err != nil {
		t.Fatalf("GetStatistics: %v", err)
	}
	if stats.EntityCount != 3 {
		t.Errorf("EntityCount = %d, want 3", stats.EntityCount)
	}
	if stats.EntityCountByType[worldmodel.EntityHypothesis] != 2 {
		t.Errorf("EntityCountByType[Hypothesis] = %d, want 2", stats.EntityCountByType[worldmodel.EntityHypothesis])
	}
	if len(stats.Projects) != 2 {
		t.Errorf("len(Projects) = %d, want 2", len(stats.Projects))
	}
}

func TestMemGraph_AddAnnotation_RequiresTextAndCreator(t *testing.T) {
	t.Parallel()
	g := worldmodel.NewMemGraph()
	ctx := context.Background()
	id, _ := g.AddEntity(ctx, worldmodel.Entity{Type: worldmodel.EntityResearchQuestion})

	err := g.AddAnnotation(ctx, id, worldmodel.Annotation{})
	if !errors.Is(err, worldmodel.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}

	err = g.AddAnnotation(ctx, id, worldmodel.Annotation{Text: "converged", CreatedBy: "director"})
	if err != nil {
		t.Fatalf("AddAnnotation: %v", err)
	}

	got, err := g.GetEntity(ctx, id)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if len(got.Annotations) != 1 || got.Annotations[0].Text != "converged" {
		t.Errorf("Annotations = %+v, want one entry with text %q", got.Annotations, "converged")
	}
}

func TestMemGraph_Reset_RequiresConfirm(t *testing.T) {
	t.Parallel()
	g := worldmodel.NewMemGraph()
	err := g.Reset(context.Background(), "", false)
	if !errors.Is(err, worldmodel.ErrMissingConfirm) {
		t.Errorf("err = %v, want ErrMissingConfirm", err)
	}
}

func TestMemGraph_Reset_ScopedToProject(t *testing.T) {
	t.Parallel()
	g := worldmodel.NewMemGraph()
	ctx := context.Background()
	_, _ = g.AddEntity(ctx, worldmodel.Entity{Type: worldmodel.EntityHypothesis, Project: "keep"})
	_, _ = g.AddEntity(ctx, worldmodel.Entity{Type: worldmodel.EntityHypothesis, Project: "wipe"})

	if err := g.Reset(ctx, "wipe", true); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	stats, err := g.GetStatistics(ctx)
	if err != nil {
		t.Fatalf("GetStatistics: %v", err)
	}
	if stats.EntityCount != 1 {
		t.Errorf("EntityCount = %d, want 1 (only the other project's entity should remain)", stats.EntityCount)
	}
}

func TestMemGraph_ConcurrentReadsAndWritesAreSafe(t *testing.T) {
	t.Parallel()
	g := worldmodel.NewMemGraph()
	ctx := context.Background()

	var wg sync.WaitGroup
	const n = 30
	wg.Add(n * 2)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, _ = g.AddEntity(ctx, worldmodel.Entity{Type: worldmodel.EntityHypothesis})
		}()
		go func() {
			defer wg.Done()
			_, _ = g.GetStatistics(ctx)
		}()
	}
	wg.Wait()

	stats, err := g.GetStatistics(ctx)
	if err != nil {
		t.Fatalf("GetStatistics: %v", err)
	}
	if stats.EntityCount != n {
		t.Errorf("EntityCount = %d, want %d", stats.EntityCount, n)
	}
}
