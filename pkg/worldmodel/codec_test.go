package worldmodel_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kosmos-research/kosmos/pkg/worldmodel"
)

func TestExportImportGraph_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := worldmodel.NewMemGraph()

	qID, err := src.AddEntity(ctx, worldmodel.Entity{Type: worldmodel.EntityResearchQuestion, Project: "p1",
		Properties: map[string]any{"text": "does caffeine improve focus?"}})
	if err != nil {
		t.Fatalf("AddEntity: %v", err)
	}
	hID, err := src.AddEntity(ctx, worldmodel.Entity{Type: worldmodel.EntityHypothesis, Project: "p1",
		Properties: map[string]any{"statement": "caffeine improves focus"}})
	if err != nil {
		t.Fatalf("AddEntity: %v", err)
	}
	if _, err := src.AddRelationship(ctx, worldmodel.Relationship{
		SourceID: hID, TargetID: qID, Type: worldmodel.RelSpawnedBy, Confidence: 1.0,
	}); err != nil {
		t.Fatalf("AddRelationship: %v", err)
	}

	path := filepath.Join(t.TempDir(), "export.json")
	if err := src.ExportGraph(ctx, path, "p1"); err != nil {
		t.Fatalf("ExportGraph: %v", err)
	}

	dst := worldmodel.NewMemGraph()
	n, err := dst.ImportGraph(ctx, path, "p1", worldmodel.ImportMerge)
	if err != nil {
		t.Fatalf("ImportGraph: %v", err)
	}
	if n != 2 {
		t.Errorf("imported entity count = %d, want 2", n)
	}

	stats, err := dst.GetStatistics(ctx)
	if err != nil {
		t.Fatalf("GetStatistics: %v", err)
	}
	if stats.EntityCount != 2 {
		t.Errorf("EntityCount = %d, want 2", stats.EntityCount)
	}
	if stats.RelationshipCount != 1 {
		t.Errorf("RelationshipCount = %d, want 1", stats.RelationshipCount)
	}

	got, err := dst.GetEntity(ctx, hID)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if got == nil || got.Properties["statement"] != "caffeine improves focus" {
		t.Errorf("got %+v, want the hypothesis's statement preserved", got)
	}
}

func TestImportGraph_MergeUpsertsExistingEntity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g := worldmodel.NewMemGraph()

	id, err := g.AddEntity(ctx, worldmodel.Entity{Type: worldmodel.EntityHypothesis,
		Properties: map[string]any{"statement": "original"}})
	if err != nil {
		t.Fatalf("AddEntity: %v", err)
	}

	path := filepath.Join(t.TempDir(), "export.json")
	if err := g.ExportGraph(ctx, path, ""); err != nil {
		t.Fatalf("ExportGraph: %v", err)
	}

	// Mutate the export on disk to simulate a re-import with revised content
	// for the same id, then merge it back in.
	before, err := g.GetEntity(ctx, id)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	before.Properties["statement"] = "revised externally"
	if err := g.UpdateEntity(ctx, *before); err != nil {
		t.Fatalf("UpdateEntity: %v", err)
	}
	if err := g.ExportGraph(ctx, path, ""); err != nil {
		t.Fatalf("re-ExportGraph: %v", err)
	}

	dst := worldmodel.NewMemGraph()
	if _, err := dst.AddEntity(ctx, worldmodel.Entity{ID: id, Type: worldmodel.EntityHypothesis,
		Properties: map[string]any{"statement": "stale local copy"}}); err != nil {
		t.Fatalf("seeding dst: %v", err)
	}

	if _, err := dst.ImportGraph(ctx, path, "", worldmodel.ImportMerge); err != nil {
		t.Fatalf("ImportGraph: %v", err)
	}

	got, err := dst.GetEntity(ctx, id)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if got.Properties["statement"] != "revised externally" {
		t.Errorf("Properties[statement] = %v, want merge to overwrite with the imported value", got.Properties["statement"])
	}
}

func TestImportGraph_ReplaceResetsProjectFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g := worldmodel.NewMemGraph()
	if _, err := g.AddEntity(ctx, worldmodel.Entity{Type: worldmodel.EntityHypothesis, Project: "p1"}); err != nil {
		t.Fatalf("AddEntity: %v", err)
	}

	path := filepath.Join(t.TempDir(), "export.json")
	empty := worldmodel.NewMemGraph()
	if _, err := empty.AddEntity(ctx, worldmodel.Entity{Type: worldmodel.EntityResearchQuestion, Project: "p1"}); err != nil {
		t.Fatalf("AddEntity: %v", err)
	}
	if err := empty.ExportGraph(ctx, path, "p1"); err != nil {
		t.Fatalf("ExportGraph: %v", err)
	}

	if _, err := g.ImportGraph(ctx, path, "p1", worldmodel.ImportReplace); err != nil {
		t.Fatalf("ImportGraph: %v", err)
	}

	stats, err := g.GetStatistics(ctx)
	if err != nil {
		t.Fatalf("GetStatistics: %v", err)
	}
	if stats.EntityCountByType[worldmodel.EntityHypothesis] != 0 {
		t.Errorf("expected the original hypothesis to be wiped by ImportReplace, found %d",
			stats.EntityCountByType[worldmodel.EntityHypothesis])
	}
	if stats.EntityCountByType[worldmodel.EntityResearchQuestion] != 1 {
		t.Errorf("expected the imported research question to be present")
	}
}

func TestImportGraph_MajorVersionMismatchFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"version":"2.0","entities":[],"relationships":[]}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	g := worldmodel.NewMemGraph()
	_, err := g.ImportGraph(ctx, path, "", worldmodel.ImportMerge)
	if !errors.Is(err, worldmodel.ErrVersionMismatch) {
		t.Errorf("err = %v, want ErrVersionMismatch", err)
	}
}

func TestImportGraph_MinorVersionMismatchWarnsButSucceeds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "minor.json")
	if err := os.WriteFile(path, []byte(`{"version":"1.9","entities":[],"relationships":[]}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	g := worldmodel.NewMemGraph()
	n, err := g.ImportGraph(ctx, path, "", worldmodel.ImportMerge)
	if err != nil {
		t.Fatalf("ImportGraph: %v", err)
	}
	if n != 0 {
		t.Errorf("n = %d, want 0 entities in an empty document", n)
	}
}
