package facade_test

import (
	"context"
	"testing"

	"github.com/kosmos-research/kosmos/pkg/worldmodel"
	"github.com/kosmos-research/kosmos/pkg/worldmodel/facade"
)

// These tests share a process-wide singleton (facade.GetWorldModel), so none
// of them run with t.Parallel — each starts by forcing a fresh instance via
// ResetWorldModel rather than relying on test ordering.

func TestGetWorldModel_DisabledConfigIsDegraded(t *testing.T) {
	ctx := context.Background()
	f, err := facade.ResetWorldModel(ctx, facade.Config{Enabled: false})
	if err != nil {
		t.Fatalf("ResetWorldModel: %v", err)
	}
	if !f.Degraded() {
		t.Error("expected a disabled config to produce a degraded facade")
	}

	// A degraded facade's mutating calls still succeed (§4.4): no business
	// logic should depend on whether the write actually landed.
	id, err := f.AddEntity(ctx, worldmodel.Entity{Type: worldmodel.EntityHypothesis})
	if err != nil {
		t.Fatalf("AddEntity on a degraded facade should not error, got: %v", err)
	}
	if id == "" {
		t.Error("expected a synthetic id even in degraded mode")
	}
}

func TestGetWorldModel_EnabledWithoutGraphURIUsesMemGraph(t *testing.T) {
	ctx := context.Background()
	f, err := facade.ResetWorldModel(ctx, facade.Config{Enabled: true, Mode: "simple"})
	if err != nil {
		t.Fatalf("ResetWorldModel: %v", err)
	}
	if f.Degraded() {
		t.Fatal("expected a non-degraded facade when no graph URI is configured (falls back to memgraph)")
	}

	id, err := f.AddEntity(ctx, worldmodel.Entity{Type: worldmodel.EntityHypothesis,
		Properties: map[string]any{"statement": "test"}})
	if err != nil {
		t.Fatalf("AddEntity: %v", err)
	}
	got, err := f.GetEntity(ctx, id)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if got == nil {
		t.Fatal("expected to retrieve the entity just added")
	}
}

func TestGetWorldModel_UnknownModeFallsBackToDegraded(t *testing.T) {
	ctx := context.Background()
	f, err := facade.ResetWorldModel(ctx, facade.Config{Enabled: true, Mode: "nonsense-mode"})
	if err != nil {
		t.Fatalf("ResetWorldModel: %v", err)
	}
	if !f.Degraded() {
		t.Error("expected an unknown mode to fall back to a degraded facade rather than error")
	}
}

func TestGetWorldModel_ReturnsSameInstanceUntilReset(t *testing.T) {
	ctx := context.Background()
	first, err := facade.ResetWorldModel(ctx, facade.Config{Enabled: true, Mode: "simple"})
	if err != nil {
		t.Fatalf("ResetWorldModel: %v", err)
	}
	id, err := first.AddEntity(ctx, worldmodel.Entity{Type: worldmodel.EntityHypothesis})
	if err != nil {
		t.Fatalf("AddEntity: %v", err)
	}

	// A second GetWorldModel call, even with a different config, must return
	// the existing instance untouched (§4.4): the entity just added should
	// still be retrievable through it.
	second, err := facade.GetWorldModel(ctx, facade.Config{Enabled: false})
	if err != nil {
		t.Fatalf("GetWorldModel: %v", err)
	}
	got, err := second.GetEntity(ctx, id)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if got == nil {
		t.Error("expected the singleton to be reused, preserving the earlier write")
	}
}

func TestResetWorldModel_DiscardsPreviousInstance(t *testing.T) {
	ctx := context.Background()
	first, err := facade.ResetWorldModel(ctx, facade.Config{Enabled: true, Mode: "simple"})
	if err != nil {
		t.Fatalf("ResetWorldModel: %v", err)
	}
	id, err := first.AddEntity(ctx, worldmodel.Entity{Type: worldmodel.EntityHypothesis})
	if err != nil {
		t.Fatalf("AddEntity: %v", err)
	}

	second, err := facade.ResetWorldModel(ctx, facade.Config{Enabled: true, Mode: "simple"})
	if err != nil {
		t.Fatalf("ResetWorldModel: %v", err)
	}
	got, err := second.GetEntity(ctx, id)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if got != nil {
		t.Error("expected a fresh backend after ResetWorldModel, but the old entity was still present")
	}
}

func TestFacade_AttachesDefaultProjectWhenCallerOmitsOne(t *testing.T) {
	ctx := context.Background()
	f, err := facade.ResetWorldModel(ctx, facade.Config{Enabled: true, Mode: "simple", Project: "kosmos-default"})
	if err != nil {
		t.Fatalf("ResetWorldModel: %v", err)
	}

	id, err := f.AddEntity(ctx, worldmodel.Entity{Type: worldmodel.EntityHypothesis})
	if err != nil {
		t.Fatalf("AddEntity: %v", err)
	}
	got, err := f.GetEntity(ctx, id)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if got.Project != "kosmos-default" {
		t.Errorf("Project = %q, want the facade's default project to be attached", got.Project)
	}
}
