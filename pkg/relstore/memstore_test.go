package relstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/kosmos-research/kosmos/pkg/relstore"
)

func newSession(t *testing.T) relstore.Session {
	t.Helper()
	store := relstore.NewMemStore()
	t.Cleanup(store.Close)
	session, err := store.GetSession(context.Background())
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	t.Cleanup(session.Close)
	return session
}

func TestMemStore_ResearchPlanRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	session := newSession(t)

	plan, err := session.CreateResearchPlan(ctx, "rq-1", "does caffeine improve reaction time?")
	if err != nil {
		t.Fatalf("CreateResearchPlan: %v", err)
	}
	if plan.ID == "" {
		t.Fatal("expected a generated id")
	}

	got, err := session.GetResearchPlan(ctx, plan.ID)
	if err != nil {
		t.Fatalf("GetResearchPlan: %v", err)
	}
	if got == nil {
		t.Fatal("expected plan to be found")
	}
	if got.QuestionText != plan.QuestionText {
		t.Errorf("QuestionText = %q, want %q", got.QuestionText, plan.QuestionText)
	}
}

func TestMemStore_GetResearchPlan_NotFoundReturnsNilNil(t *testing.T) {
	t.Parallel()
	session := newSession(t)
	got, err := session.GetResearchPlan(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing plan, got %+v", got)
	}
}

func TestMemStore_UpdateResearchPlan_NotFound(t *testing.T) {
	t.Parallel()
	session := newSession(t)
	err := session.UpdateResearchPlan(context.Background(), relstore.ResearchPlan{ID: "missing"})
	if !errors.Is(err, relstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemStore_AddHypothesis_RequiresStatement(t *testing.T) {
	t.Parallel()
	session := newSession(t)
	_, err := session.AddHypothesis(context.Background(), relstore.Hypothesis{ResearchPlanID: "rp-1"})
	if !errors.Is(err, relstore.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestMemStore_AddHypothesis_DefaultsStatusToProposed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	session := newSession(t)

	h, err := session.AddHypothesis(ctx, relstore.Hypothesis{
		ResearchPlanID: "rp-1",
		Statement:      "caffeine improves reaction time by 10%",
	})
	if err != nil {
		t.Fatalf("AddHypothesis: %v", err)
	}
	if h.Status != relstore.HypothesisProposed {
		t.Errorf("Status = %q, want %q", h.Status, relstore.HypothesisProposed)
	}
	if h.ID == "" {
		t.Error("expected a generated id")
	}
}

func TestMemStore_UpdateHypothesis_OnlyMutatesAllowedFields(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	session := newSession(t)

	h, err := session.AddHypothesis(ctx, relstore.Hypothesis{
		ResearchPlanID: "rp-1",
		Statement:      "original statement",
	})
	if err != nil {
		t.Fatalf("AddHypothesis: %v", err)
	}

	h.Statement = "attempted tamper"
	h.Status = relstore.HypothesisSupported
	h.ConfidenceScore = 0.9
	h.RefinementCount = 1
	if err := session.UpdateHypothesis(ctx, h); err != nil {
		t.Fatalf("UpdateHypothesis: %v", err)
	}

	got, err := session.GetHypothesis(ctx, h.ID)
	if err != nil {
		t.Fatalf("GetHypothesis: %v", err)
	}
	if got.Statement != "original statement" {
		t.Errorf("Statement should not be mutable via UpdateHypothesis, got %q", got.Statement)
	}
	if got.Status != relstore.HypothesisSupported {
		t.Errorf("Status = %q, want supported", got.Status)
	}
	if got.ConfidenceScore != 0.9 {
		t.Errorf("ConfidenceScore = %v, want 0.9", got.ConfidenceScore)
	}
}

func TestMemStore_ListHypotheses_FiltersByResearchPlan(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	session := newSession(t)

	for _, planID := range []string{"rp-a", "rp-a", "rp-b"} {
		if _, err := session.AddHypothesis(ctx, relstore.Hypothesis{
			ResearchPlanID: planID,
			Statement:      "statement for " + planID,
		}); err != nil {
			t.Fatalf("AddHypothesis: %v", err)
		}
	}

	got, err := session.ListHypotheses(ctx, "rp-a")
	if err != nil {
		t.Fatalf("ListHypotheses: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len(got) = %d, want 2", len(got))
	}
}

func TestMemStore_AddProtocol_RequiresHypothesisID(t *testing.T) {
	t.Parallel()
	session := newSession(t)
	_, err := session.AddProtocol(context.Background(), relstore.ExperimentProtocol{Title: "a trial"})
	if !errors.Is(err, relstore.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestMemStore_AddResult_RequiresProtocolID(t *testing.T) {
	t.Parallel()
	session := newSession(t)
	_, err := session.AddResult(context.Background(), relstore.ExperimentResult{Status: relstore.ResultSuccess})
	if !errors.Is(err, relstore.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestMemStore_ResultSupportsHypothesisTriState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	session := newSession(t)

	r, err := session.AddResult(ctx, relstore.ExperimentResult{
		ProtocolID:         "proto-1",
		Status:             relstore.ResultSuccess,
		SupportsHypothesis: nil,
	})
	if err != nil {
		t.Fatalf("AddResult: %v", err)
	}
	if r.SupportsHypothesis != nil {
		t.Error("expected SupportsHypothesis to remain nil (inconclusive)")
	}

	got, err := session.GetResult(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if got.SupportsHypothesis != nil {
		t.Error("expected stored result to keep SupportsHypothesis nil")
	}
}

func TestMemStore_ConcurrentAccessIsSafe(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := relstore.NewMemStore()
	t.Cleanup(store.Close)

	const n = 50
	done := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			session, err := store.GetSession(ctx)
			if err != nil {
				done <- err
				return
			}
			defer session.Close()
			_, err = session.AddHypothesis(ctx, relstore.Hypothesis{
				ResearchPlanID: "rp-concurrent",
				Statement:      "concurrent hypothesis",
			})
			done <- err
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-done; err != nil {
			t.Errorf("concurrent AddHypothesis failed: %v", err)
		}
	}

	session, err := store.GetSession(ctx)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	defer session.Close()
	got, err := session.ListHypotheses(ctx, "rp-concurrent")
	if err != nil {
		t.Fatalf("ListHypotheses: %v", err)
	}
	if len(got) != n {
		t.Errorf("len(got) = %d, want %d", len(got), n)
	}
}
