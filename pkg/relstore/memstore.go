package relstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Compile-time assertions that MemStore/memSession satisfy the interfaces.
var (
	_ Store   = (*MemStore)(nil)
	_ Session = (*memSession)(nil)
)

// MemStore is a thread-safe, in-memory [Store]. It backs "simple" mode
// deployments and tests; the zero value is not ready to use, call
// [NewMemStore].
type MemStore struct {
	mu        sync.Mutex
	plans     map[string]ResearchPlan
	hyps      map[string]Hypothesis
	protocols map[string]ExperimentProtocol
	results   map[string]ExperimentResult
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		plans:     make(map[string]ResearchPlan),
		hyps:      make(map[string]Hypothesis),
		protocols: make(map[string]ExperimentProtocol),
		results:   make(map[string]ExperimentResult),
	}
}

// GetSession implements [Store]. Every call returns a handle onto the same
// underlying maps; Close is a no-op since there is no connection to release.
func (s *MemStore) GetSession(ctx context.Context) (Session, error) {
	return &memSession{store: s}, nil
}

// Close implements [Store]. No-op for the in-memory backend.
func (s *MemStore) Close() {}

// memSession implements [Session] against a [MemStore].
type memSession struct {
	store *MemStore
}

func (s *memSession) Close() {}

func (s *memSession) CreateResearchPlan(ctx context.Context, researchQuestionID, questionText string) (ResearchPlan, error) {
	id, err := generateID()
	if err != nil {
		return ResearchPlan{}, fmt.Errorf("relstore: generate id: %w", err)
	}
	now := time.Now()
	plan := ResearchPlan{
		ID:                 id,
		ResearchQuestionID: researchQuestionID,
		QuestionText:       questionText,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.store.plans[id] = plan
	return plan, nil
}

func (s *memSession) GetResearchPlan(ctx context.Context, id string) (*ResearchPlan, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	p, ok := s.store.plans[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *memSession) UpdateResearchPlan(ctx context.Context, plan ResearchPlan) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	existing, ok := s.store.plans[plan.ID]
	if !ok {
		return fmt.Errorf("relstore: update research plan: %w", ErrNotFound)
	}
	existing.IterationCount = plan.IterationCount
	existing.HasConverged = plan.HasConverged
	existing.ConvergenceReason = plan.ConvergenceReason
	existing.UpdatedAt = time.Now()
	s.store.plans[plan.ID] = existing
	return nil
}

func (s *memSession) AddHypothesis(ctx context.Context, h Hypothesis) (Hypothesis, error) {
	if h.Statement == "" {
		return Hypothesis{}, fmt.Errorf("relstore: add hypothesis: %w: statement must not be empty", ErrValidation)
	}
	if h.ID == "" {
		id, err := generateID()
		if err != nil {
			return Hypothesis{}, fmt.Errorf("relstore: generate id: %w", err)
		}
		h.ID = id
	}
	now := time.Now()
	h.CreatedAt, h.UpdatedAt = now, now
	if h.Status == "" {
		h.Status = HypothesisProposed
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.store.hyps[h.ID] = h
	return h, nil
}

func (s *memSession) GetHypothesis(ctx context.Context, id string) (*Hypothesis, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	h, ok := s.store.hyps[id]
	if !ok {
		return nil, nil
	}
	return &h, nil
}

func (s *memSession) UpdateHypothesis(ctx context.Context, h Hypothesis) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	existing, ok := s.store.hyps[h.ID]
	if !ok {
		return fmt.Errorf("relstore: update hypothesis: %w", ErrNotFound)
	}
	existing.Status = h.Status
	existing.ConfidenceScore = h.ConfidenceScore
	existing.RefinementCount = h.RefinementCount
	existing.UpdatedAt = time.Now()
	s.store.hyps[h.ID] = existing
	return nil
}

func (s *memSession) ListHypotheses(ctx context.Context, researchPlanID string) ([]Hypothesis, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	result := make([]Hypothesis, 0)
	for _, h := range s.store.hyps {
		if h.ResearchPlanID == researchPlanID {
			result = append(result, h)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *memSession) AddProtocol(ctx context.Context, p ExperimentProtocol) (ExperimentProtocol, error) {
	if p.HypothesisID == "" {
		return ExperimentProtocol{}, fmt.Errorf("relstore: add protocol: %w: hypothesis_id must not be empty", ErrValidation)
	}
	if p.ID == "" {
		id, err := generateID()
		if err != nil {
			return ExperimentProtocol{}, fmt.Errorf("relstore: generate id: %w", err)
		}
		p.ID = id
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	if p.Status == "" {
		p.Status = ProtocolDesigned
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.store.protocols[p.ID] = p
	return p, nil
}

func (s *memSession) GetExperiment(ctx context.Context, id string) (*ExperimentProtocol, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	p, ok := s.store.protocols[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *memSession) UpdateProtocol(ctx context.Context, p ExperimentProtocol) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	existing, ok := s.store.protocols[p.ID]
	if !ok {
		return fmt.Errorf("relstore: update protocol: %w", ErrNotFound)
	}
	existing.Status = p.Status
	existing.UpdatedAt = time.Now()
	s.store.protocols[p.ID] = existing
	return nil
}

func (s *memSession) AddResult(ctx context.Context, r ExperimentResult) (ExperimentResult, error) {
	if r.ProtocolID == "" {
		return ExperimentResult{}, fmt.Errorf("relstore: add result: %w: protocol_id must not be empty", ErrValidation)
	}
	if r.ID == "" {
		id, err := generateID()
		if err != nil {
			return ExperimentResult{}, fmt.Errorf("relstore: generate id: %w", err)
		}
		r.ID = id
	}
	now := time.Now()
	r.CreatedAt, r.UpdatedAt = now, now

	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.store.results[r.ID] = r
	return r, nil
}

func (s *memSession) GetResult(ctx context.Context, id string) (*ExperimentResult, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	r, ok := s.store.results[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

// generateID produces a random 16-byte hex string using crypto/rand.
func generateID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
