package relstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time assertions.
var (
	_ Store   = (*PGStore)(nil)
	_ Session = (*pgSession)(nil)
)

// PGStore is the PostgreSQL-backed [Store], speaking the pgx binary wire
// protocol against the authoritative relational database.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects to dsn, migrates the schema, and returns a ready
// [PGStore].
func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("relstore: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("relstore: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("relstore: migrate: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

// GetSession implements [Store]. It acquires a single connection from the
// pool; the returned session's Close releases it back. This is the scoped
// "getSession" contract of §4.5 — guaranteed release on all exit paths when
// the caller defers Close immediately after acquisition.
func (s *PGStore) GetSession(ctx context.Context) (Session, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("relstore: acquire session: %w", err)
	}
	return &pgSession{conn: conn}, nil
}

// Close implements [Store]. Closes the underlying connection pool.
func (s *PGStore) Close() { s.pool.Close() }

// pgSession implements [Session] against a single acquired pgx connection.
type pgSession struct {
	conn *pgxpool.Conn
}

func (s *pgSession) Close() {
	if s.conn != nil {
		s.conn.Release()
		s.conn = nil
	}
}

func (s *pgSession) CreateResearchPlan(ctx context.Context, researchQuestionID, questionText string) (ResearchPlan, error) {
	id, err := generateID()
	if err != nil {
		return ResearchPlan{}, fmt.Errorf("relstore: generate id: %w", err)
	}
	const q = `
		INSERT INTO research_plan (id, research_question_id, question_text, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING id, research_question_id, question_text, iteration_count, has_converged, convergence_reason, created_at, updated_at`

	row := s.conn.QueryRow(ctx, q, id, researchQuestionID, questionText)
	plan, err := scanResearchPlan(row)
	if err != nil {
		return ResearchPlan{}, fmt.Errorf("relstore: create research plan: %w", err)
	}
	return plan, nil
}

func (s *pgSession) GetResearchPlan(ctx context.Context, id string) (*ResearchPlan, error) {
	const q = `
		SELECT id, research_question_id, question_text, iteration_count, has_converged, convergence_reason, created_at, updated_at
		FROM   research_plan WHERE id = $1`

	row := s.conn.QueryRow(ctx, q, id)
	plan, err := scanResearchPlan(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("relstore: get research plan: %w", err)
	}
	return &plan, nil
}

func (s *pgSession) UpdateResearchPlan(ctx context.Context, plan ResearchPlan) error {
	const q = `
		UPDATE research_plan
		SET    iteration_count = $2, has_converged = $3, convergence_reason = $4, updated_at = now()
		WHERE  id = $1`

	tag, err := s.conn.Exec(ctx, q, plan.ID, plan.IterationCount, plan.HasConverged, plan.ConvergenceReason)
	if err != nil {
		return fmt.Errorf("relstore: update research plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("relstore: update research plan: %w", ErrNotFound)
	}
	return nil
}

func (s *pgSession) AddHypothesis(ctx context.Context, h Hypothesis) (Hypothesis, error) {
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
	if h.Status == "" {
		h.Status = HypothesisProposed
	}

	const q = `
		INSERT INTO hypotheses
		    (id, research_plan_id, statement, rationale, status, confidence_score, generation, parent_hypothesis_id, refinement_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING id, research_plan_id, statement, rationale, status, confidence_score, generation, parent_hypothesis_id, refinement_count, created_at, updated_at`

	row := s.conn.QueryRow(ctx, q,
		h.ID, h.ResearchPlanID, h.Statement, h.Rationale, h.Status,
		h.ConfidenceScore, h.Generation, h.ParentHypothesisID, h.RefinementCount,
	)
	out, err := scanHypothesis(row)
	if err != nil {
		return Hypothesis{}, fmt.Errorf("relstore: add hypothesis: %w", err)
	}
	return out, nil
}

func (s *pgSession) GetHypothesis(ctx context.Context, id string) (*Hypothesis, error) {
	const q = `
		SELECT id, research_plan_id, statement, rationale, status, confidence_score, generation, parent_hypothesis_id, refinement_count, created_at, updated_at
		FROM   hypotheses WHERE id = $1`

	row := s.conn.QueryRow(ctx, q, id)
	h, err := scanHypothesis(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("relstore: get hypothesis: %w", err)
	}
	return &h, nil
}

func (s *pgSession) UpdateHypothesis(ctx context.Context, h Hypothesis) error {
	const q = `
		UPDATE hypotheses
		SET    status = $2, confidence_score = $3, refinement_count = $4, updated_at = now()
		WHERE  id = $1`

	tag, err := s.conn.Exec(ctx, q, h.ID, h.Status, h.ConfidenceScore, h.RefinementCount)
	if err != nil {
		return fmt.Errorf("relstore: update hypothesis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("relstore: update hypothesis: %w", ErrNotFound)
	}
	return nil
}

func (s *pgSession) ListHypotheses(ctx context.Context, researchPlanID string) ([]Hypothesis, error) {
	const q = `
		SELECT id, research_plan_id, statement, rationale, status, confidence_score, generation, parent_hypothesis_id, refinement_count, created_at, updated_at
		FROM   hypotheses WHERE research_plan_id = $1 ORDER BY created_at`

	rows, err := s.conn.Query(ctx, q, researchPlanID)
	if err != nil {
		return nil, fmt.Errorf("relstore: list hypotheses: %w", err)
	}
	result, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Hypothesis, error) {
		return scanHypothesis(row)
	})
	if err != nil {
		return nil, fmt.Errorf("relstore: list hypotheses: %w", err)
	}
	if result == nil {
		result = []Hypothesis{}
	}
	return result, nil
}

func (s *pgSession) AddProtocol(ctx context.Context, p ExperimentProtocol) (ExperimentProtocol, error) {
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
	if p.Status == "" {
		p.Status = ProtocolDesigned
	}
	stepsJSON, err := json.Marshal(p.Steps)
	if err != nil {
		return ExperimentProtocol{}, fmt.Errorf("relstore: marshal steps: %w", err)
	}
	metaJSON, err := json.Marshal(p.Metadata)
	if err != nil {
		return ExperimentProtocol{}, fmt.Errorf("relstore: marshal metadata: %w", err)
	}

	const q = `
		INSERT INTO experiment_protocols (id, hypothesis_id, title, steps, metadata, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING id, hypothesis_id, title, steps, metadata, status, created_at, updated_at`

	row := s.conn.QueryRow(ctx, q, p.ID, p.HypothesisID, p.Title, stepsJSON, metaJSON, p.Status)
	out, err := scanProtocol(row)
	if err != nil {
		return ExperimentProtocol{}, fmt.Errorf("relstore: add protocol: %w", err)
	}
	return out, nil
}

func (s *pgSession) GetExperiment(ctx context.Context, id string) (*ExperimentProtocol, error) {
	const q = `
		SELECT id, hypothesis_id, title, steps, metadata, status, created_at, updated_at
		FROM   experiment_protocols WHERE id = $1`

	row := s.conn.QueryRow(ctx, q, id)
	p, err := scanProtocol(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("relstore: get experiment: %w", err)
	}
	return &p, nil
}

func (s *pgSession) UpdateProtocol(ctx context.Context, p ExperimentProtocol) error {
	const q = `UPDATE experiment_protocols SET status = $2, updated_at = now() WHERE id = $1`
	tag, err := s.conn.Exec(ctx, q, p.ID, p.Status)
	if err != nil {
		return fmt.Errorf("relstore: update protocol: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("relstore: update protocol: %w", ErrNotFound)
	}
	return nil
}

func (s *pgSession) AddResult(ctx context.Context, r ExperimentResult) (ExperimentResult, error) {
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
	metricsJSON, err := json.Marshal(r.Metrics)
	if err != nil {
		return ExperimentResult{}, fmt.Errorf("relstore: marshal metrics: %w", err)
	}
	figuresJSON, err := json.Marshal(r.Figures)
	if err != nil {
		return ExperimentResult{}, fmt.Errorf("relstore: marshal figures: %w", err)
	}

	const q = `
		INSERT INTO experiment_results
		    (id, protocol_id, hypothesis_id, status, metrics, figures, stdout, stderr, supports_hypothesis, verdict_confidence, p_value, effect_size, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		RETURNING id, protocol_id, hypothesis_id, status, metrics, figures, stdout, stderr, supports_hypothesis, verdict_confidence, p_value, effect_size, created_at, updated_at`

	row := s.conn.QueryRow(ctx, q,
		r.ID, r.ProtocolID, r.HypothesisID, r.Status, metricsJSON, figuresJSON,
		r.Stdout, r.Stderr, r.SupportsHypothesis, r.VerdictConfidence, r.PValue, r.EffectSize,
	)
	out, err := scanResult(row)
	if err != nil {
		return ExperimentResult{}, fmt.Errorf("relstore: add result: %w", err)
	}
	return out, nil
}

func (s *pgSession) GetResult(ctx context.Context, id string) (*ExperimentResult, error) {
	const q = `
		SELECT id, protocol_id, hypothesis_id, status, metrics, figures, stdout, stderr, supports_hypothesis, verdict_confidence, p_value, effect_size, created_at, updated_at
		FROM   experiment_results WHERE id = $1`

	row := s.conn.QueryRow(ctx, q, id)
	r, err := scanResult(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("relstore: get result: %w", err)
	}
	return &r, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scan helpers
// ─────────────────────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResearchPlan(row rowScanner) (ResearchPlan, error) {
	var p ResearchPlan
	err := row.Scan(&p.ID, &p.ResearchQuestionID, &p.QuestionText, &p.IterationCount, &p.HasConverged, &p.ConvergenceReason, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func scanHypothesis(row rowScanner) (Hypothesis, error) {
	var h Hypothesis
	err := row.Scan(&h.ID, &h.ResearchPlanID, &h.Statement, &h.Rationale, &h.Status, &h.ConfidenceScore, &h.Generation, &h.ParentHypothesisID, &h.RefinementCount, &h.CreatedAt, &h.UpdatedAt)
	return h, err
}

func scanProtocol(row rowScanner) (ExperimentProtocol, error) {
	var (
		p         ExperimentProtocol
		stepsJSON []byte
		metaJSON  []byte
	)
	if err := row.Scan(&p.ID, &p.HypothesisID, &p.Title, &stepsJSON, &metaJSON, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return ExperimentProtocol{}, err
	}
	if len(stepsJSON) > 0 {
		if err := json.Unmarshal(stepsJSON, &p.Steps); err != nil {
			return ExperimentProtocol{}, fmt.Errorf("unmarshal steps: %w", err)
		}
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &p.Metadata); err != nil {
			return ExperimentProtocol{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return p, nil
}

func scanResult(row rowScanner) (ExperimentResult, error) {
	var (
		r           ExperimentResult
		metricsJSON []byte
		figuresJSON []byte
	)
	if err := row.Scan(&r.ID, &r.ProtocolID, &r.HypothesisID, &r.Status, &metricsJSON, &figuresJSON, &r.Stdout, &r.Stderr, &r.SupportsHypothesis, &r.VerdictConfidence, &r.PValue, &r.EffectSize, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return ExperimentResult{}, err
	}
	if len(metricsJSON) > 0 {
		if err := json.Unmarshal(metricsJSON, &r.Metrics); err != nil {
			return ExperimentResult{}, fmt.Errorf("unmarshal metrics: %w", err)
		}
	}
	if len(figuresJSON) > 0 {
		if err := json.Unmarshal(figuresJSON, &r.Figures); err != nil {
			return ExperimentResult{}, fmt.Errorf("unmarshal figures: %w", err)
		}
	}
	return r, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
