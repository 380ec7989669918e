package relstore

import "context"

// Session is a scoped handle onto the relational store, acquired per
// operation and released on every exit path via Close. Sessions are never
// cached on an agent or held across a research cycle (§5).
//
// All methods are safe to call from the single goroutine that owns the
// session; a Session is not shared across goroutines.
type Session interface {
	// CreateResearchPlan inserts a new research_plan row for a freshly
	// constructed director and returns it with a generated id.
	CreateResearchPlan(ctx context.Context, researchQuestionID, questionText string) (ResearchPlan, error)

	// GetResearchPlan returns the research plan row, or nil if it does not
	// exist.
	GetResearchPlan(ctx context.Context, id string) (*ResearchPlan, error)

	// UpdateResearchPlan persists iteration_count, has_converged, and
	// convergence_reason. Returns [ErrNotFound] if the plan does not exist.
	UpdateResearchPlan(ctx context.Context, plan ResearchPlan) error

	// AddHypothesis inserts a hypothesis row, generating an id if empty.
	AddHypothesis(ctx context.Context, h Hypothesis) (Hypothesis, error)

	// GetHypothesis returns the hypothesis by id, the "getHypothesis" named
	// getter from §4.5.
	GetHypothesis(ctx context.Context, id string) (*Hypothesis, error)

	// UpdateHypothesis mutates only status/confidence_score/refinement_count
	// fields on an existing row; rows are never deleted by the loop.
	UpdateHypothesis(ctx context.Context, h Hypothesis) error

	// ListHypotheses returns every hypothesis belonging to researchPlanID, in
	// insertion order.
	ListHypotheses(ctx context.Context, researchPlanID string) ([]Hypothesis, error)

	// AddProtocol inserts an experiment_protocols row.
	AddProtocol(ctx context.Context, p ExperimentProtocol) (ExperimentProtocol, error)

	// GetExperiment returns the protocol by id, the "getExperiment" named
	// getter from §4.5.
	GetExperiment(ctx context.Context, id string) (*ExperimentProtocol, error)

	// UpdateProtocol mutates the status field on an existing row.
	UpdateProtocol(ctx context.Context, p ExperimentProtocol) error

	// AddResult inserts an experiment_results row.
	AddResult(ctx context.Context, r ExperimentResult) (ExperimentResult, error)

	// GetResult returns the result by id, the "getResult" named getter from
	// §4.5.
	GetResult(ctx context.Context, id string) (*ExperimentResult, error)

	// Close releases the session. Safe to call more than once.
	Close()
}

// Store opens scoped [Session] handles onto the authoritative relational
// store. Implementations must be safe for concurrent use from multiple
// goroutines calling GetSession simultaneously.
type Store interface {
	// GetSession returns a scoped session. Callers must Close it on every
	// exit path, typically via defer immediately after acquisition.
	GetSession(ctx context.Context) (Session, error)

	// Close releases all resources held by the store (e.g. a connection
	// pool). Called once at process shutdown.
	Close()
}
