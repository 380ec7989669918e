// Package relstore is the authoritative relational store for a research
// session: research plans, hypotheses, experiment protocols, and experiment
// results. The world model's graph (pkg/worldmodel) is a derived,
// best-effort projection of these rows — never the other way around.
package relstore

import "time"

// HypothesisStatus is the lifecycle state of a [Hypothesis] row.
type HypothesisStatus string

const (
	HypothesisProposed HypothesisStatus = "proposed"
	HypothesisTested   HypothesisStatus = "tested"
	HypothesisSupported HypothesisStatus = "supported"
	HypothesisRefuted  HypothesisStatus = "refuted"
)

// ProtocolStatus is the lifecycle state of an [ExperimentProtocol] row.
type ProtocolStatus string

const (
	ProtocolDesigned ProtocolStatus = "designed"
	ProtocolRunning  ProtocolStatus = "running"
	ProtocolComplete ProtocolStatus = "complete"
)

// ResultStatus mirrors the sandbox executor's result status (§4.8).
type ResultStatus string

const (
	ResultSuccess  ResultStatus = "success"
	ResultFailed   ResultStatus = "failed"
	ResultTimedOut ResultStatus = "timed_out"
)

// ResearchPlan is the relational record of a research session: the question
// it answers and when the session began. The director's in-memory, lock
// guarded working copy (pkg/director) mirrors this row's id plus the running
// ids/counters accumulated during the loop.
type ResearchPlan struct {
	ID                 string
	ResearchQuestionID string
	QuestionText       string
	IterationCount     int
	HasConverged       bool
	ConvergenceReason  string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Hypothesis is a row in the hypotheses table.
type Hypothesis struct {
	ID                  string
	ResearchPlanID      string
	Statement           string
	Rationale           string
	Status              HypothesisStatus
	ConfidenceScore     float64
	Generation          int
	ParentHypothesisID  string // empty when this is a generation-1 hypothesis
	RefinementCount     int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ExperimentProtocol is a row in the experiment_protocols table.
type ExperimentProtocol struct {
	ID           string
	HypothesisID string
	Title        string
	Steps        []string
	Metadata     map[string]any
	Status       ProtocolStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ExperimentResult is a row in the experiment_results table.
type ExperimentResult struct {
	ID                  string
	ProtocolID          string
	HypothesisID        string // optional, per §4.5
	Status              ResultStatus
	Metrics             map[string]any
	Figures             []string
	Stdout              string
	Stderr              string
	SupportsHypothesis  *bool // tri-state: nil = inconclusive
	VerdictConfidence   *float64 // analyst's own confidence in the verdict, distinct from the hypothesis's ConfidenceScore
	PValue              *float64
	EffectSize          *float64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
