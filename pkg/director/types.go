// Package director drives the research loop (§4.7): a single-threaded state
// machine that cycles a research question through hypothesis generation,
// experiment design, sandboxed execution, analysis, and refinement, dual-
// writing every relational change into the world model as a best-effort
// provenance graph.
//
// Grounded on internal/engine/cascade.Engine's single-owner,
// mutex-guarded-state-plus-goroutine shape (generalized from one NPC
// conversation turn to one research cycle) and on spec.md §4.7/§5 directly,
// since no single teacher file implements a finite-state research loop.
package director

import (
	"fmt"
	"sync"
)

// State is one node of the research director's state machine (§4.7).
type State string

const (
	StateInit                  State = "INIT"
	StateGeneratingHypotheses  State = "GENERATING_HYPOTHESES"
	StateDesigningExperiments  State = "DESIGNING_EXPERIMENTS"
	StateExecutingExperiments  State = "EXECUTING_EXPERIMENTS"
	StateAnalyzingResults      State = "ANALYZING_RESULTS"
	StateRefiningHypotheses    State = "REFINING_HYPOTHESES"
	StateConverged             State = "CONVERGED"
	StateFailed                State = "FAILED"
)

// transitions enumerates every permitted predecessor-state set per target
// state (§4.7's diagram). A transition not listed here is invalid.
var transitions = map[State]map[State]struct{}{
	StateGeneratingHypotheses: {StateInit: {}, StateRefiningHypotheses: {}},
	StateDesigningExperiments: {StateGeneratingHypotheses: {}},
	StateExecutingExperiments: {StateDesigningExperiments: {}},
	StateAnalyzingResults:     {StateExecutingExperiments: {}},
	StateRefiningHypotheses:   {StateAnalyzingResults: {}},
	StateConverged:            {StateAnalyzingResults: {}, StateGeneratingHypotheses: {}, StateDesigningExperiments: {}, StateExecutingExperiments: {}, StateRefiningHypotheses: {}},
	StateFailed:               {StateInit: {}, StateGeneratingHypotheses: {}, StateDesigningExperiments: {}, StateExecutingExperiments: {}, StateAnalyzingResults: {}, StateRefiningHypotheses: {}},
}

// ErrInvalidTransition is raised when a requested state change is not in the
// permitted predecessor set (§4.7, §7 "invalid-transition").
type ErrInvalidTransition struct {
	From, To State
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("director: invalid transition %s -> %s", e.From, e.To)
}

// canTransition reports whether moving from `from` to `to` is permitted.
func canTransition(from, to State) bool {
	preds, ok := transitions[to]
	if !ok {
		return false
	}
	_, ok = preds[from]
	return ok
}

// plan is the director's shared, mutable working record (§4.7's
// research_plan, §8's concurrency property). Every field is read or written
// only while lock is held; withPlan below pairs every acquisition with a
// guaranteed release, including on panic.
type plan struct {
	mu sync.Mutex

	id                 string
	researchQuestionID string
	questionText       string

	state State

	hypothesisIDs []string
	protocolIDs   []string
	resultIDs     []string

	iterationCount int
	hasConverged   bool
	convergenceReason string
}

// withPlan runs fn with the plan's lock held, guaranteeing release on every
// exit path (§4.7 "entry and exit are paired on all paths", §5).
func (p *plan) withPlan(fn func(*plan)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

// transitionLocked moves the plan to `to`, returning *ErrInvalidTransition if
// the move is not permitted from the current state. Must be called with the
// plan lock held (i.e. from inside withPlan).
func (p *plan) transitionLocked(to State) error {
	if !canTransition(p.state, to) {
		return &ErrInvalidTransition{From: p.state, To: to}
	}
	p.state = to
	return nil
}
