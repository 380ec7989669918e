package director

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"go.opentelemetry.io/otel/metric"

	"github.com/kosmos-research/kosmos/internal/observe"
	"github.com/kosmos-research/kosmos/pkg/bus"
	"github.com/kosmos-research/kosmos/pkg/relstore"
	"github.com/kosmos-research/kosmos/pkg/sandbox"
	"github.com/kosmos-research/kosmos/pkg/worldmodel"
)

// Config configures a new [Director].
type Config struct {
	Generator  HypothesisGenerator
	Designer   ExperimentDesigner
	Executor   sandbox.Executor
	Analyst    DataAnalyst
	Refiner    HypothesisRefiner
	Policy     ConvergencePolicy

	// IterationBudget bounds the wall-clock time of a single RunCycle call;
	// exceeding it converges with reason "budget_exhausted" rather than
	// failing (§5).
	IterationBudget time.Duration
}

// Director owns the research loop (§4.7). A single Director instance drives
// exactly one research question from INIT to a terminal state.
//
// Director is not safe for concurrent RunCycle calls: §5 mandates a single
// logical thread of control for the loop itself. The world model and
// relational store it talks to must each be safe for concurrent use, since
// other Directors may share the same process-wide facade singleton.
//
// Every agent response is handed to the director through its message bus
// (§4.6): the five agent interfaces below are called directly to *obtain* a
// response (the director is the one asking), but each response is then
// published on the bus under the (from_agent, response_type) pair named in
// the bus package's own handlers, and the registered handler performs the
// relstore write plus the graph-mirror dual-write — the re-entry path §5
// describes as "each handler re-enters the director through the message
// bus, where handlers run serialized." dispatch blocks the calling RunCycle
// goroutine until its handler replies, so the loop's outward behavior stays
// exactly as synchronous and deterministic as a direct call would be.
type Director struct {
	cfg Config

	relStore relstore.Store
	graph    worldmodel.Storage
	bus      *bus.Bus
	busDone  context.CancelFunc

	plan *plan
}

// New constructs a Director, registers its bus handlers, starts the bus's
// single dispatch loop, and registers its ResearchQuestion entity and
// research_plan row. This is the one graph write §8's scenario 1 describes
// happening exactly once per Director.
func New(ctx context.Context, cfg Config, relStore relstore.Store, graph worldmodel.Storage, msgBus *bus.Bus, questionText string) (*Director, error) {
	session, err := relStore.GetSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("director: acquiring session: %w", err)
	}
	defer session.Close()

	researchQuestionID := generateQuestionID()
	rp, err := session.CreateResearchPlan(ctx, researchQuestionID, questionText)
	if err != nil {
		return nil, fmt.Errorf("director: creating research plan: %w", err)
	}

	// The bus's dispatch loop outlives any single RunCycle call's context
	// (§4.6 "Run must be called exactly once"), so it runs under its own
	// cancellation scope, stopped by Close rather than by the caller's ctx.
	busCtx, busCancel := context.WithCancel(context.Background())

	d := &Director{
		cfg:      cfg,
		relStore: relStore,
		graph:    graph,
		bus:      msgBus,
		busDone:  busCancel,
		plan: &plan{
			id:                 rp.ID,
			researchQuestionID: researchQuestionID,
			questionText:       questionText,
			state:              StateInit,
		},
	}

	d.registerBusHandlers()
	go d.bus.Run(busCtx)

	q := worldmodel.ResearchQuestion{ID: researchQuestionID, Text: questionText}
	entity := worldmodel.FromResearchQuestion(q, "director")
	if _, err := d.graph.AddEntity(ctx, entity); err != nil {
		slog.Warn("director: failed to write research question entity", "error", err)
	}

	return d, nil
}

// Close stops the director's bus dispatch loop. Safe to call more than once.
func (d *Director) Close() {
	d.busDone()
}

// State returns the director's current state, for observers and tests.
func (d *Director) State() State {
	var s State
	d.plan.withPlan(func(p *plan) { s = p.state })
	return s
}

// RunCycle advances the loop by exactly one research cycle: generate,
// design, execute, analyze, then either refine-and-loop or converge/fail
// (§4.7's per-cycle work). It returns the terminal state reached, which is
// [StateConverged] or [StateFailed] only when the loop has actually stopped;
// any other returned state means another RunCycle call will continue it.
func (d *Director) RunCycle(ctx context.Context) (State, error) {
	parent := ctx
	if d.cfg.IterationBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.IterationBudget)
		defer cancel()
	}
	// budgetExhausted reports whether this cycle's own budget deadline has
	// passed while the caller's context is still live.
	budgetExhausted := func() bool {
		return d.cfg.IterationBudget > 0 && ctx.Err() == context.DeadlineExceeded && parent.Err() == nil
	}

	iteration := 0
	d.plan.withPlan(func(p *plan) { iteration = p.iterationCount })

	hypotheses, err := d.generateHypotheses(ctx, iteration)
	if err != nil {
		if budgetExhausted() {
			return d.converge(ctx, "budget_exhausted")
		}
		return d.fail(ctx, err)
	}

	for i := range hypotheses {
		if err := d.designAndExecute(ctx, &hypotheses[i], iteration); err != nil {
			if budgetExhausted() {
				return d.converge(ctx, "budget_exhausted")
			}
			return d.fail(ctx, err)
		}
	}

	if ctx.Err() != nil {
		return d.converge(ctx, "budget_exhausted")
	}

	decision := d.cfg.Policy.Evaluate(hypotheses, iteration)
	d.plan.withPlan(func(p *plan) {
		p.iterationCount++
	})

	if decision.ShouldConverge {
		return d.converge(ctx, decision.Reason)
	}

	if err := d.refine(ctx, hypotheses, iteration); err != nil {
		return d.fail(ctx, err)
	}

	var state State
	d.plan.withPlan(func(p *plan) { state = p.state })
	return state, nil
}

func (d *Director) generateHypotheses(ctx context.Context, iteration int) ([]relstore.Hypothesis, error) {
	if err := d.transition(ctx, StateGeneratingHypotheses); err != nil {
		return nil, err
	}

	var questionText string
	d.plan.withPlan(func(p *plan) { questionText = p.questionText })

	proposed, err := d.cfg.Generator.Generate(ctx, questionText, iteration)
	if err != nil {
		return nil, fmt.Errorf("director: generating hypotheses: %w", err)
	}

	result, err := d.dispatch(ctx, AgentHypothesisGenerator, msgHypothesesGenerated,
		hypothesesGeneratedPayload{hypotheses: proposed, iteration: iteration})
	if err != nil {
		return nil, err
	}
	return result.([]relstore.Hypothesis), nil
}

func (d *Director) designAndExecute(ctx context.Context, h *relstore.Hypothesis, iteration int) error {
	if err := d.transition(ctx, StateDesigningExperiments); err != nil {
		return err
	}

	protocol, execPlan, err := d.cfg.Designer.Design(ctx, *h)
	if err != nil {
		return fmt.Errorf("director: designing experiment: %w", err)
	}
	protocol.HypothesisID = h.ID
	if protocol.Status == "" {
		protocol.Status = relstore.ProtocolDesigned
	}

	result, err := d.dispatch(ctx, AgentExperimentDesigner, msgExperimentDesigned,
		experimentDesignedPayload{protocol: protocol, hypothesisID: h.ID, iteration: iteration})
	if err != nil {
		return err
	}
	savedProtocol := result.(relstore.ExperimentProtocol)

	if err := d.transition(ctx, StateExecutingExperiments); err != nil {
		return err
	}

	sandboxStart := time.Now()
	sandboxResult, err := d.cfg.Executor.Run(ctx, execPlan)
	observe.DefaultMetrics().SandboxRunDuration.Record(ctx, time.Since(sandboxStart).Seconds())
	if err != nil {
		slog.Warn("director: sandbox run errored, recording timed_out result", "error", err)
		sandboxResult = sandbox.Result{Status: sandbox.StatusTimedOut}
	}

	// The raw sandbox result is published on the bus purely as an audit
	// trail (§4.6's named "execution_result" response type); nothing here
	// blocks on it, since the only durable write for this result happens
	// once below, after the analyst has folded its verdict in.
	d.publish(ctx, AgentSandboxExecutor, msgExecutionResult, executionResultPayload{
		hypothesisID: h.ID,
		protocolID:   savedProtocol.ID,
		status:       sandboxResult.Status,
	})

	draft := relstore.ExperimentResult{
		ProtocolID:         savedProtocol.ID,
		HypothesisID:       h.ID,
		Status:             relstore.ResultStatus(sandboxResult.Status),
		Metrics:            sandboxResult.Metrics,
		Figures:            sandboxResult.Figures,
		Stdout:             sandboxResult.Stdout,
		Stderr:             sandboxResult.Stderr,
		SupportsHypothesis: sandboxResult.SupportsHypothesis,
		PValue:             sandboxResult.PValue,
		EffectSize:         sandboxResult.EffectSize,
	}

	if err := d.transition(ctx, StateAnalyzingResults); err != nil {
		return err
	}

	// The relational Session has no update path for results (§4.5 only
	// names Add/Get), so the analyst's verdict must be folded into the
	// result record before the single AddResult call below — scenario 5's
	// "analyst emits {result_id: R, ...}" describes the final persisted
	// record, not a second write to an already-saved row.
	verdict, err := d.cfg.Analyst.Analyze(ctx, *h, draft)
	if err != nil {
		return fmt.Errorf("director: analyzing result: %w", err)
	}

	analysisResult, err := d.dispatch(ctx, AgentDataAnalyst, msgAnalysisComplete,
		analysisCompletePayload{result: verdict, hypothesis: *h, iteration: iteration})
	if err != nil {
		return err
	}
	savedResult := analysisResult.(relstore.ExperimentResult)

	if savedResult.SupportsHypothesis != nil {
		h.Status = relstore.HypothesisSupported
		if !*savedResult.SupportsHypothesis {
			h.Status = relstore.HypothesisRefuted
		}
	} else {
		h.Status = relstore.HypothesisTested
	}

	return nil
}

// refine fans a refinement attempt out per refuted hypothesis, since each is
// independent of the others: a distinct parent, a distinct new row, its own
// relstore session (sessions are not shared across goroutines, §4.5). This
// generalizes internal/hotctx/assembler.go's concurrent-fetch shape from
// "fetch N independent context sources" to "refine N independent
// hypotheses". A single refinement failing is logged and skipped, never
// failing the whole refine step — errgroup.Wait always observes nil here, a
// deliberate choice preserved from the original sequential loop's
// continue-on-error behavior.
func (d *Director) refine(ctx context.Context, hypotheses []relstore.Hypothesis, iteration int) error {
	if err := d.transition(ctx, StateRefiningHypotheses); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, h := range hypotheses {
		if h.Status != relstore.HypothesisRefuted {
			continue
		}
		h := h
		g.Go(func() error {
			d.refineOne(gctx, h, iteration)
			return nil
		})
	}

	// State stays REFINING_HYPOTHESES; the next RunCycle's generate step
	// makes the REFINING_HYPOTHESES -> GENERATING_HYPOTHESES transition
	// (§4.7's diagram), rather than this call pre-transitioning into a
	// state the transition table only allows arriving at from INIT or
	// REFINING_HYPOTHESES — not from itself.
	return g.Wait()
}

func (d *Director) refineOne(ctx context.Context, h relstore.Hypothesis, iteration int) {
	refined, err := d.cfg.Refiner.Refine(ctx, h)
	if err != nil {
		slog.Warn("director: refinement failed, skipping", "hypothesis_id", h.ID, "error", err)
		return
	}
	refined.ResearchPlanID = d.plan.id
	refined.ParentHypothesisID = h.ID
	refined.Generation = h.Generation + 1
	refined.RefinementCount = h.RefinementCount + 1
	if refined.Status == "" {
		refined.Status = relstore.HypothesisProposed
	}

	if _, err := d.dispatch(ctx, AgentHypothesisRefiner, msgRefinementComplete,
		refinementCompletePayload{refined: refined, parent: h, iteration: iteration}); err != nil {
		slog.Warn("director: persisting refined hypothesis failed", "parent_hypothesis_id", h.ID, "error", err)
	}
}

func (d *Director) transition(ctx context.Context, to State) error {
	var from State
	var err error
	d.plan.withPlan(func(p *plan) {
		from = p.state
		err = p.transitionLocked(to)
	})
	if err == nil {
		observe.DefaultMetrics().RecordTransition(ctx, string(from), string(to))
	}
	return err
}

func (d *Director) converge(ctx context.Context, reason string) (State, error) {
	if err := d.transition(ctx, StateConverged); err != nil {
		return StateFailed, err
	}
	d.plan.withPlan(func(p *plan) {
		p.hasConverged = true
		p.convergenceReason = reason
	})
	d.persistConvergenceToGraph(context.Background(), reason)
	observe.DefaultMetrics().DirectorCycles.Add(ctx, 1, metric.WithAttributes(observe.Attr("outcome", "converged")))
	return StateConverged, nil
}

func (d *Director) fail(ctx context.Context, cause error) (State, error) {
	// Fail unconditionally overrides the transition table: an exception
	// inside a handler fails the cycle from whatever state it was in (§4.7
	// "an exception inside a handler transitions the loop to FAILED"),
	// rather than being itself subject to rejection as an invalid move.
	d.plan.withPlan(func(p *plan) { p.state = StateFailed })
	slog.Error("director: research cycle failed", "error", cause)
	observe.DefaultMetrics().DirectorCycles.Add(ctx, 1, metric.WithAttributes(observe.Attr("outcome", "failed")))
	return StateFailed, cause
}

// generateQuestionID produces a fresh opaque id for a ResearchQuestion
// entity, the same crypto/rand+hex shape every other id generator in this
// module uses (relstore.generateID, worldmodel.generateGraphID,
// pgraph.generateID, facade.syntheticID).
func generateQuestionID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return "rq-" + hex.EncodeToString(buf)
}
