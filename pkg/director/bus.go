package director

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/kosmos-research/kosmos/pkg/bus"
	"github.com/kosmos-research/kosmos/pkg/relstore"
	"github.com/kosmos-research/kosmos/pkg/sandbox"
)

// Bus message types, named directly after the five response types the bus
// package's own doc comment enumerates (§4.6).
const (
	msgHypothesesGenerated = "hypotheses_generated"
	msgExperimentDesigned  = "experiment_designed"
	msgExecutionResult     = "execution_result"
	msgAnalysisComplete    = "analysis_complete"
	msgRefinementComplete  = "refinement_complete"
)

// busResult carries a handler's outcome back to the dispatching goroutine.
type busResult struct {
	value any
	err   error
}

type hypothesesGeneratedPayload struct {
	hypotheses []relstore.Hypothesis
	iteration  int
}

type experimentDesignedPayload struct {
	protocol     relstore.ExperimentProtocol
	hypothesisID string
	iteration    int
}

type executionResultPayload struct {
	hypothesisID string
	protocolID   string
	status       sandbox.Status
}

type analysisCompletePayload struct {
	result     relstore.ExperimentResult
	hypothesis relstore.Hypothesis
	iteration  int
}

type refinementCompletePayload struct {
	refined   relstore.Hypothesis
	parent    relstore.Hypothesis
	iteration int
}

// registerBusHandlers wires one handler per (from_agent, response_type) pair
// (§4.6). Each handler performs exactly the relstore write and graph mirror
// dual-write that §4.7's per-cycle table names for that agent's response.
func (d *Director) registerBusHandlers() {
	d.bus.RegisterHandler(AgentHypothesisGenerator, msgHypothesesGenerated, d.handleHypothesesGenerated)
	d.bus.RegisterHandler(AgentExperimentDesigner, msgExperimentDesigned, d.handleExperimentDesigned)
	d.bus.RegisterHandler(AgentSandboxExecutor, msgExecutionResult, d.handleExecutionResult)
	d.bus.RegisterHandler(AgentDataAnalyst, msgAnalysisComplete, d.handleAnalysisComplete)
	d.bus.RegisterHandler(AgentHypothesisRefiner, msgRefinementComplete, d.handleRefinementComplete)
}

// dispatch publishes a message carrying payload and blocks until the
// registered handler replies or ctx is cancelled. This is the re-entry path
// §5 describes: the agent call that produced payload already returned
// synchronously, so the caller can afford to wait here without the loop
// losing its single-threaded, deterministic shape.
func (d *Director) dispatch(ctx context.Context, sender, msgType string, payload any) (any, error) {
	done := make(chan busResult, 1)
	msg := bus.Message{
		Type:          msgType,
		Sender:        sender,
		Recipient:     "Director",
		CorrelationID: generateCorrelationID(),
		Content: map[string]any{
			"payload": payload,
			"done":    done,
		},
	}

	if err := d.bus.SendWithRetry(ctx, msg); err != nil {
		return nil, fmt.Errorf("director: dispatching %s: %w", msgType, err)
	}

	select {
	case res := <-done:
		return res.value, res.err
	case <-ctx.Done():
		d.bus.Cancel(msg.CorrelationID)
		return nil, ctx.Err()
	}
}

// publish sends a fire-and-forget message: the caller does not wait for the
// handler, since the payload is audit information rather than something the
// loop's next step depends on (msgExecutionResult's only current use).
func (d *Director) publish(ctx context.Context, sender, msgType string, payload any) {
	msg := bus.Message{
		Type:      msgType,
		Sender:    sender,
		Recipient: "Director",
		Content:   map[string]any{"payload": payload},
	}
	if err := d.bus.Send(ctx, msg); err != nil {
		slog.Warn("director: publishing message failed", "type", msgType, "error", err)
	}
}

// generateCorrelationID produces a fresh opaque id for one dispatch/reply
// round-trip, the same crypto/rand+hex shape as generateQuestionID.
func generateCorrelationID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return "corr-" + hex.EncodeToString(buf)
}

func reply(msg bus.Message, value any, err error) {
	done, ok := msg.Content["done"].(chan busResult)
	if !ok {
		return
	}
	done <- busResult{value: value, err: err}
}

func (d *Director) handleHypothesesGenerated(ctx context.Context, msg bus.Message) error {
	payload := msg.Content["payload"].(hypothesesGeneratedPayload)

	session, err := d.relStore.GetSession(ctx)
	if err != nil {
		reply(msg, nil, fmt.Errorf("director: acquiring session: %w", err))
		return nil
	}
	defer session.Close()

	saved := make([]relstore.Hypothesis, 0, len(payload.hypotheses))
	for _, h := range payload.hypotheses {
		h.ResearchPlanID = d.plan.id
		if h.Status == "" {
			h.Status = relstore.HypothesisProposed
		}
		if h.Generation == 0 {
			h.Generation = 1
		}
		row, err := session.AddHypothesis(ctx, h)
		if err != nil {
			reply(msg, nil, fmt.Errorf("director: saving hypothesis: %w", err))
			return nil
		}
		d.persistHypothesisToGraph(ctx, row, payload.iteration)
		d.plan.withPlan(func(p *plan) { p.hypothesisIDs = append(p.hypothesisIDs, row.ID) })
		saved = append(saved, row)
	}

	reply(msg, saved, nil)
	return nil
}

func (d *Director) handleExperimentDesigned(ctx context.Context, msg bus.Message) error {
	payload := msg.Content["payload"].(experimentDesignedPayload)

	session, err := d.relStore.GetSession(ctx)
	if err != nil {
		reply(msg, nil, fmt.Errorf("director: acquiring session: %w", err))
		return nil
	}
	defer session.Close()

	savedProtocol, err := session.AddProtocol(ctx, payload.protocol)
	if err != nil {
		reply(msg, nil, fmt.Errorf("director: saving protocol: %w", err))
		return nil
	}
	d.persistProtocolToGraph(ctx, savedProtocol, payload.hypothesisID, payload.iteration)
	d.plan.withPlan(func(p *plan) { p.protocolIDs = append(p.protocolIDs, savedProtocol.ID) })

	reply(msg, savedProtocol, nil)
	return nil
}

// handleExecutionResult only logs: the durable write for a sandbox run
// happens once, after analysis folds the verdict in (handleAnalysisComplete
// below), matching §4.5's "Session has no update path for results."
func (d *Director) handleExecutionResult(ctx context.Context, msg bus.Message) error {
	payload := msg.Content["payload"].(executionResultPayload)
	slog.Info("director: sandbox execution finished",
		"hypothesis_id", payload.hypothesisID, "protocol_id", payload.protocolID, "status", payload.status)
	return nil
}

func (d *Director) handleAnalysisComplete(ctx context.Context, msg bus.Message) error {
	payload := msg.Content["payload"].(analysisCompletePayload)

	session, err := d.relStore.GetSession(ctx)
	if err != nil {
		reply(msg, nil, fmt.Errorf("director: acquiring session: %w", err))
		return nil
	}
	defer session.Close()

	savedResult, err := session.AddResult(ctx, payload.result)
	if err != nil {
		reply(msg, nil, fmt.Errorf("director: saving result: %w", err))
		return nil
	}
	d.persistResultToGraph(ctx, savedResult, payload.iteration)
	d.plan.withPlan(func(p *plan) { p.resultIDs = append(p.resultIDs, savedResult.ID) })
	d.persistVerdictToGraph(ctx, savedResult, payload.hypothesis, payload.iteration)

	if savedResult.SupportsHypothesis != nil {
		h := payload.hypothesis
		h.Status = relstore.HypothesisSupported
		if !*savedResult.SupportsHypothesis {
			h.Status = relstore.HypothesisRefuted
		}
		h.UpdatedAt = time.Now()
		if updErr := session.UpdateHypothesis(ctx, h); updErr != nil {
			slog.Warn("director: failed to update hypothesis status", "error", updErr)
		}
	}

	reply(msg, savedResult, nil)
	return nil
}

func (d *Director) handleRefinementComplete(ctx context.Context, msg bus.Message) error {
	payload := msg.Content["payload"].(refinementCompletePayload)

	session, err := d.relStore.GetSession(ctx)
	if err != nil {
		reply(msg, nil, fmt.Errorf("director: acquiring session: %w", err))
		return nil
	}
	defer session.Close()

	saved, err := session.AddHypothesis(ctx, payload.refined)
	if err != nil {
		reply(msg, nil, fmt.Errorf("director: saving refined hypothesis: %w", err))
		return nil
	}
	d.persistRefinementToGraph(ctx, saved, payload.parent, payload.iteration)
	d.plan.withPlan(func(p *plan) { p.hypothesisIDs = append(p.hypothesisIDs, saved.ID) })

	reply(msg, saved, nil)
	return nil
}
