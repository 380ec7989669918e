package director

import (
	"context"
	"log/slog"

	"github.com/kosmos-research/kosmos/pkg/relstore"
	"github.com/kosmos-research/kosmos/pkg/worldmodel"
)

// The following persistXToGraph helpers implement §4.7's dual-write
// discipline: convert the just-persisted relational row to a graph entity
// via the named converter (§4.1), write it, write the edges named in §4.7's
// table with provenance, and log-and-continue on any failure rather than
// letting a graph mirror failure abort the cycle (§7 "graph mirror failures
// are recovered locally").

// persistHypothesisToGraph handles the "hypothesis generated" row (§4.7's
// table: SPAWNED_BY, Hypothesis -> ResearchQuestion).
func (d *Director) persistHypothesisToGraph(ctx context.Context, h relstore.Hypothesis, iteration int) {
	entity := worldmodel.FromHypothesis(h, AgentHypothesisGenerator)
	if _, err := d.graph.AddEntity(ctx, entity); err != nil {
		slog.Warn("director: graph mirror failed for hypothesis", "hypothesis_id", h.ID, "error", err)
		return
	}

	rel := worldmodel.WithProvenance(h.ID, d.plan.researchQuestionID, worldmodel.RelSpawnedBy,
		AgentHypothesisGenerator, h.ConfidenceScore, map[string]any{
			"generation": h.Generation,
			"iteration":  iteration,
		})
	if _, err := d.graph.AddRelationship(ctx, rel); err != nil {
		slog.Warn("director: graph mirror failed for SPAWNED_BY edge", "hypothesis_id", h.ID, "error", err)
	}
}

// persistRefinementToGraph handles the "hypothesis refined" row (§4.7's
// table: REFINED_FROM, new Hypothesis -> parent Hypothesis; §8's scenario
// 4).
func (d *Director) persistRefinementToGraph(ctx context.Context, refined, parent relstore.Hypothesis, iteration int) {
	entity := worldmodel.FromHypothesis(refined, AgentHypothesisRefiner)
	if _, err := d.graph.AddEntity(ctx, entity); err != nil {
		slog.Warn("director: graph mirror failed for refined hypothesis", "hypothesis_id", refined.ID, "error", err)
		return
	}

	rel := worldmodel.WithProvenance(refined.ID, parent.ID, worldmodel.RelRefinedFrom,
		AgentHypothesisRefiner, refined.ConfidenceScore, map[string]any{
			"refinement_count": refined.RefinementCount,
		})
	if _, err := d.graph.AddRelationship(ctx, rel); err != nil {
		slog.Warn("director: graph mirror failed for REFINED_FROM edge", "hypothesis_id", refined.ID, "error", err)
	}
}

// persistProtocolToGraph handles the "protocol designed" row (§4.7's table:
// TESTS, Protocol -> Hypothesis).
func (d *Director) persistProtocolToGraph(ctx context.Context, p relstore.ExperimentProtocol, hypothesisID string, iteration int) {
	entity := worldmodel.FromProtocol(p, AgentExperimentDesigner)
	if _, err := d.graph.AddEntity(ctx, entity); err != nil {
		slog.Warn("director: graph mirror failed for protocol", "protocol_id", p.ID, "error", err)
		return
	}

	rel := worldmodel.WithProvenance(p.ID, hypothesisID, worldmodel.RelTests,
		AgentExperimentDesigner, 1.0, map[string]any{
			"iteration": iteration,
		})
	if _, err := d.graph.AddRelationship(ctx, rel); err != nil {
		slog.Warn("director: graph mirror failed for TESTS edge", "protocol_id", p.ID, "error", err)
	}
}

// persistResultToGraph handles the "result produced" row (§4.7's table:
// PRODUCED_BY, Result -> Protocol).
func (d *Director) persistResultToGraph(ctx context.Context, r relstore.ExperimentResult, iteration int) {
	entity := worldmodel.FromResult(r, AgentSandboxExecutor)
	if _, err := d.graph.AddEntity(ctx, entity); err != nil {
		slog.Warn("director: graph mirror failed for result", "result_id", r.ID, "error", err)
		return
	}

	rel := worldmodel.WithProvenance(r.ID, r.ProtocolID, worldmodel.RelProducedBy,
		AgentSandboxExecutor, 1.0, map[string]any{
			"iteration": iteration,
		})
	if _, err := d.graph.AddRelationship(ctx, rel); err != nil {
		slog.Warn("director: graph mirror failed for PRODUCED_BY edge", "result_id", r.ID, "error", err)
	}
}

// persistVerdictToGraph handles the analyst's verdict (§4.7's table:
// SUPPORTS or REFUTES, Result -> Hypothesis; §8's scenario 5). Per §9's
// Open Question 1, no edge is written at all when SupportsHypothesis is
// nil (inconclusive).
func (d *Director) persistVerdictToGraph(ctx context.Context, r relstore.ExperimentResult, h relstore.Hypothesis, iteration int) {
	if r.SupportsHypothesis == nil {
		return
	}

	relType := worldmodel.RelSupports
	if !*r.SupportsHypothesis {
		relType = worldmodel.RelRefutes
	}

	metadata := map[string]any{"iteration": iteration}
	if r.PValue != nil {
		metadata["p_value"] = *r.PValue
	}
	if r.EffectSize != nil {
		metadata["effect_size"] = *r.EffectSize
	}

	// The edge carries the analyst's own emitted confidence when there is one
	// (§8's scenario 5: "confidence: 0.95"). Without it, the hypothesis's
	// stored ConfidenceScore is used if non-zero, else 1.0.
	confidence := 1.0
	if r.VerdictConfidence != nil {
		confidence = *r.VerdictConfidence
	} else if h.ConfidenceScore != 0 {
		confidence = h.ConfidenceScore
	}

	rel := worldmodel.WithProvenance(r.ID, h.ID, relType, AgentDataAnalyst, confidence, metadata)
	if _, err := d.graph.AddRelationship(ctx, rel); err != nil {
		slog.Warn("director: graph mirror failed for SUPPORTS/REFUTES edge", "result_id", r.ID, "error", err)
	}
}

// persistConvergenceToGraph handles the "convergence" row of §4.7's table:
// an annotation on the ResearchQuestion entity, not a new edge.
func (d *Director) persistConvergenceToGraph(ctx context.Context, reason string) {
	ann := worldmodel.Annotation{Text: reason, CreatedBy: "director"}
	if err := d.graph.AddAnnotation(ctx, d.plan.researchQuestionID, ann); err != nil {
		slog.Warn("director: graph mirror failed for convergence annotation", "error", err)
	}
}
