package worldmodel

import (
	"time"

	"github.com/kosmos-research/kosmos/pkg/relstore"
)

// ResearchQuestion is the lightweight record the director converts into the
// singleton ResearchQuestion entity at construction time (§3.3). It has no
// relational table of its own — the question text is mirrored into
// research_plan.question_text, but the entity is the graph's record of it.
type ResearchQuestion struct {
	ID   string
	Text string
}

// FromHypothesis builds a graph [Entity] from the authoritative
// [relstore.Hypothesis] row, preserving its primary key as the entity id and
// stamping createdBy with the invoking agent.
func FromHypothesis(h relstore.Hypothesis, createdBy string) Entity {
	now := time.Now()
	return Entity{
		ID:   h.ID,
		Type: EntityHypothesis,
		Properties: map[string]any{
			"statement":        h.Statement,
			"rationale":        h.Rationale,
			"status":           string(h.Status),
			"confidence_score": h.ConfidenceScore,
			"generation":       h.Generation,
			"refinement_count": h.RefinementCount,
		},
		Confidence:  1.0,
		CreatedAt:   firstNonZero(h.CreatedAt, now),
		UpdatedAt:   firstNonZero(h.UpdatedAt, now),
		CreatedBy:   createdBy,
		Annotations: []Annotation{},
	}
}

// FromProtocol builds a graph [Entity] from the authoritative
// [relstore.ExperimentProtocol] row.
func FromProtocol(p relstore.ExperimentProtocol, createdBy string) Entity {
	now := time.Now()
	return Entity{
		ID:   p.ID,
		Type: EntityExperimentProtocol,
		Properties: map[string]any{
			"title":  p.Title,
			"status": string(p.Status),
			"steps":  p.Steps,
		},
		Confidence:  1.0,
		CreatedAt:   firstNonZero(p.CreatedAt, now),
		UpdatedAt:   firstNonZero(p.UpdatedAt, now),
		CreatedBy:   createdBy,
		Annotations: []Annotation{},
	}
}

// FromResult builds a graph [Entity] from the authoritative
// [relstore.ExperimentResult] row.
func FromResult(r relstore.ExperimentResult, createdBy string) Entity {
	now := time.Now()
	props := map[string]any{
		"status": string(r.Status),
	}
	if r.SupportsHypothesis != nil {
		props["supports_hypothesis"] = *r.SupportsHypothesis
	}
	if r.PValue != nil {
		props["p_value"] = *r.PValue
	}
	if r.EffectSize != nil {
		props["effect_size"] = *r.EffectSize
	}
	return Entity{
		ID:          r.ID,
		Type:        EntityExperimentResult,
		Properties:  props,
		Confidence:  1.0,
		CreatedAt:   firstNonZero(r.CreatedAt, now),
		UpdatedAt:   firstNonZero(r.UpdatedAt, now),
		CreatedBy:   createdBy,
		Annotations: []Annotation{},
	}
}

// FromResearchQuestion builds the singleton ResearchQuestion [Entity]
// created exactly once per director instance (§3.3).
func FromResearchQuestion(q ResearchQuestion, createdBy string) Entity {
	now := time.Now()
	return Entity{
		ID:   q.ID,
		Type: EntityResearchQuestion,
		Properties: map[string]any{
			"text": q.Text,
		},
		Confidence:  1.0,
		CreatedAt:   now,
		UpdatedAt:   now,
		CreatedBy:   createdBy,
		Annotations: []Annotation{},
	}
}

// WithProvenance builds a provenance-bearing [Relationship]: it stamps
// timestamp = now() and folds metadata into Properties alongside agent.
// This is the sole constructor the director uses for the SPAWNED_BY, TESTS,
// PRODUCED_BY, SUPPORTS, REFUTES, and REFINED_FROM edges it creates.
func WithProvenance(sourceID, targetID string, relType RelationshipType, agent string, confidence float64, metadata map[string]any) Relationship {
	props := make(map[string]any, len(metadata)+2)
	for k, v := range metadata {
		props[k] = v
	}
	props["agent"] = agent
	props["timestamp"] = time.Now().Format(time.RFC3339)

	return Relationship{
		SourceID:   sourceID,
		TargetID:   targetID,
		Type:       relType,
		Properties: props,
		Confidence: confidence,
		CreatedAt:  time.Now(),
		CreatedBy:  agent,
	}
}

// firstNonZero returns t if it is non-zero, else fallback. Relational rows
// freshly built in-process (not yet round-tripped through a store) carry a
// zero CreatedAt/UpdatedAt; the converter should not propagate that into the
// graph.
func firstNonZero(t, fallback time.Time) time.Time {
	if t.IsZero() {
		return fallback
	}
	return t
}
