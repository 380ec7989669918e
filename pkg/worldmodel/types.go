// Package worldmodel defines the typed entity/relationship model and the
// abstract storage contract the research director uses to persist
// provenance-bearing knowledge as it drives a research cycle.
//
// The dynamic, domain-varying part of an [Entity] or [Relationship] lives in
// its open Properties map; the schema boundary is drawn at the entity/edge
// *type* level (a closed set, extensible with a warning) and at a handful of
// well-known provenance fields folded into Properties by [WithProvenance].
//
// Implementations of [Storage] (see store.go) must be safe for concurrent use.
package worldmodel

import (
	"time"
)

// EntityType classifies a node in the knowledge graph. Well-known values are
// a closed set; unrecognised values are accepted but logged with a warning
// (see [EntityType.IsWellKnown]) so extension kinds remain possible without
// breaking the schema contract.
type EntityType string

const (
	EntityPaper               EntityType = "Paper"
	EntityConcept             EntityType = "Concept"
	EntityAuthor              EntityType = "Author"
	EntityMethod              EntityType = "Method"
	EntityExperiment          EntityType = "Experiment"
	EntityHypothesis          EntityType = "Hypothesis"
	EntityFinding             EntityType = "Finding"
	EntityDataset             EntityType = "Dataset"
	EntityResearchQuestion    EntityType = "ResearchQuestion"
	EntityExperimentProtocol  EntityType = "ExperimentProtocol"
	EntityExperimentResult    EntityType = "ExperimentResult"
)

// wellKnownEntityTypes is the closed set of [EntityType] values the schema
// recognises without warning.
var wellKnownEntityTypes = map[EntityType]struct{}{
	EntityPaper:              {},
	EntityConcept:            {},
	EntityAuthor:             {},
	EntityMethod:             {},
	EntityExperiment:         {},
	EntityHypothesis:         {},
	EntityFinding:            {},
	EntityDataset:            {},
	EntityResearchQuestion:   {},
	EntityExperimentProtocol: {},
	EntityExperimentResult:   {},
}

// IsWellKnown reports whether t is one of the closed set of recognised
// entity kinds. Extension kinds (custom values) are permitted by the schema
// but callers are expected to log a warning when IsWellKnown returns false.
func (t EntityType) IsWellKnown() bool {
	_, ok := wellKnownEntityTypes[t]
	return ok
}

// RelationshipType classifies a directed edge in the knowledge graph.
type RelationshipType string

const (
	RelCites       RelationshipType = "CITES"
	RelAuthorOf    RelationshipType = "AUTHOR_OF"
	RelMentions    RelationshipType = "MENTIONS"
	RelRelatesTo   RelationshipType = "RELATES_TO"
	RelSupports    RelationshipType = "SUPPORTS"
	RelRefutes     RelationshipType = "REFUTES"
	RelUsesMethod  RelationshipType = "USES_METHOD"
	RelProducedBy  RelationshipType = "PRODUCED_BY"
	RelDerivedFrom RelationshipType = "DERIVED_FROM"
	RelSpawnedBy   RelationshipType = "SPAWNED_BY"
	RelTests       RelationshipType = "TESTS"
	RelRefinedFrom RelationshipType = "REFINED_FROM"
)

var wellKnownRelTypes = map[RelationshipType]struct{}{
	RelCites:       {},
	RelAuthorOf:    {},
	RelMentions:    {},
	RelRelatesTo:   {},
	RelSupports:    {},
	RelRefutes:     {},
	RelUsesMethod:  {},
	RelProducedBy:  {},
	RelDerivedFrom: {},
	RelSpawnedBy:   {},
	RelTests:       {},
	RelRefinedFrom: {},
}

// IsWellKnown reports whether t is one of the closed set of recognised
// relationship kinds.
func (t RelationshipType) IsWellKnown() bool {
	_, ok := wellKnownRelTypes[t]
	return ok
}

// Annotation is a free-text note appended to an [Entity], e.g. a convergence
// reason recorded on the research question.
type Annotation struct {
	Text      string    `json:"text"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Entity is the unit of persistent knowledge in the world model: a typed
// node with an open properties bag and a provenance/curation envelope.
type Entity struct {
	// ID is the opaque stable identifier. Auto-generated on first write when
	// empty.
	ID string `json:"id"`

	// Type classifies the entity. See [EntityType.IsWellKnown].
	Type EntityType `json:"type"`

	// Properties is an open mapping from string keys to scalar, list, or
	// nested-mapping values.
	Properties map[string]any `json:"properties"`

	// Confidence is a real number in [0.0, 1.0]. The From* converters set
	// 1.0; AddEntity stores the value as given, so an entity built without
	// one is stored with confidence 0.
	Confidence float64 `json:"confidence"`

	// Project is an optional namespace tag; queries default-filter by it.
	Project string `json:"project,omitempty"`

	// CreatedAt is set on first insert.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt advances on every write; monotonically non-decreasing per id.
	UpdatedAt time.Time `json:"updated_at"`

	// CreatedBy is a free-form agent identifier, e.g. "HypothesisGeneratorAgent".
	CreatedBy string `json:"created_by"`

	// Verified is set true by explicit curation; false by default.
	Verified bool `json:"verified"`

	// Annotations is an ordered list of notes appended over the entity's
	// lifetime.
	Annotations []Annotation `json:"annotations"`
}

// Relationship is a directed, typed edge between two entities carrying an
// open properties bag and provenance fields folded in by [WithProvenance].
type Relationship struct {
	ID         string            `json:"id"`
	SourceID   string            `json:"source_id"`
	TargetID   string            `json:"target_id"`
	Type       RelationshipType  `json:"type"`
	Properties map[string]any    `json:"properties"`
	Confidence float64           `json:"confidence"`
	CreatedAt  time.Time         `json:"created_at"`
	CreatedBy  string            `json:"created_by"`
}

// EntityFilter narrows a [Storage.Query] call.
// All non-zero fields are applied as AND conditions.
type EntityFilter struct {
	// Project restricts results to a single project namespace. Empty matches
	// all projects.
	Project string

	// Type restricts results to entities of this type. Empty matches all
	// types.
	Type EntityType

	// Limit caps the number of results. Zero means the implementation's own
	// default applies.
	Limit int
}

// Statistics summarises the world model's current contents.
type Statistics struct {
	EntityCountByType map[EntityType]int `json:"entity_count_by_type"`
	EntityCount       int                `json:"entity_count"`
	RelationshipCount int                `json:"relationship_count"`
	Projects          []string           `json:"projects"`
}

// ImportMode selects the semantics of [Storage.ImportGraph].
type ImportMode string

const (
	// ImportMerge upserts: duplicate ids have their properties overwritten,
	// updated_at advanced, and annotations concatenated.
	ImportMerge ImportMode = "merge"

	// ImportReplace atomically resets the target project before loading; on
	// any failure after the reset the project is left empty rather than
	// half-populated.
	ImportReplace ImportMode = "replace"
)
