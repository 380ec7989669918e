package worldmodel

import (
	"fmt"
	"log/slog"
)

// ValidateEntity checks e for the invariants in §3.1: non-empty type,
// confidence in [0,1], and well-formed annotations. Unknown (extension)
// types are accepted but logged as a warning rather than rejected.
func ValidateEntity(e Entity) error {
	if e.Type == "" {
		return fmt.Errorf("%w: entity type must not be empty", ErrValidation)
	}
	if e.Confidence < 0.0 || e.Confidence > 1.0 {
		return fmt.Errorf("%w: confidence %.4f is outside [0.0, 1.0]", ErrValidation, e.Confidence)
	}
	if !e.Type.IsWellKnown() {
		slog.Warn("worldmodel: entity uses an extension type", "type", string(e.Type))
	}
	for i, ann := range e.Annotations {
		if err := validateAnnotation(ann); err != nil {
			return fmt.Errorf("%w: annotations[%d]: %w", ErrValidation, i, err)
		}
	}
	return nil
}

// validateAnnotation checks that ann has non-empty text and creator.
func validateAnnotation(ann Annotation) error {
	if ann.Text == "" {
		return fmt.Errorf("annotation text must not be empty")
	}
	if ann.CreatedBy == "" {
		return fmt.Errorf("annotation created_by must not be empty")
	}
	return nil
}

// ValidateRelationship checks r for the invariants in §3.2: non-empty
// endpoints and type, and confidence in [0,1]. Endpoint existence is an
// enforcement concern of the storage backend, not of construction-time
// validation.
func ValidateRelationship(r Relationship) error {
	if r.SourceID == "" {
		return fmt.Errorf("%w: relationship source_id must not be empty", ErrValidation)
	}
	if r.TargetID == "" {
		return fmt.Errorf("%w: relationship target_id must not be empty", ErrValidation)
	}
	if r.Type == "" {
		return fmt.Errorf("%w: relationship type must not be empty", ErrValidation)
	}
	if r.Confidence < 0.0 || r.Confidence > 1.0 {
		return fmt.Errorf("%w: confidence %.4f is outside [0.0, 1.0]", ErrValidation, r.Confidence)
	}
	if !r.Type.IsWellKnown() {
		slog.Warn("worldmodel: relationship uses an extension type", "type", string(r.Type))
	}
	return nil
}
