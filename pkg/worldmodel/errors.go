package worldmodel

import "errors"

// Sentinel errors for the taxonomy every [Storage] implementation surfaces.
// Wrap with fmt.Errorf("%s: %w", ...) at each layer boundary; callers should
// use errors.Is against these values rather than matching on message text.
var (
	// ErrValidation indicates the caller supplied malformed input (bad
	// confidence, missing required scalar, empty annotation text/creator).
	ErrValidation = errors.New("worldmodel: validation failed")

	// ErrNotFound indicates a targeted entity, relationship endpoint, or
	// annotation target is absent.
	ErrNotFound = errors.New("worldmodel: not found")

	// ErrDuplicateID indicates a unique-constraint violation on addEntity.
	ErrDuplicateID = errors.New("worldmodel: duplicate id")

	// ErrBackendUnavailable indicates a graph or relational round-trip
	// failed. For graph mirror writes this is recovered locally by the
	// director; for the relational write it is surfaced and the director
	// transitions to FAILED.
	ErrBackendUnavailable = errors.New("worldmodel: backend unavailable")

	// ErrMissingConfirm indicates reset was called without the explicit
	// safety flag.
	ErrMissingConfirm = errors.New("worldmodel: reset requires explicit confirm")

	// ErrVersionMismatch indicates an import document's major version does
	// not match the codec's. Minor version mismatches warn rather than fail.
	ErrVersionMismatch = errors.New("worldmodel: import version mismatch")
)
