package relstore

import "errors"

// ErrNotFound is returned by the Update* methods when no row with the
// requested id exists. The named getters report an absent row as (nil, nil)
// instead.
var ErrNotFound = errors.New("relstore: not found")

// ErrValidation is returned when a record fails a required-field check
// before being persisted.
var ErrValidation = errors.New("relstore: validation failed")
