package storage

import "errors"

// Sentinel errors shared by every backend. Callers match them with errors.Is;
// backends wrap them with context via fmt.Errorf so the kind survives.
var (
	// ErrNotReady is returned by any data operation invoked before Init.
	ErrNotReady = errors.New("store not initialized")

	// ErrNotFound is returned when a referenced id is absent.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned on a uniqueness violation, or when a run is
	// started twice for the same (run id, source) pair.
	ErrConflict = errors.New("conflict")

	// ErrInvalidState is returned when a terminal transition is attempted on
	// a parsing log that is not running.
	ErrInvalidState = errors.New("invalid state")
)
