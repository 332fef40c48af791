package errors

import "errors"

// Sentinel errors shared across storage backends.
var (
	// ErrNotFound indicates that a requested record or embedding does not exist.
	ErrNotFound = errors.New("resource not found")
)
