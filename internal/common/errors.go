// Package common defines shared constants and sentinel errors used across
// the synchronization core. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Persistence-level errors.
	ErrNotFound = errors.New("not found")

	// Snapshot reads before the first value has loaded.
	ErrNotAvailable = errors.New("not available yet")

	// Transport-level errors (backend unreachable, 5xx, open breaker).
	ErrUnavailable = errors.New("backend unavailable")

	// Validation errors. Always fatal to the specific request, never
	// retried automatically.
	ErrEmptyAccountID   = errors.New("empty account id")
	ErrEmptyKeyMaterial = errors.New("empty key material")
)
