package analytics

import "errors"

var (
	// ErrStoreUnavailable wraps any connectivity or timeout failure talking to the event store.
	ErrStoreUnavailable = errors.New("event store unavailable")

	// ErrInsufficientData marks a metric that cannot be computed from the input.
	// Aggregations return zero results instead of surfacing it.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrNotFound marks an unknown feature or user.
	ErrNotFound = errors.New("not found")

	// ErrInvalidEvent is returned by LogUsage when a required field is missing.
	ErrInvalidEvent = errors.New("invalid usage event")
)
