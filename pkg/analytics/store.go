package analytics

import "context"

// UserEventLimit caps how many of a user's events feed user metrics
const UserEventLimit = 1000

// EventStore is the persistence boundary of the analytics engine.
// Connectivity failures are wrapped with ErrStoreUnavailable.
type EventStore interface {
	// FetchEvents returns events with a timestamp inside r, unordered.
	// A zero range returns every event.
	FetchEvents(ctx context.Context, r TimeRange) ([]UsageEvent, error)

	// FetchEventsForUser returns a user's events newest first, at most limit of them.
	FetchEventsForUser(ctx context.Context, userID string, limit int) ([]UsageEvent, error)

	// InsertEvent appends one event.
	InsertEvent(ctx context.Context, event *UsageEvent) error

	PlanLookup

	// CountUsers returns the number of registered users.
	CountUsers(ctx context.Context) (int64, error)

	// CountUsersByPlan returns registered users grouped by plan.
	CountUsersByPlan(ctx context.Context) (map[string]int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// PlanLookup resolves the plan of a user, DefaultPlan when the user is unknown
type PlanLookup interface {
	LookupUserPlan(ctx context.Context, userID string) (string, error)
}

// PlanLookupFunc adapts a function to PlanLookup
type PlanLookupFunc func(ctx context.Context, userID string) (string, error)

// LookupUserPlan calls f
func (f PlanLookupFunc) LookupUserPlan(ctx context.Context, userID string) (string, error) {
	return f(ctx, userID)
}
