package storage

import (
	"context"
	"time"

	"github.com/platinummonkey/tally/pkg/analytics"
)

// OperationRecorder receives the duration and outcome of every store call
type OperationRecorder interface {
	RecordStoreOperation(operation, backend string, duration time.Duration, err error)
}

// Instrumented wraps an event store and reports each call to a recorder
type Instrumented struct {
	next     analytics.EventStore
	backend  string
	recorder OperationRecorder
}

// Instrument returns store wrapped so that every call is recorded under
// backend. A nil recorder returns store unchanged.
func Instrument(store analytics.EventStore, backend string, recorder OperationRecorder) analytics.EventStore {
	if recorder == nil {
		return store
	}
	return &Instrumented{next: store, backend: backend, recorder: recorder}
}

func (s *Instrumented) record(op string, start time.Time, err error) {
	s.recorder.RecordStoreOperation(op, s.backend, time.Since(start), err)
}

// FetchEvents implements analytics.EventStore
func (s *Instrumented) FetchEvents(ctx context.Context, r analytics.TimeRange) ([]analytics.UsageEvent, error) {
	start := time.Now()
	events, err := s.next.FetchEvents(ctx, r)
	s.record("fetch_events", start, err)
	return events, err
}

// FetchEventsForUser implements analytics.EventStore
func (s *Instrumented) FetchEventsForUser(ctx context.Context, userID string, limit int) ([]analytics.UsageEvent, error) {
	start := time.Now()
	events, err := s.next.FetchEventsForUser(ctx, userID, limit)
	s.record("fetch_user_events", start, err)
	return events, err
}

// InsertEvent implements analytics.EventStore
func (s *Instrumented) InsertEvent(ctx context.Context, event *analytics.UsageEvent) error {
	start := time.Now()
	err := s.next.InsertEvent(ctx, event)
	s.record("insert_event", start, err)
	return err
}

// LookupUserPlan implements analytics.PlanLookup
func (s *Instrumented) LookupUserPlan(ctx context.Context, userID string) (string, error) {
	start := time.Now()
	plan, err := s.next.LookupUserPlan(ctx, userID)
	s.record("lookup_plan", start, err)
	return plan, err
}

// CountUsers implements analytics.EventStore
func (s *Instrumented) CountUsers(ctx context.Context) (int64, error) {
	start := time.Now()
	n, err := s.next.CountUsers(ctx)
	s.record("count_users", start, err)
	return n, err
}

// CountUsersByPlan implements analytics.EventStore
func (s *Instrumented) CountUsersByPlan(ctx context.Context) (map[string]int64, error) {
	start := time.Now()
	counts, err := s.next.CountUsersByPlan(ctx)
	s.record("count_users_by_plan", start, err)
	return counts, err
}

// Ping implements analytics.EventStore
func (s *Instrumented) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.next.Ping(ctx)
	s.record("ping", start, err)
	return err
}

// Close implements analytics.EventStore
func (s *Instrumented) Close() error {
	return s.next.Close()
}

// GeneratedAt forwards to the wrapped store when it was seeded from sample data
func (s *Instrumented) GeneratedAt() time.Time {
	if sb, ok := s.next.(SampleBacked); ok {
		return sb.GeneratedAt()
	}
	return time.Time{}
}
