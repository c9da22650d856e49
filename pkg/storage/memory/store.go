// Package memory is an in-process event store backed by generated sample data.
// It serves the sample mode of the server and the HTTP tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/tally/pkg/analytics"
)

// Store keeps users and events in memory
type Store struct {
	mu          sync.RWMutex
	users       map[string]string
	events      []analytics.UsageEvent
	generatedAt time.Time
	closed      bool
}

// New creates a store holding the given users and events
func New(users []analytics.User, events []analytics.UsageEvent) *Store {
	s := &Store{
		users:  make(map[string]string, len(users)),
		events: make([]analytics.UsageEvent, len(events)),
	}
	for _, u := range users {
		s.users[u.ID] = u.Plan
	}
	copy(s.events, events)
	return s
}

// NewFromSample creates a store seeded with a generated dataset
func NewFromSample(data analytics.SampleDataset) *Store {
	s := New(data.Users, data.Events)
	s.generatedAt = data.GeneratedAt
	return s
}

// GeneratedAt returns when the seeding dataset was generated, zero if the
// store was not seeded from a sample.
func (s *Store) GeneratedAt() time.Time {
	return s.generatedAt
}

// FetchEvents implements analytics.EventStore
func (s *Store) FetchEvents(ctx context.Context, r analytics.TimeRange) ([]analytics.UsageEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	out := make([]analytics.UsageEvent, 0, len(s.events))
	for _, e := range s.events {
		if r.Contains(e.Timestamp) {
			out = append(out, e)
		}
	}
	return out, nil
}

// FetchEventsForUser implements analytics.EventStore
func (s *Store) FetchEventsForUser(ctx context.Context, userID string, limit int) ([]analytics.UsageEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	var out []analytics.UsageEvent
	for _, e := range s.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// InsertEvent implements analytics.EventStore
func (s *Store) InsertEvent(ctx context.Context, event *analytics.UsageEvent) error {
	if event == nil {
		return fmt.Errorf("%w: nil event", analytics.ErrInvalidEvent)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	s.events = append(s.events, *event)
	return nil
}

// LookupUserPlan implements analytics.PlanLookup
func (s *Store) LookupUserPlan(ctx context.Context, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return "", err
	}
	if plan, ok := s.users[userID]; ok && plan != "" {
		return plan, nil
	}
	return analytics.DefaultPlan, nil
}

// CountUsers implements analytics.EventStore
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	return int64(len(s.users)), nil
}

// CountUsersByPlan implements analytics.EventStore
func (s *Store) CountUsersByPlan(ctx context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	counts := make(map[string]int64)
	for _, plan := range s.users {
		counts[plan]++
	}
	return counts, nil
}

// UpsertUser registers or replaces a user
func (s *Store) UpsertUser(ctx context.Context, u analytics.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	s.users[u.ID] = u.Plan
	return nil
}

// Len returns the number of stored events
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Ping implements analytics.EventStore
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.check(ctx)
}

// Close implements analytics.EventStore. A closed store reports
// analytics.ErrStoreUnavailable from every operation.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// check must be called with the lock held
func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed {
		return fmt.Errorf("%w: memory store closed", analytics.ErrStoreUnavailable)
	}
	return nil
}

var _ analytics.EventStore = (*Store)(nil)
