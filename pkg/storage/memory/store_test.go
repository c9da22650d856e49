package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tally/pkg/analytics"
)

var base = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestStore() *Store {
	users := []analytics.User{
		{ID: "u1", Plan: analytics.PlanPaid},
		{ID: "u2", Plan: analytics.PlanFree},
		{ID: "u3", Plan: analytics.PlanFree},
	}
	events := []analytics.UsageEvent{
		{ID: "e1", UserID: "u1", Feature: analytics.FeatureCodeGeneration, Timestamp: base.Add(-48 * time.Hour), Quantity: 10, Success: true},
		{ID: "e2", UserID: "u1", Feature: analytics.FeatureTextCompletion, Timestamp: base.Add(-time.Hour), Quantity: 20, Success: true},
		{ID: "e3", UserID: "u2", Feature: analytics.FeatureCodeGeneration, Timestamp: base, Quantity: 5, Success: false},
		{ID: "e4", UserID: "u1", Feature: analytics.FeatureImageGeneration, Timestamp: base.Add(-24 * time.Hour), Quantity: 1, Success: true},
	}
	return New(users, events)
}

func TestFetchEvents(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	all, err := s.FetchEvents(ctx, analytics.TimeRange{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	recent, err := s.FetchEvents(ctx, analytics.TimeRange{Start: base.Add(-25 * time.Hour), End: base.Add(-time.Hour)})
	require.NoError(t, err)
	ids := []string{}
	for _, e := range recent {
		ids = append(ids, e.ID)
	}
	assert.ElementsMatch(t, []string{"e2", "e4"}, ids)
}

func TestFetchEventsForUser(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	events, err := s.FetchEventsForUser(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "e2", events[0].ID)
	assert.Equal(t, "e4", events[1].ID)
	assert.Equal(t, "e1", events[2].ID)

	limited, err := s.FetchEventsForUser(ctx, "u1", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	none, err := s.FetchEventsForUser(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestInsertEvent(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	err := s.InsertEvent(ctx, &analytics.UsageEvent{ID: "e5", UserID: "u3", Feature: "chat", Timestamp: base})
	require.NoError(t, err)
	assert.Equal(t, 5, s.Len())

	err = s.InsertEvent(ctx, nil)
	assert.True(t, errors.Is(err, analytics.ErrInvalidEvent))
}

func TestInsertEvent_Concurrent(t *testing.T) {
	s := New(nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.InsertEvent(ctx, &analytics.UsageEvent{UserID: "u", Feature: "f", Timestamp: base})
			_, _ = s.FetchEvents(ctx, analytics.TimeRange{})
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, s.Len())
}

func TestUsers(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	plan, err := s.LookupUserPlan(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, analytics.PlanPaid, plan)

	plan, err = s.LookupUserPlan(ctx, "unknown")
	require.NoError(t, err)
	assert.Equal(t, analytics.DefaultPlan, plan)

	n, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	byPlan, err := s.CountUsersByPlan(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{analytics.PlanPaid: 1, analytics.PlanFree: 2}, byPlan)

	require.NoError(t, s.UpsertUser(ctx, analytics.User{ID: "u4", Plan: analytics.PlanPaid}))
	byPlan, err = s.CountUsersByPlan(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), byPlan[analytics.PlanPaid])
}

func TestClose(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Close())

	err := s.Ping(ctx)
	assert.True(t, errors.Is(err, analytics.ErrStoreUnavailable))

	_, err = s.FetchEvents(ctx, analytics.TimeRange{})
	assert.True(t, errors.Is(err, analytics.ErrStoreUnavailable))
}

func TestCanceledContext(t *testing.T) {
	s := newTestStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.FetchEvents(ctx, analytics.TimeRange{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewFromSample(t *testing.T) {
	cfg := analytics.DefaultSampleConfig()
	cfg.Now = func() time.Time { return base }
	data := analytics.GenerateSampleData(cfg)

	s := NewFromSample(data)
	assert.Equal(t, len(data.Events), s.Len())
	assert.Equal(t, base, s.GeneratedAt())

	n, err := s.CountUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1245), n)
}
