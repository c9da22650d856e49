package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("github.com/platinummonkey/tally/pkg/analytics")

// DefaultTrendDays is the window used when a caller does not pass one
const DefaultTrendDays = 30

// defaultPlanConcurrency bounds concurrent plan lookups during a trend query
const defaultPlanConcurrency = 16

// Observer receives aggregation and ingestion measurements
type Observer interface {
	ObserveAggregation(operation string, duration time.Duration, events int)
	RecordEventLogged(feature string)
	RecordUserCount(n int64)
}

// Service provides analytics business logic. It is built once per process and
// is safe for concurrent use: it holds no mutable state of its own.
type Service struct {
	store           EventStore
	plans           PlanLookup
	observer        Observer
	now             func() time.Time
	generatedAt     *time.Time
	planConcurrency int
	userEventLimit  int
}

// Option configures a Service
type Option func(*Service)

// WithPlanResolver routes plan lookups through p (typically a cache) instead of the store
func WithPlanResolver(p PlanLookup) Option {
	return func(s *Service) {
		if p != nil {
			s.plans = p
		}
	}
}

// WithObserver reports aggregation timings to o
func WithObserver(o Observer) Option {
	return func(s *Service) {
		s.observer = o
	}
}

// WithClock overrides the time source used for windows and new events
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSampleData marks the service as serving a generated dataset; global
// metrics then report when it was generated.
func WithSampleData(generatedAt time.Time) Option {
	return func(s *Service) {
		t := generatedAt.UTC()
		s.generatedAt = &t
	}
}

// WithPlanConcurrency bounds concurrent plan lookups
func WithPlanConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.planConcurrency = n
		}
	}
}

// WithUserEventLimit caps how many recent events a user query aggregates
func WithUserEventLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.userEventLimit = n
		}
	}
}

// NewService creates a new analytics service
func NewService(store EventStore, opts ...Option) *Service {
	s := &Service{
		store:           store,
		plans:           store,
		now:             time.Now,
		planConcurrency: defaultPlanConcurrency,
		userEventLimit:  UserEventLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetGlobalMetrics aggregates every stored event
func (s *Service) GetGlobalMetrics(ctx context.Context) (*GlobalMetrics, error) {
	ctx, span := tracer.Start(ctx, "analytics.GetGlobalMetrics")
	defer span.End()
	start := time.Now()

	events, err := s.store.FetchEvents(ctx, TimeRange{})
	if err != nil {
		return nil, s.fail(span, "fetch events", err)
	}

	byPlan, err := s.store.CountUsersByPlan(ctx)
	if err != nil {
		return nil, s.fail(span, "count users by plan", err)
	}

	m := ComputeGlobalMetrics(events)
	for _, n := range byPlan {
		m.TotalUsers += n
	}
	m.PaidUsers = byPlan[PlanPaid]
	m.FreeUsers = byPlan[PlanFree]
	m.ConversionRate = round(percent(float64(m.PaidUsers), float64(m.TotalUsers)), 2)
	m.LastUpdated = s.generatedAt
	if s.observer != nil {
		s.observer.RecordUserCount(m.TotalUsers)
	}

	s.observe(span, "global", start, len(events))
	return &m, nil
}

// GetFeatureMetrics aggregates the events of one feature. found is false when
// no event matches the (normalized) feature name.
func (s *Service) GetFeatureMetrics(ctx context.Context, feature string) (*FeatureMetrics, bool, error) {
	ctx, span := tracer.Start(ctx, "analytics.GetFeatureMetrics",
		trace.WithAttributes(attribute.String("feature", feature)))
	defer span.End()
	start := time.Now()

	events, err := s.store.FetchEvents(ctx, TimeRange{})
	if err != nil {
		return nil, false, s.fail(span, "fetch events", err)
	}

	m, found := ComputeFeatureMetrics(events, feature)
	s.observe(span, "feature", start, len(events))
	if !found {
		return nil, false, nil
	}
	return &m, true, nil
}

// GetUsageMetrics aggregates the trailing window of days ending now.
// Negative windows are treated as empty.
func (s *Service) GetUsageMetrics(ctx context.Context, days int) (*UsageTrend, error) {
	ctx, span := tracer.Start(ctx, "analytics.GetUsageMetrics",
		trace.WithAttributes(attribute.Int("days", days)))
	defer span.End()
	start := time.Now()

	if days < 0 {
		days = 0
	}

	var events []UsageEvent
	if days > 0 {
		var err error
		events, err = s.store.FetchEvents(ctx, LastDays(s.now(), days))
		if err != nil {
			return nil, s.fail(span, "fetch events", err)
		}
	}

	plans, err := s.resolvePlans(ctx, events)
	if err != nil {
		return nil, s.fail(span, "resolve plans", err)
	}

	userCount, err := s.store.CountUsers(ctx)
	if err != nil {
		return nil, s.fail(span, "count users", err)
	}

	t := ComputeUsageTrend(events, days, plans, userCount)
	if s.observer != nil {
		s.observer.RecordUserCount(userCount)
	}
	s.observe(span, "usage_trend", start, len(events))
	return &t, nil
}

// FeatureUsage is the feature breakdown of a usage trend
type FeatureUsage struct {
	Days           int                `json:"days"`
	UsageByFeature map[string]float64 `json:"usage_by_feature"`
	TotalUsage     int64              `json:"total_usage"`
}

// GetFeatureUsage returns the per-feature view of GetUsageMetrics
func (s *Service) GetFeatureUsage(ctx context.Context, days int) (*FeatureUsage, error) {
	t, err := s.GetUsageMetrics(ctx, days)
	if err != nil {
		return nil, err
	}
	return &FeatureUsage{
		Days:           t.Days,
		UsageByFeature: t.UsageByFeature,
		TotalUsage:     t.TotalUsage,
	}, nil
}

// PeakHours is the peak-hour view of a usage trend
type PeakHours struct {
	Days      int        `json:"days"`
	PeakHours []PeakHour `json:"peak_hours"`
}

// GetPeakHours returns the top hours of GetUsageMetrics
func (s *Service) GetPeakHours(ctx context.Context, days int) (*PeakHours, error) {
	t, err := s.GetUsageMetrics(ctx, days)
	if err != nil {
		return nil, err
	}
	return &PeakHours{Days: t.Days, PeakHours: t.PeakHours}, nil
}

// GetUserAnalytics aggregates a user's most recent events
func (s *Service) GetUserAnalytics(ctx context.Context, userID string) (*UserMetrics, error) {
	ctx, span := tracer.Start(ctx, "analytics.GetUserAnalytics",
		trace.WithAttributes(attribute.String("user_id", userID)))
	defer span.End()
	start := time.Now()

	events, err := s.store.FetchEventsForUser(ctx, userID, s.userEventLimit)
	if err != nil {
		return nil, s.fail(span, "fetch user events", err)
	}

	m := ComputeUserMetrics(userID, events)
	s.observe(span, "user", start, len(events))
	return &m, nil
}

// LogUsage records one usage event and returns it as stored
func (s *Service) LogUsage(ctx context.Context, in LogUsageInput) (*UsageEvent, error) {
	ctx, span := tracer.Start(ctx, "analytics.LogUsage",
		trace.WithAttributes(attribute.String("feature", in.Feature)))
	defer span.End()

	if in.UserID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidEvent)
	}
	if in.Feature == "" {
		return nil, fmt.Errorf("%w: feature is required", ErrInvalidEvent)
	}

	event := in.toEvent(uuid.New().String(), s.now())
	if err := s.store.InsertEvent(ctx, &event); err != nil {
		return nil, s.fail(span, "insert event", err)
	}

	if s.observer != nil {
		s.observer.RecordEventLogged(event.Feature)
	}
	return &event, nil
}

// Ping reports whether the event store is reachable
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// resolvePlans looks up each distinct user once, with bounded concurrency
func (s *Service) resolvePlans(ctx context.Context, events []UsageEvent) (map[string]string, error) {
	plans := make(map[string]string)
	if len(events) == 0 {
		return plans, nil
	}

	seen := make(map[string]struct{})
	var users []string
	for _, e := range events {
		if _, ok := seen[e.UserID]; !ok {
			seen[e.UserID] = struct{}{}
			users = append(users, e.UserID)
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.planConcurrency)
	for _, userID := range users {
		g.Go(func() error {
			plan, err := s.plans.LookupUserPlan(gctx, userID)
			if err != nil {
				return fmt.Errorf("lookup plan for %s: %w", userID, err)
			}
			mu.Lock()
			plans[userID] = plan
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return plans, nil
}

func (s *Service) observe(span trace.Span, operation string, start time.Time, events int) {
	span.SetAttributes(attribute.Int("events", events))
	if s.observer != nil {
		s.observer.ObserveAggregation(operation, time.Since(start), events)
	}
}

func (s *Service) fail(span trace.Span, step string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, step)
	return fmt.Errorf("failed to %s: %w", step, err)
}
