// Package postgres stores usage events in PostgreSQL, in the usage_events and
// users tables. Reads are spread over read replicas when configured.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/tally/pkg/analytics"
	"github.com/platinummonkey/tally/pkg/observability"
)

var tracer = otel.Tracer("github.com/platinummonkey/tally/pkg/storage/postgres")

const eventColumns = `id, user_id, feature, tokens_used, input_tokens, output_tokens, cost, success, metadata, created_at`

// Store implements analytics.EventStore on PostgreSQL
type Store struct {
	conns *ConnectionManager
}

var _ analytics.EventStore = (*Store)(nil)

// New connects to the database and applies the schema
func New(ctx context.Context, cfg Config, logger *observability.Logger) (*Store, error) {
	conns, err := NewConnectionManager(ctx, cfg, logger)
	if err != nil {
		return nil, unavailable("connect to postgres", err)
	}
	s := NewWithConnections(conns)
	if err := s.Migrate(ctx); err != nil {
		conns.Close()
		return nil, err
	}
	return s, nil
}

// NewWithConnections creates a store over an existing connection manager.
// The schema is not applied.
func NewWithConnections(conns *ConnectionManager) *Store {
	return &Store{conns: conns}
}

// FetchEvents implements analytics.EventStore
func (s *Store) FetchEvents(ctx context.Context, r analytics.TimeRange) ([]analytics.UsageEvent, error) {
	ctx, span := tracer.Start(ctx, "postgres.FetchEvents")
	defer span.End()

	query := `SELECT ` + eventColumns + ` FROM usage_events`
	var (
		conds []string
		args  []interface{}
	)
	if !r.Start.IsZero() {
		args = append(args, r.Start.UTC())
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !r.End.IsZero() {
		args = append(args, r.End.UTC())
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}

	rows, err := s.conns.Replica().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fail(span, "query usage events", err)
	}
	events, err := scanEvents(rows)
	if err != nil {
		return nil, fail(span, "scan usage events", err)
	}
	span.SetAttributes(attribute.Int("events", len(events)))
	return events, nil
}

// FetchEventsForUser implements analytics.EventStore
func (s *Store) FetchEventsForUser(ctx context.Context, userID string, limit int) ([]analytics.UsageEvent, error) {
	ctx, span := tracer.Start(ctx, "postgres.FetchEventsForUser",
		trace.WithAttributes(attribute.String("user_id", userID)))
	defer span.End()

	query := `SELECT ` + eventColumns + ` FROM usage_events WHERE user_id = $1 ORDER BY created_at DESC`
	args := []interface{}{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.conns.Replica().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fail(span, "query user events", err)
	}
	events, err := scanEvents(rows)
	if err != nil {
		return nil, fail(span, "scan user events", err)
	}
	return events, nil
}

func scanEvents(rows *sql.Rows) ([]analytics.UsageEvent, error) {
	defer rows.Close()

	var events []analytics.UsageEvent
	for rows.Next() {
		var (
			e    analytics.UsageEvent
			meta []byte
		)
		err := rows.Scan(&e.ID, &e.UserID, &e.Feature, &e.Quantity, &e.InputTokens,
			&e.OutputTokens, &e.Cost, &e.Success, &meta, &e.Timestamp)
		if err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("event %s metadata: %w", e.ID, err)
			}
		}
		e.Timestamp = e.Timestamp.UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

// InsertEvent implements analytics.EventStore
func (s *Store) InsertEvent(ctx context.Context, event *analytics.UsageEvent) error {
	if event == nil || event.ID == "" {
		return fmt.Errorf("%w: event id required", analytics.ErrInvalidEvent)
	}
	ctx, span := tracer.Start(ctx, "postgres.InsertEvent")
	defer span.End()

	var meta interface{}
	if len(event.Metadata) > 0 {
		b, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("%w: metadata: %v", analytics.ErrInvalidEvent, err)
		}
		meta = b
	}

	query := `INSERT INTO usage_events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := s.conns.Primary().ExecContext(ctx, query,
		event.ID,
		event.UserID,
		event.Feature,
		event.Quantity,
		event.InputTokens,
		event.OutputTokens,
		event.Cost,
		event.Success,
		meta,
		event.Timestamp.UTC(),
	)
	if err != nil {
		return fail(span, "insert usage event", err)
	}
	return nil
}

// LookupUserPlan implements analytics.PlanLookup
func (s *Store) LookupUserPlan(ctx context.Context, userID string) (string, error) {
	var plan string
	err := s.conns.Replica().QueryRowContext(ctx,
		`SELECT plan FROM users WHERE user_id = $1`, userID).Scan(&plan)
	if errors.Is(err, sql.ErrNoRows) {
		return analytics.DefaultPlan, nil
	}
	if err != nil {
		return "", unavailable("query user plan", err)
	}
	return normalizePlan(plan), nil
}

// UpsertUser records a user's plan
func (s *Store) UpsertUser(ctx context.Context, u analytics.User) error {
	_, err := s.conns.Primary().ExecContext(ctx,
		`INSERT INTO users (user_id, plan) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET plan = EXCLUDED.plan`,
		u.ID, u.Plan)
	if err != nil {
		return unavailable("upsert user", err)
	}
	return nil
}

// CountUsers implements analytics.EventStore
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.conns.Replica().QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, unavailable("count users", err)
	}
	return n, nil
}

// CountUsersByPlan implements analytics.EventStore
func (s *Store) CountUsersByPlan(ctx context.Context) (map[string]int64, error) {
	rows, err := s.conns.Replica().QueryContext(ctx, `SELECT plan, COUNT(*) FROM users GROUP BY plan`)
	if err != nil {
		return nil, unavailable("count users by plan", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			plan string
			n    int64
		)
		if err := rows.Scan(&plan, &n); err != nil {
			return nil, unavailable("scan plan counts", err)
		}
		counts[normalizePlan(plan)] += n
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate plan counts", err)
	}
	return counts, nil
}

// Ping implements analytics.EventStore
func (s *Store) Ping(ctx context.Context) error {
	if err := s.conns.HealthCheck(ctx); err != nil {
		return unavailable("ping postgres", err)
	}
	return nil
}

// Close closes every pooled connection
func (s *Store) Close() error {
	return s.conns.Close()
}

func normalizePlan(plan string) string {
	plan = strings.ToLower(strings.TrimSpace(plan))
	if plan == "" {
		return analytics.DefaultPlan
	}
	return plan
}

func fail(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, op)
	return unavailable(op, err)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, analytics.ErrStoreUnavailable, err)
}
