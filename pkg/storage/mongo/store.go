// Package mongo stores usage events in MongoDB, in the UsageLog and User
// collections of the application database.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.mongodb.org/mongo-driver/v2/x/mongo/driver/connstring"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/tally/pkg/analytics"
	"github.com/platinummonkey/tally/pkg/observability"
)

// DefaultDatabase is used when the connection string names no database
const DefaultDatabase = "ai_saas"

var tracer = otel.Tracer("github.com/platinummonkey/tally/pkg/storage/mongo")

// Config holds MongoDB connection settings
type Config struct {
	URI         string
	Database    string
	MaxPoolSize uint64
	Timeout     time.Duration
}

// Store implements analytics.EventStore on MongoDB
type Store struct {
	client  *mongo.Client
	usage   *mongo.Collection
	users   *mongo.Collection
	timeout time.Duration
}

var _ analytics.EventStore = (*Store)(nil)

// New connects to MongoDB, verifies the connection and ensures indexes.
func New(ctx context.Context, cfg Config, logger *observability.Logger) (*Store, error) {
	dbName, err := databaseName(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.Timeout).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, unavailable("connect to mongo", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, unavailable("ping mongo", err)
	}

	s := newStore(client, dbName, cfg.Timeout)
	if err := s.Migrate(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	if logger != nil {
		logger.WithField("database", dbName).Info("Connected to MongoDB event store")
	}
	return s, nil
}

func newStore(client *mongo.Client, dbName string, timeout time.Duration) *Store {
	db := client.Database(dbName)
	return &Store{
		client:  client,
		usage:   db.Collection(colUsageLog),
		users:   db.Collection(colUser),
		timeout: timeout,
	}
}

// databaseName picks the configured database, then the one in the URI
func databaseName(cfg Config) (string, error) {
	if cfg.Database != "" {
		return cfg.Database, nil
	}
	cs, err := connstring.ParseAndValidate(cfg.URI)
	if err != nil {
		return "", fmt.Errorf("invalid mongo uri: %w", err)
	}
	if cs.Database != "" {
		return cs.Database, nil
	}
	return DefaultDatabase, nil
}

// Migrate creates the UsageLog indexes used by range and per-user queries.
func (s *Store) Migrate(ctx context.Context) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "createdAt", Value: 1}}},
	}
	if _, err := s.usage.Indexes().CreateMany(ctx, models); err != nil {
		return unavailable("create UsageLog indexes", err)
	}
	return nil
}

// FetchEvents implements analytics.EventStore
func (s *Store) FetchEvents(ctx context.Context, r analytics.TimeRange) ([]analytics.UsageEvent, error) {
	ctx, span := tracer.Start(ctx, "mongo.FetchEvents")
	defer span.End()

	cursor, err := s.usage.Find(ctx, rangeFilter(r))
	if err != nil {
		return nil, s.fail(span, "find usage events", err)
	}
	events, err := decodeEvents(ctx, cursor)
	if err != nil {
		return nil, s.fail(span, "decode usage events", err)
	}
	span.SetAttributes(attribute.Int("events", len(events)))
	return events, nil
}

// FetchEventsForUser implements analytics.EventStore
func (s *Store) FetchEventsForUser(ctx context.Context, userID string, limit int) ([]analytics.UsageEvent, error) {
	ctx, span := tracer.Start(ctx, "mongo.FetchEventsForUser",
		trace.WithAttributes(attribute.String("user_id", userID)))
	defer span.End()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.usage.Find(ctx, bson.D{{Key: "userId", Value: userID}}, opts)
	if err != nil {
		return nil, s.fail(span, "find user events", err)
	}
	events, err := decodeEvents(ctx, cursor)
	if err != nil {
		return nil, s.fail(span, "decode user events", err)
	}
	return events, nil
}

func decodeEvents(ctx context.Context, cursor *mongo.Cursor) ([]analytics.UsageEvent, error) {
	var docs []usageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	events := make([]analytics.UsageEvent, len(docs))
	for i := range docs {
		events[i] = fromUsageDoc(&docs[i])
	}
	return events, nil
}

// InsertEvent implements analytics.EventStore
func (s *Store) InsertEvent(ctx context.Context, event *analytics.UsageEvent) error {
	if event == nil {
		return fmt.Errorf("%w: nil event", analytics.ErrInvalidEvent)
	}
	ctx, span := tracer.Start(ctx, "mongo.InsertEvent")
	defer span.End()

	res, err := s.usage.InsertOne(ctx, toUsageDoc(event))
	if err != nil {
		return s.fail(span, "insert usage event", err)
	}
	if event.ID == "" {
		event.ID = docID(res.InsertedID)
	}
	return nil
}

// LookupUserPlan implements analytics.PlanLookup
func (s *Store) LookupUserPlan(ctx context.Context, userID string) (string, error) {
	var doc userDoc
	err := s.users.FindOne(ctx, userFilter(userID)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return analytics.DefaultPlan, nil
	}
	if err != nil {
		return "", unavailable("find user", err)
	}
	return normalizePlan(doc.Plan), nil
}

// UpsertUser records a user's plan
func (s *Store) UpsertUser(ctx context.Context, u analytics.User) error {
	_, err := s.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: u.ID}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "plan", Value: u.Plan}}}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return unavailable("upsert user", err)
	}
	return nil
}

// CountUsers implements analytics.EventStore
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	n, err := s.users.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, unavailable("count users", err)
	}
	return n, nil
}

// CountUsersByPlan implements analytics.EventStore
func (s *Store) CountUsersByPlan(ctx context.Context) (map[string]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$plan"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cursor, err := s.users.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, unavailable("group users by plan", err)
	}
	var rows []planCount
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, unavailable("decode plan counts", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[normalizePlan(row.Plan)] += row.Count
	}
	return counts, nil
}

// Ping implements analytics.EventStore
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return unavailable("ping mongo", err)
	}
	return nil
}

// Close disconnects the client
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) fail(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, op)
	return unavailable(op, err)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, analytics.ErrStoreUnavailable, err)
}
