package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/tally/pkg/analytics"
	"github.com/platinummonkey/tally/pkg/observability"
	"github.com/platinummonkey/tally/pkg/storage/memory"
	"github.com/platinummonkey/tally/pkg/storage/mongo"
	"github.com/platinummonkey/tally/pkg/storage/postgres"
)

// Backend types
const (
	TypeSample   = "sample"
	TypeMongo    = "mongo"
	TypePostgres = "postgres"
)

// Config for the event store
type Config struct {
	Type     string
	Sample   analytics.SampleConfig
	Mongo    mongo.Config
	Postgres postgres.Config

	// SeedSample copies a generated dataset into an empty database backend
	SeedSample bool
}

// DefaultConfig returns a sample-mode configuration
func DefaultConfig() Config {
	return Config{
		Type:   TypeSample,
		Sample: analytics.DefaultSampleConfig(),
		Mongo: mongo.Config{
			URI:         "mongodb://localhost:27017/ai_saas",
			MaxPoolSize: 20,
			Timeout:     10 * time.Second,
		},
		Postgres: postgres.Config{
			MaxConns:    20,
			MinConns:    2,
			Timeout:     10 * time.Second,
			MaxLifetime: time.Hour,
			MaxIdleTime: 10 * time.Minute,
		},
	}
}

// Seeder is a store that accepts users as well as events
type Seeder interface {
	analytics.EventStore
	UpsertUser(ctx context.Context, u analytics.User) error
}

// SampleBacked is implemented by stores seeded from generated data
type SampleBacked interface {
	GeneratedAt() time.Time
}

// Open creates the configured event store. The caller owns the store and must
// Close it.
func Open(ctx context.Context, cfg Config, logger *observability.Logger) (analytics.EventStore, error) {
	switch cfg.Type {
	case TypeSample, "":
		data := analytics.GenerateSampleData(cfg.Sample)
		if logger != nil {
			logger.WithFields(map[string]interface{}{
				"users":  len(data.Users),
				"events": len(data.Events),
				"seed":   cfg.Sample.Seed,
			}).Info("Generated sample dataset")
		}
		return memory.NewFromSample(data), nil

	case TypeMongo:
		store, err := mongo.New(ctx, cfg.Mongo, logger)
		if err != nil {
			return nil, err
		}
		return seedIfRequested(ctx, cfg, store, logger)

	case TypePostgres:
		store, err := postgres.New(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, err
		}
		return seedIfRequested(ctx, cfg, store, logger)

	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}

func seedIfRequested(ctx context.Context, cfg Config, store Seeder, logger *observability.Logger) (analytics.EventStore, error) {
	if !cfg.SeedSample {
		return store, nil
	}
	n, err := store.CountUsers(ctx)
	if err != nil {
		store.Close()
		return nil, err
	}
	if n > 0 {
		if logger != nil {
			logger.WithField("users", n).Info("Store already populated, skipping sample seed")
		}
		return store, nil
	}
	if err := Seed(ctx, store, analytics.GenerateSampleData(cfg.Sample)); err != nil {
		store.Close()
		return nil, err
	}
	if logger != nil {
		logger.Info("Seeded store with sample dataset")
	}
	return store, nil
}

// Seed writes every user and event of a dataset into the store
func Seed(ctx context.Context, store Seeder, data analytics.SampleDataset) error {
	for _, u := range data.Users {
		if err := store.UpsertUser(ctx, u); err != nil {
			return fmt.Errorf("failed to seed user %s: %w", u.ID, err)
		}
	}
	for i := range data.Events {
		if err := store.InsertEvent(ctx, &data.Events[i]); err != nil {
			return fmt.Errorf("failed to seed event %s: %w", data.Events[i].ID, err)
		}
	}
	return nil
}
