package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisConfig configures the shared plan cache
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
	TTL        time.Duration
	KeyPrefix  string
}

// RedisPlanStore keeps user plans in Redis so every server instance shares
// one cache.
type RedisPlanStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisPlanStore connects to Redis and verifies the connection
func NewRedisPlanStore(cfg RedisConfig) (*RedisPlanStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB > 0 {
		opts.DB = cfg.DB
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: failed to connect to redis: %v", ErrCacheUnavailable, err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "tally:plan:"
	}
	return &RedisPlanStore{client: client, ttl: cfg.TTL, prefix: prefix}, nil
}

func (r *RedisPlanStore) key(userID string) string {
	return r.prefix + userID
}

// Get returns the cached plan or ErrCacheMiss
func (r *RedisPlanStore) Get(ctx context.Context, userID string) (string, error) {
	plan, err := r.client.Get(ctx, r.key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("%w: redis get failed: %v", ErrCacheUnavailable, err)
	}
	return plan, nil
}

// Set caches a plan for the configured TTL
func (r *RedisPlanStore) Set(ctx context.Context, userID, plan string) error {
	if err := r.client.Set(ctx, r.key(userID), plan, r.ttl).Err(); err != nil {
		return fmt.Errorf("%w: redis set failed: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Invalidate removes a cached plan
func (r *RedisPlanStore) Invalidate(ctx context.Context, userID string) error {
	return r.client.Del(ctx, r.key(userID)).Err()
}

// Ping checks Redis connectivity
func (r *RedisPlanStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Client returns the underlying Redis client for health checks
func (r *RedisPlanStore) Client() *redis.Client {
	return r.client
}

// Close closes the Redis connection
func (r *RedisPlanStore) Close() error {
	return r.client.Close()
}
