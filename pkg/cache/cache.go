package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/tally/pkg/analytics"
	"github.com/platinummonkey/tally/pkg/observability"
)

// Cache levels reported to a Recorder
const (
	LevelL1 = "l1"
	LevelL2 = "l2"
)

// Recorder receives cache hit and miss counts
type Recorder interface {
	RecordCacheHit(level string)
	RecordCacheMiss(level string)
}

// Config holds plan cache configuration
type Config struct {
	L1Size int
	L1TTL  time.Duration
	// LookupTimeout bounds one shared miss resolution, which outlives the
	// caller that started it
	LookupTimeout time.Duration
}

// DefaultConfig returns default plan cache configuration
func DefaultConfig() Config {
	return Config{
		L1Size:        10000,
		L1TTL:         5 * time.Minute,
		LookupTimeout: 5 * time.Second,
	}
}

// Stats represents cache statistics
type Stats struct {
	Hits      int64
	Misses    int64
	HitRate   float64
	ItemCount int64
}

// PlanCache resolves user plans through an in-process LRU, an optional Redis
// level and finally the source lookup. Concurrent misses for one user share
// a single source call.
type PlanCache struct {
	source   analytics.PlanLookup
	timeout  time.Duration
	l1       *lru.LRU[string, string]
	l2       *RedisPlanStore
	group    singleflight.Group
	recorder Recorder
	logger   *observability.Logger
	hits     atomic.Int64
	misses   atomic.Int64
}

// Option configures a PlanCache
type Option func(*PlanCache)

// WithRedis adds the shared Redis level
func WithRedis(r *RedisPlanStore) Option {
	return func(c *PlanCache) { c.l2 = r }
}

// WithRecorder reports hits and misses
func WithRecorder(r Recorder) Option {
	return func(c *PlanCache) { c.recorder = r }
}

// WithLogger logs Redis failures, which are otherwise silent
func WithLogger(l *observability.Logger) Option {
	return func(c *PlanCache) { c.logger = l }
}

// NewPlanCache wraps source with caching
func NewPlanCache(source analytics.PlanLookup, cfg Config, opts ...Option) *PlanCache {
	if cfg.L1Size <= 0 {
		cfg.L1Size = DefaultConfig().L1Size
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = DefaultConfig().LookupTimeout
	}
	c := &PlanCache{
		source:  source,
		timeout: cfg.LookupTimeout,
		l1:      lru.NewLRU[string, string](cfg.L1Size, nil, cfg.L1TTL),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LookupUserPlan implements analytics.PlanLookup
func (c *PlanCache) LookupUserPlan(ctx context.Context, userID string) (string, error) {
	if plan, ok := c.l1.Get(userID); ok {
		c.hit(LevelL1)
		return plan, nil
	}
	c.miss(LevelL1)

	ch := c.group.DoChan(userID, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		if c.l2 != nil {
			plan, err := c.l2.Get(ctx, userID)
			if err == nil {
				c.hit(LevelL2)
				c.l1.Add(userID, plan)
				return plan, nil
			}
			c.miss(LevelL2)
			if !errors.Is(err, ErrCacheMiss) {
				c.warn(err, userID)
			}
		}

		plan, err := c.source.LookupUserPlan(ctx, userID)
		if err != nil {
			return "", err
		}
		c.l1.Add(userID, plan)
		if c.l2 != nil {
			if err := c.l2.Set(ctx, userID, plan); err != nil {
				c.warn(err, userID)
			}
		}
		return plan, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Invalidate drops a user's plan from every level
func (c *PlanCache) Invalidate(ctx context.Context, userID string) error {
	c.l1.Remove(userID)
	if c.l2 != nil {
		return c.l2.Invalidate(ctx, userID)
	}
	return nil
}

// Ping checks the Redis level, if configured
func (c *PlanCache) Ping(ctx context.Context) error {
	if c.l2 == nil {
		return nil
	}
	return c.l2.Ping(ctx)
}

// Stats returns L1 statistics
func (c *PlanCache) Stats() Stats {
	stats := Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		ItemCount: int64(c.l1.Len()),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

// Close releases resources
func (c *PlanCache) Close() error {
	c.l1.Purge()
	if c.l2 != nil {
		return c.l2.Close()
	}
	return nil
}

func (c *PlanCache) hit(level string) {
	if level == LevelL1 {
		c.hits.Add(1)
	}
	if c.recorder != nil {
		c.recorder.RecordCacheHit(level)
	}
}

func (c *PlanCache) miss(level string) {
	if level == LevelL1 {
		c.misses.Add(1)
	}
	if c.recorder != nil {
		c.recorder.RecordCacheMiss(level)
	}
}

func (c *PlanCache) warn(err error, userID string) {
	if c.logger != nil {
		c.logger.WithError(err).WithField("user_id", userID).Warn("Plan cache degraded")
	}
}

var _ analytics.PlanLookup = (*PlanCache)(nil)
