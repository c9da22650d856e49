package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/platinummonkey/tally/pkg/analytics"
	"github.com/platinummonkey/tally/pkg/api"
	"github.com/platinummonkey/tally/pkg/cache"
	"github.com/platinummonkey/tally/pkg/config"
	"github.com/platinummonkey/tally/pkg/observability"
	"github.com/platinummonkey/tally/pkg/storage"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

// storeOpenTimeout bounds connecting to (and optionally seeding) the event store
const storeOpenTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tally: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.Observability.OTelServiceVersion == "dev" {
		cfg.Observability.OTelServiceVersion = version
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	ctx := context.Background()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		logger.WithError(err).Warn("OpenTelemetry initialization failed, continuing without tracing")
		providers = nil
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	openCtx, cancel := context.WithTimeout(ctx, storeOpenTimeout)
	store, err := storage.Open(openCtx, cfg.Store, logger)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}

	var svcOpts []analytics.Option
	if sb, ok := store.(storage.SampleBacked); ok && !sb.GeneratedAt().IsZero() {
		svcOpts = append(svcOpts, analytics.WithSampleData(sb.GeneratedAt()))
	}
	if cfg.Observability.MetricsEnabled {
		store = storage.Instrument(store, cfg.Store.Type, metrics)
		svcOpts = append(svcOpts, analytics.WithObserver(metrics))
	}
	if cfg.Server.UserEventLimit > 0 {
		svcOpts = append(svcOpts, analytics.WithUserEventLimit(cfg.Server.UserEventLimit))
	}

	planCache, redisClient := newPlanCache(cfg, store, metrics, logger)
	if planCache != nil {
		svcOpts = append(svcOpts, analytics.WithPlanResolver(planCache))
	}

	svc := analytics.NewService(store, svcOpts...)
	checker := observability.NewHealthChecker(svc, cfg.Store.Type, redisClient, version)

	apiOpts := []api.Option{
		api.WithLogger(logger),
		api.WithHealthChecker(checker),
		api.WithCORSOrigins(cfg.Server.CORSOrigins),
		api.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		api.WithVersion(version),
		api.WithTracing(providers != nil),
	}
	if cfg.Observability.MetricsEnabled {
		apiOpts = append(apiOpts, api.WithMetrics(metrics, registry))
	}
	server := api.NewServer(svc, apiOpts...)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           server,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Shutdown funcs run in reverse: cache, then store, then telemetry
	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})
	shutdown.RegisterShutdownFunc("store", func(context.Context) error {
		return store.Close()
	})
	if planCache != nil {
		shutdown.RegisterShutdownFunc("plan cache", func(context.Context) error {
			return planCache.Close()
		})
	}

	serveCtx, stopServing := context.WithCancel(ctx)
	defer stopServing()
	serveErr := make(chan error, 1)

	go func() {
		defer observability.RecoverPanic(logger, "http listener")
		logger.WithFields(map[string]interface{}{
			"addr":    httpServer.Addr,
			"store":   cfg.Store.Type,
			"version": version,
		}).Info("Starting tally server")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stopServing()
		}
	}()

	shutdownErr := shutdown.WaitForShutdown(serveCtx)

	select {
	case err := <-serveErr:
		return errors.Join(fmt.Errorf("http server: %w", err), shutdownErr)
	default:
		return shutdownErr
	}
}

// newPlanCache builds the plan cache in front of store. Redis is optional: a
// connection failure at startup falls back to the in-process tier only.
func newPlanCache(cfg *config.Config, store analytics.PlanLookup, metrics *observability.Metrics, logger *observability.Logger) (*cache.PlanCache, *redis.Client) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}

	opts := []cache.Option{cache.WithLogger(logger)}
	if cfg.Observability.MetricsEnabled {
		opts = append(opts, cache.WithRecorder(metrics))
	}

	var client *redis.Client
	if cfg.Cache.Redis.URL != "" {
		rs, err := cache.NewRedisPlanStore(cfg.Cache.Redis)
		if err != nil {
			logger.WithError(err).Warn("Redis plan cache unavailable, using in-process cache only")
		} else {
			opts = append(opts, cache.WithRedis(rs))
			client = rs.Client()
		}
	}

	return cache.NewPlanCache(store, cfg.Cache.L1, opts...), client
}
