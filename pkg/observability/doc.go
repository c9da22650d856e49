// Package observability provides structured logging, Prometheus metrics,
// health checks and OpenTelemetry tracing for the tally server.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("backend", "mongo").Info("Event store connected")
//
// Request-scoped loggers carry the request ID, the user an analytics request
// is about, and the active trace:
//
//	observability.FromContext(ctx).Warn("plan cache degraded")
//
// # Prometheus Metrics
//
// Metrics implements both analytics.Observer and cache.Recorder, so one value
// is handed to the service and the plan cache:
//
//	metrics := observability.NewMetrics(registry)
//	svc := analytics.NewService(store, analytics.WithObserver(metrics))
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(store, "mongo", redisClient, version)
//	observability.RegisterHealthRoutes(mux, checker)
//
// The store is required for readiness; Redis only degrades it.
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:  true,
//		Endpoint: "otel-collector:4317",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
package observability
