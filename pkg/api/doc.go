// Package api provides the HTTP REST API server for tally usage analytics.
//
// # Overview
//
// The server is a thin façade over analytics.Service. Handlers parse path and
// query parameters, call the service and encode its result as JSON; all
// aggregation happens in the service.
//
// # Key Types
//
// Server is built once at startup and used as the http.Handler:
//
//	server := api.NewServer(service,
//		api.WithLogger(logger),
//		api.WithHealthChecker(checker),
//		api.WithMetrics(metrics, registry),
//		api.WithCORSOrigins(cfg.Server.CORSOrigins),
//	)
//	http.ListenAndServe(":8000", server)
//
// # API Endpoints
//
//	GET  /                                          service banner
//	GET  /health, /health/ready, /health/live       health checks
//	GET  /metrics                                   Prometheus exposition
//	GET  /api/analytics                             global metrics
//	GET  /api/analytics/feature/{feature_name}      feature metrics, {} when unknown
//	GET  /api/analytics/usage/metrics?days=N        usage trend (default 30 days)
//	GET  /api/analytics/usage/features?days=N       usage by feature
//	GET  /api/analytics/usage/peak-hours?days=N     busiest hours of the day
//	GET  /api/analytics/user/analytics/{user_id}    one user's recent activity
//	POST /api/analytics/usage                       record a usage event (201)
//
// # Errors
//
// Errors are JSON objects of the form {"error": "message"}. A malformed days
// parameter, a malformed body or an incomplete usage event is 400; any
// service failure, including an unreachable event store, is 500.
//
// # Middleware
//
// Every request passes through request ID assignment, access logging, panic
// recovery, CORS and a body size limit. Matched routes are additionally
// counted in Prometheus under their route template, and WithTracing wraps the
// whole handler in an OpenTelemetry server span.
package api
