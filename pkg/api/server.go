package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/tally/pkg/analytics"
	"github.com/platinummonkey/tally/pkg/httputil"
	"github.com/platinummonkey/tally/pkg/observability"
)

// DefaultMaxBodyBytes bounds POST bodies when no limit is configured
const DefaultMaxBodyBytes int64 = 1 << 20

// Server is the HTTP façade over the analytics service
type Server struct {
	service *analytics.Service
	router  *mux.Router
	handler http.Handler

	logger       *observability.Logger
	health       *observability.HealthChecker
	metrics      *observability.Metrics
	registry     *prometheus.Registry
	corsOrigins  []string
	maxBodyBytes int64
	version      string
	tracing      bool
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the base logger attached to every request
func WithLogger(logger *observability.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithHealthChecker mounts /health, /health/ready and /health/live
func WithHealthChecker(checker *observability.HealthChecker) Option {
	return func(s *Server) { s.health = checker }
}

// WithMetrics records HTTP metrics and serves /metrics from registry
func WithMetrics(metrics *observability.Metrics, registry *prometheus.Registry) Option {
	return func(s *Server) {
		s.metrics = metrics
		s.registry = registry
	}
}

// WithCORSOrigins sets the allowed CORS origins; "*" allows any
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithMaxBodyBytes limits request body size
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithVersion sets the version reported by the banner
func WithVersion(version string) Option {
	return func(s *Server) { s.version = version }
}

// WithTracing wraps the handler in an OpenTelemetry server span
func WithTracing(enabled bool) Option {
	return func(s *Server) { s.tracing = enabled }
}

// NewServer creates a new API server
func NewServer(service *analytics.Service, opts ...Option) *Server {
	s := &Server{
		service:      service,
		router:       mux.NewRouter(),
		corsOrigins:  []string{"*"},
		maxBodyBytes: DefaultMaxBodyBytes,
		version:      "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	s.setupRoutes()
	s.handler = s.buildHandler()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/", s.root).Methods(http.MethodGet)

	if s.health != nil {
		hm := http.NewServeMux()
		observability.RegisterHealthRoutes(hm, s.health)
		s.router.PathPrefix("/health").Handler(hm).Methods(http.MethodGet)
	}
	if s.registry != nil {
		mm := http.NewServeMux()
		observability.RegisterMetricsEndpoint(mm, s.registry)
		s.router.Handle("/metrics", mm).Methods(http.MethodGet)
	}

	h := NewAnalyticsHandlers(s.service)
	h.RegisterRoutes(s.router)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFoundError(w, "not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// buildHandler wraps the router in the request middleware chain. The request
// id is assigned first so every later layer can log it.
func (s *Server) buildHandler() http.Handler {
	chain := httputil.Chain(
		httputil.RequestIDMiddleware(s.logger),
		httputil.LoggingMiddleware,
		httputil.RecoveryMiddleware,
		httputil.CORSMiddleware(s.corsOrigins),
		httputil.MaxBytesMiddleware(s.maxBodyBytes),
	)
	var h http.Handler = s.router
	if s.metrics != nil {
		// Outside the router so 404 and 405 responses are counted too
		h = observability.HTTPMetricsMiddleware(s.metrics, s.routeTemplate)(h)
	}
	h = chain(h)
	if s.tracing {
		h = otelhttp.NewHandler(h, "tally.http",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}))
	}
	return h
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router exposes the underlying router, e.g. to list routes
func (s *Server) Router() *mux.Router {
	return s.router
}

// root handles GET /
func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, BannerResponse{
		Message: "AI SaaS Analytics API",
		Version: s.version,
	})
}

// routeTemplate labels metrics by route template to keep cardinality bounded.
// Requests no route serves, including method mismatches, share one label.
func (s *Server) routeTemplate(r *http.Request) string {
	var match mux.RouteMatch
	if s.router.Match(r, &match) && match.MatchErr == nil && match.Route != nil {
		if tpl, err := match.Route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
