package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Storage metrics
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec
	StoreErrorsTotal       *prometheus.CounterVec

	// Aggregation metrics
	AggregationDuration *prometheus.HistogramVec
	AggregationEvents   *prometheus.HistogramVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Business metrics
	EventsLoggedTotal *prometheus.CounterVec
	UsersTotal        prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tally_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tally_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tally_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		StoreOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_store_operations_total",
				Help: "Total number of event store operations",
			},
			[]string{"operation", "backend", "status"},
		),
		StoreOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tally_store_operation_duration_seconds",
				Help:    "Event store operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "backend"},
		),
		StoreErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_store_errors_total",
				Help: "Total number of event store errors",
			},
			[]string{"operation", "backend"},
		),

		AggregationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tally_aggregation_duration_seconds",
				Help:    "Time spent fetching and aggregating events",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"operation"},
		),
		AggregationEvents: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tally_aggregation_events",
				Help:    "Number of events scanned per aggregation",
				Buckets: prometheus.ExponentialBuckets(10, 4, 8),
			},
			[]string{"operation"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_cache_hits_total",
				Help: "Total number of plan cache hits",
			},
			[]string{"level"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_cache_misses_total",
				Help: "Total number of plan cache misses",
			},
			[]string{"level"},
		),

		EventsLoggedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_events_logged_total",
				Help: "Total number of usage events logged",
			},
			[]string{"feature"},
		),
		UsersTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tally_users_total",
				Help: "Number of users known to the event store",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSize,
		m.HTTPResponseSize,
		m.StoreOperationsTotal,
		m.StoreOperationDuration,
		m.StoreErrorsTotal,
		m.AggregationDuration,
		m.AggregationEvents,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.EventsLoggedTotal,
		m.UsersTotal,
	)

	return m
}

// ObserveAggregation records the duration and input size of one aggregation
func (m *Metrics) ObserveAggregation(operation string, duration time.Duration, events int) {
	m.AggregationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	m.AggregationEvents.WithLabelValues(operation).Observe(float64(events))
}

// RecordEventLogged counts one ingested usage event
func (m *Metrics) RecordEventLogged(feature string) {
	m.EventsLoggedTotal.WithLabelValues(feature).Inc()
}

// RecordUserCount sets the registered user gauge
func (m *Metrics) RecordUserCount(n int64) {
	m.UsersTotal.Set(float64(n))
}

// RecordCacheHit counts a plan cache hit at the given level
func (m *Metrics) RecordCacheHit(level string) {
	m.CacheHitsTotal.WithLabelValues(level).Inc()
}

// RecordCacheMiss counts a plan cache miss at the given level
func (m *Metrics) RecordCacheMiss(level string) {
	m.CacheMissesTotal.WithLabelValues(level).Inc()
}

// RecordStoreOperation records one event store call
func (m *Metrics) RecordStoreOperation(operation, backend string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		m.StoreErrorsTotal.WithLabelValues(operation, backend).Inc()
	}
	m.StoreOperationsTotal.WithLabelValues(operation, backend, status).Inc()
	m.StoreOperationDuration.WithLabelValues(operation, backend).Observe(duration.Seconds())
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// pathLabel maps a request to a bounded label; nil uses the raw URL path.
func HTTPMetricsMiddleware(metrics *Metrics, pathLabel func(*http.Request) string) func(http.Handler) http.Handler {
	if pathLabel == nil {
		pathLabel = func(r *http.Request) string { return r.URL.Path }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			// Route templates are only known after routing
			path := pathLabel(r)
			if r.ContentLength > 0 {
				metrics.HTTPRequestSize.WithLabelValues(r.Method, path).Observe(float64(r.ContentLength))
			}

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, path).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
