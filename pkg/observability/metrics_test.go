package observability

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	t.Run("metrics are registered with registry", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		metrics.HTTPRequestsTotal.WithLabelValues("GET", "/test", "200").Add(0)
		metrics.StoreOperationsTotal.WithLabelValues("fetch_events", "memory", "success").Add(0)
		metrics.AggregationDuration.WithLabelValues("global").Observe(0)
		metrics.CacheHitsTotal.WithLabelValues("l1").Add(0)
		metrics.EventsLoggedTotal.WithLabelValues("chat").Add(0)
		metrics.UsersTotal.Set(0)

		families, err := registry.Gather()
		if err != nil {
			t.Fatalf("Failed to gather metrics: %v", err)
		}

		metricNames := make(map[string]bool)
		for _, family := range families {
			metricNames[family.GetName()] = true
		}

		expectedMetrics := []string{
			"tally_http_requests_total",
			"tally_store_operations_total",
			"tally_aggregation_duration_seconds",
			"tally_cache_hits_total",
			"tally_events_logged_total",
			"tally_users_total",
		}
		for _, name := range expectedMetrics {
			if !metricNames[name] {
				t.Errorf("Expected metric %s not found in registry", name)
			}
		}
	})

	t.Run("panics on duplicate registration", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		NewMetrics(registry)

		defer func() {
			if r := recover(); r == nil {
				t.Error("Expected panic on duplicate registration, but didn't panic")
			}
		}()

		NewMetrics(registry)
	})
}

func TestMetrics_AggregationObserver(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.ObserveAggregation("usage_trend", 20*time.Millisecond, 1500)
	metrics.ObserveAggregation("global", 5*time.Millisecond, 40)

	if count := testutil.CollectAndCount(metrics.AggregationDuration); count != 2 {
		t.Errorf("Expected 2 duration series, got %d", count)
	}
	if count := testutil.CollectAndCount(metrics.AggregationEvents); count != 2 {
		t.Errorf("Expected 2 event series, got %d", count)
	}
}

func TestMetrics_RecordUserCount(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.RecordUserCount(1245)
	if got := testutil.ToFloat64(metrics.UsersTotal); got != 1245 {
		t.Errorf("UsersTotal = %v, want 1245", got)
	}
	metrics.RecordUserCount(3)
	if got := testutil.ToFloat64(metrics.UsersTotal); got != 3 {
		t.Errorf("UsersTotal = %v, want 3", got)
	}
}

func TestMetrics_RecordEventLogged(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.RecordEventLogged("image_generation")
	metrics.RecordEventLogged("image_generation")
	metrics.RecordEventLogged("chat")

	expected := `
# HELP tally_events_logged_total Total number of usage events logged
# TYPE tally_events_logged_total counter
tally_events_logged_total{feature="chat"} 1
tally_events_logged_total{feature="image_generation"} 2
`
	if err := testutil.CollectAndCompare(metrics.EventsLoggedTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}
}

func TestMetrics_CacheRecorder(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.RecordCacheHit("l1")
	metrics.RecordCacheMiss("l1")
	metrics.RecordCacheHit("l2")

	expectedHits := `
# HELP tally_cache_hits_total Total number of plan cache hits
# TYPE tally_cache_hits_total counter
tally_cache_hits_total{level="l1"} 1
tally_cache_hits_total{level="l2"} 1
`
	if err := testutil.CollectAndCompare(metrics.CacheHitsTotal, strings.NewReader(expectedHits)); err != nil {
		t.Errorf("Unexpected hits: %v", err)
	}

	expectedMisses := `
# HELP tally_cache_misses_total Total number of plan cache misses
# TYPE tally_cache_misses_total counter
tally_cache_misses_total{level="l1"} 1
`
	if err := testutil.CollectAndCompare(metrics.CacheMissesTotal, strings.NewReader(expectedMisses)); err != nil {
		t.Errorf("Unexpected misses: %v", err)
	}
}

func TestMetrics_RecordStoreOperation(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.RecordStoreOperation("fetch_events", "mongo", time.Millisecond, nil)
	metrics.RecordStoreOperation("insert_event", "mongo", time.Millisecond, errors.New("boom"))

	expected := `
# HELP tally_store_operations_total Total number of event store operations
# TYPE tally_store_operations_total counter
tally_store_operations_total{backend="mongo",operation="fetch_events",status="success"} 1
tally_store_operations_total{backend="mongo",operation="insert_event",status="error"} 1
`
	if err := testutil.CollectAndCompare(metrics.StoreOperationsTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}

	if v := testutil.ToFloat64(metrics.StoreErrorsTotal.WithLabelValues("insert_event", "mongo")); v != 1 {
		t.Errorf("Expected 1 store error, got %v", v)
	}
}

func TestResponseWriter(t *testing.T) {
	t.Run("captures status code", func(t *testing.T) {
		rec := httptest.NewRecorder()
		rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

		rw.WriteHeader(http.StatusNotFound)

		if rw.statusCode != http.StatusNotFound {
			t.Errorf("Expected status code %d, got %d", http.StatusNotFound, rw.statusCode)
		}
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected recorder status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})

	t.Run("accumulates bytes across multiple writes", func(t *testing.T) {
		rec := httptest.NewRecorder()
		rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

		rw.Write([]byte("Hello"))
		rw.Write([]byte(", "))
		rw.Write([]byte("World!"))

		if rw.bytesWritten != 13 {
			t.Errorf("Expected 13 bytes written, got %d", rw.bytesWritten)
		}
	})
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	t.Run("records HTTP metrics", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})

		wrappedHandler := HTTPMetricsMiddleware(metrics, nil)(handler)

		req := httptest.NewRequest("GET", "/test", nil)
		rec := httptest.NewRecorder()
		wrappedHandler.ServeHTTP(rec, req)

		expected := `
# HELP tally_http_requests_total Total number of HTTP requests
# TYPE tally_http_requests_total counter
tally_http_requests_total{method="GET",path="/test",status="200"} 1
`
		if err := testutil.CollectAndCompare(metrics.HTTPRequestsTotal, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected counter value: %v", err)
		}

		if count := testutil.CollectAndCount(metrics.HTTPRequestDuration); count != 1 {
			t.Errorf("Expected 1 duration metric, got %d", count)
		}
		if count := testutil.CollectAndCount(metrics.HTTPResponseSize); count != 1 {
			t.Errorf("Expected 1 response size metric, got %d", count)
		}
	})

	t.Run("uses the path label function", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		label := func(r *http.Request) string { return "/api/analytics/user/{user_id}" }
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		wrappedHandler := HTTPMetricsMiddleware(metrics, label)(handler)

		for _, path := range []string{"/api/analytics/user/a", "/api/analytics/user/b"} {
			wrappedHandler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, nil))
		}

		expected := `
# HELP tally_http_requests_total Total number of HTTP requests
# TYPE tally_http_requests_total counter
tally_http_requests_total{method="GET",path="/api/analytics/user/{user_id}",status="404"} 2
`
		if err := testutil.CollectAndCompare(metrics.HTTPRequestsTotal, strings.NewReader(expected)); err != nil {
			t.Errorf("Unexpected counter value: %v", err)
		}
	})

	t.Run("records request size with content length", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		})
		wrappedHandler := HTTPMetricsMiddleware(metrics, nil)(handler)

		body := strings.NewReader(`{"user_id":"u1","feature":"chat"}`)
		req := httptest.NewRequest("POST", "/api/analytics/log", body)
		req.ContentLength = int64(body.Len())
		wrappedHandler.ServeHTTP(httptest.NewRecorder(), req)

		if count := testutil.CollectAndCount(metrics.HTTPRequestSize); count != 1 {
			t.Errorf("Expected 1 request size metric, got %d", count)
		}
	})

	t.Run("skips request size when content length is 0", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
		wrappedHandler := HTTPMetricsMiddleware(metrics, nil)(handler)
		wrappedHandler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

		if count := testutil.CollectAndCount(metrics.HTTPRequestSize); count != 0 {
			t.Errorf("Expected 0 request size metrics, got %d", count)
		}
	})
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.RecordEventLogged("chat")

	mux := http.NewServeMux()
	RegisterMetricsEndpoint(mux, registry)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `tally_events_logged_total{feature="chat"} 1`) {
		t.Errorf("Expected events counter in exposition, got:\n%s", body)
	}
}
