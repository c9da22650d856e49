package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

type fakePinger struct {
	err   error
	calls int
}

func (f *fakePinger) Ping(ctx context.Context) error {
	f.calls++
	return f.err
}

func TestHealthChecker_Liveness(t *testing.T) {
	checker := NewHealthChecker(&fakePinger{err: errors.New("down")}, "mongo", nil, "test")

	req := httptest.NewRequest("GET", "/health/live", nil)
	rr := httptest.NewRecorder()

	checker.Liveness(rr, req)

	// Liveness never consults dependencies
	if status := rr.Code; status != http.StatusOK {
		t.Errorf("Liveness check returned wrong status code: got %v want %v", status, http.StatusOK)
	}
	if contentType := rr.Header().Get("Content-Type"); contentType != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %s", contentType)
	}

	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response["status"] != StatusHealthy {
		t.Errorf("Expected status %s, got %v", StatusHealthy, response["status"])
	}
}

func TestHealthChecker_Readiness(t *testing.T) {
	t.Run("healthy readiness", func(t *testing.T) {
		store := &fakePinger{}
		checker := NewHealthChecker(store, "sample", nil, "1.2.3")

		req := httptest.NewRequest("GET", "/health/ready", nil)
		rr := httptest.NewRecorder()

		checker.Readiness(rr, req)

		if status := rr.Code; status != http.StatusOK {
			t.Errorf("Readiness check returned wrong status code: got %v want %v", status, http.StatusOK)
		}
		if store.calls != 1 {
			t.Errorf("Expected store to be pinged once, got %d", store.calls)
		}

		var response HealthStatus
		if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if response.Version != "1.2.3" {
			t.Errorf("Expected version 1.2.3, got %s", response.Version)
		}
		if response.Dependencies["store"].Backend != "sample" {
			t.Errorf("Expected store backend sample, got %s", response.Dependencies["store"].Backend)
		}
	})

	t.Run("unhealthy readiness with failed store", func(t *testing.T) {
		checker := NewHealthChecker(&fakePinger{err: errors.New("connection refused")}, "mongo", nil, "")

		req := httptest.NewRequest("GET", "/health/ready", nil)
		rr := httptest.NewRecorder()

		checker.Readiness(rr, req)

		if status := rr.Code; status != http.StatusServiceUnavailable {
			t.Errorf("Expected status %v for unhealthy, got %v", http.StatusServiceUnavailable, status)
		}

		var response HealthStatus
		if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if response.Status != StatusUnhealthy {
			t.Errorf("Expected status %s, got %s", StatusUnhealthy, response.Status)
		}
		if response.Dependencies["store"].Message != "connection refused" {
			t.Errorf("Expected store error message, got %q", response.Dependencies["store"].Message)
		}
	})

	t.Run("degraded readiness with healthy store and failed redis", func(t *testing.T) {
		// Create a Redis client pointing to a non-existent server
		redisClient := redis.NewClient(&redis.Options{
			Addr:       "localhost:9999",
			MaxRetries: -1,
		})
		defer redisClient.Close()

		checker := NewHealthChecker(&fakePinger{}, "postgres", redisClient, "")

		req := httptest.NewRequest("GET", "/health/ready", nil)
		rr := httptest.NewRecorder()

		checker.Readiness(rr, req)

		// Should return 200 for degraded, not 503
		if status := rr.Code; status != http.StatusOK {
			t.Errorf("Expected status %v for degraded, got %v", http.StatusOK, status)
		}

		var response HealthStatus
		if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if response.Status != StatusDegraded {
			t.Errorf("Expected status %s, got %s", StatusDegraded, response.Status)
		}
	})
}

func TestHealthChecker_Check(t *testing.T) {
	t.Run("no dependencies", func(t *testing.T) {
		checker := NewHealthChecker(nil, "", nil, "")

		status := checker.Check(context.Background())

		if status.Status != StatusHealthy {
			t.Errorf("Expected status %s, got %s", StatusHealthy, status.Status)
		}
		if len(status.Dependencies) != 0 {
			t.Errorf("Expected 0 dependencies, got %d", len(status.Dependencies))
		}
	})

	t.Run("healthy redis", func(t *testing.T) {
		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("Failed to start miniredis: %v", err)
		}
		defer mr.Close()

		redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer redisClient.Close()

		checker := NewHealthChecker(&fakePinger{}, "mongo", redisClient, "")
		status := checker.Check(context.Background())

		if status.Status != StatusHealthy {
			t.Errorf("Expected status %s, got %s", StatusHealthy, status.Status)
		}
		if status.Dependencies["redis"].Status != StatusHealthy {
			t.Errorf("Expected redis healthy, got %s", status.Dependencies["redis"].Status)
		}
	})

	t.Run("store failure outranks redis failure", func(t *testing.T) {
		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("Failed to start miniredis: %v", err)
		}
		redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
		defer redisClient.Close()
		mr.Close()

		checker := NewHealthChecker(&fakePinger{err: errors.New("down")}, "mongo", redisClient, "")
		status := checker.Check(context.Background())

		if status.Status != StatusUnhealthy {
			t.Errorf("Expected status %s, got %s", StatusUnhealthy, status.Status)
		}
		if status.Dependencies["redis"].Status != StatusUnhealthy {
			t.Errorf("Expected redis unhealthy, got %s", status.Dependencies["redis"].Status)
		}
	})
}

func TestRegisterHealthRoutes(t *testing.T) {
	mux := http.NewServeMux()
	RegisterHealthRoutes(mux, NewHealthChecker(&fakePinger{}, "sample", nil, ""))

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		req := httptest.NewRequest("GET", path, nil)
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)

		if status := rr.Code; status != http.StatusOK {
			t.Errorf("%s returned wrong status code: got %v want %v", path, status, http.StatusOK)
		}
	}
}

func TestDependencyStatus_JSON(t *testing.T) {
	status := DependencyStatus{Status: StatusHealthy, Backend: "mongo"}

	data, err := json.Marshal(status)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if _, ok := decoded["message"]; ok {
		t.Error("Expected empty message to be omitted")
	}
	if decoded["backend"] != "mongo" {
		t.Errorf("Expected backend mongo, got %v", decoded["backend"])
	}
}
