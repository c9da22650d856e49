package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to unmarshal log entry: %v", err)
	}
	return entry
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("debug not logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Debug("debug message")
		if buf.Len() > 0 {
			t.Error("Debug message should not be logged at Info level")
		}
	})

	t.Run("info logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Info("info message")

		entry := decodeEntry(t, &buf)
		if entry["level"] != "INFO" {
			t.Errorf("Expected level INFO, got %v", entry["level"])
		}
		if entry["msg"] != "info message" {
			t.Errorf("Expected message 'info message', got %v", entry["msg"])
		}
		if entry["service"] != ServiceName {
			t.Errorf("Expected service %s, got %v", ServiceName, entry["service"])
		}
	})

	t.Run("formatted warn", func(t *testing.T) {
		buf.Reset()
		logger.Warnf("cache %s unreachable", "redis")

		entry := decodeEntry(t, &buf)
		if entry["msg"] != "cache redis unreachable" {
			t.Errorf("Unexpected message %v", entry["msg"])
		}
	})
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf)

	logger.WithField("backend", "mongo").
		WithFields(map[string]interface{}{"events": 3}).
		WithError(errors.New("boom")).
		Debug("fetched")

	entry := decodeEntry(t, &buf)
	if entry["backend"] != "mongo" {
		t.Errorf("Expected backend mongo, got %v", entry["backend"])
	}
	if entry["events"] != float64(3) {
		t.Errorf("Expected events 3, got %v", entry["events"])
	}
	if entry["error"] != "boom" {
		t.Errorf("Expected error boom, got %v", entry["error"])
	}
}

func TestLogger_WithNilError(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})
	if logger.WithError(nil) != logger {
		t.Error("WithError(nil) should return the same logger")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{"warning", WarnLevel, false},
		{" error ", ErrorLevel, false},
		{"verbose", InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLogLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLogLevel_String(t *testing.T) {
	if DebugLevel.String() != "DEBUG" || WarnLevel.String() != "WARN" || LogLevel(42).String() != "INFO" {
		t.Error("Unexpected level names")
	}
}

func TestContextHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	ctx := WithLogger(context.Background(), logger)
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithUserID(ctx, "user-9")

	if GetRequestID(ctx) != "req-1" {
		t.Errorf("Expected request ID req-1, got %s", GetRequestID(ctx))
	}
	if GetUserID(ctx) != "user-9" {
		t.Errorf("Expected user ID user-9, got %s", GetUserID(ctx))
	}
	if GetLogger(ctx) != logger {
		t.Error("GetLogger should return the stored logger")
	}

	FromContext(ctx).Info("hello")
	entry := decodeEntry(t, &buf)
	if entry["request_id"] != "req-1" || entry["user_id"] != "user-9" {
		t.Errorf("Expected request and user IDs in entry, got %v", entry)
	}
	if _, ok := entry["trace_id"]; ok {
		t.Error("Expected no trace_id without an active span")
	}
}

func TestFromContext_WithSpan(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())

	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), NewLogger(InfoLevel, &buf))
	ctx, span := tp.Tracer("test").Start(ctx, "op")
	defer span.End()

	FromContext(ctx).Info("traced")
	entry := decodeEntry(t, &buf)
	if entry["trace_id"] != span.SpanContext().TraceID().String() {
		t.Errorf("Expected trace_id %s, got %v", span.SpanContext().TraceID(), entry["trace_id"])
	}
	if entry["span_id"] == nil {
		t.Error("Expected span_id in entry")
	}
}

func TestGetLogger_Default(t *testing.T) {
	if GetLogger(context.Background()) == nil {
		t.Error("Expected a default logger")
	}
}
