package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()

	var logEntry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("failed to parse JSON log output: %v", err)
	}

	return logEntry
}

// TestContextHandler_EmptyContext verifies that no correlation fields are added
// when the context carries none.
func TestContextHandler_EmptyContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, &slog.HandlerOptions{})))

	logger.InfoContext(context.Background(), "test message", "key", "value")

	logEntry := decode(t, &buf)

	for _, field := range []string{"trace_id", "span_id", "request_id", "job_url"} {
		if _, exists := logEntry[field]; exists {
			t.Errorf("%s should not be present, got: %v", field, logEntry[field])
		}
	}

	if logEntry["msg"] != "test message" {
		t.Errorf("expected msg='test message', got: %v", logEntry["msg"])
	}

	if logEntry["key"] != "value" {
		t.Errorf("expected key='value', got: %v", logEntry["key"])
	}
}

// TestContextHandler_WithSpanContext verifies that a valid span context is copied to the record.
func TestContextHandler_WithSpanContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, &slog.HandlerOptions{})))

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	logger.InfoContext(ctx, "test message")

	logEntry := decode(t, &buf)

	if logEntry["trace_id"] != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("unexpected trace_id: %v", logEntry["trace_id"])
	}

	if logEntry["span_id"] != "00f067aa0ba902b7" {
		t.Errorf("unexpected span_id: %v", logEntry["span_id"])
	}
}

// TestContextHandler_RequestAndJob verifies request id and job key propagation.
func TestContextHandler_RequestAndJob(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, &slog.HandlerOptions{})))

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithJob(ctx, "https://ibb.co/abc123")

	logger.InfoContext(ctx, "downloading")

	logEntry := decode(t, &buf)

	if logEntry["request_id"] != "req-1" {
		t.Errorf("expected request_id='req-1', got: %v", logEntry["request_id"])
	}

	if logEntry["job_url"] != "https://ibb.co/abc123" {
		t.Errorf("expected job_url, got: %v", logEntry["job_url"])
	}
}

func TestContextHandler_Enabled(t *testing.T) {
	h := NewContextHandler(slog.NewJSONHandler(nil, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx := context.Background()

	if h.Enabled(ctx, slog.LevelInfo) {
		t.Errorf("expected Info level to be disabled when handler level is Warn")
	}

	if !h.Enabled(ctx, slog.LevelError) {
		t.Errorf("expected Error level to be enabled")
	}
}

func TestContextHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	h := NewContextHandler(slog.NewJSONHandler(&buf, &slog.HandlerOptions{}))

	withAttrs := h.WithAttrs([]slog.Attr{slog.String("component", "scheduler")})
	if _, ok := withAttrs.(*ContextHandler); !ok {
		t.Fatalf("WithAttrs should return *ContextHandler, got: %T", withAttrs)
	}

	withGroup := withAttrs.WithGroup("job")
	if _, ok := withGroup.(*ContextHandler); !ok {
		t.Fatalf("WithGroup should return *ContextHandler, got: %T", withGroup)
	}

	slog.New(withGroup).InfoContext(context.Background(), "test", "key", "value")

	output := buf.String()
	if !strings.Contains(output, "scheduler") || !strings.Contains(output, `"job":{"key":"value"}`) {
		t.Errorf("expected attrs and group in output, got: %s", output)
	}
}

func TestLoggerFromContext_Default(t *testing.T) {
	if LoggerFromContext(context.Background()) != slog.Default() {
		t.Error("expected slog.Default() when no logger is stored")
	}
}

func TestNewContextHandler_NilHandler(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("NewContextHandler with nil handler should panic")
		}
	}()

	NewContextHandler(nil)
}
