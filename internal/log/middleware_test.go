package log

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMiddlewareInjectsLogger(t *testing.T) {
	logger := New(Config{Component: ComponentHTTP})

	var got *Logger
	handler := Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got != logger {
		t.Fatal("FromContext should return the injected logger")
	}
}

func TestFromContextFallback(t *testing.T) {
	logger := FromContext(context.Background())
	if logger == nil {
		t.Fatal("FromContext must not return nil")
	}
	if logger.Component() != ComponentApp {
		t.Fatalf("fallback component = %q, want %q", logger.Component(), ComponentApp)
	}
}

func TestLoggerAttachesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Handler: slog.NewTextHandler(&buf, nil), Component: ComponentWorker})

	logger.Info("Testing output", "key", "value")

	out := buf.String()
	if !strings.Contains(out, "component=worker") {
		t.Errorf("output misses component field: %s", out)
	}
	if !strings.Contains(out, "key=value") {
		t.Errorf("output misses custom field: %s", out)
	}
}
