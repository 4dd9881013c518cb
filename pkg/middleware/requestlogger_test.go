package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"

	"github.com/NeFoRMaLiK-pixel/upcontacts/pkg/logger"
)

func serveRequestLogger(t *testing.T, ctx context.Context) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	handler := RequestLogger(newTestLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Info("handler log")
	}))

	req := httptest.NewRequest(http.MethodGet, "/contacts/", nil).WithContext(ctx)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	return lastLogLine(t, &buf)
}

func TestRequestLogger_StoresLoggerInContext(t *testing.T) {
	out := serveRequestLogger(t, context.Background())
	assert.Equal(t, "handler log", out["msg"])
	assert.Equal(t, "upcontacts-test", out["service"])
	assert.NotContains(t, out, "user_id")
}

func TestRequestLogger_IncludesCorrelationID(t *testing.T) {
	ctx := logger.WithCorrelationID(context.Background(), "corr-test-123")
	assert.Equal(t, "corr-test-123", serveRequestLogger(t, ctx)["correlation_id"])
}

func TestRequestLogger_IncludesTraceFields(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})

	out := serveRequestLogger(t, trace.ContextWithSpanContext(context.Background(), sc))
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", out["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", out["span_id"])
}
