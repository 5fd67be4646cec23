package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"runtime/pprof"
	"strings"
	"testing"

	"github.com/bloodchain/backend/internal/infrastructure/metrics"
	"github.com/bloodchain/backend/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, method, path string, header http.Header) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	r.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/api/v1/ledger/verify", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	t.Run("generated", func(t *testing.T) {
		w := serve(r, http.MethodGet, "/api/v1/ledger/verify", nil)
		id := w.Header().Get(RequestIDHeader)
		assert.Len(t, id, 36)
		assert.Equal(t, id, w.Body.String())
	})

	t.Run("propagated", func(t *testing.T) {
		w := serve(r, http.MethodGet, "/api/v1/ledger/verify", http.Header{RequestIDHeader: {"abc-123"}})
		assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
	})

	t.Run("oversized replaced", func(t *testing.T) {
		long := strings.Repeat("x", MaxRequestIDLength+1)
		w := serve(r, http.MethodGet, "/api/v1/ledger/verify", http.Header{RequestIDHeader: {long}})
		assert.NotEqual(t, long, w.Header().Get(RequestIDHeader))
	})
}

func TestMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	r := gin.New()
	r.Use(Metrics(m))
	r.GET("/api/v1/units/:unitNumber/provenance", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	serve(r, http.MethodGet, "/api/v1/units/BU-2026-000001/provenance", nil)
	serve(r, http.MethodGet, "/nope", nil)

	assert.Equal(t, 2, testutil.CollectAndCount(m.HTTPRequestDuration))

	assert.NotPanics(t, func() {
		r := gin.New()
		r.Use(Metrics(nil))
		r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
		serve(r, http.MethodGet, "/health", nil)
	})
}

func TestTracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		_ = tp.Shutdown(context.Background())
	})

	r := gin.New()
	r.Use(RequestID(), Tracing("bloodchain-test"), SpanEnricher())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/v1/ledger/verify", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	serve(r, http.MethodGet, "/health", nil)
	assert.Empty(t, sr.Ended(), "health checks are not traced")

	serve(r, http.MethodGet, "/api/v1/ledger/verify", http.Header{RequestIDHeader: {"req-7"}})
	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)

	var found bool
	for _, a := range spans[0].Attributes() {
		if a.Key == "request_id" {
			found = a.Value.AsString() == "req-7"
		}
	}
	assert.True(t, found)
}

func TestProfiling(t *testing.T) {
	r := gin.New()
	r.Use(Profiling())
	var route, healthRoute string
	r.GET("/api/v1/inventory/summary", func(c *gin.Context) {
		route, _ = pprof.Label(c.Request.Context(), telemetry.ProfilingLabelRoute)
	})
	r.GET("/metrics", func(c *gin.Context) {
		healthRoute, _ = pprof.Label(c.Request.Context(), telemetry.ProfilingLabelRoute)
	})

	serve(r, http.MethodGet, "/api/v1/inventory/summary", nil)
	serve(r, http.MethodGet, "/metrics", nil)

	assert.Equal(t, "/api/v1/inventory/summary", route)
	assert.Empty(t, healthRoute)
}
