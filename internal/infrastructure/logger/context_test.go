package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func fieldMap(e observer.LoggedEntry) map[string]any {
	return e.ContextMap()
}

func TestFromContext(t *testing.T) {
	t.Run("no logger yields a no-op", func(t *testing.T) {
		assert.NotNil(t, FromContext(context.Background()))
	})

	t.Run("returns the attached logger", func(t *testing.T) {
		l, _ := observed()
		ctx := WithContext(context.Background(), l)
		assert.Same(t, l, FromContext(ctx))
	})
}

func TestWithRequestIDAndActor(t *testing.T) {
	l, logs := observed()
	ctx := WithContext(context.Background(), l)
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithActor(ctx, Actor{ID: "bank@example.com", Role: "ROLE_BLOODBANK"})

	assert.Equal(t, "req-1", GetRequestID(ctx))
	actor, ok := GetActor(ctx)
	assert.True(t, ok)
	assert.Equal(t, "ROLE_BLOODBANK", actor.Role)

	FromContext(ctx).Info("Request approved")

	fields := fieldMap(logs.All()[0])
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "bank@example.com", fields["actor"])
	assert.Equal(t, "ROLE_BLOODBANK", fields["actor_role"])
}

func TestGetters_Empty(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))
	_, ok := GetActor(ctx)
	assert.False(t, ok)
}

func TestL_TraceCorrelation(t *testing.T) {
	l, logs := observed()
	ctx := WithContext(context.Background(), l)

	L(ctx).Info("no span")
	assert.NotContains(t, fieldMap(logs.All()[0]), "trace_id")

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx = trace.ContextWithSpanContext(ctx, sc)

	L(ctx).Info("with span")
	fields := fieldMap(logs.All()[1])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", fields["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", fields["span_id"])
}
