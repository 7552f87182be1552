package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	obscontext "github.com/hmoscout/hmoscout/internal/observability/context"
)

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.InfoLevel)
	return zap.New(core), logs
}

func fieldMap(entry observer.LoggedEntry) map[string]any {
	out := make(map[string]any, len(entry.Context))
	for _, f := range entry.Context {
		out[f.Key] = f.String
	}
	return out
}

func TestWithContextAddsCorrelationFields(t *testing.T) {
	base, logs := observedLogger()

	ctx := obscontext.WithRequestID(context.Background(), "req-123")
	ctx = obscontext.WithRunID(ctx, "run-456")

	WithContext(ctx, base).Info("hello")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := fieldMap(entries[0])
		assert.Equal(t, "req-123", fields["request_id"])
		assert.Equal(t, "run-456", fields["run_id"])
		// No active span: trace fields are present but empty.
		assert.Equal(t, "", fields["trace_id"])
		assert.Equal(t, "", fields["span_id"])
	}
}

func TestWithContextWithoutRunID(t *testing.T) {
	base, logs := observedLogger()

	WithContext(context.Background(), base).Info("hello")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := fieldMap(entries[0])
		assert.Equal(t, "", fields["request_id"])
		_, hasRunID := fields["run_id"]
		assert.False(t, hasRunID)
	}
}

func TestWithContextNilContext(t *testing.T) {
	base, logs := observedLogger()

	var ctx context.Context
	WithContext(ctx, base).Info("hello")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Empty(t, entries[0].Context)
	}
}
