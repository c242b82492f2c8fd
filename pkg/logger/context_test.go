// Package logger содержит unit тесты обогащения логгера из контекста.
package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

// captureInit перенастраивает глобальный логгер на буфер
// и возвращает его исходную конфигурацию после теста.
func captureInit(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	Init(Config{Level: "debug", Output: &buf})
	t.Cleanup(func() { Init(Config{Level: "info"}) })
	return &buf
}

// TestFromContext_OtelTraceID проверяет, что trace_id активного
// OpenTelemetry span'а попадает в поля записи лога.
func TestFromContext_OtelTraceID(t *testing.T) {
	buf := captureInit(t)

	traceID := trace.TraceID{0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18, 0x19}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     trace.SpanID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	Ctx(ctx).Info().Msg("обработка запроса")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, traceID.String(), entry["trace_id"])
}

// TestFromContext_ExplicitIDs проверяет значения, положенные в контекст
// напрямую: фоновый код без span'а и correlation_id бизнес-операции.
func TestFromContext_ExplicitIDs(t *testing.T) {
	buf := captureInit(t)

	ctx := WithTraceID(context.Background(), "trace-abc")
	ctx = WithCorrelationID(ctx, "order-789")

	Ctx(ctx).Info().Msg("фоновая задача")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "trace-abc", entry["trace_id"])
	assert.Equal(t, "order-789", entry["correlation_id"])
}

// TestFromContext_Empty проверяет, что без идентификаторов в контексте
// дополнительные поля не добавляются.
func TestFromContext_Empty(t *testing.T) {
	buf := captureInit(t)

	Ctx(context.Background()).Info().Msg("без контекста")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotContains(t, entry, "trace_id")
	assert.NotContains(t, entry, "correlation_id")
}
