package logger

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Приватный тип ключей контекста, чтобы не пересекаться с другими пакетами.
type ctxKey string

const (
	// traceIDKey - ключ trace_id для кода вне HTTP-запроса
	// (фоновые задачи, consumer'ы), где нет OpenTelemetry span'а.
	traceIDKey ctxKey = "trace_id"

	// correlationIDKey - ключ correlation_id. Связывает записи одной
	// бизнес-операции, обычно это order_id.
	correlationIDKey ctxKey = "correlation_id"
)

// WithTraceID добавляет trace_id в контекст.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceIDFromContext извлекает trace_id из контекста.
// Возвращает пустую строку, если trace_id не установлен.
func TraceIDFromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(traceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// WithCorrelationID добавляет correlation_id в контекст.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// CorrelationIDFromContext извлекает correlation_id из контекста.
// Возвращает пустую строку, если correlation_id не установлен.
func CorrelationIDFromContext(ctx context.Context) string {
	if correlationID, ok := ctx.Value(correlationIDKey).(string); ok {
		return correlationID
	}
	return ""
}

// FromContext возвращает глобальный логгер, обогащённый trace_id
// и correlation_id из контекста.
//
// Trace_id берётся из активного OpenTelemetry span'а (в HTTP-запросах его
// создаёт otelgin), для фонового кода - из значения, положенного WithTraceID.
//
// Возвращаемое значение - не указатель: для цепочки вызовов используйте Ctx
// или привяжите результат к переменной.
func FromContext(ctx context.Context) zerolog.Logger {
	l := log

	traceID := TraceIDFromContext(ctx)
	if traceID == "" {
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		}
	}
	if traceID != "" {
		l = l.With().Str("trace_id", traceID).Logger()
	}

	if correlationID := CorrelationIDFromContext(ctx); correlationID != "" {
		l = l.With().Str("correlation_id", correlationID).Logger()
	}

	return l
}

// Ctx возвращает указатель на логгер из контекста, по аналогии с zerolog.Ctx.
//
// Пример:
//
//	logger.Ctx(ctx).Info().Str("order_id", orderID).Msg("Заказ отменён")
func Ctx(ctx context.Context) *zerolog.Logger {
	l := FromContext(ctx)
	return &l
}
