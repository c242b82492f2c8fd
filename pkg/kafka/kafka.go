// Package kafka предоставляет обёртку над kafka-go для публикации событий.
// Backend публикует события уведомлений (подтверждение заказа и т.п.) через
// transactional outbox; потребляет их внешний Notification Service.
package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/shop-backend/pkg/logger"
)

// Ключи для headers сообщений Kafka.
const (
	// HeaderTraceID - идентификатор трассировки для distributed tracing.
	HeaderTraceID = "trace_id"

	// HeaderCorrelationID - идентификатор корреляции (обычно order_id).
	HeaderCorrelationID = "correlation_id"

	// HeaderTimestamp - временная метка создания сообщения.
	HeaderTimestamp = "timestamp"

	// HeaderEventType - тип события (order.created, order.confirmed и т.п.).
	HeaderEventType = "event_type"
)

// Config содержит настройки для подключения к Kafka.
type Config struct {
	// Brokers - список адресов брокеров Kafka.
	Brokers []string
}

// Message представляет сообщение Kafka с метаданными.
type Message struct {
	// Key - ключ сообщения для партиционирования (order_id).
	Key []byte

	// Value - тело сообщения (payload).
	Value []byte

	// Topic - топик сообщения.
	Topic string

	// Headers - заголовки сообщения.
	Headers map[string]string
}

// toKafkaMessage конвертирует Message в kafka.Message.
func (m *Message) toKafkaMessage() kafka.Message {
	headers := make([]kafka.Header, 0, len(m.Headers))
	for k, v := range m.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	return kafka.Message{
		Topic:   m.Topic,
		Key:     m.Key,
		Value:   m.Value,
		Headers: headers,
		Time:    time.Now(),
	}
}

// =============================================================================
// Trace/Correlation ID из контекста
// =============================================================================

// TraceIDFromContext извлекает trace_id для headers сообщения.
// Делегирует в pkg/logger, чтобы producer и логи видели одни и те же значения.
func TraceIDFromContext(ctx context.Context) string {
	return logger.TraceIDFromContext(ctx)
}

// CorrelationIDFromContext извлекает correlation_id для headers сообщения.
func CorrelationIDFromContext(ctx context.Context) string {
	return logger.CorrelationIDFromContext(ctx)
}
