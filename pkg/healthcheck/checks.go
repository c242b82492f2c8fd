// Package healthcheck предоставляет проверки готовности зависимостей
// backend'а (MySQL, Redis, Kafka) для endpoint'а /readyz.
package healthcheck

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"gorm.io/gorm"
)

// Check - одна проверка готовности зависимости.
type Check func(ctx context.Context) error

// CheckMySQL проверяет доступность MySQL через пул соединений GORM.
func CheckMySQL(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("mysql: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("mysql ping: %w", err)
	}
	return nil
}

// CheckRedis проверяет доступность Redis.
func CheckRedis(ctx context.Context, rdb *redis.Client) error {
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// CheckKafka проверяет доступность хотя бы одного брокера Kafka.
// Недоступный Kafka не блокирует приём заказов (outbox накапливает события),
// поэтому в readiness его включают осознанно.
func CheckKafka(ctx context.Context, brokers []string) error {
	var lastErr error
	for _, addr := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		_ = conn.Close()
		return nil
	}
	return fmt.Errorf("kafka: брокеры недоступны: %w", lastErr)
}

// Composite объединяет несколько проверок в одну.
// Возвращает первую ошибку или nil, если все проверки пройдены.
func Composite(checks ...Check) Check {
	return func(ctx context.Context) error {
		for _, check := range checks {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}
