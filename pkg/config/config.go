// Package config предоставляет загрузку конфигурации из переменных окружения.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config содержит полную конфигурацию приложения.
type Config struct {
	App     AppConfig
	HTTP    HTTPConfig
	MySQL   MySQLConfig
	Redis   RedisConfig
	Kafka   KafkaConfig
	JWT     JWTConfig
	Jaeger  JaegerConfig
	Metrics MetricsConfig
	ZaloPay ZaloPayConfig
	MoMo    MoMoConfig
	Sync    SyncConfig
}

// AppConfig содержит общие настройки приложения.
type AppConfig struct {
	Name      string `env:"APP_NAME" envDefault:"shop-backend"`
	Env       string `env:"APP_ENV" envDefault:"development"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// HTTPConfig содержит настройки основного HTTP сервера.
type HTTPConfig struct {
	Port            int           `env:"HTTP_PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	RateLimit       int           `env:"HTTP_RATE_LIMIT" envDefault:"100"`
	RateLimitWindow time.Duration `env:"HTTP_RATE_LIMIT_WINDOW" envDefault:"1m"`
}

// Addr возвращает адрес HTTP сервера.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// MySQLConfig содержит настройки подключения к MySQL.
type MySQLConfig struct {
	Host            string        `env:"MYSQL_HOST" envDefault:"localhost"`
	Port            int           `env:"MYSQL_PORT" envDefault:"3306"`
	User            string        `env:"MYSQL_USER" envDefault:"root"`
	Password        string        `env:"MYSQL_PASSWORD" envDefault:"root"`
	Database        string        `env:"MYSQL_DATABASE" envDefault:"shop"`
	MaxOpenConns    int           `env:"MYSQL_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"MYSQL_MAX_IDLE_CONNS" envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"MYSQL_CONN_MAX_LIFETIME" envDefault:"5m"`
}

// DSN возвращает строку подключения к MySQL.
func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// RedisConfig содержит настройки подключения к Redis.
type RedisConfig struct {
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// Addr возвращает адрес Redis сервера.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KafkaConfig содержит настройки подключения к Kafka.
// Kafka используется только для исходящих событий заказов (outbox).
type KafkaConfig struct {
	Brokers          []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	OrderEventsTopic string   `env:"KAFKA_ORDER_EVENTS_TOPIC" envDefault:"orders.events"`
}

// JWTConfig содержит настройки валидации JWT токенов (HS256).
// Выдача токенов — зона ответственности внешнего сервиса аутентификации,
// здесь токены только проверяются.
type JWTConfig struct {
	Secret string `env:"JWT_SECRET,required"`                  // Общий секрет HS256
	Issuer string `env:"JWT_ISSUER" envDefault:"shop-backend"` // Ожидаемый издатель
}

// JaegerConfig содержит настройки трассировки Jaeger.
type JaegerConfig struct {
	Enabled  bool   `env:"JAEGER_ENABLED" envDefault:"false"`
	Host     string `env:"JAEGER_HOST" envDefault:"localhost"`
	OTLPPort int    `env:"JAEGER_OTLP_PORT" envDefault:"4317"` // OTLP gRPC порт
}

// OTLPEndpoint возвращает OTLP gRPC endpoint для Jaeger.
func (c JaegerConfig) OTLPEndpoint() string {
	return fmt.Sprintf("%s:%d", c.Host, c.OTLPPort)
}

// MetricsConfig содержит настройки Prometheus метрик.
type MetricsConfig struct {
	Enabled bool `env:"METRICS_ENABLED" envDefault:"true"` // Включить metrics endpoint
	Port    int  `env:"METRICS_PORT" envDefault:"9090"`    // Порт для /metrics
}

// Addr возвращает адрес для Metrics HTTP сервера.
func (c MetricsConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// ZaloPayConfig содержит параметры интеграции с ZaloPay.
// Key1 подписывает исходящие запросы, Key2 проверяет подписи callback'ов.
type ZaloPayConfig struct {
	AppID       string        `env:"ZALOPAY_APP_ID" envDefault:"2553"`
	Key1        string        `env:"ZALOPAY_KEY1" envDefault:""`
	Key2        string        `env:"ZALOPAY_KEY2" envDefault:""`
	Endpoint    string        `env:"ZALOPAY_ENDPOINT" envDefault:"https://sb-openapi.zalopay.vn/v2"`
	CallbackURL string        `env:"ZALOPAY_CALLBACK_URL" envDefault:""`
	Timeout     time.Duration `env:"ZALOPAY_HTTP_TIMEOUT" envDefault:"10s"`
	// ExpireAfter — срок, после которого неоплаченный платёж отменяется sweep'ом.
	ExpireAfter time.Duration `env:"ZALOPAY_EXPIRE_AFTER" envDefault:"15m"`
}

// MoMoConfig содержит параметры интеграции с MoMo.
type MoMoConfig struct {
	PartnerCode string        `env:"MOMO_PARTNER_CODE" envDefault:"MOMO"`
	AccessKey   string        `env:"MOMO_ACCESS_KEY" envDefault:""`
	SecretKey   string        `env:"MOMO_SECRET_KEY" envDefault:""`
	Endpoint    string        `env:"MOMO_ENDPOINT" envDefault:"https://test-payment.momo.vn/v2/gateway/api"`
	RedirectURL string        `env:"MOMO_REDIRECT_URL" envDefault:""`
	IPNURL      string        `env:"MOMO_IPN_URL" envDefault:""`
	Timeout     time.Duration `env:"MOMO_HTTP_TIMEOUT" envDefault:"10s"`
	ExpireAfter time.Duration `env:"MOMO_EXPIRE_AFTER" envDefault:"15m"`
}

// SyncConfig содержит настройки движка сверки платежей.
type SyncConfig struct {
	// PendingInterval — периодичность сверки зависших платежей.
	PendingInterval time.Duration `env:"SYNC_PENDING_INTERVAL" envDefault:"5m"`
	// ExpiryInterval — периодичность sweep'а просроченных платежей.
	ExpiryInterval time.Duration `env:"SYNC_EXPIRY_INTERVAL" envDefault:"30m"`
	// ReconcileInterval — периодичность полной сверки за сутки.
	ReconcileInterval time.Duration `env:"SYNC_RECONCILE_INTERVAL" envDefault:"24h"`
	// HealthInterval — периодичность health check'а платежей.
	HealthInterval time.Duration `env:"SYNC_HEALTH_INTERVAL" envDefault:"1h"`
	// GracePeriod — возраст платежа, после которого он попадает в сверку.
	GracePeriod time.Duration `env:"SYNC_GRACE_PERIOD" envDefault:"5m"`
	// BatchSize — максимум платежей за один проход сверки.
	BatchSize int `env:"SYNC_BATCH_SIZE" envDefault:"50"`
	// QueryDelay — пауза между запросами к шлюзу (бережём rate limit провайдера).
	QueryDelay time.Duration `env:"SYNC_QUERY_DELAY" envDefault:"200ms"`
	// StuckThreshold — порог зависших платежей для статуса warning.
	StuckThreshold int `env:"SYNC_STUCK_THRESHOLD" envDefault:"10"`
}

// Load загружает конфигурацию из переменных окружения.
// Опционально загружает .env файл, если он существует.
func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файл не найден)
	_ = godotenv.Load()

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("ошибка парсинга конфигурации: %w", err)
	}

	return cfg, nil
}

// LoadFromFile загружает конфигурацию из указанного .env файла.
func LoadFromFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil {
		return nil, fmt.Errorf("ошибка загрузки .env файла %s: %w", path, err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("ошибка парсинга конфигурации: %w", err)
	}

	return cfg, nil
}

// IsDevelopment возвращает true, если приложение запущено в development режиме.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction возвращает true, если приложение запущено в production режиме.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
