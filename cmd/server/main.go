// Shop Backend — монолитный бэкенд интернет-магазина одежды.
// HTTP API для оформления заказов, управление платежами через внешние
// шлюзы (ZaloPay, MoMo) и фоновая сверка платежей.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/shop-backend/internal/checkout"
	"example.com/shop-backend/internal/coupon"
	"example.com/shop-backend/internal/handler"
	"example.com/shop-backend/internal/inventory"
	"example.com/shop-backend/internal/middleware"
	orderrepo "example.com/shop-backend/internal/order/repository"
	orderservice "example.com/shop-backend/internal/order/service"
	"example.com/shop-backend/internal/payment/gateway"
	paymentrepo "example.com/shop-backend/internal/payment/repository"
	paymentservice "example.com/shop-backend/internal/payment/service"
	paymentsync "example.com/shop-backend/internal/payment/sync"
	"example.com/shop-backend/pkg/config"
	"example.com/shop-backend/pkg/db"
	"example.com/shop-backend/pkg/healthcheck"
	"example.com/shop-backend/pkg/jwt"
	"example.com/shop-backend/pkg/kafka"
	"example.com/shop-backend/pkg/logger"
	"example.com/shop-backend/pkg/metrics"
	"example.com/shop-backend/pkg/outbox"
	"example.com/shop-backend/pkg/scheduler"
	"example.com/shop-backend/pkg/tracing"
)

// paymentCancellerProxy разрывает цикл конструирования: сервис заказов
// требует canceller платежей, а сервис платежей — updater заказов.
// Прокси заполняется после создания обоих сервисов.
type paymentCancellerProxy struct {
	payments paymentservice.PaymentService
}

func (p *paymentCancellerProxy) CancelActiveByOrder(ctx context.Context, orderID, reason string) error {
	return p.payments.CancelActiveByOrder(ctx, orderID, reason)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{
		Level:  cfg.App.LogLevel,
		Pretty: cfg.App.LogPretty,
	})
	log := logger.With().Str("service", cfg.App.Name).Logger()

	log.Info().
		Str("env", cfg.App.Env).
		Int("port", cfg.HTTP.Port).
		Msg("Запуск Shop Backend")

	// Tracing
	shutdownTracer, err := tracing.InitTracer(tracing.Config{
		ServiceName:    cfg.App.Name,
		JaegerEndpoint: cfg.Jaeger.OTLPEndpoint(),
		Enabled:        cfg.Jaeger.Enabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка инициализации tracing")
	}

	// MySQL
	gormDB, err := db.ConnectMySQL(cfg.MySQL, cfg.IsDevelopment())
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка подключения к MySQL")
	}
	log.Info().Msg("Подключение к MySQL установлено")

	// Redis — дедупликация callback'ов и rate limiting
	redisClient := db.ConnectRedis(cfg.Redis)

	// Kafka producer для Transactional Outbox.
	// Недоступный брокер не блокирует старт: outbox накопит события.
	producer, err := kafka.NewProducer(kafka.Config{Brokers: cfg.Kafka.Brokers})
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка создания Kafka producer")
	}
	if err := healthcheck.CheckKafka(context.Background(), cfg.Kafka.Brokers); err != nil {
		log.Warn().Err(err).Strs("brokers", cfg.Kafka.Brokers).Msg("Kafka недоступна, события будут копиться в outbox")
	}

	// Платёжные шлюзы
	registry := gateway.NewRegistry(
		gateway.NewCOD(),
		gateway.NewBanking(),
		gateway.NewZaloPay(cfg.ZaloPay),
		gateway.NewMoMo(cfg.MoMo),
	)

	// Репозитории и сервисы
	orderRepository := orderrepo.NewOrderRepository(gormDB)
	paymentRepository := paymentrepo.NewPaymentRepository(gormDB)
	stock := inventory.NewAdjuster(gormDB)
	coupons := coupon.NewValidator(gormDB)
	outboxRepo := outbox.NewOutboxRepository(gormDB, "order")

	cancellerProxy := &paymentCancellerProxy{}
	orderSvc := orderservice.NewOrderService(orderRepository, stock, cancellerProxy)
	paymentSvc := paymentservice.NewPaymentService(paymentRepository, registry, orderSvc, redisClient)
	cancellerProxy.payments = paymentSvc

	checkoutSvc := checkout.NewService(stock, coupons, orderRepository, paymentSvc, outboxRepo, cfg.Kafka.OrderEventsTopic)

	// Фоновые процессы: outbox worker и сверка платежей
	rootCtx, stopBackground := context.WithCancel(context.Background())

	outboxWorker := outbox.NewOutboxWorker(outboxRepo, producer, outbox.DefaultWorkerConfig(), "order-events")
	go outboxWorker.Run(rootCtx)

	engine := paymentsync.NewEngine(paymentRepository, registry, paymentSvc, cfg.Sync)
	sched := scheduler.New()
	for _, job := range engine.Jobs() {
		if err := sched.Register(job); err != nil {
			log.Fatal().Err(err).Str("job", job.Name).Msg("Ошибка регистрации задачи сверки")
		}
	}
	sched.StartAll(rootCtx)

	// JWT и HTTP слой
	jwtManager, err := jwt.NewManager(jwt.Config{
		Secret: cfg.JWT.Secret,
		Issuer: cfg.JWT.Issuer,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Ошибка инициализации JWT")
	}

	readiness := healthcheck.Composite(
		func(ctx context.Context) error { return healthcheck.CheckMySQL(ctx, gormDB) },
		func(ctx context.Context) error { return healthcheck.CheckRedis(ctx, redisClient) },
	)

	router := handler.NewRouter(handler.RouterConfig{
		Checkout:       handler.NewCheckoutHandler(checkoutSvc),
		Orders:         handler.NewOrderHandler(orderSvc),
		Payments:       handler.NewPaymentHandler(paymentSvc),
		Sync:           handler.NewSyncHandler(engine, sched),
		AuthMW:         middleware.NewAuthMiddleware(jwtManager),
		RateLimitMW:    middleware.NewRateLimitMiddleware(redisClient, cfg.HTTP.RateLimit, cfg.HTTP.RateLimitWindow),
		ReadinessCheck: handler.ReadinessChecker(readiness),
		Debug:          cfg.IsDevelopment(),
	})

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router.Engine(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("HTTP сервер запущен")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Ошибка HTTP сервера")
		}
	}()

	// Отдельный сервер метрик Prometheus
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Addr(), cfg.App.Name,
			metrics.WithReadinessCheck(metrics.ReadinessChecker(readiness)))
		go func() {
			if err := metricsServer.Start(); err != nil {
				log.Error().Err(err).Msg("Ошибка Metrics сервера")
			}
		}()
	}

	// Ожидаем сигнал завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Получен сигнал завершения, останавливаем сервер...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Ошибка остановки HTTP сервера")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Ошибка остановки Metrics сервера")
		}
	}

	// Останавливаем фоновые процессы
	sched.Shutdown()
	stopBackground()

	if err := producer.Close(); err != nil {
		log.Error().Err(err).Msg("Ошибка закрытия Kafka producer")
	}
	if err := redisClient.Close(); err != nil {
		log.Error().Err(err).Msg("Ошибка закрытия Redis")
	}
	if sqlDB, err := gormDB.DB(); err == nil && sqlDB != nil {
		if err := sqlDB.Close(); err != nil {
			log.Error().Err(err).Msg("Ошибка закрытия MySQL")
		}
	}

	tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer tracerCancel()
	if err := shutdownTracer(tracerCtx); err != nil {
		log.Error().Err(err).Msg("Ошибка остановки tracing")
	}

	log.Info().Msg("Shop Backend остановлен")
}
