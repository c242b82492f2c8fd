package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"example.com/shop-backend/internal/middleware"
	"example.com/shop-backend/pkg/metrics"
)

// ReadinessChecker — функция проверки готовности сервиса.
type ReadinessChecker func(ctx context.Context) error

// Router — HTTP роутер приложения.
type Router struct {
	engine         *gin.Engine
	checkout       *CheckoutHandler
	orders         *OrderHandler
	payments       *PaymentHandler
	sync           *SyncHandler
	authMW         *middleware.AuthMiddleware
	rateLimitMW    *middleware.RateLimitMiddleware
	readinessCheck ReadinessChecker
}

// RouterConfig — параметры для создания роутера.
type RouterConfig struct {
	Checkout       *CheckoutHandler
	Orders         *OrderHandler
	Payments       *PaymentHandler
	Sync           *SyncHandler
	AuthMW         *middleware.AuthMiddleware
	RateLimitMW    *middleware.RateLimitMiddleware
	ReadinessCheck ReadinessChecker // опциональная проверка готовности для /readyz
	Debug          bool             // Режим отладки Gin
}

// NewRouter создаёт и настраивает HTTP роутер.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	engine.Use(gin.Recovery())

	// CORS — обработка cross-origin запросов
	engine.Use(middleware.CORS(middleware.DefaultCORSConfig()))

	// Security headers — защита от clickjacking, MIME-sniffing
	engine.Use(middleware.SecurityHeaders())

	// OpenTelemetry tracing — создаёт spans для Jaeger
	engine.Use(otelgin.Middleware("shop-backend"))

	// Prometheus метрики — requests_total, request_duration_seconds
	engine.Use(metrics.GinMetricsMiddleware())

	r := &Router{
		engine:         engine,
		checkout:       cfg.Checkout,
		orders:         cfg.Orders,
		payments:       cfg.Payments,
		sync:           cfg.Sync,
		authMW:         cfg.AuthMW,
		rateLimitMW:    cfg.RateLimitMW,
		readinessCheck: cfg.ReadinessCheck,
	}

	r.setupRoutes()
	return r
}

// setupRoutes настраивает все маршруты API.
func (r *Router) setupRoutes() {
	// Health endpoints (без rate limiting и auth)
	r.engine.GET("/health", r.healthCheck)
	r.engine.GET("/healthz", r.livenessCheck)        // k8s liveness probe
	r.engine.GET("/readyz", r.readinessCheckHandler) // k8s readiness probe

	// API v1
	v1 := r.engine.Group("/api/v1")

	// Rate limiting на уровне API (если включен)
	if r.rateLimitMW != nil {
		v1.Use(r.rateLimitMW.Handle())
	}

	// === Callbacks от платёжных шлюзов (без auth — подпись проверяет адаптер) ===
	if r.payments != nil {
		callbacks := v1.Group("/payments/callback")
		{
			callbacks.POST("/zalopay", r.payments.ZaloPayCallback)
			callbacks.POST("/momo", r.payments.MoMoCallback)
		}
	}

	// === Защищённые пользовательские маршруты ===
	authed := v1.Group("")
	if r.authMW != nil {
		authed.Use(r.authMW.Handle())
	}

	if r.checkout != nil {
		authed.POST("/checkout", r.checkout.Checkout)
	}

	if r.orders != nil {
		orders := authed.Group("/orders")
		{
			orders.GET("", r.orders.ListOrders)
			orders.GET("/:id", r.orders.GetOrder)
			orders.POST("/:id/cancel", r.orders.CancelOrder)
			orders.POST("/:id/return", r.orders.RequestReturn)
		}
	}

	if r.payments != nil {
		payments := authed.Group("/payments")
		{
			payments.GET("/:id", r.payments.GetPayment)
			payments.POST("/:id/refund", r.payments.RequestRefund)
		}
	}

	// === Админские маршруты ===
	admin := authed.Group("/admin")
	if r.authMW != nil {
		admin.Use(r.authMW.RequireAdmin())
	}

	if r.orders != nil {
		adminOrders := admin.Group("/orders")
		{
			adminOrders.GET("/:id", r.orders.AdminGetOrder)
			adminOrders.PATCH("/:id/status", r.orders.AdminUpdateStatus)
			adminOrders.POST("/:id/return/confirm", r.orders.AdminConfirmReturn)
		}
	}

	if r.payments != nil {
		admin.POST("/payments/:id/refund/confirm", r.payments.AdminConfirmRefund)
	}

	if r.sync != nil {
		reconcile := admin.Group("/reconcile")
		{
			reconcile.POST("/trigger/:job", r.sync.TriggerJob)
			reconcile.POST("/start", r.sync.StartJobs)
			reconcile.POST("/stop", r.sync.StopJobs)
			reconcile.GET("/status", r.sync.Status)
			reconcile.GET("/health", r.sync.Health)
			reconcile.GET("/stats", r.sync.Statistics)
			reconcile.POST("/range", r.sync.ReconcileRange)
		}
	}
}

// Engine возвращает Gin engine для запуска сервера.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// healthCheck — проверка работоспособности сервиса.
func (r *Router) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "shop-backend",
	})
}

// livenessCheck — liveness probe для Kubernetes.
func (r *Router) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// readinessCheckHandler — readiness probe для Kubernetes.
// Возвращает 200 OK, если все зависимости доступны.
func (r *Router) readinessCheckHandler(c *gin.Context) {
	if r.readinessCheck == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := r.readinessCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
