// Package service содержит бизнес-логику работы с платежами.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	orderdomain "example.com/shop-backend/internal/order/domain"
	"example.com/shop-backend/internal/payment/domain"
	"example.com/shop-backend/internal/payment/gateway"
	"example.com/shop-backend/internal/payment/repository"
	"example.com/shop-backend/pkg/logger"
	"example.com/shop-backend/pkg/metrics"
)

// Константы идемпотентности callback'ов.
const (
	callbackKeyPrefix = "payment:callback:"
	callbackTTL       = 24 * time.Hour
)

// ChangedByGateway — актор переходов, инициированных провайдером.
const ChangedByGateway = "gateway"

// OrderUpdater применяет исход платежа к заказу.
// Реализуется сервисом заказов; интерфейс объявлен здесь,
// чтобы избежать циклического импорта между payment и order.
type OrderUpdater interface {
	ApplyPaymentStatus(ctx context.Context, orderID string, paymentStatus orderdomain.PaymentStatus, note string) error
}

// CreatePaymentRequest — запрос создания платежа для заказа.
type CreatePaymentRequest struct {
	OrderID     string
	UserID      string
	Amount      decimal.Decimal
	Method      domain.Method
	Description string
}

// PaymentService определяет интерфейс бизнес-логики платежей.
type PaymentService interface {
	// CreatePaymentForOrder создаёт платёж для заказа.
	// Для онлайн-методов дополнительно создаёт заказ на оплату у провайдера
	// и переводит платёж в processing. Если у заказа уже есть незавершённый
	// платёж, возвращает domain.ErrActivePaymentExists.
	CreatePaymentForOrder(ctx context.Context, req CreatePaymentRequest) (*domain.Payment, error)

	// GetPayment возвращает платёж по ID с проверкой владельца.
	// Пустой requesterID пропускает проверку (админ).
	GetPayment(ctx context.Context, paymentID, requesterID string) (*domain.Payment, error)

	// HandleCallback обрабатывает callback провайдера: проверяет подпись,
	// находит платёж по корреляционному идентификатору и применяет исход.
	// Повторные callback'и безопасны: переход защищён условным UPDATE,
	// Redis отсекает дубликаты до похода в БД.
	HandleCallback(ctx context.Context, method domain.Method, body []byte) error

	// ApplyOutcome применяет канонический исход к платежу.
	// Единственный путь переходов из pending/processing в терминальный статус:
	// callback'и, опрос шлюза и сверка сходятся сюда. Возвращает true, если
	// переход выполнен этим вызовом (false — исход pending или платёж уже
	// в терминальном статусе).
	ApplyOutcome(ctx context.Context, payment *domain.Payment, outcome domain.Outcome, providerTransID, rawPayload, changedBy string) (bool, error)

	// Expire отменяет платёж по таймауту метода.
	Expire(ctx context.Context, payment *domain.Payment, note string) (bool, error)

	// CancelActiveByOrder отменяет незавершённый платёж заказа.
	// Вызывается сервисом заказов при отмене заказа.
	CancelActiveByOrder(ctx context.Context, orderID, reason string) error

	// RequestRefund создаёт заявку на возврат завершённого платежа.
	RequestRefund(ctx context.Context, paymentID, userID, reason string) error

	// ConfirmRefund подтверждает возврат (админ).
	ConfirmRefund(ctx context.Context, paymentID, adminID string) error
}

// paymentService — реализация PaymentService.
type paymentService struct {
	repo     repository.PaymentRepository
	registry *gateway.Registry
	orders   OrderUpdater
	redis    *redis.Client
}

// NewPaymentService создаёт новый сервис платежей.
// orders и redis могут быть nil (для тестов): без orders исходы
// не распространяются на заказ, без redis дубликаты отсекает только БД.
func NewPaymentService(repo repository.PaymentRepository, registry *gateway.Registry, orders OrderUpdater, redisClient *redis.Client) PaymentService {
	return &paymentService{
		repo:     repo,
		registry: registry,
		orders:   orders,
		redis:    redisClient,
	}
}

// CreatePaymentForOrder создаёт платёж для заказа.
func (s *paymentService) CreatePaymentForOrder(ctx context.Context, req CreatePaymentRequest) (*domain.Payment, error) {
	log := logger.Ctx(ctx)

	// Не более одного незавершённого платежа на заказ
	if existing, err := s.repo.GetActiveByOrder(ctx, req.OrderID); err == nil && existing != nil {
		log.Warn().
			Str("order_id", req.OrderID).
			Str("payment_id", existing.ID).
			Msg("У заказа уже есть незавершённый платёж")
		return existing, domain.ErrActivePaymentExists
	} else if err != nil && !errors.Is(err, domain.ErrPaymentNotFound) {
		return nil, fmt.Errorf("ошибка проверки активного платежа: %w", err)
	}

	now := time.Now()
	payment := &domain.Payment{
		ID:        uuid.New().String(),
		OrderID:   req.OrderID,
		UserID:    req.UserID,
		Amount:    req.Amount,
		Method:    req.Method,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		Timeline: []domain.TimelineEntry{
			{Status: string(domain.StatusPending), ChangedBy: orderdomain.ChangedBySystem, ChangedAt: now, Note: "Платёж создан"},
		},
	}
	if err := payment.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, payment); err != nil {
		log.Error().Err(err).Str("order_id", req.OrderID).Msg("Ошибка создания платежа")
		return nil, fmt.Errorf("ошибка создания платежа: %w", err)
	}

	adapter, err := s.registry.Get(req.Method)
	if err != nil {
		return nil, err
	}

	// Офлайн-методы остаются в pending до ручного подтверждения
	if !adapter.Online() {
		log.Info().
			Str("payment_id", payment.ID).
			Str("order_id", req.OrderID).
			Str("method", string(req.Method)).
			Msg("Создан офлайн-платёж")
		return payment, nil
	}

	// Онлайн: создаём заказ на оплату у провайдера
	result, err := adapter.CreateOrder(ctx, gateway.CreateOrderRequest{
		Payment:     payment,
		Description: req.Description,
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("payment_id", payment.ID).
			Str("method", string(req.Method)).
			Msg("Провайдер отклонил создание заказа на оплату")

		reason := err.Error()
		if _, ferr := s.repo.UpdateStatusIf(ctx, payment.ID,
			[]domain.Status{domain.StatusPending}, domain.StatusFailed,
			map[string]interface{}{"failure_reason": reason},
			orderdomain.ChangedBySystem, "Ошибка создания заказа у провайдера"); ferr != nil {
			log.Error().Err(ferr).Str("payment_id", payment.ID).Msg("Не удалось перевести платёж в failed")
		}
		metrics.PaymentOutcomesTotal.WithLabelValues("create", "failure").Inc()
		return nil, err
	}

	payment.AppTransID = result.AppTransID
	payment.RequestID = result.RequestID
	payment.PayURL = result.PayURL
	payment.GatewayResponse = result.RawResponse
	if err := s.repo.UpdateGatewayRefs(ctx, payment); err != nil {
		return nil, fmt.Errorf("ошибка сохранения идентификаторов шлюза: %w", err)
	}

	updated, err := s.repo.UpdateStatusIf(ctx, payment.ID,
		[]domain.Status{domain.StatusPending}, domain.StatusProcessing,
		nil, orderdomain.ChangedBySystem, "Заказ на оплату создан у провайдера")
	if err != nil {
		return nil, fmt.Errorf("ошибка перевода платежа в processing: %w", err)
	}
	if updated {
		payment.Status = domain.StatusProcessing
	}

	log.Info().
		Str("payment_id", payment.ID).
		Str("order_id", req.OrderID).
		Str("method", string(req.Method)).
		Str("pay_url", payment.PayURL).
		Msg("Создан онлайн-платёж")
	return payment, nil
}

// GetPayment возвращает платёж по ID с проверкой владельца.
func (s *paymentService) GetPayment(ctx context.Context, paymentID, requesterID string) (*domain.Payment, error) {
	payment, err := s.repo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if requesterID != "" && payment.UserID != requesterID {
		return nil, domain.ErrAccessDenied
	}
	return payment, nil
}

// HandleCallback обрабатывает callback провайдера.
func (s *paymentService) HandleCallback(ctx context.Context, method domain.Method, body []byte) error {
	log := logger.Ctx(ctx)

	adapter, err := s.registry.Get(method)
	if err != nil {
		return err
	}

	cb, err := adapter.VerifyCallback(body)
	if err != nil {
		log.Warn().Err(err).Str("method", string(method)).Msg("Callback не прошёл проверку подписи")
		return err
	}

	// Redis отсекает повторные callback'и до похода в БД.
	// При ошибке Redis продолжаем — условный UPDATE защитит от дубликатов.
	key := callbackKeyPrefix + string(method) + ":" + cb.PaymentRef
	if s.redis != nil {
		seen, rerr := s.redis.Exists(ctx, key).Result()
		if rerr != nil {
			log.Error().Err(rerr).Str("payment_ref", cb.PaymentRef).Msg("Ошибка Redis при проверке идемпотентности callback")
		} else if seen > 0 {
			log.Info().
				Str("payment_ref", cb.PaymentRef).
				Msg("Повторный callback, исход уже применён")
			return nil
		}
	}

	// Неокончательный исход не фиксируем: провайдер пришлёт
	// callback с тем же payment_ref, когда определится.
	if cb.Outcome == domain.OutcomePending {
		log.Debug().
			Str("method", string(method)).
			Str("payment_ref", cb.PaymentRef).
			Msg("Callback с неокончательным исходом, ждём следующий")
		return nil
	}

	payment, err := s.findByProviderRef(ctx, method, cb.PaymentRef)
	if err != nil {
		log.Warn().
			Err(err).
			Str("method", string(method)).
			Str("payment_ref", cb.PaymentRef).
			Msg("Платёж из callback не найден")
		return err
	}

	if _, err := s.ApplyOutcome(ctx, payment, cb.Outcome, cb.ProviderTransID, cb.RawPayload, ChangedByGateway); err != nil {
		return err
	}

	// Ключ идемпотентности ставится только после успешно применённого
	// окончательного исхода: pending или упавший apply не должны на сутки
	// глушить следующий callback с тем же payment_ref.
	if s.redis != nil {
		if rerr := s.redis.Set(ctx, key, string(cb.Outcome), callbackTTL).Err(); rerr != nil {
			log.Error().Err(rerr).Str("payment_id", payment.ID).Msg("Ошибка Redis при фиксации callback")
		}
	}
	return nil
}

// ApplyOutcome применяет канонический исход к платежу.
func (s *paymentService) ApplyOutcome(ctx context.Context, payment *domain.Payment, outcome domain.Outcome, providerTransID, rawPayload, changedBy string) (bool, error) {
	log := logger.Ctx(ctx)

	if outcome == domain.OutcomePending {
		return false, nil
	}
	if payment.Status.IsTerminal() {
		return false, nil
	}

	from := []domain.Status{domain.StatusPending, domain.StatusProcessing}
	extra := map[string]interface{}{}
	if rawPayload != "" {
		extra["gateway_response"] = rawPayload
	}

	var to domain.Status
	var note string
	switch outcome {
	case domain.OutcomeSuccess:
		to = domain.StatusCompleted
		note = "Оплата подтверждена провайдером"
		extra["paid_at"] = time.Now()
		switch payment.Method {
		case domain.MethodZaloPay:
			extra["zp_trans_id"] = providerTransID
		case domain.MethodMoMo:
			extra["momo_trans_id"] = providerTransID
		}
	case domain.OutcomeFailure:
		to = domain.StatusFailed
		note = "Провайдер сообщил о неуспехе оплаты"
		extra["failure_reason"] = note
	default:
		return false, fmt.Errorf("неизвестный исход платежа: %s", outcome)
	}

	updated, err := s.repo.UpdateStatusIf(ctx, payment.ID, from, to, extra, changedBy, note)
	if err != nil {
		return false, fmt.Errorf("ошибка применения исхода платежа: %w", err)
	}
	if !updated {
		// Конкурирующий callback или сверка успели раньше
		log.Info().
			Str("payment_id", payment.ID).
			Str("outcome", string(outcome)).
			Msg("Исход не применён: платёж уже в терминальном статусе")
		return false, nil
	}

	payment.Status = to
	source := "sync"
	if changedBy == ChangedByGateway {
		source = "callback"
	}
	metrics.PaymentOutcomesTotal.WithLabelValues(source, string(outcome)).Inc()

	log.Info().
		Str("payment_id", payment.ID).
		Str("order_id", payment.OrderID).
		Str("status", string(to)).
		Str("changed_by", changedBy).
		Msg("Исход платежа применён")

	s.propagateToOrder(ctx, payment, note)
	return true, nil
}

// Expire отменяет платёж по таймауту метода.
func (s *paymentService) Expire(ctx context.Context, payment *domain.Payment, note string) (bool, error) {
	log := logger.Ctx(ctx)

	updated, err := s.repo.UpdateStatusIf(ctx, payment.ID,
		[]domain.Status{domain.StatusPending, domain.StatusProcessing},
		domain.StatusCancelled,
		map[string]interface{}{"failure_reason": note},
		orderdomain.ChangedBySystem, note)
	if err != nil {
		return false, fmt.Errorf("ошибка отмены платежа по таймауту: %w", err)
	}
	if !updated {
		return false, nil
	}

	payment.Status = domain.StatusCancelled
	metrics.PaymentsExpiredTotal.WithLabelValues(string(payment.Method)).Inc()

	log.Info().
		Str("payment_id", payment.ID).
		Str("order_id", payment.OrderID).
		Str("method", string(payment.Method)).
		Msg("Платёж отменён по таймауту")

	s.propagateToOrder(ctx, payment, note)
	return true, nil
}

// CancelActiveByOrder отменяет незавершённый платёж заказа.
func (s *paymentService) CancelActiveByOrder(ctx context.Context, orderID, reason string) error {
	payment, err := s.repo.GetActiveByOrder(ctx, orderID)
	if err != nil {
		return err
	}

	note := reason
	if note == "" {
		note = "Заказ отменён"
	}
	updated, err := s.repo.UpdateStatusIf(ctx, payment.ID,
		[]domain.Status{domain.StatusPending, domain.StatusProcessing},
		domain.StatusCancelled,
		map[string]interface{}{"failure_reason": note},
		orderdomain.ChangedBySystem, note)
	if err != nil {
		return fmt.Errorf("ошибка отмены платежа: %w", err)
	}
	if !updated {
		return domain.ErrInvalidTransition
	}

	logger.Ctx(ctx).Info().
		Str("payment_id", payment.ID).
		Str("order_id", orderID).
		Msg("Платёж отменён вместе с заказом")
	return nil
}

// RequestRefund создаёт заявку на возврат завершённого платежа.
func (s *paymentService) RequestRefund(ctx context.Context, paymentID, userID, reason string) error {
	payment, err := s.repo.GetByID(ctx, paymentID)
	if err != nil {
		return err
	}
	if userID != "" && payment.UserID != userID {
		return domain.ErrAccessDenied
	}

	if err := payment.RequestRefund(reason); err != nil {
		return err
	}
	if err := s.repo.UpdateRefund(ctx, payment); err != nil {
		return fmt.Errorf("ошибка сохранения заявки на возврат: %w", err)
	}

	logger.Ctx(ctx).Info().
		Str("payment_id", paymentID).
		Str("user_id", payment.UserID).
		Msg("Запрошен возврат платежа")
	return nil
}

// ConfirmRefund подтверждает возврат платежа.
func (s *paymentService) ConfirmRefund(ctx context.Context, paymentID, adminID string) error {
	payment, err := s.repo.GetByID(ctx, paymentID)
	if err != nil {
		return err
	}

	if err := payment.ConfirmRefund(adminID); err != nil {
		return err
	}
	if err := s.repo.UpdateRefund(ctx, payment); err != nil {
		return fmt.Errorf("ошибка подтверждения возврата: %w", err)
	}

	s.propagateToOrder(ctx, payment, "Возврат платежа подтверждён")

	logger.Ctx(ctx).Info().
		Str("payment_id", paymentID).
		Str("admin_id", adminID).
		Msg("Возврат платежа подтверждён")
	return nil
}

// findByProviderRef находит платёж по корреляционному идентификатору провайдера.
func (s *paymentService) findByProviderRef(ctx context.Context, method domain.Method, ref string) (*domain.Payment, error) {
	switch method {
	case domain.MethodZaloPay:
		return s.repo.GetByAppTransID(ctx, ref)
	case domain.MethodMoMo:
		return s.repo.GetByRequestID(ctx, ref)
	default:
		return nil, domain.ErrPaymentNotFound
	}
}

// propagateToOrder обновляет статус оплаты заказа.
// Ошибка логируется и не откатывает переход платежа:
// расхождение подберёт фоновая сверка.
func (s *paymentService) propagateToOrder(ctx context.Context, payment *domain.Payment, note string) {
	if s.orders == nil {
		return
	}
	if err := s.orders.ApplyPaymentStatus(ctx, payment.OrderID, orderPaymentStatus(payment.Status), note); err != nil {
		logger.Ctx(ctx).Error().
			Err(err).
			Str("payment_id", payment.ID).
			Str("order_id", payment.OrderID).
			Msg("Не удалось обновить статус оплаты заказа")
	}
}

// orderPaymentStatus приводит статус платежа к статусу оплаты заказа.
func orderPaymentStatus(s domain.Status) orderdomain.PaymentStatus {
	switch s {
	case domain.StatusCompleted:
		return orderdomain.PaymentStatusCompleted
	case domain.StatusFailed:
		return orderdomain.PaymentStatusFailed
	case domain.StatusCancelled:
		return orderdomain.PaymentStatusCancelled
	case domain.StatusRefunded, domain.StatusRefundRequested:
		return orderdomain.PaymentStatusRefunded
	case domain.StatusProcessing:
		return orderdomain.PaymentStatusProcessing
	default:
		return orderdomain.PaymentStatusPending
	}
}
