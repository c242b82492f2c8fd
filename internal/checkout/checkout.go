// Package checkout содержит оркестрацию оформления заказа.
//
// Оформление сводит воедино каталог, купоны, заказы и платежи:
// снимок цен из каталога, проверка купона, атомарное списание остатков
// с компенсацией, создание заказа и платежа. Цена всегда берётся из БД,
// клиентским суммам не доверяем.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/shop-backend/internal/coupon"
	"example.com/shop-backend/internal/inventory"
	orderdomain "example.com/shop-backend/internal/order/domain"
	orderrepo "example.com/shop-backend/internal/order/repository"
	paymentdomain "example.com/shop-backend/internal/payment/domain"
	paymentservice "example.com/shop-backend/internal/payment/service"
	"example.com/shop-backend/pkg/logger"
	"example.com/shop-backend/pkg/metrics"
	"example.com/shop-backend/pkg/outbox"
)

// Топик по умолчанию и тип события о созданном заказе.
const (
	defaultEventsTopic = "orders.events"
	eventOrderCreated  = "order.created"
)

// PaymentCreator создаёт платёж для заказа.
// Подмножество PaymentService, нужное оформлению.
type PaymentCreator interface {
	CreatePaymentForOrder(ctx context.Context, req paymentservice.CreatePaymentRequest) (*paymentdomain.Payment, error)
}

// ItemRequest — позиция корзины в запросе оформления.
type ItemRequest struct {
	ProductID string
	Size      string
	Color     string
	Quantity  int32
}

// Request — запрос оформления заказа.
type Request struct {
	UserID          string
	Items           []ItemRequest
	CouponCode      string
	PaymentMethod   orderdomain.PaymentMethod
	ShippingAddress orderdomain.ShippingAddress
}

// Result — итог оформления заказа.
type Result struct {
	Order   *orderdomain.Order
	Payment *paymentdomain.Payment
	PayURL  string // Непустой для онлайн-методов: сюда редиректим пользователя
}

// Service определяет интерфейс оформления заказа.
type Service interface {
	// Checkout оформляет заказ: снимок цен, купон, списание остатков,
	// создание заказа и платежа. Для онлайн-методов возвращает pay_url.
	Checkout(ctx context.Context, req Request) (*Result, error)
}

// service — реализация Service.
type service struct {
	stock       inventory.Adjuster
	coupons     coupon.Validator
	orders      orderrepo.OrderRepository
	payments    PaymentCreator
	outbox      outbox.OutboxRepository
	eventsTopic string
}

// NewService создаёт сервис оформления заказа.
// outboxRepo может быть nil — тогда события не публикуются (для тестов).
// Пустой eventsTopic заменяется топиком по умолчанию.
func NewService(stock inventory.Adjuster, coupons coupon.Validator, orders orderrepo.OrderRepository, payments PaymentCreator, outboxRepo outbox.OutboxRepository, eventsTopic string) Service {
	if eventsTopic == "" {
		eventsTopic = defaultEventsTopic
	}
	return &service{
		stock:       stock,
		coupons:     coupons,
		orders:      orders,
		payments:    payments,
		outbox:      outboxRepo,
		eventsTopic: eventsTopic,
	}
}

// Checkout оформляет заказ.
func (s *service) Checkout(ctx context.Context, req Request) (*Result, error) {
	log := logger.Ctx(ctx)

	if err := s.validateRequest(req); err != nil {
		metrics.CheckoutTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	// 1. Снимок вариантов из каталога: цена и остаток на момент оформления
	orderID := uuid.New().String()
	now := time.Now()
	items := make([]orderdomain.OrderItem, len(req.Items))
	productIDs := make([]string, len(req.Items))
	categoryIDs := make([]string, 0, len(req.Items))
	for i, ir := range req.Items {
		variant, err := s.stock.GetVariant(ctx, ir.ProductID, inventory.Selector{Size: ir.Size, Color: ir.Color})
		if err != nil {
			metrics.CheckoutTotal.WithLabelValues("error").Inc()
			log.Warn().Err(err).Str("product_id", ir.ProductID).Msg("Вариант товара недоступен при оформлении")
			return nil, err
		}
		items[i] = orderdomain.OrderItem{
			ID:          uuid.New().String(),
			OrderID:     orderID,
			ProductID:   variant.ProductID,
			ProductName: variant.ProductName,
			VariantID:   variant.ID,
			VariantSKU:  variant.SKU,
			Size:        variant.Size,
			Color:       variant.Color,
			UnitPrice:   variant.Price,
			Quantity:    ir.Quantity,
			StockAtTime: variant.Stock,
		}
		productIDs[i] = variant.ProductID
		if variant.CategoryID != "" {
			categoryIDs = append(categoryIDs, variant.CategoryID)
		}
	}

	order := &orderdomain.Order{
		ID:              orderID,
		UserID:          req.UserID,
		Items:           items,
		Status:          orderdomain.OrderStatusPending,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   orderdomain.PaymentStatusPending,
		ShippingAddress: req.ShippingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
		Timeline: []orderdomain.TimelineEntry{
			{Status: string(orderdomain.OrderStatusPending), ChangedBy: orderdomain.ChangedByUser, ChangedAt: now, Note: "Заказ оформлен"},
		},
	}
	order.RecalculateTotals()

	if err := order.Validate(); err != nil {
		metrics.CheckoutTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	// 2. Купон: проверка правил и расчёт скидки от суммы корзины
	if req.CouponCode != "" {
		discount, err := s.coupons.Validate(ctx, req.CouponCode, req.UserID, order.Subtotal, productIDs, categoryIDs)
		if err != nil {
			metrics.CheckoutTotal.WithLabelValues("coupon_invalid").Inc()
			log.Warn().Err(err).Str("coupon_code", req.CouponCode).Str("user_id", req.UserID).Msg("Купон отклонён")
			return nil, err
		}
		order.AppliedCoupon = &orderdomain.AppliedCoupon{
			Code:           discount.Code,
			DiscountType:   orderdomain.DiscountType(discount.Type),
			DiscountAmount: discount.Amount,
		}
		order.RecalculateTotals()
	}

	// 3. Списание остатков с компенсацией: при отказе на i-й позиции
	// возвращаем уже списанные
	decremented := make([]orderdomain.OrderItem, 0, len(items))
	for _, item := range items {
		if err := s.stock.Decrement(ctx, item.VariantID, item.Quantity); err != nil {
			s.compensate(ctx, decremented)
			if errors.Is(err, inventory.ErrInsufficientStock) {
				metrics.CheckoutTotal.WithLabelValues("out_of_stock").Inc()
			} else {
				metrics.CheckoutTotal.WithLabelValues("error").Inc()
			}
			log.Warn().Err(err).Str("variant_id", item.VariantID).Msg("Не удалось списать остаток при оформлении")
			return nil, err
		}
		decremented = append(decremented, item)
	}

	// 4. Создание заказа
	if err := s.orders.Create(ctx, order); err != nil {
		s.compensate(ctx, decremented)
		metrics.CheckoutTotal.WithLabelValues("error").Inc()
		log.Error().Err(err).Str("user_id", req.UserID).Msg("Ошибка создания заказа")
		return nil, fmt.Errorf("ошибка создания заказа: %w", err)
	}

	// 5. Фиксация использования купона. Заказ уже создан —
	// ошибка счётчика не откатывает оформление
	if order.AppliedCoupon != nil {
		if err := s.coupons.RecordUsage(ctx, order.AppliedCoupon.Code, req.UserID, orderID); err != nil {
			log.Error().Err(err).Str("coupon_code", order.AppliedCoupon.Code).Str("order_id", orderID).Msg("Не удалось зафиксировать использование купона")
		}
	}

	s.publishOrderCreated(ctx, order)

	// 6. Платёж: COD остаётся pending, онлайн-методы идут к провайдеру
	payment, err := s.payments.CreatePaymentForOrder(ctx, paymentservice.CreatePaymentRequest{
		OrderID:     orderID,
		UserID:      req.UserID,
		Amount:      order.Total,
		Method:      paymentdomain.Method(req.PaymentMethod),
		Description: fmt.Sprintf("Оплата заказа %s", orderID),
	})
	if err != nil {
		// Заказ остаётся pending: пользователь может повторить оплату
		metrics.CheckoutTotal.WithLabelValues("gateway_error").Inc()
		log.Error().Err(err).Str("order_id", orderID).Msg("Не удалось создать платёж, заказ ожидает повторной оплаты")
		return &Result{Order: order}, err
	}

	metrics.CheckoutTotal.WithLabelValues("success").Inc()
	log.Info().
		Str("order_id", orderID).
		Str("user_id", req.UserID).
		Str("payment_method", string(req.PaymentMethod)).
		Str("total", order.Total.String()).
		Msg("Заказ оформлен")

	return &Result{Order: order, Payment: payment, PayURL: payment.PayURL}, nil
}

// validateRequest проверяет входной запрос до походов в БД.
func (s *service) validateRequest(req Request) error {
	if req.UserID == "" {
		return orderdomain.ErrInvalidUserID
	}
	if len(req.Items) == 0 {
		return orderdomain.ErrEmptyOrderItems
	}
	if len(req.Items) > orderdomain.MaxOrderItems {
		return orderdomain.ErrTooManyOrderItems
	}
	for _, item := range req.Items {
		if item.ProductID == "" {
			return orderdomain.ErrInvalidProductID
		}
		if item.Quantity <= 0 {
			return orderdomain.ErrInvalidQuantity
		}
	}
	if !req.PaymentMethod.IsValid() {
		return orderdomain.ErrInvalidPaymentMethod
	}
	return req.ShippingAddress.Validate()
}

// compensate возвращает уже списанные остатки при откате оформления.
func (s *service) compensate(ctx context.Context, items []orderdomain.OrderItem) {
	log := logger.Ctx(ctx)
	for _, item := range items {
		if err := s.stock.Restore(ctx, item.VariantID, item.Quantity); err != nil {
			log.Error().
				Err(err).
				Str("variant_id", item.VariantID).
				Int32("quantity", item.Quantity).
				Msg("Не удалось вернуть остаток при откате оформления")
		}
	}
}

// publishOrderCreated пишет событие order.created в outbox.
// Ошибка не откатывает оформление: событие потеряется, но заказ создан.
func (s *service) publishOrderCreated(ctx context.Context, order *orderdomain.Order) {
	if s.outbox == nil {
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"order_id":       order.ID,
		"user_id":        order.UserID,
		"total":          order.Total.String(),
		"payment_method": string(order.PaymentMethod),
		"created_at":     order.CreatedAt.Format(time.RFC3339),
	})
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order_id", order.ID).Msg("Ошибка сериализации события order.created")
		return
	}

	record := &outbox.Outbox{
		ID:            uuid.New().String(),
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     eventOrderCreated,
		Topic:         s.eventsTopic,
		MessageKey:    order.ID,
		Payload:       payload,
		CreatedAt:     time.Now(),
	}
	if err := s.outbox.Create(ctx, record); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order_id", order.ID).Msg("Ошибка записи события order.created в outbox")
	}
}
