// Package service содержит бизнес-логику работы с заказами.
package service

import (
	"context"
	"errors"
	"fmt"

	"example.com/shop-backend/internal/inventory"
	"example.com/shop-backend/internal/order/domain"
	"example.com/shop-backend/internal/order/repository"
	"example.com/shop-backend/pkg/logger"
)

// Константы для валидации пагинации.
const (
	defaultPage     = 1
	defaultPageSize = 20
	maxPageSize     = 100
	minPageSize     = 1
)

// PaymentCanceller отменяет активный платёж заказа.
// Реализуется платёжным сервисом; интерфейс объявлен здесь,
// чтобы избежать циклического импорта между order и payment.
type PaymentCanceller interface {
	CancelActiveByOrder(ctx context.Context, orderID, reason string) error
}

// OrderService определяет интерфейс бизнес-логики заказов.
type OrderService interface {
	// GetOrder возвращает заказ по ID.
	// Если requesterID непустой, проверяется принадлежность заказа пользователю.
	GetOrder(ctx context.Context, orderID, requesterID string) (*domain.Order, error)

	// ListOrders возвращает заказы пользователя с пагинацией.
	// status может быть nil для получения всех заказов.
	ListOrders(ctx context.Context, userID string, status *domain.OrderStatus, page, pageSize int) ([]*domain.Order, int64, error)

	// CancelOrder отменяет заказ пользователя.
	// Разрешено только из статусов pending и confirmed. После перехода
	// возвращается зарезервированный сток и отменяется активный платёж.
	CancelOrder(ctx context.Context, orderID, userID, reason string) error

	// RequestReturn создаёт заявку на возврат завершённого заказа.
	RequestReturn(ctx context.Context, orderID, userID, reason string) error

	// ConfirmReturn подтверждает возврат (админ): returning → returned + возврат стока.
	ConfirmReturn(ctx context.Context, orderID, adminID string) error

	// UpdateStatus переводит заказ в новый статус (админ).
	// Переход валидируется по матрице допустимых переходов.
	UpdateStatus(ctx context.Context, orderID string, newStatus domain.OrderStatus, adminID, note string) error

	// ApplyPaymentStatus применяет результат платежа к заказу.
	// payment_status обновляется всегда; статус заказа продвигается
	// pending → confirmed только при успешной оплате.
	ApplyPaymentStatus(ctx context.Context, orderID string, paymentStatus domain.PaymentStatus, note string) error
}

// orderService — реализация OrderService.
type orderService struct {
	repo     repository.OrderRepository
	stock    inventory.Adjuster
	payments PaymentCanceller
}

// NewOrderService создаёт новый сервис заказов.
// payments может быть nil — тогда отмена заказа не трогает платежи (для тестов).
func NewOrderService(repo repository.OrderRepository, stock inventory.Adjuster, payments PaymentCanceller) OrderService {
	return &orderService{
		repo:     repo,
		stock:    stock,
		payments: payments,
	}
}

// GetOrder возвращает заказ по ID с проверкой владельца.
func (s *orderService) GetOrder(ctx context.Context, orderID, requesterID string) (*domain.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if requesterID != "" && order.UserID != requesterID {
		return nil, domain.ErrAccessDenied
	}
	return order, nil
}

// ListOrders возвращает заказы пользователя с пагинацией.
func (s *orderService) ListOrders(ctx context.Context, userID string, status *domain.OrderStatus, page, pageSize int) ([]*domain.Order, int64, error) {
	if userID == "" {
		return nil, 0, domain.ErrInvalidUserID
	}
	if page < defaultPage {
		page = defaultPage
	}
	if pageSize < minPageSize {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	offset := (page - 1) * pageSize
	return s.repo.ListByUser(ctx, userID, status, offset, pageSize)
}

// CancelOrder отменяет заказ пользователя.
func (s *orderService) CancelOrder(ctx context.Context, orderID, userID, reason string) error {
	log := logger.FromContext(ctx)

	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if userID != "" && order.UserID != userID {
		return domain.ErrAccessDenied
	}
	if !order.CanBeCancelled() {
		return domain.ErrOrderCannotCancel
	}

	note := reason
	if note == "" {
		note = "Отменён пользователем"
	}

	// Условный UPDATE — выигрывает ровно один из конкурирующих переходов.
	updated, err := s.repo.UpdateStatusIf(ctx, orderID,
		[]domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusConfirmed},
		domain.OrderStatusCancelled, domain.ChangedByUser, note)
	if err != nil {
		return fmt.Errorf("ошибка отмены заказа: %w", err)
	}
	if !updated {
		// Кто-то успел изменить статус раньше (оплата подтвердила заказ и т.п.)
		return domain.ErrOrderCannotCancel
	}

	s.restoreStock(ctx, order)

	if s.payments != nil {
		if err := s.payments.CancelActiveByOrder(ctx, orderID, note); err != nil {
			// Платёж мог уже завершиться или отсутствовать — не фатально,
			// расхождение подберёт фоновая сверка.
			log.Warn().Err(err).Str("order_id", orderID).Msg("Не удалось отменить активный платёж при отмене заказа")
		}
	}

	log.Info().Str("order_id", orderID).Str("user_id", order.UserID).Msg("Заказ отменён")
	return nil
}

// RequestReturn создаёт заявку на возврат завершённого заказа.
func (s *orderService) RequestReturn(ctx context.Context, orderID, userID, reason string) error {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if userID != "" && order.UserID != userID {
		return domain.ErrAccessDenied
	}
	if order.Status != domain.OrderStatusCompleted {
		return domain.ErrOrderCannotReturn
	}

	note := reason
	if note == "" {
		note = "Запрошен возврат"
	}
	updated, err := s.repo.UpdateStatusIf(ctx, orderID,
		[]domain.OrderStatus{domain.OrderStatusCompleted},
		domain.OrderStatusReturning, domain.ChangedByUser, note)
	if err != nil {
		return fmt.Errorf("ошибка запроса возврата: %w", err)
	}
	if !updated {
		return domain.ErrOrderCannotReturn
	}

	logger.Ctx(ctx).Info().Str("order_id", orderID).Msg("Запрошен возврат заказа")
	return nil
}

// ConfirmReturn подтверждает возврат заказа и возвращает сток.
func (s *orderService) ConfirmReturn(ctx context.Context, orderID, adminID string) error {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != domain.OrderStatusReturning {
		return domain.ErrOrderCannotReturn
	}

	updated, err := s.repo.UpdateStatusIf(ctx, orderID,
		[]domain.OrderStatus{domain.OrderStatusReturning},
		domain.OrderStatusReturned, domain.ChangedByAdmin, "Возврат подтверждён")
	if err != nil {
		return fmt.Errorf("ошибка подтверждения возврата: %w", err)
	}
	if !updated {
		return domain.ErrOrderCannotReturn
	}

	s.restoreStock(ctx, order)

	logger.Ctx(ctx).Info().
		Str("order_id", orderID).
		Str("admin_id", adminID).
		Msg("Возврат заказа подтверждён")
	return nil
}

// UpdateStatus переводит заказ в новый статус по решению администратора.
func (s *orderService) UpdateStatus(ctx context.Context, orderID string, newStatus domain.OrderStatus, adminID, note string) error {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if !order.CanTransitionTo(newStatus) {
		return domain.ErrInvalidTransition
	}

	if note == "" {
		note = "Статус изменён администратором"
	}
	updated, err := s.repo.UpdateStatusIf(ctx, orderID,
		[]domain.OrderStatus{order.Status}, newStatus, domain.ChangedByAdmin, note)
	if err != nil {
		return fmt.Errorf("ошибка смены статуса заказа: %w", err)
	}
	if !updated {
		// Статус успел измениться между чтением и UPDATE
		return domain.ErrInvalidTransition
	}

	// Отмена администратором тоже возвращает сток
	if newStatus == domain.OrderStatusCancelled {
		s.restoreStock(ctx, order)
	}

	logger.Ctx(ctx).Info().
		Str("order_id", orderID).
		Str("admin_id", adminID).
		Str("new_status", string(newStatus)).
		Msg("Статус заказа изменён администратором")
	return nil
}

// ApplyPaymentStatus применяет исход платежа к заказу.
func (s *orderService) ApplyPaymentStatus(ctx context.Context, orderID string, paymentStatus domain.PaymentStatus, note string) error {
	log := logger.FromContext(ctx)

	if err := s.repo.SetPaymentStatus(ctx, orderID, paymentStatus); err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return err
		}
		return fmt.Errorf("ошибка обновления статуса оплаты: %w", err)
	}

	// Статус заказа продвигается только при успешной оплате,
	// и только если заказ всё ещё ожидает подтверждения.
	if paymentStatus == domain.PaymentStatusCompleted {
		if note == "" {
			note = "Оплата получена"
		}
		advanced, err := s.repo.AdvanceStatusIfPending(ctx, orderID, note)
		if err != nil {
			return fmt.Errorf("ошибка подтверждения заказа: %w", err)
		}
		if !advanced {
			// Заказ уже не pending (отменён или подтверждён раньше) — это не ошибка
			log.Info().Str("order_id", orderID).Msg("Оплата получена, но заказ уже не в статусе pending")
		}
	}

	log.Info().
		Str("order_id", orderID).
		Str("payment_status", string(paymentStatus)).
		Msg("Статус оплаты заказа обновлён")
	return nil
}

// restoreStock возвращает зарезервированный сток по всем позициям заказа.
// Ошибки логируются и не прерывают операцию: заказ уже отменён,
// недовозвращённый сток виден по логам.
func (s *orderService) restoreStock(ctx context.Context, order *domain.Order) {
	if s.stock == nil {
		return
	}
	log := logger.FromContext(ctx)
	for _, item := range order.Items {
		if err := s.stock.Restore(ctx, item.VariantID, item.Quantity); err != nil {
			log.Error().
				Err(err).
				Str("order_id", order.ID).
				Str("variant_id", item.VariantID).
				Int32("quantity", item.Quantity).
				Msg("Не удалось вернуть сток при отмене заказа")
		}
	}
}
