// Package repository содержит реализацию доступа к данным платежей.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"example.com/shop-backend/internal/payment/domain"
)

// StatusStat — агрегат по платежам для статистики: количество и сумма
// в разрезе статус × метод.
type StatusStat struct {
	Status string          `json:"status"`
	Method string          `json:"method"`
	Count  int64           `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// PaymentRepository определяет интерфейс для работы с платежами в БД.
type PaymentRepository interface {
	// Create создаёт новый платёж с первой записью timeline.
	Create(ctx context.Context, payment *domain.Payment) error

	// GetByID возвращает платёж по ID с timeline.
	GetByID(ctx context.Context, paymentID string) (*domain.Payment, error)

	// GetByAppTransID возвращает платёж по app_trans_id (корреляция ZaloPay).
	GetByAppTransID(ctx context.Context, appTransID string) (*domain.Payment, error)

	// GetByRequestID возвращает платёж по requestId (корреляция MoMo).
	GetByRequestID(ctx context.Context, requestID string) (*domain.Payment, error)

	// GetActiveByOrder возвращает незавершённый платёж заказа (pending/processing).
	// Возвращает ErrPaymentNotFound, если активного платежа нет.
	GetActiveByOrder(ctx context.Context, orderID string) (*domain.Payment, error)

	// UpdateGatewayRefs сохраняет корреляционные идентификаторы и ответ шлюза
	// после создания заказа у провайдера.
	UpdateGatewayRefs(ctx context.Context, payment *domain.Payment) error

	// UpdateStatusIf атомарно переводит платёж из одного из статусов from в to
	// одним условным UPDATE (optimistic check). Возвращает false без ошибки,
	// если текущий статус не входит в from: конкурирующий callback или сверка
	// уже применили терминальный исход. При успехе добавляет запись в timeline
	// и устанавливает дополнительные поля extra.
	UpdateStatusIf(ctx context.Context, paymentID string, from []domain.Status, to domain.Status, extra map[string]interface{}, changedBy, note string) (bool, error)

	// UpdateRefund сохраняет данные возврата вместе со статусом.
	UpdateRefund(ctx context.Context, payment *domain.Payment) error

	// ListStuckOnline возвращает онлайн-платежи в pending/processing
	// старше льготного окна. Для сверки со шлюзом.
	ListStuckOnline(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Payment, error)

	// ListExpired возвращает платежи указанного метода в pending/processing
	// старше таймаута метода. Для сметания по таймауту.
	ListExpired(ctx context.Context, method domain.Method, olderThan time.Duration, limit int) ([]*domain.Payment, error)

	// ListCreatedBetween возвращает незавершённые онлайн-платежи,
	// созданные в окне [from, to]. Для ручной сверки за период.
	ListCreatedBetween(ctx context.Context, from, to time.Time) ([]*domain.Payment, error)

	// CountStuckSince считает онлайн-платежи, застрявшие в pending/processing
	// дольше указанного времени. Для health check.
	CountStuckSince(ctx context.Context, stuckFor time.Duration) (int64, error)

	// CountByStatusSince считает платежи в статусе, созданные после since.
	CountByStatusSince(ctx context.Context, status domain.Status, since time.Time) (int64, error)

	// StatsSince возвращает количество и сумму платежей по статусам и методам
	// начиная с since.
	StatsSince(ctx context.Context, since time.Time) ([]StatusStat, error)
}

// =============================================================================
// GORM модели
// =============================================================================

// PaymentModel — GORM модель для таблицы payments.
type PaymentModel struct {
	ID                string          `gorm:"column:id;type:varchar(36);primaryKey"`
	OrderID           string          `gorm:"column:order_id;type:varchar(36);not null;index"`
	UserID            string          `gorm:"column:user_id;type:varchar(36);not null;index"`
	Amount            decimal.Decimal `gorm:"column:amount;type:decimal(19,2);not null"`
	Method            string          `gorm:"column:method;type:varchar(20);not null;index"`
	Status            string          `gorm:"column:status;type:varchar(20);not null;index"`
	AppTransID        *string         `gorm:"column:app_trans_id;type:varchar(64);index"`
	ZpTransID         *string         `gorm:"column:zp_trans_id;type:varchar(64)"`
	RequestID         *string         `gorm:"column:request_id;type:varchar(64);index"`
	MomoTransID       *string         `gorm:"column:momo_trans_id;type:varchar(64)"`
	PayURL            *string         `gorm:"column:pay_url;type:varchar(1000)"`
	GatewayResponse   *string         `gorm:"column:gateway_response;type:text"`
	FailureReason     *string         `gorm:"column:failure_reason;type:text"`
	PaidAt            *time.Time      `gorm:"column:paid_at"`
	RefundReason      *string         `gorm:"column:refund_reason;type:text"`
	RefundRequestedAt *time.Time      `gorm:"column:refund_requested_at"`
	RefundProcessedAt *time.Time      `gorm:"column:refund_processed_at"`
	RefundProcessedBy *string         `gorm:"column:refund_processed_by;type:varchar(36)"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime"`

	Timeline []PaymentTimelineModel `gorm:"foreignKey:PaymentID;references:ID"`
}

// TableName возвращает имя таблицы в БД.
func (PaymentModel) TableName() string {
	return "payments"
}

// PaymentTimelineModel — GORM модель для таблицы payment_timeline.
// Append-only: записи никогда не обновляются и не удаляются.
type PaymentTimelineModel struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	PaymentID string    `gorm:"column:payment_id;type:varchar(36);not null;index"`
	Status    string    `gorm:"column:status;type:varchar(20);not null"`
	ChangedBy string    `gorm:"column:changed_by;type:varchar(36);not null"`
	ChangedAt time.Time `gorm:"column:changed_at;not null"`
	Note      string    `gorm:"column:note;type:text"`
}

// TableName возвращает имя таблицы в БД.
func (PaymentTimelineModel) TableName() string {
	return "payment_timeline"
}

// toDomain конвертирует GORM модель в доменную сущность.
func (m *PaymentModel) toDomain() *domain.Payment {
	p := &domain.Payment{
		ID:            m.ID,
		OrderID:       m.OrderID,
		UserID:        m.UserID,
		Amount:        m.Amount,
		Method:        domain.Method(m.Method),
		Status:        domain.Status(m.Status),
		FailureReason: m.FailureReason,
		PaidAt:        m.PaidAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
		Timeline:      make([]domain.TimelineEntry, len(m.Timeline)),
	}

	p.AppTransID = deref(m.AppTransID)
	p.ZpTransID = deref(m.ZpTransID)
	p.RequestID = deref(m.RequestID)
	p.MomoTransID = deref(m.MomoTransID)
	p.PayURL = deref(m.PayURL)
	p.GatewayResponse = deref(m.GatewayResponse)

	if m.RefundRequestedAt != nil {
		p.Refund = &domain.Refund{
			Reason:      deref(m.RefundReason),
			RequestedAt: *m.RefundRequestedAt,
			ProcessedAt: m.RefundProcessedAt,
			ProcessedBy: deref(m.RefundProcessedBy),
		}
	}

	for i, entry := range m.Timeline {
		p.Timeline[i] = domain.TimelineEntry{
			Status:    entry.Status,
			ChangedBy: entry.ChangedBy,
			ChangedAt: entry.ChangedAt,
			Note:      entry.Note,
		}
	}

	return p
}

// paymentModelFromDomain конвертирует доменную сущность в GORM модель.
func paymentModelFromDomain(p *domain.Payment) *PaymentModel {
	model := &PaymentModel{
		ID:            p.ID,
		OrderID:       p.OrderID,
		UserID:        p.UserID,
		Amount:        p.Amount,
		Method:        string(p.Method),
		Status:        string(p.Status),
		FailureReason: p.FailureReason,
		PaidAt:        p.PaidAt,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
		Timeline:      make([]PaymentTimelineModel, len(p.Timeline)),
	}

	model.AppTransID = ref(p.AppTransID)
	model.ZpTransID = ref(p.ZpTransID)
	model.RequestID = ref(p.RequestID)
	model.MomoTransID = ref(p.MomoTransID)
	model.PayURL = ref(p.PayURL)
	model.GatewayResponse = ref(p.GatewayResponse)

	if p.Refund != nil {
		requestedAt := p.Refund.RequestedAt
		model.RefundReason = ref(p.Refund.Reason)
		model.RefundRequestedAt = &requestedAt
		model.RefundProcessedAt = p.Refund.ProcessedAt
		model.RefundProcessedBy = ref(p.Refund.ProcessedBy)
	}

	for i, entry := range p.Timeline {
		model.Timeline[i] = PaymentTimelineModel{
			PaymentID: p.ID,
			Status:    entry.Status,
			ChangedBy: entry.ChangedBy,
			ChangedAt: entry.ChangedAt,
			Note:      entry.Note,
		}
	}

	return model
}

// deref возвращает значение указателя или пустую строку.
func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ref возвращает указатель на строку или nil для пустой строки.
func ref(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// =============================================================================
// Реализация репозитория
// =============================================================================

// awaitingStatuses — статусы, в которых платёж ещё ждёт исход от шлюза.
var awaitingStatuses = []string{
	string(domain.StatusPending),
	string(domain.StatusProcessing),
}

// onlineMethods — методы с платёжным шлюзом.
var onlineMethods = []string{
	string(domain.MethodZaloPay),
	string(domain.MethodMoMo),
}

// paymentRepository — GORM реализация PaymentRepository.
type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository создаёт новый репозиторий платежей.
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

// Create создаёт новый платёж вместе с timeline в одной транзакции.
func (r *paymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	model := paymentModelFromDomain(payment)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(model).Error
	})

	if err != nil {
		if isDuplicateKeyError(err) {
			return domain.ErrActivePaymentExists
		}
		return err
	}

	payment.CreatedAt = model.CreatedAt
	payment.UpdatedAt = model.UpdatedAt

	return nil
}

// GetByID возвращает платёж по ID с timeline.
func (r *paymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	return r.getOne(ctx, "id = ?", id)
}

// GetByAppTransID возвращает платёж по app_trans_id (ZaloPay).
func (r *paymentRepository) GetByAppTransID(ctx context.Context, appTransID string) (*domain.Payment, error) {
	return r.getOne(ctx, "app_trans_id = ?", appTransID)
}

// GetByRequestID возвращает платёж по requestId (MoMo).
func (r *paymentRepository) GetByRequestID(ctx context.Context, requestID string) (*domain.Payment, error) {
	return r.getOne(ctx, "request_id = ?", requestID)
}

// GetActiveByOrder возвращает незавершённый платёж заказа.
func (r *paymentRepository) GetActiveByOrder(ctx context.Context, orderID string) (*domain.Payment, error) {
	return r.getOne(ctx, "order_id = ? AND status IN ?", orderID, awaitingStatuses)
}

// getOne загружает один платёж по условию.
func (r *paymentRepository) getOne(ctx context.Context, query string, args ...interface{}) (*domain.Payment, error) {
	var model PaymentModel

	if err := r.db.WithContext(ctx).
		Preload("Timeline", func(db *gorm.DB) *gorm.DB {
			return db.Order("payment_timeline.changed_at ASC")
		}).
		Where(query, args...).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}

	return model.toDomain(), nil
}

// UpdateGatewayRefs сохраняет корреляционные поля после обращения к шлюзу.
func (r *paymentRepository) UpdateGatewayRefs(ctx context.Context, payment *domain.Payment) error {
	result := r.db.WithContext(ctx).
		Model(&PaymentModel{}).
		Where("id = ?", payment.ID).
		Updates(map[string]interface{}{
			"app_trans_id":     ref(payment.AppTransID),
			"zp_trans_id":      ref(payment.ZpTransID),
			"request_id":       ref(payment.RequestID),
			"momo_trans_id":    ref(payment.MomoTransID),
			"pay_url":          ref(payment.PayURL),
			"gateway_response": ref(payment.GatewayResponse),
			"updated_at":       time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return domain.ErrPaymentNotFound
	}

	return nil
}

// UpdateStatusIf атомарно переводит платёж в новый статус одним условным UPDATE.
// Это единственная точка изменения статуса: callback и сверка, пришедшие
// одновременно, не могут применить конфликтующие исходы — второй писатель
// увидит RowsAffected == 0 и пропустит.
func (r *paymentRepository) UpdateStatusIf(ctx context.Context, paymentID string, from []domain.Status, to domain.Status, extra map[string]interface{}, changedBy, note string) (bool, error) {
	fromStatuses := make([]string, len(from))
	for i, s := range from {
		fromStatuses[i] = string(s)
	}

	updates := map[string]interface{}{
		"status":     string(to),
		"updated_at": time.Now(),
	}
	for k, v := range extra {
		updates[k] = v
	}

	var updated bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&PaymentModel{}).
			Where("id = ? AND status IN ?", paymentID, fromStatuses).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			// Статус уже терминальный — дубликат или запоздавший исход
			return nil
		}

		updated = true
		return tx.Create(&PaymentTimelineModel{
			PaymentID: paymentID,
			Status:    string(to),
			ChangedBy: changedBy,
			ChangedAt: time.Now(),
			Note:      note,
		}).Error
	})

	return updated, err
}

// UpdateRefund сохраняет данные возврата вместе со статусом и timeline.
func (r *paymentRepository) UpdateRefund(ctx context.Context, payment *domain.Payment) error {
	model := paymentModelFromDomain(payment)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&PaymentModel{}).
			Where("id = ?", payment.ID).
			Updates(map[string]interface{}{
				"status":              model.Status,
				"refund_reason":       model.RefundReason,
				"refund_requested_at": model.RefundRequestedAt,
				"refund_processed_at": model.RefundProcessedAt,
				"refund_processed_by": model.RefundProcessedBy,
				"updated_at":          time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrPaymentNotFound
		}

		// Последняя запись timeline домена ещё не сохранена
		if len(payment.Timeline) == 0 {
			return nil
		}
		last := payment.Timeline[len(payment.Timeline)-1]
		return tx.Create(&PaymentTimelineModel{
			PaymentID: payment.ID,
			Status:    last.Status,
			ChangedBy: last.ChangedBy,
			ChangedAt: last.ChangedAt,
			Note:      last.Note,
		}).Error
	})
}

// ListStuckOnline возвращает онлайн-платежи, ожидающие исход дольше льготного окна.
func (r *paymentRepository) ListStuckOnline(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Payment, error) {
	threshold := time.Now().Add(-olderThan)

	var models []PaymentModel
	if err := r.db.WithContext(ctx).
		Where("status IN ? AND method IN ? AND created_at < ?", awaitingStatuses, onlineMethods, threshold).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}

	return toDomainSlice(models), nil
}

// ListExpired возвращает платежи метода, просрочившие свой таймаут.
func (r *paymentRepository) ListExpired(ctx context.Context, method domain.Method, olderThan time.Duration, limit int) ([]*domain.Payment, error) {
	threshold := time.Now().Add(-olderThan)

	var models []PaymentModel
	if err := r.db.WithContext(ctx).
		Where("status IN ? AND method = ? AND created_at < ?", awaitingStatuses, string(method), threshold).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}

	return toDomainSlice(models), nil
}

// ListCreatedBetween возвращает незавершённые онлайн-платежи за период.
func (r *paymentRepository) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]*domain.Payment, error) {
	var models []PaymentModel
	if err := r.db.WithContext(ctx).
		Where("method IN ? AND status <> ? AND created_at BETWEEN ? AND ?",
			onlineMethods, string(domain.StatusCompleted), from, to).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}

	return toDomainSlice(models), nil
}

// CountStuckSince считает платежи, застрявшие в ожидании дольше stuckFor.
func (r *paymentRepository) CountStuckSince(ctx context.Context, stuckFor time.Duration) (int64, error) {
	threshold := time.Now().Add(-stuckFor)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&PaymentModel{}).
		Where("status IN ? AND method IN ? AND created_at < ?", awaitingStatuses, onlineMethods, threshold).
		Count(&count).Error

	return count, err
}

// CountByStatusSince считает платежи в статусе, созданные после since.
func (r *paymentRepository) CountByStatusSince(ctx context.Context, status domain.Status, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&PaymentModel{}).
		Where("status = ? AND created_at >= ?", string(status), since).
		Count(&count).Error

	return count, err
}

// StatsSince возвращает агрегаты платежей по статусам и методам.
func (r *paymentRepository) StatsSince(ctx context.Context, since time.Time) ([]StatusStat, error) {
	var stats []StatusStat
	err := r.db.WithContext(ctx).
		Model(&PaymentModel{}).
		Select("status, method, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount").
		Where("created_at >= ?", since).
		Group("status, method").
		Order("status, method").
		Scan(&stats).Error

	return stats, err
}

// toDomainSlice конвертирует список моделей в доменные сущности.
func toDomainSlice(models []PaymentModel) []*domain.Payment {
	payments := make([]*domain.Payment, len(models))
	for i := range models {
		payments[i] = models[i].toDomain()
	}
	return payments
}

// isDuplicateKeyError проверяет, является ли ошибка дубликатом ключа.
// MySQL возвращает ошибку с кодом 1062 при попытке вставить дубликат.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(errMsg, "Duplicate entry") ||
		strings.Contains(errMsg, "1062")
}
