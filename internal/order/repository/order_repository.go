// Package repository содержит реализацию доступа к данным заказов.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"example.com/shop-backend/internal/order/domain"
)

// OrderRepository определяет интерфейс для работы с заказами в БД.
type OrderRepository interface {
	// Create создаёт новый заказ с позициями и первой записью timeline.
	// Выполняется в транзакции для атомарности.
	Create(ctx context.Context, order *domain.Order) error

	// GetByID возвращает заказ по ID с позициями и timeline.
	GetByID(ctx context.Context, orderID string) (*domain.Order, error)

	// ListByUser возвращает заказы пользователя с пагинацией.
	// status может быть nil для получения заказов во всех статусах.
	ListByUser(ctx context.Context, userID string, status *domain.OrderStatus, offset, limit int) ([]*domain.Order, int64, error)

	// UpdateStatusIf атомарно переводит заказ из одного из статусов from в to
	// одним условным UPDATE. Возвращает false без ошибки, если текущий статус
	// не входит в from — конкурирующий писатель уже успел раньше.
	// При успехе добавляет запись в timeline.
	UpdateStatusIf(ctx context.Context, orderID string, from []domain.OrderStatus, to domain.OrderStatus, changedBy, note string) (bool, error)

	// SetPaymentStatus обновляет статус оплаты заказа независимо от статуса заказа.
	SetPaymentStatus(ctx context.Context, orderID string, paymentStatus domain.PaymentStatus) error

	// AdvanceStatusIfPending продвигает заказ pending → confirmed.
	// Единственный способ, которым платёжный путь влияет на статус заказа:
	// уже продвинутый администратором заказ не трогается.
	AdvanceStatusIfPending(ctx context.Context, orderID string, note string) (bool, error)
}

// =============================================================================
// GORM модели
// =============================================================================

// OrderModel — GORM модель для таблицы orders.
// Отделена от доменной сущности для гибкости.
// Денежные колонки — decimal(19,2): суммы всегда точные, без плавающей точки.
type OrderModel struct {
	ID            string          `gorm:"column:id;type:varchar(36);primaryKey"`
	UserID        string          `gorm:"column:user_id;type:varchar(36);not null;index"`
	Status        string          `gorm:"column:status;type:varchar(20);not null;index"`
	PaymentMethod string          `gorm:"column:payment_method;type:varchar(20);not null"`
	PaymentStatus string          `gorm:"column:payment_status;type:varchar(20);not null;index"`
	Subtotal      decimal.Decimal `gorm:"column:subtotal;type:decimal(19,2);not null"`
	CouponCode    *string         `gorm:"column:coupon_code;type:varchar(50)"`
	DiscountType  *string         `gorm:"column:discount_type;type:varchar(20)"`
	Discount      decimal.Decimal `gorm:"column:discount;type:decimal(19,2);not null"`
	Total         decimal.Decimal `gorm:"column:total;type:decimal(19,2);not null"`
	ShipFullName  string          `gorm:"column:ship_full_name;type:varchar(255);not null"`
	ShipPhone     string          `gorm:"column:ship_phone;type:varchar(20);not null"`
	ShipAddress   string          `gorm:"column:ship_address;type:varchar(500);not null"`
	ShipWard      string          `gorm:"column:ship_ward;type:varchar(100)"`
	ShipCity      string          `gorm:"column:ship_city;type:varchar(100);not null"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`

	Items    []OrderItemModel     `gorm:"foreignKey:OrderID;references:ID"`
	Timeline []OrderTimelineModel `gorm:"foreignKey:OrderID;references:ID"`
}

// TableName возвращает имя таблицы в БД.
func (OrderModel) TableName() string {
	return "orders"
}

// OrderItemModel — GORM модель для таблицы order_items.
// Снимок варианта на момент заказа, после создания не изменяется.
type OrderItemModel struct {
	ID          string          `gorm:"column:id;type:varchar(36);primaryKey"`
	OrderID     string          `gorm:"column:order_id;type:varchar(36);not null;index"`
	ProductID   string          `gorm:"column:product_id;type:varchar(36);not null"`
	ProductName string          `gorm:"column:product_name;type:varchar(255);not null"`
	VariantID   string          `gorm:"column:variant_id;type:varchar(36);not null"`
	VariantSKU  string          `gorm:"column:variant_sku;type:varchar(100);not null"`
	Size        string          `gorm:"column:size;type:varchar(20)"`
	Color       string          `gorm:"column:color;type:varchar(50)"`
	Quantity    int32           `gorm:"column:quantity;not null"`
	UnitPrice   decimal.Decimal `gorm:"column:unit_price;type:decimal(19,2);not null"`
	TotalPrice  decimal.Decimal `gorm:"column:total_price;type:decimal(19,2);not null"`
	StockAtTime int32           `gorm:"column:stock_at_time;not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// TableName возвращает имя таблицы в БД.
func (OrderItemModel) TableName() string {
	return "order_items"
}

// OrderTimelineModel — GORM модель для таблицы order_timeline.
// Append-only: записи никогда не обновляются и не удаляются.
type OrderTimelineModel struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID   string    `gorm:"column:order_id;type:varchar(36);not null;index"`
	Status    string    `gorm:"column:status;type:varchar(20);not null"`
	ChangedBy string    `gorm:"column:changed_by;type:varchar(36);not null"`
	ChangedAt time.Time `gorm:"column:changed_at;not null"`
	Note      string    `gorm:"column:note;type:text"`
}

// TableName возвращает имя таблицы в БД.
func (OrderTimelineModel) TableName() string {
	return "order_timeline"
}

// toDomain конвертирует GORM модель заказа в доменную сущность.
func (m *OrderModel) toDomain() *domain.Order {
	order := &domain.Order{
		ID:            m.ID,
		UserID:        m.UserID,
		Status:        domain.OrderStatus(m.Status),
		PaymentMethod: domain.PaymentMethod(m.PaymentMethod),
		PaymentStatus: domain.PaymentStatus(m.PaymentStatus),
		Subtotal:      m.Subtotal,
		Total:         m.Total,
		ShippingAddress: domain.ShippingAddress{
			FullName: m.ShipFullName,
			Phone:    m.ShipPhone,
			Address:  m.ShipAddress,
			Ward:     m.ShipWard,
			City:     m.ShipCity,
		},
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
		Items:     make([]domain.OrderItem, len(m.Items)),
		Timeline:  make([]domain.TimelineEntry, len(m.Timeline)),
	}

	if m.CouponCode != nil {
		coupon := &domain.AppliedCoupon{
			Code:           *m.CouponCode,
			DiscountAmount: m.Discount,
		}
		if m.DiscountType != nil {
			coupon.DiscountType = domain.DiscountType(*m.DiscountType)
		}
		order.AppliedCoupon = coupon
	}

	for i, item := range m.Items {
		order.Items[i] = *item.toDomain()
	}
	for i, entry := range m.Timeline {
		order.Timeline[i] = domain.TimelineEntry{
			Status:    entry.Status,
			ChangedBy: entry.ChangedBy,
			ChangedAt: entry.ChangedAt,
			Note:      entry.Note,
		}
	}

	return order
}

// toDomain конвертирует GORM модель позиции в доменную сущность.
func (m *OrderItemModel) toDomain() *domain.OrderItem {
	return &domain.OrderItem{
		ID:          m.ID,
		OrderID:     m.OrderID,
		ProductID:   m.ProductID,
		ProductName: m.ProductName,
		VariantID:   m.VariantID,
		VariantSKU:  m.VariantSKU,
		Size:        m.Size,
		Color:       m.Color,
		Quantity:    m.Quantity,
		UnitPrice:   m.UnitPrice,
		TotalPrice:  m.TotalPrice,
		StockAtTime: m.StockAtTime,
	}
}

// orderModelFromDomain конвертирует доменную сущность заказа в GORM модель.
func orderModelFromDomain(o *domain.Order) *OrderModel {
	model := &OrderModel{
		ID:            o.ID,
		UserID:        o.UserID,
		Status:        string(o.Status),
		PaymentMethod: string(o.PaymentMethod),
		PaymentStatus: string(o.PaymentStatus),
		Subtotal:      o.Subtotal,
		Discount:      decimal.Zero,
		Total:         o.Total,
		ShipFullName:  o.ShippingAddress.FullName,
		ShipPhone:     o.ShippingAddress.Phone,
		ShipAddress:   o.ShippingAddress.Address,
		ShipWard:      o.ShippingAddress.Ward,
		ShipCity:      o.ShippingAddress.City,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
		Items:         make([]OrderItemModel, len(o.Items)),
		Timeline:      make([]OrderTimelineModel, len(o.Timeline)),
	}

	if o.AppliedCoupon != nil {
		code := o.AppliedCoupon.Code
		discountType := string(o.AppliedCoupon.DiscountType)
		model.CouponCode = &code
		model.DiscountType = &discountType
		model.Discount = o.AppliedCoupon.DiscountAmount
	}

	for i, item := range o.Items {
		model.Items[i] = OrderItemModel{
			ID:          item.ID,
			OrderID:     o.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			VariantID:   item.VariantID,
			VariantSKU:  item.VariantSKU,
			Size:        item.Size,
			Color:       item.Color,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TotalPrice:  item.TotalPrice,
			StockAtTime: item.StockAtTime,
		}
	}
	for i, entry := range o.Timeline {
		model.Timeline[i] = OrderTimelineModel{
			OrderID:   o.ID,
			Status:    entry.Status,
			ChangedBy: entry.ChangedBy,
			ChangedAt: entry.ChangedAt,
			Note:      entry.Note,
		}
	}

	return model
}

// =============================================================================
// Реализация репозитория
// =============================================================================

// orderRepository — GORM реализация OrderRepository.
type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository создаёт новый репозиторий заказов.
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// Create создаёт новый заказ с позициями и timeline в одной транзакции.
func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	model := orderModelFromDomain(order)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Позиции и timeline GORM создаёт через ассоциации
		return tx.Create(model).Error
	})

	if err != nil {
		if isDuplicateKeyError(err) {
			return domain.ErrOrderNotFound // Дубликат UUID практически невозможен
		}
		return err
	}

	order.CreatedAt = model.CreatedAt
	order.UpdatedAt = model.UpdatedAt

	return nil
}

// GetByID возвращает заказ по ID с позициями и timeline.
func (r *orderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	var model OrderModel

	if err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Timeline", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_timeline.changed_at ASC")
		}).
		Where("id = ?", id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}

	return model.toDomain(), nil
}

// ListByUser возвращает список заказов пользователя с пагинацией.
// Опциональный фильтр по статусу, возвращает также общее количество записей.
func (r *orderRepository) ListByUser(ctx context.Context, userID string, status *domain.OrderStatus, offset, limit int) ([]*domain.Order, int64, error) {
	var models []OrderModel
	var totalCount int64

	query := r.db.WithContext(ctx).Model(&OrderModel{}).Where("user_id = ?", userID)

	if status != nil {
		query = query.Where("status = ?", string(*status))
	}

	// Подсчёт общего количества записей (до пагинации)
	if err := query.Count(&totalCount).Error; err != nil {
		return nil, 0, err
	}

	// Пагинация и сортировка (новые заказы первыми)
	if err := query.
		Preload("Items").
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, 0, err
	}

	orders := make([]*domain.Order, len(models))
	for i := range models {
		orders[i] = models[i].toDomain()
	}

	return orders, totalCount, nil
}

// UpdateStatusIf атомарно переводит заказ в новый статус одним условным UPDATE.
// Второй конкурирующий писатель увидит RowsAffected == 0 и пропустит запись:
// ровно один переход выигрывает, распределённая блокировка не нужна.
func (r *orderRepository) UpdateStatusIf(ctx context.Context, orderID string, from []domain.OrderStatus, to domain.OrderStatus, changedBy, note string) (bool, error) {
	fromStatuses := make([]string, len(from))
	for i, s := range from {
		fromStatuses[i] = string(s)
	}

	var updated bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&OrderModel{}).
			Where("id = ? AND status IN ?", orderID, fromStatuses).
			Updates(map[string]interface{}{
				"status":     string(to),
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			// Статус уже изменён другим путём — это не ошибка
			return nil
		}

		updated = true
		return tx.Create(&OrderTimelineModel{
			OrderID:   orderID,
			Status:    string(to),
			ChangedBy: changedBy,
			ChangedAt: time.Now(),
			Note:      note,
		}).Error
	})

	return updated, err
}

// SetPaymentStatus обновляет статус оплаты заказа.
// Статус самого заказа не затрагивается.
func (r *orderRepository) SetPaymentStatus(ctx context.Context, orderID string, paymentStatus domain.PaymentStatus) error {
	result := r.db.WithContext(ctx).
		Model(&OrderModel{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"payment_status": string(paymentStatus),
			"updated_at":     time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return domain.ErrOrderNotFound
	}

	return nil
}

// AdvanceStatusIfPending продвигает заказ pending → confirmed.
func (r *orderRepository) AdvanceStatusIfPending(ctx context.Context, orderID string, note string) (bool, error) {
	return r.UpdateStatusIf(ctx, orderID,
		[]domain.OrderStatus{domain.OrderStatusPending},
		domain.OrderStatusConfirmed,
		domain.ChangedBySystem, note)
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
