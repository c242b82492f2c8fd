package coupon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Validator определяет интерфейс проверки купонов для оформления заказа.
type Validator interface {
	// Validate проверяет купон по всем правилам и рассчитывает скидку.
	// Возвращает ErrCouponNotFound или *ValidationError с причиной.
	Validate(ctx context.Context, code, userID string, cartTotal decimal.Decimal, productIDs, categoryIDs []string) (*Discount, error)

	// RecordUsage фиксирует использование купона заказом:
	// инкремент общего счётчика и запись per-user использования.
	RecordUsage(ctx context.Context, code, userID, orderID string) error
}

// =============================================================================
// GORM модели
// =============================================================================

// CouponModel — GORM модель для таблицы coupons.
// Списки ограничений хранятся как JSON-колонки.
type CouponModel struct {
	ID                 string          `gorm:"column:id;type:varchar(36);primaryKey"`
	Code               string          `gorm:"column:code;type:varchar(50);not null;uniqueIndex"`
	DiscountType       string          `gorm:"column:discount_type;type:varchar(20);not null"`
	Value              decimal.Decimal `gorm:"column:value;type:decimal(19,2);not null"`
	StartDate          time.Time       `gorm:"column:start_date;not null"`
	EndDate            time.Time       `gorm:"column:end_date;not null"`
	UsageLimit         int32           `gorm:"column:usage_limit;not null"`
	UsedCount          int32           `gorm:"column:used_count;not null"`
	PerUserLimit       int32           `gorm:"column:per_user_limit;not null"`
	MinSpend           decimal.Decimal `gorm:"column:min_spend;type:decimal(19,2);not null"`
	MaxSpend           decimal.Decimal `gorm:"column:max_spend;type:decimal(19,2);not null"`
	Active             bool            `gorm:"column:active;not null"`
	IncludedProducts   *string         `gorm:"column:included_products;type:json"`
	ExcludedProducts   *string         `gorm:"column:excluded_products;type:json"`
	IncludedCategories *string         `gorm:"column:included_categories;type:json"`
	ExcludedCategories *string         `gorm:"column:excluded_categories;type:json"`
	AllowedUsers       *string         `gorm:"column:allowed_users;type:json"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName возвращает имя таблицы в БД.
func (CouponModel) TableName() string {
	return "coupons"
}

// CouponUsageModel — GORM модель для таблицы coupon_usages.
type CouponUsageModel struct {
	ID       uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	CouponID string    `gorm:"column:coupon_id;type:varchar(36);not null;index"`
	UserID   string    `gorm:"column:user_id;type:varchar(36);not null;index"`
	OrderID  string    `gorm:"column:order_id;type:varchar(36);not null"`
	UsedAt   time.Time `gorm:"column:used_at;not null"`
}

// TableName возвращает имя таблицы в БД.
func (CouponUsageModel) TableName() string {
	return "coupon_usages"
}

// toDomain конвертирует GORM модель в доменную сущность.
func (m *CouponModel) toDomain() (*Coupon, error) {
	c := &Coupon{
		ID:           m.ID,
		Code:         m.Code,
		DiscountType: DiscountType(m.DiscountType),
		Value:        m.Value,
		StartDate:    m.StartDate,
		EndDate:      m.EndDate,
		UsageLimit:   m.UsageLimit,
		UsedCount:    m.UsedCount,
		PerUserLimit: m.PerUserLimit,
		MinSpend:     m.MinSpend,
		MaxSpend:     m.MaxSpend,
		Active:       m.Active,
	}

	for _, col := range []struct {
		raw  *string
		dest *[]string
	}{
		{m.IncludedProducts, &c.IncludedProducts},
		{m.ExcludedProducts, &c.ExcludedProducts},
		{m.IncludedCategories, &c.IncludedCategories},
		{m.ExcludedCategories, &c.ExcludedCategories},
		{m.AllowedUsers, &c.AllowedUsers},
	} {
		if col.raw == nil || *col.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(*col.raw), col.dest); err != nil {
			return nil, fmt.Errorf("ошибка разбора ограничений купона %s: %w", m.Code, err)
		}
	}

	return c, nil
}

// =============================================================================
// Реализация
// =============================================================================

// validator — GORM реализация Validator.
type validator struct {
	db  *gorm.DB
	now func() time.Time
}

// NewValidator создаёт новый компонент проверки купонов.
func NewValidator(db *gorm.DB) Validator {
	return &validator{db: db, now: time.Now}
}

// Validate проверяет купон и рассчитывает скидку.
func (v *validator) Validate(ctx context.Context, code, userID string, cartTotal decimal.Decimal, productIDs, categoryIDs []string) (*Discount, error) {
	coupon, err := v.getByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	var userUsedCount int64
	if err := v.db.WithContext(ctx).
		Model(&CouponUsageModel{}).
		Where("coupon_id = ? AND user_id = ?", coupon.ID, userID).
		Count(&userUsedCount).Error; err != nil {
		return nil, err
	}

	if err := coupon.CheckRules(userID, cartTotal, productIDs, categoryIDs, userUsedCount, v.now()); err != nil {
		return nil, err
	}

	discount := coupon.ComputeDiscount(cartTotal)
	return &discount, nil
}

// RecordUsage фиксирует использование купона в одной транзакции.
func (v *validator) RecordUsage(ctx context.Context, code, userID, orderID string) error {
	return v.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model CouponModel
		if err := tx.Select("id").Where("code = ?", code).First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCouponNotFound
			}
			return err
		}

		if err := tx.Model(&CouponModel{}).
			Where("id = ?", model.ID).
			Update("used_count", gorm.Expr("used_count + 1")).Error; err != nil {
			return err
		}

		return tx.Create(&CouponUsageModel{
			CouponID: model.ID,
			UserID:   userID,
			OrderID:  orderID,
			UsedAt:   v.now(),
		}).Error
	})
}

// getByCode загружает купон по коду.
func (v *validator) getByCode(ctx context.Context, code string) (*Coupon, error) {
	var model CouponModel
	if err := v.db.WithContext(ctx).
		Where("code = ?", code).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCouponNotFound
		}
		return nil, err
	}

	return model.toDomain()
}
