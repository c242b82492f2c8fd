// Package inventory реализует работу с остатками вариантов товара.
// Списание и возврат остатка — единичные условные UPDATE'ы: при
// конкурирующих заказах на один вариант не бывает потерянных обновлений.
package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Ошибки инвентаря.
var (
	// ErrProductNotFound возвращается, когда товар не найден или неактивен.
	ErrProductNotFound = errors.New("товар не найден")

	// ErrVariantNotFound возвращается, когда вариант товара не найден.
	ErrVariantNotFound = errors.New("вариант товара не найден")

	// ErrInsufficientStock возвращается, когда запрошенное количество
	// превышает доступный остаток.
	ErrInsufficientStock = errors.New("недостаточно товара на складе")
)

// Selector — выбор варианта товара покупателем.
type Selector struct {
	Size  string
	Color string
}

// Variant — вариант товара с собственным остатком и ценой.
// Цена — источник истины при оформлении заказа: клиентская цена не используется.
type Variant struct {
	ID          string
	ProductID   string
	ProductName string
	CategoryID  string
	SKU         string
	Size        string
	Color       string
	Price       decimal.Decimal
	Stock       int32
}

// Adjuster определяет интерфейс работы с остатками.
type Adjuster interface {
	// GetVariant возвращает активный вариант товара по селектору.
	GetVariant(ctx context.Context, productID string, sel Selector) (*Variant, error)

	// Decrement атомарно списывает qty единиц остатка варианта.
	// Возвращает ErrInsufficientStock, если остатка не хватает —
	// проверка и списание выполняются одним UPDATE.
	Decrement(ctx context.Context, variantID string, qty int32) error

	// Restore возвращает qty единиц остатка варианта (отмена, возврат).
	Restore(ctx context.Context, variantID string, qty int32) error
}

// =============================================================================
// GORM модели
// =============================================================================

// ProductModel — GORM модель для таблицы products.
// Каталог ведётся внешней системой, здесь только чтение.
type ProductModel struct {
	ID         string    `gorm:"column:id;type:varchar(36);primaryKey"`
	Name       string    `gorm:"column:name;type:varchar(255);not null"`
	CategoryID string    `gorm:"column:category_id;type:varchar(36);not null;index"`
	Active     bool      `gorm:"column:active;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName возвращает имя таблицы в БД.
func (ProductModel) TableName() string {
	return "products"
}

// VariantModel — GORM модель для таблицы product_variants.
type VariantModel struct {
	ID        string          `gorm:"column:id;type:varchar(36);primaryKey"`
	ProductID string          `gorm:"column:product_id;type:varchar(36);not null;index"`
	SKU       string          `gorm:"column:sku;type:varchar(100);not null;uniqueIndex"`
	Size      string          `gorm:"column:size;type:varchar(20);not null"`
	Color     string          `gorm:"column:color;type:varchar(50);not null"`
	Price     decimal.Decimal `gorm:"column:price;type:decimal(19,2);not null"`
	Stock     int32           `gorm:"column:stock;not null"`
	Active    bool            `gorm:"column:active;not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName возвращает имя таблицы в БД.
func (VariantModel) TableName() string {
	return "product_variants"
}

// =============================================================================
// Реализация
// =============================================================================

// adjuster — GORM реализация Adjuster.
type adjuster struct {
	db *gorm.DB
}

// NewAdjuster создаёт новый компонент работы с остатками.
func NewAdjuster(db *gorm.DB) Adjuster {
	return &adjuster{db: db}
}

// GetVariant возвращает активный вариант товара по селектору.
func (a *adjuster) GetVariant(ctx context.Context, productID string, sel Selector) (*Variant, error) {
	var product ProductModel
	if err := a.db.WithContext(ctx).
		Where("id = ? AND active = ?", productID, true).
		First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}

	var model VariantModel
	if err := a.db.WithContext(ctx).
		Where("product_id = ? AND size = ? AND color = ? AND active = ?",
			productID, sel.Size, sel.Color, true).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVariantNotFound
		}
		return nil, err
	}

	return &Variant{
		ID:          model.ID,
		ProductID:   model.ProductID,
		ProductName: product.Name,
		CategoryID:  product.CategoryID,
		SKU:         model.SKU,
		Size:        model.Size,
		Color:       model.Color,
		Price:       model.Price,
		Stock:       model.Stock,
	}, nil
}

// Decrement атомарно списывает остаток варианта.
// Условие stock >= qty входит в сам UPDATE: при нехватке остатка
// запрос не затрагивает ни одной строки.
func (a *adjuster) Decrement(ctx context.Context, variantID string, qty int32) error {
	result := a.db.WithContext(ctx).
		Model(&VariantModel{}).
		Where("id = ? AND stock >= ?", variantID, qty).
		Updates(map[string]interface{}{
			"stock":      gorm.Expr("stock - ?", qty),
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		// Либо варианта нет, либо остатка не хватает — уточняем
		var model VariantModel
		if err := a.db.WithContext(ctx).
			Select("id").
			Where("id = ?", variantID).
			First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrVariantNotFound
			}
			return err
		}
		return ErrInsufficientStock
	}

	return nil
}

// Restore возвращает остаток варианта при отмене заказа или возврате.
func (a *adjuster) Restore(ctx context.Context, variantID string, qty int32) error {
	result := a.db.WithContext(ctx).
		Model(&VariantModel{}).
		Where("id = ?", variantID).
		Updates(map[string]interface{}{
			"stock":      gorm.Expr("stock + ?", qty),
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrVariantNotFound
	}

	return nil
}
