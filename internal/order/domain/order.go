// Package domain содержит бизнес-сущности и доменные ошибки заказов.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MaxOrderItems — максимальное количество позиций в одном заказе.
const MaxOrderItems = 100

// OrderStatus — статус заказа в системе.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, ожидает подтверждения.
	OrderStatusPending OrderStatus = "pending"

	// OrderStatusConfirmed — заказ подтверждён (оплата прошла или подтвердил администратор).
	OrderStatusConfirmed OrderStatus = "confirmed"

	// OrderStatusProcessing — заказ собирается на складе.
	OrderStatusProcessing OrderStatus = "processing"

	// OrderStatusShipping — заказ передан в доставку.
	OrderStatusShipping OrderStatus = "shipping"

	// OrderStatusDelivered — заказ доставлен покупателю.
	OrderStatusDelivered OrderStatus = "delivered"

	// OrderStatusCompleted — заказ завершён. Из него возможна только ветка возврата.
	OrderStatusCompleted OrderStatus = "completed"

	// OrderStatusCancelled — заказ отменён пользователем или системой.
	OrderStatusCancelled OrderStatus = "cancelled"

	// OrderStatusReturning — покупатель запросил возврат, товар в пути обратно.
	OrderStatusReturning OrderStatus = "returning"

	// OrderStatusReturned — возврат подтверждён, товар принят обратно.
	OrderStatusReturned OrderStatus = "returned"
)

// PaymentStatus — статус оплаты заказа.
// Ведётся независимо от статуса самого заказа: COD-заказ может быть
// в доставке с неоплаченным платежом.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

// PaymentMethod — метод оплаты заказа. Неизменяем после создания.
type PaymentMethod string

const (
	// PaymentMethodCOD — оплата наличными при получении.
	PaymentMethodCOD PaymentMethod = "cod"

	// PaymentMethodBanking — банковский перевод (подтверждается вручную).
	PaymentMethodBanking PaymentMethod = "banking"

	// PaymentMethodZaloPay — онлайн-оплата через ZaloPay.
	PaymentMethodZaloPay PaymentMethod = "zalopay"

	// PaymentMethodMoMo — онлайн-оплата через MoMo.
	PaymentMethodMoMo PaymentMethod = "momo"
)

// IsValid проверяет, что метод оплаты известен системе.
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCOD, PaymentMethodBanking, PaymentMethodZaloPay, PaymentMethodMoMo:
		return true
	}
	return false
}

// IsOnline возвращает true для методов с платёжным шлюзом.
// Только онлайн-методы участвуют в сверке и истекают по таймауту.
func (m PaymentMethod) IsOnline() bool {
	return m == PaymentMethodZaloPay || m == PaymentMethodMoMo
}

// DiscountType — тип скидки купона.
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// Актор изменения статуса для записи в timeline.
const (
	ChangedBySystem = "system"
	ChangedByUser   = "user"
	ChangedByAdmin  = "admin"
)

// =============================================================================
// Допустимые переходы статуса заказа (State Machine)
// =============================================================================

// allowedTransitions определяет валидные переходы статуса заказа.
// Основная цепочка pending → confirmed → processing → shipping → delivered →
// completed, боковые ветки cancelled и returning → returned.
var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipping},
	OrderStatusShipping:   {OrderStatusDelivered},
	OrderStatusDelivered:  {OrderStatusCompleted},
	OrderStatusCompleted:  {OrderStatusReturning},
	OrderStatusReturning:  {OrderStatusReturned},
	// OrderStatusCancelled и OrderStatusReturned — терминальные состояния
}

// =============================================================================
// Order — доменная сущность
// =============================================================================

// Order — заказ в системе.
// Это доменная сущность без зависимостей от инфраструктуры (GORM, HTTP).
type Order struct {
	ID              string          // UUID заказа
	UserID          string          // ID пользователя, создавшего заказ
	Items           []OrderItem     // Позиции заказа (снимок на момент оформления)
	Subtotal        decimal.Decimal // Сумма позиций до скидки
	AppliedCoupon   *AppliedCoupon  // Применённый купон (nil если без купона)
	Total           decimal.Decimal // Итог: max(0, Subtotal - скидка)
	Status          OrderStatus     // Статус заказа
	PaymentMethod   PaymentMethod   // Метод оплаты (неизменяем)
	PaymentStatus   PaymentStatus   // Статус оплаты (независим от Status)
	ShippingAddress ShippingAddress // Адрес доставки
	Timeline        []TimelineEntry // Append-only история переходов статуса
	CreatedAt       time.Time       // Дата создания
	UpdatedAt       time.Time       // Дата последнего обновления
}

// Validate проверяет корректность полей заказа перед созданием.
func (o *Order) Validate() error {
	if strings.TrimSpace(o.UserID) == "" {
		return ErrInvalidUserID
	}

	if !o.PaymentMethod.IsValid() {
		return ErrInvalidPaymentMethod
	}

	if err := o.ShippingAddress.Validate(); err != nil {
		return err
	}

	return o.validateItems()
}

// validateItems проверяет позиции: от 1 до MaxOrderItems, каждая корректна.
func (o *Order) validateItems() error {
	if len(o.Items) == 0 {
		return ErrEmptyOrderItems
	}
	if len(o.Items) > MaxOrderItems {
		return ErrTooManyOrderItems
	}

	for i := range o.Items {
		if err := o.Items[i].Validate(); err != nil {
			return err
		}
	}

	return nil
}

// RecalculateTotals пересчитывает subtotal и итог заказа из позиций.
// Вызывается при любом изменении позиций или купона:
// subtotal = Σ total_price, total = max(0, subtotal - скидка).
func (o *Order) RecalculateTotals() {
	subtotal := decimal.Zero
	for i := range o.Items {
		o.Items[i].TotalPrice = o.Items[i].UnitPrice.Mul(decimal.NewFromInt(int64(o.Items[i].Quantity)))
		subtotal = subtotal.Add(o.Items[i].TotalPrice)
	}

	o.Subtotal = subtotal

	total := subtotal
	if o.AppliedCoupon != nil {
		total = total.Sub(o.AppliedCoupon.DiscountAmount)
	}
	if total.IsNegative() {
		total = decimal.Zero
	}
	o.Total = total
}

// CanTransitionTo проверяет, допустим ли переход в указанный статус.
func (o *Order) CanTransitionTo(newStatus OrderStatus) bool {
	allowed, ok := allowedTransitions[o.Status]
	if !ok {
		return false // Терминальное состояние
	}
	for _, status := range allowed {
		if status == newStatus {
			return true
		}
	}
	return false
}

// TransitionTo выполняет переход в новый статус и добавляет запись в timeline.
// changedBy — актор перехода (system/user/admin), note — пояснение для истории.
func (o *Order) TransitionTo(newStatus OrderStatus, changedBy, note string) error {
	if !o.CanTransitionTo(newStatus) {
		return ErrInvalidTransition
	}

	now := time.Now()
	o.Status = newStatus
	o.UpdatedAt = now
	o.Timeline = append(o.Timeline, TimelineEntry{
		Status:    string(newStatus),
		ChangedBy: changedBy,
		ChangedAt: now,
		Note:      note,
	})
	return nil
}

// CanBeCancelled проверяет, может ли пользователь отменить заказ.
// Отмена доступна только до начала сборки: pending или confirmed.
func (o *Order) CanBeCancelled() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusConfirmed
}

// IsTerminal возвращает true, если статус заказа финальный.
// completed не терминальный в строгом смысле: из него возможна ветка возврата.
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusCancelled || o.Status == OrderStatusReturned
}

// =============================================================================
// Вложенные сущности
// =============================================================================

// OrderItem — позиция заказа.
// Снимок варианта товара на момент оформления: цена и остаток берутся
// из каталога при создании и больше не меняются.
type OrderItem struct {
	ID          string          // UUID позиции
	OrderID     string          // ID заказа
	ProductID   string          // ID товара
	ProductName string          // Название товара (денормализовано для истории)
	VariantID   string          // ID варианта (для возврата стока при отмене)
	VariantSKU  string          // Артикул варианта
	Size        string          // Размер варианта
	Color       string          // Цвет варианта
	UnitPrice   decimal.Decimal // Цена за единицу на момент заказа
	Quantity    int32           // Количество единиц
	TotalPrice  decimal.Decimal // UnitPrice * Quantity
	StockAtTime int32           // Остаток варианта на момент заказа
}

// Validate проверяет корректность полей позиции заказа.
func (oi *OrderItem) Validate() error {
	if strings.TrimSpace(oi.ProductID) == "" {
		return ErrInvalidProductID
	}

	if oi.Quantity <= 0 {
		return ErrInvalidQuantity
	}

	if !oi.UnitPrice.IsPositive() {
		return ErrInvalidPrice
	}

	return nil
}

// AppliedCoupon — применённый к заказу купон.
type AppliedCoupon struct {
	Code           string          // Код купона
	DiscountType   DiscountType    // percentage или fixed
	DiscountAmount decimal.Decimal // Итоговая сумма скидки
}

// TimelineEntry — запись истории переходов статуса.
// История append-only: записи никогда не изменяются и не удаляются.
type TimelineEntry struct {
	Status    string    // Новый статус
	ChangedBy string    // Актор перехода (system/user/admin)
	ChangedAt time.Time // Момент перехода
	Note      string    // Пояснение
}

// ShippingAddress — адрес доставки заказа.
type ShippingAddress struct {
	FullName string // ФИО получателя
	Phone    string // Телефон получателя
	Address  string // Улица, дом
	Ward     string // Район
	City     string // Город
}

// Validate проверяет, что обязательные поля адреса заполнены.
func (a ShippingAddress) Validate() error {
	if strings.TrimSpace(a.FullName) == "" ||
		strings.TrimSpace(a.Phone) == "" ||
		strings.TrimSpace(a.Address) == "" ||
		strings.TrimSpace(a.City) == "" {
		return ErrInvalidShippingAddress
	}
	return nil
}
