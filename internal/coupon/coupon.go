// Package coupon реализует проверку купонов и расчёт скидки.
package coupon

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrCouponNotFound возвращается, когда купон не найден.
var ErrCouponNotFound = errors.New("купон не найден")

// Причины отклонения купона. Возвращаются пользователю как sub-reason.
const (
	ReasonInactive        = "inactive"
	ReasonNotStarted      = "not_started"
	ReasonExpired         = "expired"
	ReasonUsageLimit      = "usage_limit"
	ReasonUserLimit       = "user_limit"
	ReasonMinSpend        = "min_spend"
	ReasonMaxSpend        = "max_spend"
	ReasonUserNotAllowed  = "user_not_allowed"
	ReasonProductExcluded = "product_excluded"
	ReasonNotEligible     = "not_eligible"
)

// ValidationError — отклонение купона с машиночитаемой причиной.
type ValidationError struct {
	Code   string // Код купона
	Reason string // Одна из констант Reason*
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("купон %s отклонён: %s", e.Code, e.Reason)
}

// DiscountType — тип скидки купона.
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// Discount — рассчитанная скидка по купону.
type Discount struct {
	Code   string
	Type   DiscountType
	Amount decimal.Decimal
}

// Coupon — купон со всеми правилами применения.
type Coupon struct {
	ID           string
	Code         string
	DiscountType DiscountType
	Value        decimal.Decimal // Процент для percentage, сумма для fixed
	StartDate    time.Time
	EndDate      time.Time
	UsageLimit   int32 // Общий лимит использований (0 — без лимита)
	UsedCount    int32
	PerUserLimit int32           // Лимит на пользователя (0 — без лимита)
	MinSpend     decimal.Decimal // Минимальная сумма корзины
	MaxSpend     decimal.Decimal // Максимальная сумма корзины (0 — без лимита)
	Active       bool

	// Ограничения применимости. Пустой список — ограничения нет.
	IncludedProducts   []string // Купон действует только на эти товары
	ExcludedProducts   []string // Купон не действует на эти товары
	IncludedCategories []string
	ExcludedCategories []string
	AllowedUsers       []string // Купон доступен только этим пользователям
}

// CheckRules проверяет все правила применимости купона.
// userUsedCount — сколько раз этот пользователь уже использовал купон.
// Возвращает первый нарушенный пункт как ValidationError.
func (c *Coupon) CheckRules(userID string, cartTotal decimal.Decimal, productIDs, categoryIDs []string, userUsedCount int64, now time.Time) error {
	if !c.Active {
		return &ValidationError{Code: c.Code, Reason: ReasonInactive}
	}

	if now.Before(c.StartDate) {
		return &ValidationError{Code: c.Code, Reason: ReasonNotStarted}
	}
	if now.After(c.EndDate) {
		return &ValidationError{Code: c.Code, Reason: ReasonExpired}
	}

	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return &ValidationError{Code: c.Code, Reason: ReasonUsageLimit}
	}
	if c.PerUserLimit > 0 && userUsedCount >= int64(c.PerUserLimit) {
		return &ValidationError{Code: c.Code, Reason: ReasonUserLimit}
	}

	if c.MinSpend.IsPositive() && cartTotal.LessThan(c.MinSpend) {
		return &ValidationError{Code: c.Code, Reason: ReasonMinSpend}
	}
	if c.MaxSpend.IsPositive() && cartTotal.GreaterThan(c.MaxSpend) {
		return &ValidationError{Code: c.Code, Reason: ReasonMaxSpend}
	}

	if len(c.AllowedUsers) > 0 && !contains(c.AllowedUsers, userID) {
		return &ValidationError{Code: c.Code, Reason: ReasonUserNotAllowed}
	}

	if err := c.checkEligibility(productIDs, categoryIDs); err != nil {
		return err
	}

	return nil
}

// checkEligibility проверяет ограничения по товарам и категориям.
// Исключение строже включения: товар из excluded-списка отклоняет корзину
// даже при совпадении included-списка.
func (c *Coupon) checkEligibility(productIDs, categoryIDs []string) error {
	for _, id := range productIDs {
		if contains(c.ExcludedProducts, id) {
			return &ValidationError{Code: c.Code, Reason: ReasonProductExcluded}
		}
	}
	for _, id := range categoryIDs {
		if contains(c.ExcludedCategories, id) {
			return &ValidationError{Code: c.Code, Reason: ReasonProductExcluded}
		}
	}

	if len(c.IncludedProducts) > 0 || len(c.IncludedCategories) > 0 {
		if !containsAny(c.IncludedProducts, productIDs) && !containsAny(c.IncludedCategories, categoryIDs) {
			return &ValidationError{Code: c.Code, Reason: ReasonNotEligible}
		}
	}

	return nil
}

// ComputeDiscount рассчитывает скидку по канонической формуле:
// процентная скидка = cartTotal * value / 100, фиксированная = value;
// обе ограничены сверху суммой корзины.
func (c *Coupon) ComputeDiscount(cartTotal decimal.Decimal) Discount {
	var amount decimal.Decimal

	switch c.DiscountType {
	case DiscountTypePercentage:
		amount = cartTotal.Mul(c.Value).Div(decimal.NewFromInt(100)).Round(2)
	default:
		amount = c.Value
	}

	if amount.GreaterThan(cartTotal) {
		amount = cartTotal
	}

	return Discount{
		Code:   c.Code,
		Type:   c.DiscountType,
		Amount: amount,
	}
}

// contains проверяет наличие значения в списке.
func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

// containsAny проверяет пересечение списков.
func containsAny(list, values []string) bool {
	for _, v := range values {
		if contains(list, v) {
			return true
		}
	}
	return false
}
