// Package coupon содержит unit тесты правил купонов и расчёта скидки.
package coupon

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sale10 — процентный купон 10% с минимальной суммой корзины 100000.
func sale10() *Coupon {
	return &Coupon{
		ID:           "coupon-sale10",
		Code:         "SALE10",
		DiscountType: DiscountTypePercentage,
		Value:        decimal.NewFromInt(10),
		StartDate:    time.Now().Add(-24 * time.Hour),
		EndDate:      time.Now().Add(24 * time.Hour),
		MinSpend:     decimal.NewFromInt(100000),
		Active:       true,
	}
}

// =====================================
// Тесты CheckRules
// =====================================

// TestCoupon_CheckRules тестирует все правила применимости купона.
func TestCoupon_CheckRules(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name           string
		mutate         func(c *Coupon)
		cartTotal      decimal.Decimal
		userID         string
		productIDs     []string
		categoryIDs    []string
		userUsedCount  int64
		expectedReason string // Пусто — купон проходит
	}{
		{
			name:      "купон проходит все правила",
			mutate:    func(c *Coupon) {},
			cartTotal: decimal.NewFromInt(200000),
		},
		{
			name:           "неактивный купон",
			mutate:         func(c *Coupon) { c.Active = false },
			cartTotal:      decimal.NewFromInt(200000),
			expectedReason: ReasonInactive,
		},
		{
			name:           "срок ещё не начался",
			mutate:         func(c *Coupon) { c.StartDate = now.Add(time.Hour) },
			cartTotal:      decimal.NewFromInt(200000),
			expectedReason: ReasonNotStarted,
		},
		{
			name:           "срок истёк",
			mutate:         func(c *Coupon) { c.EndDate = now.Add(-time.Hour) },
			cartTotal:      decimal.NewFromInt(200000),
			expectedReason: ReasonExpired,
		},
		{
			name: "общий лимит исчерпан",
			mutate: func(c *Coupon) {
				c.UsageLimit = 100
				c.UsedCount = 100
			},
			cartTotal:      decimal.NewFromInt(200000),
			expectedReason: ReasonUsageLimit,
		},
		{
			name:           "лимит на пользователя исчерпан",
			mutate:         func(c *Coupon) { c.PerUserLimit = 1 },
			cartTotal:      decimal.NewFromInt(200000),
			userUsedCount:  1,
			expectedReason: ReasonUserLimit,
		},
		{
			name:           "корзина меньше минимальной суммы",
			mutate:         func(c *Coupon) {},
			cartTotal:      decimal.NewFromInt(50000),
			expectedReason: ReasonMinSpend,
		},
		{
			name:           "корзина больше максимальной суммы",
			mutate:         func(c *Coupon) { c.MaxSpend = decimal.NewFromInt(500000) },
			cartTotal:      decimal.NewFromInt(600000),
			expectedReason: ReasonMaxSpend,
		},
		{
			name:           "пользователь не в списке разрешённых",
			mutate:         func(c *Coupon) { c.AllowedUsers = []string{"vip-1", "vip-2"} },
			cartTotal:      decimal.NewFromInt(200000),
			userID:         "user-1",
			expectedReason: ReasonUserNotAllowed,
		},
		{
			name:           "товар из исключённого списка",
			mutate:         func(c *Coupon) { c.ExcludedProducts = []string{"product-banned"} },
			cartTotal:      decimal.NewFromInt(200000),
			productIDs:     []string{"product-1", "product-banned"},
			expectedReason: ReasonProductExcluded,
		},
		{
			name:           "исключённая категория",
			mutate:         func(c *Coupon) { c.ExcludedCategories = []string{"category-sale"} },
			cartTotal:      decimal.NewFromInt(200000),
			categoryIDs:    []string{"category-sale"},
			expectedReason: ReasonProductExcluded,
		},
		{
			name:           "нет пересечения с included-списком",
			mutate:         func(c *Coupon) { c.IncludedProducts = []string{"product-special"} },
			cartTotal:      decimal.NewFromInt(200000),
			productIDs:     []string{"product-1"},
			expectedReason: ReasonNotEligible,
		},
		{
			name:       "included-список совпал по категории",
			mutate:     func(c *Coupon) { c.IncludedCategories = []string{"category-shoes"} },
			cartTotal:  decimal.NewFromInt(200000),
			productIDs: []string{"product-1"},
			categoryIDs: []string{
				"category-shoes",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coupon := sale10()
			tt.mutate(coupon)

			err := coupon.CheckRules(tt.userID, tt.cartTotal, tt.productIDs, tt.categoryIDs, tt.userUsedCount, now)

			if tt.expectedReason == "" {
				assert.NoError(t, err)
				return
			}

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.expectedReason, vErr.Reason)
			assert.Equal(t, "SALE10", vErr.Code)
		})
	}
}

// =====================================
// Тесты ComputeDiscount
// =====================================

// TestCoupon_ComputeDiscount проверяет каноническую формулу скидки.
func TestCoupon_ComputeDiscount(t *testing.T) {
	t.Run("SALE10: 10% от 200000 — скидка 20000", func(t *testing.T) {
		discount := sale10().ComputeDiscount(decimal.NewFromInt(200000))

		assert.Equal(t, "SALE10", discount.Code)
		assert.Equal(t, DiscountTypePercentage, discount.Type)
		assert.True(t, discount.Amount.Equal(decimal.NewFromInt(20000)),
			"скидка должна быть ровно 20000, получено %s", discount.Amount)
	})

	t.Run("процентная скидка ограничена суммой корзины", func(t *testing.T) {
		coupon := sale10()
		coupon.Value = decimal.NewFromInt(150) // Некорректно настроенный купон

		discount := coupon.ComputeDiscount(decimal.NewFromInt(100000))

		assert.True(t, discount.Amount.Equal(decimal.NewFromInt(100000)),
			"скидка не может превысить сумму корзины")
	})

	t.Run("фиксированная скидка ограничена суммой корзины", func(t *testing.T) {
		coupon := &Coupon{
			Code:         "FIXED100K",
			DiscountType: DiscountTypeFixed,
			Value:        decimal.NewFromInt(100000),
		}

		discount := coupon.ComputeDiscount(decimal.NewFromInt(70000))

		assert.True(t, discount.Amount.Equal(decimal.NewFromInt(70000)))
	})

	t.Run("точная десятичная арифметика", func(t *testing.T) {
		coupon := sale10()

		discount := coupon.ComputeDiscount(decimal.RequireFromString("899998.50"))

		assert.True(t, discount.Amount.Equal(decimal.RequireFromString("89999.85")),
			"10%% от 899998.50 — ровно 89999.85, получено %s", discount.Amount)
	})
}

// TestCoupon_Sale10Scenario — сквозной сценарий SALE10 из требований:
// корзина 200000 проходит, корзина 50000 отклоняется по min_spend.
func TestCoupon_Sale10Scenario(t *testing.T) {
	coupon := sale10()
	now := time.Now()

	require.NoError(t, coupon.CheckRules("user-1", decimal.NewFromInt(200000), nil, nil, 0, now))
	discount := coupon.ComputeDiscount(decimal.NewFromInt(200000))
	assert.True(t, discount.Amount.Equal(decimal.NewFromInt(20000)))
	finalTotal := decimal.NewFromInt(200000).Sub(discount.Amount)
	assert.True(t, finalTotal.Equal(decimal.NewFromInt(180000)))

	err := coupon.CheckRules("user-1", decimal.NewFromInt(50000), nil, nil, 0, now)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, ReasonMinSpend, vErr.Reason)
}
