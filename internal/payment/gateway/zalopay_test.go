// Package gateway содержит unit тесты адаптеров платёжных провайдеров.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/shop-backend/internal/payment/domain"
	"example.com/shop-backend/pkg/circuitbreaker"
	"example.com/shop-backend/pkg/config"
)

// newZaloPayForTest создаёт адаптер с endpoint'ом тестового сервера.
func newZaloPayForTest(endpoint string) *zalopayAdapter {
	return &zalopayAdapter{
		cfg: config.ZaloPayConfig{
			AppID:       "2553",
			Key1:        "test-key1",
			Key2:        "test-key2",
			Endpoint:    endpoint,
			CallbackURL: "https://shop.example.com/api/v1/payments/callback/zalopay",
			Timeout:     2 * time.Second,
			ExpireAfter: 15 * time.Minute,
		},
		client:  &http.Client{Timeout: 2 * time.Second},
		breaker: circuitbreaker.New("zalopay-test"),
		now:     time.Now,
	}
}

func zpPayment() *domain.Payment {
	return &domain.Payment{
		ID:         "payment-1",
		OrderID:    "order-1",
		UserID:     "user-1",
		Amount:     decimal.NewFromInt(150000),
		Method:     domain.MethodZaloPay,
		Status:     domain.StatusPending,
		AppTransID: "240101_payment-1",
	}
}

// =====================================
// Тесты CreateOrder
// =====================================

func TestZaloPay_CreateOrder(t *testing.T) {
	t.Run("успешное создание заказа", func(t *testing.T) {
		var gotForm map[string]string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			gotForm = map[string]string{
				"app_id":       r.PostFormValue("app_id"),
				"app_trans_id": r.PostFormValue("app_trans_id"),
				"mac":          r.PostFormValue("mac"),
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"return_code":    1,
				"return_message": "success",
				"order_url":      "https://sb-openapi.zalopay.vn/pay/abc",
			})
		}))
		defer server.Close()

		adapter := newZaloPayForTest(server.URL)
		result, err := adapter.CreateOrder(context.Background(), CreateOrderRequest{
			Payment:     zpPayment(),
			Description: "Оплата заказа order-1",
		})

		require.NoError(t, err)
		assert.Equal(t, "https://sb-openapi.zalopay.vn/pay/abc", result.PayURL)
		assert.NotEmpty(t, result.AppTransID)
		assert.Contains(t, result.AppTransID, "payment-1")
		assert.Equal(t, "2553", gotForm["app_id"])
		assert.NotEmpty(t, gotForm["mac"], "запрос должен быть подписан")
	})

	t.Run("отказ провайдера — ошибка шлюза", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"return_code":    2,
				"return_message": "invalid amount",
			})
		}))
		defer server.Close()

		adapter := newZaloPayForTest(server.URL)
		result, err := adapter.CreateOrder(context.Background(), CreateOrderRequest{Payment: zpPayment()})

		require.Error(t, err)
		assert.Nil(t, result)
		var gErr *Error
		require.ErrorAs(t, err, &gErr)
		assert.Equal(t, "zalopay", gErr.Provider)
		assert.Contains(t, gErr.Message, "return_code=2")
	})

	t.Run("сетевая ошибка — ошибка шлюза", func(t *testing.T) {
		adapter := newZaloPayForTest("http://127.0.0.1:1")

		_, err := adapter.CreateOrder(context.Background(), CreateOrderRequest{Payment: zpPayment()})

		var gErr *Error
		require.ErrorAs(t, err, &gErr)
		assert.Equal(t, "create", gErr.Op)
	})
}

// =====================================
// Тесты QueryOrder (нормализация исхода)
// =====================================

func TestZaloPay_QueryOrder(t *testing.T) {
	tests := []struct {
		name            string
		returnCode      int
		expectedOutcome domain.Outcome
	}{
		{"return_code 1 — success", 1, domain.OutcomeSuccess},
		{"return_code 2 — failure", 2, domain.OutcomeFailure},
		{"return_code 3 — pending", 3, domain.OutcomePending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"return_code": tt.returnCode,
					"zp_trans_id": 240101000001,
				})
			}))
			defer server.Close()

			adapter := newZaloPayForTest(server.URL)
			result, err := adapter.QueryOrder(context.Background(), zpPayment())

			require.NoError(t, err)
			assert.Equal(t, tt.expectedOutcome, result.Outcome)
			if tt.expectedOutcome == domain.OutcomeSuccess {
				assert.Equal(t, "240101000001", result.ProviderTransID)
			}
		})
	}

	t.Run("платёж без app_trans_id", func(t *testing.T) {
		adapter := newZaloPayForTest("http://unused")
		payment := zpPayment()
		payment.AppTransID = ""

		_, err := adapter.QueryOrder(context.Background(), payment)
		require.Error(t, err)
	})
}

// =====================================
// Тесты VerifyCallback
// =====================================

func TestZaloPay_VerifyCallback(t *testing.T) {
	adapter := newZaloPayForTest("http://unused")

	data := `{"app_trans_id":"240101_payment-1","zp_trans_id":240101000001,"amount":150000,"app_user":"user-1"}`

	t.Run("валидная подпись", func(t *testing.T) {
		body, err := json.Marshal(map[string]interface{}{
			"data": data,
			"mac":  signHMAC("test-key2", data),
			"type": 1,
		})
		require.NoError(t, err)

		result, err := adapter.VerifyCallback(body)

		require.NoError(t, err)
		assert.Equal(t, "240101_payment-1", result.PaymentRef)
		assert.Equal(t, domain.OutcomeSuccess, result.Outcome, "callback ZaloPay всегда несёт успех")
		assert.Equal(t, "240101000001", result.ProviderTransID)
	})

	t.Run("невалидная подпись отклоняется", func(t *testing.T) {
		body, err := json.Marshal(map[string]interface{}{
			"data": data,
			"mac":  "0000000000000000",
			"type": 1,
		})
		require.NoError(t, err)

		result, err := adapter.VerifyCallback(body)

		assert.ErrorIs(t, err, domain.ErrInvalidSignature)
		assert.Nil(t, result)
	})

	t.Run("подпись другим ключом отклоняется", func(t *testing.T) {
		body, err := json.Marshal(map[string]interface{}{
			"data": data,
			"mac":  signHMAC("wrong-key", data),
		})
		require.NoError(t, err)

		_, err = adapter.VerifyCallback(body)
		assert.ErrorIs(t, err, domain.ErrInvalidSignature)
	})

	t.Run("мусор вместо JSON", func(t *testing.T) {
		_, err := adapter.VerifyCallback([]byte("не json"))
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrInvalidSignature)
	})
}

// =====================================
// Тесты Registry и офлайн-адаптеров
// =====================================

func TestRegistry(t *testing.T) {
	registry := NewRegistry(NewCOD(), NewBanking(), newZaloPayForTest("http://unused"))

	cod, err := registry.Get(domain.MethodCOD)
	require.NoError(t, err)
	assert.False(t, cod.Online())
	assert.Zero(t, cod.ExpireAfter(), "офлайн-методы не истекают по таймауту")

	zp, err := registry.Get(domain.MethodZaloPay)
	require.NoError(t, err)
	assert.True(t, zp.Online())
	assert.Equal(t, 15*time.Minute, zp.ExpireAfter())

	_, err = registry.Get(domain.MethodMoMo)
	assert.Error(t, err, "незарегистрированный метод — ошибка")

	assert.Len(t, registry.Online(), 1)
}

func TestOfflineAdapter(t *testing.T) {
	cod := NewCOD()

	// Создание заказа — no-op без обращения к провайдеру
	result, err := cod.CreateOrder(context.Background(), CreateOrderRequest{Payment: zpPayment()})
	require.NoError(t, err)
	assert.Empty(t, result.PayURL)

	_, err = cod.QueryOrder(context.Background(), zpPayment())
	assert.ErrorIs(t, err, ErrOfflineMethod)

	_, err = cod.VerifyCallback([]byte("{}"))
	assert.ErrorIs(t, err, ErrOfflineMethod)
}
