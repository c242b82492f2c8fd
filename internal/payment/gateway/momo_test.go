package gateway

import (
	"context"
	"encoding/json"
	"fmt"
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

// newMoMoForTest создаёт адаптер с endpoint'ом тестового сервера.
func newMoMoForTest(endpoint string) *momoAdapter {
	return &momoAdapter{
		cfg: config.MoMoConfig{
			PartnerCode: "MOMO",
			AccessKey:   "test-access",
			SecretKey:   "test-secret",
			Endpoint:    endpoint,
			RedirectURL: "https://shop.example.com/payment/result",
			IPNURL:      "https://shop.example.com/api/v1/payments/callback/momo",
			Timeout:     2 * time.Second,
			ExpireAfter: 15 * time.Minute,
		},
		client:    &http.Client{Timeout: 2 * time.Second},
		breaker:   circuitbreaker.New("momo-test"),
		requestID: func() string { return "req-fixed-1" },
	}
}

func momoPayment() *domain.Payment {
	return &domain.Payment{
		ID:        "payment-2",
		OrderID:   "order-2",
		UserID:    "user-2",
		Amount:    decimal.NewFromInt(250000),
		Method:    domain.MethodMoMo,
		Status:    domain.StatusPending,
		RequestID: "req-fixed-1",
	}
}

// =====================================
// Тесты нормализации resultCode
// =====================================

func TestMomoOutcome(t *testing.T) {
	tests := []struct {
		name       string
		resultCode int
		expected   domain.Outcome
	}{
		{"0 — успех", 0, domain.OutcomeSuccess},
		{"1000 — инициирован", 1000, domain.OutcomePending},
		{"7000 — в обработке", 7000, domain.OutcomePending},
		{"7002 — в обработке у провайдера", 7002, domain.OutcomePending},
		{"9000 — авторизован", 9000, domain.OutcomePending},
		{"1006 — отклонён пользователем", 1006, domain.OutcomeFailure},
		{"49 — неизвестный код", 49, domain.OutcomeFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, momoOutcome(tt.resultCode))
		})
	}
}

// =====================================
// Тесты CreateOrder
// =====================================

func TestMoMo_CreateOrder(t *testing.T) {
	t.Run("успешное создание заказа", func(t *testing.T) {
		var gotPayload map[string]interface{}
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"resultCode": 0,
				"message":    "success",
				"payUrl":     "https://test-payment.momo.vn/pay/xyz",
			})
		}))
		defer server.Close()

		adapter := newMoMoForTest(server.URL)
		result, err := adapter.CreateOrder(context.Background(), CreateOrderRequest{
			Payment:     momoPayment(),
			Description: "Оплата заказа order-2",
		})

		require.NoError(t, err)
		assert.Equal(t, "https://test-payment.momo.vn/pay/xyz", result.PayURL)
		assert.Equal(t, "req-fixed-1", result.RequestID)
		assert.Equal(t, "MOMO", gotPayload["partnerCode"])
		assert.NotEmpty(t, gotPayload["signature"], "запрос должен быть подписан")
	})

	t.Run("отказ провайдера", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"resultCode": 21,
				"message":    "invalid amount",
			})
		}))
		defer server.Close()

		adapter := newMoMoForTest(server.URL)
		_, err := adapter.CreateOrder(context.Background(), CreateOrderRequest{Payment: momoPayment()})

		var gErr *Error
		require.ErrorAs(t, err, &gErr)
		assert.Equal(t, "momo", gErr.Provider)
		assert.Contains(t, gErr.Message, "resultCode=21")
	})
}

// =====================================
// Тесты QueryOrder
// =====================================

func TestMoMo_QueryOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"resultCode": 0,
			"message":    "success",
			"transId":    987654321,
		})
	}))
	defer server.Close()

	adapter := newMoMoForTest(server.URL)
	result, err := adapter.QueryOrder(context.Background(), momoPayment())

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuccess, result.Outcome)
	assert.Equal(t, "987654321", result.ProviderTransID)

	t.Run("платёж без requestId", func(t *testing.T) {
		payment := momoPayment()
		payment.RequestID = ""

		_, err := adapter.QueryOrder(context.Background(), payment)
		require.Error(t, err)
	})
}

// =====================================
// Тесты VerifyCallback (IPN)
// =====================================

func TestMoMo_VerifyCallback(t *testing.T) {
	adapter := newMoMoForTest("http://unused")

	// Собираем IPN с валидной подписью
	buildIPN := func(resultCode int, secretKey string) []byte {
		raw := fmt.Sprintf(
			"accessKey=%s&amount=%d&extraData=%s&message=%s&orderId=%s&orderInfo=%s&orderType=%s&partnerCode=%s&payType=%s&requestId=%s&responseTime=%d&resultCode=%d&transId=%d",
			"test-access", int64(250000), "", "success", "payment-2", "Оплата заказа order-2",
			"momo_wallet", "MOMO", "qr", "req-fixed-1", int64(1704067200000), resultCode, int64(987654321),
		)

		body, _ := json.Marshal(map[string]interface{}{
			"partnerCode":  "MOMO",
			"orderId":      "payment-2",
			"requestId":    "req-fixed-1",
			"amount":       250000,
			"orderInfo":    "Оплата заказа order-2",
			"orderType":    "momo_wallet",
			"transId":      987654321,
			"resultCode":   resultCode,
			"message":      "success",
			"payType":      "qr",
			"responseTime": 1704067200000,
			"extraData":    "",
			"signature":    signHMAC(secretKey, raw),
		})
		return body
	}

	t.Run("валидная подпись, успешная оплата", func(t *testing.T) {
		result, err := adapter.VerifyCallback(buildIPN(0, "test-secret"))

		require.NoError(t, err)
		assert.Equal(t, "req-fixed-1", result.PaymentRef)
		assert.Equal(t, domain.OutcomeSuccess, result.Outcome)
		assert.Equal(t, "987654321", result.ProviderTransID)
	})

	t.Run("валидная подпись, неуспешная оплата", func(t *testing.T) {
		result, err := adapter.VerifyCallback(buildIPN(1006, "test-secret"))

		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeFailure, result.Outcome)
	})

	t.Run("подпись другим ключом отклоняется", func(t *testing.T) {
		result, err := adapter.VerifyCallback(buildIPN(0, "wrong-secret"))

		assert.ErrorIs(t, err, domain.ErrInvalidSignature)
		assert.Nil(t, result)
	})
}
