package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/shop-backend/internal/checkout"
	"example.com/shop-backend/internal/inventory"
	"example.com/shop-backend/internal/middleware"
)

// MockCheckoutService — мок для checkout.Service.
type MockCheckoutService struct {
	CheckoutFunc func(ctx context.Context, req checkout.Request) (*checkout.Result, error)
}

func (m *MockCheckoutService) Checkout(ctx context.Context, req checkout.Request) (*checkout.Result, error) {
	if m.CheckoutFunc != nil {
		return m.CheckoutFunc(ctx, req)
	}
	return nil, nil
}

func setupCheckoutRouter(h *CheckoutHandler, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	r.Use(func(c *gin.Context) {
		if userID != "" {
			c.Set(middleware.ContextUserID, userID)
		}
		c.Next()
	})

	r.POST("/api/v1/checkout", h.Checkout)
	return r
}

func validCheckoutRequest() CheckoutRequest {
	return CheckoutRequest{
		Items: []CheckoutItemRequest{
			{ProductID: "prod-1", Size: "M", Color: "black", Quantity: 2},
		},
		PaymentMethod: "zalopay",
		ShippingAddress: ShippingAddressRequest{
			FullName: "Нгуен Ван А",
			Phone:    "+84901234567",
			Address:  "12 Ле Лой",
			City:     "Хошимин",
		},
	}
}

func TestCheckoutHandler_Success(t *testing.T) {
	mock := &MockCheckoutService{
		CheckoutFunc: func(_ context.Context, req checkout.Request) (*checkout.Result, error) {
			assert.Equal(t, "user-1", req.UserID)
			require.Len(t, req.Items, 1)
			assert.Equal(t, "prod-1", req.Items[0].ProductID)
			return &checkout.Result{
				Order:   validOrder("user-1"),
				Payment: validPayment("user-1"),
				PayURL:  "https://sb-openapi.zalopay.vn/pay/token",
			}, nil
		},
	}
	r := setupCheckoutRouter(NewCheckoutHandler(mock), "user-1")

	body, _ := json.Marshal(validCheckoutRequest())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)

	var resp CheckoutResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "order-123", resp.Order.ID)
	require.NotNil(t, resp.Payment)
	assert.Equal(t, "payment-123", resp.Payment.ID)
	assert.NotEmpty(t, resp.PayURL)
	assert.Empty(t, resp.PaymentError)
}

func TestCheckoutHandler_OutOfStock(t *testing.T) {
	mock := &MockCheckoutService{
		CheckoutFunc: func(_ context.Context, _ checkout.Request) (*checkout.Result, error) {
			return nil, inventory.ErrInsufficientStock
		},
	}
	r := setupCheckoutRouter(NewCheckoutHandler(mock), "user-1")

	body, _ := json.Marshal(validCheckoutRequest())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusConflict, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "out_of_stock", resp.Error)
}

// TestCheckoutHandler_GatewayFailed тестирует, что при отказе провайдера
// заказ всё равно возвращается клиенту с пометкой payment_error.
func TestCheckoutHandler_GatewayFailed(t *testing.T) {
	mock := &MockCheckoutService{
		CheckoutFunc: func(_ context.Context, _ checkout.Request) (*checkout.Result, error) {
			return &checkout.Result{Order: validOrder("user-1")},
				errors.New("шлюз вернул ошибку создания платежа")
		},
	}
	r := setupCheckoutRouter(NewCheckoutHandler(mock), "user-1")

	body, _ := json.Marshal(validCheckoutRequest())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)

	var resp CheckoutResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "order-123", resp.Order.ID)
	assert.Nil(t, resp.Payment)
	assert.NotEmpty(t, resp.PaymentError)
}

func TestCheckoutHandler_InvalidBody(t *testing.T) {
	r := setupCheckoutRouter(NewCheckoutHandler(&MockCheckoutService{}), "user-1")

	tests := []struct {
		name string
		body string
	}{
		{"пустое тело", `{}`},
		{"пустые позиции", `{"items":[],"payment_method":"cod","shipping_address":{"full_name":"А","phone":"1","address":"а","city":"г"}}`},
		{"нулевое количество", `{"items":[{"product_id":"p","quantity":0}],"payment_method":"cod","shipping_address":{"full_name":"А","phone":"1","address":"а","city":"г"}}`},
		{"битый JSON", `{"items":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewReader([]byte(tt.body)))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}
