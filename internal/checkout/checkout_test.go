// Package checkout содержит unit тесты оформления заказа.
package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/shop-backend/internal/coupon"
	"example.com/shop-backend/internal/inventory"
	orderdomain "example.com/shop-backend/internal/order/domain"
	paymentdomain "example.com/shop-backend/internal/payment/domain"
	paymentservice "example.com/shop-backend/internal/payment/service"
	"example.com/shop-backend/pkg/outbox"
)

// =====================================
// Моки зависимостей
// =====================================

// MockAdjuster — мок для inventory.Adjuster.
type MockAdjuster struct {
	mock.Mock
}

func (m *MockAdjuster) GetVariant(ctx context.Context, productID string, sel inventory.Selector) (*inventory.Variant, error) {
	args := m.Called(ctx, productID, sel)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inventory.Variant), args.Error(1)
}

func (m *MockAdjuster) Decrement(ctx context.Context, variantID string, qty int32) error {
	return m.Called(ctx, variantID, qty).Error(0)
}

func (m *MockAdjuster) Restore(ctx context.Context, variantID string, qty int32) error {
	return m.Called(ctx, variantID, qty).Error(0)
}

// MockCouponValidator — мок для coupon.Validator.
type MockCouponValidator struct {
	mock.Mock
}

func (m *MockCouponValidator) Validate(ctx context.Context, code, userID string, cartTotal decimal.Decimal, productIDs, categoryIDs []string) (*coupon.Discount, error) {
	args := m.Called(ctx, code, userID, cartTotal, productIDs, categoryIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coupon.Discount), args.Error(1)
}

func (m *MockCouponValidator) RecordUsage(ctx context.Context, code, userID, orderID string) error {
	return m.Called(ctx, code, userID, orderID).Error(0)
}

// MockOrderRepository — мок для repository.OrderRepository.
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Create(ctx context.Context, order *orderdomain.Order) error {
	return m.Called(ctx, order).Error(0)
}

func (m *MockOrderRepository) GetByID(ctx context.Context, orderID string) (*orderdomain.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*orderdomain.Order), args.Error(1)
}

func (m *MockOrderRepository) ListByUser(ctx context.Context, userID string, status *orderdomain.OrderStatus, offset, limit int) ([]*orderdomain.Order, int64, error) {
	args := m.Called(ctx, userID, status, offset, limit)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*orderdomain.Order), args.Get(1).(int64), args.Error(2)
}

func (m *MockOrderRepository) UpdateStatusIf(ctx context.Context, orderID string, from []orderdomain.OrderStatus, to orderdomain.OrderStatus, changedBy, note string) (bool, error) {
	args := m.Called(ctx, orderID, from, to, changedBy, note)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) SetPaymentStatus(ctx context.Context, orderID string, paymentStatus orderdomain.PaymentStatus) error {
	return m.Called(ctx, orderID, paymentStatus).Error(0)
}

func (m *MockOrderRepository) AdvanceStatusIfPending(ctx context.Context, orderID string, note string) (bool, error) {
	args := m.Called(ctx, orderID, note)
	return args.Bool(0), args.Error(1)
}

// MockPaymentCreator — мок для PaymentCreator.
type MockPaymentCreator struct {
	mock.Mock
}

func (m *MockPaymentCreator) CreatePaymentForOrder(ctx context.Context, req paymentservice.CreatePaymentRequest) (*paymentdomain.Payment, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentdomain.Payment), args.Error(1)
}

// MockOutboxRepository — мок для outbox.OutboxRepository.
type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) Create(ctx context.Context, record *outbox.Outbox) error {
	return m.Called(ctx, record).Error(0)
}

func (m *MockOutboxRepository) GetUnprocessed(ctx context.Context, limit int) ([]*outbox.Outbox, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outbox.Outbox), args.Error(1)
}

func (m *MockOutboxRepository) MarkProcessed(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id string, err error) error {
	return m.Called(ctx, id, err).Error(0)
}

func (m *MockOutboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

// =====================================
// Хелперы
// =====================================

func testVariant(productID, variantID string, price string, stock int32) *inventory.Variant {
	return &inventory.Variant{
		ID:          variantID,
		ProductID:   productID,
		ProductName: "Футболка базовая",
		CategoryID:  "cat-tshirts",
		SKU:         "TS-" + variantID,
		Size:        "M",
		Color:       "black",
		Price:       decimal.RequireFromString(price),
		Stock:       stock,
	}
}

func testAddress() orderdomain.ShippingAddress {
	return orderdomain.ShippingAddress{
		FullName: "Нгуен Ван А",
		Phone:    "0901234567",
		Address:  "12 Ле Лой",
		City:     "Хошимин",
	}
}

func testRequest() Request {
	return Request{
		UserID: "user-456",
		Items: []ItemRequest{
			{ProductID: "prod-1", Size: "M", Color: "black", Quantity: 2},
		},
		PaymentMethod:   orderdomain.PaymentMethodCOD,
		ShippingAddress: testAddress(),
	}
}

// =====================================
// Тесты Checkout
// =====================================

// TestCheckout_COD тестирует оформление с оплатой при получении:
// цена берётся из каталога, заказ pending, платёж без pay_url.
func TestCheckout_COD(t *testing.T) {
	mockStock := new(MockAdjuster)
	mockCoupons := new(MockCouponValidator)
	mockOrders := new(MockOrderRepository)
	mockPayments := new(MockPaymentCreator)

	mockStock.On("GetVariant", mock.Anything, "prod-1", inventory.Selector{Size: "M", Color: "black"}).
		Return(testVariant("prod-1", "variant-1", "100000", 10), nil)
	mockStock.On("Decrement", mock.Anything, "variant-1", int32(2)).Return(nil)
	mockOrders.On("Create", mock.Anything, mock.MatchedBy(func(o *orderdomain.Order) bool {
		return o.Status == orderdomain.OrderStatusPending &&
			o.Subtotal.Equal(decimal.RequireFromString("200000")) &&
			o.Total.Equal(decimal.RequireFromString("200000")) &&
			o.Items[0].VariantID == "variant-1"
	})).Return(nil)
	mockPayments.On("CreatePaymentForOrder", mock.Anything, mock.MatchedBy(func(req paymentservice.CreatePaymentRequest) bool {
		return req.Method == paymentdomain.MethodCOD && req.Amount.Equal(decimal.RequireFromString("200000"))
	})).Return(&paymentdomain.Payment{ID: "payment-1", Status: paymentdomain.StatusPending, Method: paymentdomain.MethodCOD}, nil)

	svc := NewService(mockStock, mockCoupons, mockOrders, mockPayments, nil, "")

	result, err := svc.Checkout(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, orderdomain.OrderStatusPending, result.Order.Status)
	assert.Empty(t, result.PayURL)

	mockStock.AssertExpectations(t)
	mockOrders.AssertExpectations(t)
	mockPayments.AssertExpectations(t)
	mockCoupons.AssertNotCalled(t, "Validate", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// TestCheckout_WithCoupon тестирует применение купона SALE10:
// скидка считается от суммы корзины, использование фиксируется.
func TestCheckout_WithCoupon(t *testing.T) {
	mockStock := new(MockAdjuster)
	mockCoupons := new(MockCouponValidator)
	mockOrders := new(MockOrderRepository)
	mockPayments := new(MockPaymentCreator)

	mockStock.On("GetVariant", mock.Anything, "prod-1", mock.Anything).
		Return(testVariant("prod-1", "variant-1", "100000", 10), nil)
	mockStock.On("Decrement", mock.Anything, "variant-1", int32(2)).Return(nil)
	mockCoupons.On("Validate", mock.Anything, "SALE10", "user-456",
		decimal.RequireFromString("200000"), []string{"prod-1"}, []string{"cat-tshirts"}).
		Return(&coupon.Discount{Code: "SALE10", Type: coupon.DiscountTypePercentage, Amount: decimal.RequireFromString("20000")}, nil)
	mockCoupons.On("RecordUsage", mock.Anything, "SALE10", "user-456", mock.AnythingOfType("string")).Return(nil)
	mockOrders.On("Create", mock.Anything, mock.MatchedBy(func(o *orderdomain.Order) bool {
		return o.AppliedCoupon != nil &&
			o.AppliedCoupon.DiscountAmount.Equal(decimal.RequireFromString("20000")) &&
			o.Total.Equal(decimal.RequireFromString("180000"))
	})).Return(nil)
	mockPayments.On("CreatePaymentForOrder", mock.Anything, mock.MatchedBy(func(req paymentservice.CreatePaymentRequest) bool {
		return req.Amount.Equal(decimal.RequireFromString("180000"))
	})).Return(&paymentdomain.Payment{ID: "payment-1", Status: paymentdomain.StatusPending}, nil)

	req := testRequest()
	req.CouponCode = "SALE10"

	svc := NewService(mockStock, mockCoupons, mockOrders, mockPayments, nil, "")

	result, err := svc.Checkout(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "SALE10", result.Order.AppliedCoupon.Code)
	mockCoupons.AssertExpectations(t)
}

// TestCheckout_PublishesOrderCreatedEvent тестирует запись события order.created
// в outbox: топик берётся из настроек сервиса, ключ сообщения — order_id.
func TestCheckout_PublishesOrderCreatedEvent(t *testing.T) {
	mockStock := new(MockAdjuster)
	mockOrders := new(MockOrderRepository)
	mockPayments := new(MockPaymentCreator)
	mockOutbox := new(MockOutboxRepository)

	mockStock.On("GetVariant", mock.Anything, "prod-1", mock.Anything).
		Return(testVariant("prod-1", "variant-1", "100000", 10), nil)
	mockStock.On("Decrement", mock.Anything, "variant-1", int32(2)).Return(nil)
	mockOrders.On("Create", mock.Anything, mock.Anything).Return(nil)
	mockPayments.On("CreatePaymentForOrder", mock.Anything, mock.Anything).
		Return(&paymentdomain.Payment{ID: "payment-1", Status: paymentdomain.StatusPending}, nil)
	mockOutbox.On("Create", mock.Anything, mock.MatchedBy(func(rec *outbox.Outbox) bool {
		return rec.Topic == "shop.orders.v2" &&
			rec.EventType == "order.created" &&
			rec.AggregateType == "order" &&
			rec.MessageKey == rec.AggregateID
	})).Return(nil)

	svc := NewService(mockStock, new(MockCouponValidator), mockOrders, mockPayments, mockOutbox, "shop.orders.v2")

	_, err := svc.Checkout(context.Background(), testRequest())
	require.NoError(t, err)
	mockOutbox.AssertExpectations(t)
}

// TestCheckout_CouponRejected тестирует отклонение купона:
// остатки не списываются, заказ не создаётся.
func TestCheckout_CouponRejected(t *testing.T) {
	mockStock := new(MockAdjuster)
	mockCoupons := new(MockCouponValidator)
	mockOrders := new(MockOrderRepository)

	mockStock.On("GetVariant", mock.Anything, "prod-1", mock.Anything).
		Return(testVariant("prod-1", "variant-1", "10000", 10), nil)
	vErr := &coupon.ValidationError{Code: "SALE10", Reason: coupon.ReasonMinSpend}
	mockCoupons.On("Validate", mock.Anything, "SALE10", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, vErr)

	req := testRequest()
	req.CouponCode = "SALE10"

	svc := NewService(mockStock, mockCoupons, mockOrders, new(MockPaymentCreator), nil, "")

	_, err := svc.Checkout(context.Background(), req)
	var ve *coupon.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, coupon.ReasonMinSpend, ve.Reason)
	mockStock.AssertNotCalled(t, "Decrement", mock.Anything, mock.Anything, mock.Anything)
	mockOrders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

// TestCheckout_OutOfStock тестирует нехватку остатка на второй позиции:
// списание первой компенсируется.
func TestCheckout_OutOfStock(t *testing.T) {
	mockStock := new(MockAdjuster)
	mockOrders := new(MockOrderRepository)

	mockStock.On("GetVariant", mock.Anything, "prod-1", mock.Anything).
		Return(testVariant("prod-1", "variant-1", "100000", 10), nil)
	mockStock.On("GetVariant", mock.Anything, "prod-2", mock.Anything).
		Return(testVariant("prod-2", "variant-2", "50000", 1), nil)
	mockStock.On("Decrement", mock.Anything, "variant-1", int32(2)).Return(nil)
	mockStock.On("Decrement", mock.Anything, "variant-2", int32(3)).Return(inventory.ErrInsufficientStock)
	mockStock.On("Restore", mock.Anything, "variant-1", int32(2)).Return(nil)

	req := testRequest()
	req.Items = append(req.Items, ItemRequest{ProductID: "prod-2", Size: "M", Color: "black", Quantity: 3})

	svc := NewService(mockStock, new(MockCouponValidator), mockOrders, new(MockPaymentCreator), nil, "")

	_, err := svc.Checkout(context.Background(), req)
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
	mockStock.AssertExpectations(t)
	mockOrders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

// TestCheckout_OrderCreateFails тестирует откат списаний при ошибке
// создания заказа.
func TestCheckout_OrderCreateFails(t *testing.T) {
	mockStock := new(MockAdjuster)
	mockOrders := new(MockOrderRepository)

	mockStock.On("GetVariant", mock.Anything, "prod-1", mock.Anything).
		Return(testVariant("prod-1", "variant-1", "100000", 10), nil)
	mockStock.On("Decrement", mock.Anything, "variant-1", int32(2)).Return(nil)
	mockStock.On("Restore", mock.Anything, "variant-1", int32(2)).Return(nil)
	mockOrders.On("Create", mock.Anything, mock.Anything).Return(errors.New("БД недоступна"))

	svc := NewService(mockStock, new(MockCouponValidator), mockOrders, new(MockPaymentCreator), nil, "")

	_, err := svc.Checkout(context.Background(), testRequest())
	assert.Error(t, err)
	mockStock.AssertExpectations(t)
}

// TestCheckout_GatewayError тестирует отказ шлюза при создании платежа:
// заказ остаётся pending и возвращается вместе с ошибкой.
func TestCheckout_GatewayError(t *testing.T) {
	mockStock := new(MockAdjuster)
	mockOrders := new(MockOrderRepository)
	mockPayments := new(MockPaymentCreator)

	mockStock.On("GetVariant", mock.Anything, "prod-1", mock.Anything).
		Return(testVariant("prod-1", "variant-1", "100000", 10), nil)
	mockStock.On("Decrement", mock.Anything, "variant-1", int32(2)).Return(nil)
	mockOrders.On("Create", mock.Anything, mock.Anything).Return(nil)
	gwErr := errors.New("шлюз недоступен")
	mockPayments.On("CreatePaymentForOrder", mock.Anything, mock.Anything).Return(nil, gwErr)

	req := testRequest()
	req.PaymentMethod = orderdomain.PaymentMethodZaloPay

	svc := NewService(mockStock, new(MockCouponValidator), mockOrders, mockPayments, nil, "")

	result, err := svc.Checkout(context.Background(), req)
	assert.ErrorIs(t, err, gwErr)
	require.NotNil(t, result)
	assert.Equal(t, orderdomain.OrderStatusPending, result.Order.Status)
	// Остатки не возвращаются: заказ создан и ждёт повторной оплаты
	mockStock.AssertNotCalled(t, "Restore", mock.Anything, mock.Anything, mock.Anything)
}

// TestCheckout_Validation тестирует отказ до походов в БД.
func TestCheckout_Validation(t *testing.T) {
	svc := NewService(new(MockAdjuster), new(MockCouponValidator), new(MockOrderRepository), new(MockPaymentCreator), nil, "")

	tests := []struct {
		name    string
		mutate  func(*Request)
		wantErr error
	}{
		{
			name:    "пустой userID",
			mutate:  func(r *Request) { r.UserID = "" },
			wantErr: orderdomain.ErrInvalidUserID,
		},
		{
			name:    "пустая корзина",
			mutate:  func(r *Request) { r.Items = nil },
			wantErr: orderdomain.ErrEmptyOrderItems,
		},
		{
			name:    "нулевое количество",
			mutate:  func(r *Request) { r.Items[0].Quantity = 0 },
			wantErr: orderdomain.ErrInvalidQuantity,
		},
		{
			name:    "неизвестный метод оплаты",
			mutate:  func(r *Request) { r.PaymentMethod = "bitcoin" },
			wantErr: orderdomain.ErrInvalidPaymentMethod,
		},
		{
			name:    "адрес без телефона",
			mutate:  func(r *Request) { r.ShippingAddress.Phone = "" },
			wantErr: orderdomain.ErrInvalidShippingAddress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testRequest()
			tt.mutate(&req)
			_, err := svc.Checkout(context.Background(), req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
