package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/shop-backend/internal/checkout"
	"example.com/shop-backend/internal/middleware"
	orderdomain "example.com/shop-backend/internal/order/domain"
	"example.com/shop-backend/pkg/logger"
)

// CheckoutHandler — обработчик оформления заказа.
type CheckoutHandler struct {
	checkout checkout.Service
}

// NewCheckoutHandler создаёт обработчик оформления заказа.
func NewCheckoutHandler(svc checkout.Service) *CheckoutHandler {
	return &CheckoutHandler{checkout: svc}
}

// === Request/Response DTOs ===

// CheckoutItemRequest — позиция корзины в запросе оформления.
type CheckoutItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	Quantity  int32  `json:"quantity" binding:"required,min=1"`
}

// ShippingAddressRequest — адрес доставки в запросе.
type ShippingAddressRequest struct {
	FullName string `json:"full_name" binding:"required"`
	Phone    string `json:"phone" binding:"required"`
	Address  string `json:"address" binding:"required"`
	Ward     string `json:"ward"`
	City     string `json:"city" binding:"required"`
}

// CheckoutRequest — запрос оформления заказа.
type CheckoutRequest struct {
	Items           []CheckoutItemRequest  `json:"items" binding:"required,min=1,dive"`
	CouponCode      string                 `json:"coupon_code"`
	PaymentMethod   string                 `json:"payment_method" binding:"required"`
	ShippingAddress ShippingAddressRequest `json:"shipping_address" binding:"required"`
}

// CheckoutResponse — ответ на оформление заказа.
// payment_error непустой, когда заказ создан, но платёж у провайдера
// открыть не удалось: заказ ждёт повторной оплаты.
type CheckoutResponse struct {
	Order        OrderResponse    `json:"order"`
	Payment      *PaymentResponse `json:"payment,omitempty"`
	PayURL       string           `json:"pay_url,omitempty"`
	PaymentError string           `json:"payment_error,omitempty"`
}

// Checkout оформляет заказ.
// POST /api/v1/checkout
func (h *CheckoutHandler) Checkout(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	userID := c.GetString(middleware.ContextUserID)

	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debug().Err(err).Msg("Невалидный запрос оформления заказа")
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Невалидные данные запроса",
		})
		return
	}

	items := make([]checkout.ItemRequest, len(req.Items))
	for i, item := range req.Items {
		items[i] = checkout.ItemRequest{
			ProductID: item.ProductID,
			Size:      item.Size,
			Color:     item.Color,
			Quantity:  item.Quantity,
		}
	}

	result, err := h.checkout.Checkout(ctx, checkout.Request{
		UserID:        userID,
		Items:         items,
		CouponCode:    req.CouponCode,
		PaymentMethod: orderdomain.PaymentMethod(req.PaymentMethod),
		ShippingAddress: orderdomain.ShippingAddress{
			FullName: req.ShippingAddress.FullName,
			Phone:    req.ShippingAddress.Phone,
			Address:  req.ShippingAddress.Address,
			Ward:     req.ShippingAddress.Ward,
			City:     req.ShippingAddress.City,
		},
	})
	if err != nil {
		// Заказ создан, но провайдер отказал: отдаём заказ,
		// пользователь повторит оплату позже
		if result != nil && result.Order != nil {
			log.Warn().Err(err).Str("order_id", result.Order.ID).Msg("Заказ оформлен без платежа")
			c.JSON(http.StatusCreated, CheckoutResponse{
				Order:        orderToResponse(result.Order, false),
				PaymentError: "не удалось создать платёж, повторите оплату позже",
			})
			return
		}
		HandleError(c, err, "Checkout")
		return
	}

	log.Info().
		Str("order_id", result.Order.ID).
		Str("user_id", userID).
		Str("payment_method", string(result.Order.PaymentMethod)).
		Msg("Заказ оформлен")

	resp := CheckoutResponse{
		Order:  orderToResponse(result.Order, false),
		PayURL: result.PayURL,
	}
	if result.Payment != nil {
		p := paymentToResponse(result.Payment)
		resp.Payment = &p
	}
	c.JSON(http.StatusCreated, resp)
}
