package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/shop-backend/internal/middleware"
	"example.com/shop-backend/internal/payment/domain"
	paymentservice "example.com/shop-backend/internal/payment/service"
	"example.com/shop-backend/pkg/logger"
)

// PaymentHandler — обработчик платежей и callback'ов от шлюзов.
type PaymentHandler struct {
	payments paymentservice.PaymentService
}

// NewPaymentHandler создаёт обработчик платежей.
func NewPaymentHandler(payments paymentservice.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// RefundRequest — запрос возврата средств.
type RefundRequest struct {
	Reason string `json:"reason"`
}

// GetPayment возвращает платёж пользователя.
// GET /api/v1/payments/:id
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)

	payment, err := h.payments.GetPayment(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		HandleError(c, err, "GetPayment")
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment": paymentToResponse(payment)})
}

// RequestRefund создаёт заявку на возврат средств по платежу.
// POST /api/v1/payments/:id/refund
func (h *PaymentHandler) RequestRefund(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.GetString(middleware.ContextUserID)
	paymentID := c.Param("id")

	var req RefundRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.payments.RequestRefund(ctx, paymentID, userID, req.Reason); err != nil {
		HandleError(c, err, "RequestRefund")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Возврат средств запрошен"})
}

// AdminConfirmRefund подтверждает возврат средств.
// POST /api/v1/admin/payments/:id/refund/confirm
func (h *PaymentHandler) AdminConfirmRefund(c *gin.Context) {
	ctx := c.Request.Context()
	adminID := c.GetString(middleware.ContextUserID)

	if err := h.payments.ConfirmRefund(ctx, c.Param("id"), adminID); err != nil {
		HandleError(c, err, "AdminConfirmRefund")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Возврат средств подтверждён"})
}

// === Callbacks от платёжных шлюзов ===
//
// Ответы формируются в формате, который ожидает конкретный провайдер:
// при ошибке обработки провайдер повторит доставку, поэтому внутренние
// детали ошибок наружу не уходят.

// ZaloPayCallback обрабатывает уведомление от ZaloPay.
// POST /api/v1/payments/callback/zalopay
func (h *PaymentHandler) ZaloPayCallback(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"return_code": -1, "return_message": "cannot read body"})
		return
	}

	if err := h.payments.HandleCallback(ctx, domain.MethodZaloPay, body); err != nil {
		log.Warn().Err(err).Msg("Ошибка обработки callback от ZaloPay")
		c.JSON(http.StatusOK, gin.H{"return_code": -1, "return_message": "failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"return_code": 1, "return_message": "success"})
}

// MoMoCallback обрабатывает уведомление от MoMo.
// POST /api/v1/payments/callback/momo
func (h *PaymentHandler) MoMoCallback(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"resultCode": 1, "message": "cannot read body"})
		return
	}

	if err := h.payments.HandleCallback(ctx, domain.MethodMoMo, body); err != nil {
		log.Warn().Err(err).Msg("Ошибка обработки callback от MoMo")
		c.JSON(http.StatusOK, gin.H{"resultCode": 1, "message": "failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"resultCode": 0, "message": "success"})
}
