// Package handler содержит HTTP обработчики REST API.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/shop-backend/internal/coupon"
	"example.com/shop-backend/internal/inventory"
	orderdomain "example.com/shop-backend/internal/order/domain"
	paymentdomain "example.com/shop-backend/internal/payment/domain"
	"example.com/shop-backend/pkg/logger"
)

// ErrorResponse — стандартный формат ошибки API.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HandleError преобразует доменную ошибку в HTTP ответ.
// Используется всеми handlers для единообразной обработки ошибок.
func HandleError(c *gin.Context, err error, method string) {
	log := logger.FromContext(c.Request.Context())

	// Guard: nil ошибка — баг в вызывающем коде.
	if err == nil {
		log.Error().Str("method", method).Msg("HandleError вызван с nil ошибкой — баг в коде")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Внутренняя ошибка сервера",
		})
		return
	}

	// Купон отклонён по правилам — отдаём машиночитаемую причину
	var couponErr *coupon.ValidationError
	if errors.As(err, &couponErr) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "coupon_rejected",
			Message: couponErr.Error(),
		})
		return
	}

	var httpStatus int
	var errorCode string

	switch {
	case errors.Is(err, orderdomain.ErrOrderNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, coupon.ErrCouponNotFound),
		errors.Is(err, inventory.ErrProductNotFound),
		errors.Is(err, inventory.ErrVariantNotFound):
		httpStatus = http.StatusNotFound
		errorCode = "not_found"

	case errors.Is(err, orderdomain.ErrAccessDenied),
		errors.Is(err, paymentdomain.ErrAccessDenied):
		httpStatus = http.StatusForbidden
		errorCode = "access_denied"

	case errors.Is(err, inventory.ErrInsufficientStock):
		httpStatus = http.StatusConflict
		errorCode = "out_of_stock"

	case errors.Is(err, orderdomain.ErrOrderCannotCancel),
		errors.Is(err, orderdomain.ErrOrderCannotReturn),
		errors.Is(err, orderdomain.ErrInvalidTransition),
		errors.Is(err, paymentdomain.ErrInvalidTransition),
		errors.Is(err, paymentdomain.ErrActivePaymentExists),
		errors.Is(err, paymentdomain.ErrRefundNotAllowed),
		errors.Is(err, paymentdomain.ErrRefundAlreadyRequested):
		httpStatus = http.StatusConflict
		errorCode = "conflict"

	case errors.Is(err, orderdomain.ErrEmptyOrderItems),
		errors.Is(err, orderdomain.ErrTooManyOrderItems),
		errors.Is(err, orderdomain.ErrInvalidUserID),
		errors.Is(err, orderdomain.ErrInvalidProductID),
		errors.Is(err, orderdomain.ErrInvalidQuantity),
		errors.Is(err, orderdomain.ErrInvalidPrice),
		errors.Is(err, orderdomain.ErrInvalidPaymentMethod),
		errors.Is(err, orderdomain.ErrInvalidShippingAddress),
		errors.Is(err, paymentdomain.ErrInvalidAmount):
		httpStatus = http.StatusBadRequest
		errorCode = "invalid_request"

	default:
		httpStatus = http.StatusInternalServerError
		errorCode = "internal_error"
		log.Error().Err(err).Str("method", method).Msg("Внутренняя ошибка")
	}

	if httpStatus != http.StatusInternalServerError {
		log.Debug().Err(err).Str("method", method).Msg("Запрос отклонён")
	}

	c.JSON(httpStatus, ErrorResponse{
		Error:   errorCode,
		Message: err.Error(),
	})
}
