package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"example.com/shop-backend/internal/middleware"
	orderdomain "example.com/shop-backend/internal/order/domain"
	orderservice "example.com/shop-backend/internal/order/service"
	"example.com/shop-backend/pkg/logger"
)

// OrderHandler — обработчик заказов.
type OrderHandler struct {
	orders orderservice.OrderService
}

// NewOrderHandler создаёт обработчик заказов.
func NewOrderHandler(orders orderservice.OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// === Request/Response DTOs ===

// ListOrdersResponse — ответ на запрос списка заказов.
type ListOrdersResponse struct {
	Orders     []OrderResponse    `json:"orders"`
	Pagination PaginationResponse `json:"pagination"`
}

// CancelOrderRequest — запрос отмены заказа.
type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

// ReturnOrderRequest — запрос возврата заказа.
type ReturnOrderRequest struct {
	Reason string `json:"reason"`
}

// UpdateOrderStatusRequest — запрос смены статуса заказа администратором.
type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Note   string `json:"note"`
}

// === Handlers ===

// ListOrders возвращает список заказов текущего пользователя.
// GET /api/v1/orders?page=1&page_size=20&status=pending
func (h *OrderHandler) ListOrders(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.GetString(middleware.ContextUserID)

	page := 1
	pageSize := 20
	if pageStr := c.Query("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}
	if pageSizeStr := c.Query("page_size"); pageSizeStr != "" {
		if ps, err := strconv.Atoi(pageSizeStr); err == nil && ps > 0 && ps <= 100 {
			pageSize = ps
		}
	}

	var status *orderdomain.OrderStatus
	if statusStr := c.Query("status"); statusStr != "" {
		s := orderdomain.OrderStatus(statusStr)
		status = &s
	}

	orders, total, err := h.orders.ListOrders(ctx, userID, status, page, pageSize)
	if err != nil {
		HandleError(c, err, "ListOrders")
		return
	}

	resp := ListOrdersResponse{
		Orders: make([]OrderResponse, len(orders)),
		Pagination: PaginationResponse{
			CurrentPage: page,
			PageSize:    pageSize,
			TotalItems:  total,
			TotalPages:  int((total + int64(pageSize) - 1) / int64(pageSize)),
		},
	}
	for i, o := range orders {
		resp.Orders[i] = orderToResponse(o, false)
	}
	c.JSON(http.StatusOK, resp)
}

// GetOrder возвращает заказ с историей статусов.
// GET /api/v1/orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.GetString(middleware.ContextUserID)

	order, err := h.orders.GetOrder(ctx, c.Param("id"), userID)
	if err != nil {
		HandleError(c, err, "GetOrder")
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": orderToResponse(order, true)})
}

// CancelOrder отменяет заказ пользователя.
// POST /api/v1/orders/:id/cancel
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)
	userID := c.GetString(middleware.ContextUserID)
	orderID := c.Param("id")

	var req CancelOrderRequest
	_ = c.ShouldBindJSON(&req) // body опционален

	if err := h.orders.CancelOrder(ctx, orderID, userID, req.Reason); err != nil {
		HandleError(c, err, "CancelOrder")
		return
	}

	log.Info().Str("order_id", orderID).Str("user_id", userID).Msg("Заказ отменён пользователем")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Заказ отменён"})
}

// RequestReturn создаёт заявку на возврат завершённого заказа.
// POST /api/v1/orders/:id/return
func (h *OrderHandler) RequestReturn(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.GetString(middleware.ContextUserID)
	orderID := c.Param("id")

	var req ReturnOrderRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.orders.RequestReturn(ctx, orderID, userID, req.Reason); err != nil {
		HandleError(c, err, "RequestReturn")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Возврат запрошен"})
}

// === Админские операции ===

// AdminGetOrder возвращает любой заказ без проверки владельца.
// GET /api/v1/admin/orders/:id
func (h *OrderHandler) AdminGetOrder(c *gin.Context) {
	order, err := h.orders.GetOrder(c.Request.Context(), c.Param("id"), "")
	if err != nil {
		HandleError(c, err, "AdminGetOrder")
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": orderToResponse(order, true)})
}

// AdminUpdateStatus переводит заказ в новый статус.
// PATCH /api/v1/admin/orders/:id/status
func (h *OrderHandler) AdminUpdateStatus(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)
	adminID := c.GetString(middleware.ContextUserID)
	orderID := c.Param("id")

	var req UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Невалидные данные запроса",
		})
		return
	}

	newStatus := orderdomain.OrderStatus(req.Status)
	if err := h.orders.UpdateStatus(ctx, orderID, newStatus, adminID, req.Note); err != nil {
		HandleError(c, err, "AdminUpdateStatus")
		return
	}

	log.Info().
		Str("order_id", orderID).
		Str("admin_id", adminID).
		Str("new_status", req.Status).
		Msg("Статус заказа изменён администратором")
	c.JSON(http.StatusOK, gin.H{"success": true, "status": req.Status})
}

// AdminConfirmReturn подтверждает возврат заказа.
// POST /api/v1/admin/orders/:id/return/confirm
func (h *OrderHandler) AdminConfirmReturn(c *gin.Context) {
	ctx := c.Request.Context()
	adminID := c.GetString(middleware.ContextUserID)
	orderID := c.Param("id")

	if err := h.orders.ConfirmReturn(ctx, orderID, adminID); err != nil {
		HandleError(c, err, "AdminConfirmReturn")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Возврат подтверждён"})
}
