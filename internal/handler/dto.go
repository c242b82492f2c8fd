package handler

import (
	"time"

	orderdomain "example.com/shop-backend/internal/order/domain"
	paymentdomain "example.com/shop-backend/internal/payment/domain"
)

// =============================================================================
// Общие DTO ответов
// =============================================================================

// OrderResponse — заказ в ответе API.
type OrderResponse struct {
	ID              string                  `json:"id"`
	UserID          string                  `json:"user_id"`
	Items           []OrderItemResponse     `json:"items"`
	Subtotal        string                  `json:"subtotal"`
	Coupon          *AppliedCouponResponse  `json:"coupon,omitempty"`
	Total           string                  `json:"total"`
	Status          string                  `json:"status"`
	PaymentMethod   string                  `json:"payment_method"`
	PaymentStatus   string                  `json:"payment_status"`
	ShippingAddress ShippingAddressResponse `json:"shipping_address"`
	Timeline        []TimelineResponse      `json:"timeline,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
}

// OrderItemResponse — позиция заказа в ответе.
type OrderItemResponse struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	VariantSKU  string `json:"variant_sku"`
	Size        string `json:"size,omitempty"`
	Color       string `json:"color,omitempty"`
	UnitPrice   string `json:"unit_price"`
	Quantity    int32  `json:"quantity"`
	TotalPrice  string `json:"total_price"`
}

// AppliedCouponResponse — применённый купон в ответе.
type AppliedCouponResponse struct {
	Code           string `json:"code"`
	DiscountType   string `json:"discount_type"`
	DiscountAmount string `json:"discount_amount"`
}

// ShippingAddressResponse — адрес доставки в ответе.
type ShippingAddressResponse struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	Ward     string `json:"ward,omitempty"`
	City     string `json:"city"`
}

// TimelineResponse — запись истории статусов в ответе.
type TimelineResponse struct {
	Status    string    `json:"status"`
	ChangedBy string    `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
	Note      string    `json:"note,omitempty"`
}

// PaymentResponse — платёж в ответе API.
type PaymentResponse struct {
	ID            string     `json:"id"`
	OrderID       string     `json:"order_id"`
	Amount        string     `json:"amount"`
	Method        string     `json:"method"`
	Status        string     `json:"status"`
	PayURL        string     `json:"pay_url,omitempty"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// PaginationResponse — информация о пагинации.
type PaginationResponse struct {
	CurrentPage int   `json:"current_page"`
	PageSize    int   `json:"page_size"`
	TotalItems  int64 `json:"total_items"`
	TotalPages  int   `json:"total_pages"`
}

// =============================================================================
// Конвертеры доменных сущностей в DTO
// =============================================================================

func orderToResponse(o *orderdomain.Order, withTimeline bool) OrderResponse {
	resp := OrderResponse{
		ID:            o.ID,
		UserID:        o.UserID,
		Items:         make([]OrderItemResponse, len(o.Items)),
		Subtotal:      o.Subtotal.StringFixed(2),
		Total:         o.Total.StringFixed(2),
		Status:        string(o.Status),
		PaymentMethod: string(o.PaymentMethod),
		PaymentStatus: string(o.PaymentStatus),
		ShippingAddress: ShippingAddressResponse{
			FullName: o.ShippingAddress.FullName,
			Phone:    o.ShippingAddress.Phone,
			Address:  o.ShippingAddress.Address,
			Ward:     o.ShippingAddress.Ward,
			City:     o.ShippingAddress.City,
		},
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}

	for i, item := range o.Items {
		resp.Items[i] = OrderItemResponse{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			VariantSKU:  item.VariantSKU,
			Size:        item.Size,
			Color:       item.Color,
			UnitPrice:   item.UnitPrice.StringFixed(2),
			Quantity:    item.Quantity,
			TotalPrice:  item.TotalPrice.StringFixed(2),
		}
	}

	if o.AppliedCoupon != nil {
		resp.Coupon = &AppliedCouponResponse{
			Code:           o.AppliedCoupon.Code,
			DiscountType:   string(o.AppliedCoupon.DiscountType),
			DiscountAmount: o.AppliedCoupon.DiscountAmount.StringFixed(2),
		}
	}

	if withTimeline {
		resp.Timeline = make([]TimelineResponse, len(o.Timeline))
		for i, entry := range o.Timeline {
			resp.Timeline[i] = TimelineResponse{
				Status:    entry.Status,
				ChangedBy: entry.ChangedBy,
				ChangedAt: entry.ChangedAt,
				Note:      entry.Note,
			}
		}
	}

	return resp
}

func paymentToResponse(p *paymentdomain.Payment) PaymentResponse {
	return PaymentResponse{
		ID:            p.ID,
		OrderID:       p.OrderID,
		Amount:        p.Amount.StringFixed(2),
		Method:        string(p.Method),
		Status:        string(p.Status),
		PayURL:        p.PayURL,
		FailureReason: p.FailureReason,
		PaidAt:        p.PaidAt,
		CreatedAt:     p.CreatedAt,
	}
}
