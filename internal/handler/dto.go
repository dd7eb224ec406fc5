package handler

import (
	"time"

	"github.com/quickbite/delivery-core/internal/domain/order"
)

type orderItemResponse struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unitPrice"`
	Quantity  int     `json:"quantity"`
}

type orderResponse struct {
	ID          string              `json:"id"`
	OrderNumber int64               `json:"orderNumber"`
	CustomerID  string              `json:"customerId"`
	Items       []orderItemResponse `json:"items"`

	Subtotal    float64 `json:"subtotal"`
	Tax         float64 `json:"tax"`
	DeliveryFee float64 `json:"deliveryFee"`
	Discount    float64 `json:"discount"`
	Total       float64 `json:"total"`
	CouponCode  string  `json:"couponCode,omitempty"`

	Address       string `json:"address"`
	PaymentMethod string `json:"paymentMethod"`
	PaymentStatus string `json:"paymentStatus"`
	Status        string `json:"status"`
	AgentID       string `json:"agentId,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	ConfirmedAt *time.Time `json:"confirmedAt,omitempty"`
	AssignedAt  *time.Time `json:"assignedAt,omitempty"`
	PickedUpAt  *time.Time `json:"pickedUpAt,omitempty"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]orderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemResponse{
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice.InexactFloat64(),
			Quantity:  it.Quantity,
		}
	}
	return orderResponse{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		CustomerID:    o.CustomerID,
		Items:         items,
		Subtotal:      o.Subtotal.InexactFloat64(),
		Tax:           o.Tax.InexactFloat64(),
		DeliveryFee:   o.DeliveryFee.InexactFloat64(),
		Discount:      o.Discount.InexactFloat64(),
		Total:         o.Total.InexactFloat64(),
		CouponCode:    o.CouponCode,
		Address:       o.Address,
		PaymentMethod: string(o.PaymentMethod),
		PaymentStatus: string(o.PaymentStatus),
		Status:        string(o.Status),
		AgentID:       o.AgentID,
		CreatedAt:     o.CreatedAt,
		ConfirmedAt:   o.ConfirmedAt,
		AssignedAt:    o.AssignedAt,
		PickedUpAt:    o.PickedUpAt,
		DeliveredAt:   o.DeliveredAt,
		CancelledAt:   o.CancelledAt,
	}
}
