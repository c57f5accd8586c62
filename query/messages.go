package query

import (
	"strings"
	"time"

	"github.com/goliatone/go-orderbus/core"
)

const TypeGetOrder = "orderbus.query.order.get"

type GetOrderMessage struct {
	OrderID string
}

func (GetOrderMessage) Type() string { return TypeGetOrder }

func (m GetOrderMessage) Validate() error {
	if strings.TrimSpace(m.OrderID) == "" {
		return queryValidationError("order_id", "order id is required")
	}
	return nil
}

// OrderDetail is the read model served by the order detail endpoint.
type OrderDetail struct {
	ID              string            `json:"id"`
	ExternalRef     string            `json:"external_ref"`
	CustomerName    string            `json:"customer_name"`
	CustomerEmail   string            `json:"customer_email"`
	ShippingAddress string            `json:"shipping_address"`
	Total           core.Money        `json:"total"`
	CreatedAt       time.Time         `json:"created_at"`
	Items           []OrderItemDetail `json:"items"`
}

type OrderItemDetail struct {
	SKU       string     `json:"sku"`
	Name      string     `json:"name"`
	Quantity  int        `json:"quantity"`
	UnitPrice core.Money `json:"unit_price"`
	LineTotal core.Money `json:"line_total"`
}

func NewOrderDetail(order core.Order) OrderDetail {
	items := make([]OrderItemDetail, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemDetail{
			SKU:       item.SKU,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal(),
		})
	}
	return OrderDetail{
		ID:              order.ID,
		ExternalRef:     order.ExternalRef,
		CustomerName:    order.CustomerName,
		CustomerEmail:   order.CustomerEmail,
		ShippingAddress: order.ShippingAddress,
		Total:           order.Total,
		CreatedAt:       order.CreatedAt.UTC(),
		Items:           items,
	}
}
