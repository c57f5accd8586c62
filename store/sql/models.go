package sqlstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-orderbus/core"
)

type orderRecord struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID              string     `bun:"id,pk"`
	ExternalRef     string     `bun:"external_ref,notnull"`
	IdempotencyKey  *string    `bun:"idempotency_key"`
	CustomerName    string     `bun:"customer_name,notnull"`
	CustomerEmail   string     `bun:"customer_email,notnull"`
	ShippingAddress string     `bun:"shipping_address,notnull"`
	Total           core.Money `bun:"total,notnull"`
	CreatedAt       time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type orderItemRecord struct {
	bun.BaseModel `bun:"table:order_items,alias:oi"`

	ID        string     `bun:"id,pk"`
	OrderID   string     `bun:"order_id,notnull"`
	SKU       string     `bun:"sku,notnull"`
	Name      string     `bun:"name,notnull"`
	Quantity  int        `bun:"quantity,notnull"`
	UnitPrice core.Money `bun:"unit_price,notnull"`
}

func orderToDomain(record *orderRecord, items []*orderItemRecord) core.Order {
	if record == nil {
		return core.Order{}
	}
	order := core.Order{
		ID:              record.ID,
		ExternalRef:     record.ExternalRef,
		CustomerName:    record.CustomerName,
		CustomerEmail:   record.CustomerEmail,
		ShippingAddress: record.ShippingAddress,
		Total:           record.Total,
		CreatedAt:       record.CreatedAt.UTC(),
		Items:           make([]core.OrderItem, 0, len(items)),
	}
	if record.IdempotencyKey != nil {
		order.IdempotencyKey = *record.IdempotencyKey
	}
	for _, item := range items {
		if item == nil {
			continue
		}
		order.Items = append(order.Items, core.OrderItem{
			ID:        item.ID,
			OrderID:   item.OrderID,
			SKU:       item.SKU,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return order
}
