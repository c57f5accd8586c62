package core

import (
	"errors"
	"strings"
	"time"

	"github.com/samber/lo"
)

const EventOrderCreated = "order.created"

var (
	ErrOrderNotFound      = errors.New("core: order not found")
	ErrOrderItemsRequired = errors.New("core: order requires at least one item")
)

type Customer struct {
	Name  string
	Email string
}

type Order struct {
	ID              string
	ExternalRef     string
	IdempotencyKey  string
	CustomerName    string
	CustomerEmail   string
	ShippingAddress string
	Total           Money
	CreatedAt       time.Time
	Items           []OrderItem
}

type OrderItem struct {
	ID        string
	OrderID   string
	SKU       string
	Name      string
	Quantity  int
	UnitPrice Money
}

// LineTotal is derived and never stored.
func (i OrderItem) LineTotal() Money {
	return i.UnitPrice.Mul(i.Quantity)
}

// ItemsTotal sums line totals across the order items.
func (o Order) ItemsTotal() Money {
	return lo.Reduce(o.Items, func(acc Money, item OrderItem, _ int) Money {
		return acc.Add(item.LineTotal())
	}, Money{})
}

type CreateOrderItemInput struct {
	SKU       string
	Name      string
	Quantity  int
	UnitPrice Money
}

type CreateOrderInput struct {
	ExternalRef     string
	IdempotencyKey  string
	Customer        Customer
	ShippingAddress string
	Total           Money
	Items           []CreateOrderItemInput
}

func (in CreateOrderInput) Normalize() CreateOrderInput {
	in.ExternalRef = strings.TrimSpace(in.ExternalRef)
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	in.Customer.Name = strings.TrimSpace(in.Customer.Name)
	in.Customer.Email = strings.TrimSpace(in.Customer.Email)
	return in
}

// CreateOutcome tags the result of an order insert.
type CreateOutcome string

const (
	CreateOutcomeCreated       CreateOutcome = "created"
	CreateOutcomeAlreadyExists CreateOutcome = "already_exists"
)

// CreateResult carries the persisted order. For AlreadyExists, Order is the
// row that won the uniqueness race.
type CreateResult struct {
	Outcome CreateOutcome
	Order   Order
}

func (r CreateResult) Created() bool {
	return r.Outcome == CreateOutcomeCreated
}

// OrderCreatedEvent is the broker payload published after commit.
type OrderCreatedEvent struct {
	Event        string    `json:"event"`
	OrderID      string    `json:"order_id"`
	CustomerName string    `json:"customer_name"`
	Total        Money     `json:"total"`
	CreatedAt    time.Time `json:"created_at"`
}

func NewOrderCreatedEvent(order Order) OrderCreatedEvent {
	return OrderCreatedEvent{
		Event:        EventOrderCreated,
		OrderID:      order.ExternalRef,
		CustomerName: order.CustomerName,
		Total:        order.Total,
		CreatedAt:    order.CreatedAt.UTC(),
	}
}

// EgressPayload is what the relay forwards downstream.
type EgressPayload struct {
	Event        string    `json:"event"`
	OrderID      string    `json:"order_id"`
	CustomerName string    `json:"customer_name"`
	Total        Money     `json:"total"`
	SentAt       time.Time `json:"sent_at"`
}

func NewEgressPayload(event OrderCreatedEvent, sentAt time.Time) EgressPayload {
	return EgressPayload{
		Event:        event.Event,
		OrderID:      event.OrderID,
		CustomerName: event.CustomerName,
		Total:        event.Total,
		SentAt:       sentAt.UTC().Truncate(time.Second),
	}
}

type InboundRequest struct {
	Headers  map[string]string
	Body     []byte
	Metadata map[string]any
}

// Header does a case-insensitive header lookup.
func (r InboundRequest) Header(name string) string {
	if len(r.Headers) == 0 {
		return ""
	}
	if value, ok := r.Headers[name]; ok {
		return value
	}
	for key, value := range r.Headers {
		if strings.EqualFold(key, name) {
			return value
		}
	}
	return ""
}

// IngestResult is the terminal state of a successful ingestion.
type IngestResult struct {
	OrderID    string
	Created    bool
	StatusCode int
	MessageID  string
}
