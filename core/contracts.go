package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// OrderStore persists orders and their items atomically. A uniqueness
// conflict is not an error: it resolves to CreateOutcomeAlreadyExists with
// the winning row.
type OrderStore interface {
	CreateOrder(ctx context.Context, in CreateOrderInput) (CreateResult, error)
	FindByIdempotencyKey(ctx context.Context, key string) (Order, bool, error)
	FindByExternalRef(ctx context.Context, externalRef string) (Order, bool, error)
}

// OrderReader loads an order with its items for read surfaces.
type OrderReader interface {
	GetByExternalRef(ctx context.Context, externalRef string) (Order, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event OrderCreatedEvent) (string, error)
}

type EgressSender interface {
	Send(ctx context.Context, event OrderCreatedEvent) bool
}

// Delivery is one broker message handed to a consumer. Exactly one of Ack or
// Nack takes effect; later calls are ignored.
type Delivery interface {
	ID() string
	Data() []byte
	Attributes() map[string]string
	Ack()
	Nack()
}

// DeliveryStream yields deliveries until its context ends or the underlying
// subscription fails. The channel is closed when the stream stops and Wait
// then reports the terminal error, nil on cooperative shutdown.
type DeliveryStream interface {
	Deliveries() <-chan Delivery
	Wait() error
}

type DeliverySource interface {
	Open(ctx context.Context) (DeliveryStream, error)
}

type SignatureVerifier interface {
	VerifyRequest(ctx context.Context, req InboundRequest) error
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

type Clock func() time.Time

func SystemClock() time.Time {
	return time.Now().UTC()
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
