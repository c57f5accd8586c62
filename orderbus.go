// Package orderbus ingests signed order webhooks, stores each order exactly
// once and relays order.created events to a downstream endpoint.
//
// The root package re-exports the domain types from core and embeds the SQL
// migrations. Runnable wiring lives in cmd/orderbus.
package orderbus

import (
	"context"

	"github.com/goliatone/go-orderbus/core"
)

type Config = core.Config

type Order = core.Order

type OrderItem = core.OrderItem

type Money = core.Money

type OrderCreatedEvent = core.OrderCreatedEvent
type EgressPayload = core.EgressPayload
type IngestResult = core.IngestResult

type OrderStore = core.OrderStore
type OrderReader = core.OrderReader
type EventPublisher = core.EventPublisher
type EgressSender = core.EgressSender
type SignatureVerifier = core.SignatureVerifier

const (
	EventOrderCreated = core.EventOrderCreated

	ErrorUnauthorized        = core.ErrorUnauthorized
	ErrorBadInput            = core.ErrorBadInput
	ErrorIdempotencyConflict = core.ErrorIdempotencyConflict
	ErrorPersistenceFailed   = core.ErrorPersistenceFailed
	ErrorNotFound            = core.ErrorNotFound
)

var (
	ParseMoney = core.ParseMoney
	HTTPStatus = core.HTTPStatus
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// LoadConfig reads defaults, then the optional file and environment, then
// runtime overrides.
func LoadConfig(ctx context.Context, configFile string, runtime Config) (Config, error) {
	return core.LoadConfig(ctx,
		core.NewCfgxConfigProvider(core.NewViperConfigLoader(configFile)),
		core.GoOptionsResolver{},
		runtime,
	)
}
