package inbound

import (
	"context"
	"fmt"
	"net/http"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/goliatone/go-orderbus/core"
)

const (
	instrumentationName   = "github.com/goliatone/go-orderbus/inbound"
	defaultPublishTimeout = 5 * time.Second
)

type IngestorOption func(*Ingestor)

func WithLogger(logger core.Logger) IngestorOption {
	return func(i *Ingestor) {
		i.logger = glog.Ensure(logger)
	}
}

func WithMetrics(metrics core.MetricsRecorder) IngestorOption {
	return func(i *Ingestor) {
		if metrics != nil {
			i.metrics = metrics
		}
	}
}

// WithPublishTimeout bounds how long a request waits for the broker after
// the order is committed.
func WithPublishTimeout(timeout time.Duration) IngestorOption {
	return func(i *Ingestor) {
		if timeout > 0 {
			i.publishTimeout = timeout
		}
	}
}

// Ingestor runs one webhook through verify, validate, idempotency check,
// persist and publish. Publishing happens after commit and never changes
// the outcome of a request.
type Ingestor struct {
	verifier       core.SignatureVerifier
	store          core.OrderStore
	publisher      core.EventPublisher
	publishTimeout time.Duration
	logger         core.Logger
	metrics        core.MetricsRecorder
}

func NewIngestor(
	verifier core.SignatureVerifier,
	store core.OrderStore,
	publisher core.EventPublisher,
	opts ...IngestorOption,
) (*Ingestor, error) {
	if verifier == nil {
		return nil, fmt.Errorf("inbound: signature verifier is required")
	}
	if store == nil {
		return nil, fmt.Errorf("inbound: order store is required")
	}
	i := &Ingestor{
		verifier:       verifier,
		store:          store,
		publisher:      publisher,
		publishTimeout: defaultPublishTimeout,
		logger:         glog.Nop(),
		metrics:        core.NopMetricsRecorder{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}
	return i, nil
}

func (i *Ingestor) Ingest(ctx context.Context, req core.InboundRequest) (result core.IngestResult, err error) {
	startedAt := time.Now()
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "inbound.ingest")
	defer func() {
		span.SetAttributes(attribute.Int("http.response.status_code", statusFor(result, err)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		core.ObserveOperation(ctx, i.logger, i.metrics, startedAt, "inbound_ingest", err, map[string]any{
			"order_id":    result.OrderID,
			"outcome":     outcomeFor(result, err),
			"status_code": statusFor(result, err),
		})
	}()

	if err := i.verifier.VerifyRequest(ctx, req); err != nil {
		if core.AsError(err) == nil {
			err = core.WrapError(err, goerrors.CategoryAuth, "invalid signature", core.ErrorUnauthorized, nil)
		}
		return core.IngestResult{StatusCode: http.StatusUnauthorized}, err
	}

	input, err := DecodeOrderPayload(req.Body)
	if err != nil {
		return core.IngestResult{StatusCode: core.HTTPStatus(err)}, err
	}
	span.SetAttributes(attribute.String("orderbus.order_id", input.ExternalRef))

	if input.IdempotencyKey != "" {
		existing, found, err := i.store.FindByIdempotencyKey(ctx, input.IdempotencyKey)
		if err != nil {
			return core.IngestResult{StatusCode: http.StatusInternalServerError}, asPersistenceError(err, "idempotency lookup")
		}
		if found {
			return i.resolveExisting(input, existing)
		}
	}

	created, err := i.store.CreateOrder(ctx, input)
	if err != nil {
		return core.IngestResult{StatusCode: http.StatusInternalServerError}, asPersistenceError(err, "create order")
	}
	if !created.Created() {
		return i.resolveExisting(input, created.Order)
	}

	order := created.Order
	if itemsTotal := order.ItemsTotal(); !itemsTotal.Equal(order.Total) {
		core.LogWarn(ctx, i.logger, "order total differs from item sum", map[string]any{
			"order_id":    order.ExternalRef,
			"total":       order.Total.String(),
			"items_total": itemsTotal.String(),
		})
	}

	return core.IngestResult{
		OrderID:    order.ExternalRef,
		Created:    true,
		StatusCode: http.StatusCreated,
		MessageID:  i.publish(ctx, order),
	}, nil
}

// resolveExisting maps an already persisted order to 200, or to 409 when the
// idempotency key belongs to a different external ref.
func (i *Ingestor) resolveExisting(input core.CreateOrderInput, existing core.Order) (core.IngestResult, error) {
	if existing.ExternalRef != input.ExternalRef {
		err := core.IdempotencyConflictError(input.IdempotencyKey, input.ExternalRef, existing.ExternalRef)
		return core.IngestResult{OrderID: input.ExternalRef, StatusCode: http.StatusConflict}, err
	}
	return core.IngestResult{
		OrderID:    existing.ExternalRef,
		Created:    false,
		StatusCode: http.StatusOK,
	}, nil
}

func (i *Ingestor) publish(ctx context.Context, order core.Order) string {
	if i.publisher == nil {
		core.LogWarn(ctx, i.logger, "no event publisher configured, skipping publish", map[string]any{
			"order_id": order.ExternalRef,
		})
		return ""
	}
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.publishTimeout)
	defer cancel()

	messageID, err := i.publisher.Publish(publishCtx, core.NewOrderCreatedEvent(order))
	if err != nil {
		core.LogError(ctx, i.logger, "publish order.created failed", map[string]any{
			"order_id": order.ExternalRef,
			"error":    err.Error(),
		})
		return ""
	}
	return messageID
}

func asPersistenceError(err error, message string) error {
	if core.AsError(err) != nil {
		return err
	}
	return core.PersistenceError(err, message)
}

func statusFor(result core.IngestResult, err error) int {
	if result.StatusCode != 0 {
		return result.StatusCode
	}
	if err != nil {
		return core.HTTPStatus(err)
	}
	return http.StatusOK
}

func outcomeFor(result core.IngestResult, err error) string {
	switch {
	case err != nil && result.StatusCode == http.StatusConflict:
		return "conflict"
	case err != nil:
		return "rejected"
	case result.Created:
		return "created"
	default:
		return "duplicate"
	}
}
