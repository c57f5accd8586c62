package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/goliatone/go-orderbus/core"
)

const instrumentationName = "github.com/goliatone/go-orderbus/relay"

var ErrStreamClosed = errors.New("relay: delivery stream closed unexpectedly")

// Stats counts what one Run did. Dropped messages were malformed and acked
// without delivery; they are not included in Acked.
type Stats struct {
	Received int
	Acked    int
	Nacked   int
	Dropped  int
}

func (s Stats) Handled() int {
	return s.Acked + s.Nacked + s.Dropped
}

type Option func(*Relay)

func WithLogger(logger core.Logger) Option {
	return func(r *Relay) {
		r.logger = glog.Ensure(logger)
	}
}

func WithMetrics(metrics core.MetricsRecorder) Option {
	return func(r *Relay) {
		if metrics != nil {
			r.metrics = metrics
		}
	}
}

type deliverer interface {
	Deliver(ctx context.Context, event core.OrderCreatedEvent) error
}

// Relay pulls order events from a subscription and forwards each one to the
// egress sender, acking on success and nacking on failure.
type Relay struct {
	source      core.DeliverySource
	sender      core.EgressSender
	maxMessages int
	logger      core.Logger
	metrics     core.MetricsRecorder
}

func New(source core.DeliverySource, sender core.EgressSender, cfg core.RelayConfig, opts ...Option) (*Relay, error) {
	if source == nil {
		return nil, fmt.Errorf("relay: delivery source is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("relay: egress sender is required")
	}
	if cfg.MaxMessages < 0 {
		return nil, fmt.Errorf("relay: max messages must be >= 0")
	}
	r := &Relay{
		source:      source,
		sender:      sender,
		maxMessages: cfg.MaxMessages,
		logger:      glog.Nop(),
		metrics:     core.NopMetricsRecorder{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Run consumes until ctx is cancelled, MaxMessages messages have been
// handled, or the stream fails. It returns only after the stream has stopped.
// A stream failure outside shutdown is returned as an error.
func (r *Relay) Run(ctx context.Context) (Stats, error) {
	streamCtx, stop := context.WithCancel(ctx)
	defer stop()

	stream, err := r.source.Open(streamCtx)
	if err != nil {
		return Stats{}, fmt.Errorf("relay: open stream: %w", err)
	}
	core.LogInfo(ctx, r.logger, "relay started", map[string]any{
		"max_messages": r.maxMessages,
	})

	var stats Stats
	deliveries := stream.Deliveries()
	for {
		select {
		case <-streamCtx.Done():
			return r.drain(ctx, stream, stats)
		case delivery, ok := <-deliveries:
			if !ok {
				err := stream.Wait()
				if streamCtx.Err() != nil {
					return stats, err
				}
				if err == nil {
					err = ErrStreamClosed
				}
				core.LogError(ctx, r.logger, "relay stream failed", map[string]any{"error": err.Error()})
				return stats, err
			}
			stats.Received++
			if streamCtx.Err() != nil {
				delivery.Nack()
				stats.Nacked++
				continue
			}
			r.handle(streamCtx, delivery, &stats)
			if r.maxMessages > 0 && stats.Handled() >= r.maxMessages {
				stop()
			}
		}
	}
}

// drain nacks anything handed over after shutdown began and waits for the
// stream to stop.
func (r *Relay) drain(ctx context.Context, stream core.DeliveryStream, stats Stats) (Stats, error) {
	for delivery := range stream.Deliveries() {
		stats.Received++
		delivery.Nack()
		stats.Nacked++
	}
	err := stream.Wait()
	core.LogInfo(ctx, r.logger, "relay stopped", map[string]any{
		"received": stats.Received,
		"acked":    stats.Acked,
		"nacked":   stats.Nacked,
		"dropped":  stats.Dropped,
	})
	return stats, err
}

func (r *Relay) handle(ctx context.Context, delivery core.Delivery, stats *Stats) {
	startedAt := time.Now()
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "relay.handle")
	span.SetAttributes(attribute.String("messaging.message.id", delivery.ID()))
	defer span.End()

	event, err := core.DecodeOrderCreatedEvent(delivery.Data())
	if err != nil {
		delivery.Ack()
		stats.Dropped++
		span.SetAttributes(attribute.String("orderbus.outcome", "dropped"))
		core.LogWarn(ctx, r.logger, "relay dropped malformed message", map[string]any{
			"message_id": delivery.ID(),
			"error":      err.Error(),
		})
		return
	}
	span.SetAttributes(attribute.String("orderbus.order_id", event.OrderID))

	err = r.deliver(ctx, event)
	outcome := "acked"
	if err != nil {
		outcome = "nacked"
		delivery.Nack()
		stats.Nacked++
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		delivery.Ack()
		stats.Acked++
	}
	span.SetAttributes(attribute.String("orderbus.outcome", outcome))
	core.ObserveOperation(ctx, r.logger, r.metrics, startedAt, "relay_handle", err, map[string]any{
		"message_id": delivery.ID(),
		"order_id":   event.OrderID,
		"outcome":    outcome,
	})
}

func (r *Relay) deliver(ctx context.Context, event core.OrderCreatedEvent) error {
	if d, ok := r.sender.(deliverer); ok {
		return d.Deliver(ctx, event)
	}
	if !r.sender.Send(ctx, event) {
		return core.DeliveryError(nil, "egress delivery failed", map[string]any{"order_id": event.OrderID})
	}
	return nil
}
