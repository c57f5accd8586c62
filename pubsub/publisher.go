package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	glog "github.com/goliatone/go-logger/glog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/goliatone/go-orderbus/core"
)

const (
	instrumentationName   = "github.com/goliatone/go-orderbus/pubsub"
	DefaultPublishTimeout = 5 * time.Second
)

type PublisherOption func(*Publisher)

func WithPublisherLogger(logger core.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = glog.Ensure(logger)
	}
}

func WithPublisherMetrics(metrics core.MetricsRecorder) PublisherOption {
	return func(p *Publisher) {
		if metrics != nil {
			p.metrics = metrics
		}
	}
}

// Publisher sends order events to one topic. The topic is provisioned once,
// lazily, before the first publish unless provisioning is disabled.
type Publisher struct {
	client          *gpubsub.Client
	topicID         string
	timeout         time.Duration
	createIfMissing bool
	logger          core.Logger
	metrics         core.MetricsRecorder

	mu    sync.Mutex
	topic *gpubsub.Topic
}

func NewPublisher(client *gpubsub.Client, cfg core.PubSubConfig, opts ...PublisherOption) (*Publisher, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub: client is required")
	}
	topicID := strings.TrimSpace(cfg.TopicID)
	if topicID == "" {
		return nil, fmt.Errorf("pubsub: topic id is required")
	}
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	p := &Publisher{
		client:          client,
		topicID:         topicID,
		timeout:         timeout,
		createIfMissing: cfg.CreateIfMissing,
		logger:          glog.Nop(),
		metrics:         core.NopMetricsRecorder{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// EnsureTopic provisions the topic. It is safe to call repeatedly; a failed
// attempt is retried on the next call.
func (p *Publisher) EnsureTopic(ctx context.Context) error {
	_, err := p.resolveTopic(ctx)
	return err
}

func (p *Publisher) resolveTopic(ctx context.Context) (*gpubsub.Topic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.topic != nil {
		return p.topic, nil
	}
	var topic *gpubsub.Topic
	if p.createIfMissing {
		created, err := EnsureTopic(ctx, p.client, p.topicID)
		if err != nil {
			return nil, err
		}
		topic = created
	} else {
		topic = p.client.Topic(p.topicID)
		exists, err := topic.Exists(ctx)
		if err != nil {
			return nil, fmt.Errorf("pubsub: check topic %s: %w", p.topicID, err)
		}
		if !exists {
			return nil, fmt.Errorf("pubsub: topic %s does not exist", p.topicID)
		}
	}
	p.topic = topic
	return topic, nil
}

// Publish blocks until the broker acknowledges the message or the publish
// timeout elapses. Every failure is returned as a publish error.
func (p *Publisher) Publish(ctx context.Context, event core.OrderCreatedEvent) (messageID string, err error) {
	startedAt := time.Now()
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "pubsub.publish")
	span.SetAttributes(
		attribute.String("messaging.system", "gcp_pubsub"),
		attribute.String("messaging.destination.name", p.topicID),
		attribute.String("orderbus.order_id", event.OrderID),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		core.ObserveOperation(ctx, p.logger, p.metrics, startedAt, "pubsub_publish", err, map[string]any{
			"topic":      p.topicID,
			"order_id":   event.OrderID,
			"message_id": messageID,
		})
	}()

	body, err := json.Marshal(event)
	if err != nil {
		return "", core.PublishError(err, event.OrderID)
	}

	publishCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	topic, err := p.resolveTopic(publishCtx)
	if err != nil {
		return "", core.PublishError(err, event.OrderID)
	}
	result := topic.Publish(publishCtx, &gpubsub.Message{
		Data:       body,
		Attributes: event.Attributes(),
	})
	messageID, err = result.Get(publishCtx)
	if err != nil {
		return "", core.PublishError(err, event.OrderID)
	}
	return messageID, nil
}

// Close flushes pending publishes and stops the topic's background workers.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.topic != nil {
		p.topic.Stop()
		p.topic = nil
	}
}

var _ core.EventPublisher = (*Publisher)(nil)
