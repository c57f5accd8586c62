package pubsub

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	gpubsub "cloud.google.com/go/pubsub"

	"github.com/goliatone/go-orderbus/core"
)

const DefaultAckDeadline = 30 * time.Second

// Subscriber opens channel based streams over one subscription. Each stream
// holds at most one outstanding message.
type Subscriber struct {
	client          *gpubsub.Client
	topicID         string
	subscriptionID  string
	ackDeadline     time.Duration
	createIfMissing bool
}

func NewSubscriber(client *gpubsub.Client, cfg core.PubSubConfig) (*Subscriber, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub: client is required")
	}
	subscriptionID := strings.TrimSpace(cfg.SubscriptionID)
	if subscriptionID == "" {
		return nil, fmt.Errorf("pubsub: subscription id is required")
	}
	ackDeadline := cfg.AckDeadline
	if ackDeadline <= 0 {
		ackDeadline = DefaultAckDeadline
	}
	return &Subscriber{
		client:          client,
		topicID:         strings.TrimSpace(cfg.TopicID),
		subscriptionID:  subscriptionID,
		ackDeadline:     ackDeadline,
		createIfMissing: cfg.CreateIfMissing,
	}, nil
}

func (s *Subscriber) EnsureSubscription(ctx context.Context) error {
	_, err := EnsureSubscription(ctx, s.client, s.topicID, s.subscriptionID, gpubsub.SubscriptionConfig{
		AckDeadline: s.ackDeadline,
	})
	return err
}

// Open starts receiving in the background. The stream stops when ctx is
// cancelled or the subscription fails.
func (s *Subscriber) Open(ctx context.Context) (core.DeliveryStream, error) {
	if s.createIfMissing {
		if err := s.EnsureSubscription(ctx); err != nil {
			return nil, err
		}
	}
	sub := s.client.Subscription(s.subscriptionID)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("pubsub: check subscription %s: %w", s.subscriptionID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub: subscription %s does not exist", s.subscriptionID)
	}
	sub.ReceiveSettings.MaxOutstandingMessages = 1
	sub.ReceiveSettings.NumGoroutines = 1

	stream := &Stream{
		deliveries: make(chan core.Delivery),
		done:       make(chan struct{}),
	}
	go stream.receive(ctx, sub)
	return stream, nil
}

type Stream struct {
	deliveries chan core.Delivery
	done       chan struct{}
	err        error
}

func (s *Stream) receive(ctx context.Context, sub *gpubsub.Subscription) {
	defer close(s.done)
	defer close(s.deliveries)
	err := sub.Receive(ctx, func(msgCtx context.Context, msg *gpubsub.Message) {
		d := newDelivery(msg)
		select {
		case s.deliveries <- d:
		case <-msgCtx.Done():
			msg.Nack()
			return
		}
		// Held until the consumer acks or nacks.
		<-d.settled
	})
	if err != nil {
		s.err = fmt.Errorf("pubsub: receive %s: %w", sub.ID(), err)
	}
}

func (s *Stream) Deliveries() <-chan core.Delivery {
	return s.deliveries
}

func (s *Stream) Wait() error {
	<-s.done
	return s.err
}

type delivery struct {
	msg     *gpubsub.Message
	once    sync.Once
	settled chan struct{}
}

func newDelivery(msg *gpubsub.Message) *delivery {
	return &delivery{msg: msg, settled: make(chan struct{})}
}

func (d *delivery) ID() string {
	return d.msg.ID
}

func (d *delivery) Data() []byte {
	return d.msg.Data
}

func (d *delivery) Attributes() map[string]string {
	return d.msg.Attributes
}

func (d *delivery) Ack() {
	d.once.Do(func() {
		d.msg.Ack()
		close(d.settled)
	})
}

func (d *delivery) Nack() {
	d.once.Do(func() {
		d.msg.Nack()
		close(d.settled)
	})
}

var (
	_ core.DeliverySource = (*Subscriber)(nil)
	_ core.DeliveryStream = (*Stream)(nil)
)
