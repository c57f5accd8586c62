package egress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"

	"github.com/goliatone/go-orderbus/core"
	"github.com/goliatone/go-orderbus/webhooks"
)

const (
	instrumentationName      = "github.com/goliatone/go-orderbus/egress"
	DefaultTimeout           = 10 * time.Second
	defaultResponseBodyLimit = 1 << 20 // 1 MiB
	headerContentType        = "Content-Type"
	contentTypeJSON          = "application/json"
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Option func(*Sender)

func WithHTTPClient(client HTTPDoer) Option {
	return func(s *Sender) {
		if client != nil {
			s.Client = client
		}
	}
}

func WithClock(now core.Clock) Option {
	return func(s *Sender) {
		if now != nil {
			s.Now = now
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(s *Sender) {
		s.logger = glog.Ensure(logger)
	}
}

func WithMetrics(metrics core.MetricsRecorder) Option {
	return func(s *Sender) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// Sender forwards order events to one downstream URL. Each event gets a
// single POST; redelivery is left to the broker.
type Sender struct {
	URL                  string
	Client               HTTPDoer
	Timeout              time.Duration
	SigningSecret        string
	Now                  core.Clock
	MaxResponseBodyBytes int64

	logger  core.Logger
	metrics core.MetricsRecorder
}

func NewSender(cfg core.EgressConfig, opts ...Option) *Sender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	s := &Sender{
		URL:                  strings.TrimSpace(cfg.URL),
		Client:               &http.Client{},
		Timeout:              timeout,
		SigningSecret:        strings.TrimSpace(cfg.SigningSecret),
		Now:                  core.SystemClock,
		MaxResponseBodyBytes: defaultResponseBodyLimit,
		logger:               glog.Nop(),
		metrics:              core.NopMetricsRecorder{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Send reports whether the event was accepted downstream.
func (s *Sender) Send(ctx context.Context, event core.OrderCreatedEvent) bool {
	return s.Deliver(ctx, event) == nil
}

// Deliver posts the event with a sent_at stamp. Transport failures and any
// non-2xx status are returned as delivery errors.
func (s *Sender) Deliver(ctx context.Context, event core.OrderCreatedEvent) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	startedAt := time.Now()
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "egress.deliver")
	span.SetAttributes(attribute.String("orderbus.order_id", event.OrderID))
	statusCode := 0
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		core.ObserveOperation(ctx, s.logger, s.metrics, startedAt, "egress_deliver", err, map[string]any{
			"order_id":    event.OrderID,
			"status_code": statusCode,
		})
	}()

	if s.Client == nil {
		return core.DeliveryError(nil, "egress sender is not configured", nil)
	}
	target, err := url.Parse(s.URL)
	if err != nil || s.URL == "" || target.Scheme == "" || target.Host == "" {
		return core.DeliveryError(err, "egress url is not configured", map[string]any{"url": s.URL})
	}

	body, err := json.Marshal(core.NewEgressPayload(event, s.clock()))
	if err != nil {
		return core.DeliveryError(err, "encode egress payload", nil)
	}

	requestCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return core.DeliveryError(err, "create egress request", map[string]any{"url": target.String()})
	}
	req.Header.Set(headerContentType, contentTypeJSON)
	if s.SigningSecret != "" {
		req.Header.Set(webhooks.HeaderSignature, webhooks.Sign(body, s.SigningSecret))
	}
	otel.GetTextMapPropagator().Inject(requestCtx, propagation.HeaderCarrier(req.Header))

	res, err := s.Client.Do(req)
	if err != nil {
		return core.DeliveryError(err, "execute egress request", map[string]any{"url": target.String()})
	}
	defer res.Body.Close()
	statusCode = res.StatusCode
	span.SetAttributes(attribute.Int("http.response.status_code", statusCode))

	excerpt, _ := io.ReadAll(io.LimitReader(res.Body, s.responseLimit()))
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return core.DeliveryError(
			fmt.Errorf("unexpected status %d", res.StatusCode),
			"egress endpoint rejected event",
			map[string]any{
				"url":         target.String(),
				"status_code": res.StatusCode,
				"body":        strings.TrimSpace(string(excerpt)),
			},
		)
	}
	return nil
}

func (s *Sender) clock() time.Time {
	if s.Now == nil {
		return core.SystemClock()
	}
	return s.Now()
}

func (s *Sender) responseLimit() int64 {
	if s.MaxResponseBodyBytes > 0 {
		return s.MaxResponseBodyBytes
	}
	return defaultResponseBodyLimit
}

var _ core.EgressSender = (*Sender)(nil)
