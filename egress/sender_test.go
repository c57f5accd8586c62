package egress

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-orderbus/core"
	"github.com/goliatone/go-orderbus/webhooks"
)

func fixedClock() time.Time {
	return time.Date(2025, 3, 4, 5, 6, 7, 890, time.UTC)
}

func fakeEvent() core.OrderCreatedEvent {
	return core.OrderCreatedEvent{
		Event:        core.EventOrderCreated,
		OrderID:      "SO-" + gofakeit.DigitN(6),
		CustomerName: gofakeit.Name(),
		Total:        core.MustMoney("20.00"),
		CreatedAt:    fixedClock().Add(-time.Minute),
	}
}

func TestSender_DeliverPostsEventWithSentAt(t *testing.T) {
	event := fakeEvent()
	var gotBody []byte
	var gotHeader http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		gotHeader = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sender := NewSender(core.EgressConfig{URL: server.URL, SigningSecret: "egress-secret"}, WithClock(fixedClock))
	if err := sender.Deliver(context.Background(), event); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	if gotHeader.Get("Content-Type") != "application/json" {
		t.Fatalf("expected json content type, got %q", gotHeader.Get("Content-Type"))
	}
	if !webhooks.Verify(gotBody, gotHeader.Get(webhooks.HeaderSignature), webhooks.EncodingHex, "egress-secret") {
		t.Fatalf("expected signed egress body")
	}
	var payload map[string]any
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	want := map[string]any{
		"event":         "order.created",
		"order_id":      event.OrderID,
		"customer_name": event.CustomerName,
		"total":         "20.00",
		"sent_at":       "2025-03-04T05:06:07Z",
	}
	if diff := cmp.Diff(want, payload); diff != "" {
		t.Fatalf("unexpected payload (-want +got):\n%s", diff)
	}
}

func TestSender_NonSuccessStatusFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	sender := NewSender(core.EgressConfig{URL: server.URL})
	err := sender.Deliver(context.Background(), fakeEvent())
	if err == nil {
		t.Fatalf("expected delivery error")
	}
	if !core.HasTextCode(err, core.ErrorDeliveryFailed) {
		t.Fatalf("expected delivery failed code, got %v", err)
	}
	if envelope := core.AsError(err); envelope == nil || envelope.Metadata["status_code"] != http.StatusInternalServerError {
		t.Fatalf("expected status metadata, got %+v", envelope)
	}
	if sender.Send(context.Background(), fakeEvent()) {
		t.Fatalf("expected Send to report failure")
	}
}

func TestSender_UnsignedWhenNoSecret(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(webhooks.HeaderSignature) != "" {
			t.Errorf("expected no signature header")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if !NewSender(core.EgressConfig{URL: server.URL}).Send(context.Background(), fakeEvent()) {
		t.Fatalf("expected delivery to succeed")
	}
}

func TestSender_TimeoutFails(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	sender := NewSender(core.EgressConfig{URL: server.URL, Timeout: 50 * time.Millisecond})
	if err := sender.Deliver(context.Background(), fakeEvent()); !core.HasTextCode(err, core.ErrorDeliveryFailed) {
		t.Fatalf("expected delivery failure on timeout, got %v", err)
	}
}

func TestSender_TransportErrorAndMissingURL(t *testing.T) {
	failing := doerFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	sender := NewSender(core.EgressConfig{URL: "http://downstream.invalid/hook"}, WithHTTPClient(failing))
	if sender.Send(context.Background(), fakeEvent()) {
		t.Fatalf("expected transport error to fail delivery")
	}
	if NewSender(core.EgressConfig{}).Send(context.Background(), fakeEvent()) {
		t.Fatalf("expected missing url to fail delivery")
	}
}

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}
