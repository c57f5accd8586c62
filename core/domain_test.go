package core

import (
	"encoding/json"
	"testing"
	"time"
)

func TestCreateOrderInputNormalize(t *testing.T) {
	in := CreateOrderInput{
		ExternalRef:    "  SO-1 ",
		IdempotencyKey: "\tkey-1\n",
		Customer:       Customer{Name: " Ada ", Email: " ada@example.com "},
	}.Normalize()

	if in.ExternalRef != "SO-1" || in.IdempotencyKey != "key-1" {
		t.Fatalf("expected trimmed identifiers, got %q %q", in.ExternalRef, in.IdempotencyKey)
	}
	if in.Customer.Name != "Ada" || in.Customer.Email != "ada@example.com" {
		t.Fatalf("expected trimmed customer, got %#v", in.Customer)
	}
}

func TestNewOrderCreatedEventJSON(t *testing.T) {
	createdAt := time.Date(2026, 3, 1, 12, 30, 0, 0, time.FixedZone("CET", 3600))
	event := NewOrderCreatedEvent(Order{
		ExternalRef:  "SO-1",
		CustomerName: "Ada Lovelace",
		Total:        MustMoney("150"),
		CreatedAt:    createdAt,
	})

	raw, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"event":"order.created","order_id":"SO-1","customer_name":"Ada Lovelace","total":"150.00","created_at":"2026-03-01T11:30:00Z"}`
	if string(raw) != want {
		t.Fatalf("unexpected event json\n got: %s\nwant: %s", raw, want)
	}
	attrs := event.Attributes()
	if attrs["event"] != EventOrderCreated || attrs["order_id"] != "SO-1" {
		t.Fatalf("unexpected attributes %#v", attrs)
	}
}

func TestDecodeOrderCreatedEvent(t *testing.T) {
	event, err := DecodeOrderCreatedEvent([]byte(`{"event":"order.created","order_id":" SO-9 ","customer_name":"Grace","total":"12.50","created_at":"2026-03-01T11:30:00Z"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event.OrderID != "SO-9" || event.Total.String() != "12.50" {
		t.Fatalf("unexpected event %#v", event)
	}

	for name, body := range map[string]string{
		"not json":      `{`,
		"other event":   `{"event":"order.deleted","order_id":"SO-9","total":"1.00"}`,
		"missing order": `{"event":"order.created","total":"1.00"}`,
		"numeric total": `{"event":"order.created","order_id":"SO-9","total":1}`,
	} {
		_, err := DecodeOrderCreatedEvent([]byte(body))
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if !HasTextCode(err, ErrorMalformedEvent) {
			t.Fatalf("%s: expected %s, got %v", name, ErrorMalformedEvent, err)
		}
	}
}

func TestNewEgressPayloadStampsSentAt(t *testing.T) {
	event := OrderCreatedEvent{Event: EventOrderCreated, OrderID: "SO-1", CustomerName: "Ada", Total: MustMoney("20.00")}
	sentAt := time.Date(2026, 3, 1, 12, 0, 0, 987654321, time.FixedZone("EST", -5*3600))

	payload := NewEgressPayload(event, sentAt)
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"event":"order.created","order_id":"SO-1","customer_name":"Ada","total":"20.00","sent_at":"2026-03-01T17:00:00Z"}`
	if string(raw) != want {
		t.Fatalf("unexpected payload json\n got: %s\nwant: %s", raw, want)
	}
}

func TestInboundRequestHeaderIsCaseInsensitive(t *testing.T) {
	req := InboundRequest{Headers: map[string]string{
		"X-Webhook-Signature":   "abc",
		"x-shopify-hmac-sha256": "def",
	}}
	if got := req.Header("X-Webhook-Signature"); got != "abc" {
		t.Fatalf("expected exact match, got %q", got)
	}
	if got := req.Header("X-Shopify-Hmac-SHA256"); got != "def" {
		t.Fatalf("expected case-insensitive match, got %q", got)
	}
	if got := (InboundRequest{}).Header("Idempotency-Key"); got != "" {
		t.Fatalf("expected empty header, got %q", got)
	}
}

func TestCreateResultCreated(t *testing.T) {
	if !(CreateResult{Outcome: CreateOutcomeCreated}).Created() {
		t.Fatalf("expected created outcome")
	}
	if (CreateResult{Outcome: CreateOutcomeAlreadyExists}).Created() {
		t.Fatalf("expected already_exists to report not created")
	}
}
