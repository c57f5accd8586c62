package inbound

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-orderbus/core"
)

func TestDecodeOrderPayload_NormalizesInput(t *testing.T) {
	input, err := DecodeOrderPayload([]byte(`{
		"order_id": " SO-1 ",
		"idempotency_key": "  ",
		"customer": {"name": "Ana Lima", "email": "ana@example.com"},
		"items": [
			{"sku": "ABC123", "name": "Solar Panel", "quantity": "2", "unit_price": "150"},
			{"sku": "XYZ", "name": "Cable", "quantity": 1, "unit_price": "0.50"}
		],
		"shipping_address": "Rua A, 123",
		"total": "300.50"
	}`))
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if input.ExternalRef != "SO-1" {
		t.Fatalf("expected trimmed order id, got %q", input.ExternalRef)
	}
	if input.IdempotencyKey != "" {
		t.Fatalf("expected blank key to be treated as absent, got %q", input.IdempotencyKey)
	}
	got := make([]string, 0, len(input.Items))
	for _, item := range input.Items {
		got = append(got, item.SKU+":"+item.UnitPrice.String())
	}
	if diff := cmp.Diff([]string{"ABC123:150.00", "XYZ:0.50"}, got); diff != "" {
		t.Fatalf("unexpected items (-want +got):\n%s", diff)
	}
	if input.Items[0].Quantity != 2 {
		t.Fatalf("expected numeric string quantity to parse, got %d", input.Items[0].Quantity)
	}
	if input.Total.String() != "300.50" {
		t.Fatalf("expected total 300.50, got %s", input.Total)
	}
}

func TestDecodeOrderPayload_FieldErrors(t *testing.T) {
	base := `"customer": {"name": "Ana", "email": "ana@example.com"}, "shipping_address": "Rua A"`
	cases := []struct {
		name string
		body string
		want map[string]string
	}{
		{
			name: "missing order id and items",
			body: `{` + base + `, "total": "1.00"}`,
			want: map[string]string{
				"order_id": msgRequired,
				"items":    msgItemsRequired,
			},
		},
		{
			name: "numeric money is rejected",
			body: `{"order_id": "SO-1", ` + base + `, "total": 20, "items": [{"sku": "A", "name": "A", "quantity": 1, "unit_price": 10}]}`,
			want: map[string]string{
				"total":              msgMoneyString,
				"items.0.unit_price": msgMoneyString,
			},
		},
		{
			name: "money precision",
			body: `{"order_id": "SO-1", ` + base + `, "total": "1.001", "items": [{"sku": "A", "name": "A", "quantity": 1, "unit_price": "-1.00"}]}`,
			want: map[string]string{
				"total":              msgMoneyPlaces,
				"items.0.unit_price": msgMoneyNegative,
			},
		},
		{
			name: "quantity rules",
			body: `{"order_id": "SO-1", ` + base + `, "total": "1.00", "items": [
				{"sku": "A", "name": "A", "quantity": 0, "unit_price": "1.00"},
				{"sku": "B", "name": "B", "quantity": "two", "unit_price": "1.00"},
				{"sku": "C", "name": "C", "unit_price": "1.00"}
			]}`,
			want: map[string]string{
				"items.0.quantity": msgMinQuantity,
				"items.1.quantity": msgInvalidInteger,
				"items.2.quantity": msgRequired,
			},
		},
		{
			name: "customer rules",
			body: `{"order_id": "SO-1", "customer": {"name": "", "email": "not-an-email"}, "shipping_address": "Rua A", "total": "1.00", "items": [{"sku": "A", "name": "A", "quantity": 1, "unit_price": "1.00"}]}`,
			want: map[string]string{
				"customer.name":  msgRequired,
				"customer.email": "Enter a valid email address.",
			},
		},
		{
			name: "whitespace-only strings are blank",
			body: `{"order_id": "   ", "customer": {"name": " \t", "email": "ana@example.com"}, "shipping_address": "  ", "total": "1.00", "items": [{"sku": "  ", "name": "A", "quantity": 1, "unit_price": "1.00"}]}`,
			want: map[string]string{
				"order_id":         msgRequired,
				"customer.name":    msgRequired,
				"shipping_address": msgRequired,
				"items.0.sku":      msgRequired,
			},
		},
		{
			name: "wrong field type",
			body: `{"order_id": 12, ` + base + `}`,
			want: map[string]string{"order_id": "Invalid type. Expected a string."},
		},
		{
			name: "not an object",
			body: `[1, 2]`,
			want: map[string]string{NonFieldErrors: msgExpectedObject},
		},
		{
			name: "broken json",
			body: `{"order_id": `,
			want: map[string]string{NonFieldErrors: msgInvalidJSON},
		},
		{
			name: "trailing data",
			body: `{"order_id": "SO-1"} {}`,
			want: map[string]string{NonFieldErrors: msgInvalidJSON},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeOrderPayload([]byte(tc.body))
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !core.HasTextCode(err, core.ErrorBadInput) {
				t.Fatalf("expected bad input text code, got %v", err)
			}
			got := map[string]string{}
			for _, field := range core.AsError(err).ValidationErrors {
				if _, ok := tc.want[field.Field]; ok {
					got[field.Field] = field.Message
				}
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("unexpected field errors (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFlattenValidation_SortsFields(t *testing.T) {
	_, err := DecodeOrderPayload([]byte(`{}`))
	fields := core.AsError(err).ValidationErrors
	for i := 1; i < len(fields); i++ {
		if fields[i-1].Field > fields[i].Field {
			t.Fatalf("expected sorted fields, got %+v", fields)
		}
	}
}
