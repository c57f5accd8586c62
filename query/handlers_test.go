package query

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-orderbus/core"
)

type stubOrderReader struct {
	getFn func(ctx context.Context, externalRef string) (core.Order, error)
}

func (s stubOrderReader) GetByExternalRef(ctx context.Context, externalRef string) (core.Order, error) {
	return s.getFn(ctx, externalRef)
}

func TestGetOrderQuery_ReturnsDetailWithLineTotals(t *testing.T) {
	reader := stubOrderReader{getFn: func(_ context.Context, ref string) (core.Order, error) {
		if ref != "SO-1" {
			t.Fatalf("unexpected ref %q", ref)
		}
		return core.Order{
			ID:            "5b0b5d6e-0000-4000-8000-000000000001",
			ExternalRef:   "SO-1",
			CustomerName:  "Ana Lima",
			CustomerEmail: "ana@example.com",
			Total:         core.MustMoney("350"),
			CreatedAt:     time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
			Items: []core.OrderItem{
				{SKU: "ABC123", Name: "Solar Panel", Quantity: 2, UnitPrice: core.MustMoney("150.00")},
			},
		}, nil
	}}

	detail, err := NewGetOrderQuery(reader).Query(context.Background(), GetOrderMessage{OrderID: " SO-1 "})
	if err != nil {
		t.Fatalf("query order: %v", err)
	}
	raw, err := json.Marshal(detail)
	if err != nil {
		t.Fatalf("marshal detail: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if body["total"] != "350.00" {
		t.Fatalf("expected fixed two-place total, got %v", body["total"])
	}
	items := body["items"].([]any)
	item := items[0].(map[string]any)
	if item["line_total"] != "300.00" || item["unit_price"] != "150.00" {
		t.Fatalf("unexpected item rendering %+v", item)
	}
}

func TestGetOrderQuery_MissingOrderIsNotFound(t *testing.T) {
	reader := stubOrderReader{getFn: func(context.Context, string) (core.Order, error) {
		return core.Order{}, core.ErrOrderNotFound
	}}
	_, err := NewGetOrderQuery(reader).Query(context.Background(), GetOrderMessage{OrderID: "SO-404"})
	if core.HTTPStatus(err) != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
	if !core.HasTextCode(err, core.ErrorNotFound) {
		t.Fatalf("expected not found text code, got %v", err)
	}
}

func TestGetOrderMessage_ValidateReturnsRichError(t *testing.T) {
	err := (GetOrderMessage{}).Validate()
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Code != http.StatusBadRequest || rich.TextCode != core.ErrorBadInput {
		t.Fatalf("unexpected envelope %d %q", rich.Code, rich.TextCode)
	}
	if fields := rich.AllValidationErrors(); len(fields) == 0 || fields[0].Field != "order_id" {
		t.Fatalf("expected order_id field error, got %+v", fields)
	}
}

func TestGetOrderQuery_NilReaderReturnsInternalError(t *testing.T) {
	_, err := NewGetOrderQuery(nil).Query(context.Background(), GetOrderMessage{OrderID: "SO-1"})
	if core.HTTPStatus(err) != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %v", err)
	}
}
