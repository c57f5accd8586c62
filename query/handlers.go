package query

import (
	"context"
	"strings"

	"github.com/goliatone/go-orderbus/core"
)

type GetOrderQuery struct {
	reader core.OrderReader
}

func NewGetOrderQuery(reader core.OrderReader) *GetOrderQuery {
	return &GetOrderQuery{reader: reader}
}

func (q *GetOrderQuery) Query(ctx context.Context, msg GetOrderMessage) (OrderDetail, error) {
	if q == nil || q.reader == nil {
		return OrderDetail{}, queryDependencyError("query: order reader is required")
	}
	if err := msg.Validate(); err != nil {
		return OrderDetail{}, err
	}
	order, err := q.reader.GetByExternalRef(ctx, strings.TrimSpace(msg.OrderID))
	if err != nil {
		if core.IsNotFound(err) {
			return OrderDetail{}, core.NotFoundError("order not found", map[string]any{"order_id": msg.OrderID})
		}
		return OrderDetail{}, err
	}
	return NewOrderDetail(order), nil
}
