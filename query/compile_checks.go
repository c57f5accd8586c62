package query

import (
	gocmd "github.com/goliatone/go-command"
)

var _ gocmd.Querier[GetOrderMessage, OrderDetail] = (*GetOrderQuery)(nil)
