package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-orderbus/core"
)

const orderCacheKeyPrefix = "go-orderbus::order::v1"

// CachedOrderReader is a read-through cache over an OrderReader. Orders are
// never updated after creation so entries need no invalidation.
type CachedOrderReader struct {
	base  core.OrderReader
	cache repositorycache.CacheService
}

func NewCachedOrderReader(base core.OrderReader, cacheService repositorycache.CacheService) (*CachedOrderReader, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base order reader is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: order cache service is required")
	}
	return &CachedOrderReader{base: base, cache: cacheService}, nil
}

// OrderCacheKey returns go-orderbus::order::v1::<external_ref>, path escaped.
func OrderCacheKey(externalRef string) (string, error) {
	externalRef = strings.TrimSpace(externalRef)
	if externalRef == "" {
		return "", fmt.Errorf("sqlstore: external ref is required")
	}
	return orderCacheKeyPrefix + "::" + url.PathEscape(externalRef), nil
}

func (r *CachedOrderReader) GetByExternalRef(ctx context.Context, externalRef string) (core.Order, error) {
	if r == nil || r.base == nil || r.cache == nil {
		return core.Order{}, fmt.Errorf("sqlstore: cached order reader is not configured")
	}
	key, err := OrderCacheKey(externalRef)
	if err != nil {
		return core.Order{}, err
	}
	order, err := repositorycache.GetOrFetch(ctx, r.cache, key, func(ctx context.Context) (core.Order, error) {
		return r.base.GetByExternalRef(ctx, externalRef)
	})
	if err != nil {
		return core.Order{}, err
	}
	return cloneOrder(order), nil
}

func cloneOrder(order core.Order) core.Order {
	cloned := order
	cloned.Items = append([]core.OrderItem(nil), order.Items...)
	return cloned
}

var _ core.OrderReader = (*CachedOrderReader)(nil)
