package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-orderbus/core"
)

type OrderStore struct {
	db    *bun.DB
	repo  repository.Repository[*orderRecord]
	items repository.Repository[*orderItemRecord]
	now   core.Clock
}

func NewOrderStore(db *bun.DB) (*OrderStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*orderRecord](db, orderHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid order repository wiring: %w", err)
		}
	}
	items := repository.NewRepository[*orderItemRecord](db, orderItemHandlers())
	if validator, ok := items.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid order item repository wiring: %w", err)
		}
	}
	return &OrderStore{
		db:    db,
		repo:  repo,
		items: items,
		now:   core.SystemClock,
	}, nil
}

// CreateOrder inserts the order and all of its items in one transaction. A
// unique violation on external_ref or idempotency_key rolls the transaction
// back and resolves to the row that won.
func (s *OrderStore) CreateOrder(ctx context.Context, in core.CreateOrderInput) (core.CreateResult, error) {
	if s == nil || s.db == nil {
		return core.CreateResult{}, fmt.Errorf("sqlstore: order store is not configured")
	}
	in = in.Normalize()
	if in.ExternalRef == "" {
		return core.CreateResult{}, fmt.Errorf("sqlstore: external ref is required")
	}
	if len(in.Items) == 0 {
		return core.CreateResult{}, core.ErrOrderItemsRequired
	}

	record := &orderRecord{
		ID:              uuid.NewString(),
		ExternalRef:     in.ExternalRef,
		CustomerName:    in.Customer.Name,
		CustomerEmail:   in.Customer.Email,
		ShippingAddress: in.ShippingAddress,
		Total:           in.Total,
		CreatedAt:       s.clock().UTC(),
	}
	if in.IdempotencyKey != "" {
		key := in.IdempotencyKey
		record.IdempotencyKey = &key
	}
	items := lo.Map(in.Items, func(item core.CreateOrderItemInput, _ int) *orderItemRecord {
		return &orderItemRecord{
			ID:        uuid.NewString(),
			OrderID:   record.ID,
			SKU:       strings.TrimSpace(item.SKU),
			Name:      strings.TrimSpace(item.Name),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	})

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := s.repo.CreateTx(ctx, tx, record); err != nil {
			return err
		}
		for _, item := range items {
			if _, err := s.items.CreateTx(ctx, tx, item); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		return core.CreateResult{
			Outcome: core.CreateOutcomeCreated,
			Order:   orderToDomain(record, items),
		}, nil
	}
	if !isUniqueViolation(err) {
		return core.CreateResult{}, core.PersistenceError(err, "create order")
	}

	existing, found, findErr := s.resolveConflict(ctx, in)
	if findErr != nil {
		return core.CreateResult{}, core.PersistenceError(findErr, "resolve order conflict")
	}
	if !found {
		return core.CreateResult{}, core.PersistenceError(err, "unique conflict without existing order")
	}
	return core.CreateResult{
		Outcome: core.CreateOutcomeAlreadyExists,
		Order:   existing,
	}, nil
}

func (s *OrderStore) resolveConflict(ctx context.Context, in core.CreateOrderInput) (core.Order, bool, error) {
	existing, found, err := s.FindByExternalRef(ctx, in.ExternalRef)
	if err != nil || found {
		return existing, found, err
	}
	if in.IdempotencyKey == "" {
		return core.Order{}, false, nil
	}
	return s.FindByIdempotencyKey(ctx, in.IdempotencyKey)
}

func (s *OrderStore) FindByExternalRef(ctx context.Context, externalRef string) (core.Order, bool, error) {
	externalRef = strings.TrimSpace(externalRef)
	if externalRef == "" {
		return core.Order{}, false, nil
	}
	return s.findOne(ctx, repository.SelectBy("external_ref", "=", externalRef))
}

func (s *OrderStore) FindByIdempotencyKey(ctx context.Context, key string) (core.Order, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return core.Order{}, false, nil
	}
	return s.findOne(ctx, repository.SelectBy("idempotency_key", "=", key))
}

// GetByExternalRef returns ErrOrderNotFound when no row matches.
func (s *OrderStore) GetByExternalRef(ctx context.Context, externalRef string) (core.Order, error) {
	order, found, err := s.FindByExternalRef(ctx, externalRef)
	if err != nil {
		return core.Order{}, err
	}
	if !found {
		return core.Order{}, core.WrapError(core.ErrOrderNotFound, goerrors.CategoryNotFound, "order not found", core.ErrorNotFound, map[string]any{
			"order_id": strings.TrimSpace(externalRef),
		})
	}
	return order, nil
}

func (s *OrderStore) findOne(ctx context.Context, criteria ...repository.SelectCriteria) (core.Order, bool, error) {
	if s == nil || s.repo == nil {
		return core.Order{}, false, fmt.Errorf("sqlstore: order store is not configured")
	}
	criteria = append(criteria, repository.SelectPaginate(1, 0))
	records, _, err := s.repo.List(ctx, criteria...)
	if err != nil {
		return core.Order{}, false, err
	}
	if len(records) == 0 {
		return core.Order{}, false, nil
	}
	record := records[0]
	var items []*orderItemRecord
	err = s.db.NewSelect().
		Model(&items).
		Where("?TableAlias.order_id = ?", record.ID).
		OrderExpr("?TableAlias.sku ASC").
		Scan(ctx)
	if err != nil {
		return core.Order{}, false, err
	}
	return orderToDomain(record, items), true, nil
}

func (s *OrderStore) clock() time.Time {
	if s.now == nil {
		return core.SystemClock()
	}
	return s.now()
}

var (
	_ core.OrderStore  = (*OrderStore)(nil)
	_ core.OrderReader = (*OrderStore)(nil)
)
