package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/google/go-cmp/cmp"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/goliatone/go-orderbus/core"
	ordermigrations "github.com/goliatone/go-orderbus/migrations"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-orderbus-tests"
}

func TestOrderStore_CreateOrderPersistsOrderAndItems(t *testing.T) {
	store := newTestOrderStore(t)
	ctx := context.Background()

	result, err := store.CreateOrder(ctx, sampleOrderInput("SO-1", "key-1"))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if !result.Created() {
		t.Fatalf("expected created outcome, got %s", result.Outcome)
	}
	if result.Order.ID == "" {
		t.Fatalf("expected generated order id")
	}

	loaded, found, err := store.FindByExternalRef(ctx, "SO-1")
	if err != nil {
		t.Fatalf("find order: %v", err)
	}
	if !found {
		t.Fatalf("expected order to be found")
	}
	if loaded.Total.String() != "20.00" {
		t.Fatalf("expected stored total 20.00, got %s", loaded.Total)
	}
	if loaded.IdempotencyKey != "key-1" {
		t.Fatalf("expected idempotency key persisted, got %q", loaded.IdempotencyKey)
	}
	gotItems := make([]string, 0, len(loaded.Items))
	for _, item := range loaded.Items {
		gotItems = append(gotItems, fmt.Sprintf("%s:%d:%s:%s", item.SKU, item.Quantity, item.UnitPrice, item.LineTotal()))
	}
	wantItems := []string{"SKU-A:2:5.00:10.00", "SKU-B:1:10.00:10.00"}
	if diff := cmp.Diff(wantItems, gotItems); diff != "" {
		t.Fatalf("unexpected items (-want +got):\n%s", diff)
	}

	byKey, found, err := store.FindByIdempotencyKey(ctx, "key-1")
	if err != nil || !found {
		t.Fatalf("expected lookup by idempotency key, found=%v err=%v", found, err)
	}
	if byKey.ID != loaded.ID {
		t.Fatalf("expected same order by key and ref")
	}
}

func TestOrderStore_DuplicateExternalRefResolvesToExisting(t *testing.T) {
	store := newTestOrderStore(t)
	ctx := context.Background()

	first, err := store.CreateOrder(ctx, sampleOrderInput("SO-2", ""))
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := store.CreateOrder(ctx, sampleOrderInput("SO-2", ""))
	if err != nil {
		t.Fatalf("duplicate create should not error: %v", err)
	}
	if second.Created() {
		t.Fatalf("expected already-exists outcome")
	}
	if second.Order.ID != first.Order.ID {
		t.Fatalf("expected existing order %s, got %s", first.Order.ID, second.Order.ID)
	}
	assertRowCount(t, store, "orders", 1)
	assertRowCount(t, store, "order_items", 2)
}

func TestOrderStore_IdempotencyKeyConflictResolvesToKeyHolder(t *testing.T) {
	store := newTestOrderStore(t)
	ctx := context.Background()

	if _, err := store.CreateOrder(ctx, sampleOrderInput("SO-3", "shared-key")); err != nil {
		t.Fatalf("create first: %v", err)
	}
	result, err := store.CreateOrder(ctx, sampleOrderInput("SO-4", "shared-key"))
	if err != nil {
		t.Fatalf("conflicting key should not error: %v", err)
	}
	if result.Outcome != core.CreateOutcomeAlreadyExists {
		t.Fatalf("expected already-exists, got %s", result.Outcome)
	}
	if result.Order.ExternalRef != "SO-3" {
		t.Fatalf("expected key holder SO-3, got %s", result.Order.ExternalRef)
	}
	if _, found, _ := store.FindByExternalRef(ctx, "SO-4"); found {
		t.Fatalf("expected rolled back insert for SO-4")
	}
	assertRowCount(t, store, "order_items", 2)
}

func TestOrderStore_ConcurrentCreatesYieldSingleOrder(t *testing.T) {
	store := newTestOrderStore(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	results := make([]core.CreateResult, workers)
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = store.CreateOrder(ctx, sampleOrderInput("SO-RACE", ""))
		}(i)
	}
	wg.Wait()

	created := 0
	var winner string
	for i := range workers {
		if errs[i] != nil {
			t.Fatalf("worker %d returned error: %v", i, errs[i])
		}
		if results[i].Created() {
			created++
			winner = results[i].Order.ID
		}
	}
	if created != 1 {
		t.Fatalf("expected exactly one created outcome, got %d", created)
	}
	for i := range workers {
		if results[i].Order.ID != winner {
			t.Fatalf("worker %d resolved to %s, want %s", i, results[i].Order.ID, winner)
		}
	}
	assertRowCount(t, store, "orders", 1)
}

func TestOrderStore_GetByExternalRefNotFound(t *testing.T) {
	store := newTestOrderStore(t)
	_, err := store.GetByExternalRef(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected not found error")
	}
	if !core.IsNotFound(err) {
		t.Fatalf("expected not found classification, got %v", err)
	}
	if !errors.Is(err, core.ErrOrderNotFound) {
		t.Fatalf("expected sentinel in chain, got %v", err)
	}
}

func TestOrderStore_RejectsEmptyItems(t *testing.T) {
	store := newTestOrderStore(t)
	in := sampleOrderInput("SO-EMPTY", "")
	in.Items = nil
	if _, err := store.CreateOrder(context.Background(), in); !errors.Is(err, core.ErrOrderItemsRequired) {
		t.Fatalf("expected items required error, got %v", err)
	}
	assertRowCount(t, store, "orders", 0)
}

func TestCachedOrderReader_ServesRepeatReadsFromCache(t *testing.T) {
	base := &countingOrderReader{order: core.Order{ID: "o-1", ExternalRef: "SO-9", Total: core.MustMoney("9.00")}}
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	cacheService, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	reader, err := NewCachedOrderReader(base, cacheService)
	if err != nil {
		t.Fatalf("new cached reader: %v", err)
	}

	for range 3 {
		order, err := reader.GetByExternalRef(context.Background(), "SO-9")
		if err != nil {
			t.Fatalf("get order: %v", err)
		}
		if order.ID != "o-1" {
			t.Fatalf("unexpected order %+v", order)
		}
	}
	if base.calls != 1 {
		t.Fatalf("expected one base fetch, got %d", base.calls)
	}

	if _, err := OrderCacheKey("  "); err == nil {
		t.Fatalf("expected empty key to be rejected")
	}
	key, _ := OrderCacheKey("SO/1")
	if key != "go-orderbus::order::v1::SO%2F1" {
		t.Fatalf("unexpected cache key %q", key)
	}
}

func TestNewRepositoryFactory_ResolvesBunDB(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	t.Cleanup(cleanup)

	factory, err := NewRepositoryFactory(client.DB())
	if err != nil {
		t.Fatalf("factory from bun db: %v", err)
	}
	if factory.DB() != client.DB() {
		t.Fatalf("expected factory to reuse the given bun db")
	}
	if _, err := factory.OrderReader().GetByExternalRef(context.Background(), "SO-missing"); !core.IsNotFound(err) {
		t.Fatalf("expected not found from a working reader, got %v", err)
	}

	for name, candidate := range map[string]any{"nil": nil, "unsupported": "postgres://"} {
		if _, err := NewRepositoryFactory(candidate); err == nil {
			t.Fatalf("%s: expected factory error", name)
		}
	}
}

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "postgres unique", err: fmt.Errorf("insert: %w", &pq.Error{Code: "23505"}), want: true},
		{name: "postgres fk", err: &pq.Error{Code: "23503"}, want: false},
		{name: "sqlite unique", err: sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, want: true},
		{name: "sqlite check", err: sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintCheck}, want: false},
		{name: "message fallback", err: errors.New("UNIQUE constraint failed: orders.external_ref"), want: true},
		{name: "other", err: errors.New("connection refused"), want: false},
	}
	for _, tc := range cases {
		if got := isUniqueViolation(tc.err); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

type countingOrderReader struct {
	order core.Order
	calls int
}

func (r *countingOrderReader) GetByExternalRef(context.Context, string) (core.Order, error) {
	r.calls++
	return r.order, nil
}

func sampleOrderInput(ref, key string) core.CreateOrderInput {
	return core.CreateOrderInput{
		ExternalRef:    ref,
		IdempotencyKey: key,
		Customer: core.Customer{
			Name:  "Ana Lima",
			Email: "ana@example.com",
		},
		ShippingAddress: "1 Main St",
		Total:           core.MustMoney("20.00"),
		Items: []core.CreateOrderItemInput{
			{SKU: "SKU-B", Name: "Bowl", Quantity: 1, UnitPrice: core.MustMoney("10.00")},
			{SKU: "SKU-A", Name: "Mug", Quantity: 2, UnitPrice: core.MustMoney("5.00")},
		},
	}
}

func assertRowCount(t *testing.T, store *OrderStore, table string, want int) {
	t.Helper()
	count, err := store.db.NewSelect().Table(table).Count(context.Background())
	if err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	if count != want {
		t.Fatalf("expected %d rows in %s, got %d", want, table, count)
	}
}

func newTestOrderStore(t *testing.T) *OrderStore {
	t.Helper()
	client, cleanup := newSQLiteClient(t)
	t.Cleanup(cleanup)
	factory, err := NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	return factory.OrderStore()
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:orderbus-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = ordermigrations.Register(ctx, "sqlite3", func(_ context.Context, fsys fs.FS) error {
		client.RegisterSQLMigrations(fsys)
		return nil
	})
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
