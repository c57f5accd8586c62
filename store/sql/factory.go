package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/extra/bunotel"

	"github.com/goliatone/go-orderbus/core"
)

type RepositoryFactory struct {
	db *bun.DB

	orderStore  *OrderStore
	orderReader core.OrderReader
}

type FactoryOption func(*RepositoryFactory) error

// WithOrderCache serves order reads through cacheService.
func WithOrderCache(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) error {
		if cacheService == nil {
			return nil
		}
		reader, err := NewCachedOrderReader(f.orderStore, cacheService)
		if err != nil {
			return err
		}
		f.orderReader = reader
		return nil
	}
}

// WithQueryTracing registers the bun OpenTelemetry query hook.
func WithQueryTracing(dbName string) FactoryOption {
	return func(f *RepositoryFactory) error {
		f.db.AddQueryHook(bunotel.NewQueryHook(bunotel.WithDBName(dbName)))
		return nil
	}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	return NewRepositoryFactory(client, opts...)
}

// NewRepositoryFactory accepts a *bun.DB or any client exposing DB() *bun.DB.
func NewRepositoryFactory(persistenceClient any, opts ...FactoryOption) (*RepositoryFactory, error) {
	db, err := resolveBunDB(persistenceClient)
	if err != nil {
		return nil, err
	}
	orderStore, err := NewOrderStore(db)
	if err != nil {
		return nil, err
	}
	f := &RepositoryFactory{
		db:          db,
		orderStore:  orderStore,
		orderReader: orderStore,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) OrderStore() *OrderStore {
	if f == nil {
		return nil
	}
	return f.orderStore
}

func (f *RepositoryFactory) OrderReader() core.OrderReader {
	if f == nil {
		return nil
	}
	return f.orderReader
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
