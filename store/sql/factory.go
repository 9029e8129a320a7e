package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-tenantquery/core"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// OpenDB opens a bun database for driver and dsn.
func OpenDB(driver string, dsn string) (*bun.DB, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlstore: dsn is required")
	}
	switch driver {
	case DriverPostgres, "pg", "postgresql":
		sqlDB, err := sql.Open(DriverPostgres, dsn)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: open postgres: %w", err)
		}
		return bun.NewDB(sqlDB, pgdialect.New()), nil
	case DriverSQLite, "sqlite":
		sqlDB, err := sql.Open(DriverSQLite, dsn)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: open sqlite: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
		return bun.NewDB(sqlDB, sqlitedialect.New()), nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
}

// ResolveDB accepts a *bun.DB or a persistence client exposing DB().
func ResolveDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		if typed == nil {
			return nil, fmt.Errorf("sqlstore: bun db is required")
		}
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

// RepositoryFactory owns the shared db handle and normalizer used to build
// collections and the revocation stores.
type RepositoryFactory struct {
	db         *bun.DB
	normalizer *core.ErrorNormalizer
	cache      repositorycache.CacheService

	revocations *RevocationStore
	cached      *CachedRevocationStore
}

type FactoryOption func(*RepositoryFactory)

func WithFactoryNormalizer(normalizer *core.ErrorNormalizer) FactoryOption {
	return func(f *RepositoryFactory) {
		if normalizer != nil {
			f.normalizer = normalizer
		}
	}
}

// WithRevocationCache fronts revocation lookups with cacheService.
func WithRevocationCache(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.cache = cacheService
	}
}

func NewRepositoryFactory(persistenceClient any, opts ...FactoryOption) (*RepositoryFactory, error) {
	db, err := ResolveDB(persistenceClient)
	if err != nil {
		return nil, err
	}
	f := &RepositoryFactory{db: db}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(f)
	}
	if f.normalizer == nil {
		f.normalizer = NewNormalizer()
	}
	revocations, err := NewRevocationStore(db, WithRevocationNormalizer(f.normalizer))
	if err != nil {
		return nil, err
	}
	f.revocations = revocations
	if f.cache != nil {
		cached, err := NewCachedRevocationStore(revocations, f.cache)
		if err != nil {
			return nil, err
		}
		f.cached = cached
	}
	return f, nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) Normalizer() *core.ErrorNormalizer {
	if f == nil {
		return nil
	}
	return f.normalizer
}

// Revocations returns the cached store when a cache was configured.
func (f *RepositoryFactory) Revocations() Revoker {
	if f == nil {
		return nil
	}
	if f.cached != nil {
		return f.cached
	}
	return f.revocations
}

// BuildCollection builds a normalized collection over db for handlers.
func BuildCollection[T any](f *RepositoryFactory, handlers repository.ModelHandlers[T], opts ...CollectionOption) (*Collection[T], error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	return NewCollection(f.db, handlers, append([]CollectionOption{WithNormalizer(f.normalizer)}, opts...)...)
}
