package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-pushregistry/core"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// RepositoryFactory wires the SQL-backed stores over a shared bun handle. It
// accepts either a persistence client or a raw *bun.DB, builds each store
// once, and serves as the core.StoreProvider for the registry runtime.
type RepositoryFactory struct {
	db *bun.DB

	activityStore       *ActivityStore
	rateLimitStateStore *RateLimitStateStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	return newBuiltFactory(client)
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	return newBuiltFactory(db)
}

func newBuiltFactory(source any) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(source); err != nil {
		return nil, err
	}
	return factory, nil
}

// BuildStores is idempotent; stores already built on a previous call are
// reused and only the missing ones are constructed.
func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.activityStore == nil {
		store, err := NewActivityStore(f.db)
		if err != nil {
			return nil, err
		}
		f.activityStore = store
	}
	if f.rateLimitStateStore == nil {
		store, err := NewRateLimitStateStore(f.db)
		if err != nil {
			return nil, err
		}
		f.rateLimitStateStore = store
	}
	return f, nil
}

func (f *RepositoryFactory) ActivityStore() core.ActivityStore {
	if f == nil {
		return nil
	}
	return f.activityStore
}

func (f *RepositoryFactory) RateLimitStateStore() *RateLimitStateStore {
	if f == nil {
		return nil
	}
	return f.rateLimitStateStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	if candidate == nil {
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	}
	if db, ok := candidate.(*bun.DB); ok {
		return db, nil
	}
	holder, ok := candidate.(interface{ DB() *bun.DB })
	if !ok {
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
	if db := holder.DB(); db != nil {
		return db, nil
	}
	return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
}

// OpenDatabase opens a bun handle for one of the supported drivers. The
// registry persists small ledger and throttle-state tables, so both postgres
// and sqlite deployments are first class.
func OpenDatabase(driver, dsn string) (*bun.DB, error) {
	driver = strings.TrimSpace(strings.ToLower(driver))
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlstore: database dsn is required")
	}
	switch driver {
	case "postgres", "postgresql", "pg":
		sqlDB, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: open postgres database: %w", err)
		}
		return bun.NewDB(sqlDB, pgdialect.New()), nil
	case "sqlite", "sqlite3":
		sqlDB, err := sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: open sqlite database: %w", err)
		}
		return bun.NewDB(sqlDB, sqlitedialect.New()), nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported database driver %q", driver)
	}
}
