package pushregistry

import (
	"fmt"

	"github.com/goliatone/go-job/queue"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-pushregistry/adapters/gojob"
	"github.com/goliatone/go-pushregistry/ratelimit"
	sqlstore "github.com/goliatone/go-pushregistry/store/sql"
	"github.com/goliatone/go-pushregistry/transport"
)

func DefaultTransportRegistry() *transport.Registry {
	return transport.NewDefaultRegistry()
}

func RESTTransportAdapter(client transport.HTTPDoer) *transport.RESTAdapter {
	return transport.NewRESTAdapter(client)
}

func MemoryRateLimitPolicy() *ratelimit.AdaptivePolicy {
	return ratelimit.NewAdaptivePolicy(ratelimit.NewMemoryStateStore())
}

func AdaptiveRateLimitPolicy(store ratelimit.StateStore) *ratelimit.AdaptivePolicy {
	return ratelimit.NewAdaptivePolicy(store)
}

func OpenSQLDatabase(driver, dsn string) (*bun.DB, error) {
	return sqlstore.OpenDatabase(driver, dsn)
}

func SQLStores(db *bun.DB) (*sqlstore.RepositoryFactory, error) {
	return sqlstore.NewRepositoryFactoryFromDB(db)
}

func SQLStoresFromPersistence(client *persistence.Client) (*sqlstore.RepositoryFactory, error) {
	return sqlstore.NewRepositoryFactoryFromPersistence(client)
}

// SQLRateLimitPolicy builds the adaptive throttle policy over the factory's
// durable state store so 429 windows survive process restarts.
func SQLRateLimitPolicy(factory *sqlstore.RepositoryFactory) (*ratelimit.AdaptivePolicy, error) {
	store, err := sqlRateLimitStateStore(factory)
	if err != nil {
		return nil, err
	}
	return ratelimit.NewAdaptivePolicy(store), nil
}

// CachedSQLRateLimitPolicy layers the repository cache between the policy and
// the durable state store.
func CachedSQLRateLimitPolicy(
	factory *sqlstore.RepositoryFactory,
	cacheService repositorycache.CacheService,
) (*ratelimit.AdaptivePolicy, error) {
	store, err := sqlRateLimitStateStore(factory)
	if err != nil {
		return nil, err
	}
	cached, err := sqlstore.NewCachedRateLimitStateStore(store, cacheService)
	if err != nil {
		return nil, err
	}
	return ratelimit.NewAdaptivePolicy(cached), nil
}

func GoJobQueueEnqueuer(enqueuer queue.Enqueuer) *gojob.RetryEnqueuer {
	return gojob.NewRetryEnqueuer(gojob.NewEnqueuerAdapter(enqueuer))
}

func GoJobRetryWorker(executor gojob.QueuedExecutor, policy gojob.RetryPolicy) *gojob.RetryWorker {
	return gojob.NewRetryWorker(executor, policy)
}

func sqlRateLimitStateStore(factory *sqlstore.RepositoryFactory) (*sqlstore.RateLimitStateStore, error) {
	if factory == nil {
		return nil, fmt.Errorf("pushregistry: sql store factory is required")
	}
	store := factory.RateLimitStateStore()
	if store == nil {
		return nil, fmt.Errorf("pushregistry: rate-limit state store is not built")
	}
	return store, nil
}
