package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-pushregistry/core"
	"github.com/goliatone/go-pushregistry/ratelimit"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const rateLimitStateCacheKeyPrefix = "go-pushregistry::ratelimit_state::v1"

// CachedRateLimitStateStore keeps hot throttle state out of the database.
// Reads go through the cache service; writes invalidate after the base store
// commits so a stale window never outlives an upsert.
type CachedRateLimitStateStore struct {
	base  ratelimit.StateStore
	cache repositorycache.CacheService
}

func NewCachedRateLimitStateStore(
	base ratelimit.StateStore,
	cacheService repositorycache.CacheService,
) (*CachedRateLimitStateStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base rate-limit state store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: rate-limit cache service is required")
	}
	return &CachedRateLimitStateStore{base: base, cache: cacheService}, nil
}

// RateLimitStateCacheKey builds the cache key for a bucket:
// go-pushregistry::ratelimit_state::v1::<subscribe_key>::<operation>, each
// segment URL-path escaped after key normalization so differently spelled
// inputs land on the same entry.
func RateLimitStateCacheKey(key core.RateLimitKey) (string, error) {
	normalized := normalizeRateLimitKey(key)
	if err := validateRateLimitKey(normalized); err != nil {
		return "", err
	}
	return strings.Join([]string{
		rateLimitStateCacheKeyPrefix,
		url.PathEscape(normalized.SubscribeKey),
		url.PathEscape(normalized.Operation),
	}, "::"), nil
}

func (s *CachedRateLimitStateStore) Get(ctx context.Context, key core.RateLimitKey) (ratelimit.State, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return ratelimit.State{}, fmt.Errorf("sqlstore: cached rate-limit state store is not configured")
	}
	normalized := normalizeRateLimitKey(key)
	cacheKey, err := RateLimitStateCacheKey(normalized)
	if err != nil {
		return ratelimit.State{}, err
	}

	state, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, s.fetchState(normalized))
	if err != nil {
		return ratelimit.State{}, err
	}
	// Hand every caller its own copy; the cached value stays private.
	return cloneRateLimitState(state), nil
}

func (s *CachedRateLimitStateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached rate-limit state store is not configured")
	}
	state.Key = normalizeRateLimitKey(state.Key)
	if err := validateRateLimitKey(state.Key); err != nil {
		return err
	}
	if err := s.base.Upsert(ctx, state); err != nil {
		return err
	}
	return s.invalidate(ctx, state.Key)
}

// fetchState loads a bucket from the base store on cache miss. The state is
// cloned before it enters the cache so later mutations by the base store
// cannot leak in.
func (s *CachedRateLimitStateStore) fetchState(key core.RateLimitKey) func(context.Context) (ratelimit.State, error) {
	return func(ctx context.Context) (ratelimit.State, error) {
		fetched, err := s.base.Get(ctx, key)
		if err != nil {
			return ratelimit.State{}, err
		}
		return cloneRateLimitState(fetched), nil
	}
}

// invalidate drops the cached entry for a bucket once the base store has
// committed a write.
func (s *CachedRateLimitStateStore) invalidate(ctx context.Context, key core.RateLimitKey) error {
	cacheKey, err := RateLimitStateCacheKey(key)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

// cloneRateLimitState deep-copies a state value, normalizing its key on the
// way out.
func cloneRateLimitState(state ratelimit.State) ratelimit.State {
	cloned := state
	cloned.Key = normalizeRateLimitKey(state.Key)
	cloned.Metadata = copyAnyMap(state.Metadata)
	cloned.ResetAt = utcTimePtr(state.ResetAt)
	cloned.ThrottledUntil = utcTimePtr(state.ThrottledUntil)
	if state.RetryAfter != nil {
		retryAfter := *state.RetryAfter
		cloned.RetryAfter = &retryAfter
	}
	return cloned
}

var _ ratelimit.StateStore = (*CachedRateLimitStateStore)(nil)
