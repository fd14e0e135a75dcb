package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-pushregistry/core"
	"github.com/goliatone/go-pushregistry/ratelimit"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

// recordingStateStore is an in-memory StateStore that counts round trips so
// tests can tell cache hits from base reads.
type recordingStateStore struct {
	mu         sync.Mutex
	byBucket   map[string]ratelimit.State
	gets       int
	upserts    int
	failGet    error
	failUpsert error
}

func newRecordingStateStore(seed ...ratelimit.State) *recordingStateStore {
	store := &recordingStateStore{byBucket: map[string]ratelimit.State{}}
	for _, state := range seed {
		store.byBucket[recordingBucketID(state.Key)] = cloneRateLimitState(state)
	}
	return store
}

func recordingBucketID(key core.RateLimitKey) string {
	normalized := normalizeRateLimitKey(key)
	return normalized.SubscribeKey + "|" + normalized.Operation
}

func (s *recordingStateStore) Get(_ context.Context, key core.RateLimitKey) (ratelimit.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.failGet != nil {
		return ratelimit.State{}, s.failGet
	}
	state, ok := s.byBucket[recordingBucketID(key)]
	if !ok {
		return ratelimit.State{}, ratelimit.ErrStateNotFound
	}
	return cloneRateLimitState(state), nil
}

func (s *recordingStateStore) Upsert(_ context.Context, state ratelimit.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if s.failUpsert != nil {
		return s.failUpsert
	}
	s.byBucket[recordingBucketID(state.Key)] = cloneRateLimitState(state)
	return nil
}

func newBucketCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}

func TestCachedRateLimitStateStore_ReadThroughAndInvalidation(t *testing.T) {
	bucket := core.RateLimitKey{SubscribeKey: "sub-c-cache-1", Operation: "enable"}
	base := newRecordingStateStore(ratelimit.State{
		Key:       bucket,
		Limit:     100,
		Remaining: 99,
		UpdatedAt: time.Now().UTC(),
		Metadata:  map[string]any{"source": "base"},
	})
	store, err := NewCachedRateLimitStateStore(base, newBucketCacheService(t))
	if err != nil {
		t.Fatalf("new cached state store: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		state, err := store.Get(ctx, bucket)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if state.Remaining != 99 {
			t.Fatalf("read %d: remaining = %d, want 99", i, state.Remaining)
		}
	}
	if base.gets != 1 {
		t.Fatalf("three reads should cost one base fetch, got %d", base.gets)
	}

	if err := store.Upsert(ctx, ratelimit.State{
		Key:       bucket,
		Limit:     100,
		Remaining: 45,
		UpdatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if base.upserts != 1 {
		t.Fatalf("base upserts = %d, want 1", base.upserts)
	}

	state, err := store.Get(ctx, bucket)
	if err != nil {
		t.Fatalf("read after invalidation: %v", err)
	}
	if base.gets != 2 {
		t.Fatalf("invalidated bucket should refetch from base, gets = %d", base.gets)
	}
	if state.Remaining != 45 {
		t.Fatalf("stale remaining after invalidation: %d", state.Remaining)
	}
}

func TestCachedRateLimitStateStore_SpellingVariantsShareEntry(t *testing.T) {
	base := newRecordingStateStore(ratelimit.State{
		Key:       core.RateLimitKey{SubscribeKey: "sub-c-cache-3", Operation: "audit"},
		Limit:     100,
		Remaining: 98,
		UpdatedAt: time.Now().UTC(),
	})
	store, err := NewCachedRateLimitStateStore(base, newBucketCacheService(t))
	if err != nil {
		t.Fatalf("new cached state store: %v", err)
	}

	spellings := []core.RateLimitKey{
		{SubscribeKey: " sub-c-cache-3 ", Operation: " AUDIT "},
		{SubscribeKey: "sub-c-cache-3", Operation: "audit"},
		{SubscribeKey: "sub-c-cache-3", Operation: "Audit"},
	}
	for _, key := range spellings {
		if _, err := store.Get(context.Background(), key); err != nil {
			t.Fatalf("read with spelling %+v: %v", key, err)
		}
	}
	if base.gets != 1 {
		t.Fatalf("spelling variants should share one cache entry, base gets = %d", base.gets)
	}
}

func TestRateLimitStateCacheKey_Contract(t *testing.T) {
	key, err := RateLimitStateCacheKey(core.RateLimitKey{
		SubscribeKey: " sub-c/Demo Key ",
		Operation:    " Disable All ",
	})
	if err != nil {
		t.Fatalf("build cache key: %v", err)
	}
	const expected = "go-pushregistry::ratelimit_state::v1::sub-c%2FDemo%20Key::disable%20all"
	if key != expected {
		t.Fatalf("cache key contract: got %q want %q", key, expected)
	}

	variant, err := RateLimitStateCacheKey(core.RateLimitKey{
		SubscribeKey: "sub-c/Demo Key",
		Operation:    "disable all",
	})
	if err != nil {
		t.Fatalf("build variant cache key: %v", err)
	}
	if variant != key {
		t.Fatalf("normalized spellings should build one key: %q != %q", variant, key)
	}
}

func TestCachedRateLimitStateStore_CallersCannotMutateCachedState(t *testing.T) {
	key := core.RateLimitKey{SubscribeKey: "sub-c-cache-4", Operation: "enable"}
	base := newRecordingStateStore(ratelimit.State{
		Key:       key,
		Limit:     100,
		Remaining: 90,
		UpdatedAt: time.Now().UTC(),
		Metadata:  map[string]any{"zone": "initial"},
	})
	store, err := NewCachedRateLimitStateStore(base, newBucketCacheService(t))
	if err != nil {
		t.Fatalf("new cached state store: %v", err)
	}

	first, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	first.Metadata["zone"] = "mutated"

	second, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("read after caller mutation: %v", err)
	}
	if second.Metadata["zone"] != "initial" {
		t.Fatalf("cached state leaked a caller mutation: %#v", second.Metadata)
	}
}

func TestCachedRateLimitStateStore_PropagatesBaseErrors(t *testing.T) {
	base := newRecordingStateStore()
	base.failGet = ratelimit.ErrStateNotFound
	store, err := NewCachedRateLimitStateStore(base, newBucketCacheService(t))
	if err != nil {
		t.Fatalf("new cached state store: %v", err)
	}
	ctx := context.Background()

	key := core.RateLimitKey{SubscribeKey: "sub-c-cache-404", Operation: "enable"}
	if _, err := store.Get(ctx, key); !errors.Is(err, ratelimit.ErrStateNotFound) {
		t.Fatalf("read should surface the base error, got %v", err)
	}

	errDiskFull := errors.New("disk full")
	base.failUpsert = errDiskFull
	writeErr := store.Upsert(ctx, ratelimit.State{Key: key, UpdatedAt: time.Now().UTC()})
	if !errors.Is(writeErr, errDiskFull) {
		t.Fatalf("upsert should surface the base error, got %v", writeErr)
	}

	base.failUpsert = nil
	if err := store.Upsert(ctx, ratelimit.State{
		Key: core.RateLimitKey{SubscribeKey: "sub-c-cache-404"},
	}); err == nil {
		t.Fatalf("expected validation error for missing operation")
	}
	if base.upserts != 1 {
		t.Fatalf("invalid key should never reach the base store, upserts = %d", base.upserts)
	}
}
