// Package ratelimit tracks per-key throttle state for the push service
// and refuses calls that would land inside a known throttle window. The
// service keys its limits on subscribe key and operation, so that pair
// is the bucket identity.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-pushregistry/core"
)

var ErrStateNotFound = errors.New("ratelimit: state not found")

type State struct {
	Key            core.RateLimitKey
	Limit          int
	Remaining      int
	ResetAt        *time.Time
	RetryAfter     *time.Duration
	ThrottledUntil *time.Time
	LastStatus     int
	Attempts       int
	UpdatedAt      time.Time
	Metadata       map[string]any
}

type StateStore interface {
	Get(ctx context.Context, key core.RateLimitKey) (State, error)
	Upsert(ctx context.Context, state State) error
}

type ThrottledError struct {
	SubscribeKey string
	Operation    string
	RetryAfter   time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf(
		"ratelimit: subscribe key %q operation %q throttled for %s",
		strings.TrimSpace(e.SubscribeKey),
		strings.TrimSpace(e.Operation),
		e.RetryAfter,
	)
}

// RetryHint reports how long callers should wait before re-issuing.
func (e ThrottledError) RetryHint() time.Duration {
	return e.RetryAfter
}

func (e ThrottledError) ToPushError() *goerrors.Error {
	metadata := map[string]any{
		"subscribe_key": strings.TrimSpace(e.SubscribeKey),
		"operation":     strings.TrimSpace(e.Operation),
	}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.PushErrorRateLimited).
		WithMetadata(metadata)
}

func throttled(state State, wait time.Duration) ThrottledError {
	return ThrottledError{
		SubscribeKey: state.Key.SubscribeKey,
		Operation:    state.Key.Operation,
		RetryAfter:   wait,
	}
}

// AdaptivePolicy learns throttle windows from service responses. A 429
// opens a window from the Retry-After hint or an escalating backoff;
// any non-throttled response closes it.
type AdaptivePolicy struct {
	Store            StateStore
	Now              func() time.Time
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	DefaultRetryHint time.Duration
}

func NewAdaptivePolicy(store StateStore) *AdaptivePolicy {
	return &AdaptivePolicy{
		Store:            store,
		Now:              func() time.Time { return time.Now().UTC() },
		InitialBackoff:   time.Second,
		MaxBackoff:       time.Minute,
		DefaultRetryHint: 5 * time.Second,
	}
}

func (p *AdaptivePolicy) BeforeCall(ctx context.Context, key core.RateLimitKey) error {
	if p == nil || p.Store == nil {
		return nil
	}
	state, err := p.Store.Get(ctx, normalizeKey(key))
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return nil
		}
		return err
	}

	if wait, open := activeWindow(state, p.now()); open {
		return throttled(state, wait)
	}
	return nil
}

// activeWindow reports the remaining wait when the bucket is inside a
// throttle window: either an explicit window learned from a throttled
// response, or an exhausted quota that has not reset yet.
func activeWindow(state State, now time.Time) (time.Duration, bool) {
	if until := state.ThrottledUntil; until != nil && now.Before(*until) {
		return until.Sub(now), true
	}
	if state.Remaining == 0 && state.ResetAt != nil && now.Before(*state.ResetAt) {
		return state.ResetAt.Sub(now), true
	}
	return 0, false
}

func (p *AdaptivePolicy) AfterCall(ctx context.Context, key core.RateLimitKey, res core.ResponseMeta) error {
	if p == nil || p.Store == nil {
		return nil
	}
	key = normalizeKey(key)
	now := p.now()
	state, err := p.Store.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrStateNotFound) {
		return err
	}
	if errors.Is(err, ErrStateNotFound) {
		state = State{Key: key}
	}

	state.LastStatus = res.StatusCode
	state.UpdatedAt = now
	state.Metadata = cloneMap(state.Metadata)
	for k, v := range res.Metadata {
		state.Metadata[k] = v
	}

	sig := readSignals(res, now)
	if sig.hasLimit {
		state.Limit = sig.limit
	}
	if sig.hasRemaining {
		state.Remaining = sig.remaining
	}
	if sig.hasResetAt {
		state.ResetAt = &sig.resetAt
	}
	if sig.hasRetryAfter {
		retryAfter := sig.retryAfter
		state.RetryAfter = &retryAfter
	} else {
		state.RetryAfter = nil
	}

	if sig.opensWindow(res.StatusCode, state.Remaining) {
		state.Attempts++
		delay := sig.retryAfter
		if !sig.hasRetryAfter {
			delay = p.nextBackoff(state.Attempts)
		}
		if delay <= 0 {
			delay = p.defaultRetryHint()
		}
		until := now.Add(delay)
		state.ThrottledUntil = &until
		return p.Store.Upsert(ctx, state)
	}

	state.Attempts = 0
	state.ThrottledUntil = nil
	return p.Store.Upsert(ctx, state)
}

func (p *AdaptivePolicy) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *AdaptivePolicy) nextBackoff(attempt int) time.Duration {
	initial := p.InitialBackoff
	if initial <= 0 {
		initial = time.Second
	}
	maximum := p.MaxBackoff
	if maximum <= 0 {
		maximum = time.Minute
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum || delay <= 0 {
			return maximum
		}
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

func (p *AdaptivePolicy) defaultRetryHint() time.Duration {
	if p != nil && p.DefaultRetryHint > 0 {
		return p.DefaultRetryHint
	}
	return 5 * time.Second
}

// responseSignals is everything one gateway response reveals about the
// bucket's quota.
type responseSignals struct {
	limit         int
	hasLimit      bool
	remaining     int
	hasRemaining  bool
	resetAt       time.Time
	hasResetAt    bool
	retryAfter    time.Duration
	hasRetryAfter bool
}

func readSignals(res core.ResponseMeta, now time.Time) responseSignals {
	var sig responseSignals
	sig.limit, sig.hasLimit = headerInt(res.Headers, "x-ratelimit-limit")
	sig.remaining, sig.hasRemaining = headerInt(res.Headers, "x-ratelimit-remaining")
	sig.resetAt, sig.hasResetAt = headerResetAt(res.Headers)
	sig.retryAfter, sig.hasRetryAfter = retryAfterHint(res, now)
	return sig
}

// opensWindow decides whether the response should open (or extend) a
// throttle window. A 429 always does. Server faults never do: they are
// retry territory, not quota territory. Anything else throttles only
// when the quota reads exhausted and at least one signal backs that up.
func (sig responseSignals) opensWindow(statusCode int, remaining int) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	if statusCode >= 500 {
		return false
	}
	if remaining != 0 {
		return false
	}
	return sig.hasRemaining || sig.hasResetAt || sig.hasLimit || sig.hasRetryAfter
}

// retryAfterHint prefers the pre-parsed hint, then the Retry-After
// header as integer seconds, then as an HTTP date. Hints in the past
// are ignored.
func retryAfterHint(res core.ResponseMeta, now time.Time) (time.Duration, bool) {
	if res.RetryAfter != nil && *res.RetryAfter > 0 {
		return *res.RetryAfter, true
	}
	raw := lookupHeader(res.Headers, "retry-after")
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if retryAt, err := parseHTTPDate(raw); err == nil && retryAt.After(now) {
		return retryAt.Sub(now), true
	}
	return 0, false
}

func headerInt(headers map[string]string, key string) (int, bool) {
	value := lookupHeader(headers, key)
	if value == "" {
		return 0, false
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func headerResetAt(headers map[string]string) (time.Time, bool) {
	value := lookupHeader(headers, "x-ratelimit-reset")
	if value == "" {
		return time.Time{}, false
	}
	unix, err := strconv.ParseInt(value, 10, 64)
	if err != nil || unix <= 0 {
		return time.Time{}, false
	}
	return time.Unix(unix, 0).UTC(), true
}

func parseHTTPDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("ratelimit: empty date")
	}
	for _, layout := range []string{time.RFC1123, time.RFC1123Z} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("ratelimit: invalid http date")
}

func lookupHeader(headers map[string]string, key string) string {
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func normalizeKey(key core.RateLimitKey) core.RateLimitKey {
	return core.RateLimitKey{
		SubscribeKey: strings.TrimSpace(key.SubscribeKey),
		Operation:    strings.TrimSpace(strings.ToLower(key.Operation)),
	}
}

func cloneMap(input map[string]any) map[string]any {
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}

// MemoryStateStore is the in-process store used by tests and by clients
// that run without persistence. Keys are normalized on write so lookups
// with unnormalized keys still land on the same bucket.
type MemoryStateStore struct {
	mu    sync.RWMutex
	items map[string]State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{items: map[string]State{}}
}

func (s *MemoryStateStore) Get(_ context.Context, key core.RateLimitKey) (State, error) {
	if s == nil {
		return State{}, fmt.Errorf("ratelimit: state store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.items[bucketID(normalizeKey(key))]
	if !ok {
		return State{}, ErrStateNotFound
	}
	state.Metadata = cloneMap(state.Metadata)
	return state, nil
}

func (s *MemoryStateStore) Upsert(_ context.Context, state State) error {
	if s == nil {
		return fmt.Errorf("ratelimit: state store is nil")
	}
	state.Key = normalizeKey(state.Key)
	state.Metadata = cloneMap(state.Metadata)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[bucketID(state.Key)] = state
	return nil
}

func bucketID(key core.RateLimitKey) string {
	return key.SubscribeKey + "|" + key.Operation
}

var _ core.RateLimitPolicy = (*AdaptivePolicy)(nil)
