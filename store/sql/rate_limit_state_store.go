package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-pushregistry/core"
	"github.com/goliatone/go-pushregistry/ratelimit"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	stateMetaAttempts       = "_attempts"
	stateMetaLastStatus     = "_last_status"
	stateMetaThrottledUntil = "_throttled_until"
)

// RateLimitStateStore persists learned throttle windows so restarts keep
// honoring server pushback. Attempt counters and the throttle deadline ride
// in the metadata column under reserved keys.
type RateLimitStateStore struct {
	db   *bun.DB
	repo repository.Repository[*pushRateLimitStateRecord]
}

func NewRateLimitStateStore(db *bun.DB) (*RateLimitStateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*pushRateLimitStateRecord](db, rateLimitStateHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid rate-limit state repository wiring: %w", err)
		}
	}
	return &RateLimitStateStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *RateLimitStateStore) Get(ctx context.Context, key core.RateLimitKey) (ratelimit.State, error) {
	if s == nil || s.db == nil {
		return ratelimit.State{}, fmt.Errorf("sqlstore: rate-limit state store is not configured")
	}
	key = normalizeRateLimitKey(key)
	if err := validateRateLimitKey(key); err != nil {
		return ratelimit.State{}, err
	}

	record, found, err := selectBucket(ctx, s.db, key)
	if err != nil {
		return ratelimit.State{}, err
	}
	if !found {
		return ratelimit.State{}, ratelimit.ErrStateNotFound
	}
	return record.toDomain(), nil
}

// Upsert writes the bucket inside a transaction: the unique index on
// (subscribe_key, operation) guarantees one row per bucket, and the
// find-then-write keeps created_at stable across updates.
func (s *RateLimitStateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: rate-limit state store is not configured")
	}
	state.Key = normalizeRateLimitKey(state.Key)
	if err := validateRateLimitKey(state.Key); err != nil {
		return err
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, found, err := selectBucket(ctx, tx, state.Key)
		if err != nil {
			return err
		}
		if !found {
			record = &pushRateLimitStateRecord{
				ID:        uuid.NewString(),
				CreatedAt: state.UpdatedAt,
			}
		}
		record.applyState(state)

		if !found {
			_, err = tx.NewInsert().Model(record).Exec(ctx)
			return err
		}
		_, err = tx.NewUpdate().
			Model(record).
			Where("id = ?", record.ID).
			Exec(ctx)
		return err
	})
}

// selectBucket loads the newest row for a bucket. It runs against either
// the db handle or an open transaction.
func selectBucket(ctx context.Context, idb bun.IDB, key core.RateLimitKey) (*pushRateLimitStateRecord, bool, error) {
	record := &pushRateLimitStateRecord{}
	err := idb.NewSelect().
		Model(record).
		Where("?TableAlias.subscribe_key = ?", key.SubscribeKey).
		Where("?TableAlias.operation = ?", key.Operation).
		OrderExpr("?TableAlias.updated_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	return record, true, nil
}

// applyState copies the domain state onto the row. The throttle deadline,
// attempt counter and last status have no dedicated columns; they travel
// in metadata under reserved keys.
func (r *pushRateLimitStateRecord) applyState(state ratelimit.State) {
	r.SubscribeKey = state.Key.SubscribeKey
	r.Operation = state.Key.Operation
	r.RateLimit = state.Limit
	r.Remaining = state.Remaining
	r.Metadata = packStateMetadata(state)
	r.UpdatedAt = state.UpdatedAt.UTC()
	r.ResetAt = utcTimePtr(state.ResetAt)
	r.RetryAfter = retryAfterSeconds(state.RetryAfter)
}

func (r *pushRateLimitStateRecord) toDomain() ratelimit.State {
	if r == nil {
		return ratelimit.State{}
	}
	state := ratelimit.State{
		Key: core.RateLimitKey{
			SubscribeKey: r.SubscribeKey,
			Operation:    r.Operation,
		},
		Limit:     r.RateLimit,
		Remaining: r.Remaining,
		UpdatedAt: r.UpdatedAt,
		Metadata:  copyAnyMap(r.Metadata),
	}
	state.ResetAt = utcTimePtr(r.ResetAt)
	if r.RetryAfter != nil && *r.RetryAfter > 0 {
		retryAfter := time.Duration(*r.RetryAfter) * time.Second
		state.RetryAfter = &retryAfter
	}
	unpackStateMetadata(&state)
	return state
}

func packStateMetadata(state ratelimit.State) map[string]any {
	metadata := copyAnyMap(state.Metadata)
	delete(metadata, stateMetaAttempts)
	delete(metadata, stateMetaLastStatus)
	delete(metadata, stateMetaThrottledUntil)
	if state.Attempts > 0 {
		metadata[stateMetaAttempts] = state.Attempts
	}
	if state.LastStatus > 0 {
		metadata[stateMetaLastStatus] = state.LastStatus
	}
	if state.ThrottledUntil != nil {
		metadata[stateMetaThrottledUntil] = state.ThrottledUntil.UTC().Format(time.RFC3339Nano)
	}
	return metadata
}

func unpackStateMetadata(state *ratelimit.State) {
	if attempts, ok := metadataInt(state.Metadata, stateMetaAttempts); ok {
		state.Attempts = attempts
		delete(state.Metadata, stateMetaAttempts)
	}
	if status, ok := metadataInt(state.Metadata, stateMetaLastStatus); ok {
		state.LastStatus = status
		delete(state.Metadata, stateMetaLastStatus)
	}
	if raw, ok := state.Metadata[stateMetaThrottledUntil]; ok {
		if parsed, valid := metadataTime(raw); valid {
			state.ThrottledUntil = &parsed
		}
		delete(state.Metadata, stateMetaThrottledUntil)
	}
}

func normalizeRateLimitKey(key core.RateLimitKey) core.RateLimitKey {
	return core.RateLimitKey{
		SubscribeKey: strings.TrimSpace(key.SubscribeKey),
		Operation:    strings.TrimSpace(strings.ToLower(key.Operation)),
	}
}

func validateRateLimitKey(key core.RateLimitKey) error {
	if strings.TrimSpace(key.SubscribeKey) == "" {
		return fmt.Errorf("sqlstore: rate-limit subscribe key is required")
	}
	if strings.TrimSpace(key.Operation) == "" {
		return fmt.Errorf("sqlstore: rate-limit operation is required")
	}
	return nil
}

func utcTimePtr(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}

// retryAfterSeconds stores the hint with second precision; sub-second
// hints round up so a positive hint never persists as zero.
func retryAfterSeconds(input *time.Duration) *int {
	if input == nil || *input <= 0 {
		return nil
	}
	seconds := int(input.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return &seconds
}

func metadataTime(input any) (time.Time, bool) {
	switch typed := input.(type) {
	case time.Time:
		return typed.UTC(), true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(typed))
		if err != nil {
			return time.Time{}, false
		}
		return parsed.UTC(), true
	default:
		return time.Time{}, false
	}
}

func metadataInt(metadata map[string]any, key string) (int, bool) {
	raw, ok := metadata[key]
	if !ok {
		return 0, false
	}
	switch typed := raw.(type) {
	case int:
		return typed, true
	case int64:
		return int(typed), true
	case float64:
		return int(typed), true
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(typed))
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

var _ ratelimit.StateStore = (*RateLimitStateStore)(nil)
