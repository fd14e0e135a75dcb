package devkit

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/goliatone/go-pushregistry/core"
	"github.com/goliatone/go-pushregistry/ratelimit"
)

// ValidateTransportAdapterConformance exercises the adapter contract: it
// must advertise a kind and answer the probe request.
func ValidateTransportAdapterConformance(
	ctx context.Context,
	adapter core.TransportAdapter,
	request core.TransportRequest,
) error {
	if adapter == nil {
		return fmt.Errorf("devkit: transport adapter is required")
	}
	if strings.TrimSpace(adapter.Kind()) == "" {
		return fmt.Errorf("devkit: transport adapter kind is required")
	}
	_, err := adapter.Do(ctx, request)
	return err
}

// ValidateActivityStoreConformance exercises the ledger contract: recorded
// rows get identity and timestamps, lists find them by token fingerprint,
// and the row cap prunes the oldest rows first.
func ValidateActivityStoreConformance(ctx context.Context, store core.ActivityStore) error {
	if store == nil {
		return fmt.Errorf("devkit: activity store is required")
	}

	tokenHash := fmt.Sprintf("devkit-conformance-%d", time.Now().UnixNano())
	first, err := store.Record(ctx, core.ActivityEntry{
		Operation: core.OperationEnable,
		TokenHash: tokenHash,
		Outcome:   "success",
	})
	if err != nil {
		return err
	}
	if strings.TrimSpace(first.ID) == "" {
		return fmt.Errorf("devkit: recorded entry should carry an id")
	}
	if first.CreatedAt.IsZero() {
		return fmt.Errorf("devkit: recorded entry should carry a created_at timestamp")
	}

	if _, err := store.Record(ctx, core.ActivityEntry{
		Operation: core.OperationAudit,
		TokenHash: tokenHash,
		Outcome:   "failure",
	}); err != nil {
		return err
	}

	entries, total, err := store.List(ctx, core.ActivityFilter{TokenHash: tokenHash})
	if err != nil {
		return err
	}
	if total < 2 || len(entries) < 2 {
		return fmt.Errorf("devkit: expected both recorded entries, got total %d", total)
	}

	if _, err := store.Prune(ctx, 0, 1); err != nil {
		return err
	}
	_, remaining, err := store.List(ctx, core.ActivityFilter{TokenHash: tokenHash})
	if err != nil {
		return err
	}
	if remaining > 1 {
		return fmt.Errorf("devkit: row cap prune should leave at most one row, got %d", remaining)
	}
	return nil
}

// ValidateRateLimitStateStoreConformance exercises the throttle-state
// contract: missing keys report ErrStateNotFound, upserts round-trip, and
// key lookup is case-insensitive on the operation.
func ValidateRateLimitStateStoreConformance(ctx context.Context, store ratelimit.StateStore) error {
	if store == nil {
		return fmt.Errorf("devkit: rate-limit state store is required")
	}

	key := core.RateLimitKey{SubscribeKey: "devkit-conformance", Operation: "enable"}
	if _, err := store.Get(ctx, key); !errors.Is(err, ratelimit.ErrStateNotFound) {
		return fmt.Errorf("devkit: missing state should report ErrStateNotFound, got %v", err)
	}

	until := time.Now().UTC().Add(2 * time.Second).Truncate(time.Second)
	if err := store.Upsert(ctx, ratelimit.State{
		Key:            core.RateLimitKey{SubscribeKey: "devkit-conformance", Operation: "Enable"},
		LastStatus:     429,
		Attempts:       1,
		ThrottledUntil: &until,
		UpdatedAt:      time.Now().UTC(),
	}); err != nil {
		return err
	}

	state, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	if state.Key.SubscribeKey != "devkit-conformance" || state.Key.Operation != "enable" {
		return fmt.Errorf("devkit: state key should normalize, got %#v", state.Key)
	}
	if state.ThrottledUntil == nil || !state.ThrottledUntil.UTC().Equal(until) {
		return fmt.Errorf("devkit: throttle window should round-trip, got %v", state.ThrottledUntil)
	}
	return nil
}

// ValidateRequestSignerConformance exercises the signer contract: signing
// must be deterministic under a fixed clock, must not mutate the input, and
// must attach signature and timestamp parameters.
func ValidateRequestSignerConformance(
	ctx context.Context,
	signer core.RequestSigner,
	request core.TransportRequest,
) error {
	if signer == nil {
		return fmt.Errorf("devkit: request signer is required")
	}
	if strings.TrimSpace(request.URL) == "" {
		return fmt.Errorf("devkit: probe request url is required")
	}

	original := cloneTransportRequest(request)
	first, err := signer.Sign(ctx, request)
	if err != nil {
		return err
	}
	second, err := signer.Sign(ctx, request)
	if err != nil {
		return err
	}
	if !reflect.DeepEqual(first, second) {
		return fmt.Errorf("devkit: signer must be deterministic under a fixed clock")
	}
	if !reflect.DeepEqual(cloneTransportRequest(request), original) {
		return fmt.Errorf("devkit: signer must not mutate its input")
	}
	if strings.TrimSpace(first.Query["signature"]) == "" {
		return fmt.Errorf("devkit: signed request should carry a signature parameter")
	}
	if strings.TrimSpace(first.Query["timestamp"]) == "" {
		return fmt.Errorf("devkit: signed request should carry a timestamp parameter")
	}
	return nil
}
