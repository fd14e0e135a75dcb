package pushregistry_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	pushregistry "github.com/goliatone/go-pushregistry"
	"github.com/goliatone/go-pushregistry/core"
	"github.com/goliatone/go-pushregistry/devkit"
	"github.com/goliatone/go-pushregistry/ratelimit"
)

func TestDownstreamComposition_UsesOperationCycleWithoutOwningRuntimeInternals(t *testing.T) {
	adapter := devkit.NewFakeTransportAdapter("rest",
		devkit.TransportScript{Response: devkit.ThrottledResponse(2)},
		devkit.TransportScript{Response: devkit.AckResponse()},
	)

	now := time.Unix(1_700_000_000, 0).UTC()
	rateStore := ratelimit.NewMemoryStateStore()
	policy := ratelimit.NewAdaptivePolicy(rateStore)
	policy.Now = func() time.Time { return now }

	activity := devkit.NewActivityStoreFixture()
	var delays []time.Duration

	client, err := pushregistry.New(
		pushregistry.Config{
			Origin:       "https://push.example.test",
			SubscribeKey: "sub-demo",
		},
		pushregistry.WithTransport(adapter),
		pushregistry.WithRateLimitPolicy(policy),
		pushregistry.WithActivityStore(activity),
		pushregistry.WithRetryPolicy(pushregistry.RetryPolicy{
			MaxAttempts: 2,
			Sleep: func(_ context.Context, delay time.Duration) error {
				delays = append(delays, delay)
				now = now.Add(delay)
				return nil
			},
		}),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	domain := downstreamAlertsService{runtime: client}
	status, err := domain.SubscribeDevice(context.Background(), "device-token", []string{"alerts", "news"})
	if err != nil {
		t.Fatalf("subscribe device through runtime primitive: %v", err)
	}
	if status.StatusCode != 200 || status.Category != core.StatusCategoryAcknowledgment {
		t.Fatalf("expected acknowledged final status, got %#v", status)
	}
	if status.Attempt != 2 {
		t.Fatalf("expected retried cycle metadata, got attempt %d", status.Attempt)
	}
	if status.ServiceMessage != "Modified Channels" {
		t.Fatalf("expected service acknowledgment message, got %q", status.ServiceMessage)
	}
	if len(delays) != 1 || delays[0] != 2*time.Second {
		t.Fatalf("expected retry-after delay propagation, got %+v", delays)
	}

	requests := adapter.Requests()
	if len(requests) != 2 {
		t.Fatalf("expected two transport calls, got %d", len(requests))
	}
	if requests[0].Query["add"] != "alerts,news" {
		t.Fatalf("expected channel list on descriptor, got %q", requests[0].Query["add"])
	}
	if requests[0].Idempotency == "" || requests[1].Idempotency == "" {
		t.Fatalf("expected idempotency key on each attempt")
	}
	if requests[0].Idempotency != requests[1].Idempotency {
		t.Fatalf("expected stable idempotency key across retries")
	}
	if requests[0].URL != requests[1].URL {
		t.Fatalf("expected frozen descriptor across retries")
	}

	state, err := rateStore.Get(context.Background(), core.RateLimitKey{
		SubscribeKey: "sub-demo",
		Operation:    "enable",
	})
	if err != nil {
		t.Fatalf("load persisted rate-limit state: %v", err)
	}
	if state.Attempts != 0 || state.ThrottledUntil != nil {
		t.Fatalf("expected rate-limit state reset after successful retry, got %#v", state)
	}

	rows := activity.Snapshot()
	if len(rows) != 1 {
		t.Fatalf("expected one ledger row per cycle, got %d", len(rows))
	}
	if rows[0].Outcome != "success" || rows[0].Attempt != 2 {
		t.Fatalf("expected successful retried ledger row, got %#v", rows[0])
	}
}

// downstreamPushRuntime is the slice of the client surface an embedding
// application depends on.
type downstreamPushRuntime interface {
	EnablePush(
		ctx context.Context,
		token string,
		channels []string,
		completion pushregistry.AckCompletion,
		options ...pushregistry.CallOption,
	)
}

type downstreamAlertsService struct {
	runtime downstreamPushRuntime
}

func (d downstreamAlertsService) SubscribeDevice(
	ctx context.Context,
	token string,
	channels []string,
) (*pushregistry.Status, error) {
	if d.runtime == nil {
		return nil, fmt.Errorf("push runtime is required")
	}
	var status *pushregistry.Status
	d.runtime.EnablePush(ctx, token, channels, func(s *pushregistry.Status) {
		status = s
	})
	if status == nil {
		return nil, fmt.Errorf("completion did not fire")
	}
	if status.IsError() {
		return status, status.Err
	}
	return status, nil
}
