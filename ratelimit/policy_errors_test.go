package ratelimit

import (
	"testing"
	"time"

	"github.com/goliatone/go-pushregistry/core"
)

func TestThrottledError_ToPushError(t *testing.T) {
	err := ThrottledError{
		SubscribeKey: "demo",
		Operation:    "enable",
		RetryAfter:   3 * time.Second,
	}

	mapped := err.ToPushError()
	if mapped == nil {
		t.Fatalf("expected mapped error")
	}
	if mapped.TextCode != core.PushErrorRateLimited {
		t.Fatalf("expected %q text code, got %q", core.PushErrorRateLimited, mapped.TextCode)
	}
	if mapped.Code != 429 {
		t.Fatalf("expected status code 429, got %d", mapped.Code)
	}
	if mapped.Metadata["retry_after_ms"] != int64(3000) {
		t.Fatalf("expected retry hint metadata, got %v", mapped.Metadata["retry_after_ms"])
	}
}
