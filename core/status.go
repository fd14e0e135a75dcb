package core

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// StatusCategory classifies the terminal outcome of an operation cycle.
type StatusCategory string

const (
	// StatusCategoryAcknowledgment marks a successful cycle.
	StatusCategoryAcknowledgment StatusCategory = "acknowledgment"
	// StatusCategoryValidation marks input rejected before any transport
	// call. Never retryable.
	StatusCategoryValidation StatusCategory = "validation"
	// StatusCategoryNetwork marks a transport-level failure. Always
	// retryable.
	StatusCategoryNetwork StatusCategory = "network"
	// StatusCategoryServer marks a non-2xx service response. Retryable
	// unless the code is permanent.
	StatusCategoryServer StatusCategory = "server"
	// StatusCategoryAccessDenied marks 401/403 rejections. Not retryable.
	StatusCategoryAccessDenied StatusCategory = "access_denied"
	// StatusCategoryMalformedResponse marks payloads that break the service
	// contract. Not retryable.
	StatusCategoryMalformedResponse StatusCategory = "malformed_response"
	// StatusCategoryCancelled marks caller-driven cancellation. Not
	// retryable.
	StatusCategoryCancelled StatusCategory = "cancelled"
)

func (c StatusCategory) Validate() error {
	switch c {
	case StatusCategoryAcknowledgment,
		StatusCategoryValidation,
		StatusCategoryNetwork,
		StatusCategoryServer,
		StatusCategoryAccessDenied,
		StatusCategoryMalformedResponse,
		StatusCategoryCancelled:
		return nil
	}
	return fmt.Errorf("core: invalid status category %q", string(c))
}

// Status is the terminal outcome delivered to completions. Successful
// modification cycles produce an acknowledgment status; every failure
// produces an error status, possibly retry-eligible.
type Status struct {
	Operation      Operation
	PushType       PushType
	Category       StatusCategory
	StatusCode     int
	Service        string
	ServiceMessage string
	Err            *goerrors.Error
	Retryable      bool
	RetryAfter     time.Duration
	Attempt        int
	Idempotency    string
	TokenHash      string
	Request        TransportRequest

	retryFn  func(ctx context.Context)
	consumed atomic.Bool
}

// IsError reports whether the cycle failed.
func (s *Status) IsError() bool {
	if s == nil {
		return false
	}
	return s.Category != StatusCategoryAcknowledgment
}

// CanRetry reports whether Retry would start a fresh cycle.
func (s *Status) CanRetry() bool {
	if s == nil {
		return false
	}
	return s.Retryable && s.retryFn != nil && !s.consumed.Load()
}

// Retry re-invokes the transport with the identical descriptor and runs a
// fresh completion cycle against the original completion. It consumes the
// status: calling it on a non-retryable or already retried status is a no-op
// returning an error. The re-issued cycle runs synchronously; callers that
// want it off their goroutine wrap the call themselves.
func (s *Status) Retry(ctx context.Context) error {
	if s == nil {
		return goerrors.New("core: status is nil", goerrors.CategoryOperation).
			WithTextCode(PushErrorRetryUnavailable)
	}
	if !s.Retryable || s.retryFn == nil {
		return goerrors.New("core: status is not retry eligible", goerrors.CategoryOperation).
			WithTextCode(PushErrorRetryUnavailable).
			WithMetadata(map[string]any{
				"operation": string(s.Operation),
				"category":  string(s.Category),
			})
	}
	if !s.consumed.CompareAndSwap(false, true) {
		return goerrors.New("core: status retry already consumed", goerrors.CategoryConflict).
			WithTextCode(PushErrorRetryUnavailable).
			WithMetadata(map[string]any{
				"operation": string(s.Operation),
				"attempt":   s.Attempt,
			})
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.retryFn(ctx)
	return nil
}

func (s *Status) armRetry(fn func(ctx context.Context)) {
	if s == nil || fn == nil {
		return
	}
	s.retryFn = fn
}

// fields returns the observability payload shared by logs and the activity
// ledger.
func (s *Status) fields() map[string]any {
	if s == nil {
		return map[string]any{}
	}
	fields := map[string]any{
		"operation":   string(s.Operation),
		"push_type":   string(s.PushType),
		"category":    string(s.Category),
		"status_code": s.StatusCode,
		"retryable":   s.Retryable,
		"attempt":     s.Attempt,
	}
	if s.Idempotency != "" {
		fields["idempotency"] = s.Idempotency
	}
	if s.ServiceMessage != "" {
		fields["service_message"] = s.ServiceMessage
	}
	if s.RetryAfter > 0 {
		fields["retry_after_ms"] = s.RetryAfter.Milliseconds()
	}
	return fields
}
