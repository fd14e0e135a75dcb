package gojob

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-pushregistry/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

func TestQueuedOperationMessageRoundTrip(t *testing.T) {
	enqueuedAt := time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC)
	original := core.QueuedOperation{
		ID:        "queued-1",
		Operation: core.OperationEnable,
		PushType:  core.PushTypeAPNS,
		TokenHash: "hash-1",
		Attempt:   2,
		Request: core.TransportRequest{
			Method:               "GET",
			URL:                  "https://ps.pndsn.com/v1/push/sub-key/sub-c-demo/devices/00aa11bb",
			Headers:              map[string]string{"Accept": "application/json"},
			Query:                map[string]string{"add": "alerts,news", "type": "apns"},
			Body:                 []byte(`{"probe":true}`),
			Timeout:              15 * time.Second,
			MaxResponseBodyBytes: 1 << 20,
			Idempotency:          "idem-1",
		},
		Idempotency: "idem-1",
		EnqueuedAt:  enqueuedAt,
	}

	msg := QueuedOperationToExecutionMessage(original)
	if msg == nil {
		t.Fatalf("expected execution message")
	}
	if msg.JobID != JobIDRetryCycle {
		t.Fatalf("expected retry cycle job id, got %q", msg.JobID)
	}
	if msg.IdempotencyKey != "idem-1#2" {
		t.Fatalf("expected attempt-scoped idempotency key, got %q", msg.IdempotencyKey)
	}

	decoded, err := QueuedOperationFromExecutionMessage(msg)
	if err != nil {
		t.Fatalf("decode queued operation: %v", err)
	}
	if decoded.ID != original.ID || decoded.Operation != original.Operation || decoded.PushType != original.PushType {
		t.Fatalf("unexpected identity fields: %+v", decoded)
	}
	if decoded.TokenHash != original.TokenHash || decoded.Attempt != original.Attempt {
		t.Fatalf("unexpected attempt fields: %+v", decoded)
	}
	if decoded.Request.Method != "GET" || decoded.Request.URL != original.Request.URL {
		t.Fatalf("unexpected request target: %+v", decoded.Request)
	}
	if decoded.Request.Headers["Accept"] != "application/json" {
		t.Fatalf("expected headers to survive round trip, got %#v", decoded.Request.Headers)
	}
	if decoded.Request.Query["add"] != "alerts,news" || decoded.Request.Query["type"] != "apns" {
		t.Fatalf("expected query to survive round trip, got %#v", decoded.Request.Query)
	}
	if !bytes.Equal(decoded.Request.Body, original.Request.Body) {
		t.Fatalf("expected body to survive round trip, got %q", decoded.Request.Body)
	}
	if decoded.Request.Timeout != original.Request.Timeout {
		t.Fatalf("expected timeout round trip, got %s", decoded.Request.Timeout)
	}
	if decoded.Request.MaxResponseBodyBytes != original.Request.MaxResponseBodyBytes {
		t.Fatalf("expected body limit round trip, got %d", decoded.Request.MaxResponseBodyBytes)
	}
	if decoded.Idempotency != "idem-1" || decoded.Request.Idempotency != "idem-1" {
		t.Fatalf("expected idempotency round trip, got %+v", decoded)
	}
	if !decoded.EnqueuedAt.Equal(enqueuedAt) {
		t.Fatalf("expected enqueued_at round trip, got %s", decoded.EnqueuedAt)
	}
}

func TestQueuedOperationFromExecutionMessage_RejectsBadPayloads(t *testing.T) {
	if _, err := QueuedOperationFromExecutionMessage(nil); err == nil {
		t.Fatalf("expected nil message rejection")
	}
	if _, err := QueuedOperationFromExecutionMessage(&core.JobExecutionMessage{
		Parameters: map[string]any{paramOperation: "bogus", paramURL: "https://example.test"},
	}); err == nil {
		t.Fatalf("expected unknown operation rejection")
	}
	if _, err := QueuedOperationFromExecutionMessage(&core.JobExecutionMessage{
		Parameters: map[string]any{paramOperation: "enable"},
	}); err == nil {
		t.Fatalf("expected missing url rejection")
	}
	if _, err := QueuedOperationFromExecutionMessage(&core.JobExecutionMessage{
		Parameters: map[string]any{
			paramOperation: "enable",
			paramURL:       "https://example.test",
			paramBody:      "%%%not-base64%%%",
		},
	}); err == nil {
		t.Fatalf("expected body decode rejection")
	}
}

func TestRetryEnqueuer_FlattensParkedCycle(t *testing.T) {
	enqueuer := &capturingJobEnqueuer{}
	retry := NewRetryEnqueuer(enqueuer)

	if err := retry.Enqueue(context.Background(), core.QueuedOperation{Operation: core.OperationEnable}); err == nil {
		t.Fatalf("expected missing descriptor rejection")
	}

	queued := core.QueuedOperation{
		Operation:   core.OperationDisable,
		PushType:    core.PushTypeGCM,
		TokenHash:   "hash-2",
		Attempt:     1,
		Idempotency: "idem-2",
		Request: core.TransportRequest{
			Method: "GET",
			URL:    "https://ps.pndsn.com/v1/push/sub-key/sub-c-demo/devices/dev-2",
			Query:  map[string]string{"remove": "alerts", "type": "gcm"},
		},
	}
	if err := retry.Enqueue(context.Background(), queued); err != nil {
		t.Fatalf("enqueue parked cycle: %v", err)
	}
	if enqueuer.last == nil {
		t.Fatalf("expected flattened job message")
	}
	if enqueuer.last.JobID != JobIDRetryCycle {
		t.Fatalf("expected retry job id, got %q", enqueuer.last.JobID)
	}
	if enqueuer.last.Parameters[paramURL] != queued.Request.URL {
		t.Fatalf("expected descriptor url in parameters, got %#v", enqueuer.last.Parameters)
	}
}

func TestRetryWorker_AckNackDiscipline(t *testing.T) {
	ctx := context.Background()
	baseMessage := QueuedOperationToExecutionMessage(core.QueuedOperation{
		Operation:   core.OperationEnable,
		PushType:    core.PushTypeAPNS,
		TokenHash:   "hash-3",
		Attempt:     1,
		Idempotency: "idem-3",
		Request: core.TransportRequest{
			Method: "GET",
			URL:    "https://ps.pndsn.com/v1/push/sub-key/sub-c-demo/devices/dev-3",
		},
	})

	executor := &stubQueuedExecutor{}
	retryWorker := NewRetryWorker(executor, RetryPolicy{MaxAttempts: 5, MaxDelay: time.Minute})

	delivery := &stubCoreDelivery{msg: baseMessage}
	executor.status = &core.Status{Category: core.StatusCategoryAcknowledgment}
	if err := retryWorker.Process(ctx, delivery); err != nil {
		t.Fatalf("process successful cycle: %v", err)
	}
	if !delivery.acked {
		t.Fatalf("expected successful cycle to ack")
	}

	delivery = &stubCoreDelivery{msg: baseMessage}
	executor.status = &core.Status{
		Category:   core.StatusCategoryServer,
		StatusCode: 503,
		Retryable:  true,
		RetryAfter: 2 * time.Second,
	}
	executor.err = errors.New("service unavailable")
	if err := retryWorker.Process(ctx, delivery); err != nil {
		t.Fatalf("process retryable cycle: %v", err)
	}
	if delivery.acked {
		t.Fatalf("expected retryable failure to avoid ack")
	}
	if !delivery.nacked || !delivery.nackOpts.Requeue {
		t.Fatalf("expected retryable failure to requeue, got %+v", delivery.nackOpts)
	}
	if delivery.nackOpts.Delay != 2*time.Second {
		t.Fatalf("expected retry hint as nack delay, got %s", delivery.nackOpts.Delay)
	}

	delivery = &stubCoreDelivery{msg: baseMessage}
	executor.status = &core.Status{Category: core.StatusCategoryAccessDenied}
	executor.err = errors.New("access denied")
	if err := retryWorker.Process(ctx, delivery); err != nil {
		t.Fatalf("process terminal cycle: %v", err)
	}
	if !delivery.acked {
		t.Fatalf("expected terminal failure to ack, ledger already recorded it")
	}

	delivery = &stubCoreDelivery{msg: &core.JobExecutionMessage{
		JobID:      JobIDRetryCycle,
		Parameters: map[string]any{paramOperation: "enable"},
	}}
	if err := retryWorker.Process(ctx, delivery); err == nil {
		t.Fatalf("expected malformed payload to error")
	}
	if !delivery.nacked || !delivery.nackOpts.DeadLetter {
		t.Fatalf("expected malformed payload to dead-letter, got %+v", delivery.nackOpts)
	}
}

func TestMessageMappingRoundTrip(t *testing.T) {
	original := &core.JobExecutionMessage{
		JobID:          JobIDActivityPrune,
		ScriptPath:     "pushregistry.activity.prune",
		Parameters:     map[string]any{"row_cap": 10000},
		IdempotencyKey: "idem-prune",
		DedupPolicy:    "drop",
	}

	converted := ToExecutionMessage(original)
	if converted == nil {
		t.Fatalf("expected converted message")
	}
	roundTrip := FromExecutionMessage(converted)
	if roundTrip.JobID != original.JobID {
		t.Fatalf("expected job id %q, got %q", original.JobID, roundTrip.JobID)
	}
	if roundTrip.ScriptPath != original.ScriptPath {
		t.Fatalf("expected script path %q, got %q", original.ScriptPath, roundTrip.ScriptPath)
	}
	if roundTrip.IdempotencyKey != original.IdempotencyKey {
		t.Fatalf("expected idempotency key %q, got %q", original.IdempotencyKey, roundTrip.IdempotencyKey)
	}
	if roundTrip.DedupPolicy != original.DedupPolicy {
		t.Fatalf("expected dedup policy %q, got %q", original.DedupPolicy, roundTrip.DedupPolicy)
	}
	if roundTrip.Parameters["row_cap"] != 10000 {
		t.Fatalf("expected parameters to survive mapping")
	}
}

func TestEnqueueAndDequeueAdapters(t *testing.T) {
	ctx := context.Background()
	enqueuer := &stubQueueEnqueuer{}
	enqueueAdapter := NewEnqueuerAdapter(enqueuer)

	msg := &core.JobExecutionMessage{
		JobID:          JobIDRetryCycle,
		Parameters:     map[string]any{paramURL: "https://ps.pndsn.com/v1/push"},
		IdempotencyKey: "idem-queue",
	}
	if err := enqueueAdapter.Enqueue(ctx, msg); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if enqueuer.last == nil || enqueuer.last.JobID != JobIDRetryCycle {
		t.Fatalf("expected mapped go-job message")
	}

	dequeuer := &stubQueueDequeuer{delivery: &stubQueueDelivery{msg: enqueuer.last}}
	dequeueAdapter := NewDequeuerAdapter(dequeuer, RetryPolicy{})
	delivery, err := dequeueAdapter.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	got := delivery.Message()
	if got == nil || got.JobID != JobIDRetryCycle {
		t.Fatalf("expected mapped core message")
	}
	if err := delivery.Ack(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if !dequeuer.delivery.(*stubQueueDelivery).acked {
		t.Fatalf("expected ack on underlying delivery")
	}
}

func TestNackRetryPolicyBoundaries(t *testing.T) {
	ctx := context.Background()
	rawDelivery := &stubQueueDelivery{
		msg: &job.ExecutionMessage{
			JobID: JobIDRetryCycle,
		},
	}
	adapter := NewDeliveryAdapter(rawDelivery, RetryPolicy{
		MaxAttempts:     3,
		MaxDelay:        10 * time.Second,
		DeadLetterOnMax: true,
	})

	if err := adapter.NackForAttempt(ctx, core.JobNackOptions{
		Delay:   30 * time.Second,
		Requeue: true,
		Reason:  "transient",
	}, 1); err != nil {
		t.Fatalf("nack attempt 1: %v", err)
	}
	if rawDelivery.nackOpts.Delay != 10*time.Second {
		t.Fatalf("expected delay to be bounded, got %s", rawDelivery.nackOpts.Delay)
	}
	if !rawDelivery.nackOpts.Requeue {
		t.Fatalf("expected message to be requeued before max attempts")
	}

	if err := adapter.NackForAttempt(ctx, core.JobNackOptions{
		Delay:   time.Second,
		Requeue: true,
		Reason:  "still failing",
	}, 3); err != nil {
		t.Fatalf("nack max attempt: %v", err)
	}
	if rawDelivery.nackOpts.Requeue {
		t.Fatalf("expected no requeue once max attempts is reached")
	}
	if !rawDelivery.nackOpts.DeadLetter {
		t.Fatalf("expected dead letter on max attempts")
	}
}

func TestWorkerHookAdapterEventMapping(t *testing.T) {
	now := time.Now().UTC().Add(-time.Second)
	coreHook := &capturingHook{}
	adapter := NewWorkerHookAdapter(coreHook)

	evt := worker.Event{
		Message: &job.ExecutionMessage{
			JobID:          JobIDRetryCycle,
			IdempotencyKey: "idem-hook",
		},
		Attempt:   2,
		Delay:     5 * time.Second,
		Err:       errors.New("retry"),
		StartedAt: now,
		Duration:  250 * time.Millisecond,
	}

	adapter.OnRetry(context.Background(), evt)
	if coreHook.last.Message == nil {
		t.Fatalf("expected worker message mapping")
	}
	if coreHook.last.Message.JobID != JobIDRetryCycle {
		t.Fatalf("expected job id mapping, got %q", coreHook.last.Message.JobID)
	}
	if coreHook.last.Attempt != 2 {
		t.Fatalf("expected attempt 2, got %d", coreHook.last.Attempt)
	}
	if coreHook.last.Delay != 5*time.Second {
		t.Fatalf("expected delay 5s, got %s", coreHook.last.Delay)
	}
	if coreHook.last.Duration != 250*time.Millisecond {
		t.Fatalf("expected duration mapping")
	}
	if coreHook.last.StartedAt.IsZero() {
		t.Fatalf("expected started_at mapping")
	}
	if coreHook.last.Err == nil || coreHook.last.Err.Error() != "retry" {
		t.Fatalf("expected error mapping")
	}
}

type capturingJobEnqueuer struct {
	last *core.JobExecutionMessage
}

func (s *capturingJobEnqueuer) Enqueue(_ context.Context, msg *core.JobExecutionMessage) error {
	s.last = msg
	return nil
}

type stubQueuedExecutor struct {
	status *core.Status
	err    error
}

func (s *stubQueuedExecutor) ExecuteQueued(context.Context, core.QueuedOperation) (*core.Status, error) {
	return s.status, s.err
}

type stubCoreDelivery struct {
	msg      *core.JobExecutionMessage
	acked    bool
	nacked   bool
	nackOpts core.JobNackOptions
}

func (s *stubCoreDelivery) Message() *core.JobExecutionMessage {
	return s.msg
}

func (s *stubCoreDelivery) Ack(context.Context) error {
	s.acked = true
	return nil
}

func (s *stubCoreDelivery) Nack(_ context.Context, opts core.JobNackOptions) error {
	s.nacked = true
	s.nackOpts = opts
	return nil
}

type stubQueueEnqueuer struct {
	last *job.ExecutionMessage
}

func (s *stubQueueEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	s.last = msg
	return nil
}

type stubQueueDequeuer struct {
	delivery queue.Delivery
}

func (s *stubQueueDequeuer) Dequeue(context.Context) (queue.Delivery, error) {
	return s.delivery, nil
}

type stubQueueDelivery struct {
	msg      *job.ExecutionMessage
	acked    bool
	nackOpts queue.NackOptions
}

func (s *stubQueueDelivery) Message() *job.ExecutionMessage {
	return s.msg
}

func (s *stubQueueDelivery) Ack(context.Context) error {
	s.acked = true
	return nil
}

func (s *stubQueueDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	s.nackOpts = opts
	return nil
}

type capturingHook struct {
	last core.JobWorkerEvent
}

func (h *capturingHook) OnStart(context.Context, core.JobWorkerEvent)   {}
func (h *capturingHook) OnSuccess(context.Context, core.JobWorkerEvent) {}
func (h *capturingHook) OnFailure(context.Context, core.JobWorkerEvent) {}
func (h *capturingHook) OnRetry(_ context.Context, event core.JobWorkerEvent) {
	h.last = event
}
