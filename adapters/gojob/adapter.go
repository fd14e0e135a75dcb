// Package gojob parks retry-eligible operation cycles on the go-job queue and
// re-issues them through a worker. The frozen transport descriptor travels
// inside the job parameters so a re-issued attempt is byte-identical to the
// one that failed.
package gojob

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-pushregistry/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDRetryCycle    = "pushregistry.retry.cycle"
	JobIDActivityPrune = "pushregistry.activity.prune"
)

const (
	paramID         = "id"
	paramOperation  = "operation"
	paramPushType   = "push_type"
	paramTokenHash  = "token_hash"
	paramAttempt    = "attempt"
	paramEnqueuedAt = "enqueued_at"
	paramMethod     = "method"
	paramURL        = "url"
	paramHeaders    = "headers"
	paramQuery      = "query"
	paramBody       = "body_b64"
	paramTimeoutMS  = "timeout_ms"
	paramBodyLimit  = "max_response_body_bytes"
	paramRequestKey = "request_idempotency"
)

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts core.JobNackOptions, attempt int) core.JobNackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// QueuedOperationToExecutionMessage flattens a parked cycle into job
// parameters. The descriptor body rides base64-encoded; everything else is a
// scalar or string map so any queue backend can serialize it.
func QueuedOperationToExecutionMessage(queued core.QueuedOperation) *core.JobExecutionMessage {
	parameters := map[string]any{
		paramOperation: string(queued.Operation),
		paramPushType:  string(queued.PushType),
		paramTokenHash: queued.TokenHash,
		paramAttempt:   queued.Attempt,
		paramMethod:    queued.Request.Method,
		paramURL:       queued.Request.URL,
		paramHeaders:   stringMapToAny(queued.Request.Headers),
		paramQuery:     stringMapToAny(queued.Request.Query),
		paramTimeoutMS: queued.Request.Timeout.Milliseconds(),
		paramBodyLimit: queued.Request.MaxResponseBodyBytes,
	}
	if id := strings.TrimSpace(queued.ID); id != "" {
		parameters[paramID] = id
	}
	if len(queued.Request.Body) > 0 {
		parameters[paramBody] = base64.StdEncoding.EncodeToString(queued.Request.Body)
	}
	requestKey := strings.TrimSpace(queued.Request.Idempotency)
	if requestKey == "" {
		requestKey = strings.TrimSpace(queued.Idempotency)
	}
	if requestKey != "" {
		parameters[paramRequestKey] = requestKey
	}
	if !queued.EnqueuedAt.IsZero() {
		parameters[paramEnqueuedAt] = queued.EnqueuedAt.UTC().Format(time.RFC3339Nano)
	}

	idempotencyKey := strings.TrimSpace(queued.Idempotency)
	if idempotencyKey != "" {
		idempotencyKey = fmt.Sprintf("%s#%d", idempotencyKey, queued.Attempt)
	}
	return &core.JobExecutionMessage{
		JobID:          JobIDRetryCycle,
		Parameters:     parameters,
		IdempotencyKey: idempotencyKey,
	}
}

// QueuedOperationFromExecutionMessage rebuilds the parked cycle from job
// parameters. A payload without a usable descriptor is rejected so workers
// can dead-letter it instead of re-issuing garbage.
func QueuedOperationFromExecutionMessage(msg *core.JobExecutionMessage) (core.QueuedOperation, error) {
	if msg == nil {
		return core.QueuedOperation{}, fmt.Errorf("gojob: execution message is required")
	}
	parameters := msg.Parameters

	operation := core.Operation(paramString(parameters, paramOperation))
	if err := operation.Validate(); err != nil {
		return core.QueuedOperation{}, fmt.Errorf("gojob: %w", err)
	}
	rawURL := paramString(parameters, paramURL)
	if rawURL == "" {
		return core.QueuedOperation{}, fmt.Errorf("gojob: queued request url is required")
	}

	queued := core.QueuedOperation{
		ID:        paramString(parameters, paramID),
		Operation: operation,
		PushType:  core.PushType(paramString(parameters, paramPushType)),
		TokenHash: paramString(parameters, paramTokenHash),
		Attempt:   paramInt(parameters, paramAttempt),
		Request: core.TransportRequest{
			Method:               paramString(parameters, paramMethod),
			URL:                  rawURL,
			Headers:              paramStringMap(parameters, paramHeaders),
			Query:                paramStringMap(parameters, paramQuery),
			Timeout:              time.Duration(paramInt64(parameters, paramTimeoutMS)) * time.Millisecond,
			MaxResponseBodyBytes: paramInt64(parameters, paramBodyLimit),
			Idempotency:          paramString(parameters, paramRequestKey),
		},
	}
	queued.Idempotency = queued.Request.Idempotency
	if encoded := paramString(parameters, paramBody); encoded != "" {
		body, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return core.QueuedOperation{}, fmt.Errorf("gojob: decode request body: %w", err)
		}
		queued.Request.Body = body
	}
	if raw := paramString(parameters, paramEnqueuedAt); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return core.QueuedOperation{}, fmt.Errorf("gojob: parse enqueued_at: %w", err)
		}
		queued.EnqueuedAt = parsed.UTC()
	}
	return queued, nil
}

// ToExecutionMessage maps a registry runtime message to go-job.
func ToExecutionMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

// FromExecutionMessage maps a go-job message into the registry contract.
func FromExecutionMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

// ToNackOptions maps registry nack options to go-job.
func ToNackOptions(opts core.JobNackOptions) queue.NackOptions {
	return queue.NackOptions{
		Delay:      opts.Delay,
		Requeue:    opts.Requeue,
		DeadLetter: opts.DeadLetter,
		Reason:     opts.Reason,
	}
}

// FromNackOptions maps go-job nack options to the registry.
func FromNackOptions(opts queue.NackOptions) core.JobNackOptions {
	return core.JobNackOptions{
		Delay:      opts.Delay,
		Requeue:    opts.Requeue,
		DeadLetter: opts.DeadLetter,
		Reason:     opts.Reason,
	}
}

type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

func (a *EnqueuerAdapter) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	return a.enqueuer.Enqueue(ctx, ToExecutionMessage(msg))
}

// RetryEnqueuer satisfies the client's queue contract by flattening parked
// cycles into job messages.
type RetryEnqueuer struct {
	enqueuer core.JobEnqueuer
}

func NewRetryEnqueuer(enqueuer core.JobEnqueuer) *RetryEnqueuer {
	return &RetryEnqueuer{enqueuer: enqueuer}
}

func (r *RetryEnqueuer) Enqueue(ctx context.Context, queued core.QueuedOperation) error {
	if r == nil || r.enqueuer == nil {
		return fmt.Errorf("gojob: job enqueuer is not configured")
	}
	if strings.TrimSpace(queued.Request.URL) == "" {
		return fmt.Errorf("gojob: queued request url is required")
	}
	return r.enqueuer.Enqueue(ctx, QueuedOperationToExecutionMessage(queued))
}

// QueuedExecutor is the slice of the registry surface the retry worker needs.
type QueuedExecutor interface {
	ExecuteQueued(ctx context.Context, queued core.QueuedOperation) (*core.Status, error)
}

// RetryWorker drains parked cycles. Malformed payloads dead-letter, terminal
// failures ack (the activity ledger already recorded them), retry-eligible
// failures requeue under the bounded policy.
type RetryWorker struct {
	executor QueuedExecutor
	policy   RetryPolicy
}

func NewRetryWorker(executor QueuedExecutor, policy RetryPolicy) *RetryWorker {
	return &RetryWorker{executor: executor, policy: policy}
}

func (w *RetryWorker) Process(ctx context.Context, delivery core.JobDelivery) error {
	if w == nil || w.executor == nil {
		return fmt.Errorf("gojob: retry worker is not configured")
	}
	if delivery == nil {
		return fmt.Errorf("gojob: delivery is required")
	}

	queued, err := QueuedOperationFromExecutionMessage(delivery.Message())
	if err != nil {
		nackErr := delivery.Nack(ctx, core.JobNackOptions{
			DeadLetter: true,
			Reason:     err.Error(),
		})
		if nackErr != nil {
			return nackErr
		}
		return err
	}

	status, execErr := w.executor.ExecuteQueued(ctx, queued)
	if execErr == nil {
		return delivery.Ack(ctx)
	}
	if status != nil && status.Retryable {
		opts := w.policy.NormalizeAttempt(core.JobNackOptions{
			Delay:   status.RetryAfter,
			Requeue: true,
			Reason:  execErr.Error(),
		}, queued.Attempt)
		return delivery.Nack(ctx, opts)
	}
	return delivery.Ack(ctx)
}

type DeliveryAdapter struct {
	delivery queue.Delivery
	policy   RetryPolicy
}

func NewDeliveryAdapter(delivery queue.Delivery, policy RetryPolicy) *DeliveryAdapter {
	return &DeliveryAdapter{delivery: delivery, policy: policy}
}

func (d *DeliveryAdapter) Message() *core.JobExecutionMessage {
	if d == nil || d.delivery == nil {
		return nil
	}
	return FromExecutionMessage(d.delivery.Message())
}

func (d *DeliveryAdapter) Ack(ctx context.Context) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.delivery.Ack(ctx)
}

func (d *DeliveryAdapter) Nack(ctx context.Context, opts core.JobNackOptions) error {
	return d.NackForAttempt(ctx, opts, 0)
}

func (d *DeliveryAdapter) NackForAttempt(ctx context.Context, opts core.JobNackOptions, attempt int) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	normalized := d.policy.NormalizeAttempt(opts, attempt)
	return d.delivery.Nack(ctx, ToNackOptions(normalized))
}

type DequeuerAdapter struct {
	dequeuer queue.Dequeuer
	policy   RetryPolicy
}

func NewDequeuerAdapter(dequeuer queue.Dequeuer, policy RetryPolicy) *DequeuerAdapter {
	return &DequeuerAdapter{dequeuer: dequeuer, policy: policy}
}

func (a *DequeuerAdapter) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if a == nil || a.dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := a.dequeuer.Dequeue(ctx)
	if err != nil {
		return nil, err
	}
	return NewDeliveryAdapter(delivery, a.policy), nil
}

type WorkerHookAdapter struct {
	hook core.JobWorkerHook
}

func NewWorkerHookAdapter(hook core.JobWorkerHook) *WorkerHookAdapter {
	return &WorkerHookAdapter{hook: hook}
}

func (a *WorkerHookAdapter) OnStart(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnStart(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnSuccess(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnSuccess(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnFailure(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnFailure(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnRetry(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnRetry(ctx, mapWorkerEvent(event))
}

func mapWorkerEvent(event worker.Event) core.JobWorkerEvent {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	return core.JobWorkerEvent{
		Message:   FromExecutionMessage(message),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func stringMapToAny(in map[string]string) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func paramString(parameters map[string]any, key string) string {
	raw, ok := parameters[key]
	if !ok {
		return ""
	}
	value, ok := raw.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

func paramInt(parameters map[string]any, key string) int {
	return int(paramInt64(parameters, key))
}

func paramInt64(parameters map[string]any, key string) int64 {
	raw, ok := parameters[key]
	if !ok {
		return 0
	}
	switch typed := raw.(type) {
	case int:
		return int64(typed)
	case int64:
		return typed
	case float64:
		return int64(typed)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func paramStringMap(parameters map[string]any, key string) map[string]string {
	raw, ok := parameters[key]
	if !ok {
		return nil
	}
	switch typed := raw.(type) {
	case map[string]string:
		if len(typed) == 0 {
			return nil
		}
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			out[k] = v
		}
		return out
	case map[string]any:
		if len(typed) == 0 {
			return nil
		}
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return nil
	}
}

var (
	_ core.QueueEnqueuer = (*RetryEnqueuer)(nil)
	_ core.JobEnqueuer   = (*EnqueuerAdapter)(nil)
	_ core.JobDelivery   = (*DeliveryAdapter)(nil)
	_ core.JobDequeuer   = (*DequeuerAdapter)(nil)
	_ worker.Hook        = (*WorkerHookAdapter)(nil)
)
