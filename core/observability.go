package core

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// metricTagKeys lists the identity fields promoted from log context onto
// metric tags. Everything else stays log-only to keep tag cardinality flat.
var metricTagKeys = []string{"push_type", "category", "status_code"}

// observation is one finished operation flattened for emission.
type observation struct {
	operation string
	failed    bool
	duration  time.Duration
	errText   string
	fields    map[string]any
}

func newObservation(startedAt time.Time, operation string, err error, fields map[string]any) observation {
	operation = normalizeOperation(operation)
	if operation == "" {
		operation = "unknown"
	}
	obs := observation{
		operation: operation,
		failed:    err != nil,
		duration:  time.Since(startedAt),
		fields:    cloneFields(fields),
	}
	if err != nil {
		obs.errText = err.Error()
	}
	return obs
}

func (o observation) status() string {
	if o.failed {
		return "failure"
	}
	return "success"
}

// logContext returns the structured fields attached to the emitted line.
func (o observation) logContext() map[string]any {
	fields := cloneFields(o.fields)
	fields["event_type"] = o.operation
	fields["status"] = o.status()
	fields["duration_ms"] = o.duration.Milliseconds()
	if o.errText != "" {
		fields["error"] = o.errText
	}
	return fields
}

func (o observation) metricTags() map[string]string {
	tags := map[string]string{
		"operation": o.operation,
		"status":    o.status(),
	}
	for _, key := range metricTagKeys {
		if value, ok := tagValue(o.fields, key); ok {
			tags[key] = value
		}
	}
	return tags
}

func tagValue(fields map[string]any, key string) (string, bool) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return "", false
	}
	value := strings.TrimSpace(fmt.Sprint(raw))
	if value == "" || value == "<nil>" {
		return "", false
	}
	return value, true
}

// observeCycle records the terminal outcome of one completion cycle.
func (c *Client) observeCycle(ctx context.Context, startedAt time.Time, state operationState, status *Status) {
	if c == nil || status == nil {
		return
	}
	fields := status.fields()
	fields["channel_count"] = state.channelCount
	var err error
	if status.IsError() && status.Err != nil {
		err = status.Err
	}
	c.observeOperation(ctx, startedAt, string(state.op), err, fields)
}

func (c *Client) observeOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	if c == nil {
		return
	}
	obs := newObservation(startedAt, operation, err, fields)
	tags := obs.metricTags()

	c.recordCounter(ctx, operationCounterName(obs.operation), 1, tags)
	c.recordHistogram(ctx, operationDurationName(obs.operation), float64(obs.duration.Milliseconds()), tags)

	if obs.failed {
		c.logError(ctx, obs.operation+" failed", obs.logContext())
		return
	}
	c.logInfo(ctx, obs.operation+" succeeded", obs.logContext())
}

func (c *Client) logInfo(ctx context.Context, message string, fields map[string]any) {
	c.emit(ctx, false, message, fields)
}

func (c *Client) logError(ctx context.Context, message string, fields map[string]any) {
	c.emit(ctx, true, message, fields)
}

// emit routes a structured line through the configured logger, attaching
// fields via WithFields when the sink supports it and as sorted trailing
// key/value args otherwise.
func (c *Client) emit(ctx context.Context, isErr bool, message string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logger := c.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	if isErr {
		logger.Error(message, args...)
		return
	}
	logger.Info(message, args...)
}

func (c *Client) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if c == nil || c.metricsRecorder == nil {
		return
	}
	c.metricsRecorder.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (c *Client) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if c == nil || c.metricsRecorder == nil {
		return
	}
	c.metricsRecorder.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func cloneFields(fields map[string]any) map[string]any {
	copied := make(map[string]any, len(fields))
	maps.Copy(copied, fields)
	return copied
}

// flattenFields renders fields as logger args in deterministic key order.
func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	args := make([]any, 0, len(fields)*2)
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		args = append(args, key, fields[key])
	}
	return args
}

var operationNormalizer = strings.NewReplacer(" ", "_", "-", "_")

func normalizeOperation(operation string) string {
	return operationNormalizer.Replace(strings.TrimSpace(strings.ToLower(operation)))
}
