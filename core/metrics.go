package core

import "context"

// Metric names follow pushregistry.<operation>.<measure>. The registration
// cycle operations and the supporting surface (enqueue_retry, execute_queued,
// list_activity, prune_activity) all share the same shape, so dashboards can
// template on the operation tag.
const (
	metricNamePrefix     = "pushregistry."
	metricSuffixTotal    = ".total"
	metricSuffixDuration = ".duration_ms"
)

func operationCounterName(operation string) string {
	return metricNamePrefix + operation + metricSuffixTotal
}

func operationDurationName(operation string) string {
	return metricNamePrefix + operation + metricSuffixDuration
}

// NopMetricsRecorder drops every measurement. It is installed when no
// recorder is configured so the cycle runtime never branches on nil.
type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var _ MetricsRecorder = NopMetricsRecorder{}
