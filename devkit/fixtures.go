package devkit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-pushregistry/core"
)

const fixtureActivityPageSize = 25

// AckResponse is the modification acknowledgment the push registry returns:
// a 200 with the [1, "Modified Channels"] tuple body.
func AckResponse() core.TransportResponse {
	return core.TransportResponse{
		StatusCode: 200,
		Headers:    map[string]string{"Content-Type": "text/javascript"},
		Body:       []byte(`[1, "Modified Channels"]`),
	}
}

// AuditResponse is a successful audit payload listing the registered
// channels as a JSON string array.
func AuditResponse(channels ...string) core.TransportResponse {
	if channels == nil {
		channels = []string{}
	}
	body, err := json.Marshal(channels)
	if err != nil {
		body = []byte(`[]`)
	}
	return core.TransportResponse{
		StatusCode: 200,
		Headers:    map[string]string{"Content-Type": "text/javascript"},
		Body:       body,
	}
}

// ServiceErrorResponse is the error envelope the push registry returns on
// non-2xx outcomes.
func ServiceErrorResponse(statusCode int, message string) core.TransportResponse {
	body, err := json.Marshal(map[string]any{
		"status":  statusCode,
		"error":   true,
		"service": "push",
		"message": message,
	})
	if err != nil {
		body = []byte(`{"error":true,"service":"push"}`)
	}
	return core.TransportResponse{
		StatusCode: statusCode,
		Headers:    map[string]string{"Content-Type": "text/javascript"},
		Body:       body,
	}
}

// ThrottledResponse is a 429 carrying a Retry-After hint in seconds.
func ThrottledResponse(retryAfterSeconds int) core.TransportResponse {
	response := ServiceErrorResponse(429, "Too many requests")
	if retryAfterSeconds > 0 {
		response.Headers["Retry-After"] = strconv.Itoa(retryAfterSeconds)
	}
	return response
}

// ActivityStoreFixture is an in-memory activity ledger with the same
// defaulting, filtering, and pruning behavior as the SQL-backed store.
type ActivityStoreFixture struct {
	mu      sync.Mutex
	now     func() time.Time
	entries []core.ActivityEntry
}

func NewActivityStoreFixture() *ActivityStoreFixture {
	return &ActivityStoreFixture{
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (f *ActivityStoreFixture) Record(_ context.Context, entry core.ActivityEntry) (core.ActivityEntry, error) {
	if f == nil {
		return core.ActivityEntry{}, fmt.Errorf("devkit: activity store fixture is nil")
	}
	if err := entry.Operation.Validate(); err != nil {
		return core.ActivityEntry{}, fmt.Errorf("devkit: %w", err)
	}
	if strings.TrimSpace(entry.TokenHash) == "" {
		return core.ActivityEntry{}, fmt.Errorf("devkit: activity token hash is required")
	}

	stored := cloneActivityEntry(entry)
	if strings.TrimSpace(stored.ID) == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = f.currentTime()
	}
	stored.CreatedAt = stored.CreatedAt.UTC()
	if strings.TrimSpace(stored.Outcome) == "" {
		stored.Outcome = "failure"
	}
	if strings.TrimSpace(string(stored.PushType)) == "" {
		stored.PushType = core.PushTypeAPNS
	}
	if strings.TrimSpace(string(stored.Category)) == "" {
		stored.Category = core.StatusCategoryAcknowledgment
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, stored)
	return cloneActivityEntry(stored), nil
}

func (f *ActivityStoreFixture) List(_ context.Context, filter core.ActivityFilter) ([]core.ActivityEntry, int, error) {
	if f == nil {
		return nil, 0, fmt.Errorf("devkit: activity store fixture is nil")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = fixtureActivityPageSize
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	filtered := make([]core.ActivityEntry, 0, len(f.entries))
	for index := len(f.entries) - 1; index >= 0; index-- {
		entry := f.entries[index]
		if !matchesActivityFilter(entry, filter) {
			continue
		}
		filtered = append(filtered, entry)
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	total := len(filtered)
	if offset >= total {
		return []core.ActivityEntry{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := make([]core.ActivityEntry, 0, end-offset)
	for _, entry := range filtered[offset:end] {
		page = append(page, cloneActivityEntry(entry))
	}
	return page, total, nil
}

func (f *ActivityStoreFixture) Prune(_ context.Context, olderThan time.Duration, rowCap int) (int64, error) {
	if f == nil {
		return 0, fmt.Errorf("devkit: activity store fixture is nil")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var deleted int64
	if olderThan > 0 {
		cutoff := f.currentTime().Add(-olderThan)
		kept := f.entries[:0]
		for _, entry := range f.entries {
			if entry.CreatedAt.Before(cutoff) {
				deleted++
				continue
			}
			kept = append(kept, entry)
		}
		f.entries = kept
	}

	if rowCap > 0 && len(f.entries) > rowCap {
		sort.SliceStable(f.entries, func(i, j int) bool {
			return f.entries[i].CreatedAt.Before(f.entries[j].CreatedAt)
		})
		excess := len(f.entries) - rowCap
		f.entries = append([]core.ActivityEntry(nil), f.entries[excess:]...)
		deleted += int64(excess)
	}
	return deleted, nil
}

// Snapshot returns a deep copy of every stored ledger row in insertion order.
func (f *ActivityStoreFixture) Snapshot() []core.ActivityEntry {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]core.ActivityEntry, 0, len(f.entries))
	for _, entry := range f.entries {
		out = append(out, cloneActivityEntry(entry))
	}
	return out
}

func (f *ActivityStoreFixture) currentTime() time.Time {
	if f != nil && f.now != nil {
		return f.now().UTC()
	}
	return time.Now().UTC()
}

func matchesActivityFilter(entry core.ActivityEntry, filter core.ActivityFilter) bool {
	if operation := strings.TrimSpace(filter.Operation); operation != "" && string(entry.Operation) != operation {
		return false
	}
	if tokenHash := strings.TrimSpace(filter.TokenHash); tokenHash != "" && entry.TokenHash != tokenHash {
		return false
	}
	if outcome := strings.TrimSpace(filter.Outcome); outcome != "" && entry.Outcome != outcome {
		return false
	}
	if filter.Since != nil && entry.CreatedAt.Before(filter.Since.UTC()) {
		return false
	}
	return true
}

func cloneActivityEntry(in core.ActivityEntry) core.ActivityEntry {
	out := in
	out.Metadata = map[string]any{}
	for key, value := range in.Metadata {
		out.Metadata[key] = value
	}
	return out
}

// QueueFixture records parked retry cycles and optionally fails enqueues to
// drive error-path tests.
type QueueFixture struct {
	mu     sync.Mutex
	err    error
	queued []core.QueuedOperation
}

func NewQueueFixture() *QueueFixture {
	return &QueueFixture{}
}

// FailWith makes every following Enqueue return err. Pass nil to restore
// normal recording.
func (q *QueueFixture) FailWith(err error) {
	if q == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.err = err
}

func (q *QueueFixture) Enqueue(_ context.Context, queued core.QueuedOperation) error {
	if q == nil {
		return fmt.Errorf("devkit: queue fixture is nil")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	stored := queued
	stored.Request = cloneTransportRequest(queued.Request)
	q.queued = append(q.queued, stored)
	return nil
}

// Queued returns a deep copy of every recorded cycle in enqueue order.
func (q *QueueFixture) Queued() []core.QueuedOperation {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]core.QueuedOperation, 0, len(q.queued))
	for _, item := range q.queued {
		cloned := item
		cloned.Request = cloneTransportRequest(item.Request)
		out = append(out, cloned)
	}
	return out
}

var (
	_ core.ActivityStore = (*ActivityStoreFixture)(nil)
	_ core.QueueEnqueuer = (*QueueFixture)(nil)
)
