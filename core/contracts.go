package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// TransportRequest is the immutable descriptor handed to transport adapters.
// Builders return fully populated values; the runtime clones before every
// attempt so adapters can never mutate the original.
type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Metadata             map[string]any
	Timeout              time.Duration
	MaxResponseBodyBytes int64
	Idempotency          string
}

// TransportResponse is the raw result surfaced by a transport adapter before
// classification.
type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

type TransportResolver interface {
	Build(kind string, config map[string]any) (TransportAdapter, error)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// RequestSigner decorates a descriptor with authentication material before it
// is frozen for dispatch. Implementations must be pure: equal inputs under an
// equal clock produce equal outputs, so retried descriptors stay identical.
type RequestSigner interface {
	Sign(ctx context.Context, req TransportRequest) (TransportRequest, error)
}

// CompletionDispatcher marshals completion callbacks onto the executor the
// caller wants them on. The runtime guarantees a dispatcher receives each
// completion at most once per cycle.
type CompletionDispatcher interface {
	Dispatch(fn func())
}

// AckCompletion receives the terminal status of a modification operation.
type AckCompletion func(status *Status)

// AuditCompletion receives the audit outcome. Exactly one argument is
// non-nil: the result on success, the status on failure.
type AuditCompletion func(result *AuditResult, status *Status)

type RateLimitKey struct {
	SubscribeKey string
	Operation    string
}

type ResponseMeta struct {
	StatusCode int
	Headers    map[string]string
	RetryAfter *time.Duration
	Metadata   map[string]any
}

type RateLimitPolicy interface {
	BeforeCall(ctx context.Context, key RateLimitKey) error
	AfterCall(ctx context.Context, key RateLimitKey, res ResponseMeta) error
}

// ActivityEntry is one ledger row describing a completed operation cycle.
// Tokens are stored as fingerprints, never raw.
type ActivityEntry struct {
	ID           string
	Operation    Operation
	PushType     PushType
	TokenHash    string
	ChannelCount int
	Outcome      string
	Category     StatusCategory
	StatusCode   int
	Attempt      int
	Idempotency  string
	Metadata     map[string]any
	CreatedAt    time.Time
}

type ActivityFilter struct {
	Operation string
	TokenHash string
	Outcome   string
	Since     *time.Time
	Limit     int
	Offset    int
}

type ActivityPage struct {
	Entries []ActivityEntry
	Total   int
	Limit   int
	Offset  int
}

type ActivityStore interface {
	Record(ctx context.Context, entry ActivityEntry) (ActivityEntry, error)
	List(ctx context.Context, filter ActivityFilter) ([]ActivityEntry, int, error)
	Prune(ctx context.Context, olderThan time.Duration, rowCap int) (int64, error)
}

type StoreProvider interface {
	ActivityStore() ActivityStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

// QueuedOperation is a retry-eligible cycle parked for deferred re-issue. The
// descriptor is carried verbatim so the re-issued attempt stays identical to
// the failed one.
type QueuedOperation struct {
	ID          string
	Operation   Operation
	PushType    PushType
	TokenHash   string
	Request     TransportRequest
	Attempt     int
	Idempotency string
	EnqueuedAt  time.Time
}

type QueueEnqueuer interface {
	Enqueue(ctx context.Context, queued QueuedOperation) error
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type CommandMessage interface {
	Type() string
}

type CommandDispatcher interface {
	Dispatch(ctx context.Context, msg any) error
}

// PushRegistry is the full operation surface of the client, the contract
// command and query handlers program against.
type PushRegistry interface {
	EnablePush(ctx context.Context, token string, channels []string, completion AckCompletion, options ...CallOption)
	DisablePush(ctx context.Context, token string, channels []string, completion AckCompletion, options ...CallOption)
	DisableAllPush(ctx context.Context, token string, completion AckCompletion, options ...CallOption)
	AuditPush(ctx context.Context, token string, completion AuditCompletion, options ...CallOption)
	EnqueueRetry(ctx context.Context, status *Status) error
	ExecuteQueued(ctx context.Context, queued QueuedOperation) (*Status, error)
	ListActivity(ctx context.Context, filter ActivityFilter) ([]ActivityEntry, int, error)
	PruneActivity(ctx context.Context) (int64, error)
}
