package pushregistry

import "github.com/goliatone/go-pushregistry/core"

type Config = core.Config

type RetryConfig = core.RetryConfig
type ActivityConfig = core.ActivityConfig

type Option = core.Option
type CallOption = core.CallOption

type Client = core.Client

type Operation = core.Operation
type PushType = core.PushType
type Status = core.Status
type StatusCategory = core.StatusCategory
type AuditResult = core.AuditResult
type AckCompletion = core.AckCompletion
type AuditCompletion = core.AuditCompletion

type TransportRequest = core.TransportRequest
type TransportResponse = core.TransportResponse
type TransportAdapter = core.TransportAdapter
type TransportResolver = core.TransportResolver
type RequestSigner = core.RequestSigner
type CompletionDispatcher = core.CompletionDispatcher
type RetryPolicy = core.RetryPolicy
type RateLimitPolicy = core.RateLimitPolicy
type RateLimitKey = core.RateLimitKey

type ActivityEntry = core.ActivityEntry
type ActivityFilter = core.ActivityFilter
type ActivityPage = core.ActivityPage
type ActivityStore = core.ActivityStore

type QueuedOperation = core.QueuedOperation
type QueueEnqueuer = core.QueueEnqueuer

type PushRegistry = core.PushRegistry

var (
	WithLogger               = core.WithLogger
	WithLoggerProvider       = core.WithLoggerProvider
	WithMetricsRecorder      = core.WithMetricsRecorder
	WithErrorFactory         = core.WithErrorFactory
	WithErrorMapper          = core.WithErrorMapper
	WithConfigProvider       = core.WithConfigProvider
	WithOptionsResolver      = core.WithOptionsResolver
	WithTransport            = core.WithTransport
	WithTransportKind        = core.WithTransportKind
	WithTransportResolver    = core.WithTransportResolver
	WithCompletionDispatcher = core.WithCompletionDispatcher
	WithRequestSigner        = core.WithRequestSigner
	WithRetryPolicy          = core.WithRetryPolicy
	WithRateLimitPolicy      = core.WithRateLimitPolicy
	WithActivityStore        = core.WithActivityStore
	WithQueueEnqueuer        = core.WithQueueEnqueuer
	WithClock                = core.WithClock
	WithPersistenceClient    = core.WithPersistenceClient
	WithRepositoryFactory    = core.WithRepositoryFactory
	WithPushType             = core.WithPushType
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func New(cfg Config, opts ...Option) (*Client, error) {
	return core.New(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Client, error) {
	return core.Setup(cfg, opts...)
}
