package core

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	defaultRetryInitialBackoff = 200 * time.Millisecond
	defaultRetryMaxBackoff     = 5 * time.Second
)

var defaultRetryStatusCodes = []int{429, 500, 502, 503, 504}

// RetryPolicy controls the automatic in-cycle retry loop. The default gives
// one attempt per cycle: failures surface as retry-eligible statuses and the
// caller decides when to re-issue.
type RetryPolicy struct {
	MaxAttempts          int
	InitialBackoff       time.Duration
	MaxBackoff           time.Duration
	RetryableStatusCodes []int
	Sleep                func(ctx context.Context, delay time.Duration) error
}

func normalizeRetryPolicy(policy RetryPolicy, cfg RetryConfig) RetryPolicy {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = cfg.InitialBackoff
	}
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = defaultRetryInitialBackoff
	}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = cfg.MaxBackoff
	}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = defaultRetryMaxBackoff
	}
	if policy.MaxBackoff < policy.InitialBackoff {
		policy.MaxBackoff = policy.InitialBackoff
	}
	if len(policy.RetryableStatusCodes) == 0 {
		policy.RetryableStatusCodes = append([]int(nil), defaultRetryStatusCodes...)
	}
	return policy
}

// Client coordinates the full operation cycle: validate, build, execute,
// classify, dispatch. It never performs network I/O itself; the installed
// transport adapter owns the wire.
type Client struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	transport       TransportAdapter
	dispatcher      CompletionDispatcher
	signer          RequestSigner
	retryPolicy     RetryPolicy
	rateLimitPolicy RateLimitPolicy
	activityStore   ActivityStore
	queue           QueueEnqueuer
	builder         *RequestBuilder
	now             func() time.Time
}

// New builds a client from runtime config plus functional options. Config
// resolution runs defaults, the config provider, and the runtime overrides
// through the layered resolver before anything is wired.
func New(cfg Config, options ...Option) (*Client, error) {
	builder := defaultClientBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("pushregistry", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("pushregistry"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.dispatcher == nil {
		builder.dispatcher = InlineCompletionDispatcher{}
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.transport == nil && builder.resolver != nil {
		kind := strings.TrimSpace(strings.ToLower(builder.transportKind))
		if kind == "" {
			kind = "rest"
		}
		adapter, buildErr := builder.resolver.Build(kind, nil)
		if buildErr != nil {
			return nil, mapBuildError(builder.errorMapper, buildErr)
		}
		builder.transport = adapter
	}

	if builder.activityStore == nil && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			storeProvider, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			if storeProvider != nil {
				builder.activityStore = storeProvider.ActivityStore()
			}
		} else if storeProvider, ok := builder.repositoryFactory.(StoreProvider); ok {
			builder.activityStore = storeProvider.ActivityStore()
		}
	}

	if builder.signer == nil && strings.TrimSpace(finalConfig.SecretKey) != "" {
		builder.signer = NewHMACRequestSigner(finalConfig.SecretKey, builder.now)
	}

	return &Client{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorFactory:    builder.errorFactory,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		transport:       builder.transport,
		dispatcher:      builder.dispatcher,
		signer:          builder.signer,
		retryPolicy:     builder.retryPolicy,
		rateLimitPolicy: builder.rateLimitPolicy,
		activityStore:   builder.activityStore,
		queue:           builder.queue,
		builder:         NewRequestBuilder(finalConfig),
		now:             builder.now,
	}, nil
}

// Setup is an alias for New kept for symmetry with sibling modules.
func Setup(cfg Config, options ...Option) (*Client, error) {
	return New(cfg, options...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (c *Client) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.config
}

// Transport exposes the installed adapter, mainly for wiring checks.
func (c *Client) Transport() TransportAdapter {
	if c == nil {
		return nil
	}
	return c.transport
}

type callSettings struct {
	pushType PushType
}

type CallOption func(*callSettings)

// WithPushType overrides the configured push type for a single call.
func WithPushType(pushType PushType) CallOption {
	return func(s *callSettings) {
		s.pushType = pushType
	}
}

func (c *Client) resolveCallSettings(options []CallOption) callSettings {
	settings := callSettings{pushType: c.config.pushType()}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&settings)
	}
	if settings.pushType.Validate() != nil {
		settings.pushType = c.config.pushType()
	}
	return settings
}

// EnablePush registers the device token for push delivery on each channel.
// The completion fires exactly once with the terminal status of the cycle.
func (c *Client) EnablePush(ctx context.Context, token string, channels []string, completion AckCompletion, options ...CallOption) {
	c.executeModification(ctx, OperationEnable, token, channels, completion, options)
}

// DisablePush removes the device token's push registration from each channel.
func (c *Client) DisablePush(ctx context.Context, token string, channels []string, completion AckCompletion, options ...CallOption) {
	c.executeModification(ctx, OperationDisable, token, channels, completion, options)
}

// DisableAllPush removes every push registration held for the device token.
// Channel input is intentionally absent: the operation never carries channel
// data.
func (c *Client) DisableAllPush(ctx context.Context, token string, completion AckCompletion, options ...CallOption) {
	c.executeModification(ctx, OperationDisableAll, token, nil, completion, options)
}

// AuditPush fetches the channels currently enabled for the device token. The
// completion receives the result on success or the error status on failure,
// never both.
func (c *Client) AuditPush(ctx context.Context, token string, completion AuditCompletion, options ...CallOption) {
	if c == nil {
		return
	}
	startedAt := time.Now().UTC()
	settings := c.resolveCallSettings(options)
	state := operationState{
		op:              OperationAudit,
		pushType:        settings.pushType,
		tokenHash:       HashDeviceToken(token),
		auditCompletion: completion,
		attempt:         1,
	}

	input, verr := validateOperationInput(OperationAudit, token, nil)
	if verr != nil {
		c.finishValidation(ctx, startedAt, state, verr)
		return
	}
	request, err := c.prepareRequest(ctx, state.op, settings.pushType, input)
	if err != nil {
		c.finishValidation(ctx, startedAt, state, pushErrorMapper(err))
		return
	}
	state.request = request
	c.runCycle(ctx, startedAt, state)
}

func (c *Client) executeModification(
	ctx context.Context,
	op Operation,
	token string,
	channels []string,
	completion AckCompletion,
	options []CallOption,
) {
	if c == nil {
		return
	}
	startedAt := time.Now().UTC()
	settings := c.resolveCallSettings(options)
	state := operationState{
		op:            op,
		pushType:      settings.pushType,
		tokenHash:     HashDeviceToken(token),
		channelCount:  len(NormalizeChannels(channels)),
		ackCompletion: completion,
		attempt:       1,
	}

	input, verr := validateOperationInput(op, token, channels)
	if verr != nil {
		c.finishValidation(ctx, startedAt, state, verr)
		return
	}
	state.channelCount = len(input.Channels)
	request, err := c.prepareRequest(ctx, op, settings.pushType, input)
	if err != nil {
		c.finishValidation(ctx, startedAt, state, pushErrorMapper(err))
		return
	}
	state.request = request
	c.runCycle(ctx, startedAt, state)
}

// prepareRequest builds and, when a signer is installed, signs the
// descriptor. The returned value is frozen: retries reuse it verbatim.
func (c *Client) prepareRequest(ctx context.Context, op Operation, pushType PushType, input validatedInput) (TransportRequest, error) {
	request, err := c.builder.Build(op, pushType, input.Token, input.Channels)
	if err != nil {
		return TransportRequest{}, err
	}
	if c.signer == nil {
		return request, nil
	}
	signed, err := c.signer.Sign(ctx, request)
	if err != nil {
		return TransportRequest{}, fmt.Errorf("core: request signing failed: %w", err)
	}
	return signed, nil
}

// operationState carries one completion cycle through execution. The request
// descriptor inside is never mutated after prepare.
type operationState struct {
	op              Operation
	pushType        PushType
	tokenHash       string
	channelCount    int
	request         TransportRequest
	ackCompletion   AckCompletion
	auditCompletion AuditCompletion
	attempt         int
}

// runCycle executes one full cycle: transport attempts under the retry
// policy, classification, retry arming, ledger write, and exactly-once
// completion dispatch.
func (c *Client) runCycle(ctx context.Context, startedAt time.Time, state operationState) {
	gate := &completionGate{}
	status, result := c.executeAttempts(ctx, state)

	if status.Retryable {
		next := state
		next.attempt = status.Attempt + 1
		status.armRetry(func(retryCtx context.Context) {
			c.runCycle(retryCtx, time.Now().UTC(), next)
		})
	}

	c.recordActivity(ctx, state, status)
	c.dispatchCompletion(gate, state, status, result)
	c.observeCycle(ctx, startedAt, state, status)
}

// executeAttempts drives the transport under the retry policy and returns
// the terminal classification of the cycle.
func (c *Client) executeAttempts(ctx context.Context, state operationState) (*Status, *AuditResult) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.transport == nil {
		verr := newPushError("core: transport adapter is required", goerrors.CategoryValidation, PushErrorBadInput)
		status := validationStatus(state.op, state.pushType, verr)
		status.Attempt = state.attempt
		status.Idempotency = state.request.Idempotency
		status.TokenHash = state.tokenHash
		status.Request = cloneTransportRequest(state.request)
		return status, nil
	}

	policy := normalizeRetryPolicy(c.retryPolicy, c.config.Retry)
	rateLimitKey := RateLimitKey{
		SubscribeKey: c.config.SubscribeKey,
		Operation:    string(state.op),
	}

	var status *Status
	var result *AuditResult
	attempt := state.attempt
	for budget := 0; budget < policy.MaxAttempts; budget++ {
		if budget > 0 {
			delay := retryDelayForAttempt(policy, budget, status)
			if err := sleepRetry(ctx, policy.Sleep, delay); err != nil {
				cancelled, _ := classifyResult(state.op, state.pushType, state.request, TransportResponse{}, err)
				cancelled.Attempt = attempt
				cancelled.TokenHash = state.tokenHash
				return cancelled, nil
			}
			attempt++
		}

		if c.rateLimitPolicy != nil {
			if err := c.rateLimitPolicy.BeforeCall(ctx, rateLimitKey); err != nil {
				status = c.throttledStatus(state, attempt, err)
				if !shouldContinueAttempts(policy, budget, status) {
					return status, nil
				}
				continue
			}
		}

		response, callErr := c.transport.Do(ctx, cloneTransportRequest(state.request))
		status, result = classifyResult(state.op, state.pushType, state.request, response, callErr)
		status.Attempt = attempt
		status.TokenHash = state.tokenHash

		if c.rateLimitPolicy != nil && callErr == nil {
			meta := ResponseMeta{
				StatusCode: response.StatusCode,
				Headers:    copyStringMap(response.Headers),
				Metadata:   copyAnyMap(response.Metadata),
			}
			if status.RetryAfter > 0 {
				retryAfter := status.RetryAfter
				meta.RetryAfter = &retryAfter
			}
			if err := c.rateLimitPolicy.AfterCall(ctx, rateLimitKey, meta); err != nil {
				c.logError(ctx, "rate limit state update failed", map[string]any{
					"operation": string(state.op),
					"error":     err.Error(),
				})
			}
		}

		if !status.IsError() {
			return status, result
		}
		if !shouldContinueAttempts(policy, budget, status) {
			return status, nil
		}
	}
	return status, nil
}

func shouldContinueAttempts(policy RetryPolicy, budget int, status *Status) bool {
	if status == nil || !status.Retryable {
		return false
	}
	if budget+1 >= policy.MaxAttempts {
		return false
	}
	if status.StatusCode == 0 {
		return true
	}
	return slices.Contains(policy.RetryableStatusCodes, status.StatusCode)
}

func retryDelayForAttempt(policy RetryPolicy, budget int, previous *Status) time.Duration {
	if previous != nil && previous.RetryAfter > 0 {
		return previous.RetryAfter
	}
	delay := policy.InitialBackoff
	for i := 1; i < budget; i++ {
		delay *= 2
		if delay >= policy.MaxBackoff {
			return policy.MaxBackoff
		}
	}
	if delay > policy.MaxBackoff {
		return policy.MaxBackoff
	}
	return delay
}

func sleepRetry(ctx context.Context, sleepFn func(ctx context.Context, delay time.Duration) error, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if sleepFn != nil {
		return sleepFn(ctx, delay)
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) throttledStatus(state operationState, attempt int, cause error) *Status {
	status := &Status{
		Operation:   state.op,
		PushType:    state.pushType,
		Category:    StatusCategoryServer,
		StatusCode:  429,
		Retryable:   true,
		Attempt:     attempt,
		Idempotency: state.request.Idempotency,
		TokenHash:   state.tokenHash,
		Request:     cloneTransportRequest(state.request),
	}
	if hinted, ok := cause.(interface{ RetryHint() time.Duration }); ok {
		status.RetryAfter = hinted.RetryHint()
	}
	status.Err = buildStatusError(*status, cause.Error(), cause)
	return status
}

func (c *Client) finishValidation(ctx context.Context, startedAt time.Time, state operationState, verr *goerrors.Error) {
	gate := &completionGate{}
	status := validationStatus(state.op, state.pushType, verr)
	status.Attempt = state.attempt
	status.TokenHash = state.tokenHash
	c.recordActivity(ctx, state, status)
	c.dispatchCompletion(gate, state, status, nil)
	c.observeCycle(ctx, startedAt, state, status)
}

func (c *Client) dispatchCompletion(gate *completionGate, state operationState, status *Status, result *AuditResult) {
	delivered := gate.fire(c.dispatcher, func() {
		if state.op == OperationAudit {
			if state.auditCompletion == nil {
				return
			}
			if status.IsError() {
				state.auditCompletion(nil, status)
				return
			}
			state.auditCompletion(result.clone(), nil)
			return
		}
		if state.ackCompletion == nil {
			return
		}
		state.ackCompletion(status)
	})
	if !delivered {
		c.logError(context.Background(), "completion already dispatched", map[string]any{
			"operation": string(state.op),
			"attempt":   state.attempt,
		})
	}
}

func (c *Client) recordActivity(ctx context.Context, state operationState, status *Status) {
	if c == nil || c.activityStore == nil || status == nil {
		return
	}
	outcome := "success"
	if status.IsError() {
		outcome = "failure"
	}
	entry := ActivityEntry{
		Operation:    state.op,
		PushType:     state.pushType,
		TokenHash:    state.tokenHash,
		ChannelCount: state.channelCount,
		Outcome:      outcome,
		Category:     status.Category,
		StatusCode:   status.StatusCode,
		Attempt:      status.Attempt,
		Idempotency:  status.Idempotency,
		Metadata:     status.fields(),
		CreatedAt:    c.now(),
	}
	if _, err := c.activityStore.Record(ctx, entry); err != nil {
		c.logError(ctx, "activity record failed", map[string]any{
			"operation": string(state.op),
			"error":     err.Error(),
		})
	}
}

// EnqueueRetry parks a retry-eligible status on the deferred queue instead
// of re-issuing inline. The queued job carries the descriptor verbatim.
func (c *Client) EnqueueRetry(ctx context.Context, status *Status) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		err = c.mapError(err)
		c.observeOperation(ctx, startedAt, "enqueue_retry", err, fields)
	}()

	if c == nil {
		return fmt.Errorf("core: client is nil")
	}
	if c.queue == nil {
		return c.errorFactory("core: queue enqueuer is not configured", goerrors.CategoryOperation).
			WithTextCode(PushErrorRetryUnavailable)
	}
	if status == nil || !status.Retryable {
		return c.errorFactory("core: status is not retry eligible", goerrors.CategoryOperation).
			WithTextCode(PushErrorRetryUnavailable)
	}

	queued := QueuedOperation{
		Operation:   status.Operation,
		PushType:    status.PushType,
		TokenHash:   status.TokenHash,
		Request:     cloneTransportRequest(status.Request),
		Attempt:     status.Attempt + 1,
		Idempotency: status.Idempotency,
		EnqueuedAt:  c.now(),
	}
	fields["operation"] = string(status.Operation)
	fields["attempt"] = queued.Attempt
	fields["idempotency"] = queued.Idempotency
	return c.queue.Enqueue(ctx, queued)
}

// ExecuteQueued re-issues a previously parked cycle. Used by queue workers;
// there is no completion to dispatch, the status is returned directly.
func (c *Client) ExecuteQueued(ctx context.Context, queued QueuedOperation) (status *Status, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"operation":   string(queued.Operation),
		"attempt":     queued.Attempt,
		"idempotency": queued.Idempotency,
	}
	defer func() {
		err = c.mapError(err)
		c.observeOperation(ctx, startedAt, "execute_queued", err, fields)
	}()

	if c == nil {
		return nil, fmt.Errorf("core: client is nil")
	}
	if err := queued.Operation.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(queued.Request.URL) == "" {
		return nil, c.errorFactory("core: queued operation is missing its descriptor", goerrors.CategoryBadInput).
			WithTextCode(PushErrorBadInput)
	}

	attempt := queued.Attempt
	if attempt <= 0 {
		attempt = 1
	}
	state := operationState{
		op:        queued.Operation,
		pushType:  queued.PushType,
		tokenHash: queued.TokenHash,
		request:   cloneTransportRequest(queued.Request),
		attempt:   attempt,
	}
	terminal, _ := c.executeAttempts(ctx, state)
	c.recordActivity(ctx, state, terminal)
	if terminal.IsError() {
		return terminal, terminal.Err
	}
	return terminal, nil
}

// ListActivity reads the operation ledger.
func (c *Client) ListActivity(ctx context.Context, filter ActivityFilter) (entries []ActivityEntry, total int, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		err = c.mapError(err)
		c.observeOperation(ctx, startedAt, "list_activity", err, map[string]any{
			"returned": len(entries),
		})
	}()

	if c == nil {
		return nil, 0, fmt.Errorf("core: client is nil")
	}
	if c.activityStore == nil {
		return nil, 0, c.errorFactory("core: activity store is not configured", goerrors.CategoryOperation).
			WithTextCode(PushErrorInternal)
	}
	return c.activityStore.List(ctx, filter)
}

// PruneActivity trims the ledger by the configured TTL and row cap.
func (c *Client) PruneActivity(ctx context.Context) (removed int64, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		err = c.mapError(err)
		c.observeOperation(ctx, startedAt, "prune_activity", err, map[string]any{
			"removed": removed,
		})
	}()

	if c == nil {
		return 0, fmt.Errorf("core: client is nil")
	}
	if c.activityStore == nil {
		return 0, c.errorFactory("core: activity store is not configured", goerrors.CategoryOperation).
			WithTextCode(PushErrorInternal)
	}
	return c.activityStore.Prune(ctx, c.config.Activity.TTL, c.config.Activity.RowCap)
}

func (c *Client) mapError(err error) error {
	if err == nil {
		return nil
	}
	if c == nil || c.errorMapper == nil {
		return err
	}
	mapped := c.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func cloneTransportRequest(in TransportRequest) TransportRequest {
	return TransportRequest{
		Method:               in.Method,
		URL:                  in.URL,
		Headers:              copyStringMap(in.Headers),
		Query:                copyStringMap(in.Query),
		Body:                 append([]byte(nil), in.Body...),
		Metadata:             copyAnyMap(in.Metadata),
		Timeout:              in.Timeout,
		MaxResponseBodyBytes: in.MaxResponseBodyBytes,
		Idempotency:          in.Idempotency,
	}
}

func copyStringMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
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
