// Package gocommand bridges the push registry's command and query handlers
// onto the go-command registry and dispatcher, including the queue resolver
// hook used to mirror retry commands into the job queue.
package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	pushcommand "github.com/goliatone/go-pushregistry/command"
	pushquery "github.com/goliatone/go-pushregistry/query"
)

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) ready() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return nil
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if err := a.ready(); err != nil {
		return err
	}
	return a.registry.RegisterCommand(cmd)
}

func (a *RegistryAdapter) RegisterQuery(qry any) error {
	if err := a.ready(); err != nil {
		return err
	}
	return a.registry.RegisterCommand(qry)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if err := a.ready(); err != nil {
		return err
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver routes messages whose resolver key matches onto the
// go-job queue registry, which is how queued retry cycles reach workers.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a.ready() != nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if err := a.ready(); err != nil {
		return err
	}
	return a.registry.Initialize()
}

func SubscribeCommand[T any](cmd command.Commander[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
}

func SubscribeCommandFunc[T any](handler command.CommandFunc[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(handler, runnerOpts...)
}

func SubscribeQuery[T any, R any](qry command.Querier[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func SubscribeQueryFunc[T any, R any](qry command.QueryFunc[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if err := adapter.ready(); err != nil {
		return nil, err
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if err := adapter.ready(); err != nil {
		return nil, err
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := SubscribeQuery(qry, runnerOpts...)
	if err := adapter.RegisterQuery(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// PushSubscriptionSet owns the dispatcher subscriptions created by
// RegisterPushHandlers so the whole bundle can be torn down as a unit.
type PushSubscriptionSet struct {
	subscriptions []commanddispatcher.Subscription
}

func (s *PushSubscriptionSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.subscriptions)
}

func (s *PushSubscriptionSet) Unsubscribe() {
	if s == nil {
		return
	}
	for _, sub := range s.subscriptions {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
	s.subscriptions = nil
}

func (s *PushSubscriptionSet) track(sub commanddispatcher.Subscription) {
	s.subscriptions = append(s.subscriptions, sub)
}

// RegisterPushHandlers registers the full push handler surface on one
// registry/dispatcher pair: enable, disable, disable-all, execute-queued
// and prune commands, the audit query, and the activity listing query
// when a reader is supplied. A failed registration unwinds every
// subscription already created.
func RegisterPushHandlers(
	adapter *RegistryAdapter,
	mutator pushcommand.MutatingService,
	auditor pushquery.AuditingService,
	reader pushquery.ActivityReader,
	runnerOpts ...runner.Option,
) (*PushSubscriptionSet, error) {
	if err := adapter.ready(); err != nil {
		return nil, err
	}
	if mutator == nil {
		return nil, fmt.Errorf("gocommand: mutating service is required")
	}
	if auditor == nil {
		return nil, fmt.Errorf("gocommand: auditing service is required")
	}

	set := &PushSubscriptionSet{}
	fail := func(err error) (*PushSubscriptionSet, error) {
		set.Unsubscribe()
		return nil, err
	}

	enable, err := RegisterAndSubscribe(adapter, pushcommand.NewEnablePushCommand(mutator), runnerOpts...)
	if err != nil {
		return fail(err)
	}
	set.track(enable)

	disable, err := RegisterAndSubscribe(adapter, pushcommand.NewDisablePushCommand(mutator), runnerOpts...)
	if err != nil {
		return fail(err)
	}
	set.track(disable)

	disableAll, err := RegisterAndSubscribe(adapter, pushcommand.NewDisableAllPushCommand(mutator), runnerOpts...)
	if err != nil {
		return fail(err)
	}
	set.track(disableAll)

	executeQueued, err := RegisterAndSubscribe(adapter, pushcommand.NewExecuteQueuedCommand(mutator), runnerOpts...)
	if err != nil {
		return fail(err)
	}
	set.track(executeQueued)

	prune, err := RegisterAndSubscribe(adapter, pushcommand.NewPruneActivityCommand(mutator), runnerOpts...)
	if err != nil {
		return fail(err)
	}
	set.track(prune)

	audit, err := RegisterAndSubscribeQuery(adapter, pushquery.NewAuditPushQuery(auditor), runnerOpts...)
	if err != nil {
		return fail(err)
	}
	set.track(audit)

	if reader != nil {
		list, err := RegisterAndSubscribeQuery(adapter, pushquery.NewListActivityQuery(reader), runnerOpts...)
		if err != nil {
			return fail(err)
		}
		set.track(list)
	}

	return set, nil
}
