package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-pushregistry/core"
)

// MutatingService is the slice of the registry surface that changes
// remote registration state or the local activity ledger.
type MutatingService interface {
	EnablePush(ctx context.Context, token string, channels []string, completion core.AckCompletion, options ...core.CallOption)
	DisablePush(ctx context.Context, token string, channels []string, completion core.AckCompletion, options ...core.CallOption)
	DisableAllPush(ctx context.Context, token string, completion core.AckCompletion, options ...core.CallOption)
	ExecuteQueued(ctx context.Context, queued core.QueuedOperation) (*core.Status, error)
	PruneActivity(ctx context.Context) (int64, error)
}

type EnablePushCommand struct {
	service MutatingService
}

func NewEnablePushCommand(service MutatingService) *EnablePushCommand {
	return &EnablePushCommand{service: service}
}

func (c *EnablePushCommand) Execute(ctx context.Context, msg EnablePushMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: registration service is required")
	}
	return awaitAck(ctx, func(done core.AckCompletion) {
		c.service.EnablePush(ctx, msg.DeviceToken, msg.Channels, done, pushTypeOptions(msg.PushType)...)
	})
}

type DisablePushCommand struct {
	service MutatingService
}

func NewDisablePushCommand(service MutatingService) *DisablePushCommand {
	return &DisablePushCommand{service: service}
}

func (c *DisablePushCommand) Execute(ctx context.Context, msg DisablePushMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: registration service is required")
	}
	return awaitAck(ctx, func(done core.AckCompletion) {
		c.service.DisablePush(ctx, msg.DeviceToken, msg.Channels, done, pushTypeOptions(msg.PushType)...)
	})
}

type DisableAllPushCommand struct {
	service MutatingService
}

func NewDisableAllPushCommand(service MutatingService) *DisableAllPushCommand {
	return &DisableAllPushCommand{service: service}
}

func (c *DisableAllPushCommand) Execute(ctx context.Context, msg DisableAllPushMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: registration service is required")
	}
	return awaitAck(ctx, func(done core.AckCompletion) {
		c.service.DisableAllPush(ctx, msg.DeviceToken, done, pushTypeOptions(msg.PushType)...)
	})
}

type ExecuteQueuedCommand struct {
	service MutatingService
}

func NewExecuteQueuedCommand(service MutatingService) *ExecuteQueuedCommand {
	return &ExecuteQueuedCommand{service: service}
}

func (c *ExecuteQueuedCommand) Execute(ctx context.Context, msg ExecuteQueuedMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: registration service is required")
	}
	status, err := c.service.ExecuteQueued(ctx, msg.Queued)
	if status != nil {
		storeResult(ctx, status)
	}
	return err
}

type PruneActivityCommand struct {
	service MutatingService
}

func NewPruneActivityCommand(service MutatingService) *PruneActivityCommand {
	return &PruneActivityCommand{service: service}
}

func (c *PruneActivityCommand) Execute(ctx context.Context, msg PruneActivityMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: registration service is required")
	}
	removed, err := c.service.PruneActivity(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, removed)
	return nil
}

// awaitAck bridges the callback contract onto the command bus: the
// handler blocks until the single completion lands, then translates the
// terminal status into a bus result or error.
func awaitAck(ctx context.Context, deliver func(core.AckCompletion)) error {
	settled := make(chan *core.Status, 1)
	deliver(func(status *core.Status) {
		settled <- status
	})

	select {
	case status := <-settled:
		storeResult(ctx, status)
		if status.IsError() {
			return status.Err
		}
		return nil
	case <-ctx.Done():
		return commandWrapCancelled(ctx.Err(), "command: push operation interrupted")
	}
}

func pushTypeOptions(pushType core.PushType) []core.CallOption {
	if pushType == "" {
		return nil
	}
	return []core.CallOption{core.WithPushType(pushType)}
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
