package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-pushregistry/core"
)

const (
	TypeEnablePush     = "pushregistry.command.enable"
	TypeDisablePush    = "pushregistry.command.disable"
	TypeDisableAllPush = "pushregistry.command.disable_all"
	TypeExecuteQueued  = "pushregistry.command.queued.execute"
	TypePruneActivity  = "pushregistry.command.activity.prune"
)

type EnablePushMessage struct {
	DeviceToken string
	Channels    []string
	PushType    core.PushType
}

func (EnablePushMessage) Type() string { return TypeEnablePush }

func (m EnablePushMessage) Validate() error {
	if strings.TrimSpace(m.DeviceToken) == "" {
		return fmt.Errorf("command: device push token is required")
	}
	if len(core.NormalizeChannels(m.Channels)) == 0 {
		return fmt.Errorf("command: at least one channel is required")
	}
	return validatePushType(m.PushType)
}

type DisablePushMessage struct {
	DeviceToken string
	Channels    []string
	PushType    core.PushType
}

func (DisablePushMessage) Type() string { return TypeDisablePush }

func (m DisablePushMessage) Validate() error {
	if strings.TrimSpace(m.DeviceToken) == "" {
		return fmt.Errorf("command: device push token is required")
	}
	if len(core.NormalizeChannels(m.Channels)) == 0 {
		return fmt.Errorf("command: at least one channel is required")
	}
	return validatePushType(m.PushType)
}

type DisableAllPushMessage struct {
	DeviceToken string
	PushType    core.PushType
}

func (DisableAllPushMessage) Type() string { return TypeDisableAllPush }

func (m DisableAllPushMessage) Validate() error {
	if strings.TrimSpace(m.DeviceToken) == "" {
		return fmt.Errorf("command: device push token is required")
	}
	return validatePushType(m.PushType)
}

// ExecuteQueuedMessage re-issues a parked operation cycle exactly as it
// was captured at enqueue time.
type ExecuteQueuedMessage struct {
	Queued core.QueuedOperation
}

func (ExecuteQueuedMessage) Type() string { return TypeExecuteQueued }

func (m ExecuteQueuedMessage) Validate() error {
	if err := m.Queued.Operation.Validate(); err != nil {
		return fmt.Errorf("command: %w", err)
	}
	if strings.TrimSpace(m.Queued.Request.URL) == "" {
		return fmt.Errorf("command: queued request url is required")
	}
	return nil
}

type PruneActivityMessage struct{}

func (PruneActivityMessage) Type() string { return TypePruneActivity }

func (PruneActivityMessage) Validate() error { return nil }

func validatePushType(pushType core.PushType) error {
	if strings.TrimSpace(string(pushType)) == "" {
		return nil
	}
	if err := pushType.Validate(); err != nil {
		return fmt.Errorf("command: %w", err)
	}
	return nil
}
