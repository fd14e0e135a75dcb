package gocommand

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-command"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

type wellFormedMessage struct{}

func (wellFormedMessage) Type() string { return "pushregistry.command.ok" }

type blankTypeMessage struct{}

func (blankTypeMessage) Type() string { return "" }

type selfRejectingMessage struct{}

func (selfRejectingMessage) Type() string { return "pushregistry.command.fail" }

func (selfRejectingMessage) Validate() error { return errors.New("invalid payload") }

type enrollDeviceMessage struct {
	Token string
}

func (enrollDeviceMessage) Type() string { return "pushregistry.command.test_enroll" }

type drainQueueMessage struct{}

func (drainQueueMessage) Type() string { return "pushregistry.command.test_drain" }

type channelCountMessage struct {
	Token string
}

func (channelCountMessage) Type() string { return "pushregistry.query.test_channel_count" }

func TestValidateMessageContract(t *testing.T) {
	cases := []struct {
		name    string
		message any
		wantErr bool
	}{
		{"well formed", wellFormedMessage{}, false},
		{"blank type", blankTypeMessage{}, true},
		{"self validation failure", selfRejectingMessage{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateMessageContract(tc.message)
			if tc.wantErr && err == nil {
				t.Fatalf("expected contract violation for %T", tc.message)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("expected %T to pass the contract, got %v", tc.message, err)
			}
		})
	}
}

func TestRegistryAdapter_UnconfiguredGuards(t *testing.T) {
	adapter := &RegistryAdapter{}

	if err := adapter.RegisterCommand(struct{}{}); err == nil {
		t.Fatalf("expected register to fail without a registry")
	}
	if err := adapter.Initialize(); err == nil {
		t.Fatalf("expected initialize to fail without a registry")
	}
	if adapter.HasResolver("anything") {
		t.Fatalf("expected no resolvers without a registry")
	}

	cmd := command.CommandFunc[enrollDeviceMessage](func(context.Context, enrollDeviceMessage) error { return nil })
	if _, err := RegisterAndSubscribe(adapter, cmd); err == nil {
		t.Fatalf("expected register-and-subscribe to fail without a registry")
	}

	var missing *RegistryAdapter
	if missing.Registry() != nil {
		t.Fatalf("expected nil registry from a nil adapter")
	}

	if NewRegistryAdapter(nil).Registry() == nil {
		t.Fatalf("expected the constructor to default the registry")
	}
}

func TestRegistryAndDispatchWiring(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	executed := 0
	resolverRuns := 0

	cmd := command.CommandFunc[enrollDeviceMessage](func(_ context.Context, msg enrollDeviceMessage) error {
		if msg.Token == "" {
			return errors.New("token is required")
		}
		executed++
		return nil
	})

	if _, err := RegisterAndSubscribe(adapter, cmd); err != nil {
		t.Fatalf("register and subscribe: %v", err)
	}
	if err := adapter.AddResolver("wiring-probe", func(any, command.CommandMeta, *command.Registry) error {
		resolverRuns++
		return nil
	}); err != nil {
		t.Fatalf("add resolver: %v", err)
	}
	if !adapter.HasResolver("wiring-probe") {
		t.Fatalf("expected wiring-probe resolver to be registered")
	}
	if adapter.HasResolver("absent") {
		t.Fatalf("did not expect an unregistered resolver key")
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	if resolverRuns == 0 {
		t.Fatalf("expected resolver hook to run during initialization")
	}

	for i, token := range []string{"device-1", "device-2"} {
		if err := Dispatch(context.Background(), enrollDeviceMessage{Token: token}); err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}
	if executed != 2 {
		t.Fatalf("expected both dispatches to execute, got %d", executed)
	}
}

func TestQueryRoundTripThroughDispatcher(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())

	qry := command.QueryFunc[channelCountMessage, int](func(_ context.Context, msg channelCountMessage) (int, error) {
		if msg.Token == "" {
			return 0, errors.New("token is required")
		}
		return len(msg.Token), nil
	})

	subscription, err := RegisterAndSubscribeQuery(adapter, qry)
	if err != nil {
		t.Fatalf("register and subscribe query: %v", err)
	}
	defer subscription.Unsubscribe()

	count, err := Query[channelCountMessage, int](context.Background(), channelCountMessage{Token: "device-9"})
	if err != nil {
		t.Fatalf("query through dispatcher: %v", err)
	}
	if count != len("device-9") {
		t.Fatalf("unexpected query result %d", count)
	}

	if _, err := Query[channelCountMessage, int](context.Background(), channelCountMessage{}); err == nil {
		t.Fatalf("expected handler error to surface through the dispatcher")
	}
}

func TestQueueResolverHookWiring(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	queueRegistry := jobqueuecommand.NewRegistry()

	cmd := command.CommandFunc[drainQueueMessage](func(context.Context, drainQueueMessage) error { return nil })

	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if err := adapter.RegisterCommand(cmd); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	if _, ok := queueRegistry.Get("pushregistry.command.test_drain"); !ok {
		t.Fatalf("expected command to be mirrored into the queue registry")
	}
	if _, ok := queueRegistry.Get("pushregistry.command.never_registered"); ok {
		t.Fatalf("did not expect an unregistered type in the queue registry")
	}
}
