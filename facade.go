package pushregistry

import (
	"context"
	"fmt"

	pushcommand "github.com/goliatone/go-pushregistry/command"
	"github.com/goliatone/go-pushregistry/core"
	pushquery "github.com/goliatone/go-pushregistry/query"
)

// CommandQueryService is the client surface the facade wires handlers
// against. *core.Client satisfies it; so does any stand-in that covers the
// same operations.
type CommandQueryService interface {
	pushcommand.MutatingService
	pushquery.AuditingService
}

type Commands struct {
	Enable        *pushcommand.EnablePushCommand
	Disable       *pushcommand.DisablePushCommand
	DisableAll    *pushcommand.DisableAllPushCommand
	ExecuteQueued *pushcommand.ExecuteQueuedCommand
	PruneActivity *pushcommand.PruneActivityCommand
}

type Queries struct {
	AuditPush    *pushquery.AuditPushQuery
	ListActivity *pushquery.ListActivityQuery
}

// Facade bundles the full command and query handler set for one client so
// bus registration happens in one place.
type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	activityReader pushquery.ActivityReader
}

// WithActivityReader overrides where the list-activity query reads from.
// Without it the facade resolves a reader from the service itself.
func WithActivityReader(reader pushquery.ActivityReader) FacadeOption {
	return func(options *facadeOptions) {
		options.activityReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("pushregistry: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	reader := cfg.activityReader
	if reader == nil {
		reader = resolveActivityReader(service)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		Enable:        pushcommand.NewEnablePushCommand(service),
		Disable:       pushcommand.NewDisablePushCommand(service),
		DisableAll:    pushcommand.NewDisableAllPushCommand(service),
		ExecuteQueued: pushcommand.NewExecuteQueuedCommand(service),
		PruneActivity: pushcommand.NewPruneActivityCommand(service),
	}
	facade.queries = Queries{
		AuditPush:    pushquery.NewAuditPushQuery(service),
		ListActivity: pushquery.NewListActivityQuery(reader),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// resolveActivityReader finds a ledger reader on the service: either the
// service reads activity itself, or it exposes the backing store.
func resolveActivityReader(service CommandQueryService) pushquery.ActivityReader {
	if service == nil {
		return nil
	}
	if reader, ok := service.(pushquery.ActivityReader); ok {
		return reader
	}
	provider, ok := service.(interface {
		ActivityStore() core.ActivityStore
	})
	if !ok {
		return nil
	}
	store := provider.ActivityStore()
	if store == nil {
		return nil
	}
	return activityStoreReader{store: store}
}

// activityStoreReader adapts a bare store to the query reader contract.
type activityStoreReader struct {
	store core.ActivityStore
}

func (r activityStoreReader) ListActivity(ctx context.Context, filter core.ActivityFilter) ([]core.ActivityEntry, int, error) {
	return r.store.List(ctx, filter)
}
