package pushregistry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-pushregistry/core"
)

// AdapterPack is a named set of transport adapters contributed by an
// extension, registered as a unit.
type AdapterPack struct {
	Name     string
	Adapters []core.TransportAdapter
}

// WorkerHookPack is a named set of retry-worker lifecycle hooks contributed
// by an extension.
type WorkerHookPack struct {
	Name  string
	Hooks []core.JobWorkerHook
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

// AdapterRegistry is the slice of the transport registry extension packs
// install into.
type AdapterRegistry interface {
	Register(adapter core.TransportAdapter) error
}

// ExtensionHooks collects downstream contributions before the runtime is
// assembled: extra transport adapters, worker hooks, and command/query
// bundles. Application order is deterministic by pack name.
type ExtensionHooks struct {
	mu sync.RWMutex

	adapterPacks map[string]AdapterPack
	hookPacks    map[string]WorkerHookPack
	bundles      map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		adapterPacks: map[string]AdapterPack{},
		hookPacks:    map[string]WorkerHookPack{},
		bundles:      map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterAdapterPack(pack AdapterPack) error {
	if h == nil {
		return fmt.Errorf("pushregistry: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("pushregistry: adapter pack name is required")
	}
	if len(pack.Adapters) == 0 {
		return fmt.Errorf("pushregistry: adapter pack %q has no adapters", name)
	}

	normalized := AdapterPack{
		Name:     name,
		Adapters: append([]core.TransportAdapter(nil), pack.Adapters...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.adapterPacks[name]; exists {
		return fmt.Errorf("pushregistry: adapter pack %q already registered", name)
	}
	h.adapterPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterWorkerHookPack(pack WorkerHookPack) error {
	if h == nil {
		return fmt.Errorf("pushregistry: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("pushregistry: worker hook pack name is required")
	}
	if len(pack.Hooks) == 0 {
		return fmt.Errorf("pushregistry: worker hook pack %q has no hooks", name)
	}

	normalized := WorkerHookPack{
		Name:  name,
		Hooks: append([]core.JobWorkerHook(nil), pack.Hooks...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.hookPacks[name]; exists {
		return fmt.Errorf("pushregistry: worker hook pack %q already registered", name)
	}
	h.hookPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("pushregistry: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("pushregistry: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("pushregistry: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("pushregistry: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

func (h *ExtensionHooks) ApplyAdapterPacks(registry AdapterRegistry) error {
	if h == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("pushregistry: adapter registry is required")
	}

	packs := h.AdapterPacks()
	for _, pack := range packs {
		for _, adapter := range pack.Adapters {
			if adapter == nil {
				return fmt.Errorf("pushregistry: adapter pack %q contains nil adapter", pack.Name)
			}
			if err := registry.Register(adapter); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("pushregistry: command/query service is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) AdapterPacks() []AdapterPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.adapterPacks))
	for name := range h.adapterPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]AdapterPack, 0, len(names))
	for _, name := range names {
		pack := h.adapterPacks[name]
		out = append(out, AdapterPack{
			Name:     pack.Name,
			Adapters: append([]core.TransportAdapter(nil), pack.Adapters...),
		})
	}
	return out
}

// WorkerHooks returns every registered hook, ordered by pack name so worker
// composition is stable across runs.
func (h *ExtensionHooks) WorkerHooks() []core.JobWorkerHook {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.hookPacks))
	for name := range h.hookPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := []core.JobWorkerHook{}
	for _, name := range names {
		pack := h.hookPacks[name]
		out = append(out, pack.Hooks...)
	}
	return append([]core.JobWorkerHook(nil), out...)
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
