package transport

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-pushregistry/core"
)

type AdapterFactory func(config map[string]any) (core.TransportAdapter, error)

// registryEntry carries one kind's wiring: a live adapter, a deferred
// factory, or both. Build prefers the live adapter.
type registryEntry struct {
	adapter core.TransportAdapter
	factory AdapterFactory
}

// Registry maps adapter kinds to the gateway implementations the push
// client can drive. Kinds are case-insensitive.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*registryEntry
}

func NewRegistry() *Registry {
	return &Registry{entries: map[string]*registryEntry{}}
}

// NewDefaultRegistry wires the adapters the registration client knows
// how to drive. The push gateway speaks plain REST; the noop factory
// exists so unconfigured kinds still resolve to a failing adapter.
func NewDefaultRegistry() *Registry {
	registry := NewRegistry()
	_ = registry.Register(NewRESTAdapter(nil))
	_ = registry.RegisterFactory(KindNoop, defaultNoopFactory(KindNoop))
	return registry
}

func (r *Registry) entry(kind string) *registryEntry {
	if existing, ok := r.entries[kind]; ok {
		return existing
	}
	created := &registryEntry{}
	r.entries[kind] = created
	return created
}

func (r *Registry) Register(adapter core.TransportAdapter) error {
	if r == nil {
		return fmt.Errorf("transport: registry is nil")
	}
	if adapter == nil {
		return fmt.Errorf("transport: adapter is nil")
	}
	kind := normalizeKind(adapter.Kind())
	if kind == "" {
		return fmt.Errorf("transport: adapter kind is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.entry(kind)
	if entry.adapter != nil {
		return fmt.Errorf("transport: adapter kind %q already registered", kind)
	}
	entry.adapter = adapter
	return nil
}

func (r *Registry) RegisterFactory(kind string, factory AdapterFactory) error {
	if r == nil {
		return fmt.Errorf("transport: registry is nil")
	}
	kind = normalizeKind(kind)
	if kind == "" {
		return fmt.Errorf("transport: adapter kind is required")
	}
	if factory == nil {
		return fmt.Errorf("transport: adapter factory is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.entry(kind)
	if entry.factory != nil {
		return fmt.Errorf("transport: adapter factory kind %q already registered", kind)
	}
	entry.factory = factory
	return nil
}

// Build resolves a kind to an adapter, constructing one through the
// registered factory when no live adapter exists. Factory config maps
// are copied so factories cannot mutate caller state.
func (r *Registry) Build(kind string, config map[string]any) (core.TransportAdapter, error) {
	if r == nil {
		return nil, fmt.Errorf("transport: registry is nil")
	}
	kind = normalizeKind(kind)
	if kind == "" {
		return nil, fmt.Errorf("transport: adapter kind is required")
	}

	r.mu.RLock()
	entry, known := r.entries[kind]
	var adapter core.TransportAdapter
	var factory AdapterFactory
	if known {
		adapter = entry.adapter
		factory = entry.factory
	}
	r.mu.RUnlock()

	if adapter != nil {
		return adapter, nil
	}
	if factory == nil {
		return nil, fmt.Errorf("transport: adapter kind %q not registered", kind)
	}
	built, err := factory(cloneConfig(config))
	if err != nil {
		return nil, err
	}
	if built == nil {
		return nil, fmt.Errorf("transport: factory for %q returned nil adapter", kind)
	}
	return built, nil
}

func (r *Registry) Get(kind string) (core.TransportAdapter, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[normalizeKind(kind)]
	if !ok || entry.adapter == nil {
		return nil, false
	}
	return entry.adapter, true
}

// List returns the live adapters in kind order. Factory-only kinds are
// excluded since they have nothing instantiated yet.
func (r *Registry) List() []core.TransportAdapter {
	if r == nil {
		return []core.TransportAdapter{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.entries))
	for kind, entry := range r.entries {
		if entry.adapter != nil {
			kinds = append(kinds, kind)
		}
	}
	sort.Strings(kinds)
	result := make([]core.TransportAdapter, 0, len(kinds))
	for _, kind := range kinds {
		result = append(result, r.entries[kind].adapter)
	}
	return result
}

func normalizeKind(kind string) string {
	return strings.TrimSpace(strings.ToLower(kind))
}

func defaultNoopFactory(kind string) AdapterFactory {
	return func(config map[string]any) (core.TransportAdapter, error) {
		reason := ""
		if raw, ok := config["reason"]; ok {
			reason = strings.TrimSpace(fmt.Sprint(raw))
		}
		return NewUnsupportedAdapter(kind, reason), nil
	}
}

func cloneConfig(input map[string]any) map[string]any {
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}

var _ core.TransportResolver = (*Registry)(nil)
