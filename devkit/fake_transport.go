// Package devkit ships the fixtures downstream integrations test against:
// a scripted transport adapter, in-memory stores, and conformance checks
// for the pluggable contracts.
package devkit

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-pushregistry/core"
)

// TransportScript is one scripted transport outcome. Scripts play in call
// order; the last script repeats once the list is exhausted.
type TransportScript struct {
	Response core.TransportResponse
	Err      error
}

// FakeTransportAdapter replays scripted responses and captures every
// descriptor it receives, cloned so assertions cannot race the runtime.
type FakeTransportAdapter struct {
	mu       sync.Mutex
	kind     string
	scripts  []TransportScript
	requests []core.TransportRequest
}

func NewFakeTransportAdapter(kind string, scripts ...TransportScript) *FakeTransportAdapter {
	return &FakeTransportAdapter{
		kind:    strings.TrimSpace(strings.ToLower(kind)),
		scripts: append([]TransportScript(nil), scripts...),
	}
}

func (a *FakeTransportAdapter) Kind() string {
	if a == nil {
		return ""
	}
	return a.kind
}

func (a *FakeTransportAdapter) Do(_ context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil {
		return core.TransportResponse{}, fmt.Errorf("devkit: fake transport adapter is nil")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.requests = append(a.requests, cloneTransportRequest(req))
	script := a.scriptFor(len(a.requests) - 1)
	return cloneTransportResponse(script.Response), script.Err
}

// scriptFor picks the outcome for the nth call, clamping past the end of
// the list. Unscripted adapters acknowledge every call so happy-path
// wiring tests need no scripts at all.
func (a *FakeTransportAdapter) scriptFor(call int) TransportScript {
	if len(a.scripts) == 0 {
		return TransportScript{Response: AckResponse()}
	}
	if call >= len(a.scripts) {
		call = len(a.scripts) - 1
	}
	return a.scripts[call]
}

// Requests returns a deep copy of every captured descriptor in call order.
func (a *FakeTransportAdapter) Requests() []core.TransportRequest {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]core.TransportRequest, 0, len(a.requests))
	for _, item := range a.requests {
		out = append(out, cloneTransportRequest(item))
	}
	return out
}

// CallCount reports how many descriptors the adapter has received.
func (a *FakeTransportAdapter) CallCount() int {
	if a == nil {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.requests)
}

func cloneTransportRequest(in core.TransportRequest) core.TransportRequest {
	out := in
	out.Headers = cloneMap(in.Headers)
	out.Query = cloneMap(in.Query)
	out.Metadata = cloneMap(in.Metadata)
	out.Body = append([]byte(nil), in.Body...)
	return out
}

func cloneTransportResponse(in core.TransportResponse) core.TransportResponse {
	out := in
	out.Headers = cloneMap(in.Headers)
	out.Metadata = cloneMap(in.Metadata)
	out.Body = append([]byte(nil), in.Body...)
	return out
}

// cloneMap always hands back a non-nil map so fixtures can index the copy
// without guarding.
func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var _ core.TransportAdapter = (*FakeTransportAdapter)(nil)
