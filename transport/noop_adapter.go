package transport

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-pushregistry/core"
)

const KindNoop = "noop"

// UnsupportedAdapter satisfies the adapter contract for kinds that have
// no working implementation wired. Every call fails with a descriptive
// error instead of silently dropping the request.
type UnsupportedAdapter struct {
	kind   string
	reason string
}

func NewUnsupportedAdapter(kind string, reason string) *UnsupportedAdapter {
	return &UnsupportedAdapter{
		kind:   normalizeKind(kind),
		reason: strings.TrimSpace(reason),
	}
}

func (a *UnsupportedAdapter) Kind() string {
	if a == nil {
		return ""
	}
	return a.kind
}

func (a *UnsupportedAdapter) Do(context.Context, core.TransportRequest) (core.TransportResponse, error) {
	if a == nil {
		return core.TransportResponse{}, transportError(
			"transport: adapter is nil",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			nil,
		)
	}
	message := fmt.Sprintf("transport: %s adapter is not configured", a.kind)
	if a.reason != "" {
		message = fmt.Sprintf("transport: %s adapter is not configured: %s", a.kind, a.reason)
	}
	return core.TransportResponse{}, transportError(
		message,
		goerrors.CategoryInternal,
		http.StatusNotImplemented,
		map[string]any{"kind": a.kind},
	)
}

var _ core.TransportAdapter = (*UnsupportedAdapter)(nil)
