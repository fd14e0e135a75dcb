package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-pushregistry/core"
)

func TestRESTAdapter_DoSendsMethodHeadersAndQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("expected GET method, got %s", r.Method)
		}
		if got := r.URL.Query().Get("type"); got != "apns" {
			t.Fatalf("expected push type query value, got %q", got)
		}
		if got := r.URL.Query().Get("add"); got != "alerts,news" {
			t.Fatalf("expected channel list query value, got %q", got)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Fatalf("expected accept header, got %q", got)
		}
		if got := r.Header.Get(headerIdempotencyKey); got != "attempt-key" {
			t.Fatalf("expected idempotency header, got %q", got)
		}
		w.Header().Set("X-Service", "push")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`[1, "Modified Channels"]`))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client())
	result, err := adapter.Do(context.Background(), core.TransportRequest{
		Method: http.MethodGet,
		URL:    server.URL + "/v1/push/sub-key/demo/devices/device-token",
		Query: map[string]string{
			"type": "apns",
			"add":  "alerts,news",
		},
		Headers: map[string]string{
			"Accept": "application/json",
		},
		Timeout:     5 * time.Second,
		Idempotency: "attempt-key",
	})
	if err != nil {
		t.Fatalf("perform rest request: %v", err)
	}
	if result.StatusCode != http.StatusOK {
		t.Fatalf("expected ok status, got %d", result.StatusCode)
	}
	if !strings.Contains(string(result.Body), "Modified Channels") {
		t.Fatalf("unexpected response body: %q", string(result.Body))
	}
	if result.Headers["X-Service"] != "push" {
		t.Fatalf("expected response header")
	}
	if result.Metadata["kind"] != KindREST {
		t.Fatalf("expected adapter kind metadata, got %v", result.Metadata["kind"])
	}
}

func TestRESTAdapter_ExplicitHeaderWinsOverIdempotencyKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get(headerIdempotencyKey); got != "explicit" {
			t.Fatalf("expected explicit idempotency header to win, got %q", got)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client())
	_, err := adapter.Do(context.Background(), core.TransportRequest{
		Method:      http.MethodGet,
		URL:         server.URL,
		Headers:     map[string]string{headerIdempotencyKey: "explicit"},
		Idempotency: "derived",
	})
	if err != nil {
		t.Fatalf("perform rest request: %v", err)
	}
}

func TestNewRESTAdapter_DefaultClientTimeout(t *testing.T) {
	adapter := NewRESTAdapter(nil)
	httpClient, ok := adapter.Client.(*http.Client)
	if !ok {
		t.Fatalf("expected default http client implementation")
	}
	if httpClient.Timeout != defaultRESTClientTimeout {
		t.Fatalf("expected default timeout %s, got %s", defaultRESTClientTimeout, httpClient.Timeout)
	}
	if adapter.MaxResponseBodyBytes != defaultRESTResponseBodyLimit {
		t.Fatalf("expected default response body limit %d, got %d", defaultRESTResponseBodyLimit, adapter.MaxResponseBodyBytes)
	}
}

func TestRESTAdapter_DoFailsOnResponseBodyOverLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("12345"))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client())
	adapter.MaxResponseBodyBytes = 4

	_, err := adapter.Do(context.Background(), core.TransportRequest{
		Method: http.MethodGet,
		URL:    server.URL,
	})
	if err == nil {
		t.Fatalf("expected response body limit error")
	}
	if !strings.Contains(err.Error(), "response body exceeds limit") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRESTAdapter_RequestBodyLimitOverridesAdapterLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("12345"))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client())
	adapter.MaxResponseBodyBytes = 1024

	_, err := adapter.Do(context.Background(), core.TransportRequest{
		Method:               http.MethodGet,
		URL:                  server.URL,
		MaxResponseBodyBytes: 4,
	})
	if err == nil {
		t.Fatalf("expected response body limit error")
	}
	if !strings.Contains(err.Error(), "response body exceeds limit of 4 bytes") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRESTAdapter_ResponseLimitReturnsRichError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("12345"))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client())
	adapter.MaxResponseBodyBytes = 4

	_, err := adapter.Do(context.Background(), core.TransportRequest{Method: http.MethodGet, URL: server.URL})
	if err == nil {
		t.Fatalf("expected response body limit error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryExternal {
		t.Fatalf("expected external category, got %q", rich.Category)
	}
	if rich.TextCode != core.PushErrorNetwork {
		t.Fatalf("expected %q text code, got %q", core.PushErrorNetwork, rich.TextCode)
	}
	if rich.Code != http.StatusBadGateway {
		t.Fatalf("expected %d code, got %d", http.StatusBadGateway, rich.Code)
	}
}

func TestRESTAdapter_ConnectionFailureWrapsNetworkCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	address := server.URL
	server.Close()

	adapter := NewRESTAdapter(nil)
	_, err := adapter.Do(context.Background(), core.TransportRequest{Method: http.MethodGet, URL: address})
	if err == nil {
		t.Fatalf("expected connection failure")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.TextCode != core.PushErrorNetwork {
		t.Fatalf("expected %q text code, got %q", core.PushErrorNetwork, rich.TextCode)
	}
}

func TestRESTAdapter_CancelledContextSurfacesCause(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer func() {
		close(release)
		server.Close()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	adapter := NewRESTAdapter(server.Client())
	_, err := adapter.Do(ctx, core.TransportRequest{Method: http.MethodGet, URL: server.URL})
	if err == nil {
		t.Fatalf("expected cancelled request error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation cause, got %v", err)
	}
}
