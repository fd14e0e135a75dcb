package core

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

type failingRawConfigLoader struct{}

func (failingRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	return nil, fmt.Errorf("config source unavailable")
}

func TestCfgxConfigProvider_LoadDefaultsWhenEmpty(t *testing.T) {
	var nilProvider *CfgxConfigProvider
	cfg, err := nilProvider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("nil provider load: %v", err)
	}
	if cfg.PushType != string(PushTypeAPNS) {
		t.Fatalf("expected defaults back, got %+v", cfg)
	}

	provider := NewCfgxConfigProvider(nil)
	cfg, err = provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("empty loader load: %v", err)
	}
	if cfg.UserAgent != "go-pushregistry/1.0" {
		t.Fatalf("expected default user agent, got %q", cfg.UserAgent)
	}
}

func TestCfgxConfigProvider_LoadOverlaysRawValues(t *testing.T) {
	provider := NewCfgxConfigProvider(staticRawConfigLoader{Values: map[string]any{
		"origin":        "https://config.example.test",
		"subscribe_key": "sub-from-config",
	}})
	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Origin != "https://config.example.test" {
		t.Fatalf("expected loaded origin, got %q", cfg.Origin)
	}
	if cfg.SubscribeKey != "sub-from-config" {
		t.Fatalf("expected loaded subscribe key, got %q", cfg.SubscribeKey)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Fatalf("untouched defaults must survive, got %v", cfg.RequestTimeout)
	}
}

func TestCfgxConfigProvider_LoadDoesNotEnforceRequiredFields(t *testing.T) {
	// Required fields are the resolver's concern: the runtime layer may still
	// supply origin and subscribe key after this load.
	provider := NewCfgxConfigProvider(nil)
	if _, err := provider.Load(context.Background(), DefaultConfig()); err != nil {
		t.Fatalf("load without origin must not fail: %v", err)
	}
}

func TestCfgxConfigProvider_LoadPropagatesLoaderFailure(t *testing.T) {
	provider := NewCfgxConfigProvider(failingRawConfigLoader{})
	if _, err := provider.Load(context.Background(), DefaultConfig()); err == nil {
		t.Fatalf("expected loader failure to surface")
	}
}

func TestGoOptionsResolver_RuntimeWinsOverConfig(t *testing.T) {
	defaults := DefaultConfig()
	loaded := defaults
	loaded.Origin = "https://config.example.test"
	loaded.SubscribeKey = "sub-from-config"
	loaded.UserAgent = "config-agent"

	runtime := Config{
		Origin: "https://runtime.example.test",
	}

	resolved, err := GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Origin != "https://runtime.example.test" {
		t.Fatalf("runtime origin must win, got %q", resolved.Origin)
	}
	if resolved.SubscribeKey != "sub-from-config" {
		t.Fatalf("config layer fills runtime gaps, got %q", resolved.SubscribeKey)
	}
	if resolved.UserAgent != "config-agent" {
		t.Fatalf("config layer fills runtime gaps, got %q", resolved.UserAgent)
	}
	if resolved.PushType != string(PushTypeAPNS) {
		t.Fatalf("defaults backfill the rest, got %q", resolved.PushType)
	}
}

func TestGoOptionsResolver_ValidatesFinalConfig(t *testing.T) {
	_, err := GoOptionsResolver{}.Resolve(DefaultConfig(), DefaultConfig(), Config{})
	if err == nil {
		t.Fatalf("expected missing origin to fail final validation")
	}
	if !strings.Contains(err.Error(), "origin") {
		t.Fatalf("expected origin in error, got %v", err)
	}
}

func TestConfigToLayerMap_SkipsZeroValuesUnlessAsked(t *testing.T) {
	sparse := configToLayerMap(Config{Origin: "https://x.example.test"}, false)
	if sparse["origin"] != "https://x.example.test" {
		t.Fatalf("set values must appear, got %#v", sparse)
	}
	if _, present := sparse["subscribe_key"]; present {
		t.Fatalf("zero values must be omitted from sparse layers")
	}
	if _, present := sparse["retry"]; present {
		t.Fatalf("zero retry config must be omitted from sparse layers")
	}

	full := configToLayerMap(Config{}, true)
	for _, key := range []string{"origin", "subscribe_key", "push_type", "request_timeout", "retry", "activity"} {
		if _, present := full[key]; !present {
			t.Fatalf("defaults layer must carry %q", key)
		}
	}
}
