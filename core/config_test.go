package core

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.PushType != string(PushTypeAPNS) {
		t.Fatalf("expected apns default, got %q", cfg.PushType)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Fatalf("unexpected request timeout %v", cfg.RequestTimeout)
	}
	if cfg.MaxResponseBodyBytes != 1<<20 {
		t.Fatalf("unexpected body cap %d", cfg.MaxResponseBodyBytes)
	}
	if cfg.Retry.MaxAttempts != 1 {
		t.Fatalf("default retry budget is one attempt, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Activity.TTL != 30*24*time.Hour || cfg.Activity.RowCap != 10_000 {
		t.Fatalf("unexpected activity defaults %+v", cfg.Activity)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := DefaultConfig()
	valid.Origin = "https://push.example.test"
	valid.SubscribeKey = "sub-demo"
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name    string
		mutate  func(*Config)
		message string
	}{
		{"missing origin", func(c *Config) { c.Origin = "  " }, "origin is required"},
		{"unparseable origin", func(c *Config) { c.Origin = "://bad" }, "not a valid base URL"},
		{"schemeless origin", func(c *Config) { c.Origin = "push.example.test" }, "not a valid base URL"},
		{"missing subscribe key", func(c *Config) { c.SubscribeKey = "" }, "subscribe_key is required"},
		{"unknown push type", func(c *Config) { c.PushType = "sms" }, "push_type"},
		{"negative timeout", func(c *Config) { c.RequestTimeout = -time.Second }, "request_timeout"},
		{"negative body cap", func(c *Config) { c.MaxResponseBodyBytes = -1 }, "max_response_body_bytes"},
		{"negative attempts", func(c *Config) { c.Retry.MaxAttempts = -1 }, "retry.max_attempts"},
		{"negative row cap", func(c *Config) { c.Activity.RowCap = -1 }, "activity.row_cap"},
	}
	for _, tc := range cases {
		cfg := valid
		tc.mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected validation failure", tc.name)
		}
		if !strings.Contains(err.Error(), tc.message) {
			t.Fatalf("%s: expected %q in %q", tc.name, tc.message, err.Error())
		}
	}
}

func TestConfig_PushTypeFallback(t *testing.T) {
	if got := (Config{}).pushType(); got != PushTypeAPNS {
		t.Fatalf("empty push type falls back to apns, got %q", got)
	}
	if got := (Config{PushType: " GCM "}).pushType(); got != PushTypeGCM {
		t.Fatalf("push type must normalize case and whitespace, got %q", got)
	}
	if got := (Config{PushType: "sms"}).pushType(); got != PushTypeAPNS {
		t.Fatalf("unsupported push type falls back to apns, got %q", got)
	}
}
