package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type RetryConfig struct {
	MaxAttempts    int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff" mapstructure:"max_backoff"`
}

type ActivityConfig struct {
	TTL    time.Duration `koanf:"ttl" mapstructure:"ttl"`
	RowCap int           `koanf:"row_cap" mapstructure:"row_cap"`
}

type Config struct {
	Origin               string         `koanf:"origin" mapstructure:"origin"`
	SubscribeKey         string         `koanf:"subscribe_key" mapstructure:"subscribe_key"`
	SecretKey            string         `koanf:"secret_key" mapstructure:"secret_key"`
	PushType             string         `koanf:"push_type" mapstructure:"push_type"`
	RequestTimeout       time.Duration  `koanf:"request_timeout" mapstructure:"request_timeout"`
	MaxResponseBodyBytes int64          `koanf:"max_response_body_bytes" mapstructure:"max_response_body_bytes"`
	UserAgent            string         `koanf:"user_agent" mapstructure:"user_agent"`
	Retry                RetryConfig    `koanf:"retry" mapstructure:"retry"`
	Activity             ActivityConfig `koanf:"activity" mapstructure:"activity"`
}

func DefaultConfig() Config {
	return Config{
		PushType:             string(PushTypeAPNS),
		RequestTimeout:       10 * time.Second,
		MaxResponseBodyBytes: 1 << 20,
		UserAgent:            "go-pushregistry/1.0",
		Retry: RetryConfig{
			MaxAttempts:    1,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
		},
		Activity: ActivityConfig{
			TTL:    30 * 24 * time.Hour,
			RowCap: 10_000,
		},
	}
}

func (c Config) Validate() error {
	origin := strings.TrimSpace(c.Origin)
	if origin == "" {
		return fmt.Errorf("core: origin is required")
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("core: origin %q is not a valid base URL", c.Origin)
	}
	if strings.TrimSpace(c.SubscribeKey) == "" {
		return fmt.Errorf("core: subscribe_key is required")
	}
	if _, err := normalizePushType(c.PushType); err != nil {
		return fmt.Errorf("core: push_type %q is not supported", c.PushType)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("core: request_timeout must not be negative")
	}
	if c.MaxResponseBodyBytes < 0 {
		return fmt.Errorf("core: max_response_body_bytes must not be negative")
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("core: retry.max_attempts must not be negative")
	}
	if c.Activity.RowCap < 0 {
		return fmt.Errorf("core: activity.row_cap must not be negative")
	}
	return nil
}

// pushType resolves the configured push type, falling back to apns.
func (c Config) pushType() PushType {
	resolved, err := normalizePushType(c.PushType)
	if err != nil {
		return PushTypeAPNS
	}
	return resolved
}
