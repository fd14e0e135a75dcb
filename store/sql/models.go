package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type pushActivityEntryRecord struct {
	bun.BaseModel `bun:"table:push_activity_entries,alias:pae"`

	ID           string         `bun:"id,pk"`
	Operation    string         `bun:"operation,notnull"`
	PushType     string         `bun:"push_type,notnull"`
	TokenHash    string         `bun:"token_hash,notnull"`
	ChannelCount int            `bun:"channel_count,notnull"`
	Outcome      string         `bun:"outcome,notnull"`
	Category     string         `bun:"category,notnull"`
	StatusCode   int            `bun:"status_code,notnull"`
	Attempt      int            `bun:"attempt,notnull"`
	Idempotency  string         `bun:"idempotency"`
	Metadata     map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt    time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type pushRateLimitStateRecord struct {
	bun.BaseModel `bun:"table:push_rate_limit_states,alias:prls"`

	ID           string         `bun:"id,pk"`
	SubscribeKey string         `bun:"subscribe_key,notnull"`
	Operation    string         `bun:"operation,notnull"`
	RateLimit    int            `bun:"rate_limit,notnull"`
	Remaining    int            `bun:"remaining,notnull"`
	ResetAt      *time.Time     `bun:"reset_at,nullzero"`
	RetryAfter   *int           `bun:"retry_after_seconds"`
	Metadata     map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt    time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
