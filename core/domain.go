package core

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidOperation = errors.New("core: invalid operation")
	ErrInvalidPushType  = errors.New("core: invalid push type")
)

// Operation identifies one of the registration operations exposed by the
// remote push registry.
type Operation string

const (
	OperationEnable     Operation = "enable"
	OperationDisable    Operation = "disable"
	OperationDisableAll Operation = "disable_all"
	OperationAudit      Operation = "audit"
)

func (o Operation) Validate() error {
	switch o {
	case OperationEnable, OperationDisable, OperationDisableAll, OperationAudit:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidOperation, string(o))
}

// Modifies reports whether the operation changes remote registration state.
// Audit is the only read-only operation.
func (o Operation) Modifies() bool {
	return o == OperationEnable || o == OperationDisable || o == OperationDisableAll
}

// RequiresChannels reports whether the operation needs a non-empty channel
// set. DisableAll and Audit ignore any supplied channels.
func (o Operation) RequiresChannels() bool {
	return o == OperationEnable || o == OperationDisable
}

// PushType names the downstream delivery service the device token belongs to.
type PushType string

const (
	PushTypeAPNS PushType = "apns"
	PushTypeGCM  PushType = "gcm"
	PushTypeMPNS PushType = "mpns"
)

func (t PushType) Validate() error {
	switch t {
	case PushTypeAPNS, PushTypeGCM, PushTypeMPNS:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidPushType, string(t))
}

func normalizePushType(raw string) (PushType, error) {
	trimmed := PushType(strings.TrimSpace(strings.ToLower(raw)))
	if trimmed == "" {
		return PushTypeAPNS, nil
	}
	if err := trimmed.Validate(); err != nil {
		return "", err
	}
	return trimmed, nil
}

// NormalizeDeviceToken trims surrounding whitespace. The token is otherwise
// opaque: no charset or length rules are enforced locally.
func NormalizeDeviceToken(token string) string {
	return strings.TrimSpace(token)
}

// NormalizeChannels trims every entry, drops empties, and removes duplicates
// while preserving first-seen order.
func NormalizeChannels(channels []string) []string {
	if len(channels) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(channels))
	normalized := make([]string, 0, len(channels))
	for _, channel := range channels {
		trimmed := strings.TrimSpace(channel)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	if len(normalized) == 0 {
		return nil
	}
	return normalized
}

// HashDeviceToken returns a stable fingerprint safe to persist and log. Raw
// tokens never leave the request path.
func HashDeviceToken(token string) string {
	sum := sha256.Sum256([]byte(NormalizeDeviceToken(token)))
	return hex.EncodeToString(sum[:])
}

// AuditResult carries the channel set currently enabled for a device token.
type AuditResult struct {
	Operation Operation
	PushType  PushType
	Channels  []string
}

// Contains reports whether the audited set includes the channel after
// normalization.
func (r *AuditResult) Contains(channel string) bool {
	if r == nil {
		return false
	}
	trimmed := strings.TrimSpace(channel)
	if trimmed == "" {
		return false
	}
	for _, existing := range r.Channels {
		if existing == trimmed {
			return true
		}
	}
	return false
}

func (r *AuditResult) clone() *AuditResult {
	if r == nil {
		return nil
	}
	return &AuditResult{
		Operation: r.Operation,
		PushType:  r.PushType,
		Channels:  append([]string(nil), r.Channels...),
	}
}
