package query

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-pushregistry/core"
)

const (
	TypeAuditPush    = "pushregistry.query.audit"
	TypeListActivity = "pushregistry.query.activity.list"
)

type AuditPushMessage struct {
	DeviceToken string
	PushType    core.PushType
}

func (AuditPushMessage) Type() string { return TypeAuditPush }

func (m AuditPushMessage) Validate() error {
	if strings.TrimSpace(m.DeviceToken) == "" {
		return fmt.Errorf("query: device push token is required")
	}
	if strings.TrimSpace(string(m.PushType)) != "" {
		if err := m.PushType.Validate(); err != nil {
			return fmt.Errorf("query: %w", err)
		}
	}
	return nil
}

type ListActivityMessage struct {
	Filter core.ActivityFilter
}

func (ListActivityMessage) Type() string { return TypeListActivity }

func (m ListActivityMessage) Validate() error {
	if m.Filter.Limit < 0 {
		return fmt.Errorf("query: limit must be >= 0")
	}
	if m.Filter.Offset < 0 {
		return fmt.Errorf("query: offset must be >= 0")
	}
	return nil
}
