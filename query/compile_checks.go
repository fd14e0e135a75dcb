package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-pushregistry/core"
)

var (
	_ gocmd.Querier[AuditPushMessage, core.AuditResult]     = (*AuditPushQuery)(nil)
	_ gocmd.Querier[ListActivityMessage, core.ActivityPage] = (*ListActivityQuery)(nil)
)
