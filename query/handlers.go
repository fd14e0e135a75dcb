package query

import (
	"context"

	"github.com/goliatone/go-pushregistry/core"
)

// AuditingService is the read slice of the registry surface: the audit
// round trip plus the local activity ledger.
type AuditingService interface {
	AuditPush(ctx context.Context, token string, completion core.AuditCompletion, options ...core.CallOption)
}

type ActivityReader interface {
	ListActivity(ctx context.Context, filter core.ActivityFilter) ([]core.ActivityEntry, int, error)
}

type AuditPushQuery struct {
	service AuditingService
}

func NewAuditPushQuery(service AuditingService) *AuditPushQuery {
	return &AuditPushQuery{service: service}
}

func (q *AuditPushQuery) Query(ctx context.Context, msg AuditPushMessage) (core.AuditResult, error) {
	if q == nil || q.service == nil {
		return core.AuditResult{}, queryDependencyError("query: audit service is required")
	}

	type auditOutcome struct {
		result *core.AuditResult
		status *core.Status
	}
	settled := make(chan auditOutcome, 1)

	var options []core.CallOption
	if msg.PushType != "" {
		options = append(options, core.WithPushType(msg.PushType))
	}
	q.service.AuditPush(ctx, msg.DeviceToken, func(result *core.AuditResult, status *core.Status) {
		settled <- auditOutcome{result: result, status: status}
	}, options...)

	select {
	case outcome := <-settled:
		if outcome.status != nil {
			return core.AuditResult{}, outcome.status.Err
		}
		if outcome.result == nil {
			return core.AuditResult{}, queryDependencyError("query: audit completion delivered no result")
		}
		return *outcome.result, nil
	case <-ctx.Done():
		return core.AuditResult{}, queryWrapCancelled(ctx.Err(), "query: audit interrupted")
	}
}

type ListActivityQuery struct {
	reader ActivityReader
}

func NewListActivityQuery(reader ActivityReader) *ListActivityQuery {
	return &ListActivityQuery{reader: reader}
}

func (q *ListActivityQuery) Query(ctx context.Context, msg ListActivityMessage) (core.ActivityPage, error) {
	if q == nil || q.reader == nil {
		return core.ActivityPage{}, queryDependencyError("query: activity reader is required")
	}
	entries, total, err := q.reader.ListActivity(ctx, msg.Filter)
	if err != nil {
		return core.ActivityPage{}, err
	}
	return core.ActivityPage{
		Entries: entries,
		Total:   total,
		Limit:   msg.Filter.Limit,
		Offset:  msg.Filter.Offset,
	}, nil
}
