package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-pushregistry/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const defaultActivityPageSize = 25

// ActivityStore persists the per-cycle operation ledger. Rows carry token
// fingerprints only; the raw device token never reaches this layer.
type ActivityStore struct {
	db   *bun.DB
	repo repository.Repository[*pushActivityEntryRecord]
}

func NewActivityStore(db *bun.DB) (*ActivityStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*pushActivityEntryRecord](db, activityHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid activity repository wiring: %w", err)
		}
	}
	return &ActivityStore{db: db, repo: repo}, nil
}

func (s *ActivityStore) Record(ctx context.Context, entry core.ActivityEntry) (core.ActivityEntry, error) {
	if s == nil || s.repo == nil {
		return core.ActivityEntry{}, fmt.Errorf("sqlstore: activity store is not configured")
	}
	if err := entry.Operation.Validate(); err != nil {
		return core.ActivityEntry{}, fmt.Errorf("sqlstore: %w", err)
	}
	if strings.TrimSpace(entry.TokenHash) == "" {
		return core.ActivityEntry{}, fmt.Errorf("sqlstore: activity token hash is required")
	}

	id := strings.TrimSpace(entry.ID)
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := entry.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	outcome := strings.TrimSpace(entry.Outcome)
	if outcome == "" {
		outcome = "failure"
	}

	record := &pushActivityEntryRecord{
		ID:           id,
		Operation:    string(entry.Operation),
		PushType:     strings.TrimSpace(string(entry.PushType)),
		TokenHash:    strings.TrimSpace(entry.TokenHash),
		ChannelCount: entry.ChannelCount,
		Outcome:      outcome,
		Category:     strings.TrimSpace(string(entry.Category)),
		StatusCode:   entry.StatusCode,
		Attempt:      entry.Attempt,
		Idempotency:  strings.TrimSpace(entry.Idempotency),
		Metadata:     copyAnyMap(entry.Metadata),
		CreatedAt:    createdAt,
	}
	if record.PushType == "" {
		record.PushType = string(core.PushTypeAPNS)
	}
	if record.Category == "" {
		record.Category = string(core.StatusCategoryAcknowledgment)
	}

	stored, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.ActivityEntry{}, err
	}
	return activityRecordToDomain(stored), nil
}

func (s *ActivityStore) List(ctx context.Context, filter core.ActivityFilter) ([]core.ActivityEntry, int, error) {
	if s == nil || s.repo == nil {
		return nil, 0, fmt.Errorf("sqlstore: activity store is not configured")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultActivityPageSize
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(limit, offset),
	}
	if operation := strings.TrimSpace(filter.Operation); operation != "" {
		selectors = append(selectors, repository.SelectBy("operation", "=", operation))
	}
	if tokenHash := strings.TrimSpace(filter.TokenHash); tokenHash != "" {
		selectors = append(selectors, repository.SelectBy("token_hash", "=", tokenHash))
	}
	if outcome := strings.TrimSpace(filter.Outcome); outcome != "" {
		selectors = append(selectors, repository.SelectBy("outcome", "=", outcome))
	}
	if filter.Since != nil {
		selectors = append(selectors, repository.SelectByTimetz("created_at", ">=", filter.Since.UTC()))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, 0, err
	}
	entries := make([]core.ActivityEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, activityRecordToDomain(record))
	}
	return entries, total, nil
}

func (s *ActivityStore) Prune(ctx context.Context, olderThan time.Duration, rowCap int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: activity store is not configured")
	}
	var deleted int64
	now := time.Now().UTC()

	if olderThan > 0 {
		cutoff := now.Add(-olderThan)
		res, err := s.db.NewDelete().
			Model((*pushActivityEntryRecord)(nil)).
			Where("created_at < ?", cutoff).
			Exec(ctx)
		if err != nil {
			return deleted, err
		}
		affected, _ := res.RowsAffected()
		deleted += affected
	}

	if rowCap > 0 {
		total, err := s.db.NewSelect().Model((*pushActivityEntryRecord)(nil)).Count(ctx)
		if err != nil {
			return deleted, err
		}
		excess := total - rowCap
		if excess > 0 {
			res, err := s.db.NewRaw(
				"DELETE FROM push_activity_entries WHERE id IN (SELECT id FROM push_activity_entries ORDER BY created_at ASC LIMIT ?)",
				excess,
			).Exec(ctx)
			if err != nil {
				return deleted, err
			}
			affected, _ := res.RowsAffected()
			deleted += affected
		}
	}

	return deleted, nil
}

func activityRecordToDomain(record *pushActivityEntryRecord) core.ActivityEntry {
	if record == nil {
		return core.ActivityEntry{}
	}
	return core.ActivityEntry{
		ID:           record.ID,
		Operation:    core.Operation(record.Operation),
		PushType:     core.PushType(record.PushType),
		TokenHash:    record.TokenHash,
		ChannelCount: record.ChannelCount,
		Outcome:      record.Outcome,
		Category:     core.StatusCategory(record.Category),
		StatusCode:   record.StatusCode,
		Attempt:      record.Attempt,
		Idempotency:  record.Idempotency,
		Metadata:     copyAnyMap(record.Metadata),
		CreatedAt:    record.CreatedAt,
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var _ core.ActivityStore = (*ActivityStore)(nil)
