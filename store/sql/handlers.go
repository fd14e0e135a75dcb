package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// keyedRecord is satisfied by every model in this package; all tables key
// rows by a uuid string column named id.
type keyedRecord interface {
	primaryKey() string
	setPrimaryKey(string)
}

func (r *pushActivityEntryRecord) primaryKey() string {
	if r == nil {
		return ""
	}
	return r.ID
}

func (r *pushActivityEntryRecord) setPrimaryKey(id string) {
	if r != nil {
		r.ID = id
	}
}

func (r *pushRateLimitStateRecord) primaryKey() string {
	if r == nil {
		return ""
	}
	return r.ID
}

func (r *pushRateLimitStateRecord) setPrimaryKey(id string) {
	if r != nil {
		r.ID = id
	}
}

func activityHandlers() repository.ModelHandlers[*pushActivityEntryRecord] {
	return handlersFor(func() *pushActivityEntryRecord { return &pushActivityEntryRecord{} })
}

func rateLimitStateHandlers() repository.ModelHandlers[*pushRateLimitStateRecord] {
	return handlersFor(func() *pushRateLimitStateRecord { return &pushRateLimitStateRecord{} })
}

func handlersFor[R keyedRecord](newRecord func() R) repository.ModelHandlers[R] {
	return repository.ModelHandlers[R]{
		NewRecord: newRecord,
		GetID: func(record R) uuid.UUID {
			return parseUUID(record.primaryKey())
		},
		SetID: func(record R, id uuid.UUID) {
			record.setPrimaryKey(id.String())
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record R) string {
			return strings.TrimSpace(record.primaryKey())
		},
	}
}

func parseUUID(value string) uuid.UUID {
	if parsed, err := uuid.Parse(strings.TrimSpace(value)); err == nil {
		return parsed
	}
	return uuid.Nil
}
