package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// StringIDHandlers builds repository handlers for models keyed by a string
// uuid column named "id".
func StringIDHandlers[T any](newRecord func() T, getID func(T) string, setID func(T, string)) repository.ModelHandlers[T] {
	return repository.ModelHandlers[T]{
		NewRecord: newRecord,
		GetID: func(record T) uuid.UUID {
			return parseUUID(getID(record))
		},
		SetID: func(record T, id uuid.UUID) {
			setID(record, id.String())
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record T) string {
			return strings.TrimSpace(getID(record))
		},
	}
}

func revocationHandlers() repository.ModelHandlers[*revocationRecord] {
	return StringIDHandlers(
		func() *revocationRecord { return &revocationRecord{} },
		func(record *revocationRecord) string {
			if record == nil {
				return ""
			}
			return record.ID
		},
		func(record *revocationRecord, id string) {
			if record != nil {
				record.ID = id
			}
		},
	)
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
