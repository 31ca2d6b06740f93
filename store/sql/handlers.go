package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// keyedRecord is a bun model keyed by a string uuid in its id column.
type keyedRecord[T any] interface {
	*T
	recordID() string
	setRecordID(id string)
}

func modelHandlers[T any, P keyedRecord[T]]() repository.ModelHandlers[P] {
	return repository.ModelHandlers[P]{
		NewRecord: func() P {
			return P(new(T))
		},
		GetID: func(record P) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			parsed, err := uuid.Parse(strings.TrimSpace(record.recordID()))
			if err != nil {
				return uuid.Nil
			}
			return parsed
		},
		SetID: func(record P, id uuid.UUID) {
			if record != nil {
				record.setRecordID(id.String())
			}
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record P) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.recordID())
		},
	}
}

func (r *processedEventRecord) recordID() string { return r.ID }
func (r *processedEventRecord) setRecordID(id string) { r.ID = id }
func (r *fulfillmentRecord) recordID() string { return r.ID }
func (r *fulfillmentRecord) setRecordID(id string) { r.ID = id }
func (r *malformedEventRecord) recordID() string { return r.ID }
func (r *malformedEventRecord) setRecordID(id string) { r.ID = id }
