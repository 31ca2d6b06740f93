package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type processedEventRecord struct {
	bun.BaseModel `bun:"table:payhooks_processed_events,alias:ppe"`

	ID         string    `bun:"id,pk"`
	ProviderID string    `bun:"provider_id,notnull"`
	Reference  string    `bun:"reference,notnull"`
	MarkedAt   time.Time `bun:"marked_at,nullzero,notnull,default:current_timestamp"`
}

type fulfillmentRecord struct {
	bun.BaseModel `bun:"table:payhooks_fulfillment_records,alias:pfr"`

	ID          string     `bun:"id,pk"`
	ProviderID  string     `bun:"provider_id,notnull"`
	Reference   string     `bun:"reference,notnull"`
	Action      string     `bun:"action,notnull"`
	Status      string     `bun:"status,notnull"`
	Attempt     int        `bun:"attempt,notnull"`
	ErrorDetail string     `bun:"error_detail,notnull"`
	AttemptedAt time.Time  `bun:"attempted_at,notnull"`
	CompletedAt *time.Time `bun:"completed_at,nullzero"`
}

type malformedEventRecord struct {
	bun.BaseModel `bun:"table:payhooks_malformed_events,alias:pme"`

	ID            string    `bun:"id,pk"`
	ProviderID    string    `bun:"provider_id,notnull"`
	Reference     string    `bun:"reference,notnull"`
	EventType     string    `bun:"event_type,notnull"`
	Reason        string    `bun:"reason,notnull"`
	MissingFields []string  `bun:"missing_fields,type:jsonb,notnull"`
	Payload       []byte    `bun:"payload"`
	RecordedAt    time.Time `bun:"recorded_at,nullzero,notnull,default:current_timestamp"`
}
