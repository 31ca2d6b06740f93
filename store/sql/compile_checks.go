package sqlstore

import "github.com/goliatone/go-payhooks/core"

var (
	_ core.Deduplicator        = (*ProcessedEventStore)(nil)
	_ core.FulfillmentStore    = (*FulfillmentStore)(nil)
	_ core.MalformedEventStore = (*MalformedEventStore)(nil)
)
