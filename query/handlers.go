package query

import (
	"context"

	"github.com/goliatone/go-payhooks/core"
)

type FulfillmentReader interface {
	ListFulfillments(ctx context.Context, providerID string, reference string) ([]core.FulfillmentRecord, error)
}

type MalformedEventReader interface {
	ListMalformedEvents(ctx context.Context, providerID string, limit int) ([]core.MalformedEvent, error)
}

type ListFulfillmentsQuery struct {
	reader FulfillmentReader
}

func NewListFulfillmentsQuery(reader FulfillmentReader) *ListFulfillmentsQuery {
	return &ListFulfillmentsQuery{reader: reader}
}

func (q *ListFulfillmentsQuery) Query(ctx context.Context, msg ListFulfillmentsMessage) ([]core.FulfillmentRecord, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: fulfillment reader is required")
	}
	return q.reader.ListFulfillments(ctx, msg.ProviderID, msg.Reference)
}

type ListMalformedEventsQuery struct {
	reader MalformedEventReader
}

func NewListMalformedEventsQuery(reader MalformedEventReader) *ListMalformedEventsQuery {
	return &ListMalformedEventsQuery{reader: reader}
}

func (q *ListMalformedEventsQuery) Query(ctx context.Context, msg ListMalformedEventsMessage) ([]core.MalformedEvent, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: malformed event reader is required")
	}
	limit := msg.Limit
	if limit == 0 {
		limit = DefaultMalformedPageSize
	}
	return q.reader.ListMalformedEvents(ctx, msg.ProviderID, limit)
}
