package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-payhooks/core"
)

var (
	_ gocmd.Querier[ListFulfillmentsMessage, []core.FulfillmentRecord]  = (*ListFulfillmentsQuery)(nil)
	_ gocmd.Querier[ListMalformedEventsMessage, []core.MalformedEvent] = (*ListMalformedEventsQuery)(nil)

	_ FulfillmentReader    = (*core.Service)(nil)
	_ MalformedEventReader = (*core.Service)(nil)
)
