package query

import "strings"

const (
	TypeListFulfillments     = "payhooks.query.fulfillment.list"
	TypeListMalformedEvents  = "payhooks.query.malformed_event.list"
	DefaultMalformedPageSize = 50
	MaxMalformedPageSize     = 500
)

type ListFulfillmentsMessage struct {
	ProviderID string
	Reference  string
}

func (ListFulfillmentsMessage) Type() string { return TypeListFulfillments }

func (m ListFulfillmentsMessage) Validate() error {
	if strings.TrimSpace(m.Reference) == "" {
		return queryValidationError("reference", "reference is required")
	}
	return nil
}

type ListMalformedEventsMessage struct {
	ProviderID string
	Limit      int
}

func (ListMalformedEventsMessage) Type() string { return TypeListMalformedEvents }

func (m ListMalformedEventsMessage) Validate() error {
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	if m.Limit > MaxMalformedPageSize {
		return queryValidationError("limit", "limit must be <= 500")
	}
	return nil
}
