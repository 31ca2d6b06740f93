package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryFulfillmentStore struct {
	mu      sync.Mutex
	records map[string]FulfillmentRecord
}

func NewMemoryFulfillmentStore() *MemoryFulfillmentStore {
	return &MemoryFulfillmentStore{records: map[string]FulfillmentRecord{}}
}

func (s *MemoryFulfillmentStore) BeginAttempt(_ context.Context, record FulfillmentRecord) (FulfillmentRecord, error) {
	if s == nil {
		return FulfillmentRecord{}, fmt.Errorf("core: fulfillment store is not configured")
	}
	if strings.TrimSpace(record.Reference) == "" {
		return FulfillmentRecord{}, fmt.Errorf("core: fulfillment reference is required")
	}
	if _, err := ParseFulfillmentAction(string(record.Action)); err != nil {
		return FulfillmentRecord{}, err
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.AttemptedAt.IsZero() {
		record.AttemptedAt = time.Now().UTC()
	}
	record.Status = FulfillmentStatusPending
	record.CompletedAt = nil
	record.ErrorDetail = ""

	s.mu.Lock()
	defer s.mu.Unlock()
	if record.Attempt <= 0 {
		record.Attempt = s.nextAttemptLocked(record.ProviderID, record.Reference, record.Action)
	}
	s.records[record.ID] = record
	return record, nil
}

func (s *MemoryFulfillmentStore) FinishAttempt(
	_ context.Context,
	id string,
	status FulfillmentStatus,
	errorDetail string,
	completedAt time.Time,
) (FulfillmentRecord, error) {
	if s == nil {
		return FulfillmentRecord{}, fmt.Errorf("core: fulfillment store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return FulfillmentRecord{}, fmt.Errorf("%w: %s", ErrFulfillmentRecordNotFound, id)
	}
	if err := ValidateFulfillmentTransition(record.Status, status); err != nil {
		return FulfillmentRecord{}, err
	}
	completed := completedAt.UTC()
	record.Status = status
	record.CompletedAt = &completed
	record.ErrorDetail = errorDetail
	s.records[id] = record
	return record, nil
}

func (s *MemoryFulfillmentStore) ListByReference(_ context.Context, providerID string, reference string) ([]FulfillmentRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("core: fulfillment store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []FulfillmentRecord{}
	for _, record := range s.records {
		if record.Reference != reference {
			continue
		}
		if providerID != "" && record.ProviderID != providerID {
			continue
		}
		out = append(out, record)
	}
	sortFulfillmentRecords(out)
	return out, nil
}

func (s *MemoryFulfillmentStore) nextAttemptLocked(providerID, reference string, action FulfillmentAction) int {
	attempt := 0
	for _, record := range s.records {
		if record.ProviderID == providerID && record.Reference == reference && record.Action == action && record.Attempt > attempt {
			attempt = record.Attempt
		}
	}
	return attempt + 1
}

func sortFulfillmentRecords(records []FulfillmentRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].AttemptedAt.Equal(records[j].AttemptedAt) {
			return records[i].AttemptedAt.Before(records[j].AttemptedAt)
		}
		if records[i].Action != records[j].Action {
			return records[i].Action < records[j].Action
		}
		return records[i].Attempt < records[j].Attempt
	})
}

type MemoryMalformedEventStore struct {
	mu     sync.Mutex
	events []MalformedEvent
}

func NewMemoryMalformedEventStore() *MemoryMalformedEventStore {
	return &MemoryMalformedEventStore{}
}

func (s *MemoryMalformedEventStore) RecordMalformed(_ context.Context, event MalformedEvent) (MalformedEvent, error) {
	if s == nil {
		return MalformedEvent{}, fmt.Errorf("core: malformed event store is not configured")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.RecordedAt.IsZero() {
		event.RecordedAt = time.Now().UTC()
	}
	event.MissingFields = append([]string(nil), event.MissingFields...)
	event.Payload = append([]byte(nil), event.Payload...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return event, nil
}

func (s *MemoryMalformedEventStore) ListMalformed(_ context.Context, providerID string, limit int) ([]MalformedEvent, error) {
	if s == nil {
		return nil, fmt.Errorf("core: malformed event store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []MalformedEvent{}
	for i := len(s.events) - 1; i >= 0; i-- {
		event := s.events[i]
		if providerID != "" && event.ProviderID != providerID {
			continue
		}
		out = append(out, event)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

var (
	_ FulfillmentStore    = (*MemoryFulfillmentStore)(nil)
	_ MalformedEventStore = (*MemoryMalformedEventStore)(nil)
)
