package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-payhooks/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type MalformedEventStore struct {
	db   *bun.DB
	repo repository.Repository[*malformedEventRecord]
}

func NewMalformedEventStore(db *bun.DB) (*MalformedEventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*malformedEventRecord](db, modelHandlers[malformedEventRecord]())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid malformed event repository wiring: %w", err)
		}
	}
	return &MalformedEventStore{db: db, repo: repo}, nil
}

func (s *MalformedEventStore) RecordMalformed(ctx context.Context, event core.MalformedEvent) (core.MalformedEvent, error) {
	if s == nil || s.repo == nil {
		return core.MalformedEvent{}, fmt.Errorf("sqlstore: malformed event store is not configured")
	}
	if strings.TrimSpace(event.ProviderID) == "" {
		return core.MalformedEvent{}, fmt.Errorf("sqlstore: provider id is required")
	}
	record := &malformedEventRecord{
		ID:            strings.TrimSpace(event.ID),
		ProviderID:    strings.TrimSpace(event.ProviderID),
		Reference:     strings.TrimSpace(event.Reference),
		EventType:     strings.TrimSpace(event.EventType),
		Reason:        strings.TrimSpace(event.Reason),
		MissingFields: append([]string{}, event.MissingFields...),
		Payload:       RedactPayload(event.Payload),
		RecordedAt:    event.RecordedAt.UTC(),
	}
	if len(event.Payload) == 0 {
		record.Payload = nil
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if event.RecordedAt.IsZero() {
		record.RecordedAt = time.Now().UTC()
	}
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.MalformedEvent{}, err
	}
	return malformedEventToDomain(created), nil
}

func (s *MalformedEventStore) ListMalformed(ctx context.Context, providerID string, limit int) ([]core.MalformedEvent, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: malformed event store is not configured")
	}
	selectors := []repository.SelectCriteria{
		repository.OrderBy("recorded_at DESC"),
	}
	if providerID = strings.TrimSpace(providerID); providerID != "" {
		selectors = append(selectors, repository.SelectBy("provider_id", "=", providerID))
	}
	if limit > 0 {
		selectors = append(selectors, repository.SelectPaginate(limit, 0))
	}
	records, _, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, err
	}
	out := make([]core.MalformedEvent, 0, len(records))
	for _, record := range records {
		out = append(out, malformedEventToDomain(record))
	}
	return out, nil
}

func malformedEventToDomain(record *malformedEventRecord) core.MalformedEvent {
	if record == nil {
		return core.MalformedEvent{}
	}
	return core.MalformedEvent{
		ID:            record.ID,
		ProviderID:    record.ProviderID,
		Reference:     record.Reference,
		EventType:     record.EventType,
		Reason:        record.Reason,
		MissingFields: append([]string(nil), record.MissingFields...),
		Payload:       append([]byte(nil), record.Payload...),
		RecordedAt:    record.RecordedAt.UTC(),
	}
}
