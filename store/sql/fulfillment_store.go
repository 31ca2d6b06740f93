package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-payhooks/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type FulfillmentStore struct {
	db   *bun.DB
	repo repository.Repository[*fulfillmentRecord]
}

func NewFulfillmentStore(db *bun.DB) (*FulfillmentStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*fulfillmentRecord](db, modelHandlers[fulfillmentRecord]())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid fulfillment repository wiring: %w", err)
		}
	}
	return &FulfillmentStore{db: db, repo: repo}, nil
}

func (s *FulfillmentStore) BeginAttempt(ctx context.Context, in core.FulfillmentRecord) (core.FulfillmentRecord, error) {
	if s == nil || s.db == nil || s.repo == nil {
		return core.FulfillmentRecord{}, fmt.Errorf("sqlstore: fulfillment store is not configured")
	}
	in.ProviderID = strings.TrimSpace(in.ProviderID)
	in.Reference = strings.TrimSpace(in.Reference)
	if in.Reference == "" {
		return core.FulfillmentRecord{}, fmt.Errorf("sqlstore: fulfillment reference is required")
	}
	action, err := core.ParseFulfillmentAction(string(in.Action))
	if err != nil {
		return core.FulfillmentRecord{}, err
	}
	attemptedAt := in.AttemptedAt.UTC()
	if in.AttemptedAt.IsZero() {
		attemptedAt = time.Now().UTC()
	}

	var created core.FulfillmentRecord
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		attempt := in.Attempt
		if attempt <= 0 {
			last, lastErr := s.lastAttempt(ctx, tx, in.ProviderID, in.Reference, action)
			if lastErr != nil {
				return lastErr
			}
			attempt = last + 1
		}
		record := &fulfillmentRecord{
			ID:          uuid.NewString(),
			ProviderID:  in.ProviderID,
			Reference:   in.Reference,
			Action:      string(action),
			Status:      string(core.FulfillmentStatusPending),
			Attempt:     attempt,
			AttemptedAt: attemptedAt,
		}
		if strings.TrimSpace(in.ID) != "" {
			record.ID = strings.TrimSpace(in.ID)
		}
		inserted, createErr := s.repo.CreateTx(ctx, tx, record)
		if createErr != nil {
			return createErr
		}
		created = fulfillmentToDomain(inserted)
		return nil
	})
	if err != nil {
		return core.FulfillmentRecord{}, err
	}
	return created, nil
}

func (s *FulfillmentStore) FinishAttempt(
	ctx context.Context,
	id string,
	status core.FulfillmentStatus,
	errorDetail string,
	completedAt time.Time,
) (core.FulfillmentRecord, error) {
	if s == nil || s.db == nil || s.repo == nil {
		return core.FulfillmentRecord{}, fmt.Errorf("sqlstore: fulfillment store is not configured")
	}
	trimmedID := strings.TrimSpace(id)
	if trimmedID == "" {
		return core.FulfillmentRecord{}, fmt.Errorf("sqlstore: fulfillment id is required")
	}
	current := &fulfillmentRecord{}
	err := s.db.NewSelect().
		Model(current).
		Where("?TableAlias.id = ?", trimmedID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.FulfillmentRecord{}, fmt.Errorf("%w: %s", core.ErrFulfillmentRecordNotFound, trimmedID)
		}
		return core.FulfillmentRecord{}, err
	}
	if err := core.ValidateFulfillmentTransition(core.FulfillmentStatus(current.Status), status); err != nil {
		return core.FulfillmentRecord{}, err
	}
	completed := completedAt.UTC()
	current.Status = string(status)
	current.ErrorDetail = errorDetail
	current.CompletedAt = &completed

	updated, err := s.repo.Update(ctx, current, repository.UpdateByID(trimmedID))
	if err != nil {
		return core.FulfillmentRecord{}, err
	}
	return fulfillmentToDomain(updated), nil
}

func (s *FulfillmentStore) ListByReference(ctx context.Context, providerID string, reference string) ([]core.FulfillmentRecord, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: fulfillment store is not configured")
	}
	selectors := []repository.SelectCriteria{
		repository.SelectBy("reference", "=", strings.TrimSpace(reference)),
		repository.OrderBy("attempted_at ASC"),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("action ASC", "attempt ASC")
		}),
	}
	if providerID = strings.TrimSpace(providerID); providerID != "" {
		selectors = append(selectors, repository.SelectBy("provider_id", "=", providerID))
	}
	records, _, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, err
	}
	out := make([]core.FulfillmentRecord, 0, len(records))
	for _, record := range records {
		out = append(out, fulfillmentToDomain(record))
	}
	return out, nil
}

func (s *FulfillmentStore) lastAttempt(
	ctx context.Context,
	tx bun.Tx,
	providerID string,
	reference string,
	action core.FulfillmentAction,
) (int, error) {
	var last sql.NullInt64
	err := tx.NewSelect().
		Model((*fulfillmentRecord)(nil)).
		ColumnExpr("MAX(attempt)").
		Where("provider_id = ?", providerID).
		Where("reference = ?", reference).
		Where("action = ?", string(action)).
		Scan(ctx, &last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	if !last.Valid {
		return 0, nil
	}
	return int(last.Int64), nil
}

func fulfillmentToDomain(record *fulfillmentRecord) core.FulfillmentRecord {
	if record == nil {
		return core.FulfillmentRecord{}
	}
	result := core.FulfillmentRecord{
		ID:          record.ID,
		ProviderID:  record.ProviderID,
		Reference:   record.Reference,
		Action:      core.FulfillmentAction(record.Action),
		Status:      core.FulfillmentStatus(record.Status),
		Attempt:     record.Attempt,
		AttemptedAt: record.AttemptedAt.UTC(),
		ErrorDetail: record.ErrorDetail,
	}
	if record.CompletedAt != nil {
		completed := record.CompletedAt.UTC()
		result.CompletedAt = &completed
	}
	return result
}
