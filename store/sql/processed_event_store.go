package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ProcessedEventStore is the durable deduplicator. The unique
// (provider_id, reference) index makes the insert the atomic check.
type ProcessedEventStore struct {
	db   *bun.DB
	repo repository.Repository[*processedEventRecord]
}

func NewProcessedEventStore(db *bun.DB) (*ProcessedEventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*processedEventRecord](db, modelHandlers[processedEventRecord]())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid processed event repository wiring: %w", err)
		}
	}
	return &ProcessedEventStore{db: db, repo: repo}, nil
}

func (s *ProcessedEventStore) CheckAndMark(ctx context.Context, providerID string, reference string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: processed event store is not configured")
	}
	providerID = strings.TrimSpace(providerID)
	reference = strings.TrimSpace(reference)
	if providerID == "" || reference == "" {
		return false, fmt.Errorf("sqlstore: provider id and reference are required")
	}

	record := &processedEventRecord{
		ID:         uuid.NewString(),
		ProviderID: providerID,
		Reference:  reference,
		MarkedAt:   time.Now().UTC(),
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

// MarkedAt reports when a reference was first marked processed.
func (s *ProcessedEventStore) MarkedAt(ctx context.Context, providerID string, reference string) (time.Time, bool, error) {
	if s == nil || s.repo == nil {
		return time.Time{}, false, fmt.Errorf("sqlstore: processed event store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("provider_id", "=", strings.TrimSpace(providerID)),
		repository.SelectBy("reference", "=", strings.TrimSpace(reference)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	if len(records) == 0 {
		return time.Time{}, false, nil
	}
	return records[0].MarkedAt.UTC(), true, nil
}

// PurgeBefore deletes marks older than cutoff and returns how many were removed.
func (s *ProcessedEventStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: processed event store is not configured")
	}
	res, err := s.db.NewDelete().
		Model((*processedEventRecord)(nil)).
		Where("marked_at < ?", cutoff.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return affected, nil
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

