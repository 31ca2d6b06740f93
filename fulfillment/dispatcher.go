package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-payhooks/core"
)

const DefaultActionTimeout = 8 * time.Second

// Dispatcher fans a verified payment event out to its configured actions.
// Actions run concurrently, each under its own timeout, and each attempt is
// recorded whether it succeeds or not. There is no rollback: the payment was
// already captured upstream.
type Dispatcher struct {
	Actions        []core.ActionHandler
	Store          core.FulfillmentStore
	Malformed      core.MalformedEventStore
	RetryScheduler core.RetryScheduler
	ActionTimeout  time.Duration
	Observer       core.Observer
	Now            func() time.Time
}

func NewDispatcher(store core.FulfillmentStore, actions ...core.ActionHandler) *Dispatcher {
	handlers := make([]core.ActionHandler, 0, len(actions))
	for _, action := range actions {
		if action != nil {
			handlers = append(handlers, action)
		}
	}
	return &Dispatcher{
		Actions:       handlers,
		Store:         store,
		ActionTimeout: DefaultActionTimeout,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, event core.PaymentEvent) (records []core.FulfillmentRecord, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		summary := core.SummarizeDispatch(event, records)
		d.observer().ObserveOperation(ctx, startedAt, "fulfillment_dispatch", err, map[string]any{
			"provider_id": event.ProviderID,
			"reference":   event.Reference,
			"succeeded":   summary.Succeeded,
			"failed":      summary.Failed,
			"partial":     summary.Partial,
		})
	}()

	if d == nil || d.Store == nil {
		return nil, fmt.Errorf("fulfillment: dispatcher requires a fulfillment store")
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	order, err := core.ParseOrder(event.Metadata)
	if err != nil {
		return nil, d.recordMalformed(ctx, event, err)
	}

	existing, listErr := d.Store.ListByReference(ctx, event.ProviderID, event.Reference)
	if listErr != nil {
		d.observer().Warn(ctx, "could not load prior fulfillment attempts", map[string]any{
			"provider_id": event.ProviderID,
			"reference":   event.Reference,
			"error":       listErr.Error(),
		})
	}

	type job struct {
		handler core.ActionHandler
		attempt int
	}
	jobs := make([]job, 0, len(d.Actions))
	for _, handler := range d.Actions {
		action := handler.Action()
		if succeeded(existing, action) {
			continue
		}
		jobs = append(jobs, job{handler: handler, attempt: lastAttempt(existing, action) + 1})
	}

	records = make([]core.FulfillmentRecord, len(jobs))
	storeErrs := make([]error, len(jobs))
	var wg sync.WaitGroup
	for i, item := range jobs {
		wg.Add(1)
		go func(index int, handler core.ActionHandler, attempt int) {
			defer wg.Done()
			records[index], storeErrs[index] = d.runAction(ctx, event, order, handler, attempt)
		}(i, item.handler, item.attempt)
	}
	wg.Wait()

	for _, record := range records {
		if record.Status != core.FulfillmentStatusFailed {
			continue
		}
		d.scheduleRetry(ctx, event, record)
	}
	if joined := errors.Join(storeErrs...); joined != nil {
		return records, core.NewInternalError(joined, "fulfillment: recording attempts failed")
	}
	return records, nil
}

// Retry runs one action again. A prior successful attempt is returned as is.
func (d *Dispatcher) Retry(ctx context.Context, event core.PaymentEvent, action core.FulfillmentAction) (core.FulfillmentRecord, error) {
	if d == nil || d.Store == nil {
		return core.FulfillmentRecord{}, fmt.Errorf("fulfillment: dispatcher requires a fulfillment store")
	}
	if err := event.Validate(); err != nil {
		return core.FulfillmentRecord{}, err
	}
	handler := d.handlerFor(action)
	if handler == nil {
		return core.FulfillmentRecord{}, core.NewBadInputError(fmt.Errorf("fulfillment: action %q is not configured", action))
	}
	order, err := core.ParseOrder(event.Metadata)
	if err != nil {
		return core.FulfillmentRecord{}, core.NewMalformedEventError(err, event.ProviderID, event.Reference)
	}

	existing, err := d.Store.ListByReference(ctx, event.ProviderID, event.Reference)
	if err != nil {
		return core.FulfillmentRecord{}, core.NewInternalError(err, "fulfillment: load prior attempts failed")
	}
	for _, record := range existing {
		if record.Action == action && record.Status == core.FulfillmentStatusSuccess {
			return record, nil
		}
	}

	record, storeErr := d.runAction(ctx, event, order, handler, lastAttempt(existing, action)+1)
	if storeErr != nil {
		return record, core.NewInternalError(storeErr, "fulfillment: recording attempt failed")
	}
	if record.Status == core.FulfillmentStatusFailed {
		return record, core.NewDownstreamError(errors.New(record.ErrorDetail), action, event.Reference)
	}
	return record, nil
}

func (d *Dispatcher) runAction(
	ctx context.Context,
	event core.PaymentEvent,
	order core.Order,
	handler core.ActionHandler,
	attempt int,
) (core.FulfillmentRecord, error) {
	startedAt := time.Now().UTC()
	action := handler.Action()
	var storeErrs []error

	record, err := d.Store.BeginAttempt(ctx, core.FulfillmentRecord{
		ProviderID:  event.ProviderID,
		Reference:   event.Reference,
		Action:      action,
		Status:      core.FulfillmentStatusPending,
		Attempt:     attempt,
		AttemptedAt: d.now(),
	})
	if err != nil {
		storeErrs = append(storeErrs, fmt.Errorf("begin %s: %w", action, err))
		record = core.FulfillmentRecord{
			ProviderID:  event.ProviderID,
			Reference:   event.Reference,
			Action:      action,
			Status:      core.FulfillmentStatusPending,
			Attempt:     attempt,
			AttemptedAt: d.now(),
		}
	}

	timeout := d.actionTimeout()
	actionCtx, cancel := context.WithTimeout(ctx, timeout)
	detail, execErr := execute(actionCtx, handler, event, order)
	if execErr != nil && errors.Is(actionCtx.Err(), context.DeadlineExceeded) {
		execErr = fmt.Errorf("timed out after %s: %w", timeout, execErr)
	}
	cancel()

	status := core.FulfillmentStatusSuccess
	if execErr != nil {
		status = core.FulfillmentStatusFailed
		detail = execErr.Error()
	}
	completedAt := d.now()
	if record.ID != "" {
		finished, finishErr := d.Store.FinishAttempt(ctx, record.ID, status, detail, completedAt)
		if finishErr != nil {
			storeErrs = append(storeErrs, fmt.Errorf("finish %s: %w", action, finishErr))
		} else {
			record = finished
		}
	}
	if record.Status != status {
		record.Status = status
		record.ErrorDetail = detail
		record.CompletedAt = &completedAt
	}

	var observed error
	if execErr != nil {
		observed = core.NewDownstreamError(execErr, action, event.Reference)
	}
	d.observer().ObserveOperation(ctx, startedAt, "fulfillment_action", observed, map[string]any{
		"provider_id": event.ProviderID,
		"reference":   event.Reference,
		"action":      string(action),
		"attempt":     record.Attempt,
	})
	return record, errors.Join(storeErrs...)
}

func (d *Dispatcher) scheduleRetry(ctx context.Context, event core.PaymentEvent, record core.FulfillmentRecord) {
	if d.RetryScheduler == nil {
		return
	}
	retry := core.FulfillmentRetry{
		Event:   event,
		Action:  record.Action,
		Attempt: record.Attempt + 1,
		Cause:   record.ErrorDetail,
	}
	if err := d.RetryScheduler.ScheduleRetry(ctx, retry); err != nil {
		d.observer().Error(ctx, "schedule fulfillment retry failed", map[string]any{
			"provider_id": event.ProviderID,
			"reference":   event.Reference,
			"action":      string(record.Action),
			"error":       err.Error(),
		})
	}
}

func (d *Dispatcher) recordMalformed(ctx context.Context, event core.PaymentEvent, cause error) error {
	malformedErr := core.NewMalformedEventError(cause, event.ProviderID, event.Reference)
	if d.Malformed == nil {
		return malformedErr
	}
	entry := core.MalformedEvent{
		ProviderID: event.ProviderID,
		Reference:  event.Reference,
		EventType:  event.EventType,
		Reason:     cause.Error(),
		RecordedAt: d.now(),
	}
	var missing *core.MissingFieldsError
	if errors.As(cause, &missing) {
		entry.MissingFields = append([]string(nil), missing.Fields...)
	}
	if _, err := d.Malformed.RecordMalformed(ctx, entry); err != nil {
		return errors.Join(malformedErr, fmt.Errorf("fulfillment: record malformed event: %w", err))
	}
	return malformedErr
}

func (d *Dispatcher) handlerFor(action core.FulfillmentAction) core.ActionHandler {
	for _, handler := range d.Actions {
		if handler.Action() == action {
			return handler
		}
	}
	return nil
}

func (d *Dispatcher) actionTimeout() time.Duration {
	if d != nil && d.ActionTimeout > 0 {
		return d.ActionTimeout
	}
	return DefaultActionTimeout
}

func (d *Dispatcher) observer() core.Observer {
	if d == nil {
		return core.Observer{}
	}
	return d.Observer
}

func (d *Dispatcher) now() time.Time {
	if d != nil && d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func execute(ctx context.Context, handler core.ActionHandler, event core.PaymentEvent, order core.Order) (detail string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("action %s panicked: %v", handler.Action(), recovered)
		}
	}()
	detail, err = handler.Execute(ctx, event, order)
	return strings.TrimSpace(detail), err
}

func succeeded(records []core.FulfillmentRecord, action core.FulfillmentAction) bool {
	for _, record := range records {
		if record.Action == action && record.Status == core.FulfillmentStatusSuccess {
			return true
		}
	}
	return false
}

func lastAttempt(records []core.FulfillmentRecord, action core.FulfillmentAction) int {
	attempt := 0
	for _, record := range records {
		if record.Action == action && record.Attempt > attempt {
			attempt = record.Attempt
		}
	}
	return attempt
}

var _ core.FulfillmentRetrier = (*Dispatcher)(nil)
