package gojob

import (
	"context"

	"github.com/goliatone/go-payhooks/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue/worker"
)

// ObserverHook reports worker lifecycle events through a core.Observer.
type ObserverHook struct {
	Observer core.Observer
}

func NewObserverHook(observer core.Observer) *ObserverHook {
	return &ObserverHook{Observer: observer}
}

func (h *ObserverHook) OnStart(ctx context.Context, event worker.Event) {
	if h == nil {
		return
	}
	h.Observer.Info(ctx, "fulfillment retry started", eventFields(event))
}

func (h *ObserverHook) OnSuccess(ctx context.Context, event worker.Event) {
	if h == nil {
		return
	}
	h.Observer.ObserveOperation(ctx, event.StartedAt, "fulfillment_retry", nil, eventFields(event))
}

func (h *ObserverHook) OnFailure(ctx context.Context, event worker.Event) {
	if h == nil {
		return
	}
	fields := eventFields(event)
	fields["dead_letter"] = true
	h.Observer.ObserveOperation(ctx, event.StartedAt, "fulfillment_retry", event.Err, fields)
}

func (h *ObserverHook) OnRetry(ctx context.Context, event worker.Event) {
	if h == nil {
		return
	}
	fields := eventFields(event)
	fields["delay_ms"] = event.Delay.Milliseconds()
	if event.Err != nil {
		fields["error"] = event.Err.Error()
	}
	h.Observer.Warn(ctx, "fulfillment retry rescheduled", fields)
}

func eventFields(event worker.Event) map[string]any {
	fields := map[string]any{
		"attempt": event.Attempt,
	}
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	if message == nil {
		return fields
	}
	fields["job_id"] = message.JobID
	fields["idempotency_key"] = message.IdempotencyKey
	addRetryFields(fields, message)
	return fields
}

func addRetryFields(fields map[string]any, message *job.ExecutionMessage) {
	for _, key := range []string{paramProviderID, paramReference, paramAction} {
		if value := stringParam(message.Parameters, key); value != "" {
			fields[key] = value
		}
	}
}

var _ worker.Hook = (*ObserverHook)(nil)
