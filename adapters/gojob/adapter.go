package gojob

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-payhooks/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

const (
	JobIDFulfillmentRetry      = "payhooks.fulfillment.retry"
	ScriptPathFulfillmentRetry = "payhooks/fulfillment/retry"

	DedupPolicyDrop job.DeduplicationPolicy = "drop"
)

const (
	paramProviderID  = "provider_id"
	paramReference   = "reference"
	paramEventType   = "event_type"
	paramAmountMinor = "amount_minor"
	paramCurrency    = "currency"
	paramMetadata    = "metadata"
	paramReceivedAt  = "received_at"
	paramAction      = "action"
	paramAttempt     = "attempt"
	paramCause       = "cause"
)

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		MaxDelay:        5 * time.Minute,
		DeadLetterOnMax: true,
	}
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.Exhausted(attempt) {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// Exhausted reports whether attempt already used the whole budget.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}

// ToExecutionMessage encodes a fulfillment retry as a go-job message. The
// payment event travels with the message so the worker does not need to
// refetch it.
func ToExecutionMessage(retry core.FulfillmentRetry) *job.ExecutionMessage {
	event := retry.Event
	params := map[string]any{
		paramProviderID:  strings.TrimSpace(event.ProviderID),
		paramReference:   strings.TrimSpace(event.Reference),
		paramEventType:   strings.TrimSpace(event.EventType),
		paramAmountMinor: event.AmountMinor,
		paramCurrency:    strings.TrimSpace(event.Currency),
		paramMetadata:    copyStringMap(event.Metadata),
		paramAction:      string(retry.Action),
		paramAttempt:     retry.Attempt,
		paramCause:       strings.TrimSpace(retry.Cause),
	}
	if !event.ReceivedAt.IsZero() {
		params[paramReceivedAt] = event.ReceivedAt.UTC().Format(time.RFC3339Nano)
	}
	return &job.ExecutionMessage{
		JobID:          JobIDFulfillmentRetry,
		ScriptPath:     ScriptPathFulfillmentRetry,
		Parameters:     params,
		IdempotencyKey: retry.IdempotencyKey(),
		DedupPolicy:    DedupPolicyDrop,
	}
}

// FromExecutionMessage decodes a retry message. Parameters may hold native Go
// values or the generic shapes produced by a JSON round trip.
func FromExecutionMessage(msg *job.ExecutionMessage) (core.FulfillmentRetry, error) {
	if msg == nil {
		return core.FulfillmentRetry{}, fmt.Errorf("gojob: execution message is required")
	}
	if jobID := strings.TrimSpace(msg.JobID); jobID != JobIDFulfillmentRetry {
		return core.FulfillmentRetry{}, fmt.Errorf("gojob: unsupported job id %q", jobID)
	}
	params := msg.Parameters
	action, err := core.ParseFulfillmentAction(stringParam(params, paramAction))
	if err != nil {
		return core.FulfillmentRetry{}, fmt.Errorf("gojob: decode retry: %w", err)
	}
	amount, err := intParam(params, paramAmountMinor)
	if err != nil {
		return core.FulfillmentRetry{}, fmt.Errorf("gojob: decode retry: %w", err)
	}
	attempt, err := intParam(params, paramAttempt)
	if err != nil {
		return core.FulfillmentRetry{}, fmt.Errorf("gojob: decode retry: %w", err)
	}
	metadata, err := stringMapParam(params, paramMetadata)
	if err != nil {
		return core.FulfillmentRetry{}, fmt.Errorf("gojob: decode retry: %w", err)
	}

	event := core.PaymentEvent{
		ProviderID:  stringParam(params, paramProviderID),
		EventType:   stringParam(params, paramEventType),
		Reference:   stringParam(params, paramReference),
		AmountMinor: amount,
		Currency:    stringParam(params, paramCurrency),
		Metadata:    metadata,
	}
	if raw := stringParam(params, paramReceivedAt); raw != "" {
		if parsed, parseErr := time.Parse(time.RFC3339Nano, raw); parseErr == nil {
			event.ReceivedAt = parsed.UTC()
		}
	}
	if err := event.Validate(); err != nil {
		return core.FulfillmentRetry{}, fmt.Errorf("gojob: decode retry: %w", err)
	}
	return core.FulfillmentRetry{
		Event:   event,
		Action:  action,
		Attempt: int(attempt),
		Cause:   stringParam(params, paramCause),
	}, nil
}

// RetryEnqueuer schedules failed fulfillment actions on a go-job queue.
type RetryEnqueuer struct {
	enqueuer queue.Enqueuer
	policy   RetryPolicy
}

func NewRetryEnqueuer(enqueuer queue.Enqueuer, policy RetryPolicy) *RetryEnqueuer {
	return &RetryEnqueuer{enqueuer: enqueuer, policy: policy}
}

func (e *RetryEnqueuer) ScheduleRetry(ctx context.Context, retry core.FulfillmentRetry) error {
	if e == nil || e.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if _, err := core.ParseFulfillmentAction(string(retry.Action)); err != nil {
		return err
	}
	if err := retry.Event.Validate(); err != nil {
		return err
	}
	if e.policy.MaxAttempts > 0 && retry.Attempt > e.policy.MaxAttempts {
		return fmt.Errorf(
			"gojob: retry budget exhausted for %s %s after %d attempts",
			retry.Event.Key(),
			retry.Action,
			e.policy.MaxAttempts,
		)
	}
	return e.enqueuer.Enqueue(ctx, ToExecutionMessage(retry))
}

func stringParam(params map[string]any, key string) string {
	value, ok := params[key]
	if !ok || value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case fmt.Stringer:
		return strings.TrimSpace(typed.String())
	default:
		return strings.TrimSpace(fmt.Sprint(typed))
	}
}

func intParam(params map[string]any, key string) (int64, error) {
	value, ok := params[key]
	if !ok || value == nil {
		return 0, nil
	}
	switch typed := value.(type) {
	case int:
		return int64(typed), nil
	case int32:
		return int64(typed), nil
	case int64:
		return typed, nil
	case float64:
		if typed != float64(int64(typed)) {
			return 0, fmt.Errorf("%s must be an integer, got %v", key, typed)
		}
		return int64(typed), nil
	case json.Number:
		return typed.Int64()
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer: %w", key, err)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("%s has unsupported type %T", key, value)
	}
}

func stringMapParam(params map[string]any, key string) (map[string]string, error) {
	value, ok := params[key]
	if !ok || value == nil {
		return map[string]string{}, nil
	}
	switch typed := value.(type) {
	case map[string]string:
		return copyStringMap(typed), nil
	case map[string]any:
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			if v == nil {
				continue
			}
			out[k] = fmt.Sprint(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s has unsupported type %T", key, value)
	}
}

func copyStringMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var _ core.RetryScheduler = (*RetryEnqueuer)(nil)
