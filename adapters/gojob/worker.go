package gojob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-payhooks/core"
	"github.com/goliatone/go-payhooks/webhooks"

	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const defaultIdleDelay = time.Second

// RetryWorker drains fulfillment retries from a go-job queue. Each message
// re-runs exactly one action; failures are nacked with an exponential delay
// until the retry policy dead-letters them.
type RetryWorker struct {
	Dequeuer  queue.Dequeuer
	Retrier   core.FulfillmentRetrier
	Policy    RetryPolicy
	Backoff   webhooks.RetryPolicy
	Hooks     []worker.Hook
	Observer  core.Observer
	IdleDelay time.Duration
}

func NewRetryWorker(dequeuer queue.Dequeuer, retrier core.FulfillmentRetrier, policy RetryPolicy) *RetryWorker {
	return &RetryWorker{
		Dequeuer: dequeuer,
		Retrier:  retrier,
		Policy:   policy,
		Backoff: webhooks.ExponentialRetryPolicy{
			Initial: 5 * time.Second,
			Max:     5 * time.Minute,
		},
		IdleDelay: defaultIdleDelay,
	}
}

// Run processes messages until ctx is cancelled.
func (w *RetryWorker) Run(ctx context.Context) error {
	if w == nil || w.Dequeuer == nil || w.Retrier == nil {
		return fmt.Errorf("gojob: retry worker is not configured")
	}
	for {
		err := w.ProcessNext(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			continue
		}
		w.Observer.Error(ctx, "fulfillment retry worker error", map[string]any{
			"error": err.Error(),
		})
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.idleDelay()):
		}
	}
}

// ProcessNext handles one delivery. Action failures are settled on the queue
// and do not surface as errors; only queue and decoding problems do.
func (w *RetryWorker) ProcessNext(ctx context.Context) error {
	if w == nil || w.Dequeuer == nil || w.Retrier == nil {
		return fmt.Errorf("gojob: retry worker is not configured")
	}
	delivery, err := w.Dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return nil
	}
	msg := delivery.Message()
	startedAt := time.Now().UTC()

	retry, err := FromExecutionMessage(msg)
	if err != nil {
		nackErr := delivery.Nack(ctx, queue.NackOptions{DeadLetter: true, Reason: err.Error()})
		w.emit(ctx, hookFailure, worker.Event{
			Message:   msg,
			Delivery:  delivery,
			Err:       err,
			StartedAt: startedAt,
			Duration:  time.Since(startedAt),
		})
		return errors.Join(err, nackErr)
	}

	w.emit(ctx, hookStart, worker.Event{
		Message:   msg,
		Delivery:  delivery,
		Attempt:   retry.Attempt,
		StartedAt: startedAt,
	})

	record, retryErr := w.Retrier.Retry(ctx, retry.Event, retry.Action)
	if retryErr == nil {
		ackErr := delivery.Ack(ctx)
		w.emit(ctx, hookSuccess, worker.Event{
			Message:   msg,
			Delivery:  delivery,
			Attempt:   record.Attempt,
			StartedAt: startedAt,
			Duration:  time.Since(startedAt),
		})
		return ackErr
	}

	attempt := record.Attempt
	if attempt <= 0 {
		attempt = retry.Attempt
	}
	opts := w.Policy.NormalizeAttempt(queue.NackOptions{
		Delay:   w.backoff().NextDelay(attempt),
		Requeue: true,
		Reason:  retryErr.Error(),
	}, attempt)
	if permanentFailure(retryErr) {
		opts = queue.NackOptions{DeadLetter: true, Reason: retryErr.Error()}
	}
	nackErr := delivery.Nack(ctx, opts)

	event := worker.Event{
		Message:   msg,
		Delivery:  delivery,
		Attempt:   attempt,
		Delay:     opts.Delay,
		Err:       retryErr,
		StartedAt: startedAt,
		Duration:  time.Since(startedAt),
	}
	if opts.Requeue {
		w.emit(ctx, hookRetry, event)
	} else {
		w.emit(ctx, hookFailure, event)
	}
	return nackErr
}

type hookKind int

const (
	hookStart hookKind = iota
	hookSuccess
	hookFailure
	hookRetry
)

func (w *RetryWorker) emit(ctx context.Context, kind hookKind, event worker.Event) {
	for _, hook := range w.Hooks {
		if hook == nil {
			continue
		}
		switch kind {
		case hookStart:
			hook.OnStart(ctx, event)
		case hookSuccess:
			hook.OnSuccess(ctx, event)
		case hookFailure:
			hook.OnFailure(ctx, event)
		case hookRetry:
			hook.OnRetry(ctx, event)
		}
	}
}

// permanentFailure reports errors another attempt cannot fix.
func permanentFailure(err error) bool {
	if core.ClassifyError(err) == core.ErrorClassMalformed {
		return true
	}
	mapped := core.MapError(err)
	return mapped != nil && mapped.TextCode == core.ErrorBadInput
}

func (w *RetryWorker) backoff() webhooks.RetryPolicy {
	if w.Backoff != nil {
		return w.Backoff
	}
	return webhooks.ExponentialRetryPolicy{}
}

func (w *RetryWorker) idleDelay() time.Duration {
	if w.IdleDelay > 0 {
		return w.IdleDelay
	}
	return defaultIdleDelay
}
