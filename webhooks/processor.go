package webhooks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-payhooks/core"
)

type Verifier interface {
	Verify(ctx context.Context, req core.InboundRequest) error
}

// EventParser turns a verified raw body into a PaymentEvent. It is the only
// place provider payload shapes are interpreted.
type EventParser interface {
	ParseEvent(ctx context.Context, req core.InboundRequest) (core.PaymentEvent, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, event core.PaymentEvent) ([]core.FulfillmentRecord, error)
}

type Processor struct {
	ProviderID        string
	Verifier          Verifier
	Parser            EventParser
	Deduplicator      core.Deduplicator
	Dispatcher        Dispatcher
	Malformed         core.MalformedEventStore
	Runner            *BackgroundRunner
	SuccessEventTypes []string
	Observer          core.Observer
	Now               func() time.Time
}

func NewProcessor(template ProviderWebhookTemplate, dedup core.Deduplicator, dispatcher Dispatcher) *Processor {
	successTypes := append([]string(nil), template.SuccessEventTypes...)
	if len(successTypes) == 0 {
		successTypes = []string{core.EventTypeChargeSuccess}
	}
	return &Processor{
		ProviderID:        strings.TrimSpace(template.ProviderID),
		Verifier:          template.Verifier,
		Parser:            template.Parser,
		Deduplicator:      dedup,
		Dispatcher:        dispatcher,
		SuccessEventTypes: successTypes,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (p *Processor) Process(ctx context.Context, req core.InboundRequest) (result core.WebhookResult, err error) {
	startedAt := time.Now().UTC()
	result = core.WebhookResult{State: core.WebhookStateReceived}
	defer func() {
		if p == nil {
			return
		}
		fields := map[string]any{
			"provider_id": p.ProviderID,
			"reference":   result.Reference,
			"outcome":     string(result.Outcome),
			"state":       string(result.State),
			"status_code": result.StatusCode,
		}
		if err != nil {
			fields["error_class"] = string(core.ClassifyError(err))
		}
		p.Observer.ObserveOperation(ctx, startedAt, "webhook_process", err, fields)
	}()

	if p == nil || p.Verifier == nil || p.Parser == nil || p.Deduplicator == nil || p.Dispatcher == nil {
		return p.fail(result, core.NewInternalError(nil, "webhooks: processor requires verifier, parser, deduplicator and dispatcher"))
	}
	if req.ProviderID == "" {
		req.ProviderID = p.ProviderID
	}
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = p.now()
	}

	if verifyErr := p.Verifier.Verify(ctx, req); verifyErr != nil {
		p.Observer.Warn(ctx, "webhook signature rejected", map[string]any{
			"provider_id": p.ProviderID,
			"security":    true,
			"body_bytes":  len(req.Body),
		})
		result.Accepted = false
		result.StatusCode = http.StatusUnauthorized
		result.Outcome = core.WebhookOutcomeRejected
		result.Metadata = map[string]any{"provider_id": p.ProviderID, "rejected": true}
		return result, core.NewSignatureError(verifyErr, p.ProviderID)
	}
	result.State = core.WebhookStateSignatureChecked

	event, parseErr := p.Parser.ParseEvent(ctx, req)
	if parseErr != nil {
		return p.acknowledgeMalformed(ctx, result, req, event, parseErr)
	}
	if event.ProviderID == "" {
		event.ProviderID = p.ProviderID
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = req.ReceivedAt
	}
	result.Reference = event.Reference
	result.State = core.WebhookStateParsed

	if !p.isSuccessEvent(event.EventType) {
		return p.acknowledge(result, core.WebhookOutcomeIgnored, map[string]any{"event_type": event.EventType}), nil
	}
	if strings.TrimSpace(event.Reference) == "" {
		return p.acknowledgeMalformed(ctx, result, req, event, fmt.Errorf("webhooks: success event carries no reference"))
	}
	if _, orderErr := core.ParseOrder(event.Metadata); orderErr != nil {
		return p.acknowledgeMalformed(ctx, result, req, event, orderErr)
	}

	if p.Runner != nil && !p.Runner.Accepting() {
		return p.fail(result, core.NewInternalError(ErrRunnerClosed, "webhooks: not accepting deliveries"))
	}

	alreadyProcessed, dedupErr := p.Deduplicator.CheckAndMark(ctx, event.ProviderID, event.Reference)
	if dedupErr != nil {
		return p.fail(result, core.NewInternalError(dedupErr, "webhooks: dedup check failed"))
	}
	result.State = core.WebhookStateDedupChecked
	if alreadyProcessed {
		return p.acknowledge(result, core.WebhookOutcomeDuplicate, map[string]any{"deduped": true}), nil
	}

	if p.Runner != nil {
		fields := map[string]any{"provider_id": event.ProviderID, "reference": event.Reference}
		goErr := p.Runner.Go(ctx, "dispatch", fields, func(taskCtx context.Context) error {
			_, dispatchErr := p.Dispatcher.Dispatch(taskCtx, event)
			return dispatchErr
		})
		if goErr == nil {
			result.State = core.WebhookStateDispatched
			return p.acknowledge(result, core.WebhookOutcomeAccepted, nil), nil
		}
		// The reference is already marked; a provider retry would be deduped,
		// so the event is dispatched here instead of being dropped.
		p.Observer.Warn(ctx, "background runner refused dispatch; dispatching inline", map[string]any{
			"provider_id": event.ProviderID,
			"reference":   event.Reference,
			"error":       goErr.Error(),
		})
	}
	return p.dispatchInline(ctx, result, event), nil
}

func (p *Processor) dispatchInline(ctx context.Context, result core.WebhookResult, event core.PaymentEvent) core.WebhookResult {
	records, dispatchErr := p.Dispatcher.Dispatch(ctx, event)
	result.State = core.WebhookStateDispatched
	if dispatchErr != nil {
		if core.ClassifyError(dispatchErr) == core.ErrorClassMalformed {
			return p.acknowledge(result, core.WebhookOutcomeMalformed, nil)
		}
		p.Observer.Error(ctx, "inline dispatch failed after dedup mark", map[string]any{
			"provider_id": event.ProviderID,
			"reference":   event.Reference,
			"error":       dispatchErr.Error(),
		})
	}
	summary := core.SummarizeDispatch(event, records)
	result.Metadata = map[string]any{
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"partial":   summary.Partial,
	}
	return p.acknowledge(result, core.WebhookOutcomeAccepted, result.Metadata)
}

func (p *Processor) acknowledge(result core.WebhookResult, outcome core.WebhookOutcome, metadata map[string]any) core.WebhookResult {
	result.Accepted = true
	result.StatusCode = http.StatusOK
	result.Outcome = outcome
	result.State = core.WebhookStateAcknowledged
	result.Metadata = ensureMetadata(metadata)
	result.Metadata["provider_id"] = p.ProviderID
	if result.Reference != "" {
		result.Metadata["reference"] = result.Reference
	}
	return result
}

func (p *Processor) acknowledgeMalformed(
	ctx context.Context,
	result core.WebhookResult,
	req core.InboundRequest,
	event core.PaymentEvent,
	cause error,
) (core.WebhookResult, error) {
	malformed := core.MalformedEvent{
		ProviderID: p.ProviderID,
		Reference:  event.Reference,
		EventType:  event.EventType,
		Reason:     cause.Error(),
		Payload:    req.Body,
		RecordedAt: p.now(),
	}
	var missing *core.MissingFieldsError
	if errors.As(cause, &missing) {
		malformed.MissingFields = append([]string(nil), missing.Fields...)
	}
	if p.Malformed != nil {
		if _, err := p.Malformed.RecordMalformed(ctx, malformed); err != nil {
			return p.fail(result, core.NewInternalError(err, "webhooks: record malformed event failed"))
		}
	}
	p.Observer.Warn(ctx, "malformed payment event needs manual attention", map[string]any{
		"provider_id":    p.ProviderID,
		"reference":      event.Reference,
		"reason":         malformed.Reason,
		"missing_fields": malformed.MissingFields,
	})
	result.Reference = event.Reference
	return p.acknowledge(result, core.WebhookOutcomeMalformed, map[string]any{
		"missing_fields": malformed.MissingFields,
	}), nil
}

func (p *Processor) fail(result core.WebhookResult, err error) (core.WebhookResult, error) {
	result.Accepted = false
	result.StatusCode = http.StatusInternalServerError
	result.Outcome = core.WebhookOutcomeFailed
	return result, err
}

func (p *Processor) isSuccessEvent(eventType string) bool {
	eventType = strings.TrimSpace(eventType)
	for _, candidate := range p.SuccessEventTypes {
		if strings.EqualFold(strings.TrimSpace(candidate), eventType) {
			return true
		}
	}
	return false
}

func (p *Processor) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func ensureMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return metadata
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
