package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidFulfillmentAction           = errors.New("core: invalid fulfillment action")
	ErrInvalidFulfillmentStatusTransition = errors.New("core: invalid fulfillment status transition")
	ErrFulfillmentRecordNotFound          = errors.New("core: fulfillment record not found")
	ErrPaymentNotSuccessful               = errors.New("core: payment not successful")
)

const EventTypeChargeSuccess = "charge.success"

type PaymentEvent struct {
	ProviderID  string
	EventType   string
	Reference   string
	AmountMinor int64
	Currency    string
	Metadata    map[string]string
	ReceivedAt  time.Time
}

func (e PaymentEvent) Key() string {
	return strings.TrimSpace(e.ProviderID) + ":" + strings.TrimSpace(e.Reference)
}

// DisplayAmount renders AmountMinor in major units with two decimals.
func (e PaymentEvent) DisplayAmount() string {
	return FormatMinorUnits(e.AmountMinor)
}

func (e PaymentEvent) Validate() error {
	if strings.TrimSpace(e.ProviderID) == "" {
		return fmt.Errorf("core: payment event provider id is required")
	}
	if strings.TrimSpace(e.Reference) == "" {
		return fmt.Errorf("core: payment event reference is required")
	}
	if strings.TrimSpace(e.EventType) == "" {
		return fmt.Errorf("core: payment event type is required")
	}
	return nil
}

type FulfillmentAction string

const (
	FulfillmentActionDeliverGoods FulfillmentAction = "deliver_goods"
	FulfillmentActionNotifyAdmin  FulfillmentAction = "notify_admin"
	FulfillmentActionNotifyBuyer  FulfillmentAction = "notify_buyer"
)

func ParseFulfillmentAction(value string) (FulfillmentAction, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	switch FulfillmentAction(normalized) {
	case FulfillmentActionDeliverGoods, FulfillmentActionNotifyAdmin, FulfillmentActionNotifyBuyer:
		return FulfillmentAction(normalized), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFulfillmentAction, value)
	}
}

type FulfillmentStatus string

const (
	FulfillmentStatusPending FulfillmentStatus = "pending"
	FulfillmentStatusSuccess FulfillmentStatus = "success"
	FulfillmentStatusFailed  FulfillmentStatus = "failed"
)

var fulfillmentTransitions = map[FulfillmentStatus]map[FulfillmentStatus]struct{}{
	FulfillmentStatusPending: {
		FulfillmentStatusSuccess: {},
		FulfillmentStatusFailed:  {},
	},
}

// ValidateFulfillmentTransition allows pending to move to a terminal status
// exactly once.
func ValidateFulfillmentTransition(from, to FulfillmentStatus) error {
	next, ok := fulfillmentTransitions[from]
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidFulfillmentStatusTransition, from, to)
	}
	if _, ok := next[to]; !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidFulfillmentStatusTransition, from, to)
	}
	return nil
}

type FulfillmentRecord struct {
	ID          string
	ProviderID  string
	Reference   string
	Action      FulfillmentAction
	Status      FulfillmentStatus
	Attempt     int
	AttemptedAt time.Time
	CompletedAt *time.Time
	ErrorDetail string
}

func (r FulfillmentRecord) Terminal() bool {
	return r.Status == FulfillmentStatusSuccess || r.Status == FulfillmentStatusFailed
}

type MalformedEvent struct {
	ID            string
	ProviderID    string
	Reference     string
	EventType     string
	Reason        string
	MissingFields []string
	Payload       []byte
	RecordedAt    time.Time
}

// DispatchSummary aggregates one fan-out. Partial is set when at least one
// action failed and at least one succeeded.
type DispatchSummary struct {
	ProviderID string
	Reference  string
	Records    []FulfillmentRecord
	Succeeded  int
	Failed     int
	Partial    bool
}

func SummarizeDispatch(event PaymentEvent, records []FulfillmentRecord) DispatchSummary {
	summary := DispatchSummary{
		ProviderID: event.ProviderID,
		Reference:  event.Reference,
		Records:    append([]FulfillmentRecord(nil), records...),
	}
	for _, record := range records {
		switch record.Status {
		case FulfillmentStatusSuccess:
			summary.Succeeded++
		case FulfillmentStatusFailed:
			summary.Failed++
		}
	}
	summary.Partial = summary.Failed > 0 && summary.Succeeded > 0
	return summary
}

type FulfillmentRetry struct {
	Event   PaymentEvent
	Action  FulfillmentAction
	Attempt int
	Cause   string
}

func (r FulfillmentRetry) IdempotencyKey() string {
	return fmt.Sprintf("%s:%s:%s:%d", r.Event.ProviderID, r.Event.Reference, r.Action, r.Attempt)
}

type WebhookOutcome string

const (
	WebhookOutcomeAccepted  WebhookOutcome = "accepted"
	WebhookOutcomeDuplicate WebhookOutcome = "duplicate"
	WebhookOutcomeIgnored   WebhookOutcome = "ignored"
	WebhookOutcomeMalformed WebhookOutcome = "malformed"
	WebhookOutcomeRejected  WebhookOutcome = "rejected"
	WebhookOutcomeFailed    WebhookOutcome = "failed"
)

// WebhookState tracks where a delivery stopped in the pipeline.
type WebhookState string

const (
	WebhookStateReceived         WebhookState = "received"
	WebhookStateSignatureChecked WebhookState = "signature_checked"
	WebhookStateParsed           WebhookState = "parsed"
	WebhookStateDedupChecked     WebhookState = "dedup_checked"
	WebhookStateDispatched       WebhookState = "dispatched"
	WebhookStateAcknowledged     WebhookState = "acknowledged"
)

type InboundRequest struct {
	ProviderID string
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
	ReceivedAt time.Time
}

type WebhookResult struct {
	Accepted   bool
	StatusCode int
	Outcome    WebhookOutcome
	State      WebhookState
	Reference  string
	Metadata   map[string]any
}

type InitializePaymentRequest struct {
	AmountMajor     string
	BuyerNumber     string
	RecipientNumber string
	Plan            string
	PlanName        string
	Network         string
	Email           string
}

func (r InitializePaymentRequest) Validate() error {
	if strings.TrimSpace(r.AmountMajor) == "" {
		return fmt.Errorf("core: amount is required")
	}
	if strings.TrimSpace(r.BuyerNumber) == "" {
		return fmt.Errorf("core: buyer number is required")
	}
	if strings.TrimSpace(r.RecipientNumber) == "" {
		return fmt.Errorf("core: recipient number is required")
	}
	if strings.TrimSpace(r.Plan) == "" {
		return fmt.Errorf("core: plan is required")
	}
	return nil
}

type InitializePaymentResult struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
	AmountMinor      int64
}

type VerifyPaymentRequest struct {
	Reference       string
	PlanName        string
	PlanPrice       string
	RecipientNumber string
	BuyerNumber     string
	PaymentMethod   string
}

func (r VerifyPaymentRequest) Validate() error {
	if strings.TrimSpace(r.Reference) == "" {
		return fmt.Errorf("core: transaction reference is required")
	}
	return nil
}

type VerifyPaymentResult struct {
	Reference       string
	Status          string
	AmountMinor     int64
	Currency        string
	Notified        bool
	NotifyError     string
	VerifiedAt      time.Time
	TransactionMeta map[string]string
}

type RetryFulfillmentRequest struct {
	ProviderID string
	Reference  string
	Action     FulfillmentAction
}

func (r RetryFulfillmentRequest) Validate() error {
	if strings.TrimSpace(r.Reference) == "" {
		return fmt.Errorf("core: reference is required")
	}
	if _, err := ParseFulfillmentAction(string(r.Action)); err != nil {
		return err
	}
	return nil
}

type InitializeTransactionRequest struct {
	Email       string
	AmountMinor int64
	Currency    string
	CallbackURL string
	Metadata    map[string]string
}

type InitializeTransactionResult struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

type VerifiedTransaction struct {
	Reference   string
	Status      string
	AmountMinor int64
	Currency    string
	Metadata    map[string]string
	PaidAt      *time.Time
}

func (t VerifiedTransaction) Successful() bool {
	return strings.EqualFold(strings.TrimSpace(t.Status), "success")
}

type OrderNotification struct {
	Reference       string
	PlanName        string
	PlanPrice       string
	RecipientNumber string
	BuyerNumber     string
	PaymentMethod   string
	Status          string
}
