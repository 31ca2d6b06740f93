package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// Deduplicator answers whether a provider reference was already processed
// and marks it processed in the same atomic step.
type Deduplicator interface {
	CheckAndMark(ctx context.Context, providerID string, reference string) (alreadyProcessed bool, err error)
}

type FulfillmentStore interface {
	BeginAttempt(ctx context.Context, record FulfillmentRecord) (FulfillmentRecord, error)
	FinishAttempt(
		ctx context.Context,
		id string,
		status FulfillmentStatus,
		errorDetail string,
		completedAt time.Time,
	) (FulfillmentRecord, error)
	ListByReference(ctx context.Context, providerID string, reference string) ([]FulfillmentRecord, error)
}

type MalformedEventStore interface {
	RecordMalformed(ctx context.Context, event MalformedEvent) (MalformedEvent, error)
	ListMalformed(ctx context.Context, providerID string, limit int) ([]MalformedEvent, error)
}

// ActionHandler performs one downstream fulfillment step. Implementations must
// honor ctx cancellation; the dispatcher bounds each call with a timeout.
type ActionHandler interface {
	Action() FulfillmentAction
	Execute(ctx context.Context, event PaymentEvent, order Order) (detail string, err error)
}

type RetryScheduler interface {
	ScheduleRetry(ctx context.Context, retry FulfillmentRetry) error
}

type FulfillmentRetrier interface {
	Retry(ctx context.Context, event PaymentEvent, action FulfillmentAction) (FulfillmentRecord, error)
}

type PaymentGateway interface {
	ProviderID() string
	InitializeTransaction(ctx context.Context, req InitializeTransactionRequest) (InitializeTransactionResult, error)
	VerifyTransaction(ctx context.Context, reference string) (VerifiedTransaction, error)
}

type OrderNotifier interface {
	NotifyOrder(ctx context.Context, notification OrderNotification) error
}

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Metadata             map[string]any
	Timeout              time.Duration
	Idempotency          string
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}
