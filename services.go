package payhooks

import "github.com/goliatone/go-payhooks/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type PaymentEvent = core.PaymentEvent
type FulfillmentRecord = core.FulfillmentRecord
type MalformedEvent = core.MalformedEvent
type InboundRequest = core.InboundRequest
type WebhookResult = core.WebhookResult

type InitializePaymentRequest = core.InitializePaymentRequest
type InitializePaymentResult = core.InitializePaymentResult

type VerifyPaymentRequest = core.VerifyPaymentRequest
type VerifyPaymentResult = core.VerifyPaymentResult

type RetryFulfillmentRequest = core.RetryFulfillmentRequest

var (
	WithLogger              = core.WithLogger
	WithLoggerProvider      = core.WithLoggerProvider
	WithMetricsRecorder     = core.WithMetricsRecorder
	WithErrorFactory        = core.WithErrorFactory
	WithErrorMapper         = core.WithErrorMapper
	WithConfigProvider      = core.WithConfigProvider
	WithOptionsResolver     = core.WithOptionsResolver
	WithPaymentGateway      = core.WithPaymentGateway
	WithOrderNotifier       = core.WithOrderNotifier
	WithFulfillmentStore    = core.WithFulfillmentStore
	WithMalformedEventStore = core.WithMalformedEventStore
	WithFulfillmentRetrier  = core.WithFulfillmentRetrier
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}
