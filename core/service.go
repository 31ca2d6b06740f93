package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Service carries the checkout and operator use cases that sit around the
// webhook pipeline: payment initialization and verification, record lookup
// and manual fulfillment retries.
type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	observer        Observer
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	gateway         PaymentGateway
	notifier        OrderNotifier
	fulfillments    FulfillmentStore
	malformed       MalformedEventStore
	retrier         FulfillmentRetrier
	now             func() time.Time
}

type ServiceDependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ErrorFactory    ErrorFactory
	ErrorMapper     ErrorMapper
	ConfigProvider  ConfigProvider
	OptionsResolver OptionsResolver
	Gateway         PaymentGateway
	Notifier        OrderNotifier
	Fulfillments    FulfillmentStore
	Malformed       MalformedEventStore
	Retrier         FulfillmentRetrier
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("payhooks", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("payhooks"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = MapError
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.fulfillments == nil {
		builder.fulfillments = NewMemoryFulfillmentStore()
	}
	if builder.malformed == nil {
		builder.malformed = NewMemoryMalformedEventStore()
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	return &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		observer:        NewObserver(logger, builder.metricsRecorder),
		errorFactory:    builder.errorFactory,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		gateway:         builder.gateway,
		notifier:        builder.notifier,
		fulfillments:    builder.fulfillments,
		malformed:       builder.malformed,
		retrier:         builder.retrier,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:          s.logger,
		LoggerProvider:  s.loggerProvider,
		MetricsRecorder: s.metricsRecorder,
		ErrorFactory:    s.errorFactory,
		ErrorMapper:     s.errorMapper,
		ConfigProvider:  s.configProvider,
		OptionsResolver: s.optionsResolver,
		Gateway:         s.gateway,
		Notifier:        s.notifier,
		Fulfillments:    s.fulfillments,
		Malformed:       s.malformed,
		Retrier:         s.retrier,
	}
}

func (s *Service) Observer() Observer {
	if s == nil {
		return Observer{}
	}
	return s.observer
}

func (s *Service) InitializePayment(ctx context.Context, req InitializePaymentRequest) (result InitializePaymentResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"recipient_number": req.RecipientNumber,
		"buyer_number":     req.BuyerNumber,
		"plan":             req.Plan,
	}
	defer func() {
		fields["reference"] = result.Reference
		s.observe(ctx, startedAt, "initialize_payment", err, fields)
	}()

	if s == nil || s.gateway == nil {
		return InitializePaymentResult{}, s.mapError(fmt.Errorf("core: payment gateway is not configured"))
	}
	fields["provider_id"] = s.gateway.ProviderID()
	if err := req.Validate(); err != nil {
		return InitializePaymentResult{}, NewBadInputError(err)
	}
	amountMinor, err := ParseMajorUnits(req.AmountMajor)
	if err != nil {
		return InitializePaymentResult{}, NewBadInputError(err)
	}

	order := Order{
		RecipientNumber: strings.TrimSpace(req.RecipientNumber),
		Plan:            strings.TrimSpace(req.Plan),
		Network:         strings.TrimSpace(req.Network),
		BuyerNumber:     strings.TrimSpace(req.BuyerNumber),
		PlanName:        strings.TrimSpace(req.PlanName),
	}
	initialized, err := s.gateway.InitializeTransaction(ctx, InitializeTransactionRequest{
		Email:       s.checkoutEmail(req),
		AmountMinor: amountMinor,
		Currency:    s.config.Paystack.Currency,
		CallbackURL: s.config.Paystack.CallbackURL,
		Metadata:    order.Metadata(),
	})
	if err != nil {
		return InitializePaymentResult{}, s.mapError(err)
	}
	return InitializePaymentResult{
		AuthorizationURL: initialized.AuthorizationURL,
		AccessCode:       initialized.AccessCode,
		Reference:        initialized.Reference,
		AmountMinor:      amountMinor,
	}, nil
}

// VerifyPayment confirms a transaction with the gateway and forwards the order
// to the notifier. A failed forward is reported in the result, not as an error.
func (s *Service) VerifyPayment(ctx context.Context, req VerifyPaymentRequest) (result VerifyPaymentResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"reference": req.Reference}
	defer func() {
		fields["notified"] = result.Notified
		s.observe(ctx, startedAt, "verify_payment", err, fields)
	}()

	if s == nil || s.gateway == nil {
		return VerifyPaymentResult{}, s.mapError(fmt.Errorf("core: payment gateway is not configured"))
	}
	fields["provider_id"] = s.gateway.ProviderID()
	if err := req.Validate(); err != nil {
		return VerifyPaymentResult{}, NewBadInputError(err)
	}

	reference := strings.TrimSpace(req.Reference)
	tx, err := s.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		return VerifyPaymentResult{}, s.mapError(err)
	}
	result = VerifyPaymentResult{
		Reference:       reference,
		Status:          tx.Status,
		AmountMinor:     tx.AmountMinor,
		Currency:        tx.Currency,
		VerifiedAt:      s.now(),
		TransactionMeta: tx.Metadata,
	}
	if !tx.Successful() {
		return result, s.mapError(fmt.Errorf("%w: %s status %q", ErrPaymentNotSuccessful, reference, tx.Status))
	}

	if s.notifier == nil {
		return result, nil
	}
	notification := s.orderNotification(req, tx)
	if notifyErr := s.notifier.NotifyOrder(ctx, notification); notifyErr != nil {
		result.NotifyError = notifyErr.Error()
		s.observer.Warn(ctx, "order notification failed after verification", map[string]any{
			"reference": reference,
			"error":     notifyErr.Error(),
		})
		return result, nil
	}
	result.Notified = true
	return result, nil
}

func (s *Service) ListFulfillments(ctx context.Context, providerID string, reference string) ([]FulfillmentRecord, error) {
	if s == nil || s.fulfillments == nil {
		return nil, fmt.Errorf("core: fulfillment store is not configured")
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, NewBadInputError(fmt.Errorf("core: reference is required"))
	}
	records, err := s.fulfillments.ListByReference(ctx, strings.TrimSpace(providerID), reference)
	if err != nil {
		return nil, s.mapError(err)
	}
	return records, nil
}

func (s *Service) ListMalformedEvents(ctx context.Context, providerID string, limit int) ([]MalformedEvent, error) {
	if s == nil || s.malformed == nil {
		return nil, fmt.Errorf("core: malformed event store is not configured")
	}
	events, err := s.malformed.ListMalformed(ctx, strings.TrimSpace(providerID), limit)
	if err != nil {
		return nil, s.mapError(err)
	}
	return events, nil
}

// RetryFulfillment re-runs one action for a reference. The event is rebuilt
// from the gateway's verified transaction so retries never trust stale input.
func (s *Service) RetryFulfillment(ctx context.Context, req RetryFulfillmentRequest) (record FulfillmentRecord, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"reference": req.Reference,
		"action":    string(req.Action),
	}
	defer func() {
		fields["status"] = string(record.Status)
		s.observe(ctx, startedAt, "retry_fulfillment", err, fields)
	}()

	if s == nil || s.gateway == nil || s.retrier == nil {
		return FulfillmentRecord{}, s.mapError(fmt.Errorf("core: fulfillment retry is not configured"))
	}
	if err := req.Validate(); err != nil {
		return FulfillmentRecord{}, NewBadInputError(err)
	}
	providerID := strings.TrimSpace(req.ProviderID)
	if providerID == "" {
		providerID = s.gateway.ProviderID()
	}
	if providerID != s.gateway.ProviderID() {
		return FulfillmentRecord{}, NewBadInputError(fmt.Errorf("core: provider %q is not configured for retries", providerID))
	}
	fields["provider_id"] = providerID

	tx, err := s.gateway.VerifyTransaction(ctx, strings.TrimSpace(req.Reference))
	if err != nil {
		return FulfillmentRecord{}, s.mapError(err)
	}
	if !tx.Successful() {
		return FulfillmentRecord{}, s.mapError(fmt.Errorf("%w: %s status %q", ErrPaymentNotSuccessful, req.Reference, tx.Status))
	}
	action, _ := ParseFulfillmentAction(string(req.Action))
	event := PaymentEvent{
		ProviderID:  providerID,
		EventType:   EventTypeChargeSuccess,
		Reference:   strings.TrimSpace(req.Reference),
		AmountMinor: tx.AmountMinor,
		Currency:    tx.Currency,
		Metadata:    tx.Metadata,
		ReceivedAt:  s.now(),
	}
	record, err = s.retrier.Retry(ctx, event, action)
	if err != nil {
		return record, s.mapError(err)
	}
	return record, nil
}

func (s *Service) checkoutEmail(req InitializePaymentRequest) string {
	if email := strings.TrimSpace(req.Email); email != "" {
		return email
	}
	domain := strings.TrimSpace(s.config.Paystack.EmailDomain)
	if domain == "" {
		domain = DefaultConfig().Paystack.EmailDomain
	}
	return strings.TrimSpace(req.BuyerNumber) + "@" + domain
}

func (s *Service) orderNotification(req VerifyPaymentRequest, tx VerifiedTransaction) OrderNotification {
	order := Order{
		RecipientNumber: lookupMetadata(tx.Metadata, MetadataRecipientNumber),
		Plan:            lookupMetadata(tx.Metadata, MetadataSelectedPlan),
		BuyerNumber:     lookupMetadata(tx.Metadata, MetadataBuyerNumber),
		PlanName:        lookupMetadata(tx.Metadata, MetadataPlanName),
	}
	notification := OrderNotification{
		Reference:       strings.TrimSpace(req.Reference),
		PlanName:        firstNonEmpty(req.PlanName, order.DisplayPlan()),
		PlanPrice:       firstNonEmpty(req.PlanPrice, FormatMinorUnits(tx.AmountMinor)),
		RecipientNumber: firstNonEmpty(req.RecipientNumber, order.RecipientNumber),
		BuyerNumber:     firstNonEmpty(req.BuyerNumber, order.BuyerNumber),
		PaymentMethod:   strings.TrimSpace(req.PaymentMethod),
		Status:          "Payment Verified and Confirmed",
	}
	return notification
}

func (s *Service) observe(ctx context.Context, startedAt time.Time, operation string, err error, fields map[string]any) {
	if s == nil {
		return
	}
	s.observer.ObserveOperation(ctx, startedAt, operation, err, fields)
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return MapError(err)
	}
	if mapped := s.errorMapper(err); mapped != nil {
		return mapped
	}
	return err
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
