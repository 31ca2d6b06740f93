package core

import (
	"context"
	"errors"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestNewService_DefaultDependencies(t *testing.T) {
	svc, err := NewService(Config{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	deps := svc.Dependencies()
	if deps.Logger == nil || deps.ErrorFactory == nil || deps.ErrorMapper == nil {
		t.Fatalf("expected default logger, error factory and mapper")
	}
	if deps.ConfigProvider == nil || deps.OptionsResolver == nil {
		t.Fatalf("expected default config provider and options resolver")
	}
	if deps.Fulfillments == nil || deps.Malformed == nil {
		t.Fatalf("expected in-memory stores by default")
	}
	if got := svc.Config().ServiceName; got != "payhooks" {
		t.Fatalf("expected default service_name=payhooks, got %q", got)
	}
}

func TestNewService_ConfigLayeringPrecedence(t *testing.T) {
	provider := NewCfgxConfigProvider(mapRawLoader{values: map[string]any{
		"service_name": "from-config",
		"dispatch": map[string]any{
			"action_timeout": "3s",
		},
	}})

	svc, err := NewService(Config{ServiceName: "from-runtime"}, WithConfigProvider(provider))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	cfg := svc.Config()
	if cfg.ServiceName != "from-runtime" {
		t.Fatalf("expected runtime value to override config and defaults, got %q", cfg.ServiceName)
	}
	if cfg.Dispatch.ActionTimeout != "3s" {
		t.Fatalf("expected config layer value, got %q", cfg.Dispatch.ActionTimeout)
	}
	if cfg.Paystack.Currency != "GHS" {
		t.Fatalf("expected default layer value, got %q", cfg.Paystack.Currency)
	}
}

func TestNewService_InvalidConfigFails(t *testing.T) {
	_, err := NewService(Config{Dedup: DedupConfig{Backend: "etcd"}})
	if err == nil {
		t.Fatalf("expected invalid config to fail")
	}
}

func TestService_InitializePayment(t *testing.T) {
	gateway := &stubGateway{}
	metrics := &captureMetricsRecorder{}
	svc, err := NewService(Config{}, WithPaymentGateway(gateway), WithMetricsRecorder(metrics))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	result, err := svc.InitializePayment(context.Background(), InitializePaymentRequest{
		AmountMajor:     "15",
		BuyerNumber:     "0201234567",
		RecipientNumber: "0551234567",
		Plan:            "1GB",
		Network:         "MTN",
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if result.Reference != "TX100" || result.AmountMinor != 1500 || result.AuthorizationURL == "" {
		t.Fatalf("unexpected result %+v", result)
	}
	sent := gateway.initialized[0]
	if sent.AmountMinor != 1500 || sent.Currency != "GHS" || sent.Email != "0201234567@payhooks.app" {
		t.Fatalf("unexpected gateway request %+v", sent)
	}
	if sent.Metadata[MetadataRecipientNumber] != "0551234567" || sent.Metadata[MetadataSelectedPlan] != "1GB" {
		t.Fatalf("expected order metadata on the transaction, got %#v", sent.Metadata)
	}
	if !metrics.hasCounter("payhooks.initialize_payment.total", "success") {
		t.Fatalf("expected initialize_payment counter")
	}
}

func TestService_InitializePaymentRejectsBadInput(t *testing.T) {
	gateway := &stubGateway{}
	svc, _ := NewService(Config{}, WithPaymentGateway(gateway))

	cases := []InitializePaymentRequest{
		{AmountMajor: "15", RecipientNumber: "0551234567", Plan: "1GB"},
		{AmountMajor: "15.001", BuyerNumber: "0201234567", RecipientNumber: "0551234567", Plan: "1GB"},
		{AmountMajor: "-2", BuyerNumber: "0201234567", RecipientNumber: "0551234567", Plan: "1GB"},
		{AmountMajor: "100000000000000000", BuyerNumber: "0201234567", RecipientNumber: "0551234567", Plan: "1GB"},
	}
	for _, req := range cases {
		_, err := svc.InitializePayment(context.Background(), req)
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) || rich.TextCode != ErrorBadInput {
			t.Fatalf("expected bad input for %+v, got %v", req, err)
		}
	}
	if len(gateway.initialized) != 0 {
		t.Fatalf("expected no gateway calls for invalid input")
	}
}

func TestService_VerifyPaymentNotifies(t *testing.T) {
	gateway := &stubGateway{tx: successfulTransaction()}
	notifier := &stubNotifier{}
	svc, _ := NewService(Config{}, WithPaymentGateway(gateway), WithOrderNotifier(notifier))

	result, err := svc.VerifyPayment(context.Background(), VerifyPaymentRequest{
		Reference:     "TX1",
		PaymentMethod: "mobile_money",
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !result.Notified || result.AmountMinor != 1500 || result.Status != "success" {
		t.Fatalf("unexpected result %+v", result)
	}
	sent := notifier.notifications[0]
	if sent.PlanName != "1GB" || sent.PlanPrice != "15.00" || sent.RecipientNumber != "0551234567" || sent.BuyerNumber != "0201234567" {
		t.Fatalf("expected notification to fall back to transaction metadata, got %+v", sent)
	}
	if sent.Status != "Payment Verified and Confirmed" {
		t.Fatalf("unexpected notification status %q", sent.Status)
	}
}

func TestService_VerifyPaymentPrefersRequestDetails(t *testing.T) {
	gateway := &stubGateway{tx: successfulTransaction()}
	notifier := &stubNotifier{}
	svc, _ := NewService(Config{}, WithPaymentGateway(gateway), WithOrderNotifier(notifier))

	_, err := svc.VerifyPayment(context.Background(), VerifyPaymentRequest{
		Reference:       "TX1",
		PlanName:        "1GB Weekly",
		PlanPrice:       "14.50",
		RecipientNumber: "0240000000",
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	sent := notifier.notifications[0]
	if sent.PlanName != "1GB Weekly" || sent.PlanPrice != "14.50" || sent.RecipientNumber != "0240000000" {
		t.Fatalf("expected request values to win, got %+v", sent)
	}
}

func TestService_VerifyPaymentForwardFailureStillSucceeds(t *testing.T) {
	gateway := &stubGateway{tx: successfulTransaction()}
	notifier := &stubNotifier{err: errors.New("formspree 500")}
	logger := newCaptureLogger()
	svc, _ := NewService(Config{},
		WithPaymentGateway(gateway),
		WithOrderNotifier(notifier),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)

	result, err := svc.VerifyPayment(context.Background(), VerifyPaymentRequest{Reference: "TX1"})
	if err != nil {
		t.Fatalf("expected verification to succeed when forwarding fails, got %v", err)
	}
	if result.Notified || result.NotifyError != "formspree 500" {
		t.Fatalf("expected forward failure in result, got %+v", result)
	}
	if _, ok := logger.find("warn", "order notification failed after verification"); !ok {
		t.Fatalf("expected warning log for the failed forward")
	}
}

func TestService_VerifyPaymentNotSuccessful(t *testing.T) {
	tx := successfulTransaction()
	tx.Status = "abandoned"
	notifier := &stubNotifier{}
	svc, _ := NewService(Config{}, WithPaymentGateway(&stubGateway{tx: tx}), WithOrderNotifier(notifier))

	result, err := svc.VerifyPayment(context.Background(), VerifyPaymentRequest{Reference: "TX1"})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != ErrorPaymentNotSuccess || rich.Code != http.StatusBadRequest {
		t.Fatalf("expected payment not successful envelope, got %v", err)
	}
	if result.Status != "abandoned" {
		t.Fatalf("expected gateway status in result, got %q", result.Status)
	}
	if len(notifier.notifications) != 0 {
		t.Fatalf("expected no notification for an unpaid transaction")
	}
}

func TestService_VerifyPaymentGatewayFailure(t *testing.T) {
	gatewayErr := goerrors.New("paystack unavailable", goerrors.CategoryExternal).
		WithCode(http.StatusBadGateway).
		WithTextCode(ErrorDownstreamFailed)
	svc, _ := NewService(Config{}, WithPaymentGateway(&stubGateway{verifyErr: gatewayErr}))

	_, err := svc.VerifyPayment(context.Background(), VerifyPaymentRequest{Reference: "TX1"})
	if ClassifyError(err) != ErrorClassDownstream {
		t.Fatalf("expected downstream failure, got %v", err)
	}
	if _, err := svc.VerifyPayment(context.Background(), VerifyPaymentRequest{}); MapError(err).TextCode != ErrorBadInput {
		t.Fatalf("expected missing reference to be bad input, got %v", err)
	}
}

func TestService_WithoutGateway(t *testing.T) {
	svc, _ := NewService(Config{})
	if _, err := svc.InitializePayment(context.Background(), InitializePaymentRequest{}); err == nil {
		t.Fatalf("expected unconfigured gateway error")
	}
	if _, err := svc.RetryFulfillment(context.Background(), RetryFulfillmentRequest{Reference: "TX1", Action: FulfillmentActionDeliverGoods}); err == nil {
		t.Fatalf("expected unconfigured retry error")
	}
}

func TestService_RetryFulfillmentRebuildsEventFromGateway(t *testing.T) {
	gateway := &stubGateway{tx: successfulTransaction()}
	retrier := &stubRetrier{}
	svc, _ := NewService(Config{}, WithPaymentGateway(gateway), WithFulfillmentRetrier(retrier))

	record, err := svc.RetryFulfillment(context.Background(), RetryFulfillmentRequest{
		Reference: " TX1 ",
		Action:    "deliver-goods",
	})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if record.Status != FulfillmentStatusSuccess {
		t.Fatalf("unexpected record %+v", record)
	}
	event := retrier.events[0]
	if event.ProviderID != "paystack" || event.Reference != "TX1" || event.AmountMinor != 1500 {
		t.Fatalf("unexpected rebuilt event %+v", event)
	}
	if event.Metadata[MetadataSelectedPlan] != "1GB" || retrier.actions[0] != FulfillmentActionDeliverGoods {
		t.Fatalf("expected gateway metadata and normalized action, got %+v %q", event.Metadata, retrier.actions[0])
	}
	if gateway.verified[0] != "TX1" {
		t.Fatalf("expected the reference to be verified first, got %q", gateway.verified[0])
	}
}

func TestService_RetryFulfillmentRejections(t *testing.T) {
	unpaid := successfulTransaction()
	unpaid.Status = "failed"
	retrier := &stubRetrier{}
	svc, _ := NewService(Config{}, WithPaymentGateway(&stubGateway{tx: unpaid}), WithFulfillmentRetrier(retrier))

	_, err := svc.RetryFulfillment(context.Background(), RetryFulfillmentRequest{Reference: "TX1", Action: FulfillmentActionNotifyBuyer})
	if MapError(err).TextCode != ErrorPaymentNotSuccess {
		t.Fatalf("expected unpaid reference to be rejected, got %v", err)
	}
	_, err = svc.RetryFulfillment(context.Background(), RetryFulfillmentRequest{ProviderID: "stripe", Reference: "TX1", Action: FulfillmentActionNotifyBuyer})
	if MapError(err).TextCode != ErrorBadInput {
		t.Fatalf("expected other providers to be rejected, got %v", err)
	}
	_, err = svc.RetryFulfillment(context.Background(), RetryFulfillmentRequest{Reference: "TX1", Action: "refund"})
	if MapError(err).TextCode != ErrorBadInput {
		t.Fatalf("expected unknown action to be rejected, got %v", err)
	}
	if len(retrier.events) != 0 {
		t.Fatalf("expected no retries for rejected requests")
	}
}

func TestService_ListFulfillmentsAndMalformed(t *testing.T) {
	ctx := context.Background()
	fulfillments := NewMemoryFulfillmentStore()
	malformed := NewMemoryMalformedEventStore()
	svc, _ := NewService(Config{}, WithFulfillmentStore(fulfillments), WithMalformedEventStore(malformed))

	if _, err := fulfillments.BeginAttempt(ctx, FulfillmentRecord{ProviderID: "paystack", Reference: "TX1", Action: FulfillmentActionNotifyAdmin}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := malformed.RecordMalformed(ctx, MalformedEvent{ProviderID: "paystack", Reference: "TX2"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	records, err := svc.ListFulfillments(ctx, "paystack", "TX1")
	if err != nil || len(records) != 1 {
		t.Fatalf("expected one record, got %d err=%v", len(records), err)
	}
	if _, err := svc.ListFulfillments(ctx, "paystack", " "); MapError(err).TextCode != ErrorBadInput {
		t.Fatalf("expected reference to be required, got %v", err)
	}
	events, err := svc.ListMalformedEvents(ctx, "paystack", 10)
	if err != nil || len(events) != 1 || events[0].Reference != "TX2" {
		t.Fatalf("unexpected malformed events %+v err=%v", events, err)
	}
}
