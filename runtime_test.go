package payhooks_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	payhooks "github.com/goliatone/go-payhooks"
	"github.com/goliatone/go-payhooks/core"
	"github.com/goliatone/go-payhooks/fulfillment"
	payhookmigrations "github.com/goliatone/go-payhooks/migrations"
	"github.com/goliatone/go-payhooks/providers/paystack"
	"github.com/goliatone/go-payhooks/webhooks"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

const runtimeSecret = "sk_test_runtime"

type countingAction struct {
	name  core.FulfillmentAction
	calls atomic.Int32
	fail  atomic.Bool
	block chan struct{}
}

func (a *countingAction) Action() core.FulfillmentAction { return a.name }

func (a *countingAction) Execute(ctx context.Context, _ core.PaymentEvent, order core.Order) (string, error) {
	a.calls.Add(1)
	if a.block != nil {
		select {
		case <-a.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if a.fail.Load() {
		return "", errors.New("downstream unavailable")
	}
	return "delivered " + order.Plan, nil
}

type stubGateway struct {
	mu       sync.Mutex
	verified map[string]core.VerifiedTransaction
}

func (g *stubGateway) ProviderID() string { return paystack.ProviderID }

func (g *stubGateway) InitializeTransaction(_ context.Context, req core.InitializeTransactionRequest) (core.InitializeTransactionResult, error) {
	return core.InitializeTransactionResult{
		AuthorizationURL: "https://checkout.paystack.com/ref_init",
		AccessCode:       "code",
		Reference:        "ref_init",
	}, nil
}

func (g *stubGateway) VerifyTransaction(_ context.Context, reference string) (core.VerifiedTransaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	tx, ok := g.verified[reference]
	if !ok {
		return core.VerifiedTransaction{Reference: reference, Status: "not_found"}, nil
	}
	return tx, nil
}

func chargeSuccessBody(reference string) []byte {
	return []byte(fmt.Sprintf(`{"event":"charge.success","data":{"reference":%q,"amount":1500,"currency":"GHS","status":"success","metadata":{"custom_fields":[{"variable_name":"recipient_number","value":"0201234567"},{"variable_name":"selected_plan","value":"5GB"}]}}}`, reference))
}

func signedRequest(body []byte) core.InboundRequest {
	return core.InboundRequest{
		Headers: map[string]string{
			paystack.SignatureHeader: webhooks.SignHex(webhooks.AlgorithmSHA512, runtimeSecret, body),
		},
		Body: body,
	}
}

func testConfig() payhooks.Config {
	cfg := payhooks.DefaultConfig()
	cfg.Paystack.SecretKey = runtimeSecret
	cfg.Dedup.Backend = core.DedupBackendMemory
	return cfg
}

func newRuntime(t *testing.T, cfg payhooks.Config, opts ...payhooks.RuntimeOption) *payhooks.Runtime {
	t.Helper()
	rt, err := payhooks.New(cfg, opts...)
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = rt.Shutdown(ctx)
	})
	return rt
}

func TestRuntimeInlineDispatchAndDuplicate(t *testing.T) {
	deliver := &countingAction{name: core.FulfillmentActionDeliverGoods}
	admin := &countingAction{name: core.FulfillmentActionNotifyAdmin}
	rt := newRuntime(t, testConfig(), payhooks.WithSyncDispatch(), payhooks.WithActions(deliver, admin))

	body := chargeSuccessBody("ref_inline")
	result, err := rt.HandleWebhook(context.Background(), signedRequest(body))
	if err != nil {
		t.Fatalf("handle webhook: %v", err)
	}
	if result.Outcome != core.WebhookOutcomeAccepted || result.StatusCode != http.StatusOK {
		t.Fatalf("expected accepted 200, got %+v", result)
	}
	if deliver.calls.Load() != 1 || admin.calls.Load() != 1 {
		t.Fatalf("expected each action once, got deliver=%d admin=%d", deliver.calls.Load(), admin.calls.Load())
	}

	result, err = rt.HandleWebhook(context.Background(), signedRequest(body))
	if err != nil {
		t.Fatalf("duplicate webhook: %v", err)
	}
	if result.Outcome != core.WebhookOutcomeDuplicate || result.StatusCode != http.StatusOK {
		t.Fatalf("expected duplicate 200, got %+v", result)
	}
	if deliver.calls.Load() != 1 {
		t.Fatalf("expected no second dispatch, got %d calls", deliver.calls.Load())
	}

	records, err := rt.Facade().ListFulfillments(context.Background(), paystack.ProviderID, "ref_inline")
	if err != nil {
		t.Fatalf("list fulfillments: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected two fulfillment records, got %d", len(records))
	}
}

func TestRuntimeRejectsBadSignature(t *testing.T) {
	deliver := &countingAction{name: core.FulfillmentActionDeliverGoods}
	rt := newRuntime(t, testConfig(), payhooks.WithSyncDispatch(), payhooks.WithActions(deliver))

	req := signedRequest(chargeSuccessBody("ref_forged"))
	req.Headers[paystack.SignatureHeader] = "00ff"
	result, err := rt.HandleWebhook(context.Background(), req)
	if err == nil {
		t.Fatalf("expected signature error")
	}
	if core.ClassifyError(err) != core.ErrorClassAuthentication {
		t.Fatalf("expected authentication failure, got %q", core.ClassifyError(err))
	}
	if result.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", result.StatusCode)
	}
	if deliver.calls.Load() != 0 {
		t.Fatalf("expected no dispatch for forged webhook")
	}

	// A forged delivery must not consume the reference.
	result, err = rt.HandleWebhook(context.Background(), signedRequest(chargeSuccessBody("ref_forged")))
	if err != nil || result.Outcome != core.WebhookOutcomeAccepted {
		t.Fatalf("expected genuine delivery accepted after forgery, got %+v err=%v", result, err)
	}
}

func TestRuntimeAsyncShutdownWaitsForDispatch(t *testing.T) {
	release := make(chan struct{})
	deliver := &countingAction{name: core.FulfillmentActionDeliverGoods, block: release}
	rt, err := payhooks.New(testConfig(), payhooks.WithActions(deliver), payhooks.WithRetriesDisabled())
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}

	result, err := rt.HandleWebhook(context.Background(), signedRequest(chargeSuccessBody("ref_async")))
	if err != nil {
		t.Fatalf("handle webhook: %v", err)
	}
	if result.Outcome != core.WebhookOutcomeAccepted {
		t.Fatalf("expected accepted before dispatch completes, got %+v", result)
	}

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- rt.Shutdown(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("shutdown returned before in-flight dispatch finished: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if deliver.calls.Load() != 1 {
		t.Fatalf("expected dispatch to complete, got %d calls", deliver.calls.Load())
	}
	records, err := rt.Facade().ListFulfillments(context.Background(), paystack.ProviderID, "ref_async")
	if err != nil || len(records) != 1 || records[0].Status != core.FulfillmentStatusSuccess {
		t.Fatalf("expected recorded success after shutdown, got %+v err=%v", records, err)
	}

	result, err = rt.HandleWebhook(context.Background(), signedRequest(chargeSuccessBody("ref_after_close")))
	if err == nil || result.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 once the runner is closed, got %+v err=%v", result, err)
	}
}

func TestRuntimeFailedActionIsQueuedAndRetried(t *testing.T) {
	deliver := &countingAction{name: core.FulfillmentActionDeliverGoods}
	deliver.fail.Store(true)
	rt := newRuntime(t, testConfig(), payhooks.WithSyncDispatch(), payhooks.WithActions(deliver))

	if rt.RetryQueue() == nil || rt.RetryWorker() == nil {
		t.Fatalf("expected retry queue and worker by default")
	}
	if _, err := rt.HandleWebhook(context.Background(), signedRequest(chargeSuccessBody("ref_retry"))); err != nil {
		t.Fatalf("handle webhook: %v", err)
	}
	if got := rt.RetryQueue().Len(); got != 1 {
		t.Fatalf("expected one queued retry, got %d", got)
	}

	deliver.fail.Store(false)
	if err := rt.RetryWorker().ProcessNext(context.Background()); err != nil {
		t.Fatalf("process retry: %v", err)
	}
	records, err := rt.Facade().ListFulfillments(context.Background(), paystack.ProviderID, "ref_retry")
	if err != nil {
		t.Fatalf("list fulfillments: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected failed attempt plus retry, got %d records", len(records))
	}
	last := records[len(records)-1]
	if last.Status != core.FulfillmentStatusSuccess || last.Attempt != 2 {
		t.Fatalf("expected successful second attempt, got %+v", last)
	}
}

func TestRuntimeManualRetryThroughFacade(t *testing.T) {
	deliver := &countingAction{name: core.FulfillmentActionDeliverGoods}
	deliver.fail.Store(true)
	gateway := &stubGateway{verified: map[string]core.VerifiedTransaction{
		"ref_manual": {
			Reference:   "ref_manual",
			Status:      "success",
			AmountMinor: 1500,
			Currency:    "GHS",
			Metadata:    map[string]string{"recipient_number": "0201234567", "selected_plan": "5GB"},
		},
	}}
	rt := newRuntime(t, testConfig(),
		payhooks.WithSyncDispatch(),
		payhooks.WithRetriesDisabled(),
		payhooks.WithActions(deliver),
		payhooks.WithGateway(gateway),
	)

	if _, err := rt.HandleWebhook(context.Background(), signedRequest(chargeSuccessBody("ref_manual"))); err != nil {
		t.Fatalf("handle webhook: %v", err)
	}
	deliver.fail.Store(false)

	record, err := rt.Facade().RetryFulfillment(context.Background(), core.RetryFulfillmentRequest{
		Reference: "ref_manual",
		Action:    core.FulfillmentActionDeliverGoods,
	})
	if err != nil {
		t.Fatalf("retry fulfillment: %v", err)
	}
	if record.Status != core.FulfillmentStatusSuccess || record.Attempt != 2 {
		t.Fatalf("expected successful second attempt, got %+v", record)
	}

	_, err = rt.Facade().RetryFulfillment(context.Background(), core.RetryFulfillmentRequest{
		Reference: "ref_unpaid",
		Action:    core.FulfillmentActionDeliverGoods,
	})
	if err == nil {
		t.Fatalf("expected retry of unpaid reference to fail")
	}
	if mapped := core.MapError(err); mapped.TextCode != core.ErrorPaymentNotSuccess {
		t.Fatalf("expected payment-not-successful code, got %q", mapped.TextCode)
	}
}

func TestRuntimeSkipsActionsWithoutCredentials(t *testing.T) {
	rt := newRuntime(t, testConfig(), payhooks.WithSyncDispatch())

	skipped := rt.SkippedActions()
	for _, action := range []core.FulfillmentAction{
		core.FulfillmentActionDeliverGoods,
		core.FulfillmentActionNotifyAdmin,
		core.FulfillmentActionNotifyBuyer,
	} {
		if _, ok := skipped[action]; !ok {
			t.Fatalf("expected %s skipped without credentials, got %#v", action, skipped)
		}
	}
	if len(rt.Dispatcher().Actions) != 0 {
		t.Fatalf("expected no configured actions, got %d", len(rt.Dispatcher().Actions))
	}
}

func TestRuntimeSQLDedupFallsBackToMemoryWithoutDB(t *testing.T) {
	cfg := testConfig()
	cfg.Dedup.Backend = core.DedupBackendSQL
	rt := newRuntime(t, cfg, payhooks.WithSyncDispatch(), payhooks.WithActions())

	if _, ok := rt.Deduplicator().(*core.MemoryDeduplicator); !ok {
		t.Fatalf("expected memory dedup fallback, got %T", rt.Deduplicator())
	}
	if rt.Stores() != nil {
		t.Fatalf("expected no sql stores without a database")
	}
}

func TestRuntimeRegistersCommandsAndReleasesThemOnShutdown(t *testing.T) {
	rt, err := payhooks.New(testConfig(), payhooks.WithActions())
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	if got := rt.Commands().Subscriptions(); got != 5 {
		t.Fatalf("expected five command/query subscriptions, got %d", got)
	}
	if rt.QueueRegistry() == nil {
		t.Fatalf("expected queue registry")
	}
	if err := rt.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if got := rt.Commands().Subscriptions(); got != 0 {
		t.Fatalf("expected subscriptions released, got %d", got)
	}
}

func TestRuntimeStartRetryWorkerStopsOnShutdown(t *testing.T) {
	rt, err := payhooks.New(testConfig(), payhooks.WithActions())
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	rt.StartRetryWorker(context.Background())
	rt.StartRetryWorker(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestRuntimeConfigLayersLoaderBelowRuntimeConfig(t *testing.T) {
	loader := core.NewStaticRawConfigLoader(map[string]any{
		"dispatch": map[string]any{"async": false, "action_timeout": "3s"},
		"paystack": map[string]any{"secret_key": "sk_from_loader"},
	})
	cfg := payhooks.Config{Paystack: core.PaystackConfig{SecretKey: runtimeSecret}}
	rt := newRuntime(t, cfg, payhooks.WithConfigLoader(loader), payhooks.WithActions())

	resolved := rt.Config()
	if resolved.Dispatch.Async {
		t.Fatalf("expected loader to disable async dispatch")
	}
	if resolved.ActionTimeout() != 3*time.Second {
		t.Fatalf("expected loader action timeout, got %s", resolved.ActionTimeout())
	}
	if resolved.Paystack.SecretKey != runtimeSecret {
		t.Fatalf("expected runtime secret to win, got %q", resolved.Paystack.SecretKey)
	}
	if rt.Service().Config().Dispatch.Async {
		t.Fatalf("expected service to see the resolved config")
	}
}

func TestRuntimeWithSQLiteStores(t *testing.T) {
	client := newSQLiteClient(t)
	cfg := testConfig()
	cfg.Dedup.Backend = core.DedupBackendSQL
	deliver := &countingAction{name: core.FulfillmentActionDeliverGoods}
	rt := newRuntime(t, cfg, payhooks.WithSyncDispatch(), payhooks.WithDB(client.DB()), payhooks.WithActions(deliver))

	if rt.Stores() == nil {
		t.Fatalf("expected sql stores")
	}
	body := chargeSuccessBody("ref_sql")
	for i, want := range []core.WebhookOutcome{core.WebhookOutcomeAccepted, core.WebhookOutcomeDuplicate} {
		result, err := rt.HandleWebhook(context.Background(), signedRequest(body))
		if err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
		if result.Outcome != want {
			t.Fatalf("delivery %d: expected %s, got %s", i, want, result.Outcome)
		}
	}
	records, err := rt.Facade().ListFulfillments(context.Background(), paystack.ProviderID, "ref_sql")
	if err != nil || len(records) != 1 {
		t.Fatalf("expected one persisted record, got %+v err=%v", records, err)
	}

	malformed := []byte(`{"event":"charge.success","data":{"reference":"ref_bad","amount":1500,"metadata":{}}}`)
	result, err := rt.HandleWebhook(context.Background(), signedRequest(malformed))
	if err != nil || result.Outcome != core.WebhookOutcomeMalformed {
		t.Fatalf("expected malformed acknowledgement, got %+v err=%v", result, err)
	}
	events, err := rt.Facade().ListMalformedEvents(context.Background(), paystack.ProviderID, 10)
	if err != nil || len(events) != 1 || events[0].Reference != "ref_bad" {
		t.Fatalf("expected one persisted malformed event, got %+v err=%v", events, err)
	}
}

func TestRuntimeCustomDispatcherActionFunc(t *testing.T) {
	var seen atomic.Value
	action := fulfillment.ActionFunc{
		Name: core.FulfillmentActionNotifyBuyer,
		Fn: func(_ context.Context, event core.PaymentEvent, order core.Order) (string, error) {
			seen.Store(order.RecipientNumber + "|" + event.DisplayAmount())
			return "sms queued", nil
		},
	}
	rt := newRuntime(t, testConfig(), payhooks.WithSyncDispatch(), payhooks.WithActions(action))

	if _, err := rt.HandleWebhook(context.Background(), signedRequest(chargeSuccessBody("ref_func"))); err != nil {
		t.Fatalf("handle webhook: %v", err)
	}
	if got, _ := seen.Load().(string); got != "0201234567|15.00" {
		t.Fatalf("expected order and amount passed to action, got %q", got)
	}
}

type sqliteConfig struct {
	dsn string
}

func (c sqliteConfig) GetDebug() bool { return false }
func (c sqliteConfig) GetDriver() string { return "sqlite3" }
func (c sqliteConfig) GetServer() string { return c.dsn }
func (c sqliteConfig) GetPingTimeout() time.Duration { return time.Second }
func (c sqliteConfig) GetOtelIdentifier() string { return "go-payhooks-runtime-tests" }

func newSQLiteClient(t *testing.T) *persistence.Client {
	t.Helper()
	dsn := fmt.Sprintf("file:payhooks-runtime-%d?mode=memory&cache=shared&_foreign_keys=on", time.Now().UnixNano())
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	client, err := persistence.New(sqliteConfig{dsn: dsn}, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	_, err = payhookmigrations.Register(ctx, payhookmigrations.DialectSQLite, func(_ context.Context, src payhookmigrations.Source) error {
		client.RegisterSQLMigrations(src.FS)
		return nil
	})
	if err != nil {
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return client
}
