package payhooks

import (
	"context"
	"testing"

	"github.com/goliatone/go-payhooks/core"
)

type stubFacadeService struct {
	initialized []core.InitializePaymentRequest
	verified    []core.VerifyPaymentRequest
	retried     []core.RetryFulfillmentRequest
	listed      []string
	limits      []int
}

func (s *stubFacadeService) InitializePayment(_ context.Context, req core.InitializePaymentRequest) (core.InitializePaymentResult, error) {
	s.initialized = append(s.initialized, req)
	return core.InitializePaymentResult{Reference: "TX1", AuthorizationURL: "https://checkout.paystack.com/x", AmountMinor: 1500}, nil
}

func (s *stubFacadeService) VerifyPayment(_ context.Context, req core.VerifyPaymentRequest) (core.VerifyPaymentResult, error) {
	s.verified = append(s.verified, req)
	return core.VerifyPaymentResult{Reference: req.Reference, Status: "success", Notified: true}, nil
}

func (s *stubFacadeService) RetryFulfillment(_ context.Context, req core.RetryFulfillmentRequest) (core.FulfillmentRecord, error) {
	s.retried = append(s.retried, req)
	return core.FulfillmentRecord{Reference: req.Reference, Action: req.Action, Status: core.FulfillmentStatusSuccess, Attempt: 2}, nil
}

func (s *stubFacadeService) ListFulfillments(_ context.Context, providerID string, reference string) ([]core.FulfillmentRecord, error) {
	s.listed = append(s.listed, providerID+":"+reference)
	return []core.FulfillmentRecord{{ProviderID: providerID, Reference: reference, Action: core.FulfillmentActionNotifyAdmin}}, nil
}

func (s *stubFacadeService) ListMalformedEvents(_ context.Context, _ string, limit int) ([]core.MalformedEvent, error) {
	s.limits = append(s.limits, limit)
	return []core.MalformedEvent{{Reference: "TX9"}}, nil
}

func TestNewFacade_WiresCommandsAndQueries(t *testing.T) {
	facade, err := NewFacade(&stubFacadeService{})
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	commands := facade.Commands()
	if commands.InitializePayment == nil || commands.VerifyPayment == nil || commands.RetryFulfillment == nil {
		t.Fatalf("expected command handlers to be wired")
	}
	queries := facade.Queries()
	if queries.ListFulfillments == nil || queries.ListMalformedEvents == nil {
		t.Fatalf("expected query handlers to be wired")
	}
	if _, err := NewFacade(nil); err == nil {
		t.Fatalf("expected nil service to be rejected")
	}
}

func TestFacade_CommandResultsAreCollected(t *testing.T) {
	svc := &stubFacadeService{}
	facade, _ := NewFacade(svc)
	ctx := context.Background()

	initialized, err := facade.InitializePayment(ctx, core.InitializePaymentRequest{
		AmountMajor:     "15",
		BuyerNumber:     "0201234567",
		RecipientNumber: "0551234567",
		Plan:            "1GB",
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if initialized.Reference != "TX1" || initialized.AmountMinor != 1500 {
		t.Fatalf("expected collected initialize result, got %+v", initialized)
	}

	verified, err := facade.VerifyPayment(ctx, core.VerifyPaymentRequest{Reference: "TX1"})
	if err != nil || !verified.Notified {
		t.Fatalf("expected collected verify result, got %+v err=%v", verified, err)
	}

	record, err := facade.RetryFulfillment(ctx, core.RetryFulfillmentRequest{Reference: "TX1", Action: core.FulfillmentActionDeliverGoods})
	if err != nil || record.Attempt != 2 {
		t.Fatalf("expected collected retry result, got %+v err=%v", record, err)
	}
}

func TestFacade_ValidatesBeforeDelegating(t *testing.T) {
	svc := &stubFacadeService{}
	facade, _ := NewFacade(svc)
	ctx := context.Background()

	if _, err := facade.InitializePayment(ctx, core.InitializePaymentRequest{AmountMajor: "15", RecipientNumber: "0551234567", Plan: "1GB"}); err == nil {
		t.Fatalf("expected missing buyer number to be rejected")
	}
	if _, err := facade.InitializePayment(ctx, core.InitializePaymentRequest{AmountMajor: "abc", BuyerNumber: "0201234567", RecipientNumber: "0551234567", Plan: "1GB"}); err == nil {
		t.Fatalf("expected invalid amount to be rejected")
	}
	if _, err := facade.VerifyPayment(ctx, core.VerifyPaymentRequest{}); err == nil {
		t.Fatalf("expected missing reference to be rejected")
	}
	if _, err := facade.RetryFulfillment(ctx, core.RetryFulfillmentRequest{Reference: "TX1", Action: "refund"}); err == nil {
		t.Fatalf("expected invalid action to be rejected")
	}
	if _, err := facade.ListFulfillments(ctx, "paystack", ""); err == nil {
		t.Fatalf("expected missing reference to be rejected")
	}
	if len(svc.initialized) != 0 || len(svc.verified) != 0 || len(svc.retried) != 0 || len(svc.listed) != 0 {
		t.Fatalf("expected invalid messages not to reach the service")
	}
}

func TestFacade_Queries(t *testing.T) {
	svc := &stubFacadeService{}
	facade, _ := NewFacade(svc)
	ctx := context.Background()

	records, err := facade.ListFulfillments(ctx, "paystack", "TX1")
	if err != nil || len(records) != 1 || svc.listed[0] != "paystack:TX1" {
		t.Fatalf("unexpected fulfillments %+v err=%v", records, err)
	}
	events, err := facade.ListMalformedEvents(ctx, "paystack", 0)
	if err != nil || len(events) != 1 {
		t.Fatalf("unexpected malformed events %+v err=%v", events, err)
	}
	if svc.limits[0] != 50 {
		t.Fatalf("expected default page size, got %d", svc.limits[0])
	}
	if _, err := facade.ListMalformedEvents(ctx, "paystack", 501); err == nil {
		t.Fatalf("expected oversized page to be rejected")
	}
}

func TestFacade_NilIsSafe(t *testing.T) {
	var facade *Facade
	if _, err := facade.VerifyPayment(context.Background(), core.VerifyPaymentRequest{Reference: "TX1"}); err == nil {
		t.Fatalf("expected nil facade error")
	}
	if facade.Service() != nil {
		t.Fatalf("expected nil service from nil facade")
	}
}
