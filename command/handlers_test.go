package command

import (
	"context"
	"errors"
	"testing"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-payhooks/core"
)

func TestInitializePaymentCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.InitializePaymentResult{
		AuthorizationURL: "https://checkout.paystack.com/abc",
		AccessCode:       "abc",
		Reference:        "ref_abc",
		AmountMinor:      1500,
	}
	called := false
	svc := stubPaymentService{
		initializeFn: func(_ context.Context, req core.InitializePaymentRequest) (core.InitializePaymentResult, error) {
			called = true
			if req.AmountMajor != "15" || req.RecipientNumber != "0551234567" {
				t.Fatalf("unexpected initialize request: %#v", req)
			}
			return expected, nil
		},
	}

	cmd := NewInitializePaymentCommand(svc)
	collector := gocmd.NewResult[core.InitializePaymentResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, InitializePaymentMessage{Request: core.InitializePaymentRequest{
		AmountMajor:     "15",
		BuyerNumber:     "0241112222",
		RecipientNumber: "0551234567",
		Plan:            "1GB",
	}})
	if err != nil {
		t.Fatalf("execute initialize: %v", err)
	}
	if !called {
		t.Fatalf("expected initialize service invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.AuthorizationURL != expected.AuthorizationURL || result.Reference != expected.Reference {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestVerifyPaymentCommand_PropagatesServiceError(t *testing.T) {
	svc := stubPaymentService{
		verifyFn: func(context.Context, core.VerifyPaymentRequest) (core.VerifyPaymentResult, error) {
			return core.VerifyPaymentResult{}, core.ErrPaymentNotSuccessful
		},
	}
	collector := gocmd.NewResult[core.VerifyPaymentResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := NewVerifyPaymentCommand(svc).Execute(ctx, VerifyPaymentMessage{Request: core.VerifyPaymentRequest{Reference: "ref"}})
	if !errors.Is(err, core.ErrPaymentNotSuccessful) {
		t.Fatalf("expected payment not successful, got %v", err)
	}
	if _, ok := collector.Load(); ok {
		t.Fatalf("expected no result on failure")
	}
}

func TestRetryFulfillmentCommand_StoresFailedAttempt(t *testing.T) {
	failed := core.FulfillmentRecord{
		ID:          "rec_2",
		Reference:   "TX1",
		Action:      core.FulfillmentActionDeliverGoods,
		Status:      core.FulfillmentStatusFailed,
		Attempt:     2,
		ErrorDetail: "datamart unavailable",
	}
	svc := stubPaymentService{
		retryFn: func(_ context.Context, req core.RetryFulfillmentRequest) (core.FulfillmentRecord, error) {
			if req.Reference != "TX1" || req.Action != core.FulfillmentActionDeliverGoods {
				t.Fatalf("unexpected retry request: %#v", req)
			}
			return failed, core.NewDownstreamError(errors.New(failed.ErrorDetail), req.Action, req.Reference)
		},
	}
	collector := gocmd.NewResult[core.FulfillmentRecord]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := NewRetryFulfillmentCommand(svc).Execute(ctx, RetryFulfillmentMessage{Request: core.RetryFulfillmentRequest{
		Reference: "TX1",
		Action:    core.FulfillmentActionDeliverGoods,
	}})
	if core.ClassifyError(err) != core.ErrorClassDownstream {
		t.Fatalf("expected downstream failure, got %v", err)
	}
	record, ok := collector.Load()
	if !ok || record.ID != "rec_2" || record.Attempt != 2 {
		t.Fatalf("expected failed attempt to be stored, got %#v ok=%v", record, ok)
	}
}

func TestMessages_Validate(t *testing.T) {
	cases := map[string]interface{ Validate() error }{
		"initialize missing amount": InitializePaymentMessage{Request: core.InitializePaymentRequest{
			BuyerNumber: "0241112222", RecipientNumber: "0551234567", Plan: "1GB",
		}},
		"initialize bad amount": InitializePaymentMessage{Request: core.InitializePaymentRequest{
			AmountMajor: "ten", BuyerNumber: "0241112222", RecipientNumber: "0551234567", Plan: "1GB",
		}},
		"initialize missing recipient": InitializePaymentMessage{Request: core.InitializePaymentRequest{
			AmountMajor: "10", BuyerNumber: "0241112222", Plan: "1GB",
		}},
		"verify missing reference": VerifyPaymentMessage{},
		"retry missing reference":  RetryFulfillmentMessage{Request: core.RetryFulfillmentRequest{Action: core.FulfillmentActionNotifyAdmin}},
		"retry unknown action":     RetryFulfillmentMessage{Request: core.RetryFulfillmentRequest{Reference: "TX1", Action: "refund"}},
	}
	for name, msg := range cases {
		if err := msg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}

	valid := InitializePaymentMessage{Request: core.InitializePaymentRequest{
		AmountMajor: "10.50", BuyerNumber: "0241112222", RecipientNumber: "0551234567", Plan: "1GB",
	}}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid initialize message, got %v", err)
	}
}

type stubPaymentService struct {
	initializeFn func(context.Context, core.InitializePaymentRequest) (core.InitializePaymentResult, error)
	verifyFn     func(context.Context, core.VerifyPaymentRequest) (core.VerifyPaymentResult, error)
	retryFn      func(context.Context, core.RetryFulfillmentRequest) (core.FulfillmentRecord, error)
}

func (s stubPaymentService) InitializePayment(ctx context.Context, req core.InitializePaymentRequest) (core.InitializePaymentResult, error) {
	if s.initializeFn == nil {
		return core.InitializePaymentResult{}, nil
	}
	return s.initializeFn(ctx, req)
}

func (s stubPaymentService) VerifyPayment(ctx context.Context, req core.VerifyPaymentRequest) (core.VerifyPaymentResult, error) {
	if s.verifyFn == nil {
		return core.VerifyPaymentResult{}, nil
	}
	return s.verifyFn(ctx, req)
}

func (s stubPaymentService) RetryFulfillment(ctx context.Context, req core.RetryFulfillmentRequest) (core.FulfillmentRecord, error) {
	if s.retryFn == nil {
		return core.FulfillmentRecord{}, nil
	}
	return s.retryFn(ctx, req)
}
