package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-payhooks/core"
)

// PaymentService is the mutating surface the commands delegate to.
// *core.Service satisfies it.
type PaymentService interface {
	InitializePayment(ctx context.Context, req core.InitializePaymentRequest) (core.InitializePaymentResult, error)
	VerifyPayment(ctx context.Context, req core.VerifyPaymentRequest) (core.VerifyPaymentResult, error)
	RetryFulfillment(ctx context.Context, req core.RetryFulfillmentRequest) (core.FulfillmentRecord, error)
}

type InitializePaymentCommand struct {
	service PaymentService
}

func NewInitializePaymentCommand(service PaymentService) *InitializePaymentCommand {
	return &InitializePaymentCommand{service: service}
}

func (c *InitializePaymentCommand) Execute(ctx context.Context, msg InitializePaymentMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: initialize payment service is required")
	}
	out, err := c.service.InitializePayment(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type VerifyPaymentCommand struct {
	service PaymentService
}

func NewVerifyPaymentCommand(service PaymentService) *VerifyPaymentCommand {
	return &VerifyPaymentCommand{service: service}
}

func (c *VerifyPaymentCommand) Execute(ctx context.Context, msg VerifyPaymentMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: verify payment service is required")
	}
	out, err := c.service.VerifyPayment(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RetryFulfillmentCommand struct {
	service PaymentService
}

func NewRetryFulfillmentCommand(service PaymentService) *RetryFulfillmentCommand {
	return &RetryFulfillmentCommand{service: service}
}

// Execute stores the attempt record even when the action failed again, so
// callers can show the recorded error detail.
func (c *RetryFulfillmentCommand) Execute(ctx context.Context, msg RetryFulfillmentMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: retry fulfillment service is required")
	}
	out, err := c.service.RetryFulfillment(ctx, msg.Request)
	if out.ID != "" || out.Status != "" {
		storeResult(ctx, out)
	}
	return err
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
