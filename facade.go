package payhooks

import (
	"context"
	"fmt"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-payhooks/adapters/gocommand"
	payhookscommand "github.com/goliatone/go-payhooks/command"
	"github.com/goliatone/go-payhooks/core"
	payhooksquery "github.com/goliatone/go-payhooks/query"
)

type CommandQueryService interface {
	payhookscommand.PaymentService
	payhooksquery.FulfillmentReader
	payhooksquery.MalformedEventReader
}

type Commands struct {
	InitializePayment *payhookscommand.InitializePaymentCommand
	VerifyPayment     *payhookscommand.VerifyPaymentCommand
	RetryFulfillment  *payhookscommand.RetryFulfillmentCommand
}

type Queries struct {
	ListFulfillments    *payhooksquery.ListFulfillmentsQuery
	ListMalformedEvents *payhooksquery.ListMalformedEventsQuery
}

// Facade runs the go-command handlers in process. Every call validates the
// message contract first and reads results back through a result collector.
type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("payhooks: command/query service is required")
	}
	return &Facade{
		service: service,
		commands: Commands{
			InitializePayment: payhookscommand.NewInitializePaymentCommand(service),
			VerifyPayment:     payhookscommand.NewVerifyPaymentCommand(service),
			RetryFulfillment:  payhookscommand.NewRetryFulfillmentCommand(service),
		},
		queries: Queries{
			ListFulfillments:    payhooksquery.NewListFulfillmentsQuery(service),
			ListMalformedEvents: payhooksquery.NewListMalformedEventsQuery(service),
		},
	}, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

func (f *Facade) InitializePayment(ctx context.Context, req core.InitializePaymentRequest) (core.InitializePaymentResult, error) {
	if f == nil {
		return core.InitializePaymentResult{}, fmt.Errorf("payhooks: facade is not configured")
	}
	return execute[payhookscommand.InitializePaymentMessage, core.InitializePaymentResult](
		ctx,
		f.commands.InitializePayment,
		payhookscommand.InitializePaymentMessage{Request: req},
	)
}

func (f *Facade) VerifyPayment(ctx context.Context, req core.VerifyPaymentRequest) (core.VerifyPaymentResult, error) {
	if f == nil {
		return core.VerifyPaymentResult{}, fmt.Errorf("payhooks: facade is not configured")
	}
	return execute[payhookscommand.VerifyPaymentMessage, core.VerifyPaymentResult](
		ctx,
		f.commands.VerifyPayment,
		payhookscommand.VerifyPaymentMessage{Request: req},
	)
}

func (f *Facade) RetryFulfillment(ctx context.Context, req core.RetryFulfillmentRequest) (core.FulfillmentRecord, error) {
	if f == nil {
		return core.FulfillmentRecord{}, fmt.Errorf("payhooks: facade is not configured")
	}
	return execute[payhookscommand.RetryFulfillmentMessage, core.FulfillmentRecord](
		ctx,
		f.commands.RetryFulfillment,
		payhookscommand.RetryFulfillmentMessage{Request: req},
	)
}

func (f *Facade) ListFulfillments(ctx context.Context, providerID string, reference string) ([]core.FulfillmentRecord, error) {
	if f == nil {
		return nil, fmt.Errorf("payhooks: facade is not configured")
	}
	msg := payhooksquery.ListFulfillmentsMessage{ProviderID: providerID, Reference: reference}
	if err := gocommand.ValidateMessageContract(msg); err != nil {
		return nil, err
	}
	return f.queries.ListFulfillments.Query(ctx, msg)
}

func (f *Facade) ListMalformedEvents(ctx context.Context, providerID string, limit int) ([]core.MalformedEvent, error) {
	if f == nil {
		return nil, fmt.Errorf("payhooks: facade is not configured")
	}
	msg := payhooksquery.ListMalformedEventsMessage{ProviderID: providerID, Limit: limit}
	if err := gocommand.ValidateMessageContract(msg); err != nil {
		return nil, err
	}
	return f.queries.ListMalformedEvents.Query(ctx, msg)
}

func execute[T any, R any](ctx context.Context, cmd gocmd.Commander[T], msg T) (R, error) {
	var zero R
	if err := gocommand.ValidateMessageContract(msg); err != nil {
		return zero, err
	}
	collector := gocmd.NewResult[R]()
	err := cmd.Execute(gocmd.ContextWithResult(ctx, collector), msg)
	result, _ := collector.Load()
	return result, err
}
