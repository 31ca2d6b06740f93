package command

import (
	"strings"

	"github.com/goliatone/go-payhooks/core"
)

const (
	TypeInitializePayment = "payhooks.command.payment.initialize"
	TypeVerifyPayment     = "payhooks.command.payment.verify"
	TypeRetryFulfillment  = "payhooks.command.fulfillment.retry"
)

type InitializePaymentMessage struct {
	Request core.InitializePaymentRequest
}

func (InitializePaymentMessage) Type() string { return TypeInitializePayment }

func (m InitializePaymentMessage) Validate() error {
	req := m.Request
	if strings.TrimSpace(req.AmountMajor) == "" {
		return commandValidationError("amount", "amount is required")
	}
	if _, err := core.ParseMajorUnits(req.AmountMajor); err != nil {
		return commandValidationError("amount", err.Error())
	}
	if strings.TrimSpace(req.BuyerNumber) == "" {
		return commandValidationError("buyerNumber", "buyer number is required")
	}
	if strings.TrimSpace(req.RecipientNumber) == "" {
		return commandValidationError("recipientNumber", "recipient number is required")
	}
	if strings.TrimSpace(req.Plan) == "" {
		return commandValidationError("plan", "plan is required")
	}
	return nil
}

type VerifyPaymentMessage struct {
	Request core.VerifyPaymentRequest
}

func (VerifyPaymentMessage) Type() string { return TypeVerifyPayment }

func (m VerifyPaymentMessage) Validate() error {
	if strings.TrimSpace(m.Request.Reference) == "" {
		return commandValidationError("reference", "transaction reference is required")
	}
	return nil
}

type RetryFulfillmentMessage struct {
	Request core.RetryFulfillmentRequest
}

func (RetryFulfillmentMessage) Type() string { return TypeRetryFulfillment }

func (m RetryFulfillmentMessage) Validate() error {
	if strings.TrimSpace(m.Request.Reference) == "" {
		return commandValidationError("reference", "reference is required")
	}
	if _, err := core.ParseFulfillmentAction(string(m.Request.Action)); err != nil {
		return commandWrapValidation(err, "command: invalid fulfillment action")
	}
	return nil
}
