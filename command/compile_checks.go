package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-payhooks/core"
)

var (
	_ gocmd.Commander[InitializePaymentMessage] = (*InitializePaymentCommand)(nil)
	_ gocmd.Commander[VerifyPaymentMessage]     = (*VerifyPaymentCommand)(nil)
	_ gocmd.Commander[RetryFulfillmentMessage]  = (*RetryFulfillmentCommand)(nil)

	_ PaymentService = (*core.Service)(nil)
)
