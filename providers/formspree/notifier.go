package formspree

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-payhooks/core"
	"github.com/goliatone/go-payhooks/transport"
)

const ProviderID = "formspree"

type Config struct {
	URL            string
	RequestTimeout time.Duration
}

// Notifier forwards confirmed orders to a Formspree form. It serves as the
// notify_admin fulfillment step and as the verify-payment order notifier.
type Notifier struct {
	config    Config
	transport core.TransportAdapter
}

func NewNotifier(cfg Config, adapter core.TransportAdapter) (*Notifier, error) {
	cfg.URL = strings.TrimSpace(cfg.URL)
	if cfg.URL == "" {
		return nil, fmt.Errorf("providers/formspree: form url is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 8 * time.Second
	}
	if adapter == nil {
		adapter = transport.NewRESTAdapter(nil)
	}
	return &Notifier{config: cfg, transport: adapter}, nil
}

type submission struct {
	PlanName          string `json:"plan_name"`
	PlanPrice         string `json:"plan_price"`
	RecipientNumber   string `json:"recipient_number"`
	BuyerNumber       string `json:"buyer_number,omitempty"`
	PaymentMethod     string `json:"payment_method,omitempty"`
	PaystackStatus    string `json:"paystack_status"`
	PaystackReference string `json:"paystack_reference"`
}

func (n *Notifier) NotifyOrder(ctx context.Context, notification core.OrderNotification) error {
	if n == nil {
		return fmt.Errorf("providers/formspree: notifier is not configured")
	}
	_, err := transport.DoJSON(ctx, n.transport, transport.JSONRequest{
		Method: http.MethodPost,
		URL:    n.config.URL,
		Payload: submission{
			PlanName:          notification.PlanName,
			PlanPrice:         notification.PlanPrice,
			RecipientNumber:   notification.RecipientNumber,
			BuyerNumber:       notification.BuyerNumber,
			PaymentMethod:     notification.PaymentMethod,
			PaystackStatus:    notification.Status,
			PaystackReference: notification.Reference,
		},
		Timeout:  n.config.RequestTimeout,
		Metadata: map[string]any{"action": string(core.FulfillmentActionNotifyAdmin), "reference": notification.Reference},
	}, nil)
	if err != nil {
		return fmt.Errorf("providers/formspree: submit order %s: %w", notification.Reference, err)
	}
	return nil
}

func (*Notifier) Action() core.FulfillmentAction {
	return core.FulfillmentActionNotifyAdmin
}

func (n *Notifier) Execute(ctx context.Context, event core.PaymentEvent, order core.Order) (string, error) {
	err := n.NotifyOrder(ctx, core.OrderNotification{
		Reference:       event.Reference,
		PlanName:        order.DisplayPlan(),
		PlanPrice:       event.DisplayAmount(),
		RecipientNumber: order.RecipientNumber,
		BuyerNumber:     order.BuyerNumber,
		Status:          "success",
	})
	if err != nil {
		return "", err
	}
	return "order forwarded to admin form", nil
}

var (
	_ core.OrderNotifier = (*Notifier)(nil)
	_ core.ActionHandler = (*Notifier)(nil)
)
