package hubtel

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-payhooks/core"
	"github.com/goliatone/go-payhooks/transport"
)

const (
	ProviderID = "hubtel"
	BaseURL    = "https://smsc.hubtel.com/v1/messages/send"
)

type Config struct {
	BaseURL        string
	ClientID       string
	ClientSecret   string
	Sender         string
	RequestTimeout time.Duration
}

// SMSAction texts the buyer a receipt. It is the notify_buyer fulfillment
// step; orders without a buyer number are skipped.
type SMSAction struct {
	config    Config
	transport core.TransportAdapter
}

func NewSMSAction(cfg Config, adapter core.TransportAdapter) (*SMSAction, error) {
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("providers/hubtel: client id and secret are required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = BaseURL
	}
	if strings.TrimSpace(cfg.Sender) == "" {
		cfg.Sender = "PayHooks"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 8 * time.Second
	}
	if adapter == nil {
		adapter = transport.NewRESTAdapter(nil)
	}
	return &SMSAction{config: cfg, transport: adapter}, nil
}

func (*SMSAction) Action() core.FulfillmentAction {
	return core.FulfillmentActionNotifyBuyer
}

type sendPayload struct {
	From    string `json:"From"`
	To      string `json:"To"`
	Content string `json:"Content"`
}

func (a *SMSAction) Execute(ctx context.Context, event core.PaymentEvent, order core.Order) (string, error) {
	if a == nil {
		return "", fmt.Errorf("providers/hubtel: action is not configured")
	}
	to := strings.TrimSpace(order.BuyerNumber)
	if to == "" {
		return "skipped: no buyer number", nil
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(a.config.ClientID + ":" + a.config.ClientSecret))
	_, err := transport.DoJSON(ctx, a.transport, transport.JSONRequest{
		Method:  http.MethodPost,
		URL:     strings.TrimSpace(a.config.BaseURL),
		Headers: map[string]string{"Authorization": "Basic " + credentials},
		Payload: sendPayload{
			From:    a.config.Sender,
			To:      to,
			Content: MessageFor(event, order),
		},
		Timeout:     a.config.RequestTimeout,
		Idempotency: event.Key() + ":" + string(core.FulfillmentActionNotifyBuyer),
		Metadata:    map[string]any{"action": string(core.FulfillmentActionNotifyBuyer), "reference": event.Reference},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("providers/hubtel: send sms: %w", err)
	}
	return "sms sent to " + core.MaskMSISDN(to), nil
}

func MessageFor(event core.PaymentEvent, order core.Order) string {
	return fmt.Sprintf(
		"Payment of %s %s received. %s is on its way to %s. Ref: %s",
		event.Currency,
		event.DisplayAmount(),
		order.DisplayPlan(),
		order.RecipientNumber,
		event.Reference,
	)
}

var _ core.ActionHandler = (*SMSAction)(nil)
