package datamart

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-payhooks/core"
	"github.com/goliatone/go-payhooks/transport"
)

const (
	ProviderID = "datamart"
	APIURL     = "https://api.datamart.shop/buy"
)

type Config struct {
	APIURL         string
	APIKey         string
	RequestTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		APIURL:         APIURL,
		RequestTimeout: 8 * time.Second,
	}
}

// Action buys the data bundle described by the order. It is the
// deliver_goods fulfillment step.
type Action struct {
	config    Config
	transport core.TransportAdapter
}

func NewAction(cfg Config, adapter core.TransportAdapter) (*Action, error) {
	defaults := DefaultConfig()
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("providers/datamart: api key is required")
	}
	if strings.TrimSpace(cfg.APIURL) == "" {
		cfg.APIURL = defaults.APIURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaults.RequestTimeout
	}
	if adapter == nil {
		adapter = transport.NewRESTAdapter(nil)
	}
	return &Action{config: cfg, transport: adapter}, nil
}

func (*Action) Action() core.FulfillmentAction {
	return core.FulfillmentActionDeliverGoods
}

type purchasePayload struct {
	Network   string `json:"network"`
	Plan      string `json:"plan"`
	Recipient string `json:"recipient"`
}

type purchaseResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (a *Action) Execute(ctx context.Context, event core.PaymentEvent, order core.Order) (string, error) {
	if a == nil {
		return "", fmt.Errorf("providers/datamart: action is not configured")
	}
	var res purchaseResponse
	_, err := transport.DoJSON(ctx, a.transport, transport.JSONRequest{
		Method:      http.MethodPost,
		URL:         strings.TrimSpace(a.config.APIURL),
		BearerToken: a.config.APIKey,
		Payload: purchasePayload{
			Network:   order.Network,
			Plan:      order.Plan,
			Recipient: order.RecipientNumber,
		},
		Timeout:     a.config.RequestTimeout,
		Idempotency: event.Key() + ":" + string(core.FulfillmentActionDeliverGoods),
		Metadata:    map[string]any{"action": string(core.FulfillmentActionDeliverGoods), "reference": event.Reference},
	}, &res)
	if err != nil {
		if msg := strings.TrimSpace(res.Message); msg != "" {
			return "", fmt.Errorf("providers/datamart: %s: %w", msg, err)
		}
		return "", fmt.Errorf("providers/datamart: purchase request: %w", err)
	}
	if !strings.EqualFold(strings.TrimSpace(res.Status), "success") {
		return "", fmt.Errorf("providers/datamart: purchase rejected: status=%q message=%q", res.Status, res.Message)
	}
	return fmt.Sprintf("delivered plan %s to %s", order.Plan, core.MaskMSISDN(order.RecipientNumber)), nil
}

var _ core.ActionHandler = (*Action)(nil)
