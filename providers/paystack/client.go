package paystack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-payhooks/core"
	"github.com/goliatone/go-payhooks/transport"
)

// Client implements core.PaymentGateway against the Paystack REST API.
type Client struct {
	config    Config
	transport core.TransportAdapter
}

func NewClient(cfg Config, adapter core.TransportAdapter) (*Client, error) {
	cfg = cfg.withDefaults()
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("providers/paystack: secret key is required")
	}
	if adapter == nil {
		adapter = transport.NewRESTAdapter(nil)
	}
	return &Client{config: cfg, transport: adapter}, nil
}

func (*Client) ProviderID() string {
	return ProviderID
}

type apiResponse struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initializePayload struct {
	Email       string         `json:"email"`
	Amount      int64          `json:"amount"`
	Currency    string         `json:"currency,omitempty"`
	CallbackURL string         `json:"callback_url,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

func (c *Client) InitializeTransaction(ctx context.Context, req core.InitializeTransactionRequest) (core.InitializeTransactionResult, error) {
	if c == nil {
		return core.InitializeTransactionResult{}, fmt.Errorf("providers/paystack: client is not configured")
	}
	if strings.TrimSpace(req.Email) == "" {
		return core.InitializeTransactionResult{}, fmt.Errorf("providers/paystack: email is required")
	}
	if req.AmountMinor <= 0 {
		return core.InitializeTransactionResult{}, fmt.Errorf("providers/paystack: amount must be positive")
	}
	currency := strings.TrimSpace(req.Currency)
	if currency == "" {
		currency = c.config.Currency
	}
	payload := initializePayload{
		Email:       strings.TrimSpace(req.Email),
		Amount:      req.AmountMinor,
		Currency:    currency,
		CallbackURL: strings.TrimSpace(req.CallbackURL),
	}
	if len(req.Metadata) > 0 {
		payload.Metadata = map[string]any{"custom_fields": CustomFields(req.Metadata)}
		for key, value := range req.Metadata {
			payload.Metadata[key] = value
		}
	}

	var envelope apiResponse
	if _, err := transport.DoJSON(ctx, c.transport, transport.JSONRequest{
		Method:      http.MethodPost,
		URL:         c.config.BaseURL + "/transaction/initialize",
		BearerToken: c.config.SecretKey,
		Payload:     payload,
		Timeout:     c.config.RequestTimeout,
		Metadata:    map[string]any{"provider": ProviderID, "operation": "initialize"},
	}, &envelope); err != nil {
		return core.InitializeTransactionResult{}, gatewayError(err, "initialize transaction", envelope.Message)
	}
	if !envelope.Status {
		return core.InitializeTransactionResult{}, gatewayError(nil, "initialize transaction", envelope.Message)
	}
	var data initializeData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return core.InitializeTransactionResult{}, gatewayError(err, "decode initialize data", "")
	}
	return core.InitializeTransactionResult{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Reference:        data.Reference,
	}, nil
}

func (c *Client) VerifyTransaction(ctx context.Context, reference string) (core.VerifiedTransaction, error) {
	if c == nil {
		return core.VerifiedTransaction{}, fmt.Errorf("providers/paystack: client is not configured")
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return core.VerifiedTransaction{}, fmt.Errorf("providers/paystack: reference is required")
	}

	var envelope apiResponse
	if _, err := transport.DoJSON(ctx, c.transport, transport.JSONRequest{
		Method:      http.MethodGet,
		URL:         c.config.BaseURL + "/transaction/verify/" + url.PathEscape(reference),
		BearerToken: c.config.SecretKey,
		Headers:     map[string]string{"Cache-Control": "no-cache"},
		Timeout:     c.config.RequestTimeout,
		Metadata:    map[string]any{"provider": ProviderID, "operation": "verify", "reference": reference},
	}, &envelope); err != nil {
		if transport.StatusCodeOf(err) == http.StatusNotFound || transport.StatusCodeOf(err) == http.StatusBadRequest {
			// Paystack answers unknown references with 400/404; treat as not paid.
			return core.VerifiedTransaction{Reference: reference, Status: "not_found"}, nil
		}
		return core.VerifiedTransaction{}, gatewayError(err, "verify transaction", envelope.Message)
	}

	var data transactionData
	if len(envelope.Data) > 0 {
		decoder := json.NewDecoder(strings.NewReader(string(envelope.Data)))
		decoder.UseNumber()
		if err := decoder.Decode(&data); err != nil {
			return core.VerifiedTransaction{}, gatewayError(err, "decode verify data", "")
		}
	}
	event, err := data.toEvent()
	if err != nil {
		return core.VerifiedTransaction{}, gatewayError(err, "decode verify data", "")
	}
	verified := core.VerifiedTransaction{
		Reference:   firstNonEmpty(event.Reference, reference),
		Status:      strings.ToLower(strings.TrimSpace(data.Status)),
		AmountMinor: event.AmountMinor,
		Currency:    event.Currency,
		Metadata:    event.Metadata,
	}
	if !envelope.Status && verified.Status == "" {
		verified.Status = "failed"
	}
	if paidAt, parseErr := time.Parse(time.RFC3339, strings.TrimSpace(data.PaidAt)); parseErr == nil {
		paid := paidAt.UTC()
		verified.PaidAt = &paid
	}
	return verified, nil
}

func gatewayError(source error, operation string, upstreamMessage string) error {
	message := "providers/paystack: " + operation + " failed"
	if upstreamMessage = strings.TrimSpace(upstreamMessage); upstreamMessage != "" {
		message += ": " + upstreamMessage
	}
	var err *goerrors.Error
	if source == nil {
		err = goerrors.New(message, goerrors.CategoryExternal)
	} else {
		err = goerrors.Wrap(source, goerrors.CategoryExternal, message)
	}
	return err.
		WithCode(http.StatusBadGateway).
		WithTextCode(core.ErrorDownstreamFailed).
		WithMetadata(map[string]any{"provider_id": ProviderID, "operation": operation})
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

var _ core.PaymentGateway = (*Client)(nil)
