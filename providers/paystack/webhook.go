package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-payhooks/core"
	"github.com/goliatone/go-payhooks/webhooks"
)

// NewWebhookTemplate verifies X-Paystack-Signature as hex HMAC-SHA512 of the
// raw body keyed with the secret key.
func NewWebhookTemplate(secretKey string) webhooks.ProviderWebhookTemplate {
	return webhooks.ProviderWebhookTemplate{
		ProviderID: ProviderID,
		Verifier: webhooks.HeaderHMACVerifier{
			Header:    SignatureHeader,
			Secret:    strings.TrimSpace(secretKey),
			Algorithm: webhooks.AlgorithmSHA512,
			Encoding:  "hex",
		},
		Parser:            EventParser{},
		SuccessEventTypes: []string{core.EventTypeChargeSuccess},
	}
}

type webhookEnvelope struct {
	Event string          `json:"event"`
	Data  transactionData `json:"data"`
}

type transactionData struct {
	Reference string          `json:"reference"`
	Amount    json.Number     `json:"amount"`
	Currency  string          `json:"currency"`
	Status    string          `json:"status"`
	PaidAt    string          `json:"paid_at"`
	Metadata  json.RawMessage `json:"metadata"`
}

type customField struct {
	DisplayName  string `json:"display_name"`
	VariableName string `json:"variable_name"`
	Value        any    `json:"value"`
}

// EventParser reads the Paystack webhook envelope.
type EventParser struct{}

func (EventParser) ParseEvent(_ context.Context, req core.InboundRequest) (core.PaymentEvent, error) {
	var envelope webhookEnvelope
	decoder := json.NewDecoder(bytes.NewReader(req.Body))
	decoder.UseNumber()
	if err := decoder.Decode(&envelope); err != nil {
		return core.PaymentEvent{}, fmt.Errorf("providers/paystack: decode webhook body: %w", err)
	}
	eventType := strings.TrimSpace(envelope.Event)
	if eventType == "" {
		return core.PaymentEvent{}, fmt.Errorf("providers/paystack: webhook event type is required")
	}
	event, err := envelope.Data.toEvent()
	if err != nil {
		return core.PaymentEvent{}, err
	}
	event.EventType = eventType
	event.ReceivedAt = req.ReceivedAt
	return event, nil
}

func (d transactionData) toEvent() (core.PaymentEvent, error) {
	amount, err := parseAmount(d.Amount)
	if err != nil {
		return core.PaymentEvent{}, err
	}
	metadata, err := FlattenMetadata(d.Metadata)
	if err != nil {
		return core.PaymentEvent{}, err
	}
	return core.PaymentEvent{
		ProviderID:  ProviderID,
		Reference:   strings.TrimSpace(d.Reference),
		AmountMinor: amount,
		Currency:    strings.ToUpper(strings.TrimSpace(d.Currency)),
		Metadata:    metadata,
	}, nil
}

func parseAmount(raw json.Number) (int64, error) {
	text := strings.TrimSpace(raw.String())
	if text == "" {
		return 0, nil
	}
	amount, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("providers/paystack: invalid amount %q: %w", text, err)
	}
	return amount, nil
}

// FlattenMetadata converts Paystack metadata into a flat string map.
// custom_fields entries are keyed by variable_name; top level scalar keys are
// kept as they are. Metadata may arrive as an object, a JSON encoded string
// or an empty value.
func FlattenMetadata(raw json.RawMessage) (map[string]string, error) {
	out := map[string]string{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return out, nil
	}

	if trimmed[0] == '"' {
		var encoded string
		if err := json.Unmarshal(trimmed, &encoded); err != nil {
			return nil, fmt.Errorf("providers/paystack: decode metadata string: %w", err)
		}
		encoded = strings.TrimSpace(encoded)
		if encoded == "" || encoded[0] != '{' {
			return out, nil
		}
		trimmed = []byte(encoded)
	}
	if trimmed[0] != '{' {
		return out, nil
	}

	var fields map[string]json.RawMessage
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	if err := decoder.Decode(&fields); err != nil {
		return nil, fmt.Errorf("providers/paystack: decode metadata: %w", err)
	}
	for key, value := range fields {
		if key == "custom_fields" {
			continue
		}
		if text, ok := scalarString(value); ok {
			out[key] = text
		}
	}
	if rawCustom, ok := fields["custom_fields"]; ok {
		var custom []customField
		if err := json.Unmarshal(rawCustom, &custom); err != nil {
			return nil, fmt.Errorf("providers/paystack: decode custom_fields: %w", err)
		}
		for _, field := range custom {
			name := strings.TrimSpace(field.VariableName)
			if name == "" || field.Value == nil {
				continue
			}
			value := strings.TrimSpace(fmt.Sprint(field.Value))
			if value == "" {
				continue
			}
			out[name] = value
		}
	}
	return out, nil
}

// CustomFields renders flat metadata back into the custom_fields list shown on
// the Paystack dashboard.
func CustomFields(metadata map[string]string) []map[string]string {
	labels := []struct {
		key   string
		label string
	}{
		{core.MetadataRecipientNumber, "Recipient Phone"},
		{core.MetadataSelectedPlan, "Selected Plan"},
		{core.MetadataSelectedNetwork, "Selected Network"},
		{core.MetadataBuyerNumber, "Buyer Number"},
		{core.MetadataPlanName, "Plan Name"},
	}
	out := []map[string]string{}
	for _, entry := range labels {
		value := strings.TrimSpace(metadata[entry.key])
		if value == "" {
			continue
		}
		out = append(out, map[string]string{
			"display_name":  entry.label,
			"variable_name": entry.key,
			"value":         value,
		})
	}
	return out
}

func scalarString(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", false
	}
	switch trimmed[0] {
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return "", false
		}
		return strings.TrimSpace(text), strings.TrimSpace(text) != ""
	case '{', '[', 'n':
		return "", false
	default:
		return string(trimmed), true
	}
}

var _ webhooks.EventParser = EventParser{}
