package payhooks

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-payhooks/core"
	"github.com/goliatone/go-payhooks/providers/datamart"
	"github.com/goliatone/go-payhooks/providers/formspree"
	"github.com/goliatone/go-payhooks/providers/hubtel"
	"github.com/goliatone/go-payhooks/providers/paystack"
)

func PaystackGateway(cfg core.PaystackConfig, adapter core.TransportAdapter) (*paystack.Client, error) {
	return paystack.NewClient(paystack.Config{
		SecretKey: cfg.SecretKey,
		BaseURL:   cfg.BaseURL,
		Currency:  cfg.Currency,
	}, adapter)
}

func DataMartAction(cfg core.DataMartConfig, adapter core.TransportAdapter) (*datamart.Action, error) {
	return datamart.NewAction(datamart.Config{
		APIURL: cfg.APIURL,
		APIKey: cfg.APIKey,
	}, adapter)
}

func FormspreeNotifier(cfg core.FormspreeConfig, adapter core.TransportAdapter) (*formspree.Notifier, error) {
	return formspree.NewNotifier(formspree.Config{URL: cfg.URL}, adapter)
}

func HubtelSMSAction(cfg core.HubtelConfig, adapter core.TransportAdapter) (*hubtel.SMSAction, error) {
	return hubtel.NewSMSAction(hubtel.Config{
		BaseURL:      cfg.BaseURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Sender:       cfg.Sender,
	}, adapter)
}

// ActionSet is the result of building fulfillment actions from config.
// Skipped lists enabled actions whose provider has no credentials.
type ActionSet struct {
	Actions  []core.ActionHandler
	Notifier core.OrderNotifier
	Skipped  map[core.FulfillmentAction]string
}

// BuildActions creates the enabled fulfillment actions. An enabled action
// without credentials is skipped, not treated as an error, so a partial
// deployment still boots.
func BuildActions(cfg core.Config, adapter core.TransportAdapter) (ActionSet, error) {
	set := ActionSet{Skipped: map[core.FulfillmentAction]string{}}

	var notifier *formspree.Notifier
	if strings.TrimSpace(cfg.Formspree.URL) != "" {
		built, err := FormspreeNotifier(cfg.Formspree, adapter)
		if err != nil {
			return ActionSet{}, err
		}
		notifier = built
		set.Notifier = built
	}

	for _, action := range cfg.EnabledActions() {
		switch action {
		case core.FulfillmentActionDeliverGoods:
			if strings.TrimSpace(cfg.DataMart.APIKey) == "" {
				set.Skipped[action] = "datamart api key is not configured"
				continue
			}
			handler, err := DataMartAction(cfg.DataMart, adapter)
			if err != nil {
				return ActionSet{}, err
			}
			set.Actions = append(set.Actions, handler)
		case core.FulfillmentActionNotifyAdmin:
			if notifier == nil {
				set.Skipped[action] = "formspree url is not configured"
				continue
			}
			set.Actions = append(set.Actions, notifier)
		case core.FulfillmentActionNotifyBuyer:
			if strings.TrimSpace(cfg.Hubtel.ClientID) == "" || strings.TrimSpace(cfg.Hubtel.ClientSecret) == "" {
				set.Skipped[action] = "hubtel credentials are not configured"
				continue
			}
			handler, err := HubtelSMSAction(cfg.Hubtel, adapter)
			if err != nil {
				return ActionSet{}, err
			}
			set.Actions = append(set.Actions, handler)
		default:
			return ActionSet{}, fmt.Errorf("payhooks: unsupported fulfillment action %q", action)
		}
	}
	return set, nil
}
