package formspree

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goliatone/go-payhooks/core"
	"github.com/goliatone/go-payhooks/transport"
)

func newTestNotifier(t *testing.T, handler http.HandlerFunc) *Notifier {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	notifier, err := NewNotifier(Config{URL: server.URL + "/f/abc"}, transport.NewRESTAdapter(server.Client()))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	return notifier
}

func TestNewNotifier_RequiresURL(t *testing.T) {
	if _, err := NewNotifier(Config{}, nil); err == nil {
		t.Fatalf("expected url error")
	}
}

func TestNotifier_NotifyOrder(t *testing.T) {
	var payload map[string]string
	notifier := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	err := notifier.NotifyOrder(context.Background(), core.OrderNotification{
		Reference:       "ref_1",
		PlanName:        "5GB",
		PlanPrice:       "15.00",
		RecipientNumber: "0551234567",
		PaymentMethod:   "momo",
		Status:          "Payment Verified and Confirmed",
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if payload["plan_name"] != "5GB" || payload["plan_price"] != "15.00" || payload["paystack_reference"] != "ref_1" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if _, ok := payload["buyer_number"]; ok {
		t.Fatalf("expected empty buyer number to be omitted")
	}
}

func TestNotifier_ExecuteAsAction(t *testing.T) {
	var payload map[string]string
	notifier := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusOK)
	})

	detail, err := notifier.Execute(context.Background(),
		core.PaymentEvent{ProviderID: "paystack", Reference: "ref_2", AmountMinor: 2550},
		core.Order{RecipientNumber: "0551234567", Plan: "10", PlanName: "10GB", BuyerNumber: "0241112222"},
	)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if detail == "" {
		t.Fatalf("expected detail")
	}
	if payload["plan_price"] != "25.50" || payload["plan_name"] != "10GB" || payload["buyer_number"] != "0241112222" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if notifier.Action() != core.FulfillmentActionNotifyAdmin {
		t.Fatalf("unexpected action %q", notifier.Action())
	}
}

func TestNotifier_FormRejection(t *testing.T) {
	notifier := newTestNotifier(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	})
	if err := notifier.NotifyOrder(context.Background(), core.OrderNotification{Reference: "ref"}); err == nil {
		t.Fatalf("expected rejection error")
	}
}
