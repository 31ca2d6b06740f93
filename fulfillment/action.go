package fulfillment

import (
	"context"

	"github.com/goliatone/go-payhooks/core"
)

// ActionFunc adapts a function into a core.ActionHandler.
type ActionFunc struct {
	Name core.FulfillmentAction
	Fn   func(ctx context.Context, event core.PaymentEvent, order core.Order) (string, error)
}

func (a ActionFunc) Action() core.FulfillmentAction {
	return a.Name
}

func (a ActionFunc) Execute(ctx context.Context, event core.PaymentEvent, order core.Order) (string, error) {
	if a.Fn == nil {
		return "no-op", nil
	}
	return a.Fn(ctx, event, order)
}

// Select keeps the handlers whose action is enabled, in enabled order.
func Select(enabled []core.FulfillmentAction, handlers ...core.ActionHandler) []core.ActionHandler {
	byAction := map[core.FulfillmentAction]core.ActionHandler{}
	for _, handler := range handlers {
		if handler == nil {
			continue
		}
		byAction[handler.Action()] = handler
	}
	out := make([]core.ActionHandler, 0, len(enabled))
	for _, action := range enabled {
		if handler, ok := byAction[action]; ok {
			out = append(out, handler)
		}
	}
	return out
}

var _ core.ActionHandler = ActionFunc{}
