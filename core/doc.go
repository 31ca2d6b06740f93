// Package core contains the payment webhook domain: events, orders,
// fulfillment records, the contracts stores and providers implement, and the
// checkout/operator service. Provider and transport adapters depend on this
// package; core must not depend on them.
package core
