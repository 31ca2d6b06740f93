// Package webhooks verifies and processes payment provider callbacks.
//
// A delivery moves through
// received -> signature_checked -> parsed -> dedup_checked -> dispatched -> acknowledged
// and stops early when it is rejected, ignored, malformed or a duplicate.
// Signatures are always computed over the raw request bytes. Fulfillment runs
// on a BackgroundRunner detached from the request so that an aborted callback
// never cancels work for a captured payment.
package webhooks
