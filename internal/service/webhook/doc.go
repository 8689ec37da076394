// Package webhook authenticates inbound webhooks and turns verified payment
// notifications into domain.PaymentEvent values.
//
// Verification always runs over the exact raw request bytes, before any JSON
// decoding. The Verifier reports only Valid or Invalid; it never tells the
// caller which check failed.
package webhook
