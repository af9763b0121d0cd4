package models

import "time"

// NormalizedProvider is the canonical provider label carried on a
// NormalizedPaymentEvent, distinct from the wire-level provider strings.
type NormalizedProvider string

const (
	NormalizedStripe NormalizedProvider = "STRIPE"
	NormalizedKrxpay NormalizedProvider = "KRXPAY"
)

// NormalizedPaymentEvent is the in-memory canonical form of a provider
// webhook payload. It is never persisted; handlers that still need
// provider-specific fields read Raw.
type NormalizedPaymentEvent struct {
	Provider   NormalizedProvider
	Type       string
	OrderID    string
	ChargeID   string
	CustomerID string
	Status     string
	AmountMinor *int64
	Currency   string
	OccurredAt *time.Time
	Raw        map[string]any
}
