package models

import "time"

const (
	ProviderStripe  = "stripe"
	ProviderPagarme = "pagarme" // user-facing alias: KRXPAY

	// RoutedProviderKrxpay is the user-facing routing label stored on
	// placeholder transactions created from PSP webhooks.
	RoutedProviderKrxpay = "KRXPAY"
)

// EventStatusProcessing marks a row currently claimed by a worker. A row
// either carries this marker or an empty status; there are no other values.
const EventStatusProcessing = "processing"

const (
	DefaultMaxRetries = 3
	DeadLetterReason  = "max_retries"
)

// WebhookEvent is one durable row per inbound provider webhook delivery.
// Rows are never deleted; terminal states are Processed=true or
// MovedDeadLetter=true.
type WebhookEvent struct {
	ID              string     `json:"id"`
	Provider        string     `json:"provider"`
	ProviderEventID string     `json:"provider_event_id"`
	Type            string     `json:"type"`
	Raw             string     `json:"raw"`
	Processed       bool       `json:"processed"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	Status          string     `json:"status,omitempty"`
	Attempts        int        `json:"attempts"`
	RetryCount      int        `json:"retry_count"`
	MaxRetries      int        `json:"max_retries"`
	NextRetryAt     *time.Time `json:"next_retry_at,omitempty"`
	ProcessingError string     `json:"processing_error,omitempty"`
	MovedDeadLetter bool       `json:"moved_dead_letter"`
	DeadLetterReason string    `json:"dead_letter_reason,omitempty"`
	ReceivedAt      time.Time  `json:"received_at"`
	ClaimedAt       *time.Time `json:"claimed_at,omitempty"`
}
