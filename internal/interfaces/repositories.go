package interfaces

import (
	"context"
	"time"

	"github.com/tonipcv/kr-webhooks/internal/models"
)

// WebhookEventRepository defines the contract for the durable webhook event
// queue.
type WebhookEventRepository interface {
	// Publish inserts a fresh unprocessed row, or re-arms an existing
	// (provider, providerEventID) row for immediate reclaim. Empty eventType
	// and raw leave the stored values untouched (manual replay).
	Publish(ctx context.Context, provider, providerEventID, eventType, raw string) error

	// ClaimBatch atomically claims up to limit eligible rows, oldest first,
	// skipping rows locked by concurrent workers.
	ClaimBatch(ctx context.Context, limit int) ([]models.WebhookEvent, error)

	// MarkProcessed records a successful outcome and releases the claim.
	MarkProcessed(ctx context.Context, id string) error

	// MarkFailed records a failed outcome: bumps the retry counter, schedules
	// the next attempt, and flags the row dead-letter once the retry budget
	// is exhausted. Returns whether the row is now dead-lettered.
	MarkFailed(ctx context.Context, id, reason string) (bool, error)

	// ReleaseStale clears the processing marker on claims older than the
	// given age, making rows claimable again after a worker crash.
	ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error)

	GetByID(ctx context.Context, id string) (*models.WebhookEvent, error)
}

// OrderUpdate is an anti-downgrade update applied to a transaction matched
// by provider order id. An empty Status means no status change.
type OrderUpdate struct {
	Provider          string
	OrderID           string
	Status            string
	PaymentMethodType string
	Installments      *int
	RawPayload        string
}

// ChargeUpdate is an anti-downgrade update matched by provider charge id or
// order id; it also backfills provider_charge_id when unset.
type ChargeUpdate struct {
	Provider          string
	ChargeID          string
	OrderID           string
	Status            string
	PaymentMethodType string
	Installments      *int
	RawPayload        string
}

// Placeholder describes a minimally-populated transaction inserted when a
// webhook arrives before its checkout-created record.
type Placeholder struct {
	Provider       string
	RoutedProvider string
	OrderID        string
	ChargeID       string
	Status         string
	RawPayload     string
}

// TransactionRepository defines the conditional, idempotent mutations this
// pipeline performs on payment_transactions.
type TransactionRepository interface {
	// MarkPaidByOrderID sets status=paid only from pending/processing and
	// stamps paid_at once. Returns rows matched.
	MarkPaidByOrderID(ctx context.Context, provider, orderID, rawPayload string) (int64, error)

	// MarkCaptured stamps captured_at once, matched by charge or order id.
	MarkCaptured(ctx context.Context, provider, id, rawPayload string) (int64, error)

	// MarkRefunded sets refund_status and stamps refunded_at once, matched
	// by charge or order id.
	MarkRefunded(ctx context.Context, provider, id, rawPayload string) (int64, error)

	// RemediateOrderID repairs rows whose provider_order_id was mistakenly
	// recorded as the charge id.
	RemediateOrderID(ctx context.Context, provider, orderID, chargeID string) error

	ApplyOrderUpdate(ctx context.Context, upd OrderUpdate) (int64, error)
	ApplyChargeUpdate(ctx context.Context, upd ChargeUpdate) (int64, error)
	InsertPlaceholder(ctx context.Context, p Placeholder) error
}
