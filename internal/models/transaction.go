package models

import (
	"strings"
	"time"
)

const (
	StatusPending     = "pending"
	StatusProcessing  = "processing"
	StatusPaid        = "paid"
	StatusRefunded    = "refunded"
	StatusCanceled    = "canceled"
	StatusRefused     = "refused"
	StatusFailed      = "failed"
	StatusUnderpaid   = "underpaid"
	StatusOverpaid    = "overpaid"
	StatusChargedback = "chargedback"
)

// PaymentTransaction mirrors the payment_transactions row this pipeline
// mutates. The table is owned by the checkout flow; only the columns below
// are touched here.
type PaymentTransaction struct {
	ID                string
	Provider          string
	RoutedProvider    string
	ProviderOrderID   string
	ProviderChargeID  string
	Status            string
	AmountCents       int64
	Currency          string
	PaymentMethodType string
	Installments      *int
	RefundStatus      string
	PaidAt            *time.Time
	CapturedAt        *time.Time
	RefundedAt        *time.Time
	RawPayload        string
	UpdatedAt         time.Time
}

// AllowedTransitions is the strictly-forward partial order over transaction
// statuses. Anything not listed is a no-op: the stored status wins.
var AllowedTransitions = map[string][]string{
	StatusPending:    {StatusProcessing, StatusPaid, StatusRefunded, StatusCanceled, StatusFailed, StatusUnderpaid, StatusOverpaid, StatusChargedback},
	StatusProcessing: {StatusPaid, StatusRefunded, StatusCanceled, StatusFailed, StatusUnderpaid, StatusOverpaid, StatusChargedback},
	StatusPaid:       {StatusRefunded, StatusCanceled, StatusFailed, StatusChargedback},
	StatusRefunded:   {StatusCanceled, StatusFailed},
	StatusCanceled:   {StatusFailed},
}

// CanTransition reports whether moving from one status to another is a
// forward transition. It is the in-memory twin of the SQL CASE chain the
// repositories build from the same table.
func CanTransition(from, to string) bool {
	for _, next := range AllowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// pagarmeStatusMap translates raw PSP status strings into domain statuses.
// Unmapped non-empty statuses pass through verbatim.
var pagarmeStatusMap = map[string]string{
	"paid":        StatusPaid,
	"approved":    StatusPaid,
	"captured":    StatusPaid,
	"canceled":    StatusCanceled,
	"cancelled":   StatusCanceled,
	"refused":     StatusRefused,
	"failed":      StatusFailed,
	"refunded":    StatusRefunded,
	"processing":  StatusProcessing,
	"pending":     StatusPending,
	"underpaid":   StatusUnderpaid,
	"overpaid":    StatusOverpaid,
	"chargedback": StatusChargedback,
}

// MapPagarmeStatus maps a raw PSP status for a given event type into a
// domain status, or "" when no status change should be applied.
//
// Two guards: a mapped "paid" is discarded unless the event type actually is
// an order.paid/charge.paid notification (an incidental status:"paid" field
// on e.g. subscription.updated must not mark a transaction paid), and
// "active" (a subscription-payload artifact) is always discarded.
func MapPagarmeStatus(rawStatus, eventType string) string {
	raw := strings.ToLower(strings.TrimSpace(rawStatus))
	if raw == "" || raw == "active" {
		return ""
	}

	mapped, ok := pagarmeStatusMap[raw]
	if !ok {
		mapped = raw
	}

	if mapped == StatusPaid {
		t := strings.ToLower(eventType)
		if !strings.Contains(t, "order.paid") && !strings.Contains(t, "charge.paid") {
			return ""
		}
	}

	return mapped
}
