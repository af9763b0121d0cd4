package service

import (
	"context"
	"strings"

	"github.com/tonipcv/kr-webhooks/internal/interfaces"
	"github.com/tonipcv/kr-webhooks/internal/models"
)

// StripeReconciler is the legacy fallback for Stripe event types not fully
// resolved by the domain-update registry. Any error here fails the whole
// event and triggers the worker's retry policy.
type StripeReconciler struct {
	txs interfaces.TransactionRepository
}

func NewStripeReconciler(txs interfaces.TransactionRepository) *StripeReconciler {
	return &StripeReconciler{txs: txs}
}

func (h *StripeReconciler) Handle(ctx context.Context, ev models.NormalizedPaymentEvent, raw string) error {
	switch strings.ToLower(ev.Type) {
	case "payment_intent.succeeded":
		// Pre-migration path for the same transition; delegates to the
		// registry implementation so the two call sites stay identical.
		_, err := applyStripePaymentIntentSucceeded(ctx, h.txs, ev, raw)
		return err

	case "charge.captured":
		id := ev.ChargeID
		if id == "" {
			id = ev.OrderID
		}
		if id == "" {
			return nil
		}
		_, err := h.txs.MarkCaptured(ctx, models.ProviderStripe, id, raw)
		return err

	case "charge.refunded", "charge.refund.updated", "charge.refund.created":
		id := ev.ChargeID
		if id == "" {
			id = ev.OrderID
		}
		if id == "" {
			return nil
		}
		_, err := h.txs.MarkRefunded(ctx, models.ProviderStripe, id, raw)
		return err
	}

	// Unrecognized Stripe event types are acknowledged without side effects.
	return nil
}
