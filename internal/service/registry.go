package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/tonipcv/kr-webhooks/internal/interfaces"
	"github.com/tonipcv/kr-webhooks/internal/models"
	"github.com/tonipcv/kr-webhooks/internal/telemetry"
)

// The domain-update registry resolves a normalized event straight into one
// conditional transaction update. One rule per (provider, type); both the
// normalized path and the legacy provider fallbacks call through the same
// entries, so the transitions cannot drift between the two.

type registryKey struct {
	provider models.NormalizedProvider
	event    string
}

// A domainUpdateFunc returns (handled, err). handled=false with a nil error
// means the rule's precondition was not met and the caller should fall back
// to provider-specific reconciliation.
type domainUpdateFunc func(ctx context.Context, txs interfaces.TransactionRepository, ev models.NormalizedPaymentEvent, raw string) (bool, error)

var domainUpdates = map[registryKey]domainUpdateFunc{
	{models.NormalizedStripe, "payment_intent.succeeded"}: applyStripePaymentIntentSucceeded,
}

// TryDomainUpdate attempts to fully resolve the event through the registry.
// SQL failures are swallowed into "not handled": the legacy fallback
// re-derives the same identifiers independently and retries, so nothing is
// lost by deferring.
func TryDomainUpdate(ctx context.Context, txs interfaces.TransactionRepository, ev models.NormalizedPaymentEvent, raw string) bool {
	update, ok := domainUpdates[registryKey{ev.Provider, ev.Type}]
	if !ok {
		return false
	}

	handled, err := update(ctx, txs, ev, raw)
	if err != nil {
		telemetry.Logger.Warn("Domain update failed, deferring to fallback",
			zap.String("provider", string(ev.Provider)),
			zap.String("type", ev.Type),
			zap.Error(err),
		)
		return false
	}
	return handled
}

// applyStripePaymentIntentSucceeded marks the matched transaction paid,
// only forward from pending/processing. A missing order id is a
// precondition miss, not an error.
func applyStripePaymentIntentSucceeded(ctx context.Context, txs interfaces.TransactionRepository, ev models.NormalizedPaymentEvent, raw string) (bool, error) {
	if ev.OrderID == "" {
		return false, nil
	}
	if _, err := txs.MarkPaidByOrderID(ctx, models.ProviderStripe, ev.OrderID, raw); err != nil {
		return false, err
	}
	return true, nil
}
