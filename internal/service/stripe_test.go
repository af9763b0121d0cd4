package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonipcv/kr-webhooks/internal/models"
)

func TestStripeReconcilerChargeCaptured(t *testing.T) {
	ctx := context.Background()
	txs := newFakeTxRepo(&models.PaymentTransaction{
		ID:               "tx_1",
		Provider:         models.ProviderStripe,
		ProviderOrderID:  "pi_123",
		ProviderChargeID: "ch_123",
		Status:           models.StatusPaid,
	})
	h := NewStripeReconciler(txs)

	ev := models.NormalizedPaymentEvent{Provider: models.NormalizedStripe, Type: "charge.captured", ChargeID: "ch_123"}
	require.NoError(t, h.Handle(ctx, ev, `{"id":"ch_123"}`))

	row := txs.byOrderID("pi_123")
	require.NotNil(t, row.CapturedAt)
	first := row.CapturedAt

	// Redelivery keeps the original timestamp.
	require.NoError(t, h.Handle(ctx, ev, `{"id":"ch_123"}`))
	assert.Equal(t, first, txs.byOrderID("pi_123").CapturedAt)
}

func TestStripeReconcilerChargeRefundFallsBackToOrderID(t *testing.T) {
	ctx := context.Background()
	txs := newFakeTxRepo(&models.PaymentTransaction{
		ID:              "tx_1",
		Provider:        models.ProviderStripe,
		ProviderOrderID: "pi_123",
		Status:          models.StatusPaid,
	})
	h := NewStripeReconciler(txs)

	// Refund event with no charge id: the order id keys the update.
	ev := models.NormalizedPaymentEvent{Provider: models.NormalizedStripe, Type: "charge.refunded", OrderID: "pi_123"}
	require.NoError(t, h.Handle(ctx, ev, `{}`))

	row := txs.byOrderID("pi_123")
	assert.Equal(t, models.StatusRefunded, row.RefundStatus)
	assert.NotNil(t, row.RefundedAt)
}

func TestStripeReconcilerIgnoresEventsWithoutIdentifiers(t *testing.T) {
	ctx := context.Background()
	txs := newFakeTxRepo()
	h := NewStripeReconciler(txs)

	for _, typ := range []string{"charge.captured", "charge.refunded", "customer.created"} {
		require.NoError(t, h.Handle(ctx, models.NormalizedPaymentEvent{Provider: models.NormalizedStripe, Type: typ}, `{}`))
	}
	assert.Empty(t, txs.rows)
}

func TestStripePaymentIntentSucceededOnlyMovesForward(t *testing.T) {
	ctx := context.Background()
	txs := newFakeTxRepo(&models.PaymentTransaction{
		ID:              "tx_1",
		Provider:        models.ProviderStripe,
		ProviderOrderID: "pi_123",
		Status:          models.StatusRefunded,
	})
	h := NewStripeReconciler(txs)

	ev := models.NormalizedPaymentEvent{Provider: models.NormalizedStripe, Type: "payment_intent.succeeded", OrderID: "pi_123"}
	require.NoError(t, h.Handle(ctx, ev, `{}`))

	// A late success delivery must never downgrade a refunded transaction.
	assert.Equal(t, models.StatusRefunded, txs.byOrderID("pi_123").Status)
}
