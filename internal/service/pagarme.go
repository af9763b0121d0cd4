package service

import (
	"context"
	"strings"

	"github.com/tonipcv/kr-webhooks/internal/interfaces"
	"github.com/tonipcv/kr-webhooks/internal/models"
	"github.com/tonipcv/kr-webhooks/internal/normalizer"
)

// PagarmeReconciler handles all KRXPAY/pagarme events. It re-derives ids
// from the raw payload independently of the normalizer, applies the mapped
// status through the anti-downgrade update, and inserts placeholder
// transactions for webhooks that outran their checkout record.
type PagarmeReconciler struct {
	txs interfaces.TransactionRepository
}

func NewPagarmeReconciler(txs interfaces.TransactionRepository) *PagarmeReconciler {
	return &PagarmeReconciler{txs: txs}
}

func (h *PagarmeReconciler) Handle(ctx context.Context, raw string) error {
	payload := normalizer.Parse([]byte(raw))
	eventType := normalizer.PagarmeEventType(payload)

	orderID := normalizer.PagarmeOrderID(payload, eventType)
	if orderID == "" {
		// Subscriptions are billed as orders in this model.
		orderID = normalizer.PagarmeSubscriptionID(payload, eventType)
	}
	chargeID := normalizer.PagarmeChargeID(payload, eventType)

	// A charge-shaped order id is a known upstream confusion; drop it and
	// rely on the charge-keyed update instead.
	if orderID != "" && chargeID != "" && strings.HasPrefix(orderID, "ch_") {
		orderID = ""
	}

	// Both ids valid and distinct: repair historical rows that stored the
	// charge id in provider_order_id.
	if orderID != "" && chargeID != "" && orderID != chargeID {
		if err := h.txs.RemediateOrderID(ctx, models.ProviderPagarme, orderID, chargeID); err != nil {
			return err
		}
	}

	status := models.MapPagarmeStatus(normalizer.PagarmeStatus(payload), eventType)
	method := normalizer.PagarmePaymentMethod(payload)
	installments := normalizer.PagarmeInstallments(payload)

	if orderID != "" {
		rows, err := h.txs.ApplyOrderUpdate(ctx, interfaces.OrderUpdate{
			Provider:          models.ProviderPagarme,
			OrderID:           orderID,
			Status:            status,
			PaymentMethodType: method,
			Installments:      installments,
			RawPayload:        raw,
		})
		if err != nil {
			return err
		}
		if rows == 0 {
			if err := h.insertPlaceholder(ctx, orderID, chargeID, status, raw); err != nil {
				return err
			}
		}
	}

	if chargeID != "" {
		rows, err := h.txs.ApplyChargeUpdate(ctx, interfaces.ChargeUpdate{
			Provider:          models.ProviderPagarme,
			ChargeID:          chargeID,
			OrderID:           orderID,
			Status:            status,
			PaymentMethodType: method,
			Installments:      installments,
			RawPayload:        raw,
		})
		if err != nil {
			return err
		}
		// Only insert here when the order-keyed step had nothing to key on,
		// otherwise that step already inserted the placeholder.
		if rows == 0 && orderID == "" {
			if err := h.insertPlaceholder(ctx, "", chargeID, status, raw); err != nil {
				return err
			}
		}
	}

	return nil
}

func (h *PagarmeReconciler) insertPlaceholder(ctx context.Context, orderID, chargeID, status, raw string) error {
	if status == "" {
		status = models.StatusProcessing
	}
	return h.txs.InsertPlaceholder(ctx, interfaces.Placeholder{
		Provider:       models.ProviderPagarme,
		RoutedProvider: models.RoutedProviderKrxpay,
		OrderID:        orderID,
		ChargeID:       chargeID,
		Status:         status,
		RawPayload:     raw,
	})
}
