package normalizer

import (
	"strings"

	"github.com/tonipcv/kr-webhooks/internal/models"
)

// Stripe maps a raw Stripe event payload into the canonical form. The
// canonical object is data.object; identifiers are recognized by their
// Stripe id prefixes (pi_ for payment intents, ch_/py_ for charges).
func Stripe(raw []byte) models.NormalizedPaymentEvent {
	payload := decode(raw)
	object := getMap(getMap(payload, "data"), "object")

	ev := models.NormalizedPaymentEvent{
		Provider: models.NormalizedStripe,
		Type:     getString(payload, "type"),
		Raw:      payload,
	}

	objectID := getString(object, "id")

	ev.ChargeID = getString(object, "charge")
	if ev.ChargeID == "" && isStripeChargeID(objectID) {
		ev.ChargeID = objectID
	}

	if isStripePaymentIntentID(objectID) {
		ev.OrderID = objectID
	} else if pi := getString(object, "payment_intent"); pi != "" {
		ev.OrderID = pi
	}

	ev.CustomerID = getString(object, "customer")
	ev.Status = getString(object, "status")

	if amount := getInt64(object, "amount"); amount != nil {
		ev.AmountMinor = amount
	} else if total := getInt64(object, "amount_total"); total != nil {
		ev.AmountMinor = total
	}

	if currency := getString(object, "currency"); currency != "" {
		ev.Currency = upper(currency)
	}

	ev.OccurredAt = parseUnixSeconds(payload, "created")

	return ev
}

func isStripePaymentIntentID(id string) bool {
	return strings.HasPrefix(id, "pi_")
}

func isStripeChargeID(id string) bool {
	return strings.HasPrefix(id, "ch_") || strings.HasPrefix(id, "py_")
}
