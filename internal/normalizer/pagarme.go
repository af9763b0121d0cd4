package normalizer

import (
	"strings"

	"github.com/tonipcv/kr-webhooks/internal/models"
)

// Pagarme maps a raw KRXPAY/pagarme event payload into the canonical form.
// PSP payloads are heterogeneous: the interesting object may live under
// data.object, data, or be the payload itself, and order/charge ids hide
// under several nesting variants.
func Pagarme(raw []byte) models.NormalizedPaymentEvent {
	payload := decode(raw)
	object := pagarmeObject(payload)

	eventType := PagarmeEventType(payload)

	ev := models.NormalizedPaymentEvent{
		Provider: models.NormalizedKrxpay,
		Type:     eventType,
		Raw:      payload,
	}

	ev.OrderID = PagarmeOrderID(payload, eventType)
	ev.ChargeID = PagarmeChargeID(payload, eventType)
	ev.CustomerID = getString(getMap(object, "customer"), "id")
	ev.Status = getString(object, "status")

	if amount := getInt64(object, "amount"); amount != nil {
		ev.AmountMinor = amount
	} else if total := getInt64(object, "amount_total"); total != nil {
		ev.AmountMinor = total
	}

	if currency := getString(object, "currency"); currency != "" {
		ev.Currency = upper(currency)
	}

	ev.OccurredAt = parseTimestamp(object, "created_at", "createdAt")
	if ev.OccurredAt == nil {
		ev.OccurredAt = parseTimestamp(payload, "created_at", "createdAt")
	}

	return ev
}

// PagarmeEventType reads the event type from the type field, falling back
// to event.
func PagarmeEventType(payload map[string]any) string {
	if t := getString(payload, "type"); t != "" {
		return t
	}
	return getString(payload, "event")
}

// pagarmeObject picks the candidate payload object: data.object, then data,
// then the bare payload.
func pagarmeObject(payload map[string]any) map[string]any {
	data := getMap(payload, "data")
	if object := getMap(data, "object"); object != nil {
		return object
	}
	if data != nil {
		return data
	}
	return payload
}

// PagarmeOrderID extracts the provider order id, trying the nested order
// object under each candidate path and falling back to the object's own id
// for order.* events. Exported because the legacy reconciliation path
// re-derives ids independently of the normalizer.
func PagarmeOrderID(payload map[string]any, eventType string) string {
	object := pagarmeObject(payload)

	for _, candidate := range []map[string]any{object, getMap(payload, "data"), payload} {
		if id := getString(getMap(candidate, "order"), "id"); id != "" {
			return id
		}
	}

	if strings.HasPrefix(strings.ToLower(eventType), "order") {
		return getString(object, "id")
	}

	return ""
}

// PagarmeChargeID extracts the provider charge id, including the first
// element of a charges array, falling back to the object's own id for
// charge.* events.
func PagarmeChargeID(payload map[string]any, eventType string) string {
	object := pagarmeObject(payload)

	for _, candidate := range []map[string]any{object, getMap(payload, "data"), payload} {
		if id := getString(getMap(candidate, "charge"), "id"); id != "" {
			return id
		}
		if id := getString(firstOfList(candidate, "charges"), "id"); id != "" {
			return id
		}
	}

	if strings.HasPrefix(strings.ToLower(eventType), "charge") {
		return getString(object, "id")
	}

	return ""
}

// PagarmeSubscriptionID extracts a subscription id when present.
// Subscriptions are billed as orders, so callers may use it as an order id
// of last resort.
func PagarmeSubscriptionID(payload map[string]any, eventType string) string {
	object := pagarmeObject(payload)

	for _, candidate := range []map[string]any{object, getMap(payload, "data"), payload} {
		if id := getString(getMap(candidate, "subscription"), "id"); id != "" {
			return id
		}
	}

	if strings.HasPrefix(strings.ToLower(eventType), "subscription") {
		return getString(object, "id")
	}

	return ""
}

// PagarmePaymentMethod extracts the payment method type, lower-cased, from
// the object or its nested charge/last_transaction.
func PagarmePaymentMethod(payload map[string]any) string {
	object := pagarmeObject(payload)
	charge := getMap(object, "charge")
	if charge == nil {
		charge = firstOfList(object, "charges")
	}

	for _, candidate := range []map[string]any{object, charge, getMap(charge, "last_transaction"), getMap(object, "last_transaction")} {
		if method := getString(candidate, "payment_method"); method != "" {
			return strings.ToLower(method)
		}
	}
	return ""
}

// PagarmeInstallments extracts a positive installments count, or nil.
func PagarmeInstallments(payload map[string]any) *int {
	object := pagarmeObject(payload)
	charge := getMap(object, "charge")
	if charge == nil {
		charge = firstOfList(object, "charges")
	}

	for _, candidate := range []map[string]any{object, charge, getMap(charge, "last_transaction"), getMap(object, "last_transaction")} {
		if n := getInt(candidate, "installments"); n != nil && *n > 0 {
			return n
		}
	}
	return nil
}

// PagarmeStatus extracts the raw status string from the object or its
// nested charge.
func PagarmeStatus(payload map[string]any) string {
	object := pagarmeObject(payload)
	if status := getString(object, "status"); status != "" {
		return status
	}
	charge := getMap(object, "charge")
	if charge == nil {
		charge = firstOfList(object, "charges")
	}
	return getString(charge, "status")
}
