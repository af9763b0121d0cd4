package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tonipcv/kr-webhooks/internal/interfaces"
	"github.com/tonipcv/kr-webhooks/internal/models"
)

// TransactionRepository applies conditional, idempotent mutations to
// payment_transactions. Every status write goes through the anti-downgrade
// predicate built from models.AllowedTransitions, so replayed and
// out-of-order events converge instead of regressing.
type TransactionRepository struct {
	db *sql.DB

	// (status = 'pending' AND $n IN (...)) OR ... — built once from the
	// transition table so SQL and Go tests share one source of truth.
	transitionPredicate string
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// transitionOrder fixes the branch order of the generated predicate.
var transitionOrder = []string{
	models.StatusPending,
	models.StatusProcessing,
	models.StatusPaid,
	models.StatusRefunded,
	models.StatusCanceled,
}

// forwardPredicate renders the anti-downgrade condition for a status bound
// to the given positional parameter.
func forwardPredicate(param string) string {
	var branches []string
	for _, from := range transitionOrder {
		allowed := models.AllowedTransitions[from]
		quoted := make([]string, len(allowed))
		for i, s := range allowed {
			quoted[i] = "'" + s + "'"
		}
		branches = append(branches, fmt.Sprintf("(status = '%s' AND %s IN (%s))", from, param, strings.Join(quoted, ", ")))
	}
	return strings.Join(branches, " OR ")
}

func (r *TransactionRepository) InitDB() error {
	_, err := r.db.Exec(`CREATE TABLE IF NOT EXISTS payment_transactions (
		id TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		routed_provider TEXT,
		provider_order_id TEXT,
		provider_charge_id TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		amount_cents BIGINT NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT 'BRL',
		payment_method_type TEXT,
		installments INT,
		refund_status TEXT,
		paid_at TIMESTAMPTZ,
		captured_at TIMESTAMPTZ,
		refunded_at TIMESTAMPTZ,
		raw_payload TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (provider, provider_order_id)
	)`)
	return err
}

// MarkPaidByOrderID is the payment_intent.succeeded transition: paid only
// from pending/processing, paid_at stamped once, raw payload overwritten.
func (r *TransactionRepository) MarkPaidByOrderID(ctx context.Context, provider, orderID, rawPayload string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payment_transactions SET
			status = CASE WHEN status IN ('pending', 'processing') THEN 'paid' ELSE status END,
			paid_at = COALESCE(paid_at, NOW()),
			raw_payload = $3,
			updated_at = NOW()
		WHERE provider = $1 AND provider_order_id = $2
	`, provider, orderID, rawPayload)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// MarkCaptured stamps captured_at once. No anti-downgrade branch: the
// timestamp is monotonic once set.
func (r *TransactionRepository) MarkCaptured(ctx context.Context, provider, id, rawPayload string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payment_transactions SET
			captured_at = COALESCE(captured_at, NOW()),
			raw_payload = $3,
			updated_at = NOW()
		WHERE provider = $1 AND (provider_charge_id = $2 OR provider_order_id = $2)
	`, provider, id, rawPayload)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *TransactionRepository) MarkRefunded(ctx context.Context, provider, id, rawPayload string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payment_transactions SET
			refund_status = 'refunded',
			refunded_at = COALESCE(refunded_at, NOW()),
			raw_payload = $3,
			updated_at = NOW()
		WHERE provider = $1 AND (provider_charge_id = $2 OR provider_order_id = $2)
	`, provider, id, rawPayload)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// RemediateOrderID fixes historical rows where the charge id was recorded
// as the order id (known upstream bug): point them at the real order id and
// backfill provider_charge_id when unset.
func (r *TransactionRepository) RemediateOrderID(ctx context.Context, provider, orderID, chargeID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payment_transactions SET
			provider_order_id = $2,
			provider_charge_id = COALESCE(NULLIF(provider_charge_id, ''), $3),
			updated_at = NOW()
		WHERE provider = $1 AND provider_order_id = $3
	`, provider, orderID, chargeID)
	return err
}

func (r *TransactionRepository) ApplyOrderUpdate(ctx context.Context, upd interfaces.OrderUpdate) (int64, error) {
	query := fmt.Sprintf(`
		UPDATE payment_transactions SET
			status = CASE WHEN $3 <> '' AND (%s) THEN $3 ELSE status END,
			payment_method_type = COALESCE(NULLIF($4, ''), payment_method_type),
			installments = COALESCE($5, installments),
			raw_payload = $6,
			updated_at = NOW()
		WHERE provider = $1 AND provider_order_id = $2
	`, forwardPredicate("$3"))

	result, err := r.db.ExecContext(ctx, query,
		upd.Provider, upd.OrderID, upd.Status, upd.PaymentMethodType, upd.Installments, upd.RawPayload)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *TransactionRepository) ApplyChargeUpdate(ctx context.Context, upd interfaces.ChargeUpdate) (int64, error) {
	query := fmt.Sprintf(`
		UPDATE payment_transactions SET
			status = CASE WHEN $4 <> '' AND (%s) THEN $4 ELSE status END,
			provider_charge_id = COALESCE(NULLIF(provider_charge_id, ''), $3),
			payment_method_type = COALESCE(NULLIF($5, ''), payment_method_type),
			installments = COALESCE($6, installments),
			raw_payload = $7,
			updated_at = NOW()
		WHERE provider = $1 AND (provider_charge_id = $3 OR provider_order_id = $2)
	`, forwardPredicate("$4"))

	result, err := r.db.ExecContext(ctx, query,
		upd.Provider, upd.OrderID, upd.ChargeID, upd.Status, upd.PaymentMethodType, upd.Installments, upd.RawPayload)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// InsertPlaceholder creates the minimal row for a webhook that arrived
// before its checkout-created record. Empty ids become NULL so the
// (provider, provider_order_id) unique key tolerates charge-keyed rows.
func (r *TransactionRepository) InsertPlaceholder(ctx context.Context, p interfaces.Placeholder) error {
	key := p.OrderID
	if key == "" {
		key = p.ChargeID
	}
	id := fmt.Sprintf("wh_%s_%d", key, time.Now().UnixMilli())

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_transactions
			(id, provider, routed_provider, provider_order_id, provider_charge_id,
			 status, amount_cents, currency, raw_payload)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, 0, 'BRL', $7)
		ON CONFLICT DO NOTHING
	`, id, p.Provider, p.RoutedProvider, p.OrderID, p.ChargeID, p.Status, p.RawPayload)
	return err
}
