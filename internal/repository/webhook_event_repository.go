package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tonipcv/kr-webhooks/internal/models"
)

// WebhookEventRepository persists the durable inbound webhook queue in the
// webhook_events table. Claims are row-level: FOR UPDATE SKIP LOCKED is the
// only concurrency control between worker replicas.
type WebhookEventRepository struct {
	db         *sql.DB
	backoff    time.Duration
	maxRetries int
}

func NewWebhookEventRepository(db *sql.DB, backoff time.Duration, maxRetries int) *WebhookEventRepository {
	if maxRetries <= 0 {
		maxRetries = models.DefaultMaxRetries
	}
	return &WebhookEventRepository{db: db, backoff: backoff, maxRetries: maxRetries}
}

func (r *WebhookEventRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS webhook_events (
			id TEXT PRIMARY KEY,
			provider TEXT NOT NULL,
			provider_event_id TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT '',
			raw TEXT NOT NULL DEFAULT '',
			processed BOOLEAN NOT NULL DEFAULT FALSE,
			processed_at TIMESTAMPTZ,
			status TEXT,
			attempts INT NOT NULL DEFAULT 0,
			retry_count INT NOT NULL DEFAULT 0,
			max_retries INT NOT NULL DEFAULT 3,
			next_retry_at TIMESTAMPTZ,
			processing_error TEXT,
			moved_dead_letter BOOLEAN NOT NULL DEFAULT FALSE,
			dead_letter_reason TEXT,
			received_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			claimed_at TIMESTAMPTZ,
			UNIQUE (provider, provider_event_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_webhook_events_claimable
			ON webhook_events (received_at) WHERE NOT processed`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

// Publish inserts a fresh unprocessed row or, when (provider,
// provider_event_id) already exists, re-arms it for immediate reclaim.
// Replays pass empty eventType/raw, which keep the stored values.
func (r *WebhookEventRepository) Publish(ctx context.Context, provider, providerEventID, eventType, raw string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_events (id, provider, provider_event_id, type, raw, max_retries)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (provider, provider_event_id) DO UPDATE SET
			next_retry_at = NOW(),
			type = COALESCE(NULLIF(EXCLUDED.type, ''), webhook_events.type),
			raw = COALESCE(NULLIF(EXCLUDED.raw, ''), webhook_events.raw)
	`, uuid.NewString(), provider, providerEventID, eventType, raw, r.maxRetries)
	return err
}

// ClaimBatch atomically selects, locks, and marks up to limit eligible rows
// as processing. Rows locked by another worker are skipped, never waited on.
func (r *WebhookEventRepository) ClaimBatch(ctx context.Context, limit int) ([]models.WebhookEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE webhook_events SET
			status = 'processing',
			attempts = attempts + 1,
			claimed_at = NOW()
		WHERE id IN (
			SELECT id FROM webhook_events
			WHERE processed = FALSE
			  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
			  AND (status IS NULL OR status <> 'processing')
			ORDER BY received_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, provider, provider_event_id, type, raw, attempts,
		          retry_count, max_retries, received_at
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claimed []models.WebhookEvent
	for rows.Next() {
		var ev models.WebhookEvent
		if err := rows.Scan(&ev.ID, &ev.Provider, &ev.ProviderEventID, &ev.Type, &ev.Raw,
			&ev.Attempts, &ev.RetryCount, &ev.MaxRetries, &ev.ReceivedAt); err != nil {
			return nil, err
		}
		ev.Status = models.EventStatusProcessing
		claimed = append(claimed, ev)
	}
	return claimed, rows.Err()
}

func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE webhook_events SET
			processed = TRUE,
			processed_at = NOW(),
			processing_error = NULL,
			status = NULL
		WHERE id = $1
	`, id)
	return err
}

// MarkFailed schedules the next retry a fixed backoff away and flips the
// dead-letter flag once the retry budget is exhausted. The row stays
// claimable after dead-lettering; the flag is for alerting, not a hard stop.
func (r *WebhookEventRepository) MarkFailed(ctx context.Context, id, reason string) (bool, error) {
	var deadLettered bool
	err := r.db.QueryRowContext(ctx, `
		UPDATE webhook_events SET
			retry_count = retry_count + 1,
			next_retry_at = NOW() + ($2::bigint * interval '1 millisecond'),
			processing_error = $3,
			moved_dead_letter = CASE WHEN retry_count + 1 >= max_retries THEN TRUE ELSE moved_dead_letter END,
			dead_letter_reason = CASE WHEN retry_count + 1 >= max_retries THEN $4 ELSE dead_letter_reason END,
			status = NULL
		WHERE id = $1
		RETURNING moved_dead_letter
	`, id, r.backoff.Milliseconds(), reason, models.DeadLetterReason).Scan(&deadLettered)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return deadLettered, err
}

// ReleaseStale clears processing markers older than the given age. Covers
// workers that crashed between claiming and writing back an outcome.
func (r *WebhookEventRepository) ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE webhook_events SET status = NULL
		WHERE status = 'processing'
		  AND claimed_at < NOW() - ($1::bigint * interval '1 millisecond')
	`, olderThan.Milliseconds())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *WebhookEventRepository) GetByID(ctx context.Context, id string) (*models.WebhookEvent, error) {
	var (
		ev               models.WebhookEvent
		status           sql.NullString
		processedAt      sql.NullTime
		nextRetryAt      sql.NullTime
		claimedAt        sql.NullTime
		processingError  sql.NullString
		deadLetterReason sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, provider, provider_event_id, type, raw, processed, processed_at,
		       status, attempts, retry_count, max_retries, next_retry_at,
		       processing_error, moved_dead_letter, dead_letter_reason,
		       received_at, claimed_at
		FROM webhook_events WHERE id = $1
	`, id).Scan(&ev.ID, &ev.Provider, &ev.ProviderEventID, &ev.Type, &ev.Raw,
		&ev.Processed, &processedAt, &status, &ev.Attempts, &ev.RetryCount,
		&ev.MaxRetries, &nextRetryAt, &processingError, &ev.MovedDeadLetter,
		&deadLetterReason, &ev.ReceivedAt, &claimedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	ev.Status = status.String
	ev.ProcessingError = processingError.String
	ev.DeadLetterReason = deadLetterReason.String
	if processedAt.Valid {
		ev.ProcessedAt = &processedAt.Time
	}
	if nextRetryAt.Valid {
		ev.NextRetryAt = &nextRetryAt.Time
	}
	if claimedAt.Valid {
		ev.ClaimedAt = &claimedAt.Time
	}
	return &ev, nil
}
