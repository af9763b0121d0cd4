package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/tonipcv/kr-webhooks/internal/interfaces"
	"github.com/tonipcv/kr-webhooks/internal/models"
	"github.com/tonipcv/kr-webhooks/internal/normalizer"
	"github.com/tonipcv/kr-webhooks/internal/telemetry"
)

const (
	// DeadLetterSubject receives a notice whenever a row exhausts its
	// retry budget.
	DeadLetterSubject = "webhooks.deadletter"

	processingErrorMarker = "processing_failed"
)

type WorkerConfig struct {
	BatchSize int
	Backoff   time.Duration
	Sleep     time.Duration
}

// StatePublisher is satisfied by *kafka.Writer.
type StatePublisher interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// AlertPublisher is satisfied by *nats.Conn.
type AlertPublisher interface {
	Publish(subject string, data []byte) error
}

// Worker polls the event store for claimable rows and applies each one to
// the transaction records. Any number of replicas run the same loop; the
// skip-locked claim in the repository is the only coordination between them.
type Worker struct {
	events    interfaces.WebhookEventRepository
	txs       interfaces.TransactionRepository
	stripe    *StripeReconciler
	pagarme   *PagarmeReconciler
	publisher StatePublisher
	alerts    AlertPublisher
	cfg       WorkerConfig

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewWorker(
	events interfaces.WebhookEventRepository,
	txs interfaces.TransactionRepository,
	publisher StatePublisher,
	alerts AlertPublisher,
	cfg WorkerConfig,
) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 5 * time.Minute
	}
	if cfg.Sleep <= 0 {
		cfg.Sleep = time.Second
	}
	return &Worker{
		events:    events,
		txs:       txs,
		stripe:    NewStripeReconciler(txs),
		pagarme:   NewPagarmeReconciler(txs),
		publisher: publisher,
		alerts:    alerts,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run blocks until the context is canceled or Stop is called. Cancellation
// is checked between iterations and between batch items; a row claimed but
// not written back is released by the reclaimer.
func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	telemetry.Logger.Info("Webhook worker started",
		zap.Int("batch_size", w.cfg.BatchSize),
		zap.Duration("backoff", w.cfg.Backoff),
		zap.Duration("sleep", w.cfg.Sleep),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			telemetry.Logger.Info("Webhook worker stopping")
			return nil
		default:
		}

		claimed, err := w.events.ClaimBatch(ctx, w.cfg.BatchSize)
		if err != nil {
			// Claim failure degrades to "no rows": idle and retry.
			telemetry.Logger.Error("Failed to claim webhook events", zap.Error(err))
			w.idle(ctx)
			continue
		}

		if len(claimed) == 0 {
			w.idle(ctx)
			continue
		}

		for _, ev := range claimed {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-w.stopCh:
				telemetry.Logger.Info("Webhook worker stopping mid-batch")
				return nil
			default:
			}
			w.processEvent(ctx, ev)
		}
	}
}

// Stop signals the loop to exit and waits for it.
func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) idle(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-w.stopCh:
	case <-time.After(w.cfg.Sleep):
	}
}

func (w *Worker) processEvent(ctx context.Context, ev models.WebhookEvent) {
	ctx, span := telemetry.Tracer.Start(ctx, "webhook.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("webhook.event_id", ev.ID),
		attribute.String("webhook.provider", ev.Provider),
		attribute.String("webhook.type", ev.Type),
		attribute.Int("webhook.attempt", ev.Attempts),
	)

	start := time.Now()
	err := w.dispatch(ctx, ev)
	telemetry.ProcessingDuration.WithLabelValues(ev.Provider).Observe(time.Since(start).Seconds())

	if err == nil {
		w.recordSuccess(ctx, ev)
		return
	}

	telemetry.Logger.Error("Webhook event processing failed",
		zap.String("event_id", ev.ID),
		zap.String("provider", ev.Provider),
		zap.String("type", ev.Type),
		zap.Int("attempt", ev.Attempts),
		zap.Error(err),
	)
	w.recordFailure(ctx, ev)
}

// dispatch routes a claimed row to its provider handler. Unknown providers
// pass through as trivially successful.
func (w *Worker) dispatch(ctx context.Context, ev models.WebhookEvent) error {
	switch strings.ToLower(ev.Provider) {
	case models.ProviderStripe:
		norm := normalizer.Stripe([]byte(ev.Raw))
		if TryDomainUpdate(ctx, w.txs, norm, ev.Raw) {
			return nil
		}
		return w.stripe.Handle(ctx, norm, ev.Raw)

	case models.ProviderPagarme:
		// Normalized form is observability-only on this path; the
		// reconciler re-derives everything from the raw payload.
		norm := normalizer.Pagarme([]byte(ev.Raw))
		telemetry.Logger.Debug("Normalized PSP event",
			zap.String("event_id", ev.ID),
			zap.String("type", norm.Type),
			zap.String("order_id", norm.OrderID),
			zap.String("charge_id", norm.ChargeID),
			zap.String("status", norm.Status),
		)
		return w.pagarme.Handle(ctx, ev.Raw)

	default:
		telemetry.Logger.Warn("Unknown webhook provider, skipping",
			zap.String("event_id", ev.ID),
			zap.String("provider", ev.Provider),
		)
		return nil
	}
}

func (w *Worker) recordSuccess(ctx context.Context, ev models.WebhookEvent) {
	// Writeback is best-effort: a lost update leaves the processing marker
	// for the reclaimer, and the handlers are idempotent on replay.
	if err := w.events.MarkProcessed(ctx, ev.ID); err != nil {
		telemetry.Logger.Error("Failed to mark webhook event processed",
			zap.String("event_id", ev.ID),
			zap.Error(err),
		)
	}

	telemetry.EventsProcessed.WithLabelValues(ev.Provider).Inc()
	w.publishProcessed(ctx, ev)
}

func (w *Worker) recordFailure(ctx context.Context, ev models.WebhookEvent) {
	deadLettered, err := w.events.MarkFailed(ctx, ev.ID, processingErrorMarker)
	if err != nil {
		telemetry.Logger.Error("Failed to record webhook event failure",
			zap.String("event_id", ev.ID),
			zap.Error(err),
		)
		return
	}

	telemetry.EventsFailed.WithLabelValues(ev.Provider).Inc()

	if deadLettered {
		telemetry.EventsDeadLettered.WithLabelValues(ev.Provider).Inc()
		telemetry.Logger.Error("Webhook event moved to dead letter",
			zap.String("event_id", ev.ID),
			zap.String("provider", ev.Provider),
			zap.String("type", ev.Type),
			zap.Int("retry_count", ev.RetryCount+1),
		)
		w.alertDeadLetter(ev)
	}
}

// publishProcessed notifies downstream consumers (outbound merchant webhook
// fan-out) that an event landed. Failures never fail the event.
func (w *Worker) publishProcessed(ctx context.Context, ev models.WebhookEvent) {
	if w.publisher == nil {
		return
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"event_id":          ev.ID,
		"provider":          ev.Provider,
		"provider_event_id": ev.ProviderEventID,
		"type":              ev.Type,
		"processed_at":      time.Now().UTC(),
	})

	if err := w.publisher.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.ID),
		Value: payload,
	}); err != nil {
		telemetry.Logger.Warn("Failed to publish processed event",
			zap.String("event_id", ev.ID),
			zap.Error(err),
		)
	}
}

func (w *Worker) alertDeadLetter(ev models.WebhookEvent) {
	if w.alerts == nil {
		return
	}

	notice, _ := json.Marshal(map[string]interface{}{
		"event_id":          ev.ID,
		"provider":          ev.Provider,
		"provider_event_id": ev.ProviderEventID,
		"type":              ev.Type,
		"reason":            models.DeadLetterReason,
	})

	if err := w.alerts.Publish(DeadLetterSubject, notice); err != nil {
		telemetry.Logger.Warn("Failed to publish dead-letter alert",
			zap.String("event_id", ev.ID),
			zap.Error(err),
		)
	}
}
