package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tonipcv/kr-webhooks/internal/interfaces"
	"github.com/tonipcv/kr-webhooks/internal/models"
	"github.com/tonipcv/kr-webhooks/internal/repository"
)

var errFakeDB = errors.New("fake db failure")

// fakeEventRepo is an in-memory stand-in for the webhook_events table. Its
// methods mirror the SQL semantics of the real repository, including the
// single-claimer guarantee (the mutex plays the role of row locks).
type fakeEventRepo struct {
	mu         sync.Mutex
	rows       map[string]*models.WebhookEvent
	seq        int
	backoff    time.Duration
	maxRetries int
}

func newFakeEventRepo(backoff time.Duration, maxRetries int) *fakeEventRepo {
	return &fakeEventRepo{
		rows:       make(map[string]*models.WebhookEvent),
		backoff:    backoff,
		maxRetries: maxRetries,
	}
}

func (f *fakeEventRepo) Publish(_ context.Context, provider, providerEventID, eventType, raw string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, row := range f.rows {
		if row.Provider == provider && row.ProviderEventID == providerEventID {
			now := time.Now()
			row.NextRetryAt = &now
			if eventType != "" {
				row.Type = eventType
			}
			if raw != "" {
				row.Raw = raw
			}
			return nil
		}
	}

	f.seq++
	id := fmt.Sprintf("ev_%d", f.seq)
	f.rows[id] = &models.WebhookEvent{
		ID:              id,
		Provider:        provider,
		ProviderEventID: providerEventID,
		Type:            eventType,
		Raw:             raw,
		MaxRetries:      f.maxRetries,
		ReceivedAt:      time.Now(),
	}
	return nil
}

func (f *fakeEventRepo) ClaimBatch(_ context.Context, limit int) ([]models.WebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var eligible []*models.WebhookEvent
	now := time.Now()
	for _, row := range f.rows {
		if row.Processed || row.Status == models.EventStatusProcessing {
			continue
		}
		if row.NextRetryAt != nil && row.NextRetryAt.After(now) {
			continue
		}
		eligible = append(eligible, row)
	}
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].ReceivedAt.Before(eligible[j].ReceivedAt)
	})
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}

	claimed := make([]models.WebhookEvent, 0, len(eligible))
	for _, row := range eligible {
		row.Status = models.EventStatusProcessing
		row.Attempts++
		t := now
		row.ClaimedAt = &t
		claimed = append(claimed, *row)
	}
	return claimed, nil
}

func (f *fakeEventRepo) MarkProcessed(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.rows[id]
	if !ok {
		return nil
	}
	now := time.Now()
	row.Processed = true
	row.ProcessedAt = &now
	row.ProcessingError = ""
	row.Status = ""
	return nil
}

func (f *fakeEventRepo) MarkFailed(_ context.Context, id, reason string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.rows[id]
	if !ok {
		return false, nil
	}
	if row.RetryCount+1 >= row.MaxRetries {
		row.MovedDeadLetter = true
		row.DeadLetterReason = models.DeadLetterReason
	}
	row.RetryCount++
	next := time.Now().Add(f.backoff)
	row.NextRetryAt = &next
	row.ProcessingError = reason
	row.Status = ""
	return row.MovedDeadLetter, nil
}

func (f *fakeEventRepo) ReleaseStale(_ context.Context, olderThan time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var released int64
	cutoff := time.Now().Add(-olderThan)
	for _, row := range f.rows {
		if row.Status == models.EventStatusProcessing && row.ClaimedAt != nil && row.ClaimedAt.Before(cutoff) {
			row.Status = ""
			released++
		}
	}
	return released, nil
}

func (f *fakeEventRepo) GetByID(_ context.Context, id string) (*models.WebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *row
	return &copied, nil
}

func (f *fakeEventRepo) byProviderEventID(provider, providerEventID string) *models.WebhookEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.Provider == provider && row.ProviderEventID == providerEventID {
			copied := *row
			return &copied
		}
	}
	return nil
}

// remediation records one RemediateOrderID call.
type remediation struct {
	provider string
	orderID  string
	chargeID string
}

// fakeTxRepo is an in-memory payment_transactions table whose updates apply
// the same anti-downgrade rules as the generated SQL, via
// models.CanTransition.
type fakeTxRepo struct {
	mu           sync.Mutex
	rows         []*models.PaymentTransaction
	remediations []remediation
	failAll      bool
}

func newFakeTxRepo(rows ...*models.PaymentTransaction) *fakeTxRepo {
	return &fakeTxRepo{rows: rows}
}

func (f *fakeTxRepo) MarkPaidByOrderID(_ context.Context, provider, orderID, rawPayload string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return 0, errFakeDB
	}

	var matched int64
	for _, row := range f.rows {
		if row.Provider != provider || row.ProviderOrderID != orderID {
			continue
		}
		if row.Status == models.StatusPending || row.Status == models.StatusProcessing {
			row.Status = models.StatusPaid
		}
		if row.PaidAt == nil {
			now := time.Now()
			row.PaidAt = &now
		}
		row.RawPayload = rawPayload
		row.UpdatedAt = time.Now()
		matched++
	}
	return matched, nil
}

func (f *fakeTxRepo) MarkCaptured(_ context.Context, provider, id, rawPayload string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return 0, errFakeDB
	}

	var matched int64
	for _, row := range f.rows {
		if row.Provider != provider || (row.ProviderChargeID != id && row.ProviderOrderID != id) {
			continue
		}
		if row.CapturedAt == nil {
			now := time.Now()
			row.CapturedAt = &now
		}
		row.RawPayload = rawPayload
		row.UpdatedAt = time.Now()
		matched++
	}
	return matched, nil
}

func (f *fakeTxRepo) MarkRefunded(_ context.Context, provider, id, rawPayload string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return 0, errFakeDB
	}

	var matched int64
	for _, row := range f.rows {
		if row.Provider != provider || (row.ProviderChargeID != id && row.ProviderOrderID != id) {
			continue
		}
		row.RefundStatus = models.StatusRefunded
		if row.RefundedAt == nil {
			now := time.Now()
			row.RefundedAt = &now
		}
		row.RawPayload = rawPayload
		row.UpdatedAt = time.Now()
		matched++
	}
	return matched, nil
}

func (f *fakeTxRepo) RemediateOrderID(_ context.Context, provider, orderID, chargeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errFakeDB
	}

	f.remediations = append(f.remediations, remediation{provider, orderID, chargeID})
	for _, row := range f.rows {
		if row.Provider == provider && row.ProviderOrderID == chargeID {
			row.ProviderOrderID = orderID
			if row.ProviderChargeID == "" {
				row.ProviderChargeID = chargeID
			}
			row.UpdatedAt = time.Now()
		}
	}
	return nil
}

func (f *fakeTxRepo) ApplyOrderUpdate(_ context.Context, upd interfaces.OrderUpdate) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return 0, errFakeDB
	}

	var matched int64
	for _, row := range f.rows {
		if row.Provider != upd.Provider || row.ProviderOrderID != upd.OrderID {
			continue
		}
		f.applyUpdate(row, upd.Status, upd.PaymentMethodType, upd.Installments, upd.RawPayload)
		matched++
	}
	return matched, nil
}

func (f *fakeTxRepo) ApplyChargeUpdate(_ context.Context, upd interfaces.ChargeUpdate) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return 0, errFakeDB
	}

	var matched int64
	for _, row := range f.rows {
		if row.Provider != upd.Provider {
			continue
		}
		if row.ProviderChargeID != upd.ChargeID && (upd.OrderID == "" || row.ProviderOrderID != upd.OrderID) {
			continue
		}
		if row.ProviderChargeID == "" {
			row.ProviderChargeID = upd.ChargeID
		}
		f.applyUpdate(row, upd.Status, upd.PaymentMethodType, upd.Installments, upd.RawPayload)
		matched++
	}
	return matched, nil
}

func (f *fakeTxRepo) applyUpdate(row *models.PaymentTransaction, status, method string, installments *int, raw string) {
	if status != "" && models.CanTransition(row.Status, status) {
		row.Status = status
	}
	if method != "" && row.PaymentMethodType == "" {
		row.PaymentMethodType = method
	}
	if installments != nil && row.Installments == nil {
		row.Installments = installments
	}
	row.RawPayload = raw
	row.UpdatedAt = time.Now()
}

func (f *fakeTxRepo) InsertPlaceholder(_ context.Context, p interfaces.Placeholder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errFakeDB
	}

	key := p.OrderID
	if key == "" {
		key = p.ChargeID
	}
	f.rows = append(f.rows, &models.PaymentTransaction{
		ID:               fmt.Sprintf("wh_%s_%d", key, time.Now().UnixMilli()),
		Provider:         p.Provider,
		RoutedProvider:   p.RoutedProvider,
		ProviderOrderID:  p.OrderID,
		ProviderChargeID: p.ChargeID,
		Status:           p.Status,
		Currency:         "BRL",
		RawPayload:       p.RawPayload,
		UpdatedAt:        time.Now(),
	})
	return nil
}

func (f *fakeTxRepo) byOrderID(orderID string) *models.PaymentTransaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ProviderOrderID == orderID {
			return row
		}
	}
	return nil
}

func (f *fakeTxRepo) placeholders() []*models.PaymentTransaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.PaymentTransaction
	for _, row := range f.rows {
		if strings.HasPrefix(row.ID, "wh_") {
			out = append(out, row)
		}
	}
	return out
}
