package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tonipcv/kr-webhooks/internal/interfaces"
	"github.com/tonipcv/kr-webhooks/internal/telemetry"
)

const reclaimerLockKey = "webhook_reclaimer_lock"

type ReclaimerConfig struct {
	Interval     time.Duration
	ClaimTimeout time.Duration
}

// Reclaimer periodically releases rows stuck in processing: a worker that
// crashed after claiming a batch leaves its rows marked, and nothing else
// would ever make them claimable again. A Redis lease keeps the sweep to
// one replica per interval; with no Redis client every replica sweeps,
// which is merely redundant since the release is idempotent.
type Reclaimer struct {
	events interfaces.WebhookEventRepository
	redis  *redis.Client
	cfg    ReclaimerConfig

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewReclaimer(events interfaces.WebhookEventRepository, redisClient *redis.Client, cfg ReclaimerConfig) *Reclaimer {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.ClaimTimeout <= 0 {
		cfg.ClaimTimeout = 10 * time.Minute
	}
	return &Reclaimer{
		events:    events,
		redis:     redisClient,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (r *Reclaimer) Run(ctx context.Context) {
	defer close(r.stoppedCh)

	telemetry.Logger.Info("Reclaimer started",
		zap.Duration("interval", r.cfg.Interval),
		zap.Duration("claim_timeout", r.cfg.ClaimTimeout),
	)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			telemetry.Logger.Info("Reclaimer stopping")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reclaimer) Stop() {
	close(r.stopCh)
	<-r.stoppedCh
}

func (r *Reclaimer) sweep(ctx context.Context) {
	if r.redis != nil {
		locked := r.redis.SetNX(ctx, reclaimerLockKey, "1", r.cfg.Interval)
		if err := locked.Err(); err != nil {
			telemetry.Logger.Warn("Reclaimer lock check failed, sweeping anyway", zap.Error(err))
		} else if !locked.Val() {
			return
		}
	}

	released, err := r.events.ReleaseStale(ctx, r.cfg.ClaimTimeout)
	if err != nil {
		telemetry.Logger.Error("Failed to release stale claims", zap.Error(err))
		return
	}

	if released > 0 {
		telemetry.Logger.Warn("Released stale processing claims",
			zap.Int64("count", released),
			zap.Duration("older_than", r.cfg.ClaimTimeout),
		)
	}
}
