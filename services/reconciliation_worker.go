package services

import (
	"context"
	"time"

	"github.com/AymanAbdiMohamed/Donation-Platform-backend/models"
	aws_pkg "github.com/AymanAbdiMohamed/Donation-Platform-backend/pkg/aws"
	"github.com/AymanAbdiMohamed/Donation-Platform-backend/providers"
	"github.com/AymanAbdiMohamed/Donation-Platform-backend/repository"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ExpiredReason is recorded on donations that never received a callback.
const ExpiredReason = "No payment confirmation received"

// ReconcileConfig controls the pending donation sweep.
type ReconcileConfig struct {
	Interval     time.Duration
	PendingAfter time.Duration
	ExpireAfter  time.Duration
	BatchSize    int

	// QueryRPS caps STK status queries per second across a sweep.
	QueryRPS float64
}

func (c ReconcileConfig) withDefaults() ReconcileConfig {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.PendingAfter <= 0 {
		c.PendingAfter = 5 * time.Minute
	}
	if c.ExpireAfter <= 0 {
		c.ExpireAfter = 24 * time.Hour
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.QueryRPS <= 0 {
		c.QueryRPS = 2
	}
	return c
}

// Locker elects a single sweeper when several replicas run.
type Locker interface {
	TryLock(ctx context.Context) (unlock func(context.Context) error, acquired bool, err error)
}

// SweepStats summarises one sweep.
type SweepStats struct {
	Scanned      int
	Expired      int
	Failed       int
	StillPending int
	Errors       int
	Skipped      bool

	// Unconfirmed counts rows the provider reports as paid but no callback
	// has finalized. They stay PENDING and need manual reconciliation.
	Unconfirmed int
}

// ReconciliationWorker resolves donations whose callback never arrived by
// asking the provider, or expiring them once they are too old.
type ReconciliationWorker struct {
	donations repository.DonationRepository
	callbacks CallbackService
	provider  providers.PaymentProvider
	locker    Locker
	limiter   *rate.Limiter
	metrics   notifier
	cfg       ReconcileConfig
	logger    *zap.Logger
	now       func() time.Time

	// cursor is where the next sweep resumes so long-pending rows cannot
	// starve newer ones. Only the sweeping goroutine touches it.
	cursor repository.PendingCursor
}

// NewReconciliationWorker creates a worker. provider and locker may be nil.
func NewReconciliationWorker(
	donations repository.DonationRepository,
	callbacks CallbackService,
	provider providers.PaymentProvider,
	locker Locker,
	metrics MetricsRecorder,
	cfg ReconcileConfig,
	logger *zap.Logger,
) *ReconciliationWorker {
	cfg = cfg.withDefaults()
	return &ReconciliationWorker{
		donations: donations,
		callbacks: callbacks,
		provider:  provider,
		locker:    locker,
		limiter:   rate.NewLimiter(rate.Limit(cfg.QueryRPS), 1),
		metrics:   notifier{metrics: metrics, logger: logger},
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Start runs a sweep every interval until ctx is cancelled.
func (w *ReconciliationWorker) Start(ctx context.Context) {
	w.logger.Info("Reconciliation worker started",
		zap.Duration("interval", w.cfg.Interval),
		zap.Duration("pending_after", w.cfg.PendingAfter),
		zap.Duration("expire_after", w.cfg.ExpireAfter),
	)
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Reconciliation worker stopped")
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.Error("Reconciliation sweep failed", zap.Error(err))
			}
		}
	}
}

// RunOnce performs a single sweep over one page of stale PENDING donations.
// Consecutive sweeps walk the backlog page by page and wrap around at the end.
func (w *ReconciliationWorker) RunOnce(ctx context.Context) (SweepStats, error) {
	var stats SweepStats

	if w.locker != nil {
		unlock, acquired, err := w.locker.TryLock(ctx)
		if err != nil {
			return stats, err
		}
		if !acquired {
			stats.Skipped = true
			return stats, nil
		}
		defer func() {
			if err := unlock(context.Background()); err != nil {
				w.logger.Warn("Failed to release sweep lock", zap.Error(err))
			}
		}()
	}

	now := w.now()
	pending, err := w.donations.ListStalePending(ctx, now.Add(-w.cfg.PendingAfter), w.cursor, w.cfg.BatchSize)
	if err != nil {
		return stats, err
	}
	stats.Scanned = len(pending)
	if len(pending) < w.cfg.BatchSize {
		w.cursor = repository.PendingCursor{}
	} else {
		w.cursor = repository.CursorAfter(pending[len(pending)-1])
	}

	for i := range pending {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		w.reconcile(ctx, &pending[i], now, &stats)
	}

	if stats.Scanned > 0 {
		w.logger.Info("Reconciliation sweep finished",
			zap.Int("scanned", stats.Scanned),
			zap.Int("expired", stats.Expired),
			zap.Int("failed", stats.Failed),
			zap.Int("still_pending", stats.StillPending),
			zap.Int("unconfirmed", stats.Unconfirmed),
			zap.Int("errors", stats.Errors),
		)
	}
	return stats, nil
}

// reconcile settles one stale donation. With a provider configured the
// provider is always asked first, so a paid donation is never expired.
func (w *ReconciliationWorker) reconcile(ctx context.Context, d *models.Donation, now time.Time, stats *SweepStats) {
	expired := now.Sub(d.CreatedAt) >= w.cfg.ExpireAfter

	if w.provider == nil {
		if expired {
			w.expire(ctx, d, stats)
			return
		}
		stats.StillPending++
		return
	}

	if err := w.limiter.Wait(ctx); err != nil {
		stats.Errors++
		return
	}
	res, err := w.provider.QuerySTKStatus(ctx, d.CheckoutRequestID)
	if err != nil {
		// Expiry waits for a successful query; the row is retried next sweep.
		stats.Errors++
		w.logger.Warn("STK status query failed",
			zap.String("checkout_request_id", d.CheckoutRequestID),
			zap.Bool("expired", expired),
			zap.Error(err),
		)
		return
	}

	switch res.State {
	case providers.QueryFailed:
		reason := res.ResultDesc
		if reason == "" {
			reason = providers.DefaultFailureReason
		}
		if w.fail(ctx, d, reason, stats) {
			stats.Failed++
		}
	case providers.QuerySucceeded:
		// A SUCCESS row needs a receipt, which only the callback carries.
		w.logger.Error("Provider reports payment without a callback, manual reconciliation required",
			zap.String("donation_id", d.ID.String()),
			zap.String("checkout_request_id", d.CheckoutRequestID),
			zap.Duration("age", now.Sub(d.CreatedAt)),
		)
		w.metrics.count(aws_pkg.MetricDonationsUnconfirmedPaid)
		stats.Unconfirmed++
		stats.StillPending++
	default:
		if expired {
			w.expire(ctx, d, stats)
			return
		}
		stats.StillPending++
	}
}

func (w *ReconciliationWorker) expire(ctx context.Context, d *models.Donation, stats *SweepStats) {
	if w.fail(ctx, d, ExpiredReason, stats) {
		stats.Expired++
		w.metrics.count(aws_pkg.MetricDonationsExpired)
	}
}

func (w *ReconciliationWorker) fail(ctx context.Context, d *models.Donation, reason string, stats *SweepStats) bool {
	out := w.callbacks.FailPending(ctx, d.CheckoutRequestID, reason)
	if out.Status == OutcomeError {
		stats.Errors++
		return false
	}
	return !out.AlreadyProcessed
}
