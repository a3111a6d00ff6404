// Package scheduler implements the background sweeps that keep the
// checkout tables converged: expiring stale pending sessions, finishing
// interrupted post-payment work, and pruning the webhook dedup ledger.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"neonnova/internal/checkout"
	"neonnova/internal/config"
	"neonnova/internal/types"
)

// maintenanceStore is the session repository surface the sweeps need.
// Implemented by db.SessionRepository.
type maintenanceStore interface {
	ExpirePending(ctx context.Context, cutoff, resolvedAt time.Time) (int64, error)
	ListPaidUncleared(ctx context.Context, limit int32) ([]*types.CheckoutSession, error)
	PruneLedger(ctx context.Context, cutoff time.Time) (int64, error)
}

// retryBatchSize caps how many stuck sessions one cart-clear sweep touches.
const retryBatchSize = 100

// Sweeper runs the periodic maintenance passes.
type Sweeper struct {
	store   maintenanceStore
	paid    checkout.Coordinator
	metrics checkout.Metrics
	cfg     config.SweeperConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewSweeper wires the sweeper.
func NewSweeper(store maintenanceStore, paid checkout.Coordinator, metrics checkout.Metrics, cfg config.SweeperConfig, logger *slog.Logger) *Sweeper {
	if metrics == nil {
		metrics = checkout.NoopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:   store,
		paid:    paid,
		metrics: metrics,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// ExpireStaleSessions moves pending sessions older than the TTL into the
// expired state. Webhooks arriving later for these sessions find a
// terminal row and are absorbed.
func (s *Sweeper) ExpireStaleSessions(ctx context.Context) error {
	now := s.now().UTC()
	expired, err := s.store.ExpirePending(ctx, now.Add(-s.cfg.SessionTTL), now)
	if err != nil {
		return err
	}
	if expired > 0 {
		s.logger.InfoContext(ctx, "expired stale pending sessions", "count", expired)
	}
	return nil
}

// RetryCartClears replays post-payment work for paid sessions whose cart
// clear never got stamped. OnPaid is idempotent end to end, so replaying
// a session that partially completed is safe.
func (s *Sweeper) RetryCartClears(ctx context.Context) error {
	sessions, err := s.store.ListPaidUncleared(ctx, retryBatchSize)
	if err != nil {
		return err
	}

	for _, session := range sessions {
		s.metrics.RecordCartClearRetry(ctx)
		if err := s.paid.OnPaid(ctx, session); err != nil {
			s.logger.WarnContext(ctx, "post-payment retry failed",
				"session_id", session.SessionID,
				"error", err,
			)
		}
	}
	return nil
}

// PruneLedger deletes webhook dedup entries older than the retention
// window. Retention must exceed the provider's redelivery horizon.
func (s *Sweeper) PruneLedger(ctx context.Context) error {
	pruned, err := s.store.PruneLedger(ctx, s.now().UTC().Add(-s.cfg.LedgerRetention))
	if err != nil {
		return err
	}
	if pruned > 0 {
		s.logger.InfoContext(ctx, "pruned webhook ledger entries", "count", pruned)
	}
	return nil
}

// RunOnce executes all sweeps sequentially, logging failures without
// aborting the remaining passes.
func (s *Sweeper) RunOnce(ctx context.Context) {
	if err := s.ExpireStaleSessions(ctx); err != nil {
		s.logger.ErrorContext(ctx, "expiry sweep failed", "error", err)
	}
	if err := s.RetryCartClears(ctx); err != nil {
		s.logger.ErrorContext(ctx, "cart-clear sweep failed", "error", err)
	}
	if err := s.PruneLedger(ctx); err != nil {
		s.logger.ErrorContext(ctx, "ledger prune failed", "error", err)
	}
}
