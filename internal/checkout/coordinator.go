package checkout

import (
	"context"
	"log/slog"
	"time"

	"neonnova/internal/types"
)

// CartClearer clears a buyer's live cart. Implemented by db.CartRepository.
type CartClearer interface {
	Clear(ctx context.Context, userID string) error
}

// OrderStore finalizes orders. Implemented by db.OrderRepository.
type OrderStore interface {
	CreateFromSession(ctx context.Context, session *types.CheckoutSession, snap *types.CartSnapshot, createdAt time.Time) (*types.Order, error)
}

// PostPaymentCoordinator runs the obligations owed after a confirmed
// payment: finalize the order from the session's snapshot, clear the live
// cart, and stamp the session as cleared. Each step is idempotent, so the
// whole sequence can be replayed by the sweeper until it completes.
type PostPaymentCoordinator struct {
	snapshots SnapshotStore
	orders    OrderStore
	carts     CartClearer
	sessions  SessionStore
	logger    *slog.Logger
	now       func() time.Time
}

// NewPostPaymentCoordinator wires the coordinator.
func NewPostPaymentCoordinator(
	snapshots SnapshotStore,
	orders OrderStore,
	carts CartClearer,
	sessions SessionStore,
	logger *slog.Logger,
) *PostPaymentCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostPaymentCoordinator{
		snapshots: snapshots,
		orders:    orders,
		carts:     carts,
		sessions:  sessions,
		logger:    logger,
		now:       time.Now,
	}
}

// OnPaid finalizes a paid session. An error means the order could not be
// finalized and the caller should let the sweeper replay the call. A
// failed cart clear is not an error: the order is done, the session stays
// unstamped, and the sweeper retries the clear. A session whose user
// cannot be resolved gets the same treatment; the clear is deferred, never
// dropped.
func (c *PostPaymentCoordinator) OnPaid(ctx context.Context, session *types.CheckoutSession) error {
	snap, err := c.snapshots.GetByID(ctx, session.CartSnapshotID)
	if err != nil {
		return err
	}

	order, err := c.orders.CreateFromSession(ctx, session, snap, c.now().UTC())
	if err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "order finalized",
		"order_id", order.ID,
		"session_id", session.SessionID,
		"total", order.Total,
	)

	if session.UserID == "" {
		c.logger.WarnContext(ctx, "paid session has no resolvable user, deferring cart clear",
			"session_id", session.SessionID,
		)
		return nil
	}

	if err := c.carts.Clear(ctx, session.UserID); err != nil {
		c.logger.WarnContext(ctx, "cart clear failed, deferring to sweeper",
			"session_id", session.SessionID,
			"user_id", session.UserID,
			"error", err,
		)
		return nil
	}

	if err := c.sessions.MarkCartCleared(ctx, session.SessionID, c.now().UTC()); err != nil {
		c.logger.WarnContext(ctx, "failed to stamp cart clear, sweeper will re-run",
			"session_id", session.SessionID,
			"error", err,
		)
	}
	return nil
}
