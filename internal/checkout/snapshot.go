// Package checkout implements the payment-session lifecycle: cart
// snapshotting, session creation against the payment provider, webhook
// reconciliation with exactly-once side effects, and post-payment
// coordination.
package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"neonnova/internal/types"
)

// CartReader provides live cart access. Implemented by db.CartRepository.
type CartReader interface {
	Lines(ctx context.Context, userID string) ([]types.CartLine, error)
}

// SnapshotStore persists immutable snapshots. Implemented by
// db.SnapshotRepository.
type SnapshotStore interface {
	Save(ctx context.Context, snap *types.CartSnapshot) error
	GetByID(ctx context.Context, id string) (*types.CartSnapshot, error)
}

// CartSnapshotter captures an immutable, validated snapshot of a buyer's
// cart. Prices and stock are re-read from the catalog at snapshot time;
// whatever the client believes the cart costs is irrelevant.
type CartSnapshotter struct {
	cart     CartReader
	currency string
	now      func() time.Time
}

// NewCartSnapshotter creates a snapshotter pricing in the given currency.
func NewCartSnapshotter(cart CartReader, currency string) *CartSnapshotter {
	return &CartSnapshotter{cart: cart, currency: currency, now: time.Now}
}

// Snapshot reads the live cart and returns a validated snapshot, without
// persisting it. Validation fails fast on the first offending line: an
// empty cart, a non-positive quantity or price, or a line whose quantity
// exceeds current stock (the error names the product).
func (s *CartSnapshotter) Snapshot(ctx context.Context, userID string) (*types.CartSnapshot, error) {
	lines, err := s.cart.Lines(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, types.NewAppError(types.ErrCodeValidationEmptyCart, "cart is empty", nil)
	}

	items := make([]types.SnapshotItem, 0, len(lines))
	var total int64
	for _, l := range lines {
		if l.Quantity <= 0 || l.UnitPrice < 0 {
			return nil, types.NewAppErrorWithDetails(
				types.ErrCodeValidationInvalidLine,
				fmt.Sprintf("invalid cart line for product %d", l.ProductID),
				nil,
				map[string]any{"product_id": l.ProductID},
			)
		}
		if l.Quantity > l.Stock {
			return nil, types.NewAppErrorWithDetails(
				types.ErrCodeValidationOutOfStock,
				fmt.Sprintf("product %d has insufficient stock", l.ProductID),
				nil,
				map[string]any{"product_id": l.ProductID, "requested": l.Quantity, "available": l.Stock},
			)
		}

		items = append(items, types.SnapshotItem{
			ProductID:       l.ProductID,
			UnitPrice:       l.UnitPrice,
			Quantity:        l.Quantity,
			StockAtSnapshot: l.Stock,
		})
		total += l.UnitPrice * int64(l.Quantity)
	}

	if total <= 0 {
		return nil, types.NewAppError(types.ErrCodeValidationEmptyCart, "cart total must be positive", nil)
	}

	return &types.CartSnapshot{
		ID:         uuid.NewString(),
		UserID:     userID,
		Items:      items,
		Total:      total,
		Currency:   s.currency,
		CapturedAt: s.now().UTC(),
	}, nil
}
