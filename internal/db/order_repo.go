package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"neonnova/internal/types"
)

// OrderRepository persists finalized orders. orders.session_id is unique,
// so finalizing the same session twice inserts at most one row.
type OrderRepository struct {
	db DBTX
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

// CreateFromSession inserts the order for a paid session, copying amounts
// and items from the session's snapshot. A duplicate session id is treated
// as success so retries after a partial failure converge.
func (r *OrderRepository) CreateFromSession(ctx context.Context, session *types.CheckoutSession, snap *types.CartSnapshot, createdAt time.Time) (*types.Order, error) {
	items, err := json.Marshal(snap.Items)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode order items", err)
	}

	order := &types.Order{
		ID:        uuid.NewString(),
		SessionID: session.SessionID,
		UserID:    session.UserID,
		Total:     session.AmountTotal,
		Currency:  session.Currency,
		Items:     snap.Items,
		CreatedAt: createdAt,
	}

	query := `
		INSERT INTO orders (id, session_id, user_id, total, currency, items, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO NOTHING`

	if _, err := r.db.Exec(ctx, query,
		order.ID, order.SessionID, order.UserID, order.Total, order.Currency, items, order.CreatedAt); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create order", err)
	}
	return order, nil
}
