package db

import (
	"context"

	"neonnova/internal/types"
)

// CartRepository reads the live cart joined with the product catalog and
// clears carts after confirmed payment. The cart is owned by the storefront;
// this service only reads lines and issues the post-payment clear.
type CartRepository struct {
	db DBTX
}

// NewCartRepository creates a new CartRepository.
func NewCartRepository(db DBTX) *CartRepository {
	return &CartRepository{db: db}
}

// Lines returns the user's cart entries joined with current catalog price
// and stock. An empty cart yields an empty slice, not an error.
func (r *CartRepository) Lines(ctx context.Context, userID string) ([]types.CartLine, error) {
	query := `
		SELECT ci.product_id, p.name, p.unit_price, ci.quantity, p.stock
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.user_id = $1
		ORDER BY ci.product_id`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read cart", err)
	}
	defer rows.Close()

	var lines []types.CartLine
	for rows.Next() {
		var l types.CartLine
		if err := rows.Scan(&l.ProductID, &l.Name, &l.UnitPrice, &l.Quantity, &l.Stock); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan cart line", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate cart lines", err)
	}
	return lines, nil
}

// Clear removes all of the user's cart entries. Clearing an already-empty
// cart succeeds; the operation is idempotent.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to clear cart", err)
	}
	return nil
}
