package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"neonnova/internal/types"
)

// ProfileRepository stores buyer checkout profile data: the shipping
// address and the selected payment method. One row per user, last write
// wins.
type ProfileRepository struct {
	db DBTX
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(db DBTX) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// SaveAddress upserts the user's shipping address and returns the row id.
// An update keeps the original id.
func (r *ProfileRepository) SaveAddress(ctx context.Context, userID string, addr *types.Address) (string, error) {
	query := `
		INSERT INTO addresses (id, user_id, street, city, postal_code, country, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE
		SET street = EXCLUDED.street,
		    city = EXCLUDED.city,
		    postal_code = EXCLUDED.postal_code,
		    country = EXCLUDED.country,
		    updated_at = EXCLUDED.updated_at
		RETURNING id`

	var id string
	err := r.db.QueryRow(ctx, query,
		uuid.NewString(), userID, addr.Street, addr.City, addr.PostalCode, addr.Country, time.Now().UTC()).Scan(&id)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to save address", err)
	}
	return id, nil
}

// SavePaymentMethod upserts the user's selected payment method reference
// and returns the row id.
func (r *ProfileRepository) SavePaymentMethod(ctx context.Context, userID string, pm *types.PaymentMethod) (string, error) {
	query := `
		INSERT INTO payment_methods (id, user_id, method_type, token, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET method_type = EXCLUDED.method_type,
		    token = EXCLUDED.token,
		    updated_at = EXCLUDED.updated_at
		RETURNING id`

	var id string
	err := r.db.QueryRow(ctx, query, uuid.NewString(), userID, pm.Type, pm.Token, time.Now().UTC()).Scan(&id)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to save payment method", err)
	}
	return id, nil
}
