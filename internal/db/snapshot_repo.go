package db

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"neonnova/internal/types"
)

// SnapshotRepository persists immutable cart snapshots. Items are stored as
// a jsonb column; snapshots are write-once and never updated.
type SnapshotRepository struct {
	db DBTX
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(db DBTX) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Save inserts a snapshot.
func (r *SnapshotRepository) Save(ctx context.Context, snap *types.CartSnapshot) error {
	items, err := json.Marshal(snap.Items)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode snapshot items", err)
	}

	query := `
		INSERT INTO cart_snapshots (id, user_id, items, total, currency, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := r.db.Exec(ctx, query, snap.ID, snap.UserID, items, snap.Total, snap.Currency, snap.CapturedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to save cart snapshot", err)
	}
	return nil
}

// GetByID fetches a snapshot.
func (r *SnapshotRepository) GetByID(ctx context.Context, id string) (*types.CartSnapshot, error) {
	query := `SELECT id, user_id, items, total, currency, captured_at FROM cart_snapshots WHERE id = $1`

	var snap types.CartSnapshot
	var items []byte
	err := r.db.QueryRow(ctx, query, id).Scan(&snap.ID, &snap.UserID, &items, &snap.Total, &snap.Currency, &snap.CapturedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSnapshot, "cart snapshot not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch cart snapshot", err)
	}

	if err := json.Unmarshal(items, &snap.Items); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to decode snapshot items", err)
	}
	return &snap, nil
}
