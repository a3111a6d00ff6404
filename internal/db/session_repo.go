package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"neonnova/internal/types"
)

// SessionRepository persists checkout sessions and the webhook dedup ledger.
type SessionRepository struct {
	db DBTX
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `session_id, user_id, cart_snapshot_id, amount_total, currency, status, checkout_url, created_at, resolved_at, cart_cleared_at`

func scanSession(row pgx.Row) (*types.CheckoutSession, error) {
	var s types.CheckoutSession
	err := row.Scan(
		&s.SessionID,
		&s.UserID,
		&s.CartSnapshotID,
		&s.AmountTotal,
		&s.Currency,
		&s.Status,
		&s.CheckoutURL,
		&s.CreatedAt,
		&s.ResolvedAt,
		&s.CartClearedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreatePending inserts a new pending session. A partial unique index on
// (user_id) WHERE status = 'pending' enforces at most one open session per
// buyer; violating it returns a conflict error so the caller can fall back
// to the existing session.
func (r *SessionRepository) CreatePending(ctx context.Context, s *types.CheckoutSession) error {
	query := `
		INSERT INTO checkout_sessions (session_id, user_id, cart_snapshot_id, amount_total, currency, status, checkout_url, created_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7)`

	_, err := r.db.Exec(ctx, query,
		s.SessionID, s.UserID, s.CartSnapshotID, s.AmountTotal, s.Currency, s.CheckoutURL, s.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictPendingSession, "an open checkout session already exists for this user", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create checkout session", err)
	}
	return nil
}

// GetByID fetches a session by its provider-assigned id.
func (r *SessionRepository) GetByID(ctx context.Context, sessionID string) (*types.CheckoutSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM checkout_sessions WHERE session_id = $1`

	s, err := scanSession(r.db.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSession, "checkout session not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch checkout session", err)
	}
	return s, nil
}

// GetPendingByUser returns the user's open session, or a not-found error.
func (r *SessionRepository) GetPendingByUser(ctx context.Context, userID string) (*types.CheckoutSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM checkout_sessions WHERE user_id = $1 AND status = 'pending'`

	s, err := scanSession(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSession, "no open checkout session for user", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch open checkout session", err)
	}
	return s, nil
}

// ApplyTransition moves a session from pending into the given terminal
// status using a conditional update. It returns true when this call won the
// transition; false means the session was already resolved by a concurrent
// writer and the caller must not run side effects.
func (r *SessionRepository) ApplyTransition(ctx context.Context, sessionID string, to types.SessionStatus, resolvedAt time.Time) (bool, error) {
	if !to.IsTerminal() {
		return false, types.NewAppError(types.ErrCodeInternalUnexpected, "transition target must be a terminal status", nil)
	}

	query := `
		UPDATE checkout_sessions
		SET status = $2, resolved_at = $3
		WHERE session_id = $1 AND status = 'pending'`

	tag, err := r.db.Exec(ctx, query, sessionID, to, resolvedAt)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to transition checkout session", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkEventProcessed records a webhook event id in the dedup ledger.
// Returns false without error when the id was already recorded.
func (r *SessionRepository) MarkEventProcessed(ctx context.Context, eventID, sessionID string, processedAt time.Time) (bool, error) {
	query := `
		INSERT INTO webhook_events (event_id, session_id, processed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO NOTHING`

	tag, err := r.db.Exec(ctx, query, eventID, sessionID, processedAt)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to record webhook event", err)
	}
	return tag.RowsAffected() == 1, nil
}

// IsEventProcessed reports whether a webhook event id is already in the
// dedup ledger.
func (r *SessionRepository) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM webhook_events WHERE event_id = $1)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, eventID).Scan(&exists); err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check webhook event ledger", err)
	}
	return exists, nil
}

// MarkCartCleared stamps the time the buyer's cart was cleared after a
// paid session, completing the post-payment obligations for the session.
func (r *SessionRepository) MarkCartCleared(ctx context.Context, sessionID string, clearedAt time.Time) error {
	query := `
		UPDATE checkout_sessions
		SET cart_cleared_at = $2
		WHERE session_id = $1 AND cart_cleared_at IS NULL`

	if _, err := r.db.Exec(ctx, query, sessionID, clearedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark cart cleared", err)
	}
	return nil
}

// ListPaidUncleared returns paid sessions whose cart clear has not been
// stamped yet, oldest first, so the sweeper can retry the clear.
func (r *SessionRepository) ListPaidUncleared(ctx context.Context, limit int32) ([]*types.CheckoutSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM checkout_sessions
		WHERE status = 'paid' AND cart_cleared_at IS NULL
		ORDER BY resolved_at ASC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list uncleared paid sessions", err)
	}
	defer rows.Close()

	var sessions []*types.CheckoutSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan checkout session", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate checkout sessions", err)
	}
	return sessions, nil
}

// ExpirePending marks pending sessions older than the cutoff as expired.
// Returns the number of sessions expired.
func (r *SessionRepository) ExpirePending(ctx context.Context, cutoff, resolvedAt time.Time) (int64, error) {
	query := `
		UPDATE checkout_sessions
		SET status = 'expired', resolved_at = $2
		WHERE status = 'pending' AND created_at < $1`

	tag, err := r.db.Exec(ctx, query, cutoff, resolvedAt)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to expire pending sessions", err)
	}
	return tag.RowsAffected(), nil
}

// PruneLedger deletes webhook ledger entries older than the cutoff. Entries
// must outlive the provider's retry window or a late retry would replay.
func (r *SessionRepository) PruneLedger(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM webhook_events WHERE processed_at < $1`

	tag, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to prune webhook ledger", err)
	}
	return tag.RowsAffected(), nil
}
