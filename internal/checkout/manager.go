package checkout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"neonnova/internal/external"
	"neonnova/internal/types"
)

// SessionStore is the checkout-session persistence surface used by the
// manager and reconciler. Implemented by db.SessionRepository.
type SessionStore interface {
	CreatePending(ctx context.Context, s *types.CheckoutSession) error
	GetByID(ctx context.Context, sessionID string) (*types.CheckoutSession, error)
	GetPendingByUser(ctx context.Context, userID string) (*types.CheckoutSession, error)
	ApplyTransition(ctx context.Context, sessionID string, to types.SessionStatus, resolvedAt time.Time) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, sessionID string, processedAt time.Time) (bool, error)
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkCartCleared(ctx context.Context, sessionID string, clearedAt time.Time) error
}

// ProfileStore persists buyer checkout profile data. Implemented by
// db.ProfileRepository. The returned ids are opaque to the caller.
type ProfileStore interface {
	SaveAddress(ctx context.Context, userID string, addr *types.Address) (string, error)
	SavePaymentMethod(ctx context.Context, userID string, pm *types.PaymentMethod) (string, error)
}

// Manager drives the buyer-facing checkout steps: profile capture, session
// creation against the provider, and owner-scoped session lookup.
type Manager struct {
	snapshotter *CartSnapshotter
	snapshots   SnapshotStore
	sessions    SessionStore
	profiles    ProfileStore
	provider    external.PaymentProvider
	metrics     Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// NewManager wires the checkout manager.
func NewManager(
	snapshotter *CartSnapshotter,
	snapshots SnapshotStore,
	sessions SessionStore,
	profiles ProfileStore,
	provider external.PaymentProvider,
	metrics Metrics,
	logger *slog.Logger,
) *Manager {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		snapshotter: snapshotter,
		snapshots:   snapshots,
		sessions:    sessions,
		profiles:    profiles,
		provider:    provider,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// SavePersonalInfo validates and stores the buyer's shipping address,
// returning the address id.
func (m *Manager) SavePersonalInfo(ctx context.Context, userID string, addr *types.Address) (string, error) {
	if err := validateAddress(addr); err != nil {
		return "", err
	}
	return m.profiles.SaveAddress(ctx, userID, addr)
}

// SetPaymentMethod validates and stores the buyer's payment method
// reference, returning the payment method id.
func (m *Manager) SetPaymentMethod(ctx context.Context, userID string, pm *types.PaymentMethod) (string, error) {
	if err := validatePaymentMethod(pm); err != nil {
		return "", err
	}
	return m.profiles.SavePaymentMethod(ctx, userID, pm)
}

// CreateSession snapshots the cart and opens a hosted payment page for it.
// The operation is idempotent per buyer and cart: while a pending session
// exists for the same cart contents, repeated calls return that session's
// URL instead of minting another. If the cart changed since the pending
// session was opened, the stale session is canceled and a fresh one is
// minted, so the buyer can never pay a stale total. A concurrent-create
// race is resolved by the partial unique index on pending sessions; the
// loser re-reads the winner's row.
func (m *Manager) CreateSession(ctx context.Context, userID string) (*types.CheckoutSession, error) {
	snap, err := m.snapshotter.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	if existing, err := m.sessions.GetPendingByUser(ctx, userID); err == nil {
		prior, err := m.snapshots.GetByID(ctx, existing.CartSnapshotID)
		if err != nil {
			return nil, err
		}
		if sameCart(prior, snap) {
			m.logger.InfoContext(ctx, "reusing open checkout session",
				"session_id", existing.SessionID,
				"user_id", userID,
			)
			return existing, nil
		}

		// The cart changed since this session was opened. Cancel it so
		// the provider URL for the old total can no longer resolve a
		// local session, then mint a fresh one. Losing the transition
		// means a webhook resolved the session concurrently; either way
		// it is terminal now.
		if _, err := m.sessions.ApplyTransition(ctx, existing.SessionID, types.SessionCanceled, m.now().UTC()); err != nil {
			return nil, err
		}
		m.logger.InfoContext(ctx, "canceled stale checkout session after cart change",
			"session_id", existing.SessionID,
			"user_id", userID,
		)
	} else if !isNotFound(err) {
		return nil, err
	}

	if err := m.snapshots.Save(ctx, snap); err != nil {
		return nil, err
	}

	hosted, err := m.provider.CreateCheckoutSession(ctx, external.SessionRequest{
		UserID:      userID,
		SnapshotID:  snap.ID,
		AmountTotal: snap.Total,
		Currency:    snap.Currency,
	})
	if err != nil {
		return nil, err
	}

	session := &types.CheckoutSession{
		SessionID:      hosted.ID,
		UserID:         userID,
		CartSnapshotID: snap.ID,
		AmountTotal:    snap.Total,
		Currency:       snap.Currency,
		Status:         types.SessionPending,
		CheckoutURL:    hosted.RedirectURL,
		CreatedAt:      m.now().UTC(),
	}

	if err := m.sessions.CreatePending(ctx, session); err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeConflictPendingSession {
			// Lost the race; a concurrent request created the session.
			return m.sessions.GetPendingByUser(ctx, userID)
		}
		return nil, err
	}

	m.metrics.RecordSessionCreated(ctx)
	m.logger.InfoContext(ctx, "checkout session created",
		"session_id", session.SessionID,
		"user_id", userID,
		"amount_total", session.AmountTotal,
		"currency", session.Currency,
	)
	return session, nil
}

// GetSessionDetails returns the owner-scoped summary of a session. A
// session belonging to another user is reported as not found rather than
// forbidden, to avoid leaking session-id existence.
func (m *Manager) GetSessionDetails(ctx context.Context, userID, sessionID string) (*types.SessionSummary, error) {
	session, err := m.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, types.NewAppError(types.ErrCodeNotFoundSession, "checkout session not found", nil)
	}

	return &types.SessionSummary{
		SessionID:   session.SessionID,
		Status:      session.Status,
		AmountTotal: session.AmountTotal,
		Currency:    session.Currency,
		CreatedAt:   session.CreatedAt,
		ResolvedAt:  session.ResolvedAt,
	}, nil
}

func validateAddress(addr *types.Address) error {
	if addr == nil {
		return types.NewAppError(types.ErrCodeValidationInvalidAddress, "address is required", nil)
	}
	missing := map[string]any{}
	if addr.Street == "" {
		missing["street"] = "this field is required"
	}
	if addr.City == "" {
		missing["city"] = "this field is required"
	}
	if addr.PostalCode == "" {
		missing["postal_code"] = "this field is required"
	}
	if len(missing) > 0 {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidAddress, "address is incomplete", nil, missing)
	}
	return nil
}

func validatePaymentMethod(pm *types.PaymentMethod) error {
	if pm == nil || pm.Type == "" || pm.Token == "" {
		return types.NewAppError(types.ErrCodeValidationInvalidMethod, "payment method type and token are required", nil)
	}
	switch pm.Type {
	case "card", "paypal", "bank_transfer":
		return nil
	default:
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidMethod, "unsupported payment method type", nil,
			map[string]any{"type": pm.Type})
	}
}

// sameCart reports whether two snapshots capture the same purchasable cart:
// identical lines at identical prices. Stock captured at snapshot time is
// ignored; a stock change alone does not invalidate an open session.
func sameCart(a, b *types.CartSnapshot) bool {
	if a.Total != b.Total || a.Currency != b.Currency || len(a.Items) != len(b.Items) {
		return false
	}
	for i := range a.Items {
		if a.Items[i].ProductID != b.Items[i].ProductID ||
			a.Items[i].Quantity != b.Items[i].Quantity ||
			a.Items[i].UnitPrice != b.Items[i].UnitPrice {
			return false
		}
	}
	return true
}

func isNotFound(err error) bool {
	var appErr *types.AppError
	return errors.As(err, &appErr) && appErr.HTTPStatus() == 404
}
