package checkout

import (
	"context"
	"sync"
	"time"

	"neonnova/internal/external"
	"neonnova/internal/types"
)

// fakeSessionStore is an in-memory SessionStore with the same semantics as
// the real repository: conditional transition, insert-once ledger.
type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*types.CheckoutSession
	ledger   map[string]bool

	createErr     error
	getErr        error
	transitionErr error
	ledgerErr     error
	clearedErr    error

	// hidePendingOnce makes the next GetPendingByUser miss, simulating a
	// concurrent create landing between the lookup and the insert.
	hidePendingOnce bool

	transitionCalls int
	clearedCalls    int
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		sessions: make(map[string]*types.CheckoutSession),
		ledger:   make(map[string]bool),
	}
}

func (f *fakeSessionStore) put(s *types.CheckoutSession) {
	cp := *s
	f.sessions[s.SessionID] = &cp
}

func (f *fakeSessionStore) CreatePending(ctx context.Context, s *types.CheckoutSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.sessions {
		if existing.UserID == s.UserID && existing.Status == types.SessionPending {
			return types.NewAppError(types.ErrCodeConflictPendingSession, "an open checkout session already exists for this user", nil)
		}
	}
	f.put(s)
	return nil
}

func (f *fakeSessionStore) GetByID(ctx context.Context, sessionID string) (*types.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundSession, "checkout session not found", nil)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessionStore) GetPendingByUser(ctx context.Context, userID string) (*types.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hidePendingOnce {
		f.hidePendingOnce = false
		return nil, types.NewAppError(types.ErrCodeNotFoundSession, "no open checkout session for user", nil)
	}
	for _, s := range f.sessions {
		if s.UserID == userID && s.Status == types.SessionPending {
			cp := *s
			return &cp, nil
		}
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundSession, "no open checkout session for user", nil)
}

func (f *fakeSessionStore) ApplyTransition(ctx context.Context, sessionID string, to types.SessionStatus, resolvedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitionCalls++
	if f.transitionErr != nil {
		return false, f.transitionErr
	}
	s, ok := f.sessions[sessionID]
	if !ok || s.Status != types.SessionPending {
		return false, nil
	}
	s.Status = to
	s.ResolvedAt = &resolvedAt
	return true, nil
}

func (f *fakeSessionStore) MarkEventProcessed(ctx context.Context, eventID, sessionID string, processedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ledgerErr != nil {
		return false, f.ledgerErr
	}
	if f.ledger[eventID] {
		return false, nil
	}
	f.ledger[eventID] = true
	return true, nil
}

func (f *fakeSessionStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ledger[eventID], nil
}

func (f *fakeSessionStore) MarkCartCleared(ctx context.Context, sessionID string, clearedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearedCalls++
	if f.clearedErr != nil {
		return f.clearedErr
	}
	if s, ok := f.sessions[sessionID]; ok {
		s.CartClearedAt = &clearedAt
	}
	return nil
}

// fakeCoordinator records OnPaid invocations.
type fakeCoordinator struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeCoordinator) OnPaid(ctx context.Context, session *types.CheckoutSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, session.SessionID)
	return f.err
}

func (f *fakeCoordinator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeVerifier accepts or rejects every payload.
type fakeVerifier struct {
	err error
}

func (f *fakeVerifier) Verify(payload []byte, sigHeader string, secret string) error {
	return f.err
}

// fakeProvider returns a canned hosted session.
type fakeProvider struct {
	session *external.HostedSession
	err     error
	calls   int
}

func (f *fakeProvider) CreateCheckoutSession(ctx context.Context, req external.SessionRequest) (*external.HostedSession, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

// fakeSnapshotStore keeps snapshots in memory.
type fakeSnapshotStore struct {
	snaps   map[string]*types.CartSnapshot
	saveErr error
	getErr  error
}

func newFakeSnapshotStore() *fakeSnapshotStore {
	return &fakeSnapshotStore{snaps: make(map[string]*types.CartSnapshot)}
}

func (f *fakeSnapshotStore) Save(ctx context.Context, snap *types.CartSnapshot) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.snaps[snap.ID] = snap
	return nil
}

func (f *fakeSnapshotStore) GetByID(ctx context.Context, id string) (*types.CartSnapshot, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	snap, ok := f.snaps[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundSnapshot, "cart snapshot not found", nil)
	}
	return snap, nil
}

// fakeProfileStore records saved profile data.
type fakeProfileStore struct {
	addresses map[string]*types.Address
	methods   map[string]*types.PaymentMethod
	err       error
}

func newFakeProfileStore() *fakeProfileStore {
	return &fakeProfileStore{
		addresses: make(map[string]*types.Address),
		methods:   make(map[string]*types.PaymentMethod),
	}
}

func (f *fakeProfileStore) SaveAddress(ctx context.Context, userID string, addr *types.Address) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.addresses[userID] = addr
	return "addr-" + userID, nil
}

func (f *fakeProfileStore) SavePaymentMethod(ctx context.Context, userID string, pm *types.PaymentMethod) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.methods[userID] = pm
	return "pm-" + userID, nil
}

// fakeOrderStore records created orders, enforcing session-id uniqueness.
type fakeOrderStore struct {
	orders map[string]*types.Order
	err    error
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: make(map[string]*types.Order)}
}

func (f *fakeOrderStore) CreateFromSession(ctx context.Context, session *types.CheckoutSession, snap *types.CartSnapshot, createdAt time.Time) (*types.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	if existing, ok := f.orders[session.SessionID]; ok {
		return existing, nil
	}
	order := &types.Order{
		ID:        "order-" + session.SessionID,
		SessionID: session.SessionID,
		UserID:    session.UserID,
		Total:     session.AmountTotal,
		Currency:  session.Currency,
		Items:     snap.Items,
		CreatedAt: createdAt,
	}
	f.orders[session.SessionID] = order
	return order, nil
}

// fakeCartClearer records clears.
type fakeCartClearer struct {
	cleared []string
	err     error
}

func (f *fakeCartClearer) Clear(ctx context.Context, userID string) error {
	if f.err != nil {
		return f.err
	}
	f.cleared = append(f.cleared, userID)
	return nil
}
