package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"neonnova/internal/types"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Row ---

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

// --- SessionRepository Tests ---

func TestSessionRepository_CreatePending_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSessionRepository(db)

	session := &types.CheckoutSession{
		SessionID:      "cs_test123",
		UserID:         "user-1",
		CartSnapshotID: "snap-1",
		AmountTotal:    1000,
		Currency:       "eur",
		Status:         types.SessionPending,
		CheckoutURL:    "https://pay.example/cs_test123",
		CreatedAt:      time.Now().UTC(),
	}

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.CreatePending(context.Background(), session)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestSessionRepository_CreatePending_UniqueViolation(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSessionRepository(db)

	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "checkout_sessions_one_pending_per_user"}
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, pgErr)

	err := repo.CreatePending(context.Background(), &types.CheckoutSession{SessionID: "cs_1", UserID: "user-1"})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeConflictPendingSession, appErr.Code)
}

func TestSessionRepository_GetByID_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSessionRepository(db)

	now := time.Now().UTC()
	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*string) = "cs_found"
			*dest[1].(*string) = "user-1"
			*dest[2].(*string) = "snap-1"
			*dest[3].(*int64) = 1000
			*dest[4].(*string) = "eur"
			*dest[5].(*types.SessionStatus) = types.SessionPending
			*dest[6].(*string) = "https://pay.example/cs_found"
			*dest[7].(*time.Time) = now
			return nil
		},
	}

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(row)

	session, err := repo.GetByID(context.Background(), "cs_found")
	require.NoError(t, err)
	assert.Equal(t, "cs_found", session.SessionID)
	assert.Equal(t, "user-1", session.UserID)
	assert.Equal(t, int64(1000), session.AmountTotal)
	assert.Equal(t, types.SessionPending, session.Status)
	assert.Nil(t, session.ResolvedAt)
}

func TestSessionRepository_GetByID_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSessionRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetByID(context.Background(), "cs_missing")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundSession, appErr.Code)
}

func TestSessionRepository_ApplyTransition_Won(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSessionRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	won, err := repo.ApplyTransition(context.Background(), "cs_1", types.SessionPaid, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, won)
}

func TestSessionRepository_ApplyTransition_Lost(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSessionRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	won, err := repo.ApplyTransition(context.Background(), "cs_1", types.SessionFailed, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, won)
}

func TestSessionRepository_ApplyTransition_RejectsNonTerminal(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSessionRepository(db)

	_, err := repo.ApplyTransition(context.Background(), "cs_1", types.SessionPending, time.Now().UTC())
	require.Error(t, err)
	db.AssertNotCalled(t, "Exec")
}

func TestSessionRepository_MarkEventProcessed(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSessionRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil).Once()

	inserted, err := repo.MarkEventProcessed(context.Background(), "evt_1", "cs_1", time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, inserted)

	// ON CONFLICT DO NOTHING reports zero rows on a duplicate.
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 0"), nil).Once()

	inserted, err = repo.MarkEventProcessed(context.Background(), "evt_1", "cs_1", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestSessionRepository_IsEventProcessed(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSessionRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFn: func(dest ...any) error {
			*dest[0].(*bool) = true
			return nil
		}})

	processed, err := repo.IsEventProcessed(context.Background(), "evt_1")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestSessionRepository_ExpirePending(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSessionRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 3"), nil)

	expired, err := repo.ExpirePending(context.Background(), time.Now().Add(-24*time.Hour), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(3), expired)
}

func TestSessionRepository_PruneLedger(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSessionRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("DELETE 12"), nil)

	pruned, err := repo.PruneLedger(context.Background(), time.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(12), pruned)
}

func TestSessionRepository_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSessionRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := repo.MarkCartCleared(context.Background(), "cs_1", time.Now().UTC())
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}
