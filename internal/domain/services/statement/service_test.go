package statement

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ledgerd/ledgerd/internal/domain/entities"
	domainerrors "github.com/ledgerd/ledgerd/internal/domain/errors"
	"github.com/ledgerd/ledgerd/internal/domain/repositories"
)

type mockAccountRepo struct {
	mock.Mock
}

func (m *mockAccountRepo) WithTx(tx *sqlx.Tx) repositories.AccountRepository { return m }

func (m *mockAccountRepo) Upsert(ctx context.Context, account *entities.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *mockAccountRepo) FindByID(ctx context.Context, accountID uuid.UUID) (*entities.Account, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Account), args.Error(1)
}

func (m *mockAccountRepo) GetByID(ctx context.Context, accountID uuid.UUID) (*entities.Account, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Account), args.Error(1)
}

func (m *mockAccountRepo) GetByIDForUpdate(ctx context.Context, accountID uuid.UUID) (*entities.Account, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Account), args.Error(1)
}

func (m *mockAccountRepo) FindByIDForUpdate(ctx context.Context, accountID uuid.UUID) (*entities.Account, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Account), args.Error(1)
}

func (m *mockAccountRepo) Exists(ctx context.Context, accountID uuid.UUID) (bool, error) {
	args := m.Called(ctx, accountID)
	return args.Bool(0), args.Error(1)
}

type mockLedgerRepo struct {
	mock.Mock
}

func (m *mockLedgerRepo) WithTx(tx *sqlx.Tx) repositories.LedgerRepository { return m }

func (m *mockLedgerRepo) RecordDoubleEntry(ctx context.Context, debit, credit *entities.LedgerEntry) error {
	args := m.Called(ctx, debit, credit)
	return args.Error(0)
}

func (m *mockLedgerRepo) RecordBootstrapCredit(ctx context.Context, entry *entities.LedgerEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockLedgerRepo) ListByTransfer(ctx context.Context, transferID string) ([]*entities.LedgerEntry, error) {
	args := m.Called(ctx, transferID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.LedgerEntry), args.Error(1)
}

func (m *mockLedgerRepo) BalanceBefore(ctx context.Context, accountID uuid.UUID, at time.Time) (int64, bool, error) {
	args := m.Called(ctx, accountID, at)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *mockLedgerRepo) BalanceAt(ctx context.Context, accountID uuid.UUID, at time.Time) (int64, bool, error) {
	args := m.Called(ctx, accountID, at)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *mockLedgerRepo) Movements(ctx context.Context, accountID uuid.UUID, from, to time.Time, limit, offset int) ([]*entities.LedgerEntry, error) {
	args := m.Called(ctx, accountID, from, to, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.LedgerEntry), args.Error(1)
}

func (m *mockLedgerRepo) CountMovements(ctx context.Context, accountID uuid.UUID, from, to time.Time) (int64, error) {
	args := m.Called(ctx, accountID, from, to)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockLedgerRepo) ScanAccountLedgerStates(ctx context.Context, afterID uuid.UUID, limit int) ([]repositories.AccountLedgerState, error) {
	args := m.Called(ctx, afterID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repositories.AccountLedgerState), args.Error(1)
}

func TestGetStatement(t *testing.T) {
	accountRepo := new(mockAccountRepo)
	ledgerRepo := new(mockLedgerRepo)
	service := NewService(accountRepo, ledgerRepo)

	accountID := entities.NewID()
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	entry, err := entities.NewLedgerEntry(accountID, entities.NewID(), "tx-1",
		entities.EntryTypeCredit, entities.TransferTypeTransfer,
		entities.Money{Amount: 500, Currency: "USD"}, 1500, from.Add(time.Hour))
	require.NoError(t, err)

	accountRepo.On("Exists", mock.Anything, accountID).Return(true, nil)
	ledgerRepo.On("BalanceBefore", mock.Anything, accountID, from).Return(int64(1000), true, nil)
	ledgerRepo.On("CountMovements", mock.Anything, accountID, from, to).Return(int64(1), nil)
	ledgerRepo.On("Movements", mock.Anything, accountID, from, to, 50, 0).Return([]*entities.LedgerEntry{entry}, nil)
	ledgerRepo.On("BalanceAt", mock.Anything, accountID, to).Return(int64(1500), true, nil)

	statement, err := service.GetStatement(context.Background(), Query{AccountID: accountID, From: from, To: to})
	require.NoError(t, err)

	assert.Equal(t, int64(1000), statement.OpeningBalance)
	assert.Equal(t, int64(1500), statement.ClosingBalance)
	assert.Equal(t, int64(1), statement.TotalCount)
	assert.Len(t, statement.Movements, 1)
	assert.Equal(t, 1, statement.Page)
	assert.Equal(t, 50, statement.PerPage)
}

func TestGetStatement_EmptyWindow(t *testing.T) {
	accountRepo := new(mockAccountRepo)
	ledgerRepo := new(mockLedgerRepo)
	service := NewService(accountRepo, ledgerRepo)

	accountID := entities.NewID()
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	accountRepo.On("Exists", mock.Anything, accountID).Return(true, nil)
	ledgerRepo.On("BalanceBefore", mock.Anything, accountID, from).Return(int64(250), true, nil)
	ledgerRepo.On("CountMovements", mock.Anything, accountID, from, to).Return(int64(0), nil)

	statement, err := service.GetStatement(context.Background(), Query{AccountID: accountID, From: from, To: to})
	require.NoError(t, err)

	// No movements means the closing balance equals the opening one.
	assert.Equal(t, int64(250), statement.OpeningBalance)
	assert.Equal(t, int64(250), statement.ClosingBalance)
	assert.Empty(t, statement.Movements)
	ledgerRepo.AssertNotCalled(t, "Movements", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	ledgerRepo.AssertNotCalled(t, "BalanceAt", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetStatement_InvertedRange(t *testing.T) {
	service := NewService(new(mockAccountRepo), new(mockLedgerRepo))

	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := service.GetStatement(context.Background(), Query{AccountID: entities.NewID(), From: from, To: to})
	require.Error(t, err)
	assert.Equal(t, domainerrors.CodeInvalidDateRange, domainerrors.Code(err))
}

func TestGetStatement_RangeTooWide(t *testing.T) {
	service := NewService(new(mockAccountRepo), new(mockLedgerRepo))

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 367)

	_, err := service.GetStatement(context.Background(), Query{AccountID: entities.NewID(), From: from, To: to})
	require.Error(t, err)
	assert.Equal(t, domainerrors.CodeInvalidDateRange, domainerrors.Code(err))
}

func TestGetStatement_BadPagination(t *testing.T) {
	service := NewService(new(mockAccountRepo), new(mockLedgerRepo))

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	for _, q := range []Query{
		{AccountID: entities.NewID(), From: from, To: to, Page: -1},
		{AccountID: entities.NewID(), From: from, To: to, PerPage: -5},
		{AccountID: entities.NewID(), From: from, To: to, PerPage: 101},
	} {
		_, err := service.GetStatement(context.Background(), q)
		require.Error(t, err)
		assert.True(t, domainerrors.IsInvalidInput(err))
	}
}

func TestGetStatement_AccountMissing(t *testing.T) {
	accountRepo := new(mockAccountRepo)
	service := NewService(accountRepo, new(mockLedgerRepo))

	accountID := entities.NewID()
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	accountRepo.On("Exists", mock.Anything, accountID).Return(false, nil)

	_, err := service.GetStatement(context.Background(), Query{AccountID: accountID, From: from, To: to})
	require.Error(t, err)
	assert.Equal(t, domainerrors.CodeAccountNotFound, domainerrors.Code(err))
}
