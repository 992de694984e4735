package account

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ledgerd/ledgerd/internal/domain/entities"
	domainerrors "github.com/ledgerd/ledgerd/internal/domain/errors"
)

func newTestService(accountRepo *MockAccountRepo, ledgerRepo *MockLedgerRepo, outboxRepo *MockOutboxRepo, t *testing.T) *Service {
	return NewService(&stubTxManager{}, accountRepo, ledgerRepo, outboxRepo, testLogger(t))
}

func TestService_Create(t *testing.T) {
	accountRepo := new(MockAccountRepo)
	ledgerRepo := new(MockLedgerRepo)
	outboxRepo := new(MockOutboxRepo)
	service := newTestService(accountRepo, ledgerRepo, outboxRepo, t)

	accountRepo.On("Upsert", mock.Anything, mock.AnythingOfType("*entities.Account")).Return(nil)
	ledgerRepo.On("RecordBootstrapCredit", mock.Anything, mock.AnythingOfType("*entities.LedgerEntry")).Return(nil)
	outboxRepo.On("AppendEvents", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	account, err := service.Create(context.Background(), "Ada Lovelace", "USD", 1000)
	require.NoError(t, err)

	assert.Equal(t, int64(1000), account.Balance)
	assert.Equal(t, entities.AccountStatusActive, account.Status)
	// Events were handed to the outbox inside the transaction and the
	// buffer cleared after commit.
	assert.Empty(t, account.PeekEvents())

	ledgerRepo.AssertNumberOfCalls(t, "RecordBootstrapCredit", 1)
	accountRepo.AssertExpectations(t)
	outboxRepo.AssertExpectations(t)
}

func TestService_Create_ZeroBalanceSkipsBootstrap(t *testing.T) {
	accountRepo := new(MockAccountRepo)
	ledgerRepo := new(MockLedgerRepo)
	outboxRepo := new(MockOutboxRepo)
	service := newTestService(accountRepo, ledgerRepo, outboxRepo, t)

	accountRepo.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	outboxRepo.On("AppendEvents", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	_, err := service.Create(context.Background(), "Ada Lovelace", "USD", 0)
	require.NoError(t, err)

	ledgerRepo.AssertNotCalled(t, "RecordBootstrapCredit", mock.Anything, mock.Anything)
}

func TestService_Create_InvalidInput(t *testing.T) {
	service := newTestService(new(MockAccountRepo), new(MockLedgerRepo), new(MockOutboxRepo), t)

	_, err := service.Create(context.Background(), "", "USD", 0)
	require.Error(t, err)
	assert.True(t, domainerrors.IsInvalidInput(err))

	_, err = service.Create(context.Background(), "Ada", "USD", -5)
	require.Error(t, err)
	assert.True(t, domainerrors.IsInvalidInput(err))
}

func TestService_Freeze(t *testing.T) {
	accountRepo := new(MockAccountRepo)
	outboxRepo := new(MockOutboxRepo)
	service := newTestService(accountRepo, new(MockLedgerRepo), outboxRepo, t)

	existing, err := entities.OpenAccount(entities.NewID(), "Ada", "USD", 100)
	require.NoError(t, err)
	existing.ReleaseEvents()

	accountRepo.On("GetByIDForUpdate", mock.Anything, existing.ID).Return(existing, nil)
	accountRepo.On("Upsert", mock.Anything, existing).Return(nil)
	outboxRepo.On("AppendEvents", mock.Anything, existing.ID, mock.Anything).Return(nil)

	frozen, err := service.Freeze(context.Background(), existing.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.AccountStatusFrozen, frozen.Status)
}

func TestService_Close_NonZeroBalance(t *testing.T) {
	accountRepo := new(MockAccountRepo)
	service := newTestService(accountRepo, new(MockLedgerRepo), new(MockOutboxRepo), t)

	existing, err := entities.OpenAccount(entities.NewID(), "Ada", "USD", 25)
	require.NoError(t, err)
	existing.ReleaseEvents()

	accountRepo.On("GetByIDForUpdate", mock.Anything, existing.ID).Return(existing, nil)

	_, err = service.Close(context.Background(), existing.ID)
	require.Error(t, err)
	assert.Equal(t, domainerrors.CodeNonZeroBalanceOnClose, domainerrors.Code(err))
	accountRepo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestService_Get_NotFound(t *testing.T) {
	accountRepo := new(MockAccountRepo)
	service := newTestService(accountRepo, new(MockLedgerRepo), new(MockOutboxRepo), t)

	missing := entities.NewID()
	accountRepo.On("GetByID", mock.Anything, missing).
		Return(nil, domainerrors.NotFoundError(domainerrors.CodeAccountNotFound, "account not found"))

	_, err := service.Get(context.Background(), missing)
	require.Error(t, err)
	assert.True(t, domainerrors.IsNotFound(err))
}
