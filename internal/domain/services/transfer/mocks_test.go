package transfer

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/ledgerd/ledgerd/internal/domain/entities"
	"github.com/ledgerd/ledgerd/internal/domain/repositories"
	"github.com/ledgerd/ledgerd/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("error", "development")
	if err != nil {
		t.Fatalf("build test logger: %v", err)
	}
	return log
}

// stubTxManager runs the closure directly; the repositories under test
// are mocks and never touch the nil transaction.
type stubTxManager struct{}

func (s *stubTxManager) Transactional(ctx context.Context, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	return fn(ctx, nil)
}

type MockTransferRepo struct {
	mock.Mock
}

func (m *MockTransferRepo) WithTx(tx *sqlx.Tx) repositories.TransferRepository { return m }

func (m *MockTransferRepo) Upsert(ctx context.Context, transfer *entities.Transfer) error {
	args := m.Called(ctx, transfer)
	return args.Error(0)
}

func (m *MockTransferRepo) FindByID(ctx context.Context, transferID uuid.UUID) (*entities.Transfer, error) {
	args := m.Called(ctx, transferID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Transfer), args.Error(1)
}

func (m *MockTransferRepo) GetByID(ctx context.Context, transferID uuid.UUID) (*entities.Transfer, error) {
	args := m.Called(ctx, transferID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Transfer), args.Error(1)
}

func (m *MockTransferRepo) GetByIDForUpdate(ctx context.Context, transferID uuid.UUID) (*entities.Transfer, error) {
	args := m.Called(ctx, transferID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Transfer), args.Error(1)
}

func (m *MockTransferRepo) FindByIdempotencyKey(ctx context.Context, key string) (*entities.Transfer, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Transfer), args.Error(1)
}

func (m *MockTransferRepo) FindByReference(ctx context.Context, reference string) (*entities.Transfer, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Transfer), args.Error(1)
}

func (m *MockTransferRepo) List(ctx context.Context, status *entities.TransferStatus, limit, offset int) ([]*entities.Transfer, int64, error) {
	args := m.Called(ctx, status, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*entities.Transfer), args.Get(1).(int64), args.Error(2)
}

func (m *MockTransferRepo) ListByAccount(ctx context.Context, accountID uuid.UUID, status *entities.TransferStatus, limit, offset int) ([]*entities.Transfer, int64, error) {
	args := m.Called(ctx, accountID, status, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*entities.Transfer), args.Get(1).(int64), args.Error(2)
}

type MockAccountRepo struct {
	mock.Mock
}

func (m *MockAccountRepo) WithTx(tx *sqlx.Tx) repositories.AccountRepository { return m }

func (m *MockAccountRepo) Upsert(ctx context.Context, account *entities.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockAccountRepo) FindByID(ctx context.Context, accountID uuid.UUID) (*entities.Account, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Account), args.Error(1)
}

func (m *MockAccountRepo) GetByID(ctx context.Context, accountID uuid.UUID) (*entities.Account, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Account), args.Error(1)
}

func (m *MockAccountRepo) GetByIDForUpdate(ctx context.Context, accountID uuid.UUID) (*entities.Account, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Account), args.Error(1)
}

func (m *MockAccountRepo) FindByIDForUpdate(ctx context.Context, accountID uuid.UUID) (*entities.Account, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Account), args.Error(1)
}

func (m *MockAccountRepo) Exists(ctx context.Context, accountID uuid.UUID) (bool, error) {
	args := m.Called(ctx, accountID)
	return args.Bool(0), args.Error(1)
}

type MockLedgerRepo struct {
	mock.Mock
}

func (m *MockLedgerRepo) WithTx(tx *sqlx.Tx) repositories.LedgerRepository { return m }

func (m *MockLedgerRepo) RecordDoubleEntry(ctx context.Context, debit, credit *entities.LedgerEntry) error {
	args := m.Called(ctx, debit, credit)
	return args.Error(0)
}

func (m *MockLedgerRepo) RecordBootstrapCredit(ctx context.Context, entry *entities.LedgerEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockLedgerRepo) ListByTransfer(ctx context.Context, transferID string) ([]*entities.LedgerEntry, error) {
	args := m.Called(ctx, transferID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.LedgerEntry), args.Error(1)
}

func (m *MockLedgerRepo) BalanceBefore(ctx context.Context, accountID uuid.UUID, at time.Time) (int64, bool, error) {
	args := m.Called(ctx, accountID, at)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *MockLedgerRepo) BalanceAt(ctx context.Context, accountID uuid.UUID, at time.Time) (int64, bool, error) {
	args := m.Called(ctx, accountID, at)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *MockLedgerRepo) Movements(ctx context.Context, accountID uuid.UUID, from, to time.Time, limit, offset int) ([]*entities.LedgerEntry, error) {
	args := m.Called(ctx, accountID, from, to, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.LedgerEntry), args.Error(1)
}

func (m *MockLedgerRepo) CountMovements(ctx context.Context, accountID uuid.UUID, from, to time.Time) (int64, error) {
	args := m.Called(ctx, accountID, from, to)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedgerRepo) ScanAccountLedgerStates(ctx context.Context, afterID uuid.UUID, limit int) ([]repositories.AccountLedgerState, error) {
	args := m.Called(ctx, afterID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repositories.AccountLedgerState), args.Error(1)
}

type MockOutboxRepo struct {
	mock.Mock
}

func (m *MockOutboxRepo) WithTx(tx *sqlx.Tx) repositories.OutboxRepository { return m }

func (m *MockOutboxRepo) Append(ctx context.Context, events ...*entities.OutboxEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

func (m *MockOutboxRepo) AppendEvents(ctx context.Context, aggregateID uuid.UUID, events []entities.DomainEvent) error {
	args := m.Called(ctx, aggregateID, events)
	return args.Error(0)
}

func (m *MockOutboxRepo) AppendTagged(ctx context.Context, events []entities.TaggedEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

func (m *MockOutboxRepo) ClaimBatch(ctx context.Context, limit, maxAttempts int) ([]*entities.OutboxEvent, error) {
	args := m.Called(ctx, limit, maxAttempts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.OutboxEvent), args.Error(1)
}

func (m *MockOutboxRepo) MarkPublished(ctx context.Context, eventID uuid.UUID, publishedAt time.Time) error {
	args := m.Called(ctx, eventID, publishedAt)
	return args.Error(0)
}

func (m *MockOutboxRepo) MarkFailed(ctx context.Context, eventID uuid.UUID, lastError string) error {
	args := m.Called(ctx, eventID, lastError)
	return args.Error(0)
}

func (m *MockOutboxRepo) ListDeadLetter(ctx context.Context, maxAttempts, limit, offset int) ([]*entities.OutboxEvent, int64, error) {
	args := m.Called(ctx, maxAttempts, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*entities.OutboxEvent), args.Get(1).(int64), args.Error(2)
}

func (m *MockOutboxRepo) Requeue(ctx context.Context, eventID uuid.UUID) (bool, error) {
	args := m.Called(ctx, eventID)
	return args.Bool(0), args.Error(1)
}

func (m *MockOutboxRepo) CountPending(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}
