package account

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ledgerd/ledgerd/internal/domain/entities"
	"github.com/ledgerd/ledgerd/internal/domain/repositories"
	"github.com/ledgerd/ledgerd/pkg/logger"
)

// Service handles the account lifecycle: opening, state transitions and
// the bootstrap ledger entry that seeds an opening balance.
type Service struct {
	txm         repositories.TransactionManager
	accountRepo repositories.AccountRepository
	ledgerRepo  repositories.LedgerRepository
	outboxRepo  repositories.OutboxRepository
	logger      *logger.Logger
}

// NewService creates a new account service
func NewService(
	txm repositories.TransactionManager,
	accountRepo repositories.AccountRepository,
	ledgerRepo repositories.LedgerRepository,
	outboxRepo repositories.OutboxRepository,
	logger *logger.Logger,
) *Service {
	return &Service{
		txm:         txm,
		accountRepo: accountRepo,
		ledgerRepo:  ledgerRepo,
		outboxRepo:  outboxRepo,
		logger:      logger,
	}
}

// Create opens a new account. A positive opening balance is backed by a
// bootstrap credit entry written in the same transaction, so the ledger
// explains every minor unit the account has ever held.
func (s *Service) Create(ctx context.Context, ownerName, currency string, initialBalance int64) (*entities.Account, error) {
	account, err := entities.OpenAccount(entities.NewID(), ownerName, currency, initialBalance)
	if err != nil {
		return nil, err
	}

	err = s.txm.Transactional(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		if err := s.accountRepo.WithTx(tx).Upsert(ctx, account); err != nil {
			return err
		}

		if account.Balance > 0 {
			entry, err := entities.NewBootstrapEntry(account.ID, account.BalanceMoney(), account.CreatedAt)
			if err != nil {
				return err
			}
			if err := s.ledgerRepo.WithTx(tx).RecordBootstrapCredit(ctx, entry); err != nil {
				return err
			}
		}

		return s.outboxRepo.WithTx(tx).AppendEvents(ctx, account.ID, account.PeekEvents())
	})
	if err != nil {
		return nil, err
	}
	account.ReleaseEvents()

	s.logger.Info("Account created",
		"account_id", account.ID,
		"currency", account.Currency,
		"initial_balance", account.Balance)

	return account, nil
}

// Get retrieves an account by ID
func (s *Service) Get(ctx context.Context, accountID uuid.UUID) (*entities.Account, error) {
	return s.accountRepo.GetByID(ctx, accountID)
}

// Freeze suspends all balance movement on an account
func (s *Service) Freeze(ctx context.Context, accountID uuid.UUID) (*entities.Account, error) {
	account, err := s.transition(ctx, accountID, (*entities.Account).Freeze)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Account frozen", "account_id", account.ID)
	return account, nil
}

// Unfreeze returns a frozen account to active
func (s *Service) Unfreeze(ctx context.Context, accountID uuid.UUID) (*entities.Account, error) {
	account, err := s.transition(ctx, accountID, (*entities.Account).Unfreeze)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Account unfrozen", "account_id", account.ID)
	return account, nil
}

// Close shuts an account permanently. Only zero-balance accounts close.
func (s *Service) Close(ctx context.Context, accountID uuid.UUID) (*entities.Account, error) {
	account, err := s.transition(ctx, accountID, (*entities.Account).Close)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Account closed", "account_id", account.ID)
	return account, nil
}

// transition reloads the account under a row lock, applies the state
// change and persists it with its events. The reload happens inside the
// closure so deadlock retries always work on fresh state.
func (s *Service) transition(ctx context.Context, accountID uuid.UUID, apply func(*entities.Account) error) (*entities.Account, error) {
	var account *entities.Account

	err := s.txm.Transactional(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		account, err = s.accountRepo.WithTx(tx).GetByIDForUpdate(ctx, accountID)
		if err != nil {
			return err
		}

		if err := apply(account); err != nil {
			return err
		}

		if err := s.accountRepo.WithTx(tx).Upsert(ctx, account); err != nil {
			return err
		}

		return s.outboxRepo.WithTx(tx).AppendEvents(ctx, account.ID, account.PeekEvents())
	})
	if err != nil {
		return nil, err
	}
	account.ReleaseEvents()

	return account, nil
}
