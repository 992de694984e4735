package transfer

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ledgerd/ledgerd/internal/domain/entities"
	domainerrors "github.com/ledgerd/ledgerd/internal/domain/errors"
	"github.com/ledgerd/ledgerd/internal/domain/repositories"
	"github.com/ledgerd/ledgerd/internal/domain/services/account"
	"github.com/ledgerd/ledgerd/pkg/logger"
	"github.com/ledgerd/ledgerd/pkg/metrics"
)

// InitiateCommand is the input for starting a transfer
type InitiateCommand struct {
	SourceAccountID      uuid.UUID
	DestinationAccountID uuid.UUID
	Amount               int64
	Currency             string
	Description          *string
	IdempotencyKey       *string
}

// Service drives the transfer pipeline: initiation, reversal and reads.
type Service struct {
	txm          repositories.TransactionManager
	transferRepo repositories.TransferRepository
	accountRepo  repositories.AccountRepository
	ledgerRepo   repositories.LedgerRepository
	outboxRepo   repositories.OutboxRepository
	coordinator  *account.Coordinator
	logger       *logger.Logger
}

// NewService creates a new transfer service
func NewService(
	txm repositories.TransactionManager,
	transferRepo repositories.TransferRepository,
	accountRepo repositories.AccountRepository,
	ledgerRepo repositories.LedgerRepository,
	outboxRepo repositories.OutboxRepository,
	coordinator *account.Coordinator,
	logger *logger.Logger,
) *Service {
	return &Service{
		txm:          txm,
		transferRepo: transferRepo,
		accountRepo:  accountRepo,
		ledgerRepo:   ledgerRepo,
		outboxRepo:   outboxRepo,
		coordinator:  coordinator,
		logger:       logger,
	}
}

// Initiate moves money between two accounts. On success the transfer is
// persisted already completed together with both ledger entries and all
// domain events; the ephemeral processing state never reaches the
// database. A domain rule violation still produces a FAILED transfer
// row, written in its own transaction after the money movement has been
// rolled back.
func (s *Service) Initiate(ctx context.Context, cmd InitiateCommand) (*entities.Transfer, error) {
	transferID := entities.NewID()
	build := func() (*entities.Transfer, error) {
		return entities.InitiateTransfer(
			transferID,
			cmd.SourceAccountID,
			cmd.DestinationAccountID,
			cmd.Amount,
			cmd.Currency,
			cmd.Description,
			cmd.IdempotencyKey,
		)
	}

	// Surface validation failures before any transaction is opened.
	transfer, err := build()
	if err != nil {
		return nil, err
	}

	var existing *entities.Transfer
	err = s.txm.Transactional(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		existing = nil

		// Deadlock retries re-run the closure, so work on a fresh
		// aggregate every attempt.
		t, err := build()
		if err != nil {
			return err
		}

		// A committed transfer for this key means a previous attempt
		// finished after its caller stopped listening. Return it
		// instead of moving money twice.
		if t.IdempotencyKey != nil {
			prior, err := s.transferRepo.WithTx(tx).FindByIdempotencyKey(ctx, *t.IdempotencyKey)
			if err != nil {
				return err
			}
			if prior != nil {
				existing = prior
				return nil
			}
		}

		if err := t.MarkProcessing(); err != nil {
			return err
		}

		result, err := s.coordinator.TransferFunds(ctx, tx, t.SourceAccountID, t.DestinationAccountID, t.AmountMoney(), t.ID.String(), t.TransferType)
		if err != nil {
			return err
		}

		if err := t.Complete(); err != nil {
			return err
		}
		if err := s.transferRepo.WithTx(tx).Upsert(ctx, t); err != nil {
			return err
		}

		if err := s.recordEntries(ctx, tx, t, result); err != nil {
			return err
		}

		outbox := s.outboxRepo.WithTx(tx)
		if err := outbox.AppendEvents(ctx, t.ID, t.PeekEvents()); err != nil {
			return err
		}
		if err := outbox.AppendTagged(ctx, result.Events); err != nil {
			return err
		}

		transfer = t
		return nil
	})

	if err != nil {
		if account.IsRuleViolation(err) {
			s.persistFailed(ctx, build, err)
		}
		return nil, err
	}

	if existing != nil {
		s.logger.Info("Transfer already exists for idempotency key",
			"transfer_id", existing.ID,
			"reference", existing.Reference)
		return existing, nil
	}

	transfer.ReleaseEvents()
	metrics.TransfersTotal.WithLabelValues(string(transfer.TransferType), string(transfer.Status)).Inc()

	s.logger.Info("Transfer completed",
		"transfer_id", transfer.ID,
		"reference", transfer.Reference,
		"source_account_id", transfer.SourceAccountID,
		"destination_account_id", transfer.DestinationAccountID,
		"amount", transfer.Amount,
		"currency", transfer.Currency)

	return transfer, nil
}

// Reverse undoes a completed transfer by moving the money back. The
// original row transitions to reversed; the compensating ledger entries
// carry the reversal transfer type under the same transfer id.
func (s *Service) Reverse(ctx context.Context, transferID uuid.UUID) (*entities.Transfer, error) {
	var transfer *entities.Transfer

	err := s.txm.Transactional(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		t, err := s.transferRepo.WithTx(tx).GetByIDForUpdate(ctx, transferID)
		if err != nil {
			return err
		}

		if err := t.Reverse(); err != nil {
			return err
		}

		// Money flows back: the original destination is debited and the
		// original source credited.
		result, err := s.coordinator.TransferFunds(ctx, tx, t.DestinationAccountID, t.SourceAccountID, t.AmountMoney(), t.ID.String(), entities.TransferTypeReversal)
		if err != nil {
			return err
		}

		if err := s.transferRepo.WithTx(tx).Upsert(ctx, t); err != nil {
			return err
		}

		debit, err := entities.NewLedgerEntry(t.DestinationAccountID, t.SourceAccountID, t.ID.String(), entities.EntryTypeDebit, entities.TransferTypeReversal, t.AmountMoney(), result.SourceBalanceAfter, *t.ReversedAt)
		if err != nil {
			return err
		}
		credit, err := entities.NewLedgerEntry(t.SourceAccountID, t.DestinationAccountID, t.ID.String(), entities.EntryTypeCredit, entities.TransferTypeReversal, t.AmountMoney(), result.DestinationBalanceAfter, *t.ReversedAt)
		if err != nil {
			return err
		}
		if err := s.ledgerRepo.WithTx(tx).RecordDoubleEntry(ctx, debit, credit); err != nil {
			return err
		}

		outbox := s.outboxRepo.WithTx(tx)
		if err := outbox.AppendEvents(ctx, t.ID, t.PeekEvents()); err != nil {
			return err
		}
		if err := outbox.AppendTagged(ctx, result.Events); err != nil {
			return err
		}

		transfer = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	transfer.ReleaseEvents()
	metrics.TransfersTotal.WithLabelValues(string(entities.TransferTypeReversal), string(transfer.Status)).Inc()

	s.logger.Info("Transfer reversed",
		"transfer_id", transfer.ID,
		"reference", transfer.Reference,
		"amount", transfer.Amount,
		"currency", transfer.Currency)

	return transfer, nil
}

// Get retrieves a transfer by ID
func (s *Service) Get(ctx context.Context, transferID uuid.UUID) (*entities.Transfer, error) {
	return s.transferRepo.GetByID(ctx, transferID)
}

// GetByReference retrieves a transfer by its human readable reference
func (s *Service) GetByReference(ctx context.Context, reference string) (*entities.Transfer, error) {
	transfer, err := s.transferRepo.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if transfer == nil {
		return nil, domainerrors.NotFoundError(domainerrors.CodeTransferNotFound, "transfer "+reference+" not found")
	}
	return transfer, nil
}

// List retrieves transfers, newest first, optionally filtered by status
func (s *Service) List(ctx context.Context, status *entities.TransferStatus, limit, offset int) ([]*entities.Transfer, int64, error) {
	return s.transferRepo.List(ctx, status, limit, offset)
}

// ListByAccount retrieves transfers touching the account, newest first
func (s *Service) ListByAccount(ctx context.Context, accountID uuid.UUID, status *entities.TransferStatus, limit, offset int) ([]*entities.Transfer, int64, error) {
	exists, err := s.accountRepo.Exists(ctx, accountID)
	if err != nil {
		return nil, 0, err
	}
	if !exists {
		return nil, 0, domainerrors.NotFoundError(domainerrors.CodeAccountNotFound, "account "+accountID.String()+" not found")
	}
	return s.transferRepo.ListByAccount(ctx, accountID, status, limit, offset)
}

func (s *Service) recordEntries(ctx context.Context, tx *sqlx.Tx, t *entities.Transfer, result *account.TransferFundsResult) error {
	debit, err := entities.NewLedgerEntry(t.SourceAccountID, t.DestinationAccountID, t.ID.String(), entities.EntryTypeDebit, t.TransferType, t.AmountMoney(), result.SourceBalanceAfter, *t.CompletedAt)
	if err != nil {
		return err
	}
	credit, err := entities.NewLedgerEntry(t.DestinationAccountID, t.SourceAccountID, t.ID.String(), entities.EntryTypeCredit, t.TransferType, t.AmountMoney(), result.DestinationBalanceAfter, *t.CompletedAt)
	if err != nil {
		return err
	}
	return s.ledgerRepo.WithTx(tx).RecordDoubleEntry(ctx, debit, credit)
}

// persistFailed writes the FAILED transfer row after the money movement
// rolled back. The row is an audit record: when the normal write fails
// a degraded attempt saves the row without its outbox events, and if
// even that fails the loss is logged at critical with every field
// needed to reconstruct the row by hand.
func (s *Service) persistFailed(ctx context.Context, build func() (*entities.Transfer, error), violation error) {
	code := domainerrors.Code(violation)
	if code == "" {
		code = domainerrors.CodeInternal
	}
	reason := violation.Error()

	t, err := build()
	if err != nil {
		s.logger.Error("Failed to rebuild transfer for failure record", "error", err)
		return
	}
	if err := t.MarkProcessing(); err != nil {
		s.logger.Error("Failed to transition failure record", "transfer_id", t.ID, "error", err)
		return
	}
	if err := t.Fail(code, reason); err != nil {
		s.logger.Error("Failed to transition failure record", "transfer_id", t.ID, "error", err)
		return
	}

	err = s.txm.Transactional(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		if err := s.transferRepo.WithTx(tx).Upsert(ctx, t); err != nil {
			return err
		}
		return s.outboxRepo.WithTx(tx).AppendEvents(ctx, t.ID, t.PeekEvents())
	})
	if err != nil {
		if saveErr := s.transferRepo.Upsert(ctx, t); saveErr != nil {
			s.logger.Critical("Failed transfer row lost",
				"transfer_id", t.ID,
				"reference", t.Reference,
				"source_account_id", t.SourceAccountID,
				"destination_account_id", t.DestinationAccountID,
				"amount", t.Amount,
				"currency", t.Currency,
				"failure_code", code,
				"failure_reason", reason,
				"error", saveErr)
			return
		}
		s.logger.Error("Failed transfer persisted without outbox events",
			"transfer_id", t.ID,
			"error", err)
	}

	t.ReleaseEvents()
	metrics.TransfersTotal.WithLabelValues(string(t.TransferType), string(t.Status)).Inc()

	s.logger.Info("Transfer failed",
		"transfer_id", t.ID,
		"reference", t.Reference,
		"failure_code", code)
}
