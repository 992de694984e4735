package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ledgerd/ledgerd/internal/domain/entities"
	domainerrors "github.com/ledgerd/ledgerd/internal/domain/errors"
	"github.com/ledgerd/ledgerd/internal/domain/repositories"
)

// RuleViolationError marks a transfer rejected by an account guard
// (frozen, closed, insufficient funds, currency mismatch, overflow).
// The transfer pipeline persists these as FAILED transfers; anything
// not wrapped in it is an infrastructure fault and must not produce a
// transfer row.
type RuleViolationError struct {
	Err error
}

func (e *RuleViolationError) Error() string { return e.Err.Error() }
func (e *RuleViolationError) Unwrap() error { return e.Err }

// IsRuleViolation reports whether err is a domain rule violation
func IsRuleViolation(err error) bool {
	var rv *RuleViolationError
	return errors.As(err, &rv)
}

// TransferFundsResult carries the post-move balance snapshots for the
// ledger entries plus the account events tagged with their aggregate.
type TransferFundsResult struct {
	SourceBalanceAfter      int64
	DestinationBalanceAfter int64
	Events                  []entities.TaggedEvent
}

// Coordinator moves money between two accounts inside a caller-owned
// transaction. It is the only code that debits and credits.
type Coordinator struct {
	accountRepo repositories.AccountRepository
}

// NewCoordinator creates a new transfer coordinator
func NewCoordinator(accountRepo repositories.AccountRepository) *Coordinator {
	return &Coordinator{accountRepo: accountRepo}
}

// TransferFunds debits source and credits destination. Both rows are
// locked in lexicographic UUID order no matter which direction the
// money flows, so two opposing transfers can never deadlock on each
// other.
func (c *Coordinator) TransferFunds(
	ctx context.Context,
	tx *sqlx.Tx,
	sourceID, destinationID uuid.UUID,
	amount entities.Money,
	transferID string,
	transferType entities.TransferType,
) (*TransferFundsResult, error) {
	repo := c.accountRepo.WithTx(tx)

	first, second := sourceID, destinationID
	if strings.Compare(first.String(), second.String()) > 0 {
		first, second = second, first
	}

	locked := make(map[uuid.UUID]*entities.Account, 2)
	for _, id := range []uuid.UUID{first, second} {
		acct, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		if acct == nil {
			side := "source"
			if id == destinationID {
				side = "destination"
			}
			return nil, domainerrors.NotFoundError(
				domainerrors.CodeAccountNotFound,
				fmt.Sprintf("%s account %s not found for transfer", side, id),
			)
		}
		locked[id] = acct
	}

	source := locked[sourceID]
	destination := locked[destinationID]

	if err := source.Debit(amount, transferID, transferType, destination.ID); err != nil {
		return nil, &RuleViolationError{Err: err}
	}
	if err := destination.Credit(amount, transferID, transferType, source.ID); err != nil {
		return nil, &RuleViolationError{Err: err}
	}

	if err := repo.Upsert(ctx, source); err != nil {
		return nil, err
	}
	if err := repo.Upsert(ctx, destination); err != nil {
		return nil, err
	}

	events := make([]entities.TaggedEvent, 0, 2)
	for _, event := range source.ReleaseEvents() {
		events = append(events, entities.TaggedEvent{AggregateID: source.ID, Event: event})
	}
	for _, event := range destination.ReleaseEvents() {
		events = append(events, entities.TaggedEvent{AggregateID: destination.ID, Event: event})
	}

	return &TransferFundsResult{
		SourceBalanceAfter:      source.Balance,
		DestinationBalanceAfter: destination.Balance,
		Events:                  events,
	}, nil
}
