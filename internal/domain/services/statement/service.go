// Package statement produces account statements from the ledger. Every
// balance on a statement is an index seek against the denormalised
// balance_after snapshots; nothing here ever sums ledger history.
package statement

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerd/ledgerd/internal/domain/entities"
	domainerrors "github.com/ledgerd/ledgerd/internal/domain/errors"
	"github.com/ledgerd/ledgerd/internal/domain/repositories"
)

const (
	// maxRangeDays bounds the statement window.
	maxRangeDays = 366

	defaultPerPage = 50
	maxPerPage     = 100
)

// Query describes one statement request. Page and PerPage of zero take
// their defaults.
type Query struct {
	AccountID uuid.UUID
	From      time.Time
	To        time.Time
	Page      int
	PerPage   int
}

// Statement is one page of an account's movement history with its
// opening and closing balances.
type Statement struct {
	AccountID      uuid.UUID              `json:"account_id"`
	From           time.Time              `json:"from"`
	To             time.Time              `json:"to"`
	OpeningBalance int64                  `json:"opening_balance"`
	ClosingBalance int64                  `json:"closing_balance"`
	Movements      []*entities.LedgerEntry `json:"movements"`
	Page           int                    `json:"page"`
	PerPage        int                    `json:"per_page"`
	TotalCount     int64                  `json:"total_count"`
}

// Service answers statement queries against the ledger.
type Service struct {
	accountRepo repositories.AccountRepository
	ledgerRepo  repositories.LedgerRepository
}

// NewService creates a new statement service
func NewService(accountRepo repositories.AccountRepository, ledgerRepo repositories.LedgerRepository) *Service {
	return &Service{accountRepo: accountRepo, ledgerRepo: ledgerRepo}
}

// GetStatement builds one statement page. Opening balance is the
// snapshot in force strictly before the window; the closing balance is
// the snapshot at the window's end, inclusive to the microsecond.
func (s *Service) GetStatement(ctx context.Context, q Query) (*Statement, error) {
	// The ordering check must come first: the range arithmetic below is
	// an absolute span and would accept an inverted window.
	if !q.From.Before(q.To) {
		return nil, domainerrors.InvalidInputError(domainerrors.CodeInvalidDateRange,
			"from must be before to")
	}
	if q.To.Sub(q.From) > maxRangeDays*24*time.Hour {
		return nil, domainerrors.InvalidInputError(domainerrors.CodeInvalidDateRange,
			"statement range must not exceed 366 days")
	}

	page := q.Page
	if page == 0 {
		page = 1
	}
	perPage := q.PerPage
	if perPage == 0 {
		perPage = defaultPerPage
	}
	if page < 1 || perPage < 1 || perPage > maxPerPage {
		return nil, domainerrors.ValidationError("invalid pagination",
			map[string]string{"page": "must be >= 1", "per_page": "must be between 1 and 100"})
	}

	exists, err := s.accountRepo.Exists(ctx, q.AccountID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domainerrors.NotFoundError(domainerrors.CodeAccountNotFound,
			"account "+q.AccountID.String()+" not found")
	}

	opening, _, err := s.ledgerRepo.BalanceBefore(ctx, q.AccountID, q.From)
	if err != nil {
		return nil, err
	}

	total, err := s.ledgerRepo.CountMovements(ctx, q.AccountID, q.From, q.To)
	if err != nil {
		return nil, err
	}

	movements := []*entities.LedgerEntry{}
	closing := opening
	if total > 0 {
		offset := (page - 1) * perPage
		movements, err = s.ledgerRepo.Movements(ctx, q.AccountID, q.From, q.To, perPage, offset)
		if err != nil {
			return nil, err
		}

		// Inclusive to the microsecond. Widening this to "to plus one
		// second" would leak entries that sit outside the movement range.
		balance, found, err := s.ledgerRepo.BalanceAt(ctx, q.AccountID, q.To)
		if err != nil {
			return nil, err
		}
		if found {
			closing = balance
		}
	}

	return &Statement{
		AccountID:      q.AccountID,
		From:           q.From,
		To:             q.To,
		OpeningBalance: opening,
		ClosingBalance: closing,
		Movements:      movements,
		Page:           page,
		PerPage:        perPage,
		TotalCount:     total,
	}, nil
}
