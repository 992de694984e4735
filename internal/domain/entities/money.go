package entities

import (
	"fmt"
	"math"

	domainerrors "github.com/ledgerd/ledgerd/internal/domain/errors"
)

// Money is an amount in integer minor units paired with its currency.
// Balances and transfer amounts never leave this representation, so no
// floating point touches money anywhere in the system.
type Money struct {
	Amount   int64  `json:"amount" db:"amount"`
	Currency string `json:"currency" db:"currency"`
}

// NewMoney builds a non-negative Money value.
func NewMoney(amount int64, currency string) (Money, error) {
	if amount < 0 {
		return Money{}, domainerrors.ValidationError("amount must not be negative", map[string]string{"amount": "must be >= 0"})
	}
	if err := ValidateCurrency(currency); err != nil {
		return Money{}, err
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// ValidateCurrency checks the ISO-4217 shape: three upper-case ASCII letters.
func ValidateCurrency(currency string) error {
	if len(currency) != 3 {
		return domainerrors.ValidationError("currency must be a 3-letter code", map[string]string{"currency": "must be 3 upper-case letters"})
	}
	for i := 0; i < 3; i++ {
		if currency[i] < 'A' || currency[i] > 'Z' {
			return domainerrors.ValidationError("currency must be upper-case letters", map[string]string{"currency": "must be 3 upper-case letters"})
		}
	}
	return nil
}

// Add returns m + other. Overflow beyond int64 fails with
// BALANCE_OVERFLOW; mixing currencies fails with CURRENCY_MISMATCH.
func (m Money) Add(other Money) (Money, error) {
	if err := m.assertSameCurrency(other); err != nil {
		return Money{}, err
	}
	if other.Amount > math.MaxInt64-m.Amount {
		return Money{}, domainerrors.UnprocessableError(domainerrors.CodeBalanceOverflow,
			fmt.Sprintf("adding %d to %d overflows the balance range", other.Amount, m.Amount))
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// Subtract returns m - other. A negative result fails with
// INSUFFICIENT_FUNDS.
func (m Money) Subtract(other Money) (Money, error) {
	if err := m.assertSameCurrency(other); err != nil {
		return Money{}, err
	}
	if other.Amount > m.Amount {
		return Money{}, domainerrors.UnprocessableError(domainerrors.CodeInsufficientFunds,
			fmt.Sprintf("balance %d is less than requested %d", m.Amount, other.Amount))
	}
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}, nil
}

func (m Money) Equals(other Money) bool {
	return m.Amount == other.Amount && m.Currency == other.Currency
}

func (m Money) IsZero() bool {
	return m.Amount == 0
}

// SameCurrency reports whether both values share a currency.
func (m Money) SameCurrency(other Money) bool {
	return m.Currency == other.Currency
}

func (m Money) String() string {
	return fmt.Sprintf("%d %s", m.Amount, m.Currency)
}

func (m Money) assertSameCurrency(other Money) error {
	if m.Currency != other.Currency {
		return domainerrors.UnprocessableError(domainerrors.CodeCurrencyMismatch,
			fmt.Sprintf("cannot mix %s and %s", m.Currency, other.Currency))
	}
	return nil
}
