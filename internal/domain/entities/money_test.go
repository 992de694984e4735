package entities

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/ledgerd/ledgerd/internal/domain/errors"
)

func TestNewMoney_Valid(t *testing.T) {
	m, err := NewMoney(1500, "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), m.Amount)
	assert.Equal(t, "USD", m.Currency)
}

func TestNewMoney_NegativeAmount(t *testing.T) {
	_, err := NewMoney(-1, "USD")
	require.Error(t, err)
	assert.Equal(t, domainerrors.CodeValidation, domainerrors.Code(err))
}

func TestNewMoney_BadCurrency(t *testing.T) {
	for _, currency := range []string{"", "US", "USDT", "usd", "U$D"} {
		_, err := NewMoney(100, currency)
		assert.Error(t, err, "currency %q should be rejected", currency)
	}
}

func TestMoney_Add(t *testing.T) {
	a := Money{Amount: 100, Currency: "EUR"}
	b := Money{Amount: 250, Currency: "EUR"}

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, int64(350), sum.Amount)
}

func TestMoney_Add_Overflow(t *testing.T) {
	a := Money{Amount: math.MaxInt64 - 10, Currency: "USD"}
	b := Money{Amount: 11, Currency: "USD"}

	_, err := a.Add(b)
	require.Error(t, err)
	assert.Equal(t, domainerrors.CodeBalanceOverflow, domainerrors.Code(err))
	assert.True(t, domainerrors.IsUnprocessable(err))
}

func TestMoney_Add_CurrencyMismatch(t *testing.T) {
	a := Money{Amount: 100, Currency: "USD"}
	b := Money{Amount: 100, Currency: "EUR"}

	_, err := a.Add(b)
	require.Error(t, err)
	assert.Equal(t, domainerrors.CodeCurrencyMismatch, domainerrors.Code(err))
}

func TestMoney_Subtract(t *testing.T) {
	a := Money{Amount: 300, Currency: "GBP"}
	b := Money{Amount: 300, Currency: "GBP"}

	diff, err := a.Subtract(b)
	require.NoError(t, err)
	assert.True(t, diff.IsZero())
}

func TestMoney_Subtract_InsufficientFunds(t *testing.T) {
	a := Money{Amount: 100, Currency: "USD"}
	b := Money{Amount: 101, Currency: "USD"}

	_, err := a.Subtract(b)
	require.Error(t, err)
	assert.Equal(t, domainerrors.CodeInsufficientFunds, domainerrors.Code(err))
}
