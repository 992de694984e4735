package entities

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLedgerEntry(t *testing.T) {
	accountID := NewID()
	counterpartyID := NewID()
	occurredAt := time.Now().UTC()

	entry, err := NewLedgerEntry(accountID, counterpartyID, "tx-1", EntryTypeDebit, TransferTypeTransfer, Money{Amount: 250, Currency: "USD"}, 750, occurredAt)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.Equal(t, accountID, entry.AccountID)
	assert.Equal(t, int64(250), entry.Amount)
	assert.Equal(t, int64(750), entry.BalanceAfter)
	assert.Equal(t, occurredAt, entry.OccurredAt)
}

func TestNewLedgerEntry_Invalid(t *testing.T) {
	accountID := NewID()
	amount := Money{Amount: 100, Currency: "USD"}
	now := time.Now().UTC()

	_, err := NewLedgerEntry(uuid.Nil, NewID(), "tx-1", EntryTypeDebit, TransferTypeTransfer, amount, 0, now)
	assert.Error(t, err)

	_, err = NewLedgerEntry(accountID, accountID, "tx-1", EntryTypeDebit, TransferTypeTransfer, amount, 0, now)
	assert.Error(t, err)

	_, err = NewLedgerEntry(accountID, NewID(), "", EntryTypeDebit, TransferTypeTransfer, amount, 0, now)
	assert.Error(t, err)

	_, err = NewLedgerEntry(accountID, NewID(), "tx-1", EntryType("side"), TransferTypeTransfer, amount, 0, now)
	assert.Error(t, err)

	_, err = NewLedgerEntry(accountID, NewID(), "tx-1", EntryTypeDebit, TransferType("payout"), amount, 0, now)
	assert.Error(t, err)

	_, err = NewLedgerEntry(accountID, NewID(), "tx-1", EntryTypeDebit, TransferTypeTransfer, Money{Amount: 0, Currency: "USD"}, 0, now)
	assert.Error(t, err)

	_, err = NewLedgerEntry(accountID, NewID(), "tx-1", EntryTypeDebit, TransferTypeTransfer, amount, -1, now)
	assert.Error(t, err)

	// The reserved bootstrap identity is a counterparty only; it can
	// never own an entry.
	_, err = NewLedgerEntry(BootstrapCounterpartyUUID(), NewID(), "tx-1", EntryTypeCredit, TransferTypeTransfer, amount, 100, now)
	assert.Error(t, err)
}

func TestNewBootstrapEntry(t *testing.T) {
	accountID := NewID()
	occurredAt := time.Now().UTC()

	entry, err := NewBootstrapEntry(accountID, Money{Amount: 1000, Currency: "EUR"}, occurredAt)
	require.NoError(t, err)

	assert.Equal(t, EntryTypeCredit, entry.EntryType)
	assert.Equal(t, TransferTypeBootstrap, entry.TransferType)
	assert.Equal(t, BootstrapTransferID, entry.TransferID)
	assert.Equal(t, BootstrapCounterpartyUUID(), entry.CounterpartyAccountID)
	// The bootstrap credit defines the account's starting balance.
	assert.Equal(t, entry.Amount, entry.BalanceAfter)
}
