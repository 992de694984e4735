package entities

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Aggregate type tags used on outbox rows.
const (
	AggregateTypeAccount  = "account"
	AggregateTypeTransfer = "transfer"
)

// Event type names. These are wire identifiers consumed outside this
// process; treat them as frozen.
const (
	EventAccountCreated    = "account.created"
	EventAccountDebited    = "account.debited"
	EventAccountCredited   = "account.credited"
	EventAccountFrozen     = "account.frozen"
	EventAccountUnfrozen   = "account.unfrozen"
	EventAccountClosed     = "account.closed"
	EventTransferInitiated = "transfer.initiated"
	EventTransferCompleted = "transfer.completed"
	EventTransferFailed    = "transfer.failed"
	EventTransferReversed  = "transfer.reversed"
)

// DomainEvent is raised by an aggregate and delivered through the
// transactional outbox.
type DomainEvent interface {
	EventType() string
	AggregateType() string
	OccurredOn() time.Time
}

// TaggedEvent pairs an event with the id of the aggregate that raised
// it, so the transfer flow can route account events to the outbox
// without importing account internals.
type TaggedEvent struct {
	AggregateID uuid.UUID
	Event       DomainEvent
}

// AccountCreated is raised when an account is opened.
type AccountCreated struct {
	AccountID      uuid.UUID `json:"account_id"`
	OwnerName      string    `json:"owner_name"`
	Currency       string    `json:"currency"`
	InitialBalance int64     `json:"initial_balance"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func (e AccountCreated) EventType() string     { return EventAccountCreated }
func (e AccountCreated) AggregateType() string { return AggregateTypeAccount }
func (e AccountCreated) OccurredOn() time.Time { return e.OccurredAt }

// AccountDebited is raised when money leaves an account.
type AccountDebited struct {
	AccountID      uuid.UUID `json:"account_id"`
	TransferID     string    `json:"transfer_id"`
	TransferType   string    `json:"transfer_type"`
	CounterpartyID uuid.UUID `json:"counterparty_id"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency"`
	BalanceAfter   int64     `json:"balance_after"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func (e AccountDebited) EventType() string     { return EventAccountDebited }
func (e AccountDebited) AggregateType() string { return AggregateTypeAccount }
func (e AccountDebited) OccurredOn() time.Time { return e.OccurredAt }

// AccountCredited is raised when money enters an account.
type AccountCredited struct {
	AccountID      uuid.UUID `json:"account_id"`
	TransferID     string    `json:"transfer_id"`
	TransferType   string    `json:"transfer_type"`
	CounterpartyID uuid.UUID `json:"counterparty_id"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency"`
	BalanceAfter   int64     `json:"balance_after"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func (e AccountCredited) EventType() string     { return EventAccountCredited }
func (e AccountCredited) AggregateType() string { return AggregateTypeAccount }
func (e AccountCredited) OccurredOn() time.Time { return e.OccurredAt }

// AccountFrozen is raised when an account is frozen.
type AccountFrozen struct {
	AccountID  uuid.UUID `json:"account_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e AccountFrozen) EventType() string     { return EventAccountFrozen }
func (e AccountFrozen) AggregateType() string { return AggregateTypeAccount }
func (e AccountFrozen) OccurredOn() time.Time { return e.OccurredAt }

// AccountUnfrozen is raised when a frozen account returns to active.
type AccountUnfrozen struct {
	AccountID  uuid.UUID `json:"account_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e AccountUnfrozen) EventType() string     { return EventAccountUnfrozen }
func (e AccountUnfrozen) AggregateType() string { return AggregateTypeAccount }
func (e AccountUnfrozen) OccurredOn() time.Time { return e.OccurredAt }

// AccountClosed is raised on terminal closure.
type AccountClosed struct {
	AccountID  uuid.UUID `json:"account_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e AccountClosed) EventType() string     { return EventAccountClosed }
func (e AccountClosed) AggregateType() string { return AggregateTypeAccount }
func (e AccountClosed) OccurredOn() time.Time { return e.OccurredAt }

// TransferInitiated is raised when a transfer is accepted for
// processing. It carries both account ids so consumers never reload
// the transfer.
type TransferInitiated struct {
	TransferID           uuid.UUID `json:"transfer_id"`
	Reference            string    `json:"reference"`
	SourceAccountID      uuid.UUID `json:"source_account_id"`
	DestinationAccountID uuid.UUID `json:"destination_account_id"`
	Amount               int64     `json:"amount"`
	Currency             string    `json:"currency"`
	OccurredAt           time.Time `json:"occurred_at"`
}

func (e TransferInitiated) EventType() string     { return EventTransferInitiated }
func (e TransferInitiated) AggregateType() string { return AggregateTypeTransfer }
func (e TransferInitiated) OccurredOn() time.Time { return e.OccurredAt }

// TransferCompleted is raised when both ledger legs have been applied.
type TransferCompleted struct {
	TransferID           uuid.UUID `json:"transfer_id"`
	Reference            string    `json:"reference"`
	SourceAccountID      uuid.UUID `json:"source_account_id"`
	DestinationAccountID uuid.UUID `json:"destination_account_id"`
	Amount               int64     `json:"amount"`
	Currency             string    `json:"currency"`
	OccurredAt           time.Time `json:"occurred_at"`
}

func (e TransferCompleted) EventType() string     { return EventTransferCompleted }
func (e TransferCompleted) AggregateType() string { return AggregateTypeTransfer }
func (e TransferCompleted) OccurredOn() time.Time { return e.OccurredAt }

// TransferFailed is raised when a transfer is rejected by an account
// rule; it is written by the audit path after the money transaction
// has rolled back.
type TransferFailed struct {
	TransferID           uuid.UUID `json:"transfer_id"`
	Reference            string    `json:"reference"`
	SourceAccountID      uuid.UUID `json:"source_account_id"`
	DestinationAccountID uuid.UUID `json:"destination_account_id"`
	Amount               int64     `json:"amount"`
	Currency             string    `json:"currency"`
	FailureCode          string    `json:"failure_code"`
	FailureReason        string    `json:"failure_reason"`
	OccurredAt           time.Time `json:"occurred_at"`
}

func (e TransferFailed) EventType() string     { return EventTransferFailed }
func (e TransferFailed) AggregateType() string { return AggregateTypeTransfer }
func (e TransferFailed) OccurredOn() time.Time { return e.OccurredAt }

// TransferReversed is raised when a completed transfer is reversed.
type TransferReversed struct {
	TransferID           uuid.UUID `json:"transfer_id"`
	Reference            string    `json:"reference"`
	SourceAccountID      uuid.UUID `json:"source_account_id"`
	DestinationAccountID uuid.UUID `json:"destination_account_id"`
	Amount               int64     `json:"amount"`
	Currency             string    `json:"currency"`
	OccurredAt           time.Time `json:"occurred_at"`
}

func (e TransferReversed) EventType() string     { return EventTransferReversed }
func (e TransferReversed) AggregateType() string { return AggregateTypeTransfer }
func (e TransferReversed) OccurredOn() time.Time { return e.OccurredAt }

// SerializeEvent renders an event as its outbox payload.
func SerializeEvent(event DomainEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s event: %w", event.EventType(), err)
	}
	return payload, nil
}

// DeserializeEvent rebuilds a typed event from an outbox payload.
func DeserializeEvent(eventType string, payload []byte) (DomainEvent, error) {
	var (
		event DomainEvent
		err   error
	)
	switch eventType {
	case EventAccountCreated:
		var e AccountCreated
		err = json.Unmarshal(payload, &e)
		event = e
	case EventAccountDebited:
		var e AccountDebited
		err = json.Unmarshal(payload, &e)
		event = e
	case EventAccountCredited:
		var e AccountCredited
		err = json.Unmarshal(payload, &e)
		event = e
	case EventAccountFrozen:
		var e AccountFrozen
		err = json.Unmarshal(payload, &e)
		event = e
	case EventAccountUnfrozen:
		var e AccountUnfrozen
		err = json.Unmarshal(payload, &e)
		event = e
	case EventAccountClosed:
		var e AccountClosed
		err = json.Unmarshal(payload, &e)
		event = e
	case EventTransferInitiated:
		var e TransferInitiated
		err = json.Unmarshal(payload, &e)
		event = e
	case EventTransferCompleted:
		var e TransferCompleted
		err = json.Unmarshal(payload, &e)
		event = e
	case EventTransferFailed:
		var e TransferFailed
		err = json.Unmarshal(payload, &e)
		event = e
	case EventTransferReversed:
		var e TransferReversed
		err = json.Unmarshal(payload, &e)
		event = e
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize %s event: %w", eventType, err)
	}
	return event, nil
}

// nowUTC is the single clock read used by aggregate transitions: UTC,
// truncated to the microsecond precision the store keeps.
func nowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
