package timebank

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrAccountNotFound = errors.New("timebank account not found")
	ErrAccountExists   = errors.New("timebank account already exists")
	ErrInvalidAmount   = errors.New("invalid timebank amount")
	ErrUnknownReason   = errors.New("unknown failure reason")
)

// HourPlaces is how many decimal places hour amounts are stored with.
const HourPlaces = 2

// ValidPrecision reports whether d fits the stored hour precision.
func ValidPrecision(d decimal.Decimal) bool {
	return d.Equal(d.Round(HourPlaces))
}

// FailureReason classifies why a settlement attempt was rejected.
type FailureReason string

const (
	ReasonProviderBalanceLimit FailureReason = "provider_balance_limit"
	ReasonInsufficientBalance  FailureReason = "insufficient_balance"
	ReasonUserNotFound         FailureReason = "user_not_found"
	ReasonOther                FailureReason = "other"
)

func (r FailureReason) Valid() bool {
	switch r {
	case ReasonProviderBalanceLimit, ReasonInsufficientBalance, ReasonUserNotFound, ReasonOther:
		return true
	}

	return false
}

// Account holds a member's running TimeBank balance in hours.
type Account struct {
	UserID    uuid.UUID
	Balance   decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Entry is an append-only ledger line. Debits are negative.
type Entry struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Amount      decimal.Decimal
	Description string
	ServiceID   *uuid.UUID
	CreatedAt   time.Time
}

// Failure records a settlement attempt that was rejected by a ledger rule.
type Failure struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	Amount           decimal.Decimal
	Description      string
	Reason           FailureReason
	BalanceAtFailure decimal.Decimal
	ServiceID        *uuid.UUID
	ErrorMessage     string
	CreatedAt        time.Time
}

// Statement is an account together with its ledger history, newest first.
type Statement struct {
	Account *Account
	Entries []*Entry
}
