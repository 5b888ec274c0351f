package timebank

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const openingDescription = "Opening balance"

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=timebank
type Repository interface {
	GetAccount(ctx context.Context, userID uuid.UUID) (*Account, error)
	// CreateAccount inserts the account and, when opening is non-nil, its
	// opening entry in one database transaction.
	CreateAccount(ctx context.Context, acc *Account, opening *Entry) error
	ListEntries(ctx context.Context, filter EntryFilter) ([]*Entry, error)
	ListFailures(ctx context.Context, filter FailureFilter) ([]*Failure, error)
}

type EntryFilter struct {
	UserID    *uuid.UUID
	ServiceID *uuid.UUID
	Limit     int
}

type FailureFilter struct {
	UserID *uuid.UUID
	Reason *FailureReason
	Limit  int
}

// Service is the read side of the ledger plus account opening.
type Service struct {
	repo            Repository
	startingBalance decimal.Decimal
	maxBalance      decimal.Decimal
}

type ServiceOption func(*Service)

// WithMaxBalance rejects opening balances above limit. A non-positive limit
// disables the check, matching the ledger cap.
func WithMaxBalance(limit decimal.Decimal) ServiceOption {
	return func(s *Service) { s.maxBalance = limit }
}

func NewService(repo Repository, startingBalance decimal.Decimal, opts ...ServiceOption) *Service {
	s := &Service{repo: repo, startingBalance: startingBalance}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// OpenAccount opens an account credited with the configured starting balance.
func (s *Service) OpenAccount(ctx context.Context, userID uuid.UUID) (*Account, error) {
	return s.OpenAccountWithBalance(ctx, userID, s.startingBalance)
}

// OpenAccountWithBalance opens an account with an explicit opening balance.
// The opening credit is written to the ledger so that balances always equal
// the sum of their entries.
func (s *Service) OpenAccountWithBalance(ctx context.Context, userID uuid.UUID, opening decimal.Decimal) (*Account, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidAmount)
	}

	switch {
	case opening.IsNegative():
		return nil, fmt.Errorf("%w: opening balance %s is negative", ErrInvalidAmount, opening)
	case !ValidPrecision(opening):
		return nil, fmt.Errorf("%w: opening balance %s has more than %d decimal places", ErrInvalidAmount, opening, HourPlaces)
	case s.maxBalance.IsPositive() && opening.GreaterThan(s.maxBalance):
		return nil, fmt.Errorf("%w: opening balance %s exceeds limit %s", ErrInvalidAmount, opening, s.maxBalance)
	}

	acc := &Account{UserID: userID, Balance: opening}

	var entry *Entry
	if opening.IsPositive() {
		entry = &Entry{UserID: userID, Amount: opening, Description: openingDescription}
	}

	if err := s.repo.CreateAccount(ctx, acc, entry); err != nil {
		return nil, err
	}

	return acc, nil
}

// GetStatement returns the balance and full history of one member.
func (s *Service) GetStatement(ctx context.Context, userID uuid.UUID) (*Statement, error) {
	acc, err := s.repo.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	entries, err := s.repo.ListEntries(ctx, EntryFilter{UserID: &userID})
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}

	return &Statement{Account: acc, Entries: entries}, nil
}

func (s *Service) ListEntries(ctx context.Context, filter EntryFilter) ([]*Entry, error) {
	return s.repo.ListEntries(ctx, filter)
}

func (s *Service) ListFailures(ctx context.Context, filter FailureFilter) ([]*Failure, error) {
	if filter.Reason != nil && !filter.Reason.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReason, *filter.Reason)
	}

	return s.repo.ListFailures(ctx, filter)
}
