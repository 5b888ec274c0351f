package timebank

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tx is the slice of a unit of work the ledger needs. Implementations must
// hold the account row lock from LockAccount until the unit of work ends.
//
//go:generate mockgen -source=ledger.go -destination=ledger_mock.go -package=timebank
type Tx interface {
	LockAccount(ctx context.Context, userID uuid.UUID) (*Account, error)
	UpdateBalance(ctx context.Context, userID uuid.UUID, balance decimal.Decimal) error
	AppendEntry(ctx context.Context, entry *Entry) error
	AppendFailure(ctx context.Context, failure *Failure) error
}

// Ledger is the only writer of balances.
type Ledger struct {
	maxBalance decimal.Decimal
}

// NewLedger returns a ledger that refuses credits pushing a balance above
// maxBalance. A non-positive maxBalance disables the cap.
func NewLedger(maxBalance decimal.Decimal) *Ledger {
	return &Ledger{maxBalance: maxBalance}
}

func (l *Ledger) MaxBalance() decimal.Decimal {
	return l.maxBalance
}

type TransferParams struct {
	From        uuid.UUID
	To          uuid.UUID
	Amount      decimal.Decimal
	Description string
	ServiceID   *uuid.UUID
}

// Outcome reports what a transfer did. Exactly one of Failure or the entry
// pair is set.
type Outcome struct {
	Failure *Failure
	Debit   *Entry
	Credit  *Entry
}

func (o *Outcome) Settled() bool {
	return o != nil && o.Failure == nil
}

// Transfer moves p.Amount hours from p.From to p.To inside tx. A rule
// violation is persisted as a Failure and reported through the Outcome; the
// returned error is reserved for storage faults.
func (l *Ledger) Transfer(ctx context.Context, tx Tx, p TransferParams) (*Outcome, error) {
	accounts, err := lockAccounts(ctx, tx, p.From, p.To)
	if err != nil {
		return nil, err
	}

	from, to := accounts[p.From], accounts[p.To]

	switch {
	case from == nil:
		return l.fail(ctx, tx, p, p.From, p.Amount.Neg(), decimal.Zero, ReasonUserNotFound,
			fmt.Sprintf("no account for payer %s", p.From))
	case to == nil:
		return l.fail(ctx, tx, p, p.To, p.Amount, decimal.Zero, ReasonUserNotFound,
			fmt.Sprintf("no account for payee %s", p.To))
	case !p.Amount.IsPositive():
		return l.fail(ctx, tx, p, p.From, p.Amount.Neg(), from.Balance, ReasonOther,
			fmt.Sprintf("amount %s must be positive", p.Amount))
	case p.From == p.To:
		return l.fail(ctx, tx, p, p.From, p.Amount.Neg(), from.Balance, ReasonOther,
			"payer and payee are the same account")
	case from.Balance.Sub(p.Amount).IsNegative():
		return l.fail(ctx, tx, p, p.From, p.Amount.Neg(), from.Balance, ReasonInsufficientBalance,
			fmt.Sprintf("balance %s is below %s", from.Balance, p.Amount))
	case l.maxBalance.IsPositive() && to.Balance.Add(p.Amount).GreaterThan(l.maxBalance):
		return l.fail(ctx, tx, p, p.To, p.Amount, to.Balance, ReasonProviderBalanceLimit,
			fmt.Sprintf("balance %s plus %s exceeds limit %s", to.Balance, p.Amount, l.maxBalance))
	}

	if err := tx.UpdateBalance(ctx, p.From, from.Balance.Sub(p.Amount)); err != nil {
		return nil, fmt.Errorf("debiting %s: %w", p.From, err)
	}

	if err := tx.UpdateBalance(ctx, p.To, to.Balance.Add(p.Amount)); err != nil {
		return nil, fmt.Errorf("crediting %s: %w", p.To, err)
	}

	debit := &Entry{UserID: p.From, Amount: p.Amount.Neg(), Description: p.Description, ServiceID: p.ServiceID}
	if err := tx.AppendEntry(ctx, debit); err != nil {
		return nil, fmt.Errorf("appending debit entry: %w", err)
	}

	credit := &Entry{UserID: p.To, Amount: p.Amount, Description: p.Description, ServiceID: p.ServiceID}
	if err := tx.AppendEntry(ctx, credit); err != nil {
		return nil, fmt.Errorf("appending credit entry: %w", err)
	}

	return &Outcome{Debit: debit, Credit: credit}, nil
}

func (l *Ledger) fail(
	ctx context.Context,
	tx Tx,
	p TransferParams,
	userID uuid.UUID,
	amount, balance decimal.Decimal,
	reason FailureReason,
	msg string,
) (*Outcome, error) {
	f := &Failure{
		UserID:           userID,
		Amount:           amount,
		Description:      p.Description,
		Reason:           reason,
		BalanceAtFailure: balance,
		ServiceID:        p.ServiceID,
		ErrorMessage:     msg,
	}
	if err := tx.AppendFailure(ctx, f); err != nil {
		return nil, fmt.Errorf("appending failed transaction: %w", err)
	}

	return &Outcome{Failure: f}, nil
}

// lockAccounts locks the given accounts in byte order of their ids so two
// transfers over the same pair cannot deadlock. Missing accounts map to nil.
func lockAccounts(ctx context.Context, tx Tx, a, b uuid.UUID) (map[uuid.UUID]*Account, error) {
	ids := []uuid.UUID{a}
	if a != b {
		ids = append(ids, b)
		if bytes.Compare(b[:], a[:]) < 0 {
			ids[0], ids[1] = b, a
		}
	}

	accounts := make(map[uuid.UUID]*Account, len(ids))

	for _, id := range ids {
		acc, err := tx.LockAccount(ctx, id)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				accounts[id] = nil
				continue
			}

			return nil, fmt.Errorf("locking account %s: %w", id, err)
		}

		accounts[id] = acc
	}

	return accounts, nil
}
