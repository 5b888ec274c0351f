package exchange

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/timebank/internal/timebank"
)

// Settlement pairs a transaction with the ledger outcome of the attempt made
// on it. Outcome is nil when no transfer was attempted.
type Settlement struct {
	Transaction *Transaction
	Outcome     *timebank.Outcome
}

// Failed reports whether a transfer was attempted and rejected by the ledger.
func (s Settlement) Failed() bool {
	return s.Outcome != nil && !s.Outcome.Settled()
}

// ConfirmTransaction records actorID's confirmation. Once both parties have
// confirmed, the hours move from requester to provider. A rejected transfer
// leaves the transaction pending; confirming again retries it.
func (e *Engine) ConfirmTransaction(ctx context.Context, id, actorID uuid.UUID, notes string) (*Settlement, error) {
	current, err := e.repo.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}

	var result *Settlement

	err = e.inTx(ctx, func(tx Tx) error {
		s, err := tx.LockService(ctx, current.ServiceID)
		if err != nil {
			return err
		}

		t, err := tx.LockTransaction(ctx, id)
		if err != nil {
			return err
		}

		var already bool

		switch actorID {
		case t.ProviderID:
			already = t.ProviderConfirmed
			t.ProviderConfirmed = true
		case t.RequesterID:
			already = t.RequesterConfirmed
			t.RequesterConfirmed = true
		default:
			return fmt.Errorf("%w: user %s is not a party to transaction %s", ErrForbidden, actorID, id)
		}

		if t.Status != TxPending {
			if already && t.Status == TxCompleted {
				result = &Settlement{Transaction: t}
				return nil
			}

			return fmt.Errorf("%w: transaction %s is %s", ErrInvalidState, id, t.Status)
		}

		if notes != "" {
			t.CompletionNotes = notes
		}

		if !already || notes != "" {
			if err := tx.UpdateTransaction(ctx, t); err != nil {
				return fmt.Errorf("updating transaction: %w", err)
			}
		}

		out, err := e.settle(ctx, tx, s, t)
		if err != nil {
			return err
		}

		result = &Settlement{Transaction: t, Outcome: out}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// CancelTransaction lets either party abandon a pending transaction.
func (e *Engine) CancelTransaction(ctx context.Context, id, actorID uuid.UUID) (*Transaction, error) {
	current, err := e.repo.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}

	var t *Transaction

	err = e.inTx(ctx, func(tx Tx) error {
		if _, err := tx.LockService(ctx, current.ServiceID); err != nil {
			return err
		}

		t, err = tx.LockTransaction(ctx, id)
		if err != nil {
			return err
		}

		if !t.IsParty(actorID) {
			return fmt.Errorf("%w: user %s is not a party to transaction %s", ErrForbidden, actorID, id)
		}

		if t.Status != TxPending {
			return fmt.Errorf("%w: transaction %s is %s", ErrInvalidState, id, t.Status)
		}

		t.Status = TxCancelled

		return tx.UpdateTransaction(ctx, t)
	})
	if err != nil {
		return nil, err
	}

	return t, nil
}

// UpdateTransaction applies a client status change. Only cancellation is
// accepted; completion goes through ConfirmTransaction.
func (e *Engine) UpdateTransaction(ctx context.Context, id, actorID uuid.UUID, status TransactionStatus) (*Transaction, error) {
	if status != TxCancelled {
		return nil, fmt.Errorf("%w: transactions can only be updated to %s", ErrInvalidInput, TxCancelled)
	}

	return e.CancelTransaction(ctx, id, actorID)
}

func (e *Engine) GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	return e.repo.GetTransaction(ctx, id)
}

func (e *Engine) ListMyTransactions(ctx context.Context, actorID uuid.UUID) ([]*Transaction, error) {
	return e.repo.ListTransactions(ctx, TransactionFilter{ParticipantID: &actorID})
}

// ListServiceTransactions returns every transaction of the service to its
// owner and only the caller's own transactions to anyone else.
func (e *Engine) ListServiceTransactions(ctx context.Context, serviceID, actorID uuid.UUID) ([]*Transaction, error) {
	s, err := e.repo.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	filter := TransactionFilter{ServiceID: &serviceID}
	if s.OwnerID != actorID {
		filter.ParticipantID = &actorID
	}

	return e.repo.ListTransactions(ctx, filter)
}

// settle transfers the hours of a fully confirmed pending transaction. The
// caller holds the service and transaction locks, which together with the
// conditional completion keep the transfer at most once.
func (e *Engine) settle(ctx context.Context, tx Tx, s *Service, t *Transaction) (*timebank.Outcome, error) {
	if t.Status != TxPending || !t.FullyConfirmed() {
		return nil, nil
	}

	out, err := e.ledger.Transfer(ctx, tx, timebank.TransferParams{
		From:        t.RequesterID,
		To:          t.ProviderID,
		Amount:      t.Hours,
		Description: fmt.Sprintf("Service exchange: %s", s.Title),
		ServiceID:   &t.ServiceID,
	})
	if err != nil {
		return nil, fmt.Errorf("settling transaction %s: %w", t.ID, err)
	}

	if !out.Settled() {
		slog.Warn("settlement rejected",
			"transaction_id", t.ID,
			"service_id", t.ServiceID,
			"reason", out.Failure.Reason,
			"error", out.Failure.ErrorMessage,
		)

		return out, nil
	}

	ok, err := tx.CompleteTransaction(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("completing transaction %s: %w", t.ID, err)
	}

	if !ok {
		return nil, fmt.Errorf("%w: transaction %s is no longer pending", ErrInvalidState, t.ID)
	}

	t.Status = TxCompleted

	return out, nil
}
