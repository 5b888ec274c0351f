package exchange

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/timebank/internal/timebank"
)

const (
	responseServiceCancelled = "Service was cancelled by its owner"
	responseServiceClosed    = "Service was closed by its owner"
	responseServiceExpired   = "Service expired"
)

type CreateServiceParams struct {
	Title             string
	Description       string
	Category          string
	Tags              []string
	Location          string
	Type              ServiceType
	MaxParticipants   int
	EstimatedDuration decimal.Decimal
	Deadline          *time.Time
}

// UpdateServiceParams changes descriptive fields only. Nil means unchanged.
type UpdateServiceParams struct {
	Title             *string
	Description       *string
	Category          *string
	Tags              *[]string
	Location          *string
	MaxParticipants   *int
	EstimatedDuration *decimal.Decimal
	Deadline          *time.Time
}

// Confirmation is the result of a service-level completion confirmation.
type Confirmation struct {
	Service     *Service
	Settlements []Settlement
}

func (e *Engine) CreateService(ctx context.Context, ownerID uuid.UUID, p CreateServiceParams) (*Service, error) {
	s := &Service{
		OwnerID:           ownerID,
		Title:             strings.TrimSpace(p.Title),
		Description:       p.Description,
		Category:          strings.TrimSpace(p.Category),
		Tags:              normalizeTags(p.Tags),
		Location:          p.Location,
		Type:              p.Type,
		Status:            ServiceActive,
		MaxParticipants:   p.MaxParticipants,
		EstimatedDuration: p.EstimatedDuration,
		Deadline:          p.Deadline,
	}

	if ownerID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing owner", ErrInvalidInput)
	}

	if _, err := ParseServiceType(string(p.Type)); err != nil {
		return nil, err
	}

	if err := e.validate(s); err != nil {
		return nil, err
	}

	if err := e.validateDeadline(p.Deadline); err != nil {
		return nil, err
	}

	err := e.inTx(ctx, func(tx Tx) error {
		return tx.CreateService(ctx, s)
	})
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (e *Engine) GetService(ctx context.Context, id uuid.UUID) (*Service, error) {
	return e.repo.GetService(ctx, id)
}

func (e *Engine) ListServices(ctx context.Context, filter ServiceFilter) ([]*Service, error) {
	return e.repo.ListServices(ctx, filter)
}

// UpdateService edits a non-terminal service. Lifecycle fields are never
// touched here.
func (e *Engine) UpdateService(ctx context.Context, id, actorID uuid.UUID, p UpdateServiceParams) (*Service, error) {
	var s *Service

	err := e.inTx(ctx, func(tx Tx) error {
		var err error

		s, err = e.lockOwned(ctx, tx, id, actorID)
		if err != nil {
			return err
		}

		if s.Status.Terminal() {
			return fmt.Errorf("%w: service %s is %s", ErrInvalidState, id, s.Status)
		}

		if p.Title != nil {
			s.Title = strings.TrimSpace(*p.Title)
		}

		if p.Description != nil {
			s.Description = *p.Description
		}

		if p.Category != nil {
			s.Category = strings.TrimSpace(*p.Category)
		}

		if p.Tags != nil {
			s.Tags = normalizeTags(*p.Tags)
		}

		if p.Location != nil {
			s.Location = *p.Location
		}

		if p.MaxParticipants != nil {
			s.MaxParticipants = *p.MaxParticipants
		}

		if p.EstimatedDuration != nil {
			s.EstimatedDuration = *p.EstimatedDuration
		}

		if p.Deadline != nil {
			if err := e.validateDeadline(p.Deadline); err != nil {
				return err
			}

			s.Deadline = p.Deadline
		}

		if err := e.validate(s); err != nil {
			return err
		}

		if s.MaxParticipants < len(s.MatchedUserIDs) {
			return fmt.Errorf("%w: %d participants are already matched", ErrInvalidInput, len(s.MatchedUserIDs))
		}

		return tx.UpdateService(ctx, s)
	})
	if err != nil {
		return nil, err
	}

	return s, nil
}

// StartService moves a matched service into execution.
func (e *Engine) StartService(ctx context.Context, id, actorID uuid.UUID) (*Service, error) {
	var s *Service

	err := e.inTx(ctx, func(tx Tx) error {
		var err error

		s, err = e.lockOwned(ctx, tx, id, actorID)
		if err != nil {
			return err
		}

		if s.Status != ServiceActive {
			return fmt.Errorf("%w: service %s is %s", ErrInvalidState, id, s.Status)
		}

		if len(s.MatchedUserIDs) == 0 {
			return fmt.Errorf("%w: service %s", ErrNoParticipants, id)
		}

		s.Status = ServiceInProgress

		return tx.UpdateService(ctx, s)
	})
	if err != nil {
		return nil, err
	}

	return s, nil
}

// ConfirmServiceCompletion dispatches to ConfirmProvider for the owner and to
// ConfirmReceipt for everyone else.
func (e *Engine) ConfirmServiceCompletion(ctx context.Context, id, actorID uuid.UUID) (*Confirmation, error) {
	s, err := e.repo.GetService(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.OwnerID == actorID {
		return e.ConfirmProvider(ctx, id, actorID)
	}

	return e.ConfirmReceipt(ctx, id, actorID)
}

// ConfirmReceipt records that a matched participant's part of the exchange
// is done. Repeating it is a no-op.
func (e *Engine) ConfirmReceipt(ctx context.Context, id, userID uuid.UUID) (*Confirmation, error) {
	result := &Confirmation{}

	err := e.inTx(ctx, func(tx Tx) error {
		s, err := tx.LockService(ctx, id)
		if err != nil {
			return err
		}

		result.Service = s

		if !s.IsMatched(userID) {
			return fmt.Errorf("%w: user %s is not matched to service %s", ErrForbidden, userID, id)
		}

		if s.HasConfirmedReceipt(userID) {
			return nil
		}

		if s.Status != ServiceInProgress {
			return fmt.Errorf("%w: service %s is %s", ErrInvalidState, id, s.Status)
		}

		if err := tx.ConfirmParticipant(ctx, id, userID); err != nil {
			return fmt.Errorf("confirming participant: %w", err)
		}

		s.ReceiverConfirmedIDs = append(s.ReceiverConfirmedIDs, userID)

		result.Settlements, err = e.completeIfReady(ctx, tx, s)
		if err != nil {
			return err
		}

		return tx.UpdateService(ctx, s)
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// ConfirmProvider records the owner's side of completion. Repeating it is a
// no-op.
func (e *Engine) ConfirmProvider(ctx context.Context, id, actorID uuid.UUID) (*Confirmation, error) {
	result := &Confirmation{}

	err := e.inTx(ctx, func(tx Tx) error {
		s, err := e.lockOwned(ctx, tx, id, actorID)
		if err != nil {
			return err
		}

		result.Service = s

		if s.ProviderConfirmed {
			return nil
		}

		if s.Status != ServiceInProgress {
			return fmt.Errorf("%w: service %s is %s", ErrInvalidState, id, s.Status)
		}

		s.ProviderConfirmed = true

		result.Settlements, err = e.completeIfReady(ctx, tx, s)
		if err != nil {
			return err
		}

		return tx.UpdateService(ctx, s)
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// completeIfReady completes s once every confirmation is in and settles each
// of its pending transactions in the same unit of work. Rejected transfers
// stay pending and do not block completion.
func (e *Engine) completeIfReady(ctx context.Context, tx Tx, s *Service) ([]Settlement, error) {
	if !s.ReadyToComplete() {
		return nil, nil
	}

	s.Status = ServiceCompleted

	txs, err := tx.LockServiceTransactions(ctx, s.ID)
	if err != nil {
		return nil, fmt.Errorf("locking service transactions: %w", err)
	}

	var settlements []Settlement

	for _, t := range txs {
		if t.Status != TxPending {
			continue
		}

		t.ProviderConfirmed = true
		t.RequesterConfirmed = true

		if err := tx.UpdateTransaction(ctx, t); err != nil {
			return nil, fmt.Errorf("updating transaction: %w", err)
		}

		out, err := e.settle(ctx, tx, s, t)
		if err != nil {
			return nil, err
		}

		settlements = append(settlements, Settlement{Transaction: t, Outcome: out})
	}

	return settlements, nil
}

// CancelService withdraws an active posting within the grace window. Its
// pending transactions are cancelled and pending applications rejected.
func (e *Engine) CancelService(ctx context.Context, id, actorID uuid.UUID) (*Service, error) {
	var s *Service

	err := e.inTx(ctx, func(tx Tx) error {
		var err error

		s, err = e.lockOwned(ctx, tx, id, actorID)
		if err != nil {
			return err
		}

		if s.Status != ServiceActive {
			return fmt.Errorf("%w: service %s is %s", ErrInvalidState, id, s.Status)
		}

		if e.now().Sub(s.CreatedAt) > e.cancelWindow {
			return fmt.Errorf("%w: service %s was created more than %s ago", ErrWindowExpired, id, e.cancelWindow)
		}

		if err := cancelPendingTransactions(ctx, tx, id); err != nil {
			return err
		}

		if err := tx.RejectPendingJoinRequests(ctx, id, responseServiceCancelled); err != nil {
			return fmt.Errorf("rejecting join requests: %w", err)
		}

		s.Status = ServiceCancelled

		return tx.UpdateService(ctx, s)
	})
	if err != nil {
		return nil, err
	}

	return s, nil
}

// DeleteService hard deletes an active service nobody was matched to.
func (e *Engine) DeleteService(ctx context.Context, id, actorID uuid.UUID) error {
	return e.inTx(ctx, func(tx Tx) error {
		s, err := e.lockOwned(ctx, tx, id, actorID)
		if err != nil {
			return err
		}

		if s.Status != ServiceActive || len(s.MatchedUserIDs) > 0 {
			return fmt.Errorf("%w: only active services without participants can be deleted", ErrInvalidState)
		}

		return tx.DeleteService(ctx, id)
	})
}

// CompleteUnmatched closes an active service that never matched anyone.
func (e *Engine) CompleteUnmatched(ctx context.Context, id, actorID uuid.UUID) (*Service, error) {
	var s *Service

	err := e.inTx(ctx, func(tx Tx) error {
		var err error

		s, err = e.lockOwned(ctx, tx, id, actorID)
		if err != nil {
			return err
		}

		if s.Status != ServiceActive || len(s.MatchedUserIDs) > 0 {
			return fmt.Errorf("%w: only active services without participants can be closed", ErrInvalidState)
		}

		if err := tx.RejectPendingJoinRequests(ctx, id, responseServiceClosed); err != nil {
			return fmt.Errorf("rejecting join requests: %w", err)
		}

		s.Status = ServiceCompleted

		return tx.UpdateService(ctx, s)
	})
	if err != nil {
		return nil, err
	}

	return s, nil
}

// ExpireService marks a service expired. It is a no-op on terminal services.
// A service that never started also loses its pending transactions; one
// already in progress keeps them so the parties can still settle.
func (e *Engine) ExpireService(ctx context.Context, id uuid.UUID) (*Service, error) {
	var s *Service

	err := e.inTx(ctx, func(tx Tx) error {
		var err error

		s, err = tx.LockService(ctx, id)
		if err != nil {
			return err
		}

		if !s.Status.CanTransition(ServiceExpired) {
			return nil
		}

		if s.Status == ServiceActive {
			if err := cancelPendingTransactions(ctx, tx, id); err != nil {
				return err
			}
		}

		if err := tx.RejectPendingJoinRequests(ctx, id, responseServiceExpired); err != nil {
			return fmt.Errorf("rejecting join requests: %w", err)
		}

		s.Status = ServiceExpired

		return tx.UpdateService(ctx, s)
	})
	if err != nil {
		return nil, err
	}

	return s, nil
}

// ExpireDue expires every live service whose deadline is before now.
func (e *Engine) ExpireDue(ctx context.Context, now time.Time) ([]*Service, error) {
	due, err := e.repo.ListServices(ctx, ServiceFilter{
		Statuses:       []ServiceStatus{ServiceActive, ServiceInProgress},
		DeadlineBefore: &now,
	})
	if err != nil {
		return nil, fmt.Errorf("listing due services: %w", err)
	}

	expired := make([]*Service, 0, len(due))

	for _, d := range due {
		s, err := e.ExpireService(ctx, d.ID)
		if err != nil {
			return expired, fmt.Errorf("expiring service %s: %w", d.ID, err)
		}

		if s.Status == ServiceExpired {
			expired = append(expired, s)
		}
	}

	return expired, nil
}

func cancelPendingTransactions(ctx context.Context, tx Tx, serviceID uuid.UUID) error {
	txs, err := tx.LockServiceTransactions(ctx, serviceID)
	if err != nil {
		return fmt.Errorf("locking service transactions: %w", err)
	}

	for _, t := range txs {
		if t.Status != TxPending {
			continue
		}

		t.Status = TxCancelled
		if err := tx.UpdateTransaction(ctx, t); err != nil {
			return fmt.Errorf("cancelling transaction %s: %w", t.ID, err)
		}
	}

	return nil
}

func (e *Engine) lockOwned(ctx context.Context, tx Tx, id, actorID uuid.UUID) (*Service, error) {
	s, err := tx.LockService(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.OwnerID != actorID {
		return nil, fmt.Errorf("%w: user %s does not own service %s", ErrForbidden, actorID, id)
	}

	return s, nil
}

func (e *Engine) validate(s *Service) error {
	switch {
	case s.Title == "":
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	case s.MaxParticipants < 1:
		return fmt.Errorf("%w: max participants must be at least 1", ErrInvalidInput)
	case !s.EstimatedDuration.IsPositive():
		return fmt.Errorf("%w: estimated duration must be positive", ErrInvalidInput)
	case !timebank.ValidPrecision(s.EstimatedDuration):
		return fmt.Errorf("%w: estimated duration allows at most %d decimal places", ErrInvalidInput, timebank.HourPlaces)
	}

	return nil
}

func (e *Engine) validateDeadline(deadline *time.Time) error {
	if deadline != nil && !deadline.After(e.now()) {
		return fmt.Errorf("%w: deadline must be in the future", ErrInvalidInput)
	}

	return nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))

	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || slices.Contains(out, t) {
			continue
		}

		out = append(out, t)
	}

	return out
}
