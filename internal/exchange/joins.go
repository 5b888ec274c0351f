package exchange

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// SubmitJoinRequest applies requesterID to an active service.
func (e *Engine) SubmitJoinRequest(ctx context.Context, serviceID, requesterID uuid.UUID, message string) (*JoinRequest, error) {
	jr := &JoinRequest{
		ServiceID:   serviceID,
		RequesterID: requesterID,
		Status:      JoinPending,
		Message:     strings.TrimSpace(message),
	}

	err := e.inTx(ctx, func(tx Tx) error {
		s, err := tx.LockService(ctx, serviceID)
		if err != nil {
			return err
		}

		switch {
		case s.OwnerID == requesterID:
			return fmt.Errorf("%w: owners cannot join their own service", ErrConflict)
		case s.Status != ServiceActive:
			return fmt.Errorf("%w: service %s is %s", ErrConflict, serviceID, s.Status)
		case s.IsMatched(requesterID):
			return fmt.Errorf("%w: user %s is already matched to service %s", ErrConflict, requesterID, serviceID)
		}

		pending, err := tx.HasPendingJoinRequest(ctx, serviceID, requesterID)
		if err != nil {
			return fmt.Errorf("checking pending join requests: %w", err)
		}

		if pending {
			return fmt.Errorf("%w: a pending join request already exists", ErrConflict)
		}

		return tx.CreateJoinRequest(ctx, jr)
	})
	if err != nil {
		return nil, err
	}

	return jr, nil
}

// ApproveJoinRequest matches the requester to the service and opens a pending
// transaction for the pair, all in one unit of work. The service row lock
// serializes concurrent approvals against the capacity check.
func (e *Engine) ApproveJoinRequest(ctx context.Context, requestID, actorID uuid.UUID, response string) (*JoinRequest, error) {
	current, err := e.repo.GetJoinRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	var jr *JoinRequest

	err = e.inTx(ctx, func(tx Tx) error {
		s, err := e.lockOwned(ctx, tx, current.ServiceID, actorID)
		if err != nil {
			return err
		}

		jr, err = tx.LockJoinRequest(ctx, requestID)
		if err != nil {
			return err
		}

		switch {
		case !jr.Status.CanTransition(JoinApproved):
			return fmt.Errorf("%w: join request %s is %s", ErrInvalidState, requestID, jr.Status)
		case s.Status != ServiceActive:
			return fmt.Errorf("%w: service %s is %s", ErrInvalidState, s.ID, s.Status)
		case s.IsFull():
			return fmt.Errorf("%w: service %s already has %d of %d participants",
				ErrCapacityExceeded, s.ID, len(s.MatchedUserIDs), s.MaxParticipants)
		}

		if err := tx.AddParticipant(ctx, s.ID, jr.RequesterID); err != nil {
			return fmt.Errorf("adding participant: %w", err)
		}

		s.MatchedUserIDs = append(s.MatchedUserIDs, jr.RequesterID)

		jr.Status = JoinApproved
		jr.Response = strings.TrimSpace(response)

		if err := tx.UpdateJoinRequest(ctx, jr); err != nil {
			return fmt.Errorf("updating join request: %w", err)
		}

		provider, requester := s.Parties(jr.RequesterID)

		t := &Transaction{
			ServiceID:   s.ID,
			ProviderID:  provider,
			RequesterID: requester,
			Hours:       s.EstimatedDuration,
			Status:      TxPending,
		}
		if err := tx.CreateTransaction(ctx, t); err != nil {
			return fmt.Errorf("creating transaction: %w", err)
		}

		return tx.UpdateService(ctx, s)
	})
	if err != nil {
		return nil, err
	}

	return jr, nil
}

// RejectJoinRequest declines a pending application.
func (e *Engine) RejectJoinRequest(ctx context.Context, requestID, actorID uuid.UUID, response string) (*JoinRequest, error) {
	current, err := e.repo.GetJoinRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	var jr *JoinRequest

	err = e.inTx(ctx, func(tx Tx) error {
		if _, err := e.lockOwned(ctx, tx, current.ServiceID, actorID); err != nil {
			return err
		}

		jr, err = tx.LockJoinRequest(ctx, requestID)
		if err != nil {
			return err
		}

		if !jr.Status.CanTransition(JoinRejected) {
			return fmt.Errorf("%w: join request %s is %s", ErrInvalidState, requestID, jr.Status)
		}

		jr.Status = JoinRejected
		jr.Response = strings.TrimSpace(response)

		return tx.UpdateJoinRequest(ctx, jr)
	})
	if err != nil {
		return nil, err
	}

	return jr, nil
}

// UpdateJoinRequestStatus is the owner's decision on an application.
func (e *Engine) UpdateJoinRequestStatus(
	ctx context.Context,
	requestID, actorID uuid.UUID,
	status JoinRequestStatus,
	response string,
) (*JoinRequest, error) {
	switch status {
	case JoinApproved:
		return e.ApproveJoinRequest(ctx, requestID, actorID, response)
	case JoinRejected:
		return e.RejectJoinRequest(ctx, requestID, actorID, response)
	}

	return nil, fmt.Errorf("%w: status must be %s or %s", ErrInvalidInput, JoinApproved, JoinRejected)
}

// CancelJoinRequest withdraws the caller's own pending application while the
// service is still active.
func (e *Engine) CancelJoinRequest(ctx context.Context, requestID, actorID uuid.UUID) (*JoinRequest, error) {
	current, err := e.repo.GetJoinRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	var jr *JoinRequest

	err = e.inTx(ctx, func(tx Tx) error {
		s, err := tx.LockService(ctx, current.ServiceID)
		if err != nil {
			return err
		}

		jr, err = tx.LockJoinRequest(ctx, requestID)
		if err != nil {
			return err
		}

		switch {
		case jr.RequesterID != actorID:
			return fmt.Errorf("%w: user %s did not submit join request %s", ErrForbidden, actorID, requestID)
		case !jr.Status.CanTransition(JoinCancelled):
			return fmt.Errorf("%w: join request %s is %s", ErrInvalidState, requestID, jr.Status)
		case s.Status != ServiceActive:
			return fmt.Errorf("%w: service %s is %s", ErrInvalidState, s.ID, s.Status)
		}

		jr.Status = JoinCancelled

		return tx.UpdateJoinRequest(ctx, jr)
	})
	if err != nil {
		return nil, err
	}

	return jr, nil
}

func (e *Engine) ListMyJoinRequests(ctx context.Context, actorID uuid.UUID) ([]*JoinRequest, error) {
	return e.repo.ListJoinRequests(ctx, JoinRequestFilter{RequesterID: &actorID})
}

// ListServiceJoinRequests returns all applications to the owner and only the
// caller's own applications to anyone else.
func (e *Engine) ListServiceJoinRequests(ctx context.Context, serviceID, actorID uuid.UUID) ([]*JoinRequest, error) {
	s, err := e.repo.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	filter := JoinRequestFilter{ServiceID: &serviceID}
	if s.OwnerID != actorID {
		filter.RequesterID = &actorID
	}

	return e.repo.ListJoinRequests(ctx, filter)
}
