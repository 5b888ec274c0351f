package memstore

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/timebank/internal/exchange"
	"github.com/MrJamesThe3rd/timebank/internal/timebank"
)

// unitOfWork writes straight into the store and journals an undo step per
// write so Rollback can restore the previous state.
type unitOfWork struct {
	store *Store
	undo  []func()
	done  bool
}

func (u *unitOfWork) Commit() error {
	if u.done {
		return errTxDone
	}

	u.done = true
	u.undo = nil
	u.store.mu.Unlock()

	return nil
}

func (u *unitOfWork) Rollback() error {
	if u.done {
		return errTxDone
	}

	for _, fn := range slices.Backward(u.undo) {
		fn()
	}

	u.done = true
	u.undo = nil
	u.store.mu.Unlock()

	return nil
}

func (u *unitOfWork) LockService(_ context.Context, id uuid.UUID) (*exchange.Service, error) {
	return u.store.service(id)
}

func (u *unitOfWork) CreateService(_ context.Context, svc *exchange.Service) error {
	s := u.store

	svc.ID = uuid.New()
	now := s.now()
	svc.CreatedAt, svc.UpdatedAt = now, now

	s.services[svc.ID] = cloneService(svc)
	s.serviceOrder = append(s.serviceOrder, svc.ID)

	n := len(s.serviceOrder) - 1
	u.undo = append(u.undo, func() {
		delete(s.services, svc.ID)
		s.serviceOrder = s.serviceOrder[:n]
	})

	return nil
}

// UpdateService stores the scalar fields of svc. Participants change only
// through AddParticipant and ConfirmParticipant.
func (u *unitOfWork) UpdateService(_ context.Context, svc *exchange.Service) error {
	s := u.store

	prev, ok := s.services[svc.ID]
	if !ok {
		return exchange.ErrNotFound
	}

	next := cloneService(svc)
	next.MatchedUserIDs = slices.Clone(prev.MatchedUserIDs)
	next.ReceiverConfirmedIDs = slices.Clone(prev.ReceiverConfirmedIDs)
	next.CreatedAt = prev.CreatedAt
	next.UpdatedAt = s.now()
	svc.UpdatedAt = next.UpdatedAt

	s.services[svc.ID] = next
	u.undo = append(u.undo, func() { s.services[svc.ID] = prev })

	return nil
}

func (u *unitOfWork) DeleteService(_ context.Context, id uuid.UUID) error {
	s := u.store

	prev, ok := s.services[id]
	if !ok {
		return exchange.ErrNotFound
	}

	delete(s.services, id)
	u.undo = append(u.undo, func() { s.services[id] = prev })

	for jrID, jr := range s.joinRequests {
		if jr.ServiceID != id {
			continue
		}

		delete(s.joinRequests, jrID)
		u.undo = append(u.undo, func() { s.joinRequests[jrID] = jr })
	}

	return nil
}

func (u *unitOfWork) AddParticipant(_ context.Context, serviceID, userID uuid.UUID) error {
	return u.mutateService(serviceID, func(svc *exchange.Service) error {
		if svc.IsMatched(userID) {
			return fmt.Errorf("user %s already matched", userID)
		}

		svc.MatchedUserIDs = append(svc.MatchedUserIDs, userID)

		return nil
	})
}

func (u *unitOfWork) ConfirmParticipant(_ context.Context, serviceID, userID uuid.UUID) error {
	return u.mutateService(serviceID, func(svc *exchange.Service) error {
		if !svc.IsMatched(userID) {
			return fmt.Errorf("user %s is not a participant", userID)
		}

		if !svc.HasConfirmedReceipt(userID) {
			svc.ReceiverConfirmedIDs = append(svc.ReceiverConfirmedIDs, userID)
		}

		return nil
	})
}

func (u *unitOfWork) mutateService(id uuid.UUID, fn func(*exchange.Service) error) error {
	s := u.store

	prev, ok := s.services[id]
	if !ok {
		return exchange.ErrNotFound
	}

	next := cloneService(prev)
	if err := fn(next); err != nil {
		return err
	}

	s.services[id] = next
	u.undo = append(u.undo, func() { s.services[id] = prev })

	return nil
}

func (u *unitOfWork) LockJoinRequest(_ context.Context, id uuid.UUID) (*exchange.JoinRequest, error) {
	return u.store.joinRequest(id)
}

func (u *unitOfWork) HasPendingJoinRequest(_ context.Context, serviceID, requesterID uuid.UUID) (bool, error) {
	for _, jr := range u.store.joinRequests {
		if jr.ServiceID == serviceID && jr.RequesterID == requesterID && jr.Status == exchange.JoinPending {
			return true, nil
		}
	}

	return false, nil
}

func (u *unitOfWork) CreateJoinRequest(_ context.Context, jr *exchange.JoinRequest) error {
	s := u.store

	jr.ID = uuid.New()
	now := s.now()
	jr.CreatedAt, jr.UpdatedAt = now, now

	c := *jr
	s.joinRequests[jr.ID] = &c
	s.joinOrder = append(s.joinOrder, jr.ID)

	n := len(s.joinOrder) - 1
	u.undo = append(u.undo, func() {
		delete(s.joinRequests, jr.ID)
		s.joinOrder = s.joinOrder[:n]
	})

	return nil
}

func (u *unitOfWork) UpdateJoinRequest(_ context.Context, jr *exchange.JoinRequest) error {
	s := u.store

	prev, ok := s.joinRequests[jr.ID]
	if !ok {
		return exchange.ErrNotFound
	}

	jr.UpdatedAt = s.now()
	c := *jr
	s.joinRequests[jr.ID] = &c
	u.undo = append(u.undo, func() { s.joinRequests[jr.ID] = prev })

	return nil
}

func (u *unitOfWork) RejectPendingJoinRequests(_ context.Context, serviceID uuid.UUID, response string) error {
	s := u.store

	for id, prev := range s.joinRequests {
		if prev.ServiceID != serviceID || prev.Status != exchange.JoinPending {
			continue
		}

		next := *prev
		next.Status = exchange.JoinRejected
		next.Response = response
		next.UpdatedAt = s.now()

		s.joinRequests[id] = &next
		u.undo = append(u.undo, func() { s.joinRequests[id] = prev })
	}

	return nil
}

func (u *unitOfWork) LockTransaction(_ context.Context, id uuid.UUID) (*exchange.Transaction, error) {
	return u.store.transaction(id)
}

func (u *unitOfWork) LockServiceTransactions(_ context.Context, serviceID uuid.UUID) ([]*exchange.Transaction, error) {
	var out []*exchange.Transaction

	for _, id := range u.store.txOrder {
		t, ok := u.store.transactions[id]
		if !ok || t.ServiceID != serviceID {
			continue
		}

		c := *t
		out = append(out, &c)
	}

	return out, nil
}

func (u *unitOfWork) CreateTransaction(_ context.Context, t *exchange.Transaction) error {
	s := u.store

	t.ID = uuid.New()
	now := s.now()
	t.CreatedAt, t.UpdatedAt = now, now

	c := *t
	s.transactions[t.ID] = &c
	s.txOrder = append(s.txOrder, t.ID)

	n := len(s.txOrder) - 1
	u.undo = append(u.undo, func() {
		delete(s.transactions, t.ID)
		s.txOrder = s.txOrder[:n]
	})

	return nil
}

func (u *unitOfWork) UpdateTransaction(_ context.Context, t *exchange.Transaction) error {
	s := u.store

	prev, ok := s.transactions[t.ID]
	if !ok {
		return exchange.ErrNotFound
	}

	t.UpdatedAt = s.now()
	c := *t
	s.transactions[t.ID] = &c
	u.undo = append(u.undo, func() { s.transactions[t.ID] = prev })

	return nil
}

func (u *unitOfWork) CompleteTransaction(_ context.Context, id uuid.UUID) (bool, error) {
	s := u.store

	prev, ok := s.transactions[id]
	if !ok || prev.Status != exchange.TxPending {
		return false, nil
	}

	next := *prev
	next.Status = exchange.TxCompleted
	next.UpdatedAt = s.now()

	s.transactions[id] = &next
	u.undo = append(u.undo, func() { s.transactions[id] = prev })

	return true, nil
}

func (u *unitOfWork) LockAccount(_ context.Context, userID uuid.UUID) (*timebank.Account, error) {
	acc, ok := u.store.accounts[userID]
	if !ok {
		return nil, timebank.ErrAccountNotFound
	}

	c := *acc

	return &c, nil
}

func (u *unitOfWork) UpdateBalance(_ context.Context, userID uuid.UUID, balance decimal.Decimal) error {
	s := u.store

	prev, ok := s.accounts[userID]
	if !ok {
		return timebank.ErrAccountNotFound
	}

	next := *prev
	next.Balance = balance
	next.UpdatedAt = s.now()

	s.accounts[userID] = &next
	u.undo = append(u.undo, func() { s.accounts[userID] = prev })

	return nil
}

func (u *unitOfWork) AppendEntry(_ context.Context, e *timebank.Entry) error {
	s := u.store

	n := len(s.entries)
	s.appendEntry(e)
	u.undo = append(u.undo, func() { s.entries = s.entries[:n] })

	return nil
}

func (u *unitOfWork) AppendFailure(_ context.Context, f *timebank.Failure) error {
	s := u.store

	f.ID = uuid.New()
	f.CreatedAt = s.now()

	n := len(s.failures)
	c := *f
	s.failures = append(s.failures, &c)
	u.undo = append(u.undo, func() { s.failures = s.failures[:n] })

	return nil
}
