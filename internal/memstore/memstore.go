// Package memstore keeps every collection in process memory. It backs local
// development (STORE_DRIVER=memory) and the engine tests. A unit of work holds
// the store mutex from Begin until Commit or Rollback, which gives the same
// serializability the PostgreSQL row locks give.
package memstore

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/timebank/internal/exchange"
	"github.com/MrJamesThe3rd/timebank/internal/timebank"
)

var errTxDone = errors.New("memstore: unit of work already finished")

type Store struct {
	mu  sync.Mutex
	now func() time.Time

	services     map[uuid.UUID]*exchange.Service
	serviceOrder []uuid.UUID
	joinRequests map[uuid.UUID]*exchange.JoinRequest
	joinOrder    []uuid.UUID
	transactions map[uuid.UUID]*exchange.Transaction
	txOrder      []uuid.UUID
	accounts     map[uuid.UUID]*timebank.Account
	entries      []*timebank.Entry
	failures     []*timebank.Failure
}

func New() *Store {
	return NewWithClock(time.Now)
}

func NewWithClock(now func() time.Time) *Store {
	return &Store{
		now:          now,
		services:     make(map[uuid.UUID]*exchange.Service),
		joinRequests: make(map[uuid.UUID]*exchange.JoinRequest),
		transactions: make(map[uuid.UUID]*exchange.Transaction),
		accounts:     make(map[uuid.UUID]*timebank.Account),
	}
}

func (s *Store) GetService(_ context.Context, id uuid.UUID) (*exchange.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.service(id)
}

func (s *Store) ListServices(_ context.Context, filter exchange.ServiceFilter) ([]*exchange.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*exchange.Service

	for _, id := range slices.Backward(s.serviceOrder) {
		svc, ok := s.services[id]
		if !ok || !matchService(svc, filter) {
			continue
		}

		out = append(out, cloneService(svc))
	}

	return out, nil
}

func (s *Store) GetJoinRequest(_ context.Context, id uuid.UUID) (*exchange.JoinRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.joinRequest(id)
}

func (s *Store) ListJoinRequests(_ context.Context, filter exchange.JoinRequestFilter) ([]*exchange.JoinRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*exchange.JoinRequest

	for _, id := range slices.Backward(s.joinOrder) {
		jr, ok := s.joinRequests[id]
		if !ok || !matchJoinRequest(jr, filter) {
			continue
		}

		c := *jr
		out = append(out, &c)
	}

	return out, nil
}

func (s *Store) GetTransaction(_ context.Context, id uuid.UUID) (*exchange.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.transaction(id)
}

func (s *Store) ListTransactions(_ context.Context, filter exchange.TransactionFilter) ([]*exchange.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*exchange.Transaction

	for _, id := range slices.Backward(s.txOrder) {
		t, ok := s.transactions[id]
		if !ok || !matchTransaction(t, filter) {
			continue
		}

		c := *t
		out = append(out, &c)
	}

	return out, nil
}

func (s *Store) GetAccount(_ context.Context, userID uuid.UUID) (*timebank.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[userID]
	if !ok {
		return nil, timebank.ErrAccountNotFound
	}

	c := *acc

	return &c, nil
}

func (s *Store) CreateAccount(_ context.Context, acc *timebank.Account, opening *timebank.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[acc.UserID]; ok {
		return timebank.ErrAccountExists
	}

	now := s.now()
	acc.CreatedAt, acc.UpdatedAt = now, now

	c := *acc
	s.accounts[acc.UserID] = &c

	if opening != nil {
		s.appendEntry(opening)
	}

	return nil
}

func (s *Store) ListEntries(_ context.Context, filter timebank.EntryFilter) ([]*timebank.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*timebank.Entry

	for _, e := range slices.Backward(s.entries) {
		if filter.UserID != nil && e.UserID != *filter.UserID {
			continue
		}

		if filter.ServiceID != nil && (e.ServiceID == nil || *e.ServiceID != *filter.ServiceID) {
			continue
		}

		c := *e
		out = append(out, &c)

		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}

	return out, nil
}

func (s *Store) ListFailures(_ context.Context, filter timebank.FailureFilter) ([]*timebank.Failure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*timebank.Failure

	for _, f := range slices.Backward(s.failures) {
		if filter.UserID != nil && f.UserID != *filter.UserID {
			continue
		}

		if filter.Reason != nil && f.Reason != *filter.Reason {
			continue
		}

		c := *f
		out = append(out, &c)

		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}

	return out, nil
}

// Begin locks the store for a unit of work.
func (s *Store) Begin(_ context.Context) (exchange.Tx, error) {
	s.mu.Lock()
	return &unitOfWork{store: s}, nil
}

// service, joinRequest and transaction expect s.mu to be held.
func (s *Store) service(id uuid.UUID) (*exchange.Service, error) {
	svc, ok := s.services[id]
	if !ok {
		return nil, exchange.ErrNotFound
	}

	return cloneService(svc), nil
}

func (s *Store) joinRequest(id uuid.UUID) (*exchange.JoinRequest, error) {
	jr, ok := s.joinRequests[id]
	if !ok {
		return nil, exchange.ErrNotFound
	}

	c := *jr

	return &c, nil
}

func (s *Store) transaction(id uuid.UUID) (*exchange.Transaction, error) {
	t, ok := s.transactions[id]
	if !ok {
		return nil, exchange.ErrNotFound
	}

	c := *t

	return &c, nil
}

func (s *Store) appendEntry(e *timebank.Entry) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	e.CreatedAt = s.now()
	c := *e
	s.entries = append(s.entries, &c)
}

func cloneService(svc *exchange.Service) *exchange.Service {
	c := *svc
	c.Tags = slices.Clone(svc.Tags)
	c.MatchedUserIDs = slices.Clone(svc.MatchedUserIDs)
	c.ReceiverConfirmedIDs = slices.Clone(svc.ReceiverConfirmedIDs)

	if svc.Deadline != nil {
		d := *svc.Deadline
		c.Deadline = &d
	}

	return &c
}

func matchService(svc *exchange.Service, f exchange.ServiceFilter) bool {
	switch {
	case f.OwnerID != nil && svc.OwnerID != *f.OwnerID:
		return false
	case len(f.Statuses) > 0 && !slices.Contains(f.Statuses, svc.Status):
		return false
	case f.Type != nil && svc.Type != *f.Type:
		return false
	case f.Tag != nil && !slices.Contains(svc.Tags, *f.Tag):
		return false
	case f.Location != nil && svc.Location != *f.Location:
		return false
	case f.Category != nil && svc.Category != *f.Category:
		return false
	case f.DeadlineBefore != nil && (svc.Deadline == nil || !svc.Deadline.Before(*f.DeadlineBefore)):
		return false
	}

	return true
}

func matchJoinRequest(jr *exchange.JoinRequest, f exchange.JoinRequestFilter) bool {
	switch {
	case f.ServiceID != nil && jr.ServiceID != *f.ServiceID:
		return false
	case f.RequesterID != nil && jr.RequesterID != *f.RequesterID:
		return false
	case f.Status != nil && jr.Status != *f.Status:
		return false
	}

	return true
}

func matchTransaction(t *exchange.Transaction, f exchange.TransactionFilter) bool {
	switch {
	case f.ServiceID != nil && t.ServiceID != *f.ServiceID:
		return false
	case f.ParticipantID != nil && !t.IsParty(*f.ParticipantID):
		return false
	case f.Status != nil && t.Status != *f.Status:
		return false
	}

	return true
}
