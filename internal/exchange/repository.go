package exchange

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/timebank/internal/timebank"
)

// Repository gives unlocked reads and opens units of work. Get methods
// return ErrNotFound for unknown ids.
//
//go:generate mockgen -source=repository.go -destination=repository_mock.go -package=exchange
type Repository interface {
	GetService(ctx context.Context, id uuid.UUID) (*Service, error)
	ListServices(ctx context.Context, filter ServiceFilter) ([]*Service, error)
	GetJoinRequest(ctx context.Context, id uuid.UUID) (*JoinRequest, error)
	ListJoinRequests(ctx context.Context, filter JoinRequestFilter) ([]*JoinRequest, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]*Transaction, error)

	Begin(ctx context.Context) (Tx, error)
}

// Tx is one atomic unit of work. Lock methods hold the row until Commit or
// Rollback. Callers lock a service before any of its join requests or
// transactions, and accounts last.
type Tx interface {
	timebank.Tx

	LockService(ctx context.Context, id uuid.UUID) (*Service, error)
	CreateService(ctx context.Context, s *Service) error
	UpdateService(ctx context.Context, s *Service) error
	DeleteService(ctx context.Context, id uuid.UUID) error
	AddParticipant(ctx context.Context, serviceID, userID uuid.UUID) error
	ConfirmParticipant(ctx context.Context, serviceID, userID uuid.UUID) error

	LockJoinRequest(ctx context.Context, id uuid.UUID) (*JoinRequest, error)
	HasPendingJoinRequest(ctx context.Context, serviceID, requesterID uuid.UUID) (bool, error)
	CreateJoinRequest(ctx context.Context, jr *JoinRequest) error
	UpdateJoinRequest(ctx context.Context, jr *JoinRequest) error
	RejectPendingJoinRequests(ctx context.Context, serviceID uuid.UUID, response string) error

	LockTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)
	LockServiceTransactions(ctx context.Context, serviceID uuid.UUID) ([]*Transaction, error)
	CreateTransaction(ctx context.Context, t *Transaction) error
	UpdateTransaction(ctx context.Context, t *Transaction) error
	// CompleteTransaction moves a pending transaction to completed and
	// reports false when it was no longer pending.
	CompleteTransaction(ctx context.Context, id uuid.UUID) (bool, error)

	Commit() error
	Rollback() error
}

type ServiceFilter struct {
	OwnerID        *uuid.UUID
	Statuses       []ServiceStatus
	Type           *ServiceType
	Tag            *string
	Location       *string
	Category       *string
	DeadlineBefore *time.Time
}

type JoinRequestFilter struct {
	ServiceID   *uuid.UUID
	RequesterID *uuid.UUID
	Status      *JoinRequestStatus
}

type TransactionFilter struct {
	ServiceID *uuid.UUID
	// ParticipantID matches either the provider or the requester.
	ParticipantID *uuid.UUID
	Status        *TransactionStatus
}
