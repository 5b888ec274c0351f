package exchange

import (
	"fmt"
	"slices"
)

// ServiceType says whether the owner gives (offer) or asks for (need) help.
type ServiceType string

const (
	TypeOffer ServiceType = "offer"
	TypeNeed  ServiceType = "need"
)

func ParseServiceType(s string) (ServiceType, error) {
	switch t := ServiceType(s); t {
	case TypeOffer, TypeNeed:
		return t, nil
	}

	return "", fmt.Errorf("%w: unknown service type %q", ErrInvalidInput, s)
}

// ServiceStatus is the lifecycle state of a posting.
type ServiceStatus string

const (
	ServiceActive     ServiceStatus = "active"
	ServiceInProgress ServiceStatus = "in_progress"
	ServiceCompleted  ServiceStatus = "completed"
	ServiceCancelled  ServiceStatus = "cancelled"
	ServiceExpired    ServiceStatus = "expired"
)

// active → completed is only taken by the explicit no-match close.
var serviceTransitions = map[ServiceStatus][]ServiceStatus{
	ServiceActive:     {ServiceInProgress, ServiceCancelled, ServiceExpired, ServiceCompleted},
	ServiceInProgress: {ServiceCompleted, ServiceExpired},
	ServiceCompleted:  nil,
	ServiceCancelled:  nil,
	ServiceExpired:    nil,
}

func ParseServiceStatus(s string) (ServiceStatus, error) {
	st := ServiceStatus(s)
	if _, ok := serviceTransitions[st]; !ok {
		return "", fmt.Errorf("%w: unknown service status %q", ErrInvalidInput, s)
	}

	return st, nil
}

func (s ServiceStatus) Terminal() bool {
	return len(serviceTransitions[s]) == 0
}

func (s ServiceStatus) CanTransition(to ServiceStatus) bool {
	return slices.Contains(serviceTransitions[s], to)
}

// JoinRequestStatus is the state of an application to a posting.
type JoinRequestStatus string

const (
	JoinPending   JoinRequestStatus = "pending"
	JoinApproved  JoinRequestStatus = "approved"
	JoinRejected  JoinRequestStatus = "rejected"
	JoinCancelled JoinRequestStatus = "cancelled"
)

var joinTransitions = map[JoinRequestStatus][]JoinRequestStatus{
	JoinPending:   {JoinApproved, JoinRejected, JoinCancelled},
	JoinApproved:  nil,
	JoinRejected:  nil,
	JoinCancelled: nil,
}

func ParseJoinRequestStatus(s string) (JoinRequestStatus, error) {
	st := JoinRequestStatus(s)
	if _, ok := joinTransitions[st]; !ok {
		return "", fmt.Errorf("%w: unknown join request status %q", ErrInvalidInput, s)
	}

	return st, nil
}

func (s JoinRequestStatus) CanTransition(to JoinRequestStatus) bool {
	return slices.Contains(joinTransitions[s], to)
}

// TransactionStatus is the settlement state of one provider/requester pair.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxCompleted TransactionStatus = "completed"
	TxCancelled TransactionStatus = "cancelled"
	TxDisputed  TransactionStatus = "disputed"
)

// Disputes are opened and resolved by moderators outside the engine; the
// engine only needs to refuse settling a disputed transaction.
var txTransitions = map[TransactionStatus][]TransactionStatus{
	TxPending:   {TxCompleted, TxCancelled, TxDisputed},
	TxDisputed:  {TxCancelled},
	TxCompleted: nil,
	TxCancelled: nil,
}

func ParseTransactionStatus(s string) (TransactionStatus, error) {
	st := TransactionStatus(s)
	if _, ok := txTransitions[st]; !ok {
		return "", fmt.Errorf("%w: unknown transaction status %q", ErrInvalidInput, s)
	}

	return st, nil
}

func (s TransactionStatus) CanTransition(to TransactionStatus) bool {
	return slices.Contains(txTransitions[s], to)
}
