package exchange

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service is a posted offer or need.
type Service struct {
	ID                   uuid.UUID
	OwnerID              uuid.UUID
	Title                string
	Description          string
	Category             string
	Tags                 []string
	Location             string
	Type                 ServiceType
	Status               ServiceStatus
	MaxParticipants      int
	MatchedUserIDs       []uuid.UUID // approval order
	ProviderConfirmed    bool
	ReceiverConfirmedIDs []uuid.UUID
	EstimatedDuration    decimal.Decimal // hours
	Deadline             *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (s *Service) IsMatched(userID uuid.UUID) bool {
	return slices.Contains(s.MatchedUserIDs, userID)
}

func (s *Service) HasConfirmedReceipt(userID uuid.UUID) bool {
	return slices.Contains(s.ReceiverConfirmedIDs, userID)
}

func (s *Service) IsFull() bool {
	return len(s.MatchedUserIDs) >= s.MaxParticipants
}

// ReadyToComplete reports whether the owner and every matched participant
// have confirmed.
func (s *Service) ReadyToComplete() bool {
	if !s.ProviderConfirmed || len(s.MatchedUserIDs) == 0 {
		return false
	}

	for _, id := range s.MatchedUserIDs {
		if !s.HasConfirmedReceipt(id) {
			return false
		}
	}

	return true
}

// Parties returns who provides and who receives when participant is matched
// to the service. The receiver pays.
func (s *Service) Parties(participant uuid.UUID) (provider, requester uuid.UUID) {
	if s.Type == TypeNeed {
		return participant, s.OwnerID
	}

	return s.OwnerID, participant
}

// JoinRequest is an application from a member to take part in a service.
type JoinRequest struct {
	ID          uuid.UUID
	ServiceID   uuid.UUID
	RequesterID uuid.UUID
	Status      JoinRequestStatus
	Message     string
	Response    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Transaction is the settlement unit between one provider and one requester.
type Transaction struct {
	ID                 uuid.UUID
	ServiceID          uuid.UUID
	ProviderID         uuid.UUID
	RequesterID        uuid.UUID
	Hours              decimal.Decimal
	Status             TransactionStatus
	ProviderConfirmed  bool
	RequesterConfirmed bool
	CompletionNotes    string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (t *Transaction) IsParty(userID uuid.UUID) bool {
	return t.ProviderID == userID || t.RequesterID == userID
}

func (t *Transaction) FullyConfirmed() bool {
	return t.ProviderConfirmed && t.RequesterConfirmed
}
