package exchange

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/timebank/internal/exchange"
	"github.com/MrJamesThe3rd/timebank/internal/timebank"
)

type serviceResponse struct {
	ID                   uuid.UUID              `json:"id"`
	OwnerID              uuid.UUID              `json:"owner_id"`
	Title                string                 `json:"title"`
	Description          string                 `json:"description,omitempty"`
	Category             string                 `json:"category,omitempty"`
	Tags                 []string               `json:"tags"`
	Location             string                 `json:"location,omitempty"`
	Type                 exchange.ServiceType   `json:"type"`
	Status               exchange.ServiceStatus `json:"status"`
	MaxParticipants      int                    `json:"max_participants"`
	MatchedUserIDs       []uuid.UUID            `json:"matched_user_ids"`
	ProviderConfirmed    bool                   `json:"provider_confirmed"`
	ReceiverConfirmedIDs []uuid.UUID            `json:"receiver_confirmed_ids"`
	EstimatedDuration    decimal.Decimal        `json:"estimated_duration"`
	Deadline             *time.Time             `json:"deadline,omitempty"`
	CreatedAt            time.Time              `json:"created_at"`
	UpdatedAt            time.Time              `json:"updated_at"`
}

func toServiceResponse(s *exchange.Service) serviceResponse {
	return serviceResponse{
		ID:                   s.ID,
		OwnerID:              s.OwnerID,
		Title:                s.Title,
		Description:          s.Description,
		Category:             s.Category,
		Tags:                 nonNil(s.Tags),
		Location:             s.Location,
		Type:                 s.Type,
		Status:               s.Status,
		MaxParticipants:      s.MaxParticipants,
		MatchedUserIDs:       nonNil(s.MatchedUserIDs),
		ProviderConfirmed:    s.ProviderConfirmed,
		ReceiverConfirmedIDs: nonNil(s.ReceiverConfirmedIDs),
		EstimatedDuration:    s.EstimatedDuration,
		Deadline:             s.Deadline,
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
}

func toServiceResponseList(services []*exchange.Service) []serviceResponse {
	resp := make([]serviceResponse, len(services))
	for i, s := range services {
		resp[i] = toServiceResponse(s)
	}

	return resp
}

type joinRequestResponse struct {
	ID          uuid.UUID                  `json:"id"`
	ServiceID   uuid.UUID                  `json:"service_id"`
	RequesterID uuid.UUID                  `json:"requester_id"`
	Status      exchange.JoinRequestStatus `json:"status"`
	Message     string                     `json:"message,omitempty"`
	Response    string                     `json:"response,omitempty"`
	CreatedAt   time.Time                  `json:"created_at"`
	UpdatedAt   time.Time                  `json:"updated_at"`
}

func toJoinRequestResponse(jr *exchange.JoinRequest) joinRequestResponse {
	return joinRequestResponse{
		ID:          jr.ID,
		ServiceID:   jr.ServiceID,
		RequesterID: jr.RequesterID,
		Status:      jr.Status,
		Message:     jr.Message,
		Response:    jr.Response,
		CreatedAt:   jr.CreatedAt,
		UpdatedAt:   jr.UpdatedAt,
	}
}

func toJoinRequestResponseList(jrs []*exchange.JoinRequest) []joinRequestResponse {
	resp := make([]joinRequestResponse, len(jrs))
	for i, jr := range jrs {
		resp[i] = toJoinRequestResponse(jr)
	}

	return resp
}

type transactionResponse struct {
	ID                 uuid.UUID                  `json:"id"`
	ServiceID          uuid.UUID                  `json:"service_id"`
	ProviderID         uuid.UUID                  `json:"provider_id"`
	RequesterID        uuid.UUID                  `json:"requester_id"`
	Hours              decimal.Decimal            `json:"hours"`
	Status             exchange.TransactionStatus `json:"status"`
	ProviderConfirmed  bool                       `json:"provider_confirmed"`
	RequesterConfirmed bool                       `json:"requester_confirmed"`
	CompletionNotes    string                     `json:"completion_notes,omitempty"`
	CreatedAt          time.Time                  `json:"created_at"`
	UpdatedAt          time.Time                  `json:"updated_at"`
}

func toTransactionResponse(t *exchange.Transaction) transactionResponse {
	return transactionResponse{
		ID:                 t.ID,
		ServiceID:          t.ServiceID,
		ProviderID:         t.ProviderID,
		RequesterID:        t.RequesterID,
		Hours:              t.Hours,
		Status:             t.Status,
		ProviderConfirmed:  t.ProviderConfirmed,
		RequesterConfirmed: t.RequesterConfirmed,
		CompletionNotes:    t.CompletionNotes,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}

func toTransactionResponseList(txs []*exchange.Transaction) []transactionResponse {
	resp := make([]transactionResponse, len(txs))
	for i, t := range txs {
		resp[i] = toTransactionResponse(t)
	}

	return resp
}

// settlementResponse reports the transfer attempted for a transaction, if
// any. Settled is false both when nothing was attempted and when the ledger
// rejected the transfer; FailureReason tells them apart.
type settlementResponse struct {
	Transaction   transactionResponse    `json:"transaction"`
	Settled       bool                   `json:"settled"`
	FailureReason timebank.FailureReason `json:"failure_reason,omitempty"`
	FailureDetail string                 `json:"failure_detail,omitempty"`
}

func toSettlementResponse(s *exchange.Settlement) settlementResponse {
	resp := settlementResponse{Transaction: toTransactionResponse(s.Transaction)}

	switch {
	case s.Failed():
		resp.FailureReason = s.Outcome.Failure.Reason
		resp.FailureDetail = s.Outcome.Failure.ErrorMessage
	case s.Outcome != nil:
		resp.Settled = true
	}

	return resp
}

type confirmationResponse struct {
	Service     serviceResponse      `json:"service"`
	Settlements []settlementResponse `json:"settlements"`
}

func toConfirmationResponse(c *exchange.Confirmation) confirmationResponse {
	resp := confirmationResponse{
		Service:     toServiceResponse(c.Service),
		Settlements: make([]settlementResponse, len(c.Settlements)),
	}

	for i := range c.Settlements {
		resp.Settlements[i] = toSettlementResponse(&c.Settlements[i])
	}

	return resp
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}

	return s
}
