package timebank

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/timebank/internal/http/auth"
	"github.com/MrJamesThe3rd/timebank/internal/http/respond"
	"github.com/MrJamesThe3rd/timebank/internal/timebank"
)

// defaultLimit caps the admin listings when no limit is given.
const defaultLimit = 100

type Handler struct {
	svc *timebank.Service
}

func NewHandler(svc *timebank.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/account", h.openAccount)
	r.Get("/", h.statement)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAdmin)
		r.Get("/transactions", h.listEntries)
		r.Get("/failed-transactions", h.listFailures)
	})
}

type accountResponse struct {
	UserID    uuid.UUID       `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type entryResponse struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	ServiceID   *uuid.UUID      `json:"service_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type failureResponse struct {
	ID               uuid.UUID              `json:"id"`
	UserID           uuid.UUID              `json:"user_id"`
	Amount           decimal.Decimal        `json:"amount"`
	Description      string                 `json:"description"`
	Reason           timebank.FailureReason `json:"reason"`
	BalanceAtFailure decimal.Decimal        `json:"balance_at_failure"`
	ServiceID        *uuid.UUID             `json:"service_id,omitempty"`
	ErrorMessage     string                 `json:"error_message,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
}

type statementResponse struct {
	Account accountResponse `json:"account"`
	Entries []entryResponse `json:"transactions"`
}

func toAccountResponse(a *timebank.Account) accountResponse {
	return accountResponse{UserID: a.UserID, Balance: a.Balance, CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt}
}

func toEntryResponseList(entries []*timebank.Entry) []entryResponse {
	resp := make([]entryResponse, len(entries))
	for i, e := range entries {
		resp[i] = entryResponse{
			ID:          e.ID,
			UserID:      e.UserID,
			Amount:      e.Amount,
			Description: e.Description,
			ServiceID:   e.ServiceID,
			CreatedAt:   e.CreatedAt,
		}
	}

	return resp
}

func toFailureResponseList(failures []*timebank.Failure) []failureResponse {
	resp := make([]failureResponse, len(failures))
	for i, f := range failures {
		resp[i] = failureResponse{
			ID:               f.ID,
			UserID:           f.UserID,
			Amount:           f.Amount,
			Description:      f.Description,
			Reason:           f.Reason,
			BalanceAtFailure: f.BalanceAtFailure,
			ServiceID:        f.ServiceID,
			ErrorMessage:     f.ErrorMessage,
			CreatedAt:        f.CreatedAt,
		}
	}

	return resp
}

func (h *Handler) openAccount(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())

	acc, err := h.svc.OpenAccount(r.Context(), actor.ID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toAccountResponse(acc))
}

func (h *Handler) statement(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())

	st, err := h.svc.GetStatement(r.Context(), actor.ID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, statementResponse{
		Account: toAccountResponse(st.Account),
		Entries: toEntryResponseList(st.Entries),
	})
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := timebank.EntryFilter{}

	var err error

	if filter.UserID, err = optionalUUID(q.Get("user_id")); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if filter.ServiceID, err = optionalUUID(q.Get("service_id")); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if filter.Limit, err = parseLimit(q.Get("limit")); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	entries, err := h.svc.ListEntries(r.Context(), filter)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toEntryResponseList(entries))
}

func (h *Handler) listFailures(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := timebank.FailureFilter{}

	var err error

	if filter.UserID, err = optionalUUID(q.Get("user_id")); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if s := q.Get("reason"); s != "" {
		filter.Reason = new(timebank.FailureReason(s))
	}

	if filter.Limit, err = parseLimit(q.Get("limit")); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	failures, err := h.svc.ListFailures(r.Context(), filter)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toFailureResponseList(failures))
}

func optionalUUID(s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}

	id, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid id %q", s)
	}

	return &id, nil
}

func parseLimit(s string) (int, error) {
	if s == "" {
		return defaultLimit, nil
	}

	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid limit %q", s)
	}

	return n, nil
}
