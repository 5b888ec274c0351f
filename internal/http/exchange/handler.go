package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/timebank/internal/exchange"
	"github.com/MrJamesThe3rd/timebank/internal/http/auth"
	"github.com/MrJamesThe3rd/timebank/internal/http/respond"
)

type Handler struct {
	engine *exchange.Engine
}

func NewHandler(engine *exchange.Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) ServiceRoutes(r chi.Router) {
	r.Post("/", h.createService)
	r.Get("/", h.listServices)
	r.Get("/{id}", h.getService)
	r.Patch("/{id}", h.updateService)
	r.Delete("/{id}", h.deleteService)
	r.Post("/{id}/start", h.startService)
	r.Post("/{id}/cancel", h.cancelService)
	r.Post("/{id}/complete", h.confirmServiceCompletion)
	r.Post("/{id}/close", h.closeService)
	r.Get("/{id}/join-requests", h.listServiceJoinRequests)
	r.Post("/{id}/join-requests", h.submitJoinRequest)
	r.Get("/{id}/transactions", h.listServiceTransactions)
}

func (h *Handler) JoinRequestRoutes(r chi.Router) {
	r.Get("/", h.listMyJoinRequests)
	r.Patch("/{id}/status", h.updateJoinRequestStatus)
	r.Post("/{id}/cancel", h.cancelJoinRequest)
}

func (h *Handler) TransactionRoutes(r chi.Router) {
	r.Get("/", h.listMyTransactions)
	r.Get("/{id}", h.getTransaction)
	r.Post("/{id}/confirm", h.confirmTransaction)
	r.Patch("/{id}", h.updateTransaction)
}

type createServiceRequest struct {
	Title             string               `json:"title"`
	Description       string               `json:"description"`
	Category          string               `json:"category"`
	Tags              []string             `json:"tags"`
	Location          string               `json:"location"`
	Type              exchange.ServiceType `json:"type"`
	MaxParticipants   int                  `json:"max_participants"`
	EstimatedDuration decimal.Decimal      `json:"estimated_duration"`
	Deadline          *time.Time           `json:"deadline,omitempty"`
}

func (h *Handler) createService(w http.ResponseWriter, r *http.Request) {
	var req createServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s, err := h.engine.CreateService(r.Context(), actorID(r), exchange.CreateServiceParams{
		Title:             req.Title,
		Description:       req.Description,
		Category:          req.Category,
		Tags:              req.Tags,
		Location:          req.Location,
		Type:              req.Type,
		MaxParticipants:   req.MaxParticipants,
		EstimatedDuration: req.EstimatedDuration,
		Deadline:          req.Deadline,
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toServiceResponse(s))
}

func (h *Handler) listServices(w http.ResponseWriter, r *http.Request) {
	filter, err := parseServiceFilter(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	services, err := h.engine.ListServices(r.Context(), filter)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toServiceResponseList(services))
}

func parseServiceFilter(r *http.Request) (exchange.ServiceFilter, error) {
	q := r.URL.Query()
	filter := exchange.ServiceFilter{}

	if s := q.Get("owner_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return filter, fmt.Errorf("%w: owner_id %q", exchange.ErrInvalidInput, s)
		}

		filter.OwnerID = &id
	}

	if s := q.Get("status"); s != "" {
		for part := range strings.SplitSeq(s, ",") {
			st, err := exchange.ParseServiceStatus(strings.TrimSpace(part))
			if err != nil {
				return filter, err
			}

			filter.Statuses = append(filter.Statuses, st)
		}
	}

	if s := q.Get("type"); s != "" {
		t, err := exchange.ParseServiceType(s)
		if err != nil {
			return filter, err
		}

		filter.Type = &t
	}

	if s := q.Get("tag"); s != "" {
		filter.Tag = new(strings.ToLower(strings.TrimSpace(s)))
	}

	if s := q.Get("location"); s != "" {
		filter.Location = new(s)
	}

	if s := q.Get("category"); s != "" {
		filter.Category = new(s)
	}

	return filter, nil
}

func (h *Handler) getService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	s, err := h.engine.GetService(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toServiceResponse(s))
}

type updateServiceRequest struct {
	Title             *string          `json:"title,omitempty"`
	Description       *string          `json:"description,omitempty"`
	Category          *string          `json:"category,omitempty"`
	Tags              *[]string        `json:"tags,omitempty"`
	Location          *string          `json:"location,omitempty"`
	MaxParticipants   *int             `json:"max_participants,omitempty"`
	EstimatedDuration *decimal.Decimal `json:"estimated_duration,omitempty"`
	Deadline          *time.Time       `json:"deadline,omitempty"`
}

func (h *Handler) updateService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req updateServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s, err := h.engine.UpdateService(r.Context(), id, actorID(r), exchange.UpdateServiceParams{
		Title:             req.Title,
		Description:       req.Description,
		Category:          req.Category,
		Tags:              req.Tags,
		Location:          req.Location,
		MaxParticipants:   req.MaxParticipants,
		EstimatedDuration: req.EstimatedDuration,
		Deadline:          req.Deadline,
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toServiceResponse(s))
}

func (h *Handler) deleteService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.engine.DeleteService(r.Context(), id, actorID(r)); err != nil {
		respond.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) startService(w http.ResponseWriter, r *http.Request) {
	h.serviceAction(w, r, h.engine.StartService)
}

func (h *Handler) cancelService(w http.ResponseWriter, r *http.Request) {
	h.serviceAction(w, r, h.engine.CancelService)
}

func (h *Handler) closeService(w http.ResponseWriter, r *http.Request) {
	h.serviceAction(w, r, h.engine.CompleteUnmatched)
}

// serviceAction runs a lifecycle operation that takes the service id and the
// caller and returns the updated service.
func (h *Handler) serviceAction(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, id, actorID uuid.UUID) (*exchange.Service, error),
) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	s, err := op(r.Context(), id, actorID(r))
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toServiceResponse(s))
}

func (h *Handler) confirmServiceCompletion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	c, err := h.engine.ConfirmServiceCompletion(r.Context(), id, actorID(r))
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toConfirmationResponse(c))
}

func (h *Handler) listServiceJoinRequests(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	jrs, err := h.engine.ListServiceJoinRequests(r.Context(), id, actorID(r))
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toJoinRequestResponseList(jrs))
}

type submitJoinRequestRequest struct {
	Message string `json:"message"`
}

func (h *Handler) submitJoinRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req submitJoinRequestRequest
	if err := decodeOptional(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	jr, err := h.engine.SubmitJoinRequest(r.Context(), id, actorID(r), req.Message)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toJoinRequestResponse(jr))
}

func (h *Handler) listServiceTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	txs, err := h.engine.ListServiceTransactions(r.Context(), id, actorID(r))
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toTransactionResponseList(txs))
}

func (h *Handler) listMyJoinRequests(w http.ResponseWriter, r *http.Request) {
	jrs, err := h.engine.ListMyJoinRequests(r.Context(), actorID(r))
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toJoinRequestResponseList(jrs))
}

type updateJoinRequestStatusRequest struct {
	Status   exchange.JoinRequestStatus `json:"status"`
	Response string                     `json:"response"`
}

func (h *Handler) updateJoinRequestStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req updateJoinRequestStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	jr, err := h.engine.UpdateJoinRequestStatus(r.Context(), id, actorID(r), req.Status, req.Response)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toJoinRequestResponse(jr))
}

func (h *Handler) cancelJoinRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	jr, err := h.engine.CancelJoinRequest(r.Context(), id, actorID(r))
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toJoinRequestResponse(jr))
}

func (h *Handler) listMyTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.engine.ListMyTransactions(r.Context(), actorID(r))
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toTransactionResponseList(txs))
}

// getTransaction is visible to the two parties only.
func (h *Handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	t, err := h.engine.GetTransaction(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	if !t.IsParty(actorID(r)) {
		respond.Error(w, r, fmt.Errorf("%w: not a party to transaction %s", exchange.ErrForbidden, id))
		return
	}

	respond.JSON(w, http.StatusOK, toTransactionResponse(t))
}

type confirmTransactionRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) confirmTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req confirmTransactionRequest
	if err := decodeOptional(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s, err := h.engine.ConfirmTransaction(r.Context(), id, actorID(r), req.Notes)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toSettlementResponse(s))
}

type updateTransactionRequest struct {
	Status exchange.TransactionStatus `json:"status"`
}

func (h *Handler) updateTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req updateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	t, err := h.engine.UpdateTransaction(r.Context(), id, actorID(r), req.Status)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toTransactionResponse(t))
}

func actorID(r *http.Request) uuid.UUID {
	actor, _ := auth.ActorFrom(r.Context())
	return actor.ID
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return uuid.Nil, false
	}

	return id, true
}

// decodeOptional decodes a JSON body that callers may leave out.
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}

	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	return nil
}
