package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/timebank/internal/analytics"
	"github.com/MrJamesThe3rd/timebank/internal/exchange"
	apihttp "github.com/MrJamesThe3rd/timebank/internal/http"
	analyticshttp "github.com/MrJamesThe3rd/timebank/internal/http/analytics"
	"github.com/MrJamesThe3rd/timebank/internal/http/auth"
	exchangehttp "github.com/MrJamesThe3rd/timebank/internal/http/exchange"
	timebankhttp "github.com/MrJamesThe3rd/timebank/internal/http/timebank"
	"github.com/MrJamesThe3rd/timebank/internal/memstore"
	"github.com/MrJamesThe3rd/timebank/internal/timebank"
)

type api struct {
	t       *testing.T
	handler http.Handler
	auth    *auth.Authenticator
}

func newAPI(t *testing.T) *api {
	t.Helper()

	store := memstore.New()
	authn := auth.New("test-secret")

	engine := exchange.NewEngine(store, timebank.NewLedger(decimal.NewFromInt(100)))
	ledger := timebank.NewService(store, decimal.NewFromInt(3))
	reports := analytics.NewService(store, store)

	handler := apihttp.New(
		apihttp.Options{Auth: authn, AllowedOrigins: []string{"*"}, Timeout: 5 * time.Second},
		exchangehttp.NewHandler(engine),
		timebankhttp.NewHandler(ledger),
		analyticshttp.NewHandler(reports),
	)

	return &api{t: t, handler: handler, auth: authn}
}

func (a *api) token(userID uuid.UUID, role string) string {
	a.t.Helper()

	tok, err := a.auth.Issue(userID, role, time.Hour)
	require.NoError(a.t, err)

	return tok
}

func (a *api) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))

	return v
}

type idBody struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`
}

type accountBody struct {
	Account struct {
		Balance decimal.Decimal `json:"balance"`
	} `json:"account"`
	Transactions []struct {
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description"`
	} `json:"transactions"`
}

func TestRouter_Health(t *testing.T) {
	a := newAPI(t)

	rec := a.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_Authentication(t *testing.T) {
	a := newAPI(t)
	member := a.token(uuid.New(), "")

	tests := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{name: "missing token", path: "/api/v1/services", status: http.StatusUnauthorized},
		{name: "garbage token", path: "/api/v1/services", token: "nope", status: http.StatusUnauthorized},
		{name: "member lists services", path: "/api/v1/services", token: member, status: http.StatusOK},
		{name: "member cannot read report", path: "/api/v1/analytics/report", token: member, status: http.StatusForbidden},
		{name: "member cannot list failures", path: "/api/v1/timebank/failed-transactions", token: member, status: http.StatusForbidden},
		{name: "no account yet", path: "/api/v1/timebank", token: member, status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(http.MethodGet, tt.path, tt.token, nil)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestRouter_ExchangeLifecycle(t *testing.T) {
	a := newAPI(t)

	provider := a.token(uuid.New(), "")
	requester := a.token(uuid.New(), "")
	admin := a.token(uuid.New(), auth.RoleAdmin)

	for _, tok := range []string{provider, requester} {
		rec := a.do(http.MethodPost, "/api/v1/timebank/account", tok, nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := a.do(http.MethodPost, "/api/v1/timebank/account", provider, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(http.MethodPost, "/api/v1/services", provider, map[string]any{
		"title":              "Bike repair",
		"category":           "repairs",
		"tags":               []string{"Bikes", " bikes "},
		"type":               "offer",
		"max_participants":   1,
		"estimated_duration": "2",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	service := decode[idBody](t, rec)
	assert.Equal(t, "active", service.Status)

	rec = a.do(http.MethodPost, "/api/v1/services/"+service.ID.String()+"/join-requests", requester, map[string]string{"message": "please"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	jr := decode[idBody](t, rec)

	rec = a.do(http.MethodPost, "/api/v1/services/"+service.ID.String()+"/join-requests", requester, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(http.MethodPatch, "/api/v1/join-requests/"+jr.ID.String()+"/status", requester, map[string]string{"status": "approved"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(http.MethodPatch, "/api/v1/join-requests/"+jr.ID.String()+"/status", provider, map[string]string{"status": "approved"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "approved", decode[idBody](t, rec).Status)

	rec = a.do(http.MethodGet, "/api/v1/transactions", requester, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	txs := decode[[]idBody](t, rec)
	require.Len(t, txs, 1)
	assert.Equal(t, "pending", txs[0].Status)

	rec = a.do(http.MethodGet, "/api/v1/transactions/"+txs[0].ID.String(), a.token(uuid.New(), ""), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(http.MethodPost, "/api/v1/services/"+service.ID.String()+"/complete", requester, nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "confirming before start")

	rec = a.do(http.MethodPost, "/api/v1/services/"+service.ID.String()+"/start", provider, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPost, "/api/v1/services/"+service.ID.String()+"/complete", requester, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPost, "/api/v1/services/"+service.ID.String()+"/complete", provider, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	confirmation := decode[struct {
		Service     idBody `json:"service"`
		Settlements []struct {
			Settled bool `json:"settled"`
		} `json:"settlements"`
	}](t, rec)
	assert.Equal(t, "completed", confirmation.Service.Status)
	require.Len(t, confirmation.Settlements, 1)
	assert.True(t, confirmation.Settlements[0].Settled)

	rec = a.do(http.MethodGet, "/api/v1/timebank", provider, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decimal.NewFromInt(5).Equal(decode[accountBody](t, rec).Account.Balance))

	rec = a.do(http.MethodGet, "/api/v1/timebank", requester, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	statement := decode[accountBody](t, rec)
	assert.True(t, decimal.NewFromInt(1).Equal(statement.Account.Balance))
	assert.Len(t, statement.Transactions, 2)

	rec = a.do(http.MethodGet, "/api/v1/timebank/transactions?limit=10", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]json.RawMessage](t, rec), 4)

	rec = a.do(http.MethodGet, "/api/v1/analytics/report", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	report := decode[analytics.Report](t, rec)
	assert.Equal(t, 1, report.Services.Total)
	assert.True(t, decimal.NewFromInt(2).Equal(report.Transactions.HoursExchanged))
	assert.Equal(t, map[string]int{"approved": 1}, report.Participation.RequestsByStatus)
	assert.True(t, decimal.NewFromInt(1).Equal(report.Participation.ApprovalRate))
	assert.True(t, decimal.NewFromInt(1).Equal(report.Participation.CompletionRate))

	rec = a.do(http.MethodGet, "/api/v1/analytics/report?format=yaml", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "generated_at:")

	rec = a.do(http.MethodGet, "/api/v1/analytics/report?format=xml", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_FailedSettlementIsReported(t *testing.T) {
	a := newAPI(t)

	owner := a.token(uuid.New(), "")
	helper := a.token(uuid.New(), "")
	admin := a.token(uuid.New(), auth.RoleAdmin)

	for _, tok := range []string{owner, helper} {
		require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/api/v1/timebank/account", tok, nil).Code)
	}

	// A need costing more than the owner's starting hours.
	rec := a.do(http.MethodPost, "/api/v1/services", owner, map[string]any{
		"title":              "Move house",
		"type":               "need",
		"max_participants":   1,
		"estimated_duration": "8",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	service := decode[idBody](t, rec)

	rec = a.do(http.MethodPost, "/api/v1/services/"+service.ID.String()+"/join-requests", helper, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	jr := decode[idBody](t, rec)

	rec = a.do(http.MethodPatch, "/api/v1/join-requests/"+jr.ID.String()+"/status", owner, map[string]string{"status": "approved"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(http.MethodGet, "/api/v1/services/"+service.ID.String()+"/transactions", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	txs := decode[[]idBody](t, rec)
	require.Len(t, txs, 1)

	path := "/api/v1/transactions/" + txs[0].ID.String() + "/confirm"

	rec = a.do(http.MethodPost, path, helper, map[string]string{"notes": "done"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decode[struct {
		Settled bool `json:"settled"`
	}](t, rec).Settled)

	rec = a.do(http.MethodPost, path, owner, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	settlement := decode[struct {
		Transaction   idBody `json:"transaction"`
		Settled       bool   `json:"settled"`
		FailureReason string `json:"failure_reason"`
	}](t, rec)
	assert.False(t, settlement.Settled)
	assert.Equal(t, "insufficient_balance", settlement.FailureReason)
	assert.Equal(t, "pending", settlement.Transaction.Status)

	rec = a.do(http.MethodGet, "/api/v1/timebank/failed-transactions?reason=insufficient_balance", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]json.RawMessage](t, rec), 1)

	rec = a.do(http.MethodGet, "/api/v1/timebank/failed-transactions?reason=bogus", admin, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
