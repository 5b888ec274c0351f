package analytics

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sebdah/goldie/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"gopkg.in/yaml.v3"

	"github.com/MrJamesThe3rd/timebank/internal/exchange"
	"github.com/MrJamesThe3rd/timebank/internal/timebank"
)

var reportTime = time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)

type dataset struct {
	services []*exchange.Service
	requests []*exchange.JoinRequest
	txs      []*exchange.Transaction
	failures []*timebank.Failure
}

func fixture() dataset {
	alice, bob := uuid.New(), uuid.New()

	garden := &exchange.Service{
		ID: uuid.New(), Category: "Gardening", Type: exchange.TypeOffer,
		Status: exchange.ServiceCompleted, MaxParticipants: 2,
		MatchedUserIDs: []uuid.UUID{alice, bob},
	}
	weeding := &exchange.Service{
		ID: uuid.New(), Category: " gardening ", Type: exchange.TypeNeed,
		Status: exchange.ServiceActive, MaxParticipants: 1,
	}
	tutoring := &exchange.Service{
		ID: uuid.New(), Category: "Tutoring", Type: exchange.TypeOffer,
		Status: exchange.ServiceCancelled, MaxParticipants: 1,
	}
	misc := &exchange.Service{
		ID: uuid.New(), Type: exchange.TypeOffer,
		Status: exchange.ServiceExpired, MaxParticipants: 4,
		MatchedUserIDs: []uuid.UUID{alice},
	}

	request := func(svc *exchange.Service, status exchange.JoinRequestStatus) *exchange.JoinRequest {
		return &exchange.JoinRequest{ID: uuid.New(), ServiceID: svc.ID, RequesterID: uuid.New(), Status: status}
	}

	requests := []*exchange.JoinRequest{
		request(garden, exchange.JoinApproved),
		request(garden, exchange.JoinApproved),
		request(weeding, exchange.JoinPending),
		request(weeding, exchange.JoinRejected),
		request(tutoring, exchange.JoinCancelled),
		request(misc, exchange.JoinApproved),
		request(misc, exchange.JoinRejected),
	}

	txs := []*exchange.Transaction{
		{ID: uuid.New(), ServiceID: garden.ID, Hours: decimal.NewFromInt(2), Status: exchange.TxCompleted},
		{ID: uuid.New(), ServiceID: garden.ID, Hours: decimal.NewFromInt(2), Status: exchange.TxPending},
		{ID: uuid.New(), ServiceID: misc.ID, Hours: decimal.RequireFromString("1.5"), Status: exchange.TxCancelled},
	}

	failures := []*timebank.Failure{
		{Reason: timebank.ReasonInsufficientBalance},
		{Reason: timebank.ReasonInsufficientBalance},
		{Reason: timebank.ReasonProviderBalanceLimit},
	}

	return dataset{
		services: []*exchange.Service{garden, weeding, tutoring, misc},
		requests: requests,
		txs:      txs,
		failures: failures,
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	ctrl := gomock.NewController(t)
	ex := NewMockExchangeReader(ctrl)
	fr := NewMockFailureReader(ctrl)

	data := fixture()

	ex.EXPECT().ListServices(gomock.Any(), exchange.ServiceFilter{}).Return(data.services, nil)
	ex.EXPECT().ListJoinRequests(gomock.Any(), exchange.JoinRequestFilter{}).Return(data.requests, nil)
	ex.EXPECT().ListTransactions(gomock.Any(), exchange.TransactionFilter{}).Return(data.txs, nil)
	fr.EXPECT().ListFailures(gomock.Any(), timebank.FailureFilter{}).Return(data.failures, nil)

	return NewService(ex, fr)
}

func TestService_Report(t *testing.T) {
	report, err := newTestService(t).Report(context.Background(), reportTime)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, report, FormatJSON))

	g := goldie.New(t, goldie.WithFixtureDir("testdata"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "report", buf.Bytes())
}

func TestService_Report_YAML(t *testing.T) {
	report, err := newTestService(t).Report(context.Background(), reportTime)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, report, FormatYAML))

	var decoded struct {
		Services struct {
			Total  int            `yaml:"total"`
			ByType map[string]int `yaml:"by_type"`
		} `yaml:"services"`
		Participation struct {
			RequestsByStatus map[string]int `yaml:"requests_by_status"`
			ApprovalRate     string         `yaml:"approval_rate"`
			AverageFillRate  string         `yaml:"average_fill_rate"`
			CompletionRate   string         `yaml:"completion_rate"`
		} `yaml:"participation"`
		Categories []struct {
			Name      string `yaml:"name"`
			Services  int    `yaml:"services"`
			Completed int    `yaml:"completed"`
		} `yaml:"categories"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))

	assert.Equal(t, 4, decoded.Services.Total)
	assert.Equal(t, map[string]int{"offer": 3, "need": 1}, decoded.Services.ByType)
	assert.Equal(t, map[string]int{"approved": 3, "pending": 1, "rejected": 2, "cancelled": 1},
		decoded.Participation.RequestsByStatus)
	assert.Equal(t, "0.6", decoded.Participation.ApprovalRate)
	assert.Equal(t, "0.3125", decoded.Participation.AverageFillRate)
	assert.Equal(t, "0.3333", decoded.Participation.CompletionRate)
	require.Len(t, decoded.Categories, 3)
	assert.Equal(t, "Gardening", decoded.Categories[0].Name)
	assert.Equal(t, 2, decoded.Categories[0].Services)
	assert.Equal(t, 1, decoded.Categories[0].Completed)
	assert.Zero(t, decoded.Categories[1].Completed)
}

func TestService_Report_Empty(t *testing.T) {
	ctrl := gomock.NewController(t)
	ex := NewMockExchangeReader(ctrl)
	fr := NewMockFailureReader(ctrl)

	ex.EXPECT().ListServices(gomock.Any(), gomock.Any()).Return(nil, nil)
	ex.EXPECT().ListJoinRequests(gomock.Any(), gomock.Any()).Return(nil, nil)
	ex.EXPECT().ListTransactions(gomock.Any(), gomock.Any()).Return(nil, nil)
	fr.EXPECT().ListFailures(gomock.Any(), gomock.Any()).Return(nil, nil)

	report, err := NewService(ex, fr).Report(context.Background(), reportTime)
	require.NoError(t, err)

	assert.Zero(t, report.Services.Total)
	assert.True(t, report.Participation.AverageFillRate.IsZero())
	assert.True(t, report.Participation.ApprovalRate.IsZero())
	assert.True(t, report.Participation.CompletionRate.IsZero())
	assert.Empty(t, report.Participation.RequestsByStatus)
	assert.True(t, report.Settlement.FailureRate.IsZero())
	assert.Empty(t, report.Categories)
}

func TestService_Report_Errors(t *testing.T) {
	boom := errors.New("connection reset")

	tests := []struct {
		name  string
		setup func(ex *MockExchangeReader, fr *MockFailureReader)
	}{
		{
			name: "Services",
			setup: func(ex *MockExchangeReader, _ *MockFailureReader) {
				ex.EXPECT().ListServices(gomock.Any(), gomock.Any()).Return(nil, boom)
			},
		},
		{
			name: "JoinRequests",
			setup: func(ex *MockExchangeReader, _ *MockFailureReader) {
				ex.EXPECT().ListServices(gomock.Any(), gomock.Any()).Return(nil, nil)
				ex.EXPECT().ListJoinRequests(gomock.Any(), gomock.Any()).Return(nil, boom)
			},
		},
		{
			name: "Transactions",
			setup: func(ex *MockExchangeReader, _ *MockFailureReader) {
				ex.EXPECT().ListServices(gomock.Any(), gomock.Any()).Return(nil, nil)
				ex.EXPECT().ListJoinRequests(gomock.Any(), gomock.Any()).Return(nil, nil)
				ex.EXPECT().ListTransactions(gomock.Any(), gomock.Any()).Return(nil, boom)
			},
		},
		{
			name: "Failures",
			setup: func(ex *MockExchangeReader, fr *MockFailureReader) {
				ex.EXPECT().ListServices(gomock.Any(), gomock.Any()).Return(nil, nil)
				ex.EXPECT().ListJoinRequests(gomock.Any(), gomock.Any()).Return(nil, nil)
				ex.EXPECT().ListTransactions(gomock.Any(), gomock.Any()).Return(nil, nil)
				fr.EXPECT().ListFailures(gomock.Any(), gomock.Any()).Return(nil, boom)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			ex := NewMockExchangeReader(ctrl)
			fr := NewMockFailureReader(ctrl)
			tt.setup(ex, fr)

			_, err := NewService(ex, fr).Report(context.Background(), reportTime)
			assert.ErrorIs(t, err, boom)
		})
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("yaml")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}
