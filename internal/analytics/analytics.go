// Package analytics aggregates exchange activity into an administrative
// report.
package analytics

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/MrJamesThe3rd/timebank/internal/exchange"
	"github.com/MrJamesThe3rd/timebank/internal/timebank"
)

const uncategorized = "Uncategorized"

//go:generate mockgen -source=analytics.go -destination=analytics_mock.go -package=analytics

type ExchangeReader interface {
	ListServices(ctx context.Context, filter exchange.ServiceFilter) ([]*exchange.Service, error)
	ListJoinRequests(ctx context.Context, filter exchange.JoinRequestFilter) ([]*exchange.JoinRequest, error)
	ListTransactions(ctx context.Context, filter exchange.TransactionFilter) ([]*exchange.Transaction, error)
}

type FailureReader interface {
	ListFailures(ctx context.Context, filter timebank.FailureFilter) ([]*timebank.Failure, error)
}

type Report struct {
	GeneratedAt   time.Time          `json:"generated_at" yaml:"generated_at"`
	Services      ServiceStats       `json:"services" yaml:"services"`
	Participation ParticipationStats `json:"participation" yaml:"participation"`
	Transactions  TransactionStats   `json:"transactions" yaml:"transactions"`
	Settlement    SettlementStats    `json:"settlement" yaml:"settlement"`
	Categories    []CategoryStats    `json:"categories" yaml:"categories"`
}

type ServiceStats struct {
	Total            int            `json:"total" yaml:"total"`
	ByStatus         map[string]int `json:"by_status" yaml:"by_status"`
	ByType           map[string]int `json:"by_type" yaml:"by_type"`
	WithParticipants int            `json:"with_participants" yaml:"with_participants"`
}

// ParticipationStats measures how postings attract and keep members.
// ApprovalRate counts decided requests only. CompletionRate counts services
// that reached an end state.
type ParticipationStats struct {
	RequestsByStatus map[string]int  `json:"requests_by_status" yaml:"requests_by_status"`
	ApprovalRate     decimal.Decimal `json:"approval_rate" yaml:"approval_rate"`
	AverageFillRate  decimal.Decimal `json:"average_fill_rate" yaml:"average_fill_rate"`
	CompletionRate   decimal.Decimal `json:"completion_rate" yaml:"completion_rate"`
}

type TransactionStats struct {
	Total          int             `json:"total" yaml:"total"`
	ByStatus       map[string]int  `json:"by_status" yaml:"by_status"`
	HoursExchanged decimal.Decimal `json:"hours_exchanged" yaml:"hours_exchanged"`
	HoursPending   decimal.Decimal `json:"hours_pending" yaml:"hours_pending"`
}

type SettlementStats struct {
	Failures    int             `json:"failures" yaml:"failures"`
	ByReason    map[string]int  `json:"by_reason" yaml:"by_reason"`
	FailureRate decimal.Decimal `json:"failure_rate" yaml:"failure_rate"`
}

// CategoryStats groups services whose categories differ only in case or
// surrounding space.
type CategoryStats struct {
	Name           string          `json:"name" yaml:"name"`
	Services       int             `json:"services" yaml:"services"`
	Completed      int             `json:"completed" yaml:"completed"`
	HoursExchanged decimal.Decimal `json:"hours_exchanged" yaml:"hours_exchanged"`
}

type Service struct {
	exchange ExchangeReader
	failures FailureReader
}

func NewService(ex ExchangeReader, failures FailureReader) *Service {
	return &Service{exchange: ex, failures: failures}
}

// Report builds the report as of now.
func (s *Service) Report(ctx context.Context, now time.Time) (*Report, error) {
	services, err := s.exchange.ListServices(ctx, exchange.ServiceFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing services: %w", err)
	}

	requests, err := s.exchange.ListJoinRequests(ctx, exchange.JoinRequestFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing join requests: %w", err)
	}

	txs, err := s.exchange.ListTransactions(ctx, exchange.TransactionFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}

	failures, err := s.failures.ListFailures(ctx, timebank.FailureFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing failures: %w", err)
	}

	r := &Report{
		GeneratedAt:   now.UTC(),
		Services:      serviceStats(services),
		Participation: participationStats(services, requests),
		Transactions:  transactionStats(txs),
	}

	r.Settlement = settlementStats(failures, r.Transactions.ByStatus[string(exchange.TxCompleted)])
	r.Categories = categoryStats(services, txs)

	return r, nil
}

func serviceStats(services []*exchange.Service) ServiceStats {
	st := ServiceStats{
		Total:    len(services),
		ByStatus: make(map[string]int),
		ByType:   make(map[string]int),
	}

	for _, svc := range services {
		st.ByStatus[string(svc.Status)]++
		st.ByType[string(svc.Type)]++

		if len(svc.MatchedUserIDs) > 0 {
			st.WithParticipants++
		}
	}

	return st
}

func participationStats(services []*exchange.Service, requests []*exchange.JoinRequest) ParticipationStats {
	st := ParticipationStats{
		RequestsByStatus: make(map[string]int),
		ApprovalRate:     decimal.Zero,
		AverageFillRate:  decimal.Zero,
		CompletionRate:   decimal.Zero,
	}

	for _, jr := range requests {
		st.RequestsByStatus[string(jr.Status)]++
	}

	approved := st.RequestsByStatus[string(exchange.JoinApproved)]
	st.ApprovalRate = ratio(approved, approved+st.RequestsByStatus[string(exchange.JoinRejected)])

	fill := decimal.Zero

	var completed, ended int

	for _, svc := range services {
		if svc.MaxParticipants > 0 {
			fill = fill.Add(decimal.NewFromInt(int64(len(svc.MatchedUserIDs))).
				DivRound(decimal.NewFromInt(int64(svc.MaxParticipants)), 4))
		}

		if svc.Status.Terminal() {
			ended++
		}

		if svc.Status == exchange.ServiceCompleted {
			completed++
		}
	}

	if len(services) > 0 {
		st.AverageFillRate = fill.DivRound(decimal.NewFromInt(int64(len(services))), 4)
	}

	st.CompletionRate = ratio(completed, ended)

	return st
}

// ratio is n/d to four places, or zero when d is zero.
func ratio(n, d int) decimal.Decimal {
	if d == 0 {
		return decimal.Zero
	}

	return decimal.NewFromInt(int64(n)).DivRound(decimal.NewFromInt(int64(d)), 4)
}

func transactionStats(txs []*exchange.Transaction) TransactionStats {
	st := TransactionStats{
		Total:          len(txs),
		ByStatus:       make(map[string]int),
		HoursExchanged: decimal.Zero,
		HoursPending:   decimal.Zero,
	}

	for _, t := range txs {
		st.ByStatus[string(t.Status)]++

		switch t.Status {
		case exchange.TxCompleted:
			st.HoursExchanged = st.HoursExchanged.Add(t.Hours)
		case exchange.TxPending:
			st.HoursPending = st.HoursPending.Add(t.Hours)
		}
	}

	return st
}

// settlementStats rates failures against every settlement attempt, taking
// completed transactions as the successful ones.
func settlementStats(failures []*timebank.Failure, completed int) SettlementStats {
	st := SettlementStats{
		Failures: len(failures),
		ByReason: make(map[string]int),
	}

	for _, f := range failures {
		st.ByReason[string(f.Reason)]++
	}

	st.FailureRate = ratio(len(failures), len(failures)+completed)

	return st
}

func categoryStats(services []*exchange.Service, txs []*exchange.Transaction) []CategoryStats {
	fold := cases.Fold()
	title := cases.Title(language.English)

	byKey := make(map[string]*CategoryStats)
	serviceKey := make(map[uuid.UUID]string, len(services))

	for _, svc := range services {
		key := fold.String(strings.TrimSpace(svc.Category))
		serviceKey[svc.ID] = key

		cs, ok := byKey[key]
		if !ok {
			name := uncategorized
			if key != "" {
				name = title.String(key)
			}

			cs = &CategoryStats{Name: name, HoursExchanged: decimal.Zero}
			byKey[key] = cs
		}

		cs.Services++

		if svc.Status == exchange.ServiceCompleted {
			cs.Completed++
		}
	}

	for _, t := range txs {
		if t.Status != exchange.TxCompleted {
			continue
		}

		if cs, ok := byKey[serviceKey[t.ServiceID]]; ok {
			cs.HoursExchanged = cs.HoursExchanged.Add(t.Hours)
		}
	}

	out := make([]CategoryStats, 0, len(byKey))
	for _, cs := range byKey {
		out = append(out, *cs)
	}

	slices.SortFunc(out, func(a, b CategoryStats) int {
		if c := cmp.Compare(b.Services, a.Services); c != 0 {
			return c
		}

		return cmp.Compare(a.Name, b.Name)
	})

	return out
}
