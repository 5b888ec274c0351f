package timebank_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/timebank/internal/timebank"
)

var (
	payer = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	payee = uuid.MustParse("00000000-0000-0000-0000-000000000002")
)

type decimalMatcher struct {
	want decimal.Decimal
}

func decEq(v int64) gomock.Matcher {
	return decimalMatcher{want: decimal.NewFromInt(v)}
}

func (m decimalMatcher) Matches(x any) bool {
	d, ok := x.(decimal.Decimal)
	return ok && d.Equal(m.want)
}

func (m decimalMatcher) String() string {
	return fmt.Sprintf("is decimal %s", m.want)
}

func account(id uuid.UUID, balance int64) *timebank.Account {
	return &timebank.Account{UserID: id, Balance: decimal.NewFromInt(balance)}
}

func TestLedger_Transfer(t *testing.T) {
	serviceID := uuid.New()

	type testCase struct {
		name       string
		maxBalance int64
		amount     int64
		setupMock  func(m *timebank.MockTx)
		wantReason timebank.FailureReason
		wantErr    bool
	}

	tests := []testCase{
		{
			name:       "Success",
			maxBalance: 100,
			amount:     2,
			setupMock: func(m *timebank.MockTx) {
				gomock.InOrder(
					m.EXPECT().LockAccount(gomock.Any(), payer).Return(account(payer, 5), nil),
					m.EXPECT().LockAccount(gomock.Any(), payee).Return(account(payee, 10), nil),
					m.EXPECT().UpdateBalance(gomock.Any(), payer, decEq(3)).Return(nil),
					m.EXPECT().UpdateBalance(gomock.Any(), payee, decEq(12)).Return(nil),
				)
				m.EXPECT().AppendEntry(gomock.Any(), gomock.Any()).Times(2).Return(nil)
			},
		},
		{
			name:       "InsufficientBalance",
			maxBalance: 100,
			amount:     2,
			setupMock: func(m *timebank.MockTx) {
				m.EXPECT().LockAccount(gomock.Any(), payer).Return(account(payer, 1), nil)
				m.EXPECT().LockAccount(gomock.Any(), payee).Return(account(payee, 0), nil)
				m.EXPECT().AppendFailure(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, f *timebank.Failure) error {
						assert.Equal(t, payer, f.UserID)
						assert.True(t, f.Amount.Equal(decimal.NewFromInt(-2)))
						assert.True(t, f.BalanceAtFailure.Equal(decimal.NewFromInt(1)))
						return nil
					})
			},
			wantReason: timebank.ReasonInsufficientBalance,
		},
		{
			name:       "ProviderBalanceLimit",
			maxBalance: 100,
			amount:     5,
			setupMock: func(m *timebank.MockTx) {
				m.EXPECT().LockAccount(gomock.Any(), payer).Return(account(payer, 20), nil)
				m.EXPECT().LockAccount(gomock.Any(), payee).Return(account(payee, 98), nil)
				m.EXPECT().AppendFailure(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, f *timebank.Failure) error {
						assert.Equal(t, payee, f.UserID)
						assert.True(t, f.BalanceAtFailure.Equal(decimal.NewFromInt(98)))
						return nil
					})
			},
			wantReason: timebank.ReasonProviderBalanceLimit,
		},
		{
			name:   "NoCapWhenMaxBalanceUnset",
			amount: 5,
			setupMock: func(m *timebank.MockTx) {
				m.EXPECT().LockAccount(gomock.Any(), payer).Return(account(payer, 20), nil)
				m.EXPECT().LockAccount(gomock.Any(), payee).Return(account(payee, 98), nil)
				m.EXPECT().UpdateBalance(gomock.Any(), payer, decEq(15)).Return(nil)
				m.EXPECT().UpdateBalance(gomock.Any(), payee, decEq(103)).Return(nil)
				m.EXPECT().AppendEntry(gomock.Any(), gomock.Any()).Times(2).Return(nil)
			},
		},
		{
			name:       "PayerNotFound",
			maxBalance: 100,
			amount:     1,
			setupMock: func(m *timebank.MockTx) {
				m.EXPECT().LockAccount(gomock.Any(), payer).Return(nil, timebank.ErrAccountNotFound)
				m.EXPECT().LockAccount(gomock.Any(), payee).Return(account(payee, 0), nil)
				m.EXPECT().AppendFailure(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, f *timebank.Failure) error {
						assert.Equal(t, payer, f.UserID)
						return nil
					})
			},
			wantReason: timebank.ReasonUserNotFound,
		},
		{
			name:       "PayeeNotFound",
			maxBalance: 100,
			amount:     1,
			setupMock: func(m *timebank.MockTx) {
				m.EXPECT().LockAccount(gomock.Any(), payer).Return(account(payer, 4), nil)
				m.EXPECT().LockAccount(gomock.Any(), payee).Return(nil, timebank.ErrAccountNotFound)
				m.EXPECT().AppendFailure(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, f *timebank.Failure) error {
						assert.Equal(t, payee, f.UserID)
						return nil
					})
			},
			wantReason: timebank.ReasonUserNotFound,
		},
		{
			name:       "NonPositiveAmount",
			maxBalance: 100,
			amount:     0,
			setupMock: func(m *timebank.MockTx) {
				m.EXPECT().LockAccount(gomock.Any(), payer).Return(account(payer, 4), nil)
				m.EXPECT().LockAccount(gomock.Any(), payee).Return(account(payee, 4), nil)
				m.EXPECT().AppendFailure(gomock.Any(), gomock.Any()).Return(nil)
			},
			wantReason: timebank.ReasonOther,
		},
		{
			name:       "LockError",
			maxBalance: 100,
			amount:     1,
			setupMock: func(m *timebank.MockTx) {
				m.EXPECT().LockAccount(gomock.Any(), payer).Return(nil, errors.New("db error"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			tx := timebank.NewMockTx(ctrl)
			tt.setupMock(tx)

			ledger := timebank.NewLedger(decimal.NewFromInt(tt.maxBalance))
			out, err := ledger.Transfer(context.Background(), tx, timebank.TransferParams{
				From:        payer,
				To:          payee,
				Amount:      decimal.NewFromInt(tt.amount),
				Description: "Gardening",
				ServiceID:   &serviceID,
			})

			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, out)

				return
			}

			require.NoError(t, err)

			if tt.wantReason != "" {
				require.NotNil(t, out.Failure)
				assert.False(t, out.Settled())
				assert.Equal(t, tt.wantReason, out.Failure.Reason)
				assert.Equal(t, &serviceID, out.Failure.ServiceID)
				assert.Nil(t, out.Debit)

				return
			}

			assert.True(t, out.Settled())
			require.NotNil(t, out.Debit)
			require.NotNil(t, out.Credit)
			assert.True(t, out.Debit.Amount.Add(out.Credit.Amount).IsZero())
			assert.Equal(t, payer, out.Debit.UserID)
			assert.Equal(t, payee, out.Credit.UserID)
		})
	}
}

func TestLedger_Transfer_LocksInIDOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	tx := timebank.NewMockTx(ctrl)

	// From sorts after To here, so To is locked first.
	gomock.InOrder(
		tx.EXPECT().LockAccount(gomock.Any(), payer).Return(account(payer, 10), nil),
		tx.EXPECT().LockAccount(gomock.Any(), payee).Return(account(payee, 10), nil),
	)
	tx.EXPECT().UpdateBalance(gomock.Any(), gomock.Any(), gomock.Any()).Times(2).Return(nil)
	tx.EXPECT().AppendEntry(gomock.Any(), gomock.Any()).Times(2).Return(nil)

	out, err := timebank.NewLedger(decimal.NewFromInt(100)).Transfer(context.Background(), tx, timebank.TransferParams{
		From:   payee,
		To:     payer,
		Amount: decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	assert.True(t, out.Settled())
}
