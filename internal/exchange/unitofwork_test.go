package exchange_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/timebank/internal/exchange"
	"github.com/MrJamesThe3rd/timebank/internal/timebank"
)

func newMockEngine(t *testing.T) (*exchange.Engine, *exchange.MockRepository, *exchange.MockTx) {
	t.Helper()

	ctrl := gomock.NewController(t)
	repo := exchange.NewMockRepository(ctrl)
	tx := exchange.NewMockTx(ctrl)

	return exchange.NewEngine(repo, timebank.NewLedger(decimal.NewFromInt(100))), repo, tx
}

func TestEngine_UnitOfWork_BeginFails(t *testing.T) {
	engine, repo, _ := newMockEngine(t)
	boom := errors.New("connection refused")

	repo.EXPECT().Begin(gomock.Any()).Return(nil, boom)

	_, err := engine.StartService(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, boom)
}

func TestEngine_UnitOfWork_RollsBackOnStorageError(t *testing.T) {
	engine, repo, tx := newMockEngine(t)
	boom := errors.New("disk full")

	owner, applicant := uuid.New(), uuid.New()
	s := &exchange.Service{ID: uuid.New(), OwnerID: owner, Status: exchange.ServiceActive, MaxParticipants: 1}
	jr := &exchange.JoinRequest{ID: uuid.New(), ServiceID: s.ID, RequesterID: applicant, Status: exchange.JoinPending}

	gomock.InOrder(
		repo.EXPECT().GetJoinRequest(gomock.Any(), jr.ID).Return(jr, nil),
		repo.EXPECT().Begin(gomock.Any()).Return(tx, nil),
		tx.EXPECT().LockService(gomock.Any(), s.ID).Return(s, nil),
		tx.EXPECT().LockJoinRequest(gomock.Any(), jr.ID).Return(jr, nil),
		tx.EXPECT().AddParticipant(gomock.Any(), s.ID, applicant).Return(boom),
		tx.EXPECT().Rollback().Return(nil),
	)
	tx.EXPECT().Commit().Times(0)

	_, err := engine.ApproveJoinRequest(context.Background(), jr.ID, owner, "")
	assert.ErrorIs(t, err, boom)
}

func TestEngine_UnitOfWork_CommitFails(t *testing.T) {
	engine, repo, tx := newMockEngine(t)
	boom := errors.New("serialization failure")

	owner := uuid.New()
	s := &exchange.Service{
		ID: uuid.New(), OwnerID: owner, Status: exchange.ServiceActive,
		MaxParticipants: 1, MatchedUserIDs: []uuid.UUID{uuid.New()},
	}

	repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	tx.EXPECT().LockService(gomock.Any(), s.ID).Return(s, nil)
	tx.EXPECT().UpdateService(gomock.Any(), gomock.Any()).Return(nil)
	tx.EXPECT().Commit().Return(boom)
	tx.EXPECT().Rollback().Return(nil)

	_, err := engine.StartService(context.Background(), s.ID, owner)
	assert.ErrorIs(t, err, boom)
}

// A concurrent settlement completed the transaction after it was locked: the
// conditional completion reports no row and the transfer is rolled back.
func TestEngine_ConfirmTransaction_LostCompletionRace(t *testing.T) {
	engine, repo, tx := newMockEngine(t)

	provider, requester := uuid.New(), uuid.New()
	s := &exchange.Service{ID: uuid.New(), OwnerID: provider, Title: "Tiling", Status: exchange.ServiceInProgress}
	current := &exchange.Transaction{
		ID: uuid.New(), ServiceID: s.ID, ProviderID: provider, RequesterID: requester,
		Hours: decimal.NewFromInt(2), Status: exchange.TxPending, RequesterConfirmed: true,
	}
	locked := *current

	accounts := map[uuid.UUID]*timebank.Account{
		provider:  {UserID: provider, Balance: decimal.NewFromInt(1)},
		requester: {UserID: requester, Balance: decimal.NewFromInt(5)},
	}

	repo.EXPECT().GetTransaction(gomock.Any(), current.ID).Return(current, nil)
	repo.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	tx.EXPECT().LockService(gomock.Any(), s.ID).Return(s, nil)
	tx.EXPECT().LockTransaction(gomock.Any(), current.ID).Return(&locked, nil)
	tx.EXPECT().UpdateTransaction(gomock.Any(), gomock.Any()).Return(nil)
	tx.EXPECT().LockAccount(gomock.Any(), gomock.Any()).Times(2).
		DoAndReturn(func(_ context.Context, id uuid.UUID) (*timebank.Account, error) {
			return accounts[id], nil
		})

	balances := make(map[uuid.UUID]decimal.Decimal)
	tx.EXPECT().UpdateBalance(gomock.Any(), gomock.Any(), gomock.Any()).Times(2).
		DoAndReturn(func(_ context.Context, id uuid.UUID, balance decimal.Decimal) error {
			balances[id] = balance
			return nil
		})
	tx.EXPECT().AppendEntry(gomock.Any(), gomock.Any()).Times(2).Return(nil)
	tx.EXPECT().CompleteTransaction(gomock.Any(), current.ID).Return(false, nil)
	tx.EXPECT().Rollback().Return(nil)
	tx.EXPECT().Commit().Times(0)

	_, err := engine.ConfirmTransaction(context.Background(), current.ID, provider, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, exchange.ErrInvalidState)

	assert.True(t, balances[requester].Equal(decimal.NewFromInt(3)))
	assert.True(t, balances[provider].Equal(decimal.NewFromInt(3)))
}
