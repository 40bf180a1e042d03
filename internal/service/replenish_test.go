package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avkuzmin/teleshop/internal/model"
)

type replenishEnv struct {
	db    *fakeDB
	users *fakeUsers
	reps  *fakeReplenishments
	refs  *fakeReferrals
	sink  *recordSink
	svc   *ReplenishService
}

func newReplenishEnv() *replenishEnv {
	e := &replenishEnv{
		db:    &fakeDB{},
		users: newFakeUsers(),
		reps:  newFakeReplenishments(),
		refs:  &fakeReferrals{},
		sink:  &recordSink{},
	}
	ledger := &fakeWalletRepo{}
	wallet := NewWalletService(e.db, e.users, ledger)
	referral := NewReferralService(e.db, e.users, e.refs, wallet, nil)
	e.svc = NewReplenishService(e.db, e.reps, e.users, wallet, referral, e.sink, 20*time.Minute, nil)
	return e
}

func TestReplenish_Create_AppliesCommission(t *testing.T) {
	e := newReplenishEnv()
	ctx := context.Background()
	e.users.byID[5] = &model.User{ID: 5}

	rp, err := e.svc.Create(ctx, 5, 1000, 5, "pay-1", "https://pay.example/1")
	require.NoError(t, err)
	require.Equal(t, int64(1000), rp.OriginAmount)
	require.Equal(t, int64(950), rp.Amount)
	require.Equal(t, model.ReplenishProcessing, rp.Status)
	require.NotNil(t, rp.ExpiresAt)
}

func TestReplenish_Apply_CreditsOnce(t *testing.T) {
	e := newReplenishEnv()
	ctx := context.Background()
	e.users.byID[5] = &model.User{ID: 5, Balance: 0}

	rp, err := e.svc.Create(ctx, 5, 700, 0, "pay-7", "")
	require.NoError(t, err)

	ev := model.PaymentEvent{ReplenishmentID: rp.ID, UserID: 5, Amount: 700}
	require.NoError(t, e.svc.Apply(ctx, ev))
	require.Equal(t, int64(700), e.users.byID[5].Balance)
	require.Equal(t, int64(700), e.users.byID[5].TotalReplenished)
	require.Equal(t, model.ReplenishCompleted, e.reps.byID[rp.ID].Status)
	require.Len(t, e.sink.completed, 1)
	require.Equal(t, int64(700), e.sink.completed[0].TotalReplenished)

	// Replayed webhook is a no-op
	require.NoError(t, e.svc.Apply(ctx, ev))
	require.Equal(t, int64(700), e.users.byID[5].Balance)
	require.Len(t, e.sink.completed, 1)
}

func TestReplenish_Apply_AccruesReferralCommission(t *testing.T) {
	e := newReplenishEnv()
	ctx := context.Background()

	parentID := int64(1)
	e.users.byID[1] = &model.User{ID: 1, TotalReplenished: 60000}
	e.users.byID[5] = &model.User{ID: 5, ReferrerID: &parentID}
	e.refs.levels = []model.ReferralLevel{
		{Level: 1, AmountOfAchievement: 0, Percent: 5},
		{Level: 2, AmountOfAchievement: 50000, Percent: 7},
	}

	rp, err := e.svc.Create(ctx, 5, 1000, 0, "pay-9", "")
	require.NoError(t, err)
	require.NoError(t, e.svc.Apply(ctx, model.PaymentEvent{ReplenishmentID: rp.ID, UserID: 5, Amount: 1000}))

	// Parent sits at level 2, so 7% of the credited amount
	require.Equal(t, int64(70), e.users.byID[1].Balance)
	require.Len(t, e.refs.accruals, 1)
	require.Equal(t, 2, e.refs.accruals[0].Level)
	require.Equal(t, int64(5), e.refs.accruals[0].ChildID)
}

func TestReplenish_Apply_FailureMarksErrorAndEmits(t *testing.T) {
	e := newReplenishEnv()
	ctx := context.Background()
	e.users.byID[5] = &model.User{ID: 5}

	rp, err := e.svc.Create(ctx, 5, 300, 0, "pay-3", "")
	require.NoError(t, err)
	// The user disappears before the credit lands.
	delete(e.users.byID, 5)

	require.Error(t, e.svc.Apply(ctx, model.PaymentEvent{ReplenishmentID: rp.ID, UserID: 5, Amount: 300}))
	require.Equal(t, model.ReplenishError, e.reps.byID[rp.ID].Status)
	require.Len(t, e.sink.failed, 1)
	require.Empty(t, e.sink.completed)
}

func TestReplenish_ExpireStale(t *testing.T) {
	e := newReplenishEnv()
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)
	e.reps.byID[1] = &model.Replenishment{ID: 1, UserID: 5, Status: model.ReplenishProcessing, ExpiresAt: &past}

	n, err := e.svc.ExpireStale(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.Equal(t, model.ReplenishError, e.reps.byID[1].Status)
}

func TestReplenish_Create_Validation(t *testing.T) {
	e := newReplenishEnv()
	ctx := context.Background()
	e.users.byID[5] = &model.User{ID: 5}

	_, err := e.svc.Create(ctx, 5, 0, 0, "p", "")
	require.Error(t, err)
	_, err = e.svc.Create(ctx, 5, 100, 101, "p", "")
	require.Error(t, err)
}
