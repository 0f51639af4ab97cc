package ecopoints

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/greenledger/internal/chain"
	"github.com/mmeshcher/greenledger/internal/chain/mocks"
	"github.com/mmeshcher/greenledger/internal/gamification"
	"github.com/mmeshcher/greenledger/internal/model"
	"github.com/mmeshcher/greenledger/internal/repository/memstore"
	"github.com/mmeshcher/greenledger/internal/store"
)

const testAddress = "0x1111111111111111111111111111111111111111"

func newEconomy(minter chain.Minter, threshold int64) (*Economy, *memstore.Store) {
	s := memstore.New()
	e := NewEconomy(s, gamification.NewEngine(nil), minter, Config{
		ConversionRate: decimal.NewFromInt(1),
		AutoThreshold:  threshold,
		Multiplier:     DefaultMultiplier,
	}, nil)
	return e, s
}

func setBalance(t *testing.T, s store.Store, userID, points int64) {
	t.Helper()
	err := s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.SavePointsBalance(ctx, model.PointsBalance{UserID: userID, TotalPoints: points, LifetimePoints: points})
	})
	require.NoError(t, err)
}

func connect(t *testing.T, s store.Store, userID int64) {
	t.Helper()
	err := s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.SetChainAddress(ctx, model.OwnerUser, userID, testAddress)
	})
	require.NoError(t, err)
}

func addSaving(t *testing.T, s store.Store, userID int64, saved float64) int64 {
	t.Helper()
	var recordID int64
	err := s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		ft, err := tx.CreateFinancialTransaction(ctx, model.FinancialTransaction{UserID: userID, Amount: 50000, Status: model.TransactionCompleted})
		if err != nil {
			return err
		}
		rec, err := tx.CreateCarbonRecord(ctx, model.CarbonRecord{UserID: userID, TransactionID: ft.ID, Amount: 50000})
		if err != nil {
			return err
		}
		recordID = rec.ID
		_, err = tx.CreateCarbonSaving(ctx, model.CarbonSaving{UserID: userID, CarbonRecordID: rec.ID, SavedAmount: saved})
		return err
	})
	require.NoError(t, err)
	return recordID
}

func TestPointsForSaving(t *testing.T) {
	tests := []struct {
		saved float64
		want  int64
	}{
		{0.15, 15},
		{0.004, 0},
		{0.005, 1},
		{1.234, 123},
		{0, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, PointsForSaving(tt.saved, DefaultMultiplier), "saved=%v", tt.saved)
	}
}

func TestAwardForCarbonSaving(t *testing.T) {
	e, s := newEconomy(nil, 0)
	ctx := context.Background()
	recordID := addSaving(t, s, 1, 0.15)

	entry, err := e.AwardForCarbonSaving(ctx, 1, 1, recordID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, int64(15), entry.Points)
	assert.Equal(t, model.ActionReward, entry.Action)

	bal, err := e.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(15), bal.TotalPoints)
	assert.Equal(t, int64(15), bal.LifetimePoints)
}

func TestAwardForCarbonSaving_NoSaving(t *testing.T) {
	e, _ := newEconomy(nil, 0)

	entry, err := e.AwardForCarbonSaving(context.Background(), 1, 1, 42)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestAwardPoints_NonPositive(t *testing.T) {
	e, _ := newEconomy(nil, 0)
	ctx := context.Background()

	entry, err := e.AwardPoints(ctx, 1, 0, model.ActionBonus, "noop", nil)
	require.NoError(t, err)
	assert.Nil(t, entry)

	history, err := e.History(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRedeemPoints(t *testing.T) {
	e, s := newEconomy(nil, 0)
	ctx := context.Background()
	setBalance(t, s, 1, 100)

	_, err := e.RedeemPoints(ctx, 1, 150, "too much")
	require.ErrorIs(t, err, model.ErrInsufficientPoints)

	_, err = e.RedeemPoints(ctx, 1, 0, "zero")
	require.ErrorIs(t, err, model.ErrInvalidAmount)

	entry, err := e.RedeemPoints(ctx, 1, 40, "coffee")
	require.NoError(t, err)
	assert.Equal(t, int64(-40), entry.Points)
	assert.Equal(t, model.ActionRedemption, entry.Action)

	bal, err := e.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(60), bal.TotalPoints)
	assert.Equal(t, int64(100), bal.LifetimePoints)
}

func TestPointsConservation(t *testing.T) {
	e, _ := newEconomy(nil, 0)
	ctx := context.Background()

	for _, p := range []int64{30, 70, 15} {
		_, err := e.AwardPoints(ctx, 1, p, model.ActionBonus, "bonus", nil)
		require.NoError(t, err)
	}
	_, err := e.RedeemPoints(ctx, 1, 45, "gift")
	require.NoError(t, err)

	history, err := e.History(ctx, 1, 0)
	require.NoError(t, err)

	var sum int64
	for _, h := range history {
		sum += h.Points
	}

	bal, err := e.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, sum, bal.TotalPoints)
	assert.Equal(t, int64(70), bal.TotalPoints)
	assert.Equal(t, int64(115), bal.LifetimePoints)
}

func TestAwardPoints_ChallengeRewardAwardedOnce(t *testing.T) {
	e, s := newEconomy(nil, 0)
	ctx := context.Background()

	err := s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.UpsertChallenge(ctx, model.Challenge{
			Code:         "EARN_100",
			Name:         "Earn 100 points",
			Type:         model.ChallengePointsEarned,
			Goal:         100,
			RewardPoints: 100,
			Active:       true,
		})
	})
	require.NoError(t, err)

	for range 3 {
		_, err := e.AwardPoints(ctx, 1, 60, model.ActionReward, "saving", nil)
		require.NoError(t, err)
	}

	history, err := e.History(ctx, 1, 0)
	require.NoError(t, err)

	rewards := 0
	for _, h := range history {
		if strings.HasPrefix(h.Description, "CHALLENGE:") {
			rewards++
			assert.Equal(t, int64(100), h.Points)
		}
	}
	assert.Equal(t, 1, rewards)

	bal, err := e.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(280), bal.LifetimePoints)
	assert.Equal(t, int64(280), bal.TotalPoints)
}

func TestConvertibleFor(t *testing.T) {
	assert.Equal(t, Convertible{Available: 200, Remainder: 50, Threshold: 100}, ConvertibleFor(250, 100))
	assert.Equal(t, Convertible{Available: 0, Remainder: 99, Threshold: 100}, ConvertibleFor(99, 100))
	assert.Equal(t, Convertible{Threshold: 0}, ConvertibleFor(500, 0))
}

func TestAutoConvertThreshold(t *testing.T) {
	tests := []struct {
		name          string
		points        int64
		wantConverted int
		wantLeft      int64
	}{
		{name: "stops below threshold", points: 950, wantConverted: 9, wantLeft: 50},
		{name: "capped", points: 5000, wantConverted: MaxAutoConversions, wantLeft: 4000},
		{name: "below threshold", points: 99, wantConverted: 0, wantLeft: 99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			minter := chain.NewDemoMinter()
			e, s := newEconomy(minter, 100)
			ctx := context.Background()
			setBalance(t, s, 1, tt.points)
			connect(t, s, 1)

			n, err := e.AutoConvertThreshold(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.wantConverted, n)

			bal, err := e.Balance(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLeft, bal.TotalPoints)

			convs, err := e.Conversions(ctx, 1, 0)
			require.NoError(t, err)
			require.Len(t, convs, tt.wantConverted)
			for _, c := range convs {
				assert.Equal(t, model.ConversionMinted, c.Status)
				assert.Equal(t, int64(100), c.Points)
			}

			onChain, err := minter.BalanceOf(ctx, testAddress)
			require.NoError(t, err)
			want := chain.ToBaseUnits(decimal.NewFromInt(int64(tt.wantConverted) * 100))
			assert.Equal(t, 0, want.Cmp(onChain))
		})
	}
}

func TestAutoConvertThreshold_NoAddress(t *testing.T) {
	e, s := newEconomy(chain.NewDemoMinter(), 100)
	setBalance(t, s, 1, 500)

	n, err := e.AutoConvertThreshold(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAwardPoints_TriggersAutoConversion(t *testing.T) {
	e, s := newEconomy(chain.NewDemoMinter(), 100)
	ctx := context.Background()
	connect(t, s, 1)

	_, err := e.AwardPoints(ctx, 1, 250, model.ActionBonus, "bonus", nil)
	require.NoError(t, err)

	bal, err := e.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(50), bal.TotalPoints)
	assert.Equal(t, int64(250), bal.LifetimePoints)
}

func TestConvertPointsToTokens_NotConnected(t *testing.T) {
	e, s := newEconomy(chain.NewDemoMinter(), 0)
	ctx := context.Background()
	setBalance(t, s, 1, 500)

	_, err := e.ConvertPointsToTokens(ctx, 1, 100, "")
	require.ErrorIs(t, err, model.ErrWalletNotConnected)

	_, err = e.ConvertPointsToTokens(ctx, 1, 100, "0xnothex")
	require.ErrorIs(t, err, model.ErrInvalidAddress)

	bal, err := e.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(500), bal.TotalPoints)
}

func TestConvertPointsToTokens_Insufficient(t *testing.T) {
	e, s := newEconomy(chain.NewDemoMinter(), 0)
	ctx := context.Background()
	setBalance(t, s, 1, 50)

	_, err := e.ConvertPointsToTokens(ctx, 1, 100, testAddress)
	require.ErrorIs(t, err, model.ErrInsufficientPoints)

	convs, err := e.Conversions(ctx, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestConvertPointsToTokens_MintFailureReconciled(t *testing.T) {
	minter := new(mocks.Minter)
	e, s := newEconomy(minter, 0)
	ctx := context.Background()
	setBalance(t, s, 1, 300)

	wantAmount := mock.MatchedBy(func(a *big.Int) bool {
		return a.Cmp(chain.ToBaseUnits(decimal.NewFromInt(100))) == 0
	})
	minter.On("Mint", mock.Anything, testAddress, wantAmount).Return(nil, errors.New("gateway down")).Once()
	minter.On("Mint", mock.Anything, testAddress, wantAmount).Return(&chain.Receipt{TxHash: "0xabc", BlockNumber: 7}, nil).Once()

	conv, err := e.ConvertPointsToTokens(ctx, 1, 100, testAddress)
	require.ErrorIs(t, err, model.ErrExternalService)
	require.NotNil(t, conv)
	assert.Equal(t, model.ConversionMintFailed, conv.Status)
	assert.Equal(t, 1, conv.Attempts)
	assert.Contains(t, conv.LastError, "gateway down")

	bal, err := e.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(200), bal.TotalPoints)

	n, err := e.ReconcileFailedMints(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	convs, err := e.Conversions(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, model.ConversionMinted, convs[0].Status)
	assert.Equal(t, 2, convs[0].Attempts)
	assert.Equal(t, "0xabc", convs[0].TxHash)
	assert.Equal(t, uint64(7), convs[0].BlockNumber)
	assert.Empty(t, convs[0].LastError)

	n, err = e.ReconcileFailedMints(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)

	bal, err = e.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(200), bal.TotalPoints)

	minter.AssertExpectations(t)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(model.ConversionRequested, model.ConversionDebited))
	assert.True(t, CanTransition(model.ConversionDebited, model.ConversionMinted))
	assert.True(t, CanTransition(model.ConversionDebited, model.ConversionMintFailed))
	assert.True(t, CanTransition(model.ConversionMintFailed, model.ConversionDebited))
	assert.False(t, CanTransition(model.ConversionMinted, model.ConversionDebited))
	assert.False(t, CanTransition(model.ConversionRequested, model.ConversionMinted))
}

func TestApplyRewardRules(t *testing.T) {
	e, s := newEconomy(nil, 0)
	ctx := context.Background()

	apply := func(saving float64) {
		addSaving(t, s, 1, saving)
		err := s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return e.ApplyRewardRulesTx(ctx, tx, 1, 1, saving)
		})
		require.NoError(t, err)
	}

	apply(0.15)
	bal, err := e.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(LowCarbonBonus+DailyActivityBonus), bal.TotalPoints)

	apply(0.05)
	bal, err = e.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(LowCarbonBonus+DailyActivityBonus), bal.TotalPoints)

	apply(5)
	bal, err = e.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2*LowCarbonBonus+DailyActivityBonus+MilestoneBonus), bal.TotalPoints)

	apply(0.2)
	bal, err = e.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3*LowCarbonBonus+DailyActivityBonus+MilestoneBonus), bal.TotalPoints)
}

func TestApplyRewardRules_NoSaving(t *testing.T) {
	e, s := newEconomy(nil, 0)
	ctx := context.Background()

	err := s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return e.ApplyRewardRulesTx(ctx, tx, 1, 1, 0)
	})
	require.NoError(t, err)

	history, err := e.History(ctx, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}
