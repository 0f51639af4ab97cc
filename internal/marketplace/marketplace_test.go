package marketplace

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/greenledger/internal/chain"
	"github.com/mmeshcher/greenledger/internal/chain/mocks"
	"github.com/mmeshcher/greenledger/internal/model"
	"github.com/mmeshcher/greenledger/internal/repository/memstore"
	"github.com/mmeshcher/greenledger/internal/store"
	"github.com/mmeshcher/greenledger/internal/wallet"
)

const (
	sellerID     int64 = 1
	buyerID      int64 = 7
	buyerAddress       = "0x2222222222222222222222222222222222222222"
	userAddress        = "0x3333333333333333333333333333333333333333"
)

func newMarketplace(minter chain.Minter) (*Marketplace, *memstore.Store) {
	s := memstore.New()
	ledger := wallet.NewLedger(s, "greenpay", nil)
	return New(s, ledger, minter, DefaultKgPerCredit, nil), s
}

func addSaving(t *testing.T, s store.Store, userID int64, saved float64) int64 {
	t.Helper()
	var id int64
	err := s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		ft, err := tx.CreateFinancialTransaction(ctx, model.FinancialTransaction{UserID: userID, Amount: 100000, Status: model.TransactionCompleted})
		if err != nil {
			return err
		}
		rec, err := tx.CreateCarbonRecord(ctx, model.CarbonRecord{UserID: userID, TransactionID: ft.ID, Amount: 100000})
		if err != nil {
			return err
		}
		sv, err := tx.CreateCarbonSaving(ctx, model.CarbonSaving{UserID: userID, CarbonRecordID: rec.ID, SavedAmount: saved})
		if err != nil {
			return err
		}
		id = sv.ID
		return nil
	})
	require.NoError(t, err)
	return id
}

func setAddress(t *testing.T, s store.Store, owner model.OwnerType, id int64, address string) {
	t.Helper()
	err := s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.SetChainAddress(ctx, owner, id, address)
	})
	require.NoError(t, err)
}

func availableListing(t *testing.T, m *Marketplace, savingID int64, credits float64, price int64) *model.Listing {
	t.Helper()
	ctx := context.Background()
	l, err := m.CreateListing(ctx, sellerID, savingID, credits, price)
	require.NoError(t, err)
	l, err = m.ReviewListing(ctx, l.ID, true)
	require.NoError(t, err)
	return l
}

func TestGenerateCredits(t *testing.T) {
	m, s := newMarketplace(nil)
	ctx := context.Background()
	addSaving(t, s, sellerID, 600)
	addSaving(t, s, sellerID, 900)

	h, err := m.GenerateCredits(ctx, sellerID)
	require.NoError(t, err)
	assert.InDelta(t, 1500, h.CarbonKg, 1e-9)
	assert.InDelta(t, 1.5, h.Credits, 1e-9)

	h, err = m.GenerateCredits(ctx, sellerID)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, h.Credits, 1e-9)

	addSaving(t, s, 2, 500)
	n, err := m.GenerateAllCredits(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sum, err := m.Summary(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 2000, sum.TotalSavedKg, 1e-9)
	assert.InDelta(t, 2, sum.TotalCredits, 1e-9)
	assert.InDelta(t, 2, sum.IssuedCredits, 1e-9)
}

func TestCreateListing_Validation(t *testing.T) {
	m, s := newMarketplace(nil)
	ctx := context.Background()
	savingID := addSaving(t, s, sellerID, 10)

	tests := []struct {
		name    string
		seller  int64
		saving  int64
		credits float64
		price   int64
		wantErr error
	}{
		{name: "zero credits", seller: sellerID, saving: savingID, credits: 0, price: 100, wantErr: model.ErrInvalidAmount},
		{name: "zero price", seller: sellerID, saving: savingID, credits: 1, price: 0, wantErr: model.ErrInvalidAmount},
		{name: "foreign saving", seller: 99, saving: savingID, credits: 1, price: 100, wantErr: model.ErrNotFound},
		{name: "missing saving", seller: sellerID, saving: 404, credits: 1, price: 100, wantErr: model.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.CreateListing(ctx, tt.seller, tt.saving, tt.credits, tt.price)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	l, err := m.CreateListing(ctx, sellerID, savingID, 10, 250)
	require.NoError(t, err)
	assert.Equal(t, model.ListingPending, l.Status)

	listings, err := m.AvailableListings(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, listings)
}

func TestReviewListing(t *testing.T) {
	m, s := newMarketplace(nil)
	ctx := context.Background()
	savingID := addSaving(t, s, sellerID, 10)

	l, err := m.CreateListing(ctx, sellerID, savingID, 5, 100)
	require.NoError(t, err)

	rejected, err := m.ReviewListing(ctx, l.ID, false)
	require.NoError(t, err)
	assert.Equal(t, model.ListingRejected, rejected.Status)

	_, err = m.ReviewListing(ctx, l.ID, true)
	require.ErrorIs(t, err, model.ErrInvalidState)

	_, err = m.ReviewListing(ctx, 404, true)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestCreateOrder(t *testing.T) {
	m, s := newMarketplace(nil)
	ctx := context.Background()
	l := availableListing(t, m, addSaving(t, s, sellerID, 10), 10, 250)

	_, err := m.CreateOrder(ctx, buyerID, l.ID, 9.5)
	require.ErrorIs(t, err, model.ErrInvalidAmount)

	o, err := m.CreateOrder(ctx, buyerID, l.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, model.OrderPending, o.Status)
	assert.Equal(t, int64(2500), o.TotalPrice)

	err = s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.GetListing(ctx, l.ID, false)
		if err != nil {
			return err
		}
		assert.Equal(t, model.ListingSold, got.Status)
		return nil
	})
	require.NoError(t, err)

	_, err = m.CreateOrder(ctx, 8, l.ID, 10)
	require.ErrorIs(t, err, model.ErrInvalidState)

	_, err = m.CreateOrder(ctx, buyerID, 404, 10)
	require.ErrorIs(t, err, model.ErrNotFound)

	orders, err := m.Orders(ctx, buyerID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
}

func TestTotalPrice(t *testing.T) {
	assert.Equal(t, int64(2500), TotalPrice(250, 10))
	assert.Equal(t, int64(334), TotalPrice(1000, 0.3335))
	assert.Equal(t, int64(2), TotalPrice(3, 0.5))
}

func TestSettle(t *testing.T) {
	m, s := newMarketplace(chain.NewDemoMinter())
	ctx := context.Background()
	savingID := addSaving(t, s, sellerID, 10)
	l := availableListing(t, m, savingID, 10, 250)
	setAddress(t, s, model.OwnerCompany, buyerID, buyerAddress)

	o, err := m.CreateOrder(ctx, buyerID, l.ID, 10)
	require.NoError(t, err)

	settled, err := m.Settle(ctx, o.ID, "pay_123")
	require.NoError(t, err)
	assert.Equal(t, model.OrderCompleted, settled.Status)
	assert.True(t, settled.Settled)
	require.NotNil(t, settled.TransferHash)
	require.NotNil(t, settled.PaymentRef)
	assert.Equal(t, "pay_123", *settled.PaymentRef)

	err = s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sv, err := tx.GetSaving(ctx, savingID, false)
		if err != nil {
			return err
		}
		require.NotNil(t, sv.OwnerType)
		assert.Equal(t, model.OwnerCompany, *sv.OwnerType)
		assert.Equal(t, buyerID, *sv.OwnerID)

		w, err := tx.GetWalletByOwner(ctx, model.OwnerUser, sellerID)
		if err != nil {
			return err
		}
		assert.Equal(t, int64(2500), w.Balance)
		assert.Equal(t, "user1@greenpay", w.Handle)
		return nil
	})
	require.NoError(t, err)

	_, err = m.Settle(ctx, o.ID, "pay_123")
	require.ErrorIs(t, err, model.ErrAlreadySettled)

	_, err = m.CompleteOrder(ctx, o.ID, "")
	require.ErrorIs(t, err, model.ErrAlreadyCompleted)
}

func TestSettle_TransferFailureReconciled(t *testing.T) {
	minter := new(mocks.Minter)
	m, s := newMarketplace(minter)
	ctx := context.Background()
	savingID := addSaving(t, s, sellerID, 10)
	l := availableListing(t, m, savingID, 10, 250)
	setAddress(t, s, model.OwnerCompany, buyerID, buyerAddress)

	minter.On("Mint", mock.Anything, buyerAddress, mock.Anything).Return(nil, errors.New("rpc timeout")).Once()
	minter.On("Mint", mock.Anything, buyerAddress, mock.Anything).Return(&chain.Receipt{TxHash: "0xfeed"}, nil).Once()

	o, err := m.CreateOrder(ctx, buyerID, l.ID, 10)
	require.NoError(t, err)

	_, err = m.Settle(ctx, o.ID, "")
	require.ErrorIs(t, err, model.ErrExternalService)

	err = s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.GetOrder(ctx, o.ID, false)
		if err != nil {
			return err
		}
		assert.Equal(t, model.OrderCompleted, got.Status)
		assert.False(t, got.Settled)

		sv, err := tx.GetSaving(ctx, savingID, false)
		if err != nil {
			return err
		}
		assert.Nil(t, sv.OwnerType)

		_, err = tx.GetWalletByOwner(ctx, model.OwnerUser, sellerID)
		assert.ErrorIs(t, err, model.ErrNotFound)
		return nil
	})
	require.NoError(t, err)

	n, err := m.ReconcileSettlements(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	orders, err := m.Orders(ctx, buyerID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.True(t, orders[0].Settled)
	assert.Equal(t, "0xfeed", *orders[0].TransferHash)

	minter.AssertExpectations(t)
}

func TestSettle_ConcurrentMintsOnce(t *testing.T) {
	minter := new(mocks.Minter)
	m, s := newMarketplace(minter)
	ctx := context.Background()
	l := availableListing(t, m, addSaving(t, s, sellerID, 10), 10, 250)
	setAddress(t, s, model.OwnerCompany, buyerID, buyerAddress)

	minter.On("Mint", mock.Anything, buyerAddress, mock.Anything).
		After(100*time.Millisecond).
		Return(&chain.Receipt{TxHash: "0xbeef"}, nil)

	o, err := m.CreateOrder(ctx, buyerID, l.ID, 10)
	require.NoError(t, err)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = m.Settle(ctx, o.ID, "pay")
		}()
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
			assert.True(t, errors.Is(err, model.ErrInvalidState) || errors.Is(err, model.ErrAlreadySettled), err)
		}
	}
	assert.Equal(t, 1, failed)
	minter.AssertNumberOfCalls(t, "Mint", 1)

	got, err := m.Order(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, got.Settled)
	assert.Nil(t, got.SettlingAt)
}

func TestReconcileSettlements_SkipsFreshClaim(t *testing.T) {
	minter := new(mocks.Minter)
	m, s := newMarketplace(minter)
	ctx := context.Background()
	l := availableListing(t, m, addSaving(t, s, sellerID, 10), 10, 250)
	setAddress(t, s, model.OwnerCompany, buyerID, buyerAddress)

	o, err := m.CreateOrder(ctx, buyerID, l.ID, 10)
	require.NoError(t, err)
	_, err = m.CompleteOrder(ctx, o.ID, "pay")
	require.NoError(t, err)

	claimedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err = s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.GetOrder(ctx, o.ID, true)
		if err != nil {
			return err
		}
		got.SettlingAt = &claimedAt
		return tx.SaveOrder(ctx, *got)
	})
	require.NoError(t, err)

	m.now = func() time.Time { return claimedAt.Add(time.Minute) }
	n, err := m.ReconcileSettlements(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	minter.AssertNotCalled(t, "Mint", mock.Anything, mock.Anything, mock.Anything)

	minter.On("Mint", mock.Anything, buyerAddress, mock.Anything).Return(&chain.Receipt{TxHash: "0xcafe"}, nil).Once()
	m.now = func() time.Time { return claimedAt.Add(SettlementLease + time.Minute) }
	n, err = m.ReconcileSettlements(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	minter.AssertExpectations(t)
}

func TestSettle_BuyerNotConnected(t *testing.T) {
	m, s := newMarketplace(chain.NewDemoMinter())
	ctx := context.Background()
	l := availableListing(t, m, addSaving(t, s, sellerID, 10), 10, 250)

	o, err := m.CreateOrder(ctx, buyerID, l.ID, 10)
	require.NoError(t, err)

	_, err = m.Settle(ctx, o.ID, "")
	require.ErrorIs(t, err, model.ErrWalletNotConnected)
}

func TestCreditPrice(t *testing.T) {
	m, _ := newMarketplace(nil)
	ctx := context.Background()

	price, err := m.CreditPrice(ctx)
	require.NoError(t, err)
	assert.Zero(t, price)

	require.ErrorIs(t, m.SetCreditPrice(ctx, 0), model.ErrInvalidAmount)
	require.NoError(t, m.SetCreditPrice(ctx, 1200))
	require.NoError(t, m.SetCreditPrice(ctx, 1500))

	price, err = m.CreditPrice(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), price)
}

func TestMintCredits_DeltaOnly(t *testing.T) {
	minter := new(mocks.Minter)
	m, s := newMarketplace(minter)
	ctx := context.Background()
	addSaving(t, s, sellerID, 2500)
	setAddress(t, s, model.OwnerUser, sellerID, userAddress)

	onChain := chain.ToBaseUnits(decimal.NewFromInt(2))
	minter.On("BalanceOf", mock.Anything, userAddress).Return(onChain, nil).Once()
	minter.On("Mint", mock.Anything, userAddress, mock.MatchedBy(func(a *big.Int) bool {
		return a.Cmp(chain.ToBaseUnits(decimal.RequireFromString("0.5"))) == 0
	})).Return(&chain.Receipt{TxHash: "0xdelta"}, nil).Once()

	res, err := m.MintCredits(ctx, sellerID)
	require.NoError(t, err)
	assert.True(t, res.Minted.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, "0xdelta", res.TxHash)

	minter.On("BalanceOf", mock.Anything, userAddress).Return(chain.ToBaseUnits(decimal.RequireFromString("2.5")), nil).Once()
	res, err = m.MintCredits(ctx, sellerID)
	require.NoError(t, err)
	assert.True(t, res.Minted.IsZero())

	minter.AssertExpectations(t)
}

func TestMintCredits_NotConnected(t *testing.T) {
	m, _ := newMarketplace(chain.NewDemoMinter())

	_, err := m.MintCredits(context.Background(), sellerID)
	require.ErrorIs(t, err, model.ErrWalletNotConnected)
}
