package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/greenledger/internal/model"
	"github.com/mmeshcher/greenledger/internal/store"
)

func TestInTx_RollbackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.CreateWallet(ctx, model.Wallet{OwnerType: model.OwnerUser, OwnerID: 1, Handle: "a@greenpay"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetWalletByHandle(ctx, "a@greenpay", false)
		return err
	})
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestInTx_CancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.InTx(ctx, func(context.Context, store.Tx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestUniqueConstraints(t *testing.T) {
	s := New()
	ctx := context.Background()
	ref := "pay_1"

	err := s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.CreateWallet(ctx, model.Wallet{OwnerType: model.OwnerUser, OwnerID: 1, Handle: "a@greenpay"}); err != nil {
			return err
		}
		_, err := tx.CreateFinancialTransaction(ctx, model.FinancialTransaction{UserID: 1, Amount: 10, PaymentRef: &ref})
		return err
	})
	require.NoError(t, err)

	err = s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.CreateWallet(ctx, model.Wallet{OwnerType: model.OwnerUser, OwnerID: 2, Handle: "a@greenpay"})
		return err
	})
	require.ErrorIs(t, err, model.ErrConflict)

	err = s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.CreateFinancialTransaction(ctx, model.FinancialTransaction{UserID: 2, Amount: 10, PaymentRef: &ref})
		return err
	})
	require.ErrorIs(t, err, model.ErrConflict)
}

func TestPointsBalance_ZeroWhenAbsent(t *testing.T) {
	s := New()

	err := s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		b, err := tx.GetPointsBalance(ctx, 42)
		if err != nil {
			return err
		}
		assert.Equal(t, int64(42), b.UserID)
		assert.Zero(t, b.TotalPoints)
		assert.Zero(t, b.LifetimePoints)
		return nil
	})
	require.NoError(t, err)
}
