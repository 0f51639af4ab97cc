package wallet

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/greenledger/internal/model"
	"github.com/mmeshcher/greenledger/internal/repository/memstore"
	"github.com/mmeshcher/greenledger/internal/store"
)

func newLedger(t *testing.T) (*Ledger, *memstore.Store) {
	t.Helper()
	s := memstore.New()
	return NewLedger(s, "greenpay", nil), s
}

func fund(t *testing.T, l *Ledger, handle string, amount int64) {
	t.Helper()
	_, err := l.Deposit(context.Background(), handle, amount)
	require.NoError(t, err)
}

func totalBalance(t *testing.T, s store.Store) int64 {
	t.Helper()
	var sum int64
	err := s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		sum, err = tx.SumWalletBalances(ctx)
		return err
	})
	require.NoError(t, err)
	return sum
}

func TestEnsureWallet_Idempotent(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	w1, err := l.EnsureWallet(ctx, model.OwnerUser, 7, "Alice.Smith")
	require.NoError(t, err)
	w2, err := l.EnsureWallet(ctx, model.OwnerUser, 7, "something else")
	require.NoError(t, err)

	assert.Equal(t, "alicesmith@greenpay", w1.Handle)
	assert.Equal(t, w1.ID, w2.ID)
	assert.Equal(t, w1.Handle, w2.Handle)
	assert.Zero(t, w1.Balance)
}

func TestEnsureWallet_HandleCollision(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	a, err := l.EnsureWallet(ctx, model.OwnerUser, 1, "alice")
	require.NoError(t, err)
	b, err := l.EnsureWallet(ctx, model.OwnerUser, 2, "ALICE")
	require.NoError(t, err)
	c, err := l.EnsureWallet(ctx, model.OwnerUser, 3, "a-l-i-c-e")
	require.NoError(t, err)
	d, err := l.EnsureWallet(ctx, model.OwnerUser, 4, "???")
	require.NoError(t, err)

	assert.Equal(t, "alice@greenpay", a.Handle)
	assert.Equal(t, "alice1@greenpay", b.Handle)
	assert.Equal(t, "alice2@greenpay", c.Handle)
	assert.Equal(t, "user@greenpay", d.Handle)
}

func TestEnsureDefaultMerchant(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	m1, err := l.EnsureDefaultMerchant(ctx)
	require.NoError(t, err)
	m2, err := l.EnsureDefaultMerchant(ctx)
	require.NoError(t, err)

	assert.Equal(t, "merchant@greenpay", m1.Handle)
	assert.Equal(t, model.OwnerMerchant, m1.OwnerType)
	assert.Equal(t, m1.ID, m2.ID)
}

func TestTransfer_OK(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	a, err := l.EnsureWallet(ctx, model.OwnerUser, 1, "a")
	require.NoError(t, err)
	b, err := l.EnsureWallet(ctx, model.OwnerUser, 2, "b")
	require.NoError(t, err)
	fund(t, l, a.Handle, 1500)

	lt, err := l.Transfer(ctx, a.Handle, b.Handle, 1000)
	require.NoError(t, err)
	assert.Equal(t, model.LedgerSuccess, lt.Status)
	assert.NotNil(t, lt.CompletedAt)
	assert.Contains(t, lt.Reference, "TXN_")

	balA, err := l.Balance(ctx, a.Handle)
	require.NoError(t, err)
	balB, err := l.Balance(ctx, b.Handle)
	require.NoError(t, err)
	assert.Equal(t, int64(500), balA)
	assert.Equal(t, int64(1000), balB)

	history, err := l.History(ctx, a.Handle, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, lt.Reference, history[0].Reference)
	assert.Equal(t, model.ExternalHandle, history[1].SenderHandle)
}

func TestTransfer_InsufficientFunds(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	a, err := l.EnsureWallet(ctx, model.OwnerUser, 1, "a")
	require.NoError(t, err)
	b, err := l.EnsureWallet(ctx, model.OwnerUser, 2, "b")
	require.NoError(t, err)
	fund(t, l, a.Handle, 500)

	_, err = l.Transfer(ctx, a.Handle, b.Handle, 1000)
	require.ErrorIs(t, err, model.ErrInsufficientFunds)

	balA, _ := l.Balance(ctx, a.Handle)
	balB, _ := l.Balance(ctx, b.Handle)
	assert.Equal(t, int64(500), balA)
	assert.Zero(t, balB)

	history, err := l.History(ctx, b.Handle, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestTransfer_Validation(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	a, err := l.EnsureWallet(ctx, model.OwnerUser, 1, "a")
	require.NoError(t, err)

	tests := []struct {
		name     string
		sender   string
		receiver string
		amount   int64
		wantErr  error
	}{
		{name: "zero amount", sender: a.Handle, receiver: "x@greenpay", amount: 0, wantErr: model.ErrInvalidAmount},
		{name: "negative amount", sender: a.Handle, receiver: "x@greenpay", amount: -5, wantErr: model.ErrInvalidAmount},
		{name: "unknown receiver", sender: a.Handle, receiver: "x@greenpay", amount: 1, wantErr: model.ErrNotFound},
		{name: "unknown sender", sender: "y@greenpay", receiver: a.Handle, amount: 1, wantErr: model.ErrNotFound},
		{name: "self transfer", sender: a.Handle, receiver: a.Handle, amount: 1, wantErr: model.ErrInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Transfer(ctx, tt.sender, tt.receiver, tt.amount)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTransfer_Conservation(t *testing.T) {
	l, s := newLedger(t)
	ctx := context.Background()

	handles := make([]string, 0, 5)
	for i := int64(1); i <= 5; i++ {
		w, err := l.EnsureWallet(ctx, model.OwnerUser, i, fmt.Sprintf("user%d", i))
		require.NoError(t, err)
		fund(t, l, w.Handle, 1000)
		handles = append(handles, w.Handle)
	}

	before := totalBalance(t, s)
	require.Equal(t, int64(5000), before)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(seed))
			for i := 0; i < 50; i++ {
				from := handles[rnd.Intn(len(handles))]
				to := handles[rnd.Intn(len(handles))]
				_, _ = l.Transfer(ctx, from, to, int64(rnd.Intn(700)+1))
			}
		}(int64(g))
	}
	wg.Wait()

	assert.Equal(t, before, totalBalance(t, s))

	for _, h := range handles {
		bal, err := l.Balance(ctx, h)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, bal, int64(0))
	}
}

func TestDeposit_Validation(t *testing.T) {
	l, _ := newLedger(t)

	_, err := l.Deposit(context.Background(), "missing@greenpay", 10)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = l.Deposit(context.Background(), "missing@greenpay", 0)
	assert.ErrorIs(t, err, model.ErrInvalidAmount)
}
