// Package wallet реализует журнал переводов между внутренними кошельками.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/greenledger/internal/metrics"
	"github.com/mmeshcher/greenledger/internal/model"
	"github.com/mmeshcher/greenledger/internal/store"
	"github.com/mmeshcher/greenledger/internal/validation"
)

const (
	// DefaultMerchantID — идентификатор владельца кошелька торговца по умолчанию.
	DefaultMerchantID int64 = 1
	// DefaultMerchantHint — подсказка для платёжного идентификатора торговца по умолчанию.
	DefaultMerchantHint = "merchant"

	maxHandleAttempts = 1000
)

// UserHint возвращает подсказку платёжного идентификатора пользователя.
func UserHint(userID int64) string {
	return "user" + strconv.FormatInt(userID, 10)
}

// Ledger выполняет переводы и создание кошельков.
type Ledger struct {
	store  store.Store
	suffix string
	logger *zap.Logger
}

// NewLedger создаёт журнал кошельков. suffix — домен платёжных идентификаторов.
func NewLedger(s store.Store, suffix string, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: s, suffix: suffix, logger: logger}
}

// Transfer переводит amount минимальных единиц с кошелька sender на кошелёк receiver.
func (l *Ledger) Transfer(ctx context.Context, sender, receiver string, amount int64) (*model.LedgerTransaction, error) {
	var res *model.LedgerTransaction
	err := l.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		res, err = l.TransferTx(ctx, tx, sender, receiver, amount)
		return err
	})

	metrics.RecordTransfer(amount, err)
	if err != nil {
		return nil, err
	}

	l.logger.Info("transfer completed",
		zap.String("reference", res.Reference),
		zap.String("sender", sender),
		zap.String("receiver", receiver),
		zap.Int64("amount", amount),
	)
	return res, nil
}

// TransferTx выполняет перевод внутри уже открытой единицы работы.
// Кошельки блокируются в лексикографическом порядке платёжных идентификаторов.
func (l *Ledger) TransferTx(ctx context.Context, tx store.WalletStore, sender, receiver string, amount int64) (*model.LedgerTransaction, error) {
	if amount <= 0 {
		return nil, model.ErrInvalidAmount
	}
	if sender == receiver {
		return nil, fmt.Errorf("%w: sender and receiver are the same wallet", model.ErrInvalidState)
	}

	first, second := sender, receiver
	if second < first {
		first, second = second, first
	}

	locked := make(map[string]*model.Wallet, 2)
	for _, handle := range []string{first, second} {
		w, err := tx.GetWalletByHandle(ctx, handle, true)
		if err != nil {
			return nil, fmt.Errorf("wallet %s: %w", handle, err)
		}
		locked[handle] = w
	}

	from, to := locked[sender], locked[receiver]
	if from.Balance < amount {
		return nil, model.ErrInsufficientFunds
	}

	if err := tx.SetWalletBalance(ctx, from.ID, from.Balance-amount); err != nil {
		return nil, fmt.Errorf("debit sender: %w", err)
	}
	if err := tx.SetWalletBalance(ctx, to.ID, to.Balance+amount); err != nil {
		return nil, fmt.Errorf("credit receiver: %w", err)
	}

	return recordSuccess(ctx, tx, sender, receiver, amount)
}

// Deposit зачисляет внешние средства на кошелёк.
func (l *Ledger) Deposit(ctx context.Context, handle string, amount int64) (*model.LedgerTransaction, error) {
	var res *model.LedgerTransaction
	err := l.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		res, err = l.DepositTx(ctx, tx, handle, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// DepositTx зачисляет внешние средства внутри открытой единицы работы.
// В журнале отправителем указывается model.ExternalHandle.
func (l *Ledger) DepositTx(ctx context.Context, tx store.WalletStore, handle string, amount int64) (*model.LedgerTransaction, error) {
	if amount <= 0 {
		return nil, model.ErrInvalidAmount
	}

	w, err := tx.GetWalletByHandle(ctx, handle, true)
	if err != nil {
		return nil, fmt.Errorf("wallet %s: %w", handle, err)
	}

	if err := tx.SetWalletBalance(ctx, w.ID, w.Balance+amount); err != nil {
		return nil, fmt.Errorf("credit wallet: %w", err)
	}

	return recordSuccess(ctx, tx, model.ExternalHandle, handle, amount)
}

func recordSuccess(ctx context.Context, tx store.WalletStore, sender, receiver string, amount int64) (*model.LedgerTransaction, error) {
	now := time.Now().UTC()
	lt, err := tx.CreateLedgerTransaction(ctx, model.LedgerTransaction{
		Reference:      "TXN_" + uuid.NewString(),
		SenderHandle:   sender,
		ReceiverHandle: receiver,
		Amount:         amount,
		Status:         model.LedgerSuccess,
		CreatedAt:      now,
		CompletedAt:    &now,
	})
	if err != nil {
		return nil, fmt.Errorf("record ledger transaction: %w", err)
	}
	return lt, nil
}

// EnsureWallet возвращает кошелёк владельца, создавая его при отсутствии.
func (l *Ledger) EnsureWallet(ctx context.Context, owner model.OwnerType, ownerID int64, hint string) (*model.Wallet, error) {
	var res *model.Wallet
	err := l.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		res, err = l.EnsureWalletTx(ctx, tx, owner, ownerID, hint)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// EnsureWalletTx возвращает кошелёк владельца внутри открытой единицы работы, создавая его при отсутствии.
// Платёжный идентификатор строится из hint; при коллизии добавляется числовой суффикс.
func (l *Ledger) EnsureWalletTx(ctx context.Context, tx store.WalletStore, owner model.OwnerType, ownerID int64, hint string) (*model.Wallet, error) {
	existing, err := tx.GetWalletByOwner(ctx, owner, ownerID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	local := validation.NormalizeLocalPart(hint)
	for n := 0; n < maxHandleAttempts; n++ {
		candidate := validation.HandleCandidate(local, l.suffix, n)

		taken, err := tx.HandleTaken(ctx, candidate)
		if err != nil {
			return nil, err
		}
		if taken {
			continue
		}

		w, err := tx.CreateWallet(ctx, model.Wallet{OwnerType: owner, OwnerID: ownerID, Handle: candidate})
		if err != nil {
			return nil, fmt.Errorf("create wallet: %w", err)
		}

		l.logger.Info("wallet created",
			zap.String("owner", string(owner)),
			zap.Int64("ownerID", ownerID),
			zap.String("handle", w.Handle),
		)
		return w, nil
	}

	return nil, fmt.Errorf("%w: no free handle for %q", model.ErrConflict, local)
}

// EnsureDefaultMerchant возвращает кошелёк торговца по умолчанию, создавая его при отсутствии.
func (l *Ledger) EnsureDefaultMerchant(ctx context.Context) (*model.Wallet, error) {
	return l.EnsureWallet(ctx, model.OwnerMerchant, DefaultMerchantID, DefaultMerchantHint)
}

// Balance возвращает баланс кошелька.
func (l *Ledger) Balance(ctx context.Context, handle string) (int64, error) {
	var balance int64
	err := l.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		w, err := tx.GetWalletByHandle(ctx, handle, false)
		if err != nil {
			return err
		}
		balance = w.Balance
		return nil
	})
	return balance, err
}

// History возвращает последние переводы кошелька, новые первыми.
func (l *Ledger) History(ctx context.Context, handle string, limit int) ([]model.LedgerTransaction, error) {
	var res []model.LedgerTransaction
	err := l.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetWalletByHandle(ctx, handle, false); err != nil {
			return err
		}
		var err error
		res, err = tx.ListLedgerTransactions(ctx, handle, limit)
		return err
	})
	return res, err
}
