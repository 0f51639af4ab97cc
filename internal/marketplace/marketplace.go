// Package marketplace реализует углеродные кредиты и площадку их продажи компаниям.
package marketplace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/greenledger/internal/chain"
	"github.com/mmeshcher/greenledger/internal/model"
	"github.com/mmeshcher/greenledger/internal/store"
	"github.com/mmeshcher/greenledger/internal/wallet"
)

const (
	// DefaultKgPerCredit — килограммов CO2 в одном кредите.
	DefaultKgPerCredit = 1000.0
	// AmountTolerance — допустимое расхождение количества кредитов в заказе и лоте.
	AmountTolerance = 1e-9
	// DefaultPageSize — размер страницы лотов по умолчанию.
	DefaultPageSize = 50
	// SettlementLease ограничивает время, на которое расчёт захватывает заказ.
	SettlementLease = 10 * time.Minute
)

// Marketplace управляет кредитами, лотами и заказами.
type Marketplace struct {
	store       store.Store
	ledger      *wallet.Ledger
	minter      chain.Minter
	kgPerCredit float64
	logger      *zap.Logger
	now         func() time.Time
}

// New создаёт маркетплейс. minter выпускает токены углеродных кредитов.
func New(s store.Store, ledger *wallet.Ledger, minter chain.Minter, kgPerCredit float64, logger *zap.Logger) *Marketplace {
	if logger == nil {
		logger = zap.NewNop()
	}
	if kgPerCredit <= 0 {
		kgPerCredit = DefaultKgPerCredit
	}
	return &Marketplace{
		store:       s,
		ledger:      ledger,
		minter:      minter,
		kgPerCredit: kgPerCredit,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// GenerateCreditsTx пересчитывает запас кредитов пользователя из суммы его экономии.
func (m *Marketplace) GenerateCreditsTx(ctx context.Context, tx store.Tx, userID int64) (*model.CreditHolding, error) {
	saved, err := tx.SumSavings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("sum savings: %w", err)
	}

	h := model.CreditHolding{
		UserID:    userID,
		CarbonKg:  saved,
		Credits:   saved / m.kgPerCredit,
		UpdatedAt: m.now(),
	}
	if err := tx.SaveHolding(ctx, h); err != nil {
		return nil, fmt.Errorf("save holding: %w", err)
	}
	return &h, nil
}

// GenerateCredits пересчитывает запас кредитов пользователя.
func (m *Marketplace) GenerateCredits(ctx context.Context, userID int64) (*model.CreditHolding, error) {
	var res *model.CreditHolding
	err := m.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		res, err = m.GenerateCreditsTx(ctx, tx, userID)
		return err
	})
	return res, err
}

// GenerateAllCredits пересчитывает запасы всех пользователей с экономией. Возвращает их число.
func (m *Marketplace) GenerateAllCredits(ctx context.Context) (int, error) {
	var n int
	err := m.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		users, err := tx.ListUsersWithSavings(ctx)
		if err != nil {
			return err
		}
		for _, id := range users {
			if _, err := m.GenerateCreditsTx(ctx, tx, id); err != nil {
				return fmt.Errorf("user %d: %w", id, err)
			}
		}
		n = len(users)
		return nil
	})
	return n, err
}

// Summary содержит сводку по углеродной экономии площадки.
type Summary struct {
	TotalSavedKg  float64
	TotalCredits  float64
	IssuedCredits float64
	KgPerCredit   float64
}

// Summary возвращает суммарную экономию и её эквивалент в кредитах.
func (m *Marketplace) Summary(ctx context.Context) (Summary, error) {
	s := Summary{KgPerCredit: m.kgPerCredit}
	err := m.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if s.TotalSavedKg, err = tx.SumAllSavings(ctx); err != nil {
			return err
		}
		s.IssuedCredits, err = tx.SumCredits(ctx)
		return err
	})
	s.TotalCredits = s.TotalSavedKg / m.kgPerCredit
	return s, err
}

// MintResult описывает результат выпуска токенов кредитов.
type MintResult struct {
	Minted decimal.Decimal
	TxHash string
}

// MintCredits выпускает на адрес пользователя только недостающую разницу между запасом и балансом в блокчейне.
func (m *Marketplace) MintCredits(ctx context.Context, userID int64) (MintResult, error) {
	if m.minter == nil {
		return MintResult{}, fmt.Errorf("%w: credit minter not configured", model.ErrExternalService)
	}

	var (
		address string
		holding *model.CreditHolding
	)
	err := m.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		address, err = tx.GetChainAddress(ctx, model.OwnerUser, userID)
		if errors.Is(err, model.ErrNotFound) {
			return model.ErrWalletNotConnected
		}
		if err != nil {
			return err
		}
		holding, err = m.GenerateCreditsTx(ctx, tx, userID)
		return err
	})
	if err != nil {
		return MintResult{}, err
	}

	onChain, err := m.minter.BalanceOf(ctx, address)
	if err != nil {
		return MintResult{}, err
	}

	delta := decimal.NewFromFloat(holding.Credits).Sub(decimal.NewFromBigInt(onChain, -chain.TokenDecimals))
	if !delta.IsPositive() {
		return MintResult{Minted: decimal.Zero}, nil
	}

	receipt, err := m.minter.Mint(ctx, address, chain.ToBaseUnits(delta))
	if err != nil {
		return MintResult{}, fmt.Errorf("%w: mint credits: %v", model.ErrExternalService, err)
	}

	m.logger.Info("credit tokens minted",
		zap.Int64("userID", userID),
		zap.String("minted", delta.String()),
		zap.String("txHash", receipt.TxHash),
	)
	return MintResult{Minted: delta, TxHash: receipt.TxHash}, nil
}

// SetCreditPrice фиксирует новую цену кредита в минимальных единицах.
func (m *Marketplace) SetCreditPrice(ctx context.Context, pricePerCredit int64) error {
	if pricePerCredit <= 0 {
		return model.ErrInvalidAmount
	}
	return m.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.SetCreditPrice(ctx, pricePerCredit, m.now())
	})
}

// CreditPrice возвращает последнюю установленную цену кредита или 0, если цены нет.
func (m *Marketplace) CreditPrice(ctx context.Context) (int64, error) {
	var price int64
	err := m.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.GetCreditPrice(ctx)
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		price = p
		return err
	})
	return price, err
}

// CreateListing выставляет кредиты из экономии продавца на продажу. Лот ждёт модерации.
func (m *Marketplace) CreateListing(ctx context.Context, sellerID, savingID int64, credits float64, pricePerCredit int64) (*model.Listing, error) {
	if credits <= 0 || pricePerCredit <= 0 {
		return nil, model.ErrInvalidAmount
	}

	var res *model.Listing
	err := m.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		saving, err := tx.GetSaving(ctx, savingID, false)
		if err != nil {
			return fmt.Errorf("saving %d: %w", savingID, err)
		}
		if saving.UserID != sellerID {
			return fmt.Errorf("saving %d: %w", savingID, model.ErrNotFound)
		}
		if saving.SavedAmount <= 0 {
			return model.ErrInvalidAmount
		}
		if saving.OwnerType != nil && *saving.OwnerType != model.OwnerUser {
			return fmt.Errorf("%w: saving %d already sold", model.ErrInvalidState, savingID)
		}

		res, err = tx.CreateListing(ctx, model.Listing{
			SellerID:       sellerID,
			SavingID:       savingID,
			CreditAmount:   credits,
			PricePerCredit: pricePerCredit,
			Status:         model.ListingPending,
			CreatedAt:      m.now(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ReviewListing одобряет или отклоняет лот в статусе pending.
func (m *Marketplace) ReviewListing(ctx context.Context, listingID int64, approve bool) (*model.Listing, error) {
	var res *model.Listing
	err := m.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		l, err := tx.GetListing(ctx, listingID, true)
		if err != nil {
			return err
		}
		if l.Status != model.ListingPending {
			return fmt.Errorf("%w: listing %d is %s", model.ErrInvalidState, l.ID, l.Status)
		}

		l.Status = model.ListingRejected
		if approve {
			l.Status = model.ListingAvailable
		}
		if err := tx.SetListingStatus(ctx, l.ID, l.Status); err != nil {
			return err
		}
		res = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// AvailableListings возвращает доступные лоты, новые первыми.
func (m *Marketplace) AvailableListings(ctx context.Context, offset, limit int) ([]model.Listing, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}

	var res []model.Listing
	err := m.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		res, err = tx.ListListings(ctx, model.ListingAvailable, offset, limit)
		return err
	})
	return res, err
}
