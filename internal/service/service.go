// Package service связывает кошельки, углеродный учёт, экономику баллов и маркетплейс
// в операции, которые вызывает HTTP-слой.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/greenledger/internal/carbon"
	"github.com/mmeshcher/greenledger/internal/ecopoints"
	"github.com/mmeshcher/greenledger/internal/gamification"
	"github.com/mmeshcher/greenledger/internal/marketplace"
	"github.com/mmeshcher/greenledger/internal/metrics"
	"github.com/mmeshcher/greenledger/internal/model"
	"github.com/mmeshcher/greenledger/internal/store"
	"github.com/mmeshcher/greenledger/internal/validation"
	"github.com/mmeshcher/greenledger/internal/wallet"
)

const (
	// DefaultCurrency используется, если валюта платежа не указана.
	DefaultCurrency = "INR"
	// MerchantPaymentCategory назначается платежам торговцу через кошелёк.
	MerchantPaymentCategory = "payment"
)

// ErrMissingReference возвращается для платежа без идентификатора.
var ErrMissingReference = errors.New("payment reference is required")

// VerifiedPayment — подтверждённый платёжным шлюзом платёж пользователя.
type VerifiedPayment struct {
	UserID      int64
	PaymentRef  string
	Amount      int64
	Currency    string
	Category    string
	Subcategory string
}

// PaymentResult содержит итог применения платежа.
type PaymentResult struct {
	Transaction   *model.FinancialTransaction
	Transfer      *model.LedgerTransaction
	Record        *model.CarbonRecord
	Saving        *model.CarbonSaving
	PointsAwarded int64
	// Duplicate выставляется, если платёж с таким идентификатором уже был применён.
	Duplicate bool
}

// Savings содержит экономию пользователя и её сумму.
type Savings struct {
	TotalKg float64
	Items   []model.CarbonSaving
}

// Service содержит бизнес-логику сервиса greenledger.
type Service struct {
	store      store.Store
	ledger     *wallet.Ledger
	accounting *carbon.Accounting
	economy    *ecopoints.Economy
	engine     *gamification.Engine
	market     *marketplace.Marketplace
	logger     *zap.Logger
}

// NewService создаёт сервис поверх хранилища и доменных компонентов.
func NewService(
	s store.Store,
	ledger *wallet.Ledger,
	accounting *carbon.Accounting,
	economy *ecopoints.Economy,
	engine *gamification.Engine,
	market *marketplace.Marketplace,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:      s,
		ledger:     ledger,
		accounting: accounting,
		economy:    economy,
		engine:     engine,
		market:     market,
		logger:     logger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// ApplyVerifiedPayment применяет подтверждённый платёж: финансовая операция, углеродный учёт,
// баллы, бонусы и геймификация в одной единице работы. Повторный вызов с тем же
// идентификатором платежа ничего не меняет.
func (s *Service) ApplyVerifiedPayment(ctx context.Context, p VerifiedPayment) (*PaymentResult, error) {
	if p.PaymentRef == "" {
		return nil, ErrMissingReference
	}
	if p.Amount <= 0 {
		return nil, model.ErrInvalidAmount
	}

	var res *PaymentResult
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if dup, err := lookupPayment(ctx, tx, p.PaymentRef); dup != nil || err != nil {
			res = dup
			return err
		}
		var err error
		res, err = s.applyTx(ctx, tx, p)
		return err
	})
	if errors.Is(err, model.ErrConflict) {
		// параллельный вызов с тем же идентификатором успел зафиксироваться первым
		return s.existingPayment(ctx, p.PaymentRef)
	}
	if err != nil {
		return nil, err
	}

	s.afterPayment(ctx, p.UserID, res)
	return res, nil
}

// PayMerchant переводит amount с кошелька пользователя торговцу и применяет платёж как
// подтверждённый с категорией payment. Пустой merchantHandle означает торговца по умолчанию.
func (s *Service) PayMerchant(ctx context.Context, userID int64, merchantHandle string, amount int64, orderRef string) (*PaymentResult, error) {
	if amount <= 0 {
		return nil, model.ErrInvalidAmount
	}
	if orderRef == "" {
		orderRef = uuid.NewString()
	}

	var res *PaymentResult
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if dup, err := lookupPayment(ctx, tx, orderRef); dup != nil || err != nil {
			res = dup
			return err
		}

		user, err := s.ledger.EnsureWalletTx(ctx, tx, model.OwnerUser, userID, wallet.UserHint(userID))
		if err != nil {
			return err
		}

		receiver := merchantHandle
		if receiver == "" {
			merchant, err := s.ledger.EnsureWalletTx(ctx, tx, model.OwnerMerchant, wallet.DefaultMerchantID, wallet.DefaultMerchantHint)
			if err != nil {
				return err
			}
			receiver = merchant.Handle
		}

		lt, err := s.ledger.TransferTx(ctx, tx, user.Handle, receiver, amount)
		if err != nil {
			return err
		}

		res, err = s.applyTx(ctx, tx, VerifiedPayment{
			UserID:      userID,
			PaymentRef:  orderRef,
			Amount:      amount,
			Category:    MerchantPaymentCategory,
			Subcategory: "Payment to " + receiver,
		})
		if err != nil {
			return err
		}
		res.Transfer = lt
		return nil
	})
	if errors.Is(err, model.ErrConflict) {
		return s.existingPayment(ctx, orderRef)
	}
	if res == nil || !res.Duplicate {
		metrics.RecordTransfer(amount, err)
	}
	if err != nil {
		return nil, err
	}

	s.afterPayment(ctx, userID, res)
	return res, nil
}

func lookupPayment(ctx context.Context, tx store.FinanceStore, ref string) (*PaymentResult, error) {
	existing, err := tx.GetFinancialTransactionByPaymentRef(ctx, ref)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &PaymentResult{Transaction: existing, Duplicate: true}, nil
}

func (s *Service) existingPayment(ctx context.Context, ref string) (*PaymentResult, error) {
	var res *PaymentResult
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		res, err = lookupPayment(ctx, tx, ref)
		if err == nil && res == nil {
			return model.ErrConflict
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) applyTx(ctx context.Context, tx store.Tx, p VerifiedPayment) (*PaymentResult, error) {
	before, err := tx.GetPointsBalance(ctx, p.UserID)
	if err != nil {
		return nil, err
	}

	currency := p.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	description := p.Subcategory
	if description == "" {
		description = p.Category
	}
	ref := p.PaymentRef

	ft, err := tx.CreateFinancialTransaction(ctx, model.FinancialTransaction{
		UserID:      p.UserID,
		Amount:      p.Amount,
		Currency:    currency,
		Direction:   model.DirectionDebit,
		Category:    p.Category,
		Description: description,
		Status:      model.TransactionCompleted,
		PaymentRef:  &ref,
	})
	if err != nil {
		return nil, fmt.Errorf("create financial transaction: %w", err)
	}

	record, saving, err := s.accounting.ComputeAndRecord(ctx, tx, p.UserID, ft.ID, p.Amount, carbon.MapCategory(p.Category))
	if err != nil {
		return nil, err
	}

	if _, err := s.economy.AwardForCarbonSavingTx(ctx, tx, p.UserID, ft.ID, record.ID); err != nil {
		return nil, fmt.Errorf("award saving points: %w", err)
	}

	var saved float64
	if saving != nil {
		saved = saving.SavedAmount
	}
	if err := s.economy.ApplyRewardRulesTx(ctx, tx, p.UserID, ft.ID, saved); err != nil {
		return nil, fmt.Errorf("reward rules: %w", err)
	}

	rewards, err := s.engine.OnTransactionCompleted(ctx, tx, p.UserID, saved)
	if err != nil {
		return nil, fmt.Errorf("gamification: %w", err)
	}
	if err := s.economy.GrantRewardsTx(ctx, tx, p.UserID, rewards); err != nil {
		return nil, err
	}

	after, err := tx.GetPointsBalance(ctx, p.UserID)
	if err != nil {
		return nil, err
	}

	return &PaymentResult{
		Transaction:   ft,
		Record:        record,
		Saving:        saving,
		PointsAwarded: after.LifetimePoints - before.LifetimePoints,
	}, nil
}

func (s *Service) afterPayment(ctx context.Context, userID int64, res *PaymentResult) {
	if res.Duplicate {
		s.logger.Info("payment already applied",
			zap.Int64("userID", userID),
			zap.Int64("transactionID", res.Transaction.ID),
		)
		return
	}

	s.logger.Info("payment applied",
		zap.Int64("userID", userID),
		zap.Int64("transactionID", res.Transaction.ID),
		zap.Int64("points", res.PointsAwarded),
	)
	if res.PointsAwarded > 0 {
		s.economy.AutoConvertAfterCommit(ctx, userID)
	}
}

// Wallet возвращает кошелёк пользователя, создавая его при первом обращении.
func (s *Service) Wallet(ctx context.Context, userID int64) (*model.Wallet, error) {
	return s.ledger.EnsureWallet(ctx, model.OwnerUser, userID, wallet.UserHint(userID))
}

// TopUp зачисляет внешнее поступление на кошелёк пользователя.
func (s *Service) TopUp(ctx context.Context, userID, amount int64) (*model.LedgerTransaction, error) {
	w, err := s.Wallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.ledger.Deposit(ctx, w.Handle, amount)
}

// Transfer переводит средства с кошелька пользователя на кошелёк receiver.
func (s *Service) Transfer(ctx context.Context, userID int64, receiver string, amount int64) (*model.LedgerTransaction, error) {
	w, err := s.Wallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.ledger.Transfer(ctx, w.Handle, receiver, amount)
}

// WalletHistory возвращает переводы кошелька пользователя.
func (s *Service) WalletHistory(ctx context.Context, userID int64, limit int) ([]model.LedgerTransaction, error) {
	w, err := s.Wallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.ledger.History(ctx, w.Handle, limit)
}

// Transactions возвращает финансовые операции пользователя.
func (s *Service) Transactions(ctx context.Context, userID int64, limit int) ([]model.FinancialTransaction, error) {
	var res []model.FinancialTransaction
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		res, err = tx.ListFinancialTransactions(ctx, userID, limit)
		return err
	})
	return res, err
}

// Estimate рассчитывает выбросы для суммы в категории справочника без сохранения.
func (s *Service) Estimate(ctx context.Context, amount int64, category string) (carbon.Result, error) {
	var res carbon.Result
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		res, err = s.accounting.Estimate(ctx, tx, amount, category)
		return err
	})
	return res, err
}

// Savings возвращает экономию пользователя.
func (s *Service) Savings(ctx context.Context, userID int64) (*Savings, error) {
	res := &Savings{}
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if res.Items, err = tx.ListSavings(ctx, userID); err != nil {
			return err
		}
		res.TotalKg, err = tx.SumSavings(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Profile возвращает сводку геймификации пользователя.
func (s *Service) Profile(ctx context.Context, userID int64) (*gamification.Profile, error) {
	var res *gamification.Profile
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		res, err = s.engine.Profile(ctx, tx, userID)
		return err
	})
	return res, err
}

// ConnectChainAddress привязывает адрес в блокчейне к владельцу.
func (s *Service) ConnectChainAddress(ctx context.Context, owner model.OwnerType, ownerID int64, address string) error {
	if !validation.IsValidChainAddress(address) {
		return model.ErrInvalidAddress
	}
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.SetChainAddress(ctx, owner, ownerID, address)
	})
	if err != nil {
		return err
	}

	s.logger.Info("chain address connected",
		zap.String("owner", string(owner)),
		zap.Int64("ownerID", ownerID),
	)
	return nil
}

// ChainAddress возвращает адрес владельца или model.ErrWalletNotConnected.
func (s *Service) ChainAddress(ctx context.Context, owner model.OwnerType, ownerID int64) (string, error) {
	var addr string
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		addr, err = tx.GetChainAddress(ctx, owner, ownerID)
		return err
	})
	if errors.Is(err, model.ErrNotFound) {
		return "", model.ErrWalletNotConnected
	}
	return addr, err
}
