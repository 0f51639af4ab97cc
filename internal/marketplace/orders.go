package marketplace

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/greenledger/internal/chain"
	"github.com/mmeshcher/greenledger/internal/metrics"
	"github.com/mmeshcher/greenledger/internal/model"
	"github.com/mmeshcher/greenledger/internal/store"
	"github.com/mmeshcher/greenledger/internal/validation"
	"github.com/mmeshcher/greenledger/internal/wallet"
)

// TotalPrice возвращает стоимость заказа в минимальных единицах с округлением.
func TotalPrice(pricePerCredit int64, credits float64) int64 {
	return decimal.NewFromInt(pricePerCredit).Mul(decimal.NewFromFloat(credits)).Round(0).IntPart()
}

// CreateOrder оформляет покупку лота компанией. Количество кредитов должно совпадать с лотом.
// Лот переходит в sold в той же единице работы.
func (m *Marketplace) CreateOrder(ctx context.Context, buyerID, listingID int64, credits float64) (*model.MarketOrder, error) {
	if credits <= 0 {
		return nil, model.ErrInvalidAmount
	}

	var res *model.MarketOrder
	err := m.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		l, err := tx.GetListing(ctx, listingID, true)
		if err != nil {
			return err
		}
		if l.Status != model.ListingAvailable {
			return fmt.Errorf("%w: listing %d is %s", model.ErrInvalidState, l.ID, l.Status)
		}
		if math.Abs(credits-l.CreditAmount) > AmountTolerance {
			return fmt.Errorf("%w: listing offers %v credits", model.ErrInvalidAmount, l.CreditAmount)
		}

		res, err = tx.CreateOrder(ctx, model.MarketOrder{
			BuyerID:      buyerID,
			ListingID:    l.ID,
			CreditAmount: credits,
			TotalPrice:   TotalPrice(l.PricePerCredit, credits),
			Status:       model.OrderPending,
			CreatedAt:    m.now(),
		})
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		return tx.SetListingStatus(ctx, l.ID, model.ListingSold)
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("order created",
		zap.Int64("orderID", res.ID),
		zap.Int64("listingID", listingID),
		zap.Int64("buyerID", buyerID),
	)
	return res, nil
}

// Orders возвращает заказы компании, новые первыми.
func (m *Marketplace) Orders(ctx context.Context, buyerID int64) ([]model.MarketOrder, error) {
	var res []model.MarketOrder
	err := m.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		res, err = tx.ListOrders(ctx, buyerID)
		return err
	})
	return res, err
}

// Order возвращает заказ по идентификатору.
func (m *Marketplace) Order(ctx context.Context, orderID int64) (*model.MarketOrder, error) {
	var res *model.MarketOrder
	err := m.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		res, err = tx.GetOrder(ctx, orderID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// CompleteOrder фиксирует оплату заказа: pending -> completed.
func (m *Marketplace) CompleteOrder(ctx context.Context, orderID int64, paymentRef string) (*model.MarketOrder, error) {
	var res *model.MarketOrder
	err := m.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.GetOrder(ctx, orderID, true)
		if err != nil {
			return err
		}
		if o.Status != model.OrderPending {
			return fmt.Errorf("order %d: %w", o.ID, model.ErrAlreadyCompleted)
		}
		if err := m.complete(ctx, tx, o, paymentRef); err != nil {
			return err
		}
		res = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (m *Marketplace) complete(ctx context.Context, tx store.MarketStore, o *model.MarketOrder, paymentRef string) error {
	now := m.now()
	o.Status = model.OrderCompleted
	o.CompletedAt = &now
	if paymentRef != "" {
		o.PaymentRef = &paymentRef
	}
	return tx.SaveOrder(ctx, *o)
}

// Settle завершает оплаченный заказ и передаёт кредиты покупателю.
// Выпуск токенов выполняется после фиксации completed; при его сбое заказ остаётся нерассчитанным
// до ReconcileSettlements, владелец экономии не меняется и продавец выплату не получает.
func (m *Marketplace) Settle(ctx context.Context, orderID int64, paymentRef string) (*model.MarketOrder, error) {
	err := m.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.GetOrder(ctx, orderID, true)
		if err != nil {
			return err
		}
		if o.Settled {
			return fmt.Errorf("order %d: %w", o.ID, model.ErrAlreadySettled)
		}
		if o.Status == model.OrderPending {
			return m.complete(ctx, tx, o, paymentRef)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	o, err := m.transfer(ctx, orderID)
	metrics.RecordSettlement(err == nil)
	return o, err
}

// transfer захватывает заказ, выпускает кредиты на адрес покупателя и затем проводит расчёт
// в отдельной единице работы. Заказ, захваченный менее SettlementLease назад, повторно не выпускается.
func (m *Marketplace) transfer(ctx context.Context, orderID int64) (*model.MarketOrder, error) {
	if m.minter == nil {
		return nil, fmt.Errorf("%w: credit minter not configured", model.ErrExternalService)
	}

	order, address, err := m.claim(ctx, orderID)
	if err != nil {
		return nil, err
	}

	receipt, err := m.minter.Mint(ctx, address, chain.ToBaseUnits(decimal.NewFromFloat(order.CreditAmount)))
	if err != nil {
		m.logger.Warn("credit transfer failed, order left unsettled",
			zap.Int64("orderID", order.ID),
			zap.Error(err),
		)
		m.release(ctx, order.ID)
		return order, fmt.Errorf("%w: transfer credits: %v", model.ErrExternalService, err)
	}

	var settled *model.MarketOrder
	err = m.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.GetOrder(ctx, orderID, true)
		if err != nil {
			return err
		}
		if o.Settled {
			return fmt.Errorf("order %d: %w", o.ID, model.ErrAlreadySettled)
		}

		l, err := tx.GetListing(ctx, o.ListingID, false)
		if err != nil {
			return fmt.Errorf("listing %d: %w", o.ListingID, err)
		}

		if err := tx.ReassignSaving(ctx, l.SavingID, model.OwnerCompany, o.BuyerID); err != nil {
			return fmt.Errorf("reassign saving: %w", err)
		}

		if o.TotalPrice > 0 {
			w, err := m.ledger.EnsureWalletTx(ctx, tx, model.OwnerUser, l.SellerID, wallet.UserHint(l.SellerID))
			if err != nil {
				return fmt.Errorf("seller wallet: %w", err)
			}
			if _, err := m.ledger.DepositTx(ctx, tx, w.Handle, o.TotalPrice); err != nil {
				return fmt.Errorf("seller payout: %w", err)
			}
		}

		if _, err := tx.CreateMarketTransaction(ctx, model.MarketTransaction{
			OrderID:      o.ID,
			ListingID:    l.ID,
			SellerID:     l.SellerID,
			BuyerID:      o.BuyerID,
			CreditAmount: o.CreditAmount,
			TotalPrice:   o.TotalPrice,
			TransferHash: receipt.TxHash,
			CreatedAt:    m.now(),
		}); err != nil {
			return fmt.Errorf("record market transaction: %w", err)
		}

		o.TransferHash = &receipt.TxHash
		o.Settled = true
		o.SettlingAt = nil
		if err := tx.SaveOrder(ctx, *o); err != nil {
			return err
		}
		settled = o
		return nil
	})
	if err != nil {
		m.logger.Error("credits transferred but settlement not recorded",
			zap.Int64("orderID", orderID),
			zap.String("txHash", receipt.TxHash),
			zap.Error(err),
		)
		return nil, err
	}

	m.logger.Info("order settled",
		zap.Int64("orderID", settled.ID),
		zap.String("transferHash", receipt.TxHash),
	)
	return settled, nil
}

// claim под блокировкой заказа проверяет, что его можно рассчитать, и отмечает начало выпуска.
func (m *Marketplace) claim(ctx context.Context, orderID int64) (*model.MarketOrder, string, error) {
	var (
		order   *model.MarketOrder
		address string
	)
	err := m.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.GetOrder(ctx, orderID, true)
		if err != nil {
			return err
		}
		if o.Status != model.OrderCompleted {
			return fmt.Errorf("%w: order %d is %s", model.ErrInvalidState, o.ID, o.Status)
		}
		if o.Settled {
			return fmt.Errorf("order %d: %w", o.ID, model.ErrAlreadySettled)
		}
		if m.leased(*o) {
			return fmt.Errorf("%w: order %d settlement in progress", model.ErrInvalidState, o.ID)
		}

		address, err = tx.GetChainAddress(ctx, model.OwnerCompany, o.BuyerID)
		if errors.Is(err, model.ErrNotFound) || (err == nil && !validation.IsValidChainAddress(address)) {
			return model.ErrWalletNotConnected
		}
		if err != nil {
			return err
		}

		now := m.now()
		o.SettlingAt = &now
		if err := tx.SaveOrder(ctx, *o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return order, address, nil
}

// release снимает захват после неудачного выпуска. Если снять не удалось, захват истечёт сам.
func (m *Marketplace) release(ctx context.Context, orderID int64) {
	err := m.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.GetOrder(ctx, orderID, true)
		if err != nil {
			return err
		}
		if o.Settled || o.SettlingAt == nil {
			return nil
		}
		o.SettlingAt = nil
		return tx.SaveOrder(ctx, *o)
	})
	if err != nil {
		m.logger.Warn("release settlement claim", zap.Int64("orderID", orderID), zap.Error(err))
	}
}

func (m *Marketplace) leased(o model.MarketOrder) bool {
	return o.SettlingAt != nil && m.now().Sub(*o.SettlingAt) < SettlementLease
}

// ReconcileSettlements повторяет передачу кредитов для оплаченных, но нерассчитанных заказов.
// Возвращает число рассчитанных заказов.
func (m *Marketplace) ReconcileSettlements(ctx context.Context, limit int) (int, error) {
	if m.minter == nil {
		return 0, nil
	}

	var pending []model.MarketOrder
	err := m.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		pending, err = tx.ListUnsettledOrders(ctx, limit)
		return err
	})
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, o := range pending {
		if err := ctx.Err(); err != nil {
			return settled, err
		}
		if m.leased(o) {
			continue
		}

		_, err := m.transfer(ctx, o.ID)
		metrics.RecordSettlement(err == nil)
		if err != nil {
			m.logger.Warn("settlement retry failed", zap.Int64("orderID", o.ID), zap.Error(err))
			continue
		}
		settled++
	}

	return settled, nil
}
