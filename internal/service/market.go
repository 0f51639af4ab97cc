package service

import (
	"context"
	"fmt"

	"github.com/mmeshcher/greenledger/internal/marketplace"
	"github.com/mmeshcher/greenledger/internal/model"
)

// Credits пересчитывает и возвращает углеродные кредиты пользователя.
func (s *Service) Credits(ctx context.Context, userID int64) (*model.CreditHolding, error) {
	return s.market.GenerateCredits(ctx, userID)
}

// MintCredits выпускает недостающие токены кредитов на адрес пользователя.
func (s *Service) MintCredits(ctx context.Context, userID int64) (marketplace.MintResult, error) {
	return s.market.MintCredits(ctx, userID)
}

// MarketSummary возвращает сводку по экономии площадки.
func (s *Service) MarketSummary(ctx context.Context) (marketplace.Summary, error) {
	return s.market.Summary(ctx)
}

// SetCreditPrice устанавливает рыночную цену кредита.
func (s *Service) SetCreditPrice(ctx context.Context, pricePerCredit int64) error {
	return s.market.SetCreditPrice(ctx, pricePerCredit)
}

// CreditPrice возвращает текущую цену кредита.
func (s *Service) CreditPrice(ctx context.Context) (int64, error) {
	return s.market.CreditPrice(ctx)
}

// CreateListing выставляет кредиты из экономии пользователя на продажу.
func (s *Service) CreateListing(ctx context.Context, sellerID, savingID int64, credits float64, pricePerCredit int64) (*model.Listing, error) {
	return s.market.CreateListing(ctx, sellerID, savingID, credits, pricePerCredit)
}

// ReviewListing одобряет или отклоняет лот.
func (s *Service) ReviewListing(ctx context.Context, listingID int64, approve bool) (*model.Listing, error) {
	return s.market.ReviewListing(ctx, listingID, approve)
}

// Listings возвращает доступные лоты.
func (s *Service) Listings(ctx context.Context, offset, limit int) ([]model.Listing, error) {
	return s.market.AvailableListings(ctx, offset, limit)
}

// CreateOrder создаёт заказ компании на лот.
func (s *Service) CreateOrder(ctx context.Context, buyerID, listingID int64, credits float64) (*model.MarketOrder, error) {
	return s.market.CreateOrder(ctx, buyerID, listingID, credits)
}

// Orders возвращает заказы компании.
func (s *Service) Orders(ctx context.Context, buyerID int64) ([]model.MarketOrder, error) {
	return s.market.Orders(ctx, buyerID)
}

// SettleOrder завершает заказ компании buyerID. Чужой заказ неотличим от отсутствующего.
func (s *Service) SettleOrder(ctx context.Context, buyerID, orderID int64, paymentRef string) (*model.MarketOrder, error) {
	o, err := s.market.Order(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.BuyerID != buyerID {
		return nil, fmt.Errorf("order %d: %w", orderID, model.ErrNotFound)
	}
	return s.market.Settle(ctx, orderID, paymentRef)
}
