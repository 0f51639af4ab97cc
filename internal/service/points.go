package service

import (
	"context"

	"github.com/mmeshcher/greenledger/internal/ecopoints"
	"github.com/mmeshcher/greenledger/internal/model"
)

// PointsBalance возвращает баланс эко-баллов пользователя.
func (s *Service) PointsBalance(ctx context.Context, userID int64) (*model.PointsBalance, error) {
	return s.economy.Balance(ctx, userID)
}

// PointsHistory возвращает журнал эко-баллов пользователя.
func (s *Service) PointsHistory(ctx context.Context, userID int64, limit int) ([]model.PointsTransaction, error) {
	return s.economy.History(ctx, userID, limit)
}

// Convertible возвращает, сколько баллов можно конвертировать по порогу.
func (s *Service) Convertible(ctx context.Context, userID int64) (ecopoints.Convertible, error) {
	return s.economy.ConvertibleInfo(ctx, userID)
}

// RedeemPoints списывает баллы пользователя.
func (s *Service) RedeemPoints(ctx context.Context, userID, points int64, description string) (*model.PointsTransaction, error) {
	if description == "" {
		description = "Redeemed"
	}
	return s.economy.RedeemPoints(ctx, userID, points, description)
}

// ConvertPoints конвертирует баллы в токены. Пустой address означает привязанный адрес пользователя.
func (s *Service) ConvertPoints(ctx context.Context, userID, points int64, address string) (*model.Conversion, error) {
	return s.economy.ConvertPointsToTokens(ctx, userID, points, address)
}

// Conversions возвращает конвертации пользователя.
func (s *Service) Conversions(ctx context.Context, userID int64, limit int) ([]model.Conversion, error) {
	return s.economy.Conversions(ctx, userID, limit)
}
