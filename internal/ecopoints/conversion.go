package ecopoints

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/greenledger/internal/chain"
	"github.com/mmeshcher/greenledger/internal/metrics"
	"github.com/mmeshcher/greenledger/internal/model"
	"github.com/mmeshcher/greenledger/internal/store"
	"github.com/mmeshcher/greenledger/internal/validation"
)

const (
	conversionDescription = "Converted to eco tokens"

	// StaleDebitedAfter — через сколько конвертация, зависшая в debited, считается прерванной.
	StaleDebitedAfter = 10 * time.Minute
)

// transitions — допустимые переходы состояний конвертации.
var transitions = map[model.ConversionStatus][]model.ConversionStatus{
	model.ConversionRequested:  {model.ConversionDebited},
	model.ConversionDebited:    {model.ConversionMinted, model.ConversionMintFailed},
	model.ConversionMintFailed: {model.ConversionDebited},
}

// CanTransition сообщает, допустим ли переход конвертации из from в to.
func CanTransition(from, to model.ConversionStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func transition(c *model.Conversion, to model.ConversionStatus) error {
	if !CanTransition(c.Status, to) {
		return fmt.Errorf("%w: conversion %d %s -> %s", model.ErrInvalidState, c.ID, c.Status, to)
	}
	c.Status = to
	return nil
}

// ConvertPointsToTokens списывает points баллов и выпускает токены на address.
// Списание фиксируется до обращения к шлюзу и при сбое выпуска не возвращается: конвертация
// остаётся в mint_failed и повторяется ReconcileFailedMints. Пустой address означает привязанный адрес.
func (e *Economy) ConvertPointsToTokens(ctx context.Context, userID, points int64, address string) (*model.Conversion, error) {
	if points <= 0 {
		return nil, model.ErrInvalidAmount
	}
	if e.minter == nil {
		return nil, fmt.Errorf("%w: token minter not configured", model.ErrExternalService)
	}

	tokens := decimal.NewFromInt(points).Mul(e.cfg.ConversionRate)
	if !tokens.IsPositive() {
		return nil, model.ErrInvalidAmount
	}

	var conv *model.Conversion
	err := e.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		to, err := resolveAddress(ctx, tx, userID, address)
		if err != nil {
			return err
		}

		conv, err = tx.CreateConversion(ctx, model.Conversion{
			UserID:      userID,
			Points:      points,
			TokenAmount: tokens,
			Address:     to,
			Status:      model.ConversionRequested,
			CreatedAt:   e.now(),
		})
		if err != nil {
			return fmt.Errorf("create conversion: %w", err)
		}

		if _, err := e.RedeemTx(ctx, tx, userID, points, conversionDescription); err != nil {
			return err
		}

		if err := transition(conv, model.ConversionDebited); err != nil {
			return err
		}
		return tx.UpdateConversion(ctx, *conv)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordPointsRedeemed(points)

	return e.mintAndRecord(ctx, conv)
}

func resolveAddress(ctx context.Context, tx store.TokenStore, userID int64, address string) (string, error) {
	if address == "" {
		stored, err := tx.GetChainAddress(ctx, model.OwnerUser, userID)
		if errors.Is(err, model.ErrNotFound) {
			return "", model.ErrWalletNotConnected
		}
		if err != nil {
			return "", err
		}
		address = stored
	}
	if !validation.IsValidChainAddress(address) {
		return "", fmt.Errorf("%w: %q", model.ErrInvalidAddress, address)
	}
	return address, nil
}

// mintAndRecord выпускает токены по конвертации в состоянии debited и фиксирует результат.
// Сетевой вызов выполняется вне единицы работы.
func (e *Economy) mintAndRecord(ctx context.Context, conv *model.Conversion) (*model.Conversion, error) {
	receipt, mintErr := e.minter.Mint(ctx, conv.Address, chain.ToBaseUnits(conv.TokenAmount))

	var final *model.Conversion
	err := e.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		c, err := tx.GetConversion(ctx, conv.ID, true)
		if err != nil {
			return err
		}

		c.Attempts++
		if mintErr != nil {
			c.LastError = mintErr.Error()
			if err := transition(c, model.ConversionMintFailed); err != nil {
				return err
			}
		} else {
			c.TxHash = receipt.TxHash
			c.BlockNumber = receipt.BlockNumber
			c.LastError = ""
			if err := transition(c, model.ConversionMinted); err != nil {
				return err
			}
		}

		final = c
		return tx.UpdateConversion(ctx, *c)
	})
	if err != nil {
		return nil, fmt.Errorf("record mint result for conversion %d: %w", conv.ID, err)
	}

	metrics.RecordConversion(string(final.Status))

	if mintErr != nil {
		e.logger.Warn("token mint failed, conversion left for reconciliation",
			zap.Int64("conversionID", final.ID),
			zap.Int64("userID", final.UserID),
			zap.Int("attempts", final.Attempts),
			zap.Error(mintErr),
		)
		return final, fmt.Errorf("%w: mint tokens: %v", model.ErrExternalService, mintErr)
	}

	e.logger.Info("tokens minted",
		zap.Int64("conversionID", final.ID),
		zap.Int64("userID", final.UserID),
		zap.String("tokens", final.TokenAmount.String()),
		zap.String("txHash", final.TxHash),
	)
	return final, nil
}

// ReconcileFailedMints повторяет выпуск для конвертаций в mint_failed и прерванных в debited.
// Возвращает число успешно выпущенных конвертаций.
func (e *Economy) ReconcileFailedMints(ctx context.Context, limit int) (int, error) {
	if e.minter == nil {
		return 0, nil
	}

	var candidates []model.Conversion
	err := e.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		failed, err := tx.ListConversionsByStatus(ctx, model.ConversionMintFailed, limit)
		if err != nil {
			return err
		}
		debited, err := tx.ListConversionsByStatus(ctx, model.ConversionDebited, limit)
		if err != nil {
			return err
		}

		candidates = failed
		staleBefore := e.now().Add(-StaleDebitedAfter)
		for _, c := range debited {
			if c.UpdatedAt.Before(staleBefore) {
				candidates = append(candidates, c)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	minted := 0
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return minted, err
		}

		claimed, err := e.claim(ctx, c.ID)
		if err != nil {
			e.logger.Error("claim conversion", zap.Int64("conversionID", c.ID), zap.Error(err))
			continue
		}
		if claimed == nil {
			continue
		}

		if _, err := e.mintAndRecord(ctx, claimed); err == nil {
			minted++
		}
	}

	return minted, nil
}

// claim переводит mint_failed в debited перед повторной попыткой.
// Возвращает nil, если конвертацию уже обработали.
func (e *Economy) claim(ctx context.Context, id int64) (*model.Conversion, error) {
	var claimed *model.Conversion
	err := e.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		c, err := tx.GetConversion(ctx, id, true)
		if err != nil {
			return err
		}

		switch c.Status {
		case model.ConversionMintFailed:
			if err := transition(c, model.ConversionDebited); err != nil {
				return err
			}
			if err := tx.UpdateConversion(ctx, *c); err != nil {
				return err
			}
		case model.ConversionDebited:
			if !c.UpdatedAt.Before(e.now().Add(-StaleDebitedAfter)) {
				return nil
			}
			// отметка времени защищает от повторного захвата параллельным запуском
			if err := tx.UpdateConversion(ctx, *c); err != nil {
				return err
			}
		default:
			return nil
		}

		claimed = c
		return nil
	})
	return claimed, err
}

// AutoConvertThreshold конвертирует ровно AutoThreshold баллов за раз, пока баланс не меньше порога.
// Не более MaxAutoConversions итераций; останавливается на первой ошибке. Без привязанного адреса ничего не делает.
func (e *Economy) AutoConvertThreshold(ctx context.Context, userID int64) (int, error) {
	threshold := e.cfg.AutoThreshold
	if threshold <= 0 || e.minter == nil {
		return 0, nil
	}

	var address string
	err := e.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		address, err = tx.GetChainAddress(ctx, model.OwnerUser, userID)
		return err
	})
	if errors.Is(err, model.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	converted := 0
	for i := 0; i < MaxAutoConversions; i++ {
		bal, err := e.Balance(ctx, userID)
		if err != nil {
			return converted, err
		}
		if bal.TotalPoints < threshold {
			break
		}

		if _, err := e.ConvertPointsToTokens(ctx, userID, threshold, address); err != nil {
			return converted, err
		}
		converted++
	}

	return converted, nil
}

// AutoConvertAfterCommit запускает автоконвертацию и только логирует её ошибки.
func (e *Economy) AutoConvertAfterCommit(ctx context.Context, userID int64) {
	n, err := e.AutoConvertThreshold(ctx, userID)
	if err != nil {
		e.logger.Warn("auto conversion stopped", zap.Int64("userID", userID), zap.Int("converted", n), zap.Error(err))
		return
	}
	if n > 0 {
		e.logger.Info("auto conversion done", zap.Int64("userID", userID), zap.Int("converted", n))
	}
}

// Conversions возвращает конвертации пользователя, новые первыми.
func (e *Economy) Conversions(ctx context.Context, userID int64, limit int) ([]model.Conversion, error) {
	var res []model.Conversion
	err := e.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		res, err = tx.ListConversions(ctx, userID, limit)
		return err
	})
	return res, err
}
