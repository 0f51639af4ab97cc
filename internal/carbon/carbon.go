// Package carbon рассчитывает выбросы CO2 по финансовым операциям и фиксирует экономию.
package carbon

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/greenledger/internal/model"
	"github.com/mmeshcher/greenledger/internal/store"
)

const (
	// DefaultEmissionRate применяется, если в справочнике нет ни категории, ни FallbackCategory.
	DefaultEmissionRate = 0.0003
	// FallbackCategory — категория, коэффициент которой используется для неизвестных категорий.
	FallbackCategory = "Other"
)

// Result — результат расчёта выбросов для суммы.
type Result struct {
	Factor   float64
	Emission float64
	Saved    float64
}

// Compute рассчитывает выбросы и экономию для суммы в минимальных единицах.
// f == nil означает отсутствие коэффициента в справочнике.
func Compute(amountMinor int64, f *model.EmissionFactor) Result {
	major := decimal.NewFromInt(amountMinor).Shift(-2)

	if f == nil {
		factor := decimal.NewFromFloat(DefaultEmissionRate)
		return Result{
			Factor:   DefaultEmissionRate,
			Emission: major.Mul(factor).InexactFloat64(),
		}
	}

	emission := major.Mul(decimal.NewFromFloat(f.CO2PerUnit))
	res := Result{
		Factor:   f.CO2PerUnit,
		Emission: emission.InexactFloat64(),
	}

	if f.BaselineCO2PerUnit != nil && *f.BaselineCO2PerUnit > 0 {
		saved := major.Mul(decimal.NewFromFloat(*f.BaselineCO2PerUnit)).Sub(emission)
		if saved.IsPositive() {
			res.Saved = saved.InexactFloat64()
		}
	}

	return res
}

// MapCategory переводит категорию платежа в категорию справочника коэффициентов.
func MapCategory(paymentCategory string) string {
	switch paymentCategory {
	case "Gas":
		return "Utilities"
	case "Shopping", "payment":
		return "Shopping"
	case "Travel", "Sustainable Travel":
		return "Travel"
	default:
		return FallbackCategory
	}
}

// Accounting фиксирует углеродные записи и экономию в рамках единицы работы.
type Accounting struct {
	logger *zap.Logger
}

// NewAccounting создаёт сервис углеродного учёта.
func NewAccounting(logger *zap.Logger) *Accounting {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Accounting{logger: logger}
}

// LookupFactor ищет коэффициент по точному совпадению категории с откатом на FallbackCategory.
// Возвращает nil, если не найдено ни одного.
func LookupFactor(ctx context.Context, tx store.ReferenceStore, category string) (*model.EmissionFactor, error) {
	f, err := tx.GetEmissionFactor(ctx, category)
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	f, err = tx.GetEmissionFactor(ctx, FallbackCategory)
	if err == nil {
		return f, nil
	}
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	return nil, err
}

// ComputeAndRecord рассчитывает выбросы по операции и сохраняет запись.
// Экономия сохраняется только если она положительна; иначе второй результат равен nil.
func (a *Accounting) ComputeAndRecord(ctx context.Context, tx store.Tx, userID, financialTxID, amountMinor int64, category string) (*model.CarbonRecord, *model.CarbonSaving, error) {
	if amountMinor <= 0 {
		return nil, nil, model.ErrInvalidAmount
	}

	f, err := LookupFactor(ctx, tx, category)
	if err != nil {
		return nil, nil, fmt.Errorf("lookup emission factor: %w", err)
	}

	res := Compute(amountMinor, f)

	record, err := tx.CreateCarbonRecord(ctx, model.CarbonRecord{
		UserID:         userID,
		TransactionID:  financialTxID,
		Category:       category,
		Amount:         amountMinor,
		EmissionFactor: res.Factor,
		Emission:       res.Emission,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create carbon record: %w", err)
	}

	if res.Saved <= 0 {
		return record, nil, nil
	}

	saving, err := tx.CreateCarbonSaving(ctx, model.CarbonSaving{
		UserID:         userID,
		CarbonRecordID: record.ID,
		SavedAmount:    res.Saved,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create carbon saving: %w", err)
	}

	a.logger.Debug("carbon recorded",
		zap.Int64("userID", userID),
		zap.Int64("transactionID", financialTxID),
		zap.Float64("emission", res.Emission),
		zap.Float64("saved", res.Saved),
	)

	return record, saving, nil
}

// Estimate рассчитывает выбросы без сохранения.
func (a *Accounting) Estimate(ctx context.Context, tx store.ReferenceStore, amountMinor int64, category string) (Result, error) {
	if amountMinor <= 0 {
		return Result{}, model.ErrInvalidAmount
	}

	f, err := LookupFactor(ctx, tx, category)
	if err != nil {
		return Result{}, fmt.Errorf("lookup emission factor: %w", err)
	}
	return Compute(amountMinor, f), nil
}
