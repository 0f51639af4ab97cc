// Package ecopoints реализует экономику эко-баллов: начисление, списание и конвертацию в токены.
package ecopoints

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/greenledger/internal/chain"
	"github.com/mmeshcher/greenledger/internal/gamification"
	"github.com/mmeshcher/greenledger/internal/metrics"
	"github.com/mmeshcher/greenledger/internal/model"
	"github.com/mmeshcher/greenledger/internal/store"
)

const (
	// DefaultMultiplier — баллов за килограмм сэкономленного CO2.
	DefaultMultiplier = 100
	// MaxAutoConversions ограничивает число конвертаций за один вызов AutoConvertThreshold.
	MaxAutoConversions = 10

	savingRewardDescription = "Eco points awarded for carbon savings"
	challengeRewardPrefix   = "CHALLENGE:"
)

// Config задаёт параметры экономики баллов.
type Config struct {
	// Токенов за один балл.
	ConversionRate decimal.Decimal
	// AutoThreshold — порог автоконвертации; 0 отключает её.
	AutoThreshold int64
	// Баллов за килограмм сэкономленного CO2.
	Multiplier float64
}

// Economy управляет балансами эко-баллов и конвертациями.
type Economy struct {
	store  store.Store
	engine *gamification.Engine
	minter chain.Minter
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// NewEconomy создаёт сервис экономики баллов.
func NewEconomy(s store.Store, engine *gamification.Engine, minter chain.Minter, cfg Config, logger *zap.Logger) *Economy {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ConversionRate.IsZero() {
		cfg.ConversionRate = decimal.NewFromInt(1)
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = DefaultMultiplier
	}
	return &Economy{
		store:  s,
		engine: engine,
		minter: minter,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// PointsForSaving переводит экономию в баллы с округлением до целого.
func PointsForSaving(saved, multiplier float64) int64 {
	return decimal.NewFromFloat(saved).Mul(decimal.NewFromFloat(multiplier)).Round(0).IntPart()
}

// AwardPoints начисляет баллы и запускает автоконвертацию после фиксации.
// Возвращает nil без ошибки, если points <= 0.
func (e *Economy) AwardPoints(ctx context.Context, userID, points int64, action model.PointsAction, description string, txID *int64) (*model.PointsTransaction, error) {
	var res *model.PointsTransaction
	err := e.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		res, err = e.AwardTx(ctx, tx, userID, points, action, description, txID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if res != nil {
		e.AutoConvertAfterCommit(ctx, userID)
	}
	return res, nil
}

// AwardTx начисляет баллы внутри открытой единицы работы и реагирует на это геймификацией.
func (e *Economy) AwardTx(ctx context.Context, tx store.Tx, userID, points int64, action model.PointsAction, description string, txID *int64) (*model.PointsTransaction, error) {
	return e.award(ctx, tx, userID, points, action, description, txID, false)
}

func (e *Economy) award(ctx context.Context, tx store.Tx, userID, points int64, action model.PointsAction, description string, txID *int64, skipChallenges bool) (*model.PointsTransaction, error) {
	if points <= 0 {
		return nil, nil
	}

	bal, err := tx.LockPointsBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	bal.TotalPoints += points
	bal.LifetimePoints += points
	bal.UpdatedAt = e.now()
	if err := tx.SavePointsBalance(ctx, *bal); err != nil {
		return nil, fmt.Errorf("save points balance: %w", err)
	}

	entry, err := tx.CreatePointsTransaction(ctx, model.PointsTransaction{
		UserID:        userID,
		TransactionID: txID,
		Points:        points,
		Action:        action,
		Description:   description,
		CreatedAt:     e.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("create points transaction: %w", err)
	}

	rewards, err := e.engine.OnPointsAwarded(ctx, tx, userID, points, skipChallenges)
	if err != nil {
		return nil, fmt.Errorf("gamification: %w", err)
	}
	if err := e.GrantRewardsTx(ctx, tx, userID, rewards); err != nil {
		return nil, err
	}

	metrics.RecordPointsAwarded(string(action), points)
	return entry, nil
}

// GrantRewardsTx начисляет награды за выполненные челленджи.
// Награды не продвигают челленджи повторно.
func (e *Economy) GrantRewardsTx(ctx context.Context, tx store.Tx, userID int64, rewards []gamification.Reward) error {
	for _, r := range rewards {
		_, err := e.award(ctx, tx, userID, r.Points, model.ActionBonus, challengeRewardPrefix+r.ChallengeCode, nil, true)
		if err != nil {
			return fmt.Errorf("challenge reward %s: %w", r.ChallengeCode, err)
		}
		e.logger.Info("challenge completed",
			zap.Int64("userID", userID),
			zap.String("challenge", r.ChallengeCode),
			zap.Int64("points", r.Points),
		)
	}
	return nil
}

// AwardForCarbonSavingTx начисляет баллы за экономию по углеродной записи.
// Ничего не делает, если экономии нет или она округляется до нуля.
func (e *Economy) AwardForCarbonSavingTx(ctx context.Context, tx store.Tx, userID, txID, carbonRecordID int64) (*model.PointsTransaction, error) {
	saving, err := tx.GetSavingByRecord(ctx, carbonRecordID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	points := PointsForSaving(saving.SavedAmount, e.cfg.Multiplier)
	if points <= 0 {
		return nil, nil
	}

	return e.AwardTx(ctx, tx, userID, points, model.ActionReward, savingRewardDescription, &txID)
}

// AwardForCarbonSaving выполняет AwardForCarbonSavingTx в собственной единице работы.
func (e *Economy) AwardForCarbonSaving(ctx context.Context, userID, txID, carbonRecordID int64) (*model.PointsTransaction, error) {
	var res *model.PointsTransaction
	err := e.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		res, err = e.AwardForCarbonSavingTx(ctx, tx, userID, txID, carbonRecordID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if res != nil {
		e.AutoConvertAfterCommit(ctx, userID)
	}
	return res, nil
}

// RedeemTx списывает баллы внутри открытой единицы работы. Пожизненные баллы не уменьшаются.
func (e *Economy) RedeemTx(ctx context.Context, tx store.Tx, userID, points int64, description string) (*model.PointsTransaction, error) {
	if points <= 0 {
		return nil, model.ErrInvalidAmount
	}

	bal, err := tx.LockPointsBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if bal.TotalPoints < points {
		return nil, model.ErrInsufficientPoints
	}

	bal.TotalPoints -= points
	bal.UpdatedAt = e.now()
	if err := tx.SavePointsBalance(ctx, *bal); err != nil {
		return nil, fmt.Errorf("save points balance: %w", err)
	}

	entry, err := tx.CreatePointsTransaction(ctx, model.PointsTransaction{
		UserID:      userID,
		Points:      -points,
		Action:      model.ActionRedemption,
		Description: description,
		CreatedAt:   e.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("create points transaction: %w", err)
	}
	return entry, nil
}

// RedeemPoints списывает баллы пользователя.
func (e *Economy) RedeemPoints(ctx context.Context, userID, points int64, description string) (*model.PointsTransaction, error) {
	var res *model.PointsTransaction
	err := e.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		res, err = e.RedeemTx(ctx, tx, userID, points, description)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordPointsRedeemed(points)
	return res, nil
}

// Balance возвращает баланс баллов пользователя.
func (e *Economy) Balance(ctx context.Context, userID int64) (*model.PointsBalance, error) {
	var res *model.PointsBalance
	err := e.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		res, err = tx.GetPointsBalance(ctx, userID)
		return err
	})
	return res, err
}

// History возвращает журнал баллов пользователя, новые записи первыми.
func (e *Economy) History(ctx context.Context, userID int64, limit int) ([]model.PointsTransaction, error) {
	var res []model.PointsTransaction
	err := e.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		res, err = tx.ListPointsTransactions(ctx, userID, limit)
		return err
	})
	return res, err
}

// Convertible — сколько баллов можно конвертировать при пороге.
type Convertible struct {
	Available int64
	Remainder int64
	Threshold int64
}

// ConvertibleFor рассчитывает доступные к конвертации баллы.
func ConvertibleFor(total, threshold int64) Convertible {
	if threshold <= 0 {
		return Convertible{Threshold: threshold}
	}
	return Convertible{
		Available: total / threshold * threshold,
		Remainder: total % threshold,
		Threshold: threshold,
	}
}

// ConvertibleInfo возвращает доступные к конвертации баллы пользователя.
func (e *Economy) ConvertibleInfo(ctx context.Context, userID int64) (Convertible, error) {
	bal, err := e.Balance(ctx, userID)
	if err != nil {
		return Convertible{}, err
	}
	return ConvertibleFor(bal.TotalPoints, e.cfg.AutoThreshold), nil
}
