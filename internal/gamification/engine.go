package gamification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/greenledger/internal/model"
	"github.com/mmeshcher/greenledger/internal/store"
)

// Engine загружает снимок состояния, прогоняет конвейер и применяет записи в рамках единицы работы.
type Engine struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewEngine создаёт движок геймификации.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// OnPointsAwarded реагирует на начисление баллов. Возвращает награды за выполненные челленджи,
// которые вызывающий должен начислить с SkipChallenges.
func (e *Engine) OnPointsAwarded(ctx context.Context, tx store.Tx, userID, points int64, skipChallenges bool) ([]Reward, error) {
	return e.handle(ctx, tx, userID, PointsPipeline, Event{Kind: PointsAwarded, Points: points, SkipChallenges: skipChallenges})
}

// OnTransactionCompleted реагирует на завершение финансовой операции. saving — экономия по ней, кг.
func (e *Engine) OnTransactionCompleted(ctx context.Context, tx store.Tx, userID int64, saving float64) ([]Reward, error) {
	return e.handle(ctx, tx, userID, TransactionPipeline, Event{Kind: TransactionCompleted, Saving: saving})
}

// OnSavingRecorded реагирует на фиксацию экономии.
func (e *Engine) OnSavingRecorded(ctx context.Context, tx store.Tx, userID int64, saved float64) ([]Reward, error) {
	return e.handle(ctx, tx, userID, SavingPipeline, Event{Kind: SavingRecorded, Saving: saved})
}

func (e *Engine) handle(ctx context.Context, tx store.Tx, userID int64, stages []Stage, ev Event) ([]Reward, error) {
	snap, err := e.Load(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	w := Run(stages, snap, ev)
	if err := e.Apply(ctx, tx, userID, w); err != nil {
		return nil, err
	}
	return w.Rewards, nil
}

// Load собирает снимок состояния пользователя.
func (e *Engine) Load(ctx context.Context, tx store.Tx, userID int64) (Snapshot, error) {
	snap := Snapshot{
		UserID:   userID,
		Now:      e.now(),
		Badges:   make(map[string]bool),
		Progress: make(map[int64]model.ChallengeProgress),
	}

	balance, err := tx.GetPointsBalance(ctx, userID)
	if err != nil {
		return snap, fmt.Errorf("load points balance: %w", err)
	}
	snap.Balance = *balance

	if snap.TotalSaved, err = tx.SumSavings(ctx, userID); err != nil {
		return snap, fmt.Errorf("load savings: %w", err)
	}
	if snap.TxCount, err = tx.CountFinancialTransactions(ctx, userID); err != nil {
		return snap, fmt.Errorf("load transaction count: %w", err)
	}

	if snap.Score, err = optional(tx.GetEcoScore(ctx, userID)); err != nil {
		return snap, fmt.Errorf("load score: %w", err)
	}
	if snap.Level, err = optional(tx.GetUserLevel(ctx, userID)); err != nil {
		return snap, fmt.Errorf("load level: %w", err)
	}
	if snap.Streak, err = optional(tx.GetStreak(ctx, userID)); err != nil {
		return snap, fmt.Errorf("load streak: %w", err)
	}

	badges, err := tx.ListUserBadges(ctx, userID)
	if err != nil {
		return snap, fmt.Errorf("load badges: %w", err)
	}
	for _, b := range badges {
		snap.Badges[b.Code] = true
	}

	if snap.Challenges, err = tx.ListActiveChallenges(ctx); err != nil {
		return snap, fmt.Errorf("load challenges: %w", err)
	}

	progress, err := tx.ListChallengeProgress(ctx, userID)
	if err != nil {
		return snap, fmt.Errorf("load challenge progress: %w", err)
	}
	for _, p := range progress {
		snap.Progress[p.ChallengeID] = p
	}

	return snap, nil
}

func optional[T any](v *T, err error) (*T, error) {
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	return v, err
}

// Apply записывает результаты конвейера.
func (e *Engine) Apply(ctx context.Context, tx store.Tx, userID int64, w Writes) error {
	if w.Score != nil {
		if err := tx.SaveEcoScore(ctx, *w.Score); err != nil {
			return err
		}
	}

	if w.Level != nil {
		if err := tx.SaveUserLevel(ctx, *w.Level); err != nil {
			return err
		}
		e.logger.Info("level changed", zap.Int64("userID", userID), zap.String("level", w.Level.Level))
	}

	for _, code := range w.Badges {
		granted, err := tx.GrantBadge(ctx, userID, code, e.now())
		if errors.Is(err, model.ErrNotFound) {
			e.logger.Warn("badge missing from catalog", zap.String("code", code))
			continue
		}
		if err != nil {
			return fmt.Errorf("grant badge %s: %w", code, err)
		}
		if granted {
			e.logger.Info("badge granted", zap.Int64("userID", userID), zap.String("code", code))
		}
	}

	if w.Streak != nil {
		if err := tx.SaveStreak(ctx, *w.Streak); err != nil {
			return err
		}
	}

	for _, p := range w.Progress {
		if err := tx.SaveChallengeProgress(ctx, p); err != nil {
			return err
		}
	}

	return nil
}

// ChallengeStatus — челлендж вместе с прогрессом пользователя.
type ChallengeStatus struct {
	Challenge model.Challenge
	Progress  model.ChallengeProgress
}

// Profile — сводка геймификации пользователя.
type Profile struct {
	Score      float64
	Level      Tier
	Badges     []model.UserBadge
	Streak     model.Streak
	Challenges []ChallengeStatus
}

// Profile собирает сводку геймификации пользователя.
func (e *Engine) Profile(ctx context.Context, tx store.Tx, userID int64) (*Profile, error) {
	snap, err := e.Load(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	p := &Profile{
		Level:  LevelFor(snap.Balance.LifetimePoints),
		Streak: model.Streak{UserID: userID},
	}
	if snap.Score != nil {
		p.Score = snap.Score.Score
	}
	if snap.Level != nil {
		p.Level = Tier{Name: snap.Level.Level, Threshold: snap.Level.PointsRequired}
	}
	if snap.Streak != nil {
		p.Streak = *snap.Streak
	}

	if p.Badges, err = tx.ListUserBadges(ctx, userID); err != nil {
		return nil, err
	}

	for _, ch := range snap.Challenges {
		prog, ok := snap.Progress[ch.ID]
		if !ok {
			prog = model.ChallengeProgress{UserID: userID, ChallengeID: ch.ID}
		}
		p.Challenges = append(p.Challenges, ChallengeStatus{Challenge: ch, Progress: prog})
	}

	return p, nil
}
