// Package gamification вычисляет эко-оценку, уровень, значки, серию и прогресс челленджей.
//
// Реакция на событие описана как упорядоченный конвейер чистых стадий над снимком
// состояния пользователя. Каждая стадия читает только снимок и событие и добавляет
// свои записи в Writes; применение записей выполняет Engine.
package gamification

import (
	"math"
	"time"

	"github.com/mmeshcher/greenledger/internal/model"
)

const (
	scorePointsWeight = 0.1
	scoreCarbonWeight = 2.0
	maxScore          = 100.0
)

// Tier описывает ступень таблицы уровней.
type Tier struct {
	Name      string
	Threshold int64
}

// Levels задаёт уровни по убыванию порога.
var Levels = []Tier{
	{Name: "Carbon Champion", Threshold: 5000},
	{Name: "Eco Hero", Threshold: 3000},
	{Name: "Eco Warrior", Threshold: 1500},
	{Name: "Eco Starter", Threshold: 500},
	{Name: "Beginner", Threshold: 0},
}

// PointBadges перечисляет значки за накопленные баллы.
var PointBadges = []struct {
	Code      string
	Threshold int64
}{
	{Code: "POINTS_500", Threshold: 500},
	{Code: "POINTS_1500", Threshold: 1500},
	{Code: "POINTS_3000", Threshold: 3000},
	{Code: "POINTS_5000", Threshold: 5000},
}

// Коды значков, выдаваемых при завершении операции.
const (
	BadgeFirstTransaction = "FIRST_TRANSACTION"
	BadgeLowCarbonUser    = "LOW_CARBON_USER"
	BadgeEcoSaver         = "ECO_SAVER"
	BadgeCarbonChampion   = "CARBON_CHAMPION"
)

// Пороги значков за экономию, кг CO2.
const (
	LowCarbonSaving     = 0.1
	EcoSaverTotal       = 10.0
	CarbonChampionTotal = 50.0
)

// EventKind определяет событие, запускающее конвейер.
type EventKind int

const (
	// PointsAwarded: начисление баллов.
	PointsAwarded EventKind = iota
	// TransactionCompleted: завершение финансовой операции.
	TransactionCompleted
	// SavingRecorded: фиксация экономии CO2.
	SavingRecorded
)

// Event описывает событие для конвейера.
type Event struct {
	Kind   EventKind
	Points int64
	Saving float64
	// SkipChallenges отключает стадию челленджей. Выставляется для наград за сами челленджи.
	SkipChallenges bool
}

// Snapshot содержит состояние пользователя на момент события.
type Snapshot struct {
	UserID     int64
	Now        time.Time
	Balance    model.PointsBalance
	TotalSaved float64
	TxCount    int64
	Score      *model.EcoScore
	Level      *model.UserLevel
	Badges     map[string]bool
	Streak     *model.Streak
	Challenges []model.Challenge
	Progress   map[int64]model.ChallengeProgress
}

// Reward — бонус за выполненный челлендж.
type Reward struct {
	ChallengeCode string
	Points        int64
}

// Writes собирает изменения, которые нужно применить по итогам конвейера.
type Writes struct {
	Score    *model.EcoScore
	Level    *model.UserLevel
	Badges   []string
	Streak   *model.Streak
	Progress []model.ChallengeProgress
	Rewards  []Reward
}

// Stage — чистая стадия конвейера.
type Stage func(s Snapshot, ev Event, w *Writes)

// Run прогоняет событие через стадии в заданном порядке.
func Run(stages []Stage, s Snapshot, ev Event) Writes {
	var w Writes
	for _, stage := range stages {
		stage(s, ev, &w)
	}
	return w
}

// Score возвращает эко-оценку в диапазоне [0, 100] с округлением до сотых.
func Score(totalPoints int64, totalSaved float64) float64 {
	score := scorePointsWeight*float64(totalPoints) + scoreCarbonWeight*totalSaved
	score = math.Max(0, math.Min(maxScore, score))
	return math.Round(score*100) / 100
}

// LevelFor возвращает первую ступень, порог которой не превышает lifetime.
func LevelFor(lifetime int64) Tier {
	for _, t := range Levels {
		if lifetime >= t.Threshold {
			return t
		}
	}
	return Levels[len(Levels)-1]
}

// NextStreak возвращает серию после активности в момент at.
// Второй результат false, если активность в этот календарный день уже учтена.
func NextStreak(current *model.Streak, userID int64, at time.Time) (model.Streak, bool) {
	day := truncateDay(at)

	if current == nil {
		return model.Streak{UserID: userID, Current: 1, Longest: 1, LastActivity: at}, true
	}

	last := truncateDay(current.LastActivity)
	if day.Equal(last) || day.Before(last) {
		return *current, false
	}

	next := *current
	if day.Sub(last) == 24*time.Hour {
		next.Current++
	} else {
		next.Current = 1
	}
	if next.Current > next.Longest {
		next.Longest = next.Current
	}
	next.LastActivity = at
	return next, true
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ScoreStage пересчитывает эко-оценку.
func ScoreStage(s Snapshot, _ Event, w *Writes) {
	w.Score = &model.EcoScore{
		UserID:    s.UserID,
		Score:     Score(s.Balance.TotalPoints, s.TotalSaved),
		UpdatedAt: s.Now,
	}
}

// LevelStage пересчитывает уровень по пожизненным баллам. Понижение уровня не записывается.
func LevelStage(s Snapshot, _ Event, w *Writes) {
	tier := LevelFor(s.Balance.LifetimePoints)
	if s.Level != nil {
		if s.Level.Level == tier.Name && s.Level.PointsRequired == tier.Threshold {
			return
		}
		if s.Level.PointsRequired > tier.Threshold {
			return
		}
	}
	w.Level = &model.UserLevel{
		UserID:         s.UserID,
		Level:          tier.Name,
		PointsRequired: tier.Threshold,
		UpdatedAt:      s.Now,
	}
}

// PointBadgesStage выдаёт значки за накопленные пожизненные баллы.
func PointBadgesStage(s Snapshot, _ Event, w *Writes) {
	for _, b := range PointBadges {
		if s.Balance.LifetimePoints >= b.Threshold && !s.Badges[b.Code] {
			w.Badges = append(w.Badges, b.Code)
		}
	}
}

// TransactionBadgesStage выдаёт значки по итогам операции.
func TransactionBadgesStage(s Snapshot, ev Event, w *Writes) {
	grant := func(code string, ok bool) {
		if ok && !s.Badges[code] {
			w.Badges = append(w.Badges, code)
		}
	}

	grant(BadgeFirstTransaction, s.TxCount >= 1)
	grant(BadgeLowCarbonUser, ev.Saving >= LowCarbonSaving)
	grant(BadgeEcoSaver, s.TotalSaved >= EcoSaverTotal)
	grant(BadgeCarbonChampion, s.TotalSaved >= CarbonChampionTotal)
}

// StreakStage продлевает серию не чаще раза в календарный день.
func StreakStage(s Snapshot, _ Event, w *Writes) {
	next, changed := NextStreak(s.Streak, s.UserID, s.Now)
	if changed {
		w.Streak = &next
	}
}

// ChallengeStage увеличивает прогресс активных челленджей, соответствующих событию.
// Переход в выполненное состояние односторонний и порождает награду ровно один раз.
func ChallengeStage(s Snapshot, ev Event, w *Writes) {
	if ev.SkipChallenges {
		return
	}

	var (
		kind  model.ChallengeType
		delta float64
	)
	switch ev.Kind {
	case PointsAwarded:
		kind, delta = model.ChallengePointsEarned, float64(ev.Points)
	case TransactionCompleted:
		kind, delta = model.ChallengeTransactions, 1
	case SavingRecorded:
		kind, delta = model.ChallengeCarbonSaved, ev.Saving
	}
	if delta <= 0 {
		return
	}

	for _, ch := range s.Challenges {
		if !ch.Active || ch.Type != kind {
			continue
		}

		p, ok := s.Progress[ch.ID]
		if !ok {
			p = model.ChallengeProgress{UserID: s.UserID, ChallengeID: ch.ID}
		}
		if p.Completed {
			continue
		}

		p.Progress += delta
		if p.Progress >= ch.Goal {
			now := s.Now
			p.Completed = true
			p.CompletedAt = &now
			if ch.RewardPoints > 0 {
				w.Rewards = append(w.Rewards, Reward{ChallengeCode: ch.Code, Points: ch.RewardPoints})
			}
		}
		w.Progress = append(w.Progress, p)
	}
}

// Конвейеры по типам событий.
var (
	PointsPipeline      = []Stage{ScoreStage, LevelStage, PointBadgesStage, StreakStage, ChallengeStage}
	TransactionPipeline = []Stage{TransactionBadgesStage, ChallengeStage}
	SavingPipeline      = []Stage{ScoreStage, ChallengeStage}
)
