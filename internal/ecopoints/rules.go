package ecopoints

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/mmeshcher/greenledger/internal/model"
	"github.com/mmeshcher/greenledger/internal/store"
)

const (
	// LowCarbonBonus начисляется за операцию с экономией не меньше LowCarbonThreshold кг.
	LowCarbonBonus     = 50
	LowCarbonThreshold = 0.1
	// DailyActivityBonus начисляется не чаще раза в сутки (UTC).
	DailyActivityBonus = 20
	// MilestoneBonus начисляется однократно за каждый порог из Milestones.
	MilestoneBonus = 500

	lowCarbonDescription = "Low carbon transaction"
	dailyDescription     = "Daily eco activity"
	milestonePrefix      = "MILESTONE:"
)

// Milestones — пороги накопленной экономии, кг.
var Milestones = []int{5, 10, 25, 50}

// ApplyRewardRulesTx применяет бонусные правила к завершённой операции с экономией saving кг.
// Ничего не делает при неположительной экономии.
func (e *Economy) ApplyRewardRulesTx(ctx context.Context, tx store.Tx, userID, txID int64, saving float64) error {
	if saving <= 0 {
		return nil
	}

	if saving >= LowCarbonThreshold {
		if _, err := e.AwardTx(ctx, tx, userID, LowCarbonBonus, model.ActionBonus, lowCarbonDescription, &txID); err != nil {
			return fmt.Errorf("low carbon bonus: %w", err)
		}
	}

	now := e.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	done, err := tx.PointsTransactionExists(ctx, userID, model.ActionBonus, dailyDescription, dayStart)
	if err != nil {
		return err
	}
	if !done {
		if _, err := e.AwardTx(ctx, tx, userID, DailyActivityBonus, model.ActionBonus, dailyDescription, &txID); err != nil {
			return fmt.Errorf("daily bonus: %w", err)
		}
	}

	rewards, err := e.engine.OnSavingRecorded(ctx, tx, userID, saving)
	if err != nil {
		return fmt.Errorf("gamification: %w", err)
	}
	if err := e.GrantRewardsTx(ctx, tx, userID, rewards); err != nil {
		return err
	}

	total, err := tx.SumSavings(ctx, userID)
	if err != nil {
		return err
	}
	for _, m := range Milestones {
		if total < float64(m) {
			break
		}
		desc := milestonePrefix + strconv.Itoa(m)
		granted, err := tx.PointsTransactionExists(ctx, userID, model.ActionBonus, desc, time.Time{})
		if err != nil {
			return err
		}
		if granted {
			continue
		}
		if _, err := e.AwardTx(ctx, tx, userID, MilestoneBonus, model.ActionBonus, desc, &txID); err != nil {
			return fmt.Errorf("milestone %d: %w", m, err)
		}
	}

	return nil
}
