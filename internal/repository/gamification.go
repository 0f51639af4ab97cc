package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/greenledger/internal/model"
)

func (t *pgTx) GetEcoScore(ctx context.Context, userID int64) (*model.EcoScore, error) {
	var s model.EcoScore
	err := t.tx.QueryRow(ctx, `SELECT user_id, score, updated_at FROM eco_scores WHERE user_id = $1`, userID).
		Scan(&s.UserID, &s.Score, &s.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "eco score")
	}
	return &s, nil
}

func (t *pgTx) SaveEcoScore(ctx context.Context, s model.EcoScore) error {
	query := `
		INSERT INTO eco_scores (user_id, score, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET score = EXCLUDED.score, updated_at = EXCLUDED.updated_at`

	if _, err := t.tx.Exec(ctx, query, s.UserID, s.Score, s.UpdatedAt); err != nil {
		return fmt.Errorf("save eco score: %w", err)
	}
	return nil
}

func (t *pgTx) GetUserLevel(ctx context.Context, userID int64) (*model.UserLevel, error) {
	var l model.UserLevel
	err := t.tx.QueryRow(ctx, `SELECT user_id, level, points_required, updated_at FROM eco_user_levels WHERE user_id = $1`, userID).
		Scan(&l.UserID, &l.Level, &l.PointsRequired, &l.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "user level")
	}
	return &l, nil
}

func (t *pgTx) SaveUserLevel(ctx context.Context, l model.UserLevel) error {
	query := `
		INSERT INTO eco_user_levels (user_id, level, points_required, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET level = EXCLUDED.level, points_required = EXCLUDED.points_required, updated_at = EXCLUDED.updated_at`

	if _, err := t.tx.Exec(ctx, query, l.UserID, l.Level, l.PointsRequired, l.UpdatedAt); err != nil {
		return fmt.Errorf("save user level: %w", err)
	}
	return nil
}

func (t *pgTx) ListBadges(ctx context.Context) ([]model.Badge, error) {
	rows, err := t.tx.Query(ctx, `SELECT code, name, description FROM badges ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("query badges: %w", err)
	}
	return collect(rows, func(row pgx.Row) (*model.Badge, error) {
		var b model.Badge
		if err := row.Scan(&b.Code, &b.Name, &b.Description); err != nil {
			return nil, err
		}
		return &b, nil
	})
}

func (t *pgTx) ListUserBadges(ctx context.Context, userID int64) ([]model.UserBadge, error) {
	rows, err := t.tx.Query(ctx, `SELECT user_id, badge_code, awarded_at FROM user_badges WHERE user_id = $1 ORDER BY badge_code`, userID)
	if err != nil {
		return nil, fmt.Errorf("query user badges: %w", err)
	}
	return collect(rows, func(row pgx.Row) (*model.UserBadge, error) {
		var ub model.UserBadge
		if err := row.Scan(&ub.UserID, &ub.Code, &ub.AwardedAt); err != nil {
			return nil, err
		}
		return &ub, nil
	})
}

func (t *pgTx) GrantBadge(ctx context.Context, userID int64, code string, at time.Time) (bool, error) {
	var known bool
	if err := t.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM badges WHERE code = $1)`, code).Scan(&known); err != nil {
		return false, fmt.Errorf("check badge: %w", err)
	}
	if !known {
		return false, model.ErrNotFound
	}

	tag, err := t.tx.Exec(ctx, `
		INSERT INTO user_badges (user_id, badge_code, awarded_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, badge_code) DO NOTHING`, userID, code, at)
	if err != nil {
		return false, fmt.Errorf("grant badge: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) GetStreak(ctx context.Context, userID int64) (*model.Streak, error) {
	var s model.Streak
	err := t.tx.QueryRow(ctx, `SELECT user_id, current_streak, longest_streak, last_activity FROM eco_streaks WHERE user_id = $1`, userID).
		Scan(&s.UserID, &s.Current, &s.Longest, &s.LastActivity)
	if err != nil {
		return nil, notFound(err, "streak")
	}
	return &s, nil
}

func (t *pgTx) SaveStreak(ctx context.Context, s model.Streak) error {
	query := `
		INSERT INTO eco_streaks (user_id, current_streak, longest_streak, last_activity) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET current_streak = EXCLUDED.current_streak,
		    longest_streak = EXCLUDED.longest_streak,
		    last_activity = EXCLUDED.last_activity`

	if _, err := t.tx.Exec(ctx, query, s.UserID, s.Current, s.Longest, s.LastActivity); err != nil {
		return fmt.Errorf("save streak: %w", err)
	}
	return nil
}

func (t *pgTx) ListActiveChallenges(ctx context.Context) ([]model.Challenge, error) {
	query := `
		SELECT id, code, name, description, type, goal_value, reward_points, active
		FROM challenges
		WHERE active
		ORDER BY id`

	rows, err := t.tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query challenges: %w", err)
	}
	return collect(rows, func(row pgx.Row) (*model.Challenge, error) {
		var c model.Challenge
		if err := row.Scan(&c.ID, &c.Code, &c.Name, &c.Description, &c.Type, &c.Goal, &c.RewardPoints, &c.Active); err != nil {
			return nil, err
		}
		return &c, nil
	})
}

func scanProgress(row pgx.Row) (*model.ChallengeProgress, error) {
	var p model.ChallengeProgress
	if err := row.Scan(&p.UserID, &p.ChallengeID, &p.Progress, &p.Completed, &p.CompletedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *pgTx) GetChallengeProgress(ctx context.Context, userID, challengeID int64) (*model.ChallengeProgress, error) {
	query := `
		SELECT user_id, challenge_id, progress_value, completed, completed_at
		FROM user_challenge_progress
		WHERE user_id = $1 AND challenge_id = $2
		FOR UPDATE`

	p, err := scanProgress(t.tx.QueryRow(ctx, query, userID, challengeID))
	if err != nil {
		return nil, notFound(err, "challenge progress")
	}
	return p, nil
}

func (t *pgTx) SaveChallengeProgress(ctx context.Context, p model.ChallengeProgress) error {
	query := `
		INSERT INTO user_challenge_progress (user_id, challenge_id, progress_value, completed, completed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, challenge_id) DO UPDATE
		SET progress_value = EXCLUDED.progress_value,
		    completed = EXCLUDED.completed,
		    completed_at = EXCLUDED.completed_at`

	if _, err := t.tx.Exec(ctx, query, p.UserID, p.ChallengeID, p.Progress, p.Completed, p.CompletedAt); err != nil {
		return fmt.Errorf("save challenge progress: %w", err)
	}
	return nil
}

func (t *pgTx) ListChallengeProgress(ctx context.Context, userID int64) ([]model.ChallengeProgress, error) {
	query := `
		SELECT user_id, challenge_id, progress_value, completed, completed_at
		FROM user_challenge_progress
		WHERE user_id = $1
		ORDER BY challenge_id`

	rows, err := t.tx.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query challenge progress: %w", err)
	}
	return collect(rows, scanProgress)
}
