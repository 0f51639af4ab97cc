package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/greenledger/internal/model"
)

func scanBalance(row pgx.Row) (*model.PointsBalance, error) {
	var b model.PointsBalance
	if err := row.Scan(&b.UserID, &b.TotalPoints, &b.LifetimePoints, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func (t *pgTx) LockPointsBalance(ctx context.Context, userID int64) (*model.PointsBalance, error) {
	_, err := t.tx.Exec(ctx, `INSERT INTO eco_points_balances (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return nil, fmt.Errorf("ensure points balance: %w", err)
	}

	query := `SELECT user_id, total_points, lifetime_points, updated_at FROM eco_points_balances WHERE user_id = $1 FOR UPDATE`
	b, err := scanBalance(t.tx.QueryRow(ctx, query, userID))
	if err != nil {
		return nil, fmt.Errorf("lock points balance: %w", err)
	}
	return b, nil
}

func (t *pgTx) GetPointsBalance(ctx context.Context, userID int64) (*model.PointsBalance, error) {
	query := `SELECT user_id, total_points, lifetime_points, updated_at FROM eco_points_balances WHERE user_id = $1`
	b, err := scanBalance(t.tx.QueryRow(ctx, query, userID))
	if err != nil {
		if isNoRows(err) {
			return &model.PointsBalance{UserID: userID}, nil
		}
		return nil, fmt.Errorf("get points balance: %w", err)
	}
	return b, nil
}

func (t *pgTx) SavePointsBalance(ctx context.Context, b model.PointsBalance) error {
	query := `
		INSERT INTO eco_points_balances (user_id, total_points, lifetime_points, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id) DO UPDATE
		SET total_points = EXCLUDED.total_points,
		    lifetime_points = EXCLUDED.lifetime_points,
		    updated_at = EXCLUDED.updated_at`

	if _, err := t.tx.Exec(ctx, query, b.UserID, b.TotalPoints, b.LifetimePoints); err != nil {
		return fmt.Errorf("save points balance: %w", err)
	}
	return nil
}

const pointsTxColumns = `id, user_id, transaction_id, points, action_type, description, created_at`

func scanPointsTx(row pgx.Row) (*model.PointsTransaction, error) {
	var pt model.PointsTransaction
	err := row.Scan(&pt.ID, &pt.UserID, &pt.TransactionID, &pt.Points, &pt.Action, &pt.Description, &pt.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &pt, nil
}

func (t *pgTx) CreatePointsTransaction(ctx context.Context, pt model.PointsTransaction) (*model.PointsTransaction, error) {
	query := `
		INSERT INTO eco_points_transactions (user_id, transaction_id, points, action_type, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + pointsTxColumns

	created, err := scanPointsTx(t.tx.QueryRow(ctx, query, pt.UserID, pt.TransactionID, pt.Points, pt.Action, pt.Description))
	if err != nil {
		return nil, fmt.Errorf("insert points transaction: %w", err)
	}
	return created, nil
}

func (t *pgTx) ListPointsTransactions(ctx context.Context, userID int64, limit int) ([]model.PointsTransaction, error) {
	query := `
		SELECT ` + pointsTxColumns + `
		FROM eco_points_transactions
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2`

	rows, err := t.tx.Query(ctx, query, userID, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("query points transactions: %w", err)
	}
	return collect(rows, scanPointsTx)
}

func (t *pgTx) PointsTransactionExists(ctx context.Context, userID int64, action model.PointsAction, description string, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM eco_points_transactions
			WHERE user_id = $1 AND action_type = $2 AND description = $3 AND created_at >= $4
		)`

	var exists bool
	if err := t.tx.QueryRow(ctx, query, userID, action, description, since).Scan(&exists); err != nil {
		return false, fmt.Errorf("check points transaction: %w", err)
	}
	return exists, nil
}
