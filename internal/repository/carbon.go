package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/greenledger/internal/model"
)

const recordColumns = `id, user_id, transaction_id, category, amount, emission_factor, emission, created_at`

func scanRecord(row pgx.Row) (*model.CarbonRecord, error) {
	var r model.CarbonRecord
	err := row.Scan(&r.ID, &r.UserID, &r.TransactionID, &r.Category, &r.Amount, &r.EmissionFactor, &r.Emission, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (t *pgTx) CreateCarbonRecord(ctx context.Context, r model.CarbonRecord) (*model.CarbonRecord, error) {
	query := `
		INSERT INTO carbon_records (user_id, transaction_id, category, amount, emission_factor, emission)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + recordColumns

	created, err := scanRecord(t.tx.QueryRow(ctx, query,
		r.UserID, r.TransactionID, r.Category, r.Amount, r.EmissionFactor, r.Emission))
	if err != nil {
		if uniqueViolation(err) {
			return nil, model.ErrConflict
		}
		return nil, fmt.Errorf("insert carbon record: %w", err)
	}
	return created, nil
}

func (t *pgTx) GetCarbonRecord(ctx context.Context, id int64) (*model.CarbonRecord, error) {
	r, err := scanRecord(t.tx.QueryRow(ctx, `SELECT `+recordColumns+` FROM carbon_records WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "carbon record")
	}
	return r, nil
}

const savingColumns = `id, user_id, carbon_record_id, saved_amount, owner_type, owner_id, created_at`

func scanSaving(row pgx.Row) (*model.CarbonSaving, error) {
	var s model.CarbonSaving
	err := row.Scan(&s.ID, &s.UserID, &s.CarbonRecordID, &s.SavedAmount, &s.OwnerType, &s.OwnerID, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (t *pgTx) CreateCarbonSaving(ctx context.Context, s model.CarbonSaving) (*model.CarbonSaving, error) {
	if s.SavedAmount <= 0 {
		return nil, model.ErrInvalidAmount
	}

	query := `
		INSERT INTO carbon_savings (user_id, carbon_record_id, saved_amount, owner_type, owner_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + savingColumns

	created, err := scanSaving(t.tx.QueryRow(ctx, query, s.UserID, s.CarbonRecordID, s.SavedAmount, s.OwnerType, s.OwnerID))
	if err != nil {
		if uniqueViolation(err) {
			return nil, model.ErrConflict
		}
		return nil, fmt.Errorf("insert carbon saving: %w", err)
	}
	return created, nil
}

func (t *pgTx) GetSavingByRecord(ctx context.Context, recordID int64) (*model.CarbonSaving, error) {
	s, err := scanSaving(t.tx.QueryRow(ctx, `SELECT `+savingColumns+` FROM carbon_savings WHERE carbon_record_id = $1`, recordID))
	if err != nil {
		return nil, notFound(err, "carbon saving")
	}
	return s, nil
}

func (t *pgTx) GetSaving(ctx context.Context, id int64, forUpdate bool) (*model.CarbonSaving, error) {
	query := `SELECT ` + savingColumns + ` FROM carbon_savings WHERE id = $1` + lockClause(forUpdate)
	s, err := scanSaving(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "carbon saving")
	}
	return s, nil
}

func (t *pgTx) ListSavings(ctx context.Context, userID int64) ([]model.CarbonSaving, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+savingColumns+` FROM carbon_savings WHERE user_id = $1 ORDER BY id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query savings: %w", err)
	}
	return collect(rows, scanSaving)
}

func (t *pgTx) SumSavings(ctx context.Context, userID int64) (float64, error) {
	var sum float64
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(saved_amount), 0) FROM carbon_savings WHERE user_id = $1`, userID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum savings: %w", err)
	}
	return sum, nil
}

func (t *pgTx) SumAllSavings(ctx context.Context) (float64, error) {
	var sum float64
	if err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(saved_amount), 0) FROM carbon_savings`).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum all savings: %w", err)
	}
	return sum, nil
}

func (t *pgTx) ListUsersWithSavings(ctx context.Context) ([]int64, error) {
	rows, err := t.tx.Query(ctx, `SELECT DISTINCT user_id FROM carbon_savings ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("query saving users: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("collect saving users: %w", err)
	}
	return ids, nil
}

func (t *pgTx) ReassignSaving(ctx context.Context, savingID int64, owner model.OwnerType, ownerID int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE carbon_savings SET owner_type = $1, owner_id = $2 WHERE id = $3`, owner, ownerID, savingID)
	if err != nil {
		return fmt.Errorf("reassign saving: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}
