package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/greenledger/internal/model"
)

const finTxColumns = `id, user_id, amount, currency, direction, category, description, status, payment_ref, created_at`

func scanFinTx(row pgx.Row) (*model.FinancialTransaction, error) {
	var ft model.FinancialTransaction
	err := row.Scan(&ft.ID, &ft.UserID, &ft.Amount, &ft.Currency, &ft.Direction,
		&ft.Category, &ft.Description, &ft.Status, &ft.PaymentRef, &ft.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &ft, nil
}

func (t *pgTx) CreateFinancialTransaction(ctx context.Context, ft model.FinancialTransaction) (*model.FinancialTransaction, error) {
	query := `
		INSERT INTO financial_transactions (user_id, amount, currency, direction, category, description, status, payment_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + finTxColumns

	created, err := scanFinTx(t.tx.QueryRow(ctx, query,
		ft.UserID, ft.Amount, ft.Currency, ft.Direction, ft.Category, ft.Description, ft.Status, ft.PaymentRef))
	if err != nil {
		if uniqueViolation(err) {
			return nil, model.ErrConflict
		}
		return nil, fmt.Errorf("insert financial transaction: %w", err)
	}
	return created, nil
}

func (t *pgTx) GetFinancialTransactionByPaymentRef(ctx context.Context, ref string) (*model.FinancialTransaction, error) {
	query := `SELECT ` + finTxColumns + ` FROM financial_transactions WHERE payment_ref = $1`
	ft, err := scanFinTx(t.tx.QueryRow(ctx, query, ref))
	if err != nil {
		return nil, notFound(err, "financial transaction")
	}
	return ft, nil
}

func (t *pgTx) CountFinancialTransactions(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM financial_transactions WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count financial transactions: %w", err)
	}
	return n, nil
}

func (t *pgTx) ListFinancialTransactions(ctx context.Context, userID int64, limit int) ([]model.FinancialTransaction, error) {
	query := `
		SELECT ` + finTxColumns + `
		FROM financial_transactions
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2`

	rows, err := t.tx.Query(ctx, query, userID, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("query financial transactions: %w", err)
	}
	return collect(rows, scanFinTx)
}
