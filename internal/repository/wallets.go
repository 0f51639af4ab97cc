package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/greenledger/internal/model"
)

const walletColumns = `id, owner_type, owner_id, handle, balance, created_at`

func scanWallet(row pgx.Row) (*model.Wallet, error) {
	var w model.Wallet
	if err := row.Scan(&w.ID, &w.OwnerType, &w.OwnerID, &w.Handle, &w.Balance, &w.CreatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}

func (t *pgTx) GetWalletByHandle(ctx context.Context, handle string, forUpdate bool) (*model.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE handle = $1` + lockClause(forUpdate)
	w, err := scanWallet(t.tx.QueryRow(ctx, query, handle))
	if err != nil {
		return nil, notFound(err, "wallet")
	}
	return w, nil
}

func (t *pgTx) GetWalletByOwner(ctx context.Context, owner model.OwnerType, ownerID int64) (*model.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE owner_type = $1 AND owner_id = $2`
	w, err := scanWallet(t.tx.QueryRow(ctx, query, owner, ownerID))
	if err != nil {
		return nil, notFound(err, "wallet")
	}
	return w, nil
}

func (t *pgTx) CreateWallet(ctx context.Context, w model.Wallet) (*model.Wallet, error) {
	query := `
		INSERT INTO wallets (owner_type, owner_id, handle, balance)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + walletColumns

	created, err := scanWallet(t.tx.QueryRow(ctx, query, w.OwnerType, w.OwnerID, w.Handle, w.Balance))
	if err != nil {
		if uniqueViolation(err) {
			return nil, fmt.Errorf("%w: %w", model.ErrConflict, errConcurrentInsert)
		}
		return nil, fmt.Errorf("insert wallet: %w", err)
	}
	return created, nil
}

func (t *pgTx) HandleTaken(ctx context.Context, handle string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM wallets WHERE handle = $1)`, handle).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check handle: %w", err)
	}
	return exists, nil
}

func (t *pgTx) SetWalletBalance(ctx context.Context, walletID int64, balance int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE wallets SET balance = $1 WHERE id = $2`, balance, walletID)
	if err != nil {
		return fmt.Errorf("update wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (t *pgTx) SumWalletBalances(ctx context.Context) (int64, error) {
	var sum int64
	if err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(balance), 0)::BIGINT FROM wallets`).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum balances: %w", err)
	}
	return sum, nil
}

const ledgerColumns = `id, reference, sender_handle, receiver_handle, amount, status, created_at, completed_at`

func scanLedger(row pgx.Row) (*model.LedgerTransaction, error) {
	var lt model.LedgerTransaction
	err := row.Scan(&lt.ID, &lt.Reference, &lt.SenderHandle, &lt.ReceiverHandle, &lt.Amount, &lt.Status, &lt.CreatedAt, &lt.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &lt, nil
}

func (t *pgTx) CreateLedgerTransaction(ctx context.Context, lt model.LedgerTransaction) (*model.LedgerTransaction, error) {
	query := `
		INSERT INTO ledger_transactions (reference, sender_handle, receiver_handle, amount, status, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + ledgerColumns

	created, err := scanLedger(t.tx.QueryRow(ctx, query,
		lt.Reference, lt.SenderHandle, lt.ReceiverHandle, lt.Amount, lt.Status, lt.CompletedAt))
	if err != nil {
		if uniqueViolation(err) {
			return nil, model.ErrConflict
		}
		return nil, fmt.Errorf("insert ledger transaction: %w", err)
	}
	return created, nil
}

func (t *pgTx) ListLedgerTransactions(ctx context.Context, handle string, limit int) ([]model.LedgerTransaction, error) {
	query := `
		SELECT ` + ledgerColumns + `
		FROM ledger_transactions
		WHERE sender_handle = $1 OR receiver_handle = $1
		ORDER BY id DESC
		LIMIT $2`

	rows, err := t.tx.Query(ctx, query, handle, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var res []model.LedgerTransaction
	for rows.Next() {
		lt, err := scanLedger(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger: %w", err)
		}
		res = append(res, *lt)
	}
	return res, rows.Err()
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]T, error) {
	defer rows.Close()

	var res []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		res = append(res, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return res, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
