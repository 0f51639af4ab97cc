package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/greenledger/internal/model"
)

func (t *pgTx) GetChainAddress(ctx context.Context, owner model.OwnerType, ownerID int64) (string, error) {
	var addr string
	err := t.tx.QueryRow(ctx, `SELECT address FROM chain_addresses WHERE owner_type = $1 AND owner_id = $2`, owner, ownerID).Scan(&addr)
	if err != nil {
		return "", notFound(err, "chain address")
	}
	return addr, nil
}

func (t *pgTx) SetChainAddress(ctx context.Context, owner model.OwnerType, ownerID int64, address string) error {
	query := `
		INSERT INTO chain_addresses (owner_type, owner_id, address) VALUES ($1, $2, $3)
		ON CONFLICT (owner_type, owner_id) DO UPDATE SET address = EXCLUDED.address`

	if _, err := t.tx.Exec(ctx, query, owner, ownerID, address); err != nil {
		return fmt.Errorf("set chain address: %w", err)
	}
	return nil
}

// token_amount читается как текст, чтобы не терять точность NUMERIC.
const conversionColumns = `id, user_id, points, token_amount::text, address, tx_hash, block_number, status, attempts, last_error, created_at, updated_at`

func scanConversion(row pgx.Row) (*model.Conversion, error) {
	var (
		c      model.Conversion
		amount string
	)
	err := row.Scan(&c.ID, &c.UserID, &c.Points, &amount, &c.Address, &c.TxHash, &c.BlockNumber,
		&c.Status, &c.Attempts, &c.LastError, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}

	c.TokenAmount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse token amount %q: %w", amount, err)
	}
	return &c, nil
}

func (t *pgTx) CreateConversion(ctx context.Context, c model.Conversion) (*model.Conversion, error) {
	query := `
		INSERT INTO eco_token_conversions (user_id, points, token_amount, address, tx_hash, block_number, status, attempts, last_error)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9)
		RETURNING ` + conversionColumns

	created, err := scanConversion(t.tx.QueryRow(ctx, query,
		c.UserID, c.Points, c.TokenAmount.String(), c.Address, c.TxHash, c.BlockNumber, c.Status, c.Attempts, c.LastError))
	if err != nil {
		return nil, fmt.Errorf("insert conversion: %w", err)
	}
	return created, nil
}

func (t *pgTx) GetConversion(ctx context.Context, id int64, forUpdate bool) (*model.Conversion, error) {
	query := `SELECT ` + conversionColumns + ` FROM eco_token_conversions WHERE id = $1` + lockClause(forUpdate)
	c, err := scanConversion(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "conversion")
	}
	return c, nil
}

func (t *pgTx) UpdateConversion(ctx context.Context, c model.Conversion) error {
	query := `
		UPDATE eco_token_conversions
		SET tx_hash = $1, block_number = $2, status = $3, attempts = $4, last_error = $5, updated_at = now()
		WHERE id = $6`

	tag, err := t.tx.Exec(ctx, query, c.TxHash, c.BlockNumber, c.Status, c.Attempts, c.LastError, c.ID)
	if err != nil {
		return fmt.Errorf("update conversion: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (t *pgTx) ListConversions(ctx context.Context, userID int64, limit int) ([]model.Conversion, error) {
	query := `
		SELECT ` + conversionColumns + `
		FROM eco_token_conversions
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2`

	rows, err := t.tx.Query(ctx, query, userID, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("query conversions: %w", err)
	}
	return collect(rows, scanConversion)
}

func (t *pgTx) ListConversionsByStatus(ctx context.Context, status model.ConversionStatus, limit int) ([]model.Conversion, error) {
	query := `
		SELECT ` + conversionColumns + `
		FROM eco_token_conversions
		WHERE status = $1
		ORDER BY id
		LIMIT $2`

	rows, err := t.tx.Query(ctx, query, status, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("query conversions by status: %w", err)
	}
	return collect(rows, scanConversion)
}
