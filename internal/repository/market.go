package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/greenledger/internal/model"
)

func (t *pgTx) GetHolding(ctx context.Context, userID int64) (*model.CreditHolding, error) {
	var h model.CreditHolding
	err := t.tx.QueryRow(ctx, `SELECT user_id, carbon_amount, credit_amount, updated_at FROM carbon_credit_holdings WHERE user_id = $1`, userID).
		Scan(&h.UserID, &h.CarbonKg, &h.Credits, &h.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "credit holding")
	}
	return &h, nil
}

func (t *pgTx) SaveHolding(ctx context.Context, h model.CreditHolding) error {
	query := `
		INSERT INTO carbon_credit_holdings (user_id, carbon_amount, credit_amount, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET carbon_amount = EXCLUDED.carbon_amount,
		    credit_amount = EXCLUDED.credit_amount,
		    updated_at = EXCLUDED.updated_at`

	if _, err := t.tx.Exec(ctx, query, h.UserID, h.CarbonKg, h.Credits, h.UpdatedAt); err != nil {
		return fmt.Errorf("save credit holding: %w", err)
	}
	return nil
}

func (t *pgTx) SumCredits(ctx context.Context) (float64, error) {
	var sum float64
	if err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(credit_amount), 0) FROM carbon_credit_holdings`).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum credits: %w", err)
	}
	return sum, nil
}

const listingColumns = `id, seller_id, saving_id, credit_amount, price_per_credit, status, created_at`

func scanListing(row pgx.Row) (*model.Listing, error) {
	var l model.Listing
	err := row.Scan(&l.ID, &l.SellerID, &l.SavingID, &l.CreditAmount, &l.PricePerCredit, &l.Status, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (t *pgTx) CreateListing(ctx context.Context, l model.Listing) (*model.Listing, error) {
	query := `
		INSERT INTO carbon_credit_listings (seller_id, saving_id, credit_amount, price_per_credit, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + listingColumns

	created, err := scanListing(t.tx.QueryRow(ctx, query, l.SellerID, l.SavingID, l.CreditAmount, l.PricePerCredit, l.Status))
	if err != nil {
		return nil, fmt.Errorf("insert listing: %w", err)
	}
	return created, nil
}

func (t *pgTx) GetListing(ctx context.Context, id int64, forUpdate bool) (*model.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM carbon_credit_listings WHERE id = $1` + lockClause(forUpdate)
	l, err := scanListing(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "listing")
	}
	return l, nil
}

func (t *pgTx) SetListingStatus(ctx context.Context, id int64, status model.ListingStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE carbon_credit_listings SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update listing status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (t *pgTx) ListListings(ctx context.Context, status model.ListingStatus, offset, limit int) ([]model.Listing, error) {
	query := `
		SELECT ` + listingColumns + `
		FROM carbon_credit_listings
		WHERE status = $1
		ORDER BY id DESC
		OFFSET $2
		LIMIT $3`

	rows, err := t.tx.Query(ctx, query, status, offset, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	return collect(rows, scanListing)
}

const orderColumns = `id, buyer_id, listing_id, credit_amount, total_price, status, payment_ref, transfer_hash, settled, settling_at, created_at, completed_at`

func scanOrder(row pgx.Row) (*model.MarketOrder, error) {
	var o model.MarketOrder
	err := row.Scan(&o.ID, &o.BuyerID, &o.ListingID, &o.CreditAmount, &o.TotalPrice, &o.Status,
		&o.PaymentRef, &o.TransferHash, &o.Settled, &o.SettlingAt, &o.CreatedAt, &o.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (t *pgTx) CreateOrder(ctx context.Context, o model.MarketOrder) (*model.MarketOrder, error) {
	query := `
		INSERT INTO marketplace_orders (buyer_id, listing_id, credit_amount, total_price, status, payment_ref)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + orderColumns

	created, err := scanOrder(t.tx.QueryRow(ctx, query, o.BuyerID, o.ListingID, o.CreditAmount, o.TotalPrice, o.Status, o.PaymentRef))
	if err != nil {
		if uniqueViolation(err) {
			return nil, model.ErrConflict
		}
		return nil, fmt.Errorf("insert order: %w", err)
	}
	return created, nil
}

func (t *pgTx) GetOrder(ctx context.Context, id int64, forUpdate bool) (*model.MarketOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM marketplace_orders WHERE id = $1` + lockClause(forUpdate)
	o, err := scanOrder(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "order")
	}
	return o, nil
}

func (t *pgTx) SaveOrder(ctx context.Context, o model.MarketOrder) error {
	query := `
		UPDATE marketplace_orders
		SET status = $1, payment_ref = $2, transfer_hash = $3, settled = $4, settling_at = $5, completed_at = $6
		WHERE id = $7`

	tag, err := t.tx.Exec(ctx, query, o.Status, o.PaymentRef, o.TransferHash, o.Settled, o.SettlingAt, o.CompletedAt, o.ID)
	if err != nil {
		return fmt.Errorf("save order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (t *pgTx) ListOrders(ctx context.Context, buyerID int64) ([]model.MarketOrder, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+orderColumns+` FROM marketplace_orders WHERE buyer_id = $1 ORDER BY id DESC`, buyerID)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	return collect(rows, scanOrder)
}

func (t *pgTx) ListUnsettledOrders(ctx context.Context, limit int) ([]model.MarketOrder, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM marketplace_orders
		WHERE status = $1 AND NOT settled
		ORDER BY id
		LIMIT $2`

	rows, err := t.tx.Query(ctx, query, model.OrderCompleted, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("query unsettled orders: %w", err)
	}
	return collect(rows, scanOrder)
}

func (t *pgTx) CreateMarketTransaction(ctx context.Context, mt model.MarketTransaction) (*model.MarketTransaction, error) {
	query := `
		INSERT INTO marketplace_transactions (order_id, listing_id, seller_id, buyer_id, credit_amount, total_price, transfer_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := t.tx.QueryRow(ctx, query, mt.OrderID, mt.ListingID, mt.SellerID, mt.BuyerID, mt.CreditAmount, mt.TotalPrice, mt.TransferHash).
		Scan(&mt.ID, &mt.CreatedAt)
	if err != nil {
		if uniqueViolation(err) {
			return nil, model.ErrConflict
		}
		return nil, fmt.Errorf("insert market transaction: %w", err)
	}
	return &mt, nil
}

func (t *pgTx) SetCreditPrice(ctx context.Context, pricePerCredit int64, at time.Time) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO carbon_credit_prices (price_per_credit, created_at) VALUES ($1, $2)`, pricePerCredit, at)
	if err != nil {
		return fmt.Errorf("insert credit price: %w", err)
	}
	return nil
}

func (t *pgTx) GetCreditPrice(ctx context.Context) (int64, error) {
	var price int64
	err := t.tx.QueryRow(ctx, `SELECT price_per_credit FROM carbon_credit_prices ORDER BY id DESC LIMIT 1`).Scan(&price)
	if err != nil {
		if isNoRows(err) {
			return 0, model.ErrNotFound
		}
		return 0, fmt.Errorf("get credit price: %w", err)
	}
	return price, nil
}
