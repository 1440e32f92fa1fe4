package storage

import (
	"context"

	"github.com/market-tracker/internal/types"
)

// OrderRepository persists the paper-trading order log in Postgres
type OrderRepository struct {
	db *PostgresDB
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *PostgresDB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Append records an executed order
func (r *OrderRepository) Append(ctx context.Context, order *types.Order) error {
	query := `
		INSERT INTO orders (id, asset_key, side, quantity, price, fee, cash_delta, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Pool().Exec(ctx, query,
		order.ID,
		order.AssetKey,
		string(order.Side),
		order.Quantity,
		order.Price,
		order.Fee,
		order.CashDelta,
		order.ExecutedAt,
	)
	return err
}

// List returns orders newest first, optionally filtered by asset key
func (r *OrderRepository) List(ctx context.Context, assetKey string, limit int) ([]*types.Order, error) {
	if limit <= 0 {
		limit = 200
	}

	query := `
		SELECT id, asset_key, side, quantity, price, fee, cash_delta, executed_at
		FROM orders
		WHERE ($1 = '' OR asset_key = $1)
		ORDER BY executed_at DESC
		LIMIT $2
	`
	rows, err := r.db.Pool().Query(ctx, query, assetKey, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*types.Order
	for rows.Next() {
		var (
			o    types.Order
			side string
		)
		if err := rows.Scan(&o.ID, &o.AssetKey, &side, &o.Quantity, &o.Price, &o.Fee, &o.CashDelta, &o.ExecutedAt); err != nil {
			return nil, err
		}
		o.Side = types.OrderSide(side)
		orders = append(orders, &o)
	}
	return orders, rows.Err()
}

// ListAll returns the entire order log newest first, with no cap. List
// defaults to the 200 most recent; exports need every order or replaying
// the log loses the oldest trades.
func (r *OrderRepository) ListAll(ctx context.Context) ([]*types.Order, error) {
	query := `
		SELECT id, asset_key, side, quantity, price, fee, cash_delta, executed_at
		FROM orders
		ORDER BY executed_at DESC
	`
	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*types.Order
	for rows.Next() {
		var (
			o    types.Order
			side string
		)
		if err := rows.Scan(&o.ID, &o.AssetKey, &side, &o.Quantity, &o.Price, &o.Fee, &o.CashDelta, &o.ExecutedAt); err != nil {
			return nil, err
		}
		o.Side = types.OrderSide(side)
		orders = append(orders, &o)
	}
	return orders, rows.Err()
}

// BuyTotals returns the total quantity bought and total buy cost (fees
// included) for an asset. Used to derive the average cost basis.
func (r *OrderRepository) BuyTotals(ctx context.Context, assetKey string) (quantity, cost float64, err error) {
	query := `
		SELECT COALESCE(SUM(quantity), 0), COALESCE(SUM(quantity * price + fee), 0)
		FROM orders
		WHERE asset_key = $1 AND side = 'buy'
	`
	row := r.db.Pool().QueryRow(ctx, query, assetKey)
	if err := row.Scan(&quantity, &cost); err != nil {
		return 0, 0, err
	}
	return quantity, cost, nil
}

// DeleteAll clears the order log, returning the number removed
func (r *OrderRepository) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := r.db.Pool().Exec(ctx, `DELETE FROM orders`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
