package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/market-tracker/internal/types"
)

// PriceArchiveRepository persists long-retention price history in ClickHouse.
// The Redis history store keeps the recent capped window; everything that
// rolls out of it survives here for charting over long ranges.
type PriceArchiveRepository struct {
	db *ClickHouseDB
}

// NewPriceArchiveRepository creates a new price archive repository
func NewPriceArchiveRepository(db *ClickHouseDB) *PriceArchiveRepository {
	return &PriceArchiveRepository{db: db}
}

// Insert archives a single price point
func (r *PriceArchiveRepository) Insert(ctx context.Context, assetKey string, point types.PricePoint) error {
	query := `
		INSERT INTO price_points (asset_key, price, observed_at)
		VALUES (?, ?, ?)
	`
	return r.db.Conn().Exec(ctx, query, assetKey, point.Price, point.ObservedAt)
}

// InsertBatch archives a full snapshot cycle in one round trip
func (r *PriceArchiveRepository) InsertBatch(ctx context.Context, points map[string]types.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO price_points (asset_key, price, observed_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for key, p := range points {
		if err := batch.Append(key, p.Price, p.ObservedAt); err != nil {
			return fmt.Errorf("failed to append to batch: %w", err)
		}
	}

	return batch.Send()
}

// GetRange returns archived points for an asset within [from, to], newest first
func (r *PriceArchiveRepository) GetRange(ctx context.Context, assetKey string, from, to time.Time, limit int) ([]types.PricePoint, error) {
	if limit <= 0 {
		limit = 1000
	}

	query := `
		SELECT price, observed_at
		FROM price_points
		WHERE asset_key = ? AND observed_at >= ? AND observed_at <= ?
		ORDER BY observed_at DESC
		LIMIT ?
	`
	rows, err := r.db.Conn().Query(ctx, query, assetKey, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query price archive: %w", err)
	}
	defer rows.Close()

	var points []types.PricePoint
	for rows.Next() {
		var (
			price      float64
			observedAt time.Time
		)
		if err := rows.Scan(&price, &observedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price point: %w", err)
		}
		points = append(points, types.PricePoint{AssetKey: assetKey, Price: price, ObservedAt: observedAt})
	}

	return points, rows.Err()
}

// Count returns the number of archived points for an asset
func (r *PriceArchiveRepository) Count(ctx context.Context, assetKey string) (uint64, error) {
	var count uint64
	query := `SELECT count() FROM price_points WHERE asset_key = ?`
	row := r.db.Conn().QueryRow(ctx, query, assetKey)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count price points: %w", err)
	}
	return count, nil
}
