// Package history maintains the capped per-asset price history window.
package history

import (
	"context"
	"time"

	"github.com/market-tracker/internal/storage"
	"github.com/market-tracker/internal/types"
)

// DefaultMaxPoints is the per-asset cap when none is configured.
const DefaultMaxPoints = 1000

// compactPoint is the stored wire form of a price point. Short keys keep
// the serialized window small; a full window is rewritten on every append.
type compactPoint struct {
	K string  `json:"k"`
	P float64 `json:"p"`
	T int64   `json:"t"` // unix milliseconds
}

func toCompact(p types.PricePoint) compactPoint {
	return compactPoint{K: p.AssetKey, P: p.Price, T: p.ObservedAt.UnixMilli()}
}

func fromCompact(c compactPoint) types.PricePoint {
	return types.PricePoint{AssetKey: c.K, Price: c.P, ObservedAt: time.UnixMilli(c.T).UTC()}
}

// Store persists a bounded, newest-first price history per asset in Redis.
// When the window overflows, the oldest points are dropped.
type Store struct {
	kv        *storage.KVStore
	maxPoints int
}

// NewStore creates a history store. maxPoints <= 0 selects the default cap.
func NewStore(kv *storage.KVStore, maxPoints int) *Store {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	return &Store{kv: kv, maxPoints: maxPoints}
}

// MaxPoints returns the configured per-asset cap.
func (s *Store) MaxPoints() int {
	return s.maxPoints
}

// Append prepends a point to the asset's window, trimming to the cap.
func (s *Store) Append(ctx context.Context, point types.PricePoint) error {
	key := storage.HistoryKey(point.AssetKey)

	var window []compactPoint
	if _, err := s.kv.GetJSON(ctx, key, &window); err != nil {
		return err
	}

	window = append([]compactPoint{toCompact(point)}, window...)
	if len(window) > s.maxPoints {
		window = window[:s.maxPoints]
	}

	return s.kv.PutJSON(ctx, key, window, 0)
}

// AppendSnapshot records one point per asset from a completed fetch cycle.
func (s *Store) AppendSnapshot(ctx context.Context, snap types.PriceSnapshot, at time.Time) error {
	for assetKey, price := range snap {
		point := types.PricePoint{AssetKey: assetKey, Price: price, ObservedAt: at}
		if err := s.Append(ctx, point); err != nil {
			return err
		}
	}
	return nil
}

// Load returns up to limit points for an asset, newest first. A limit <= 0
// returns the full window.
func (s *Store) Load(ctx context.Context, assetKey string, limit int) ([]types.PricePoint, error) {
	var window []compactPoint
	if _, err := s.kv.GetJSON(ctx, storage.HistoryKey(assetKey), &window); err != nil {
		return nil, err
	}

	if limit > 0 && len(window) > limit {
		window = window[:limit]
	}

	points := make([]types.PricePoint, 0, len(window))
	for _, c := range window {
		points = append(points, fromCompact(c))
	}
	return points, nil
}

// Prices returns the newest-first price values for an asset, the shape the
// analytics functions consume.
func (s *Store) Prices(ctx context.Context, assetKey string, limit int) ([]float64, error) {
	points, err := s.Load(ctx, assetKey, limit)
	if err != nil {
		return nil, err
	}
	prices := make([]float64, 0, len(points))
	for _, p := range points {
		prices = append(prices, p.Price)
	}
	return prices, nil
}

// Replace overwrites an asset's entire window, trimming to the cap. Used by
// backup import.
func (s *Store) Replace(ctx context.Context, assetKey string, points []types.PricePoint) error {
	if len(points) > s.maxPoints {
		points = points[:s.maxPoints]
	}
	window := make([]compactPoint, 0, len(points))
	for _, p := range points {
		window = append(window, toCompact(p))
	}
	return s.kv.PutJSON(ctx, storage.HistoryKey(assetKey), window, 0)
}

// Clear drops an asset's stored window.
func (s *Store) Clear(ctx context.Context, assetKey string) error {
	return s.kv.Delete(ctx, storage.HistoryKey(assetKey))
}
