// Package service wires fetching, persistence, analytics and alerting into
// the operations the API and poller consume.
package service

import (
	"context"
	"time"

	"github.com/market-tracker/internal/alerts"
	"github.com/market-tracker/internal/catalog"
	apperrors "github.com/market-tracker/internal/errors"
	"github.com/market-tracker/internal/history"
	"github.com/market-tracker/internal/logging"
	"github.com/market-tracker/internal/quotes"
	"github.com/market-tracker/internal/storage"
	"github.com/market-tracker/internal/types"
)

// ArchiveSink receives completed snapshot cycles for long-retention storage.
type ArchiveSink interface {
	InsertBatch(ctx context.Context, points map[string]types.PricePoint) error
}

// CycleResult summarizes one completed fetch cycle.
type CycleResult struct {
	Snapshot types.PriceSnapshot `json:"snapshot"`
	Changes  map[string]float64  `json:"changes"` // percent vs previous cycle
	Fired    []*types.AlertEvent `json:"fired,omitempty"`
	At       time.Time           `json:"at"`
}

// AssetPrice is a priced catalog entry with its cycle-over-cycle change.
type AssetPrice struct {
	Asset     types.Asset `json:"asset"`
	Price     float64     `json:"price"`
	ChangePct *float64    `json:"changePct,omitempty"`
}

// TrackerService runs fetch cycles and answers price queries.
type TrackerService struct {
	catalog   *catalog.Catalog
	fetcher   *quotes.Fetcher
	kv        *storage.KVStore
	snapshots *storage.SnapshotRepository
	history   *history.Store
	archive   ArchiveSink
	alerts    *alerts.Engine
}

// NewTrackerService creates a tracker service. archive and alertEngine may
// be nil to disable those stages.
func NewTrackerService(
	cat *catalog.Catalog,
	fetcher *quotes.Fetcher,
	kv *storage.KVStore,
	snapshots *storage.SnapshotRepository,
	hist *history.Store,
	archive ArchiveSink,
	alertEngine *alerts.Engine,
) *TrackerService {
	return &TrackerService{
		catalog:   cat,
		fetcher:   fetcher,
		kv:        kv,
		snapshots: snapshots,
		history:   hist,
		archive:   archive,
		alerts:    alertEngine,
	}
}

// Catalog exposes the asset table.
func (s *TrackerService) Catalog() *catalog.Catalog {
	return s.catalog
}

// History exposes the capped history store.
func (s *TrackerService) History() *history.Store {
	return s.history
}

// RunCycle fetches prices for the selected assets, rotates the snapshot,
// appends history, archives the cycle and evaluates alerts.
func (s *TrackerService) RunCycle(ctx context.Context) (*CycleResult, error) {
	logger := logging.FromContext(ctx)
	now := time.Now().UTC()

	keys, err := s.SelectedAssets(ctx)
	if err != nil {
		return nil, err
	}

	lastKnown, _, err := s.snapshots.Current(ctx)
	if err != nil {
		return nil, err
	}

	snap := s.fetcher.FetchAll(ctx, keys, lastKnown)
	if len(snap) == 0 {
		return nil, apperrors.NewInternalError("fetch cycle produced an empty snapshot", nil)
	}

	if err := s.snapshots.Replace(ctx, snap); err != nil {
		return nil, err
	}
	if err := s.history.AppendSnapshot(ctx, snap, now); err != nil {
		return nil, err
	}

	if s.archive != nil {
		points := make(map[string]types.PricePoint, len(snap))
		for key, price := range snap {
			points[key] = types.PricePoint{AssetKey: key, Price: price, ObservedAt: now}
		}
		if err := s.archive.InsertBatch(ctx, points); err != nil {
			// Archive is best effort, the live path must not depend on it
			logger.WithError(err).Warn("Failed to archive snapshot cycle")
		}
	}

	result := &CycleResult{
		Snapshot: snap,
		Changes:  changes(snap, lastKnown),
		At:       now,
	}

	if s.alerts != nil {
		fired, err := s.alerts.Check(ctx, snap, lastKnown)
		if err != nil {
			logger.WithError(err).Error("Alert evaluation failed")
		} else {
			result.Fired = fired
		}
	}

	logger.WithFields(map[string]interface{}{
		"assets": len(snap),
		"fired":  len(result.Fired),
	}).Info("Fetch cycle completed")

	return result, nil
}

// Prices returns the current snapshot joined with catalog metadata and the
// percent change against the previous cycle.
func (s *TrackerService) Prices(ctx context.Context) ([]AssetPrice, error) {
	current, found, err := s.snapshots.Current(ctx)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperrors.NewNotFoundError("snapshot", "current")
	}

	previous, _, err := s.snapshots.Previous(ctx)
	if err != nil {
		return nil, err
	}

	changeByKey := changes(current, previous)

	out := make([]AssetPrice, 0, len(current))
	for _, key := range s.catalog.Keys() {
		price, ok := current[key]
		if !ok {
			continue
		}
		asset, err := s.catalog.Get(key)
		if err != nil {
			continue
		}
		ap := AssetPrice{Asset: asset, Price: price}
		if pct, ok := changeByKey[key]; ok {
			pctCopy := pct
			ap.ChangePct = &pctCopy
		}
		out = append(out, ap)
	}

	return out, nil
}

// Price returns the current price for a single asset key.
func (s *TrackerService) Price(ctx context.Context, key string) (float64, error) {
	if !s.catalog.Has(key) {
		return 0, apperrors.NewUnknownAssetError(key)
	}

	current, found, err := s.snapshots.Current(ctx)
	if err != nil {
		return 0, err
	}
	if price, ok := current[key]; found && ok {
		return price, nil
	}

	return 0, apperrors.NewNotFoundError("price", key)
}

// SelectedAssets returns the tracked asset keys, defaulting to the full
// catalog when no selection is stored.
func (s *TrackerService) SelectedAssets(ctx context.Context) ([]string, error) {
	var keys []string
	found, err := s.kv.GetJSON(ctx, storage.KeySelectedAssets, &keys)
	if err != nil {
		return nil, err
	}
	if !found || len(keys) == 0 {
		return s.catalog.Keys(), nil
	}

	// Drop keys that no longer exist in the catalog
	valid := keys[:0]
	for _, k := range keys {
		if s.catalog.Has(k) {
			valid = append(valid, k)
		}
	}
	if len(valid) == 0 {
		return s.catalog.Keys(), nil
	}
	return valid, nil
}

// SelectAssets persists the tracked asset selection. Every key must exist in
// the catalog and the selection must not be empty.
func (s *TrackerService) SelectAssets(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return apperrors.NewInvalidParameterError("assets", "selection must not be empty")
	}
	for _, k := range keys {
		if !s.catalog.Has(k) {
			return apperrors.NewUnknownAssetError(k)
		}
	}
	return s.kv.PutJSON(ctx, storage.KeySelectedAssets, keys, 0)
}

// changes returns percent change per asset against the previous snapshot.
// Assets without a usable previous price are omitted.
func changes(current, previous types.PriceSnapshot) map[string]float64 {
	out := make(map[string]float64)
	for key, cur := range current {
		prev, ok := previous[key]
		if !ok || prev <= 0 {
			continue
		}
		out[key] = (cur - prev) / prev * 100
	}
	return out
}
