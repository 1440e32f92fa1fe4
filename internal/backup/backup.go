// Package backup exports and restores the full tracker state as a single
// JSON bundle.
package backup

import (
	"context"
	"time"

	"github.com/market-tracker/internal/catalog"
	apperrors "github.com/market-tracker/internal/errors"
	"github.com/market-tracker/internal/history"
	"github.com/market-tracker/internal/logging"
	"github.com/market-tracker/internal/portfolio"
	"github.com/market-tracker/internal/service"
	"github.com/market-tracker/internal/storage"
	"github.com/market-tracker/internal/types"
)

// BundleVersion is the current export format version.
const BundleVersion = 1

// RuleStore is the alert rule persistence the bundle covers.
type RuleStore interface {
	ListAll(ctx context.Context) ([]*types.AlertRule, error)
	Create(ctx context.Context, rule *types.AlertRule) error
	DeleteAll(ctx context.Context) (int64, error)
}

// OrderStore is the trade log persistence the bundle covers. ListAll must
// return the complete log; a capped listing would silently truncate exports.
type OrderStore interface {
	ListAll(ctx context.Context) ([]*types.Order, error)
	Append(ctx context.Context, order *types.Order) error
	DeleteAll(ctx context.Context) (int64, error)
}

// Bundle is the exported tracker state.
type Bundle struct {
	Version        int                           `json:"version"`
	ExportedAt     time.Time                     `json:"exportedAt"`
	Settings       map[string]interface{}        `json:"settings"`
	SelectedAssets []string                      `json:"selectedAssets"`
	BaseCurrency   string                        `json:"baseCurrency"`
	Theme          string                        `json:"theme"`
	Portfolio      *portfolio.State              `json:"portfolio"`
	Alerts         []*types.AlertRule            `json:"alerts,omitempty"`
	Orders         []*types.Order                `json:"orders,omitempty"`
	History        map[string][]types.PricePoint `json:"history"`
}

// Service assembles and restores backup bundles.
type Service struct {
	catalog  *catalog.Catalog
	kv       *storage.KVStore
	settings *service.SettingsService
	tracker  *service.TrackerService
	ledger   *portfolio.Ledger
	history  *history.Store
	rules    RuleStore
	orders   OrderStore
}

// NewService creates a backup service.
func NewService(
	cat *catalog.Catalog,
	kv *storage.KVStore,
	settings *service.SettingsService,
	tracker *service.TrackerService,
	ledger *portfolio.Ledger,
	hist *history.Store,
	rules RuleStore,
	orders OrderStore,
) *Service {
	return &Service{
		catalog:  cat,
		kv:       kv,
		settings: settings,
		tracker:  tracker,
		ledger:   ledger,
		history:  hist,
		rules:    rules,
		orders:   orders,
	}
}

// Export assembles the complete tracker state.
func (s *Service) Export(ctx context.Context) (*Bundle, error) {
	settings, err := s.settings.Settings(ctx)
	if err != nil {
		return nil, err
	}
	selected, err := s.tracker.SelectedAssets(ctx)
	if err != nil {
		return nil, err
	}
	currency, err := s.settings.BaseCurrency(ctx)
	if err != nil {
		return nil, err
	}
	theme, err := s.settings.Theme(ctx)
	if err != nil {
		return nil, err
	}
	state, err := s.ledger.State(ctx)
	if err != nil {
		return nil, err
	}

	rules, err := s.rules.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	orders, err := s.orders.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	hist := make(map[string][]types.PricePoint)
	for _, key := range s.catalog.Keys() {
		points, err := s.history.Load(ctx, key, 0)
		if err != nil {
			return nil, err
		}
		if len(points) > 0 {
			hist[key] = points
		}
	}

	return &Bundle{
		Version:        BundleVersion,
		ExportedAt:     time.Now().UTC(),
		Settings:       settings,
		SelectedAssets: selected,
		BaseCurrency:   currency,
		Theme:          theme,
		Portfolio:      state,
		Alerts:         rules,
		Orders:         orders,
		History:        hist,
	}, nil
}

// Import validates a bundle and restores every section it carries. Sections
// are restored in order; a validation failure rejects the whole bundle
// before anything is written.
func (s *Service) Import(ctx context.Context, bundle *Bundle) error {
	if err := s.validate(bundle); err != nil {
		return err
	}

	if bundle.Settings != nil {
		if err := s.settings.PutSettings(ctx, bundle.Settings); err != nil {
			return err
		}
	}
	if len(bundle.SelectedAssets) > 0 {
		if err := s.tracker.SelectAssets(ctx, bundle.SelectedAssets); err != nil {
			return err
		}
	}
	if bundle.BaseCurrency != "" {
		if err := s.settings.SetBaseCurrency(ctx, bundle.BaseCurrency); err != nil {
			return err
		}
	}
	if bundle.Theme != "" {
		if err := s.settings.SetTheme(ctx, bundle.Theme); err != nil {
			return err
		}
	}
	if bundle.Portfolio != nil {
		if err := s.ledger.Restore(ctx, bundle.Portfolio); err != nil {
			return err
		}
	}
	if bundle.Alerts != nil {
		if _, err := s.rules.DeleteAll(ctx); err != nil {
			return err
		}
		for _, rule := range bundle.Alerts {
			if err := s.rules.Create(ctx, rule); err != nil {
				return err
			}
		}
	}
	if bundle.Orders != nil {
		if _, err := s.orders.DeleteAll(ctx); err != nil {
			return err
		}
		// The log lists newest first; replay oldest first
		for i := len(bundle.Orders) - 1; i >= 0; i-- {
			if err := s.orders.Append(ctx, bundle.Orders[i]); err != nil {
				return err
			}
		}
	}
	for key, points := range bundle.History {
		if err := s.history.Replace(ctx, key, points); err != nil {
			return err
		}
	}

	return nil
}

func (s *Service) validate(bundle *Bundle) error {
	if bundle == nil {
		return apperrors.NewInvalidImportError("bundle is empty", nil)
	}
	if bundle.Version != BundleVersion {
		return apperrors.NewInvalidImportError("unsupported bundle version", nil)
	}
	for _, key := range bundle.SelectedAssets {
		if !s.catalog.Has(key) {
			return apperrors.NewInvalidImportError("unknown asset in selection: "+key, nil)
		}
	}
	if bundle.BaseCurrency != "" && bundle.BaseCurrency != service.DefaultBaseCurrency && !s.catalog.Has(bundle.BaseCurrency) {
		return apperrors.NewInvalidImportError("unknown base currency: "+bundle.BaseCurrency, nil)
	}
	if bundle.Portfolio != nil {
		if bundle.Portfolio.Cash < 0 {
			return apperrors.NewInvalidImportError("portfolio cash must not be negative", nil)
		}
		for key, quantity := range bundle.Portfolio.Holdings {
			if quantity < 0 {
				return apperrors.NewInvalidImportError("negative holding for "+key, nil)
			}
			if !s.catalog.Has(key) {
				return apperrors.NewInvalidImportError("unknown asset in holdings: "+key, nil)
			}
		}
	}
	for _, rule := range bundle.Alerts {
		if rule == nil || rule.ID == "" {
			return apperrors.NewInvalidImportError("alert rule missing id", nil)
		}
		if !s.catalog.Has(rule.AssetKey) {
			return apperrors.NewInvalidImportError("unknown asset in alert: "+rule.AssetKey, nil)
		}
		if !rule.Kind.Valid() {
			return apperrors.NewInvalidImportError("invalid alert kind: "+string(rule.Kind), nil)
		}
		if rule.Threshold <= 0 {
			return apperrors.NewInvalidImportError("alert threshold must be positive", nil)
		}
	}
	for _, order := range bundle.Orders {
		if order == nil || order.ID == "" {
			return apperrors.NewInvalidImportError("order missing id", nil)
		}
		if !s.catalog.Has(order.AssetKey) {
			return apperrors.NewInvalidImportError("unknown asset in order: "+order.AssetKey, nil)
		}
		if order.Quantity <= 0 || order.Price <= 0 {
			return apperrors.NewInvalidImportError("order quantity and price must be positive", nil)
		}
	}
	for key, points := range bundle.History {
		if !s.catalog.Has(key) {
			return apperrors.NewInvalidImportError("unknown asset in history: "+key, nil)
		}
		for _, p := range points {
			if p.Price <= 0 {
				return apperrors.NewInvalidImportError("non-positive price in history for "+key, nil)
			}
		}
	}
	return nil
}

// SaveAuto stores the current state under the auto-backup key.
func (s *Service) SaveAuto(ctx context.Context) error {
	bundle, err := s.Export(ctx)
	if err != nil {
		return err
	}
	if err := s.kv.PutJSON(ctx, storage.KeyAutoBackup, bundle, 0); err != nil {
		return err
	}
	logging.FromContext(ctx).WithField("assets", len(bundle.History)).Debug("Auto backup saved")
	return nil
}

// LoadAuto returns the stored auto-backup, if any.
func (s *Service) LoadAuto(ctx context.Context) (*Bundle, bool, error) {
	bundle := &Bundle{}
	found, err := s.kv.GetJSON(ctx, storage.KeyAutoBackup, bundle)
	if err != nil {
		return nil, false, err
	}
	return bundle, found, nil
}
