package service

import (
	"context"

	"github.com/market-tracker/internal/catalog"
	apperrors "github.com/market-tracker/internal/errors"
	"github.com/market-tracker/internal/storage"
	"github.com/market-tracker/internal/types"
)

// DefaultBaseCurrency is the display currency of a fresh install.
const DefaultBaseCurrency = "usd"

// DefaultTheme is the UI theme of a fresh install.
const DefaultTheme = "dark"

var validThemes = map[string]bool{"dark": true, "light": true}

// SettingsService persists user preferences: the free-form settings
// document, display currency and theme.
type SettingsService struct {
	catalog *catalog.Catalog
	kv      *storage.KVStore
}

// NewSettingsService creates a settings service.
func NewSettingsService(cat *catalog.Catalog, kv *storage.KVStore) *SettingsService {
	return &SettingsService{catalog: cat, kv: kv}
}

// Settings returns the stored settings document, or an empty one.
func (s *SettingsService) Settings(ctx context.Context) (map[string]interface{}, error) {
	settings := map[string]interface{}{}
	if _, err := s.kv.GetJSON(ctx, storage.KeySettings, &settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// PutSettings replaces the settings document.
func (s *SettingsService) PutSettings(ctx context.Context, settings map[string]interface{}) error {
	if settings == nil {
		settings = map[string]interface{}{}
	}
	return s.kv.PutJSON(ctx, storage.KeySettings, settings, 0)
}

// BaseCurrency returns the display currency key.
func (s *SettingsService) BaseCurrency(ctx context.Context) (string, error) {
	var currency string
	found, err := s.kv.GetJSON(ctx, storage.KeyBaseCurrency, &currency)
	if err != nil {
		return "", err
	}
	if !found || currency == "" {
		return DefaultBaseCurrency, nil
	}
	return currency, nil
}

// SetBaseCurrency validates and stores the display currency. Accepts "usd"
// or any forex asset key from the catalog.
func (s *SettingsService) SetBaseCurrency(ctx context.Context, currency string) error {
	if currency != DefaultBaseCurrency {
		asset, err := s.catalog.Get(currency)
		if err != nil {
			return err
		}
		if asset.Category != types.CategoryForex {
			return apperrors.NewInvalidParameterError("currency", "base currency must be usd or a forex asset")
		}
	}
	return s.kv.PutJSON(ctx, storage.KeyBaseCurrency, currency, 0)
}

// Theme returns the stored UI theme.
func (s *SettingsService) Theme(ctx context.Context) (string, error) {
	var theme string
	found, err := s.kv.GetJSON(ctx, storage.KeyTheme, &theme)
	if err != nil {
		return "", err
	}
	if !found || theme == "" {
		return DefaultTheme, nil
	}
	return theme, nil
}

// SetTheme validates and stores the UI theme.
func (s *SettingsService) SetTheme(ctx context.Context, theme string) error {
	if !validThemes[theme] {
		return apperrors.NewInvalidParameterError("theme", "theme must be dark or light")
	}
	return s.kv.PutJSON(ctx, storage.KeyTheme, theme, 0)
}
