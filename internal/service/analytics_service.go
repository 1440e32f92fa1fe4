package service

import (
	"context"

	"github.com/market-tracker/internal/analytics"
	"github.com/market-tracker/internal/catalog"
	apperrors "github.com/market-tracker/internal/errors"
	"github.com/market-tracker/internal/history"
	"github.com/market-tracker/internal/types"
)

// IndicatorValue is an indicator result with its availability flag. An
// indicator is unavailable until the history window is deep enough.
type IndicatorValue struct {
	Value     float64 `json:"value"`
	Available bool    `json:"available"`
}

// Indicators bundles every computed indicator for one asset.
type Indicators struct {
	AssetKey   string                `json:"assetKey"`
	Samples    int                   `json:"samples"`
	SMA        IndicatorValue        `json:"sma"`
	EMA        IndicatorValue        `json:"ema"`
	RSI        IndicatorValue        `json:"rsi"`
	Volatility IndicatorValue        `json:"volatility"`
	Bollinger  *analytics.Bands      `json:"bollinger,omitempty"`
	MACD       *analytics.MACDResult `json:"macd,omitempty"`
}

// AnalyticsService computes indicators, predictions and sentiment from the
// stored history windows.
type AnalyticsService struct {
	catalog *catalog.Catalog
	history *history.Store
}

// NewAnalyticsService creates an analytics service.
func NewAnalyticsService(cat *catalog.Catalog, hist *history.Store) *AnalyticsService {
	return &AnalyticsService{catalog: cat, history: hist}
}

func (s *AnalyticsService) prices(ctx context.Context, assetKey string) ([]float64, error) {
	if !s.catalog.Has(assetKey) {
		return nil, apperrors.NewUnknownAssetError(assetKey)
	}
	return s.history.Prices(ctx, assetKey, 0)
}

// Indicators computes the full indicator set for an asset.
func (s *AnalyticsService) Indicators(ctx context.Context, assetKey string) (*Indicators, error) {
	prices, err := s.prices(ctx, assetKey)
	if err != nil {
		return nil, err
	}

	out := &Indicators{AssetKey: assetKey, Samples: len(prices)}

	if v, ok := analytics.SMA(prices, analytics.DefaultVolPeriod); ok {
		out.SMA = IndicatorValue{Value: v, Available: true}
	}
	if v, ok := analytics.EMA(prices, analytics.DefaultVolPeriod); ok {
		out.EMA = IndicatorValue{Value: v, Available: true}
	}
	if v, ok := analytics.RSI(prices, analytics.DefaultRSIPeriod); ok {
		out.RSI = IndicatorValue{Value: v, Available: true}
	}
	if v, ok := analytics.Volatility(prices, analytics.DefaultVolPeriod); ok {
		out.Volatility = IndicatorValue{Value: v, Available: true}
	}
	if bands, ok := analytics.BollingerBands(prices, analytics.DefaultBollingerPeriod, analytics.DefaultBollingerK); ok {
		out.Bollinger = &bands
	}
	if macd, ok := analytics.MACD(prices, analytics.DefaultMACDFastPeriod, analytics.DefaultMACDSlowPeriod); ok {
		out.MACD = &macd
	}

	return out, nil
}

// Predict estimates the next price for an asset with the given method.
func (s *AnalyticsService) Predict(ctx context.Context, assetKey string, method types.PredictionMethod) (*analytics.Prediction, error) {
	prices, err := s.prices(ctx, assetKey)
	if err != nil {
		return nil, err
	}

	prediction, ok := analytics.PredictNext(prices, method)
	if !ok {
		return nil, apperrors.NewInvalidParameterError("method", "prediction needs at least 3 stored prices and a known method")
	}
	return &prediction, nil
}

// Sentiment classifies the recent momentum of an asset.
func (s *AnalyticsService) Sentiment(ctx context.Context, assetKey string) (*analytics.SentimentResult, error) {
	prices, err := s.prices(ctx, assetKey)
	if err != nil {
		return nil, err
	}

	sentiment, ok := analytics.Sentiment(prices)
	if !ok {
		return nil, apperrors.NewNotFoundError("sentiment", assetKey)
	}
	return &sentiment, nil
}
