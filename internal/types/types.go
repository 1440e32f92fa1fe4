// Package types provides common type definitions for the market tracker system.
package types

import "time"

// AssetCategory represents the kind of tracked instrument
type AssetCategory string

const (
	// CategoryCrypto represents cryptocurrency assets quoted against USD
	CategoryCrypto AssetCategory = "crypto"
	// CategoryMetal represents precious metal futures (gold, silver, ...)
	CategoryMetal AssetCategory = "metal"
	// CategoryForex represents currency pairs quoted as USD per unit
	CategoryForex AssetCategory = "forex"
	// CategoryIndex represents synthetic reference assets that never hit the network
	CategoryIndex AssetCategory = "index"
)

// Valid reports whether the category is one of the known values
func (c AssetCategory) Valid() bool {
	switch c {
	case CategoryCrypto, CategoryMetal, CategoryForex, CategoryIndex:
		return true
	}
	return false
}

// Asset is an immutable catalog entry describing a tracked instrument
type Asset struct {
	Key           string        `json:"key"`
	Symbol        string        `json:"symbol"`
	DisplayName   string        `json:"displayName"`
	Glyph         string        `json:"glyph"`
	Category      AssetCategory `json:"category"`
	FallbackPrice float64       `json:"fallbackPrice"`
}

// PricePoint is a single observed price for an asset
type PricePoint struct {
	AssetKey   string    `json:"assetKey"`
	Price      float64   `json:"price"`
	ObservedAt time.Time `json:"observedAt"`
}

// PriceSnapshot maps asset key to latest known price.
// Replaced wholesale on each fetch cycle.
type PriceSnapshot map[string]float64

// Clone returns a copy of the snapshot
func (s PriceSnapshot) Clone() PriceSnapshot {
	out := make(PriceSnapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// AlertKind represents the alert rule condition type
type AlertKind string

const (
	// AlertAbove fires when the current price is at or above the threshold
	AlertAbove AlertKind = "above"
	// AlertBelow fires when the current price is at or below the threshold
	AlertBelow AlertKind = "below"
	// AlertPctUp fires when the price rose by at least threshold percent since the previous cycle
	AlertPctUp AlertKind = "pct_up"
	// AlertPctDown fires when the price fell by at least threshold percent since the previous cycle
	AlertPctDown AlertKind = "pct_down"
)

// Valid reports whether the alert kind is one of the known values
func (k AlertKind) Valid() bool {
	switch k {
	case AlertAbove, AlertBelow, AlertPctUp, AlertPctDown:
		return true
	}
	return false
}

// OrderSide represents the direction of an executed trade
type OrderSide string

const (
	// SideBuy represents a purchase that debits cash and credits holdings
	SideBuy OrderSide = "buy"
	// SideSell represents a disposal that credits cash and debits holdings
	SideSell OrderSide = "sell"
)

// AlertRule is a user-defined price alert condition. Triggered is terminal:
// once a rule fires it stays triggered, regardless of the active flag, until
// an explicit rearm clears it.
type AlertRule struct {
	ID             string    `json:"id"`
	AssetKey       string    `json:"assetKey"`
	Kind           AlertKind `json:"kind"`
	Threshold      float64   `json:"threshold"`
	Message        string    `json:"message,omitempty"`
	Active         bool      `json:"active"`
	Triggered      bool      `json:"triggered"`
	CreatedAt      time.Time `json:"createdAt"`
	TriggeredAt    time.Time `json:"triggeredAt,omitempty"`
	TriggeredPrice float64   `json:"triggeredPrice,omitempty"`
}

// AlertEvent records a rule firing at a specific price
type AlertEvent struct {
	ID        string    `json:"id"`
	RuleID    string    `json:"ruleId"`
	AssetKey  string    `json:"assetKey"`
	Kind      AlertKind `json:"kind"`
	Threshold float64   `json:"threshold"`
	Price     float64   `json:"price"`
	Message   string    `json:"message"`
	FiredAt   time.Time `json:"firedAt"`
}

// Order is an executed paper trade
type Order struct {
	ID         string    `json:"id"`
	AssetKey   string    `json:"assetKey"`
	Side       OrderSide `json:"side"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	Fee        float64   `json:"fee"`
	CashDelta  float64   `json:"cashDelta"`
	ExecutedAt time.Time `json:"executedAt"`
}

// PredictionMethod selects the next-price estimation algorithm
type PredictionMethod string

const (
	// PredictLinear fits a least-squares line over the recent window
	PredictLinear PredictionMethod = "linear"
	// PredictMovingAverage extrapolates from the short/long SMA ratio
	PredictMovingAverage PredictionMethod = "moving_average"
	// PredictExpSmoothing applies single-parameter exponential smoothing
	PredictExpSmoothing PredictionMethod = "exponential_smoothing"
)

// SentimentLabel classifies the momentum of a price series
type SentimentLabel string

const (
	// SentimentOverbought indicates RSI above the overbought threshold
	SentimentOverbought SentimentLabel = "overbought"
	// SentimentOversold indicates RSI below the oversold threshold
	SentimentOversold SentimentLabel = "oversold"
	// SentimentBullish indicates a rising trend
	SentimentBullish SentimentLabel = "bullish"
	// SentimentBearish indicates a falling trend
	SentimentBearish SentimentLabel = "bearish"
	// SentimentNeutral indicates no clear signal
	SentimentNeutral SentimentLabel = "neutral"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// NewsArticle is a single article returned by the news interface
type NewsArticle struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"publishedAt"`
	URL         string    `json:"url"`
}
