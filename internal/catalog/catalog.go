// Package catalog provides the static asset table mapping asset keys to
// display metadata, upstream symbols, and fallback prices.
package catalog

import (
	"sort"

	apperrors "github.com/market-tracker/internal/errors"
	"github.com/market-tracker/internal/types"
)

// QuoteSource describes how an asset's price is obtained upstream.
type QuoteSource struct {
	// Symbol is the upstream chart symbol. Empty for index assets, which
	// never hit the network.
	Symbol string
	// Invert indicates the raw USD/X rate must be inverted to express the
	// price as USD per unit (EUR, GBP, AUD are quoted this way upstream).
	Invert bool
}

type entry struct {
	asset  types.Asset
	source QuoteSource
}

// Catalog is the immutable asset table, built once at process start.
type Catalog struct {
	entries map[string]entry
	keys    []string
}

// NewDefault builds the catalog with the default tracked asset set.
func NewDefault() *Catalog {
	assets := []struct {
		asset  types.Asset
		source QuoteSource
	}{
		{types.Asset{Key: "btc", Symbol: "BTC", DisplayName: "Bitcoin", Glyph: "₿", Category: types.CategoryCrypto, FallbackPrice: 43000}, QuoteSource{Symbol: "BTC-USD"}},
		{types.Asset{Key: "eth", Symbol: "ETH", DisplayName: "Ethereum", Glyph: "Ξ", Category: types.CategoryCrypto, FallbackPrice: 2600}, QuoteSource{Symbol: "ETH-USD"}},
		{types.Asset{Key: "sol", Symbol: "SOL", DisplayName: "Solana", Glyph: "◎", Category: types.CategoryCrypto, FallbackPrice: 98}, QuoteSource{Symbol: "SOL-USD"}},
		{types.Asset{Key: "doge", Symbol: "DOGE", DisplayName: "Dogecoin", Glyph: "Ð", Category: types.CategoryCrypto, FallbackPrice: 0.08}, QuoteSource{Symbol: "DOGE-USD"}},

		{types.Asset{Key: "gold", Symbol: "XAU", DisplayName: "Gold", Glyph: "🥇", Category: types.CategoryMetal, FallbackPrice: 2030}, QuoteSource{Symbol: "GC=F"}},
		{types.Asset{Key: "silver", Symbol: "XAG", DisplayName: "Silver", Glyph: "🥈", Category: types.CategoryMetal, FallbackPrice: 22.5}, QuoteSource{Symbol: "SI=F"}},
		{types.Asset{Key: "platinum", Symbol: "XPT", DisplayName: "Platinum", Glyph: "⚪", Category: types.CategoryMetal, FallbackPrice: 900}, QuoteSource{Symbol: "PL=F"}},
		{types.Asset{Key: "palladium", Symbol: "XPD", DisplayName: "Palladium", Glyph: "⚫", Category: types.CategoryMetal, FallbackPrice: 950}, QuoteSource{Symbol: "PA=F"}},

		// EUR, GBP and AUD charts quote USD per unit already; the remaining
		// pairs quote units per USD and must be inverted.
		{types.Asset{Key: "eur", Symbol: "EUR", DisplayName: "Euro", Glyph: "€", Category: types.CategoryForex, FallbackPrice: 1.08}, QuoteSource{Symbol: "EURUSD=X"}},
		{types.Asset{Key: "gbp", Symbol: "GBP", DisplayName: "British Pound", Glyph: "£", Category: types.CategoryForex, FallbackPrice: 1.26}, QuoteSource{Symbol: "GBPUSD=X"}},
		{types.Asset{Key: "aud", Symbol: "AUD", DisplayName: "Australian Dollar", Glyph: "A$", Category: types.CategoryForex, FallbackPrice: 0.65}, QuoteSource{Symbol: "AUDUSD=X"}},
		{types.Asset{Key: "jpy", Symbol: "JPY", DisplayName: "Japanese Yen", Glyph: "¥", Category: types.CategoryForex, FallbackPrice: 0.0067}, QuoteSource{Symbol: "USDJPY=X", Invert: true}},
		{types.Asset{Key: "chf", Symbol: "CHF", DisplayName: "Swiss Franc", Glyph: "Fr", Category: types.CategoryForex, FallbackPrice: 1.14}, QuoteSource{Symbol: "USDCHF=X", Invert: true}},
		{types.Asset{Key: "cad", Symbol: "CAD", DisplayName: "Canadian Dollar", Glyph: "C$", Category: types.CategoryForex, FallbackPrice: 0.74}, QuoteSource{Symbol: "USDCAD=X", Invert: true}},

		{types.Asset{Key: "bigmac", Symbol: "BIGMAC", DisplayName: "Big Mac Index", Glyph: "🍔", Category: types.CategoryIndex, FallbackPrice: 5.69}, QuoteSource{}},
	}

	c := &Catalog{entries: make(map[string]entry, len(assets))}
	for _, a := range assets {
		c.entries[a.asset.Key] = entry{asset: a.asset, source: a.source}
		c.keys = append(c.keys, a.asset.Key)
	}
	sort.Strings(c.keys)

	return c
}

// Get returns the asset for the given key, or an UnknownAssetError.
func (c *Catalog) Get(key string) (types.Asset, error) {
	e, ok := c.entries[key]
	if !ok {
		return types.Asset{}, apperrors.NewUnknownAssetError(key)
	}
	return e.asset, nil
}

// Has reports whether the key exists in the catalog.
func (c *Catalog) Has(key string) bool {
	_, ok := c.entries[key]
	return ok
}

// Source returns the upstream quote source for the given key.
func (c *Catalog) Source(key string) (QuoteSource, error) {
	e, ok := c.entries[key]
	if !ok {
		return QuoteSource{}, apperrors.NewUnknownAssetError(key)
	}
	return e.source, nil
}

// FallbackPrice returns the catalog fallback price for the given key, or 0
// for an unknown key.
func (c *Catalog) FallbackPrice(key string) float64 {
	if e, ok := c.entries[key]; ok {
		return e.asset.FallbackPrice
	}
	return 0
}

// Keys returns all asset keys in sorted order.
func (c *Catalog) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// All returns all assets in key order.
func (c *Catalog) All() []types.Asset {
	out := make([]types.Asset, 0, len(c.keys))
	for _, k := range c.keys {
		out = append(out, c.entries[k].asset)
	}
	return out
}
