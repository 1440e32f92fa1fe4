package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/market-tracker/internal/errors"
	"github.com/market-tracker/internal/types"
)

func TestGetKnownAsset(t *testing.T) {
	c := NewDefault()

	btc, err := c.Get("btc")
	require.NoError(t, err)
	assert.Equal(t, "BTC", btc.Symbol)
	assert.Equal(t, types.CategoryCrypto, btc.Category)
	assert.Equal(t, 43000.0, btc.FallbackPrice)
}

func TestGetUnknownAsset(t *testing.T) {
	c := NewDefault()

	_, err := c.Get("vibranium")
	require.Error(t, err)

	catErr := apperrors.Categorize(err)
	assert.Equal(t, "UNKNOWN_ASSET", catErr.Code)
	assert.Equal(t, apperrors.CategoryUserInput, catErr.Category)
}

func TestUpstreamSymbols(t *testing.T) {
	c := NewDefault()

	tests := []struct {
		key    string
		symbol string
		invert bool
	}{
		{"btc", "BTC-USD", false},
		{"gold", "GC=F", false},
		{"silver", "SI=F", false},
		{"eur", "EURUSD=X", false},
		{"jpy", "USDJPY=X", true},
		{"chf", "USDCHF=X", true},
		{"bigmac", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			src, err := c.Source(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.symbol, src.Symbol)
			assert.Equal(t, tt.invert, src.Invert)
		})
	}
}

func TestEveryAssetHasValidCategoryAndFallback(t *testing.T) {
	c := NewDefault()

	for _, asset := range c.All() {
		assert.True(t, asset.Category.Valid(), "asset %s has invalid category %q", asset.Key, asset.Category)
		assert.Greater(t, asset.FallbackPrice, 0.0, "asset %s has no fallback price", asset.Key)

		src, err := c.Source(asset.Key)
		require.NoError(t, err)
		if asset.Category == types.CategoryIndex {
			assert.Empty(t, src.Symbol, "index asset %s must not have an upstream symbol", asset.Key)
		} else {
			assert.NotEmpty(t, src.Symbol, "asset %s has no upstream symbol", asset.Key)
		}
	}
}

func TestKeysSortedAndCopied(t *testing.T) {
	c := NewDefault()

	keys := c.Keys()
	require.NotEmpty(t, keys)
	assert.True(t, sortedStrings(keys))

	keys[0] = "mutated"
	assert.NotEqual(t, "mutated", c.Keys()[0], "Keys must return a copy")
}

func sortedStrings(s []string) bool {
	for i := 1; i < len(s); i++ {
		if s[i-1] > s[i] {
			return false
		}
	}
	return true
}
