package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssetCategoryValid(t *testing.T) {
	for _, c := range []AssetCategory{CategoryCrypto, CategoryMetal, CategoryForex, CategoryIndex} {
		assert.True(t, c.Valid(), "category %s should be valid", c)
	}
	assert.False(t, AssetCategory("stock").Valid())
	assert.False(t, AssetCategory("").Valid())
}

func TestAlertKindValid(t *testing.T) {
	for _, k := range []AlertKind{AlertAbove, AlertBelow, AlertPctUp, AlertPctDown} {
		assert.True(t, k.Valid(), "kind %s should be valid", k)
	}
	assert.False(t, AlertKind("crosses").Valid())
}

func TestPriceSnapshotClone(t *testing.T) {
	orig := PriceSnapshot{"btc": 43000, "eth": 2600}
	clone := orig.Clone()

	clone["btc"] = 1

	assert.Equal(t, 43000.0, orig["btc"], "mutating the clone must not affect the original")
	assert.Equal(t, 2600.0, clone["eth"])
	assert.Len(t, clone, 2)
}
