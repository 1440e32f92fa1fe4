package analytics

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func genPriceSeries(minLen int) gopter.Gen {
	return gen.SliceOf(gen.Float64Range(0.01, 1e6)).SuchThat(func(v interface{}) bool {
		return len(v.([]float64)) >= minLen
	})
}

func TestRSIBoundsProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("RSI is always within [0, 100]", prop.ForAll(
		func(prices []float64) bool {
			rsi, ok := RSI(prices, DefaultRSIPeriod)
			if !ok {
				return true
			}
			return rsi >= 0 && rsi <= 100
		},
		genPriceSeries(DefaultRSIPeriod+1),
	))

	properties.TestingRun(t)
}

func TestBollingerOrderingProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("bands are ordered upper >= middle >= lower", prop.ForAll(
		func(prices []float64) bool {
			bands, ok := BollingerBands(prices, DefaultBollingerPeriod, DefaultBollingerK)
			if !ok {
				return true
			}
			return bands.Upper >= bands.Middle && bands.Middle >= bands.Lower
		},
		genPriceSeries(DefaultBollingerPeriod),
	))

	properties.TestingRun(t)
}

func TestSMAWithinRangeProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("SMA lies between the window min and max", prop.ForAll(
		func(prices []float64) bool {
			sma, ok := SMA(prices, 5)
			if !ok {
				return true
			}
			w, _ := window(prices, 5)
			lo, hi := w[0], w[0]
			for _, p := range w {
				if p < lo {
					lo = p
				}
				if p > hi {
					hi = p
				}
			}
			// Allow for floating point rounding at the boundaries.
			const eps = 1e-9
			return sma >= lo-eps && sma <= hi+eps
		},
		genPriceSeries(5),
	))

	properties.TestingRun(t)
}
