package quotes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/market-tracker/internal/catalog"
	"github.com/market-tracker/internal/config"
	"github.com/market-tracker/internal/types"
)

func chartBody(symbol string, price float64) string {
	return fmt.Sprintf(`{
		"chart": {
			"result": [{
				"meta": {"regularMarketPrice": %g, "symbol": %q},
				"indicators": {"quote": [{"close": [null, %g]}]}
			}],
			"error": null
		}
	}`, price, symbol, price)
}

func closeOnlyBody(price float64) string {
	return fmt.Sprintf(`{
		"chart": {
			"result": [{
				"meta": {"symbol": "X"},
				"indicators": {"quote": [{"close": [%g, null]}]}
			}],
			"error": null
		}
	}`, price)
}

func testQuotesConfig(host string) *config.QuotesConfig {
	return &config.QuotesConfig{
		FinanceHost:    host,
		RequestTimeout: 2 * time.Second,
		RetryAttempts:  1,
		RetryBaseDelay: time.Millisecond,
		RequestsPerSec: 1000,
	}
}

func newTestFetcher(t *testing.T, handler http.Handler) (*Fetcher, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(testQuotesConfig(server.URL), nil)
	return NewFetcher(client, catalog.NewDefault(), server.URL), server
}

func TestFetchOne_RegularMarketPrice(t *testing.T) {
	fetcher, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/v8/finance/chart/BTC-USD")
		fmt.Fprint(w, chartBody("BTC-USD", 43000))
	}))

	price, err := fetcher.FetchOne(context.Background(), "btc")
	require.NoError(t, err)
	assert.Equal(t, 43000.0, price)
}

func TestFetchOne_FallsBackToLastClose(t *testing.T) {
	fetcher, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, closeOnlyBody(2025.5))
	}))

	price, err := fetcher.FetchOne(context.Background(), "gold")
	require.NoError(t, err)
	assert.Equal(t, 2025.5, price)
}

func TestFetchOne_InvertsQuotedPairs(t *testing.T) {
	fetcher, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// USDJPY quoted as yen per dollar
		fmt.Fprint(w, chartBody("USDJPY=X", 150.0))
	}))

	price, err := fetcher.FetchOne(context.Background(), "jpy")
	require.NoError(t, err)
	assert.InDelta(t, 1.0/150.0, price, 1e-12)
}

func TestFetchOne_NonInvertedForex(t *testing.T) {
	fetcher, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chartBody("EURUSD=X", 1.085))
	}))

	price, err := fetcher.FetchOne(context.Background(), "eur")
	require.NoError(t, err)
	assert.Equal(t, 1.085, price)
}

func TestFetchOne_IndexAssetNeverHitsNetwork(t *testing.T) {
	var calls atomic.Int64
	fetcher, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, chartBody("X", 1))
	}))

	price, err := fetcher.FetchOne(context.Background(), "bigmac")
	require.NoError(t, err)
	assert.Zero(t, calls.Load())

	// Within ±0.5% of the fallback price
	fallback := catalog.NewDefault().FallbackPrice("bigmac")
	assert.InDelta(t, fallback, price, fallback*0.005+1e-9)
}

func TestSyntheticPrice_DeterministicWithinHour(t *testing.T) {
	fetcher := NewFetcher(NewClient(testQuotesConfig(""), nil), catalog.NewDefault(), "")

	at := time.Date(2026, 5, 1, 14, 10, 0, 0, time.UTC)
	p1 := fetcher.syntheticPrice("bigmac", at)
	p2 := fetcher.syntheticPrice("bigmac", at.Add(20*time.Minute))
	assert.Equal(t, p1, p2)

	p3 := fetcher.syntheticPrice("bigmac", at.Add(2*time.Hour))
	assert.NotEqual(t, p1, p3)
}

func TestFetchAll_FailureIsolation(t *testing.T) {
	fetcher, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v8/finance/chart/BTC-USD" {
			fmt.Fprint(w, chartBody("BTC-USD", 44000))
			return
		}
		// Everything else is broken upstream
		w.WriteHeader(http.StatusBadRequest)
	}))

	lastKnown := types.PriceSnapshot{"eth": 2500}
	snap := fetcher.FetchAll(context.Background(), []string{"btc", "eth", "sol"}, lastKnown)

	// Healthy asset gets the live price
	assert.Equal(t, 44000.0, snap["btc"])
	// Failed asset with a last known price keeps it
	assert.Equal(t, 2500.0, snap["eth"])
	// Failed asset without history falls back to the catalog price
	assert.Equal(t, catalog.NewDefault().FallbackPrice("sol"), snap["sol"])
}

func TestFetchAll_SkipsUnknownKeys(t *testing.T) {
	fetcher, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chartBody("BTC-USD", 43000))
	}))

	snap := fetcher.FetchAll(context.Background(), []string{"btc", "nope"}, nil)
	assert.Len(t, snap, 1)
	assert.Contains(t, snap, "btc")
}

func TestFetchOne_ChartAPIError(t *testing.T) {
	fetcher, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart": {"result": [], "error": {"code": "Not Found", "description": "No data found"}}}`)
	}))

	_, err := fetcher.FetchOne(context.Background(), "btc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No data found")
}
