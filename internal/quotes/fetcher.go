package quotes

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"net/url"
	"time"

	"github.com/market-tracker/internal/catalog"
	"github.com/market-tracker/internal/logging"
	"github.com/market-tracker/internal/types"
)

// chartResponse mirrors the finance chart API payload. Only the fields the
// fetcher reads are declared.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice *float64 `json:"regularMarketPrice"`
				Symbol             string   `json:"symbol"`
			} `json:"meta"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Fetcher resolves current prices for catalog assets. Network assets go
// through the guarded client; index assets are synthesized offline.
type Fetcher struct {
	client  *Client
	catalog *catalog.Catalog
	host    string
}

// NewFetcher creates a price fetcher.
func NewFetcher(client *Client, cat *catalog.Catalog, financeHost string) *Fetcher {
	if financeHost == "" {
		financeHost = "https://query1.finance.yahoo.com"
	}
	return &Fetcher{client: client, catalog: cat, host: financeHost}
}

// FetchAll resolves prices for the given asset keys. A failing asset never
// fails the cycle: its price falls back to the last known value, then to the
// catalog fallback. The returned snapshot always has one entry per requested
// known key.
func (f *Fetcher) FetchAll(ctx context.Context, keys []string, lastKnown types.PriceSnapshot) types.PriceSnapshot {
	logger := logging.FromContext(ctx)
	snap := make(types.PriceSnapshot, len(keys))

	for _, key := range keys {
		if !f.catalog.Has(key) {
			logger.WithField("asset", key).Warn("Skipping unknown asset key in fetch cycle")
			continue
		}

		price, err := f.FetchOne(ctx, key)
		if err != nil {
			if last, ok := lastKnown[key]; ok && last > 0 {
				logger.WithFields(map[string]interface{}{
					"asset": key,
					"error": err.Error(),
				}).Warn("Quote fetch failed, keeping last known price")
				snap[key] = last
			} else {
				logger.WithFields(map[string]interface{}{
					"asset": key,
					"error": err.Error(),
				}).Warn("Quote fetch failed, using catalog fallback price")
				snap[key] = f.catalog.FallbackPrice(key)
			}
			continue
		}

		snap[key] = price
	}

	return snap
}

// FetchOne resolves the current price for a single asset key.
func (f *Fetcher) FetchOne(ctx context.Context, key string) (float64, error) {
	source, err := f.catalog.Source(key)
	if err != nil {
		return 0, err
	}

	// Index assets never hit the network
	if source.Symbol == "" {
		return f.syntheticPrice(key, time.Now()), nil
	}

	raw, err := f.fetchChartPrice(ctx, source.Symbol)
	if err != nil {
		return 0, err
	}

	if source.Invert {
		if raw == 0 {
			return 0, fmt.Errorf("zero rate for %s cannot be inverted", source.Symbol)
		}
		return 1 / raw, nil
	}
	return raw, nil
}

// fetchChartPrice pulls the latest price for an upstream symbol from the v8
// chart endpoint. Prefers the live regular market price; falls back to the
// most recent non-null close.
func (f *Fetcher) fetchChartPrice(ctx context.Context, symbol string) (float64, error) {
	chartURL := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=1d", f.host, url.PathEscape(symbol))

	var resp chartResponse
	if err := f.client.GetJSON(ctx, chartURL, &resp); err != nil {
		return 0, err
	}

	if resp.Chart.Error != nil {
		return 0, fmt.Errorf("chart API error for %s: %s", symbol, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return 0, fmt.Errorf("empty chart result for %s", symbol)
	}

	result := resp.Chart.Result[0]
	if p := result.Meta.RegularMarketPrice; p != nil && *p > 0 {
		return *p, nil
	}

	// Market closed or delisted symbol: walk closes newest to oldest
	for _, quote := range result.Indicators.Quote {
		for i := len(quote.Close) - 1; i >= 0; i-- {
			if c := quote.Close[i]; c != nil && *c > 0 {
				return *c, nil
			}
		}
	}

	return 0, fmt.Errorf("no usable price in chart response for %s", symbol)
}

// syntheticPrice derives an offline price for index assets: the catalog
// fallback with a deterministic ±0.5% jitter that changes once per hour.
func (f *Fetcher) syntheticPrice(key string, now time.Time) float64 {
	base := f.catalog.FallbackPrice(key)

	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	_, _ = h.Write([]byte(now.UTC().Format("2006010215")))

	rng := rand.New(rand.NewSource(int64(h.Sum64()))) // #nosec G404 - jitter, not crypto
	jitter := (rng.Float64()*2 - 1) * 0.005

	return base * (1 + jitter)
}
