package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/market-tracker/internal/alerts"
	"github.com/market-tracker/internal/catalog"
	"github.com/market-tracker/internal/config"
	"github.com/market-tracker/internal/history"
	"github.com/market-tracker/internal/quotes"
	"github.com/market-tracker/internal/storage"
	"github.com/market-tracker/internal/types"
)

// memArchive collects archived cycles.
type memArchive struct {
	mu      sync.Mutex
	batches []map[string]types.PricePoint
}

func (a *memArchive) InsertBatch(_ context.Context, points map[string]types.PricePoint) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.batches = append(a.batches, points)
	return nil
}

// priceTable serves chart responses from a mutable symbol->price map.
type priceTable struct {
	mu     sync.Mutex
	prices map[string]float64
}

func (p *priceTable) set(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

func (p *priceTable) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Path[len("/v8/finance/chart/"):]
		p.mu.Lock()
		price, ok := p.prices[symbol]
		p.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, `{"chart":{"result":[{"meta":{"regularMarketPrice":%g,"symbol":%q},"indicators":{"quote":[{"close":[%g]}]}}],"error":null}}`, price, symbol, price)
	})
}

type trackerFixture struct {
	service *TrackerService
	kv      *storage.KVStore
	table   *priceTable
	archive *memArchive
	history *history.Store
}

func setupTracker(t *testing.T) *trackerFixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	kv := storage.NewKVStore(storage.NewRedisCacheWithClient(client))

	table := &priceTable{prices: map[string]float64{}}
	server := httptest.NewServer(table.handler())
	t.Cleanup(server.Close)

	cfg := &config.QuotesConfig{
		FinanceHost:    server.URL,
		RequestTimeout: 2 * time.Second,
		RetryAttempts:  1,
		RetryBaseDelay: time.Millisecond,
		RequestsPerSec: 1000,
	}
	cat := catalog.NewDefault()
	fetcher := quotes.NewFetcher(quotes.NewClient(cfg, nil), cat, server.URL)

	hist := history.NewStore(kv, 100)
	archive := &memArchive{}
	snapshots := storage.NewSnapshotRepository(kv)

	svc := NewTrackerService(cat, fetcher, kv, snapshots, hist, archive, nil)

	return &trackerFixture{service: svc, kv: kv, table: table, archive: archive, history: hist}
}

func TestRunCycle_ComputesPercentChanges(t *testing.T) {
	fx := setupTracker(t)
	ctx := context.Background()

	require.NoError(t, fx.service.SelectAssets(ctx, []string{"btc", "eth"}))

	fx.table.set("BTC-USD", 43000)
	fx.table.set("ETH-USD", 2600)
	first, err := fx.service.RunCycle(ctx)
	require.NoError(t, err)
	assert.Empty(t, first.Changes)

	fx.table.set("BTC-USD", 44000)
	fx.table.set("ETH-USD", 2700)
	second, err := fx.service.RunCycle(ctx)
	require.NoError(t, err)

	assert.InDelta(t, 2.33, second.Changes["btc"], 0.01)
	assert.InDelta(t, 3.85, second.Changes["eth"], 0.01)
}

func TestRunCycle_AppendsHistoryAndArchive(t *testing.T) {
	fx := setupTracker(t)
	ctx := context.Background()

	require.NoError(t, fx.service.SelectAssets(ctx, []string{"btc"}))
	fx.table.set("BTC-USD", 43000)

	_, err := fx.service.RunCycle(ctx)
	require.NoError(t, err)
	_, err = fx.service.RunCycle(ctx)
	require.NoError(t, err)

	points, err := fx.history.Load(ctx, "btc", 0)
	require.NoError(t, err)
	assert.Len(t, points, 2)

	assert.Len(t, fx.archive.batches, 2)
	assert.Contains(t, fx.archive.batches[0], "btc")
}

func TestRunCycle_FiresAlerts(t *testing.T) {
	fx := setupTracker(t)
	ctx := context.Background()

	store := newFakeRuleStore(&types.AlertRule{
		ID: "r1", AssetKey: "btc", Kind: types.AlertAbove, Threshold: 42000, Active: true,
	})
	fx.service.alerts = alerts.NewEngine(store, nil)

	require.NoError(t, fx.service.SelectAssets(ctx, []string{"btc"}))
	fx.table.set("BTC-USD", 43000)

	result, err := fx.service.RunCycle(ctx)
	require.NoError(t, err)
	require.Len(t, result.Fired, 1)
	assert.Equal(t, "r1", result.Fired[0].RuleID)

	// Trigger-once: the next cycle stays quiet
	result, err = fx.service.RunCycle(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.Fired)
}

func TestPrices_JoinsCatalogAndChanges(t *testing.T) {
	fx := setupTracker(t)
	ctx := context.Background()

	require.NoError(t, fx.service.SelectAssets(ctx, []string{"btc"}))

	fx.table.set("BTC-USD", 43000)
	_, err := fx.service.RunCycle(ctx)
	require.NoError(t, err)

	fx.table.set("BTC-USD", 44000)
	_, err = fx.service.RunCycle(ctx)
	require.NoError(t, err)

	prices, err := fx.service.Prices(ctx)
	require.NoError(t, err)
	require.Len(t, prices, 1)

	assert.Equal(t, "btc", prices[0].Asset.Key)
	assert.Equal(t, 44000.0, prices[0].Price)
	require.NotNil(t, prices[0].ChangePct)
	assert.InDelta(t, 2.33, *prices[0].ChangePct, 0.01)
}

func TestPrices_NoSnapshotYet(t *testing.T) {
	fx := setupTracker(t)

	_, err := fx.service.Prices(context.Background())
	require.Error(t, err)
}

func TestSelectAssets_Validation(t *testing.T) {
	fx := setupTracker(t)
	ctx := context.Background()

	require.Error(t, fx.service.SelectAssets(ctx, nil))
	require.Error(t, fx.service.SelectAssets(ctx, []string{"btc", "nope"}))

	require.NoError(t, fx.service.SelectAssets(ctx, []string{"btc", "gold"}))
	keys, err := fx.service.SelectedAssets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"btc", "gold"}, keys)
}

func TestSelectedAssets_DefaultsToFullCatalog(t *testing.T) {
	fx := setupTracker(t)

	keys, err := fx.service.SelectedAssets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, catalog.NewDefault().Keys(), keys)
}

func TestRunCycle_UpstreamFailureFallsBack(t *testing.T) {
	fx := setupTracker(t)
	ctx := context.Background()

	require.NoError(t, fx.service.SelectAssets(ctx, []string{"btc"}))
	// No price registered: upstream 404s, the catalog fallback is used

	result, err := fx.service.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, catalog.NewDefault().FallbackPrice("btc"), result.Snapshot["btc"])
}

// fakeRuleStore mirrors the alerts package test helper for wiring an engine
// into cycle tests.
type fakeRuleStore struct {
	mu    sync.Mutex
	rules map[string]*types.AlertRule
}

func newFakeRuleStore(rules ...*types.AlertRule) *fakeRuleStore {
	s := &fakeRuleStore{rules: make(map[string]*types.AlertRule)}
	for _, r := range rules {
		s.rules[r.ID] = r
	}
	return s
}

func (s *fakeRuleStore) ListActive(_ context.Context) ([]*types.AlertRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.AlertRule
	for _, r := range s.rules {
		if r.Active && !r.Triggered {
			copied := *r
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *fakeRuleStore) MarkTriggered(_ context.Context, id string, price float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rules[id]; ok {
		r.Active = false
		r.Triggered = true
		r.TriggeredAt = at
		r.TriggeredPrice = price
	}
	return nil
}
