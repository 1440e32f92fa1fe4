package portfolio

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/market-tracker/internal/errors"
	"github.com/market-tracker/internal/storage"
	"github.com/market-tracker/internal/types"
)

// memOrderLog is an in-memory OrderLog for ledger tests.
type memOrderLog struct {
	mu     sync.Mutex
	orders []*types.Order
}

func (m *memOrderLog) Append(_ context.Context, order *types.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, order)
	return nil
}

func (m *memOrderLog) BuyTotals(_ context.Context, assetKey string) (float64, float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var quantity, cost float64
	for _, o := range m.orders {
		if o.AssetKey == assetKey && o.Side == types.SideBuy {
			quantity += o.Quantity
			cost += o.Quantity*o.Price + o.Fee
		}
	}
	return quantity, cost, nil
}

func setupLedger(t *testing.T) (*Ledger, *memOrderLog) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	kv := storage.NewKVStore(storage.NewRedisCacheWithClient(client))
	orders := &memOrderLog{}

	return NewLedger(kv, orders, 0, 0), orders
}

func TestLedger_FreshStateDefaults(t *testing.T) {
	ledger, _ := setupLedger(t)

	state, err := ledger.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50000.0, state.Cash)
	assert.Empty(t, state.Holdings)
}

func TestLedger_BuyDebitsCashPlusFee(t *testing.T) {
	ledger, orders := setupLedger(t)
	ctx := context.Background()

	order, err := ledger.Buy(ctx, "btc", 1, 43000)
	require.NoError(t, err)

	assert.Equal(t, types.SideBuy, order.Side)
	assert.InDelta(t, 43.0, order.Fee, 1e-9)
	assert.InDelta(t, -43043.0, order.CashDelta, 1e-9)

	state, err := ledger.State(ctx)
	require.NoError(t, err)
	// 50000 - 43000*1.001 = 6957
	assert.InDelta(t, 6957.0, state.Cash, 1e-9)
	assert.InDelta(t, 1.0, state.Holdings["btc"], 1e-9)

	require.Len(t, orders.orders, 1)
}

func TestLedger_SellCreditsCashMinusFee(t *testing.T) {
	ledger, _ := setupLedger(t)
	ctx := context.Background()

	_, err := ledger.Buy(ctx, "eth", 2, 2500)
	require.NoError(t, err)

	order, err := ledger.Sell(ctx, "eth", 2, 2600)
	require.NoError(t, err)
	assert.InDelta(t, 5.2, order.Fee, 1e-9)
	assert.InDelta(t, 5194.8, order.CashDelta, 1e-9)

	state, err := ledger.State(ctx)
	require.NoError(t, err)
	// 50000 - 5000*1.001 + 5200*0.999
	assert.InDelta(t, 50000-5005+5194.8, state.Cash, 1e-9)
	// Fully closed position disappears
	_, held := state.Holdings["eth"]
	assert.False(t, held)
}

func TestLedger_InsufficientFunds(t *testing.T) {
	ledger, _ := setupLedger(t)

	_, err := ledger.Buy(context.Background(), "btc", 2, 43000)
	require.Error(t, err)

	catErr, ok := err.(*apperrors.CategorizedError)
	require.True(t, ok)
	assert.Equal(t, "INSUFFICIENT_FUNDS", catErr.Code)

	// State untouched
	state, stateErr := ledger.State(context.Background())
	require.NoError(t, stateErr)
	assert.Equal(t, 50000.0, state.Cash)
}

func TestLedger_InsufficientHoldings(t *testing.T) {
	ledger, _ := setupLedger(t)
	ctx := context.Background()

	_, err := ledger.Buy(ctx, "sol", 10, 100)
	require.NoError(t, err)

	_, err = ledger.Sell(ctx, "sol", 11, 100)
	require.Error(t, err)

	catErr, ok := err.(*apperrors.CategorizedError)
	require.True(t, ok)
	assert.Equal(t, "INSUFFICIENT_HOLDINGS", catErr.Code)
}

func TestLedger_RejectsInvalidTrades(t *testing.T) {
	ledger, _ := setupLedger(t)
	ctx := context.Background()

	_, err := ledger.Buy(ctx, "btc", 0, 100)
	require.Error(t, err)

	_, err = ledger.Buy(ctx, "btc", 1, -5)
	require.Error(t, err)

	_, err = ledger.Sell(ctx, "btc", -1, 100)
	require.Error(t, err)
}

func TestLedger_AverageCostFromBuysOnly(t *testing.T) {
	ledger, _ := setupLedger(t)
	ctx := context.Background()

	_, err := ledger.Buy(ctx, "gold", 2, 2000)
	require.NoError(t, err)
	_, err = ledger.Buy(ctx, "gold", 2, 2100)
	require.NoError(t, err)
	// Sells must not move the basis
	_, err = ledger.Sell(ctx, "gold", 1, 2500)
	require.NoError(t, err)

	avg, ok, err := ledger.AverageCost(ctx, "gold")
	require.NoError(t, err)
	require.True(t, ok)
	// (2*2000*1.001 + 2*2100*1.001) / 4
	assert.InDelta(t, 2050*1.001, avg, 1e-9)
}

func TestLedger_AverageCostUnavailableWithoutBuys(t *testing.T) {
	ledger, _ := setupLedger(t)

	_, ok, err := ledger.AverageCost(context.Background(), "btc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLedger_Valuation(t *testing.T) {
	ledger, _ := setupLedger(t)
	ctx := context.Background()

	_, err := ledger.Buy(ctx, "btc", 0.5, 40000)
	require.NoError(t, err)

	snap := types.PriceSnapshot{"btc": 44000}
	v, err := ledger.Value(ctx, snap)
	require.NoError(t, err)

	assert.InDelta(t, 0.5*44000, v.HoldingsValue, 1e-9)
	assert.InDelta(t, v.Cash+v.HoldingsValue, v.TotalValue, 1e-9)
	require.Len(t, v.Positions, 1)
	assert.Equal(t, "btc", v.Positions[0].AssetKey)
}

func TestLedger_Reset(t *testing.T) {
	ledger, _ := setupLedger(t)
	ctx := context.Background()

	_, err := ledger.Buy(ctx, "btc", 0.1, 43000)
	require.NoError(t, err)

	require.NoError(t, ledger.Reset(ctx))

	state, err := ledger.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50000.0, state.Cash)
	assert.Empty(t, state.Holdings)
}
