package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/market-tracker/internal/storage"
	"github.com/market-tracker/internal/types"
)

func setupTestStore(t *testing.T, maxPoints int) *Store {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	kv := storage.NewKVStore(storage.NewRedisCacheWithClient(client))

	return NewStore(kv, maxPoints)
}

func TestStore_AppendAndLoadNewestFirst(t *testing.T) {
	store := setupTestStore(t, 10)
	ctx := context.Background()

	base := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		point := types.PricePoint{
			AssetKey:   "btc",
			Price:      43000 + float64(i)*100,
			ObservedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.Append(ctx, point))
	}

	points, err := store.Load(ctx, "btc", 0)
	require.NoError(t, err)
	require.Len(t, points, 3)

	// Newest first
	assert.Equal(t, 43200.0, points[0].Price)
	assert.Equal(t, 43100.0, points[1].Price)
	assert.Equal(t, 43000.0, points[2].Price)
	assert.Equal(t, base.Add(2*time.Minute), points[0].ObservedAt)
}

func TestStore_CapDropsOldest(t *testing.T) {
	store := setupTestStore(t, 5)
	ctx := context.Background()

	base := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 8; i++ {
		point := types.PricePoint{
			AssetKey:   "gold",
			Price:      2000 + float64(i),
			ObservedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.Append(ctx, point))
	}

	points, err := store.Load(ctx, "gold", 0)
	require.NoError(t, err)
	require.Len(t, points, 5)

	// Newest 5 survive: prices 2007 down to 2003
	assert.Equal(t, 2007.0, points[0].Price)
	assert.Equal(t, 2003.0, points[4].Price)
}

func TestStore_LoadLimit(t *testing.T) {
	store := setupTestStore(t, 100)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		point := types.PricePoint{
			AssetKey:   "eur",
			Price:      1.08 + float64(i)*0.001,
			ObservedAt: time.Now().UTC(),
		}
		require.NoError(t, store.Append(ctx, point))
	}

	points, err := store.Load(ctx, "eur", 4)
	require.NoError(t, err)
	assert.Len(t, points, 4)
}

func TestStore_EmptyAsset(t *testing.T) {
	store := setupTestStore(t, 10)

	points, err := store.Load(context.Background(), "sol", 0)
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestStore_AppendSnapshot(t *testing.T) {
	store := setupTestStore(t, 10)
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	snap := types.PriceSnapshot{"btc": 43000, "eth": 2250}
	require.NoError(t, store.AppendSnapshot(ctx, snap, at))

	btc, err := store.Load(ctx, "btc", 0)
	require.NoError(t, err)
	require.Len(t, btc, 1)
	assert.Equal(t, 43000.0, btc[0].Price)
	assert.Equal(t, at, btc[0].ObservedAt)

	eth, err := store.Load(ctx, "eth", 0)
	require.NoError(t, err)
	require.Len(t, eth, 1)
	assert.Equal(t, 2250.0, eth[0].Price)
}

func TestStore_ReplaceAndClear(t *testing.T) {
	store := setupTestStore(t, 10)
	ctx := context.Background()

	points := []types.PricePoint{
		{AssetKey: "chf", Price: 1.12, ObservedAt: time.Now().UTC().Truncate(time.Millisecond)},
		{AssetKey: "chf", Price: 1.11, ObservedAt: time.Now().UTC().Truncate(time.Millisecond)},
	}
	require.NoError(t, store.Replace(ctx, "chf", points))

	loaded, err := store.Load(ctx, "chf", 0)
	require.NoError(t, err)
	assert.Len(t, loaded, 2)

	require.NoError(t, store.Clear(ctx, "chf"))
	loaded, err = store.Load(ctx, "chf", 0)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestStore_PointRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("compact encoding round-trips points at millisecond precision", prop.ForAll(
		func(price float64, unixMilli int64) bool {
			in := types.PricePoint{
				AssetKey:   "btc",
				Price:      price,
				ObservedAt: time.UnixMilli(unixMilli).UTC(),
			}
			out := fromCompact(toCompact(in))
			return out.AssetKey == in.AssetKey &&
				out.Price == in.Price &&
				out.ObservedAt.Equal(in.ObservedAt)
		},
		gen.Float64Range(0.0001, 1e9),
		gen.Int64Range(0, 4102444800000), // through year 2100
	))

	properties.TestingRun(t)
}

func TestStore_CapPropertyNeverExceeded(t *testing.T) {
	store := setupTestStore(t, 7)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	appended := 0
	properties.Property("window length never exceeds the cap", prop.ForAll(
		func(price float64) bool {
			appended++
			point := types.PricePoint{
				AssetKey:   "doge",
				Price:      price,
				ObservedAt: time.Now().UTC(),
			}
			if err := store.Append(ctx, point); err != nil {
				return false
			}
			points, err := store.Load(ctx, "doge", 0)
			if err != nil {
				return false
			}
			want := appended
			if want > 7 {
				want = 7
			}
			if len(points) != want {
				fmt.Printf("got %d points, want %d\n", len(points), want)
				return false
			}
			return true
		},
		gen.Float64Range(0.01, 100000),
	))

	properties.TestingRun(t)
}
