package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/market-tracker/internal/types"
)

// setupTestKV creates a KVStore backed by a test Redis instance.
func setupTestKV(t *testing.T) (*KVStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	cache := NewRedisCacheWithClient(client)

	return NewKVStore(cache), mr
}

func TestKVStore_PutGetRoundTrip(t *testing.T) {
	kv, _ := setupTestKV(t)
	ctx := context.Background()

	in := map[string]interface{}{
		"pollSeconds": float64(300),
		"theme":       "dark",
	}
	require.NoError(t, kv.PutJSON(ctx, KeySettings, in, 0))

	var out map[string]interface{}
	found, err := kv.GetJSON(ctx, KeySettings, &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, in, out)
}

func TestKVStore_GetMissingKey(t *testing.T) {
	kv, _ := setupTestKV(t)

	var out map[string]string
	found, err := kv.GetJSON(context.Background(), "no:such:key", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestKVStore_CorruptBlobTreatedAsAbsent(t *testing.T) {
	kv, mr := setupTestKV(t)
	ctx := context.Background()

	// Simulate a corrupted stored value
	mr.Set(KeySelectedAssets, "{not json")

	var out []string
	found, err := kv.GetJSON(ctx, KeySelectedAssets, &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestKVStore_Delete(t *testing.T) {
	kv, _ := setupTestKV(t)
	ctx := context.Background()

	require.NoError(t, kv.PutJSON(ctx, KeyTheme, "light", 0))
	require.NoError(t, kv.Delete(ctx, KeyTheme))

	var out string
	found, err := kv.GetJSON(ctx, KeyTheme, &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSnapshotRepository_Rotation(t *testing.T) {
	kv, _ := setupTestKV(t)
	repo := NewSnapshotRepository(kv)
	ctx := context.Background()

	first := types.PriceSnapshot{"btc": 43000, "gold": 2050}
	second := types.PriceSnapshot{"btc": 44000, "gold": 2060}

	require.NoError(t, repo.Replace(ctx, first))
	require.NoError(t, repo.Replace(ctx, second))

	cur, found, err := repo.Current(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, second, cur)

	prev, found, err := repo.Previous(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, first, prev)
}

func TestSnapshotRepository_EmptyStore(t *testing.T) {
	kv, _ := setupTestKV(t)
	repo := NewSnapshotRepository(kv)

	_, found, err := repo.Current(context.Background())
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = repo.Previous(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
}
