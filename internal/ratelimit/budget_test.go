package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupBudget(t *testing.T, cfg *BudgetConfig) *Budget {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	if cfg == nil {
		cfg = &BudgetConfig{}
	}
	cfg.Redis = client

	b, err := NewBudget(cfg)
	require.NoError(t, err)
	return b
}

func TestBudgetConfigValidation(t *testing.T) {
	_, err := NewBudget(nil)
	assert.Error(t, err)

	_, err = NewBudget(&BudgetConfig{})
	assert.Error(t, err, "missing redis client")

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	_, err = NewBudget(&BudgetConfig{Redis: client, TotalBudget: 5, ReservedBudget: 10})
	assert.Error(t, err, "reserved exceeds total")

	_, err = NewBudget(&BudgetConfig{Redis: client, TotalBudget: -1})
	assert.Error(t, err)
}

func TestBudgetConsumeWithinLimit(t *testing.T) {
	b := setupBudget(t, &BudgetConfig{TotalBudget: 10, ReservedBudget: 4})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		allowed, _, err := b.TryConsume(ctx, 1, PriorityHigh)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i)
	}

	// Reserved pool exhausted
	allowed, wait, err := b.TryConsume(ctx, 1, PriorityHigh)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.LessOrEqual(t, wait, DefaultWindowSize)
}

func TestBudgetPoolsAreSeparate(t *testing.T) {
	b := setupBudget(t, &BudgetConfig{TotalBudget: 10, ReservedBudget: 4})
	ctx := context.Background()

	// Drain the shared pool (10 - 4 = 6)
	for i := 0; i < 6; i++ {
		allowed, _, err := b.TryConsume(ctx, 1, PriorityLow)
		require.NoError(t, err)
		require.True(t, allowed)
	}

	allowed, _, err := b.TryConsume(ctx, 1, PriorityLow)
	require.NoError(t, err)
	assert.False(t, allowed, "shared pool exhausted")

	// Reserved pool still has headroom
	allowed, _, err = b.TryConsume(ctx, 1, PriorityHigh)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestBudgetTotalCapsBothPools(t *testing.T) {
	b := setupBudget(t, &BudgetConfig{TotalBudget: 5, ReservedBudget: 4})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		allowed, _, err := b.TryConsume(ctx, 1, PriorityHigh)
		require.NoError(t, err)
		require.True(t, allowed)
	}
	allowed, _, err := b.TryConsume(ctx, 1, PriorityLow)
	require.NoError(t, err)
	assert.True(t, allowed)

	// Total of 5 consumed; nothing left in either pool
	allowed, _, err = b.TryConsume(ctx, 1, PriorityHigh)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestBudgetZeroConsumeAlwaysAllowed(t *testing.T) {
	b := setupBudget(t, nil)

	allowed, wait, err := b.TryConsume(context.Background(), 0, PriorityLow)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Zero(t, wait)
}

func TestBudgetUsage(t *testing.T) {
	b := setupBudget(t, &BudgetConfig{TotalBudget: 10, ReservedBudget: 4})
	ctx := context.Background()

	_, _, err := b.TryConsume(ctx, 2, PriorityHigh)
	require.NoError(t, err)
	_, _, err = b.TryConsume(ctx, 3, PriorityLow)
	require.NoError(t, err)

	usage, err := b.GetUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, usage.TotalUsed)
	assert.Equal(t, 2, usage.ReservedUsed)
	assert.Equal(t, 3, usage.SharedUsed)
	assert.Equal(t, 10, usage.TotalBudget)
	assert.Equal(t, 6, usage.SharedBudget)
}

func TestBudgetWaitHonorsContext(t *testing.T) {
	b := setupBudget(t, &BudgetConfig{TotalBudget: 2, ReservedBudget: 1, WindowSize: time.Minute, KeyTTL: 2 * time.Minute})
	ctx := context.Background()

	require.NoError(t, b.Wait(ctx, 1, PriorityHigh))

	cancelCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := b.Wait(cancelCtx, 1, PriorityHigh)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPriorityContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, PriorityHigh, PriorityFromContext(ctx))
	assert.Equal(t, PriorityLow, PriorityFromContext(WithPriority(ctx, PriorityLow)))
	assert.Equal(t, "high", PriorityHigh.String())
	assert.Equal(t, "low", PriorityLow.String())
}
