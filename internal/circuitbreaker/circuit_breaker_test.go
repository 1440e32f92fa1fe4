package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream failed")

func failingCall() error { return errUpstream }
func okCall() error      { return nil }

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(&Config{Name: "quotes", FailureThreshold: 5, Timeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := cb.Execute(ctx, failingCall)
		require.ErrorIs(t, err, errUpstream)
	}

	assert.Equal(t, StateOpen, cb.GetState())

	// Next call must be rejected without invoking the function.
	invoked := false
	err := cb.Execute(ctx, func() error {
		invoked = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, invoked, "open breaker must not issue a network attempt")
}

func TestBreakerSuccessResetsFailureRun(t *testing.T) {
	cb := NewCircuitBreaker(&Config{Name: "quotes", FailureThreshold: 3, Timeout: time.Minute})
	ctx := context.Background()

	_ = cb.Execute(ctx, failingCall)
	_ = cb.Execute(ctx, failingCall)
	require.NoError(t, cb.Execute(ctx, okCall))
	_ = cb.Execute(ctx, failingCall)
	_ = cb.Execute(ctx, failingCall)

	// Failure run was interrupted, so four failures with one success in the
	// middle must not open a threshold-3 breaker.
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestBreakerHalfOpenProbeRecovery(t *testing.T) {
	cb := NewCircuitBreaker(&Config{Name: "quotes", FailureThreshold: 2, Timeout: 20 * time.Millisecond})
	ctx := context.Background()

	_ = cb.Execute(ctx, failingCall)
	_ = cb.Execute(ctx, failingCall)
	require.Equal(t, StateOpen, cb.GetState())

	// Before the cooldown elapses the breaker stays open.
	assert.ErrorIs(t, cb.Execute(ctx, okCall), ErrCircuitOpen)

	time.Sleep(30 * time.Millisecond)

	// After the cooldown a probe is allowed; success closes the breaker.
	require.NoError(t, cb.Execute(ctx, okCall))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestBreakerHalfOpenProbeFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(&Config{Name: "quotes", FailureThreshold: 2, Timeout: 20 * time.Millisecond})
	ctx := context.Background()

	_ = cb.Execute(ctx, failingCall)
	_ = cb.Execute(ctx, failingCall)
	require.Equal(t, StateOpen, cb.GetState())

	time.Sleep(30 * time.Millisecond)

	require.ErrorIs(t, cb.Execute(ctx, failingCall), errUpstream)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestBreakerManualReset(t *testing.T) {
	cb := NewCircuitBreaker(DefaultConfig("quotes"))
	cb.ForceOpen()
	require.Equal(t, StateOpen, cb.GetState())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, 0, cb.GetStats().ConsecutiveFails)
}

func TestManagerGetOrCreate(t *testing.T) {
	m := NewManager()

	a := m.GetOrCreate("quotes", nil)
	b := m.GetOrCreate("quotes", nil)
	assert.Same(t, a, b)

	_, err := m.Get("news")
	assert.Error(t, err)

	m.GetOrCreate("news", DefaultConfig("news"))
	stats := m.GetAllStats()
	assert.Len(t, stats, 2)
	assert.Equal(t, StateClosed, stats["news"].State)
}
