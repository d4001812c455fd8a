package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "zero capacity", cfg: Config{Capacity: 0, RefillRate: 1}},
		{name: "zero refill", cfg: Config{Capacity: 1, RefillRate: 0}},
		{name: "negative initial fill", cfg: Config{Capacity: 2, RefillRate: 1, InitialFill: intPtr(-1)}},
		{name: "initial fill above capacity", cfg: Config{Capacity: 2, RefillRate: 1, InitialFill: intPtr(3)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestAcquireBeyondCapacityWaitsForRefill(t *testing.T) {
	const (
		capacity = 3
		requests = 6
		rate     = 20.0 // one permit every 50ms
	)
	interval := time.Duration(float64(time.Second) / rate)

	limiter, err := New(Config{Capacity: capacity, RefillRate: rate})
	require.NoError(t, err)

	ctx := context.Background()
	start := time.Now()
	elapsed := make([]time.Duration, requests)
	for i := range requests {
		require.NoError(t, limiter.Acquire(ctx, 1))
		elapsed[i] = time.Since(start)
	}

	for i := range capacity {
		assert.Less(t, elapsed[i], interval, "permit %d should come from the initial fill", i)
	}
	// Allow a little timer slack below the nominal refill interval.
	slack := 5 * time.Millisecond
	assert.GreaterOrEqual(t, elapsed[capacity], interval-slack)
	assert.GreaterOrEqual(t, elapsed[requests-1], time.Duration(requests-capacity)*interval-slack)
}

func TestConcurrentAcquireAllSucceed(t *testing.T) {
	limiter, err := New(Config{Capacity: 2, RefillRate: 100})
	require.NoError(t, err)

	const callers = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := limiter.Acquire(ctx, 1); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, callers, succeeded)
}

func TestAcquireCancelledDoesNotConsume(t *testing.T) {
	limiter, err := New(Config{Capacity: 1, RefillRate: 0.5})
	require.NoError(t, err)

	require.NoError(t, limiter.Acquire(context.Background(), 1))
	before := limiter.Available()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = limiter.Acquire(ctx, 1)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The withdrawn reservation leaves the bucket where it was, give or
	// take the refill accrued while waiting.
	assert.InDelta(t, before, limiter.Available(), 0.1)
}

func TestAcquireAlreadyCancelled(t *testing.T) {
	limiter, err := New(Config{Capacity: 1, RefillRate: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, limiter.Acquire(ctx, 1), context.Canceled)
	assert.InDelta(t, 1.0, limiter.Available(), 0.01)
}

func TestAcquireCostAboveCapacity(t *testing.T) {
	limiter, err := New(Config{Capacity: 2, RefillRate: 1})
	require.NoError(t, err)
	assert.ErrorIs(t, limiter.Acquire(context.Background(), 3), ErrCostExceedsCapacity)
}

func TestInitialFill(t *testing.T) {
	limiter, err := New(Config{Capacity: 4, RefillRate: 0.1, InitialFill: intPtr(1)})
	require.NoError(t, err)

	assert.True(t, limiter.TryAcquire(1))
	assert.False(t, limiter.TryAcquire(1))
	assert.Equal(t, 4, limiter.Capacity())
}

func TestNilLimiterAdmitsEverything(t *testing.T) {
	var limiter *Limiter
	assert.NoError(t, limiter.Acquire(context.Background(), 100))
	assert.True(t, limiter.TryAcquire(100))
	assert.Zero(t, limiter.Capacity())
}
