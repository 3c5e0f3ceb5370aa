package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/JakeFAU/rescue-radar/internal/clock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeSleeper struct {
	clk   *clock.Fixed
	mu    sync.Mutex
	slept []time.Duration
}

func (f *fakeSleeper) sleep(_ context.Context, d time.Duration) error {
	f.mu.Lock()
	f.slept = append(f.slept, d)
	f.mu.Unlock()
	f.clk.Advance(d)
	return nil
}

func newFakeLimiter(cfg Config) (*Limiter, *fakeSleeper) {
	clk := clock.NewFixed(t0)
	l := New("test", cfg, clk)
	fs := &fakeSleeper{clk: clk}
	l.sleep = fs.sleep
	return l, fs
}

func TestWaitEnforcesSpacing(t *testing.T) {
	l, fs := newFakeLimiter(Config{MinSpacing: time.Second})
	ctx := context.Background()

	for range 3 {
		require.NoError(t, l.Wait(ctx))
	}
	assert.Equal(t, []time.Duration{time.Second, time.Second}, fs.slept)
	assert.Equal(t, t0.Add(2*time.Second), l.Snapshot().LastRequestAt)
}

func TestWaitEnforcesWindow(t *testing.T) {
	l, fs := newFakeLimiter(Config{MaxRequests: 2, Window: 10 * time.Second})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx))
	require.NoError(t, l.Wait(ctx))
	assert.Empty(t, fs.slept)
	assert.Equal(t, 2, l.Snapshot().RequestCount)

	require.NoError(t, l.Wait(ctx))
	assert.Equal(t, []time.Duration{10 * time.Second}, fs.slept)

	snap := l.Snapshot()
	assert.Equal(t, 1, snap.RequestCount)
	assert.Equal(t, t0.Add(20*time.Second), snap.WindowResetAt)
}

func TestReserveNeverOverfillsWindow(t *testing.T) {
	// The clock never advances, as when every caller arrives at once.
	l := New("test", Config{MaxRequests: 2, Window: time.Second}, clock.NewFixed(t0))

	var delays []time.Duration
	for range 6 {
		d, err := l.reserve(0)
		require.NoError(t, err)
		delays = append(delays, d)
	}
	assert.Equal(t, []time.Duration{0, 0, time.Second, time.Second, 2 * time.Second, 2 * time.Second}, delays)

	snap := l.Snapshot()
	assert.Equal(t, 2, snap.RequestCount)
	assert.Equal(t, t0.Add(time.Second), snap.WindowResetAt)
}

func TestReserveSpacingSpillsIntoNextWindow(t *testing.T) {
	l := New("test", Config{MaxRequests: 2, Window: 3 * time.Second, MinSpacing: 2 * time.Second}, clock.NewFixed(t0))

	var delays []time.Duration
	for range 4 {
		d, err := l.reserve(0)
		require.NoError(t, err)
		delays = append(delays, d)
	}
	// The third request waits for the second window and spacing pushes the
	// fourth into the third window.
	assert.Equal(t, []time.Duration{0, 2 * time.Second, 4 * time.Second, 6 * time.Second}, delays)
}

func TestWaitBeyondBudgetReturnsRetryAfter(t *testing.T) {
	l, fs := newFakeLimiter(Config{MaxRequests: 1, Window: time.Minute, MaxWait: time.Hour})
	ctx := WithMaxWait(context.Background(), 5*time.Second)

	require.NoError(t, l.Wait(ctx))
	err := l.Wait(ctx)

	var ra *RetryAfterError
	require.ErrorAs(t, err, &ra)
	assert.Equal(t, time.Minute, ra.After)
	assert.Equal(t, "test", ra.Provider)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Empty(t, fs.slept)
	assert.Equal(t, 1, l.Snapshot().RequestCount, "rejected request must not consume budget")
}

func TestWaitUsesConfiguredMaxWait(t *testing.T) {
	l, _ := newFakeLimiter(Config{MinSpacing: 10 * time.Second, MaxWait: time.Second})
	require.NoError(t, l.Wait(context.Background()))
	err := l.Wait(context.Background())
	assert.ErrorIs(t, err, ErrRateLimited)

	// A rejected reservation is released, so the next caller sees the same delay.
	err = l.Wait(WithMaxWait(context.Background(), time.Minute))
	assert.NoError(t, err)
}

func TestPenalize(t *testing.T) {
	l, fs := newFakeLimiter(Config{})
	l.Penalize(30 * time.Second)
	l.Penalize(5 * time.Second)

	err := l.Wait(WithMaxWait(context.Background(), time.Second))
	var ra *RetryAfterError
	require.ErrorAs(t, err, &ra)
	assert.Equal(t, 30*time.Second, ra.After)

	require.NoError(t, l.Wait(context.Background()))
	assert.Equal(t, []time.Duration{30 * time.Second}, fs.slept)
}

func TestConcurrentWaitCountsEveryRequest(t *testing.T) {
	l, _ := newFakeLimiter(Config{MaxRequests: 100, Window: time.Minute})

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Wait(context.Background()))
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, l.Snapshot().RequestCount)
}

func TestWaitHonorsCancellation(t *testing.T) {
	l := New("real", Config{MinSpacing: time.Hour}, nil)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
