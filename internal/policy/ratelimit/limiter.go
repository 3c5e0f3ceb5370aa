// Package ratelimit paces requests to a single upstream provider.
//
// A Limiter enforces a fixed request budget per window and a minimum spacing
// between consecutive requests. Callers that would have to wait longer than
// their budget get a *RetryAfterError instead of blocking.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/rescue-radar/internal/animal"
	"github.com/JakeFAU/rescue-radar/internal/clock"
	"github.com/JakeFAU/rescue-radar/internal/metrics"
)

// ErrRateLimited is matched by every *RetryAfterError.
var ErrRateLimited = errors.New("rate limited")

// RetryAfterError reports how long the caller should back off.
type RetryAfterError struct {
	Provider string
	After    time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("%s rate limited, retry after %s", e.Provider, e.After.Round(time.Millisecond))
}

// Unwrap lets errors.Is match ErrRateLimited.
func (e *RetryAfterError) Unwrap() error { return ErrRateLimited }

// Config holds per-provider limits.
type Config struct {
	// MaxRequests is the request budget per Window. Zero disables the window.
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
	// MinSpacing is the minimum gap between two requests.
	MinSpacing time.Duration `mapstructure:"min_spacing"`
	// MaxWait bounds how long Wait blocks when the context carries no budget.
	// Zero or negative means no bound.
	MaxWait time.Duration `mapstructure:"max_wait"`
}

// Window is a point-in-time view of the limiter state.
type Window struct {
	RequestCount  int
	WindowResetAt time.Time
	LastRequestAt time.Time
}

// Limiter paces requests for one provider. It is safe for concurrent use.
//
// Windows are fixed intervals of cfg.Window starting at the first request.
// Slots reserved for a future window are counted against that window only.
type Limiter struct {
	name  string
	cfg   Config
	clock animal.Clock
	sleep func(ctx context.Context, d time.Duration) error

	mu             sync.Mutex
	spacing        *rate.Limiter
	windowStart    time.Time
	slots          map[int64]int
	lastRequestAt  time.Time
	penalizedUntil time.Time
}

// New creates a Limiter for the named provider. A nil clock uses the system clock.
func New(name string, cfg Config, clk animal.Clock) *Limiter {
	if clk == nil {
		clk = clock.NewSystem()
	}
	limit := rate.Inf
	if cfg.MinSpacing > 0 {
		limit = rate.Every(cfg.MinSpacing)
	}
	return &Limiter{
		name:    name,
		cfg:     cfg,
		clock:   clk,
		sleep:   sleepCtx,
		spacing: rate.NewLimiter(limit, 1),
		slots:   make(map[int64]int),
	}
}

type budgetKey struct{}

// WithMaxWait returns a context whose Wait calls block at most d.
func WithMaxWait(ctx context.Context, d time.Duration) context.Context {
	return context.WithValue(ctx, budgetKey{}, d)
}

func (l *Limiter) budget(ctx context.Context) time.Duration {
	if d, ok := ctx.Value(budgetKey{}).(time.Duration); ok {
		return d
	}
	return l.cfg.MaxWait
}

// Wait reserves the next request slot and blocks until it arrives.
// It returns a *RetryAfterError without reserving when the slot is further
// away than the caller's budget.
func (l *Limiter) Wait(ctx context.Context) error {
	delay, err := l.reserve(l.budget(ctx))
	if err != nil {
		metrics.ObserveRateLimitRejection(l.name)
		return err
	}
	if delay <= 0 {
		return nil
	}
	metrics.ObserveRateLimitDelay(l.name, delay)
	if err := l.sleep(ctx, delay); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

func (l *Limiter) reserve(maxWait time.Duration) (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	windowed := l.windowed()
	if windowed {
		if l.windowStart.IsZero() {
			l.windowStart = now
		}
		l.prune(now)
	}

	at := now
	if l.penalizedUntil.After(at) {
		at = l.penalizedUntil
	}

	var (
		r    *rate.Reservation
		slot time.Time
	)
	for {
		if windowed {
			if k := l.windowIndex(at); l.slots[k] >= l.cfg.MaxRequests {
				at = l.windowEnd(k)
				continue
			}
		}
		r = l.spacing.ReserveN(at, 1)
		slot = at.Add(r.DelayFrom(at))
		if windowed {
			// Spacing may push the slot into a window that is already full.
			if k := l.windowIndex(slot); l.slots[k] >= l.cfg.MaxRequests {
				r.CancelAt(at)
				at = l.windowEnd(k)
				continue
			}
		}
		break
	}

	delay := slot.Sub(now)
	if maxWait > 0 && delay > maxWait {
		r.CancelAt(at)
		return 0, &RetryAfterError{Provider: l.name, After: delay}
	}

	if windowed {
		l.slots[l.windowIndex(slot)]++
	}
	l.lastRequestAt = slot
	return delay, nil
}

func (l *Limiter) windowed() bool {
	return l.cfg.MaxRequests > 0 && l.cfg.Window > 0
}

func (l *Limiter) windowIndex(t time.Time) int64 {
	return int64(t.Sub(l.windowStart) / l.cfg.Window)
}

func (l *Limiter) windowEnd(k int64) time.Time {
	return l.windowStart.Add(time.Duration(k+1) * l.cfg.Window)
}

// prune drops counts for windows that have already closed.
func (l *Limiter) prune(now time.Time) {
	current := l.windowIndex(now)
	for k := range l.slots {
		if k < current {
			delete(l.slots, k)
		}
	}
}

// Penalize blocks new requests for the given duration, typically from a
// Retry-After header on a 429 response.
func (l *Limiter) Penalize(after time.Duration) {
	if after <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	until := l.clock.Now().Add(after)
	if until.After(l.penalizedUntil) {
		l.penalizedUntil = until
	}
}

// Snapshot returns the state of the window containing the current time.
func (l *Limiter) Snapshot() Window {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := Window{LastRequestAt: l.lastRequestAt}
	if l.windowed() && !l.windowStart.IsZero() {
		k := l.windowIndex(l.clock.Now())
		w.RequestCount = l.slots[k]
		w.WindowResetAt = l.windowEnd(k)
	}
	return w
}

// Name returns the provider this limiter paces.
func (l *Limiter) Name() string {
	return l.name
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
