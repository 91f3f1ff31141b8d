// Package ratelimit implements fixed-window limits over an external counter store.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Counter increments the count for key within the window starting at
// windowStart and returns the new count.
type Counter interface {
	Increment(ctx context.Context, key string, windowStart time.Time) (int64, error)
	PurgeCounters(ctx context.Context, before time.Time) (int64, error)
}

// ErrLimited is returned by Allow when the window budget is spent.
var ErrLimited = errors.New("rate limit exceeded")

// Limiter allows at most Max events per key per Window.
type Limiter struct {
	counter Counter
	max     int64
	window  time.Duration
	now     func() time.Time
}

func New(counter Counter, max int, window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Hour
	}
	return &Limiter{counter: counter, max: int64(max), window: window, now: time.Now}
}

// WindowStart truncates t to the window it falls in.
func (l *Limiter) WindowStart(t time.Time) time.Time {
	return t.UTC().Truncate(l.window)
}

// Allow consumes one event for key. A non-positive max disables limiting.
func (l *Limiter) Allow(ctx context.Context, key string) error {
	if l.max <= 0 {
		return nil
	}
	n, err := l.counter.Increment(ctx, key, l.WindowStart(l.now()))
	if err != nil {
		return err
	}
	if n > l.max {
		return ErrLimited
	}
	return nil
}

// Purge drops counters for windows that ended before the current one.
func (l *Limiter) Purge(ctx context.Context) (int64, error) {
	return l.counter.PurgeCounters(ctx, l.WindowStart(l.now()))
}
