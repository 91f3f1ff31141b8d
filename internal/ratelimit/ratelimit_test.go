package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	starts map[string]time.Time
}

func newMapCounter() *mapCounter {
	return &mapCounter{counts: map[string]int64{}, starts: map[string]time.Time{}}
}

func (m *mapCounter) Increment(_ context.Context, key string, start time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key + "|" + start.Format(time.RFC3339)
	m.counts[k]++
	m.starts[k] = start
	return m.counts[k], nil
}

func (m *mapCounter) PurgeCounters(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, s := range m.starts {
		if s.Before(before) {
			delete(m.counts, k)
			delete(m.starts, k)
			n++
		}
	}
	return n, nil
}

func TestAllowWithinWindow(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 15, 0, 0, time.UTC)
	l := New(newMapCounter(), 2, time.Hour)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, "upload|a@b.it"))
	require.NoError(t, l.Allow(ctx, "upload|a@b.it"))
	assert.True(t, errors.Is(l.Allow(ctx, "upload|a@b.it"), ErrLimited))
	assert.NoError(t, l.Allow(ctx, "upload|c@d.it"))

	now = now.Add(time.Hour)
	assert.NoError(t, l.Allow(ctx, "upload|a@b.it"))

	n, err := l.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestZeroMaxDisablesLimit(t *testing.T) {
	l := New(newMapCounter(), 0, time.Minute)
	for i := 0; i < 10; i++ {
		assert.NoError(t, l.Allow(context.Background(), "k"))
	}
}

func TestWindowStart(t *testing.T) {
	l := New(newMapCounter(), 1, 0)
	got := l.WindowStart(time.Date(2024, 5, 1, 10, 59, 59, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), got)
}
