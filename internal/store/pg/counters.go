package pg

import (
	"context"
	"fmt"
	"time"
)

// Increment implements ratelimit.Counter. It runs outside any unit of work.
func (s *Store) Increment(ctx context.Context, key string, windowStart time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		insert into rate_counters (key, window_start, count)
		values ($1, $2, 1)
		on conflict (key, window_start) do update set count = rate_counters.count + 1
		returning count
	`, key, windowStart.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("increment counter: %w", err)
	}
	return n, nil
}

// PurgeCounters implements ratelimit.Counter.
func (s *Store) PurgeCounters(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from rate_counters where window_start < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge counters: %w", err)
	}
	return res.RowsAffected()
}
