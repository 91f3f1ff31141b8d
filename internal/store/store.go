// Package store selects the Store backend from configuration.
package store

import (
	"context"
	"fmt"
	"strings"

	"lightingmap.app/internal/lighting"
	"lightingmap.app/internal/ratelimit"
	"lightingmap.app/internal/store/memory"
	"lightingmap.app/internal/store/pg"
)

// Backend is a Store that also persists windowed rate counters.
type Backend interface {
	lighting.Store
	ratelimit.Counter
}

var (
	_ Backend = (*memory.Store)(nil)
	_ Backend = (*pg.Store)(nil)
)

// Open returns a PostgreSQL store with its schema applied when dsn is set and
// an in-memory store otherwise. The returned close func is never nil.
func Open(ctx context.Context, dsn string, maxOpenConns int) (Backend, func() error, error) {
	if strings.TrimSpace(dsn) == "" {
		return memory.New(), func() error { return nil }, nil
	}
	s, err := pg.Open(dsn, maxOpenConns)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := s.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = s.Close()
		return nil, nil, err
	}
	return s, s.Close, nil
}
