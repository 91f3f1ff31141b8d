// Package memory provides an in-memory lighting.Store. Each write unit of
// work runs against a copy of the state that replaces the live state only
// when the unit returns nil.
package memory

import (
	"context"
	"sync"
	"time"

	"lightingmap.app/internal/lighting"
)

type poleKey struct {
	town string
	pole string
}

type state struct {
	towns     map[string]lighting.Town
	townNames map[string]string
	lights    map[string]lighting.LightPoint
	poles     map[poleKey][]string
	reports   map[string]lighting.Report
	ops       map[string]lighting.Operation
	users     map[string]lighting.User
	emails    map[string]string
	orgs      map[string]lighting.Organization
	subs      map[string]lighting.Subscription
	logs      []lighting.AccessLog
}

func newState() state {
	return state{
		towns:     map[string]lighting.Town{},
		townNames: map[string]string{},
		lights:    map[string]lighting.LightPoint{},
		poles:     map[poleKey][]string{},
		reports:   map[string]lighting.Report{},
		ops:       map[string]lighting.Operation{},
		users:     map[string]lighting.User{},
		emails:    map[string]string{},
		orgs:      map[string]lighting.Organization{},
		subs:      map[string]lighting.Subscription{},
	}
}

// clone copies the maps. Stored values are replaced, never mutated in place,
// so a shallow copy is enough for isolation.
func (s state) clone() state {
	return state{
		towns:     copyMap(s.towns),
		townNames: copyMap(s.townNames),
		lights:    copyMap(s.lights),
		poles:     copyMap(s.poles),
		reports:   copyMap(s.reports),
		ops:       copyMap(s.ops),
		users:     copyMap(s.users),
		emails:    copyMap(s.emails),
		orgs:      copyMap(s.orgs),
		subs:      copyMap(s.subs),
		logs:      s.logs[:len(s.logs):len(s.logs)],
	}
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type counterKey struct {
	key   string
	start time.Time
}

// Store is safe for concurrent use. Write units of work are serialized.
type Store struct {
	mu    sync.RWMutex
	state state
	now   func() time.Time

	countersMu sync.Mutex
	counters   map[counterKey]int64
}

var _ lighting.Store = (*Store)(nil)

func New() *Store {
	return &Store{state: newState(), now: time.Now, counters: map[counterKey]int64{}}
}

// WithinTx runs fn against a private copy of the state and publishes it on success.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx lighting.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{state: s.state.clone(), now: s.now().UTC(), touched: map[poleKey]struct{}{}}
	if err := fn(ctx, t); err != nil {
		return lighting.AsTxError(err)
	}
	if err := t.checkPoles(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = t.state
	return nil
}

// View runs fn against the live state under a read lock.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx lighting.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(ctx, &tx{state: s.state, now: s.now().UTC(), readOnly: true})
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// Increment implements ratelimit.Counter.
func (s *Store) Increment(_ context.Context, key string, windowStart time.Time) (int64, error) {
	s.countersMu.Lock()
	defer s.countersMu.Unlock()
	k := counterKey{key: key, start: windowStart.UTC()}
	s.counters[k]++
	return s.counters[k], nil
}

// PurgeCounters implements ratelimit.Counter.
func (s *Store) PurgeCounters(_ context.Context, before time.Time) (int64, error) {
	s.countersMu.Lock()
	defer s.countersMu.Unlock()
	var n int64
	for k := range s.counters {
		if k.start.Before(before) {
			delete(s.counters, k)
			n++
		}
	}
	return n, nil
}

type tx struct {
	state    state
	now      time.Time
	readOnly bool
	touched  map[poleKey]struct{}
}

func (t *tx) writable() error {
	if t.readOnly {
		return lighting.ErrReadOnly
	}
	return nil
}

// checkPoles enforces one light point per non-empty pole number and town
// for every index entry written during the unit of work.
func (t *tx) checkPoles() error {
	for k := range t.touched {
		if len(t.state.poles[k]) > 1 {
			return lighting.Conflictf("duplicate pole number %q in town %s", k.pole, k.town)
		}
	}
	return nil
}
