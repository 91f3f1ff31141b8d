package ids

import (
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier for a stored record.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewN returns n identifiers in ascending order.
func NewN(n int) []string {
	if n <= 0 {
		return nil
	}
	out := make([]string, n)
	entropyMu.Lock()
	defer entropyMu.Unlock()
	now := ulid.Timestamp(time.Now())
	for i := range out {
		out[i] = ulid.MustNew(now, entropy).String()
	}
	return out
}

// Valid reports whether s looks like an identifier produced by New.
func Valid(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) != ulid.EncodedSize {
		return false
	}
	_, err := ulid.ParseStrict(s)
	return err == nil
}
