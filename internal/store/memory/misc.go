package memory

import (
	"context"
	"sort"

	"lightingmap.app/internal/ids"
	"lightingmap.app/internal/lighting"
)

func (t *tx) UpsertSubscription(_ context.Context, s *lighting.Subscription) error {
	if err := t.writable(); err != nil {
		return err
	}
	if s.Endpoint == "" {
		return lighting.Invalidf("subscription endpoint is required")
	}
	if cur, ok := t.state.subs[s.Endpoint]; ok {
		s.ID = cur.ID
		s.CreatedAt = cur.CreatedAt
	} else {
		if s.ID == "" {
			s.ID = ids.New()
		}
		s.CreatedAt = t.now
	}
	s.IsActive = true
	s.UpdatedAt = t.now
	t.state.subs[s.Endpoint] = *s
	return nil
}

func (t *tx) DeactivateSubscription(_ context.Context, endpoint string) error {
	if err := t.writable(); err != nil {
		return err
	}
	s, ok := t.state.subs[endpoint]
	if !ok {
		return lighting.NotFoundf("subscription %s", endpoint)
	}
	s.IsActive = false
	s.UpdatedAt = t.now
	t.state.subs[endpoint] = s
	return nil
}

func (t *tx) ListActiveSubscriptions(_ context.Context, userID string) ([]lighting.Subscription, error) {
	var out []lighting.Subscription
	for _, s := range t.state.subs {
		if !s.IsActive || (userID != "" && s.UserID != userID) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *tx) InsertAccessLog(_ context.Context, l *lighting.AccessLog) error {
	if err := t.writable(); err != nil {
		return err
	}
	if l.ID == "" {
		l.ID = ids.New()
	}
	if l.Timestamp.IsZero() {
		l.Timestamp = t.now
	}
	t.state.logs = append(t.state.logs, *l)
	return nil
}

// ListAccessLogs returns the newest records first. A non-positive limit returns all.
func (t *tx) ListAccessLogs(_ context.Context, limit int) ([]lighting.AccessLog, error) {
	n := len(t.state.logs)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]lighting.AccessLog, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, t.state.logs[i])
	}
	return out, nil
}
