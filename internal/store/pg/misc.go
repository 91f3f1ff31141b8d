package pg

import (
	"context"
	"fmt"
	"time"

	"lightingmap.app/internal/ids"
	"lightingmap.app/internal/lighting"
)

func (t *tx) UpsertSubscription(ctx context.Context, s *lighting.Subscription) error {
	if err := t.writable(); err != nil {
		return err
	}
	if s.Endpoint == "" {
		return lighting.Invalidf("subscription endpoint is required")
	}
	if s.ID == "" {
		s.ID = ids.New()
	}
	err := t.q.QueryRowContext(ctx, `
		insert into subscriptions (id, endpoint, p256dh, auth, user_id, browser, is_active)
		values ($1, $2, $3, $4, $5, $6, true)
		on conflict (endpoint) do update
		set p256dh = excluded.p256dh, auth = excluded.auth, user_id = excluded.user_id,
		    browser = excluded.browser, is_active = true, updated_at = now()
		returning id, is_active, created_at, updated_at
	`, s.ID, s.Endpoint, s.Keys.P256dh, s.Keys.Auth, s.UserID, s.Browser).Scan(&s.ID, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

func (t *tx) DeactivateSubscription(ctx context.Context, endpoint string) error {
	if err := t.writable(); err != nil {
		return err
	}
	res, err := t.q.ExecContext(ctx, `
		update subscriptions set is_active = false, updated_at = now() where endpoint = $1
	`, endpoint)
	if err != nil {
		return fmt.Errorf("deactivate subscription: %w", err)
	}
	return affected(res, "subscription "+endpoint)
}

func (t *tx) ListActiveSubscriptions(ctx context.Context, userID string) ([]lighting.Subscription, error) {
	rows, err := t.q.QueryContext(ctx, `
		select id, endpoint, p256dh, auth, user_id, browser, is_active, created_at, updated_at
		from subscriptions
		where is_active and ($1 = '' or user_id = $1)
		order by created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lighting.Subscription
	for rows.Next() {
		var s lighting.Subscription
		if err := rows.Scan(&s.ID, &s.Endpoint, &s.Keys.P256dh, &s.Keys.Auth, &s.UserID, &s.Browser,
			&s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (t *tx) InsertAccessLog(ctx context.Context, l *lighting.AccessLog) error {
	if err := t.writable(); err != nil {
		return err
	}
	if l.ID == "" {
		l.ID = ids.New()
	}
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now().UTC()
	}
	_, err := t.q.ExecContext(ctx, `
		insert into access_logs (id, user_id, action, resource, ts, ip_address, user_agent, outcome, details)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, l.ID, l.UserID, l.Action, l.Resource, l.Timestamp, l.IPAddress, l.UserAgent, string(l.Outcome), l.Details)
	if err != nil {
		return fmt.Errorf("insert access log: %w", err)
	}
	return nil
}

func (t *tx) ListAccessLogs(ctx context.Context, limit int) ([]lighting.AccessLog, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := t.q.QueryContext(ctx, `
		select id, user_id, action, resource, ts, ip_address, user_agent, outcome, details
		from access_logs
		order by ts desc, id desc
		limit $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lighting.AccessLog
	for rows.Next() {
		var l lighting.AccessLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.Action, &l.Resource, &l.Timestamp, &l.IPAddress, &l.UserAgent,
			&l.Outcome, &l.Details); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
