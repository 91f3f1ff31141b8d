package httpapi

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"lightingmap.app/internal/auth"
	"lightingmap.app/internal/lighting"
)

type subscribeRequest struct {
	Endpoint string                    `json:"endpoint"`
	Keys     lighting.SubscriptionKeys `json:"keys"`
	UserID   string                    `json:"userId"`
	Browser  string                    `json:"browser"`
}

func (req subscribeRequest) validate() error {
	if err := required(map[string]string{
		"endpoint":    req.Endpoint,
		"keys.p256dh": req.Keys.P256dh,
		"keys.auth":   req.Keys.Auth,
	}); err != nil {
		return err
	}
	u, err := url.Parse(strings.TrimSpace(req.Endpoint))
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return lighting.Invalidf("endpoint must be an https URL")
	}
	return nil
}

func (a *API) subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := decodeJSON(r, &req); err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		handleDomainError(w, r, err)
		return
	}
	sub := lighting.Subscription{
		Endpoint: strings.TrimSpace(req.Endpoint),
		Keys:     req.Keys,
		UserID:   req.UserID,
		Browser:  req.Browser,
	}
	if sub.UserID == "" {
		sub.UserID, _ = auth.UserIDFromContext(r.Context())
	}
	err := a.Store.WithinTx(r.Context(), func(ctx context.Context, tx lighting.Tx) error {
		return tx.UpsertSubscription(ctx, &sub)
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "subscription saved", "id": sub.ID})
}

func (a *API) unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := decodeJSON(r, &req); err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := required(map[string]string{"endpoint": req.Endpoint}); err != nil {
		handleDomainError(w, r, err)
		return
	}
	err := a.Store.WithinTx(r.Context(), func(ctx context.Context, tx lighting.Tx) error {
		return tx.DeactivateSubscription(ctx, strings.TrimSpace(req.Endpoint))
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "subscription removed"})
}

func (a *API) listAccessLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 100, 1, 1000)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	var out []lighting.AccessLog
	err = a.Store.View(r.Context(), func(ctx context.Context, tx lighting.Tx) error {
		var err error
		out, err = tx.ListAccessLogs(ctx, limit)
		return err
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if out == nil {
		out = []lighting.AccessLog{}
	}
	writeJSON(w, http.StatusOK, out)
}
