package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"lightingmap.app/internal/auth"
	"lightingmap.app/internal/lighting"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// authenticate accepts a bearer token whose user still exists and is
// approved.
func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			unauthorized(w, r, err.Error())
			return
		}
		claims, err := a.Auth.Tokens().Parse(token)
		if err != nil {
			unauthorized(w, r, "invalid token")
			return
		}
		principal := auth.PrincipalFromClaims(claims)
		if err := a.checkApproved(r.Context(), principal.UserID); err != nil {
			if errors.Is(err, lighting.ErrNotFound) || errors.Is(err, auth.ErrNotApproved) {
				unauthorized(w, r, "user is not allowed to sign in")
				return
			}
			handleDomainError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
	})
}

func (a *API) checkApproved(ctx context.Context, userID string) error {
	return a.Store.View(ctx, func(ctx context.Context, tx lighting.Tx) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if !u.IsApproved {
			return auth.ErrNotApproved
		}
		return nil
	})
}

// requireRole rejects principals ranked below min.
func requireRole(min lighting.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := auth.RequireRole(r.Context(), min); err != nil {
				handleDomainError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// maintenanceAuth guards operator endpoints with static Basic credentials.
// Without configured credentials every call is refused.
func (a *API) maintenanceAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="maintenance"`)
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		if a.opts.MaintenanceUser == "" || !equal(user, a.opts.MaintenanceUser) || !equal(pass, a.opts.MaintenancePassword) {
			w.Header().Set("WWW-Authenticate", `Basic realm="maintenance"`)
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="lightingmap"`)
	writeError(w, r, http.StatusUnauthorized, msg)
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
