package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lightingmap.app/internal/auth"
	"lightingmap.app/internal/lighting"
)

type emailRequest struct {
	Email string `json:"email"`
}

type validateUserRequest struct {
	Email    string `json:"email"`
	UserType string `json:"user_type"`
}

type userTownRequest struct {
	Email    string `json:"email"`
	TownHall string `json:"townHall"`
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	a.writeUsers(w, r, lighting.UserFilter{})
}

func (a *API) listPendingUsers(w http.ResponseWriter, r *http.Request) {
	approved := false
	a.writeUsers(w, r, lighting.UserFilter{Approved: &approved})
}

func (a *API) writeUsers(w http.ResponseWriter, r *http.Request, f lighting.UserFilter) {
	var out []lighting.User
	err := a.Store.View(r.Context(), func(ctx context.Context, tx lighting.Tx) error {
		var err error
		out, err = tx.ListUsers(ctx, f)
		return err
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if out == nil {
		out = []lighting.User{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a.writeUser(w, r, func(ctx context.Context, tx lighting.Tx) (lighting.User, error) {
		return tx.GetUser(ctx, id)
	})
}

func (a *API) getUserByEmail(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	a.writeUser(w, r, func(ctx context.Context, tx lighting.Tx) (lighting.User, error) {
		return tx.GetUserByEmail(ctx, email)
	})
}

func (a *API) writeUser(w http.ResponseWriter, r *http.Request, lookup func(context.Context, lighting.Tx) (lighting.User, error)) {
	var u lighting.User
	err := a.Store.View(r.Context(), func(ctx context.Context, tx lighting.Tx) error {
		var err error
		u, err = lookup(ctx, tx)
		return err
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// userProfile returns the caller's own account.
func (a *API) userProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var u lighting.User
	err := a.Store.View(r.Context(), func(ctx context.Context, tx lighting.Tx) error {
		var err error
		u, err = tx.GetUser(ctx, p.UserID)
		return err
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}

func (a *API) modifyUser(w http.ResponseWriter, r *http.Request) {
	var req auth.Modification
	if err := decodeJSON(r, &req); err != nil {
		handleDomainError(w, r, err)
		return
	}
	u, err := a.Auth.ModifyUser(r.Context(), req)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "user updated", "user": u})
}

func (a *API) validateUser(w http.ResponseWriter, r *http.Request) {
	var req validateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := required(map[string]string{"email": req.Email}); err != nil {
		handleDomainError(w, r, err)
		return
	}
	u, err := a.Relations.ValidateUser(r.Context(), req.Email, req.UserType)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) removeUser(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := required(map[string]string{"email": req.Email}); err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := a.Relations.DeleteUserByEmail(r.Context(), req.Email); err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "user removed"})
}

func (a *API) addUserTown(w http.ResponseWriter, r *http.Request) {
	a.editUserTown(w, r, a.Relations.AddTown, "town added")
}

func (a *API) removeUserTown(w http.ResponseWriter, r *http.Request) {
	a.editUserTown(w, r, a.Relations.RemoveTown, "town removed")
}

func (a *API) editUserTown(w http.ResponseWriter, r *http.Request, edit func(ctx context.Context, email, town string) error, msg string) {
	var req userTownRequest
	if err := decodeJSON(r, &req); err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := required(map[string]string{"email": req.Email, "townHall": req.TownHall}); err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := edit(r.Context(), req.Email, req.TownHall); err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": msg})
}
