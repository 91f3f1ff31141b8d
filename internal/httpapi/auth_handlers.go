package httpapi

import (
	"net/http"

	"lightingmap.app/internal/audit"
	"lightingmap.app/internal/auth"
	"lightingmap.app/internal/lighting"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		handleDomainError(w, r, err)
		return
	}
	session, err := a.Auth.Login(r.Context(), req.Email, req.Password)
	ctx := r.Context()
	if err == nil {
		ctx = auth.ContextWithPrincipal(ctx, auth.Principal{UserID: session.User.ID, Email: session.User.Email, Role: session.User.Role})
	}
	a.Recorder.Record(ctx, audit.ActionLogin, lighting.NormalizeEmail(req.Email), err)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.Registration
	if err := decodeJSON(r, &req); err != nil {
		handleDomainError(w, r, err)
		return
	}
	u, err := a.Auth.Register(r.Context(), req)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (a *API) handleSweep(w http.ResponseWriter, r *http.Request) {
	res, err := a.Relations.SweepOrphans(r.Context())
	a.Recorder.Record(r.Context(), audit.ActionOrphanSweep, "townHalls", err)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
