package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lightingmap.app/internal/lighting"
	"lightingmap.app/internal/reconcile"
)

type createLightPointRequest struct {
	LightPoint map[string]any `json:"light_point"`
	TownHall   string         `json:"town_hall"`
}

type updateLightPointRequest struct {
	LightPoint map[string]any `json:"light_point"`
}

// canonicalFields normalizes one light point object the same way a
// spreadsheet row is normalized.
func canonicalFields(raw map[string]any) (map[string]string, error) {
	if raw == nil {
		return nil, lighting.Invalidf("light_point is required")
	}
	normalized, err := reconcile.Normalize([]map[string]any{raw})
	if err != nil {
		return nil, err
	}
	if len(normalized) == 0 || len(normalized[0].Fields) == 0 {
		return nil, lighting.Invalidf("light_point has no recognized fields")
	}
	return normalized[0].Fields, nil
}

func (a *API) getLightPoint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var out lightPointView
	err := a.Store.View(r.Context(), func(ctx context.Context, tx lighting.Tx) error {
		lp, err := tx.GetLightPoint(ctx, id)
		if err != nil {
			return err
		}
		views, err := expand(ctx, tx, []lighting.LightPoint{lp})
		if err != nil {
			return err
		}
		out = views[0]
		return nil
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) createLightPoint(w http.ResponseWriter, r *http.Request) {
	var req createLightPointRequest
	if err := decodeJSON(r, &req); err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := required(map[string]string{"town_hall": req.TownHall}); err != nil {
		handleDomainError(w, r, err)
		return
	}
	fields, err := canonicalFields(req.LightPoint)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	lp, err := a.Relations.CreateLightPoint(r.Context(), req.TownHall, fields)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, lp)
}

func (a *API) updateLightPoint(w http.ResponseWriter, r *http.Request) {
	var req updateLightPointRequest
	if err := decodeJSON(r, &req); err != nil {
		handleDomainError(w, r, err)
		return
	}
	fields, err := canonicalFields(req.LightPoint)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	lp, err := a.Relations.UpdateLightPoint(r.Context(), chi.URLParam(r, "id"), fields)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lp)
}

func (a *API) deleteLightPoint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.Relations.DeleteLightPoint(r.Context(), id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "light point deleted", "_id": id})
}
