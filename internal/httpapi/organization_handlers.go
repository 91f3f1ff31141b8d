package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lightingmap.app/internal/lighting"
	"lightingmap.app/internal/relations"
)

type organizationRequest struct {
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Type        string                `json:"type"`
	Logo        string                `json:"logo"`
	Location    *lighting.Coordinates `json:"location"`
	Address     *lighting.Address     `json:"address"`
	Contract    *lighting.Contract    `json:"contract"`
	TownID      string                `json:"townhall_id"`
}

type membersRequest struct {
	OrganizationID string   `json:"organizationId"`
	Members        []string `json:"members"`
}

type memberRequest struct {
	OrganizationID string `json:"organizationId"`
	UserID         string `json:"userId"`
}

type contractRequest struct {
	OrganizationID string             `json:"organizationId"`
	Contract       *lighting.Contract `json:"contract"`
}

type associateTownRequest struct {
	OrganizationID string `json:"organizationId"`
	TownID         string `json:"townhallId"`
}

func (a *API) listOrganizations(w http.ResponseWriter, r *http.Request) {
	var out []lighting.Organization
	err := a.Store.View(r.Context(), func(ctx context.Context, tx lighting.Tx) error {
		var err error
		out, err = tx.ListOrganizations(ctx)
		return err
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if out == nil {
		out = []lighting.Organization{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getOrganization(w http.ResponseWriter, r *http.Request) {
	var out lighting.Organization
	err := a.Store.View(r.Context(), func(ctx context.Context, tx lighting.Tx) error {
		var err error
		out, err = tx.GetOrganization(ctx, chi.URLParam(r, "id"))
		return err
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) organizationsByTown(w http.ResponseWriter, r *http.Request) {
	townID := chi.URLParam(r, "townId")
	var out []lighting.Organization
	err := a.Store.View(r.Context(), func(ctx context.Context, tx lighting.Tx) error {
		var err error
		out, err = tx.ListOrganizationsByTown(ctx, townID)
		return err
	})
	if err == nil && len(out) == 0 {
		err = lighting.NotFoundf("no organizations for town %s", townID)
	}
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) createOrganization(w http.ResponseWriter, r *http.Request) {
	var req organizationRequest
	if err := decodeJSON(r, &req); err != nil {
		handleDomainError(w, r, err)
		return
	}
	org, err := a.Relations.CreateOrganization(r.Context(), relations.OrganizationInput{
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		Logo:        req.Logo,
		Address:     req.Address,
		Location:    req.Location,
		Contract:    req.Contract,
		TownID:      req.TownID,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, org)
}

func (a *API) addOrganizationMembers(w http.ResponseWriter, r *http.Request) {
	var req membersRequest
	if err := decodeJSON(r, &req); err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := required(map[string]string{"organizationId": req.OrganizationID}); err != nil {
		handleDomainError(w, r, err)
		return
	}
	if len(req.Members) == 0 {
		handleDomainError(w, r, lighting.Invalidf("members required"))
		return
	}
	org, err := a.Relations.AddMembers(r.Context(), req.OrganizationID, req.Members)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (a *API) removeOrganizationMember(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := decodeJSON(r, &req); err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := required(map[string]string{"organizationId": req.OrganizationID, "userId": req.UserID}); err != nil {
		handleDomainError(w, r, err)
		return
	}
	org, u, err := a.Relations.RemoveMember(r.Context(), req.OrganizationID, req.UserID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"organization": org, "user": u})
}

func (a *API) addOrganizationContract(w http.ResponseWriter, r *http.Request) {
	var req contractRequest
	if err := decodeJSON(r, &req); err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := required(map[string]string{"organizationId": req.OrganizationID}); err != nil {
		handleDomainError(w, r, err)
		return
	}
	if req.Contract == nil {
		handleDomainError(w, r, lighting.Invalidf("contract required"))
		return
	}
	org, err := a.Relations.AddContract(r.Context(), req.OrganizationID, *req.Contract)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (a *API) associateOrganizationTown(w http.ResponseWriter, r *http.Request) {
	var req associateTownRequest
	if err := decodeJSON(r, &req); err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := required(map[string]string{"organizationId": req.OrganizationID, "townhallId": req.TownID}); err != nil {
		handleDomainError(w, r, err)
		return
	}
	org, err := a.Relations.AssociateTown(r.Context(), req.OrganizationID, req.TownID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (a *API) deleteOrganization(mode relations.OrgDeleteMode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := a.Relations.DeleteOrganization(r.Context(), chi.URLParam(r, "id"), mode)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}
