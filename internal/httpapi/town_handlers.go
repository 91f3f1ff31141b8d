package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"lightingmap.app/internal/audit"
	"lightingmap.app/internal/lighting"
	"lightingmap.app/internal/reconcile"
	"lightingmap.app/internal/relations"
	"lightingmap.app/internal/spatial"
)

type townSummary struct {
	lighting.Town
	LightPointCount int `json:"light_points_count"`
}

type lightPointView struct {
	lighting.LightPoint
	OpenReports     []lighting.Report    `json:"segnalazioni_in_corso"`
	ResolvedReports []lighting.Report    `json:"segnalazioni_risolte"`
	Operations      []lighting.Operation `json:"operazioni_effettuate"`
}

type townDetail struct {
	lighting.Town
	LightPoints []lightPointView `json:"punti_luce"`
}

type createTownRequest struct {
	Name        string                `json:"name"`
	Region      string                `json:"region"`
	Province    string                `json:"province"`
	Coordinates *lighting.Coordinates `json:"coordinates"`
	LightPoints json.RawMessage       `json:"light_points"`
}

type reconcileRequest struct {
	Name        string          `json:"name"`
	LightPoints json.RawMessage `json:"light_points"`
	DryRun      bool            `json:"dry_run"`
}

type reconcileResponse struct {
	reconcile.Summary
	DryRun  bool                    `json:"dry_run,omitempty"`
	Batches []reconcile.BatchStatus `json:"batches_status"`
}

type spatialRequest struct {
	Name   string         `json:"name"`
	Bounds spatial.Bounds `json:"bounds"`
	Filter string         `json:"filter"`
	Zoom   int            `json:"zoom"`
}

// rows decodes an optional spreadsheet payload. allowEmpty accepts a missing
// field as zero rows.
func rows(raw json.RawMessage, allowEmpty bool) ([]reconcile.Row, error) {
	trimmed := bytes.TrimSpace(raw)
	if allowEmpty && (len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))) {
		return nil, nil
	}
	if len(trimmed) == 0 {
		return nil, lighting.Invalidf("light_points is required")
	}
	decoded, err := reconcile.DecodeRows(trimmed)
	if err != nil {
		return nil, err
	}
	return reconcile.Normalize(decoded)
}

func (a *API) listTowns(w http.ResponseWriter, r *http.Request) {
	var out []townSummary
	err := a.Store.View(r.Context(), func(ctx context.Context, tx lighting.Tx) error {
		towns, err := tx.ListTowns(ctx)
		if err != nil {
			return err
		}
		out = make([]townSummary, 0, len(towns))
		for _, t := range towns {
			out = append(out, townSummary{Town: t, LightPointCount: len(t.LightPointIDs)})
		}
		return nil
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getTown(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "ref")
	var out townDetail
	err := a.Store.View(r.Context(), func(ctx context.Context, tx lighting.Tx) error {
		town, err := tx.GetTownByName(ctx, strings.TrimSpace(name))
		if err != nil {
			return err
		}
		lps, err := tx.ListLightPoints(ctx, town.LightPointIDs)
		if err != nil {
			return err
		}
		lighting.SortByPole(lps)
		views, err := expand(ctx, tx, lps)
		if err != nil {
			return err
		}
		out = townDetail{Town: town, LightPoints: views}
		return nil
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// expand attaches the reports and operations of every light point.
func expand(ctx context.Context, tx lighting.Tx, lps []lighting.LightPoint) ([]lightPointView, error) {
	var reportIDs, opIDs []string
	for _, lp := range lps {
		reportIDs = append(reportIDs, lp.OpenReportIDs...)
		reportIDs = append(reportIDs, lp.ResolvedReportIDs...)
		opIDs = append(opIDs, lp.OperationIDs...)
	}
	reports, err := tx.ListReports(ctx, reportIDs)
	if err != nil {
		return nil, err
	}
	ops, err := tx.ListOperations(ctx, opIDs)
	if err != nil {
		return nil, err
	}
	reportByID := make(map[string]lighting.Report, len(reports))
	for _, rep := range reports {
		reportByID[rep.ID] = rep
	}
	opByID := make(map[string]lighting.Operation, len(ops))
	for _, op := range ops {
		opByID[op.ID] = op
	}
	pick := func(ids []string) []lighting.Report {
		out := make([]lighting.Report, 0, len(ids))
		for _, id := range ids {
			if rep, ok := reportByID[id]; ok {
				out = append(out, rep)
			}
		}
		return out
	}
	views := make([]lightPointView, 0, len(lps))
	for _, lp := range lps {
		v := lightPointView{
			LightPoint:      lp,
			OpenReports:     pick(lp.OpenReportIDs),
			ResolvedReports: pick(lp.ResolvedReportIDs),
			Operations:      make([]lighting.Operation, 0, len(lp.OperationIDs)),
		}
		for _, id := range lp.OperationIDs {
			if op, ok := opByID[id]; ok {
				v.Operations = append(v.Operations, op)
			}
		}
		views = append(views, v)
	}
	return views, nil
}

func (a *API) createTown(w http.ResponseWriter, r *http.Request) {
	var req createTownRequest
	if err := decodeJSON(r, &req); err != nil {
		handleDomainError(w, r, err)
		return
	}
	in, err := rows(req.LightPoints, true)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	town, res, err := a.Engine.CreateTown(r.Context(), reconcile.TownInput{
		Name:        req.Name,
		Region:      req.Region,
		Province:    req.Province,
		Coordinates: req.Coordinates,
	}, in)
	a.Recorder.Record(r.Context(), audit.ActionTownCreated, strings.TrimSpace(req.Name), err)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"town":           town,
		"summary":        res.Summary(),
		"batches_status": res.Batches,
	})
}

func (a *API) reconcileTown(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := decodeJSON(r, &req); err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := required(map[string]string{"name": req.Name}); err != nil {
		handleDomainError(w, r, err)
		return
	}
	in, err := rows(req.LightPoints, false)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if req.DryRun {
		res, err := a.Engine.Preview(r.Context(), req.Name, in)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, reconcileResponse{Summary: res.Summary(), DryRun: true, Batches: res.Batches})
		return
	}
	res, err := a.Engine.Reconcile(r.Context(), req.Name, in)
	a.Recorder.Record(r.Context(), audit.ActionTownReconciled, strings.TrimSpace(req.Name), err)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reconcileResponse{Summary: res.Summary(), Batches: res.Batches})
}

func (a *API) deleteTownByID(w http.ResponseWriter, r *http.Request) {
	a.deleteTown(w, r, relations.TownRef{ID: chi.URLParam(r, "ref")})
}

func (a *API) deleteTownByName(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := required(map[string]string{"name": req.Name}); err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.deleteTown(w, r, relations.TownRef{Name: req.Name})
}

func (a *API) deleteTown(w http.ResponseWriter, r *http.Request, ref relations.TownRef) {
	out, err := a.Relations.DeleteTown(r.Context(), ref)
	a.Recorder.Record(r.Context(), audit.ActionTownDeleted, ref.String(), err)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// findPoint resolves a light point through its town by pole number.
func findPoint(ctx context.Context, tx lighting.Tx, townName, pole string) (lighting.LightPoint, error) {
	town, err := tx.GetTownByName(ctx, strings.TrimSpace(townName))
	if err != nil {
		return lighting.LightPoint{}, err
	}
	lp, err := tx.FindLightPointByPole(ctx, town.ID, pole)
	if err != nil {
		return lighting.LightPoint{}, err
	}
	if !lighting.Contains(town.LightPointIDs, lp.ID) {
		return lighting.LightPoint{}, lighting.NotFoundf("light point %q in town %q", pole, town.Name)
	}
	return lp, nil
}

func (a *API) activeReports(w http.ResponseWriter, r *http.Request) {
	name, pole := r.URL.Query().Get("name"), r.URL.Query().Get("numero_palo")
	if err := required(map[string]string{"name": name, "numero_palo": pole}); err != nil {
		handleDomainError(w, r, err)
		return
	}
	var out []lighting.Report
	err := a.Store.View(r.Context(), func(ctx context.Context, tx lighting.Tx) error {
		lp, err := findPoint(ctx, tx, name, pole)
		if err != nil {
			return err
		}
		out, err = tx.ListReports(ctx, lp.OpenReportIDs)
		return err
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) pointByPole(w http.ResponseWriter, r *http.Request) {
	name, pole := r.URL.Query().Get("name"), r.URL.Query().Get("numero_palo")
	if err := required(map[string]string{"name": name, "numero_palo": pole}); err != nil {
		handleDomainError(w, r, err)
		return
	}
	var out lightPointView
	err := a.Store.View(r.Context(), func(ctx context.Context, tx lighting.Tx) error {
		lp, err := findPoint(ctx, tx, name, pole)
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

func (a *API) spatialQuery(r *http.Request) (string, spatial.Query, error) {
	var req spatialRequest
	if err := decodeJSON(r, &req); err != nil {
		return "", spatial.Query{}, err
	}
	if err := required(map[string]string{"name": req.Name}); err != nil {
		return "", spatial.Query{}, err
	}
	filter, err := spatial.ParseFilter(req.Filter)
	if err != nil {
		return "", spatial.Query{}, err
	}
	q := spatial.Query{Bounds: req.Bounds, Filter: filter, Zoom: req.Zoom}
	return req.Name, q, q.Validate()
}

func (a *API) viewport(w http.ResponseWriter, r *http.Request) {
	name, q, err := a.spatialQuery(r)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	lps, err := spatial.TownPoints(r.Context(), a.Store, name)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, spatial.Viewport(lps, q))
}

func (a *API) clusters(w http.ResponseWriter, r *http.Request) {
	name, q, err := a.spatialQuery(r)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	lps, err := spatial.TownPoints(r.Context(), a.Store, name)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, spatial.Clusters(lps, q))
}
