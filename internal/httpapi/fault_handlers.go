package httpapi

import (
	"net/http"
	"strings"
	"time"

	"lightingmap.app/internal/lifecycle"
	"lightingmap.app/internal/lighting"
)

type reportRequest struct {
	Name        string `json:"name"`
	PoleNumber  string `json:"numero_palo"`
	ReportType  string `json:"report_type"`
	Description string `json:"description"`
	Date        string `json:"date"`
}

type operationRequest struct {
	Name            string  `json:"name"`
	PoleNumber      string  `json:"numero_palo"`
	Email           string  `json:"email"`
	OperationType   string  `json:"operation_type"`
	MaintenanceType string  `json:"maintenance_type"`
	Note            string  `json:"note"`
	IsSolved        bool    `json:"is_solved"`
	ReportID        *string `json:"id_segnalazione"`
	Date            string  `json:"date"`
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"02/01/2006",
}

// parseDate accepts the layouts the front-end sends. A blank value means now.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, lighting.Invalidf("unparseable date %q", raw)
}

func (a *API) addReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := decodeJSON(r, &req); err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := required(map[string]string{"name": req.Name, "numero_palo": req.PoleNumber}); err != nil {
		handleDomainError(w, r, err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	rep, err := a.Lifecycle.AddReport(r.Context(), lifecycle.ReportInput{
		TownName:    req.Name,
		PoleNumber:  req.PoleNumber,
		ReportType:  req.ReportType,
		Description: req.Description,
		Date:        date,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (a *API) addOperation(w http.ResponseWriter, r *http.Request) {
	var req operationRequest
	if err := decodeJSON(r, &req); err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := required(map[string]string{
		"name":        req.Name,
		"numero_palo": req.PoleNumber,
		"email":       req.Email,
	}); err != nil {
		handleDomainError(w, r, err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	op, err := a.Lifecycle.AddOperation(r.Context(), lifecycle.OperationInput{
		TownName:        req.Name,
		PoleNumber:      req.PoleNumber,
		Email:           req.Email,
		OperationType:   req.OperationType,
		MaintenanceType: req.MaintenanceType,
		Note:            req.Note,
		IsSolved:        req.IsSolved,
		ReportID:        req.ReportID,
		Date:            date,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, op)
}
