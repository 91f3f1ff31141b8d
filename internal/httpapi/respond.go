package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"lightingmap.app/internal/auth"
	"lightingmap.app/internal/lighting"
	"lightingmap.app/internal/obs"
	"lightingmap.app/internal/reconcile"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeErrorDetail(w, r, code, msg, nil)
}

func writeErrorDetail(w http.ResponseWriter, r *http.Request, code int, msg string, detail any) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	if detail != nil {
		payload["detail"] = detail
	}
	writeJSON(w, code, payload)
}

// handleDomainError maps the error taxonomy onto status codes.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrNotApproved):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, lighting.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, lighting.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, lighting.ErrValidation):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, lighting.ErrPermissionDenied):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, lighting.ErrTransaction):
		logFailure(r, err)
		if be, ok := reconcile.AsBatchError(err); ok {
			writeErrorDetail(w, r, http.StatusInternalServerError, "transaction aborted", map[string]any{
				"phase": be.Phase,
				"batch": be.Batch,
				"row":   be.Row,
				"cause": be.Err.Error(),
			})
			return
		}
		writeErrorDetail(w, r, http.StatusInternalServerError, "transaction aborted", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, r, http.StatusGatewayTimeout, "request timed out")
	default:
		logFailure(r, err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func logFailure(r *http.Request, err error) {
	obs.Logger().WithFields(logrus.Fields{
		"request_id": RequestIDFromContext(r.Context()),
		"method":     r.Method,
		"path":       r.URL.Path,
	}).WithError(err).Error("request failed")
}

// decodeJSON reads exactly one JSON value from the body.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return err
		case errors.Is(err, io.EOF):
			return lighting.Invalidf("request body is required")
		}
		return lighting.Invalidf("malformed JSON body: %v", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return lighting.Invalidf("unexpected data after JSON body")
	}
	return nil
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, lighting.Invalidf("limit must be an integer")
	}
	if val < min || val > max {
		return 0, lighting.Invalidf("limit must be between %d and %d", min, max)
	}
	return val, nil
}

func required(fields map[string]string) error {
	var missing []string
	for name, v := range fields {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return lighting.Invalidf("%s required", strings.Join(missing, ", "))
}
