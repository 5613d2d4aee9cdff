package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/homeroom/internal/models"
)

// errResponded tells a handler that a helper already wrote the response.
var errResponded = errors.New("response already written")

type errorResponse struct {
	Error  string              `json:"error"`
	Fields []models.FieldError `json:"fields,omitempty"`
}

func respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error.Printf("Failed to encode response: %v", err)
	}
}

func statusFromError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError maps a service error to a status code. Storage failures are
// logged and reported without their details.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFromError(err)
	resp := errorResponse{Error: err.Error()}

	var verr *models.ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}
	if code == http.StatusInternalServerError {
		logger.Error.Printf("%s %s failed: %v", r.Method, r.URL.Path, err)
		resp.Error = "internal error"
	} else {
		logger.Debug.Printf("%s %s: %d %v", r.Method, r.URL.Path, code, err)
	}
	respondJSON(w, code, resp)
}

func badRequest(w http.ResponseWriter, message string) {
	respondJSON(w, http.StatusBadRequest, errorResponse{Error: message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		badRequest(w, "Invalid request payload: "+err.Error())
		return false
	}
	return true
}

func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(w, "invalid "+name)
		return 0, false
	}
	return id, true
}
