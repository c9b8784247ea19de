package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fedotovn/placeorder/internal/apperror"
	log "github.com/sirupsen/logrus"
)

type ErrorResponse struct {
	Error      string               `json:"error"`
	Code       string               `json:"code,omitempty"`
	Violations []apperror.Violation `json:"violations,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Error("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// handleServiceError maps the error taxonomy onto HTTP statuses. Unclassified
// errors are infrastructure faults and stay opaque to the client.
func handleServiceError(w http.ResponseWriter, err error) {
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		log.WithError(err).Error("internal error")
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	var status int
	switch appErr.Kind {
	case apperror.KindValidation:
		status = http.StatusBadRequest
	case apperror.KindNotFound:
		status = http.StatusNotFound
	case apperror.KindConflict:
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
	}

	respondJSON(w, status, ErrorResponse{
		Error:      appErr.Message,
		Code:       string(appErr.Kind),
		Violations: appErr.Violations,
	})
}
