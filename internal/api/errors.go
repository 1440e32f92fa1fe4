package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/market-tracker/internal/errors"
	"github.com/market-tracker/internal/logging"
	"github.com/market-tracker/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response with an explicit status and code.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
	respondJSON(w, statusCode, response)
}

// respondServiceError categorizes err and sends the mapped error response.
func respondServiceError(w http.ResponseWriter, err error) {
	catErr := apperrors.Categorize(err)
	if catErr == nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal server error occurred", nil)
		return
	}

	if catErr.StatusCode >= 500 {
		logging.WithError(err).Error("Request failed with server error")
	}

	respondJSON(w, catErr.StatusCode, ErrorResponse{Error: *catErr.ToServiceError()})
}

// parseJSONBody parses a JSON request body, rejecting unknown fields.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}
