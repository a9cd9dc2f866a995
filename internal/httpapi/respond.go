package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"warungpos/internal/apperr"
)

// envelope is the uniform response shape: {"success": true, "data": ...} or
// {"success": false, "error": {"errorCode": ..., "message": ...}}.
type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
	Message string     `json:"message,omitempty"`
}

type errorBody struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: true, Message: message})
}

// writeErr maps the error taxonomy onto HTTP statuses: validation 400,
// authentication 401, business rule 422, not found 404, everything else 500.
// System error details are logged, never sent to the client.
func writeErr(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	code := apperr.CodeOf(err)
	message := err.Error()

	var status int
	switch kind {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindAuthentication:
		status = http.StatusUnauthorized
	case apperr.KindBusinessRule:
		status = http.StatusUnprocessableEntity
	case apperr.KindNotFound:
		status = http.StatusNotFound
	default:
		status = http.StatusInternalServerError
		log.Printf("[httpapi] internal error: %v", err)
		message = "internal server error"
	}

	writeJSON(w, status, envelope{Success: false, Error: &errorBody{ErrorCode: code, Message: message}})
}

func writeErrStatus(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, envelope{Success: false, Error: &errorBody{ErrorCode: code, Message: message}})
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeErrStatus(w, http.StatusMethodNotAllowed, apperr.CodeInvalidInput, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return apperr.Validation(apperr.CodeInvalidInput, "invalid request body: %v", err)
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	if trimmed := strings.TrimSpace(raw); trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}
