// Package httpx provides JSON response and error-mapping utilities.
package httpx

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the wire shape for every error response. Callers key off Code,
// not the message text.
type ErrorBody struct {
	Code  string         `json:"code"`
	Error string         `json:"error"`
	Meta  map[string]any `json:"meta,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Error sends a structured error response.
func Error(w http.ResponseWriter, status int, code, message string, meta map[string]any) {
	JSON(w, status, ErrorBody{Code: code, Error: message, Meta: meta})
}

// DecodeJSON decodes a JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}
