package response

import (
	"encoding/json"
	"net/http"
)

// Envelope is the uniform JSON shape every endpoint returns.
type Envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
	Error   any  `json:"error,omitempty"`
}

func write(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// OK sends a 200 with data wrapped in the standard envelope.
func OK(w http.ResponseWriter, data any) {
	write(w, http.StatusOK, Envelope{Success: true, Data: data})
}

// Error sends an error response with the given status.
func Error(w http.ResponseWriter, status int, message any) {
	write(w, status, Envelope{Error: message})
}

// BadRequest rejects a malformed or invalid request.
func BadRequest(w http.ResponseWriter, message any) {
	Error(w, http.StatusBadRequest, message)
}

// Unauthorized rejects a request without a valid operator token.
func Unauthorized(w http.ResponseWriter, message any) {
	Error(w, http.StatusUnauthorized, message)
}

// NotFound reports a missing session or resource.
func NotFound(w http.ResponseWriter, message any) {
	Error(w, http.StatusNotFound, message)
}

// TooManyRequests reports that a caller exceeded its rate limit.
func TooManyRequests(w http.ResponseWriter, message any) {
	Error(w, http.StatusTooManyRequests, message)
}

// ServiceUnavailable reports a backing service that is down or not
// configured.
func ServiceUnavailable(w http.ResponseWriter, message any) {
	Error(w, http.StatusServiceUnavailable, message)
}

// InternalError reports an unexpected server-side failure.
func InternalError(w http.ResponseWriter, message any) {
	Error(w, http.StatusInternalServerError, message)
}
