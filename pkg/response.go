package pkg

import (
	"encoding/json"
	"errors"
	"net/http"
)

// APIResponse is the REST envelope used by every collaborator endpoint.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// JSON writes data as a successful envelope.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data})
}

// Error writes err mapped to its HTTP status, using err's own message.
func Error(w http.ResponseWriter, err error) {
	ErrorWithMessage(w, MapErrorToStatus(err), err.Error())
}

// ErrorWithMessage writes an explicit status and message, bypassing the
// sentinel-error mapping — used when the caller already knows the status.
func ErrorWithMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse{Success: false, Error: message})
}

// IsNotFound is a small convenience wrapper kept next to the envelope code
// because handlers check it immediately before calling Error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
