package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/platinummonkey/collab/pkg/collab"
	"github.com/platinummonkey/collab/pkg/observability"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	_ = WriteJSON(w, status, ErrorResponse{Error: message})
}

// WriteNotFoundError writes a not found error response (404 Not Found)
func WriteNotFoundError(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusNotFound, message)
}

// WriteCreated writes a successful creation response (201 Created) with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// StatusForError maps a collab error kind onto an HTTP status
func StatusForError(err error) int {
	switch collab.KindOf(err) {
	case collab.KindInvalidArgument:
		return http.StatusBadRequest
	case collab.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err with the status its kind maps to. Internal errors
// are logged and their detail is withheld from the client.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusForError(err)
	kind := collab.KindOf(err)

	resp := ErrorResponse{
		Error:     err.Error(),
		Kind:      kind.String(),
		RequestID: w.Header().Get(RequestIDHeader),
	}
	if status == http.StatusInternalServerError {
		observability.FromContext(r.Context()).WithError(err).Error("request failed")
		resp.Error = "internal server error"
	}

	_ = WriteJSON(w, status, resp)
}
