package server

import (
	"encoding/json"
	"net/http"

	"github.com/book-expert/tts-publisher/internal/core"
)

const internalErrorMessage = "Internal server error"

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// statusFor maps an error to its HTTP status and response body.
func statusFor(err error) (int, errorResponse) {
	switch core.KindOf(err) {
	case core.KindValidation:
		return http.StatusBadRequest, errorResponse{Error: err.Error(), Details: ""}
	case core.KindConfiguration:
		return http.StatusInternalServerError, errorResponse{Error: err.Error(), Details: ""}
	case core.KindSynthesis, core.KindPublish, core.KindUnhandled:
		return http.StatusInternalServerError, errorResponse{Error: internalErrorMessage, Details: err.Error()}
	default:
		return http.StatusInternalServerError, errorResponse{Error: internalErrorMessage, Details: err.Error()}
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, body := statusFor(err)
	writeJSON(w, status, body)
}

// writeJSON encodes v with the given status. Encoding failures after the
// header is written can only be dropped.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}
