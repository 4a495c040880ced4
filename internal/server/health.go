package server

import (
	"context"
	"net/http"
	"time"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named readiness check. Check returns nil when the dependency
// is ready.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

type healthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type readyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// handleHealth is the liveness probe. It touches no dependency.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Message: "TTS service is running"})
}

// handleReady runs every checker in order and answers 503 when any fails.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.checkers))
	ready := true

	for _, checker := range s.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := checker.Check(ctx)

		cancel()

		if err != nil {
			checks[checker.Name] = "fail: " + err.Error()
			ready = false

			continue
		}

		checks[checker.Name] = "ok"
	}

	if !ready {
		writeJSON(w, http.StatusServiceUnavailable, readyResponse{Status: "fail", Checks: checks})

		return
	}

	writeJSON(w, http.StatusOK, readyResponse{Status: "ok", Checks: checks})
}
