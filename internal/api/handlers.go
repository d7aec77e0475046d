package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	snap := s.board.Get()
	status := "ok"
	if !snap.Running {
		status = "stopped"
	}
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        status,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Running:       snap.Running,
		PrinterLink:   snap.Printer.Link,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.board.Get())
}

// handleJobs handles GET /jobs?limit=N.
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		s.writeError(w, http.StatusNotFound, "job journal disabled")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	entries, err := s.jobs.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read job journal", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read job journal")
		return
	}
	respondJSON(w, http.StatusOK, JobsResponse{Jobs: entries})
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(s.config.APIKey != ""))
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
