package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rollward-systems/rollward/pkg/types"
)

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func limitParam(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"store":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus serves the aggregated snapshot. With ?rebuild=1 the snapshot is
// recomputed from the stored event log, which is how a fresh process converges
// on the same view a long-running one built incrementally.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("rebuild") == "1" {
		if err := s.aggregator.Rebuild(r.Context(), s.store); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, s.aggregator.Snapshot())
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	execs, err := s.store.ListExecutions(r.Context(), limitParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"executions": execs})
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "executionID")
	exec, err := s.store.GetExecution(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if exec == nil {
		writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (s *Server) handleExecutionEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "executionID")
	events, err := s.store.ListEvents(r.Context(), id, limitParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	// The global log grows without bound; default to the newest 200 entries.
	limit := limitParam(r)
	if limit <= 0 {
		limit = 200
	}
	events, err := s.store.ListEvents(r.Context(), "", limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (s *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	records, err := s.backups.List(r.Context(), limitParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"backups": records})
}

func (s *Server) handleGetBackup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "backupID")
	record, err := s.backups.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "backup not found")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// submitRollbackBody is the POST /api/rollbacks payload.
type submitRollbackBody struct {
	Type        string `json:"type"`
	Target      string `json:"target,omitempty"`
	Reason      string `json:"reason"`
	RequestedBy string `json:"requestedBy,omitempty"`
	Force       bool   `json:"force,omitempty"`
	SkipBackup  bool   `json:"skipBackup,omitempty"`
	AutoApprove bool   `json:"autoApprove,omitempty"`
}

// handleSubmitRollback queues a rollback. HTTP submissions cannot be prompted,
// so autoApprove is mandatory; without it the execution would stall at
// confirmation and be cancelled.
func (s *Server) handleSubmitRollback(w http.ResponseWriter, r *http.Request) {
	if s.submitter == nil {
		writeError(w, http.StatusNotImplemented, "rollback submission is disabled")
		return
	}

	var body submitRollbackBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	rollbackType, err := types.ParseRollbackType(body.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	target, err := types.ParseTarget(body.Target)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !body.AutoApprove {
		writeError(w, http.StatusBadRequest, "autoApprove is required for API-submitted rollbacks")
		return
	}
	requestedBy := body.RequestedBy
	if requestedBy == "" {
		requestedBy = "api"
	}

	id, err := s.submitter.Submit(r.Context(), types.RollbackRequest{
		Type:        rollbackType,
		Target:      target,
		Reason:      body.Reason,
		RequestedBy: requestedBy,
		Force:       body.Force,
		SkipBackup:  body.SkipBackup,
		AutoApprove: true,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"executionId": id})
}
